// Package ingest runs inbound messages through persistence and classification
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Viphunter83/userbot-orders/internal/models"
	"github.com/Viphunter83/userbot-orders/internal/repository"
)

// MaxTextLength is how many runes of message text are stored
const MaxTextLength = 10000

const unknownAuthor = "unknown"

// Status is the terminal state of one ingested message
type Status string

const (
	StatusMatched   Status = "matched"
	StatusNoMatch   Status = "no_match"
	StatusDuplicate Status = "duplicate"
	StatusIgnored   Status = "ignored"
	StatusFailed    Status = "failed"
)

// Outcome reports what happened to one message
type Outcome struct {
	Status    Status
	MessageID int64 // Stored row id, zero when the message was never recorded

	// Set for StatusMatched
	Category string
	Score    float64
	Method   models.DetectionMethod
	OrderID  int64 // Zero when the order already existed or could not be stored

	Degraded bool // LLM tier failed during classification

	// Partial is set when classification completed but an order or stat write failed
	Partial bool
	Err     error
}

// Kind returns the classified kind of the outcome error
func (o Outcome) Kind() models.ErrorKind {
	return models.KindOf(o.Err)
}

// Classifier decides whether a text is an order
type Classifier interface {
	Classify(ctx context.Context, text string) models.Decision
}

// Notifier is told about newly stored orders
type Notifier interface {
	NotifyOrder(ctx context.Context, order *models.Order)
}

// Coordinator sequences chat upsert, message dedup, classification, order and
// stat writes for each message
type Coordinator struct {
	chats      *repository.Chats
	messages   *repository.Messages
	orders     *repository.Orders
	stats      *repository.Stats
	classifier Classifier
	notifier   Notifier
	logger     zerolog.Logger
}

func NewCoordinator(
	chats *repository.Chats,
	messages *repository.Messages,
	orders *repository.Orders,
	stats *repository.Stats,
	classifier Classifier,
	logger zerolog.Logger,
) *Coordinator {
	return &Coordinator{
		chats:      chats,
		messages:   messages,
		orders:     orders,
		stats:      stats,
		classifier: classifier,
		logger:     logger.With().Str("component", "coordinator").Logger(),
	}
}

// SetNotifier registers a receiver for new orders
func (c *Coordinator) SetNotifier(n Notifier) {
	c.notifier = n
}

func failed(messageID int64, err error) Outcome {
	return Outcome{Status: StatusFailed, MessageID: messageID, Err: err}
}

// Ingest runs the full pipeline for one inbound event. Storage errors before
// classification abort and are returned for the caller to redeliver.
func (c *Coordinator) Ingest(ctx context.Context, in models.InboundMessage) Outcome {
	if in.ExternalMessageID == "" || in.ChatID == "" {
		return failed(0, models.NewError(models.KindValidationRejected, "ingest",
			errors.New("message id and chat id are required")))
	}
	if in.AuthorID == "" {
		in.AuthorID = unknownAuthor
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now()
	}
	if in.ChatKind == "" {
		in.ChatKind = models.ChatKindGroup
	}
	in.Text = truncateRunes(in.Text, MaxTextLength)

	log := c.logger.With().
		Str("chat_id", in.ChatID).
		Str("message_id", in.ExternalMessageID).
		Logger()

	chat, err := c.chats.UpsertByExternalID(ctx, in.ChatID, in.ChatName, in.ChatKind, in.Timestamp)
	if err != nil {
		log.Error().Err(err).Msg("Failed to resolve chat")
		return failed(0, err)
	}
	if !chat.IsActive {
		log.Debug().Msg("Chat is not monitored, message ignored")
		return Outcome{Status: StatusIgnored}
	}
	if err := c.chats.TouchLastMessageTime(ctx, in.ChatID, in.Timestamp); err != nil {
		log.Error().Err(err).Msg("Failed to update chat last message time")
		return failed(0, err)
	}

	msg, created, err := c.messages.CreateIfAbsent(ctx, models.Message{
		MessageID:  in.ExternalMessageID,
		ChatID:     in.ChatID,
		AuthorID:   in.AuthorID,
		AuthorName: in.AuthorName,
		Text:       in.Text,
		Timestamp:  in.Timestamp,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to record message")
		return failed(0, err)
	}
	if !created && msg.Processed {
		log.Debug().Msg("Duplicate delivery")
		return Outcome{Status: StatusDuplicate, MessageID: msg.ID}
	}
	if !created {
		log.Info().Int64("id", msg.ID).Msg("Resuming unprocessed message")
	}

	return c.process(ctx, msg, in.ChatUsername, log)
}

// Reprocess classifies a recorded message that was never marked processed
func (c *Coordinator) Reprocess(ctx context.Context, msg models.Message) Outcome {
	if msg.Processed {
		return Outcome{Status: StatusDuplicate, MessageID: msg.ID}
	}
	log := c.logger.With().
		Str("chat_id", msg.ChatID).
		Str("message_id", msg.MessageID).
		Logger()
	return c.process(ctx, &msg, "", log)
}

// ReprocessPending runs Reprocess over up to limit unprocessed messages
// recorded at least minAge ago and returns how many reached each status.
// Younger messages may still be in flight on the live path.
func (c *Coordinator) ReprocessPending(ctx context.Context, limit int, minAge time.Duration) (map[Status]int, error) {
	pending, err := c.messages.ListUnprocessed(ctx, limit)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-minAge)
	counts := make(map[Status]int)
	skipped := 0
	for _, msg := range pending {
		if ctx.Err() != nil {
			return counts, ctx.Err()
		}
		if minAge > 0 && msg.CreatedAt.After(cutoff) {
			skipped++
			continue
		}
		out := c.Reprocess(ctx, msg)
		counts[out.Status]++
	}

	c.logger.Info().
		Int("pending", len(pending)).
		Int("skipped", skipped).
		Int("matched", counts[StatusMatched]).
		Int("failed", counts[StatusFailed]).
		Msg("Reprocessing finished")
	return counts, nil
}

func (c *Coordinator) process(ctx context.Context, msg *models.Message, username string, log zerolog.Logger) Outcome {
	decision := c.classifier.Classify(ctx, msg.Text)

	// Stats are only written after this point, so a failure here is safe to replay.
	// Only the caller that flips the flag writes the order and stats.
	claimed, err := c.messages.MarkProcessed(ctx, msg.ID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to mark message processed")
		return failed(msg.ID, err)
	}
	if !claimed {
		log.Debug().Msg("Message processed by a concurrent delivery")
		return Outcome{Status: StatusDuplicate, MessageID: msg.ID}
	}

	out := Outcome{Status: StatusNoMatch, MessageID: msg.ID, Degraded: decision.Degraded}
	var errs []error

	var order *models.Order
	if decision.Matched() {
		out.Status = StatusMatched
		out.Category = decision.Category
		out.Score = decision.Score
		out.Method = decision.Method()

		order = &models.Order{
			MessageID:      msg.MessageID,
			ChatID:         msg.ChatID,
			AuthorID:       msg.AuthorID,
			AuthorName:     msg.AuthorName,
			Text:           msg.Text,
			Category:       decision.Category,
			RelevanceScore: decision.Score,
			DetectedBy:     decision.Method(),
			TelegramLink:   MessageLink(msg.ChatID, username, msg.MessageID),
			CreatedAt:      time.Now(),
		}
		switch err := c.orders.Create(ctx, order); {
		case err == nil:
			out.OrderID = order.ID
		case models.IsKind(err, models.KindConflict):
			log.Debug().Msg("Order already recorded")
			order = nil
		default:
			log.Error().Err(err).Msg("Failed to save order")
			errs = append(errs, err)
			order = nil
		}
	}

	if err := c.stats.IncrementToday(ctx, statDelta(decision)); err != nil {
		log.Error().Err(err).Msg("Failed to update daily stats")
		errs = append(errs, err)
	}
	chatDelta := models.ChatStatDelta{Messages: 1}
	if decision.Matched() {
		chatDelta.Orders = 1
	}
	if err := c.stats.IncrementChatStat(ctx, msg.ChatID, chatDelta); err != nil {
		log.Error().Err(err).Msg("Failed to update chat stats")
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		out.Partial = true
		out.Err = errors.Join(errs...)
	}

	if order != nil && c.notifier != nil {
		c.notifier.NotifyOrder(ctx, order)
	}

	ev := log.Debug()
	if decision.Matched() {
		ev = log.Info()
	}
	ev.Str("status", string(out.Status)).
		Str("category", out.Category).
		Float64("score", out.Score).
		Bool("degraded", out.Degraded).
		Bool("partial", out.Partial).
		Msg("Message processed")
	return out
}

// statDelta maps one decision onto the daily counters
func statDelta(d models.Decision) models.StatDelta {
	delta := models.StatDelta{Messages: 1}
	switch d.Kind {
	case models.DecisionRegex:
		delta.Orders, delta.Regex = 1, 1
	case models.DecisionLLM:
		delta.Orders, delta.LLM = 1, 1
	}
	if u := d.Usage; u != nil && !u.Cached {
		delta.LLMRequests = 1
		delta.Tokens = int64(u.TotalTokens)
		delta.Cost = u.CostUSD
		delta.ResponseTimeMs = u.Latency.Milliseconds()
	}
	return delta
}

// Review records an operator verdict on an order. The first rejection of an
// order counts it as a false positive.
func (c *Coordinator) Review(ctx context.Context, orderID int64, feedback models.FeedbackType, reason *string) error {
	prev, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if err := c.orders.AttachFeedback(ctx, orderID, feedback, reason); err != nil {
		return err
	}
	alreadyRejected := prev.Feedback != nil && *prev.Feedback == models.FeedbackReject
	if feedback == models.FeedbackReject && !alreadyRejected {
		if err := c.stats.IncrementToday(ctx, models.StatDelta{FalsePositives: 1}); err != nil {
			c.logger.Error().Err(err).Int64("order_id", orderID).Msg("Failed to count false positive")
		}
	}
	return nil
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
