package bot

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/Viphunter83/userbot-orders/internal/export"
	"github.com/Viphunter83/userbot-orders/internal/health"
	"github.com/Viphunter83/userbot-orders/internal/models"
	"github.com/Viphunter83/userbot-orders/internal/repository"
	"github.com/Viphunter83/userbot-orders/internal/stats"
)

// Submitter accepts inbound messages for ordered processing
type Submitter interface {
	Submit(ctx context.Context, in models.InboundMessage) error
}

// Reviewer records operator verdicts on orders
type Reviewer interface {
	Review(ctx context.Context, orderID int64, feedback models.FeedbackType, reason *string) error
}

// Budget reports today's LLM spend
type Budget interface {
	Spent() float64
	Remaining() float64
}

// sender is the part of the Bot API used to talk to Telegram
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Deps are the collaborators the bot forwards to
type Deps struct {
	Feed     Submitter
	Reviewer Reviewer
	Reporter *stats.Reporter
	Orders   *repository.Orders
	Exporter *export.Exporter
	Budget   Budget          // optional
	Health   *health.Checker // optional
}

// Bot represents the Telegram bot: it feeds monitored chats into ingestion and
// answers operator commands
type Bot struct {
	api    *tgbotapi.BotAPI
	sender sender
	config *models.Config
	deps   Deps
	logger zerolog.Logger
	wg     sync.WaitGroup // Tracks active handlers for graceful shutdown
}

// New creates a new bot instance
func New(config *models.Config, deps Deps, logger zerolog.Logger) (*Bot, error) {
	// Create Telegram bot API client
	api, err := tgbotapi.NewBotAPI(config.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	// Set debug mode based on log level
	api.Debug = config.LogLevel == "debug"

	logger.Info().
		Str("username", api.Self.UserName).
		Int64("id", api.Self.ID).
		Msg("Telegram bot authorized")

	return &Bot{
		api:    api,
		sender: api,
		config: config,
		deps:   deps,
		logger: logger.With().Str("component", "bot").Logger(),
	}, nil
}

// Start starts the bot and blocks until ctx is done
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info().Msg("Starting bot...")

	// Configure update settings
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message", "channel_post"}

	// Get updates channel
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info().
		Int("monitored_chats", len(b.config.MonitoredChatIDs)).
		Msg("Bot started, waiting for messages...")

	// Process updates
	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Shutting down bot...")
			b.api.StopReceivingUpdates()

			// Wait for all active handlers to complete
			b.logger.Info().Msg("Waiting for active handlers to complete...")
			b.wg.Wait()
			b.logger.Info().Msg("All handlers completed")

			return nil

		case update, ok := <-updates:
			if !ok {
				b.wg.Wait()
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

// Stop stops the bot
func (b *Bot) Stop() {
	b.logger.Info().Msg("Stopping bot...")
	b.api.StopReceivingUpdates()
}

// Ping checks the Bot API token and connectivity
func (b *Bot) Ping(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		_, err := b.api.GetMe()
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram getMe failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendReport delivers text to the operator chat
func (b *Bot) SendReport(text string) error {
	return b.sendMessage(b.config.OperatorChatID, text)
}

// NotifyOrder tells the operator about a newly stored order
func (b *Bot) NotifyOrder(_ context.Context, order *models.Order) {
	_ = b.sendMessage(b.config.OperatorChatID, formatOrderNotification(order))
}
