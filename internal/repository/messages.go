package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Viphunter83/userbot-orders/internal/models"
	"github.com/Viphunter83/userbot-orders/internal/storage"
)

// Messages records observed messages, deduplicated on (message id, chat id)
type Messages struct {
	gw     *storage.Gateway
	logger zerolog.Logger
}

func NewMessages(gw *storage.Gateway, logger zerolog.Logger) *Messages {
	return &Messages{gw: gw, logger: logger.With().Str("component", "message_repository").Logger()}
}

// CreateIfAbsent stores m. When the dedup key already exists the stored row is
// returned unchanged with created=false.
func (r *Messages) CreateIfAbsent(ctx context.Context, m models.Message) (*models.Message, bool, error) {
	if m.MessageID == "" || m.ChatID == "" || m.AuthorID == "" {
		return nil, false, models.NewError(models.KindValidationRejected, "message.create",
			errors.New("message_id, chat_id and author_id are required"))
	}
	m.ID = 0
	m.Processed = false
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	err := r.gw.Do(ctx, storage.EntityMessage, storage.OpCreate, func(ctx context.Context, b storage.Backend) error {
		return b.InsertMessage(ctx, &m)
	})
	if err == nil {
		return &m, true, nil
	}
	if !models.IsKind(err, models.KindConflict) {
		return nil, false, err
	}

	r.logger.Debug().
		Str("message_id", m.MessageID).
		Str("chat_id", m.ChatID).
		Msg("Message already recorded")

	existing, err := r.Get(ctx, m.ChatID, m.MessageID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Get returns a message by its dedup key
func (r *Messages) Get(ctx context.Context, chatID, messageID string) (*models.Message, error) {
	var out *models.Message
	err := r.gw.Do(ctx, storage.EntityMessage, storage.OpGet, func(ctx context.Context, b storage.Backend) error {
		var err error
		out, err = b.GetMessage(ctx, chatID, messageID)
		return err
	})
	return out, err
}

// MarkProcessed flags a message as classified. It reports false when another
// caller already did, in which case the message's results belong to that caller.
func (r *Messages) MarkProcessed(ctx context.Context, id int64) (bool, error) {
	var claimed bool
	err := r.gw.Do(ctx, storage.EntityMessage, storage.OpUpdate, func(ctx context.Context, b storage.Backend) error {
		var err error
		claimed, err = b.MarkMessageProcessed(ctx, id)
		return err
	})
	return claimed, err
}

// ListUnprocessed returns up to limit unclassified messages, oldest first
func (r *Messages) ListUnprocessed(ctx context.Context, limit int) ([]models.Message, error) {
	var out []models.Message
	err := r.gw.Do(ctx, storage.EntityMessage, storage.OpList, func(ctx context.Context, b storage.Backend) error {
		var err error
		out, err = b.ListUnprocessedMessages(ctx, limit)
		return err
	})
	return out, err
}
