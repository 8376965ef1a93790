// Package repository holds the entity-scoped operations used by ingestion and
// the read side. Every call goes through the storage gateway.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Viphunter83/userbot-orders/internal/models"
	"github.com/Viphunter83/userbot-orders/internal/storage"
)

// Chats manages monitored chats
type Chats struct {
	gw     *storage.Gateway
	logger zerolog.Logger
}

func NewChats(gw *storage.Gateway, logger zerolog.Logger) *Chats {
	return &Chats{gw: gw, logger: logger.With().Str("component", "chat_repository").Logger()}
}

// UpsertByExternalID creates the chat as active or refreshes the name and kind
// of an existing one. The activity flag of an existing chat is left as is.
func (r *Chats) UpsertByExternalID(ctx context.Context, chatID, name string, kind models.ChatKind, at time.Time) (*models.Chat, error) {
	if chatID == "" {
		return nil, models.NewError(models.KindValidationRejected, "chat.upsert", errors.New("chat_id is required"))
	}
	if !kind.Valid() {
		return nil, models.NewError(models.KindValidationRejected, "chat.upsert", errors.New("invalid chat kind "+string(kind)))
	}
	if name == "" {
		name = chatID
	}

	in := models.Chat{ChatID: chatID, ChatName: name, ChatType: kind, IsActive: true, CreatedAt: at.UTC()}
	var out *models.Chat
	err := r.gw.Do(ctx, storage.EntityChat, storage.OpCreate, func(ctx context.Context, b storage.Backend) error {
		var err error
		out, err = b.UpsertChat(ctx, &in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns one chat by external id
func (r *Chats) Get(ctx context.Context, chatID string) (*models.Chat, error) {
	var out *models.Chat
	err := r.gw.Do(ctx, storage.EntityChat, storage.OpGet, func(ctx context.Context, b storage.Backend) error {
		var err error
		out, err = b.GetChat(ctx, chatID)
		return err
	})
	return out, err
}

// GetActive returns chats with monitoring enabled
func (r *Chats) GetActive(ctx context.Context) ([]models.Chat, error) {
	return r.list(ctx, true)
}

// GetAll returns every known chat
func (r *Chats) GetAll(ctx context.Context) ([]models.Chat, error) {
	return r.list(ctx, false)
}

func (r *Chats) list(ctx context.Context, activeOnly bool) ([]models.Chat, error) {
	var out []models.Chat
	err := r.gw.Do(ctx, storage.EntityChat, storage.OpList, func(ctx context.Context, b storage.Backend) error {
		var err error
		out, err = b.ListChats(ctx, activeOnly)
		return err
	})
	return out, err
}

// Deactivate turns monitoring off for a chat
func (r *Chats) Deactivate(ctx context.Context, chatID string) error {
	return r.setActive(ctx, chatID, false)
}

// Activate turns monitoring back on for a chat
func (r *Chats) Activate(ctx context.Context, chatID string) error {
	return r.setActive(ctx, chatID, true)
}

func (r *Chats) setActive(ctx context.Context, chatID string, active bool) error {
	err := r.gw.Do(ctx, storage.EntityChat, storage.OpUpdate, func(ctx context.Context, b storage.Backend) error {
		return b.SetChatActive(ctx, chatID, active)
	})
	if err != nil {
		return err
	}
	r.logger.Info().Str("chat_id", chatID).Bool("active", active).Msg("Chat monitoring changed")
	return nil
}

// TouchLastMessageTime moves the chat's last-message time forward to at; older times are ignored
func (r *Chats) TouchLastMessageTime(ctx context.Context, chatID string, at time.Time) error {
	return r.gw.Do(ctx, storage.EntityChat, storage.OpUpdate, func(ctx context.Context, b storage.Backend) error {
		return b.TouchChat(ctx, chatID, at)
	})
}
