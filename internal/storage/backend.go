package storage

import (
	"context"
	"time"

	"github.com/Viphunter83/userbot-orders/internal/models"
)

// Entity names a persisted entity type
type Entity string

const (
	EntityChat     Entity = "chat"
	EntityMessage  Entity = "message"
	EntityOrder    Entity = "order"
	EntityFeedback Entity = "feedback"
	EntityStat     Entity = "stat"
	EntityChatStat Entity = "chat_stat"
)

// Op names a storage operation
type Op string

const (
	OpCreate Op = "create"
	OpGet    Op = "get"
	OpList   Op = "list"
	OpUpdate Op = "update"
)

// Backend is one concrete store. Every method returns classified errors
// (see MapError); uniqueness violations surface as models.ErrConflict.
type Backend interface {
	Name() string
	Ping(ctx context.Context) error
	Close() error

	// UpsertChat inserts chat or refreshes name and kind of the existing row, returning the stored row
	UpsertChat(ctx context.Context, chat *models.Chat) (*models.Chat, error)
	GetChat(ctx context.Context, chatID string) (*models.Chat, error)
	ListChats(ctx context.Context, activeOnly bool) ([]models.Chat, error)
	SetChatActive(ctx context.Context, chatID string, active bool) error
	TouchChat(ctx context.Context, chatID string, at time.Time) error

	// InsertMessage fails with Conflict when (MessageID, ChatID) exists; sets m.ID on success
	InsertMessage(ctx context.Context, m *models.Message) error
	GetMessage(ctx context.Context, chatID, messageID string) (*models.Message, error)
	// MarkMessageProcessed claims the message: it reports true only for the
	// call that flips processed from false, false when it was already set
	MarkMessageProcessed(ctx context.Context, id int64) (bool, error)
	ListUnprocessedMessages(ctx context.Context, limit int) ([]models.Message, error)

	// InsertOrder fails with Conflict when the message already has an order; sets o.ID on success
	InsertOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	ListOrders(ctx context.Context, q models.OrderQuery) ([]models.Order, error)
	MarkOrdersExported(ctx context.Context, ids []int64) error
	SetOrderFeedback(ctx context.Context, id int64, feedback models.FeedbackType, notes *string) error
	InsertFeedback(ctx context.Context, f *models.Feedback) error

	// IncrementStat atomically adds d to the row for date, creating it if needed
	IncrementStat(ctx context.Context, date string, d models.StatDelta, at time.Time) error
	// IncrementChatStat atomically adds d to the (chatID, date) row, creating it if needed
	IncrementChatStat(ctx context.Context, chatID, date string, d models.ChatStatDelta, at time.Time) error
	GetStat(ctx context.Context, date string) (*models.Stat, error)
	// ListStats returns rows with from <= date <= to, ordered by date
	ListStats(ctx context.Context, from, to string) ([]models.Stat, error)
	ListChatStats(ctx context.Context, from, to string) ([]models.ChatStat, error)
}
