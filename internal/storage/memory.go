package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Viphunter83/userbot-orders/internal/models"
)

type messageKey struct{ chatID, messageID string }

type chatStatKey struct{ chatID, date string }

// MemoryStore keeps all entities in process memory with the same
// uniqueness and range rules as the SQL schema
type MemoryStore struct {
	mu sync.Mutex

	nextID    int64
	chats     map[string]*models.Chat
	messages  map[messageKey]*models.Message
	orders    map[int64]*models.Order
	orderKeys map[messageKey]int64
	feedback  []models.Feedback
	stats     map[string]*models.Stat
	chatStats map[chatStatKey]*models.ChatStat

	// PingErr, when set, is returned by Ping
	PingErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chats:     make(map[string]*models.Chat),
		messages:  make(map[messageKey]*models.Message),
		orders:    make(map[int64]*models.Order),
		orderKeys: make(map[messageKey]int64),
		stats:     make(map[string]*models.Stat),
		chatStats: make(map[chatStatKey]*models.ChatStat),
	}
}

func (s *MemoryStore) Name() string { return "memory" }

func (s *MemoryStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.PingErr != nil {
		return models.NewError(models.KindConnectionUnavailable, "memory.ping", s.PingErr)
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *MemoryStore) UpsertChat(ctx context.Context, chat *models.Chat) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.chats[chat.ChatID]; ok {
		existing.ChatName = chat.ChatName
		existing.ChatType = chat.ChatType
		out := *existing
		return &out, nil
	}

	row := *chat
	row.ID = s.id()
	row.CreatedAt = row.CreatedAt.UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	s.chats[row.ChatID] = &row
	out := row
	return &out, nil
}

func (s *MemoryStore) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return nil, models.NewError(models.KindNotFound, "memory.get_chat", nil)
	}
	out := *chat
	return &out, nil
}

func (s *MemoryStore) ListChats(ctx context.Context, activeOnly bool) ([]models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Chat, 0, len(s.chats))
	for _, c := range s.chats {
		if activeOnly && !c.IsActive {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) SetChatActive(ctx context.Context, chatID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return models.NewError(models.KindNotFound, "memory.set_chat_active", nil)
	}
	chat.IsActive = active
	return nil
}

func (s *MemoryStore) TouchChat(ctx context.Context, chatID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return nil
	}
	at = at.UTC()
	if chat.LastMessageAt == nil || chat.LastMessageAt.Before(at) {
		chat.LastMessageAt = &at
	}
	return nil
}

func (s *MemoryStore) InsertMessage(ctx context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := messageKey{m.ChatID, m.MessageID}
	if _, ok := s.messages[key]; ok {
		return models.NewError(models.KindConflict, "memory.insert_message", nil)
	}
	if m.MessageID == "" || m.ChatID == "" {
		return models.NewError(models.KindValidationRejected, "memory.insert_message", errors.New("message_id and chat_id are required"))
	}

	row := *m
	row.ID = s.id()
	row.Timestamp = row.Timestamp.UTC()
	row.CreatedAt = row.CreatedAt.UTC()
	s.messages[key] = &row
	m.ID = row.ID
	return nil
}

func (s *MemoryStore) GetMessage(ctx context.Context, chatID, messageID string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageKey{chatID, messageID}]
	if !ok {
		return nil, models.NewError(models.KindNotFound, "memory.get_message", nil)
	}
	out := *m
	return &out, nil
}

func (s *MemoryStore) MarkMessageProcessed(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.messages {
		if m.ID == id {
			if m.Processed {
				return false, nil
			}
			m.Processed = true
			return true, nil
		}
	}
	return false, models.NewError(models.KindNotFound, "memory.mark_processed", nil)
}

func (s *MemoryStore) ListUnprocessedMessages(ctx context.Context, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Message
	for _, m := range s.messages {
		if !m.Processed {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) InsertOrder(ctx context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.RelevanceScore < 0 || o.RelevanceScore > 1 {
		return models.NewError(models.KindValidationRejected, "memory.insert_order", errors.New("relevance_score out of range"))
	}
	key := messageKey{o.ChatID, o.MessageID}
	if _, ok := s.orderKeys[key]; ok {
		return models.NewError(models.KindConflict, "memory.insert_order", nil)
	}

	row := *o
	row.ID = s.id()
	row.CreatedAt = row.CreatedAt.UTC()
	s.orders[row.ID] = &row
	s.orderKeys[key] = row.ID
	o.ID = row.ID
	return nil
}

func (s *MemoryStore) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, models.NewError(models.KindNotFound, "memory.get_order", nil)
	}
	out := *o
	return &out, nil
}

func (s *MemoryStore) ListOrders(ctx context.Context, q models.OrderQuery) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Order
	for _, o := range s.orders {
		if q.Category != "" && o.Category != q.Category {
			continue
		}
		if !q.Since.IsZero() && o.CreatedAt.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && !o.CreatedAt.Before(q.Until) {
			continue
		}
		if q.Exported != nil && o.Exported != *q.Exported {
			continue
		}
		if q.Feedback != nil && (o.Feedback == nil || *o.Feedback != *q.Feedback) {
			continue
		}
		out = append(out, *o)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if q.Ascending {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		if q.Ascending {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) MarkOrdersExported(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if o, ok := s.orders[id]; ok {
			o.Exported = true
		}
	}
	return nil
}

func (s *MemoryStore) SetOrderFeedback(ctx context.Context, id int64, feedback models.FeedbackType, notes *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return models.NewError(models.KindNotFound, "memory.set_feedback", nil)
	}
	fb := feedback
	o.Feedback = &fb
	o.Notes = notes
	return nil
}

func (s *MemoryStore) InsertFeedback(ctx context.Context, f *models.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := *f
	row.ID = s.id()
	row.CreatedAt = row.CreatedAt.UTC()
	s.feedback = append(s.feedback, row)
	f.ID = row.ID
	return nil
}

// Feedback returns a copy of all stored feedback rows
func (s *MemoryStore) Feedback() []models.Feedback {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Feedback(nil), s.feedback...)
}

func (s *MemoryStore) IncrementStat(ctx context.Context, date string, d models.StatDelta, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	at = at.UTC()
	st, ok := s.stats[date]
	if !ok {
		st = &models.Stat{ID: s.id(), Date: date, CreatedAt: at}
		s.stats[date] = st
	}

	if total := st.LLMRequests + d.LLMRequests; total > 0 {
		st.AvgResponseTimeMs = (st.AvgResponseTimeMs*st.LLMRequests + d.AvgResponseTimeMs()*d.LLMRequests) / total
	}
	st.TotalMessages += d.Messages
	st.DetectedOrders += d.Orders
	st.RegexDetections += d.Regex
	st.LLMDetections += d.LLM
	st.LLMRequests += d.LLMRequests
	st.LLMTokensUsed += d.Tokens
	st.LLMCost += d.Cost
	st.FalsePositiveCount += d.FalsePositives
	st.UpdatedAt = at
	return nil
}

func (s *MemoryStore) IncrementChatStat(ctx context.Context, chatID, date string, d models.ChatStatDelta, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	at = at.UTC()
	key := chatStatKey{chatID, date}
	cs, ok := s.chatStats[key]
	if !ok {
		cs = &models.ChatStat{ID: s.id(), ChatID: chatID, Date: date, CreatedAt: at}
		s.chatStats[key] = cs
	}
	cs.MessagesCount += d.Messages
	cs.OrdersCount += d.Orders
	cs.OrderPercentage = models.OrderPercentage(cs.OrdersCount, cs.MessagesCount)
	cs.UpdatedAt = at
	return nil
}

func (s *MemoryStore) GetStat(ctx context.Context, date string) (*models.Stat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stats[date]
	if !ok {
		return nil, models.NewError(models.KindNotFound, "memory.get_stat", nil)
	}
	out := *st
	return &out, nil
}

func (s *MemoryStore) ListStats(ctx context.Context, from, to string) ([]models.Stat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Stat
	for _, st := range s.stats {
		if st.Date >= from && st.Date <= to {
			out = append(out, *st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *MemoryStore) ListChatStats(ctx context.Context, from, to string) ([]models.ChatStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.ChatStat
	for _, cs := range s.chatStats {
		if cs.Date >= from && cs.Date <= to {
			out = append(out, *cs)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].ChatID < out[j].ChatID
	})
	return out, nil
}
