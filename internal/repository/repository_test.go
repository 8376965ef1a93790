package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Viphunter83/userbot-orders/internal/models"
	"github.com/Viphunter83/userbot-orders/internal/storage"
)

func newGateway(t *testing.T) (*storage.Gateway, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	gw, err := storage.NewGateway(nil, store, time.Second, zerolog.Nop())
	require.NoError(t, err)
	return gw, store
}

func TestChats_Upsert(t *testing.T) {
	gw, _ := newGateway(t)
	chats := NewChats(gw, zerolog.Nop())
	ctx := context.Background()
	now := time.Now()

	chat, err := chats.UpsertByExternalID(ctx, "-1001", "Freelance", models.ChatKindGroup, now)
	require.NoError(t, err)
	assert.True(t, chat.IsActive)

	require.NoError(t, chats.Deactivate(ctx, "-1001"))
	again, err := chats.UpsertByExternalID(ctx, "-1001", "Freelance Jobs", models.ChatKindGroup, now)
	require.NoError(t, err)
	assert.Equal(t, chat.ID, again.ID)
	assert.False(t, again.IsActive)

	active, err := chats.GetActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, chats.Activate(ctx, "-1001"))
	active, err = chats.GetActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	_, err = chats.UpsertByExternalID(ctx, "", "x", models.ChatKindGroup, now)
	assert.ErrorIs(t, err, models.ErrValidationRejected)
	_, err = chats.UpsertByExternalID(ctx, "1", "x", models.ChatKind("forum"), now)
	assert.ErrorIs(t, err, models.ErrValidationRejected)

	assert.ErrorIs(t, chats.Deactivate(ctx, "nope"), models.ErrNotFound)
}

func TestChats_TouchLastMessageTime(t *testing.T) {
	gw, _ := newGateway(t)
	chats := NewChats(gw, zerolog.Nop())
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	_, err := chats.UpsertByExternalID(ctx, "c", "c", models.ChatKindChannel, base)
	require.NoError(t, err)
	require.NoError(t, chats.TouchLastMessageTime(ctx, "c", base.Add(time.Minute)))
	require.NoError(t, chats.TouchLastMessageTime(ctx, "c", base))

	chat, err := chats.Get(ctx, "c")
	require.NoError(t, err)
	require.NotNil(t, chat.LastMessageAt)
	assert.True(t, chat.LastMessageAt.Equal(base.Add(time.Minute)))
}

func TestMessages_CreateIfAbsent(t *testing.T) {
	gw, _ := newGateway(t)
	msgs := NewMessages(gw, zerolog.Nop())
	ctx := context.Background()

	in := models.Message{MessageID: "M1", ChatID: "C1", AuthorID: "u1", Text: "first", Timestamp: time.Now()}
	m, created, err := msgs.CreateIfAbsent(ctx, in)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, m.ID)

	in.Text = "changed"
	again, created, err := msgs.CreateIfAbsent(ctx, in)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, m.ID, again.ID)
	assert.Equal(t, "first", again.Text)

	_, _, err = msgs.CreateIfAbsent(ctx, models.Message{ChatID: "C1", AuthorID: "u"})
	assert.ErrorIs(t, err, models.ErrValidationRejected)
}

func TestMessages_ConcurrentCreateStoresOnce(t *testing.T) {
	gw, _ := newGateway(t)
	msgs := NewMessages(gw, zerolog.Nop())
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = map[int64]bool{}
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, ok, err := msgs.CreateIfAbsent(ctx, models.Message{MessageID: "M", ChatID: "C", AuthorID: "a", Text: "t", Timestamp: time.Now()})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if ok {
				created++
			}
			ids[m.ID] = true
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, ids, 1)
}

func TestMessages_UnprocessedFlow(t *testing.T) {
	gw, _ := newGateway(t)
	msgs := NewMessages(gw, zerolog.Nop())
	ctx := context.Background()
	base := time.Now()

	a, _, err := msgs.CreateIfAbsent(ctx, models.Message{MessageID: "1", ChatID: "C", AuthorID: "a", Timestamp: base})
	require.NoError(t, err)
	_, _, err = msgs.CreateIfAbsent(ctx, models.Message{MessageID: "2", ChatID: "C", AuthorID: "a", Timestamp: base.Add(time.Second)})
	require.NoError(t, err)

	claimed, err := msgs.MarkProcessed(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, claimed)
	claimed, err = msgs.MarkProcessed(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, claimed)

	list, err := msgs.ListUnprocessed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "2", list[0].MessageID)
}

func TestOrders_CreateValidation(t *testing.T) {
	gw, _ := newGateway(t)
	orders := NewOrders(gw, zerolog.Nop())
	ctx := context.Background()

	valid := func() *models.Order {
		return &models.Order{MessageID: "1", ChatID: "C", AuthorID: "a", Text: "t", Category: "Backend", RelevanceScore: 0.7, DetectedBy: models.DetectedByRegex}
	}

	tests := []struct {
		name   string
		mutate func(o *models.Order)
	}{
		{"score above one", func(o *models.Order) { o.RelevanceScore = 1.01 }},
		{"negative score", func(o *models.Order) { o.RelevanceScore = -0.1 }},
		{"missing category", func(o *models.Order) { o.Category = "" }},
		{"missing message id", func(o *models.Order) { o.MessageID = "" }},
		{"bad method", func(o *models.Order) { o.DetectedBy = "manual" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := valid()
			tt.mutate(o)
			assert.ErrorIs(t, orders.Create(ctx, o), models.ErrValidationRejected)
		})
	}

	o := valid()
	require.NoError(t, orders.Create(ctx, o))
	assert.NotZero(t, o.ID)
	assert.False(t, o.CreatedAt.IsZero())

	assert.ErrorIs(t, orders.Create(ctx, valid()), models.ErrConflict)
}

func TestOrders_ReadSide(t *testing.T) {
	gw, _ := newGateway(t)
	orders := NewOrders(gw, zerolog.Nop())
	ctx := context.Background()
	base := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	for i, cat := range []string{"Backend", "Mobile", "Backend", "Frontend"} {
		o := &models.Order{
			MessageID:      string(rune('a' + i)),
			ChatID:         "C",
			AuthorID:       "a",
			Text:           "t",
			Category:       cat,
			RelevanceScore: 0.9,
			DetectedBy:     models.DetectedByLLM,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, orders.Create(ctx, o))
	}

	recent, err := orders.GetRecent(ctx, "", 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "d", recent[0].MessageID)

	backend, err := orders.GetByCategory(ctx, "Backend", 0)
	require.NoError(t, err)
	assert.Len(t, backend, 2)

	_, err = orders.GetByCategory(ctx, "", 0)
	assert.ErrorIs(t, err, models.ErrValidationRejected)

	unexported, err := orders.GetUnexported(ctx, 0)
	require.NoError(t, err)
	require.Len(t, unexported, 4)
	assert.Equal(t, "a", unexported[0].MessageID)

	require.NoError(t, orders.MarkExported(ctx, []int64{unexported[0].ID, unexported[1].ID}))
	unexported, err = orders.GetUnexported(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, unexported, 2)
	require.NoError(t, orders.MarkExported(ctx, nil))
}

func TestOrders_AttachFeedback(t *testing.T) {
	gw, store := newGateway(t)
	orders := NewOrders(gw, zerolog.Nop())
	ctx := context.Background()

	o := &models.Order{MessageID: "1", ChatID: "C", AuthorID: "a", Text: "t", Category: "Backend", RelevanceScore: 0.7, DetectedBy: models.DetectedByRegex}
	require.NoError(t, orders.Create(ctx, o))

	reason := "реклама курса"
	require.NoError(t, orders.AttachFeedback(ctx, o.ID, models.FeedbackReject, &reason))

	got, err := orders.Get(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Feedback)
	assert.Equal(t, models.FeedbackReject, *got.Feedback)
	assert.Equal(t, reason, *got.Notes)

	rows := store.Feedback()
	require.Len(t, rows, 1)
	assert.Equal(t, o.ID, rows[0].OrderID)

	assert.ErrorIs(t, orders.AttachFeedback(ctx, o.ID, "maybe", nil), models.ErrValidationRejected)
	assert.ErrorIs(t, orders.AttachFeedback(ctx, 999, models.FeedbackAccept, nil), models.ErrNotFound)
	assert.Len(t, store.Feedback(), 1)
}

func TestStats_DateKeyUsesLocation(t *testing.T) {
	gw, _ := newGateway(t)
	moscow, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	stats := NewStats(gw, moscow, zerolog.Nop())

	// 22:30 UTC is already the next day in Moscow
	stats.now = func() time.Time { return time.Date(2025, 3, 1, 22, 30, 0, 0, time.UTC) }
	assert.Equal(t, "2025-03-02", stats.Today())
}

func TestStats_ConcurrentIncrementsAreNotLost(t *testing.T) {
	gw, _ := newGateway(t)
	stats := NewStats(gw, time.UTC, zerolog.Nop())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := models.StatDelta{Messages: 1}
			if i%5 == 0 {
				d.Orders, d.Regex = 1, 1
			}
			assert.NoError(t, stats.IncrementToday(ctx, d))
			assert.NoError(t, stats.IncrementChatStat(ctx, "C", models.ChatStatDelta{Messages: 1, Orders: d.Orders}))
		}(i)
	}
	wg.Wait()

	st, err := stats.Get(ctx, stats.Today())
	require.NoError(t, err)
	assert.Equal(t, int64(50), st.TotalMessages)
	assert.Equal(t, int64(10), st.DetectedOrders)

	now := time.Now()
	rows, err := stats.GetChatStatsForPeriod(ctx, now, now)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 20.0, rows[0].OrderPercentage, 1e-9)
}

func TestStats_Validation(t *testing.T) {
	gw, store := newGateway(t)
	stats := NewStats(gw, time.UTC, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, stats.IncrementToday(ctx, models.StatDelta{}))
	_, err := store.GetStat(ctx, stats.Today())
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.ErrorIs(t, stats.IncrementToday(ctx, models.StatDelta{Messages: -1}), models.ErrValidationRejected)

	now := time.Now()
	_, err = stats.GetStatsForPeriod(ctx, now, now.AddDate(0, 0, -2))
	assert.ErrorIs(t, err, models.ErrValidationRejected)
}
