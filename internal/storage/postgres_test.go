package storage

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/Viphunter83/userbot-orders/internal/models"
)

func newSQLiteStore(t *testing.T) *DirectStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store := NewDirectStore(db, "sqlite", zerolog.Nop())
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// backendSuite runs the same behavioural checks against any Backend
func backendSuite(t *testing.T, newBackend func(t *testing.T) Backend) {
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	t.Run("chat upsert keeps activity flag", func(t *testing.T) {
		b := newBackend(t)
		chat, err := b.UpsertChat(ctx, &models.Chat{ChatID: "-100", ChatName: "Dev", ChatType: models.ChatKindGroup, IsActive: true, CreatedAt: base})
		require.NoError(t, err)
		assert.NotZero(t, chat.ID)

		require.NoError(t, b.SetChatActive(ctx, "-100", false))

		again, err := b.UpsertChat(ctx, &models.Chat{ChatID: "-100", ChatName: "Dev Jobs", ChatType: models.ChatKindGroup, IsActive: true, CreatedAt: base})
		require.NoError(t, err)
		assert.Equal(t, chat.ID, again.ID)
		assert.Equal(t, "Dev Jobs", again.ChatName)
		assert.False(t, again.IsActive)

		active, err := b.ListChats(ctx, true)
		require.NoError(t, err)
		assert.Empty(t, active)

		all, err := b.ListChats(ctx, false)
		require.NoError(t, err)
		assert.Len(t, all, 1)

		err = b.SetChatActive(ctx, "missing", true)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("touch chat only moves forward", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.UpsertChat(ctx, &models.Chat{ChatID: "c1", ChatName: "c", ChatType: models.ChatKindChannel, IsActive: true, CreatedAt: base})
		require.NoError(t, err)

		later := base.Add(2 * time.Hour)
		require.NoError(t, b.TouchChat(ctx, "c1", later))
		require.NoError(t, b.TouchChat(ctx, "c1", base.Add(time.Hour)))

		chat, err := b.GetChat(ctx, "c1")
		require.NoError(t, err)
		require.NotNil(t, chat.LastMessageAt)
		assert.True(t, later.Equal(*chat.LastMessageAt))
	})

	t.Run("message dedup", func(t *testing.T) {
		b := newBackend(t)
		m := &models.Message{MessageID: "42", ChatID: "c1", AuthorID: "7", Text: "hello", Timestamp: base, CreatedAt: base}
		require.NoError(t, b.InsertMessage(ctx, m))
		assert.NotZero(t, m.ID)

		dup := &models.Message{MessageID: "42", ChatID: "c1", AuthorID: "7", Text: "hello", Timestamp: base, CreatedAt: base}
		err := b.InsertMessage(ctx, dup)
		assert.ErrorIs(t, err, models.ErrConflict)

		// Same message id in another chat is a different message
		other := &models.Message{MessageID: "42", ChatID: "c2", AuthorID: "7", Text: "hello", Timestamp: base, CreatedAt: base}
		require.NoError(t, b.InsertMessage(ctx, other))

		got, err := b.GetMessage(ctx, "c1", "42")
		require.NoError(t, err)
		assert.Equal(t, m.ID, got.ID)

		_, err = b.GetMessage(ctx, "c1", "43")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("unprocessed listing", func(t *testing.T) {
		b := newBackend(t)
		for i, id := range []string{"3", "1", "2"} {
			m := &models.Message{MessageID: id, ChatID: "c", AuthorID: "a", Text: "t", Timestamp: base.Add(time.Duration(2-i) * time.Minute), CreatedAt: base}
			require.NoError(t, b.InsertMessage(ctx, m))
		}

		list, err := b.ListUnprocessedMessages(ctx, 10)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "2", list[0].MessageID)

		claimed, err := b.MarkMessageProcessed(ctx, list[0].ID)
		require.NoError(t, err)
		assert.True(t, claimed)

		claimed, err = b.MarkMessageProcessed(ctx, list[0].ID)
		require.NoError(t, err)
		assert.False(t, claimed, "second flip loses the claim")

		list, err = b.ListUnprocessedMessages(ctx, 1)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "1", list[0].MessageID)

		_, err = b.MarkMessageProcessed(ctx, 99999)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("order constraints", func(t *testing.T) {
		b := newBackend(t)
		o := &models.Order{MessageID: "1", ChatID: "c", AuthorID: "a", Text: "t", Category: "Backend", RelevanceScore: 0.8, DetectedBy: models.DetectedByRegex, CreatedAt: base}
		require.NoError(t, b.InsertOrder(ctx, o))
		assert.NotZero(t, o.ID)

		dup := *o
		dup.ID = 0
		assert.ErrorIs(t, b.InsertOrder(ctx, &dup), models.ErrConflict)

		bad := &models.Order{MessageID: "2", ChatID: "c", AuthorID: "a", Text: "t", Category: "Backend", RelevanceScore: 1.5, DetectedBy: models.DetectedByRegex, CreatedAt: base}
		assert.ErrorIs(t, b.InsertOrder(ctx, bad), models.ErrValidationRejected)
	})

	t.Run("order listing and marks", func(t *testing.T) {
		b := newBackend(t)
		cats := []string{"Backend", "Frontend", "Backend"}
		for i, cat := range cats {
			o := &models.Order{MessageID: string(rune('a' + i)), ChatID: "c", AuthorID: "x", Text: "t", Category: cat, RelevanceScore: 0.5, DetectedBy: models.DetectedByLLM, CreatedAt: base.Add(time.Duration(i) * time.Hour)}
			require.NoError(t, b.InsertOrder(ctx, o))
		}

		recent, err := b.ListOrders(ctx, models.OrderQuery{Limit: 2})
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, "c", recent[0].MessageID)

		backend, err := b.ListOrders(ctx, models.OrderQuery{Category: "Backend", Ascending: true})
		require.NoError(t, err)
		require.Len(t, backend, 2)
		assert.Equal(t, "a", backend[0].MessageID)

		window, err := b.ListOrders(ctx, models.OrderQuery{Since: base.Add(time.Hour), Until: base.Add(2 * time.Hour)})
		require.NoError(t, err)
		require.Len(t, window, 1)
		assert.Equal(t, "b", window[0].MessageID)

		require.NoError(t, b.MarkOrdersExported(ctx, []int64{backend[0].ID, backend[1].ID}))
		no := false
		unexported, err := b.ListOrders(ctx, models.OrderQuery{Exported: &no})
		require.NoError(t, err)
		require.Len(t, unexported, 1)
		assert.Equal(t, "Frontend", unexported[0].Category)

		notes := "spam"
		require.NoError(t, b.SetOrderFeedback(ctx, unexported[0].ID, models.FeedbackReject, &notes))
		got, err := b.GetOrder(ctx, unexported[0].ID)
		require.NoError(t, err)
		require.NotNil(t, got.Feedback)
		assert.Equal(t, models.FeedbackReject, *got.Feedback)
		assert.Equal(t, "spam", *got.Notes)

		rejected := models.FeedbackReject
		byFeedback, err := b.ListOrders(ctx, models.OrderQuery{Feedback: &rejected})
		require.NoError(t, err)
		assert.Len(t, byFeedback, 1)

		assert.ErrorIs(t, b.SetOrderFeedback(ctx, 99999, models.FeedbackAccept, nil), models.ErrNotFound)
		_, err = b.GetOrder(ctx, 99999)
		assert.ErrorIs(t, err, models.ErrNotFound)

		fb := &models.Feedback{OrderID: got.ID, FeedbackType: models.FeedbackReject, Reason: &notes, CreatedAt: base}
		require.NoError(t, b.InsertFeedback(ctx, fb))
		assert.NotZero(t, fb.ID)
	})

	t.Run("stat increments accumulate", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.IncrementStat(ctx, "2025-05-01", models.StatDelta{Messages: 1, Orders: 1, Regex: 1}, base))
		require.NoError(t, b.IncrementStat(ctx, "2025-05-01", models.StatDelta{Messages: 1, LLMRequests: 1, Tokens: 120, Cost: 0.002, ResponseTimeMs: 300}, base))
		require.NoError(t, b.IncrementStat(ctx, "2025-05-01", models.StatDelta{Messages: 1, Orders: 1, LLM: 1, LLMRequests: 1, Tokens: 80, Cost: 0.001, ResponseTimeMs: 100}, base))
		require.NoError(t, b.IncrementStat(ctx, "2025-05-02", models.StatDelta{Messages: 5}, base))

		st, err := b.GetStat(ctx, "2025-05-01")
		require.NoError(t, err)
		assert.Equal(t, int64(3), st.TotalMessages)
		assert.Equal(t, int64(2), st.DetectedOrders)
		assert.Equal(t, int64(1), st.RegexDetections)
		assert.Equal(t, int64(1), st.LLMDetections)
		assert.Equal(t, int64(2), st.LLMRequests)
		assert.Equal(t, int64(200), st.LLMTokensUsed)
		assert.InDelta(t, 0.003, st.LLMCost, 1e-9)
		assert.Equal(t, int64(200), st.AvgResponseTimeMs)

		list, err := b.ListStats(ctx, "2025-05-01", "2025-05-31")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "2025-05-01", list[0].Date)

		_, err = b.GetStat(ctx, "2025-06-01")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("chat stat percentage", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.IncrementChatStat(ctx, "c", "2025-05-01", models.ChatStatDelta{Messages: 1, Orders: 1}, base))
		require.NoError(t, b.IncrementChatStat(ctx, "c", "2025-05-01", models.ChatStatDelta{Messages: 3}, base))

		list, err := b.ListChatStats(ctx, "2025-05-01", "2025-05-01")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, int64(4), list[0].MessagesCount)
		assert.Equal(t, int64(1), list[0].OrdersCount)
		assert.InDelta(t, 25.0, list[0].OrderPercentage, 1e-9)
	})
}

func TestDirectStore_SQLite(t *testing.T) {
	backendSuite(t, func(t *testing.T) Backend { return newSQLiteStore(t) })
}

func TestMemoryStore(t *testing.T) {
	backendSuite(t, func(t *testing.T) Backend { return NewMemoryStore() })
}

func TestDirectStore_Ping(t *testing.T) {
	store := newSQLiteStore(t)
	assert.NoError(t, store.Ping(context.Background()))
	assert.Equal(t, "sqlite", store.Name())
}
