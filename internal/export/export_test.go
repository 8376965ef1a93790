package export

import (
	"context"
	"encoding/csv"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Viphunter83/userbot-orders/internal/models"
	"github.com/Viphunter83/userbot-orders/internal/repository"
	"github.com/Viphunter83/userbot-orders/internal/storage"
)

func strPtr(s string) *string { return &s }

func sampleOrders() []models.Order {
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	return []models.Order{
		{ID: 1, Category: "Backend", RelevanceScore: 0.9, DetectedBy: models.DetectedByRegex, Text: "Нужен Go разработчик", CreatedAt: base},
		{ID: 2, Category: "Frontend", RelevanceScore: 0.6, DetectedBy: models.DetectedByLLM, Text: "React лендинг", AuthorName: strPtr("Ivan"), CreatedAt: base.Add(time.Hour)},
		{ID: 3, Category: "Backend", RelevanceScore: 0.75, DetectedBy: models.DetectedByLLM, Text: "API на Python", Exported: true, CreatedAt: base.Add(2 * time.Hour)},
	}
}

func ids(orders []models.Order) []int64 {
	out := make([]int64, len(orders))
	for i, o := range orders {
		out[i] = o.ID
	}
	return out
}

func TestFilter_Apply(t *testing.T) {
	orders := sampleOrders()
	no := false
	base := orders[0].CreatedAt

	tests := []struct {
		name   string
		filter Filter
		want   []int64
	}{
		{"default newest first", Filter{}, []int64{3, 2, 1}},
		{"ascending", Filter{Ascending: true}, []int64{1, 2, 3}},
		{"category case-insensitive", Filter{Categories: []string{"backend"}}, []int64{3, 1}},
		{"relevance range", Filter{MinRelevance: 0.7, MaxRelevance: 0.8}, []int64{3}},
		{"method", Filter{Methods: []models.DetectionMethod{models.DetectedByLLM}}, []int64{3, 2}},
		{"unexported", Filter{Exported: &no}, []int64{2, 1}},
		{"search text", Filter{Search: "react"}, []int64{2}},
		{"search author", Filter{Search: "IVAN"}, []int64{2}},
		{"period", Filter{Since: base.Add(time.Hour), Until: base.Add(2 * time.Hour)}, []int64{2}},
		{"by relevance", Filter{SortBy: SortByRelevance}, []int64{1, 3, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(tt.filter.Apply(orders)))
		})
	}
	assert.Equal(t, []int64{1, 2, 3}, ids(orders), "input must not be reordered")
}

func TestForPeriod(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	now := time.Date(2026, 5, 1, 1, 30, 0, 0, loc)

	f, err := ForPeriod("today", now, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, loc), f.Since)
	assert.Equal(t, time.Date(2026, 5, 2, 0, 0, 0, 0, loc), f.Until)
	require.NotNil(t, f.Exported)
	assert.False(t, *f.Exported)

	f, err = ForPeriod("week", now, loc)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, -7), f.Since)
	assert.True(t, f.Until.IsZero())

	f, err = ForPeriod("all", now, loc)
	require.NoError(t, err)
	assert.True(t, f.Since.IsZero())

	_, err = ForPeriod("year", now, loc)
	assert.Error(t, err)
}

func TestParseMethods(t *testing.T) {
	got, err := ParseMethods("regex, LLM")
	require.NoError(t, err)
	assert.Equal(t, []models.DetectionMethod{models.DetectedByRegex, models.DetectedByLLM}, got)

	got, err = ParseMethods("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ParseMethods("manual")
	assert.Error(t, err)
}

func TestExporter_Export(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(dir, time.UTC, zerolog.Nop())
	e.now = func() time.Time { return time.Date(2026, 5, 1, 12, 30, 45, 0, time.UTC) }

	orders := sampleOrders()
	orders[0].Text = "строка, с \"кавычками\"\nи переводом"
	orders[0].TelegramLink = strPtr("https://t.me/jobs/1")

	path, err := e.Export(orders)
	require.NoError(t, err)
	assert.Equal(t, "orders_20260501_123045.csv", path[len(dir)+1:])

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), "\ufeff"))

	records, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(string(data), "\ufeff"))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, headers, records[0])

	first := records[1]
	assert.Equal(t, "1", first[0])
	assert.Equal(t, "2026-05-01 10:00:00", first[1])
	assert.Equal(t, "90.00%", first[3])
	assert.Equal(t, orders[0].Text, first[5])
	assert.Equal(t, "Unknown", first[6])
	assert.Equal(t, "https://t.me/jobs/1", first[8])
	assert.Equal(t, "○ Pending", first[9])
	assert.Equal(t, "Ivan", records[2][6])
	assert.Equal(t, "N/A", records[2][8])
	assert.Equal(t, "✓ Exported", records[3][9])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must be gone")
}

func TestExporter_ExportPending(t *testing.T) {
	store := storage.NewMemoryStore()
	gw, err := storage.NewGateway(nil, store, time.Second, zerolog.Nop())
	require.NoError(t, err)
	repo := repository.NewOrders(gw, zerolog.Nop())
	ctx := context.Background()

	for i, cat := range []string{"Backend", "Frontend", "Backend"} {
		require.NoError(t, repo.Create(ctx, &models.Order{
			MessageID: string(rune('a' + i)), ChatID: "c", AuthorID: "u", Text: "заказ",
			Category: cat, RelevanceScore: 0.8, DetectedBy: models.DetectedByRegex,
		}))
	}

	e := NewExporter(t.TempDir(), time.UTC, zerolog.Nop())
	path, n, err := e.ExportPending(ctx, repo, Filter{Categories: []string{"Backend"}})
	require.NoError(t, err)
	assert.NotEmpty(t, path)
	assert.Equal(t, 2, n)

	left, err := repo.GetUnexported(ctx, 0)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "Frontend", left[0].Category)

	path, n, err = e.ExportPending(ctx, repo, Filter{Categories: []string{"Backend"}})
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Zero(t, n)
}
