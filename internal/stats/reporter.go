package stats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Viphunter83/userbot-orders/internal/models"
	"github.com/Viphunter83/userbot-orders/internal/repository"
)

// Reporter reads aggregates and renders them for the operator
type Reporter struct {
	stats  *repository.Stats
	orders *repository.Orders
	logger zerolog.Logger
}

func NewReporter(stats *repository.Stats, orders *repository.Orders, logger zerolog.Logger) *Reporter {
	return &Reporter{
		stats:  stats,
		orders: orders,
		logger: logger.With().Str("component", "reporter").Logger(),
	}
}

// Period collects metrics for every day from from through to, inclusive, in the stats timezone
func (r *Reporter) Period(ctx context.Context, from, to time.Time) (*PeriodMetrics, error) {
	loc := r.stats.Location()
	start, end := dayBounds(from, to, loc)
	if !start.Before(end) {
		return nil, models.NewError(models.KindValidationRejected, "report.period", errors.New("period start after end"))
	}

	rows, err := r.stats.GetStatsForPeriod(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	chats, err := r.stats.GetChatStatsForPeriod(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat stats: %w", err)
	}
	orders, err := r.orders.Query(ctx, models.OrderQuery{Since: start, Until: end})
	if err != nil {
		return nil, fmt.Errorf("failed to get orders: %w", err)
	}

	pm := Aggregate(r.stats.DateKey(from), r.stats.DateKey(to), rows, orders, chats)
	r.logger.Debug().
		Str("from", pm.From).
		Str("to", pm.To).
		Int("days", len(pm.Days)).
		Int("orders", len(orders)).
		Msg("Period metrics collected")
	return pm, nil
}

// Day collects metrics for the calendar day containing t
func (r *Reporter) Day(ctx context.Context, t time.Time) (*PeriodMetrics, error) {
	return r.Period(ctx, t, t)
}

// Yesterday collects metrics for the previous calendar day
func (r *Reporter) Yesterday(ctx context.Context) (*PeriodMetrics, error) {
	return r.Day(ctx, time.Now().In(r.stats.Location()).AddDate(0, 0, -1))
}

var months = []string{
	"января", "февраля", "марта", "апреля", "мая", "июня",
	"июля", "августа", "сентября", "октября", "ноября", "декабря",
}

// displayDate renders YYYY-MM-DD as "20 ноября"
func displayDate(date string) string {
	t, err := time.Parse(repository.DateLayout, date)
	if err != nil {
		return date
	}
	return fmt.Sprintf("%d %s", t.Day(), months[t.Month()-1])
}

// Plural picks the Russian noun form for count: one, few, many
func Plural(count int64, one, few, many string) string {
	switch {
	case count%10 == 1 && count%100 != 11:
		return one
	case count%10 >= 2 && count%10 <= 4 && (count%100 < 10 || count%100 >= 20):
		return few
	default:
		return many
	}
}

// EscapeMarkdown escapes characters that break Telegram Markdown V1
func EscapeMarkdown(text string) string {
	return markdownEscaper.Replace(text)
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "[", "\\[", "`", "\\`")

// FormatDaily renders a one-day report as Telegram Markdown
func FormatDaily(pm *PeriodMetrics) string {
	title := displayDate(pm.From)
	if pm.From != pm.To {
		title = displayDate(pm.From) + " - " + displayDate(pm.To)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 *Отчёт за %s*\n\n", title)

	t := pm.Totals()
	if t.TotalMessages == 0 {
		sb.WriteString("*Сообщений за этот период не было*\n")
		return sb.String()
	}

	fmt.Fprintf(&sb, "Сообщений: %d\n", t.TotalMessages)
	fmt.Fprintf(&sb, "Заказов: %d (%.1f%%)\n", t.DetectedOrders, t.DetectionRate())
	fmt.Fprintf(&sb, "Regex: %d, LLM: %d (LLM %.1f%%)\n", t.RegexDetections, t.LLMDetections, t.LLMUsageRate())
	if t.LLMRequests > 0 {
		fmt.Fprintf(&sb, "LLM: %d %s, %d токенов, $%.4f, %d мс в среднем\n",
			t.LLMRequests, Plural(t.LLMRequests, "запрос", "запроса", "запросов"),
			t.LLMTokensUsed, t.LLMCost, t.AvgResponseTimeMs)
		fmt.Fprintf(&sb, "Стоимость заказа: $%.4f\n", t.CostPerOrder())
	}
	if t.DetectedOrders > 0 {
		fmt.Fprintf(&sb, "Точность: %.1f%% (отклонено %d)\n", t.Precision(), t.FalsePositiveCount)
	}

	if len(pm.Categories) > 0 {
		sb.WriteString("\n*По категориям:*\n")
		for _, c := range pm.Categories {
			fmt.Fprintf(&sb, "• %s: %d (релевантность %.0f%%)\n",
				EscapeMarkdown(c.Category), c.Orders, c.AvgRelevance()*100)
		}
	}

	if len(pm.TopChats) > 0 && pm.TopChats[0].OrdersCount > 0 {
		sb.WriteString("\n*Активные чаты:*\n")
		for _, c := range pm.TopChats {
			if c.OrdersCount == 0 {
				break
			}
			fmt.Fprintf(&sb, "• %s: %d %s из %d\n",
				EscapeMarkdown(c.ChatID), c.OrdersCount,
				Plural(c.OrdersCount, "заказ", "заказа", "заказов"), c.MessagesCount)
		}
	}

	return sb.String()
}
