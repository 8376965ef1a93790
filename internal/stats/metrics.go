// Package stats derives KPIs from the daily aggregates and renders operator reports
package stats

import (
	"sort"
	"time"

	"github.com/Viphunter83/userbot-orders/internal/models"
)

// DailyMetrics wraps one Stat row with derived ratios
type DailyMetrics struct {
	models.Stat
}

// DetectionRate is the share of messages that became orders, in percent
func (m DailyMetrics) DetectionRate() float64 {
	return percent(m.DetectedOrders, m.TotalMessages)
}

// LLMUsageRate is the share of detections made by the LLM tier, in percent
func (m DailyMetrics) LLMUsageRate() float64 {
	return percent(m.LLMDetections, m.RegexDetections+m.LLMDetections)
}

// CostPerOrder is the LLM spend per LLM-detected order
func (m DailyMetrics) CostPerOrder() float64 {
	if m.LLMDetections == 0 {
		return 0
	}
	return m.LLMCost / float64(m.LLMDetections)
}

// Precision is the share of detected orders not rejected by the operator, in percent
func (m DailyMetrics) Precision() float64 {
	if m.DetectedOrders == 0 {
		return 0
	}
	good := m.DetectedOrders - m.FalsePositiveCount
	if good < 0 {
		good = 0
	}
	return percent(good, m.DetectedOrders)
}

// CategoryMetrics aggregates the orders of one category
type CategoryMetrics struct {
	Category       string
	Orders         int
	Regex          int
	LLM            int
	TotalRelevance float64
}

// AvgRelevance returns the mean relevance score of the category
func (c CategoryMetrics) AvgRelevance() float64 {
	if c.Orders == 0 {
		return 0
	}
	return c.TotalRelevance / float64(c.Orders)
}

// PeriodMetrics aggregates a date range
type PeriodMetrics struct {
	From       string // YYYY-MM-DD, inclusive
	To         string // YYYY-MM-DD, inclusive
	Days       []DailyMetrics
	Categories []CategoryMetrics // sorted by order count, descending
	TopChats   []models.ChatStat // chats with the most orders, summed over the period
}

// TotalMessages sums messages over the period
func (p *PeriodMetrics) TotalMessages() int64 {
	var n int64
	for _, d := range p.Days {
		n += d.TotalMessages
	}
	return n
}

// TotalOrders sums detected orders over the period
func (p *PeriodMetrics) TotalOrders() int64 {
	var n int64
	for _, d := range p.Days {
		n += d.DetectedOrders
	}
	return n
}

// TotalCost sums LLM spend over the period
func (p *PeriodMetrics) TotalCost() float64 {
	var n float64
	for _, d := range p.Days {
		n += d.LLMCost
	}
	return n
}

// Totals folds the period into a single DailyMetrics so the derived ratios apply to it
func (p *PeriodMetrics) Totals() DailyMetrics {
	var t models.Stat
	var weighted int64
	for _, d := range p.Days {
		t.TotalMessages += d.TotalMessages
		t.DetectedOrders += d.DetectedOrders
		t.RegexDetections += d.RegexDetections
		t.LLMDetections += d.LLMDetections
		t.LLMRequests += d.LLMRequests
		t.LLMTokensUsed += d.LLMTokensUsed
		t.LLMCost += d.LLMCost
		t.FalsePositiveCount += d.FalsePositiveCount
		weighted += d.AvgResponseTimeMs * d.LLMRequests
	}
	if t.LLMRequests > 0 {
		t.AvgResponseTimeMs = weighted / t.LLMRequests
	}
	t.Date = p.From
	return DailyMetrics{Stat: t}
}

// AvgDailyOrders averages orders over the days that have a row
func (p *PeriodMetrics) AvgDailyOrders() float64 {
	if len(p.Days) == 0 {
		return 0
	}
	return float64(p.TotalOrders()) / float64(len(p.Days))
}

// AvgDailyCost averages spend over the days where the LLM was paid for
func (p *PeriodMetrics) AvgDailyCost() float64 {
	days := 0
	for _, d := range p.Days {
		if d.LLMCost > 0 {
			days++
		}
	}
	if days == 0 {
		return 0
	}
	return p.TotalCost() / float64(days)
}

// Aggregate builds period metrics from raw rows
func Aggregate(from, to string, rows []models.Stat, orders []models.Order, chats []models.ChatStat) *PeriodMetrics {
	pm := &PeriodMetrics{From: from, To: to}
	for _, s := range rows {
		pm.Days = append(pm.Days, DailyMetrics{Stat: s})
	}
	sort.Slice(pm.Days, func(i, j int) bool { return pm.Days[i].Date < pm.Days[j].Date })

	byCategory := make(map[string]*CategoryMetrics)
	for _, o := range orders {
		c, ok := byCategory[o.Category]
		if !ok {
			c = &CategoryMetrics{Category: o.Category}
			byCategory[o.Category] = c
		}
		c.Orders++
		c.TotalRelevance += o.RelevanceScore
		switch o.DetectedBy {
		case models.DetectedByRegex:
			c.Regex++
		case models.DetectedByLLM:
			c.LLM++
		}
	}
	for _, c := range byCategory {
		pm.Categories = append(pm.Categories, *c)
	}
	sort.Slice(pm.Categories, func(i, j int) bool {
		if pm.Categories[i].Orders != pm.Categories[j].Orders {
			return pm.Categories[i].Orders > pm.Categories[j].Orders
		}
		return pm.Categories[i].Category < pm.Categories[j].Category
	})

	pm.TopChats = topChats(chats, 5)
	return pm
}

func topChats(rows []models.ChatStat, n int) []models.ChatStat {
	byChat := make(map[string]*models.ChatStat)
	for _, r := range rows {
		c, ok := byChat[r.ChatID]
		if !ok {
			c = &models.ChatStat{ChatID: r.ChatID}
			byChat[r.ChatID] = c
		}
		c.MessagesCount += r.MessagesCount
		c.OrdersCount += r.OrdersCount
	}

	out := make([]models.ChatStat, 0, len(byChat))
	for _, c := range byChat {
		c.OrderPercentage = models.OrderPercentage(c.OrdersCount, c.MessagesCount)
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrdersCount != out[j].OrdersCount {
			return out[i].OrdersCount > out[j].OrdersCount
		}
		return out[i].ChatID < out[j].ChatID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func percent(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) * 100 / float64(whole)
}

// dayBounds returns [start of from's day, start of the day after to) in loc
func dayBounds(from, to time.Time, loc *time.Location) (time.Time, time.Time) {
	f := from.In(loc)
	t := to.In(loc)
	start := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, loc)
	end := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	return start, end
}
