// Package export selects orders and writes them to CSV for the operator
package export

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Viphunter83/userbot-orders/internal/models"
)

// SortField names an order column to sort by
type SortField string

const (
	SortByCreatedAt SortField = "created_at"
	SortByRelevance SortField = "relevance_score"
	SortByCategory  SortField = "category"
)

// Filter narrows an order list. Zero fields do not filter.
type Filter struct {
	Since        time.Time // inclusive
	Until        time.Time // exclusive
	Categories   []string
	MinRelevance float64
	MaxRelevance float64 // 0 means 1
	Methods      []models.DetectionMethod
	Exported     *bool
	Search       string // case-insensitive match on text, author and category
	SortBy       SortField
	Ascending    bool
}

// Apply returns the orders matching f, sorted. The input is not modified.
func (f Filter) Apply(orders []models.Order) []models.Order {
	maxRel := f.MaxRelevance
	if maxRel == 0 {
		maxRel = 1
	}
	search := strings.ToLower(strings.TrimSpace(f.Search))

	out := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if !f.Since.IsZero() && o.CreatedAt.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && !o.CreatedAt.Before(f.Until) {
			continue
		}
		if len(f.Categories) > 0 && !containsFold(f.Categories, o.Category) {
			continue
		}
		if o.RelevanceScore < f.MinRelevance || o.RelevanceScore > maxRel {
			continue
		}
		if len(f.Methods) > 0 && !containsMethod(f.Methods, o.DetectedBy) {
			continue
		}
		if f.Exported != nil && o.Exported != *f.Exported {
			continue
		}
		if search != "" && !matchesSearch(o, search) {
			continue
		}
		out = append(out, o)
	}

	less := f.less()
	sort.SliceStable(out, func(i, j int) bool {
		if f.Ascending {
			return less(out[i], out[j])
		}
		return less(out[j], out[i])
	})
	return out
}

func (f Filter) less() func(a, b models.Order) bool {
	switch f.SortBy {
	case SortByRelevance:
		return func(a, b models.Order) bool { return a.RelevanceScore < b.RelevanceScore }
	case SortByCategory:
		return func(a, b models.Order) bool { return a.Category < b.Category }
	default:
		return func(a, b models.Order) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func containsMethod(list []models.DetectionMethod, m models.DetectionMethod) bool {
	for _, v := range list {
		if v == m {
			return true
		}
	}
	return false
}

func matchesSearch(o models.Order, needle string) bool {
	if strings.Contains(strings.ToLower(o.Text), needle) || strings.Contains(strings.ToLower(o.Category), needle) {
		return true
	}
	return o.AuthorName != nil && strings.Contains(strings.ToLower(*o.AuthorName), needle)
}

// ForPeriod builds a filter over unexported orders for today, week, month or all
func ForPeriod(period string, now time.Time, loc *time.Location) (Filter, error) {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	no := false
	f := Filter{Exported: &no}

	switch period {
	case "today":
		f.Since = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
		f.Until = f.Since.AddDate(0, 0, 1)
	case "week":
		f.Since = now.AddDate(0, 0, -7)
	case "month":
		f.Since = now.AddDate(0, 0, -30)
	case "all", "":
	default:
		return Filter{}, fmt.Errorf("unknown period %q, expected today, week, month or all", period)
	}
	return f, nil
}

// ParseMethods parses a comma separated list of detection methods
func ParseMethods(s string) ([]models.DetectionMethod, error) {
	var out []models.DetectionMethod
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		switch models.DetectionMethod(part) {
		case "":
		case models.DetectedByRegex, models.DetectedByLLM:
			out = append(out, models.DetectionMethod(part))
		default:
			return nil, fmt.Errorf("unknown detection method %q", part)
		}
	}
	return out, nil
}
