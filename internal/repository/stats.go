package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Viphunter83/userbot-orders/internal/models"
	"github.com/Viphunter83/userbot-orders/internal/storage"
)

// DateLayout is the key format of daily stat rows
const DateLayout = "2006-01-02"

// Stats applies atomic counter increments to daily rollups.
// Dates are calendar days in the configured location.
type Stats struct {
	gw     *storage.Gateway
	loc    *time.Location
	now    func() time.Time
	logger zerolog.Logger
}

func NewStats(gw *storage.Gateway, loc *time.Location, logger zerolog.Logger) *Stats {
	if loc == nil {
		loc = time.UTC
	}
	return &Stats{
		gw:     gw,
		loc:    loc,
		now:    time.Now,
		logger: logger.With().Str("component", "stat_repository").Logger(),
	}
}

// DateKey returns the rollup date of t
func (r *Stats) DateKey(t time.Time) string {
	return t.In(r.loc).Format(DateLayout)
}

// Today returns today's rollup date
func (r *Stats) Today() string {
	return r.DateKey(r.now())
}

// Location returns the rollup time zone
func (r *Stats) Location() *time.Location {
	return r.loc
}

// IncrementToday adds d to today's row
func (r *Stats) IncrementToday(ctx context.Context, d models.StatDelta) error {
	return r.Increment(ctx, r.Today(), d)
}

// Increment adds d to the row of date, creating it if needed
func (r *Stats) Increment(ctx context.Context, date string, d models.StatDelta) error {
	if d.IsZero() {
		return nil
	}
	if err := validateDelta(d); err != nil {
		return models.NewError(models.KindValidationRejected, "stat.increment", err)
	}

	at := r.now()
	return r.gw.Do(ctx, storage.EntityStat, storage.OpUpdate, func(ctx context.Context, b storage.Backend) error {
		return b.IncrementStat(ctx, date, d, at)
	})
}

// IncrementChatStat adds d to today's row of chatID
func (r *Stats) IncrementChatStat(ctx context.Context, chatID string, d models.ChatStatDelta) error {
	if d == (models.ChatStatDelta{}) {
		return nil
	}
	if chatID == "" || d.Messages < 0 || d.Orders < 0 {
		return models.NewError(models.KindValidationRejected, "chat_stat.increment", errors.New("invalid chat stat delta"))
	}

	at := r.now()
	date := r.DateKey(at)
	return r.gw.Do(ctx, storage.EntityChatStat, storage.OpUpdate, func(ctx context.Context, b storage.Backend) error {
		return b.IncrementChatStat(ctx, chatID, date, d, at)
	})
}

func validateDelta(d models.StatDelta) error {
	if d.Messages < 0 || d.Orders < 0 || d.Regex < 0 || d.LLM < 0 || d.LLMRequests < 0 ||
		d.Tokens < 0 || d.Cost < 0 || d.ResponseTimeMs < 0 || d.FalsePositives < 0 {
		return errors.New("stat deltas must be non-negative")
	}
	return nil
}

// Get returns the row for one date
func (r *Stats) Get(ctx context.Context, date string) (*models.Stat, error) {
	var out *models.Stat
	err := r.gw.Do(ctx, storage.EntityStat, storage.OpGet, func(ctx context.Context, b storage.Backend) error {
		var err error
		out, err = b.GetStat(ctx, date)
		return err
	})
	return out, err
}

// GetStatsForPeriod returns daily rows for every date from from through to, inclusive
func (r *Stats) GetStatsForPeriod(ctx context.Context, from, to time.Time) ([]models.Stat, error) {
	lo, hi := r.DateKey(from), r.DateKey(to)
	if lo > hi {
		return nil, models.NewError(models.KindValidationRejected, "stat.period", errors.New("period start after end"))
	}

	var out []models.Stat
	err := r.gw.Do(ctx, storage.EntityStat, storage.OpList, func(ctx context.Context, b storage.Backend) error {
		var err error
		out, err = b.ListStats(ctx, lo, hi)
		return err
	})
	return out, err
}

// GetChatStatsForPeriod returns per-chat rows for every date from from through to, inclusive
func (r *Stats) GetChatStatsForPeriod(ctx context.Context, from, to time.Time) ([]models.ChatStat, error) {
	lo, hi := r.DateKey(from), r.DateKey(to)
	if lo > hi {
		return nil, models.NewError(models.KindValidationRejected, "chat_stat.period", errors.New("period start after end"))
	}

	var out []models.ChatStat
	err := r.gw.Do(ctx, storage.EntityChatStat, storage.OpList, func(ctx context.Context, b storage.Backend) error {
		var err error
		out, err = b.ListChatStats(ctx, lo, hi)
		return err
	})
	return out, err
}
