package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Viphunter83/userbot-orders/internal/analysis"
	"github.com/Viphunter83/userbot-orders/internal/models"
)

// ErrBudgetExhausted is returned when today's LLM spend reached the daily budget
var ErrBudgetExhausted = errors.New("daily LLM budget exhausted")

// Limiter guards an LLM port with a daily USD budget and a request rate
type Limiter struct {
	next      analysis.LLMPort
	budgetUSD float64 // 0 disables the budget
	rate      *rate.Limiter
	timezone  *time.Location
	now       func() time.Time
	logger    zerolog.Logger

	mu    sync.Mutex
	day   string
	spent float64
}

// NewLimiter creates a new limiter around next. perMinute <= 0 disables rate limiting.
func NewLimiter(next analysis.LLMPort, budgetUSD float64, perMinute int, timezone string, logger zerolog.Logger) (*Limiter, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %s: %w", timezone, err)
	}

	l := &Limiter{
		next:      next,
		budgetUSD: budgetUSD,
		timezone:  loc,
		now:       time.Now,
		logger:    logger.With().Str("component", "ratelimit").Logger(),
	}
	if perMinute > 0 {
		burst := perMinute / 10
		if burst < 1 {
			burst = 1
		}
		l.rate = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
	}
	l.day = l.today()
	return l, nil
}

func (l *Limiter) today() string {
	return l.now().In(l.timezone).Format("2006-01-02")
}

// rollover resets the spend when the date changed. Caller holds mu.
func (l *Limiter) rollover() {
	if d := l.today(); d != l.day {
		l.logger.Info().
			Str("previous_day", l.day).
			Float64("spent_usd", l.spent).
			Msg("LLM budget reset for new day")
		l.day = d
		l.spent = 0
	}
}

// Seed sets today's already-spent amount, e.g. from persisted stats after a restart
func (l *Limiter) Seed(spentUSD float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()
	l.spent = spentUSD
}

// Reset zeroes today's spend
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.day = l.today()
	l.spent = 0
}

// Spent returns today's spend in USD
func (l *Limiter) Spent() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()
	return l.spent
}

// Remaining returns today's remaining budget, or -1 when unlimited
func (l *Limiter) Remaining() float64 {
	if l.budgetUSD <= 0 {
		return -1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()
	if r := l.budgetUSD - l.spent; r > 0 {
		return r
	}
	return 0
}

func (l *Limiter) allowed() bool {
	if l.budgetUSD <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()
	return l.spent < l.budgetUSD
}

func (l *Limiter) record(cost float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()
	l.spent += cost
}

// Classify forwards to the wrapped port when budget and rate allow
func (l *Limiter) Classify(ctx context.Context, text string) (models.LLMVerdict, error) {
	if !l.allowed() {
		l.logger.Warn().
			Float64("budget_usd", l.budgetUSD).
			Int("resets_in_hours", l.hoursUntilMidnight(l.now().In(l.timezone))).
			Msg("LLM budget exhausted, skipping classification")
		return models.LLMVerdict{}, models.NewError(models.KindClassificationUnavailable, "llm.budget", ErrBudgetExhausted)
	}

	if l.rate != nil {
		if err := l.rate.Wait(ctx); err != nil {
			return models.LLMVerdict{}, models.NewError(models.KindClassificationUnavailable, "llm.rate", err)
		}
	}

	v, err := l.next.Classify(ctx, text)
	if err != nil {
		return v, err
	}

	l.record(v.Usage.CostUSD)
	return v, nil
}

// hoursUntilMidnight calculates hours until midnight in the timezone
func (l *Limiter) hoursUntilMidnight(now time.Time) int {
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, l.timezone)
	hours := int(midnight.Sub(now).Hours())

	// If less than 1 hour, show at least 1
	if hours < 1 {
		hours = 1
	}

	return hours
}
