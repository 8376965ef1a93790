package analysis

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/Viphunter83/userbot-orders/internal/models"
	"github.com/Viphunter83/userbot-orders/internal/triggers"
)

// LLMPort is the second-tier classifier
type LLMPort interface {
	Classify(ctx context.Context, text string) (models.LLMVerdict, error)
}

// Options configures acceptance and escalation
type Options struct {
	// Threshold is the minimum summed weight for a regex-tier match
	Threshold float64
	// UncertainMin is the lower bound of the band [UncertainMin, Threshold)
	// in which a nonzero regex score is escalated to the LLM tier
	UncertainMin float64
	// AcceptThreshold is the minimum LLM confidence for an LLM-tier match
	AcceptThreshold float64
	// EscalateNoMatch sends texts without any regex hit to the LLM tier
	EscalateNoMatch bool
	// MinTextLength is the shortest normalized text (in runes) worth an LLM call
	MinTextLength int
}

func (o Options) validate() error {
	if o.Threshold <= 0 {
		return fmt.Errorf("threshold must be positive, got %v", o.Threshold)
	}
	if o.UncertainMin < 0 || o.UncertainMin > o.Threshold {
		return fmt.Errorf("uncertain band lower bound must be in [0, %v], got %v", o.Threshold, o.UncertainMin)
	}
	if o.AcceptThreshold < 0 || o.AcceptThreshold > 1 {
		return fmt.Errorf("LLM accept threshold must be in [0, 1], got %v", o.AcceptThreshold)
	}
	if o.MinTextLength < 0 {
		return fmt.Errorf("min text length must not be negative, got %d", o.MinTextLength)
	}
	return nil
}

// Classifier decides whether a message is an order
type Classifier struct {
	catalog *triggers.Catalog
	llm     LLMPort
	opts    Options
	logger  zerolog.Logger
}

// NewClassifier creates a classifier. llm may be nil to disable the LLM tier.
func NewClassifier(catalog *triggers.Catalog, llm LLMPort, opts Options, logger zerolog.Logger) (*Classifier, error) {
	if catalog == nil {
		return nil, fmt.Errorf("trigger catalog is required")
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	return &Classifier{
		catalog: catalog,
		llm:     llm,
		opts:    opts,
		logger:  logger.With().Str("component", "classifier").Logger(),
	}, nil
}

// RegexScore is the raw outcome of the regex tier
type RegexScore struct {
	Category string
	Raw      float64 // Sum of matched weights, unbounded
	Pattern  string
	Excluded bool
}

// Score runs the regex tier on normalized text
func (c *Classifier) Score(normalized string) RegexScore {
	for _, ex := range c.catalog.Exclusions() {
		if ex.Match(normalized) {
			return RegexScore{Excluded: true, Pattern: ex.Source}
		}
	}

	var best RegexScore
	for _, cat := range c.catalog.Categories() {
		var sum float64
		var first string
		for _, p := range cat.Patterns {
			if p.Match(normalized) {
				sum += p.Weight
				if first == "" {
					first = p.Name
				}
			}
		}
		// Strictly greater keeps the first-declared category on ties
		if sum > best.Raw {
			best = RegexScore{Category: cat.Name, Raw: sum, Pattern: first}
		}
	}
	return best
}

// Classify classifies one message text. It never returns an error: LLM failures
// degrade to a no-match decision.
func (c *Classifier) Classify(ctx context.Context, text string) models.Decision {
	normalized := Normalize(text)
	if normalized == "" {
		return models.NoMatch()
	}

	score := c.Score(normalized)
	if score.Excluded {
		c.logger.Debug().
			Str("exclusion", score.Pattern).
			Msg("Message excluded")
		d := models.NoMatch()
		d.Excluded = true
		return d
	}

	if score.Raw >= c.opts.Threshold {
		return models.Decision{
			Kind:     models.DecisionRegex,
			Category: score.Category,
			Score:    models.ClampScore(score.Raw),
			Pattern:  score.Pattern,
		}
	}

	if !c.shouldEscalate(normalized, score) {
		return models.NoMatch()
	}

	return c.escalate(ctx, text)
}

func (c *Classifier) shouldEscalate(normalized string, score RegexScore) bool {
	if c.llm == nil {
		return false
	}
	if utf8.RuneCountInString(normalized) < c.opts.MinTextLength {
		return false
	}
	if score.Raw > 0 {
		return score.Raw >= c.opts.UncertainMin
	}
	return c.opts.EscalateNoMatch
}

func (c *Classifier) escalate(ctx context.Context, text string) models.Decision {
	verdict, err := c.llm.Classify(ctx, text)
	if err != nil {
		if !errors.Is(err, models.ErrClassificationUnavailable) {
			err = models.NewError(models.KindClassificationUnavailable, "llm.classify", err)
		}
		c.logger.Warn().
			Err(err).
			Msg("LLM classification unavailable, skipping message")
		d := models.NoMatch()
		d.Degraded = true
		return d
	}

	usage := verdict.Usage
	if !verdict.IsOrder || verdict.Confidence < c.opts.AcceptThreshold {
		d := models.NoMatch()
		d.Usage = &usage
		d.Reason = verdict.Reason
		return d
	}

	category, ok := c.catalog.Canonical(verdict.Category)
	if !ok {
		category = models.CategoryOther
	}

	c.logger.Debug().
		Str("category", category).
		Float64("confidence", verdict.Confidence).
		Int("tokens", usage.TotalTokens).
		Msg("Order detected by LLM")

	return models.Decision{
		Kind:     models.DecisionLLM,
		Category: category,
		Score:    models.ClampScore(verdict.Confidence),
		Reason:   verdict.Reason,
		Usage:    &usage,
	}
}
