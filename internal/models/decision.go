package models

import "time"

// CategoryOther is where LLM verdicts with an unknown category land
const CategoryOther = "Other"

// DecisionKind tags the Decision variant
type DecisionKind string

const (
	DecisionNoMatch DecisionKind = "no_match"
	DecisionRegex   DecisionKind = "regex"
	DecisionLLM     DecisionKind = "llm"
)

// LLMUsage is the accounting of one LLM call
type LLMUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CostUSD          float64
	Latency          time.Duration
	Cached           bool
}

// LLMVerdict is what the LLM port returns for one text
type LLMVerdict struct {
	IsOrder    bool
	Category   string
	Confidence float64
	Reason     string
	Usage      LLMUsage
}

// Decision is the classifier's output for one message.
// Category, Score and Pattern are only meaningful when Matched.
type Decision struct {
	Kind     DecisionKind
	Category string
	Score    float64 // Normalized to [0, 1]
	Pattern  string  // First matched pattern, regex decisions only
	Reason   string  // LLM explanation, LLM decisions only

	// Excluded is set when an exclusion pattern forced NoMatch
	Excluded bool
	// Degraded is set when the LLM tier failed and the result fell back to NoMatch
	Degraded bool
	// Usage is non-nil when the LLM tier was consulted successfully
	Usage *LLMUsage
}

// NoMatch returns the empty negative decision
func NoMatch() Decision {
	return Decision{Kind: DecisionNoMatch}
}

// Matched reports whether the message was classified as an order
func (d Decision) Matched() bool {
	return d.Kind == DecisionRegex || d.Kind == DecisionLLM
}

// Method returns the detection method of a matched decision
func (d Decision) Method() DetectionMethod {
	if d.Kind == DecisionLLM {
		return DetectedByLLM
	}
	return DetectedByRegex
}

// ClampScore bounds s to [0, 1]
func ClampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
