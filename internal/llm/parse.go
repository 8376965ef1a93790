package llm

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/Viphunter83/userbot-orders/internal/models"
)

// ErrUnparseable is returned when no verdict object can be found in a response
var ErrUnparseable = errors.New("no valid verdict JSON in LLM response")

type verdictJSON struct {
	IsOrder        *bool    `json:"is_order"`
	Category       *string  `json:"category"`
	RelevanceScore *float64 `json:"relevance_score"`
	Confidence     *float64 `json:"confidence"`
	Reason         string   `json:"reason"`
}

// ParseVerdict extracts the verdict from a model response. The JSON object may be
// wrapped in markdown fences or surrounded by prose.
func ParseVerdict(text string) (models.LLMVerdict, error) {
	text = strings.TrimSpace(text)
	if v, ok := decodeVerdict(text); ok {
		return v, nil
	}

	for _, candidate := range jsonObjects(text) {
		if v, ok := decodeVerdict(candidate); ok {
			return v, nil
		}
	}

	return models.LLMVerdict{}, ErrUnparseable
}

func decodeVerdict(s string) (models.LLMVerdict, bool) {
	var raw verdictJSON
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return models.LLMVerdict{}, false
	}
	if raw.IsOrder == nil {
		return models.LLMVerdict{}, false
	}

	score := raw.RelevanceScore
	if score == nil {
		score = raw.Confidence
	}
	if score == nil {
		return models.LLMVerdict{}, false
	}

	category := models.CategoryOther
	if raw.Category != nil && strings.TrimSpace(*raw.Category) != "" {
		category = strings.TrimSpace(*raw.Category)
	}

	return models.LLMVerdict{
		IsOrder:    *raw.IsOrder,
		Category:   category,
		Confidence: models.ClampScore(*score),
		Reason:     strings.TrimSpace(raw.Reason),
	}, true
}

// jsonObjects returns balanced top-level {...} spans, ignoring braces inside strings
func jsonObjects(s string) []string {
	var out []string
	depth, start := 0, -1
	inString, escaped := false, false

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				out = append(out, s[start:i+1])
				start = -1
			}
		}
	}
	return out
}
