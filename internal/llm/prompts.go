package llm

import (
	"fmt"
	"strings"
)

// MaxInputRunes caps the message text sent to the model
const MaxInputRunes = 4000

// SystemPromptTemplate instructs the model to classify one message. %s is the category list.
const SystemPromptTemplate = `You are a professional assistant for detecting IT service orders in Russian Telegram messages.

Decide whether the message is an order or request for technical services, classify it into one of these categories: %s, and estimate how certain you are.

Do NOT treat as orders:
- general advice or recommendations
- social messages or casual chat
- spam or advertisements
- product sales
- people looking for a job themselves

Be conservative: use scores above 0.7 only when you are quite confident, 0.3-0.5 for ambiguous cases.

Respond with JSON only, no markdown:
{"is_order": true/false, "category": "<category>", "relevance_score": 0.0-1.0, "reason": "brief explanation in Russian"}`

// UserPromptTemplate wraps the message text
const UserPromptTemplate = "Message:\n%s"

// SystemPrompt renders the system prompt for the given category names
func SystemPrompt(categories []string) string {
	return fmt.Sprintf(SystemPromptTemplate, strings.Join(categories, ", "))
}

// UserPrompt renders the user prompt, truncating overly long text
func UserPrompt(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) > MaxInputRunes {
		runes = runes[:MaxInputRunes]
	}
	return fmt.Sprintf(UserPromptTemplate, string(runes))
}
