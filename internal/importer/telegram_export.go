// Package importer replays Telegram Desktop chat exports through ingestion
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Viphunter83/userbot-orders/internal/ingest"
	"github.com/Viphunter83/userbot-orders/internal/models"
)

// TelegramExport represents Telegram Desktop JSON export format
type TelegramExport struct {
	Name     string                  `json:"name"`
	Type     string                  `json:"type"`
	ID       int64                   `json:"id"`
	Messages []TelegramExportMessage `json:"messages"`
}

// TelegramExportMessage represents a message in Telegram export
type TelegramExportMessage struct {
	ID           int64       `json:"id"`
	Type         string      `json:"type"`
	Date         string      `json:"date"`
	DateUnixtime string      `json:"date_unixtime"`
	From         string      `json:"from"`
	FromID       string      `json:"from_id"`
	Text         interface{} `json:"text"` // Can be string or array
}

// ReadFile parses an export file from disk
func ReadFile(path string) (*TelegramExport, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export file: %w", err)
	}
	defer file.Close()
	return Read(file)
}

// Read parses an export from r
func Read(r io.Reader) (*TelegramExport, error) {
	var export TelegramExport
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return nil, fmt.Errorf("failed to parse export JSON: %w", err)
	}
	if export.ID == 0 {
		return nil, fmt.Errorf("export has no chat id")
	}
	return &export, nil
}

// ChatID returns the Bot API style id of the exported chat
func (e *TelegramExport) ChatID() string {
	id := strconv.FormatInt(e.ID, 10)
	switch {
	case strings.Contains(e.Type, "supergroup"), strings.Contains(e.Type, "channel"):
		return "-100" + id
	case e.Type == "private_group":
		return "-" + id
	default:
		return id
	}
}

// ChatKind maps the export type onto a chat kind
func (e *TelegramExport) ChatKind() models.ChatKind {
	switch {
	case strings.Contains(e.Type, "channel"):
		return models.ChatKindChannel
	case e.Type == "personal_chat", e.Type == "bot_chat", e.Type == "saved_messages":
		return models.ChatKindDirect
	default:
		return models.ChatKindGroup
	}
}

// Inbound converts the text messages of the export into feed events.
// Service messages and messages without text are skipped.
func (e *TelegramExport) Inbound() []models.InboundMessage {
	chatID := e.ChatID()
	kind := e.ChatKind()

	out := make([]models.InboundMessage, 0, len(e.Messages))
	for _, msg := range e.Messages {
		if msg.Type != "message" {
			continue
		}
		text := extractText(msg.Text)
		if strings.TrimSpace(text) == "" {
			continue
		}

		in := models.InboundMessage{
			ExternalMessageID: strconv.FormatInt(msg.ID, 10),
			ChatID:            chatID,
			ChatName:          e.Name,
			ChatKind:          kind,
			AuthorID:          authorID(msg.FromID),
			Text:              text,
			Timestamp:         parseTimestamp(msg),
		}
		if msg.From != "" {
			from := msg.From
			in.AuthorName = &from
		}
		out = append(out, in)
	}
	return out
}

// Summary counts import outcomes by status
type Summary struct {
	Total  int
	Counts map[ingest.Status]int
}

// Importer feeds exports to an ingestion handler one message at a time
type Importer struct {
	handler ingest.Handler
	logger  zerolog.Logger
}

func NewImporter(handler ingest.Handler, logger zerolog.Logger) *Importer {
	return &Importer{
		handler: handler,
		logger:  logger.With().Str("component", "importer").Logger(),
	}
}

// Import ingests every message of export in order. Redelivery is handled by
// the dedup key, so an interrupted import can simply be run again.
func (i *Importer) Import(ctx context.Context, export *TelegramExport) (Summary, error) {
	messages := export.Inbound()
	summary := Summary{Total: len(messages), Counts: make(map[ingest.Status]int)}

	i.logger.Info().
		Str("chat_name", export.Name).
		Str("chat_id", export.ChatID()).
		Int("text_messages", len(messages)).
		Msg("Starting Telegram history import")

	startTime := time.Now()
	for n, in := range messages {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		out := i.handler.Ingest(ctx, in)
		summary.Counts[out.Status]++

		if out.Status == ingest.StatusFailed {
			i.logger.Error().
				Err(out.Err).
				Str("message_id", in.ExternalMessageID).
				Msg("Failed to import message")
		}
		if (n+1)%100 == 0 {
			i.logger.Info().Int("processed", n+1).Msg("Progress...")
		}
	}

	i.logger.Info().
		Int("total", summary.Total).
		Int("matched", summary.Counts[ingest.StatusMatched]).
		Int("duplicate", summary.Counts[ingest.StatusDuplicate]).
		Int("failed", summary.Counts[ingest.StatusFailed]).
		Dur("duration", time.Since(startTime)).
		Msg("History import completed")
	return summary, nil
}

// extractText extracts text from message.text field (can be string or array)
func extractText(text interface{}) string {
	switch v := text.(type) {
	case string:
		return v
	case []interface{}:
		// Text with entities - concatenate all text parts
		var sb strings.Builder
		for _, part := range v {
			if str, ok := part.(string); ok {
				sb.WriteString(str)
			} else if m, ok := part.(map[string]interface{}); ok {
				if txt, ok := m["text"].(string); ok {
					sb.WriteString(txt)
				}
			}
		}
		return sb.String()
	default:
		return ""
	}
}

// authorID strips the "user"/"channel" prefix of export sender ids
func authorID(fromID string) string {
	for _, prefix := range []string{"user", "channel", "chat"} {
		if rest, ok := strings.CutPrefix(fromID, prefix); ok && rest != "" {
			return rest
		}
	}
	return fromID
}

// parseTimestamp prefers the unix time and falls back to the local date string
func parseTimestamp(msg TelegramExportMessage) time.Time {
	if msg.DateUnixtime != "" {
		if secs, err := strconv.ParseInt(msg.DateUnixtime, 10, 64); err == nil {
			return time.Unix(secs, 0).UTC()
		}
	}
	if t, err := time.Parse("2006-01-02T15:04:05", msg.Date); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
