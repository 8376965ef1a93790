package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	supa "github.com/supabase-community/supabase-go"
	"github.com/supabase/postgrest-go"

	"github.com/Viphunter83/userbot-orders/internal/models"
)

// RestStore is the REST fallback backend on Supabase PostgREST
type RestStore struct {
	client *supa.Client
	logger zerolog.Logger
}

// NewRestStore creates a new Supabase client
func NewRestStore(supabaseURL, supabaseKey string, logger zerolog.Logger) (*RestStore, error) {
	client, err := supa.NewClient(supabaseURL, supabaseKey, &supa.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return &RestStore{
		client: client,
		logger: logger.With().Str("component", "storage").Str("backend", "supabase").Logger(),
	}, nil
}

func (c *RestStore) Name() string { return "supabase" }

// Close is a no-op; the HTTP client holds no connection state worth releasing
func (c *RestStore) Close() error { return nil }

// exec runs a blocking client call and abandons it when ctx ends.
// The client has no context support, so the call itself may outlive ctx.
func (c *RestStore) exec(ctx context.Context, op string, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return MapError(op, err)
	case <-ctx.Done():
		return MapError(op, ctx.Err())
	}
}

// withRetry executes a read with retry logic
func (c *RestStore) withRetry(ctx context.Context, operation string, fn func() error) error {
	maxRetries := 2
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 500 * time.Millisecond
			c.logger.Warn().
				Str("operation", operation).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("Retrying operation")

			select {
			case <-ctx.Done():
				return MapError(operation, ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = c.exec(ctx, operation, fn)
		if lastErr == nil {
			return nil
		}
		if !IsConnectionError(lastErr) || ctx.Err() != nil {
			return lastErr
		}

		c.logger.Error().
			Err(lastErr).
			Str("operation", operation).
			Int("attempt", attempt+1).
			Msg("Operation failed")
	}

	return lastErr
}

// Ping checks if the connection to Supabase is working
func (c *RestStore) Ping(ctx context.Context) error {
	return c.exec(ctx, "rest.ping", func() error {
		_, _, err := c.client.From("chats").
			Select("id", "exact", false).
			Limit(1, "").
			Execute()
		if err != nil {
			return models.NewError(models.KindConnectionUnavailable, "rest.ping", err)
		}
		c.logger.Debug().Msg("Supabase connection successful")
		return nil
	})
}

// selectRows runs a filtered select and decodes the rows into out
func (c *RestStore) selectRows(ctx context.Context, op string, out interface{}, build func(*postgrest.FilterBuilder) *postgrest.FilterBuilder, table string) error {
	return c.withRetry(ctx, op, func() error {
		data, _, err := build(c.client.From(table).Select("*", "", false)).Execute()
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse %s rows: %w", table, err)
		}
		return nil
	})
}

// insertRow inserts value and decodes the stored representation into out
func (c *RestStore) insertRow(ctx context.Context, op, table string, value, out interface{}) error {
	return c.exec(ctx, op, func() error {
		data, _, err := c.client.From(table).
			Insert(value, false, "", "representation", "").
			Execute()
		if err != nil {
			return err
		}
		return decodeFirst(data, out, op)
	})
}

// updateRows applies values to rows matched by build and reports how many changed
func (c *RestStore) updateRows(ctx context.Context, op, table string, values map[string]interface{}, build func(*postgrest.FilterBuilder) *postgrest.FilterBuilder) (int, error) {
	var n int
	err := c.exec(ctx, op, func() error {
		data, _, err := build(c.client.From(table).Update(values, "representation", "")).Execute()
		if err != nil {
			return err
		}
		var rows []json.RawMessage
		if err := json.Unmarshal(data, &rows); err != nil {
			return fmt.Errorf("failed to parse update response: %w", err)
		}
		n = len(rows)
		return nil
	})
	return n, err
}

func decodeFirst(data []byte, out interface{}, op string) error {
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if len(rows) == 0 {
		return models.NewError(models.KindNotFound, op, nil)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(rows[0], out)
}

func restTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (c *RestStore) UpsertChat(ctx context.Context, chat *models.Chat) (*models.Chat, error) {
	existing, err := c.GetChat(ctx, chat.ChatID)
	switch {
	case err == nil:
		if existing.ChatName == chat.ChatName && existing.ChatType == chat.ChatType {
			return existing, nil
		}
		_, err := c.updateRows(ctx, "rest.upsert_chat", "chats",
			map[string]interface{}{"chat_name": chat.ChatName, "chat_type": chat.ChatType},
			func(fb *postgrest.FilterBuilder) *postgrest.FilterBuilder { return fb.Eq("chat_id", chat.ChatID) })
		if err != nil {
			return nil, err
		}
		existing.ChatName, existing.ChatType = chat.ChatName, chat.ChatType
		return existing, nil
	case !models.IsKind(err, models.KindNotFound):
		return nil, err
	}

	row := *chat
	row.ID = 0
	row.CreatedAt = row.CreatedAt.UTC()

	var stored models.Chat
	err = c.insertRow(ctx, "rest.upsert_chat", "chats", row, &stored)
	if models.IsKind(err, models.KindConflict) {
		return c.GetChat(ctx, chat.ChatID)
	}
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (c *RestStore) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	var chats []models.Chat
	err := c.selectRows(ctx, "rest.get_chat", &chats, func(fb *postgrest.FilterBuilder) *postgrest.FilterBuilder {
		return fb.Eq("chat_id", chatID).Limit(1, "")
	}, "chats")
	if err != nil {
		return nil, err
	}
	if len(chats) == 0 {
		return nil, models.NewError(models.KindNotFound, "rest.get_chat", nil)
	}
	return &chats[0], nil
}

func (c *RestStore) ListChats(ctx context.Context, activeOnly bool) ([]models.Chat, error) {
	var chats []models.Chat
	err := c.selectRows(ctx, "rest.list_chats", &chats, func(fb *postgrest.FilterBuilder) *postgrest.FilterBuilder {
		if activeOnly {
			fb = fb.Eq("is_active", "true")
		}
		return fb.Order("id", &postgrest.OrderOpts{Ascending: true})
	}, "chats")
	return chats, err
}

func (c *RestStore) SetChatActive(ctx context.Context, chatID string, active bool) error {
	n, err := c.updateRows(ctx, "rest.set_chat_active", "chats", map[string]interface{}{"is_active": active},
		func(fb *postgrest.FilterBuilder) *postgrest.FilterBuilder { return fb.Eq("chat_id", chatID) })
	if err != nil {
		return err
	}
	if n == 0 {
		return models.NewError(models.KindNotFound, "rest.set_chat_active", nil)
	}
	return nil
}

func (c *RestStore) TouchChat(ctx context.Context, chatID string, at time.Time) error {
	ts := restTime(at)
	_, err := c.updateRows(ctx, "rest.touch_chat", "chats", map[string]interface{}{"last_message_at": ts},
		func(fb *postgrest.FilterBuilder) *postgrest.FilterBuilder {
			return fb.Eq("chat_id", chatID).Or("last_message_at.is.null,last_message_at.lt."+ts, "")
		})
	return err
}

func (c *RestStore) InsertMessage(ctx context.Context, m *models.Message) error {
	row := *m
	row.ID = 0
	row.Timestamp = row.Timestamp.UTC()
	row.CreatedAt = row.CreatedAt.UTC()

	var stored models.Message
	if err := c.insertRow(ctx, "rest.insert_message", "messages", row, &stored); err != nil {
		return err
	}
	m.ID = stored.ID

	c.logger.Debug().
		Str("message_id", m.MessageID).
		Str("chat_id", m.ChatID).
		Msg("Message saved successfully")
	return nil
}

func (c *RestStore) GetMessage(ctx context.Context, chatID, messageID string) (*models.Message, error) {
	var out []models.Message
	err := c.selectRows(ctx, "rest.get_message", &out, func(fb *postgrest.FilterBuilder) *postgrest.FilterBuilder {
		return fb.Eq("chat_id", chatID).Eq("message_id", messageID).Limit(1, "")
	}, "messages")
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, models.NewError(models.KindNotFound, "rest.get_message", nil)
	}
	return &out[0], nil
}

func (c *RestStore) MarkMessageProcessed(ctx context.Context, id int64) (bool, error) {
	idStr := strconv.FormatInt(id, 10)
	n, err := c.updateRows(ctx, "rest.mark_processed", "messages", map[string]interface{}{"processed": true},
		func(fb *postgrest.FilterBuilder) *postgrest.FilterBuilder {
			return fb.Eq("id", idStr).Eq("processed", "false")
		})
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	var out []models.Message
	err = c.selectRows(ctx, "rest.mark_processed", &out, func(fb *postgrest.FilterBuilder) *postgrest.FilterBuilder {
		return fb.Eq("id", idStr).Limit(1, "")
	}, "messages")
	if err != nil {
		return false, err
	}
	if len(out) == 0 {
		return false, models.NewError(models.KindNotFound, "rest.mark_processed", nil)
	}
	return false, nil
}

func (c *RestStore) ListUnprocessedMessages(ctx context.Context, limit int) ([]models.Message, error) {
	var out []models.Message
	err := c.selectRows(ctx, "rest.list_unprocessed", &out, func(fb *postgrest.FilterBuilder) *postgrest.FilterBuilder {
		fb = fb.Eq("processed", "false").Order("timestamp", &postgrest.OrderOpts{Ascending: true})
		if limit > 0 {
			fb = fb.Limit(limit, "")
		}
		return fb
	}, "messages")
	return out, err
}

func (c *RestStore) InsertOrder(ctx context.Context, o *models.Order) error {
	row := *o
	row.ID = 0
	row.CreatedAt = row.CreatedAt.UTC()

	var stored models.Order
	if err := c.insertRow(ctx, "rest.insert_order", "userbot_orders", row, &stored); err != nil {
		return err
	}
	o.ID = stored.ID
	return nil
}

func (c *RestStore) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var out []models.Order
	err := c.selectRows(ctx, "rest.get_order", &out, func(fb *postgrest.FilterBuilder) *postgrest.FilterBuilder {
		return fb.Eq("id", strconv.FormatInt(id, 10)).Limit(1, "")
	}, "userbot_orders")
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, models.NewError(models.KindNotFound, "rest.get_order", nil)
	}
	return &out[0], nil
}

func (c *RestStore) ListOrders(ctx context.Context, q models.OrderQuery) ([]models.Order, error) {
	var out []models.Order
	err := c.selectRows(ctx, "rest.list_orders", &out, func(fb *postgrest.FilterBuilder) *postgrest.FilterBuilder {
		if q.Category != "" {
			fb = fb.Eq("category", q.Category)
		}
		if !q.Since.IsZero() {
			fb = fb.Gte("created_at", restTime(q.Since))
		}
		if !q.Until.IsZero() {
			fb = fb.Lt("created_at", restTime(q.Until))
		}
		if q.Exported != nil {
			fb = fb.Eq("exported", strconv.FormatBool(*q.Exported))
		}
		if q.Feedback != nil {
			fb = fb.Eq("feedback", string(*q.Feedback))
		}
		fb = fb.Order("created_at", &postgrest.OrderOpts{Ascending: q.Ascending})
		if q.Limit > 0 {
			fb = fb.Limit(q.Limit, "")
		}
		return fb
	}, "userbot_orders")
	return out, err
}

func (c *RestStore) MarkOrdersExported(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	values := make([]string, len(ids))
	for i, id := range ids {
		values[i] = strconv.FormatInt(id, 10)
	}
	_, err := c.updateRows(ctx, "rest.mark_exported", "userbot_orders", map[string]interface{}{"exported": true},
		func(fb *postgrest.FilterBuilder) *postgrest.FilterBuilder { return fb.In("id", values) })
	return err
}

func (c *RestStore) SetOrderFeedback(ctx context.Context, id int64, feedback models.FeedbackType, notes *string) error {
	n, err := c.updateRows(ctx, "rest.set_feedback", "userbot_orders",
		map[string]interface{}{"feedback": string(feedback), "notes": notes},
		func(fb *postgrest.FilterBuilder) *postgrest.FilterBuilder { return fb.Eq("id", strconv.FormatInt(id, 10)) })
	if err != nil {
		return err
	}
	if n == 0 {
		return models.NewError(models.KindNotFound, "rest.set_feedback", nil)
	}
	return nil
}

func (c *RestStore) InsertFeedback(ctx context.Context, f *models.Feedback) error {
	row := *f
	row.ID = 0
	row.CreatedAt = row.CreatedAt.UTC()

	var stored models.Feedback
	if err := c.insertRow(ctx, "rest.insert_feedback", "feedback", row, &stored); err != nil {
		return err
	}
	f.ID = stored.ID
	return nil
}

// rpc calls a database function and returns its JSON body, classifying
// empty bodies and PostgREST error objects
func (c *RestStore) rpc(ctx context.Context, op, fn string, params map[string]interface{}) error {
	return c.exec(ctx, op, func() error {
		data := c.client.Rpc(fn, "", params)
		if data == "" {
			return models.NewError(models.KindConnectionUnavailable, op, fmt.Errorf("RPC %s returned empty", fn))
		}
		if err := rpcError(data); err != nil {
			return err
		}
		return nil
	})
}

// rpcError detects a PostgREST error object in an RPC response body
func rpcError(body string) error {
	trimmed := strings.TrimSpace(body)
	if !strings.HasPrefix(trimmed, "{") {
		return nil
	}
	var e struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
	}
	if err := json.Unmarshal([]byte(trimmed), &e); err != nil || e.Code == "" || e.Message == "" {
		return nil
	}
	return fmt.Errorf("(%s) %s", e.Code, e.Message)
}

func (c *RestStore) IncrementStat(ctx context.Context, date string, d models.StatDelta, at time.Time) error {
	return c.rpc(ctx, "rest.increment_stat", "increment_stat", map[string]interface{}{
		"p_date":                 date,
		"p_total_messages":       d.Messages,
		"p_detected_orders":      d.Orders,
		"p_regex_detections":     d.Regex,
		"p_llm_detections":       d.LLM,
		"p_llm_requests":         d.LLMRequests,
		"p_llm_tokens_used":      d.Tokens,
		"p_llm_cost":             d.Cost,
		"p_avg_response_time_ms": d.AvgResponseTimeMs(),
		"p_false_positive_count": d.FalsePositives,
		"p_at":                   restTime(at),
	})
}

func (c *RestStore) IncrementChatStat(ctx context.Context, chatID, date string, d models.ChatStatDelta, at time.Time) error {
	return c.rpc(ctx, "rest.increment_chat_stat", "increment_chat_stat", map[string]interface{}{
		"p_chat_id":        chatID,
		"p_date":           date,
		"p_messages_count": d.Messages,
		"p_orders_count":   d.Orders,
		"p_at":             restTime(at),
	})
}

func (c *RestStore) GetStat(ctx context.Context, date string) (*models.Stat, error) {
	var out []models.Stat
	err := c.selectRows(ctx, "rest.get_stat", &out, func(fb *postgrest.FilterBuilder) *postgrest.FilterBuilder {
		return fb.Eq("date", date).Limit(1, "")
	}, "stats")
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, models.NewError(models.KindNotFound, "rest.get_stat", nil)
	}
	return &out[0], nil
}

func (c *RestStore) ListStats(ctx context.Context, from, to string) ([]models.Stat, error) {
	var out []models.Stat
	err := c.selectRows(ctx, "rest.list_stats", &out, func(fb *postgrest.FilterBuilder) *postgrest.FilterBuilder {
		return fb.Gte("date", from).Lte("date", to).Order("date", &postgrest.OrderOpts{Ascending: true})
	}, "stats")
	return out, err
}

func (c *RestStore) ListChatStats(ctx context.Context, from, to string) ([]models.ChatStat, error) {
	var out []models.ChatStat
	err := c.selectRows(ctx, "rest.list_chat_stats", &out, func(fb *postgrest.FilterBuilder) *postgrest.FilterBuilder {
		return fb.Gte("date", from).Lte("date", to).Order("date", &postgrest.OrderOpts{Ascending: true})
	}, "chat_stats")
	return out, err
}
