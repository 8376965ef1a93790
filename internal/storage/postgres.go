package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/Viphunter83/userbot-orders/internal/models"
)

// DirectStore is the direct structured-query backend on gorm
type DirectStore struct {
	db     *gorm.DB
	name   string
	logger zerolog.Logger
}

// OpenPostgres opens a Postgres store. No connection is attempted until first use,
// so an unreachable server surfaces through Ping.
func OpenPostgres(dsn string, logger zerolog.Logger) (*DirectStore, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: dsn}), &gorm.Config{
		TranslateError:       true,
		DisableAutomaticPing: true,
		Logger:               gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open Postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return NewDirectStore(db, "postgres", logger), nil
}

// NewDirectStore wraps an opened gorm handle
func NewDirectStore(db *gorm.DB, name string, logger zerolog.Logger) *DirectStore {
	return &DirectStore{
		db:     db,
		name:   name,
		logger: logger.With().Str("component", "storage").Str("backend", name).Logger(),
	}
}

func (s *DirectStore) Name() string { return s.name }

// Ping checks if the connection to the database is working
func (s *DirectStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return MapError("direct.ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return models.NewError(models.KindConnectionUnavailable, "direct.ping", err)
	}
	return nil
}

// Close closes the connection pool
func (s *DirectStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate creates or updates tables and indexes for all entities
func (s *DirectStore) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&models.Chat{},
		&models.Message{},
		&models.Order{},
		&models.Feedback{},
		&models.Stat{},
		&models.ChatStat{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	s.logger.Info().Msg("Schema migrated")
	return nil
}

// ApplySQL executes raw statements in order, stopping at the first failure
func (s *DirectStore) ApplySQL(ctx context.Context, statements []string) error {
	for i, stmt := range statements {
		if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("statement %d failed: %w", i+1, MapError("direct.apply_sql", err))
		}
	}
	s.logger.Info().Int("statements", len(statements)).Msg("SQL schema applied")
	return nil
}

func (s *DirectStore) UpsertChat(ctx context.Context, chat *models.Chat) (*models.Chat, error) {
	row := *chat
	row.ID = 0
	row.CreatedAt = row.CreatedAt.UTC()

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chat_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"chat_name", "chat_type"}),
	}).Create(&row).Error
	if err != nil {
		return nil, MapError("direct.upsert_chat", err)
	}

	return s.GetChat(ctx, chat.ChatID)
}

func (s *DirectStore) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	var chat models.Chat
	if err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).First(&chat).Error; err != nil {
		return nil, MapError("direct.get_chat", err)
	}
	return &chat, nil
}

func (s *DirectStore) ListChats(ctx context.Context, activeOnly bool) ([]models.Chat, error) {
	var chats []models.Chat
	tx := s.db.WithContext(ctx).Order("id")
	if activeOnly {
		tx = tx.Where("is_active = ?", true)
	}
	if err := tx.Find(&chats).Error; err != nil {
		return nil, MapError("direct.list_chats", err)
	}
	return chats, nil
}

func (s *DirectStore) SetChatActive(ctx context.Context, chatID string, active bool) error {
	res := s.db.WithContext(ctx).Model(&models.Chat{}).Where("chat_id = ?", chatID).Update("is_active", active)
	if res.Error != nil {
		return MapError("direct.set_chat_active", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewError(models.KindNotFound, "direct.set_chat_active", nil)
	}
	return nil
}

func (s *DirectStore) TouchChat(ctx context.Context, chatID string, at time.Time) error {
	at = at.UTC()
	err := s.db.WithContext(ctx).Model(&models.Chat{}).
		Where("chat_id = ? AND (last_message_at IS NULL OR last_message_at < ?)", chatID, at).
		Update("last_message_at", at).Error
	return MapError("direct.touch_chat", err)
}

func (s *DirectStore) InsertMessage(ctx context.Context, m *models.Message) error {
	m.Timestamp = m.Timestamp.UTC()
	m.CreatedAt = m.CreatedAt.UTC()
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		m.ID = 0
		return MapError("direct.insert_message", err)
	}
	return nil
}

func (s *DirectStore) GetMessage(ctx context.Context, chatID, messageID string) (*models.Message, error) {
	var m models.Message
	err := s.db.WithContext(ctx).Where("chat_id = ? AND message_id = ?", chatID, messageID).First(&m).Error
	if err != nil {
		return nil, MapError("direct.get_message", err)
	}
	return &m, nil
}

func (s *DirectStore) MarkMessageProcessed(ctx context.Context, id int64) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND processed = ?", id, false).
		Update("processed", true)
	if res.Error != nil {
		return false, MapError("direct.mark_processed", res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Message{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, MapError("direct.mark_processed", err)
	}
	if count == 0 {
		return false, models.NewError(models.KindNotFound, "direct.mark_processed", nil)
	}
	return false, nil
}

func (s *DirectStore) ListUnprocessedMessages(ctx context.Context, limit int) ([]models.Message, error) {
	var out []models.Message
	tx := s.db.WithContext(ctx).Where("processed = ?", false).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}}).Order("id")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&out).Error; err != nil {
		return nil, MapError("direct.list_unprocessed", err)
	}
	return out, nil
}

func (s *DirectStore) InsertOrder(ctx context.Context, o *models.Order) error {
	o.CreatedAt = o.CreatedAt.UTC()
	if err := s.db.WithContext(ctx).Create(o).Error; err != nil {
		o.ID = 0
		return MapError("direct.insert_order", err)
	}
	return nil
}

func (s *DirectStore) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var o models.Order
	if err := s.db.WithContext(ctx).First(&o, id).Error; err != nil {
		return nil, MapError("direct.get_order", err)
	}
	return &o, nil
}

func (s *DirectStore) ListOrders(ctx context.Context, q models.OrderQuery) ([]models.Order, error) {
	tx := s.db.WithContext(ctx).Model(&models.Order{})
	if q.Category != "" {
		tx = tx.Where("category = ?", q.Category)
	}
	if !q.Since.IsZero() {
		tx = tx.Where("created_at >= ?", q.Since.UTC())
	}
	if !q.Until.IsZero() {
		tx = tx.Where("created_at < ?", q.Until.UTC())
	}
	if q.Exported != nil {
		tx = tx.Where("exported = ?", *q.Exported)
	}
	if q.Feedback != nil {
		tx = tx.Where("feedback = ?", string(*q.Feedback))
	}
	if q.Ascending {
		tx = tx.Order("created_at ASC").Order("id ASC")
	} else {
		tx = tx.Order("created_at DESC").Order("id DESC")
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var out []models.Order
	if err := tx.Find(&out).Error; err != nil {
		return nil, MapError("direct.list_orders", err)
	}
	return out, nil
}

func (s *DirectStore) MarkOrdersExported(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Model(&models.Order{}).Where("id IN ?", ids).Update("exported", true).Error
	return MapError("direct.mark_exported", err)
}

func (s *DirectStore) SetOrderFeedback(ctx context.Context, id int64, feedback models.FeedbackType, notes *string) error {
	res := s.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).
		Updates(map[string]interface{}{"feedback": string(feedback), "notes": notes})
	if res.Error != nil {
		return MapError("direct.set_feedback", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewError(models.KindNotFound, "direct.set_feedback", nil)
	}
	return nil
}

func (s *DirectStore) InsertFeedback(ctx context.Context, f *models.Feedback) error {
	f.CreatedAt = f.CreatedAt.UTC()
	if err := s.db.WithContext(ctx).Create(f).Error; err != nil {
		return MapError("direct.insert_feedback", err)
	}
	return nil
}

// runningAverage merges the stored mean with the incoming mean weighted by request counts
const runningAverage = `CASE WHEN stats.llm_requests + excluded.llm_requests > 0 ` +
	`THEN (stats.avg_response_time_ms * stats.llm_requests + excluded.avg_response_time_ms * excluded.llm_requests) ` +
	`/ (stats.llm_requests + excluded.llm_requests) ELSE stats.avg_response_time_ms END`

func (s *DirectStore) IncrementStat(ctx context.Context, date string, d models.StatDelta, at time.Time) error {
	at = at.UTC()
	row := models.Stat{
		Date:               date,
		TotalMessages:      d.Messages,
		DetectedOrders:     d.Orders,
		RegexDetections:    d.Regex,
		LLMDetections:      d.LLM,
		LLMRequests:        d.LLMRequests,
		LLMTokensUsed:      d.Tokens,
		LLMCost:            d.Cost,
		AvgResponseTimeMs:  d.AvgResponseTimeMs(),
		FalsePositiveCount: d.FalsePositives,
		CreatedAt:          at,
		UpdatedAt:          at,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_messages":       gorm.Expr("stats.total_messages + excluded.total_messages"),
			"detected_orders":      gorm.Expr("stats.detected_orders + excluded.detected_orders"),
			"regex_detections":     gorm.Expr("stats.regex_detections + excluded.regex_detections"),
			"llm_detections":       gorm.Expr("stats.llm_detections + excluded.llm_detections"),
			"llm_requests":         gorm.Expr("stats.llm_requests + excluded.llm_requests"),
			"llm_tokens_used":      gorm.Expr("stats.llm_tokens_used + excluded.llm_tokens_used"),
			"llm_cost":             gorm.Expr("stats.llm_cost + excluded.llm_cost"),
			"avg_response_time_ms": gorm.Expr(runningAverage),
			"false_positive_count": gorm.Expr("stats.false_positive_count + excluded.false_positive_count"),
			"updated_at":           gorm.Expr("excluded.updated_at"),
		}),
	}).Create(&row).Error
	return MapError("direct.increment_stat", err)
}

func (s *DirectStore) IncrementChatStat(ctx context.Context, chatID, date string, d models.ChatStatDelta, at time.Time) error {
	at = at.UTC()
	row := models.ChatStat{
		ChatID:          chatID,
		Date:            date,
		MessagesCount:   d.Messages,
		OrdersCount:     d.Orders,
		OrderPercentage: models.OrderPercentage(d.Orders, d.Messages),
		CreatedAt:       at,
		UpdatedAt:       at,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "chat_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"messages_count": gorm.Expr("chat_stats.messages_count + excluded.messages_count"),
			"orders_count":   gorm.Expr("chat_stats.orders_count + excluded.orders_count"),
			"order_percentage": gorm.Expr("CASE WHEN chat_stats.messages_count + excluded.messages_count > 0 " +
				"THEN (chat_stats.orders_count + excluded.orders_count) * 100.0 / (chat_stats.messages_count + excluded.messages_count) " +
				"ELSE 0 END"),
			"updated_at": gorm.Expr("excluded.updated_at"),
		}),
	}).Create(&row).Error
	return MapError("direct.increment_chat_stat", err)
}

func (s *DirectStore) GetStat(ctx context.Context, date string) (*models.Stat, error) {
	var st models.Stat
	if err := s.db.WithContext(ctx).Where("date = ?", date).First(&st).Error; err != nil {
		return nil, MapError("direct.get_stat", err)
	}
	return &st, nil
}

func (s *DirectStore) ListStats(ctx context.Context, from, to string) ([]models.Stat, error) {
	var out []models.Stat
	err := s.db.WithContext(ctx).Where("date >= ? AND date <= ?", from, to).Order("date").Find(&out).Error
	if err != nil {
		return nil, MapError("direct.list_stats", err)
	}
	return out, nil
}

func (s *DirectStore) ListChatStats(ctx context.Context, from, to string) ([]models.ChatStat, error) {
	var out []models.ChatStat
	err := s.db.WithContext(ctx).Where("date >= ? AND date <= ?", from, to).Order("date").Order("chat_id").Find(&out).Error
	if err != nil {
		return nil, MapError("direct.list_chat_stats", err)
	}
	return out, nil
}
