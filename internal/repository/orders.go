package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Viphunter83/userbot-orders/internal/models"
	"github.com/Viphunter83/userbot-orders/internal/storage"
)

// DefaultRecentLimit bounds read-side listings when the caller passes no limit
const DefaultRecentLimit = 50

// Orders stores detected orders and operator feedback
type Orders struct {
	gw     *storage.Gateway
	logger zerolog.Logger
}

func NewOrders(gw *storage.Gateway, logger zerolog.Logger) *Orders {
	return &Orders{gw: gw, logger: logger.With().Str("component", "order_repository").Logger()}
}

func validateOrder(o *models.Order) error {
	switch {
	case o.MessageID == "" || o.ChatID == "":
		return errors.New("message_id and chat_id are required")
	case o.Category == "":
		return errors.New("category is required")
	case o.RelevanceScore < 0 || o.RelevanceScore > 1 || o.RelevanceScore != o.RelevanceScore:
		return fmt.Errorf("relevance_score %v outside [0, 1]", o.RelevanceScore)
	case o.DetectedBy != models.DetectedByRegex && o.DetectedBy != models.DetectedByLLM:
		return fmt.Errorf("invalid detected_by %q", o.DetectedBy)
	}
	return nil
}

// Create stores o and sets its ID. It fails with Conflict when the message
// already has an order.
func (r *Orders) Create(ctx context.Context, o *models.Order) error {
	if err := validateOrder(o); err != nil {
		r.logger.Error().
			Err(err).
			Str("message_id", o.MessageID).
			Str("chat_id", o.ChatID).
			Msg("Order rejected before storage")
		return models.NewError(models.KindValidationRejected, "order.create", err)
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}

	err := r.gw.Do(ctx, storage.EntityOrder, storage.OpCreate, func(ctx context.Context, b storage.Backend) error {
		return b.InsertOrder(ctx, o)
	})
	if err != nil {
		return err
	}

	r.logger.Info().
		Int64("order_id", o.ID).
		Str("category", o.Category).
		Float64("score", o.RelevanceScore).
		Str("detected_by", string(o.DetectedBy)).
		Msg("Order saved")
	return nil
}

// Get returns an order by id
func (r *Orders) Get(ctx context.Context, id int64) (*models.Order, error) {
	var out *models.Order
	err := r.gw.Do(ctx, storage.EntityOrder, storage.OpGet, func(ctx context.Context, b storage.Backend) error {
		var err error
		out, err = b.GetOrder(ctx, id)
		return err
	})
	return out, err
}

// Query lists orders matching q
func (r *Orders) Query(ctx context.Context, q models.OrderQuery) ([]models.Order, error) {
	var out []models.Order
	err := r.gw.Do(ctx, storage.EntityOrder, storage.OpList, func(ctx context.Context, b storage.Backend) error {
		var err error
		out, err = b.ListOrders(ctx, q)
		return err
	})
	return out, err
}

// GetRecent returns the newest orders, optionally restricted to one category
func (r *Orders) GetRecent(ctx context.Context, category string, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return r.Query(ctx, models.OrderQuery{Category: category, Limit: limit})
}

// GetByCategory returns the newest orders of one category
func (r *Orders) GetByCategory(ctx context.Context, category string, limit int) ([]models.Order, error) {
	if category == "" {
		return nil, models.NewError(models.KindValidationRejected, "order.by_category", errors.New("category is required"))
	}
	return r.GetRecent(ctx, category, limit)
}

// GetUnexported returns orders not yet exported, oldest first. limit <= 0 means all.
func (r *Orders) GetUnexported(ctx context.Context, limit int) ([]models.Order, error) {
	no := false
	return r.Query(ctx, models.OrderQuery{Exported: &no, Ascending: true, Limit: limit})
}

// MarkExported flags orders as exported
func (r *Orders) MarkExported(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.gw.Do(ctx, storage.EntityOrder, storage.OpUpdate, func(ctx context.Context, b storage.Backend) error {
		return b.MarkOrdersExported(ctx, ids)
	})
	if err != nil {
		return err
	}
	r.logger.Info().Int("count", len(ids)).Msg("Orders marked exported")
	return nil
}

// AttachFeedback records an operator verdict on the order and appends an audit row
func (r *Orders) AttachFeedback(ctx context.Context, orderID int64, feedback models.FeedbackType, reason *string) error {
	if !feedback.Valid() {
		return models.NewError(models.KindValidationRejected, "order.feedback", fmt.Errorf("invalid feedback type %q", feedback))
	}
	if reason != nil && len([]rune(*reason)) > 500 {
		return models.NewError(models.KindValidationRejected, "order.feedback", errors.New("reason longer than 500 characters"))
	}

	err := r.gw.Do(ctx, storage.EntityOrder, storage.OpUpdate, func(ctx context.Context, b storage.Backend) error {
		return b.SetOrderFeedback(ctx, orderID, feedback, reason)
	})
	if err != nil {
		return err
	}

	row := models.Feedback{OrderID: orderID, FeedbackType: feedback, Reason: reason, CreatedAt: time.Now()}
	err = r.gw.Do(ctx, storage.EntityFeedback, storage.OpCreate, func(ctx context.Context, b storage.Backend) error {
		return b.InsertFeedback(ctx, &row)
	})
	if err != nil {
		return err
	}

	r.logger.Info().
		Int64("order_id", orderID).
		Str("feedback", string(feedback)).
		Msg("Feedback attached")
	return nil
}
