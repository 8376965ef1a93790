package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/Viphunter83/userbot-orders/internal/models"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind models.ErrorKind
	}{
		{"record not found", gorm.ErrRecordNotFound, models.KindNotFound},
		{"duplicated key", gorm.ErrDuplicatedKey, models.KindConflict},
		{"check violated", gorm.ErrCheckConstraintViolated, models.KindValidationRejected},
		{"deadline", context.DeadlineExceeded, models.KindConnectionUnavailable},
		{"pg unique", &pgconn.PgError{Code: "23505"}, models.KindConflict},
		{"pg check", &pgconn.PgError{Code: "23514"}, models.KindValidationRejected},
		{"pg not null", &pgconn.PgError{Code: "23502"}, models.KindValidationRejected},
		{"pg auth", &pgconn.PgError{Code: "28P01"}, models.KindConnectionUnavailable},
		{"pg admin shutdown", &pgconn.PgError{Code: "57P01"}, models.KindConnectionUnavailable},
		{"dns", &net.DNSError{Err: "no such host", Name: "db.example"}, models.KindConnectionUnavailable},
		{"refused text", errors.New("dial tcp: connection refused"), models.KindConnectionUnavailable},
		{"postgrest duplicate", errors.New(`(23505) duplicate key value violates unique constraint "uq_orders_message"`), models.KindConflict},
		{"sqlite unique", errors.New("UNIQUE constraint failed: messages.message_id"), models.KindConflict},
		{"sqlite check", errors.New("CHECK constraint failed: chk_orders_relevance"), models.KindValidationRejected},
		{"unclassified", errors.New("something odd"), ""},
		{"pg syntax", &pgconn.PgError{Code: "42601"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapError("op", tt.err)
			assert.Error(t, err)
			assert.Equal(t, tt.kind, models.KindOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestMapError_KeepsClassified(t *testing.T) {
	orig := models.NewError(models.KindNotFound, "inner", nil)
	assert.Same(t, orig, MapError("outer", orig))
	assert.NoError(t, MapError("op", nil))
}

func TestIsConnectionError(t *testing.T) {
	assert.True(t, IsConnectionError(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.True(t, IsConnectionError(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.True(t, IsConnectionError(models.NewError(models.KindConnectionUnavailable, "x", nil)))
	assert.True(t, IsConnectionError(errors.New("failed to connect to `host=db`: server error")))
	assert.False(t, IsConnectionError(nil))
	assert.False(t, IsConnectionError(context.Canceled))
	assert.False(t, IsConnectionError(models.NewError(models.KindConflict, "x", nil)))
	assert.False(t, IsConnectionError(&pgconn.PgError{Code: "23505"}))
}
