package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/Viphunter83/userbot-orders/internal/models"
)

// MapError translates a backend error into the classified taxonomy.
// Errors that match no class are wrapped with op and returned unclassified.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var classified *models.Error
	if errors.As(err, &classified) {
		return err
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return models.NewError(models.KindNotFound, op, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return models.NewError(models.KindConflict, op, err)
	case errors.Is(err, gorm.ErrCheckConstraintViolated), errors.Is(err, gorm.ErrInvalidValue):
		return models.NewError(models.KindValidationRejected, op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewError(models.KindConnectionUnavailable, op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		code := strings.TrimSpace(pgErr.Code)
		switch {
		case code == "23505":
			return models.NewError(models.KindConflict, op, err) // unique_violation
		case code == "23514", code == "23502", code == "22P02", code == "23503", code == "22003":
			return models.NewError(models.KindValidationRejected, op, err) // check/not_null/invalid_text/fk/out_of_range
		case strings.HasPrefix(code, "28"), strings.HasPrefix(code, "08"), strings.HasPrefix(code, "57P0"), code == "53300":
			return models.NewError(models.KindConnectionUnavailable, op, err) // auth/connection/shutdown/too_many_connections
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if IsConnectionError(err) {
		return models.NewError(models.KindConnectionUnavailable, op, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "duplicate key"), strings.Contains(msg, "unique constraint"), strings.Contains(msg, "23505"):
		return models.NewError(models.KindConflict, op, err)
	case strings.Contains(msg, "check constraint"), strings.Contains(msg, "not-null constraint"),
		strings.Contains(msg, "not null constraint"), strings.Contains(msg, "23514"), strings.Contains(msg, "23502"):
		return models.NewError(models.KindValidationRejected, op, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

// IsConnectionError reports whether err means the backend could not be reached:
// DNS failures, refused or timed out connects, failed handshakes.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if models.IsKind(err, models.KindConnectionUnavailable) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection refused",
		"no such host",
		"i/o timeout",
		"connection reset",
		"broken pipe",
		"server closed the connection",
		"failed to connect",
		"password authentication failed",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
