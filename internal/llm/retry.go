package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// permanentError marks failures that retrying cannot fix
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return permanentError{err: err} }

// generateWithRetry runs fn with exponential backoff (base, 2*base, 4*base...)
func generateWithRetry(ctx context.Context, logger zerolog.Logger, maxRetries int, base time.Duration, fn func(ctx context.Context) error) error {
	var lastError error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * base
			logger.Warn().
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("Retrying LLM request")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		lastError = err
		logger.Error().
			Err(err).
			Int("attempt", attempt+1).
			Msg("LLM request failed")

		var perm permanentError
		if errors.As(err, &perm) || ctx.Err() != nil {
			return err
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", maxRetries+1, lastError)
}
