package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Viphunter83/userbot-orders/internal/models"
)

// Mode is the gateway routing state
type Mode int32

const (
	ModeUninitialized Mode = iota
	// ModeDirectReady routes to the direct store and falls back to REST on connection failure
	ModeDirectReady
	// ModeRestFallback routes to REST for the rest of the process lifetime
	ModeRestFallback
	// ModeRestOnly is used when no direct store is configured
	ModeRestOnly
	// ModeDirectOnly is used when no REST store is configured; there is nothing to fall back to
	ModeDirectOnly
)

func (m Mode) String() string {
	switch m {
	case ModeDirectReady:
		return "direct_ready"
	case ModeRestFallback:
		return "rest_fallback"
	case ModeRestOnly:
		return "rest_only"
	case ModeDirectOnly:
		return "direct_only"
	}
	return "uninitialized"
}

// Gateway routes operations to the direct or REST backend. The switch from direct
// to REST happens at most once and is never reverted.
type Gateway struct {
	direct  Backend
	rest    Backend
	timeout time.Duration
	logger  zerolog.Logger

	mode        atomic.Int32
	transitions atomic.Int32
	mu          sync.Mutex
}

// NewGateway creates a gateway. Either backend may be nil, not both.
func NewGateway(direct, rest Backend, timeout time.Duration, logger zerolog.Logger) (*Gateway, error) {
	if direct == nil && rest == nil {
		return nil, fmt.Errorf("at least one storage backend is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Gateway{
		direct:  direct,
		rest:    rest,
		timeout: timeout,
		logger:  logger.With().Str("component", "storage_gateway").Logger(),
	}, nil
}

// Mode returns the current routing state
func (g *Gateway) Mode() Mode {
	return Mode(g.mode.Load())
}

// Transitions returns how many times the gateway switched from direct to REST
func (g *Gateway) Transitions() int {
	return int(g.transitions.Load())
}

// Init decides the initial mode. A failing direct ping moves to REST immediately
// when a REST backend exists.
func (g *Gateway) Init(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.Mode() != ModeUninitialized {
		return nil
	}

	if g.direct == nil {
		g.mode.Store(int32(ModeRestOnly))
		g.logger.Info().Str("backend", g.rest.Name()).Msg("No direct store configured, using REST only")
		return nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, g.timeout)
	err := g.direct.Ping(pingCtx)
	cancel()

	if err == nil {
		if g.rest == nil {
			g.mode.Store(int32(ModeDirectOnly))
		} else {
			g.mode.Store(int32(ModeDirectReady))
		}
		g.logger.Info().
			Str("backend", g.direct.Name()).
			Str("mode", g.Mode().String()).
			Msg("Direct store connection successful")
		return nil
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if g.rest == nil {
		return models.NewError(models.KindConnectionUnavailable, "gateway.init", err)
	}

	g.mode.Store(int32(ModeRestFallback))
	g.transitions.Add(1)
	g.logger.Warn().
		Err(err).
		Str("from", g.direct.Name()).
		Str("to", g.rest.Name()).
		Msg("Direct store unreachable at startup, switching to REST fallback")
	return nil
}

// Do runs fn against the active backend under the gateway timeout. On a
// connection-class failure of the direct backend the gateway switches to REST
// and retries fn there once.
func (g *Gateway) Do(ctx context.Context, entity Entity, op Op, fn func(ctx context.Context, b Backend) error) error {
	if g.Mode() == ModeUninitialized {
		if err := g.Init(ctx); err != nil {
			return err
		}
	}

	name := string(entity) + "." + string(op)

	switch g.Mode() {
	case ModeRestFallback, ModeRestOnly:
		return g.run(ctx, g.rest, name, fn)
	case ModeDirectOnly:
		return g.run(ctx, g.direct, name, fn)
	}

	err := g.run(ctx, g.direct, name, fn)
	if err == nil || !IsConnectionError(err) || ctx.Err() != nil {
		return err
	}

	g.fallback(err, name)
	return g.run(ctx, g.rest, name, fn)
}

func (g *Gateway) fallback(cause error, name string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.Mode() != ModeDirectReady {
		return
	}
	g.mode.Store(int32(ModeRestFallback))
	g.transitions.Add(1)

	g.logger.Warn().
		Err(cause).
		Str("operation", name).
		Str("from", g.direct.Name()).
		Str("to", g.rest.Name()).
		Msg("Direct store connection failed, switching to REST fallback")
}

func (g *Gateway) run(ctx context.Context, b Backend, name string, fn func(ctx context.Context, b Backend) error) error {
	opCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	err := fn(opCtx, b)
	if err == nil {
		return nil
	}

	// Our own deadline expiring counts as a connection failure; the caller's does not
	if ctx.Err() == nil && errors.Is(opCtx.Err(), context.DeadlineExceeded) && !IsConnectionError(err) {
		err = models.NewError(models.KindConnectionUnavailable, name, err)
	}

	err = MapError(name, err)
	if models.IsKind(err, models.KindValidationRejected) {
		g.logger.Error().
			Err(err).
			Str("operation", name).
			Str("backend", b.Name()).
			Msg("Storage rejected payload")
	}
	return err
}

// Close closes both backends
func (g *Gateway) Close() error {
	var errs []error
	if g.direct != nil {
		errs = append(errs, g.direct.Close())
	}
	if g.rest != nil {
		errs = append(errs, g.rest.Close())
	}
	return errors.Join(errs...)
}

// BackendHealth is the ping result of one configured backend
type BackendHealth struct {
	Name    string
	Role    string // "direct" or "rest"
	Active  bool
	Latency time.Duration
	Err     error
}

// Backends pings every configured backend under the gateway timeout. The
// routing mode is left unchanged.
func (g *Gateway) Backends(ctx context.Context) []BackendHealth {
	mode := g.Mode()
	var out []BackendHealth
	if g.direct != nil {
		out = append(out, g.ping(ctx, g.direct, "direct", mode == ModeDirectReady || mode == ModeDirectOnly))
	}
	if g.rest != nil {
		out = append(out, g.ping(ctx, g.rest, "rest", mode == ModeRestFallback || mode == ModeRestOnly))
	}
	return out
}

func (g *Gateway) ping(ctx context.Context, b Backend, role string, active bool) BackendHealth {
	pingCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	err := b.Ping(pingCtx)
	return BackendHealth{
		Name:    b.Name(),
		Role:    role,
		Active:  active,
		Latency: time.Since(start),
		Err:     err,
	}
}
