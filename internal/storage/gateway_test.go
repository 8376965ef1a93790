package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Viphunter83/userbot-orders/internal/models"
)

type namedStore struct {
	*MemoryStore
	name string
}

func (n namedStore) Name() string { return n.name }

func newNamed(name string) namedStore {
	return namedStore{MemoryStore: NewMemoryStore(), name: name}
}

var errRefused = errors.New("dial tcp 10.0.0.1:5432: connect: connection refused")

func newTestGateway(t *testing.T, direct, rest Backend) *Gateway {
	t.Helper()
	g, err := NewGateway(direct, rest, 50*time.Millisecond, zerolog.Nop())
	require.NoError(t, err)
	return g
}

func TestNewGateway_RequiresBackend(t *testing.T) {
	_, err := NewGateway(nil, nil, time.Second, zerolog.Nop())
	assert.Error(t, err)
}

func TestGateway_InitModes(t *testing.T) {
	ctx := context.Background()

	t.Run("direct ready", func(t *testing.T) {
		g := newTestGateway(t, newNamed("direct"), newNamed("rest"))
		require.NoError(t, g.Init(ctx))
		assert.Equal(t, ModeDirectReady, g.Mode())
		assert.Equal(t, 0, g.Transitions())
	})

	t.Run("direct unreachable", func(t *testing.T) {
		direct := newNamed("direct")
		direct.PingErr = errRefused
		g := newTestGateway(t, direct, newNamed("rest"))
		require.NoError(t, g.Init(ctx))
		assert.Equal(t, ModeRestFallback, g.Mode())
		assert.Equal(t, 1, g.Transitions())
	})

	t.Run("rest only", func(t *testing.T) {
		g := newTestGateway(t, nil, newNamed("rest"))
		require.NoError(t, g.Init(ctx))
		assert.Equal(t, ModeRestOnly, g.Mode())
	})

	t.Run("direct only", func(t *testing.T) {
		g := newTestGateway(t, newNamed("direct"), nil)
		require.NoError(t, g.Init(ctx))
		assert.Equal(t, ModeDirectOnly, g.Mode())
	})

	t.Run("direct only unreachable", func(t *testing.T) {
		direct := newNamed("direct")
		direct.PingErr = errRefused
		g := newTestGateway(t, direct, nil)
		err := g.Init(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrConnectionUnavailable)
		assert.Equal(t, ModeUninitialized, g.Mode())
	})
}

func TestGateway_DoLazilyInitializes(t *testing.T) {
	g := newTestGateway(t, newNamed("direct"), newNamed("rest"))

	var used string
	err := g.Do(context.Background(), EntityChat, OpGet, func(ctx context.Context, b Backend) error {
		used = b.Name()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "direct", used)
	assert.Equal(t, ModeDirectReady, g.Mode())
}

func TestGateway_FallsBackOnceOnConnectionError(t *testing.T) {
	g := newTestGateway(t, newNamed("direct"), newNamed("rest"))
	ctx := context.Background()
	require.NoError(t, g.Init(ctx))

	var calls []string
	fn := func(ctx context.Context, b Backend) error {
		calls = append(calls, b.Name())
		if b.Name() == "direct" {
			return errRefused
		}
		return nil
	}

	require.NoError(t, g.Do(ctx, EntityMessage, OpCreate, fn))
	assert.Equal(t, []string{"direct", "rest"}, calls)
	assert.Equal(t, ModeRestFallback, g.Mode())
	assert.Equal(t, 1, g.Transitions())

	// Sticky: later operations skip the direct store entirely
	calls = nil
	require.NoError(t, g.Do(ctx, EntityOrder, OpList, fn))
	assert.Equal(t, []string{"rest"}, calls)
	assert.Equal(t, 1, g.Transitions())
}

func TestGateway_NonConnectionErrorDoesNotFallBack(t *testing.T) {
	g := newTestGateway(t, newNamed("direct"), newNamed("rest"))
	ctx := context.Background()

	err := g.Do(ctx, EntityOrder, OpCreate, func(ctx context.Context, b Backend) error {
		return models.NewError(models.KindConflict, "insert_order", nil)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Equal(t, ModeDirectReady, g.Mode())
	assert.Equal(t, 0, g.Transitions())
}

func TestGateway_TimeoutCountsAsConnectionFailure(t *testing.T) {
	g := newTestGateway(t, newNamed("direct"), newNamed("rest"))
	ctx := context.Background()

	var restCalled bool
	err := g.Do(ctx, EntityStat, OpUpdate, func(ctx context.Context, b Backend) error {
		if b.Name() == "direct" {
			<-ctx.Done()
			return ctx.Err()
		}
		restCalled = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, restCalled)
	assert.Equal(t, ModeRestFallback, g.Mode())
}

func TestGateway_CallerCancellationDoesNotFallBack(t *testing.T) {
	g := newTestGateway(t, newNamed("direct"), newNamed("rest"))
	require.NoError(t, g.Init(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	err := g.Do(ctx, EntityChat, OpList, func(ctx context.Context, b Backend) error {
		cancel()
		return errRefused
	})
	require.Error(t, err)
	assert.Equal(t, ModeDirectReady, g.Mode())
	assert.Equal(t, 0, g.Transitions())
}

func TestGateway_RestFailureIsReturned(t *testing.T) {
	g := newTestGateway(t, newNamed("direct"), newNamed("rest"))
	ctx := context.Background()

	err := g.Do(ctx, EntityChat, OpGet, func(ctx context.Context, b Backend) error {
		return errRefused
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConnectionUnavailable)
	assert.Equal(t, ModeRestFallback, g.Mode())
}

func TestGateway_ConcurrentFailuresTransitionOnce(t *testing.T) {
	g := newTestGateway(t, newNamed("direct"), newNamed("rest"))
	ctx := context.Background()
	require.NoError(t, g.Init(ctx))

	var restCalls atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := g.Do(ctx, EntityMessage, OpCreate, func(ctx context.Context, b Backend) error {
				if b.Name() == "direct" {
					return errRefused
				}
				restCalls.Add(1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, ModeRestFallback, g.Mode())
	assert.Equal(t, 1, g.Transitions())
	assert.Equal(t, int32(32), restCalls.Load())
}

func TestGateway_ValidationErrorsPassThrough(t *testing.T) {
	g := newTestGateway(t, nil, newNamed("rest"))
	ctx := context.Background()

	err := g.Do(ctx, EntityOrder, OpCreate, func(ctx context.Context, b Backend) error {
		return b.InsertOrder(ctx, &models.Order{MessageID: "1", ChatID: "c", RelevanceScore: 1.5})
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrValidationRejected)
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "uninitialized", ModeUninitialized.String())
	assert.Equal(t, "direct_ready", ModeDirectReady.String())
	assert.Equal(t, "rest_fallback", ModeRestFallback.String())
	assert.Equal(t, "rest_only", ModeRestOnly.String())
	assert.Equal(t, "direct_only", ModeDirectOnly.String())
}

type closingStore struct {
	namedStore
	closed *atomic.Int32
	err    error
}

func (c closingStore) Close() error {
	c.closed.Add(1)
	return c.err
}

func TestGateway_CloseClosesBothBackends(t *testing.T) {
	var closed atomic.Int32
	closeErr := errors.New("pool already closed")
	direct := closingStore{namedStore: newNamed("direct"), closed: &closed, err: closeErr}
	rest := closingStore{namedStore: newNamed("rest"), closed: &closed}

	g := newTestGateway(t, direct, rest)
	err := g.Close()

	assert.ErrorIs(t, err, closeErr)
	assert.Equal(t, int32(2), closed.Load())
}

func TestGateway_BackendsReportsEachStore(t *testing.T) {
	ctx := context.Background()

	direct := newNamed("direct")
	direct.PingErr = errRefused
	g := newTestGateway(t, direct, newNamed("rest"))
	require.NoError(t, g.Init(ctx))
	require.Equal(t, ModeRestFallback, g.Mode())

	got := g.Backends(ctx)
	require.Len(t, got, 2)

	assert.Equal(t, "direct", got[0].Name)
	assert.Equal(t, "direct", got[0].Role)
	assert.False(t, got[0].Active)
	assert.ErrorIs(t, got[0].Err, models.ErrConnectionUnavailable)

	assert.Equal(t, "rest", got[1].Name)
	assert.Equal(t, "rest", got[1].Role)
	assert.True(t, got[1].Active)
	assert.NoError(t, got[1].Err)

	// A healthy direct ping does not revert the fallback
	direct.PingErr = nil
	got = g.Backends(ctx)
	assert.NoError(t, got[0].Err)
	assert.Equal(t, ModeRestFallback, g.Mode())
}

func TestGateway_BackendsSkipsMissingStore(t *testing.T) {
	g := newTestGateway(t, newNamed("direct"), nil)
	require.NoError(t, g.Init(context.Background()))

	got := g.Backends(context.Background())
	require.Len(t, got, 1)
	assert.Equal(t, "direct", got[0].Role)
	assert.True(t, got[0].Active)
}
