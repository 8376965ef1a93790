package ingest

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Viphunter83/userbot-orders/internal/models"
)

// ErrDispatcherClosed is returned by Submit after Close
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Handler processes one inbound message
type Handler interface {
	Ingest(ctx context.Context, in models.InboundMessage) Outcome
}

// DispatcherOptions tunes the dispatcher
type DispatcherOptions struct {
	Workers     int           // Number of shards, default 4
	QueueSize   int           // Per-shard buffer, default 64
	MaxAttempts int           // Delivery attempts for connection failures, default 3
	Backoff     time.Duration // Base delay between attempts, default 1s
}

func (o DispatcherOptions) withDefaults() DispatcherOptions {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = time.Second
	}
	return o
}

// Dispatcher fans messages out to shard workers. Every chat maps to one shard,
// so messages of a chat are handled in submission order while different chats
// proceed in parallel.
type Dispatcher struct {
	handler Handler
	opts    DispatcherOptions
	shards  []chan models.InboundMessage
	logger  zerolog.Logger

	onOutcome func(models.InboundMessage, Outcome)

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
	once   sync.Once
}

func NewDispatcher(handler Handler, opts DispatcherOptions, logger zerolog.Logger) *Dispatcher {
	opts = opts.withDefaults()
	shards := make([]chan models.InboundMessage, opts.Workers)
	for i := range shards {
		shards[i] = make(chan models.InboundMessage, opts.QueueSize)
	}
	return &Dispatcher{
		handler: handler,
		opts:    opts,
		shards:  shards,
		done:    make(chan struct{}),
		logger:  logger.With().Str("component", "dispatcher").Logger(),
	}
}

// OnOutcome registers a callback invoked after each message; call before Run
func (d *Dispatcher) OnOutcome(fn func(models.InboundMessage, Outcome)) {
	d.onOutcome = fn
}

func (d *Dispatcher) shard(chatID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(chatID))
	return int(h.Sum32() % uint32(len(d.shards)))
}

// Submit queues in for processing, blocking while its shard is full
func (d *Dispatcher) Submit(ctx context.Context, in models.InboundMessage) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.shards[d.shard(in.ChatID)] <- in:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrDispatcherClosed
	}
}

// Close stops accepting messages. Workers drain what is already queued.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.done)
		d.mu.Lock()
		d.closed = true
		for _, ch := range d.shards {
			close(ch)
		}
		d.mu.Unlock()
	})
}

// Run processes queued messages until Close drains the queues or ctx ends
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info().Int("workers", len(d.shards)).Msg("Dispatcher started")

	g, gctx := errgroup.WithContext(ctx)
	for i, ch := range d.shards {
		i, ch := i, ch
		g.Go(func() error {
			return d.work(gctx, i, ch)
		})
	}
	err := g.Wait()

	d.logger.Info().Msg("Dispatcher stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (d *Dispatcher) work(ctx context.Context, shard int, ch <-chan models.InboundMessage) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in, ok := <-ch:
			if !ok {
				return nil
			}
			d.handle(ctx, shard, in)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, shard int, in models.InboundMessage) {
	var out Outcome
	for attempt := 1; ; attempt++ {
		out = d.safeIngest(ctx, in)
		if out.Status != StatusFailed || !models.IsKind(out.Err, models.KindConnectionUnavailable) || attempt >= d.opts.MaxAttempts {
			break
		}

		backoff := d.opts.Backoff * time.Duration(1<<(attempt-1))
		d.logger.Warn().
			Err(out.Err).
			Int("shard", shard).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Str("chat_id", in.ChatID).
			Str("message_id", in.ExternalMessageID).
			Msg("Storage unavailable, redelivering message")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}

	if out.Status == StatusFailed {
		d.logger.Error().
			Err(out.Err).
			Str("kind", string(out.Kind())).
			Str("chat_id", in.ChatID).
			Str("message_id", in.ExternalMessageID).
			Msg("Message ingestion failed")
	}
	if d.onOutcome != nil {
		d.onOutcome(in, out)
	}
}

// safeIngest turns a handler panic into a failed outcome so one message cannot stop a shard
func (d *Dispatcher) safeIngest(ctx context.Context, in models.InboundMessage) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Interface("panic", r).
				Str("chat_id", in.ChatID).
				Msg("Panic recovered in ingestion")
			out = failed(0, errors.New("panic during ingestion"))
		}
	}()
	return d.handler.Ingest(ctx, in)
}
