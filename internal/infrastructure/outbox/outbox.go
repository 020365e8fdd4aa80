package outbox

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
)

// AllEvents subscribes a handler to every published event.
const AllEvents = "*"

const (
	componentOutbox = "outbox"
	handlerTimeout  = 30 * time.Second
)

var ErrClosed = errors.New("outbox: bus closed")

// ContextFunc prepares the context a handler runs with. The default keeps the publisher's
// values (trace, logger) and drops its cancellation.
type ContextFunc func(ctx context.Context, e domoutbox.Event) context.Context

type envelope struct {
	ctx   context.Context
	event domoutbox.Event
}

// Bus is an in-memory, non-durable event bus. Events are dispatched in publish order by a
// single loop; handlers of one event run concurrently up to a cap.
type Bus struct {
	mu          sync.RWMutex
	subs        map[string][]domoutbox.Handler
	closeMu     sync.RWMutex // guards closed and sends on queue
	closed      bool
	queue       chan envelope
	done        chan struct{}
	startOnce   sync.Once
	stopOnce    sync.Once
	concurrency int
	handlerCtx  ContextFunc
	log         observability.Logger
}

type Option func(*Bus)

func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queue = make(chan envelope, n)
		}
	}
}

func WithConcurrency(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

func WithHandlerContext(fn ContextFunc) Option {
	return func(b *Bus) {
		if fn != nil {
			b.handlerCtx = fn
		}
	}
}

func NewBus(logger observability.Logger, opts ...Option) *Bus {
	if logger == nil {
		logger = observability.NopLogger()
	}
	b := &Bus{
		subs:        make(map[string][]domoutbox.Handler),
		queue:       make(chan envelope, 1024),
		done:        make(chan struct{}),
		concurrency: 8,
		handlerCtx: func(ctx context.Context, _ domoutbox.Event) context.Context {
			return ctx
		},
		log: logger.With(observability.F("component", componentOutbox)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) Subscribe(eventName string, h domoutbox.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventName] = append(b.subs[eventName], h)
}

func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		go b.dispatchLoop()
		logctx.FromOr(ctx, b.log).Info("event_bus_started")
	})
}

// Stop refuses new events and waits until queued ones are dispatched or ctx ends.
func (b *Bus) Stop(ctx context.Context) error {
	var err error
	b.stopOnce.Do(func() {
		b.closeMu.Lock()
		b.closed = true
		close(b.queue)
		b.closeMu.Unlock()

		b.startOnce.Do(func() { go b.dispatchLoop() })

		select {
		case <-b.done:
			logctx.FromOr(ctx, b.log).Info("event_bus_stopped")
		case <-ctx.Done():
			err = ctx.Err()
			logctx.FromOr(ctx, b.log).Warn("event_bus_stop_timeout", observability.F("error", err))
		}
	})
	return err
}

func (b *Bus) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	logger := logctx.FromOr(ctx, b.log).With(observability.F("event", e.EventName()))

	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	if b.closed {
		logger.Warn("event_rejected_bus_closed")
		return ErrClosed
	}

	select {
	case b.queue <- envelope{ctx: context.WithoutCancel(ctx), event: e}:
		logger.Debug("event_enqueued")
		return nil
	case <-ctx.Done():
		logger.Warn("event_enqueue_aborted", observability.F("error", ctx.Err()))
		return ctx.Err()
	}
}

func (b *Bus) dispatchLoop() {
	defer close(b.done)
	for env := range b.queue {
		b.fanout(env)
	}
}

func (b *Bus) handlers(name string) []domoutbox.Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	hs := make([]domoutbox.Handler, 0, len(b.subs[name])+len(b.subs[AllEvents]))
	hs = append(hs, b.subs[name]...)
	return append(hs, b.subs[AllEvents]...)
}

func (b *Bus) fanout(env envelope) {
	name := env.event.EventName()
	handlers := b.handlers(name)
	if len(handlers) == 0 {
		logctx.FromOr(env.ctx, b.log).Debug("event_dropped_no_subscriber", observability.F("event", name))
		return
	}

	sem := make(chan struct{}, b.concurrency)
	var wg sync.WaitGroup

	for _, h := range handlers {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			ctx, cancel := context.WithTimeout(b.handlerCtx(env.ctx, env.event), handlerTimeout)
			logger := logctx.FromOr(ctx, b.log).With(observability.F("event", name))
			defer func() {
				if r := recover(); r != nil {
					logger.Error("event_handler_panic",
						observability.F("panic", r),
						observability.F("stack", string(debug.Stack())),
					)
				}
				cancel()
				<-sem
				wg.Done()
			}()

			if err := h(ctx, env.event); err != nil {
				logger.Warn("event_handler_error", observability.F("error", err))
			}
		}()
	}

	wg.Wait()
	b.log.Debug("event_fanned_out",
		observability.F("event", name),
		observability.F("handlers", len(handlers)),
	)
}
