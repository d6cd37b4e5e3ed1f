package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eternisai/leadgen-assistant/internal/logger"
)

// GenerationCompleted is emitted when a lead generation job finished successfully.
type GenerationCompleted struct {
	SessionID   string    `json:"session_id"`
	UserID      string    `json:"user_id"`
	JobID       string    `json:"job_id,omitempty"`
	LeadsCount  *int      `json:"leads_count,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
	InstanceID  string    `json:"instance_id"`
}

// Handler reacts to a completion event.
type Handler func(ctx context.Context, ev GenerationCompleted)

// Publisher delivers completion events.
type Publisher interface {
	Publish(ctx context.Context, ev GenerationCompleted) error
}

// LocalBus fans events out to in-process handlers, each on its own goroutine.
type LocalBus struct {
	mu       sync.RWMutex
	handlers []Handler
	wg       sync.WaitGroup
	logger   *logger.Logger
}

// NewLocalBus creates an empty bus.
func NewLocalBus(log *logger.Logger) *LocalBus {
	return &LocalBus{logger: log.WithComponent("event_bus")}
}

// Subscribe registers h for every future event.
func (b *LocalBus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish dispatches ev to every handler. Handlers run detached from ctx's
// cancellation so a finished request does not abort them.
func (b *LocalBus) Publish(ctx context.Context, ev GenerationCompleted) error {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers...)
	b.mu.RUnlock()

	hctx := context.WithoutCancel(ctx)
	for _, h := range handlers {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked",
						slog.String("session_id", ev.SessionID),
						slog.Any("panic", r))
				}
			}()
			h(hctx, ev)
		}()
	}

	b.logger.Debug("published generation completed",
		slog.String("session_id", ev.SessionID),
		slog.String("job_id", ev.JobID),
		slog.Int("handlers", len(handlers)))
	return nil
}

// Wait blocks until every dispatched handler returned or ctx is done.
func (b *LocalBus) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fanout publishes to several publishers, logging failures of each.
type Fanout struct {
	publishers []Publisher
	logger     *logger.Logger
}

// NewFanout combines publishers; nil entries are skipped.
func NewFanout(log *logger.Logger, publishers ...Publisher) *Fanout {
	f := &Fanout{logger: log.WithComponent("event_fanout")}
	for _, p := range publishers {
		if p != nil {
			f.publishers = append(f.publishers, p)
		}
	}
	return f
}

// Publish sends ev to every publisher and returns the first error.
func (f *Fanout) Publish(ctx context.Context, ev GenerationCompleted) error {
	var first error
	for _, p := range f.publishers {
		if err := p.Publish(ctx, ev); err != nil {
			f.logger.Error("failed to publish event",
				slog.String("session_id", ev.SessionID),
				slog.String("error", err.Error()))
			if first == nil {
				first = err
			}
		}
	}
	return first
}
