package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/eternisai/leadgen-assistant/internal/logger"
)

// Loader refreshes a view from the backend.
type Loader interface {
	Load(ctx context.Context) error
}

// Refresher reloads the leads view on a cron schedule.
type Refresher struct {
	cron    *cron.Cron
	loader  Loader
	timeout time.Duration
	logger  *logger.Logger

	mu      sync.Mutex
	running bool
}

// NewRefresher parses spec (standard five-field cron) and prepares the job.
// Each run is bounded by timeout.
func NewRefresher(spec string, loader Loader, timeout time.Duration, log *logger.Logger) (*Refresher, error) {
	r := &Refresher{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		loader:  loader,
		timeout: timeout,
		logger:  log.WithComponent("leads_refresher"),
	}

	if _, err := r.cron.AddFunc(spec, r.run); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	return r, nil
}

// Start begins running the schedule in the background.
func (r *Refresher) Start() {
	r.cron.Start()
	r.logger.Info("leads refresh scheduled", slog.Int("entries", len(r.cron.Entries())))
}

// Stop stops the schedule and waits for a running refresh, up to ctx.
func (r *Refresher) Stop(ctx context.Context) error {
	stopped := r.cron.Stop()
	select {
	case <-stopped.Done():
		r.logger.Info("leads refresher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run skips a tick while the previous refresh is still going.
func (r *Refresher) run() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		r.logger.Warn("previous leads refresh still running, skipping")
		return
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	ctx := logger.WithOperation(context.Background(), "leads_refresh")
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := r.loader.Load(ctx); err != nil {
		r.logger.WithContext(ctx).Error("scheduled leads refresh failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
		return
	}
	r.logger.WithContext(ctx).Debug("scheduled leads refresh done",
		slog.Duration("duration", time.Since(start)))
}
