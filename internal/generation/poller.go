package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eternisai/leadgen-assistant/internal/logger"
)

// poller tracks a single generation job for a session.
//
// Lifecycle:
//  1. Poll immediately, then on every tick
//  2. Push in-progress updates into the session transcript
//  3. Stop on a terminal status, on reset/close (context cancelled), on the
//     wall-clock ceiling or after too many consecutive failed polls
//
// Every result is applied through the session, which drops it when the
// session moved on to another epoch.
type poller struct {
	session   *Session
	jobID     string
	epoch     uint64
	logger    *logger.Logger
	pollCount int
	failures  int
	startedAt time.Time
}

func newPoller(s *Session, jobID string, epoch uint64) *poller {
	return &poller{
		session:   s,
		jobID:     jobID,
		epoch:     epoch,
		logger:    s.logger.WithComponent("generation_poller"),
		startedAt: time.Now(),
	}
}

// run blocks until the job is finished or ctx is done.
func (p *poller) run(ctx context.Context) {
	opts := p.session.opts

	p.logger.Info("starting job polling",
		slog.String("job_id", p.jobID),
		slog.Duration("interval", opts.PollInterval))

	ticker := opts.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	if p.poll(ctx) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				p.logger.Warn("job polling timed out",
					slog.String("job_id", p.jobID),
					slog.Int("poll_count", p.pollCount),
					slog.Duration("elapsed", time.Since(p.startedAt)))
				p.session.failPolling(p.epoch, msgPollTimeout)
				return
			}

			p.logger.Debug("job polling cancelled",
				slog.String("job_id", p.jobID),
				slog.Int("poll_count", p.pollCount))
			return

		case <-ticker.C():
			if p.poll(ctx) {
				return
			}
		}
	}
}

// poll fetches the job status once and reports whether polling is over.
func (p *poller) poll(ctx context.Context) bool {
	p.pollCount++
	opts := p.session.opts

	payload, err := p.session.backend.GetJobStatus(ctx, p.jobID)
	if err != nil {
		if ctx.Err() != nil {
			// The select in run decides between timeout and cancellation.
			return false
		}

		p.failures++
		opts.Observer.PollCompleted("error")
		p.logger.Error("failed to poll job status",
			slog.String("job_id", p.jobID),
			slog.String("error", err.Error()),
			slog.Int("poll_count", p.pollCount),
			slog.Int("consecutive_failures", p.failures))

		if opts.MaxPollFailures > 0 && p.failures >= opts.MaxPollFailures {
			p.session.failPolling(p.epoch, fmt.Sprintf("%s after %d failed status checks", msgPollTimeout, p.failures))
			return true
		}

		// Retry on next tick.
		return false
	}
	p.failures = 0

	state, err := ParseJobState(payload)
	if err != nil {
		opts.Observer.PollCompleted("unknown")
		p.logger.Warn("unknown job status",
			slog.String("job_id", p.jobID),
			slog.String("error", err.Error()))
		return false
	}
	opts.Observer.PollCompleted("ok")

	switch st := state.(type) {
	case Completed, Failed:
		p.logger.Info("job reached terminal state",
			slog.String("job_id", p.jobID),
			slog.String("status", st.String()),
			slog.Int("poll_count", p.pollCount),
			slog.Duration("duration", time.Since(p.startedAt)))
	default:
		// Log at Info level every 10 polls so long jobs stay visible.
		if p.pollCount%10 == 0 {
			p.logger.Info("polling progress",
				slog.String("job_id", p.jobID),
				slog.String("status", st.String()),
				slog.Int("poll_count", p.pollCount),
				slog.Duration("elapsed", time.Since(p.startedAt)))
		} else {
			p.logger.Debug("job still processing",
				slog.String("job_id", p.jobID),
				slog.String("status", st.String()),
				slog.Int("poll_count", p.pollCount))
		}
	}

	return p.session.applyJobState(p.epoch, state)
}
