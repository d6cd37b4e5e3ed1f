package generation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eternisai/leadgen-assistant/internal/logger"
)

func TestManagerLifecycle(t *testing.T) {
	var counts []int
	m := NewManager(newFakeJobs("job-1"), Options{}, 2, logger.Nop())
	m.OnActiveChange(func(n int) { counts = append(counts, n) })

	a, err := m.Create("user-1")
	require.NoError(t, err)
	b, err := m.Create("user-2")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, 2, m.ActiveCount())

	_, err = m.Create("user-3")
	assert.ErrorIs(t, err, ErrTooManySessions)

	got, err := m.Get(a.ID())
	require.NoError(t, err)
	assert.Same(t, a, got)
	assert.Equal(t, map[string]Phase{a.ID(): PhaseAsking, b.ID(): PhaseAsking}, m.Status())

	require.NoError(t, m.Delete(a.ID()))
	_, err = m.Get(a.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, m.Delete(a.ID()), ErrSessionNotFound)
	assert.ErrorIs(t, a.Send(context.Background(), "hi"), ErrClosed)

	assert.Equal(t, []int{1, 2, 1}, counts)
}

func TestManagerShutdownStopsPollers(t *testing.T) {
	jobs := newFakeJobs("job-1")
	jobs.honorCtx = true
	clock := newFakeClock()
	m := NewManager(jobs, Options{NewTicker: clock.NewTicker}, 0, logger.Nop())

	s, err := m.Create("user-1")
	require.NoError(t, err)
	answerAll(t, s)
	require.NoError(t, s.Send(context.Background(), "yes"))
	clock.next(t)
	require.Equal(t, PhasePolling, s.Snapshot().Phase)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	assert.Zero(t, m.ActiveCount())
	_, err = m.Create("user-2")
	assert.ErrorIs(t, err, ErrManagerShutdown)
}

// manualNow is a settable clock for Options.Now.
type manualNow struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualNow) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualNow) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestManagerEvictsFinishedSessionAtLimit(t *testing.T) {
	jobs := newFakeJobs("job-1")
	jobs.submitErr = errors.New("backend down")
	m := NewManager(jobs, Options{}, 2, logger.Nop())

	finished, err := m.Create("user-1")
	require.NoError(t, err)
	answerAll(t, finished)
	require.NoError(t, finished.Send(context.Background(), "yes"))
	require.Equal(t, PhaseDone, finished.Snapshot().Phase)

	asking, err := m.Create("user-1")
	require.NoError(t, err)

	fresh, err := m.Create("user-2")
	require.NoError(t, err)
	assert.Equal(t, 2, m.ActiveCount())

	_, err = m.Get(finished.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, finished.Send(context.Background(), "yes"), ErrClosed)

	// nothing finished left to evict
	_, err = m.Create("user-3")
	assert.ErrorIs(t, err, ErrTooManySessions)
	assert.Equal(t, map[string]Phase{asking.ID(): PhaseAsking, fresh.ID(): PhaseAsking}, m.Status())
}

func TestManagerExpireIdle(t *testing.T) {
	clock := &manualNow{now: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)}
	tickers := newFakeClock()
	jobs := newFakeJobs("job-1")
	jobs.honorCtx = true

	var counts []int
	m := NewManager(jobs, Options{Now: clock.Now, NewTicker: tickers.NewTicker}, 0, logger.Nop())
	m.OnActiveChange(func(n int) { counts = append(counts, n) })
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	stale, err := m.Create("user-1")
	require.NoError(t, err)

	polling, err := m.Create("user-1")
	require.NoError(t, err)
	answerAll(t, polling)
	require.NoError(t, polling.Send(context.Background(), "yes"))
	tickers.next(t)
	require.Equal(t, PhasePolling, polling.Snapshot().Phase)

	clock.advance(time.Hour)
	recent, err := m.Create("user-2")
	require.NoError(t, err)

	assert.Zero(t, m.ExpireIdle(0))
	assert.Equal(t, 1, m.ExpireIdle(30*time.Minute))

	_, err = m.Get(stale.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, stale.Send(context.Background(), "hi"), ErrClosed)

	assert.Equal(t, map[string]Phase{polling.ID(): PhasePolling, recent.ID(): PhaseAsking}, m.Status())
	assert.Equal(t, []int{1, 2, 3, 2}, counts)
}

func TestManagerSweeperExpiresIdleSessions(t *testing.T) {
	clock := &manualNow{now: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)}
	m := NewManager(newFakeJobs("job-1"), Options{Now: clock.Now}, 0, logger.Nop())

	_, err := m.Create("user-1")
	require.NoError(t, err)
	clock.advance(2 * time.Hour)

	m.StartSweeper(time.Hour, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return m.ActiveCount() == 0 }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
}
