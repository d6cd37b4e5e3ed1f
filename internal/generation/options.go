package generation

import (
	"context"
	"time"
)

// Observer receives generation lifecycle signals, typically for metrics.
type Observer interface {
	PollCompleted(result string)
	JobFinished(outcome string)
}

type nopObserver struct{}

func (nopObserver) PollCompleted(string) {}
func (nopObserver) JobFinished(string)   {}

// Ticker is the part of time.Ticker the poller uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker wraps time.NewTicker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Options configure sessions. Zero values fall back to the defaults.
type Options struct {
	Questions []Question
	// DefaultCount replaces unparsable or zero lead counts.
	DefaultCount int

	PollInterval time.Duration
	// PollTimeout is the wall-clock ceiling of one job's tracking.
	PollTimeout time.Duration
	// MaxPollFailures ends tracking after that many consecutive failed polls. 0 disables the cap.
	MaxPollFailures int

	// Precheck runs before every submission; an error aborts it and is shown to the user.
	Precheck   func(ctx context.Context, p Parameters) error
	OnComplete func(Completion)
	Observer   Observer

	NewTicker func(time.Duration) Ticker
	Now       func() time.Time
}

func (o Options) withDefaults() Options {
	if len(o.Questions) == 0 {
		o.Questions = DefaultQuestions()
	}
	if o.DefaultCount <= 0 {
		o.DefaultCount = DefaultRequestedCount
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = 30 * time.Minute
	}
	if o.MaxPollFailures < 0 {
		o.MaxPollFailures = 0
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	if o.NewTicker == nil {
		o.NewTicker = NewTimeTicker
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
