package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eternisai/leadgen-assistant/internal/backend"
	apperrors "github.com/eternisai/leadgen-assistant/internal/errors"
	"github.com/eternisai/leadgen-assistant/internal/logger"
)

var (
	ErrNotAsking     = errors.New("session is not collecting answers")
	ErrNotConfirming = errors.New("session is not awaiting confirmation")
	ErrBusy          = errors.New("lead generation is in progress")
	ErrEmptyInput    = errors.New("input is empty")
	ErrClosed        = errors.New("session is closed")
)

// Phase is the position of a session in the conversation.
type Phase string

const (
	PhaseAsking     Phase = "asking"
	PhaseConfirming Phase = "confirming"
	PhaseSubmitting Phase = "submitting"
	PhasePolling    Phase = "polling"
	PhaseDone       Phase = "done"
)

// Outcome is set once a session reaches PhaseDone.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// JobBackend submits generation jobs and reports their status.
type JobBackend interface {
	SubmitGenerationJob(ctx context.Context, req backend.GenerationRequest) (*backend.SubmitResult, error)
	GetJobStatus(ctx context.Context, jobID string) (*backend.JobStatusPayload, error)
}

// Completion describes a successfully finished generation.
type Completion struct {
	SessionID  string
	UserID     string
	JobID      string
	LeadsCount *int
}

// Session drives one lead generation conversation: it asks the scripted
// questions, confirms, submits the job and tracks it until it finishes.
type Session struct {
	id      string
	userID  string
	backend JobBackend
	opts    Options
	logger  *logger.Logger

	mu            sync.Mutex
	phase         Phase
	outcome       Outcome
	questionIndex int
	messages      []Message
	params        Parameters
	jobID         string
	progress      int
	statusMessage string
	leadsCount    *int
	createdAt     time.Time
	updatedAt     time.Time
	closed        bool

	// epoch is bumped on every reset. Async work captures it and is
	// discarded when it no longer matches.
	epoch      uint64
	cancelPoll context.CancelFunc
	pollDone   chan struct{}

	subscribers map[chan Snapshot]struct{}
}

// NewSession creates a session and seeds it with the first question.
func NewSession(userID string, jobs JobBackend, opts Options, log *logger.Logger) *Session {
	opts = opts.withDefaults()
	now := opts.Now()

	s := &Session{
		id:          uuid.NewString(),
		userID:      userID,
		backend:     jobs,
		opts:        opts,
		createdAt:   now,
		subscribers: make(map[chan Snapshot]struct{}),
	}
	s.logger = log.WithComponent("generation_session").WithContext(
		logger.WithUserID(logger.WithSessionID(context.Background(), s.id), userID))

	s.resetLocked()
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// UserID returns the owner of the session.
func (s *Session) UserID() string { return s.userID }

// Send routes user input according to the current phase.
func (s *Session) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	phase, outcome := s.phase, s.outcome

	switch {
	case phase == PhaseAsking:
		s.mu.Unlock()
		return s.SubmitAnswer(text)
	case phase == PhaseConfirming, phase == PhaseDone && outcome == OutcomeFailed:
		s.mu.Unlock()
		return s.Confirm(ctx, text)
	case phase == PhaseSubmitting, phase == PhasePolling:
		s.mu.Unlock()
		return ErrBusy
	}

	// Done with success: "yes" starts over, anything else says goodbye.
	if isYes(text) {
		s.resetLocked()
		s.mu.Unlock()
		s.logger.Info("session restarted after success")
		return nil
	}
	s.appendLocked(RoleUser, text)
	s.appendLocked(RoleAgent, msgFarewell)
	s.publishLocked()
	s.mu.Unlock()
	return nil
}

// SubmitAnswer records the answer to the current question and advances to the
// next question or, after the last one, to the confirmation summary.
func (s *Session) SubmitAnswer(text string) error {
	answer := strings.TrimSpace(text)
	if answer == "" {
		return ErrEmptyInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.phase != PhaseAsking {
		return ErrNotAsking
	}

	s.appendLocked(RoleUser, text)

	q := s.opts.Questions[s.questionIndex]
	s.params.apply(q.Key, answer, s.opts.DefaultCount)

	if s.questionIndex < len(s.opts.Questions)-1 {
		s.questionIndex++
		s.appendLocked(RoleAgent, s.opts.Questions[s.questionIndex].Prompt)
	} else {
		s.questionIndex = -1
		s.phase = PhaseConfirming
		s.appendLocked(RoleAgent, summaryMessage(s.params))
	}

	s.publishLocked()
	return nil
}

// Confirm handles the answer to the summary. Input containing "yes" submits
// the job, input containing "no" restarts, anything else is ignored.
// After a failed generation "yes" retries with the same parameters.
func (s *Session) Confirm(ctx context.Context, text string) error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.phase != PhaseConfirming && (s.phase != PhaseDone || s.outcome != OutcomeFailed) {
		s.mu.Unlock()
		return ErrNotConfirming
	}

	switch {
	case isYes(text):
	case isNo(text):
		s.resetLocked()
		s.mu.Unlock()
		s.logger.Info("session restarted by user")
		return nil
	default:
		s.mu.Unlock()
		return nil
	}

	s.appendLocked(RoleUser, text)
	s.phase = PhaseSubmitting
	s.outcome = OutcomeNone
	s.jobID = ""
	s.progress = 0
	s.statusMessage = ""
	s.leadsCount = nil
	s.appendLocked(RoleAgent, msgStarting)
	s.publishLocked()

	epoch := s.epoch
	params := s.params
	params.Keywords = append([]string{}, s.params.Keywords...)
	s.mu.Unlock()

	result, err := s.submit(ctx, params)

	s.mu.Lock()
	if s.epoch != epoch || s.closed {
		s.mu.Unlock()
		if err == nil && result.JobID != "" {
			s.logger.Warn("dropping job submitted before reset", slog.String("job_id", result.JobID))
		}
		return nil
	}

	if err != nil {
		s.phase = PhaseDone
		s.outcome = OutcomeFailed
		s.questionIndex = -1
		s.appendLocked(RoleAgent, submitErrorMessage(apperrors.MessageOf(err, fallbackSubmitError)))
		s.publishLocked()
		s.mu.Unlock()
		s.opts.Observer.JobFinished(string(OutcomeFailed))
		return nil
	}

	if result.JobID == "" {
		s.finishSuccessLocked(result.LeadsCount)
		comp := s.completionLocked()
		s.mu.Unlock()
		s.notifyComplete(comp)
		return nil
	}

	s.jobID = result.JobID
	s.phase = PhasePolling
	s.startPollingLocked()
	s.publishLocked()
	s.mu.Unlock()
	return nil
}

func (s *Session) submit(ctx context.Context, params Parameters) (*backend.SubmitResult, error) {
	if err := params.Validate(); err != nil {
		s.logger.Warn("refusing to submit invalid parameters", slog.String("error", err.Error()))
		return nil, err
	}
	if s.opts.Precheck != nil {
		if err := s.opts.Precheck(ctx, params); err != nil {
			s.logger.Info("submission rejected by precheck", slog.String("error", err.Error()))
			return nil, err
		}
	}

	var result *backend.SubmitResult
	err := s.logger.LogOperation(ctx, "submit_generation_job", func() error {
		var err error
		result, err = s.backend.SubmitGenerationJob(ctx, backend.GenerationRequest{
			Audience:       params.Audience,
			Categories:     []string{},
			Keywords:       params.Keywords,
			Niche:          params.Niche,
			Location:       params.Location,
			RequestedCount: params.RequestedCount,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("submit generation job: %w", err)
	}
	if result == nil {
		result = &backend.SubmitResult{}
	}
	return result, nil
}

// Reset stops any tracking and restarts the conversation from the first question.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.resetLocked()
}

// Close stops tracking and waits for the poller to exit. The session is unusable afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		done := s.pollDone
		s.mu.Unlock()
		waitDone(done)
		return
	}
	s.closed = true
	s.epoch++
	s.stopPollingLocked()
	done := s.pollDone
	for ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, ch)
	}
	s.mu.Unlock()

	waitDone(done)
	s.logger.Debug("session closed")
}

func waitDone(done chan struct{}) {
	if done != nil {
		<-done
	}
}

func (s *Session) resetLocked() {
	s.stopPollingLocked()
	s.epoch++

	s.phase = PhaseAsking
	s.outcome = OutcomeNone
	s.questionIndex = 0
	s.messages = []Message{}
	s.params = Parameters{}
	s.jobID = ""
	s.progress = 0
	s.statusMessage = ""
	s.leadsCount = nil

	s.appendLocked(RoleAgent, s.opts.Questions[0].Prompt)
	s.publishLocked()
}

func (s *Session) stopPollingLocked() {
	if s.cancelPoll != nil {
		s.cancelPoll()
		s.cancelPoll = nil
	}
}

func (s *Session) startPollingLocked() {
	s.stopPollingLocked()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.PollTimeout)
	ctx = logger.WithJobID(logger.WithSessionID(ctx, s.id), s.jobID)
	done := make(chan struct{})
	s.cancelPoll = cancel
	s.pollDone = done

	p := newPoller(s, s.jobID, s.epoch)
	go func() {
		defer close(done)
		defer cancel()
		p.run(ctx)
	}()
}

// applyJobState applies a poll result. It reports whether polling should stop,
// which is also the case when the result belongs to an abandoned epoch.
func (s *Session) applyJobState(epoch uint64, state JobState) bool {
	s.mu.Lock()
	if s.epoch != epoch || s.phase != PhasePolling {
		s.mu.Unlock()
		return true
	}

	switch st := state.(type) {
	case Pending:
		s.mu.Unlock()
		return false

	case InProgress:
		s.progress = st.Progress
		s.statusMessage = st.Message
		s.updateLastAgentMessageLocked(progressMessage(st))
		s.publishLocked()
		s.mu.Unlock()
		return false

	case Completed:
		s.stopPollingLocked()
		s.finishSuccessLocked(st.LeadsCount)
		comp := s.completionLocked()
		s.mu.Unlock()
		s.notifyComplete(comp)
		return true

	case Failed:
		s.stopPollingLocked()
		s.finishFailureLocked(st.Message)
		s.mu.Unlock()
		s.opts.Observer.JobFinished(string(OutcomeFailed))
		return true
	}

	s.mu.Unlock()
	return false
}

// failPolling ends tracking after a timeout or too many failed polls.
func (s *Session) failPolling(epoch uint64, reason string) {
	s.mu.Lock()
	if s.epoch != epoch || s.phase != PhasePolling {
		s.mu.Unlock()
		return
	}
	s.stopPollingLocked()
	s.finishFailureLocked(reason)
	s.mu.Unlock()
	s.opts.Observer.JobFinished("timeout")
}

func (s *Session) finishSuccessLocked(count *int) {
	s.phase = PhaseDone
	s.outcome = OutcomeSucceeded
	s.progress = 100
	s.leadsCount = count
	s.updateLastAgentMessageLocked(successMessage(count))
	s.publishLocked()
}

func (s *Session) finishFailureLocked(msg string) {
	s.phase = PhaseDone
	s.outcome = OutcomeFailed
	s.statusMessage = msg
	s.updateLastAgentMessageLocked(jobFailureMessage(msg))
	s.publishLocked()
}

func (s *Session) completionLocked() Completion {
	return Completion{
		SessionID:  s.id,
		UserID:     s.userID,
		JobID:      s.jobID,
		LeadsCount: s.leadsCount,
	}
}

func (s *Session) notifyComplete(c Completion) {
	s.opts.Observer.JobFinished(string(OutcomeSucceeded))
	s.logger.Info("lead generation completed", slog.String("job_id", c.JobID))
	if s.opts.OnComplete != nil {
		s.opts.OnComplete(c)
	}
}

// updateLastAgentMessageLocked rewrites the most recent agent message in
// place. Without an agent message it does nothing.
func (s *Session) updateLastAgentMessageLocked(content string) {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == RoleAgent {
			s.messages[i].Content = content
			s.messages[i].Timestamp = s.opts.Now()
			s.updatedAt = s.messages[i].Timestamp
			return
		}
	}
}

func (s *Session) appendLocked(role Role, content string) {
	now := s.opts.Now()
	s.messages = append(s.messages, newMessage(role, content, now))
	s.updatedAt = now
}

func isYes(text string) bool {
	return strings.Contains(strings.ToLower(text), "yes")
}

func isNo(text string) bool {
	return strings.Contains(strings.ToLower(text), "no")
}
