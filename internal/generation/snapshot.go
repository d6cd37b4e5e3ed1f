package generation

import "time"

// Snapshot is a copy of a session's observable state.
type Snapshot struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id,omitempty"`
	Phase           Phase      `json:"phase"`
	Outcome         Outcome    `json:"outcome,omitempty"`
	QuestionIndex   int        `json:"question_index"`
	CurrentQuestion string     `json:"current_question,omitempty"`
	Messages        []Message  `json:"messages"`
	Parameters      Parameters `json:"parameters"`
	JobID           string     `json:"job_id,omitempty"`
	Progress        int        `json:"progress"`
	StatusMessage   string     `json:"status_message,omitempty"`
	LeadsCount      *int       `json:"leads_count,omitempty"`
	Generating      bool       `json:"generating"`
	Complete        bool       `json:"complete"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// activity returns the phase and the time of the last transcript change.
func (s *Session) activity() (Phase, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase, s.updatedAt
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:            s.id,
		UserID:        s.userID,
		Phase:         s.phase,
		Outcome:       s.outcome,
		QuestionIndex: s.questionIndex,
		Messages:      append([]Message{}, s.messages...),
		Parameters:    s.params,
		JobID:         s.jobID,
		Progress:      s.progress,
		StatusMessage: s.statusMessage,
		Generating:    s.phase == PhaseSubmitting || s.phase == PhasePolling,
		Complete:      s.phase == PhaseDone && s.outcome == OutcomeSucceeded,
		CreatedAt:     s.createdAt,
		UpdatedAt:     s.updatedAt,
	}
	snap.Parameters.Keywords = append([]string(nil), s.params.Keywords...)
	if s.leadsCount != nil {
		n := *s.leadsCount
		snap.LeadsCount = &n
	}
	if s.phase == PhaseAsking && s.questionIndex >= 0 {
		snap.CurrentQuestion = s.opts.Questions[s.questionIndex].Prompt
	}
	return snap
}

// Subscribe returns a channel receiving a snapshot after every change, and a
// function that cancels the subscription. The channel is closed by either.
// Slow subscribers miss intermediate snapshots.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 16)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
	}
}

func (s *Session) publishLocked() {
	if len(s.subscribers) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
}
