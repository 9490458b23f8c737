package domain

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSessionInProgress is returned when Start is called while a session is open.
	ErrSessionInProgress = errors.New("a session is already in progress")
	// ErrNoActiveSession is returned by lifecycle methods when nothing is running.
	ErrNoActiveSession = errors.New("no session in progress")
)

// TrackerOption configures optional Tracker behaviour.
type TrackerOption func(*Tracker)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

// Tracker owns the single in-progress session for one user context and the
// append-only event log that accompanies it. All lifecycle mutations flow
// through Transition, keeping the state-machine rules in one place. A Tracker
// allows at most one open session: clients must finish or abandon the current
// countdown before starting the next one.
type Tracker struct {
	mu      sync.Mutex
	current *Session
	events  []TimerEvent
	now     func() time.Time
}

// NewTracker constructs an idle Tracker.
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartInput captures the parameters for a new session.
type StartInput struct {
	Kind       Kind
	PlannedMin int
	Category   string
	Notes      string
}

// Start opens a new session and appends the start event.
func (t *Tracker) Start(input StartInput) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != nil {
		return Session{}, ErrSessionInProgress
	}
	if !input.Kind.Valid() {
		return Session{}, ErrInvalidTransition
	}

	now := t.now().UTC()
	session := Session{
		ID:            uuid.NewString(),
		Kind:          input.Kind,
		State:         StateRunning,
		StartedAt:     now,
		SpanStartedAt: now,
		PlannedMin:    input.PlannedMin,
		Category:      input.Category,
		Notes:         input.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	t.current = &session
	t.events = []TimerEvent{{SessionID: session.ID, Type: EventStart, At: now}}
	return session, nil
}

// Pause suspends the running session.
func (t *Tracker) Pause() error {
	return t.apply(EventPause)
}

// Resume continues a paused session.
func (t *Tracker) Resume() error {
	return t.apply(EventResume)
}

// Interrupt records a distraction without changing session state.
func (t *Tracker) Interrupt() error {
	return t.apply(EventInterrupt)
}

// Complete finishes the session and hands it off together with its event log.
// The tracker returns to idle regardless of how the session ended.
func (t *Tracker) Complete() (Session, []TimerEvent, error) {
	return t.finish(EventComplete)
}

// Abandon ends the session without marking it completed.
func (t *Tracker) Abandon() (Session, []TimerEvent, error) {
	return t.finish(EventAbandon)
}

// Current returns a copy of the in-progress session, if any.
func (t *Tracker) Current() (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return Session{}, false
	}
	return *t.current, true
}

// Events returns a snapshot of the event log for the in-progress session.
func (t *Tracker) Events() []TimerEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TimerEvent, len(t.events))
	copy(out, t.events)
	return out
}

func (t *Tracker) apply(typ EventType) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return ErrNoActiveSession
	}

	at := t.now().UTC()
	next, err := Transition(*t.current, typ, at)
	if err != nil {
		return err
	}

	t.current = &next
	t.events = append(t.events, TimerEvent{SessionID: next.ID, Type: typ, At: at})
	return nil
}

func (t *Tracker) finish(typ EventType) (Session, []TimerEvent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return Session{}, nil, ErrNoActiveSession
	}

	at := t.now().UTC()
	next, err := Transition(*t.current, typ, at)
	if err != nil {
		return Session{}, nil, err
	}

	events := append(t.events, TimerEvent{SessionID: next.ID, Type: typ, At: at})
	t.current = nil
	t.events = nil
	return next, events, nil
}
