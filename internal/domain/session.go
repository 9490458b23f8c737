// Package domain defines the session model and business logic for the pomodoro service.
package domain

import (
	"errors"
	"time"
)

// Kind classifies what a countdown was for.
type Kind string

const (
	KindFocus      Kind = "focus"
	KindShortBreak Kind = "short_break"
	KindLongBreak  Kind = "long_break"
)

// Valid reports whether the kind is one of the known values.
func (k Kind) Valid() bool {
	switch k {
	case KindFocus, KindShortBreak, KindLongBreak:
		return true
	}
	return false
}

// IsBreak reports whether the kind counts toward break time.
func (k Kind) IsBreak() bool {
	return k == KindShortBreak || k == KindLongBreak
}

// State represents the lifecycle position of a session.
type State string

const (
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateAbandoned State = "abandoned"
)

// EventType identifies an entry in the append-only timer event log.
type EventType string

const (
	EventStart     EventType = "start"
	EventPause     EventType = "pause"
	EventResume    EventType = "resume"
	EventInterrupt EventType = "interrupt"
	EventComplete  EventType = "complete"
	EventAbandon   EventType = "abandon"
)

var (
	// ErrSessionTerminal indicates an event targeted an already finished session.
	ErrSessionTerminal = errors.New("session already reached a terminal state")
	// ErrInvalidTransition indicates the event is not legal in the current state.
	ErrInvalidTransition = errors.New("invalid session state transition")
	// ErrEventBeforeStart indicates an event timestamp preceding the session start.
	ErrEventBeforeStart = errors.New("event timestamp precedes session start")
)

// Session is the aggregate stored in Postgres and replayed to downstream stores.
type Session struct {
	ID        string
	TenantID  string
	UserID    string
	Kind      Kind
	State     State
	StartedAt time.Time
	EndedAt   *time.Time
	// SpanStartedAt marks the beginning of the current running span. It is
	// advanced on every resume and carries no meaning while paused or terminal.
	SpanStartedAt time.Time
	PlannedMin    int
	// DurationSec accumulates actual running time, excluding paused spans.
	DurationSec   int
	Interruptions int
	Category      string
	Notes         string
	Source        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Terminal reports whether the session can no longer transition.
func (s Session) Terminal() bool {
	return s.State == StateCompleted || s.State == StateAbandoned
}

// TimerEvent is an entry in the append-only session event log.
type TimerEvent struct {
	SessionID string
	Type      EventType
	At        time.Time
}

// Transition applies an event to a session and returns the resulting session.
// It is a pure function: the input session is never mutated. Running time is
// accumulated from wall-clock deltas between span boundaries, so an event
// arriving late (device sleep, backgrounded tab) still yields the correct
// duration. Negative spans caused by clock skew are clamped to zero.
func Transition(s Session, typ EventType, at time.Time) (Session, error) {
	if s.Terminal() {
		return s, ErrSessionTerminal
	}
	if at.Before(s.StartedAt) {
		return s, ErrEventBeforeStart
	}

	at = at.UTC()

	switch typ {
	case EventPause:
		if s.State != StateRunning {
			return s, ErrInvalidTransition
		}
		s.DurationSec += spanSeconds(s.SpanStartedAt, at)
		s.State = StatePaused

	case EventResume:
		if s.State != StatePaused {
			return s, ErrInvalidTransition
		}
		s.SpanStartedAt = at
		s.State = StateRunning

	case EventInterrupt:
		// Counter-only self-transition: state is deliberately untouched.
		s.Interruptions++

	case EventComplete:
		if s.State == StateRunning {
			s.DurationSec += spanSeconds(s.SpanStartedAt, at)
		}
		ended := at
		s.EndedAt = &ended
		s.State = StateCompleted

	case EventAbandon:
		if s.State == StateRunning {
			s.DurationSec += spanSeconds(s.SpanStartedAt, at)
		}
		ended := at
		s.EndedAt = &ended
		s.State = StateAbandoned

	default:
		return s, ErrInvalidTransition
	}

	s.UpdatedAt = at
	return s, nil
}

func spanSeconds(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	return int(to.Sub(from) / time.Second)
}
