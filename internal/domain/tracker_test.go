package domain

import (
	"errors"
	"testing"
	"time"
)

// fakeClock steps a deterministic timeline for tracker tests.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestTrackerLifecycle(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, time.November, 3, 9, 0, 0, 0, time.UTC)}
	tracker := NewTracker(WithClock(clock.Now))

	session, err := tracker.Start(StartInput{Kind: KindFocus, PlannedMin: 25, Category: "writing"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if session.State != StateRunning {
		t.Fatalf("expected running, got %s", session.State)
	}

	clock.Advance(10 * time.Minute)
	if err := tracker.Interrupt(); err != nil {
		t.Fatalf("interrupt: %v", err)
	}

	clock.Advance(15 * time.Minute)
	done, events, err := tracker.Complete()
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	if done.State != StateCompleted {
		t.Fatalf("expected completed, got %s", done.State)
	}
	if done.DurationSec != 25*60 {
		t.Fatalf("expected 1500s, got %d", done.DurationSec)
	}
	if done.Interruptions != 1 {
		t.Fatalf("expected 1 interruption, got %d", done.Interruptions)
	}

	wantEvents := []EventType{EventStart, EventInterrupt, EventComplete}
	if len(events) != len(wantEvents) {
		t.Fatalf("expected %d events, got %d", len(wantEvents), len(events))
	}
	for i, typ := range wantEvents {
		if events[i].Type != typ {
			t.Fatalf("event %d: expected %s got %s", i, typ, events[i].Type)
		}
		if events[i].SessionID != done.ID {
			t.Fatalf("event %d carries wrong session id %s", i, events[i].SessionID)
		}
	}

	if _, ok := tracker.Current(); ok {
		t.Fatal("tracker should be idle after complete")
	}
}

func TestTrackerPauseResume(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, time.November, 3, 9, 0, 0, 0, time.UTC)}
	tracker := NewTracker(WithClock(clock.Now))

	if _, err := tracker.Start(StartInput{Kind: KindFocus, PlannedMin: 25}); err != nil {
		t.Fatalf("start: %v", err)
	}

	clock.Advance(5 * time.Minute)
	if err := tracker.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := tracker.Pause(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double pause should fail, got %v", err)
	}

	clock.Advance(30 * time.Minute)
	if err := tracker.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}

	clock.Advance(20 * time.Minute)
	done, _, err := tracker.Abandon()
	if err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if done.State != StateAbandoned {
		t.Fatalf("expected abandoned, got %s", done.State)
	}
	if done.DurationSec != 25*60 {
		t.Fatalf("expected only running spans counted, got %d", done.DurationSec)
	}
}

func TestTrackerSingleActiveSession(t *testing.T) {
	tracker := NewTracker()
	if _, err := tracker.Start(StartInput{Kind: KindFocus, PlannedMin: 25}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := tracker.Start(StartInput{Kind: KindShortBreak, PlannedMin: 5}); !errors.Is(err, ErrSessionInProgress) {
		t.Fatalf("expected ErrSessionInProgress, got %v", err)
	}
}

func TestTrackerIdleErrors(t *testing.T) {
	tracker := NewTracker()

	if err := tracker.Pause(); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("pause: expected ErrNoActiveSession, got %v", err)
	}
	if _, _, err := tracker.Complete(); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("complete: expected ErrNoActiveSession, got %v", err)
	}
}

func TestTrackerRejectsUnknownKind(t *testing.T) {
	tracker := NewTracker()
	if _, err := tracker.Start(StartInput{Kind: Kind("nap"), PlannedMin: 10}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}
