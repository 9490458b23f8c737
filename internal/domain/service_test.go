package domain

import (
	"context"
	"testing"
	"time"
)

type fakeRepo struct {
	sessions map[string]*Session
	created  []Session
	applied  []TimerEvent
	outcomes map[string]SyncOutcome
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		sessions: make(map[string]*Session),
		outcomes: make(map[string]SyncOutcome),
	}
}

func (f *fakeRepo) FindByIdempotency(ctx context.Context, tenantID, userID, idempotencyKey string) (*Session, error) {
	if idempotencyKey == "" {
		return nil, nil
	}
	for _, s := range f.sessions {
		if s.TenantID == tenantID && s.UserID == userID {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) Create(ctx context.Context, session Session, idempotencyKey string) error {
	copied := session
	f.sessions[session.ID] = &copied
	f.created = append(f.created, session)
	return nil
}

func (f *fakeRepo) Get(ctx context.Context, tenantID, sessionID string) (*Session, error) {
	s, ok := f.sessions[sessionID]
	if !ok || s.TenantID != tenantID {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (f *fakeRepo) ListByUser(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]Session, *Cursor, error) {
	return nil, nil, nil
}

func (f *fakeRepo) ListInRange(ctx context.Context, tenantID, userID string, from, to time.Time) ([]Session, error) {
	return nil, nil
}

func (f *fakeRepo) ApplyTransition(ctx context.Context, session Session, event TimerEvent) error {
	copied := session
	f.sessions[session.ID] = &copied
	f.applied = append(f.applied, event)
	return nil
}

func (f *fakeRepo) SyncUpsert(ctx context.Context, session Session) (SyncOutcome, error) {
	if outcome, ok := f.outcomes[session.ID]; ok {
		return outcome, nil
	}
	return SyncCreated, nil
}

func TestStartSessionAllocatesID(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2025, time.November, 3, 9, 0, 0, 0, time.UTC)
	svc := NewService(repo, WithServiceClock(func() time.Time { return now }))

	session, replayed, err := svc.StartSession(context.Background(), StartSessionInput{
		TenantID:   "tenant-1",
		UserID:     "user-1",
		Kind:       KindFocus,
		PlannedMin: 25,
		Source:     "api",
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if replayed {
		t.Fatal("fresh session must not be flagged as replay")
	}
	if session.ID == "" {
		t.Fatal("expected server-generated session id")
	}
	if session.State != StateRunning {
		t.Fatalf("expected running, got %s", session.State)
	}
	if !session.StartedAt.Equal(now) {
		t.Fatalf("expected started_at defaulted to now, got %v", session.StartedAt)
	}
	if !session.SpanStartedAt.Equal(session.StartedAt) {
		t.Fatal("span marker must align with started_at")
	}
}

func TestStartSessionHonoursClientID(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	session, _, err := svc.StartSession(context.Background(), StartSessionInput{
		TenantID:  "tenant-1",
		UserID:    "user-1",
		Kind:      KindFocus,
		SessionID: "client-chosen-id",
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if session.ID != "client-chosen-id" {
		t.Fatalf("expected client id preserved, got %s", session.ID)
	}
}

func TestStartSessionIdempotentReplay(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	first, _, err := svc.StartSession(context.Background(), StartSessionInput{
		TenantID:       "tenant-1",
		UserID:         "user-1",
		Kind:           KindFocus,
		IdempotencyKey: "key-1",
	})
	if err != nil {
		t.Fatalf("first start: %v", err)
	}

	second, replayed, err := svc.StartSession(context.Background(), StartSessionInput{
		TenantID:       "tenant-1",
		UserID:         "user-1",
		Kind:           KindFocus,
		IdempotencyKey: "key-1",
	})
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if !replayed {
		t.Fatal("expected replay for repeated idempotency key")
	}
	if second.ID != first.ID {
		t.Fatalf("replay returned a different session: %s vs %s", second.ID, first.ID)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected a single create, got %d", len(repo.created))
	}
}

func TestStartSessionRejectsUnknownKind(t *testing.T) {
	svc := NewService(newFakeRepo())
	_, _, err := svc.StartSession(context.Background(), StartSessionInput{
		TenantID: "tenant-1",
		UserID:   "user-1",
		Kind:     Kind("standup"),
	})
	if err != ErrValidation {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestApplyEventAdvancesSession(t *testing.T) {
	repo := newFakeRepo()
	start := time.Date(2025, time.November, 3, 9, 0, 0, 0, time.UTC)
	repo.sessions["sess-1"] = &Session{
		ID:            "sess-1",
		TenantID:      "tenant-1",
		UserID:        "user-1",
		Kind:          KindFocus,
		State:         StateRunning,
		StartedAt:     start,
		SpanStartedAt: start,
		PlannedMin:    25,
	}
	svc := NewService(repo)

	session, err := svc.ApplyEvent(context.Background(), "tenant-1", "sess-1", EventComplete, start.Add(25*time.Minute))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if session.State != StateCompleted {
		t.Fatalf("expected completed, got %s", session.State)
	}
	if len(repo.applied) != 1 || repo.applied[0].Type != EventComplete {
		t.Fatalf("transition event not recorded: %+v", repo.applied)
	}
}

func TestApplyEventUnknownSession(t *testing.T) {
	svc := NewService(newFakeRepo())
	_, err := svc.ApplyEvent(context.Background(), "tenant-1", "missing", EventPause, time.Now())
	if err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSyncSessionsReportsPerRecordOutcomes(t *testing.T) {
	repo := newFakeRepo()
	repo.outcomes["stale"] = SyncSkippedStale
	repo.outcomes["done"] = SyncSkippedTerminal
	svc := NewService(repo)

	start := time.Date(2025, time.November, 3, 9, 0, 0, 0, time.UTC)
	records := []Session{
		{ID: "new", UserID: "user-1", Kind: KindFocus, State: StateCompleted, StartedAt: start, UpdatedAt: start},
		{ID: "stale", UserID: "user-1", Kind: KindFocus, State: StateRunning, StartedAt: start, UpdatedAt: start},
		{ID: "done", UserID: "user-1", Kind: KindFocus, State: StateRunning, StartedAt: start, UpdatedAt: start},
		{ID: "", UserID: "user-1", Kind: KindFocus, StartedAt: start},
	}

	results, err := svc.SyncSessions(context.Background(), "tenant-1", records)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if results[0].Outcome != SyncCreated {
		t.Fatalf("record 0: expected created, got %s", results[0].Outcome)
	}
	if results[1].Outcome != SyncSkippedStale {
		t.Fatalf("record 1: expected skipped_stale, got %s", results[1].Outcome)
	}
	if results[2].Outcome != SyncSkippedTerminal {
		t.Fatalf("record 2: expected skipped_terminal, got %s", results[2].Outcome)
	}
	if results[3].Error == "" {
		t.Fatal("record 3: expected validation error for missing id")
	}
}

func TestValidateSyncRecord(t *testing.T) {
	start := time.Date(2025, time.November, 3, 9, 0, 0, 0, time.UTC)
	before := start.Add(-time.Minute)

	cases := []struct {
		name    string
		record  Session
		wantErr bool
	}{
		{"valid", Session{ID: "a", UserID: "u", Kind: KindFocus, StartedAt: start}, false},
		{"missing user", Session{ID: "a", Kind: KindFocus, StartedAt: start}, true},
		{"bad kind", Session{ID: "a", UserID: "u", Kind: Kind("x"), StartedAt: start}, true},
		{"zero start", Session{ID: "a", UserID: "u", Kind: KindFocus}, true},
		{"ended before start", Session{ID: "a", UserID: "u", Kind: KindFocus, StartedAt: start, EndedAt: &before}, true},
		{"negative duration", Session{ID: "a", UserID: "u", Kind: KindFocus, StartedAt: start, DurationSec: -1}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateSyncRecord(tc.record)
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
