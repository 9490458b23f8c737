package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSessionNotFound is returned when a session cannot be located.
	ErrSessionNotFound = errors.New("session not found")
	// ErrValidation indicates a malformed session payload.
	ErrValidation = errors.New("invalid session payload")
)

// SyncOutcome describes how a synced record was reconciled against the store.
type SyncOutcome string

const (
	// SyncCreated means the record did not exist and was inserted.
	SyncCreated SyncOutcome = "created"
	// SyncApplied means the record was newer and replaced the stored copy.
	SyncApplied SyncOutcome = "applied"
	// SyncSkippedStale means the stored copy was newer and was kept.
	SyncSkippedStale SyncOutcome = "skipped_stale"
	// SyncSkippedTerminal means a terminal stored state was protected from demotion.
	SyncSkippedTerminal SyncOutcome = "skipped_terminal"
)

// Cursor models the keyset pagination token.
type Cursor struct {
	StartedAt time.Time
	ID        string
}

// SessionRepository captures persistence operations.
type SessionRepository interface {
	FindByIdempotency(ctx context.Context, tenantID, userID, idempotencyKey string) (*Session, error)
	Create(ctx context.Context, session Session, idempotencyKey string) error
	Get(ctx context.Context, tenantID, sessionID string) (*Session, error)
	ListByUser(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]Session, *Cursor, error)
	ListInRange(ctx context.Context, tenantID, userID string, from, to time.Time) ([]Session, error)
	ApplyTransition(ctx context.Context, session Session, event TimerEvent) error
	SyncUpsert(ctx context.Context, session Session) (SyncOutcome, error)
}

// ServiceOption configures optional Service behaviour.
type ServiceOption func(*Service)

// WithServiceClock overrides the time source, used by tests.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// Service orchestrates session workflows.
type Service struct {
	repo SessionRepository
	now  func() time.Time
}

// NewService constructs a Service.
func NewService(repo SessionRepository, opts ...ServiceOption) *Service {
	s := &Service{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartSessionInput captures the payload from the API layer.
type StartSessionInput struct {
	TenantID   string
	UserID     string
	Kind       Kind
	PlannedMin int
	StartedAt  time.Time
	// SessionID may carry a client-generated identifier so offline-first
	// clients keep a stable merge key; blank means the server allocates one.
	SessionID      string
	Category       string
	Notes          string
	Source         string
	IdempotencyKey string
}

// StartSession handles idempotent create semantics and event log recording.
func (s *Service) StartSession(ctx context.Context, input StartSessionInput) (*Session, bool, error) {
	if !input.Kind.Valid() {
		return nil, false, ErrValidation
	}

	if existing, err := s.repo.FindByIdempotency(ctx, input.TenantID, input.UserID, input.IdempotencyKey); err == nil && existing != nil {
		return existing, true, nil
	}

	now := s.now().UTC()
	startedAt := input.StartedAt.UTC()
	if input.StartedAt.IsZero() {
		startedAt = now
	}

	id := strings.TrimSpace(input.SessionID)
	if id == "" {
		id = uuid.NewString()
	}

	session := Session{
		ID:            id,
		TenantID:      input.TenantID,
		UserID:        input.UserID,
		Kind:          input.Kind,
		State:         StateRunning,
		StartedAt:     startedAt,
		SpanStartedAt: startedAt,
		PlannedMin:    input.PlannedMin,
		Category:      input.Category,
		Notes:         input.Notes,
		Source:        input.Source,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Create(ctx, session, input.IdempotencyKey); err != nil {
		return nil, false, err
	}

	return &session, false, nil
}

// ApplyEvent advances the session state machine and records the event.
func (s *Service) ApplyEvent(ctx context.Context, tenantID, sessionID string, typ EventType, at time.Time) (*Session, error) {
	current, err := s.repo.Get(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrSessionNotFound
	}

	if at.IsZero() {
		at = s.now()
	}

	next, err := Transition(*current, typ, at)
	if err != nil {
		return nil, err
	}

	event := TimerEvent{SessionID: next.ID, Type: typ, At: at.UTC()}
	if err := s.repo.ApplyTransition(ctx, next, event); err != nil {
		return nil, err
	}

	return &next, nil
}

// GetSession fetches by ID.
func (s *Service) GetSession(ctx context.Context, tenantID, sessionID string) (*Session, error) {
	session, err := s.repo.Get(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// ListSessionsByUser fetches sessions with cursor pagination.
func (s *Service) ListSessionsByUser(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]Session, *Cursor, error) {
	return s.repo.ListByUser(ctx, tenantID, userID, cursor, limit)
}

// SessionsInRange fetches every session for a user whose start falls in [from, to).
func (s *Service) SessionsInRange(ctx context.Context, tenantID, userID string, from, to time.Time) ([]Session, error) {
	return s.repo.ListInRange(ctx, tenantID, userID, from, to)
}

// SyncResult reports how one uploaded record was reconciled.
type SyncResult struct {
	SessionID string
	Outcome   SyncOutcome
	Error     string
}

// SyncSessions reconciles a batch of offline session records against the
// store. Each record is handled independently so one bad entry does not fail
// the batch; per-record outcomes are reported back to the client.
func (s *Service) SyncSessions(ctx context.Context, tenantID string, records []Session) ([]SyncResult, error) {
	results := make([]SyncResult, 0, len(records))

	for _, record := range records {
		result := SyncResult{SessionID: record.ID}

		if err := validateSyncRecord(record); err != nil {
			result.Error = err.Error()
			results = append(results, result)
			continue
		}

		record.TenantID = tenantID
		if record.UpdatedAt.IsZero() {
			record.UpdatedAt = s.now().UTC()
		}

		outcome, err := s.repo.SyncUpsert(ctx, record)
		if err != nil {
			result.Error = err.Error()
			results = append(results, result)
			continue
		}

		result.Outcome = outcome
		results = append(results, result)
	}

	return results, nil
}

func validateSyncRecord(record Session) error {
	if strings.TrimSpace(record.ID) == "" {
		return errors.New("session id is required")
	}
	if strings.TrimSpace(record.UserID) == "" {
		return errors.New("user id is required")
	}
	if !record.Kind.Valid() {
		return errors.New("unknown session kind")
	}
	if record.StartedAt.IsZero() {
		return errors.New("started_at is required")
	}
	if record.EndedAt != nil && record.EndedAt.Before(record.StartedAt) {
		return errors.New("ended_at precedes started_at")
	}
	if record.DurationSec < 0 || record.Interruptions < 0 {
		return errors.New("negative counters are not allowed")
	}
	return nil
}
