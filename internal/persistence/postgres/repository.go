package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Ademcan75/pomopro-dev/internal/domain"
	"github.com/Ademcan75/pomopro-dev/internal/events"
	"github.com/Ademcan75/pomopro-dev/internal/observability"
)

const sessionColumns = `session_id, tenant_id, user_id, kind, state, started_at, ended_at, span_started_at, planned_min, duration_sec, interruptions, category, notes, source, created_at, updated_at`

// Repository provides Postgres-backed persistence for sessions, their event
// log, and the transactional outbox.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindByIdempotency checks if a session already exists for the supplied idempotency key.
func (r *Repository) FindByIdempotency(ctx context.Context, tenantID, userID, idempotencyKey string) (*domain.Session, error) {
	if idempotencyKey == "" {
		return nil, nil
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE tenant_id=$1 AND user_id=$2 AND idempotency_key=$3`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	session, err := scanSession(tx.QueryRow(ctx, query, tenantID, userID, idempotencyKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tx.Commit(ctx)
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return session, nil
}

// Create persists the session, its start event, and the outbox record inside
// a single transaction.
func (r *Repository) Create(ctx context.Context, session domain.Session, idempotencyKey string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", session.TenantID); err != nil {
		return err
	}

	insertSession := `INSERT INTO sessions (` + sessionColumns + `, idempotency_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`

	_, err = tx.Exec(ctx, insertSession,
		session.ID,
		session.TenantID,
		session.UserID,
		session.Kind,
		session.State,
		session.StartedAt,
		session.EndedAt,
		session.SpanStartedAt,
		session.PlannedMin,
		session.DurationSec,
		session.Interruptions,
		session.Category,
		session.Notes,
		session.Source,
		session.CreatedAt,
		session.UpdatedAt,
		nullIfEmpty(idempotencyKey),
	)
	if err != nil {
		return err
	}

	if err = insertEvent(ctx, tx, domain.TimerEvent{SessionID: session.ID, Type: domain.EventStart, At: session.StartedAt}, session.TenantID); err != nil {
		return err
	}

	if err = r.insertOutbox(ctx, tx, session, "session.state_changed", events.SessionStateChanged{
		SessionID:  session.ID,
		TenantID:   session.TenantID,
		UserID:     session.UserID,
		State:      string(session.State),
		Event:      string(domain.EventStart),
		OccurredAt: session.UpdatedAt,
	}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordSessionPersisted(session.UpdatedAt)
	return nil
}

// ApplyTransition updates the session row, appends the event, and records the
// matching outbox entries in one transaction. The update refuses to touch a
// row that has already reached a terminal state, so a transition computed
// from a stale read cannot overwrite a concurrent completion.
func (r *Repository) ApplyTransition(ctx context.Context, session domain.Session, event domain.TimerEvent) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", session.TenantID); err != nil {
		return err
	}

	const update = `UPDATE sessions
        SET state=$1, ended_at=$2, span_started_at=$3, duration_sec=$4, interruptions=$5, updated_at=$6
        WHERE tenant_id=$7 AND session_id=$8 AND state NOT IN ($9, $10)`

	tag, err := tx.Exec(ctx, update,
		session.State,
		session.EndedAt,
		session.SpanStartedAt,
		session.DurationSec,
		session.Interruptions,
		session.UpdatedAt,
		session.TenantID,
		session.ID,
		domain.StateCompleted,
		domain.StateAbandoned,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either the row never existed or it went terminal after the
		// caller's read. Look it up in the same transaction to tell.
		var state string
		lookupErr := tx.QueryRow(ctx,
			"SELECT state FROM sessions WHERE tenant_id=$1 AND session_id=$2",
			session.TenantID, session.ID,
		).Scan(&state)
		switch {
		case errors.Is(lookupErr, pgx.ErrNoRows):
			err = domain.ErrSessionNotFound
		case lookupErr != nil:
			err = lookupErr
		default:
			err = domain.ErrSessionTerminal
		}
		return err
	}

	if err = insertEvent(ctx, tx, event, session.TenantID); err != nil {
		return err
	}

	if err = r.insertOutbox(ctx, tx, session, "session.state_changed", events.SessionStateChanged{
		SessionID:  session.ID,
		TenantID:   session.TenantID,
		UserID:     session.UserID,
		State:      string(session.State),
		Event:      string(event.Type),
		OccurredAt: event.At,
	}); err != nil {
		return err
	}

	if session.State == domain.StateCompleted {
		if err = r.insertOutbox(ctx, tx, session, "session.completed", completedPayload(session)); err != nil {
			return err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}

	if session.State == domain.StateCompleted && session.EndedAt != nil {
		observability.RecordSessionCompleted(*session.EndedAt)
	}
	return nil
}

// Get retrieves a session by ID.
func (r *Repository) Get(ctx context.Context, tenantID, sessionID string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE tenant_id=$1 AND session_id=$2`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	session, err := scanSession(tx.QueryRow(ctx, query, tenantID, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err := tx.Commit(ctx); err != nil {
				return nil, err
			}
			return nil, nil
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return session, nil
}

// ListByUser returns sessions for a user ordered by start time, newest first.
func (r *Repository) ListByUser(ctx context.Context, tenantID, userID string, cursor *domain.Cursor, limit int) ([]domain.Session, *domain.Cursor, error) {
	args := []interface{}{tenantID, userID, limit}
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE tenant_id=$1 AND user_id=$2`

	if cursor != nil {
		query += ` AND (started_at, session_id) < ($4, $5)`
		args = append(args, cursor.StartedAt, cursor.ID)
	}

	query += ` ORDER BY started_at DESC, session_id DESC LIMIT $3`

	sessions, err := r.querySessions(ctx, tenantID, query, args...)
	if err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if len(sessions) == limit {
		last := sessions[len(sessions)-1]
		nextCursor = &domain.Cursor{StartedAt: last.StartedAt, ID: last.ID}
	}

	return sessions, nextCursor, nil
}

// ListInRange returns every session for a user started in [from, to),
// oldest first, for stats and progress computation.
func (r *Repository) ListInRange(ctx context.Context, tenantID, userID string, from, to time.Time) ([]domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
        WHERE tenant_id=$1 AND user_id=$2 AND started_at >= $3 AND started_at < $4
        ORDER BY started_at ASC, session_id ASC`

	return r.querySessions(ctx, tenantID, query, tenantID, userID, from, to)
}

// SyncUpsert reconciles one uploaded session record against the stored copy.
// Conflicts resolve last-write-wins on updated_at, with one exception: a
// terminal stored state is never demoted by a non-terminal client record.
func (r *Repository) SyncUpsert(ctx context.Context, session domain.Session) (domain.SyncOutcome, error) {
	var outcome domain.SyncOutcome

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return outcome, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", session.TenantID); err != nil {
		return outcome, err
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE tenant_id=$1 AND session_id=$2 FOR UPDATE`
	existing, err := scanSession(tx.QueryRow(ctx, query, session.TenantID, session.ID))
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return outcome, err
	}

	switch {
	case existing == nil:
		err = r.insertSynced(ctx, tx, session)
		outcome = domain.SyncCreated

	case existing.Terminal() && !session.Terminal():
		err = tx.Commit(ctx)
		return domain.SyncSkippedTerminal, err

	case !session.UpdatedAt.After(existing.UpdatedAt):
		err = tx.Commit(ctx)
		return domain.SyncSkippedStale, err

	default:
		err = r.updateSynced(ctx, tx, session, *existing)
		outcome = domain.SyncApplied
	}
	if err != nil {
		return outcome, err
	}

	if err = tx.Commit(ctx); err != nil {
		return outcome, err
	}
	observability.RecordSessionPersisted(session.UpdatedAt)
	return outcome, nil
}

func (r *Repository) insertSynced(ctx context.Context, tx pgx.Tx, session domain.Session) error {
	insert := `INSERT INTO sessions (` + sessionColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`

	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.SpanStartedAt.IsZero() {
		session.SpanStartedAt = session.StartedAt
	}

	if _, err := tx.Exec(ctx, insert,
		session.ID,
		session.TenantID,
		session.UserID,
		session.Kind,
		session.State,
		session.StartedAt,
		session.EndedAt,
		session.SpanStartedAt,
		session.PlannedMin,
		session.DurationSec,
		session.Interruptions,
		session.Category,
		session.Notes,
		session.Source,
		session.CreatedAt,
		session.UpdatedAt,
	); err != nil {
		return err
	}

	return r.insertSyncOutbox(ctx, tx, session)
}

func (r *Repository) updateSynced(ctx context.Context, tx pgx.Tx, session, existing domain.Session) error {
	const update = `UPDATE sessions
        SET kind=$1, state=$2, started_at=$3, ended_at=$4, span_started_at=$5, planned_min=$6,
            duration_sec=$7, interruptions=$8, category=$9, notes=$10, source=$11, updated_at=$12
        WHERE tenant_id=$13 AND session_id=$14`

	if session.SpanStartedAt.IsZero() {
		session.SpanStartedAt = session.StartedAt
	}

	if _, err := tx.Exec(ctx, update,
		session.Kind,
		session.State,
		session.StartedAt,
		session.EndedAt,
		session.SpanStartedAt,
		session.PlannedMin,
		session.DurationSec,
		session.Interruptions,
		session.Category,
		session.Notes,
		session.Source,
		session.UpdatedAt,
		session.TenantID,
		session.ID,
	); err != nil {
		return err
	}

	// Emit completed only when the sync is what finished the session.
	if session.State == domain.StateCompleted && existing.State != domain.StateCompleted {
		return r.insertSyncOutbox(ctx, tx, session)
	}
	return r.insertOutbox(ctx, tx, session, "session.state_changed", events.SessionStateChanged{
		SessionID:  session.ID,
		TenantID:   session.TenantID,
		UserID:     session.UserID,
		State:      string(session.State),
		Event:      "sync",
		OccurredAt: session.UpdatedAt,
	})
}

func (r *Repository) insertSyncOutbox(ctx context.Context, tx pgx.Tx, session domain.Session) error {
	if err := r.insertOutbox(ctx, tx, session, "session.state_changed", events.SessionStateChanged{
		SessionID:  session.ID,
		TenantID:   session.TenantID,
		UserID:     session.UserID,
		State:      string(session.State),
		Event:      "sync",
		OccurredAt: session.UpdatedAt,
	}); err != nil {
		return err
	}

	if session.State == domain.StateCompleted {
		return r.insertOutbox(ctx, tx, session, "session.completed", completedPayload(session))
	}
	return nil
}

func (r *Repository) querySessions(ctx context.Context, tenantID, query string, args ...interface{}) ([]domain.Session, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, session domain.Session, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta := eventCatalog[eventType]
	if meta.Topic == "" {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	partitionKey := meta.PartitionKeyFn(session)
	dedupeKey := fmt.Sprintf("%s:%s:%d", session.ID, eventType, session.UpdatedAt.UnixNano())

	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		session.TenantID,
		"session",
		session.ID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		dedupeKey,
	)
	return err
}

func insertEvent(ctx context.Context, tx pgx.Tx, event domain.TimerEvent, tenantID string) error {
	const stmt = `INSERT INTO session_events (tenant_id, session_id, event_type, occurred_at)
        VALUES ($1,$2,$3,$4)`
	_, err := tx.Exec(ctx, stmt, tenantID, event.SessionID, event.Type, event.At)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var s domain.Session
	if err := row.Scan(
		&s.ID,
		&s.TenantID,
		&s.UserID,
		&s.Kind,
		&s.State,
		&s.StartedAt,
		&s.EndedAt,
		&s.SpanStartedAt,
		&s.PlannedMin,
		&s.DurationSec,
		&s.Interruptions,
		&s.Category,
		&s.Notes,
		&s.Source,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}

func completedPayload(session domain.Session) events.SessionCompleted {
	return events.SessionCompleted{
		SessionID:     session.ID,
		TenantID:      session.TenantID,
		UserID:        session.UserID,
		Kind:          string(session.Kind),
		StartedAt:     session.StartedAt,
		EndedAt:       session.EndedAt,
		PlannedMin:    session.PlannedMin,
		DurationSec:   session.DurationSec,
		Interruptions: session.Interruptions,
		Source:        session.Source,
	}
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(domain.Session) string
}

var eventCatalog = map[string]EventMetadata{
	"session.completed": {
		Topic:         "session_events",
		SchemaSubject: "session_events-value",
		PartitionKeyFn: func(s domain.Session) string {
			return fmt.Sprintf("%s:%s", s.TenantID, s.UserID)
		},
	},
	"session.state_changed": {
		Topic:         "session_state_changed",
		SchemaSubject: "session_state_changed-value",
		PartitionKeyFn: func(s domain.Session) string {
			return s.ID
		},
	},
}
