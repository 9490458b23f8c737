// Package events defines the payloads published to Kafka for downstream consumers.
package events

import "time"

// SessionCompleted is emitted when a session reaches the completed state.
type SessionCompleted struct {
	SessionID     string     `json:"session_id"`
	TenantID      string     `json:"tenant_id"`
	UserID        string     `json:"user_id"`
	Kind          string     `json:"kind"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at"`
	PlannedMin    int        `json:"planned_min"`
	DurationSec   int        `json:"duration_sec"`
	Interruptions int        `json:"interruptions"`
	Source        string     `json:"source"`
}

// SessionStateChanged tracks every state transition for optimistic UI flows.
type SessionStateChanged struct {
	SessionID  string    `json:"session_id"`
	TenantID   string    `json:"tenant_id"`
	UserID     string    `json:"user_id"`
	State      string    `json:"state"`
	Event      string    `json:"event"`
	OccurredAt time.Time `json:"occurred_at"`
}
