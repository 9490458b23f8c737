package api

import (
	"errors"
	"strings"
	"time"

	"github.com/Ademcan75/pomopro-dev/internal/domain"
	"github.com/Ademcan75/pomopro-dev/internal/stats"
)

// StartSessionRequest is the payload for POST /v1/sessions.
type StartSessionRequest struct {
	UserID     string    `json:"user_id"`
	Kind       string    `json:"kind"`
	PlannedMin int       `json:"planned_min"`
	StartedAt  time.Time `json:"started_at"`
	SessionID  string    `json:"session_id"`
	Category   string    `json:"category"`
	Notes      string    `json:"notes"`
	Source     string    `json:"source"`
}

// Validate ensures request correctness.
func (r StartSessionRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user_id is required")
	}
	if !domain.Kind(r.Kind).Valid() {
		return errors.New("kind must be focus, short_break, or long_break")
	}
	if r.PlannedMin <= 0 {
		return errors.New("planned_min must be > 0")
	}
	if strings.TrimSpace(r.Source) == "" {
		return errors.New("source is required")
	}
	return nil
}

// StartSessionResponse describes the response body for create.
type StartSessionResponse struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	Replay    bool   `json:"idempotent_replay"`
}

// SessionEventRequest applies a lifecycle event to a session.
type SessionEventRequest struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
}

// SessionView exposes full details about a session.
type SessionView struct {
	SessionID     string     `json:"session_id"`
	TenantID      string     `json:"tenant_id"`
	UserID        string     `json:"user_id"`
	Kind          string     `json:"kind"`
	State         string     `json:"state"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	PlannedMin    int        `json:"planned_min"`
	DurationSec   int        `json:"duration_sec"`
	Interruptions int        `json:"interruptions"`
	Category      string     `json:"category,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	Source        string     `json:"source"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ListSessionsResponse packages list results.
type ListSessionsResponse struct {
	Items      []SessionView `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// RemainingResponse reports the live countdown position for a session.
type RemainingResponse struct {
	SessionID        string `json:"session_id"`
	State            string `json:"state"`
	RemainingSeconds int    `json:"remaining_seconds"`
	Done             bool   `json:"done"`
}

// SyncSessionRecord is one offline session uploaded by a client.
type SyncSessionRecord struct {
	SessionID     string     `json:"session_id"`
	UserID        string     `json:"user_id"`
	Kind          string     `json:"kind"`
	State         string     `json:"state"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	PlannedMin    int        `json:"planned_min"`
	DurationSec   int        `json:"duration_sec"`
	Interruptions int        `json:"interruptions"`
	Category      string     `json:"category,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	Source        string     `json:"source"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (r SyncSessionRecord) toSession() domain.Session {
	return domain.Session{
		ID:            r.SessionID,
		UserID:        r.UserID,
		Kind:          domain.Kind(r.Kind),
		State:         domain.State(r.State),
		StartedAt:     r.StartedAt,
		EndedAt:       r.EndedAt,
		PlannedMin:    r.PlannedMin,
		DurationSec:   r.DurationSec,
		Interruptions: r.Interruptions,
		Category:      r.Category,
		Notes:         r.Notes,
		Source:        r.Source,
		UpdatedAt:     r.UpdatedAt,
	}
}

// SyncRequest is the payload for POST /v1/sync.
type SyncRequest struct {
	Sessions []SyncSessionRecord `json:"sessions"`
}

// SyncResultView reports how one uploaded record was reconciled.
type SyncResultView struct {
	SessionID string `json:"session_id"`
	Outcome   string `json:"outcome"`
	Error     string `json:"error,omitempty"`
}

// SyncResponse packages per-record sync outcomes.
type SyncResponse struct {
	Results []SyncResultView `json:"results"`
}

// DailyStatsResponse is the rollup for one calendar day.
type DailyStatsResponse struct {
	Date            string  `json:"date"`
	FocusMinutes    int     `json:"focus_minutes"`
	BreakMinutes    int     `json:"break_minutes"`
	CompletedFocus  int     `json:"completed_focus"`
	CompletedBreaks int     `json:"completed_breaks"`
	Abandoned       int     `json:"abandoned"`
	Interruptions   int     `json:"interruptions"`
	FocusScore      float64 `json:"focus_score"`
}

// WeeklyStatsResponse aggregates seven daily rollups.
type WeeklyStatsResponse struct {
	WeekStart      string               `json:"week_start"`
	FocusMinutes   int                  `json:"focus_minutes"`
	BreakMinutes   int                  `json:"break_minutes"`
	CompletedFocus int                  `json:"completed_focus"`
	Abandoned      int                  `json:"abandoned"`
	Interruptions  int                  `json:"interruptions"`
	FocusScore     float64              `json:"focus_score"`
	Days           []DailyStatsResponse `json:"days"`
}

// AchievementView is an unlocked milestone.
type AchievementView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	UnlockedAt  time.Time `json:"unlocked_at"`
}

// ProgressResponse is the derived goal and streak view.
type ProgressResponse struct {
	DailyGoalMinutes  int               `json:"daily_goal_minutes"`
	DailyGoalSessions int               `json:"daily_goal_sessions"`
	TodayFocusMinutes int               `json:"today_focus_minutes"`
	TodaySessions     int               `json:"today_sessions"`
	GoalMet           bool              `json:"goal_met"`
	CurrentStreak     int               `json:"current_streak"`
	BestStreak        int               `json:"best_streak"`
	Achievements      []AchievementView `json:"achievements"`
}

func toSessionView(session domain.Session) SessionView {
	return SessionView{
		SessionID:     session.ID,
		TenantID:      session.TenantID,
		UserID:        session.UserID,
		Kind:          string(session.Kind),
		State:         string(session.State),
		StartedAt:     session.StartedAt,
		EndedAt:       session.EndedAt,
		PlannedMin:    session.PlannedMin,
		DurationSec:   session.DurationSec,
		Interruptions: session.Interruptions,
		Category:      session.Category,
		Notes:         session.Notes,
		Source:        session.Source,
		CreatedAt:     session.CreatedAt,
		UpdatedAt:     session.UpdatedAt,
	}
}

func toDailyView(day stats.DailyStats) DailyStatsResponse {
	return DailyStatsResponse{
		Date:            day.Date.Format("2006-01-02"),
		FocusMinutes:    day.FocusMinutes,
		BreakMinutes:    day.BreakMinutes,
		CompletedFocus:  day.CompletedFocus,
		CompletedBreaks: day.CompletedBreaks,
		Abandoned:       day.Abandoned,
		Interruptions:   day.Interruptions,
		FocusScore:      day.FocusScore,
	}
}
