// Package api exposes HTTP handlers for the session service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Ademcan75/pomopro-dev/internal/auth"
	"github.com/Ademcan75/pomopro-dev/internal/domain"
	"github.com/Ademcan75/pomopro-dev/internal/observability"
	"github.com/Ademcan75/pomopro-dev/internal/persistence"
	"github.com/Ademcan75/pomopro-dev/internal/progress"
	"github.com/Ademcan75/pomopro-dev/internal/stats"
	"github.com/Ademcan75/pomopro-dev/internal/timer"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/sessions", h.sessions)
	mux.HandleFunc("/v1/sessions/", h.sessionSubresource)
	mux.HandleFunc("/v1/sync", h.sync)
	mux.HandleFunc("/v1/stats/daily", h.dailyStats)
	mux.HandleFunc("/v1/stats/weekly", h.weeklyStats)
	mux.HandleFunc("/v1/progress", h.progress)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) sessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.startSession(w, r)
	case http.MethodGet:
		h.listSessions(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) sessionSubresource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	if rest == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing session id")
		return
	}

	id, sub, _ := strings.Cut(rest, "/")
	switch {
	case sub == "" && r.Method == http.MethodGet:
		h.getSession(w, r, id)
	case sub == "events" && r.Method == http.MethodPost:
		h.applyEvent(w, r, id)
	case sub == "remaining" && r.Method == http.MethodGet:
		h.remaining(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeSessionsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope sessions:write required")
		return
	}

	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")

	session, replay, err := h.service.StartSession(r.Context(), domain.StartSessionInput{
		TenantID:       claims.TenantID,
		UserID:         req.UserID,
		Kind:           domain.Kind(req.Kind),
		PlannedMin:     req.PlannedMin,
		StartedAt:      req.StartedAt,
		SessionID:      req.SessionID,
		Category:       req.Category,
		Notes:          req.Notes,
		Source:         req.Source,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := StartSessionResponse{
		SessionID: session.ID,
		State:     string(session.State),
		Replay:    replay,
	}

	status := http.StatusCreated
	if replay {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := h.requireRead(w, r)
	if !ok {
		return
	}

	session, err := h.service.GetSession(r.Context(), claims.TenantID, id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toSessionView(*session))
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireRead(w, r)
	if !ok {
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	sessions, next, err := h.service.ListSessionsByUser(r.Context(), claims.TenantID, userID, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		items = append(items, toSessionView(session))
	}

	writeJSON(w, http.StatusOK, ListSessionsResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) applyEvent(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeSessionsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope sessions:write required")
		return
	}

	var req SessionEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	typ := domain.EventType(req.Type)
	switch typ {
	case domain.EventPause, domain.EventResume, domain.EventInterrupt, domain.EventComplete, domain.EventAbandon:
	default:
		writeError(w, http.StatusBadRequest, "validation_failed", "unknown event type")
		return
	}

	session, err := h.service.ApplyEvent(r.Context(), claims.TenantID, id, typ, req.At)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "not_found", "session not found")
		case errors.Is(err, domain.ErrSessionTerminal):
			writeError(w, http.StatusConflict, "session_terminal", "session already finished")
		case errors.Is(err, domain.ErrInvalidTransition):
			writeError(w, http.StatusConflict, "invalid_transition", "event not allowed in current state")
		case errors.Is(err, domain.ErrEventBeforeStart):
			writeError(w, http.StatusBadRequest, "validation_failed", "event timestamp precedes session start")
		default:
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, toSessionView(*session))
}

func (h *Handler) remaining(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := h.requireRead(w, r)
	if !ok {
		return
	}

	session, err := h.service.GetSession(r.Context(), claims.TenantID, id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	planned := time.Duration(session.PlannedMin) * time.Minute
	accrued := time.Duration(session.DurationSec) * time.Second

	var runningSince time.Time
	if session.State == domain.StateRunning {
		runningSince = session.SpanStartedAt
	}

	var remaining time.Duration
	if !session.Terminal() {
		remaining = timer.Reconstruct(planned, accrued, runningSince).Remaining()
	}

	writeJSON(w, http.StatusOK, RemainingResponse{
		SessionID:        session.ID,
		State:            string(session.State),
		RemainingSeconds: int(remaining / time.Second),
		Done:             session.Terminal() || remaining == 0,
	})
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeSessionsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope sessions:write required")
		return
	}

	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if len(req.Sessions) == 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "sessions list is empty")
		return
	}

	records := make([]domain.Session, 0, len(req.Sessions))
	for _, item := range req.Sessions {
		records = append(records, item.toSession())
	}

	results, err := h.service.SyncSessions(r.Context(), claims.TenantID, records)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := SyncResponse{Results: make([]SyncResultView, 0, len(results))}
	for _, result := range results {
		outcome := string(result.Outcome)
		if result.Error != "" {
			outcome = "rejected"
		}
		observability.RecordSyncOutcome(outcome)
		resp.Results = append(resp.Results, SyncResultView{
			SessionID: result.SessionID,
			Outcome:   outcome,
			Error:     result.Error,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) dailyStats(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireRead(w, r)
	if !ok {
		return
	}

	userID := r.URL.Query().Get("user_id")
	if strings.TrimSpace(userID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}

	day := time.Now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "invalid date, want YYYY-MM-DD")
			return
		}
		day = parsed
	}

	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	sessions, err := h.service.SessionsInRange(r.Context(), claims.TenantID, userID, from, from.AddDate(0, 0, 1))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toDailyView(stats.Daily(sessions, from)))
}

func (h *Handler) weeklyStats(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireRead(w, r)
	if !ok {
		return
	}

	userID := r.URL.Query().Get("user_id")
	if strings.TrimSpace(userID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}

	weekStart := startOfWeek(time.Now().UTC())
	if raw := r.URL.Query().Get("week_start"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "invalid week_start, want YYYY-MM-DD")
			return
		}
		weekStart = parsed
	}

	sessions, err := h.service.SessionsInRange(r.Context(), claims.TenantID, userID, weekStart, weekStart.AddDate(0, 0, 7))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	weekly := stats.Weekly(sessions, weekStart)
	resp := WeeklyStatsResponse{
		WeekStart:      weekly.WeekStart.Format("2006-01-02"),
		FocusMinutes:   weekly.FocusMinutes,
		BreakMinutes:   weekly.BreakMinutes,
		CompletedFocus: weekly.CompletedFocus,
		Abandoned:      weekly.Abandoned,
		Interruptions:  weekly.Interruptions,
		FocusScore:     weekly.FocusScore,
		Days:           make([]DailyStatsResponse, 0, len(weekly.Days)),
	}
	for _, day := range weekly.Days {
		resp.Days = append(resp.Days, toDailyView(day))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) progress(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireRead(w, r)
	if !ok {
		return
	}

	userID := r.URL.Query().Get("user_id")
	if strings.TrimSpace(userID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}

	goal := progress.Goal{}
	if raw := r.URL.Query().Get("goal_minutes"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			goal.DailyFocusMinutes = parsed
		}
	}
	if raw := r.URL.Query().Get("goal_sessions"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			goal.DailySessions = parsed
		}
	}

	now := time.Now().UTC()
	from := now.AddDate(0, 0, -progressWindowDays)
	sessions, err := h.service.SessionsInRange(r.Context(), claims.TenantID, userID, from, now.AddDate(0, 0, 1))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	report := progress.Evaluate(sessions, goal, now)

	resp := ProgressResponse{
		DailyGoalMinutes:  report.Goal.DailyFocusMinutes,
		DailyGoalSessions: report.Goal.DailySessions,
		TodayFocusMinutes: report.TodayFocusMinutes,
		TodaySessions:     report.TodaySessions,
		GoalMet:           report.GoalMet,
		CurrentStreak:     report.CurrentStreak,
		BestStreak:        report.BestStreak,
		Achievements:      make([]AchievementView, 0, len(report.Achievements)),
	}
	for _, a := range report.Achievements {
		resp.Achievements = append(resp.Achievements, AchievementView{
			ID:          a.ID,
			Name:        a.Name,
			Description: a.Description,
			UnlockedAt:  a.UnlockedAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// progressWindowDays bounds how far back streaks and achievements look.
const progressWindowDays = 90

func (h *Handler) requireRead(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(auth.ScopeSessionsRead) && !claims.HasScope(auth.ScopeSessionsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope sessions:read required")
		return nil, false
	}
	return claims, true
}

func startOfWeek(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	weekday := (int(day.Weekday()) + 6) % 7 // Monday-based week
	return day.AddDate(0, 0, -weekday)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
