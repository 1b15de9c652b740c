// Package handler provides HTTP handlers for the status API. Handlers read
// the ledger, event log and last batch report directly; there is no service
// layer.
package handler

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/albapepper/achievement-watch/internal/api/respond"
	"github.com/albapepper/achievement-watch/internal/eventlog"
	"github.com/albapepper/achievement-watch/internal/ledger"
	"github.com/albapepper/achievement-watch/internal/pipeline"
)

const (
	defaultLeaderboardLimit = 25
	maxLeaderboardLimit     = 100
)

var weekPattern = regexp.MustCompile(`^\d{4}-W\d{2}$`)

// Pinger reports database reachability. db.Pool implements it.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// RecordReader reads ledger records. ledger.Ledger implements it.
type RecordReader interface {
	Get(ctx context.Context, key ledger.Key) (*ledger.Record, error)
}

// RunSource exposes the most recent batch report. pipeline.Pipeline
// implements it.
type RunSource interface {
	LastReport() *pipeline.BatchReport
}

// Deps are the handler collaborators. DB and Events may be nil.
type Deps struct {
	DB     Pinger
	Ledger RecordReader
	Events eventlog.Log
	Runs   RunSource
	Now    func() time.Time
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	deps Deps
}

// New creates a Handler with shared dependencies.
func New(deps Deps) *Handler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Handler{deps: deps}
}

func (h *Handler) timestamp() string {
	return h.deps.Now().UTC().Format(time.RFC3339)
}

// Root serves API info at /.
// @Summary API root info
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "Achievement Watch",
		"version": "1.0.0",
		"status":  "running",
		"docs":    "/docs/index.html",
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": h.timestamp(),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if h.deps.DB == nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "not_configured",
			"timestamp": h.timestamp(),
		})
		return
	}
	if err := h.deps.DB.HealthCheck(r.Context()); err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": h.timestamp(),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": h.timestamp(),
	})
}

// GetLedgerRecord returns the stored record for a (user, game) pair.
// @Summary Ledger record
// @Tags ledger
// @Produce json
// @Param userID path string true "Steam user id"
// @Param gameID path string true "Steam app id"
// @Success 200 {object} ledger.Record
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/ledger/{userID}/{gameID} [get]
func (h *Handler) GetLedgerRecord(w http.ResponseWriter, r *http.Request) {
	key := ledger.Key{UserID: chi.URLParam(r, "userID"), GameID: chi.URLParam(r, "gameID")}

	rec, err := h.deps.Ledger.Get(r.Context(), key)
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "LEDGER_ERROR", "Failed to load ledger record", err.Error())
		return
	}
	if rec == nil {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "No ledger record for "+key.String())
		return
	}

	body, err := rec.Encode()
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "LEDGER_ERROR", "Failed to encode ledger record", err.Error())
		return
	}
	respond.WriteRaw(w, http.StatusOK, body)
}

// GetLeaderboard ranks users by unlocks in an ISO week.
// @Summary Weekly leaderboard
// @Tags events
// @Produce json
// @Param week query string false "ISO week, e.g. 2026-W42 (default: current)"
// @Param limit query int false "Max rows (default 25, max 100)"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 503 {object} respond.ErrorResponse
// @Router /api/v1/leaderboard [get]
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if h.deps.Events == nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "EVENTS_DISABLED", "Event log is disabled")
		return
	}

	week := r.URL.Query().Get("week")
	if week == "" {
		week = eventlog.WeekBucket(h.deps.Now())
	} else if !weekPattern.MatchString(week) {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_WEEK", "week must look like 2026-W42")
		return
	}

	limit := defaultLeaderboardLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
			return
		}
		limit = min(n, maxLeaderboardLimit)
	}

	entries, err := h.deps.Events.Leaderboard(r.Context(), week, limit)
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "EVENTS_ERROR", "Failed to build leaderboard", err.Error())
		return
	}
	if entries == nil {
		entries = []eventlog.LeaderboardEntry{}
	}

	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"week":    week,
		"entries": entries,
	})
}

// runView is the JSON shape of a batch report.
type runView struct {
	RunID     string       `json:"run_id"`
	StartedAt string       `json:"started_at"`
	ElapsedMS int64        `json:"elapsed_ms"`
	Total     int          `json:"total"`
	Ok        int          `json:"ok"`
	Failed    int          `json:"failed"`
	Announced int          `json:"announced"`
	Summary   string       `json:"summary"`
	Users     []runUserRow `json:"users"`
}

type runUserRow struct {
	pipeline.UserResult
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// GetLastRun returns the most recent batch report.
// @Summary Last batch run
// @Tags runs
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/runs/last [get]
func (h *Handler) GetLastRun(w http.ResponseWriter, r *http.Request) {
	var report *pipeline.BatchReport
	if h.deps.Runs != nil {
		report = h.deps.Runs.LastReport()
	}
	if report == nil {
		respond.WriteError(w, http.StatusNotFound, "NO_RUNS", "No batch has run yet")
		return
	}

	view := runView{
		RunID:     report.RunID,
		StartedAt: report.StartedAt.UTC().Format(time.RFC3339),
		ElapsedMS: report.Elapsed.Milliseconds(),
		Total:     report.Counts.Total,
		Ok:        report.Counts.Ok,
		Failed:    report.Counts.Failed,
		Announced: report.Announced(),
		Summary:   report.Summary(),
		Users:     make([]runUserRow, 0, len(report.Results)),
	}
	for _, res := range report.Results {
		row := runUserRow{UserResult: res.Value, OK: res.OK}
		row.UserID = res.Unit
		if res.Err != nil {
			row.Error = res.Err.Error()
		}
		view.Users = append(view.Users, row)
	}
	respond.WriteJSONObject(w, http.StatusOK, view)
}
