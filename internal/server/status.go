package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plexsync/internal/models"
	"github.com/desertthunder/plexsync/internal/scheduler"
	"github.com/desertthunder/plexsync/internal/shared"
)

const defaultHistoryLimit = 20

// StatusSource provides the live sync status.
type StatusSource interface {
	Snapshot() scheduler.Snapshot
}

// Triggerer starts a background sync run.
type Triggerer interface {
	Trigger(ctx context.Context, source string) error
}

// HistorySource lists recent sync runs, newest first.
type HistorySource interface {
	Recent(limit int) ([]*models.SyncRun, error)
}

// StatusHandler serves the health, status, config, history and manual trigger endpoints.
type StatusHandler struct {
	status  StatusSource
	trigger Triggerer
	history HistorySource
	config  *shared.ConfigSummary
	logger  *log.Logger
}

// NewStatusHandler creates a StatusHandler. history may be nil, in which case the history
// endpoint returns an empty list.
func NewStatusHandler(status StatusSource, trigger Triggerer, history HistorySource, logger *log.Logger) *StatusHandler {
	return &StatusHandler{status: status, trigger: trigger, history: history, logger: logger}
}

// WithConfig exposes a credential-free summary of cfg at /api/config.
func (h *StatusHandler) WithConfig(cfg *shared.Config) *StatusHandler {
	summary := cfg.Summary()
	h.config = &summary
	return h
}

// Register adds the handler's routes to r.
func (h *StatusHandler) Register(r Router) {
	r.Handle(http.MethodGet, "/health", http.HandlerFunc(h.health))
	r.Handle(http.MethodGet, "/api/status", http.HandlerFunc(h.getStatus))
	r.Handle(http.MethodGet, "/api/config", http.HandlerFunc(h.getConfig))
	r.Handle(http.MethodGet, "/api/history", http.HandlerFunc(h.getHistory))
	r.Handle(http.MethodPost, "/api/sync/start", http.HandlerFunc(h.startSync))
}

func (h *StatusHandler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *StatusHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.status.Snapshot())
}

func (h *StatusHandler) getConfig(w http.ResponseWriter, r *http.Request) {
	if h.config == nil {
		writeError(w, http.StatusNotFound, "config not available")
		return
	}
	writeJSON(w, http.StatusOK, h.config)
}

func (h *StatusHandler) getHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	views := []models.SyncRunView{}
	if h.history != nil {
		runs, err := h.history.Recent(limit)
		if err != nil {
			h.logger.Error("failed to load sync history", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load sync history")
			return
		}
		for _, run := range runs {
			views = append(views, run.View())
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": views})
}

func (h *StatusHandler) startSync(w http.ResponseWriter, r *http.Request) {
	err := h.trigger.Trigger(r.Context(), scheduler.SourceAPI)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
	case errors.Is(err, shared.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, shared.ErrAlreadyRunning.Error())
	case errors.Is(err, shared.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("failed to start sync", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start sync")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
