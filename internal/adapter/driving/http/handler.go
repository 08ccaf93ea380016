// Package httphandler is the HTTP driving adapter that serves the
// administrative REST API.
package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/devbot/internal/application"
	"github.com/ericfisherdev/devbot/internal/domain/model"
)

// SessionController is the slice of the session manager the API exposes.
type SessionController interface {
	Status() application.SessionStatus
	SendToMany(ctx context.Context, destinations []string, text string) (successes, failures int)
	ForceReconnect(ctx context.Context) error
	PairingCode() (model.PairingCode, bool)
}

// SchedulerController is the slice of the delivery scheduler the API exposes.
type SchedulerController interface {
	Status() application.SchedulerStatus
	Start() error
	Stop()
	ExecuteNow(ctx context.Context) error
}

// Handler serves the administrative REST API.
type Handler struct {
	session   SessionController
	scheduler SchedulerController
	logger    *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(session SessionController, scheduler SchedulerController, logger *slog.Logger) *Handler {
	return &Handler{
		session:   session,
		scheduler: scheduler,
		logger:    logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with request-id, logging, and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/status", h.GetStatus)
	mux.HandleFunc("POST /api/v1/messages", h.SendMessage)
	mux.HandleFunc("POST /api/v1/deliveries/today", h.DeliverToday)
	mux.HandleFunc("POST /api/v1/session/reconnect", h.Reconnect)
	mux.HandleFunc("GET /api/v1/pairing/qr", h.PairingQR)
	mux.HandleFunc("POST /api/v1/scheduler/start", h.StartScheduler)
	mux.HandleFunc("POST /api/v1/scheduler/stop", h.StopScheduler)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = requestIDMiddleware(wrapped)

	return wrapped
}

// Health is the liveness probe.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetStatus reports session and scheduler state in one snapshot.
func (h *Handler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toStatusResponse(h.session.Status(), h.scheduler.Status()))
}

// SendMessage triggers a manual send to explicit destinations.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" || len(req.To) == 0 {
		writeError(w, http.StatusBadRequest, "text and at least one destination are required")
		return
	}

	if !h.session.Status().Connected {
		writeError(w, http.StatusConflict, "session is not connected")
		return
	}

	successes, failures := h.session.SendToMany(r.Context(), req.To, req.Text)
	writeJSON(w, http.StatusOK, SendMessageResponse{Delivered: successes, Failed: failures})
}

// DeliverToday triggers today's delivery immediately. The firing shares the
// scheduler's retry handling, which can take minutes, so it runs detached
// and the request is acknowledged with 202. Without a delivery pipeline
// (no reading plan configured) there is nothing to trigger, so the request
// is rejected instead of acknowledged.
func (h *Handler) DeliverToday(w http.ResponseWriter, _ *http.Request) {
	if !h.scheduler.Status().TaskConfigured {
		writeError(w, http.StatusConflict, "no delivery pipeline configured")
		return
	}
	go func() {
		if err := h.scheduler.ExecuteNow(context.Background()); err != nil {
			h.logger.Error("manual delivery failed to start", "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "delivery triggered"})
}

// Reconnect forces the re-pairing procedure: stored credentials are
// discarded and a fresh pairing code will be issued.
func (h *Handler) Reconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.session.ForceReconnect(r.Context()); err != nil {
		h.logger.Error("forced reconnect failed", "error", err)
		writeError(w, http.StatusInternalServerError, "reconnect failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "re-pairing started"})
}

// StartScheduler arms the delivery timer.
func (h *Handler) StartScheduler(w http.ResponseWriter, _ *http.Request) {
	if err := h.scheduler.Start(); err != nil {
		if errors.Is(err, application.ErrInvalidSchedule) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("scheduler start failed", "error", err)
		writeError(w, http.StatusInternalServerError, "scheduler start failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StopScheduler disarms the delivery timer.
func (h *Handler) StopScheduler(w http.ResponseWriter, _ *http.Request) {
	h.scheduler.Stop()
	w.WriteHeader(http.StatusNoContent)
}
