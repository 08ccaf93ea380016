package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/devbot/internal/application"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// SendMessageRequest is the body of POST /api/v1/messages.
type SendMessageRequest struct {
	To   []string `json:"to"`
	Text string   `json:"text"`
}

// SendMessageResponse reports the fan-out result of a manual send.
type SendMessageResponse struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// StatusResponse is the combined session and scheduler snapshot.
type StatusResponse struct {
	Session   SessionStatusResponse   `json:"session"`
	Scheduler SchedulerStatusResponse `json:"scheduler"`
}

// SessionStatusResponse is the JSON representation of the session state.
type SessionStatusResponse struct {
	SessionID         string `json:"session_id"`
	State             string `json:"state"`
	Connected         bool   `json:"connected"`
	PairingPending    bool   `json:"pairing_pending"`
	PairingGeneration uint64 `json:"pairing_generation"`
}

// SchedulerStatusResponse is the JSON representation of the scheduler state.
type SchedulerStatusResponse struct {
	Running        bool                 `json:"running"`
	TaskConfigured bool                 `json:"task_configured"`
	NextExecution  string               `json:"next_execution,omitempty"`
	SendTime       string               `json:"send_time"`
	Timezone       string               `json:"timezone"`
	LastAttempt    *LastAttemptResponse `json:"last_attempt,omitempty"`
}

// LastAttemptResponse describes the most recent delivery attempt.
type LastAttemptResponse struct {
	ScheduledFor string `json:"scheduled_for"`
	Attempt      int    `json:"attempt"`
	Outcome      string `json:"outcome"`
	DurationMS   int64  `json:"duration_ms"`
}

func toStatusResponse(session application.SessionStatus, scheduler application.SchedulerStatus) StatusResponse {
	resp := StatusResponse{
		Session: SessionStatusResponse{
			SessionID:         session.SessionID,
			State:             string(session.State),
			Connected:         session.Connected,
			PairingPending:    session.PairingPending,
			PairingGeneration: session.PairingGeneration,
		},
		Scheduler: SchedulerStatusResponse{
			Running:        scheduler.Running,
			TaskConfigured: scheduler.TaskConfigured,
			SendTime:       scheduler.SendTime,
			Timezone:       scheduler.Timezone,
		},
	}

	if scheduler.NextExecution != nil {
		resp.Scheduler.NextExecution = scheduler.NextExecution.Format(time.RFC3339)
	}
	if scheduler.LastAttempt != nil {
		resp.Scheduler.LastAttempt = &LastAttemptResponse{
			ScheduledFor: scheduler.LastAttempt.ScheduledFor.Format(time.RFC3339),
			Attempt:      scheduler.LastAttempt.Attempt,
			Outcome:      string(scheduler.LastAttempt.Outcome),
			DurationMS:   scheduler.LastAttempt.Duration.Milliseconds(),
		}
	}
	return resp
}
