// Package events handles event ingestion endpoints.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/patchwatch/patchwatch/internal/alerting"
	"github.com/patchwatch/patchwatch/internal/models"
	"github.com/patchwatch/patchwatch/internal/notifier"
)

// Response helpers
type errorResponse struct {
	Error errorBody `json:"error"`
}
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
type dataResponse struct {
	Data any `json:"data"`
}

const (
	errCodeBadRequest       = "BAD_REQUEST"
	errCodeValidationFailed = "VALIDATION_FAILED"
	errCodeInternalError    = "INTERNAL_ERROR"
)

func jsonError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Code: code, Message: message}}); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

func jsonAccepted(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(dataResponse{Data: data}); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

// dispatchTimeout bounds the background notification fan-out for one event.
const dispatchTimeout = 2 * time.Minute

// Handler handles event ingestion.
type Handler struct {
	manager    *alerting.Manager
	matcher    *notifier.Matcher
	dispatcher *notifier.Dispatcher
}

// NewHandler creates an event ingestion handler.
func NewHandler(manager *alerting.Manager, matcher *notifier.Matcher, dispatcher *notifier.Dispatcher) *Handler {
	return &Handler{
		manager:    manager,
		matcher:    matcher,
		dispatcher: dispatcher,
	}
}

// Ingest accepts one event, runs it through the alert lifecycle, and kicks
// off notification dispatch in the background. Always 202 when the event is
// structurally valid; delivery failures never reach the producer.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var event models.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}

	result, err := h.manager.Ingest(r.Context(), &event)
	if err != nil {
		var verr *alerting.ValidationError
		if errors.As(err, &verr) {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, verr.Error())
			return
		}
		log.Printf("ingest event error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	if !result.Dropped {
		severity := event.Severity
		if result.Alert != nil {
			severity = result.Alert.Severity
		}
		go h.dispatch(&event, severity)
	}

	jsonAccepted(w, result)
}

// dispatch matches and delivers notifications for an accepted event. Runs
// detached from the request so producer latency stays bounded.
func (h *Handler) dispatch(event *models.Event, severity models.Severity) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	matches, err := h.matcher.Match(ctx, event)
	if err != nil {
		log.Printf("match rules for %s event: %v", event.Type, err)
		return
	}
	if len(matches) == 0 {
		return
	}

	if err := h.dispatcher.Dispatch(ctx, event, severity, matches); err != nil {
		log.Printf("dispatch %s event: %v", event.Type, err)
	}
}
