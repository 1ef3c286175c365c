// Package cleanup exposes the maintenance scheduler over HTTP.
package cleanup

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	cleanupsvc "github.com/patchwatch/patchwatch/internal/cleanup"
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
	errCodeConflict      = "CONFLICT"
	errCodeInternalError = "INTERNAL_ERROR"
)

func jsonError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Code: code, Message: message}}); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

func jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dataResponse{Data: data}); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

// Handler handles cleanup endpoints.
type Handler struct {
	scheduler *cleanupsvc.Scheduler
}

// NewHandler creates a cleanup handler.
func NewHandler(scheduler *cleanupsvc.Scheduler) *Handler {
	return &Handler{scheduler: scheduler}
}

// Preview reports what a cleanup run would do without mutating anything.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	result, err := h.scheduler.Preview(r.Context())
	if err != nil {
		log.Printf("cleanup preview error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	jsonOK(w, result)
}

// Run triggers one cleanup pass. A run already in progress yields 409.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	result, err := h.scheduler.RunOnce(r.Context())
	if err != nil {
		if errors.Is(err, cleanupsvc.ErrRunInProgress) {
			jsonError(w, http.StatusConflict, errCodeConflict, err.Error())
			return
		}
		log.Printf("cleanup run error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	log.Printf("cleanup run (manual): auto_resolved=%d escalated=%d deleted=%d errors=%d",
		result.AutoResolved, result.Escalated, result.Deleted, result.Errors)
	jsonOK(w, result)
}
