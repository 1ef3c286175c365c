// Package history handles notification delivery history endpoints.
package history

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/patchwatch/patchwatch/internal/models"
	"github.com/patchwatch/patchwatch/internal/storage"
)

// Response helpers
type errorResponse struct {
	Error errorBody `json:"error"`
}
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
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

// listResponse carries the page plus pagination info.
type listResponse struct {
	Data       []*models.NotificationHistoryEntry `json:"data"`
	Pagination pagination                         `json:"pagination"`
}

type pagination struct {
	Total   int64 `json:"total"`
	HasMore bool  `json:"hasMore"`
}

// Handler handles delivery history endpoints.
type Handler struct {
	history storage.NotificationHistoryRepository
}

// NewHandler creates a delivery history handler.
func NewHandler(history storage.NotificationHistoryRepository) *Handler {
	return &Handler{history: history}
}

// List returns delivery attempts, newest first, with optional filters:
// from/to (RFC3339), event_type, channel_id, status, limit, offset.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := &storage.NotificationHistoryFilter{
		EventType: models.AlertType(q.Get("event_type")),
		ChannelID: q.Get("channel_id"),
		Status:    models.DeliveryStatus(q.Get("status")),
		Limit:     50,
	}

	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "from must be RFC3339")
			return
		}
		filter.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "to must be RFC3339")
			return
		}
		filter.To = &t
	}
	if v := q.Get("status"); v != "" && v != string(models.DeliverySent) && v != string(models.DeliveryFailed) {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "status must be sent or failed")
		return
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	entries, total, err := h.history.List(r.Context(), filter)
	if err != nil {
		log.Printf("list notification history error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if entries == nil {
		entries = []*models.NotificationHistoryEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	resp := listResponse{
		Data: entries,
		Pagination: pagination{
			Total:   total,
			HasMore: int64(filter.Offset+len(entries)) < total,
		},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("json encode error: %v", err)
	}
}
