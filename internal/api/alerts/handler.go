// Package alerts handles alert read and lifecycle endpoints.
package alerts

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/patchwatch/patchwatch/internal/alerting"
	"github.com/patchwatch/patchwatch/internal/api/middleware"
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
type dataResponse struct {
	Data any `json:"data"`
}

const (
	errCodeBadRequest       = "BAD_REQUEST"
	errCodeValidationFailed = "VALIDATION_FAILED"
	errCodeNotFound         = "NOT_FOUND"
	errCodeInternalError    = "INTERNAL_ERROR"
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

func jsonNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// domainError maps lifecycle errors onto HTTP responses. Returns true when
// the error was handled.
func domainError(w http.ResponseWriter, err error) bool {
	var verr *alerting.ValidationError
	switch {
	case errors.As(err, &verr):
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, verr.Error())
	case errors.Is(err, alerting.ErrInvalidAction):
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
	case errors.Is(err, alerting.ErrAlertNotFound):
		jsonError(w, http.StatusNotFound, errCodeNotFound, "alert not found")
	default:
		return false
	}
	return true
}

type listResponse struct {
	Items  []*models.Alert `json:"items"`
	Total  int64           `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

type historyListResponse struct {
	Items  []*models.AlertHistoryEntry `json:"items"`
	Total  int64                       `json:"total"`
	Limit  int                         `json:"limit"`
	Offset int                         `json:"offset"`
}

// Handler handles alert endpoints.
type Handler struct {
	manager *alerting.Manager
}

// NewHandler creates an alert handler.
func NewHandler(manager *alerting.Manager) *Handler {
	return &Handler{manager: manager}
}

// parseLimitOffset reads limit/offset query params with bounds.
func parseLimitOffset(r *http.Request) (int, int) {
	limit := 50
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// List returns alerts matching the query filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := parseLimitOffset(r)

	// assignment=me narrows to alerts assigned to the caller
	assignment := q.Get("assignment")
	assignedTo := q.Get("assigned_to")
	if assignment == "me" || assignment == "assignedToMe" {
		assignment = ""
		assignedTo = middleware.GetUserID(r.Context())
	}

	filter := &storage.AlertFilter{
		Search:     q.Get("search"),
		Severity:   models.Severity(q.Get("severity")),
		Type:       models.AlertType(q.Get("type")),
		State:      models.AlertState(q.Get("state")),
		Assignment: assignment,
		AssignedTo: assignedTo,
		SortBy:     q.Get("sort_by"),
		SortDesc:   q.Get("sort_order") != "asc",
		Limit:      limit,
		Offset:     offset,
	}
	if filter.Severity != "" && !filter.Severity.Valid() {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "unknown severity level")
		return
	}

	items, total, err := h.manager.List(r.Context(), filter)
	if err != nil {
		log.Printf("list alerts error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if items == nil {
		items = []*models.Alert{}
	}

	jsonOK(w, listResponse{Items: items, Total: total, Limit: limit, Offset: offset})
}

// Stats returns active alert counts by severity.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.manager.Stats(r.Context())
	if err != nil {
		log.Printf("alert stats error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	jsonOK(w, stats)
}

// GetByID returns an alert by ID.
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	alert, err := h.manager.Get(r.Context(), id)
	if err != nil {
		log.Printf("get alert error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if alert == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "alert not found")
		return
	}

	jsonOK(w, alert)
}

// History returns the recorded actions for an alert, newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit, offset := parseLimitOffset(r)

	items, total, err := h.manager.History(r.Context(), id, limit, offset)
	if err != nil {
		if domainError(w, err) {
			return
		}
		log.Printf("alert history error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if items == nil {
		items = []*models.AlertHistoryEntry{}
	}

	jsonOK(w, historyListResponse{Items: items, Total: total, Limit: limit, Offset: offset})
}

// Action applies a lifecycle action to an alert.
func (h *Handler) Action(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req alerting.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}

	alert, err := h.manager.PerformAction(r.Context(), id, &req, middleware.GetUserID(r.Context()))
	if err != nil {
		if domainError(w, err) {
			return
		}
		log.Printf("alert action error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	jsonOK(w, alert)
}

type assignRequest struct {
	UserID string `json:"user_id"`
}

// Assign sets the alert assignee.
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}

	alert, err := h.manager.Assign(r.Context(), id, req.UserID, middleware.GetUserID(r.Context()))
	if err != nil {
		if domainError(w, err) {
			return
		}
		log.Printf("assign alert error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	jsonOK(w, alert)
}

// Unassign clears the alert assignee.
func (h *Handler) Unassign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	alert, err := h.manager.Unassign(r.Context(), id, middleware.GetUserID(r.Context()))
	if err != nil {
		if domainError(w, err) {
			return
		}
		log.Printf("unassign alert error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	jsonOK(w, alert)
}

// Delete removes an alert and its history.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.manager.Delete(r.Context(), id); err != nil {
		if domainError(w, err) {
			return
		}
		log.Printf("delete alert error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	log.Printf("alert deleted: %s", id)
	jsonNoContent(w)
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

// BulkDelete removes multiple alerts, reporting missing ids.
func (h *Handler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "ids must not be empty")
		return
	}

	start := time.Now()
	result, err := h.manager.BulkDelete(r.Context(), req.IDs)
	if err != nil {
		log.Printf("bulk delete error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	log.Printf("bulk delete: %d deleted, %d missing in %v", len(result.Deleted), len(result.NotFound), time.Since(start))
	jsonOK(w, result)
}
