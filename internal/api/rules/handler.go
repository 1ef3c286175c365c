// Package rules handles notification rule endpoints.
package rules

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/patchwatch/patchwatch/internal/models"
	"github.com/patchwatch/patchwatch/internal/notifier"
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

func jsonCreated(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(dataResponse{Data: data}); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

func jsonNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Handler handles notification rule endpoints.
type Handler struct {
	rules    storage.RuleRepository
	channels storage.ChannelRepository
}

// NewHandler creates a notification rule handler.
func NewHandler(rules storage.RuleRepository, channels storage.ChannelRepository) *Handler {
	return &Handler{rules: rules, channels: channels}
}

// Request types
type CreateRequest struct {
	Name            string   `json:"name"`
	EventType       string   `json:"event_type"`
	ChannelIDs      []string `json:"channel_ids"`
	Priority        int      `json:"priority"`
	MessageTitle    string   `json:"message_title"`
	MessageTemplate string   `json:"message_template"`
	Filter          string   `json:"filter"`
	Enabled         *bool    `json:"enabled"`
}

type UpdateRequest struct {
	Name            *string   `json:"name,omitempty"`
	EventType       *string   `json:"event_type,omitempty"`
	ChannelIDs      *[]string `json:"channel_ids,omitempty"`
	Priority        *int      `json:"priority,omitempty"`
	MessageTitle    *string   `json:"message_title,omitempty"`
	MessageTemplate *string   `json:"message_template,omitempty"`
	Filter          *string   `json:"filter,omitempty"`
	Enabled         *bool     `json:"enabled,omitempty"`
}

// validateChannels checks that every referenced channel exists.
func (h *Handler) validateChannels(r *http.Request, ids []string) (string, bool) {
	if len(ids) == 0 {
		return "at least one channel is required", false
	}
	for _, id := range ids {
		ch, err := h.channels.GetByID(r.Context(), id)
		if err != nil {
			log.Printf("check channel %s: %v", id, err)
			return "", false
		}
		if ch == nil {
			return "channel not found: " + id, false
		}
	}
	return "", true
}

// List returns all notification rules.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	rules, err := h.rules.List(r.Context())
	if err != nil {
		log.Printf("list rules error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if rules == nil {
		rules = []*models.NotificationRule{}
	}
	jsonOK(w, rules)
}

// Create creates a new notification rule.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "name is required")
		return
	}
	if req.EventType == "" {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "event_type is required")
		return
	}
	if req.Priority < 0 || req.Priority > 10 {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "priority must be between 0 and 10")
		return
	}
	if err := notifier.ValidateFilter(req.Filter); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}
	if msg, ok := h.validateChannels(r, req.ChannelIDs); !ok {
		if msg == "" {
			jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
			return
		}
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, msg)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	now := time.Now().UTC()
	rule := &models.NotificationRule{
		ID:              uuid.New().String(),
		Name:            strings.TrimSpace(req.Name),
		EventType:       models.AlertType(req.EventType),
		ChannelIDs:      req.ChannelIDs,
		Priority:        req.Priority,
		MessageTitle:    req.MessageTitle,
		MessageTemplate: req.MessageTemplate,
		Filter:          req.Filter,
		Enabled:         enabled,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := h.rules.Create(r.Context(), rule); err != nil {
		log.Printf("create rule error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	log.Printf("notification rule created: %s (%s)", rule.Name, rule.ID)
	jsonCreated(w, rule)
}

// GetByID returns a notification rule by ID.
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rule, err := h.rules.GetByID(r.Context(), id)
	if err != nil {
		log.Printf("get rule error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if rule == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "rule not found")
		return
	}
	jsonOK(w, rule)
}

// Update applies a partial update to a rule.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}

	rule, err := h.rules.GetByID(r.Context(), id)
	if err != nil {
		log.Printf("update rule error: get: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if rule == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "rule not found")
		return
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "name must not be empty")
			return
		}
		rule.Name = strings.TrimSpace(*req.Name)
	}
	if req.EventType != nil {
		if *req.EventType == "" {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "event_type must not be empty")
			return
		}
		rule.EventType = models.AlertType(*req.EventType)
	}
	if req.Filter != nil {
		if err := notifier.ValidateFilter(*req.Filter); err != nil {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
			return
		}
		rule.Filter = *req.Filter
	}
	if req.ChannelIDs != nil {
		if msg, ok := h.validateChannels(r, *req.ChannelIDs); !ok {
			if msg == "" {
				jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
				return
			}
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, msg)
			return
		}
		rule.ChannelIDs = *req.ChannelIDs
	}
	if req.Priority != nil {
		if *req.Priority < 0 || *req.Priority > 10 {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "priority must be between 0 and 10")
			return
		}
		rule.Priority = *req.Priority
	}
	if req.MessageTitle != nil {
		rule.MessageTitle = *req.MessageTitle
	}
	if req.MessageTemplate != nil {
		rule.MessageTemplate = *req.MessageTemplate
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	rule.UpdatedAt = time.Now().UTC()

	if err := h.rules.Update(r.Context(), rule); err != nil {
		log.Printf("update rule error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	log.Printf("notification rule updated: %s (%s)", rule.Name, rule.ID)
	jsonOK(w, rule)
}

// Toggle flips the rule's enabled flag.
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rule, err := h.rules.GetByID(r.Context(), id)
	if err != nil {
		log.Printf("toggle rule error: get: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if rule == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "rule not found")
		return
	}

	rule.Enabled = !rule.Enabled
	if _, err := h.rules.SetEnabled(r.Context(), id, rule.Enabled); err != nil {
		log.Printf("toggle rule error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	log.Printf("notification rule toggled: %s enabled=%t", rule.ID, rule.Enabled)
	jsonOK(w, rule)
}

// Delete removes a notification rule.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	deleted, err := h.rules.Delete(r.Context(), id)
	if err != nil {
		log.Printf("delete rule error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if !deleted {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "rule not found")
		return
	}

	log.Printf("notification rule deleted: %s", id)
	jsonNoContent(w)
}
