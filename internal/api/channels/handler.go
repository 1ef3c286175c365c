// Package channels handles notification channel endpoints.
package channels

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

// Handler handles notification channel endpoints.
type Handler struct {
	channels storage.ChannelRepository
}

// NewHandler creates a notification channel handler.
func NewHandler(channels storage.ChannelRepository) *Handler {
	return &Handler{channels: channels}
}

type CreateRequest struct {
	Name   string          `json:"name"`
	Kind   string          `json:"kind"`
	Config json.RawMessage `json:"config"`
}

// List returns all notification channels.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	channels, err := h.channels.List(r.Context())
	if err != nil {
		log.Printf("list channels error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if channels == nil {
		channels = []*models.NotificationChannel{}
	}
	jsonOK(w, channels)
}

// Create creates a new notification channel. The config is validated by
// building the adapter once, so a broken channel fails here and not at
// dispatch time.
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

	ch := &models.NotificationChannel{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(req.Name),
		Kind:      models.ChannelKind(req.Kind),
		Config:    req.Config,
		CreatedAt: time.Now().UTC(),
	}

	adapter, err := notifier.NewAdapter(ch)
	if err != nil {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}
	adapter.Close()

	if err := h.channels.Create(r.Context(), ch); err != nil {
		log.Printf("create channel error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	log.Printf("notification channel created: %s kind=%s (%s)", ch.Name, ch.Kind, ch.ID)
	jsonCreated(w, ch)
}

// GetByID returns a notification channel by ID.
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ch, err := h.channels.GetByID(r.Context(), id)
	if err != nil {
		log.Printf("get channel error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if ch == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "channel not found")
		return
	}
	jsonOK(w, ch)
}

// Delete removes a notification channel. Rules that still reference it skip
// the channel at dispatch time.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	deleted, err := h.channels.Delete(r.Context(), id)
	if err != nil {
		log.Printf("delete channel error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if !deleted {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "channel not found")
		return
	}

	log.Printf("notification channel deleted: %s", id)
	jsonNoContent(w)
}
