// Package configs handles per-type alert configuration endpoints.
package configs

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/patchwatch/patchwatch/internal/alerting"
	"github.com/patchwatch/patchwatch/internal/models"
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

func jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dataResponse{Data: data}); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

// Handler handles alert configuration endpoints.
type Handler struct {
	registry *alerting.Registry
}

// NewHandler creates an alert config handler.
func NewHandler(registry *alerting.Registry) *Handler {
	return &Handler{registry: registry}
}

// List returns all stored alert configs.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	configs, err := h.registry.List(r.Context())
	if err != nil {
		log.Printf("list alert configs error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if configs == nil {
		configs = []*models.AlertConfig{}
	}
	jsonOK(w, configs)
}

// Get returns the config for one alert type; unknown types get the defaults.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	t := models.AlertType(chi.URLParam(r, "type"))

	cfg, err := h.registry.Get(r.Context(), t)
	if err != nil {
		log.Printf("get alert config error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	jsonOK(w, cfg)
}

// Update applies a partial config update for one type. Unknown JSON fields
// are rejected so typos never silently no-op.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	t := models.AlertType(chi.URLParam(r, "type"))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var update alerting.ConfigUpdate
	if err := dec.Decode(&update); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body: "+err.Error())
		return
	}

	cfg, err := h.registry.Upsert(r.Context(), t, &update)
	if err != nil {
		var verr *alerting.ValidationError
		if errors.As(err, &verr) {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, verr.Error())
			return
		}
		log.Printf("update alert config error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	log.Printf("alert config updated: type=%s", t)
	jsonOK(w, cfg)
}

// BulkUpdate applies partial updates to several types at once. The batch is
// not transactional across types; the response reports per-type outcomes.
func (h *Handler) BulkUpdate(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var updates map[models.AlertType]*alerting.ConfigUpdate
	if err := dec.Decode(&updates); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(updates) == 0 {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "no configs to update")
		return
	}

	updated := make([]*models.AlertConfig, 0, len(updates))
	failed := map[models.AlertType]string{}
	for t, update := range updates {
		cfg, err := h.registry.Upsert(r.Context(), t, update)
		if err != nil {
			var verr *alerting.ValidationError
			if errors.As(err, &verr) {
				failed[t] = verr.Error()
				continue
			}
			log.Printf("bulk update alert config %s error: %v", t, err)
			jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
			return
		}
		updated = append(updated, cfg)
	}

	jsonOK(w, map[string]any{
		"updated": updated,
		"failed":  failed,
	})
}
