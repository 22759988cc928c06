package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dentalstack/aegis/internal/breaker"
	"github.com/dentalstack/aegis/internal/domain"
	"github.com/dentalstack/aegis/internal/patients"
	"github.com/dentalstack/aegis/internal/repository"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	service  *patients.Service
	repo     domain.PatientRepository
	store    domain.CacheStore
	breakers *breaker.Registry
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(service *patients.Service, repo domain.PatientRepository, store domain.CacheStore, breakers *breaker.Registry, version string) *Handler {
	return &Handler{
		service:  service,
		repo:     repo,
		store:    store,
		breakers: breakers,
		version:  version,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// CreatePatient handles POST /patients.
func (h *Handler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := GetTenant(ctx)

	var req patients.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.FirstName == "" || req.LastName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "firstName and lastName are required",
		})
		return
	}

	created, err := h.service.Create(ctx, tenant, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// GetPatient handles GET /patients/{id}.
func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := GetTenant(ctx)
	id := chi.URLParam(r, "id")

	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "patient id is required",
		})
		return
	}

	p, err := h.service.Get(ctx, tenant, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// ListPatients handles GET /patients.
func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := GetTenant(ctx)

	all, err := h.service.List(ctx, tenant)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if all == nil {
		all = []*domain.Patient{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"patients": all,
		"count":    len(all),
	})
}

// UpdatePatient handles PUT /patients/{id}.
func (h *Handler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := GetTenant(ctx)
	id := chi.URLParam(r, "id")

	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "patient id is required",
		})
		return
	}

	var upd domain.PatientUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	updated, err := h.service.Update(ctx, tenant, id, &upd)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// DeletePatient handles DELETE /patients/{id}.
func (h *Handler) DeletePatient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := GetTenant(ctx)
	id := chi.URLParam(r, "id")

	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "patient id is required",
		})
		return
	}

	deleted, err := h.service.Delete(ctx, tenant, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !deleted {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "patient not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "patient deleted",
	})
}

// InvalidateCache handles POST /cache/invalidate. The optional body narrows
// the scope to a single key or a glob pattern; an empty body drops every
// cached entry for the caller's tenant. Either way, the invalidation applies
// here and on peer nodes.
func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := GetTenant(ctx)

	var req struct {
		Key     string `json:"key"`
		Pattern string `json:"pattern"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Key != "" && req.Pattern != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "key and pattern are mutually exclusive",
		})
		return
	}

	var scope string
	switch {
	case req.Key != "":
		h.service.InvalidateKey(ctx, tenant, req.Key)
		scope = "key"
	case req.Pattern != "":
		h.service.InvalidatePattern(ctx, tenant, req.Pattern)
		scope = "pattern"
	default:
		h.service.InvalidateTenant(ctx, tenant)
		scope = "tenant"
	}

	slog.Info("cache invalidated",
		"organization_id", tenant.OrganizationID,
		"scope", scope,
		"key", req.Key,
		"pattern", req.Pattern,
	)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "cache invalidated",
		"scope":   scope,
	})
}

// ListBreakers handles GET /breakers: a health snapshot of every registered
// circuit breaker.
func (h *Handler) ListBreakers(w http.ResponseWriter, r *http.Request) {
	status := h.breakers.HealthStatus()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"breakers": status,
		"count":    len(status),
	})
}

// ResetBreaker handles POST /breakers/{name}/reset.
func (h *Handler) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "breaker name is required",
		})
		return
	}

	if !h.breakers.Reset(name) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "breaker not found",
		})
		return
	}

	slog.Info("circuit breaker reset", "name", name)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "breaker reset",
		"name":    name,
	})
}

// writeServiceError maps service-layer errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrMissingTenant):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "tenant context is required",
		})
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "patient not found",
		})
	case errors.Is(err, repository.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	case errors.Is(err, breaker.ErrCircuitOpen):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "service temporarily unavailable",
		})
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
