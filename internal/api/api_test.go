package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dentalstack/aegis/internal/breaker"
	"github.com/dentalstack/aegis/internal/cache"
	"github.com/dentalstack/aegis/internal/domain"
	"github.com/dentalstack/aegis/internal/patients"
	"github.com/dentalstack/aegis/internal/repository"
)

// createTestServer wires an in-memory stack for testing.
func createTestServer() *Server {
	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	repo := repository.NewMemoryPatientRepository()
	store := cache.NewMemoryStore(0)
	mgr := cache.NewManager(store, 5*time.Minute)
	registry := breaker.NewRegistry(domain.BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      time.Minute,
	})
	service := patients.NewService(repo, mgr, registry, nil)

	return NewServer(cfg, service, repo, store, registry, "test-v1")
}

func postPatient(t *testing.T, server *Server, org, clinic string, in *patients.CreateInput) *domain.Patient {
	t.Helper()

	body, _ := json.Marshal(in)
	req := httptest.NewRequest(http.MethodPost, "/patients", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(OrganizationIDHeader, org)
	if clinic != "" {
		req.Header.Set(ClinicIDHeader, clinic)
	}

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var created domain.Patient
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return &created
}

func TestPatientEndpoints(t *testing.T) {
	t.Run("CreateAndGet", func(t *testing.T) {
		server := createTestServer()

		created := postPatient(t, server, "org-001", "clinic-01", &patients.CreateInput{
			FirstName: "Ada",
			LastName:  "Lovelace",
			Email:     "ada@example.com",
		})
		if created.ID == "" {
			t.Error("expected generated patient ID")
		}
		if created.OrganizationID != "org-001" || created.ClinicID != "clinic-01" {
			t.Error("expected tenant ownership from headers")
		}

		req := httptest.NewRequest(http.MethodGet, "/patients/"+created.ID, nil)
		req.Header.Set(OrganizationIDHeader, "org-001")
		req.Header.Set(ClinicIDHeader, "clinic-01")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var found domain.Patient
		json.Unmarshal(rr.Body.Bytes(), &found)
		if found.FirstName != "Ada" {
			t.Errorf("expected 'Ada', got '%s'", found.FirstName)
		}
	})

	t.Run("MissingOrganizationHeader", func(t *testing.T) {
		server := createTestServer()

		req := httptest.NewRequest(http.MethodGet, "/patients", nil)
		// No X-Organization-ID header

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		server := createTestServer()

		req := httptest.NewRequest(http.MethodPost, "/patients", bytes.NewBufferString("not-json"))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(OrganizationIDHeader, "org-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingName", func(t *testing.T) {
		server := createTestServer()

		body, _ := json.Marshal(&patients.CreateInput{FirstName: "Ada"})
		req := httptest.NewRequest(http.MethodPost, "/patients", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(OrganizationIDHeader, "org-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("CrossOrganizationGetIsNotFound", func(t *testing.T) {
		server := createTestServer()

		created := postPatient(t, server, "org-001", "", &patients.CreateInput{
			FirstName: "Ada", LastName: "Lovelace",
		})

		req := httptest.NewRequest(http.MethodGet, "/patients/"+created.ID, nil)
		req.Header.Set(OrganizationIDHeader, "org-002")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404 for foreign organization, got %d", rr.Code)
		}
	})

	t.Run("ListScopedByTenant", func(t *testing.T) {
		server := createTestServer()

		postPatient(t, server, "org-001", "", &patients.CreateInput{FirstName: "Ada", LastName: "Lovelace"})
		postPatient(t, server, "org-002", "", &patients.CreateInput{FirstName: "Eve", LastName: "Intruder"})

		req := httptest.NewRequest(http.MethodGet, "/patients", nil)
		req.Header.Set(OrganizationIDHeader, "org-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp struct {
			Patients []*domain.Patient `json:"patients"`
			Count    int               `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count != 1 {
			t.Errorf("expected 1 patient for org-001, got %d", resp.Count)
		}
	})

	t.Run("UpdateAndDelete", func(t *testing.T) {
		server := createTestServer()

		created := postPatient(t, server, "org-001", "", &patients.CreateInput{
			FirstName: "Grace", LastName: "Hopper",
		})

		body := bytes.NewBufferString(`{"phone":"555-0100"}`)
		req := httptest.NewRequest(http.MethodPut, "/patients/"+created.ID, body)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(OrganizationIDHeader, "org-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var updated domain.Patient
		json.Unmarshal(rr.Body.Bytes(), &updated)
		if updated.Phone != "555-0100" {
			t.Errorf("expected updated phone, got '%s'", updated.Phone)
		}

		req = httptest.NewRequest(http.MethodDelete, "/patients/"+created.ID, nil)
		req.Header.Set(OrganizationIDHeader, "org-001")

		rr = httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200 for delete, got %d", rr.Code)
		}

		req = httptest.NewRequest(http.MethodDelete, "/patients/"+created.ID, nil)
		req.Header.Set(OrganizationIDHeader, "org-001")

		rr = httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404 for repeated delete, got %d", rr.Code)
		}
	})

	t.Run("InvalidateCacheTenantWide", func(t *testing.T) {
		server := createTestServer()

		req := httptest.NewRequest(http.MethodPost, "/cache/invalidate", nil)
		req.Header.Set(OrganizationIDHeader, "org-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp["scope"] != "tenant" {
			t.Errorf("expected scope 'tenant' for empty body, got '%s'", resp["scope"])
		}
	})

	t.Run("InvalidateCacheByKey", func(t *testing.T) {
		repo := repository.NewMemoryPatientRepository()
		store := cache.NewMemoryStore(0)
		mgr := cache.NewManager(store, 5*time.Minute)
		registry := breaker.NewRegistry(domain.BreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			OpenTimeout:      time.Minute,
		})
		service := patients.NewService(repo, mgr, registry, nil)
		server := NewServer(domain.ServerConfig{Host: "localhost", Port: 8080}, service, repo, store, registry, "test-v1")

		created := postPatient(t, server, "org-001", "", &patients.CreateInput{FirstName: "Ada", LastName: "Lovelace"})

		// Warm the record's cache entry
		req := httptest.NewRequest(http.MethodGet, "/patients/"+created.ID, nil)
		req.Header.Set(OrganizationIDHeader, "org-001")
		server.Router().ServeHTTP(httptest.NewRecorder(), req)

		tenant := &domain.TenantContext{OrganizationID: "org-001"}
		scoped := domain.ScopeKey("patients:"+created.ID, tenant)
		if val, _ := store.Get(context.Background(), scoped); val == nil {
			t.Fatal("expected warmed cache entry before invalidation")
		}

		body := bytes.NewBufferString(`{"key": "patients:` + created.ID + `"}`)
		req = httptest.NewRequest(http.MethodPost, "/cache/invalidate", body)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(OrganizationIDHeader, "org-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp["scope"] != "key" {
			t.Errorf("expected scope 'key', got '%s'", resp["scope"])
		}
		if val, _ := store.Get(context.Background(), scoped); val != nil {
			t.Error("expected key invalidation to drop the cached entry")
		}
	})

	t.Run("InvalidateCacheByPattern", func(t *testing.T) {
		server := createTestServer()

		body := bytes.NewBufferString(`{"pattern": "patients:*"}`)
		req := httptest.NewRequest(http.MethodPost, "/cache/invalidate", body)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(OrganizationIDHeader, "org-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp["scope"] != "pattern" {
			t.Errorf("expected scope 'pattern', got '%s'", resp["scope"])
		}
	})

	t.Run("InvalidateCacheRejectsKeyAndPattern", func(t *testing.T) {
		server := createTestServer()

		body := bytes.NewBufferString(`{"key": "k", "pattern": "p*"}`)
		req := httptest.NewRequest(http.MethodPost, "/cache/invalidate", body)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(OrganizationIDHeader, "org-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400 for key and pattern together, got %d", rr.Code)
		}
	})

	t.Run("ResponseHeaders", func(t *testing.T) {
		server := createTestServer()

		req := httptest.NewRequest(http.MethodGet, "/patients", nil)
		req.Header.Set(OrganizationIDHeader, "org-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID header in response")
		}
		if rr.Header().Get("X-Trace-ID") == "" {
			t.Error("expected X-Trace-ID header in response")
		}
		if rr.Header().Get("Content-Type") != "application/json" {
			t.Error("expected Content-Type: application/json")
		}
	})
}

func TestBreakerEndpoints(t *testing.T) {
	t.Run("ListBreakers", func(t *testing.T) {
		server := createTestServer()

		// A first request registers the repository breaker lazily
		req := httptest.NewRequest(http.MethodGet, "/patients", nil)
		req.Header.Set(OrganizationIDHeader, "org-001")
		server.Router().ServeHTTP(httptest.NewRecorder(), req)

		req = httptest.NewRequest(http.MethodGet, "/breakers", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Breakers map[string]breaker.Stats `json:"breakers"`
			Count    int                      `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count == 0 {
			t.Error("expected at least one registered breaker")
		}
		if stats, ok := resp.Breakers[patients.BreakerRepository]; ok {
			if stats.State != breaker.StateClosed {
				t.Errorf("expected CLOSED repository breaker, got %s", stats.State)
			}
		} else {
			t.Errorf("expected '%s' breaker in snapshot", patients.BreakerRepository)
		}
	})

	t.Run("ResetBreaker", func(t *testing.T) {
		server := createTestServer()

		// Register the breaker lazily via a request
		req := httptest.NewRequest(http.MethodGet, "/patients", nil)
		req.Header.Set(OrganizationIDHeader, "org-001")
		server.Router().ServeHTTP(httptest.NewRecorder(), req)

		req = httptest.NewRequest(http.MethodPost, "/breakers/"+patients.BreakerRepository+"/reset", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("ResetUnknownBreaker", func(t *testing.T) {
		server := createTestServer()

		req := httptest.NewRequest(http.MethodPost, "/breakers/no-such-breaker/reset", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	server := createTestServer()

	t.Run("HealthCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["status"] != "healthy" {
			t.Errorf("expected status 'healthy', got '%s'", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version 'test-v1', got '%s'", resp["version"])
		}
	})

	t.Run("ReadyCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("TenantMiddlewareBuildsContext", func(t *testing.T) {
		var captured *domain.TenantContext

		handler := TenantMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			captured = GetTenant(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(OrganizationIDHeader, "org-123")
		req.Header.Set(ClinicIDHeader, "clinic-9")

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if captured == nil {
			t.Fatal("expected tenant context to be set")
		}
		if captured.OrganizationID != "org-123" || captured.ClinicID != "clinic-9" {
			t.Errorf("unexpected tenant context: %+v", captured)
		}
	})

	t.Run("ClinicHeaderOptional", func(t *testing.T) {
		var captured *domain.TenantContext

		handler := TenantMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			captured = GetTenant(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(OrganizationIDHeader, "org-123")

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if captured == nil || captured.ClinicID != "" {
			t.Errorf("expected org-wide tenant context, got %+v", captured)
		}
	})

	t.Run("TracingMiddlewareSetsRequestID", func(t *testing.T) {
		var capturedRequestID string

		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v, ok := r.Context().Value(RequestIDKey).(string); ok {
				capturedRequestID = v
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedRequestID == "" {
			t.Error("expected request ID to be set")
		}

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID response header")
		}
	})

	t.Run("RecoverMiddlewareHandlesPanic", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()

		// Should not panic
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})
}
