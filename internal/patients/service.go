// Package patients provides the patient-record application service: reads go
// through the cache-aside manager, repository calls run under a circuit
// breaker, and writes broadcast invalidation events so peer nodes drop their
// local copies.
package patients

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dentalstack/aegis/internal/breaker"
	"github.com/dentalstack/aegis/internal/cache"
	"github.com/dentalstack/aegis/internal/domain"
)

// Breaker names for the service's downstream dependencies.
const (
	BreakerRepository = "patients-db"
	BreakerEventBus   = "event-bus"
)

const (
	keyPrefix = "patients:"
	listKey   = "patients:all"
	listTTL   = time.Minute
)

// Service coordinates patient reads and writes across the repository, cache
// and event bus.
type Service struct {
	repo     domain.PatientRepository
	cache    *cache.Manager
	breakers *breaker.Registry
	bus      domain.EventBus
	nodeID   string
}

// NewService creates a patient service. bus may be nil on single-node
// deployments without cross-node invalidation.
func NewService(repo domain.PatientRepository, cacheMgr *cache.Manager, breakers *breaker.Registry, bus domain.EventBus) *Service {
	return &Service{
		repo:     repo,
		cache:    cacheMgr,
		breakers: breakers,
		bus:      bus,
		nodeID:   uuid.New().String(),
	}
}

// CreateInput carries the fields for a new patient record.
type CreateInput struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// Create stores a new patient under the tenant context and invalidates the
// tenant's listing cache.
func (s *Service) Create(ctx context.Context, t *domain.TenantContext, in *CreateInput) (*domain.Patient, error) {
	if t == nil || t.OrganizationID == "" {
		return nil, domain.ErrMissingTenant
	}

	now := time.Now().UTC()
	p := &domain.Patient{
		ID:             uuid.New().String(),
		OrganizationID: t.OrganizationID,
		ClinicID:       t.ClinicID,
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		Email:          in.Email,
		Phone:          in.Phone,
		Notes:          in.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err := breaker.Execute(ctx, s.breakers.Get(BreakerRepository), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.repo.Save(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, t, listKey)
	return p, nil
}

// Get returns a patient, cached per tenant-scoped key. A cache hit never
// touches the repository.
func (s *Service) Get(ctx context.Context, t *domain.TenantContext, id string) (*domain.Patient, error) {
	return cache.GetOrSet(ctx, s.cache, t, keyPrefix+id, 0, func(ctx context.Context) (*domain.Patient, error) {
		return breaker.Execute(ctx, s.breakers.Get(BreakerRepository), func(ctx context.Context) (*domain.Patient, error) {
			return s.repo.FindByID(ctx, t, id)
		})
	})
}

// List returns every patient visible from the tenant context, cached briefly
// since any write invalidates it.
func (s *Service) List(ctx context.Context, t *domain.TenantContext) ([]*domain.Patient, error) {
	return cache.GetOrSet(ctx, s.cache, t, listKey, listTTL, func(ctx context.Context) ([]*domain.Patient, error) {
		return breaker.Execute(ctx, s.breakers.Get(BreakerRepository), func(ctx context.Context) ([]*domain.Patient, error) {
			return s.repo.FindAll(ctx, t)
		})
	})
}

// Update applies a partial update and drops the record's cache entries.
func (s *Service) Update(ctx context.Context, t *domain.TenantContext, id string, upd *domain.PatientUpdate) (*domain.Patient, error) {
	updated, err := breaker.Execute(ctx, s.breakers.Get(BreakerRepository), func(ctx context.Context) (*domain.Patient, error) {
		return s.repo.Update(ctx, t, id, upd)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, t, keyPrefix+id)
	s.invalidate(ctx, t, listKey)
	return updated, nil
}

// Delete removes a patient and drops the record's cache entries. Returns
// false for not-found-or-forbidden.
func (s *Service) Delete(ctx context.Context, t *domain.TenantContext, id string) (bool, error) {
	deleted, err := breaker.Execute(ctx, s.breakers.Get(BreakerRepository), func(ctx context.Context) (bool, error) {
		return s.repo.Delete(ctx, t, id)
	})
	if err != nil || !deleted {
		return deleted, err
	}

	s.invalidate(ctx, t, keyPrefix+id)
	s.invalidate(ctx, t, listKey)
	return true, nil
}

// InvalidateTenant drops every cached entry for the tenant, locally and on
// peer nodes.
func (s *Service) InvalidateTenant(ctx context.Context, t *domain.TenantContext) {
	s.cache.InvalidateTenant(ctx, t)
	s.publish(ctx, &domain.InvalidationEvent{Tenant: t})
}

// InvalidateKey drops one cached entry for the tenant, locally and on peer
// nodes.
func (s *Service) InvalidateKey(ctx context.Context, t *domain.TenantContext, key string) {
	s.invalidate(ctx, t, key)
}

// InvalidatePattern drops the tenant's cached entries matching the glob,
// locally and on peer nodes.
func (s *Service) InvalidatePattern(ctx context.Context, t *domain.TenantContext, pattern string) {
	s.cache.DeletePattern(ctx, t, pattern)
	s.publish(ctx, &domain.InvalidationEvent{Tenant: t, Pattern: pattern})
}

// NodeID identifies this service instance in invalidation events.
func (s *Service) NodeID() string {
	return s.nodeID
}

// invalidate drops a local cache entry and tells peer nodes to do the same.
func (s *Service) invalidate(ctx context.Context, t *domain.TenantContext, key string) {
	s.cache.Delete(ctx, t, key)
	s.publish(ctx, &domain.InvalidationEvent{Tenant: t, Key: key})
}

// publish broadcasts an invalidation event under the bus breaker. A dead bus
// must not fail writes, so failures degrade to a local-only invalidation; the
// breaker keeps a flapping bus from being hammered.
func (s *Service) publish(ctx context.Context, event *domain.InvalidationEvent) {
	if s.bus == nil {
		return
	}
	event.Origin = s.nodeID

	cb := s.breakers.Get(BreakerEventBus)
	breaker.ExecuteWithFallback(ctx, cb, struct{}{}, func(ctx context.Context) (struct{}, error) {
		err := s.bus.Publish(ctx, event)
		if err != nil {
			slog.Warn("invalidation publish failed", "key", event.Key, "pattern", event.Pattern, "error", err)
		}
		return struct{}{}, err
	})
}
