package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/dentalstack/aegis/internal/domain"
)

// MemoryStore is a generic in-memory store for tenant-scoped entities. It
// enforces the same isolation rules as the SQL repository: saving without an
// organization fails loudly, and reads under a mismatched tenant context
// behave exactly like reads of records that do not exist. Used as the test
// double for persistence and as the dev-mode driver.
type MemoryStore[T domain.TenantEntity] struct {
	mu    sync.RWMutex
	items map[string]T
}

// NewMemoryStore creates an empty store.
func NewMemoryStore[T domain.TenantEntity]() *MemoryStore[T] {
	return &MemoryStore[T]{
		items: make(map[string]T),
	}
}

// Save stores an entity. Rejects entities without an organization before any
// mutation of the store; a record without tenant ownership would be globally
// visible.
func (s *MemoryStore[T]) Save(entity T) error {
	org, _ := entity.TenantOwner()
	if org == "" {
		return fmt.Errorf("%w: entity %s", domain.ErrMissingTenant, entity.EntityID())
	}
	if entity.EntityID() == "" {
		return fmt.Errorf("%w: entity ID is required", ErrInvalidInput)
	}

	s.mu.Lock()
	s.items[entity.EntityID()] = entity
	s.mu.Unlock()
	return nil
}

// FindByID returns the entity, or ErrNotFound when it is absent or outside
// the tenant scope. Cross-tenant access is indistinguishable from not-found.
func (s *MemoryStore[T]) FindByID(t *domain.TenantContext, id string) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var zero T
	entity, ok := s.items[id]
	if !ok {
		return zero, ErrNotFound
	}
	if !t.Matches(entity.TenantOwner()) {
		return zero, ErrNotFound
	}
	return entity, nil
}

// FindAll returns every entity visible from the tenant context.
func (s *MemoryStore[T]) FindAll(t *domain.TenantContext) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []T
	for _, entity := range s.items {
		if t.Matches(entity.TenantOwner()) {
			out = append(out, entity)
		}
	}
	return out
}

// Update replaces the stored entity with mutate's result, tenant-gated like
// FindByID. Tenant ownership is immutable post-creation: a mutation that
// moves the entity to another tenant is rejected.
func (s *MemoryStore[T]) Update(t *domain.TenantContext, id string, mutate func(T) T) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	entity, ok := s.items[id]
	if !ok {
		return zero, ErrNotFound
	}
	org, clinic := entity.TenantOwner()
	if !t.Matches(org, clinic) {
		return zero, ErrNotFound
	}

	updated := mutate(entity)
	if newOrg, newClinic := updated.TenantOwner(); newOrg != org || newClinic != clinic {
		return zero, fmt.Errorf("%w: tenant ownership is immutable", ErrInvalidInput)
	}

	s.items[id] = updated
	return updated, nil
}

// Delete removes the entity, tenant-gated. Returns false for
// not-found-or-forbidden.
func (s *MemoryStore[T]) Delete(t *domain.TenantContext, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entity, ok := s.items[id]
	if !ok {
		return false
	}
	if !t.Matches(entity.TenantOwner()) {
		return false
	}
	delete(s.items, id)
	return true
}

// Len returns the number of stored entities across all tenants.
func (s *MemoryStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// MemoryPatientRepository implements domain.PatientRepository over a
// MemoryStore. Records are copied on the way in and out so callers never
// share memory with the store.
type MemoryPatientRepository struct {
	store *MemoryStore[*domain.Patient]
}

// NewMemoryPatientRepository creates an empty in-memory patient repository.
func NewMemoryPatientRepository() *MemoryPatientRepository {
	return &MemoryPatientRepository{
		store: NewMemoryStore[*domain.Patient](),
	}
}

// Save stores a new patient.
func (r *MemoryPatientRepository) Save(ctx context.Context, p *domain.Patient) error {
	cp := *p
	return r.store.Save(&cp)
}

// FindByID retrieves a patient within the tenant scope.
func (r *MemoryPatientRepository) FindByID(ctx context.Context, t *domain.TenantContext, id string) (*domain.Patient, error) {
	p, err := r.store.FindByID(t, id)
	if err != nil {
		return nil, err
	}
	cp := *p
	return &cp, nil
}

// FindAll retrieves every patient visible from the tenant context.
func (r *MemoryPatientRepository) FindAll(ctx context.Context, t *domain.TenantContext) ([]*domain.Patient, error) {
	found := r.store.FindAll(t)
	patients := make([]*domain.Patient, 0, len(found))
	for _, p := range found {
		cp := *p
		patients = append(patients, &cp)
	}
	return patients, nil
}

// Update applies a partial update. PatientUpdate carries no tenant fields, so
// tenant ownership cannot change through this path.
func (r *MemoryPatientRepository) Update(ctx context.Context, t *domain.TenantContext, id string, upd *domain.PatientUpdate) (*domain.Patient, error) {
	updated, err := r.store.Update(t, id, func(p *domain.Patient) *domain.Patient {
		cp := *p
		upd.Apply(&cp)
		return &cp
	})
	if err != nil {
		return nil, err
	}
	cp := *updated
	return &cp, nil
}

// Delete removes a patient within the tenant scope.
func (r *MemoryPatientRepository) Delete(ctx context.Context, t *domain.TenantContext, id string) (bool, error) {
	return r.store.Delete(t, id), nil
}

// Ping checks store health.
func (r *MemoryPatientRepository) Ping(ctx context.Context) error {
	return nil
}

// Close clears the store.
func (r *MemoryPatientRepository) Close() error {
	r.store.mu.Lock()
	r.store.items = make(map[string]*domain.Patient)
	r.store.mu.Unlock()
	return nil
}
