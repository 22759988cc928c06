package domain

import (
	"context"
	"time"
)

// PatientRepository defines persistence for patient records.
// Every read and mutation is gated by tenant context: a record owned by a
// different organization, or by a different clinic when the context names one,
// is indistinguishable from a record that does not exist.
type PatientRepository interface {
	// Save stores a new patient. Fails with ErrMissingTenant when the record
	// carries no organization ID.
	Save(ctx context.Context, p *Patient) error

	// FindByID returns the patient, or ErrNotFound when absent or outside the
	// tenant scope.
	FindByID(ctx context.Context, t *TenantContext, id string) (*Patient, error)

	// FindAll returns every patient visible from the tenant context.
	FindAll(ctx context.Context, t *TenantContext) ([]*Patient, error)

	// Update applies a partial update. Tenant fields are immutable and never
	// written. Returns ErrNotFound for absent or out-of-scope records.
	Update(ctx context.Context, t *TenantContext, id string, upd *PatientUpdate) (*Patient, error)

	// Delete removes a patient. Returns false for not-found-or-forbidden.
	Delete(ctx context.Context, t *TenantContext, id string) (bool, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "memory", "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
