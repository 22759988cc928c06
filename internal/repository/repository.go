// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dentalstack/aegis/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.PatientRepository using database/sql.
// Works with both SQLite and PostgreSQL drivers. Every read and mutation
// filters by organization (and clinic, when the context names one), so a
// record outside the tenant scope is indistinguishable from a missing one.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.PatientRepository, error) {
	if cfg.Driver == "memory" {
		return NewMemoryPatientRepository(), nil
	}

	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// Save stores a new patient record.
func (r *SQLRepository) Save(ctx context.Context, p *domain.Patient) error {
	if p.OrganizationID == "" {
		return fmt.Errorf("%w: patient %s", domain.ErrMissingTenant, p.ID)
	}
	if p.ID == "" {
		return fmt.Errorf("%w: patient ID is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}

	query := `
		INSERT INTO patients (
			id, organization_id, clinic_id, first_name, last_name,
			email, phone, notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		p.ID, p.OrganizationID, p.ClinicID,
		p.FirstName, p.LastName,
		p.Email, p.Phone, p.Notes,
		p.CreatedAt, p.UpdatedAt,
	)
	return err
}

// FindByID retrieves a patient within the tenant scope.
func (r *SQLRepository) FindByID(ctx context.Context, t *domain.TenantContext, id string) (*domain.Patient, error) {
	if t == nil || t.OrganizationID == "" {
		return nil, domain.ErrMissingTenant
	}

	query := `
		SELECT id, organization_id, clinic_id, first_name, last_name,
			   email, phone, notes, created_at, updated_at
		FROM patients
		WHERE organization_id = ? AND id = ?
	`
	args := []any{t.OrganizationID, id}

	if t.ClinicID != "" {
		query += ` AND clinic_id = ?`
		args = append(args, t.ClinicID)
	}

	var p domain.Patient
	err := r.db.QueryRowContext(ctx, r.rebind(query), args...).Scan(
		&p.ID, &p.OrganizationID, &p.ClinicID,
		&p.FirstName, &p.LastName,
		&p.Email, &p.Phone, &p.Notes,
		&p.CreatedAt, &p.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindAll retrieves every patient visible from the tenant context.
func (r *SQLRepository) FindAll(ctx context.Context, t *domain.TenantContext) ([]*domain.Patient, error) {
	if t == nil || t.OrganizationID == "" {
		return nil, domain.ErrMissingTenant
	}

	query := `
		SELECT id, organization_id, clinic_id, first_name, last_name,
			   email, phone, notes, created_at, updated_at
		FROM patients
		WHERE organization_id = ?
	`
	args := []any{t.OrganizationID}

	if t.ClinicID != "" {
		query += ` AND clinic_id = ?`
		args = append(args, t.ClinicID)
	}
	query += ` ORDER BY last_name, first_name`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patients []*domain.Patient
	for rows.Next() {
		var p domain.Patient
		if err := rows.Scan(
			&p.ID, &p.OrganizationID, &p.ClinicID,
			&p.FirstName, &p.LastName,
			&p.Email, &p.Phone, &p.Notes,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		patients = append(patients, &p)
	}

	return patients, rows.Err()
}

// Update applies a partial update within the tenant scope. The tenant columns
// are never part of the UPDATE statement.
func (r *SQLRepository) Update(ctx context.Context, t *domain.TenantContext, id string, upd *domain.PatientUpdate) (*domain.Patient, error) {
	current, err := r.FindByID(ctx, t, id)
	if err != nil {
		return nil, err
	}

	upd.Apply(current)

	query := `
		UPDATE patients
		SET first_name = ?, last_name = ?, email = ?, phone = ?, notes = ?, updated_at = ?
		WHERE organization_id = ? AND id = ?
	`
	args := []any{
		current.FirstName, current.LastName,
		current.Email, current.Phone, current.Notes,
		current.UpdatedAt,
		t.OrganizationID, id,
	}

	if t.ClinicID != "" {
		query += ` AND clinic_id = ?`
		args = append(args, t.ClinicID)
	}

	if _, err := r.db.ExecContext(ctx, r.rebind(query), args...); err != nil {
		return nil, err
	}
	return current, nil
}

// Delete removes a patient within the tenant scope. Returns false for
// not-found-or-forbidden.
func (r *SQLRepository) Delete(ctx context.Context, t *domain.TenantContext, id string) (bool, error) {
	if t == nil || t.OrganizationID == "" {
		return false, domain.ErrMissingTenant
	}

	query := `DELETE FROM patients WHERE organization_id = ? AND id = ?`
	args := []any{t.OrganizationID, id}

	if t.ClinicID != "" {
		query += ` AND clinic_id = ?`
		args = append(args, t.ClinicID)
	}

	res, err := r.db.ExecContext(ctx, r.rebind(query), args...)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
