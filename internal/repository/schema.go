package repository

// Schema definitions for the Aegis database.
// Compatible with both SQLite and PostgreSQL.

const schemaPatients = `
CREATE TABLE IF NOT EXISTS patients (
    id TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL,
    clinic_id TEXT NOT NULL DEFAULT '',
    first_name TEXT NOT NULL,
    last_name TEXT NOT NULL,
    email TEXT NOT NULL DEFAULT '',
    phone TEXT NOT NULL DEFAULT '',
    notes TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_patients_org ON patients(organization_id);
CREATE INDEX IF NOT EXISTS idx_patients_clinic ON patients(organization_id, clinic_id);
CREATE INDEX IF NOT EXISTS idx_patients_name ON patients(organization_id, last_name, first_name);
`

// AllSchemas returns every DDL statement to run at startup.
func AllSchemas() []string {
	return []string{
		schemaPatients,
	}
}
