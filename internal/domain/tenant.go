// Package domain defines the core interfaces and types for Aegis.
package domain

import "errors"

// ErrMissingTenant signals a tenant-isolation violation: an operation that
// requires an organization scope was invoked without one. This is a programming
// error in the caller, not a transient condition.
var ErrMissingTenant = errors.New("organization ID is required")

// GlobalPrefix is the reserved key prefix for entries that belong to no tenant.
// Organization IDs are UUIDs in production, so the prefix never collides with a
// real tenant prefix.
const GlobalPrefix = "global"

// TenantContext identifies the tenant an operation runs under: an organization,
// optionally narrowed to one of its clinics. Immutable value object.
type TenantContext struct {
	OrganizationID string `json:"organizationId"`
	ClinicID       string `json:"clinicId,omitempty"`
}

// ScopePrefix returns the key prefix for a tenant context. A nil context maps
// to the reserved global prefix.
func ScopePrefix(t *TenantContext) string {
	if t == nil || t.OrganizationID == "" {
		return GlobalPrefix + ":"
	}
	if t.ClinicID == "" {
		return t.OrganizationID + ":"
	}
	return t.OrganizationID + ":" + t.ClinicID + ":"
}

// ScopeKey derives the storage key for a base key under a tenant context.
// Distinct tenant contexts always yield distinct keys for the same base key;
// this is the central isolation property of the whole design.
func ScopeKey(key string, t *TenantContext) string {
	return ScopePrefix(t) + key
}

// Matches reports whether an entity scoped to (org, clinic) is visible from
// this context. The organization must match exactly; the clinic matches when
// the context leaves it unspecified or it is equal.
func (t *TenantContext) Matches(organizationID, clinicID string) bool {
	if t == nil || t.OrganizationID != organizationID {
		return false
	}
	if t.ClinicID != "" && t.ClinicID != clinicID {
		return false
	}
	return true
}

// TenantEntity is implemented by records that carry tenant ownership.
type TenantEntity interface {
	EntityID() string
	TenantOwner() (organizationID, clinicID string)
}
