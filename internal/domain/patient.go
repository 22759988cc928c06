package domain

import "time"

// Patient is a dental-practice patient record, scoped to an organization and
// optionally to one of its clinics.
type Patient struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	ClinicID       string    `json:"clinicId,omitempty"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	Email          string    `json:"email,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// EntityID implements TenantEntity.
func (p *Patient) EntityID() string { return p.ID }

// TenantOwner implements TenantEntity.
func (p *Patient) TenantOwner() (string, string) { return p.OrganizationID, p.ClinicID }

// PatientUpdate is a partial update for a patient record. Tenant fields are
// immutable after creation and deliberately absent here.
type PatientUpdate struct {
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Email     *string `json:"email,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Notes     *string `json:"notes,omitempty"`
}

// Apply copies the set fields onto the patient and bumps UpdatedAt.
func (u *PatientUpdate) Apply(p *Patient) {
	if u.FirstName != nil {
		p.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		p.LastName = *u.LastName
	}
	if u.Email != nil {
		p.Email = *u.Email
	}
	if u.Phone != nil {
		p.Phone = *u.Phone
	}
	if u.Notes != nil {
		p.Notes = *u.Notes
	}
	p.UpdatedAt = time.Now().UTC()
}
