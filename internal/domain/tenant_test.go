package domain

import "testing"

func TestScopeKey(t *testing.T) {
	t.Run("GlobalPrefix", func(t *testing.T) {
		key := ScopeKey("settings", nil)
		if key != "global:settings" {
			t.Errorf("expected 'global:settings', got '%s'", key)
		}
	})

	t.Run("OrganizationOnly", func(t *testing.T) {
		key := ScopeKey("settings", &TenantContext{OrganizationID: "org-001"})
		if key != "org-001:settings" {
			t.Errorf("expected 'org-001:settings', got '%s'", key)
		}
	})

	t.Run("OrganizationAndClinic", func(t *testing.T) {
		key := ScopeKey("settings", &TenantContext{OrganizationID: "org-001", ClinicID: "clinic-01"})
		if key != "org-001:clinic-01:settings" {
			t.Errorf("expected 'org-001:clinic-01:settings', got '%s'", key)
		}
	})

	t.Run("DistinctTenantsYieldDistinctKeys", func(t *testing.T) {
		contexts := []*TenantContext{
			nil,
			{OrganizationID: "org-001"},
			{OrganizationID: "org-002"},
			{OrganizationID: "org-001", ClinicID: "clinic-01"},
			{OrganizationID: "org-001", ClinicID: "clinic-02"},
			{OrganizationID: "org-002", ClinicID: "clinic-01"},
		}

		seen := make(map[string]int)
		for i, tc := range contexts {
			key := ScopeKey("patients", tc)
			if prev, ok := seen[key]; ok {
				t.Errorf("contexts %d and %d collide on key '%s'", prev, i, key)
			}
			seen[key] = i
		}
	})

	t.Run("EmptyOrganizationFallsBackToGlobal", func(t *testing.T) {
		key := ScopeKey("settings", &TenantContext{})
		if key != "global:settings" {
			t.Errorf("expected 'global:settings', got '%s'", key)
		}
	})
}

func TestTenantMatches(t *testing.T) {
	t.Run("SameOrganization", func(t *testing.T) {
		tc := &TenantContext{OrganizationID: "org-001"}
		if !tc.Matches("org-001", "clinic-01") {
			t.Error("org-wide context should see clinic-scoped entity")
		}
	})

	t.Run("DifferentOrganization", func(t *testing.T) {
		tc := &TenantContext{OrganizationID: "org-001"}
		if tc.Matches("org-002", "") {
			t.Error("context must not see another organization's entity")
		}
	})

	t.Run("ClinicMismatch", func(t *testing.T) {
		tc := &TenantContext{OrganizationID: "org-001", ClinicID: "clinic-01"}
		if tc.Matches("org-001", "clinic-02") {
			t.Error("clinic-scoped context must not see another clinic's entity")
		}
	})

	t.Run("ClinicMatch", func(t *testing.T) {
		tc := &TenantContext{OrganizationID: "org-001", ClinicID: "clinic-01"}
		if !tc.Matches("org-001", "clinic-01") {
			t.Error("expected clinic match")
		}
	})

	t.Run("NilContext", func(t *testing.T) {
		var tc *TenantContext
		if tc.Matches("org-001", "") {
			t.Error("nil context must not match any entity")
		}
	})
}
