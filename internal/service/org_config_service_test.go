package service

import (
	"ethics_gate_backend/internal/model"
	"testing"
)

func TestValidateOrgConfig(t *testing.T) {
	base := func() *model.OrganizationAssessmentConfig { return testPolicy() }

	cases := []struct {
		name    string
		mutate  func(c *model.OrganizationAssessmentConfig)
		wantErr bool
	}{
		{"valid", func(c *model.OrganizationAssessmentConfig) {}, false},
		{"missing org id", func(c *model.OrganizationAssessmentConfig) { c.OrgID = "" }, true},
		{"no frameworks", func(c *model.OrganizationAssessmentConfig) { c.Frameworks = nil }, true},
		{"bad default framework", func(c *model.OrganizationAssessmentConfig) { c.DefaultFrameworkID = "nope" }, true},
		{"framework without dimensions", func(c *model.OrganizationAssessmentConfig) {
			c.Frameworks[0].Dimensions = nil
		}, true},
		{"threshold out of range", func(c *model.OrganizationAssessmentConfig) {
			c.Frameworks[0].Dimensions[0].MinScore = 101
		}, true},
		{"override names unknown framework", func(c *model.OrganizationAssessmentConfig) {
			c.RoleOverrides = map[string]model.RoleOverride{"manager": {FrameworkID: "nope"}}
		}, true},
		{"exempt override is fine", func(c *model.OrganizationAssessmentConfig) {
			c.RoleOverrides = map[string]model.RoleOverride{"admin": {Exempt: true}}
		}, false},
		{"bad timezone", func(c *model.OrganizationAssessmentConfig) { c.Schedule.Timezone = "Mars/Olympus" }, true},
		{"bad window start", func(c *model.OrganizationAssessmentConfig) { c.Schedule.WindowStart = "25:99" }, true},
		{"zero max attempts", func(c *model.OrganizationAssessmentConfig) { c.Retry.MaxAttempts = 0 }, true},
		{"negative cooldown", func(c *model.OrganizationAssessmentConfig) { c.Retry.CooldownMinutes = -1 }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := validateOrgConfig(cfg)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tc.wantErr)
			}
		})
	}
}

func TestFrameworkForRole(t *testing.T) {
	cfg := testPolicy()
	cfg.Frameworks = append(cfg.Frameworks, model.FrameworkConfig{
		ID:         "fw-strict",
		Dimensions: []model.DimensionThreshold{{Name: "honesty", MinScore: 90}},
	})
	cfg.RoleOverrides = map[string]model.RoleOverride{
		"admin":   {Exempt: true},
		"manager": {FrameworkID: "fw-strict"},
	}

	if fw := cfg.FrameworkForRole("admin"); fw != nil {
		t.Fatalf("exempt role got framework %s", fw.ID)
	}
	if fw := cfg.FrameworkForRole("manager"); fw == nil || fw.ID != "fw-strict" {
		t.Fatal("override framework not resolved")
	}
	if fw := cfg.FrameworkForRole("member"); fw == nil || fw.ID != "fw-default" {
		t.Fatal("default framework not resolved")
	}
}
