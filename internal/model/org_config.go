package model

import (
	"encoding/json"
	"time"
)

// ScheduleConfig defines when the daily assessment is due.
type ScheduleConfig struct {
	WindowStart  string `json:"windowStart"` // "HH:MM" local to Timezone
	WindowEnd    string `json:"windowEnd"`
	Timezone     string `json:"timezone"`
	GraceMinutes int    `json:"graceMinutes"`
	SkipWeekends bool   `json:"skipWeekends"`
}

// DimensionThreshold is the pass floor for one scored dimension.
type DimensionThreshold struct {
	Name     string  `json:"name"`
	MinScore float64 `json:"minScore"`
}

// FrameworkConfig names a rubric the external engine can run.
type FrameworkConfig struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Dimensions    []DimensionThreshold `json:"dimensions"`
	QuestionCount int                  `json:"questionCount"`
}

// RoleOverride adjusts policy for a given role.
type RoleOverride struct {
	Exempt      bool   `json:"exempt"`
	FrameworkID string `json:"frameworkId,omitempty"`
}

type RetryPolicy struct {
	MaxAttempts     int `json:"maxAttempts"`
	CooldownMinutes int `json:"cooldownMinutes"`
}

type BypassPolicy struct {
	ApproverRoles []string `json:"approverRoles"`
	MaxPerMonth   int      `json:"maxPerMonth"`
}

// OrganizationAssessmentConfig is the org policy document. Read-only to the
// gate; managed externally and re-read per decision through a short cache.
// swagger:model OrganizationAssessmentConfig
type OrganizationAssessmentConfig struct {
	OrgID              string                  `json:"orgId"`
	Schedule           ScheduleConfig          `json:"schedule"`
	Frameworks         []FrameworkConfig       `json:"frameworks"`
	DefaultFrameworkID string                  `json:"defaultFrameworkId"`
	RoleOverrides      map[string]RoleOverride `json:"roleOverrides,omitempty"`
	Retry              RetryPolicy             `json:"retry"`
	Bypass             BypassPolicy            `json:"bypass"`
	SessionMaxMinutes  int                     `json:"sessionMaxMinutes"`
}

// Framework returns the framework with the given id, or the default one
// when id is empty.
func (c *OrganizationAssessmentConfig) Framework(id string) *FrameworkConfig {
	if id == "" {
		id = c.DefaultFrameworkID
	}
	for i := range c.Frameworks {
		if c.Frameworks[i].ID == id {
			return &c.Frameworks[i]
		}
	}
	return nil
}

// FrameworkForRole resolves role overrides to the framework that governs a
// user, or nil when the role is exempt.
func (c *OrganizationAssessmentConfig) FrameworkForRole(role string) *FrameworkConfig {
	if ov, ok := c.RoleOverrides[role]; ok {
		if ov.Exempt {
			return nil
		}
		if ov.FrameworkID != "" {
			return c.Framework(ov.FrameworkID)
		}
	}
	return c.Framework("")
}

// SessionMaxDuration converts the configured limit, defaulting to 30 minutes.
func (c *OrganizationAssessmentConfig) SessionMaxDuration() time.Duration {
	if c.SessionMaxMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.SessionMaxMinutes) * time.Minute
}

// OrgConfigRecord stores the policy document, one row per organization.
type OrgConfigRecord struct {
	BaseModel
	OrgID    string          `gorm:"size:64;uniqueIndex;not null" json:"orgId"`
	Document json.RawMessage `gorm:"type:json;not null" json:"document"`
}

func (OrgConfigRecord) TableName() string {
	return "org_assessment_configs"
}
