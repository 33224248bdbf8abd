package service

import (
	"context"
	"ethics_gate_backend/internal/model"
	"ethics_gate_backend/internal/repository"
	"fmt"
	"time"
)

// OrgConfigService manages the org policy documents the gate evaluates.
type OrgConfigService struct {
	configs *repository.OrgConfigRepository
}

func NewOrgConfigService(configs *repository.OrgConfigRepository) *OrgConfigService {
	return &OrgConfigService{configs: configs}
}

func (s *OrgConfigService) Get(ctx context.Context, orgID string) (*model.OrganizationAssessmentConfig, error) {
	return s.configs.GetConfig(ctx, orgID)
}

// Put validates and stores a policy document. Running sessions are not
// affected: each session carries the snapshot taken at its start.
func (s *OrgConfigService) Put(ctx context.Context, cfg *model.OrganizationAssessmentConfig) error {
	if err := validateOrgConfig(cfg); err != nil {
		return err
	}
	return s.configs.PutConfig(ctx, cfg.OrgID, cfg)
}

func validateOrgConfig(cfg *model.OrganizationAssessmentConfig) error {
	if cfg.OrgID == "" {
		return fmt.Errorf("orgId is required")
	}
	if len(cfg.Frameworks) == 0 {
		return fmt.Errorf("at least one framework is required")
	}
	if cfg.Framework("") == nil {
		return fmt.Errorf("defaultFrameworkId %q does not name a framework", cfg.DefaultFrameworkID)
	}
	for _, fw := range cfg.Frameworks {
		if fw.ID == "" {
			return fmt.Errorf("framework id is required")
		}
		if len(fw.Dimensions) == 0 {
			return fmt.Errorf("framework %s has no dimensions", fw.ID)
		}
		for _, d := range fw.Dimensions {
			if d.MinScore < 0 || d.MinScore > 100 {
				return fmt.Errorf("framework %s dimension %s: minScore out of range", fw.ID, d.Name)
			}
		}
	}
	for role, ov := range cfg.RoleOverrides {
		if !ov.Exempt && ov.FrameworkID != "" && cfg.Framework(ov.FrameworkID) == nil {
			return fmt.Errorf("role %s override names unknown framework %s", role, ov.FrameworkID)
		}
	}
	if cfg.Schedule.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Schedule.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q", cfg.Schedule.Timezone)
		}
	}
	if cfg.Schedule.WindowStart != "" {
		if _, ok := parseClock(cfg.Schedule.WindowStart); !ok {
			return fmt.Errorf("invalid windowStart %q", cfg.Schedule.WindowStart)
		}
	}
	if cfg.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.maxAttempts must be at least 1")
	}
	if cfg.Retry.CooldownMinutes < 0 {
		return fmt.Errorf("retry.cooldownMinutes must not be negative")
	}
	return nil
}
