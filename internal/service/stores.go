package service

import (
	"context"
	"ethics_gate_backend/internal/model"
	"time"
)

// The gate orchestrates against these narrow contracts so tests can
// substitute deterministic in-memory implementations. The gorm-backed
// repositories satisfy them in production.

// StateStore holds the authoritative per-(user, org) gate record. Commit
// persists a mutated row together with its audit entries and result rows as
// one unit; if any audit entry cannot be written, nothing is committed.
type StateStore interface {
	Get(ctx context.Context, userID, orgID string) (*model.UserAssessmentState, error)
	Create(ctx context.Context, st *model.UserAssessmentState) error
	FindBySessionID(ctx context.Context, sessionID string) (*model.UserAssessmentState, error)
	ListInProgress(ctx context.Context, startedBefore time.Time) ([]model.UserAssessmentState, error)
	Commit(ctx context.Context, st *model.UserAssessmentState, entries []*model.AuditLogEntry, results []*model.AssessmentResult) error
}

// AuditStore reads the hash-chained audit log. Appends go through
// StateStore.Commit.
type AuditStore interface {
	Last(ctx context.Context, userID, orgID string) (*model.AuditLogEntry, error)
	Chain(ctx context.Context, userID, orgID string) ([]model.AuditLogEntry, error)
	Query(ctx context.Context, q model.AuditQuery) ([]model.AuditLogEntry, error)
	CountBypasses(ctx context.Context, orgID string, since time.Time) (int64, error)
}

// ConfigProvider serves organization policy, re-read per decision through a
// short cache rather than cached on the gate.
type ConfigProvider interface {
	GetConfig(ctx context.Context, orgID string) (*model.OrganizationAssessmentConfig, error)
}

// UserDirectory resolves already-authenticated identifiers to local users,
// for role overrides and approver checks.
type UserDirectory interface {
	FindByExternalID(ctx context.Context, externalID, orgID string) (*model.User, error)
}

// KeyLocker serializes read-modify-write cycles per (user, org).
type KeyLocker interface {
	Lock(userID, orgID string) (unlock func())
}

// AssessmentEngine is the slice of the engine client the gate itself needs.
type AssessmentEngine interface {
	StartSession(ctx context.Context, frameworkID string) (sessionID string, questionCount int, err error)
}
