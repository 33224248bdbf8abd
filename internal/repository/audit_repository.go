package repository

import (
	"context"
	"errors"
	"ethics_gate_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

// AuditRepository reads the append-only audit chain. Writes go through
// StateRepository.Commit so a transition and its entries share a transaction.
type AuditRepository struct {
	DB *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{DB: db}
}

// Last returns the newest entry of a (user, org) chain, or nil for an empty
// chain. Callers hold the per-key lock, which keeps ChainSeq gapless.
func (r *AuditRepository) Last(ctx context.Context, userID, orgID string) (*model.AuditLogEntry, error) {
	var e model.AuditLogEntry
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND org_id = ?", userID, orgID).
		Order("chain_seq DESC").
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Chain returns a full (user, org) chain in append order, for verification.
func (r *AuditRepository) Chain(ctx context.Context, userID, orgID string) ([]model.AuditLogEntry, error) {
	var entries []model.AuditLogEntry
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND org_id = ?", userID, orgID).
		Order("chain_seq ASC").
		Find(&entries).Error
	return entries, err
}

func (r *AuditRepository) Query(ctx context.Context, q model.AuditQuery) ([]model.AuditLogEntry, error) {
	db := r.DB.WithContext(ctx).Model(&model.AuditLogEntry{})
	if q.UserID != "" {
		db = db.Where("user_id = ?", q.UserID)
	}
	if q.OrgID != "" {
		db = db.Where("org_id = ?", q.OrgID)
	}
	if q.EventType != "" {
		db = db.Where("event_type = ?", q.EventType)
	}
	if !q.From.IsZero() {
		db = db.Where("timestamp >= ?", q.From)
	}
	if !q.To.IsZero() {
		db = db.Where("timestamp < ?", q.To)
	}
	limit := q.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var entries []model.AuditLogEntry
	err := db.Order("entry_id DESC").Limit(limit).Find(&entries).Error
	return entries, err
}

// CountBypasses counts bypass events for an org since the given time, used
// to enforce the monthly bypass quota.
func (r *AuditRepository) CountBypasses(ctx context.Context, orgID string, since time.Time) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.AuditLogEntry{}).
		Where("org_id = ? AND event_type = ? AND timestamp >= ?", orgID, model.AuditBypass, since).
		Count(&count).Error
	return count, err
}
