package repository

import (
	"context"
	"errors"
	"ethics_gate_backend/internal/model"
	"ethics_gate_backend/internal/util"
	"time"

	"gorm.io/gorm"
)

type StateRepository struct {
	DB *gorm.DB
}

func NewStateRepository(db *gorm.DB) *StateRepository {
	return &StateRepository{DB: db}
}

func (r *StateRepository) Get(ctx context.Context, userID, orgID string) (*model.UserAssessmentState, error) {
	var st model.UserAssessmentState
	err := r.DB.WithContext(ctx).Where("user_id = ? AND org_id = ?", userID, orgID).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *StateRepository) Create(ctx context.Context, st *model.UserAssessmentState) error {
	return r.DB.WithContext(ctx).Create(st).Error
}

func (r *StateRepository) FindBySessionID(ctx context.Context, sessionID string) (*model.UserAssessmentState, error) {
	var st model.UserAssessmentState
	err := r.DB.WithContext(ctx).Where("session_id = ?", sessionID).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ListInProgress returns rows whose session started before the cutoff, for
// the expiry sweep. Per-org limits are applied by the caller.
func (r *StateRepository) ListInProgress(ctx context.Context, startedBefore time.Time) ([]model.UserAssessmentState, error) {
	var rows []model.UserAssessmentState
	err := r.DB.WithContext(ctx).
		Where("state = ? AND session_started_at < ?", model.StateInProgress, startedBefore).
		Find(&rows).Error
	return rows, err
}

// Commit persists a mutated state row together with its audit entries and
// result rows as one transaction. A failed audit insert rolls back the state
// change: a transition is not committed unless its audit entry is durable.
func (r *StateRepository) Commit(ctx context.Context, st *model.UserAssessmentState, entries []*model.AuditLogEntry, results []*model.AssessmentResult) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(st).Error; err != nil {
			return err
		}
		for _, e := range entries {
			if err := tx.Create(e).Error; err != nil {
				return util.ErrAuditWriteFailure
			}
		}
		for _, res := range results {
			if err := tx.Create(res).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
