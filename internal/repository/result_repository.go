package repository

import (
	"context"
	"ethics_gate_backend/internal/model"

	"gorm.io/gorm"
)

type ResultRepository struct {
	DB *gorm.DB
}

func NewResultRepository(db *gorm.DB) *ResultRepository {
	return &ResultRepository{DB: db}
}

func (r *ResultRepository) ListByUser(ctx context.Context, userID, orgID string, page, limit int) ([]model.AssessmentResult, int64, error) {
	var results []model.AssessmentResult
	var total int64

	query := r.DB.WithContext(ctx).Model(&model.AssessmentResult{}).
		Where("user_id = ? AND org_id = ?", userID, orgID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	err := query.Order("completed_at DESC").Offset(offset).Limit(limit).Find(&results).Error
	return results, total, err
}
