package repository

import (
	"context"
	"encoding/json"
	"errors"
	"ethics_gate_backend/internal/model"
	"ethics_gate_backend/internal/util"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// OrgConfigRepository serves organization policy documents. Reads go through
// a short redis cache so policy changes propagate within the TTL without the
// gate needing change notifications.
type OrgConfigRepository struct {
	DB       *gorm.DB
	Redis    *redis.Client
	CacheTTL time.Duration
}

func NewOrgConfigRepository(db *gorm.DB, rdb *redis.Client, cacheTTL time.Duration) *OrgConfigRepository {
	if cacheTTL <= 0 || cacheTTL > 60*time.Second {
		cacheTTL = 60 * time.Second
	}
	return &OrgConfigRepository{DB: db, Redis: rdb, CacheTTL: cacheTTL}
}

func configCacheKey(orgID string) string {
	return fmt.Sprintf("gate:orgcfg:%s", orgID)
}

func (r *OrgConfigRepository) GetConfig(ctx context.Context, orgID string) (*model.OrganizationAssessmentConfig, error) {
	if r.Redis != nil {
		if raw, err := r.Redis.Get(ctx, configCacheKey(orgID)).Bytes(); err == nil {
			var cfg model.OrganizationAssessmentConfig
			if json.Unmarshal(raw, &cfg) == nil {
				return &cfg, nil
			}
		}
	}

	var rec model.OrgConfigRecord
	err := r.DB.WithContext(ctx).Where("org_id = ?", orgID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrConfigNotFound
	}
	if err != nil {
		return nil, err
	}

	var cfg model.OrganizationAssessmentConfig
	if err := json.Unmarshal(rec.Document, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config document for org %s: %w", orgID, err)
	}
	cfg.OrgID = orgID

	if r.Redis != nil {
		if raw, err := json.Marshal(&cfg); err == nil {
			r.Redis.Set(ctx, configCacheKey(orgID), raw, r.CacheTTL)
		}
	}

	return &cfg, nil
}

// PutConfig upserts the policy document and drops the cache entry.
func (r *OrgConfigRepository) PutConfig(ctx context.Context, orgID string, cfg *model.OrganizationAssessmentConfig) error {
	cfg.OrgID = orgID
	doc, err := json.Marshal(cfg)
	if err != nil {
		return err
	}

	var rec model.OrgConfigRecord
	err = r.DB.WithContext(ctx).Where("org_id = ?", orgID).First(&rec).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		rec = model.OrgConfigRecord{OrgID: orgID, Document: doc}
		err = r.DB.WithContext(ctx).Create(&rec).Error
	case err == nil:
		rec.Document = doc
		err = r.DB.WithContext(ctx).Save(&rec).Error
	}
	if err != nil {
		return err
	}

	if r.Redis != nil {
		r.Redis.Del(ctx, configCacheKey(orgID))
	}
	return nil
}
