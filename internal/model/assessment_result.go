package model

import (
	"encoding/json"
	"time"
)

// AssessmentResult is the append-only history of completed runs. The state
// row only carries the latest one.
// swagger:model AssessmentResult
type AssessmentResult struct {
	BaseModel
	RunID          string          `gorm:"size:36;uniqueIndex;not null" json:"runId"`
	UserID         string          `gorm:"size:64;index:idx_result_user;not null" json:"userId"`
	OrgID          string          `gorm:"size:64;index:idx_result_user;not null" json:"orgId"`
	FrameworkID    string          `gorm:"size:64" json:"frameworkId"`
	Scores         json.RawMessage `gorm:"type:json" json:"scores"` // dimension -> score
	Passed         bool            `gorm:"default:false" json:"passed"`
	Classification string          `gorm:"size:64" json:"classification"`
	VerifyURL      string          `gorm:"size:255" json:"verifyUrl,omitempty"`
	AttemptNumber  int             `gorm:"default:1" json:"attemptNumber"`
	CompletedAt    time.Time       `json:"completedAt"`
}

func (AssessmentResult) TableName() string {
	return "assessment_results"
}
