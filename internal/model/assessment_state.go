package model

import (
	"encoding/json"
	"time"
)

// AssessmentState is the per-cycle gate state for one (user, organization).
type AssessmentState string

const (
	StateIdle       AssessmentState = "idle"
	StatePending    AssessmentState = "pending"
	StateInProgress AssessmentState = "in_progress"
	StatePassed     AssessmentState = "passed"
	StateFailed     AssessmentState = "failed"
	StateRetrying   AssessmentState = "retrying"
	StateBypassed   AssessmentState = "bypassed"
)

// Valid reports whether s is one of the seven gate states.
func (s AssessmentState) Valid() bool {
	switch s {
	case StateIdle, StatePending, StateInProgress, StatePassed, StateFailed, StateRetrying, StateBypassed:
		return true
	}
	return false
}

// Terminal reports whether s ends the current cycle.
func (s AssessmentState) Terminal() bool {
	return s == StatePassed || s == StateFailed || s == StateBypassed
}

// GateEvent drives a state transition.
type GateEvent string

const (
	EventCycleStart       GateEvent = "cycle_start"
	EventStartAssessment  GateEvent = "start_assessment"
	EventAssessmentPassed GateEvent = "assessment_passed"
	EventAssessmentFailed GateEvent = "assessment_failed"
	EventSessionExpired   GateEvent = "session_expired"
	EventRetryRequested   GateEvent = "retry_requested"
	EventManagerBypass    GateEvent = "manager_bypass"
	EventCycleEnd         GateEvent = "cycle_end"
)

// RequiredAction tells a blocked caller what unblocks them.
type RequiredAction string

const (
	ActionCompleteAssessment RequiredAction = "complete_assessment"
	ActionRetryAssessment    RequiredAction = "retry_assessment"
	ActionContactManager     RequiredAction = "contact_manager"
)

// GateDecision is the synchronous answer to a work request.
// swagger:model GateDecision
type GateDecision struct {
	Allowed        bool            `json:"allowed"`
	Reason         string          `json:"reason,omitempty"`
	RequiredAction RequiredAction  `json:"requiredAction,omitempty"`
	LimitedMode    bool            `json:"limitedMode,omitempty"`
	State          AssessmentState `json:"state"`
}

// UserAssessmentState is the authoritative gate record, one row per
// (user, organization). Session fields are set iff State == in_progress.
// swagger:model UserAssessmentState
type UserAssessmentState struct {
	BaseModel
	UserID         string          `gorm:"size:64;uniqueIndex:idx_user_org;not null" json:"userId"`
	OrgID          string          `gorm:"size:64;uniqueIndex:idx_user_org;not null" json:"orgId"`
	State          AssessmentState `gorm:"size:20;default:'idle'" json:"state"`
	StateChangedAt time.Time       `json:"stateChangedAt"`
	CycleDate      string          `gorm:"size:10;index" json:"cycleDate"` // YYYY-MM-DD in the org timezone

	// Current session, owned by the assessment client while in_progress.
	SessionID          *string         `gorm:"size:36;index" json:"sessionId,omitempty"`
	SessionStartedAt   *time.Time      `json:"sessionStartedAt,omitempty"`
	SessionFrameworkID *string         `gorm:"size:64" json:"sessionFrameworkId,omitempty"`
	SessionProgress    int             `gorm:"default:0" json:"sessionProgress"`
	SessionTotal       int             `gorm:"default:0" json:"sessionTotal"`
	SessionPolicy      json.RawMessage `gorm:"type:json" json:"-"` // config snapshot governing this session

	// Latest completed run. History lives in assessment_results.
	LastRunID          *string         `gorm:"size:36" json:"lastRunId,omitempty"`
	LastCompletedAt    *time.Time      `json:"lastCompletedAt,omitempty"`
	LastFrameworkID    *string         `gorm:"size:64" json:"lastFrameworkId,omitempty"`
	LastScores         json.RawMessage `gorm:"type:json" json:"lastScores,omitempty"`
	LastPassed         *bool           `json:"lastPassed,omitempty"`
	LastClassification *string         `gorm:"size:64" json:"lastClassification,omitempty"`

	// Today's cycle bookkeeping, reset at cycle start.
	AssessmentRequired bool       `gorm:"default:false" json:"assessmentRequired"`
	AttemptsUsed       int        `gorm:"default:0" json:"attemptsUsed"`
	LastAttemptAt      *time.Time `json:"lastAttemptAt,omitempty"`
	Bypassed           bool       `gorm:"default:false" json:"bypassed"`
	BypassApprover     *string    `gorm:"size:64" json:"bypassApprover,omitempty"`
	BypassReason       *string    `gorm:"size:255" json:"bypassReason,omitempty"`

	// Running stats across cycles.
	TotalAssessments int     `gorm:"default:0" json:"totalAssessments"`
	TotalPassed      int     `gorm:"default:0" json:"totalPassed"`
	PassRate         float64 `gorm:"default:0" json:"passRate"`
	CurrentStreak    int     `gorm:"default:0" json:"currentStreak"`
	LongestStreak    int     `gorm:"default:0" json:"longestStreak"`
}

func (UserAssessmentState) TableName() string {
	return "user_assessment_states"
}

// ClearSession drops the current-session fields. Must accompany any
// transition out of in_progress.
func (s *UserAssessmentState) ClearSession() {
	s.SessionID = nil
	s.SessionStartedAt = nil
	s.SessionFrameworkID = nil
	s.SessionProgress = 0
	s.SessionTotal = 0
	s.SessionPolicy = nil
}

// ResetCycle returns the row to its start-of-cycle defaults.
func (s *UserAssessmentState) ResetCycle(cycleDate string) {
	s.State = StateIdle
	s.CycleDate = cycleDate
	s.AssessmentRequired = false
	s.AttemptsUsed = 0
	s.LastAttemptAt = nil
	s.Bypassed = false
	s.BypassApprover = nil
	s.BypassReason = nil
	s.ClearSession()
}
