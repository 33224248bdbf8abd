package service

import (
	"encoding/json"
	"ethics_gate_backend/internal/model"
	"ethics_gate_backend/internal/util"
	"fmt"
	"time"
)

// TransitionInput carries one event plus the data its guards need. The
// transition function is deterministic and performs no I/O: callers resolve
// policy, approver roles and bypass counts beforehand.
type TransitionInput struct {
	Event     model.GateEvent
	Now       time.Time
	Principal string
	Policy    *model.OrganizationAssessmentConfig

	// cycle_start
	Required bool

	// start_assessment
	SessionID      string
	FrameworkID    string
	QuestionCount  int
	PolicySnapshot json.RawMessage

	// assessment_passed / assessment_failed
	Result *EngineResult

	// manager_bypass
	ApproverID        string
	ApproverRole      model.UserRole
	Reason            string
	BypassesThisMonth int64

	// cycle_end
	NextCycleDate string
}

// TransitionOutcome is what applying an event produced. Audit is unsealed:
// the caller links it into the (user, org) hash chain under the key lock.
type TransitionOutcome struct {
	From   model.AssessmentState
	To     model.AssessmentState
	NoOp   bool
	Audit  *model.AuditLogEntry
	Notify *Notification
	Result *model.AssessmentResult
}

// EvaluateScores reports whether every configured dimension threshold is met.
// Dimensions missing from the score map count as unmet.
func EvaluateScores(scores map[string]float64, fw *model.FrameworkConfig) bool {
	if fw == nil {
		return false
	}
	for _, dim := range fw.Dimensions {
		score, ok := scores[dim.Name]
		if !ok || score < dim.MinScore {
			return false
		}
	}
	return true
}

// Transition applies one event to the state row, mutating it in place and
// returning the side-effect intents. Any (state, event) pair outside the
// transition table is rejected with ErrInvalidState, leaving the row
// untouched.
func Transition(st *model.UserAssessmentState, in TransitionInput) (*TransitionOutcome, error) {
	from := st.State

	switch in.Event {
	case model.EventCycleStart:
		if from != model.StateIdle {
			return nil, invalidTransition(from, in.Event)
		}
		if !in.Required {
			return &TransitionOutcome{From: from, To: from, NoOp: true}, nil
		}
		st.State = model.StatePending
		st.StateChangedAt = in.Now
		st.AssessmentRequired = true
		return &TransitionOutcome{
			From:  from,
			To:    st.State,
			Audit: transitionEntry(st, in, from, nil),
			Notify: &Notification{
				Type:    "assessment_due",
				UserID:  st.UserID,
				OrgID:   st.OrgID,
				Message: "Your daily ethics assessment is due.",
				At:      in.Now,
			},
		}, nil

	case model.EventStartAssessment:
		switch from {
		case model.StatePending:
			// first attempt of the cycle, no cooldown
		case model.StateRetrying:
			cooldown := time.Duration(in.Policy.Retry.CooldownMinutes) * time.Minute
			if st.LastAttemptAt != nil && in.Now.Sub(*st.LastAttemptAt) < cooldown {
				return nil, util.ErrCooldownActive
			}
		default:
			return nil, invalidTransition(from, in.Event)
		}
		sid := in.SessionID
		started := in.Now
		fw := in.FrameworkID
		st.State = model.StateInProgress
		st.StateChangedAt = in.Now
		st.SessionID = &sid
		st.SessionStartedAt = &started
		st.SessionFrameworkID = &fw
		st.SessionProgress = 0
		st.SessionTotal = in.QuestionCount
		st.SessionPolicy = in.PolicySnapshot
		return &TransitionOutcome{
			From:  from,
			To:    st.State,
			Audit: transitionEntry(st, in, from, map[string]any{"frameworkId": fw, "attempt": st.AttemptsUsed + 1}),
		}, nil

	case model.EventAssessmentPassed, model.EventAssessmentFailed:
		if from != model.StateInProgress {
			return nil, invalidTransition(from, in.Event)
		}
		if in.Result == nil {
			return nil, invalidTransition(from, in.Event)
		}
		return completeRun(st, in, from)

	case model.EventSessionExpired:
		if from != model.StateInProgress {
			return nil, invalidTransition(from, in.Event)
		}
		st.State = model.StateFailed
		st.StateChangedAt = in.Now
		st.AttemptsUsed++
		attempt := in.Now
		st.LastAttemptAt = &attempt
		st.ClearSession()
		return &TransitionOutcome{
			From:  from,
			To:    st.State,
			Audit: transitionEntry(st, in, from, map[string]any{"reason": "session_expired", "attempt": st.AttemptsUsed}),
			Notify: &Notification{
				Type:    "session_expired",
				UserID:  st.UserID,
				OrgID:   st.OrgID,
				Message: "Your assessment session expired and counts as a failed attempt.",
				At:      in.Now,
			},
		}, nil

	case model.EventRetryRequested:
		if from != model.StateFailed {
			return nil, invalidTransition(from, in.Event)
		}
		if st.AttemptsUsed >= in.Policy.Retry.MaxAttempts {
			// retries exhausted: stay failed, caller must seek bypass
			return &TransitionOutcome{From: from, To: from, NoOp: true}, nil
		}
		st.State = model.StateRetrying
		st.StateChangedAt = in.Now
		return &TransitionOutcome{
			From:  from,
			To:    st.State,
			Audit: transitionEntry(st, in, from, map[string]any{"attemptsUsed": st.AttemptsUsed}),
		}, nil

	case model.EventManagerBypass:
		if from != model.StateFailed && from != model.StateRetrying {
			return nil, invalidTransition(from, in.Event)
		}
		if !approverAuthorized(in.ApproverRole, in.Policy) {
			return nil, util.ErrUnauthorizedApprover
		}
		if in.Policy.Bypass.MaxPerMonth > 0 && in.BypassesThisMonth >= int64(in.Policy.Bypass.MaxPerMonth) {
			return nil, util.ErrBypassQuotaExceeded
		}
		approver := in.ApproverID
		reason := in.Reason
		st.State = model.StateBypassed
		st.StateChangedAt = in.Now
		st.Bypassed = true
		st.BypassApprover = &approver
		st.BypassReason = &reason
		audit := transitionEntry(st, in, from, map[string]any{"approver": approver, "reason": reason})
		audit.EventType = model.AuditBypass
		return &TransitionOutcome{
			From:  from,
			To:    st.State,
			Audit: audit,
			Notify: &Notification{
				Type:    "bypass_granted",
				UserID:  st.UserID,
				OrgID:   st.OrgID,
				Message: fmt.Sprintf("Assessment bypass granted by %s.", approver),
				At:      in.Now,
			},
		}, nil

	case model.EventCycleEnd:
		if !from.Terminal() {
			return nil, invalidTransition(from, in.Event)
		}
		st.ResetCycle(in.NextCycleDate)
		st.StateChangedAt = in.Now
		return &TransitionOutcome{
			From:  from,
			To:    st.State,
			Audit: transitionEntry(st, in, from, map[string]any{"cycleDate": in.NextCycleDate}),
		}, nil
	}

	return nil, invalidTransition(from, in.Event)
}

// completeRun handles the in_progress -> passed/failed pair. The pass/fail
// guard is evaluated against the policy the session was started under.
func completeRun(st *model.UserAssessmentState, in TransitionInput, from model.AssessmentState) (*TransitionOutcome, error) {
	passed := in.Event == model.EventAssessmentPassed

	frameworkID := ""
	if st.SessionFrameworkID != nil {
		frameworkID = *st.SessionFrameworkID
	}

	scores, err := json.Marshal(in.Result.Scores)
	if err != nil {
		return nil, err
	}

	st.AttemptsUsed++
	attempt := in.Now
	st.LastAttemptAt = &attempt
	st.ClearSession()
	st.StateChangedAt = in.Now

	runID := in.Result.RunID
	completed := in.Now
	classification := in.Result.Classification
	st.LastRunID = &runID
	st.LastCompletedAt = &completed
	st.LastFrameworkID = &frameworkID
	st.LastScores = scores
	st.LastPassed = &passed
	st.LastClassification = &classification

	st.TotalAssessments++
	if passed {
		st.State = model.StatePassed
		st.TotalPassed++
		st.CurrentStreak++
		if st.CurrentStreak > st.LongestStreak {
			st.LongestStreak = st.CurrentStreak
		}
	} else {
		st.State = model.StateFailed
		st.CurrentStreak = 0
	}
	st.PassRate = float64(st.TotalPassed) / float64(st.TotalAssessments)

	notifyType := "assessment_passed"
	message := "Daily assessment passed."
	if !passed {
		notifyType = "assessment_failed"
		message = "Daily assessment failed."
	}

	return &TransitionOutcome{
		From: from,
		To:   st.State,
		Audit: transitionEntry(st, in, from, map[string]any{
			"runId":          runID,
			"frameworkId":    frameworkID,
			"passed":         passed,
			"classification": classification,
			"attempt":        st.AttemptsUsed,
		}),
		Notify: &Notification{
			Type:    notifyType,
			UserID:  st.UserID,
			OrgID:   st.OrgID,
			Message: message,
			At:      in.Now,
		},
		Result: &model.AssessmentResult{
			RunID:          runID,
			UserID:         st.UserID,
			OrgID:          st.OrgID,
			FrameworkID:    frameworkID,
			Scores:         scores,
			Passed:         passed,
			Classification: classification,
			VerifyURL:      in.Result.VerifyURL,
			AttemptNumber:  st.AttemptsUsed,
			CompletedAt:    in.Now,
		},
	}, nil
}

func approverAuthorized(role model.UserRole, policy *model.OrganizationAssessmentConfig) bool {
	for _, r := range policy.Bypass.ApproverRoles {
		if string(role) == r {
			return true
		}
	}
	return false
}

// transitionEntry builds the unsealed audit record for a transition. Detail
// only ever carries event metadata, never answer content.
func transitionEntry(st *model.UserAssessmentState, in TransitionInput, from model.AssessmentState, detail map[string]any) *model.AuditLogEntry {
	var raw json.RawMessage
	if len(detail) > 0 {
		raw, _ = json.Marshal(detail)
	}
	return &model.AuditLogEntry{
		EntryID:         util.NewEntryID(),
		UserID:          st.UserID,
		OrgID:           st.OrgID,
		Timestamp:       in.Now,
		EventType:       model.AuditTransition,
		Event:           in.Event,
		FromState:       from,
		ToState:         st.State,
		ActingPrincipal: in.Principal,
		Detail:          raw,
	}
}

func invalidTransition(from model.AssessmentState, ev model.GateEvent) error {
	return fmt.Errorf("%w: %s on %s", util.ErrInvalidState, ev, from)
}
