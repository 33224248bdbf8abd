package service

import (
	"context"
	"encoding/json"
	"errors"
	"ethics_gate_backend/internal/model"
	"ethics_gate_backend/internal/util"
	"ethics_gate_backend/pkg/logger"
	"ethics_gate_backend/pkg/monitoring"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// GateService is the public decision surface: it loads the authoritative
// state under the per-key lock, evaluates organization policy, drives the
// state machine and records every transition in the audit chain. The lock is
// never held across a call to the external engine.
type GateService struct {
	states   StateStore
	audits   AuditStore
	configs  ConfigProvider
	users    UserDirectory
	engine   AssessmentEngine
	locks    KeyLocker
	notifier Notifier

	now func() time.Time // overridable in tests
}

func NewGateService(states StateStore, audits AuditStore, configs ConfigProvider, users UserDirectory, engine AssessmentEngine, locks KeyLocker, notifier Notifier) *GateService {
	return &GateService{
		states:   states,
		audits:   audits,
		configs:  configs,
		users:    users,
		engine:   engine,
		locks:    locks,
		notifier: notifier,
		now:      time.Now,
	}
}

// SessionHandle is what StartAssessment hands the caller to drive the
// question loop against the engine.
type SessionHandle struct {
	SessionID     string    `json:"sessionId"`
	FrameworkID   string    `json:"frameworkId"`
	QuestionCount int       `json:"questionCount"`
	StartedAt     time.Time `json:"startedAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// sessionPolicySnapshot is the policy slice frozen at StartAssessment time.
// The snapshot, not the live config, governs that session's pass/fail.
type sessionPolicySnapshot struct {
	Framework         model.FrameworkConfig `json:"framework"`
	SessionMaxMinutes int                   `json:"sessionMaxMinutes"`
}

// CanProceed answers whether the user may exercise AI-assisted work right
// now. Reads do not mutate state except for lazy cycle initialization
// (cycle rollover and idle -> pending), which reflects policy rather than
// user action.
func (s *GateService) CanProceed(ctx context.Context, userID, orgID, taskType string) (*model.GateDecision, error) {
	cfg, err := s.configs.GetConfig(ctx, orgID)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByExternalID(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(userID, orgID)
	defer unlock()

	now := s.now()
	st, created, err := s.loadOrInit(ctx, userID, orgID, cfg, now)
	if err != nil {
		return nil, err
	}

	outcomes, err := s.ensureCycle(ctx, st, cfg, user, now)
	if err != nil {
		return nil, err
	}

	if created || len(outcomes) > 0 {
		if err := s.sealAndCommit(ctx, st, outcomes); err != nil {
			return nil, err
		}
	}

	decision := s.decide(st, cfg, now)

	monitoring.GateDecisions.WithLabelValues(
		fmt.Sprintf("%t", decision.Allowed),
		string(decision.RequiredAction),
	).Inc()
	if len(outcomes) > 0 {
		logger.Log.Info("gate decision",
			zap.String("userId", userID),
			zap.String("orgId", orgID),
			zap.String("taskType", taskType),
			zap.String("state", string(st.State)),
			zap.Bool("allowed", decision.Allowed))
	}

	s.publish(ctx, outcomes)
	return decision, nil
}

// StartAssessment opens an engine session and moves pending/retrying to
// in_progress. The engine call happens between two lock holds; if the state
// moved meanwhile, the orphaned engine session is abandoned.
func (s *GateService) StartAssessment(ctx context.Context, userID, orgID string) (*SessionHandle, error) {
	cfg, err := s.configs.GetConfig(ctx, orgID)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByExternalID(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}

	fw := cfg.FrameworkForRole(string(user.Role))
	if fw == nil {
		return nil, fmt.Errorf("%w: role %s has no assessment framework", util.ErrInvalidState, user.Role)
	}

	// First hold: validate that a start is possible at all.
	unlock := s.locks.Lock(userID, orgID)
	now := s.now()
	st, created, err := s.loadOrInit(ctx, userID, orgID, cfg, now)
	if err != nil {
		unlock()
		return nil, err
	}
	outcomes, err := s.ensureCycle(ctx, st, cfg, user, now)
	if err != nil {
		unlock()
		return nil, err
	}
	if created || len(outcomes) > 0 {
		if err := s.sealAndCommit(ctx, st, outcomes); err != nil {
			unlock()
			return nil, err
		}
	}
	if err := s.startable(st, cfg, now); err != nil {
		unlock()
		return nil, err
	}
	unlock()
	s.publish(ctx, outcomes)

	// Engine call outside the lock.
	sessionID, questionCount, err := s.engine.StartSession(ctx, fw.ID)
	if err != nil {
		return nil, err
	}

	snapshot, err := json.Marshal(sessionPolicySnapshot{
		Framework:         *fw,
		SessionMaxMinutes: cfg.SessionMaxMinutes,
	})
	if err != nil {
		return nil, err
	}

	// Second hold: apply the transition if the state still allows it.
	unlock = s.locks.Lock(userID, orgID)
	defer unlock()

	now = s.now()
	st, err = s.states.Get(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	outcome, err := Transition(st, TransitionInput{
		Event:          model.EventStartAssessment,
		Now:            now,
		Principal:      userID,
		Policy:         cfg,
		SessionID:      sessionID,
		FrameworkID:    fw.ID,
		QuestionCount:  questionCount,
		PolicySnapshot: snapshot,
	})
	if err != nil {
		logger.Log.Warn("engine session orphaned by concurrent transition",
			zap.String("userId", userID),
			zap.String("sessionId", sessionID),
			zap.Error(err))
		return nil, err
	}
	if err := s.sealAndCommit(ctx, st, []*TransitionOutcome{outcome}); err != nil {
		return nil, err
	}

	return &SessionHandle{
		SessionID:     sessionID,
		FrameworkID:   fw.ID,
		QuestionCount: questionCount,
		StartedAt:     now,
		ExpiresAt:     now.Add(cfg.SessionMaxDuration()),
	}, nil
}

// RecordResult applies the engine's scored outcome to the session's state
// row. Pass/fail is evaluated against the policy snapshot taken when the
// session started.
func (s *GateService) RecordResult(ctx context.Context, sessionID string, result *EngineResult) (*model.UserAssessmentState, error) {
	// A malformed result is an engine malfunction, not a user failure: the
	// session stays in_progress and resumable.
	if result == nil || result.RunID == "" || len(result.Scores) == 0 {
		return nil, fmt.Errorf("%w: engine returned malformed result", util.ErrUpstreamUnavailable)
	}

	// Unlocked read to learn which key the session belongs to.
	owner, err := s.states.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(owner.UserID, owner.OrgID)
	defer unlock()

	st, err := s.states.Get(ctx, owner.UserID, owner.OrgID)
	if err != nil {
		return nil, err
	}
	if st.State != model.StateInProgress || st.SessionID == nil || *st.SessionID != sessionID {
		return nil, fmt.Errorf("%w: session %s is not in progress", util.ErrInvalidState, sessionID)
	}

	snap, err := sessionSnapshot(st)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if st.SessionStartedAt != nil && now.Sub(*st.SessionStartedAt) > snapshotDuration(snap) {
		outcome, terr := Transition(st, TransitionInput{
			Event:     model.EventSessionExpired,
			Now:       now,
			Principal: "system",
			Policy:    s.policyOrSnapshot(ctx, st.OrgID, snap),
		})
		if terr != nil {
			return nil, terr
		}
		if cerr := s.sealAndCommit(ctx, st, []*TransitionOutcome{outcome}); cerr != nil {
			return nil, cerr
		}
		s.publish(ctx, []*TransitionOutcome{outcome})
		return st, util.ErrSessionExpired
	}

	event := model.EventAssessmentFailed
	if EvaluateScores(result.Scores, &snap.Framework) {
		event = model.EventAssessmentPassed
	}

	outcome, err := Transition(st, TransitionInput{
		Event:     event,
		Now:       now,
		Principal: owner.UserID,
		Policy:    s.policyOrSnapshot(ctx, st.OrgID, snap),
		Result:    result,
	})
	if err != nil {
		return nil, err
	}
	if err := s.sealAndCommit(ctx, st, []*TransitionOutcome{outcome}); err != nil {
		return nil, err
	}
	s.publish(ctx, []*TransitionOutcome{outcome})
	return st, nil
}

// RecordAnswer advances the session's progress counter after the engine
// accepted an answer. Progress is presentation state, not a transition, so
// no audit entry is written.
func (s *GateService) RecordAnswer(ctx context.Context, userID, orgID, sessionID string) (*model.UserAssessmentState, error) {
	unlock := s.locks.Lock(userID, orgID)
	defer unlock()

	st, err := s.states.Get(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	if st.State != model.StateInProgress || st.SessionID == nil || *st.SessionID != sessionID {
		return nil, fmt.Errorf("%w: session %s is not in progress", util.ErrInvalidState, sessionID)
	}

	if st.SessionTotal == 0 || st.SessionProgress < st.SessionTotal {
		st.SessionProgress++
	}
	if err := s.states.Commit(ctx, st, nil, nil); err != nil {
		return nil, err
	}
	return st, nil
}

// RequestRetry moves failed to retrying when the attempt budget allows it.
func (s *GateService) RequestRetry(ctx context.Context, userID, orgID string) (*model.UserAssessmentState, error) {
	cfg, err := s.configs.GetConfig(ctx, orgID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(userID, orgID)
	defer unlock()

	st, err := s.states.Get(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	outcome, err := Transition(st, TransitionInput{
		Event:     model.EventRetryRequested,
		Now:       s.now(),
		Principal: userID,
		Policy:    cfg,
	})
	if err != nil {
		return nil, err
	}
	if !outcome.NoOp {
		if err := s.sealAndCommit(ctx, st, []*TransitionOutcome{outcome}); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// RequestBypass applies a manager override. Denied requests are themselves
// recorded as decision entries so the chain shows who asked and was refused.
func (s *GateService) RequestBypass(ctx context.Context, userID, orgID, approverID, reason string) (*model.GateDecision, error) {
	cfg, err := s.configs.GetConfig(ctx, orgID)
	if err != nil {
		return nil, err
	}
	approver, err := s.users.FindByExternalID(ctx, approverID, orgID)
	if err != nil {
		if errors.Is(err, util.ErrUserNotFound) {
			return nil, util.ErrUnauthorizedApprover
		}
		return nil, err
	}

	bypassCount, err := s.audits.CountBypasses(ctx, orgID, s.monthStart(cfg))
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(userID, orgID)
	defer unlock()

	st, err := s.states.Get(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	outcome, err := Transition(st, TransitionInput{
		Event:             model.EventManagerBypass,
		Now:               now,
		Principal:         approverID,
		Policy:            cfg,
		ApproverID:        approverID,
		ApproverRole:      approver.Role,
		Reason:            reason,
		BypassesThisMonth: bypassCount,
	})
	if err != nil {
		if errors.Is(err, util.ErrUnauthorizedApprover) || errors.Is(err, util.ErrBypassQuotaExceeded) {
			s.recordDeniedBypass(ctx, st, approverID, reason, err, now)
		}
		return nil, err
	}
	if err := s.sealAndCommit(ctx, st, []*TransitionOutcome{outcome}); err != nil {
		return nil, err
	}
	s.publish(ctx, []*TransitionOutcome{outcome})

	return &model.GateDecision{
		Allowed: true,
		Reason:  "manager bypass active",
		State:   st.State,
	}, nil
}

// GetState returns the current row without mutating anything.
func (s *GateService) GetState(ctx context.Context, userID, orgID string) (*model.UserAssessmentState, error) {
	unlock := s.locks.Lock(userID, orgID)
	defer unlock()
	return s.states.Get(ctx, userID, orgID)
}

// SweepExpiredSessions fails in_progress sessions that outlived their
// policy window. Runs from a low-frequency background ticker; each row is
// handled under its own key lock and behaves exactly like a session_expired
// event.
func (s *GateService) SweepExpiredSessions(ctx context.Context) (int, error) {
	now := s.now()
	rows, err := s.states.ListInProgress(ctx, now.Add(-time.Minute))
	if err != nil {
		return 0, err
	}

	swept := 0
	for i := range rows {
		expired, err := s.sweepOne(ctx, rows[i].UserID, rows[i].OrgID)
		if err != nil {
			logger.Log.Error("session sweep failed",
				zap.String("userId", rows[i].UserID),
				zap.String("orgId", rows[i].OrgID),
				zap.Error(err))
			continue
		}
		if expired {
			swept++
		}
	}
	return swept, nil
}

func (s *GateService) sweepOne(ctx context.Context, userID, orgID string) (bool, error) {
	unlock := s.locks.Lock(userID, orgID)
	defer unlock()

	st, err := s.states.Get(ctx, userID, orgID)
	if err != nil {
		return false, err
	}
	if st.State != model.StateInProgress || st.SessionStartedAt == nil {
		return false, nil
	}

	snap, err := sessionSnapshot(st)
	if err != nil {
		return false, err
	}
	now := s.now()
	if now.Sub(*st.SessionStartedAt) <= snapshotDuration(snap) {
		return false, nil
	}

	outcome, err := Transition(st, TransitionInput{
		Event:     model.EventSessionExpired,
		Now:       now,
		Principal: "system",
		Policy:    s.policyOrSnapshot(ctx, orgID, snap),
	})
	if err != nil {
		return false, err
	}
	if err := s.sealAndCommit(ctx, st, []*TransitionOutcome{outcome}); err != nil {
		return false, err
	}
	s.publish(ctx, []*TransitionOutcome{outcome})
	return true, nil
}

// ---- internals ----

func (s *GateService) loadOrInit(ctx context.Context, userID, orgID string, cfg *model.OrganizationAssessmentConfig, now time.Time) (*model.UserAssessmentState, bool, error) {
	st, err := s.states.Get(ctx, userID, orgID)
	if err == nil {
		return st, false, nil
	}
	if !errors.Is(err, util.ErrNotFound) {
		return nil, false, err
	}

	st = &model.UserAssessmentState{
		UserID:         userID,
		OrgID:          orgID,
		State:          model.StateIdle,
		StateChangedAt: now,
		CycleDate:      cycleDateFor(cfg, now),
	}
	if err := s.states.Create(ctx, st); err != nil {
		return nil, false, err
	}
	return st, true, nil
}

// ensureCycle rolls a stale row into today's cycle and applies CycleStart.
// Returned outcomes are not yet committed.
func (s *GateService) ensureCycle(ctx context.Context, st *model.UserAssessmentState, cfg *model.OrganizationAssessmentConfig, user *model.User, now time.Time) ([]*TransitionOutcome, error) {
	var outcomes []*TransitionOutcome
	today := cycleDateFor(cfg, now)

	if st.CycleDate != today {
		if st.State == model.StateInProgress {
			// stale session from a previous day: counts as an expired attempt
			snap, err := sessionSnapshot(st)
			if err != nil {
				return nil, err
			}
			outcome, err := Transition(st, TransitionInput{
				Event:     model.EventSessionExpired,
				Now:       now,
				Principal: "system",
				Policy:    s.policyOrSnapshot(ctx, st.OrgID, snap),
			})
			if err != nil {
				return nil, err
			}
			outcomes = append(outcomes, outcome)
		}

		if st.State.Terminal() {
			outcome, err := Transition(st, TransitionInput{
				Event:         model.EventCycleEnd,
				Now:           now,
				Principal:     "system",
				Policy:        cfg,
				NextCycleDate: today,
			})
			if err != nil {
				return nil, err
			}
			outcomes = append(outcomes, outcome)
		} else if st.State != model.StateIdle {
			// pending/retrying rows that never reached a terminal state are
			// reset administratively; the entry keeps the chain complete
			from := st.State
			st.ResetCycle(today)
			st.StateChangedAt = now
			outcomes = append(outcomes, &TransitionOutcome{
				From: from,
				To:   model.StateIdle,
				Audit: &model.AuditLogEntry{
					EntryID:         util.NewEntryID(),
					UserID:          st.UserID,
					OrgID:           st.OrgID,
					Timestamp:       now,
					EventType:       model.AuditTransition,
					Event:           model.EventCycleEnd,
					FromState:       from,
					ToState:         model.StateIdle,
					ActingPrincipal: "system",
				},
			})
		} else {
			st.CycleDate = today
		}
	}

	if st.State == model.StateIdle {
		outcome, err := Transition(st, TransitionInput{
			Event:     model.EventCycleStart,
			Now:       now,
			Principal: "system",
			Policy:    cfg,
			Required:  assessmentRequired(cfg, string(user.Role), now),
		})
		if err != nil {
			return nil, err
		}
		if !outcome.NoOp {
			outcomes = append(outcomes, outcome)
		}
	}

	return outcomes, nil
}

func (s *GateService) decide(st *model.UserAssessmentState, cfg *model.OrganizationAssessmentConfig, now time.Time) *model.GateDecision {
	d := &model.GateDecision{State: st.State}

	switch st.State {
	case model.StatePassed:
		d.Allowed = true
		d.Reason = "assessment passed"
	case model.StateBypassed:
		d.Allowed = true
		d.Reason = "manager bypass active"
	case model.StateIdle:
		d.Allowed = true
		d.Reason = "assessment not required"
	case model.StatePending:
		if inGracePeriod(cfg, now) {
			d.Allowed = true
			d.LimitedMode = true
			d.Reason = "assessment due, within grace period"
			d.RequiredAction = model.ActionCompleteAssessment
		} else {
			d.Reason = "assessment due"
			d.RequiredAction = model.ActionCompleteAssessment
		}
	case model.StateInProgress:
		d.Reason = "assessment in progress"
		d.RequiredAction = model.ActionCompleteAssessment
	case model.StateFailed:
		if st.AttemptsUsed >= cfg.Retry.MaxAttempts {
			d.Reason = "retries exhausted"
			d.RequiredAction = model.ActionContactManager
		} else {
			d.Reason = "assessment failed"
			d.RequiredAction = model.ActionRetryAssessment
		}
	case model.StateRetrying:
		d.Reason = "retry pending"
		d.RequiredAction = model.ActionRetryAssessment
	}

	return d
}

// startable mirrors the start_assessment guards so the engine is not called
// for a request that the second lock hold would reject anyway.
func (s *GateService) startable(st *model.UserAssessmentState, cfg *model.OrganizationAssessmentConfig, now time.Time) error {
	switch st.State {
	case model.StatePending:
		return nil
	case model.StateRetrying:
		cooldown := time.Duration(cfg.Retry.CooldownMinutes) * time.Minute
		if st.LastAttemptAt != nil && now.Sub(*st.LastAttemptAt) < cooldown {
			return util.ErrCooldownActive
		}
		return nil
	default:
		return fmt.Errorf("%w: cannot start assessment from %s", util.ErrInvalidState, st.State)
	}
}

// sealAndCommit links the outcomes' audit entries into the chain and
// persists everything atomically. Callers hold the key lock, which keeps
// chain sequence numbers gapless.
func (s *GateService) sealAndCommit(ctx context.Context, st *model.UserAssessmentState, outcomes []*TransitionOutcome) error {
	var entries []*model.AuditLogEntry
	var results []*model.AssessmentResult
	for _, o := range outcomes {
		if o.Audit != nil {
			entries = append(entries, o.Audit)
		}
		if o.Result != nil {
			results = append(results, o.Result)
		}
	}

	if len(entries) > 0 {
		prev, err := s.audits.Last(ctx, st.UserID, st.OrgID)
		if err != nil {
			return err
		}
		for _, e := range entries {
			e.Seal(prev)
			prev = e
		}
	}

	if err := s.states.Commit(ctx, st, entries, results); err != nil {
		if errors.Is(err, util.ErrAuditWriteFailure) {
			monitoring.AuditAppendFailures.Inc()
		}
		return err
	}

	for _, o := range outcomes {
		if o.Audit != nil {
			monitoring.GateTransitions.WithLabelValues(string(o.Audit.Event), string(o.To)).Inc()
		}
	}
	return nil
}

func (s *GateService) recordDeniedBypass(ctx context.Context, st *model.UserAssessmentState, approverID, reason string, cause error, now time.Time) {
	detail, _ := json.Marshal(map[string]any{
		"approver": approverID,
		"reason":   reason,
		"denied":   cause.Error(),
	})
	entry := &model.AuditLogEntry{
		EntryID:         util.NewEntryID(),
		UserID:          st.UserID,
		OrgID:           st.OrgID,
		Timestamp:       now,
		EventType:       model.AuditDecision,
		Event:           model.EventManagerBypass,
		FromState:       st.State,
		ToState:         st.State,
		ActingPrincipal: approverID,
		Detail:          detail,
	}

	prev, err := s.audits.Last(ctx, st.UserID, st.OrgID)
	if err != nil {
		logger.Log.Error("denied bypass not audited", zap.Error(err))
		return
	}
	entry.Seal(prev)
	if err := s.states.Commit(ctx, st, []*model.AuditLogEntry{entry}, nil); err != nil {
		logger.Log.Error("denied bypass not audited", zap.Error(err))
	}
}

func (s *GateService) publish(ctx context.Context, outcomes []*TransitionOutcome) {
	if s.notifier == nil {
		return
	}
	for _, o := range outcomes {
		if o.Notify != nil {
			s.notifier.Publish(ctx, o.Notify)
		}
	}
}

// policyOrSnapshot prefers the live config but falls back to the session's
// snapshot if the org config vanished mid-session.
func (s *GateService) policyOrSnapshot(ctx context.Context, orgID string, snap *sessionPolicySnapshot) *model.OrganizationAssessmentConfig {
	if cfg, err := s.configs.GetConfig(ctx, orgID); err == nil {
		return cfg
	}
	return &model.OrganizationAssessmentConfig{
		OrgID:             orgID,
		Frameworks:        []model.FrameworkConfig{snap.Framework},
		SessionMaxMinutes: snap.SessionMaxMinutes,
	}
}

func (s *GateService) monthStart(cfg *model.OrganizationAssessmentConfig) time.Time {
	loc := locationFor(cfg)
	now := s.now().In(loc)
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
}

func sessionSnapshot(st *model.UserAssessmentState) (*sessionPolicySnapshot, error) {
	if len(st.SessionPolicy) == 0 {
		return nil, fmt.Errorf("%w: session has no policy snapshot", util.ErrInvalidState)
	}
	var snap sessionPolicySnapshot
	if err := json.Unmarshal(st.SessionPolicy, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func snapshotDuration(snap *sessionPolicySnapshot) time.Duration {
	if snap.SessionMaxMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(snap.SessionMaxMinutes) * time.Minute
}

// ---- schedule evaluation ----

func locationFor(cfg *model.OrganizationAssessmentConfig) *time.Location {
	if cfg.Schedule.Timezone != "" {
		if loc, err := time.LoadLocation(cfg.Schedule.Timezone); err == nil {
			return loc
		}
	}
	return time.UTC
}

func cycleDateFor(cfg *model.OrganizationAssessmentConfig, now time.Time) string {
	return now.In(locationFor(cfg)).Format("2006-01-02")
}

// assessmentRequired decides whether today's cycle needs an assessment for a
// user of the given role.
func assessmentRequired(cfg *model.OrganizationAssessmentConfig, role string, now time.Time) bool {
	if cfg.FrameworkForRole(role) == nil {
		return false // exempt role or no framework configured
	}

	local := now.In(locationFor(cfg))
	if cfg.Schedule.SkipWeekends {
		if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return false
		}
	}

	// due from the window start; before that, work is not gated yet
	startMin, ok := parseClock(cfg.Schedule.WindowStart)
	if !ok {
		return true
	}
	m := minutesOfDay(local)
	if m < startMin {
		return false
	}
	// a configured window end closes the gate for cycles that begin after it;
	// rows already pending keep their requirement
	if endMin, ok := parseClock(cfg.Schedule.WindowEnd); ok && endMin > startMin && m >= endMin {
		return false
	}
	return true
}

// inGracePeriod reports whether now is still inside windowStart + grace,
// during which due users may keep working in limited mode.
func inGracePeriod(cfg *model.OrganizationAssessmentConfig, now time.Time) bool {
	if cfg.Schedule.GraceMinutes <= 0 {
		return false
	}
	startMin, ok := parseClock(cfg.Schedule.WindowStart)
	if !ok {
		return false
	}
	m := minutesOfDay(now.In(locationFor(cfg)))
	return m >= startMin && m < startMin+cfg.Schedule.GraceMinutes
}

func parseClock(s string) (int, bool) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, false
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

func minutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
