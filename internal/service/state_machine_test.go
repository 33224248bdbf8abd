package service

import (
	"encoding/json"
	"errors"
	"ethics_gate_backend/internal/model"
	"ethics_gate_backend/internal/util"
	"testing"
	"time"
)

func testPolicy() *model.OrganizationAssessmentConfig {
	return &model.OrganizationAssessmentConfig{
		OrgID: "org-1",
		Schedule: model.ScheduleConfig{
			WindowStart:  "09:00",
			Timezone:     "UTC",
			GraceMinutes: 30,
		},
		Frameworks: []model.FrameworkConfig{
			{
				ID:   "fw-default",
				Name: "Daily Ethics",
				Dimensions: []model.DimensionThreshold{
					{Name: "honesty", MinScore: 70},
					{Name: "judgment", MinScore: 60},
				},
				QuestionCount: 5,
			},
		},
		DefaultFrameworkID: "fw-default",
		Retry:              model.RetryPolicy{MaxAttempts: 3, CooldownMinutes: 15},
		Bypass:             model.BypassPolicy{ApproverRoles: []string{"manager"}, MaxPerMonth: 10},
		SessionMaxMinutes:  30,
	}
}

func testState(state model.AssessmentState) *model.UserAssessmentState {
	return &model.UserAssessmentState{
		UserID:    "u-1",
		OrgID:     "org-1",
		State:     state,
		CycleDate: "2025-03-03",
	}
}

var testNow = time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

func TestEvaluateScores(t *testing.T) {
	fw := &testPolicy().Frameworks[0]

	cases := []struct {
		name   string
		scores map[string]float64
		want   bool
	}{
		{"all thresholds met", map[string]float64{"honesty": 70, "judgment": 90}, true},
		{"one dimension below", map[string]float64{"honesty": 69.9, "judgment": 90}, false},
		{"missing dimension counts as unmet", map[string]float64{"honesty": 95}, false},
		{"empty scores", map[string]float64{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := EvaluateScores(tc.scores, fw); got != tc.want {
				t.Fatalf("EvaluateScores = %v, want %v", got, tc.want)
			}
		})
	}

	if EvaluateScores(map[string]float64{"honesty": 100}, nil) {
		t.Fatal("nil framework must never pass")
	}
}

func TestCycleStart(t *testing.T) {
	st := testState(model.StateIdle)
	out, err := Transition(st, TransitionInput{
		Event:     model.EventCycleStart,
		Now:       testNow,
		Principal: "system",
		Policy:    testPolicy(),
		Required:  true,
	})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if st.State != model.StatePending {
		t.Fatalf("state = %s, want pending", st.State)
	}
	if !st.AssessmentRequired {
		t.Fatal("AssessmentRequired not set")
	}
	if out.Audit == nil || out.Audit.Event != model.EventCycleStart {
		t.Fatal("missing cycle_start audit entry")
	}
	if out.Notify == nil || out.Notify.Type != "assessment_due" {
		t.Fatal("missing assessment_due notification")
	}
}

func TestCycleStartNotRequiredIsNoOp(t *testing.T) {
	st := testState(model.StateIdle)
	out, err := Transition(st, TransitionInput{
		Event:    model.EventCycleStart,
		Now:      testNow,
		Policy:   testPolicy(),
		Required: false,
	})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if !out.NoOp {
		t.Fatal("expected no-op")
	}
	if st.State != model.StateIdle {
		t.Fatalf("state changed to %s on a no-op", st.State)
	}
	if out.Audit != nil {
		t.Fatal("no-op must not produce an audit entry")
	}
}

func TestStartAssessmentSetsSession(t *testing.T) {
	st := testState(model.StatePending)
	snapshot := json.RawMessage(`{"framework":{"id":"fw-default"}}`)
	_, err := Transition(st, TransitionInput{
		Event:          model.EventStartAssessment,
		Now:            testNow,
		Principal:      "u-1",
		Policy:         testPolicy(),
		SessionID:      "sess-1",
		FrameworkID:    "fw-default",
		QuestionCount:  5,
		PolicySnapshot: snapshot,
	})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if st.State != model.StateInProgress {
		t.Fatalf("state = %s, want in_progress", st.State)
	}
	if st.SessionID == nil || *st.SessionID != "sess-1" {
		t.Fatal("session id not recorded")
	}
	if st.SessionTotal != 5 {
		t.Fatalf("SessionTotal = %d, want 5", st.SessionTotal)
	}
	if string(st.SessionPolicy) != string(snapshot) {
		t.Fatal("policy snapshot not stored on the session")
	}
}

func TestStartAssessmentCooldown(t *testing.T) {
	st := testState(model.StateRetrying)
	recent := testNow.Add(-5 * time.Minute)
	st.LastAttemptAt = &recent

	_, err := Transition(st, TransitionInput{
		Event:  model.EventStartAssessment,
		Now:    testNow,
		Policy: testPolicy(),
	})
	if !errors.Is(err, util.ErrCooldownActive) {
		t.Fatalf("err = %v, want ErrCooldownActive", err)
	}
	if st.State != model.StateRetrying {
		t.Fatal("state mutated by a rejected event")
	}

	old := testNow.Add(-20 * time.Minute)
	st.LastAttemptAt = &old
	if _, err := Transition(st, TransitionInput{
		Event:     model.EventStartAssessment,
		Now:       testNow,
		Policy:    testPolicy(),
		SessionID: "sess-2",
	}); err != nil {
		t.Fatalf("start after cooldown: %v", err)
	}
	if st.State != model.StateInProgress {
		t.Fatalf("state = %s, want in_progress", st.State)
	}
}

func inProgressState(attempts int) *model.UserAssessmentState {
	st := testState(model.StateInProgress)
	sid := "sess-1"
	fw := "fw-default"
	started := testNow.Add(-10 * time.Minute)
	st.SessionID = &sid
	st.SessionFrameworkID = &fw
	st.SessionStartedAt = &started
	st.SessionTotal = 5
	st.AttemptsUsed = attempts
	return st
}

func TestAssessmentPassedUpdatesStats(t *testing.T) {
	st := inProgressState(0)
	st.TotalAssessments = 4
	st.TotalPassed = 3
	st.CurrentStreak = 2
	st.LongestStreak = 2

	out, err := Transition(st, TransitionInput{
		Event:     model.EventAssessmentPassed,
		Now:       testNow,
		Principal: "u-1",
		Policy:    testPolicy(),
		Result: &EngineResult{
			RunID:          "run-1",
			Scores:         map[string]float64{"honesty": 90, "judgment": 80},
			Classification: "strong",
		},
	})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if st.State != model.StatePassed {
		t.Fatalf("state = %s, want passed", st.State)
	}
	if st.SessionID != nil {
		t.Fatal("session fields must be cleared on completion")
	}
	if st.AttemptsUsed != 1 {
		t.Fatalf("AttemptsUsed = %d, want 1", st.AttemptsUsed)
	}
	if st.TotalAssessments != 5 || st.TotalPassed != 4 {
		t.Fatalf("stats = %d/%d, want 5/4", st.TotalPassed, st.TotalAssessments)
	}
	if st.CurrentStreak != 3 || st.LongestStreak != 3 {
		t.Fatalf("streaks = %d/%d, want 3/3", st.CurrentStreak, st.LongestStreak)
	}
	if out.Result == nil || out.Result.RunID != "run-1" || !out.Result.Passed {
		t.Fatal("missing or wrong result row")
	}
	if out.Notify == nil || out.Notify.Type != "assessment_passed" {
		t.Fatal("missing assessment_passed notification")
	}
}

func TestAssessmentFailedResetsStreak(t *testing.T) {
	st := inProgressState(0)
	st.CurrentStreak = 7
	st.LongestStreak = 7

	_, err := Transition(st, TransitionInput{
		Event:  model.EventAssessmentFailed,
		Now:    testNow,
		Policy: testPolicy(),
		Result: &EngineResult{RunID: "run-2", Scores: map[string]float64{"honesty": 10}},
	})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if st.State != model.StateFailed {
		t.Fatalf("state = %s, want failed", st.State)
	}
	if st.CurrentStreak != 0 {
		t.Fatalf("CurrentStreak = %d, want 0", st.CurrentStreak)
	}
	if st.LongestStreak != 7 {
		t.Fatalf("LongestStreak = %d, want 7", st.LongestStreak)
	}
}

func TestSessionExpiredCountsAttemptWithoutResult(t *testing.T) {
	st := inProgressState(0)
	st.TotalAssessments = 2

	out, err := Transition(st, TransitionInput{
		Event:     model.EventSessionExpired,
		Now:       testNow,
		Principal: "system",
		Policy:    testPolicy(),
	})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if st.State != model.StateFailed {
		t.Fatalf("state = %s, want failed", st.State)
	}
	if st.AttemptsUsed != 1 {
		t.Fatalf("AttemptsUsed = %d, want 1", st.AttemptsUsed)
	}
	if st.TotalAssessments != 2 {
		t.Fatal("an expired session is not a completed assessment")
	}
	if out.Result != nil {
		t.Fatal("expired sessions must not write a result row")
	}
	if st.SessionID != nil {
		t.Fatal("session fields must be cleared")
	}
}

func TestRetryRequested(t *testing.T) {
	st := testState(model.StateFailed)
	st.AttemptsUsed = 1

	out, err := Transition(st, TransitionInput{
		Event:  model.EventRetryRequested,
		Now:    testNow,
		Policy: testPolicy(),
	})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if out.NoOp || st.State != model.StateRetrying {
		t.Fatalf("state = %s, want retrying", st.State)
	}
}

func TestRetryExhaustedStaysFailed(t *testing.T) {
	st := testState(model.StateFailed)
	st.AttemptsUsed = 3 // == MaxAttempts

	out, err := Transition(st, TransitionInput{
		Event:  model.EventRetryRequested,
		Now:    testNow,
		Policy: testPolicy(),
	})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if !out.NoOp {
		t.Fatal("expected no-op when retries are exhausted")
	}
	if st.State != model.StateFailed {
		t.Fatalf("state = %s, want failed", st.State)
	}
}

func TestManagerBypass(t *testing.T) {
	t.Run("unauthorized role", func(t *testing.T) {
		st := testState(model.StateFailed)
		_, err := Transition(st, TransitionInput{
			Event:        model.EventManagerBypass,
			Now:          testNow,
			Policy:       testPolicy(),
			ApproverRole: model.Member,
		})
		if !errors.Is(err, util.ErrUnauthorizedApprover) {
			t.Fatalf("err = %v, want ErrUnauthorizedApprover", err)
		}
		if st.State != model.StateFailed {
			t.Fatal("state mutated by a rejected bypass")
		}
	})

	t.Run("quota exceeded", func(t *testing.T) {
		st := testState(model.StateFailed)
		_, err := Transition(st, TransitionInput{
			Event:             model.EventManagerBypass,
			Now:               testNow,
			Policy:            testPolicy(),
			ApproverRole:      model.Manager,
			BypassesThisMonth: 10,
		})
		if !errors.Is(err, util.ErrBypassQuotaExceeded) {
			t.Fatalf("err = %v, want ErrBypassQuotaExceeded", err)
		}
	})

	t.Run("granted", func(t *testing.T) {
		st := testState(model.StateRetrying)
		out, err := Transition(st, TransitionInput{
			Event:        model.EventManagerBypass,
			Now:          testNow,
			Principal:    "mgr-1",
			Policy:       testPolicy(),
			ApproverID:   "mgr-1",
			ApproverRole: model.Manager,
			Reason:       "engine outage",
		})
		if err != nil {
			t.Fatalf("Transition: %v", err)
		}
		if st.State != model.StateBypassed || !st.Bypassed {
			t.Fatalf("state = %s, want bypassed", st.State)
		}
		if st.BypassApprover == nil || *st.BypassApprover != "mgr-1" {
			t.Fatal("approver not recorded")
		}
		if out.Audit.EventType != model.AuditBypass {
			t.Fatalf("audit event type = %s, want bypass", out.Audit.EventType)
		}
	})
}

func TestCycleEndResetsFromTerminalStates(t *testing.T) {
	for _, from := range []model.AssessmentState{model.StatePassed, model.StateFailed, model.StateBypassed} {
		st := testState(from)
		st.AttemptsUsed = 2
		st.Bypassed = from == model.StateBypassed

		_, err := Transition(st, TransitionInput{
			Event:         model.EventCycleEnd,
			Now:           testNow,
			Policy:        testPolicy(),
			NextCycleDate: "2025-03-04",
		})
		if err != nil {
			t.Fatalf("cycle_end from %s: %v", from, err)
		}
		if st.State != model.StateIdle || st.CycleDate != "2025-03-04" {
			t.Fatalf("from %s: state=%s cycle=%s", from, st.State, st.CycleDate)
		}
		if st.AttemptsUsed != 0 || st.Bypassed {
			t.Fatalf("from %s: cycle bookkeeping not reset", from)
		}
	}
}

func TestInvalidPairsRejected(t *testing.T) {
	cases := []struct {
		from  model.AssessmentState
		event model.GateEvent
	}{
		{model.StatePending, model.EventCycleStart},
		{model.StateInProgress, model.EventCycleStart},
		{model.StatePassed, model.EventStartAssessment},
		{model.StateIdle, model.EventStartAssessment},
		{model.StateFailed, model.EventAssessmentPassed},
		{model.StatePending, model.EventAssessmentFailed},
		{model.StatePending, model.EventSessionExpired},
		{model.StateIdle, model.EventRetryRequested},
		{model.StateRetrying, model.EventRetryRequested},
		{model.StatePassed, model.EventManagerBypass},
		{model.StateIdle, model.EventManagerBypass},
		{model.StatePending, model.EventCycleEnd},
		{model.StateInProgress, model.EventCycleEnd},
		{model.StateRetrying, model.EventCycleEnd},
	}
	for _, tc := range cases {
		st := testState(tc.from)
		_, err := Transition(st, TransitionInput{
			Event:        tc.event,
			Now:          testNow,
			Policy:       testPolicy(),
			ApproverRole: model.Manager,
			Result:       &EngineResult{RunID: "run-x", Scores: map[string]float64{}},
		})
		if !errors.Is(err, util.ErrInvalidState) {
			t.Errorf("%s on %s: err = %v, want ErrInvalidState", tc.event, tc.from, err)
		}
		if st.State != tc.from {
			t.Errorf("%s on %s: state mutated to %s", tc.event, tc.from, st.State)
		}
	}
}
