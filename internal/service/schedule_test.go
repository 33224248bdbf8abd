package service

import (
	"ethics_gate_backend/internal/model"
	"testing"
	"time"
)

func TestAssessmentRequiredSchedule(t *testing.T) {
	cfg := testPolicy()
	cfg.Schedule.SkipWeekends = true

	monday10 := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	monday8 := time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)
	saturday := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	if !assessmentRequired(cfg, "member", monday10) {
		t.Fatal("weekday past window start must be required")
	}
	if assessmentRequired(cfg, "member", monday8) {
		t.Fatal("before window start nothing is due")
	}
	if assessmentRequired(cfg, "member", saturday) {
		t.Fatal("weekends are skipped")
	}
}

func TestAssessmentWindowEnd(t *testing.T) {
	cfg := testPolicy()
	cfg.Schedule.WindowEnd = "17:00"

	inWindow := time.Date(2025, 3, 3, 16, 59, 0, 0, time.UTC)
	afterEnd := time.Date(2025, 3, 3, 17, 0, 0, 0, time.UTC)

	if !assessmentRequired(cfg, "member", inWindow) {
		t.Fatal("inside the window must be required")
	}
	if assessmentRequired(cfg, "member", afterEnd) {
		t.Fatal("cycles beginning after window end are not gated")
	}

	// an unparseable or inverted end leaves the window open-ended
	cfg.Schedule.WindowEnd = "08:00"
	if !assessmentRequired(cfg, "member", afterEnd) {
		t.Fatal("an end before the start must be ignored")
	}
}

func TestAssessmentRequiredTimezone(t *testing.T) {
	cfg := testPolicy()
	cfg.Schedule.Timezone = "America/New_York"

	// 13:00 UTC on a Monday is 08:00 in New York, before the 09:00 window
	utc13 := time.Date(2025, 3, 3, 13, 0, 0, 0, time.UTC)
	if assessmentRequired(cfg, "member", utc13) {
		t.Fatal("window start must be evaluated in the org timezone")
	}

	// 15:00 UTC is 10:00 in New York
	utc15 := time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC)
	if !assessmentRequired(cfg, "member", utc15) {
		t.Fatal("past local window start must be required")
	}

	if got := cycleDateFor(cfg, time.Date(2025, 3, 4, 2, 0, 0, 0, time.UTC)); got != "2025-03-03" {
		t.Fatalf("cycle date = %s, want the local calendar day", got)
	}
}

func TestInGracePeriod(t *testing.T) {
	cfg := testPolicy() // window 09:00, grace 30

	cases := []struct {
		at   time.Time
		want bool
	}{
		{time.Date(2025, 3, 3, 8, 59, 0, 0, time.UTC), false},
		{time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC), true},
		{time.Date(2025, 3, 3, 9, 29, 0, 0, time.UTC), true},
		{time.Date(2025, 3, 3, 9, 30, 0, 0, time.UTC), false},
	}
	for _, tc := range cases {
		if got := inGracePeriod(cfg, tc.at); got != tc.want {
			t.Errorf("inGracePeriod(%s) = %v, want %v", tc.at.Format("15:04"), got, tc.want)
		}
	}

	cfg.Schedule.GraceMinutes = 0
	if inGracePeriod(cfg, time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)) {
		t.Error("zero grace means no grace window")
	}
}

func TestExemptRoleNeverRequired(t *testing.T) {
	cfg := testPolicy()
	cfg.RoleOverrides = map[string]model.RoleOverride{"admin": {Exempt: true}}

	if assessmentRequired(cfg, "admin", testNow) {
		t.Fatal("exempt role must never be required")
	}
	if !assessmentRequired(cfg, "member", testNow) {
		t.Fatal("non-exempt role still required")
	}
}
