package model

import (
	"encoding/json"
	"testing"
	"time"
)

func chainEntry(id string, event GateEvent, at time.Time) *AuditLogEntry {
	return &AuditLogEntry{
		EntryID:         id,
		UserID:          "u-1",
		OrgID:           "org-1",
		Timestamp:       at,
		EventType:       AuditTransition,
		Event:           event,
		FromState:       StateIdle,
		ToState:         StatePending,
		ActingPrincipal: "system",
	}
}

func TestSealLinksChain(t *testing.T) {
	at := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

	first := chainEntry("01ENTRY1", EventCycleStart, at)
	first.Seal(nil)
	if first.ChainSeq != 1 || first.PrevHash != GenesisHash {
		t.Fatalf("first entry: seq=%d prev=%s", first.ChainSeq, first.PrevHash)
	}
	if !first.Verify(nil) {
		t.Fatal("sealed genesis entry must verify")
	}

	second := chainEntry("01ENTRY2", EventStartAssessment, at.Add(time.Minute))
	second.Seal(first)
	if second.ChainSeq != 2 || second.PrevHash != first.Hash {
		t.Fatalf("second entry: seq=%d prev=%s", second.ChainSeq, second.PrevHash)
	}
	if !second.Verify(first) {
		t.Fatal("sealed second entry must verify")
	}
}

func TestVerifyDetectsFieldTamper(t *testing.T) {
	at := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	e := chainEntry("01ENTRY1", EventCycleStart, at)
	e.Detail = json.RawMessage(`{"attempt":1}`)
	e.Seal(nil)

	tampered := *e
	tampered.Detail = json.RawMessage(`{"attempt":2}`)
	if tampered.Verify(nil) {
		t.Fatal("edited detail must break verification")
	}

	tampered = *e
	tampered.ActingPrincipal = "someone-else"
	if tampered.Verify(nil) {
		t.Fatal("edited principal must break verification")
	}

	tampered = *e
	tampered.Timestamp = at.Add(time.Second)
	if tampered.Verify(nil) {
		t.Fatal("edited timestamp must break verification")
	}
}

func TestVerifyDetectsBrokenLink(t *testing.T) {
	at := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	first := chainEntry("01ENTRY1", EventCycleStart, at)
	first.Seal(nil)
	second := chainEntry("01ENTRY2", EventStartAssessment, at.Add(time.Minute))
	second.Seal(first)

	// re-sealing the first entry with altered content orphans the second
	first.Detail = json.RawMessage(`{"forged":true}`)
	first.Hash = first.ComputeHash()
	if second.Verify(first) {
		t.Fatal("second entry must not verify against a rewritten predecessor")
	}
}

func TestStateHelpers(t *testing.T) {
	for _, s := range []AssessmentState{StateIdle, StatePending, StateInProgress, StatePassed, StateFailed, StateRetrying, StateBypassed} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if AssessmentState("limbo").Valid() {
		t.Error("unknown state accepted")
	}

	terminal := map[AssessmentState]bool{
		StatePassed: true, StateFailed: true, StateBypassed: true,
		StateIdle: false, StatePending: false, StateInProgress: false, StateRetrying: false,
	}
	for s, want := range terminal {
		if s.Terminal() != want {
			t.Errorf("%s.Terminal() = %v, want %v", s, s.Terminal(), want)
		}
	}
}

func TestResetCycleKeepsRunningStats(t *testing.T) {
	sid := "sess-1"
	st := &UserAssessmentState{
		UserID:           "u-1",
		OrgID:            "org-1",
		State:            StatePassed,
		CycleDate:        "2025-03-03",
		SessionID:        &sid,
		AttemptsUsed:     2,
		Bypassed:         true,
		TotalAssessments: 9,
		TotalPassed:      7,
		CurrentStreak:    4,
	}
	st.ResetCycle("2025-03-04")

	if st.State != StateIdle || st.CycleDate != "2025-03-04" {
		t.Fatalf("state=%s cycle=%s", st.State, st.CycleDate)
	}
	if st.SessionID != nil || st.AttemptsUsed != 0 || st.Bypassed {
		t.Fatal("cycle bookkeeping not cleared")
	}
	if st.TotalAssessments != 9 || st.TotalPassed != 7 || st.CurrentStreak != 4 {
		t.Fatal("running stats must survive a cycle reset")
	}
}
