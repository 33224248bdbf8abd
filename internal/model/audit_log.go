package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

type AuditEventType string

const (
	AuditTransition AuditEventType = "transition"
	AuditDecision   AuditEventType = "decision"
	AuditBypass     AuditEventType = "bypass"
)

// AuditLogEntry is one immutable record in the per-(user, org) hash chain.
// There is deliberately no UpdatedAt and no soft delete: the table is
// append-only and any retroactive edit breaks every subsequent hash.
// swagger:model AuditLogEntry
type AuditLogEntry struct {
	EntryID         string          `gorm:"primaryKey;size:26" json:"entryId"` // ULID, sortable
	UserID          string          `gorm:"size:64;index:idx_chain;not null" json:"userId"`
	OrgID           string          `gorm:"size:64;index:idx_chain;not null" json:"orgId"`
	ChainSeq        uint64          `gorm:"index:idx_chain;not null" json:"chainSeq"`
	Timestamp       time.Time       `gorm:"not null" json:"timestamp"`
	EventType       AuditEventType  `gorm:"size:20;not null;index" json:"eventType"`
	Event           GateEvent       `gorm:"size:32" json:"event,omitempty"`
	FromState       AssessmentState `gorm:"size:20" json:"fromState,omitempty"`
	ToState         AssessmentState `gorm:"size:20" json:"toState,omitempty"`
	ActingPrincipal string          `gorm:"size:64" json:"actingPrincipal"`
	Detail          json.RawMessage `gorm:"type:json" json:"detail,omitempty"` // metadata only, never raw answers
	PrevHash        string          `gorm:"size:64;not null" json:"prevHash"`
	Hash            string          `gorm:"size:64;not null" json:"hash"`
}

func (AuditLogEntry) TableName() string {
	return "audit_log_entries"
}

// GenesisHash anchors the first entry of every chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// ComputeHash hashes the entry's fields together with the previous entry's
// hash. Field order is fixed; changing it invalidates existing chains.
func (e *AuditLogEntry) ComputeHash() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d|%s|%s|%s|%s|%s|%s|%s|%s",
		e.EntryID,
		e.UserID,
		e.OrgID,
		e.ChainSeq,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.EventType,
		e.Event,
		e.FromState,
		e.ToState,
		e.ActingPrincipal,
		string(e.Detail),
		e.PrevHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}

// Seal links the entry to prev and stamps its hash.
func (e *AuditLogEntry) Seal(prev *AuditLogEntry) {
	if prev == nil {
		e.ChainSeq = 1
		e.PrevHash = GenesisHash
	} else {
		e.ChainSeq = prev.ChainSeq + 1
		e.PrevHash = prev.Hash
	}
	e.Hash = e.ComputeHash()
}

// Verify recomputes the hash and checks the link to prev.
func (e *AuditLogEntry) Verify(prev *AuditLogEntry) bool {
	want := GenesisHash
	if prev != nil {
		want = prev.Hash
	}
	return e.PrevHash == want && e.Hash == e.ComputeHash()
}

// AuditQuery filters the read-only audit surface.
type AuditQuery struct {
	UserID    string
	OrgID     string
	EventType AuditEventType
	From      time.Time
	To        time.Time
	Limit     int
}
