package service

import (
	"context"
	"ethics_gate_backend/internal/model"
)

// AuditService exposes the read side of the audit chain.
type AuditService struct {
	audits AuditStore
}

func NewAuditService(audits AuditStore) *AuditService {
	return &AuditService{audits: audits}
}

func (s *AuditService) Query(ctx context.Context, q model.AuditQuery) ([]model.AuditLogEntry, error) {
	return s.audits.Query(ctx, q)
}

func (s *AuditService) Chain(ctx context.Context, userID, orgID string) ([]model.AuditLogEntry, error) {
	return s.audits.Chain(ctx, userID, orgID)
}

// ChainReport is the outcome of a full chain verification.
type ChainReport struct {
	UserID  string `json:"userId"`
	OrgID   string `json:"orgId"`
	Entries int    `json:"entries"`
	Valid   bool   `json:"valid"`
	// BrokenSeq is the chain sequence of the first entry whose hash or
	// linkage does not verify; -1 when the chain is intact.
	BrokenSeq int64  `json:"brokenSeq"`
	Reason    string `json:"reason,omitempty"`
}

// VerifyChain recomputes every hash in a user's chain from genesis and
// reports the first break, if any. Tampering with a stored entry breaks
// verification at that entry or its successor.
func (s *AuditService) VerifyChain(ctx context.Context, userID, orgID string) (*ChainReport, error) {
	entries, err := s.audits.Chain(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}

	report := &ChainReport{
		UserID:    userID,
		OrgID:     orgID,
		Entries:   len(entries),
		Valid:     true,
		BrokenSeq: -1,
	}

	var prev *model.AuditLogEntry
	for i := range entries {
		e := &entries[i]
		wantSeq := uint64(1)
		if prev != nil {
			wantSeq = prev.ChainSeq + 1
		}
		if e.ChainSeq != wantSeq {
			report.Valid = false
			report.BrokenSeq = int64(e.ChainSeq)
			report.Reason = "chain sequence gap"
			return report, nil
		}
		if !e.Verify(prev) {
			report.Valid = false
			report.BrokenSeq = int64(e.ChainSeq)
			report.Reason = "hash mismatch"
			return report, nil
		}
		prev = e
	}
	return report, nil
}
