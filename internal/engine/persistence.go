package engine

import (
	"encoding/json"

	"github.com/google/uuid"

	"payment-reconciliation-service/internal/store"
	"payment-reconciliation-service/pkg/errors"
)

// Record flattens a reconciliation for persistence. Rule outcomes and the
// audit trail travel as JSON documents.
func (r *Reconciliation) Record() *store.ReconciliationRecord {
	rules, _ := json.Marshal(r.RulesFired)
	audit, _ := json.Marshal(r.AuditTrail)
	matched, _ := json.Marshal(r.MatchedIDs)
	return &store.ReconciliationRecord{
		TransactionID: r.TransactionID,
		RunID:         r.RunID.String(),
		Score:         r.Score,
		State:         string(r.State),
		RulesFired:    rules,
		AuditTrail:    audit,
		MatchedIDs:    matched,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// FromRecord rebuilds a reconciliation from its persisted form so state
// transitions can be validated against the live state machine.
func FromRecord(rec *store.ReconciliationRecord) (*Reconciliation, error) {
	runID, err := uuid.Parse(rec.RunID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryStorage, errors.CodeQueryFailed,
			"stored reconciliation has malformed run id "+rec.RunID)
	}
	r := &Reconciliation{
		TransactionID: rec.TransactionID,
		RunID:         runID,
		Score:         rec.Score,
		State:         ReconciliationState(rec.State),
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
	if len(rec.RulesFired) > 0 {
		_ = json.Unmarshal(rec.RulesFired, &r.RulesFired)
	}
	if len(rec.AuditTrail) > 0 {
		_ = json.Unmarshal(rec.AuditTrail, &r.AuditTrail)
	}
	if len(rec.MatchedIDs) > 0 {
		_ = json.Unmarshal(rec.MatchedIDs, &r.MatchedIDs)
	}
	return r, nil
}

// Records flattens every reconciliation in the run.
func (r *RunResult) Records() []*store.ReconciliationRecord {
	out := make([]*store.ReconciliationRecord, 0, len(r.Reconciliations))
	for _, rec := range r.Reconciliations {
		out = append(out, rec.Record())
	}
	return out
}
