package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"payment-reconciliation-service/pkg/errors"
)

// ReconciliationRecord is the persisted form of a scored transaction. The
// engine's richer type flattens into it; rule outcomes and audit trails are
// stored as JSON documents since nothing queries inside them.
type ReconciliationRecord struct {
	TransactionID string          `json:"transaction_id"`
	RunID         string          `json:"run_id"`
	Score         float64         `json:"score"`
	State         string          `json:"state"`
	RulesFired    json.RawMessage `json:"rules_fired,omitempty"`
	AuditTrail    json.RawMessage `json:"audit_trail,omitempty"`
	MatchedIDs    json.RawMessage `json:"matched_ids,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ReconciliationStore persists run outcomes for later review.
type ReconciliationStore interface {
	SaveReconciliations(recs []*ReconciliationRecord) error
	GetReconciliation(transactionID, runID string) (*ReconciliationRecord, error)
	// ListReconciliations filters by run and optionally by state ("" = all).
	ListReconciliations(runID, state string) ([]*ReconciliationRecord, error)
	// UpdateReconciliationState replaces state and audit trail after a
	// transition already validated by the caller.
	UpdateReconciliationState(transactionID, runID, state string, auditTrail json.RawMessage) error
}

var (
	_ ReconciliationStore = (*SQLiteStore)(nil)
	_ ReconciliationStore = (*MemoryStore)(nil)
)

func (s *SQLiteStore) SaveReconciliations(recs []*ReconciliationRecord) error {
	dbTx, err := s.db.Begin()
	if err != nil {
		return errors.StorageError(errors.CodeSaveFailed, "begin reconciliation save", err)
	}
	stmt, err := dbTx.Prepare(`
		INSERT OR REPLACE INTO reconciliations
		(transaction_id, run_id, score, state, rules_fired, audit_trail,
		 matched_ids, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = dbTx.Rollback()
		return errors.StorageError(errors.CodeSaveFailed, "prepare reconciliation save", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.Exec(
			rec.TransactionID, rec.RunID, rec.Score, rec.State,
			string(rec.RulesFired), string(rec.AuditTrail), string(rec.MatchedIDs),
			rec.CreatedAt.Unix(), rec.UpdatedAt.Unix(),
		); err != nil {
			_ = dbTx.Rollback()
			return errors.StorageError(errors.CodeSaveFailed, "save reconciliation", err).
				WithContext("transaction_id", rec.TransactionID)
		}
	}
	if err := dbTx.Commit(); err != nil {
		return errors.StorageError(errors.CodeSaveFailed, "commit reconciliation save", err)
	}
	return nil
}

const selectReconciliation = `
	SELECT transaction_id, run_id, score, state, rules_fired, audit_trail,
	       matched_ids, created_at, updated_at
	FROM reconciliations`

func (s *SQLiteStore) GetReconciliation(transactionID, runID string) (*ReconciliationRecord, error) {
	row := s.db.QueryRow(selectReconciliation+` WHERE transaction_id = ? AND run_id = ?`,
		transactionID, runID)
	rec, err := scanReconciliation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "get reconciliation", err)
	}
	return rec, nil
}

func (s *SQLiteStore) ListReconciliations(runID, state string) ([]*ReconciliationRecord, error) {
	q := selectReconciliation + ` WHERE run_id = ?`
	args := []any{runID}
	if state != "" {
		q += ` AND state = ?`
		args = append(args, state)
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "list reconciliations", err)
	}
	defer rows.Close()

	var out []*ReconciliationRecord
	for rows.Next() {
		rec, err := scanReconciliation(rows)
		if err != nil {
			return nil, errors.StorageError(errors.CodeQueryFailed, "list reconciliations", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateReconciliationState(transactionID, runID, state string, auditTrail json.RawMessage) error {
	res, err := s.db.Exec(`
		UPDATE reconciliations SET state = ?, audit_trail = ?, updated_at = ?
		WHERE transaction_id = ? AND run_id = ?`,
		state, string(auditTrail), time.Now().Unix(), transactionID, runID)
	if err != nil {
		return errors.StorageError(errors.CodeSaveFailed, "update reconciliation state", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.StorageError(errors.CodeQueryFailed, "update reconciliation state", nil).
			WithContext("transaction_id", transactionID).
			WithContext("run_id", runID).
			WithSuggestion("check the transaction and run IDs against a previous run's output")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReconciliation(row rowScanner) (*ReconciliationRecord, error) {
	var (
		rec                   ReconciliationRecord
		rules, audit, matched sql.NullString
		createdAt, updatedAt  int64
	)
	if err := row.Scan(
		&rec.TransactionID, &rec.RunID, &rec.Score, &rec.State,
		&rules, &audit, &matched, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	if rules.Valid {
		rec.RulesFired = json.RawMessage(rules.String)
	}
	if audit.Valid {
		rec.AuditTrail = json.RawMessage(audit.String)
	}
	if matched.Valid {
		rec.MatchedIDs = json.RawMessage(matched.String)
	}
	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	rec.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &rec, nil
}

// In-memory implementation, used by tests and single-shot runs.

type reconKey struct{ tx, run string }

func (m *MemoryStore) reconMap() map[reconKey]*ReconciliationRecord {
	if m.recons == nil {
		m.recons = make(map[reconKey]*ReconciliationRecord)
	}
	return m.recons
}

func (m *MemoryStore) SaveReconciliations(recs []*ReconciliationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range recs {
		cp := *rec
		m.reconMap()[reconKey{rec.TransactionID, rec.RunID}] = &cp
	}
	return nil
}

func (m *MemoryStore) GetReconciliation(transactionID, runID string) (*ReconciliationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rec, ok := m.recons[reconKey{transactionID, runID}]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, nil
}

func (m *MemoryStore) ListReconciliations(runID, state string) ([]*ReconciliationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ReconciliationRecord
	for key, rec := range m.recons {
		if key.run != runID {
			continue
		}
		if state != "" && rec.State != state {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) UpdateReconciliationState(transactionID, runID, state string, auditTrail json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recons[reconKey{transactionID, runID}]
	if !ok {
		return errors.StorageError(errors.CodeQueryFailed, "update reconciliation state", nil).
			WithContext("transaction_id", transactionID)
	}
	rec.State = state
	rec.AuditTrail = auditTrail
	rec.UpdatedAt = time.Now().UTC()
	return nil
}
