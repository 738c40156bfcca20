package store

import (
	"database/sql"
	"fmt"
)

// migration is one versioned schema change, applied in its own transaction.
type migration struct {
	Version int
	Name    string
	Up      func(*sql.Tx) error
}

var allMigrations = []migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up:      migration001InitialSchema,
	},
	{
		Version: 2,
		Name:    "reconciliation_results",
		Up:      migration002ReconciliationResults,
	},
}

func migration001InitialSchema(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			external_reference TEXT NOT NULL,
			normalized_reference TEXT NOT NULL,
			amount TEXT NOT NULL,
			currency TEXT NOT NULL DEFAULT 'NGN',
			status TEXT NOT NULL,
			customer_identifier TEXT,
			timestamp INTEGER NOT NULL,
			raw_data TEXT,
			ingested_at INTEGER NOT NULL
		)`,
		// the exact-match lookup runs once per transaction per run and
		// must never fall back to a table scan
		`CREATE INDEX IF NOT EXISTS idx_tx_source_normref
			ON transactions (source, normalized_reference)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_source_amount
			ON transactions (source, amount)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_source_timestamp
			ON transactions (source, timestamp)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func migration002ReconciliationResults(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS reconciliations (
			transaction_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			score REAL NOT NULL,
			state TEXT NOT NULL,
			rules_fired TEXT,
			audit_trail TEXT,
			matched_ids TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (transaction_id, run_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recon_run_state
			ON reconciliations (run_id, state)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// runMigrations applies every pending migration in version order.
func (s *SQLiteStore) runMigrations() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}
	applied, err := s.appliedMigrations()
	if err != nil {
		return fmt.Errorf("reading applied migrations: %w", err)
	}

	for _, m := range allMigrations {
		if applied[m.Version] {
			continue
		}
		s.log.Debugf("applying migration %d: %s", m.Version, m.Name)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %d: %w", m.Version, err)
		}
		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`,
			m.Version, m.Name,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func (s *SQLiteStore) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`)
	return err
}

func (s *SQLiteStore) appliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}
