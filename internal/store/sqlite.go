package store

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"payment-reconciliation-service/internal/models"
	"payment-reconciliation-service/pkg/errors"
	"payment-reconciliation-service/pkg/logger"
)

// SQLiteStore is the durable Store. Amounts are persisted as fixed
// two-decimal strings so equality lookups stay exact; range scans cast to
// REAL, which is safe because rules re-verify every candidate with decimal
// arithmetic.
type SQLiteStore struct {
	db  *sql.DB
	log logger.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path and applies pending
// migrations.
func NewSQLiteStore(path string, log logger.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "open database", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, errors.StorageError(errors.CodeQueryFailed, "enable WAL", err)
	}

	s := &SQLiteStore{db: db, log: log.WithComponent("store")}
	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, errors.StorageError(errors.CodeQueryFailed, "migrate schema", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const insertTransaction = `
	INSERT INTO transactions
	(id, source, external_reference, normalized_reference, amount, currency,
	 status, customer_identifier, timestamp, raw_data, ingested_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (s *SQLiteStore) Save(tx *models.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	rawJSON, _ := json.Marshal(tx.RawData)
	_, err := s.db.Exec(insertTransaction,
		tx.ID,
		tx.Source,
		tx.ExternalReference,
		tx.NormalizedReference,
		tx.Amount.StringFixed(2),
		tx.Currency,
		tx.Status,
		tx.CustomerIdentifier,
		tx.Timestamp.Unix(),
		string(rawJSON),
		tx.IngestedAt.Unix(),
	)
	if err != nil {
		return errors.StorageError(errors.CodeSaveFailed, "save transaction", err).
			WithContext("transaction_id", tx.ID)
	}
	return nil
}

// SaveBatch inserts all transactions in one database transaction; a single
// bad record rolls the whole batch back.
func (s *SQLiteStore) SaveBatch(txs []*models.Transaction) error {
	dbTx, err := s.db.Begin()
	if err != nil {
		return errors.StorageError(errors.CodeSaveFailed, "begin batch", err)
	}
	stmt, err := dbTx.Prepare(insertTransaction)
	if err != nil {
		_ = dbTx.Rollback()
		return errors.StorageError(errors.CodeSaveFailed, "prepare batch insert", err)
	}
	defer stmt.Close()

	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			_ = dbTx.Rollback()
			return err
		}
		rawJSON, _ := json.Marshal(tx.RawData)
		if _, err := stmt.Exec(
			tx.ID, tx.Source, tx.ExternalReference, tx.NormalizedReference,
			tx.Amount.StringFixed(2), tx.Currency, tx.Status,
			tx.CustomerIdentifier, tx.Timestamp.Unix(), string(rawJSON),
			tx.IngestedAt.Unix(),
		); err != nil {
			_ = dbTx.Rollback()
			return errors.StorageError(errors.CodeSaveFailed, "batch insert", err).
				WithContext("transaction_id", tx.ID)
		}
	}
	if err := dbTx.Commit(); err != nil {
		return errors.StorageError(errors.CodeSaveFailed, "commit batch", err)
	}
	s.log.WithField("count", len(txs)).Debug("batch saved")
	return nil
}

const selectColumns = `
	SELECT id, source, external_reference, normalized_reference, amount,
	       currency, status, customer_identifier, timestamp, raw_data,
	       ingested_at
	FROM transactions`

func (s *SQLiteStore) FindByNormalizedReference(source, normalizedRef string) ([]*models.Transaction, error) {
	return s.query("find by reference",
		selectColumns+` WHERE source = ? AND normalized_reference = ?`,
		source, normalizedRef)
}

func (s *SQLiteStore) FindByFuzzyReference(source, normalizedRef string) ([]*models.Transaction, error) {
	if normalizedRef == "" {
		return nil, nil
	}
	minLen, maxLen := fuzzyLengthBounds(normalizedRef)
	// escape LIKE metacharacters so references containing % or _ cannot
	// widen the candidate set
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(normalizedRef)
	return s.query("find by fuzzy reference",
		selectColumns+` WHERE source = ?
			AND (length(normalized_reference) BETWEEN ? AND ?
				OR normalized_reference LIKE ? ESCAPE '\'
				OR instr(?, normalized_reference) > 0)`,
		source, minLen, maxLen, "%"+escaped+"%", normalizedRef)
}

func (s *SQLiteStore) FindByAmountRange(source string, min, max decimal.Decimal) ([]*models.Transaction, error) {
	return s.query("find by amount range",
		selectColumns+` WHERE source = ? AND CAST(amount AS REAL) BETWEEN ? AND ?`,
		source, min.InexactFloat64(), max.InexactFloat64())
}

func (s *SQLiteStore) FindByTimeRange(source string, from, to time.Time) ([]*models.Transaction, error) {
	return s.query("find by time range",
		selectColumns+` WHERE source = ? AND timestamp BETWEEN ? AND ?`,
		source, from.Unix(), to.Unix())
}

func (s *SQLiteStore) FindPotentialDuplicates(source string, amount decimal.Decimal, from, to time.Time, excludeID string) ([]*models.Transaction, error) {
	return s.query("find potential duplicates",
		selectColumns+` WHERE source = ? AND amount = ? AND timestamp BETWEEN ? AND ? AND id != ?`,
		source, amount.StringFixed(2), from.Unix(), to.Unix(), excludeID)
}

func (s *SQLiteStore) query(operation, q string, args ...any) ([]*models.Transaction, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, operation, err)
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, errors.StorageError(errors.CodeQueryFailed, operation, err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, operation, err)
	}
	return out, nil
}

func scanTransaction(rows *sql.Rows) (*models.Transaction, error) {
	var (
		tx        models.Transaction
		amount    string
		customer  sql.NullString
		rawJSON   sql.NullString
		ts, ingTs int64
	)
	if err := rows.Scan(
		&tx.ID, &tx.Source, &tx.ExternalReference, &tx.NormalizedReference,
		&amount, &tx.Currency, &tx.Status, &customer, &ts, &rawJSON, &ingTs,
	); err != nil {
		return nil, err
	}
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, err
	}
	tx.Amount = amt
	tx.Timestamp = time.Unix(ts, 0).UTC()
	tx.IngestedAt = time.Unix(ingTs, 0).UTC()
	if customer.Valid {
		tx.CustomerIdentifier = customer.String
	}
	if rawJSON.Valid && rawJSON.String != "" {
		_ = json.Unmarshal([]byte(rawJSON.String), &tx.RawData)
	}
	return &tx, nil
}
