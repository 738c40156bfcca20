// Package ingest turns raw statement files and processor webhooks into
// normalized ParsedTransaction records.
//
// The CSV path is deliberately forgiving: format detection never fails, rows
// that cannot be parsed are recorded and skipped rather than aborting the
// file, and every salvage decision (generated reference, defaulted date) is
// reflected in the row's parse confidence and warnings.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"payment-reconciliation-service/internal/formats"
	"payment-reconciliation-service/internal/models"
	"payment-reconciliation-service/internal/refextract"
	"payment-reconciliation-service/pkg/errors"
	"payment-reconciliation-service/pkg/logger"
)

// RowError records one unparseable row without failing the file.
type RowError struct {
	Row     int
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *RowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("row %d (%s=%q): %s: %v", e.Row, e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("row %d (%s=%q): %s", e.Row, e.Field, e.Value, e.Message)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// ParseStats summarizes one file-level parse.
type ParseStats struct {
	TotalRows   int
	ParsedRows  int
	FailedRows  int
	SkippedRows int
	Errors      []*RowError
}

// AddError records a row failure.
func (ps *ParseStats) AddError(err *RowError) {
	ps.Errors = append(ps.Errors, err)
	ps.FailedRows++
}

// HasErrors reports whether any rows failed.
func (ps *ParseStats) HasErrors() bool {
	return ps.FailedRows > 0
}

// SuccessRate returns the fraction of data rows that parsed, in [0, 1].
// Skipped preamble rows do not count against it.
func (ps *ParseStats) SuccessRate() float64 {
	attempted := ps.ParsedRows + ps.FailedRows
	if attempted == 0 {
		return 0
	}
	return float64(ps.ParsedRows) / float64(attempted)
}

func (ps *ParseStats) String() string {
	return fmt.Sprintf("parsed %d/%d rows (%d skipped, %d failed)",
		ps.ParsedRows, ps.TotalRows, ps.SkippedRows, ps.FailedRows)
}

// ParseResult carries the normalized rows plus everything detection and
// parsing learned about the file.
type ParseResult struct {
	Transactions []*models.ParsedTransaction
	Stats        *ParseStats
	Detection    formats.Detection
	Columns      ColumnMap
}

// Parser reads one statement file in a detected or declared format.
type Parser struct {
	desc *formats.Descriptor
	log  logger.Logger
	now  func() time.Time
}

// NewParser builds a parser. A nil descriptor enables auto-detection.
func NewParser(desc *formats.Descriptor, log logger.Logger) *Parser {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Parser{
		desc: desc,
		log:  log.WithComponent("ingest"),
		now:  time.Now,
	}
}

// Parse reads the whole input, detects the format when none was declared and
// normalizes every data row. Row failures accumulate in the result's stats;
// Parse itself fails only when the input cannot be read at all.
func (p *Parser) Parse(r io.Reader) (*ParseResult, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, "statement input", err)
	}
	content := string(raw)

	det := formats.Detect(content)
	if p.desc != nil {
		det.Descriptor = p.desc
	}
	log := p.log.WithFields(logger.Fields{
		"format":    det.Descriptor.Name,
		"delimiter": string(det.Delimiter),
	})
	log.Debugf("format resolved, header row %d", det.HeaderRow)

	reader := csv.NewReader(strings.NewReader(content))
	reader.Comma = det.Delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	stats := &ParseStats{}
	result := &ParseResult{Stats: stats, Detection: det, Columns: emptyColumnMap()}

	row := -1
	positional := false
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		stats.TotalRows++
		if err != nil {
			stats.AddError(&RowError{Row: row, Message: "malformed row", Err: err})
			continue
		}
		if row < det.SkipRows {
			if row == det.HeaderRow {
				result.Columns = MapColumns(record, det.Descriptor)
				for _, w := range result.Columns.Warnings {
					log.Warn(w)
				}
			}
			stats.SkippedRows++
			continue
		}
		if isBlank(record) {
			stats.SkippedRows++
			continue
		}
		if det.HeaderRow < 0 && !positional && len(record) >= 3 {
			result.Columns = positionalColumnMap()
			positional = true
			log.Warn("no header row found; assuming reference, amount, date, status column order")
		}
		tx, rowErr := p.ParseRow(record, row, det.Descriptor, result.Columns)
		if rowErr != nil {
			stats.AddError(rowErr)
			continue
		}
		stats.ParsedRows++
		result.Transactions = append(result.Transactions, tx)
	}

	log.Infof("%s, success rate %.2f", stats, stats.SuccessRate())
	return result, nil
}

// ParseRow normalizes one data row. It only fails when no usable amount can
// be recovered; every other gap degrades confidence instead.
func (p *Parser) ParseRow(record []string, row int, desc *formats.Descriptor, cols ColumnMap) (*models.ParsedTransaction, *RowError) {
	tx := &models.ParsedTransaction{
		SourceRow:       row,
		Currency:        "NGN",
		RawData:         rawData(record),
		ParseConfidence: 0.5,
	}
	if c := cell(record, cols.Currency); c != "" {
		tx.Currency = strings.ToUpper(c)
	}
	tx.Narration = cell(record, cols.Narration)

	p.resolveReference(tx, record, cols, desc, row)
	if rowErr := p.resolveAmount(tx, record, cols, row); rowErr != nil {
		return nil, rowErr
	}
	p.resolveType(tx, record, cols)
	p.resolveTimestamp(tx, record, cols, desc)

	tx.Status = models.NormalizeStatus(cell(record, cols.Status))
	tx.CustomerIdentifier = cell(record, cols.Customer)
	if tx.ParseConfidence > 1.0 {
		tx.ParseConfidence = 1.0
	}
	return tx, nil
}

// resolveReference takes the reference column when present, falls back to
// narration extraction, and as a last resort generates a synthetic reference
// so the row stays addressable downstream.
func (p *Parser) resolveReference(tx *models.ParsedTransaction, record []string, cols ColumnMap, desc *formats.Descriptor, row int) {
	scanText := tx.Narration
	if scanText == "" {
		// headerless files: look for a reference anywhere in the row
		scanText = strings.Join(record, " ")
	}
	if ref := cell(record, cols.Reference); ref != "" {
		tx.ExternalReference = ref
		tx.ReferenceSource = models.RefFromColumn
		tx.ParseConfidence += 0.2 + 0.1
	} else if ref := refextract.Extract(scanText); ref != "" {
		tx.ExternalReference = ref
		tx.ReferenceSource = models.RefFromNarration
		tx.ParseConfidence += 0.2
	} else {
		tx.ExternalReference = fmt.Sprintf("%s-ROW%d-%d",
			strings.ToUpper(desc.Name), row, p.now().Unix()%100000)
		tx.ReferenceSource = models.RefGenerated
		tx.ParseWarnings = append(tx.ParseWarnings, "no reference found; generated placeholder")
	}
	tx.NormalizedReference = refextract.Normalize(tx.ExternalReference, desc)
}

// resolveAmount prefers a dedicated amount column, then the first positive of
// debit and credit. The stored amount is always the absolute value; direction
// lives in the transaction type.
func (p *Parser) resolveAmount(tx *models.ParsedTransaction, record []string, cols ColumnMap, row int) *RowError {
	candidates := []struct {
		idx   int
		field string
	}{
		{cols.Amount, "amount"},
		{cols.Debit, "debit"},
		{cols.Credit, "credit"},
	}
	var lastErr error
	for _, c := range candidates {
		raw := cell(record, c.idx)
		if raw == "" {
			continue
		}
		amt, err := models.ParseAmount(raw)
		if err != nil {
			lastErr = err
			continue
		}
		if c.field != "amount" && !amt.IsPositive() {
			continue
		}
		if amt.IsPositive() {
			tx.ParseConfidence += 0.15
		}
		tx.Amount = amt.Abs()
		return nil
	}
	// positional fallback: no mapped columns at all, scan for the first
	// parsable numeric cell
	if cols.Amount == -1 && cols.Debit == -1 && cols.Credit == -1 {
		for _, raw := range record {
			if amt, err := models.ParseAmount(raw); err == nil && !amt.Equal(decimal.Zero) {
				tx.Amount = amt.Abs()
				if amt.IsPositive() {
					tx.ParseConfidence += 0.15
				}
				tx.ParseWarnings = append(tx.ParseWarnings, "amount resolved positionally")
				return nil
			}
		}
	}
	return &RowError{Row: row, Field: "amount", Message: "no usable amount", Err: lastErr}
}

// resolveType reads direction from whichever of debit/credit carries the
// value, else from an explicit type column.
func (p *Parser) resolveType(tx *models.ParsedTransaction, record []string, cols ColumnMap) {
	if raw := cell(record, cols.Debit); raw != "" {
		if amt, err := models.ParseAmount(raw); err == nil && amt.IsPositive() {
			tx.Type = models.TypeDebit
			return
		}
	}
	if raw := cell(record, cols.Credit); raw != "" {
		if amt, err := models.ParseAmount(raw); err == nil && amt.IsPositive() {
			tx.Type = models.TypeCredit
			return
		}
	}
	tx.Type = models.ParseTransactionType(cell(record, cols.Type))
}

// resolveTimestamp tries the descriptor layout first, then the shared
// fallback list. A row with no parsable date gets the current time and a
// warning; dropping the row entirely would hide money from reconciliation.
func (p *Parser) resolveTimestamp(tx *models.ParsedTransaction, record []string, cols ColumnMap, desc *formats.Descriptor) {
	raw := cell(record, cols.Date)
	if raw != "" {
		if ts, err := models.ParseTimeWithLayouts(raw, desc.DateLayout); err == nil {
			tx.Timestamp = ts
			tx.ParseConfidence += 0.1
			return
		}
	}
	tx.Timestamp = p.now()
	tx.ParseWarnings = append(tx.ParseWarnings,
		fmt.Sprintf("unparseable date %q; defaulted to ingestion time", raw))
}

// positionalColumnMap is the fixed layout assumed for headerless files with
// at least three columns: reference, amount, date, then status if present.
func positionalColumnMap() ColumnMap {
	cm := emptyColumnMap()
	cm.Reference, cm.Amount, cm.Date, cm.Status = 0, 1, 2, 3
	return cm
}

// emptyColumnMap is the starting mapping before any header is resolved;
// every field is unmapped.
func emptyColumnMap() ColumnMap {
	return ColumnMap{
		Reference: -1, Amount: -1, Debit: -1, Credit: -1, Date: -1,
		Status: -1, Type: -1, Narration: -1, Customer: -1, Currency: -1,
	}
}

func cell(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func rawData(record []string) map[string]string {
	raw := make(map[string]string, len(record))
	for i, f := range record {
		raw[fmt.Sprintf("col_%d", i)] = f
	}
	return raw
}
