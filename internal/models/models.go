// Package models defines the canonical data model shared by the ingestion
// pipeline and the matching engine: normalized transactions, their parse
// metadata, and the field-level parsing helpers for amounts, dates, transaction
// types, and statuses.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a transaction as money out, money in, or unknown.
type TransactionType string

const (
	TypeDebit   TransactionType = "DEBIT"
	TypeCredit  TransactionType = "CREDIT"
	TypeUnknown TransactionType = "UNKNOWN"
)

func (t TransactionType) String() string {
	return string(t)
}

// ParseTransactionType maps free-text type markers onto a TransactionType.
func ParseTransactionType(s string) TransactionType {
	upper := strings.ToUpper(strings.TrimSpace(s))
	switch {
	case strings.Contains(upper, "DEBIT"), upper == "DR", upper == "D":
		return TypeDebit
	case strings.Contains(upper, "CREDIT"), upper == "CR", upper == "C":
		return TypeCredit
	default:
		return TypeUnknown
	}
}

// ReferenceSource records where a transaction's reference came from during
// parsing.
type ReferenceSource string

const (
	RefFromColumn    ReferenceSource = "column"
	RefFromNarration ReferenceSource = "narration"
	RefGenerated     ReferenceSource = "generated"
)

// Status vocabularies used by NormalizeStatus. Membership is checked by
// substring so provider variants like "payment_successful" still normalize.
var (
	successStatuses = []string{
		"success", "successful", "completed", "settled", "approved",
		"paid", "confirmed", "processed", "posted", "done", "ok",
	}
	pendingStatuses = []string{
		"pending", "processing", "in_progress", "in progress", "awaiting",
		"initiated", "queued", "submitted",
	}
	failedStatuses = []string{
		"failed", "failure", "declined", "rejected", "cancelled",
		"reversed", "refunded", "error", "timeout",
	}
)

const (
	StatusSuccess = "SUCCESS"
	StatusPending = "PENDING"
	StatusFailed  = "FAILED"
)

// NormalizeStatus maps a provider- or bank-specific status string onto
// SUCCESS, PENDING, or FAILED. Unrecognized statuses pass through unchanged so
// no information is lost for manual review.
func NormalizeStatus(status string) string {
	if status == "" {
		return status
	}

	lower := strings.ToLower(strings.TrimSpace(status))
	for _, s := range successStatuses {
		if strings.Contains(lower, s) {
			return StatusSuccess
		}
	}
	for _, s := range pendingStatuses {
		if strings.Contains(lower, s) {
			return StatusPending
		}
	}
	for _, s := range failedStatuses {
		if strings.Contains(lower, s) {
			return StatusFailed
		}
	}

	return status
}

// ParsedTransaction is the output of parsing one CSV row or webhook payload.
// It is immutable after creation; the engine consumes it by reference.
type ParsedTransaction struct {
	ExternalReference   string            `json:"external_reference"`
	NormalizedReference string            `json:"normalized_reference"`
	Amount              decimal.Decimal   `json:"amount"`
	Currency            string            `json:"currency"`
	Timestamp           time.Time         `json:"timestamp"`
	Status              string            `json:"status"`
	Narration           string            `json:"narration,omitempty"`
	CustomerIdentifier  string            `json:"customer_identifier,omitempty"`
	Type                TransactionType   `json:"type"`
	RawData             map[string]string `json:"raw_data,omitempty"`

	// Parse metadata
	SourceRow       int             `json:"source_row"`
	ReferenceSource ReferenceSource `json:"reference_source"`
	ParseConfidence float64         `json:"parse_confidence"`
	ParseWarnings   []string        `json:"parse_warnings,omitempty"`
}

// Transaction is the canonical, persisted form of a transaction. Records are
// never updated in place; corrections arrive as new records.
type Transaction struct {
	ID                  string            `json:"id"`
	Source              string            `json:"source"` // "bank", "paystack", "ledger", ...
	ExternalReference   string            `json:"external_reference"`
	NormalizedReference string            `json:"normalized_reference"`
	Amount              decimal.Decimal   `json:"amount"`
	Currency            string            `json:"currency"`
	Status              string            `json:"status"`
	CustomerIdentifier  string            `json:"customer_identifier,omitempty"`
	Timestamp           time.Time         `json:"timestamp"`
	RawData             map[string]string `json:"raw_data,omitempty"`
	IngestedAt          time.Time         `json:"ingested_at"`
}

// Validate performs basic sanity checks on a canonical transaction.
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.Source) == "" {
		return fmt.Errorf("transaction source cannot be empty")
	}
	if strings.TrimSpace(t.NormalizedReference) == "" {
		return fmt.Errorf("transaction normalized reference cannot be empty")
	}
	if t.Amount.IsNegative() {
		return fmt.Errorf("transaction amount cannot be negative: %s", t.Amount)
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("transaction timestamp cannot be zero")
	}
	return nil
}

func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{Source: %s, Ref: %s, Amount: %s, Time: %s}",
		t.Source, t.NormalizedReference, t.Amount.StringFixed(2), t.Timestamp.Format(time.RFC3339))
}

// SameDay reports whether two timestamps fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// amountCleaner strips currency symbols, thousand separators, and whitespace
// from raw amount strings before decimal parsing.
var amountCleaner = strings.NewReplacer(
	"₦", "", "NGN", "", "$", "", "€", "", "£", "",
	",", "", " ", "", "\t", "",
)

// ParseAmount parses a raw amount cell. Parenthesized or minus-prefixed values
// are returned negative; callers that only deal in magnitudes take Abs.
func ParseAmount(s string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	negative := strings.Contains(trimmed, "(") || strings.HasPrefix(trimmed, "-")

	cleaned := amountCleaner.Replace(trimmed)
	cleaned = strings.Trim(cleaned, "()")
	cleaned = strings.TrimPrefix(cleaned, "-")
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("amount %q has no digits", s)
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}

	d = d.Round(2)
	if negative {
		return d.Neg(), nil
	}
	return d, nil
}

// dateLayouts is the ordered fallback list tried when a format's declared
// layout fails. Day-first layouts come first to match the bank feeds this
// service ingests.
var dateLayouts = []string{
	"02/01/2006",
	"02-01-2006",
	"2006-01-02",
	"02-Jan-2006",
	"02 Jan 2006",
	"01/02/2006",
	"2006/01/02",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// ParseTimeWithLayouts tries the given layout first, then the common fallback
// layouts in order.
func ParseTimeWithLayouts(s, preferred string) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}

	if preferred != "" {
		if t, err := time.Parse(preferred, trimmed); err == nil {
			return t, nil
		}
	}

	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, trimmed)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse time %q: %w", s, lastErr)
}
