// Package store persists canonical transactions and serves the candidate
// lookups the matching rules run on.
//
// The Store interface is the engine's entire read surface: rules never scan
// the full ledger, they ask for candidates by reference, amount window or
// time window and score only what comes back.
package store

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"payment-reconciliation-service/internal/models"
)

// fuzzyMaxLenRatio bounds the length spread of the fuzzy candidate pool.
// Edit distance is at least the length difference, so a candidate more than
// 25% longer or 20% shorter than the reference can never reach similarity
// 0.8; the store prunes on length and containment, never on content, so the
// pool is a strict superset of what a full scan would score.
const fuzzyMaxLenRatio = 4.0 / 5.0

// Store is the persistence contract for canonical transactions.
//
// All Find methods take the source to search; reconciliation always looks for
// counterparts on the other side of the ledger, never within the transaction's
// own source (duplicates excepted).
type Store interface {
	Save(tx *models.Transaction) error
	SaveBatch(txs []*models.Transaction) error

	// FindByNormalizedReference is the exact-match lookup and must be
	// backed by an index; it runs once per transaction per run.
	FindByNormalizedReference(source, normalizedRef string) ([]*models.Transaction, error)

	// FindByFuzzyReference returns every candidate a similarity or
	// containment match against normalizedRef could confirm: references of
	// comparable length, plus references containing or contained in it.
	FindByFuzzyReference(source, normalizedRef string) ([]*models.Transaction, error)

	FindByAmountRange(source string, min, max decimal.Decimal) ([]*models.Transaction, error)
	FindByTimeRange(source string, from, to time.Time) ([]*models.Transaction, error)

	// FindPotentialDuplicates searches the SAME source for equal-amount
	// transactions inside a time window, excluding the transaction itself.
	FindPotentialDuplicates(source string, amount decimal.Decimal, from, to time.Time, excludeID string) ([]*models.Transaction, error)

	Close() error
}

// fuzzyLengthBounds returns the candidate length window implied by the
// similarity floor: len/ratio above, len*ratio below.
func fuzzyLengthBounds(normalizedRef string) (minLen, maxLen int) {
	n := float64(len(normalizedRef))
	minLen = int(n * fuzzyMaxLenRatio)
	maxLen = int(n/fuzzyMaxLenRatio) + 1
	return minLen, maxLen
}

// fuzzyCandidate reports whether cand belongs in the fuzzy pool for ref.
func fuzzyCandidate(ref, cand string, minLen, maxLen int) bool {
	if len(cand) >= minLen && len(cand) <= maxLen {
		return true
	}
	return strings.Contains(cand, ref) || strings.Contains(ref, cand)
}
