package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-reconciliation-service/internal/models"
)

func tx(id, source, normRef, amount string, ts time.Time) *models.Transaction {
	return &models.Transaction{
		ID:                  id,
		Source:              source,
		ExternalReference:   normRef,
		NormalizedReference: normRef,
		Amount:              decimal.RequireFromString(amount),
		Currency:            "NGN",
		Status:              models.StatusSuccess,
		Timestamp:           ts,
		IngestedAt:          ts,
	}
}

var baseTime = time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

func TestExactMatchRule(t *testing.T) {
	subject := tx("s1", "ledger", "REF001234", "5000.00", baseTime)
	mc := &MatchContext{
		Exact: []*models.Transaction{tx("b1", "bank", "REF001234", "5000.00", baseTime)},
	}

	result, err := (&exactMatchRule{}).Evaluate(context.Background(), subject, mc)
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, exactMatchWeight, result.Score)
	assert.Equal(t, []string{"b1"}, result.MatchedIDs)
	assert.Len(t, mc.Matched, 1)
}

func TestExactMatchRuleRequiresEqualAmount(t *testing.T) {
	subject := tx("s1", "ledger", "REF001234", "5000.00", baseTime)
	mc := &MatchContext{
		Exact: []*models.Transaction{tx("b1", "bank", "REF001234", "9999.00", baseTime)},
	}

	// same reference, different amount: not an exact match
	result, err := (&exactMatchRule{}).Evaluate(context.Background(), subject, mc)
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.Empty(t, result.MatchedIDs)
	assert.Empty(t, mc.Matched)
}

func TestFuzzyRuleExcludesExactMatches(t *testing.T) {
	cfg := DefaultConfig()
	subject := tx("s1", "ledger", "REF001234", "5000.00", baseTime)
	mc := &MatchContext{
		Fuzzy: []*models.Transaction{
			tx("b1", "bank", "REF001234", "5000.00", baseTime), // identical reference, excluded
			tx("b2", "bank", "REF001239", "5000.00", baseTime), // one edit away
			tx("b3", "bank", "REFXXXXXX", "5000.00", baseTime), // too far
		},
	}

	rule := &fuzzyReferenceRule{minSimilarity: cfg.FuzzyMinSimilarity, weight: cfg.Weights.FuzzyMatch}
	result, err := rule.Evaluate(context.Background(), subject, mc)
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, []string{"b2"}, result.MatchedIDs)
	assert.Equal(t, 30.0, result.Score)
}

func TestFuzzyRuleMatchesContainment(t *testing.T) {
	cfg := DefaultConfig()
	subject := tx("s1", "ledger", "REF001234", "5000.00", baseTime)
	mc := &MatchContext{
		Fuzzy: []*models.Transaction{
			tx("b1", "bank", "REF001234SETTLED", "5000.00", baseTime),
		},
	}

	// containment scores at the fuzzy weight, never the exact 100
	rule := &fuzzyReferenceRule{minSimilarity: cfg.FuzzyMinSimilarity, weight: cfg.Weights.FuzzyMatch}
	result, err := rule.Evaluate(context.Background(), subject, mc)
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, []string{"b1"}, result.MatchedIDs)
	assert.Equal(t, cfg.Weights.FuzzyMatch, result.Score)
}

func TestSimilarityIsSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"REF001234", "REF001239"},
		{"ABCDEF", "ABXDEF"},
		{"SHORT", "MUCHLONGERREF"},
		{"", "ABC"},
	}
	for _, p := range pairs {
		assert.InDelta(t, Similarity(p[0], p[1]), Similarity(p[1], p[0]), 1e-9,
			"Similarity(%q, %q)", p[0], p[1])
	}
	assert.Equal(t, 1.0, Similarity("SAME", "SAME"))
}

func TestAmountToleranceRuleExcludesEqualAmounts(t *testing.T) {
	cfg := DefaultConfig()
	subject := tx("s1", "ledger", "REF1", "2000.00", baseTime)
	mc := &MatchContext{
		AmountWindow: []*models.Transaction{
			tx("b1", "bank", "X1", "2000.00", baseTime), // equal, excluded
			tx("b2", "bank", "X2", "2039.00", baseTime), // inside 40 tolerance
			tx("b3", "bank", "X3", "2041.00", baseTime), // outside
		},
	}

	rule := &amountToleranceRule{tolerance: cfg.Tolerance, weight: cfg.Weights.AmountTolerance}
	result, err := rule.Evaluate(context.Background(), subject, mc)
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, []string{"b2"}, result.MatchedIDs)
}

func TestAmountToleranceRuleRecordsClosestCandidate(t *testing.T) {
	cfg := DefaultConfig()
	subject := tx("s1", "ledger", "REF1", "2000.00", baseTime)
	subject.Status = models.StatusPending
	far := tx("b1", "bank", "X1", "2035.00", baseTime)
	near := tx("b2", "bank", "X2", "2010.00", baseTime)
	near.Status = models.StatusPending
	mc := &MatchContext{AmountWindow: []*models.Transaction{far, near}}

	rule := &amountToleranceRule{tolerance: cfg.Tolerance, weight: cfg.Weights.AmountTolerance}
	result, err := rule.Evaluate(context.Background(), subject, mc)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b1", "b2"}, result.MatchedIDs)
	assert.Contains(t, result.Detail, "b2")
	assert.Contains(t, result.Detail, "10.00")

	// the closest candidate is a confirmed counterpart, so its status
	// agreement fires the status rule
	require.Len(t, mc.Matched, 1)
	assert.Equal(t, "b2", mc.Matched[0].ID)
	status, err := (&statusRule{weight: 10}).Evaluate(context.Background(), subject, mc)
	require.NoError(t, err)
	assert.True(t, status.Matched)
	assert.Equal(t, []string{"b2"}, status.MatchedIDs)
}

func TestSameDayAndDateRangeAreMutuallyExclusive(t *testing.T) {
	subject := tx("s1", "ledger", "REF1", "100.00", baseTime)
	sameDay := tx("b1", "bank", "X1", "100.00", baseTime.Add(4*time.Hour))
	nextDay := tx("b2", "bank", "X2", "100.00", baseTime.AddDate(0, 0, 2))
	mc := &MatchContext{TimeWindow: []*models.Transaction{sameDay, nextDay}}

	sd, err := (&sameDayRule{weight: 20}).Evaluate(context.Background(), subject, mc)
	require.NoError(t, err)
	dr, err := (&dateRangeRule{weight: 10}).Evaluate(context.Background(), subject, mc)
	require.NoError(t, err)

	assert.Equal(t, []string{"b1"}, sd.MatchedIDs)
	assert.Equal(t, []string{"b2"}, dr.MatchedIDs)
	for _, id := range sd.MatchedIDs {
		assert.NotContains(t, dr.MatchedIDs, id, "candidate %s scored by both date rules", id)
	}
}

func TestStatusRule(t *testing.T) {
	rule := &statusRule{weight: 10}

	// counterpart agreement
	subject := tx("s1", "ledger", "REF1", "100.00", baseTime)
	subject.Status = models.StatusPending
	counterpart := tx("b1", "bank", "REF1", "100.00", baseTime)
	counterpart.Status = models.StatusPending
	mc := &MatchContext{Matched: []*models.Transaction{counterpart}}
	result, err := rule.Evaluate(context.Background(), subject, mc)
	require.NoError(t, err)
	assert.True(t, result.Matched)

	// own success without counterpart
	subject = tx("s2", "ledger", "REF2", "100.00", baseTime)
	result, err = rule.Evaluate(context.Background(), subject, &MatchContext{})
	require.NoError(t, err)
	assert.True(t, result.Matched)

	// pending with no counterpart
	subject.Status = models.StatusPending
	result, err = rule.Evaluate(context.Background(), subject, &MatchContext{})
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestDuplicateRulePenalizes(t *testing.T) {
	subject := tx("s1", "ledger", "REF1", "100.00", baseTime)
	mc := &MatchContext{
		Duplicates: []*models.Transaction{tx("s2", "ledger", "REF2", "100.00", baseTime.Add(10*time.Minute))},
	}

	result, err := (&duplicateRule{penalty: -20}).Evaluate(context.Background(), subject, mc)
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, -20.0, result.Score)
	assert.Len(t, result.MatchedIDs, 1)
}
