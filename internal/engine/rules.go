package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"payment-reconciliation-service/internal/models"
	"payment-reconciliation-service/internal/refextract"
)

// exactMatchWeight is fixed: a confirmed reference match alone must clear the
// auto-match threshold.
const exactMatchWeight = 100.0

// Rule scores one aspect of a transaction against its candidate sets. Rules
// are pure except for appending confirmed counterparts to the context.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, tx *models.Transaction, mc *MatchContext) (*RuleResult, error)
}

// RuleResult is one rule's contribution to a reconciliation.
type RuleResult struct {
	Matched    bool     `json:"matched"`
	Score      float64  `json:"score"`
	MatchedIDs []string `json:"matched_ids,omitempty"`
	Detail     string   `json:"detail,omitempty"`
}

func noMatch() *RuleResult {
	return &RuleResult{}
}

// buildRules returns the rule set in evaluation order. Order matters:
// reference rules run first so the status rule can see what they confirmed.
func buildRules(cfg *Config) []Rule {
	return []Rule{
		&exactMatchRule{},
		&fuzzyReferenceRule{minSimilarity: cfg.FuzzyMinSimilarity, weight: cfg.Weights.FuzzyMatch},
		&amountToleranceRule{tolerance: cfg.Tolerance, weight: cfg.Weights.AmountTolerance},
		&sameDayRule{weight: cfg.Weights.SameDay},
		&dateRangeRule{weight: cfg.Weights.DateRange},
		&statusRule{weight: cfg.Weights.Status},
		&duplicateRule{penalty: cfg.Weights.DuplicatePenalty},
	}
}

// exactMatchRule confirms candidates whose normalized reference AND amount
// both equal the transaction's. A shared reference with a different amount is
// not an exact match; it must earn its score from the weaker rules.
type exactMatchRule struct{}

func (r *exactMatchRule) Name() string { return "exact_match" }

func (r *exactMatchRule) Evaluate(_ context.Context, tx *models.Transaction, mc *MatchContext) (*RuleResult, error) {
	var ids []string
	for _, cand := range mc.Exact {
		if !cand.Amount.Equal(tx.Amount) {
			continue
		}
		mc.AddMatched(cand)
		ids = append(ids, cand.ID)
	}
	if len(ids) == 0 {
		return noMatch(), nil
	}
	return &RuleResult{
		Matched:    true,
		Score:      exactMatchWeight,
		MatchedIDs: ids,
		Detail:     fmt.Sprintf("%d candidate(s) share reference %s and amount %s", len(ids), tx.NormalizedReference, tx.Amount.StringFixed(2)),
	}, nil
}

// fuzzyReferenceRule confirms candidates whose normalized reference is close
// to the transaction's: within edit distance, or one contained in the other
// when the shorter side is long enough to be unambiguous. Identical
// references are excluded; they are the exact rule's territory.
type fuzzyReferenceRule struct {
	minSimilarity float64
	weight        float64
}

func (r *fuzzyReferenceRule) Name() string { return "fuzzy_reference_match" }

func (r *fuzzyReferenceRule) Evaluate(_ context.Context, tx *models.Transaction, mc *MatchContext) (*RuleResult, error) {
	var ids []string
	best := 0.0
	for _, cand := range mc.Fuzzy {
		if cand.NormalizedReference == tx.NormalizedReference {
			continue
		}
		sim := Similarity(tx.NormalizedReference, cand.NormalizedReference)
		if sim >= r.minSimilarity || refextract.Match(tx.NormalizedReference, cand.NormalizedReference) {
			mc.AddMatched(cand)
			ids = append(ids, cand.ID)
			if sim > best {
				best = sim
			}
		}
	}
	if len(ids) == 0 {
		return noMatch(), nil
	}
	return &RuleResult{
		Matched:    true,
		Score:      r.weight,
		MatchedIDs: ids,
		Detail:     fmt.Sprintf("best similarity %.2f", best),
	}, nil
}

// Similarity is 1 - editDistance/maxLen, symmetric in its arguments.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(maxLen)
}

// levenshtein computes edit distance with the two-row method.
func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = minInt(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func minInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// amountToleranceRule matches candidates whose amount differs from the
// transaction's by at most the configured tolerance. Identical amounts do not
// count; they carry no signal beyond what reference and date rules capture,
// and scoring them would inflate unrelated equal-amount pairs.
type amountToleranceRule struct {
	tolerance AmountToleranceConfig
	weight    float64
}

func (r *amountToleranceRule) Name() string { return "amount_tolerance_match" }

func (r *amountToleranceRule) Evaluate(_ context.Context, tx *models.Transaction, mc *MatchContext) (*RuleResult, error) {
	min, max := r.tolerance.Window(tx.Amount)
	var (
		ids     []string
		closest *models.Transaction
		minDiff decimal.Decimal
	)
	for _, cand := range mc.AmountWindow {
		if cand.Amount.Equal(tx.Amount) {
			continue
		}
		if cand.Amount.GreaterThanOrEqual(min) && cand.Amount.LessThanOrEqual(max) {
			ids = append(ids, cand.ID)
			diff := cand.Amount.Sub(tx.Amount).Abs()
			if closest == nil || diff.LessThan(minDiff) {
				closest = cand
				minDiff = diff
			}
		}
	}
	if len(ids) == 0 {
		return noMatch(), nil
	}
	// the closest candidate becomes a confirmed counterpart so the status
	// rule can weigh its status agreement
	mc.AddMatched(closest)
	pct := decimal.Zero
	if !tx.Amount.IsZero() {
		pct = minDiff.Div(tx.Amount).Mul(decimal.NewFromInt(100)).Round(2)
	}
	return &RuleResult{
		Matched:    true,
		Score:      r.weight,
		MatchedIDs: ids,
		Detail: fmt.Sprintf("closest candidate %s differs by %s (%s%%)",
			closest.ID, minDiff.StringFixed(2), pct.String()),
	}, nil
}

// sameDayRule matches candidates on the same calendar day.
type sameDayRule struct {
	weight float64
}

func (r *sameDayRule) Name() string { return "same_day_match" }

func (r *sameDayRule) Evaluate(_ context.Context, tx *models.Transaction, mc *MatchContext) (*RuleResult, error) {
	var ids []string
	for _, cand := range mc.TimeWindow {
		if models.SameDay(tx.Timestamp, cand.Timestamp) {
			ids = append(ids, cand.ID)
		}
	}
	if len(ids) == 0 {
		return noMatch(), nil
	}
	return &RuleResult{Matched: true, Score: r.weight, MatchedIDs: ids}, nil
}

// dateRangeRule matches candidates inside the settlement window but on a
// different day; same-day candidates belong to the previous rule, and the two
// never both fire for one candidate.
type dateRangeRule struct {
	weight float64
}

func (r *dateRangeRule) Name() string { return "date_range_match" }

func (r *dateRangeRule) Evaluate(_ context.Context, tx *models.Transaction, mc *MatchContext) (*RuleResult, error) {
	var ids []string
	for _, cand := range mc.TimeWindow {
		if !models.SameDay(tx.Timestamp, cand.Timestamp) {
			ids = append(ids, cand.ID)
		}
	}
	if len(ids) == 0 {
		return noMatch(), nil
	}
	return &RuleResult{Matched: true, Score: r.weight, MatchedIDs: ids}, nil
}

// statusRule scores status agreement: a confirmed counterpart carries the
// same normalized status, or the transaction itself is a success.
type statusRule struct {
	weight float64
}

func (r *statusRule) Name() string { return "status_match" }

func (r *statusRule) Evaluate(_ context.Context, tx *models.Transaction, mc *MatchContext) (*RuleResult, error) {
	for _, m := range mc.Matched {
		if m.Status == tx.Status {
			return &RuleResult{
				Matched:    true,
				Score:      r.weight,
				MatchedIDs: []string{m.ID},
				Detail:     "counterpart status agrees",
			}, nil
		}
	}
	if tx.Status == models.StatusSuccess {
		return &RuleResult{Matched: true, Score: r.weight, Detail: "transaction succeeded"}, nil
	}
	return noMatch(), nil
}

// duplicateRule penalizes the score when the same source carries another
// equal-amount transaction close in time. Both members of a duplicate pair
// see exactly one duplicate: the other.
type duplicateRule struct {
	penalty float64
}

func (r *duplicateRule) Name() string { return "duplicate_detection" }

func (r *duplicateRule) Evaluate(_ context.Context, tx *models.Transaction, mc *MatchContext) (*RuleResult, error) {
	if len(mc.Duplicates) == 0 {
		return noMatch(), nil
	}
	ids := make([]string, 0, len(mc.Duplicates))
	for _, d := range mc.Duplicates {
		ids = append(ids, d.ID)
	}
	return &RuleResult{
		Matched:    true,
		Score:      r.penalty,
		MatchedIDs: ids,
		Detail:     fmt.Sprintf("%d potential duplicate(s) in source %s", len(ids), tx.Source),
	}, nil
}
