package engine

import (
	"context"

	"payment-reconciliation-service/internal/models"
	"payment-reconciliation-service/internal/store"
)

// MatchContext carries the candidate sets one transaction is scored against.
// The engine prefetches all of them in one pass so each rule stays a pure
// function; rules only append to Matched.
type MatchContext struct {
	// CounterpartySource is the source the candidates were pulled from.
	CounterpartySource string

	// Exact holds counterparty transactions with the identical normalized
	// reference.
	Exact []*models.Transaction
	// Fuzzy holds counterparty transactions sharing a reference prefix,
	// for edit-distance scoring.
	Fuzzy []*models.Transaction
	// AmountWindow holds counterparty transactions inside the amount
	// tolerance window.
	AmountWindow []*models.Transaction
	// TimeWindow holds counterparty transactions inside the date tolerance
	// window.
	TimeWindow []*models.Transaction
	// Duplicates holds same-source transactions with the same amount close
	// in time.
	Duplicates []*models.Transaction

	// Matched accumulates the candidates confirmed by reference rules, in
	// rule order. Later rules (status agreement) read it.
	Matched []*models.Transaction
}

// AddMatched records a confirmed counterpart, deduplicating by ID.
func (mc *MatchContext) AddMatched(tx *models.Transaction) {
	for _, m := range mc.Matched {
		if m.ID == tx.ID {
			return
		}
	}
	mc.Matched = append(mc.Matched, tx)
}

// MatchedIDs returns the IDs of all confirmed counterparts.
func (mc *MatchContext) MatchedIDs() []string {
	ids := make([]string, 0, len(mc.Matched))
	for _, m := range mc.Matched {
		ids = append(ids, m.ID)
	}
	return ids
}

// buildMatchContext runs every candidate lookup for one transaction. A failed
// lookup aborts the build; the engine treats that as a transaction-level
// failure rather than scoring against partial candidates.
func buildMatchContext(ctx context.Context, st store.Store, cfg *Config, tx *models.Transaction, counterparty string) (*MatchContext, error) {
	mc := &MatchContext{CounterpartySource: counterparty}

	var err error
	if mc.Exact, err = st.FindByNormalizedReference(counterparty, tx.NormalizedReference); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if mc.Fuzzy, err = st.FindByFuzzyReference(counterparty, tx.NormalizedReference); err != nil {
		return nil, err
	}

	min, max := cfg.Tolerance.Window(tx.Amount)
	if mc.AmountWindow, err = st.FindByAmountRange(counterparty, min, max); err != nil {
		return nil, err
	}

	from, to := cfg.Dates.Window(tx.Timestamp)
	if mc.TimeWindow, err = st.FindByTimeRange(counterparty, from, to); err != nil {
		return nil, err
	}

	dupFrom := tx.Timestamp.Add(-cfg.DuplicateWindow)
	dupTo := tx.Timestamp.Add(cfg.DuplicateWindow)
	if mc.Duplicates, err = st.FindPotentialDuplicates(tx.Source, tx.Amount, dupFrom, dupTo, tx.ID); err != nil {
		return nil, err
	}

	return mc, nil
}
