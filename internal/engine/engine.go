package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"payment-reconciliation-service/internal/models"
	"payment-reconciliation-service/internal/store"
	"payment-reconciliation-service/pkg/errors"
	"payment-reconciliation-service/pkg/logger"
)

// ReconciliationState is the review lifecycle of one scored transaction.
type ReconciliationState string

const (
	// StateAutoMatched means the score cleared the auto-match threshold;
	// no human review is needed unless someone disputes it.
	StateAutoMatched ReconciliationState = "AUTO_MATCHED"
	// StateNeedsReview means the score landed between the low and
	// auto-match thresholds.
	StateNeedsReview ReconciliationState = "NEEDS_REVIEW"
	// StateUnmatched means no rule produced a usable signal.
	StateUnmatched ReconciliationState = "UNMATCHED"
	// StateDisputed means a reviewer contested the outcome.
	StateDisputed ReconciliationState = "DISPUTED"
	// StateApproved and StateRejected are terminal.
	StateApproved ReconciliationState = "APPROVED"
	StateRejected ReconciliationState = "REJECTED"
)

// Terminal reports whether no further transitions are allowed from s.
func (s ReconciliationState) Terminal() bool {
	return s == StateApproved || s == StateRejected
}

// validTransitions is the full state machine. Any transition not listed
// returns the invalid-transition error.
var validTransitions = map[ReconciliationState][]ReconciliationState{
	StateAutoMatched: {StateDisputed, StateApproved},
	StateNeedsReview: {StateDisputed, StateApproved, StateRejected},
	StateUnmatched:   {StateDisputed, StateRejected},
	StateDisputed:    {StateApproved, StateRejected},
}

// RuleOutcome records one rule's evaluation for the audit trail.
type RuleOutcome struct {
	Rule       string   `json:"rule"`
	Matched    bool     `json:"matched"`
	Score      float64  `json:"score"`
	MatchedIDs []string `json:"matched_ids,omitempty"`
	Detail     string   `json:"detail,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Reconciliation is the scored outcome for one transaction in one run.
type Reconciliation struct {
	TransactionID string              `json:"transaction_id"`
	RunID         uuid.UUID           `json:"run_id"`
	Score         float64             `json:"score"`
	Confidence    MatchConfidence     `json:"confidence"`
	State         ReconciliationState `json:"state"`
	MatchedIDs    []string            `json:"matched_ids,omitempty"`
	RulesFired    []RuleOutcome       `json:"rules_fired"`
	AuditTrail    []string            `json:"audit_trail"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// TransitionTo moves the reconciliation to next, appending to the audit
// trail. Terminal states and unlisted transitions fail with the distinct
// state-transition error.
func (r *Reconciliation) TransitionTo(next ReconciliationState, actor, note string) error {
	allowed := false
	for _, s := range validTransitions[r.State] {
		if s == next {
			allowed = true
			break
		}
	}
	if !allowed {
		return errors.StateTransitionError(string(r.State), string(next))
	}
	r.AuditTrail = append(r.AuditTrail,
		time.Now().UTC().Format(time.RFC3339)+" "+actor+": "+string(r.State)+" -> "+string(next)+" ("+note+")")
	r.State = next
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// EventType identifies a domain event published by the engine.
type EventType string

const (
	// EventReconciliationApproved fires when a reconciliation reaches
	// APPROVED. Settlement and refund flows subscribe to it instead of
	// being called inline.
	EventReconciliationApproved EventType = "reconciliation.approved"
	EventReconciliationRejected EventType = "reconciliation.rejected"
	EventReconciliationDisputed EventType = "reconciliation.disputed"
)

// Event is a reconciliation lifecycle notification.
type Event struct {
	Type           EventType       `json:"type"`
	Reconciliation *Reconciliation `json:"reconciliation"`
	At             time.Time       `json:"at"`
}

// Engine scores transactions against a counterparty source.
type Engine struct {
	store  store.Store
	cfg    *Config
	rules  []Rule
	log    logger.Logger
	events chan Event
}

// NewEngine validates cfg and builds the rule set. A nil cfg uses defaults.
func NewEngine(st store.Store, cfg *Config, log logger.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Engine{
		store:  st,
		cfg:    cfg.Clone(),
		rules:  buildRules(cfg),
		log:    log.WithComponent("engine"),
		events: make(chan Event, 64),
	}, nil
}

// Events exposes the engine's domain event stream. Consumers must drain it;
// publishing drops events once the buffer is full rather than blocking
// scoring.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Close releases the event stream.
func (e *Engine) Close() {
	close(e.events)
}

func (e *Engine) publish(t EventType, rec *Reconciliation) {
	select {
	case e.events <- Event{Type: t, Reconciliation: rec, At: time.Now().UTC()}:
	default:
		e.log.WithField("event", string(t)).Warn("event buffer full, dropping event")
	}
}

// Reconcile scores one transaction against candidates from counterparty. A
// failed rule is recorded and skipped; only a failed candidate lookup fails
// the transaction.
func (e *Engine) Reconcile(ctx context.Context, tx *models.Transaction, counterparty string, runID uuid.UUID) (*Reconciliation, error) {
	mc, err := buildMatchContext(ctx, e.store, e.cfg, tx, counterparty)
	if err != nil {
		return nil, errors.ReconciliationError(errors.CodeLookupFailed, "candidate lookup", err).
			WithContext("transaction_id", tx.ID)
	}

	now := time.Now().UTC()
	rec := &Reconciliation{
		TransactionID: tx.ID,
		RunID:         runID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	score := 0.0
	for _, rule := range e.rules {
		result, err := rule.Evaluate(ctx, tx, mc)
		if err != nil {
			e.log.WithFields(logger.Fields{
				"rule":           rule.Name(),
				"transaction_id": tx.ID,
			}).WithError(err).Warn("rule evaluation failed, skipping")
			rec.RulesFired = append(rec.RulesFired, RuleOutcome{Rule: rule.Name(), Error: err.Error()})
			continue
		}
		rec.RulesFired = append(rec.RulesFired, RuleOutcome{
			Rule:       rule.Name(),
			Matched:    result.Matched,
			Score:      result.Score,
			MatchedIDs: result.MatchedIDs,
			Detail:     result.Detail,
		})
		if result.Matched {
			score += result.Score
		}
	}

	// the score stays an unclamped signed sum; duplicate penalties may push
	// it below zero and classification handles that
	rec.Score = score
	rec.Confidence = e.cfg.Thresholds.Classify(score)
	rec.MatchedIDs = mc.MatchedIDs()
	rec.State = initialState(rec.Confidence)
	rec.AuditTrail = append(rec.AuditTrail,
		now.Format(time.RFC3339)+" engine: scored "+tx.NormalizedReference)

	e.log.WithFields(logger.Fields{
		"transaction_id": tx.ID,
		"score":          score,
		"confidence":     string(rec.Confidence),
		"state":          string(rec.State),
	}).Debug("transaction reconciled")
	return rec, nil
}

func initialState(c MatchConfidence) ReconciliationState {
	switch c {
	case ConfidenceAutoMatch:
		return StateAutoMatched
	case ConfidenceNone:
		return StateUnmatched
	default:
		return StateNeedsReview
	}
}

// Dispute contests a reconciliation.
func (e *Engine) Dispute(rec *Reconciliation, actor, reason string) error {
	if err := rec.TransitionTo(StateDisputed, actor, reason); err != nil {
		return err
	}
	e.publish(EventReconciliationDisputed, rec)
	return nil
}

// Approve finalizes a reconciliation and publishes the approval event that
// downstream settlement and refund flows consume.
func (e *Engine) Approve(rec *Reconciliation, actor, note string) error {
	if err := rec.TransitionTo(StateApproved, actor, note); err != nil {
		return err
	}
	e.publish(EventReconciliationApproved, rec)
	return nil
}

// Reject finalizes a reconciliation as not matched.
func (e *Engine) Reject(rec *Reconciliation, actor, note string) error {
	if err := rec.TransitionTo(StateRejected, actor, note); err != nil {
		return err
	}
	e.publish(EventReconciliationRejected, rec)
	return nil
}
