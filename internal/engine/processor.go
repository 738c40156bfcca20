package engine

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"payment-reconciliation-service/internal/models"
	"payment-reconciliation-service/pkg/logger"
)

// ProcessingFailure records one transaction that could not be scored. The run
// keeps going; a bad transaction never takes the batch down with it.
type ProcessingFailure struct {
	TransactionID string `json:"transaction_id"`
	Error         string `json:"error"`
}

// RunResult is the outcome of one reconciliation run over a batch.
type RunResult struct {
	RunID           uuid.UUID         `json:"run_id"`
	Reconciliations []*Reconciliation `json:"reconciliations"`
	Failures        []ProcessingFailure `json:"failures,omitempty"`
	Duration        time.Duration     `json:"duration"`
}

// Summary tallies the run by state.
func (r *RunResult) Summary() map[ReconciliationState]int {
	out := make(map[ReconciliationState]int)
	for _, rec := range r.Reconciliations {
		out[rec.State]++
	}
	return out
}

// Processor fans a batch of transactions out over a worker pool. Failures are
// isolated per transaction and there are no retries: a transient store error
// surfaces in the run result and the operator reruns the batch.
type Processor struct {
	engine  *Engine
	workers int
	log     logger.Logger
}

// NewProcessor builds a processor. workers <= 0 uses GOMAXPROCS.
func NewProcessor(e *Engine, workers int, log logger.Logger) *Processor {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Processor{
		engine:  e,
		workers: workers,
		log:     log.WithComponent("processor"),
	}
}

// Run scores every transaction in the batch against counterparty under a
// fresh run ID. Output order follows input order regardless of worker
// scheduling.
func (p *Processor) Run(ctx context.Context, txs []*models.Transaction, counterparty string) (*RunResult, error) {
	runID := uuid.New()
	start := time.Now()
	log := p.log.WithFields(logger.Fields{
		"run_id":       runID.String(),
		"count":        len(txs),
		"counterparty": counterparty,
	})
	log.Info("reconciliation run started")

	type indexed struct {
		idx int
		rec *Reconciliation
		err error
		id  string
	}

	jobs := make(chan int)
	results := make(chan indexed, len(txs))

	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rec, err := p.engine.Reconcile(ctx, txs[i], counterparty, runID)
				results <- indexed{idx: i, rec: rec, err: err, id: txs[i].ID}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range txs {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var done []indexed
	for r := range results {
		done = append(done, r)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(done, func(i, j int) bool { return done[i].idx < done[j].idx })

	result := &RunResult{RunID: runID}
	for _, d := range done {
		if d.err != nil {
			log.WithField("transaction_id", d.id).WithError(d.err).Error("transaction failed")
			result.Failures = append(result.Failures, ProcessingFailure{
				TransactionID: d.id,
				Error:         d.err.Error(),
			})
			continue
		}
		result.Reconciliations = append(result.Reconciliations, d.rec)
	}
	result.Duration = time.Since(start)

	log.WithFields(logger.Fields{
		"reconciled": len(result.Reconciliations),
		"failed":     len(result.Failures),
		"duration":   result.Duration.String(),
	}).Info("reconciliation run finished")
	return result, nil
}
