package store

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"payment-reconciliation-service/internal/models"
	"payment-reconciliation-service/pkg/errors"
)

// MemoryStore is the in-process Store used for single-run reconciliations and
// tests. Lookups mirror the SQLite store's semantics exactly so the engine
// cannot tell them apart.
type MemoryStore struct {
	mu sync.RWMutex

	byID map[string]*models.Transaction
	// bySource holds insertion-ordered transactions per source.
	bySource map[string][]*models.Transaction
	// refIndex maps source -> normalized reference -> transactions, the
	// in-memory equivalent of the SQLite reference index.
	refIndex map[string]map[string][]*models.Transaction

	recons map[reconKey]*ReconciliationRecord
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]*models.Transaction),
		bySource: make(map[string][]*models.Transaction),
		refIndex: make(map[string]map[string][]*models.Transaction),
	}
}

func (m *MemoryStore) Save(tx *models.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(tx)
}

func (m *MemoryStore) SaveBatch(txs []*models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			return err
		}
		if err := m.saveLocked(tx); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) saveLocked(tx *models.Transaction) error {
	if _, exists := m.byID[tx.ID]; exists {
		return errors.New(errors.CategoryStorage, errors.CodeSaveFailed,
			"duplicate transaction id "+tx.ID)
	}
	m.byID[tx.ID] = tx
	m.bySource[tx.Source] = append(m.bySource[tx.Source], tx)
	idx := m.refIndex[tx.Source]
	if idx == nil {
		idx = make(map[string][]*models.Transaction)
		m.refIndex[tx.Source] = idx
	}
	idx[tx.NormalizedReference] = append(idx[tx.NormalizedReference], tx)
	return nil
}

func (m *MemoryStore) FindByNormalizedReference(source, normalizedRef string) ([]*models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx := m.refIndex[source]
	if idx == nil {
		return nil, nil
	}
	return copySlice(idx[normalizedRef]), nil
}

func (m *MemoryStore) FindByFuzzyReference(source, normalizedRef string) ([]*models.Transaction, error) {
	if normalizedRef == "" {
		return nil, nil
	}
	minLen, maxLen := fuzzyLengthBounds(normalizedRef)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Transaction
	for _, tx := range m.bySource[source] {
		if fuzzyCandidate(normalizedRef, tx.NormalizedReference, minLen, maxLen) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *MemoryStore) FindByAmountRange(source string, min, max decimal.Decimal) ([]*models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Transaction
	for _, tx := range m.bySource[source] {
		if tx.Amount.GreaterThanOrEqual(min) && tx.Amount.LessThanOrEqual(max) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *MemoryStore) FindByTimeRange(source string, from, to time.Time) ([]*models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Transaction
	for _, tx := range m.bySource[source] {
		if !tx.Timestamp.Before(from) && !tx.Timestamp.After(to) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *MemoryStore) FindPotentialDuplicates(source string, amount decimal.Decimal, from, to time.Time, excludeID string) ([]*models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Transaction
	for _, tx := range m.bySource[source] {
		if tx.ID == excludeID {
			continue
		}
		if !tx.Amount.Equal(amount) {
			continue
		}
		if tx.Timestamp.Before(from) || tx.Timestamp.After(to) {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func copySlice(txs []*models.Transaction) []*models.Transaction {
	if len(txs) == 0 {
		return nil
	}
	out := make([]*models.Transaction, len(txs))
	copy(out, txs)
	return out
}
