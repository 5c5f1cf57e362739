// Package store provides ledger.Store implementations.
package store

import (
	"context"
	"sync"

	"github.com/warp/revenue-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory journal (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	all     []ledger.Transaction
	byKey   map[ledger.AccountKey][]ledger.Transaction
	applied map[ledger.TransactionID]bool
}

func NewMemory() *Memory {
	return &Memory{
		byKey:   make(map[ledger.AccountKey][]ledger.Transaction),
		applied: make(map[ledger.TransactionID]bool),
	}
}

// Append journals one transaction. Append-only.
func (m *Memory) Append(_ context.Context, tx ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.applied[tx.ID] {
		return &ledger.DuplicateTransactionError{ID: tx.ID}
	}
	m.all = append(m.all, tx)
	if tx.Instrument != nil {
		k := tx.Instrument.Key()
		m.byKey[k] = append(m.byKey[k], tx)
	}
	m.applied[tx.ID] = true
	return nil
}

func (m *Memory) Load(_ context.Context, key ledger.AccountKey) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.Transaction, len(m.byKey[key]))
	copy(result, m.byKey[key])
	return result, nil
}

func (m *Memory) LoadAll(_ context.Context) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.Transaction, len(m.all))
	copy(result, m.all)
	return result, nil
}

func (m *Memory) Exists(_ context.Context, id ledger.TransactionID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.applied[id], nil
}
