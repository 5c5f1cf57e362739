/*
store.go - Persistence port for the transaction journal

PURPOSE:
  Defines the interface between the engine and durable storage. The
  journal is append-only: corrections happen through refund transactions,
  never through edits. The engine journals every applied transaction so a
  restarted process can rebuild all account balances by replay, and so
  the audit command can re-check histories offline.

APPEND-ONLY CONTRACT:
  - Append() is the ONLY write operation.
  - No Update, no Delete. Ever.

IMPLEMENTATIONS:
  - ledger/store: in-memory, for tests and development
  - store/sqlite: durable SQLite journal

SEE ALSO:
  - engine.go: Journals through this interface inside Apply
  - reconcile.go: Audits loaded histories
*/
package ledger

import "context"

// =============================================================================
// STORE - Append-only journal persistence
// =============================================================================

// Store persists the transaction journal. Implementations must reject a
// second Append with an already-journaled transaction id.
type Store interface {
	// Append journals one applied transaction. The ONLY write operation.
	Append(ctx context.Context, tx Transaction) error

	// Load returns every journaled transaction referencing the given
	// instrument, in application order.
	Load(ctx context.Context, key AccountKey) ([]Transaction, error)

	// LoadAll returns the full journal in application order.
	LoadAll(ctx context.Context) ([]Transaction, error)

	// Exists reports whether a transaction id is already journaled.
	Exists(ctx context.Context, id TransactionID) (bool, error)
}
