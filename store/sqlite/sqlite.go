/*
Package sqlite provides a SQLite-backed implementation of ledger.Store.

PURPOSE:
  Durable transaction journal. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on the journal table
  - No DELETE statements on the journal table
  - Corrections happen through refund transactions only
  - A UNIQUE constraint on the transaction id rejects duplicate submission
    at the database level, backing the engine's in-memory dedup

ORDERING:
  Replay order matters (a redemption before its issue must fail), so the
  journal carries a monotonically increasing seq column and every read
  orders by it. occurred_at is the business timestamp and is NOT used for
  ordering - events can be backdated.

WAL MODE:
  Opened with WAL for better concurrency: readers don't block, single
  writer at a time, better crash recovery.

USAGE:
  journal, err := sqlite.New("./data/revenue.db")
  if err != nil {
      log.Fatal(err)
  }
  defer journal.Close()

  engine := ledger.NewEngine(ledger.WithStore(journal))

SEE ALSO:
  - ledger/store.go: Interface definition
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/revenue-engine/ledger"
)

// Store implements ledger.Store on SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (creating if needed) the journal database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Journal (append-only)
	CREATE TABLE IF NOT EXISTS journal (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		gross TEXT NOT NULL,
		contract_value TEXT NOT NULL,
		closed_portion TEXT NOT NULL,
		instrument_kind TEXT,
		instrument_id TEXT,
		payments_json TEXT,
		sales_label TEXT,
		occurred_at TEXT NOT NULL,
		memo TEXT,
		created_at TEXT NOT NULL
	);

	-- Per-instrument replay (hot path for audits)
	CREATE INDEX IF NOT EXISTS idx_journal_instrument
		ON journal(instrument_kind, instrument_id, seq)
		WHERE instrument_kind IS NOT NULL;

	CREATE INDEX IF NOT EXISTS idx_journal_kind
		ON journal(kind);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LEDGER.STORE IMPLEMENTATION
// =============================================================================

// Append journals one transaction. The ONLY write operation.
func (s *Store) Append(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var instrumentKind, instrumentID any
	if tx.Instrument != nil {
		instrumentKind = string(tx.Instrument.Kind)
		instrumentID = tx.Instrument.ID
	}

	paymentsJSON, err := json.Marshal(tx.Payments)
	if err != nil {
		return fmt.Errorf("failed to encode payments: %w", err)
	}

	query := `
		INSERT INTO journal
		(id, kind, gross, contract_value, closed_portion, instrument_kind,
		 instrument_id, payments_json, sales_label, occurred_at, memo, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		string(tx.ID),
		string(tx.Kind),
		tx.Gross.String(),
		tx.ContractValue.String(),
		tx.ClosedPortion.String(),
		instrumentKind,
		instrumentID,
		string(paymentsJSON),
		string(tx.SalesLabel),
		tx.OccurredAt.UTC().Format(time.RFC3339),
		tx.Memo,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &ledger.DuplicateTransactionError{ID: tx.ID}
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// Load returns the journaled history for one instrument, in replay order.
func (s *Store) Load(ctx context.Context, key ledger.AccountKey) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, kind, gross, contract_value, closed_portion, instrument_kind,
		       instrument_id, payments_json, sales_label, occurred_at, memo
		FROM journal
		WHERE instrument_kind = ? AND instrument_id = ?
		ORDER BY seq ASC
	`
	return s.queryTransactions(ctx, query, string(key.Kind), key.ID)
}

// LoadAll returns the full journal in replay order.
func (s *Store) LoadAll(ctx context.Context) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, kind, gross, contract_value, closed_portion, instrument_kind,
		       instrument_id, payments_json, sales_label, occurred_at, memo
		FROM journal
		ORDER BY seq ASC
	`
	return s.queryTransactions(ctx, query)
}

// Exists reports whether a transaction id is already journaled.
func (s *Store) Exists(ctx context.Context, id ledger.TransactionID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM journal WHERE id = ?`, string(id)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check transaction id: %w", err)
	}
	return n > 0, nil
}

// InstrumentKeys returns every distinct instrument seen in the journal.
// Used by the audit command to enumerate accounts.
func (s *Store) InstrumentKeys(ctx context.Context) ([]ledger.AccountKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT instrument_kind, instrument_id
		FROM journal
		WHERE instrument_kind IS NOT NULL
		ORDER BY instrument_kind, instrument_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list instruments: %w", err)
	}
	defer rows.Close()

	var keys []ledger.AccountKey
	for rows.Next() {
		var kind, id string
		if err := rows.Scan(&kind, &id); err != nil {
			return nil, err
		}
		keys = append(keys, ledger.AccountKey{Kind: ledger.InstrumentKind(kind), ID: id})
	}
	return keys, rows.Err()
}

// =============================================================================
// ROW SCANNING
// =============================================================================

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func scanTransaction(rows *sql.Rows) (ledger.Transaction, error) {
	var (
		id, kind, gross, contractValue, closedPortion string
		instrumentKind, instrumentID                  sql.NullString
		paymentsJSON, salesLabel, occurredAt, memo    sql.NullString
	)
	if err := rows.Scan(&id, &kind, &gross, &contractValue, &closedPortion,
		&instrumentKind, &instrumentID, &paymentsJSON, &salesLabel, &occurredAt, &memo); err != nil {
		return ledger.Transaction{}, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx := ledger.Transaction{
		ID:         ledger.TransactionID(id),
		Kind:       ledger.TransactionKind(kind),
		SalesLabel: ledger.LineLabel(salesLabel.String),
		Memo:       memo.String,
	}

	var err error
	if tx.Gross, err = ledger.ParseMoney(gross); err != nil {
		return ledger.Transaction{}, err
	}
	if tx.ContractValue, err = ledger.ParseMoney(contractValue); err != nil {
		return ledger.Transaction{}, err
	}
	if tx.ClosedPortion, err = ledger.ParseMoney(closedPortion); err != nil {
		return ledger.Transaction{}, err
	}

	if instrumentKind.Valid {
		tx.Instrument = &ledger.InstrumentRef{
			Kind: ledger.InstrumentKind(instrumentKind.String),
			ID:   instrumentID.String,
		}
	}
	if paymentsJSON.Valid && paymentsJSON.String != "" && paymentsJSON.String != "null" {
		if err := json.Unmarshal([]byte(paymentsJSON.String), &tx.Payments); err != nil {
			return ledger.Transaction{}, fmt.Errorf("failed to decode payments: %w", err)
		}
	}
	if occurredAt.Valid {
		tx.OccurredAt, _ = time.Parse(time.RFC3339, occurredAt.String)
	}
	return tx, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
