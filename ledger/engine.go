/*
engine.go - The recognition engine

PURPOSE:
  Turns one Transaction into a balanced triple of report sections (Sales,
  Deferred Sales, Payments) and applies the matching DeferralAccount
  mutation. This file is the business core: every accounting rule the
  reports encode lives in the per-kind functions below.

ATOMICITY:
  Apply either commits everything - the emitted sections, the journal
  entry, and the balance movement - or nothing. Balance guards run before
  any mutation; the journal write happens before the balance moves, so a
  failed journal leaves the account untouched.

SERIALIZATION:
  Transactions against the same instrument are order-dependent (a
  redemption before its issue must fail), so Apply holds one mutex per
  account key for the duration of the call. Transactions on unrelated
  instruments proceed fully in parallel; there is no global lock on the
  apply path.

IDEMPOTENT RETRY:
  Callers supply stable transaction ids. A resubmitted id is rejected
  with ErrDuplicateTransaction and changes nothing.

SEE ALSO:
  - policy.go: The two closure presentations
  - account.go: Balance guard mechanics
  - reconcile.go: Post-hoc validation of what this file produced
*/
package ledger

import (
	"context"
	"sync"
)

// =============================================================================
// ENGINE
// =============================================================================

// RecognitionEngine owns all DeferralAccounts and the in-memory journal.
type RecognitionEngine struct {
	policies PolicySet
	store    Store // optional durable journal; nil for pure in-memory use

	mu       sync.Mutex // guards the maps below, never held during apply
	accounts map[AccountKey]*DeferralAccount
	locks    map[AccountKey]*sync.Mutex
	applied  map[TransactionID]bool
	journal  map[AccountKey][]Transaction

	directMu sync.Mutex // serializes instrument-less transactions
}

// Option configures a RecognitionEngine.
type Option func(*RecognitionEngine)

// WithPolicies overrides the default per-instrument policies.
func WithPolicies(ps PolicySet) Option {
	return func(e *RecognitionEngine) {
		for k, v := range ps {
			e.policies[k] = v
		}
	}
}

// WithStore journals every applied transaction through the given store.
func WithStore(s Store) Option {
	return func(e *RecognitionEngine) { e.store = s }
}

// NewEngine creates an engine with the default policies and no durable
// journal.
func NewEngine(opts ...Option) *RecognitionEngine {
	e := &RecognitionEngine{
		policies: DefaultPolicies(),
		accounts: make(map[AccountKey]*DeferralAccount),
		locks:    make(map[AccountKey]*sync.Mutex),
		applied:  make(map[TransactionID]bool),
		journal:  make(map[AccountKey][]Transaction),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// accountLock returns the serialization mutex for a key, creating it on
// first use. Accounts are never deleted, so locks are never reaped.
func (e *RecognitionEngine) accountLock(key AccountKey) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[key]
	if !ok {
		l = &sync.Mutex{}
		e.locks[key] = l
	}
	return l
}

// =============================================================================
// APPLY - One transaction in, one balanced snapshot out
// =============================================================================

// Apply recognizes one transaction. On any error the engine state is
// unchanged and the zero snapshot is returned.
func (e *RecognitionEngine) Apply(ctx context.Context, tx Transaction) (LedgerSnapshot, error) {
	return e.apply(ctx, tx, true)
}

func (e *RecognitionEngine) apply(ctx context.Context, tx Transaction, journal bool) (LedgerSnapshot, error) {
	if err := tx.Validate(); err != nil {
		return LedgerSnapshot{}, err
	}

	// Serialize on the referenced account, or on the direct-sale lane for
	// instrument-less kinds.
	if tx.Instrument != nil {
		l := e.accountLock(tx.Instrument.Key())
		l.Lock()
		defer l.Unlock()
	} else {
		e.directMu.Lock()
		defer e.directMu.Unlock()
	}

	// Reserve the id before any other work. The same id racing in against
	// two different instruments holds two different account locks, so the
	// dedup decision has to happen inside one e.mu critical section.
	if err := e.reserveID(tx.ID); err != nil {
		return LedgerSnapshot{}, err
	}
	committed := false
	defer func() {
		if !committed {
			e.releaseID(tx.ID)
		}
	}()

	if journal && e.store != nil {
		dup, err := e.store.Exists(ctx, tx.ID)
		if err != nil {
			return LedgerSnapshot{}, err
		}
		if dup {
			return LedgerSnapshot{}, &DuplicateTransactionError{ID: tx.ID}
		}
	}

	// Resolve the account without mutating it. Balance guards run against
	// this view; nothing moves until the snapshot is fully computed.
	account, err := e.resolveAccount(tx)
	if err != nil {
		return LedgerSnapshot{}, err
	}

	snapshot, move, err := e.recognize(tx, account)
	if err != nil {
		return LedgerSnapshot{}, err
	}

	// Journal before mutating. A journal failure aborts with no movement.
	if journal && e.store != nil {
		if err := e.store.Append(ctx, tx); err != nil {
			return LedgerSnapshot{}, err
		}
	}

	move()
	e.commit(tx)
	committed = true
	return snapshot, nil
}

// reserveID claims a transaction id, rejecting one already applied or in
// flight. A failed transaction releases its claim so the id can be retried.
func (e *RecognitionEngine) reserveID(id TransactionID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.applied[id] {
		return &DuplicateTransactionError{ID: id}
	}
	e.applied[id] = true
	return nil
}

func (e *RecognitionEngine) releaseID(id TransactionID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.applied, id)
}

func (e *RecognitionEngine) commit(tx Transaction) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if tx.Instrument != nil {
		key := tx.Instrument.Key()
		e.journal[key] = append(e.journal[key], tx)
	}
}

// resolveAccount returns the account a transaction operates on, creating it
// lazily for issue kinds and rejecting references to never-issued
// instruments for the rest. Returns nil for instrument-less kinds.
func (e *RecognitionEngine) resolveAccount(tx Transaction) (*DeferralAccount, error) {
	if tx.Instrument == nil {
		return nil, nil
	}
	key := tx.Instrument.Key()

	e.mu.Lock()
	defer e.mu.Unlock()
	account, ok := e.accounts[key]
	if !ok {
		if tx.Kind.touchesExisting() {
			return nil, &UnknownInstrumentError{Account: key}
		}
		account = newAccount(key)
		e.accounts[key] = account
	}
	return account, nil
}

// =============================================================================
// RECOGNITION - Per-kind section algebra
// =============================================================================

// recognize computes the balanced snapshot for a transaction and returns the
// deferred balance movement as a closure. The closure runs only after the
// journal write succeeds, keeping Apply atomic.
func (e *RecognitionEngine) recognize(tx Transaction, account *DeferralAccount) (LedgerSnapshot, func(), error) {
	sales := NewSection(SectionSales)
	deferred := NewSection(SectionDeferredSales)
	payments := NewSection(SectionPayments)

	noMove := func() {
		if account != nil {
			account.touch(tx.ID)
		}
	}

	switch tx.Kind {
	case DirectSale:
		sales.AddLine(tx.salesLabel(), tx.Gross)
		e.addExternalPayments(&payments, tx)
		return LedgerSnapshot{sales, deferred, payments}, noMove, nil

	case DirectRefund:
		sales.AddLine(tx.salesLabel(), tx.Gross.Neg())
		e.addExternalPayments(&payments, tx)
		return LedgerSnapshot{sales, deferred, payments}, noMove, nil

	case DeferredIssue:
		deferred.AddLine(issueLabel(tx.Instrument.Kind), tx.Gross)
		e.addExternalPayments(&payments, tx)
		move := func() { account.credit(tx.Gross, tx.ID) }
		return LedgerSnapshot{sales, deferred, payments}, move, nil

	case PartialPayment:
		deferred.AddLine(issueLabel(tx.Instrument.Kind), tx.Gross)
		e.addExternalPayments(&payments, tx)
		move := func() { account.credit(tx.Gross, tx.ID) }
		return LedgerSnapshot{sales, deferred, payments}, move, nil

	case DeferredRefundOfIssue, PartialPaymentRefund:
		if tx.Gross.GreaterThan(account.Balance()) {
			return LedgerSnapshot{}, nil, overRefund(account.Key(), tx.Gross, account.Balance())
		}
		deferred.AddLine(issueLabel(tx.Instrument.Kind), tx.Gross.Neg())
		e.addExternalPayments(&payments, tx)
		move := func() { _ = account.debit(tx.Gross, tx.ID) }
		return LedgerSnapshot{sales, deferred, payments}, move, nil

	case DeferredRedemption:
		if tx.Gross.GreaterThan(account.Balance()) {
			return LedgerSnapshot{}, nil, insufficientBalance(account.Key(), tx.Gross, account.Balance())
		}
		sales.AddLine(tx.salesLabel(), tx.Gross)
		switch e.policies.For(tx.Instrument.Kind) {
		case PolicyPaymentsOnly:
			payments.AddLine(tenderLabel(tx.Instrument.Kind), tx.Gross)
		case PolicyDeferredContra:
			deferred.AddLine(issueLabel(tx.Instrument.Kind), tx.Gross.Neg())
		}
		move := func() { _ = account.debit(tx.Gross, tx.ID) }
		return LedgerSnapshot{sales, deferred, payments}, move, nil

	case RevenueRecognition:
		if tx.ClosedPortion.GreaterThan(account.Balance()) {
			return LedgerSnapshot{}, nil, overRecognition(account.Key(), tx.ClosedPortion, account.Balance())
		}
		sales.AddLine(tx.salesLabel(), tx.ContractValue)
		e.addExternalPayments(&payments, tx)
		switch e.policies.For(tx.Instrument.Kind) {
		case PolicyPaymentsOnly:
			payments.AddLine(tenderLabel(tx.Instrument.Kind), tx.ClosedPortion)
		case PolicyDeferredContra:
			deferred.AddLine(issueLabel(tx.Instrument.Kind), tx.ClosedPortion.Neg())
		}
		move := func() { _ = account.debit(tx.ClosedPortion, tx.ID) }
		return LedgerSnapshot{sales, deferred, payments}, move, nil
	}

	return LedgerSnapshot{}, nil, &InvalidTransactionError{ID: tx.ID, Reason: "unknown kind " + string(tx.Kind)}
}

// addExternalPayments posts the transaction's external money into the
// Payments section: the supplied breakdown when present, otherwise one
// line under the default card tender.
func (e *RecognitionEngine) addExternalPayments(payments *Section, tx Transaction) {
	if len(tx.Payments) > 0 {
		for _, p := range tx.Payments {
			payments.AddLine(p.Method, p.Amount)
		}
		return
	}
	payments.AddLine(LabelCard, tx.externalCollected())
}

// =============================================================================
// READ SIDE
// =============================================================================

// GetAccount returns a read-only view of one account.
func (e *RecognitionEngine) GetAccount(kind InstrumentKind, id string) (AccountView, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	account, ok := e.accounts[AccountKey{Kind: kind, ID: id}]
	if !ok {
		return AccountView{}, false
	}
	return account.View(), true
}

// Accounts returns views of every account the engine has seen.
func (e *RecognitionEngine) Accounts() []AccountView {
	e.mu.Lock()
	defer e.mu.Unlock()
	views := make([]AccountView, 0, len(e.accounts))
	for _, account := range e.accounts {
		views = append(views, account.View())
	}
	return views
}

// History returns the applied transactions for one instrument, in order.
func (e *RecognitionEngine) History(kind InstrumentKind, id string) []Transaction {
	e.mu.Lock()
	defer e.mu.Unlock()
	src := e.journal[AccountKey{Kind: kind, ID: id}]
	out := make([]Transaction, len(src))
	copy(out, src)
	return out
}

// Policies returns the engine's policy set (a copy).
func (e *RecognitionEngine) Policies() PolicySet {
	out := make(PolicySet, len(e.policies))
	for k, v := range e.policies {
		out[k] = v
	}
	return out
}

// =============================================================================
// RECONCILE + RESTORE
// =============================================================================

// Reconcile audits one account: it replays the account's full history from
// scratch and checks every invariant against the stored balance. Returns a
// ReconciliationError on any mismatch; see reconcile.go.
func (e *RecognitionEngine) Reconcile(kind InstrumentKind, id string) error {
	key := AccountKey{Kind: kind, ID: id}

	l := e.accountLock(key)
	l.Lock()
	defer l.Unlock()

	e.mu.Lock()
	account, ok := e.accounts[key]
	history := e.journal[key]
	e.mu.Unlock()
	if !ok {
		return &UnknownInstrumentError{Account: key}
	}

	checker := NewReconciliationChecker(e.policies)
	return checker.Check(history, account.Balance())
}

// ReconcileAll audits every account and returns the first failure.
func (e *RecognitionEngine) ReconcileAll() error {
	for _, v := range e.Accounts() {
		if err := e.Reconcile(v.Kind, v.ID); err != nil {
			return err
		}
	}
	return nil
}

// Restore replays the durable journal into a fresh engine, rebuilding all
// account balances. Call once at startup, before serving traffic.
func (e *RecognitionEngine) Restore(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	txs, err := e.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	for _, tx := range txs {
		if _, err := e.apply(ctx, tx, false); err != nil {
			return err
		}
	}
	return nil
}
