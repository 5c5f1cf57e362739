/*
account.go - Per-instrument deferred liability balance

PURPOSE:
  A DeferralAccount tracks how much money has been collected against one
  instrument (a gift card, an invoice, a deposit, an advance order) but
  not yet earned or returned. The balance is a liability: the business
  owes either goods/services or a refund.

LIFECYCLE:
  Created lazily on the first issue referencing a new instrument id.
  Never deleted - an account whose balance returns to zero is Closed,
  but a later issue against the same id reopens it. Append-only history.

INVARIANT:
  The balance never goes negative. Debit checks before it moves and
  returns InsufficientBalanceError on a shortfall; the engine maps that
  onto the kind-appropriate sentinel (OverRefund, OverRecognition).

SEE ALSO:
  - engine.go: The only writer of accounts
  - reconcile.go: Rebuilds balances from history to audit them
*/
package ledger

// =============================================================================
// ACCOUNT STATUS
// =============================================================================

// AccountStatus is derived from the balance; Closed is not terminal.
type AccountStatus string

const (
	AccountOpen   AccountStatus = "open"
	AccountClosed AccountStatus = "closed"
)

// =============================================================================
// DEFERRAL ACCOUNT
// =============================================================================

// DeferralAccount is the running liability for one instrument. Accounts are
// owned by the RecognitionEngine; all mutation happens under the engine's
// per-account serialization.
type DeferralAccount struct {
	key         AccountKey
	outstanding Money
	history     []TransactionID
}

func newAccount(key AccountKey) *DeferralAccount {
	return &DeferralAccount{key: key, outstanding: Zero}
}

// Key returns the (kind, id) pair the account is keyed by.
func (a *DeferralAccount) Key() AccountKey { return a.key }

// Balance returns the outstanding deferred liability.
func (a *DeferralAccount) Balance() Money { return a.outstanding }

// Status reports Open while liability remains, Closed at zero.
func (a *DeferralAccount) Status() AccountStatus {
	if a.outstanding.IsZero() {
		return AccountClosed
	}
	return AccountOpen
}

// History returns the ids of every transaction that touched this account,
// in application order. The returned slice is a copy.
func (a *DeferralAccount) History() []TransactionID {
	out := make([]TransactionID, len(a.history))
	copy(out, a.history)
	return out
}

// credit increases the liability and records the transaction.
func (a *DeferralAccount) credit(amount Money, txID TransactionID) {
	a.outstanding = a.outstanding.Add(amount)
	a.history = append(a.history, txID)
}

// debit decreases the liability, guarding against overdraw. The engine
// maps the shortfall onto the kind-appropriate sentinel before calling.
func (a *DeferralAccount) debit(amount Money, txID TransactionID) error {
	if amount.GreaterThan(a.outstanding) {
		return insufficientBalance(a.key, amount, a.outstanding)
	}
	a.outstanding = a.outstanding.Sub(amount)
	a.history = append(a.history, txID)
	return nil
}

// touch records a transaction that read but did not move the balance.
func (a *DeferralAccount) touch(txID TransactionID) {
	a.history = append(a.history, txID)
}

// =============================================================================
// READ-ONLY VIEW
// =============================================================================

// AccountView is the immutable snapshot handed to callers.
type AccountView struct {
	Kind    InstrumentKind  `json:"kind"`
	ID      string          `json:"id"`
	Balance Money           `json:"balance"`
	Status  AccountStatus   `json:"status"`
	History []TransactionID `json:"history"`
}

// View snapshots the account.
func (a *DeferralAccount) View() AccountView {
	return AccountView{
		Kind:    a.key.Kind,
		ID:      a.key.ID,
		Balance: a.outstanding,
		Status:  a.Status(),
		History: a.History(),
	}
}
