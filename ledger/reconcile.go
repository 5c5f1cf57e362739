/*
reconcile.go - Post-hoc invariant checking over account histories

PURPOSE:
  The ReconciliationChecker is the audit side of the engine. It replays an
  account's full transaction history from scratch, recomputing the running
  balance step by step, and verifies the lifetime conservation law:

    external money collected == sales recognized + refunds + balance left

  It never participates in the apply path - it is a test oracle and a
  background auditing job. A failure here means a recognition-policy bug
  or a corrupted history, not a bad request. Alert on it; never retry it.

POLICY INDEPENDENCE:
  The checker recomputes balances from transaction kinds and amounts, not
  from emitted section deltas, so a history is validated identically
  whether its reports were rendered under PaymentsOnly or DeferredContra.
  Stored-value tender is an internal transfer and does not count as
  external money.

SEE ALSO:
  - engine.go: Reconcile / ReconcileAll entry points
  - cmd/server: The offline `audit` command
*/
package ledger

import "fmt"

// =============================================================================
// RECONCILIATION ERROR
// =============================================================================

// ReconciliationError pinpoints the first invariant violation found while
// replaying a history.
type ReconciliationError struct {
	Account  AccountKey
	Step     int           // index into the history, -1 for lifetime checks
	TxID     TransactionID // empty for lifetime checks
	Reason   string
	Expected Money
	Actual   Money
}

func (e *ReconciliationError) Error() string {
	if e.Step >= 0 {
		return fmt.Sprintf("reconciliation failed: %s %s step %d (tx %s): %s (expected %s, got %s)",
			e.Account.Kind, e.Account.ID, e.Step, e.TxID, e.Reason, e.Expected, e.Actual)
	}
	return fmt.Sprintf("reconciliation failed: %s %s: %s (expected %s, got %s)",
		e.Account.Kind, e.Account.ID, e.Reason, e.Expected, e.Actual)
}

func (e *ReconciliationError) Unwrap() error { return ErrReconciliation }

// =============================================================================
// CHECKER
// =============================================================================

// ReconciliationChecker validates account histories offline.
type ReconciliationChecker struct {
	policies PolicySet
}

func NewReconciliationChecker(ps PolicySet) *ReconciliationChecker {
	if ps == nil {
		ps = DefaultPolicies()
	}
	return &ReconciliationChecker{policies: ps}
}

// Check replays one account's history and compares the recomputed balance
// against the stored balance, then verifies the conservation law.
func (c *ReconciliationChecker) Check(history []Transaction, storedBalance Money) error {
	var key AccountKey
	running := Zero
	external := Zero   // gross money collected from outside
	recognized := Zero // sales recognized over the lifetime
	refunded := Zero   // money returned before recognition

	for i, tx := range history {
		if tx.Instrument == nil {
			return &ReconciliationError{Step: i, TxID: tx.ID,
				Reason: "instrument-less transaction in account history"}
		}
		if i == 0 {
			key = tx.Instrument.Key()
		} else if tx.Instrument.Key() != key {
			return &ReconciliationError{Account: key, Step: i, TxID: tx.ID,
				Reason: "history mixes instruments"}
		}

		switch tx.Kind {
		case DeferredIssue, PartialPayment:
			running = running.Add(tx.Gross)
			external = external.Add(tx.Gross)

		case DeferredRefundOfIssue, PartialPaymentRefund:
			if tx.Gross.GreaterThan(running) {
				return &ReconciliationError{Account: key, Step: i, TxID: tx.ID,
					Reason: "refund exceeds running balance", Expected: running, Actual: tx.Gross}
			}
			running = running.Sub(tx.Gross)
			refunded = refunded.Add(tx.Gross)

		case DeferredRedemption:
			if tx.Gross.GreaterThan(running) {
				return &ReconciliationError{Account: key, Step: i, TxID: tx.ID,
					Reason: "redemption exceeds running balance", Expected: running, Actual: tx.Gross}
			}
			running = running.Sub(tx.Gross)
			recognized = recognized.Add(tx.Gross)

		case RevenueRecognition:
			if tx.ClosedPortion.GreaterThan(running) {
				return &ReconciliationError{Account: key, Step: i, TxID: tx.ID,
					Reason: "recognition exceeds running balance", Expected: running, Actual: tx.ClosedPortion}
			}
			running = running.Sub(tx.ClosedPortion)
			recognized = recognized.Add(tx.ContractValue)
			external = external.Add(tx.ContractValue.Sub(tx.ClosedPortion))

		default:
			return &ReconciliationError{Account: key, Step: i, TxID: tx.ID,
				Reason: "unexpected kind " + string(tx.Kind)}
		}
	}

	if !running.Equal(storedBalance) {
		return &ReconciliationError{Account: key, Step: -1,
			Reason: "stored balance diverges from replay", Expected: running, Actual: storedBalance}
	}

	// Conservation: every external dollar is either recognized as sales,
	// refunded, or still owed as liability.
	owed := recognized.Add(refunded).Add(running)
	if !external.Equal(owed) {
		return &ReconciliationError{Account: key, Step: -1,
			Reason: "conservation violated", Expected: owed, Actual: external}
	}
	return nil
}

// VerifySnapshot checks the per-transaction laws on an emitted snapshot:
// each section's total equals the sum of its lines, and
// Sales + DeferredSales == Payments. Used as a test oracle.
func (c *ReconciliationChecker) VerifySnapshot(snap LedgerSnapshot) error {
	for _, s := range []Section{snap.Sales, snap.Deferred, snap.Payments} {
		sum := Zero
		for _, l := range s.Lines {
			sum = sum.Add(l.Amount)
		}
		if !sum.Equal(s.Total) {
			return &ReconciliationError{Step: -1,
				Reason: "section total diverges from line sum (" + string(s.Kind) + ")",
				Expected: sum, Actual: s.Total}
		}
	}
	if !snap.Balanced() {
		return &ReconciliationError{Step: -1,
			Reason:   "per-transaction balance law violated",
			Expected: snap.Payments.Total,
			Actual:   snap.Sales.Total.Add(snap.Deferred.Total)}
	}
	return nil
}
