/*
errors.go - Centralized error types for the recognition engine

PURPOSE:
  All error types in one place. Callers branch with errors.Is against the
  sentinels; the structured types carry enough context to explain the
  failure (which instrument, how short, which invariant broke).

FAILURE SEMANTICS:
  Every error here is recoverable by the caller. Apply never panics, and
  a failed transaction leaves engine state completely untouched - no
  section is emitted and no balance moves.

  ErrReconciliation is the exception in severity: it means a recognition
  policy bug or a corrupted history, not a bad request. Surface it loudly;
  do not retry it.

USAGE:
    if errors.Is(err, ledger.ErrOverRefund) {
        // split the refund and resubmit
    }

SEE ALSO:
  - engine.go: Where the balance-guard errors are raised
  - reconcile.go: ReconciliationError construction
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrOverRefund is returned when a refund of an issue exceeds the
	// instrument's outstanding balance. Never silently clamped.
	ErrOverRefund = errors.New("refund exceeds outstanding balance")

	// ErrOverRecognition is returned when a recognition tries to close more
	// deferred balance than the instrument holds.
	ErrOverRecognition = errors.New("recognition exceeds outstanding balance")

	// ErrInsufficientBalance is returned when stored value is tendered
	// beyond the instrument's outstanding balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrDuplicateTransaction is returned when a transaction id has already
	// been applied. Expected behavior for retries.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrUnknownInstrument is returned when a redemption, refund, or
	// recognition references an instrument that was never issued.
	ErrUnknownInstrument = errors.New("unknown instrument")

	// ErrPrecision is returned when an amount is not representable exactly
	// at the configured decimal scale.
	ErrPrecision = errors.New("amount not representable at scale")

	// ErrInvalidTransaction is returned for shape violations: missing id,
	// unknown kind, missing or forbidden instrument reference.
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrUnbalancedPayments is returned when a supplied payment breakdown
	// does not sum to the amount the transaction collects.
	ErrUnbalancedPayments = errors.New("payment breakdown does not balance")

	// ErrReconciliation is returned when a post-hoc audit finds an
	// invariant violation in an account's history.
	ErrReconciliation = errors.New("reconciliation failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// BalanceError reports an attempt to draw down more deferred liability than
// an instrument holds. Wraps ErrOverRefund, ErrOverRecognition, or
// ErrInsufficientBalance depending on the transaction kind.
type BalanceError struct {
	Account   AccountKey
	Requested Money
	Available Money
	sentinel  error
}

func (e *BalanceError) Error() string {
	return fmt.Sprintf("%v: %s %s has %s outstanding, transaction needs %s",
		e.sentinel, e.Account.Kind, e.Account.ID, e.Available, e.Requested)
}

func (e *BalanceError) Unwrap() error { return e.sentinel }

func overRefund(key AccountKey, requested, available Money) error {
	return &BalanceError{Account: key, Requested: requested, Available: available, sentinel: ErrOverRefund}
}

func overRecognition(key AccountKey, requested, available Money) error {
	return &BalanceError{Account: key, Requested: requested, Available: available, sentinel: ErrOverRecognition}
}

func insufficientBalance(key AccountKey, requested, available Money) error {
	return &BalanceError{Account: key, Requested: requested, Available: available, sentinel: ErrInsufficientBalance}
}

// UnknownInstrumentError identifies the missing instrument.
type UnknownInstrumentError struct {
	Account AccountKey
}

func (e *UnknownInstrumentError) Error() string {
	return fmt.Sprintf("unknown instrument: %s %s was never issued", e.Account.Kind, e.Account.ID)
}

func (e *UnknownInstrumentError) Unwrap() error { return ErrUnknownInstrument }

// DuplicateTransactionError identifies the clashing id.
type DuplicateTransactionError struct {
	ID TransactionID
}

func (e *DuplicateTransactionError) Error() string {
	return fmt.Sprintf("duplicate transaction: %s already applied", e.ID)
}

func (e *DuplicateTransactionError) Unwrap() error { return ErrDuplicateTransaction }

// PrecisionError reports an amount that cannot be represented exactly.
type PrecisionError struct {
	Input  string
	Reason string
}

func (e *PrecisionError) Error() string {
	return fmt.Sprintf("precision error: %q (%s)", e.Input, e.Reason)
}

func (e *PrecisionError) Unwrap() error { return ErrPrecision }

// InvalidTransactionError reports a shape violation.
type InvalidTransactionError struct {
	ID     TransactionID
	Reason string
}

func (e *InvalidTransactionError) Error() string {
	if e.ID == "" {
		return "invalid transaction: " + e.Reason
	}
	return fmt.Sprintf("invalid transaction %s: %s", e.ID, e.Reason)
}

func (e *InvalidTransactionError) Unwrap() error { return ErrInvalidTransaction }

// UnbalancedPaymentsError reports a breakdown/total mismatch.
type UnbalancedPaymentsError struct {
	ID        TransactionID
	Breakdown Money
	Expected  Money
}

func (e *UnbalancedPaymentsError) Error() string {
	return fmt.Sprintf("transaction %s: payment breakdown sums to %s, expected %s",
		e.ID, e.Breakdown, e.Expected)
}

func (e *UnbalancedPaymentsError) Unwrap() error { return ErrUnbalancedPayments }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to a bad single request
// rather than a bug. Client errors are safe to surface as HTTP 4xx.
func IsClientError(err error) bool {
	return errors.Is(err, ErrOverRefund) ||
		errors.Is(err, ErrOverRecognition) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrDuplicateTransaction) ||
		errors.Is(err, ErrUnknownInstrument) ||
		errors.Is(err, ErrPrecision) ||
		errors.Is(err, ErrInvalidTransaction) ||
		errors.Is(err, ErrUnbalancedPayments)
}

// IsCorruption returns true for errors that indicate a correctness bug
// rather than a bad request. These should alert, not retry.
func IsCorruption(err error) bool {
	return errors.Is(err, ErrReconciliation)
}
