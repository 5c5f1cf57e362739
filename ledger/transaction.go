/*
transaction.go - Business events the engine recognizes

PURPOSE:
  A Transaction is one business event: a sale, a refund, money taken
  against a future obligation, stored value spent, or an obligation being
  fulfilled. The engine turns each Transaction into a balanced Sales /
  Deferred Sales / Payments triple.

KIND CHEAT SHEET (signs are section totals for the default policy):

  Kind                    Sales  Deferred  Payments  Balance delta
  DirectSale               +G       0        +G          -
  DirectRefund             -G       0        -G          -
  DeferredIssue             0      +G        +G         +G
  DeferredRedemption       +G      -G         0         -G
  DeferredRefundOfIssue     0      -G        -G         -G
  PartialPayment            0      +G        +G         +G
  PartialPaymentRefund      0      -G        -G         -G
  RevenueRecognition       +V      -C       V-C         -C

  G = Gross, V = ContractValue, C = ClosedPortion.

IDEMPOTENCY:
  The caller supplies a stable Transaction ID. Re-submitting the same id
  is rejected with ErrDuplicateTransaction and changes nothing, so retries
  after a network failure are safe.

SEE ALSO:
  - engine.go: The per-kind recognition algorithms
  - policy.go: How the two bookkeeping conventions change presentation
*/
package ledger

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TransactionID string

// InstrumentKind names the deferral-bearing object a transaction references.
type InstrumentKind string

const (
	InstrumentGiftCard           InstrumentKind = "gift_card"
	InstrumentInvoice            InstrumentKind = "invoice"
	InstrumentDeposit            InstrumentKind = "deposit"
	InstrumentOnlineAdvanceOrder InstrumentKind = "online_advance_order"
)

// Valid reports whether k is a known instrument kind.
func (k InstrumentKind) Valid() bool {
	switch k {
	case InstrumentGiftCard, InstrumentInvoice, InstrumentDeposit, InstrumentOnlineAdvanceOrder:
		return true
	}
	return false
}

// InstrumentRef identifies one concrete instrument (a gift card code, an
// invoice number, a catering order id).
type InstrumentRef struct {
	Kind InstrumentKind `json:"kind"`
	ID   string         `json:"id"`
}

// AccountKey is the map key for DeferralAccounts.
type AccountKey struct {
	Kind InstrumentKind
	ID   string
}

// Key converts a reference into an account key.
func (r InstrumentRef) Key() AccountKey { return AccountKey{Kind: r.Kind, ID: r.ID} }

// =============================================================================
// TRANSACTION KINDS
// =============================================================================

type TransactionKind string

const (
	// DirectSale is a same-day paid sale with no deferral involved.
	DirectSale TransactionKind = "direct_sale"

	// DirectRefund mirrors DirectSale with negated amounts.
	DirectRefund TransactionKind = "direct_refund"

	// DeferredIssue collects money against a future obligation: gift card
	// purchase, deposit, advance order, invoice deposit.
	DeferredIssue TransactionKind = "deferred_issue"

	// DeferredRedemption spends stored value as tender for a new purchase.
	DeferredRedemption TransactionKind = "deferred_redemption"

	// DeferredRefundOfIssue returns money before the obligation is met.
	DeferredRefundOfIssue TransactionKind = "deferred_refund_of_issue"

	// PartialPayment is an invoice/deposit installment.
	PartialPayment TransactionKind = "partial_payment"

	// PartialPaymentRefund reverses an installment.
	PartialPaymentRefund TransactionKind = "partial_payment_refund"

	// RevenueRecognition fulfills a previously deferred order: the full
	// contract value becomes sales, the deferred portion is closed, and
	// any remaining balance due is collected now.
	RevenueRecognition TransactionKind = "revenue_recognition"
)

// Valid reports whether k is a known transaction kind.
func (k TransactionKind) Valid() bool {
	switch k {
	case DirectSale, DirectRefund, DeferredIssue, DeferredRedemption,
		DeferredRefundOfIssue, PartialPayment, PartialPaymentRefund,
		RevenueRecognition:
		return true
	}
	return false
}

// requiresInstrument reports whether the kind must reference an instrument.
func (k TransactionKind) requiresInstrument() bool {
	switch k {
	case DirectSale, DirectRefund:
		return false
	}
	return true
}

// touchesExisting reports whether the kind operates on a balance that must
// already exist. DeferredIssue and PartialPayment create accounts lazily;
// everything instrument-related besides those requires a prior issue.
func (k TransactionKind) touchesExisting() bool {
	switch k {
	case DeferredRedemption, DeferredRefundOfIssue, PartialPaymentRefund, RevenueRecognition:
		return true
	}
	return false
}

// =============================================================================
// TRANSACTION
// =============================================================================

// PaymentLine is one tender entry in a transaction's payment breakdown.
type PaymentLine struct {
	Method LineLabel `json:"method"`
	Amount Money     `json:"amount"`
}

// Transaction is one immutable business event.
//
// Gross is the primary amount for every kind except RevenueRecognition,
// which instead carries ContractValue (the full sale value recognized now)
// and ClosedPortion (how much previously deferred balance is being closed;
// may be less than the account's full outstanding balance).
type Transaction struct {
	ID            TransactionID   `json:"id"`
	Kind          TransactionKind `json:"kind"`
	Gross         Money           `json:"gross"`
	ContractValue Money           `json:"contract_value,omitempty"`
	ClosedPortion Money           `json:"closed_portion,omitempty"`

	// Instrument is nil for DirectSale / DirectRefund.
	Instrument *InstrumentRef `json:"instrument,omitempty"`

	// Payments optionally breaks down how external money was tendered
	// (cash vs card vs check). When present it must sum exactly to the
	// external amount the kind collects. Stored-value tender is derived
	// from the instrument, never listed here.
	Payments []PaymentLine `json:"payments,omitempty"`

	// SalesLabel overrides the label recognized sales post under.
	// Defaults to LabelGrossSales.
	SalesLabel LineLabel `json:"sales_label,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
	Memo       string    `json:"memo,omitempty"`
}

// externalCollected returns the external (non-stored-value) money this
// transaction moves, signed. This is what a payment breakdown must sum to.
func (t Transaction) externalCollected() Money {
	switch t.Kind {
	case DirectSale, DeferredIssue, PartialPayment:
		return t.Gross
	case DirectRefund, DeferredRefundOfIssue, PartialPaymentRefund:
		return t.Gross.Neg()
	case DeferredRedemption:
		return Zero
	case RevenueRecognition:
		return t.ContractValue.Sub(t.ClosedPortion)
	}
	return Zero
}

// salesLabel returns the label recognized sales post under.
func (t Transaction) salesLabel() LineLabel {
	if t.SalesLabel != "" {
		return t.SalesLabel
	}
	return LabelGrossSales
}

// Validate checks transaction shape ahead of recognition. Balance-dependent
// checks (over-refund, over-recognition) live in the engine.
func (t Transaction) Validate() error {
	if t.ID == "" {
		return &InvalidTransactionError{Reason: "missing transaction id"}
	}
	if !t.Kind.Valid() {
		return &InvalidTransactionError{ID: t.ID, Reason: "unknown kind " + string(t.Kind)}
	}
	if t.Kind.requiresInstrument() {
		if t.Instrument == nil {
			return &InvalidTransactionError{ID: t.ID, Reason: string(t.Kind) + " requires an instrument reference"}
		}
		if !t.Instrument.Kind.Valid() || t.Instrument.ID == "" {
			return &InvalidTransactionError{ID: t.ID, Reason: "malformed instrument reference"}
		}
	} else if t.Instrument != nil {
		return &InvalidTransactionError{ID: t.ID, Reason: string(t.Kind) + " must not reference an instrument"}
	}

	if t.Kind == RevenueRecognition {
		if t.ContractValue.IsNegative() || t.ClosedPortion.IsNegative() {
			return &InvalidTransactionError{ID: t.ID, Reason: "negative recognition amounts"}
		}
		if t.ClosedPortion.GreaterThan(t.ContractValue) {
			return &InvalidTransactionError{ID: t.ID, Reason: "closed portion exceeds contract value"}
		}
	} else if t.Gross.IsNegative() {
		// Refund kinds carry a positive Gross; the kind supplies the sign.
		return &InvalidTransactionError{ID: t.ID, Reason: "gross amount must be non-negative"}
	}

	if len(t.Payments) > 0 {
		sum := Zero
		for _, p := range t.Payments {
			if IsTenderLabel(p.Method) {
				return &InvalidTransactionError{ID: t.ID, Reason: "payment breakdown may not contain stored-value tender"}
			}
			sum = sum.Add(p.Amount)
		}
		if expected := t.externalCollected(); !sum.Equal(expected) {
			return &UnbalancedPaymentsError{ID: t.ID, Breakdown: sum, Expected: expected}
		}
	}
	return nil
}
