/*
policy.go - The two bookkeeping conventions for closing deferred balance

PURPOSE:
  The source reports show two competing conventions for the moment a
  deferred balance is closed (a deposit applied to a final bill, a gift
  card spent). Neither is wrong; they are different presentations of the
  same balance movement, so the engine supports both per instrument kind
  rather than hard-coding one.

THE TWO POLICIES:
  PaymentsOnly ("Option 1"):
    The closed portion appears inside Payments as a stored-value tender
    line (e.g. "Deposit Redeemed +100"). Deferred Sales shows nothing.
    Payments.Total equals the full value of the sale.

  DeferredContra ("Option B"):
    The closed portion appears as a negative Deferred Sales line.
    Payments shows only newly collected external money, so
    Payments.Total equals the remaining amount due.

  Both satisfy Sales + DeferredSales == Payments for every transaction,
  and both move the account balance identically. Pick per instrument
  kind; reports for the same instrument should not mix conventions.

SEE ALSO:
  - engine.go: Applies the policy when emitting sections
  - config: Maps TOML policy names onto these values
*/
package ledger

// =============================================================================
// RECOGNITION POLICY
// =============================================================================

type RecognitionPolicy string

const (
	// PolicyPaymentsOnly shows stored-value closure as a tender line in
	// the Payments section ("Option 1" in the source reports).
	PolicyPaymentsOnly RecognitionPolicy = "payments_only"

	// PolicyDeferredContra shows stored-value closure as a negative
	// Deferred Sales line ("Option B" in the source reports).
	PolicyDeferredContra RecognitionPolicy = "deferred_contra"
)

// Valid reports whether p is a known policy.
func (p RecognitionPolicy) Valid() bool {
	return p == PolicyPaymentsOnly || p == PolicyDeferredContra
}

// PolicySet selects a RecognitionPolicy per instrument kind.
type PolicySet map[InstrumentKind]RecognitionPolicy

// DefaultPolicies mirrors the source reports: gift cards and online orders
// use the payments-only presentation, deposits and invoices the contra
// presentation.
func DefaultPolicies() PolicySet {
	return PolicySet{
		InstrumentGiftCard:           PolicyPaymentsOnly,
		InstrumentInvoice:            PolicyDeferredContra,
		InstrumentDeposit:            PolicyDeferredContra,
		InstrumentOnlineAdvanceOrder: PolicyPaymentsOnly,
	}
}

// For returns the policy for an instrument kind, defaulting to
// PolicyDeferredContra when unset.
func (ps PolicySet) For(kind InstrumentKind) RecognitionPolicy {
	if p, ok := ps[kind]; ok && p.Valid() {
		return p
	}
	return PolicyDeferredContra
}

// =============================================================================
// INSTRUMENT LABEL MAPPING
// =============================================================================

// issueLabel is the Deferred Sales label money posts under when issued.
func issueLabel(kind InstrumentKind) LineLabel {
	switch kind {
	case InstrumentGiftCard:
		return LabelGiftCardSales
	case InstrumentInvoice:
		return LabelInvoices
	case InstrumentDeposit:
		return LabelDepositsReceived
	case InstrumentOnlineAdvanceOrder:
		return LabelSquareOnline
	}
	return LabelGrossSales
}

// tenderLabel is the Payments label stored value tenders under.
func tenderLabel(kind InstrumentKind) LineLabel {
	switch kind {
	case InstrumentGiftCard:
		return LabelGiftCardPayment
	case InstrumentInvoice:
		return LabelInvoiceCredit
	case InstrumentDeposit:
		return LabelDepositRedeemed
	case InstrumentOnlineAdvanceOrder:
		return LabelOnlineOrderCredit
	}
	return LabelOther
}
