/*
label.go - Stable line labels and report sections

PURPOSE:
  Defines the three report sections (Sales, Deferred Sales, Payments) and
  the flat label vocabulary their lines are keyed by. Labels are stable
  identifiers so consumers can aggregate by label across transactions.

LABELS ARE NOT DISPLAY TEXT:
  The source reports indent sub-lines ("      Gift Card Sales") to show
  hierarchy. That indentation is presentation, owned by whatever renders
  the report. Nothing in this package carries presentational whitespace;
  a rendering layer maps labels to display strings and nesting.

SECTION INVARIANT:
  Section.Total always equals the sum of its line amounts. Sections are
  built through AddLine / NewSection so the invariant cannot drift.

SEE ALSO:
  - transaction.go: Which labels each transaction kind posts under
  - engine.go: Section construction during recognition
*/
package ledger

// =============================================================================
// LINE LABELS - Flat, stable keys
// =============================================================================

// LineLabel identifies a ledger line within a section.
type LineLabel string

// Sales labels.
const (
	LabelGrossSales    LineLabel = "gross_sales"
	LabelCateringSales LineLabel = "catering_sales"
	LabelOnlineSales   LineLabel = "online_sales"
)

// Deferred-sales labels, one per instrument kind.
const (
	LabelGiftCardSales    LineLabel = "gift_card_sales"
	LabelDepositsReceived LineLabel = "deposits_received"
	LabelInvoices         LineLabel = "invoices"
	LabelSquareOnline     LineLabel = "square_online"
)

// Payment-method labels. The first group is external money; the second is
// stored value being tendered (internal transfers, see ReconciliationChecker).
const (
	LabelCash  LineLabel = "cash"
	LabelCard  LineLabel = "card"
	LabelCheck LineLabel = "check"
	LabelOther LineLabel = "other"

	LabelGiftCardPayment   LineLabel = "gift_card_payment"
	LabelDepositRedeemed   LineLabel = "deposit_redeemed"
	LabelInvoiceCredit     LineLabel = "invoice_credit"
	LabelOnlineOrderCredit LineLabel = "online_order_credit"
)

// tenderLabels is the set of payment labels that represent stored value
// rather than newly collected money.
var tenderLabels = map[LineLabel]bool{
	LabelGiftCardPayment:   true,
	LabelDepositRedeemed:   true,
	LabelInvoiceCredit:     true,
	LabelOnlineOrderCredit: true,
}

// IsTenderLabel reports whether a payment label is stored-value tender
// (not external money).
func IsTenderLabel(l LineLabel) bool { return tenderLabels[l] }

// =============================================================================
// SECTIONS
// =============================================================================

// SectionKind names the three report sections every transaction produces.
type SectionKind string

const (
	SectionSales         SectionKind = "sales"
	SectionDeferredSales SectionKind = "deferred_sales"
	SectionPayments      SectionKind = "payments"
)

// LedgerLine is one labeled amount inside a section.
type LedgerLine struct {
	Label  LineLabel `json:"label"`
	Amount Money     `json:"amount"`
}

// Section is an ordered collection of lines with a running total.
//
// INVARIANT: Total == sum of Lines[i].Amount, exactly.
type Section struct {
	Kind  SectionKind  `json:"kind"`
	Lines []LedgerLine `json:"lines"`
	Total Money        `json:"total"`
}

// NewSection returns an empty section of the given kind.
func NewSection(kind SectionKind) Section {
	return Section{Kind: kind, Total: Zero}
}

// AddLine appends a line and maintains the total. Zero-amount lines are
// skipped so empty activity does not clutter reports.
func (s *Section) AddLine(label LineLabel, amount Money) {
	if amount.IsZero() {
		return
	}
	s.Lines = append(s.Lines, LedgerLine{Label: label, Amount: amount})
	s.Total = s.Total.Add(amount)
}

// LineAmount returns the summed amount posted under a label.
func (s Section) LineAmount(label LineLabel) Money {
	total := Zero
	for _, l := range s.Lines {
		if l.Label == label {
			total = total.Add(l.Amount)
		}
	}
	return total
}

// ExternalTotal returns the total of non-tender lines. For Sales and
// DeferredSales sections this equals Total.
func (s Section) ExternalTotal() Money {
	total := Zero
	for _, l := range s.Lines {
		if !IsTenderLabel(l.Label) {
			total = total.Add(l.Amount)
		}
	}
	return total
}

// LedgerSnapshot is the balanced triple every applied transaction emits.
type LedgerSnapshot struct {
	Sales    Section `json:"sales"`
	Deferred Section `json:"deferred_sales"`
	Payments Section `json:"payments"`
}

// Balanced reports whether the per-transaction balance law holds:
// Sales.Total + Deferred.Total == Payments.Total.
func (ls LedgerSnapshot) Balanced() bool {
	return ls.Sales.Total.Add(ls.Deferred.Total).Equal(ls.Payments.Total)
}
