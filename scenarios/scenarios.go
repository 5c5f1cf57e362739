/*
Package scenarios provides the worked deferred-revenue examples as
transaction streams.

PURPOSE:
  Each scenario is one of the bookkeeping walkthroughs the reports were
  built from: sell and refund a gift card, take a deposit against a
  catering order and fulfill it, collect an invoice in installments, take
  full payment for catering weeks before the service date. Scenarios are
  used two ways:
    1. The API's demo endpoints load them into a fresh engine.
    2. The test suite replays them as end-to-end fixtures and asserts the
       exact section totals the source reports show.

DETERMINISM:
  Transaction ids are fixed strings, not generated, so loading the same
  scenario twice exercises the duplicate-submission guard instead of
  silently double-counting.

HOW TO ADD A SCENARIO:
  1. Add a Scenario to Catalog() with a stable ID.
  2. Keep amounts exact at two decimal places.
  3. Give every transaction a breakdown if the tender matters to the story.

SEE ALSO:
  - api/handlers.go: LoadScenario endpoint
  - ledger/engine.go: What the streams run through
*/
package scenarios

import (
	"time"

	"github.com/warp/revenue-engine/ledger"
)

// =============================================================================
// SCENARIO TYPE
// =============================================================================

// Scenario is a named, ordered transaction stream.
type Scenario struct {
	ID           string
	Name         string
	Description  string
	Transactions []ledger.Transaction
}

// Catalog returns every scenario, in display order.
func Catalog() []Scenario {
	return []Scenario{
		GiftCardLifecycle(),
		DepositToFulfillment(),
		InvoiceInstallments(),
		CateringPaidInAdvance(),
	}
}

// ByID looks a scenario up by its stable id.
func ByID(id string) (Scenario, bool) {
	for _, s := range Catalog() {
		if s.ID == id {
			return s, true
		}
	}
	return Scenario{}, false
}

func day(d int) time.Time {
	return time.Date(2025, time.March, d, 12, 0, 0, 0, time.UTC)
}

// =============================================================================
// GIFT CARD - Sale, redemption, and a second card fully refunded
// =============================================================================

// GiftCardLifecycle sells a $50 gift card (deferred, nothing earned),
// spends $20 of it on merchandise, then sells and fully refunds a second
// card. Card GC-100 ends with $30 outstanding; GC-101 ends closed.
func GiftCardLifecycle() Scenario {
	return Scenario{
		ID:          "gift-card",
		Name:        "Gift Card Sale & Refund",
		Description: "Selling a gift card defers revenue until the card is spent; refunding an unspent card reverses the liability",
		Transactions: []ledger.Transaction{
			{
				ID:         "gc-1",
				Kind:       ledger.DeferredIssue,
				Gross:      ledger.MustMoney("50.00"),
				Instrument: &ledger.InstrumentRef{Kind: ledger.InstrumentGiftCard, ID: "GC-100"},
				Payments:   []ledger.PaymentLine{{Method: ledger.LabelCard, Amount: ledger.MustMoney("50.00")}},
				OccurredAt: day(1),
				Memo:       "gift card purchased at register",
			},
			{
				ID:         "gc-2",
				Kind:       ledger.DeferredRedemption,
				Gross:      ledger.MustMoney("20.00"),
				Instrument: &ledger.InstrumentRef{Kind: ledger.InstrumentGiftCard, ID: "GC-100"},
				OccurredAt: day(8),
				Memo:       "merchandise paid with gift card",
			},
			{
				ID:         "gc-3",
				Kind:       ledger.DeferredIssue,
				Gross:      ledger.MustMoney("50.00"),
				Instrument: &ledger.InstrumentRef{Kind: ledger.InstrumentGiftCard, ID: "GC-101"},
				Payments:   []ledger.PaymentLine{{Method: ledger.LabelCash, Amount: ledger.MustMoney("50.00")}},
				OccurredAt: day(9),
			},
			{
				ID:         "gc-4",
				Kind:       ledger.DeferredRefundOfIssue,
				Gross:      ledger.MustMoney("50.00"),
				Instrument: &ledger.InstrumentRef{Kind: ledger.InstrumentGiftCard, ID: "GC-101"},
				Payments:   []ledger.PaymentLine{{Method: ledger.LabelCash, Amount: ledger.MustMoney("-50.00")}},
				OccurredAt: day(10),
				Memo:       "unused card returned",
			},
		},
	}
}

// =============================================================================
// DEPOSIT - $100 down on a $1,000 catering order, fulfilled later
// =============================================================================

// DepositToFulfillment takes a $100 deposit against a $1,000 scheduled
// order. On the service date the full $1,000 is recognized as sales, the
// deposit closes, and the remaining $900 is collected.
func DepositToFulfillment() Scenario {
	return Scenario{
		ID:          "deposit",
		Name:        "Deposit Against Scheduled Order",
		Description: "A deposit is a liability until the order is fulfilled; fulfillment recognizes the full contract value and collects the remainder",
		Transactions: []ledger.Transaction{
			{
				ID:         "dep-1",
				Kind:       ledger.DeferredIssue,
				Gross:      ledger.MustMoney("100.00"),
				Instrument: &ledger.InstrumentRef{Kind: ledger.InstrumentDeposit, ID: "D-2001"},
				Payments:   []ledger.PaymentLine{{Method: ledger.LabelCard, Amount: ledger.MustMoney("100.00")}},
				OccurredAt: day(3),
				Memo:       "deposit on scheduled order",
			},
			{
				ID:            "dep-2",
				Kind:          ledger.RevenueRecognition,
				ContractValue: ledger.MustMoney("1000.00"),
				ClosedPortion: ledger.MustMoney("100.00"),
				Instrument:    &ledger.InstrumentRef{Kind: ledger.InstrumentDeposit, ID: "D-2001"},
				Payments:      []ledger.PaymentLine{{Method: ledger.LabelCard, Amount: ledger.MustMoney("900.00")}},
				SalesLabel:    ledger.LabelCateringSales,
				OccurredAt:    day(20),
				Memo:          "order fulfilled, remainder collected",
			},
		},
	}
}

// =============================================================================
// INVOICE - Installments, a correction, and final settlement
// =============================================================================

// InvoiceInstallments collects a $1,200 invoice in two $300 installments,
// refunds one that was keyed twice, re-collects it, and settles the rest
// on delivery.
func InvoiceInstallments() Scenario {
	inv := &ledger.InstrumentRef{Kind: ledger.InstrumentInvoice, ID: "INV-340"}
	return Scenario{
		ID:          "invoice",
		Name:        "Partial Invoice Payments",
		Description: "Installments accumulate as deferred liability; the invoice is earned only when the work is delivered",
		Transactions: []ledger.Transaction{
			{
				ID:         "inv-1",
				Kind:       ledger.PartialPayment,
				Gross:      ledger.MustMoney("300.00"),
				Instrument: inv,
				Payments:   []ledger.PaymentLine{{Method: ledger.LabelCheck, Amount: ledger.MustMoney("300.00")}},
				OccurredAt: day(2),
			},
			{
				ID:         "inv-2",
				Kind:       ledger.PartialPayment,
				Gross:      ledger.MustMoney("300.00"),
				Instrument: inv,
				Payments:   []ledger.PaymentLine{{Method: ledger.LabelCheck, Amount: ledger.MustMoney("300.00")}},
				OccurredAt: day(2),
				Memo:       "duplicate keying of installment",
			},
			{
				ID:         "inv-3",
				Kind:       ledger.PartialPaymentRefund,
				Gross:      ledger.MustMoney("300.00"),
				Instrument: inv,
				Payments:   []ledger.PaymentLine{{Method: ledger.LabelCheck, Amount: ledger.MustMoney("-300.00")}},
				OccurredAt: day(4),
				Memo:       "reversal of duplicate installment",
			},
			{
				ID:         "inv-4",
				Kind:       ledger.PartialPayment,
				Gross:      ledger.MustMoney("300.00"),
				Instrument: inv,
				Payments:   []ledger.PaymentLine{{Method: ledger.LabelCard, Amount: ledger.MustMoney("300.00")}},
				OccurredAt: day(15),
			},
			{
				ID:            "inv-5",
				Kind:          ledger.RevenueRecognition,
				ContractValue: ledger.MustMoney("1200.00"),
				ClosedPortion: ledger.MustMoney("600.00"),
				Instrument:    inv,
				Payments:      []ledger.PaymentLine{{Method: ledger.LabelCard, Amount: ledger.MustMoney("600.00")}},
				OccurredAt:    day(28),
				Memo:          "work delivered, invoice settled",
			},
		},
	}
}

// =============================================================================
// CATERING - Paid fully in advance, earned on the service date
// =============================================================================

// CateringPaidInAdvance collects the entire $750 weeks early. Nothing is
// earned until the event; on the service date the liability converts to
// sales with no new money moving.
func CateringPaidInAdvance() Scenario {
	order := &ledger.InstrumentRef{Kind: ledger.InstrumentOnlineAdvanceOrder, ID: "SO-77"}
	return Scenario{
		ID:          "catering-advance",
		Name:        "Catering Paid In Advance",
		Description: "Full prepayment sits as deferred sales until the service date, then recognizes with zero net payments",
		Transactions: []ledger.Transaction{
			{
				ID:         "cat-1",
				Kind:       ledger.DeferredIssue,
				Gross:      ledger.MustMoney("750.00"),
				Instrument: order,
				Payments:   []ledger.PaymentLine{{Method: ledger.LabelCard, Amount: ledger.MustMoney("750.00")}},
				OccurredAt: day(5),
				Memo:       "online catering order, prepaid",
			},
			{
				ID:            "cat-2",
				Kind:          ledger.RevenueRecognition,
				ContractValue: ledger.MustMoney("750.00"),
				ClosedPortion: ledger.MustMoney("750.00"),
				Instrument:    order,
				SalesLabel:    ledger.LabelCateringSales,
				OccurredAt:    day(26),
				Memo:          "event served",
			},
		},
	}
}
