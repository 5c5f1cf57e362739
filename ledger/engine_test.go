package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/warp/revenue-engine/ledger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func money(s string) ledger.Money { return ledger.MustMoney(s) }

func giftCard(id string) *ledger.InstrumentRef {
	return &ledger.InstrumentRef{Kind: ledger.InstrumentGiftCard, ID: id}
}

func deposit(id string) *ledger.InstrumentRef {
	return &ledger.InstrumentRef{Kind: ledger.InstrumentDeposit, ID: id}
}

func invoice(id string) *ledger.InstrumentRef {
	return &ledger.InstrumentRef{Kind: ledger.InstrumentInvoice, ID: id}
}

var txSeq int

func nextID() ledger.TransactionID {
	txSeq++
	return ledger.TransactionID(fmt.Sprintf("tx-%d", txSeq))
}

func issue(ref *ledger.InstrumentRef, amount string) ledger.Transaction {
	return ledger.Transaction{
		ID: nextID(), Kind: ledger.DeferredIssue, Gross: money(amount),
		Instrument: ref, OccurredAt: time.Now(),
	}
}

func mustApply(t *testing.T, e *ledger.RecognitionEngine, tx ledger.Transaction) ledger.LedgerSnapshot {
	t.Helper()
	snap, err := e.Apply(context.Background(), tx)
	if err != nil {
		t.Fatalf("apply %s: unexpected error: %v", tx.ID, err)
	}
	return snap
}

func assertTotals(t *testing.T, snap ledger.LedgerSnapshot, sales, deferred, payments string) {
	t.Helper()
	if got := snap.Sales.Total; !got.Equal(money(sales)) {
		t.Errorf("Sales.Total = %s, want %s", got, sales)
	}
	if got := snap.Deferred.Total; !got.Equal(money(deferred)) {
		t.Errorf("Deferred.Total = %s, want %s", got, deferred)
	}
	if got := snap.Payments.Total; !got.Equal(money(payments)) {
		t.Errorf("Payments.Total = %s, want %s", got, payments)
	}
	if !snap.Balanced() {
		t.Errorf("snapshot violates Sales + Deferred == Payments")
	}
}

func assertBalance(t *testing.T, e *ledger.RecognitionEngine, ref *ledger.InstrumentRef, want string) {
	t.Helper()
	view, ok := e.GetAccount(ref.Kind, ref.ID)
	if !ok {
		t.Fatalf("account %s %s not found", ref.Kind, ref.ID)
	}
	if !view.Balance.Equal(money(want)) {
		t.Errorf("balance(%s) = %s, want %s", ref.ID, view.Balance, want)
	}
}

// =============================================================================
// DIRECT SALES - No deferral involved
// =============================================================================

func TestApply_DirectSale_RecognizedImmediately(t *testing.T) {
	// GIVEN: A fresh engine
	// WHEN: A same-day paid sale for 25.00 is applied
	// THEN: Sales and Payments both show +25.00, nothing is deferred,
	//       and no account is created

	e := ledger.NewEngine()
	snap := mustApply(t, e, ledger.Transaction{
		ID: nextID(), Kind: ledger.DirectSale, Gross: money("25.00"),
	})

	assertTotals(t, snap, "25.00", "0.00", "25.00")
	if got := len(e.Accounts()); got != 0 {
		t.Errorf("direct sale created %d accounts, want 0", got)
	}
}

func TestApply_DirectRefund_MirrorsSaleNegated(t *testing.T) {
	e := ledger.NewEngine()
	snap := mustApply(t, e, ledger.Transaction{
		ID: nextID(), Kind: ledger.DirectRefund, Gross: money("25.00"),
	})
	assertTotals(t, snap, "-25.00", "0.00", "-25.00")
}

// =============================================================================
// GIFT CARD - Issue, redemption, refund
// =============================================================================

func TestApply_GiftCardIssue_DefersFullAmount(t *testing.T) {
	// GIVEN: A fresh engine
	// WHEN: A 50.00 gift card is sold
	// THEN: Nothing is earned yet; the full 50.00 sits in Deferred Sales
	//       and the card's balance is 50.00

	e := ledger.NewEngine()
	gc := giftCard("GC1")

	snap := mustApply(t, e, issue(gc, "50.00"))

	assertTotals(t, snap, "0.00", "50.00", "50.00")
	assertBalance(t, e, gc, "50.00")

	if got := snap.Deferred.LineAmount(ledger.LabelGiftCardSales); !got.Equal(money("50.00")) {
		t.Errorf("gift card sales line = %s, want 50.00", got)
	}
}

func TestApply_GiftCardRefund_ReversesLiability(t *testing.T) {
	// GIVEN: A gift card with 50.00 outstanding
	// WHEN: The full card is refunded
	// THEN: Deferred and Payments both show -50.00 and balance drops to 0

	e := ledger.NewEngine()
	gc := giftCard("GC1")
	mustApply(t, e, issue(gc, "50.00"))

	snap := mustApply(t, e, ledger.Transaction{
		ID: nextID(), Kind: ledger.DeferredRefundOfIssue, Gross: money("50.00"), Instrument: gc,
	})

	assertTotals(t, snap, "0.00", "-50.00", "-50.00")
	assertBalance(t, e, gc, "0.00")

	view, _ := e.GetAccount(gc.Kind, gc.ID)
	if view.Status != ledger.AccountClosed {
		t.Errorf("status = %s, want closed", view.Status)
	}
}

func TestApply_RefundAfterClosed_FailsWithOverRefund(t *testing.T) {
	// GIVEN: A gift card refunded down to balance 0
	// WHEN: A further 10.00 refund is attempted
	// THEN: It fails with ErrOverRefund and the account is unchanged

	e := ledger.NewEngine()
	gc := giftCard("GC1")
	mustApply(t, e, issue(gc, "50.00"))
	mustApply(t, e, ledger.Transaction{
		ID: nextID(), Kind: ledger.DeferredRefundOfIssue, Gross: money("50.00"), Instrument: gc,
	})

	_, err := e.Apply(context.Background(), ledger.Transaction{
		ID: nextID(), Kind: ledger.DeferredRefundOfIssue, Gross: money("10.00"), Instrument: gc,
	})

	if !errors.Is(err, ledger.ErrOverRefund) {
		t.Fatalf("err = %v, want ErrOverRefund", err)
	}
	var be *ledger.BalanceError
	if !errors.As(err, &be) {
		t.Fatalf("err should carry BalanceError context")
	}
	if !be.Available.Equal(money("0.00")) || !be.Requested.Equal(money("10.00")) {
		t.Errorf("BalanceError = available %s requested %s", be.Available, be.Requested)
	}
	assertBalance(t, e, gc, "0.00")
}

func TestApply_GiftCardRedemption_PaymentsOnlyPolicy(t *testing.T) {
	// GIVEN: A 50.00 gift card (gift cards default to PaymentsOnly)
	// WHEN: 20.00 of merchandise is paid with the card
	// THEN: Sales +20.00, no deferred contra line, Payments shows the
	//       tender under the gift-card payment label, balance drops to 30

	e := ledger.NewEngine()
	gc := giftCard("GC1")
	mustApply(t, e, issue(gc, "50.00"))

	snap := mustApply(t, e, ledger.Transaction{
		ID: nextID(), Kind: ledger.DeferredRedemption, Gross: money("20.00"), Instrument: gc,
	})

	assertTotals(t, snap, "20.00", "0.00", "20.00")
	if got := snap.Payments.LineAmount(ledger.LabelGiftCardPayment); !got.Equal(money("20.00")) {
		t.Errorf("gift card payment line = %s, want 20.00", got)
	}
	assertBalance(t, e, gc, "30.00")
}

func TestApply_Redemption_DeferredContraPolicy(t *testing.T) {
	// GIVEN: A gift card engine configured for the contra presentation
	// WHEN: 20.00 is redeemed
	// THEN: The closure shows as a negative Deferred Sales line and
	//       Payments carries no tender line; the balance moves identically

	e := ledger.NewEngine(ledger.WithPolicies(ledger.PolicySet{
		ledger.InstrumentGiftCard: ledger.PolicyDeferredContra,
	}))
	gc := giftCard("GC1")
	mustApply(t, e, issue(gc, "50.00"))

	snap := mustApply(t, e, ledger.Transaction{
		ID: nextID(), Kind: ledger.DeferredRedemption, Gross: money("20.00"), Instrument: gc,
	})

	assertTotals(t, snap, "20.00", "-20.00", "0.00")
	assertBalance(t, e, gc, "30.00")
}

func TestApply_RedemptionBeyondBalance_Fails(t *testing.T) {
	e := ledger.NewEngine()
	gc := giftCard("GC1")
	mustApply(t, e, issue(gc, "50.00"))

	_, err := e.Apply(context.Background(), ledger.Transaction{
		ID: nextID(), Kind: ledger.DeferredRedemption, Gross: money("60.00"), Instrument: gc,
	})
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	assertBalance(t, e, gc, "50.00")
}

// =============================================================================
// DEPOSIT - Down payment closed at fulfillment
// =============================================================================

func TestApply_DepositThenFulfillment_ContraPresentation(t *testing.T) {
	// GIVEN: A 100.00 deposit against a 1000.00 scheduled order
	//        (deposits default to DeferredContra)
	// WHEN: The order is fulfilled and the remaining 900.00 collected
	// THEN: Sales +1000.00, Deferred -100.00, Payments +900.00, balance 0

	e := ledger.NewEngine()
	d := deposit("D1")

	first := mustApply(t, e, issue(d, "100.00"))
	assertTotals(t, first, "0.00", "100.00", "100.00")
	assertBalance(t, e, d, "100.00")

	second := mustApply(t, e, ledger.Transaction{
		ID: nextID(), Kind: ledger.RevenueRecognition,
		ContractValue: money("1000.00"), ClosedPortion: money("100.00"),
		Instrument: d,
	})

	assertTotals(t, second, "1000.00", "-100.00", "900.00")
	assertBalance(t, e, d, "0.00")
}

func TestApply_DepositFulfillment_PaymentsOnlyPresentation(t *testing.T) {
	// GIVEN: The same deposit flow under the PaymentsOnly policy
	// THEN: The deposit closure shows inside Payments instead, and
	//       Payments.Total equals the full contract value

	e := ledger.NewEngine(ledger.WithPolicies(ledger.PolicySet{
		ledger.InstrumentDeposit: ledger.PolicyPaymentsOnly,
	}))
	d := deposit("D1")
	mustApply(t, e, issue(d, "100.00"))

	snap := mustApply(t, e, ledger.Transaction{
		ID: nextID(), Kind: ledger.RevenueRecognition,
		ContractValue: money("1000.00"), ClosedPortion: money("100.00"),
		Instrument: d,
	})

	assertTotals(t, snap, "1000.00", "0.00", "1000.00")
	if got := snap.Payments.LineAmount(ledger.LabelDepositRedeemed); !got.Equal(money("100.00")) {
		t.Errorf("deposit redeemed line = %s, want 100.00", got)
	}
	assertBalance(t, e, d, "0.00")
}

func TestApply_PartialRecognition_LeavesRemainder(t *testing.T) {
	// GIVEN: 500.00 of deferred deposits
	// WHEN: A recognition closes only 200.00 of it
	// THEN: The account stays open with 300.00 outstanding

	e := ledger.NewEngine()
	d := deposit("D1")
	mustApply(t, e, issue(d, "500.00"))

	mustApply(t, e, ledger.Transaction{
		ID: nextID(), Kind: ledger.RevenueRecognition,
		ContractValue: money("200.00"), ClosedPortion: money("200.00"),
		Instrument: d,
	})

	assertBalance(t, e, d, "300.00")
	view, _ := e.GetAccount(d.Kind, d.ID)
	if view.Status != ledger.AccountOpen {
		t.Errorf("status = %s, want open", view.Status)
	}
}

func TestApply_OverRecognition_Fails(t *testing.T) {
	// GIVEN: A deposit holding 100.00
	// WHEN: A recognition tries to close 150.00 of deferred balance
	// THEN: It fails with ErrOverRecognition and nothing moves

	e := ledger.NewEngine()
	d := deposit("D1")
	mustApply(t, e, issue(d, "100.00"))

	_, err := e.Apply(context.Background(), ledger.Transaction{
		ID: nextID(), Kind: ledger.RevenueRecognition,
		ContractValue: money("1000.00"), ClosedPortion: money("150.00"),
		Instrument: d,
	})
	if !errors.Is(err, ledger.ErrOverRecognition) {
		t.Fatalf("err = %v, want ErrOverRecognition", err)
	}
	assertBalance(t, e, d, "100.00")
}

// =============================================================================
// INVOICE INSTALLMENTS - Collections without recognition
// =============================================================================

func TestApply_PartialPaymentAndRefund_NetToZero(t *testing.T) {
	// GIVEN: An invoice collecting a 100.00 installment
	// WHEN: The installment is refunded in full
	// THEN: The balance nets to 0 and no sales were recognized in either step

	e := ledger.NewEngine()
	inv := invoice("I1")

	first := mustApply(t, e, ledger.Transaction{
		ID: nextID(), Kind: ledger.PartialPayment, Gross: money("100.00"), Instrument: inv,
	})
	second := mustApply(t, e, ledger.Transaction{
		ID: nextID(), Kind: ledger.PartialPaymentRefund, Gross: money("100.00"), Instrument: inv,
	})

	assertBalance(t, e, inv, "0.00")
	combinedSales := first.Sales.Total.Add(second.Sales.Total)
	if !combinedSales.IsZero() {
		t.Errorf("combined Sales.Total = %s, want 0.00", combinedSales)
	}
}

func TestApply_PartialPaymentRefund_BoundChecked(t *testing.T) {
	e := ledger.NewEngine()
	inv := invoice("I1")
	mustApply(t, e, ledger.Transaction{
		ID: nextID(), Kind: ledger.PartialPayment, Gross: money("100.00"), Instrument: inv,
	})

	_, err := e.Apply(context.Background(), ledger.Transaction{
		ID: nextID(), Kind: ledger.PartialPaymentRefund, Gross: money("100.01"), Instrument: inv,
	})
	if !errors.Is(err, ledger.ErrOverRefund) {
		t.Fatalf("err = %v, want ErrOverRefund", err)
	}
}

// =============================================================================
// GUARDS AND VALIDATION
// =============================================================================

func TestApply_UnknownInstrument_Rejected(t *testing.T) {
	// GIVEN: A fresh engine with no accounts
	// WHEN: A redemption references a never-issued gift card
	// THEN: ErrUnknownInstrument, and no account is created as a side effect

	e := ledger.NewEngine()
	_, err := e.Apply(context.Background(), ledger.Transaction{
		ID: nextID(), Kind: ledger.DeferredRedemption, Gross: money("10.00"),
		Instrument: giftCard("NEVER-ISSUED"),
	})
	if !errors.Is(err, ledger.ErrUnknownInstrument) {
		t.Fatalf("err = %v, want ErrUnknownInstrument", err)
	}
	if len(e.Accounts()) != 0 {
		t.Errorf("failed lookup created an account")
	}
}

func TestApply_DuplicateTransaction_RejectedWithoutStateChange(t *testing.T) {
	// GIVEN: A 50.00 gift card issue already applied
	// WHEN: The identical transaction is submitted again
	// THEN: ErrDuplicateTransaction, and the balance did not double

	e := ledger.NewEngine()
	gc := giftCard("GC1")
	tx := issue(gc, "50.00")
	mustApply(t, e, tx)

	_, err := e.Apply(context.Background(), tx)
	if !errors.Is(err, ledger.ErrDuplicateTransaction) {
		t.Fatalf("err = %v, want ErrDuplicateTransaction", err)
	}
	assertBalance(t, e, gc, "50.00")
}

func TestApply_ConcurrentSameID_AppliedExactlyOnce(t *testing.T) {
	// GIVEN: The same transaction id racing in against two different
	//        instruments, which hold two different serialization locks
	// WHEN: Both applies run concurrently
	// THEN: Exactly one commits; the loser sees ErrDuplicateTransaction
	//       and only one account carries the money

	for i := 0; i < 25; i++ {
		e := ledger.NewEngine()
		id := ledger.TransactionID(fmt.Sprintf("race-%d", i))

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				gc := giftCard(fmt.Sprintf("GC-RACE-%d-%d", i, j))
				_, errs[j] = e.Apply(context.Background(), ledger.Transaction{
					ID: id, Kind: ledger.DeferredIssue, Gross: money("50.00"), Instrument: gc,
				})
			}(j)
		}
		wg.Wait()

		var applied, dups int
		for _, err := range errs {
			switch {
			case err == nil:
				applied++
			case errors.Is(err, ledger.ErrDuplicateTransaction):
				dups++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if applied != 1 || dups != 1 {
			t.Fatalf("id applied %d times with %d duplicates, want exactly one of each", applied, dups)
		}

		total := ledger.Zero
		for _, v := range e.Accounts() {
			total = total.Add(v.Balance)
		}
		if !total.Equal(money("50.00")) {
			t.Fatalf("total issued = %s, want 50.00", total)
		}
	}
}

func TestApply_FailedTransactionIDReusable(t *testing.T) {
	// GIVEN: A redemption rejected for insufficient balance
	// WHEN: The same id is resubmitted with a valid amount
	// THEN: It applies; a failed attempt does not burn the id

	e := ledger.NewEngine()
	gc := giftCard("GC1")
	mustApply(t, e, issue(gc, "50.00"))

	tx := ledger.Transaction{
		ID: "retry-1", Kind: ledger.DeferredRedemption, Gross: money("60.00"), Instrument: gc,
	}
	if _, err := e.Apply(context.Background(), tx); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}

	tx.Gross = money("20.00")
	mustApply(t, e, tx)
	assertBalance(t, e, gc, "30.00")
}

func TestApply_ShapeValidation(t *testing.T) {
	e := ledger.NewEngine()
	ctx := context.Background()

	tests := []struct {
		name string
		tx   ledger.Transaction
		want error
	}{
		{
			name: "missing id",
			tx:   ledger.Transaction{Kind: ledger.DirectSale, Gross: money("1.00")},
			want: ledger.ErrInvalidTransaction,
		},
		{
			name: "deferred kind without instrument",
			tx:   ledger.Transaction{ID: "v-1", Kind: ledger.DeferredIssue, Gross: money("1.00")},
			want: ledger.ErrInvalidTransaction,
		},
		{
			name: "direct sale with instrument",
			tx: ledger.Transaction{ID: "v-2", Kind: ledger.DirectSale, Gross: money("1.00"),
				Instrument: giftCard("GC9")},
			want: ledger.ErrInvalidTransaction,
		},
		{
			name: "negative gross",
			tx:   ledger.Transaction{ID: "v-3", Kind: ledger.DirectSale, Gross: money("-1.00")},
			want: ledger.ErrInvalidTransaction,
		},
		{
			name: "closed portion above contract value",
			tx: ledger.Transaction{ID: "v-4", Kind: ledger.RevenueRecognition,
				ContractValue: money("100.00"), ClosedPortion: money("150.00"),
				Instrument: deposit("D9")},
			want: ledger.ErrInvalidTransaction,
		},
		{
			name: "breakdown does not sum",
			tx: ledger.Transaction{ID: "v-5", Kind: ledger.DeferredIssue, Gross: money("50.00"),
				Instrument: giftCard("GC9"),
				Payments:   []ledger.PaymentLine{{Method: ledger.LabelCard, Amount: money("49.00")}}},
			want: ledger.ErrUnbalancedPayments,
		},
		{
			name: "stored-value tender in breakdown",
			tx: ledger.Transaction{ID: "v-6", Kind: ledger.DeferredIssue, Gross: money("50.00"),
				Instrument: giftCard("GC9"),
				Payments:   []ledger.PaymentLine{{Method: ledger.LabelGiftCardPayment, Amount: money("50.00")}}},
			want: ledger.ErrInvalidTransaction,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Apply(ctx, tc.tx)
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

// =============================================================================
// BALANCE LAW - Deferred deltas are exactly the balance deltas
// =============================================================================

func TestApply_BalanceTracksDeferredDeltas(t *testing.T) {
	// GIVEN: An engine using the contra presentation everywhere
	//        (the presentation under which the delta law is exact)
	// WHEN: A mixed sequence of issues, payments, redemptions, and
	//       recognitions is applied
	// THEN: After every step, balance == sum of Deferred.Total so far

	e := ledger.NewEngine(ledger.WithPolicies(ledger.PolicySet{
		ledger.InstrumentGiftCard: ledger.PolicyDeferredContra,
		ledger.InstrumentDeposit:  ledger.PolicyDeferredContra,
	}))
	gc := giftCard("GC-LAW")

	steps := []ledger.Transaction{
		issue(gc, "50.00"),
		{ID: nextID(), Kind: ledger.DeferredRedemption, Gross: money("15.00"), Instrument: gc},
		issue(gc, "25.00"),
		{ID: nextID(), Kind: ledger.DeferredRefundOfIssue, Gross: money("10.00"), Instrument: gc},
		{ID: nextID(), Kind: ledger.DeferredRedemption, Gross: money("50.00"), Instrument: gc},
	}

	running := ledger.Zero
	for _, tx := range steps {
		snap := mustApply(t, e, tx)
		running = running.Add(snap.Deferred.Total)

		view, _ := e.GetAccount(gc.Kind, gc.ID)
		if !view.Balance.Equal(running) {
			t.Fatalf("after %s: balance %s != deferred running sum %s", tx.ID, view.Balance, running)
		}
	}
	if !running.IsZero() {
		t.Errorf("sequence should end fully drawn down, got %s", running)
	}
}

// =============================================================================
// CONCURRENCY - Unrelated instruments proceed in parallel
// =============================================================================

func TestApply_ConcurrentInstruments_NoInterference(t *testing.T) {
	// GIVEN: 50 distinct gift cards
	// WHEN: Each is issued and partially redeemed from its own goroutine
	// THEN: Every card ends at exactly its own expected balance

	e := ledger.NewEngine()
	const cards = 50

	var wg sync.WaitGroup
	for i := 0; i < cards; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			gc := giftCard(fmt.Sprintf("GC-%d", i))
			ctx := context.Background()

			_, err := e.Apply(ctx, ledger.Transaction{
				ID: ledger.TransactionID(fmt.Sprintf("c-issue-%d", i)),
				Kind: ledger.DeferredIssue, Gross: money("100.00"), Instrument: gc,
			})
			if err != nil {
				t.Errorf("issue %d: %v", i, err)
				return
			}
			_, err = e.Apply(ctx, ledger.Transaction{
				ID: ledger.TransactionID(fmt.Sprintf("c-redeem-%d", i)),
				Kind: ledger.DeferredRedemption, Gross: money("40.00"), Instrument: gc,
			})
			if err != nil {
				t.Errorf("redeem %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < cards; i++ {
		view, ok := e.GetAccount(ledger.InstrumentGiftCard, fmt.Sprintf("GC-%d", i))
		if !ok {
			t.Fatalf("card %d missing", i)
		}
		if !view.Balance.Equal(money("60.00")) {
			t.Errorf("card %d balance = %s, want 60.00", i, view.Balance)
		}
	}

	if err := e.ReconcileAll(); err != nil {
		t.Errorf("post-concurrency reconcile: %v", err)
	}
}
