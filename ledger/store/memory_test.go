package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/warp/revenue-engine/ledger"
	"github.com/warp/revenue-engine/ledger/store"
)

func issueTx(id, cardID string) ledger.Transaction {
	return ledger.Transaction{
		ID:         ledger.TransactionID(id),
		Kind:       ledger.DeferredIssue,
		Gross:      ledger.MustMoney("50.00"),
		Instrument: &ledger.InstrumentRef{Kind: ledger.InstrumentGiftCard, ID: cardID},
	}
}

func TestMemory_AppendLoadExists(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	if err := m.Append(ctx, issueTx("m-1", "GC-1")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := m.Append(ctx, issueTx("m-2", "GC-2")); err != nil {
		t.Fatalf("append: %v", err)
	}

	ok, err := m.Exists(ctx, "m-1")
	if err != nil || !ok {
		t.Errorf("Exists(m-1) = %v, %v", ok, err)
	}
	ok, _ = m.Exists(ctx, "m-3")
	if ok {
		t.Errorf("Exists(m-3) should be false")
	}

	byKey, err := m.Load(ctx, ledger.AccountKey{Kind: ledger.InstrumentGiftCard, ID: "GC-1"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(byKey) != 1 || byKey[0].ID != "m-1" {
		t.Errorf("Load(GC-1) = %v", byKey)
	}

	all, err := m.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("LoadAll returned %d transactions, want 2", len(all))
	}
}

func TestMemory_DuplicateRejected(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	if err := m.Append(ctx, issueTx("m-1", "GC-1")); err != nil {
		t.Fatalf("append: %v", err)
	}
	err := m.Append(ctx, issueTx("m-1", "GC-1"))
	if !errors.Is(err, ledger.ErrDuplicateTransaction) {
		t.Fatalf("err = %v, want ErrDuplicateTransaction", err)
	}
}

func TestMemory_SatisfiesStoreInterface(t *testing.T) {
	var _ ledger.Store = store.NewMemory()
}
