package services_test

import (
	"errors"
	"testing"

	"stockledger/internal/domain"
)

func TestAppendRejectsInvalidRecords(t *testing.T) {
	e := newEnv(t)

	cases := []struct {
		name string
		m    *domain.MovementRecord
	}{
		{"zero delta", &domain.MovementRecord{
			WarehouseID: "wh-1", ProductID: "prd-a", Delta: 0,
			Kind: domain.MovementInbound, RefKind: domain.RefPurchaseOrder, RefID: "po-1",
		}},
		{"unknown kind", &domain.MovementRecord{
			WarehouseID: "wh-1", ProductID: "prd-a", Delta: 1,
			Kind: "teleport", RefKind: domain.RefManual, RefID: "m-1",
		}},
		{"missing reference", &domain.MovementRecord{
			WarehouseID: "wh-1", ProductID: "prd-a", Delta: -1,
			Kind: domain.MovementOutbound,
		}},
		{"unknown warehouse", &domain.MovementRecord{
			WarehouseID: "wh-nope", ProductID: "prd-a", Delta: 1,
			Kind: domain.MovementInbound, RefKind: domain.RefPurchaseOrder, RefID: "po-1",
		}},
		{"unknown product", &domain.MovementRecord{
			WarehouseID: "wh-1", ProductID: "prd-nope", Delta: 1,
			Kind: domain.MovementInbound, RefKind: domain.RefPurchaseOrder, RefID: "po-1",
		}},
	}
	for _, tc := range cases {
		if _, err := e.ledger.Append(tc.m); !errors.Is(err, domain.ErrInvalidMovement) {
			t.Errorf("%s: want ErrInvalidMovement, got %v", tc.name, err)
		}
	}

	max, err := e.ledgerRepo.MaxSeq()
	if err != nil {
		t.Fatal(err)
	}
	if max != 0 {
		t.Fatalf("rejected records must not be stored, ledger has seq %d", max)
	}
}

func TestAppendIsIdempotentPerKey(t *testing.T) {
	e := newEnv(t)

	first := &domain.MovementRecord{
		WarehouseID: "wh-1", ProductID: "prd-a", Delta: 10,
		Kind: domain.MovementInbound, RefKind: domain.RefPurchaseOrder, RefID: "po-7",
		Actor: "test", IdemKey: "po-7:receive",
	}
	seq1, err := e.ledger.Append(first)
	if err != nil {
		t.Fatal(err)
	}

	retry := &domain.MovementRecord{
		WarehouseID: "wh-1", ProductID: "prd-a", Delta: 10,
		Kind: domain.MovementInbound, RefKind: domain.RefPurchaseOrder, RefID: "po-7",
		Actor: "test", IdemKey: "po-7:receive",
	}
	seq2, err := e.ledger.Append(retry)
	if err != nil {
		t.Fatal(err)
	}
	if seq1 != seq2 {
		t.Fatalf("duplicate key must return the original seq: %d vs %d", seq1, seq2)
	}

	lvl := e.level(t, "wh-1", "prd-a")
	if lvl.OnHand != 10 {
		t.Fatalf("projection applied twice: on_hand = %d, want 10", lvl.OnHand)
	}
}

func TestAppendRecordsAuditEntry(t *testing.T) {
	e := newEnv(t)
	e.stockIn(t, "wh-1", "prd-a", 5)

	entries, err := e.audit.EntriesFor(domain.EntityMovement, "1", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("want 1 audit entry for seq 1, got %d", len(entries))
	}
	if entries[0].Op != "append" || entries[0].Before != "" || entries[0].After == "" {
		t.Fatalf("unexpected audit entry: %+v", entries[0])
	}
}

func TestAdjustmentNeedsNoReference(t *testing.T) {
	e := newEnv(t)
	e.stockIn(t, "wh-1", "prd-a", 5)

	_, err := e.ledger.Append(&domain.MovementRecord{
		WarehouseID: "wh-1", ProductID: "prd-a", Delta: -2,
		Kind: domain.MovementAdjustment, Actor: "ops",
	})
	if err != nil {
		t.Fatal(err)
	}
	if lvl := e.level(t, "wh-1", "prd-a"); lvl.OnHand != 3 {
		t.Fatalf("on_hand = %d, want 3", lvl.OnHand)
	}

	// An adjustment that would push on-hand negative is refused.
	_, err = e.ledger.Append(&domain.MovementRecord{
		WarehouseID: "wh-1", ProductID: "prd-a", Delta: -10,
		Kind: domain.MovementAdjustment, Actor: "ops",
	})
	var insufficient *domain.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("want InsufficientStockError, got %v", err)
	}
	if lvl := e.level(t, "wh-1", "prd-a"); lvl.OnHand != 3 {
		t.Fatalf("failed adjustment changed stock: on_hand = %d", lvl.OnHand)
	}
}

func TestTransferMovesStockAtomically(t *testing.T) {
	e := newEnv(t)
	e.stockIn(t, "wh-1", "prd-a", 10)

	trID, err := e.ledger.Transfer("wh-1", "wh-2", "prd-a", 4, "ops")
	if err != nil {
		t.Fatal(err)
	}
	if lvl := e.level(t, "wh-1", "prd-a"); lvl.OnHand != 6 {
		t.Fatalf("source on_hand = %d, want 6", lvl.OnHand)
	}
	if lvl := e.level(t, "wh-2", "prd-a"); lvl.OnHand != 4 {
		t.Fatalf("destination on_hand = %d, want 4", lvl.OnHand)
	}

	linked, err := e.ledgerRepo.ListByRef(domain.RefTransfer, trID)
	if err != nil {
		t.Fatal(err)
	}
	if len(linked) != 2 {
		t.Fatalf("transfer must append a linked pair, got %d movements", len(linked))
	}
}

func TestTransferShortfallLeavesBothSidesUntouched(t *testing.T) {
	e := newEnv(t)
	e.stockIn(t, "wh-1", "prd-a", 3)

	_, err := e.ledger.Transfer("wh-1", "wh-2", "prd-a", 5, "ops")
	var insufficient *domain.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("want InsufficientStockError, got %v", err)
	}
	if lvl := e.level(t, "wh-1", "prd-a"); lvl.OnHand != 3 {
		t.Fatalf("source on_hand = %d, want 3", lvl.OnHand)
	}
	if lvl := e.level(t, "wh-2", "prd-a"); lvl.OnHand != 0 {
		t.Fatalf("destination on_hand = %d, want 0", lvl.OnHand)
	}

	if _, err := e.ledger.Transfer("wh-1", "wh-1", "prd-a", 1, "ops"); !errors.Is(err, domain.ErrInvalidMovement) {
		t.Fatalf("same-warehouse transfer: want ErrInvalidMovement, got %v", err)
	}
}

func TestListForIsRestartable(t *testing.T) {
	e := newEnv(t)
	for i := 0; i < 5; i++ {
		e.stockIn(t, "wh-1", "prd-a", i+1)
	}

	var all []domain.MovementRecord
	var since int64
	for {
		page, err := e.ledger.ListFor("wh-1", "prd-a", since, 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
		since = page[len(page)-1].Seq
	}

	if len(all) != 5 {
		t.Fatalf("paged read returned %d movements, want 5", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Seq <= all[i-1].Seq {
			t.Fatalf("movements out of append order at %d: %d after %d", i, all[i].Seq, all[i-1].Seq)
		}
	}
}
