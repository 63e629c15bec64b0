package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"stockledger/internal/domain"
)

// Competing reservations for the same pair: the subset that fits succeeds,
// everyone else gets a clean shortfall, and available stock never goes
// negative.
func TestConcurrentReservesNeverOversell(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.stockIn(t, "wh-1", "prd-a", 10)
	wh := map[string][]string{"prd-a": {"wh-1"}}

	const workers = 8
	const qty = 3

	orderIDs := make([]string, workers)
	for i := 0; i < workers; i++ {
		o := makeOrder("prd-a", qty, 10.00)
		if err := e.fulfillment.Intake(o, "api", fmt.Sprintf("corr-%d", i)); err != nil {
			t.Fatal(err)
		}
		orderIDs[i] = o.ID
	}

	results := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = e.fulfillment.Reserve(ctx, orderIDs[i], wh, "api", fmt.Sprintf("corr-%d", i))
		}(i)
	}
	wg.Wait()

	var won int
	for i, err := range results {
		if err == nil {
			won++
			continue
		}
		var insufficient *domain.InsufficientStockError
		if !errors.As(err, &insufficient) {
			t.Fatalf("worker %d: unexpected error %v", i, err)
		}
	}

	if won != 10/qty {
		t.Fatalf("%d reservations won, want %d", won, 10/qty)
	}

	lvl := e.level(t, "wh-1", "prd-a")
	if lvl.OnHand != 10 || lvl.Reserved != won*qty {
		t.Fatalf("projection = %+v, want on_hand 10 reserved %d", lvl, won*qty)
	}
	if lvl.Available < 0 {
		t.Fatalf("available went negative: %d", lvl.Available)
	}

	if err := e.projector.Verify("wh-1", "prd-a"); err != nil {
		t.Fatalf("projection drifted under contention: %v", err)
	}
}

// Concurrent retries of the same payment confirmation must convert each
// hold exactly once.
func TestConcurrentPaymentConfirmationsConvertOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.stockIn(t, "wh-1", "prd-a", 10)

	o := makeOrder("prd-a", 4, 10.00)
	if err := e.fulfillment.Intake(o, "api", "c"); err != nil {
		t.Fatal(err)
	}
	if err := e.fulfillment.Reserve(ctx, o.ID, map[string][]string{"prd-a": {"wh-1"}}, "api", "c"); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	results := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := &domain.Payment{ID: "pay-1", Amount: 40.00, Method: "card"}
			results[i] = e.fulfillment.ConfirmPayment(ctx, o.ID, p, "gateway", "c")
		}(i)
	}
	wg.Wait()

	for i, err := range results {
		var transition *domain.InvalidTransitionError
		if err != nil && !errors.As(err, &transition) {
			t.Fatalf("confirm %d: unexpected error %v", i, err)
		}
	}

	// Exactly one hold, one release and one outbound regardless of how the
	// retries interleaved.
	movements, err := e.ledgerRepo.ListByRef(domain.RefOrder, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	counts := map[domain.MovementKind]int{}
	for _, m := range movements {
		counts[m.Kind]++
	}
	if counts[domain.MovementHold] != 1 || counts[domain.MovementRelease] != 1 || counts[domain.MovementOutbound] != 1 {
		t.Fatalf("movement counts = %v, want one hold, one release, one outbound", counts)
	}

	lvl := e.level(t, "wh-1", "prd-a")
	if lvl.OnHand != 6 || lvl.Reserved != 0 {
		t.Fatalf("projection = %+v, want on_hand 6 reserved 0", lvl)
	}
}

// Distinct payment attempts racing for the same order: only one may settle
// it. The losers' completed rows must never reach the database.
func TestConcurrentDistinctPaymentsSettleOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.stockIn(t, "wh-1", "prd-a", 10)

	o := makeOrder("prd-a", 4, 10.00)
	if err := e.fulfillment.Intake(o, "api", "c"); err != nil {
		t.Fatal(err)
	}
	if err := e.fulfillment.Reserve(ctx, o.ID, map[string][]string{"prd-a": {"wh-1"}}, "api", "c"); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	results := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := &domain.Payment{ID: fmt.Sprintf("pay-%d", i), Amount: 40.00, Method: "card"}
			results[i] = e.fulfillment.ConfirmPayment(ctx, o.ID, p, "gateway", "c")
		}(i)
	}
	wg.Wait()

	var settled int
	for i, err := range results {
		if err == nil {
			settled++
			continue
		}
		var transition *domain.InvalidTransitionError
		if !errors.As(err, &transition) {
			t.Fatalf("confirm %d: unexpected error %v", i, err)
		}
	}
	if settled != 1 {
		t.Fatalf("%d payments settled the order, want exactly 1", settled)
	}

	payments, err := e.orders.PaymentsFor(o.ID)
	if err != nil {
		t.Fatal(err)
	}
	var completed int
	for _, p := range payments {
		if p.Status == domain.PaymentStateCompleted {
			completed++
		}
	}
	if completed != 1 {
		t.Fatalf("%d completed payment rows, want exactly 1", completed)
	}

	got, err := e.fulfillment.Get(o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.OrderProcessing || got.PaymentStatus != domain.PaymentPaid {
		t.Fatalf("order = %s/%s, want processing/paid", got.Status, got.PaymentStatus)
	}

	lvl := e.level(t, "wh-1", "prd-a")
	if lvl.OnHand != 6 || lvl.Reserved != 0 {
		t.Fatalf("projection = %+v, want on_hand 6 reserved 0", lvl)
	}
}
