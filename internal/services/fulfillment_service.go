package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"stockledger/internal/domain"
	"stockledger/internal/repos"
)

// FulfillmentService drives the order state machine and is the only
// caller that turns orders into stock movements. Reservation is
// all-or-nothing; committed conversions and cancellations are built from
// idempotent ledger appends so the caller may retry transient failures.
type FulfillmentService struct {
	db      *sqlx.DB
	Orders  *repos.OrderRepo
	Catalog *repos.CatalogRepo
	Ledger  *LedgerService
	Audit   *AuditService
	locks   *pairLocks
	log     *zap.Logger
}

func NewFulfillmentService(db *sqlx.DB, orders *repos.OrderRepo, catalog *repos.CatalogRepo, ledger *LedgerService, audit *AuditService, log *zap.Logger) *FulfillmentService {
	return &FulfillmentService{
		db:      db,
		Orders:  orders,
		Catalog: catalog,
		Ledger:  ledger,
		Audit:   audit,
		locks:   newPairLocks(),
		log:     log,
	}
}

func (s *FulfillmentService) Get(orderID string) (*domain.Order, error) {
	return s.Orders.Get(orderID)
}

func (s *FulfillmentService) ListLatest(limit int) ([]repos.OrderSummary, error) {
	return s.Orders.ListLatest(limit)
}

// Intake accepts a candidate order with prices already resolved by the
// caller. It persists the order in pending state; no stock moves yet.
func (s *FulfillmentService) Intake(o *domain.Order, actor, correlationID string) error {
	if len(o.Items) == 0 {
		return errors.New("order has no items")
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Number == "" {
		o.Number = "ORD-" + strings.ToUpper(o.ID[:8])
	}
	o.Status = domain.OrderPending
	o.PaymentStatus = domain.PaymentUnpaid
	o.ShippingStatus = domain.ShippingUnshipped

	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		if it.Qty < 1 {
			return fmt.Errorf("item %s: quantity must be at least 1", it.ProductID)
		}
		want := float64(it.Qty)*it.UnitPrice - it.Discount
		if diff := it.LineTotal - want; diff > 0.005 || diff < -0.005 {
			return fmt.Errorf("item %s: line total %.2f does not match qty*price-discount", it.ProductID, it.LineTotal)
		}
		ok, err := s.Catalog.ProductExists(it.ProductID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("item %s: unknown product", it.ProductID)
		}
	}
	if !o.TotalsConsistent() {
		return fmt.Errorf("order total %.2f does not match subtotal+tax+shipping-discount", o.Total)
	}

	return retryTx(s.db, func(tx *sqlx.Tx) error {
		if err := s.Orders.InsertTx(tx, o); err != nil {
			return err
		}
		return s.Audit.RecordTx(tx, actor, domain.EntityOrder, o.ID, "create", nil, o, correlationID)
	})
}

// placement tracks a hold that has been written, so a failed reserve can
// roll its own holds back before returning.
type placement struct {
	warehouseID string
	productID   string
	qty         int
}

// Reserve places a reservation hold for every line item, trying the
// allocator-supplied candidate warehouses in preference order. It is
// all-or-nothing: on any shortfall (or caller cancellation) every hold
// already placed in this call is released before the error returns.
// Each call carries its own attempt id, so a retry after a rolled-back
// attempt places fresh holds instead of deduping against the old ones.
func (s *FulfillmentService) Reserve(ctx context.Context, orderID string, candidates map[string][]string, actor, correlationID string) error {
	o, err := s.Orders.Get(orderID)
	if err != nil {
		return err
	}
	if o.Status != domain.OrderPending {
		return &domain.InvalidTransitionError{Entity: "order", From: string(o.Status), To: "reserved"}
	}
	attempt := uuid.NewString()

	fallback, err := s.fallbackWarehouses(o)
	if err != nil {
		return err
	}
	items := make([]domain.OrderItem, len(o.Items))
	copy(items, o.Items)
	// Fixed global order: primary candidate warehouse, then product. At
	// most one pair lock is held at any moment, so no circular waits.
	key := func(it domain.OrderItem) string {
		cs := candidates[it.ProductID]
		if len(cs) == 0 {
			cs = fallback
		}
		if len(cs) == 0 {
			return "\xff" + it.ProductID
		}
		return cs[0] + "\x00" + it.ProductID
	}
	sort.Slice(items, func(i, j int) bool { return key(items[i]) < key(items[j]) })

	var placed []placement
	for _, it := range items {
		if ctx.Err() != nil {
			return multierr.Append(ctx.Err(), s.rollbackHolds(orderID, placed, actor, attempt))
		}
		cs := candidates[it.ProductID]
		if len(cs) == 0 {
			cs = fallback
		}
		if len(cs) == 0 {
			err := fmt.Errorf("item %s: no candidate warehouse", it.ProductID)
			return multierr.Append(err, s.rollbackHolds(orderID, placed, actor, attempt))
		}

		var firstShortfall *domain.InsufficientStockError
		held := false
		for _, wh := range cs {
			err := s.placeHold(orderID, it, wh, actor, attempt)
			if err == nil {
				placed = append(placed, placement{warehouseID: wh, productID: it.ProductID, qty: it.Qty})
				held = true
				break
			}
			var insufficient *domain.InsufficientStockError
			if errors.As(err, &insufficient) {
				if firstShortfall == nil {
					firstShortfall = insufficient
				}
				continue
			}
			return multierr.Append(err, s.rollbackHolds(orderID, placed, actor, attempt))
		}
		if !held {
			var err error = firstShortfall
			if firstShortfall == nil {
				err = &domain.InsufficientStockError{ProductID: it.ProductID, Requested: it.Qty}
			}
			return multierr.Append(err, s.rollbackHolds(orderID, placed, actor, attempt))
		}
	}

	s.log.Info("order reserved",
		zap.String("order", orderID),
		zap.Int("items", len(items)),
		zap.String("correlation", correlationID))
	return nil
}

// placeHold appends one reservation hold and pins the item's warehouse in
// the same transaction, under the pair's critical section.
func (s *FulfillmentService) placeHold(orderID string, it domain.OrderItem, warehouseID, actor, attempt string) error {
	hold := &domain.MovementRecord{
		WarehouseID: warehouseID,
		ProductID:   it.ProductID,
		Delta:       it.Qty,
		Kind:        domain.MovementHold,
		RefKind:     domain.RefOrder,
		RefID:       orderID,
		Actor:       actor,
		IdemKey:     attemptKey("hold", orderID, it.ProductID, warehouseID, attempt),
	}
	if err := s.Ledger.Validate(hold); err != nil {
		return err
	}
	unlock := s.locks.lock(warehouseID, it.ProductID)
	defer unlock()
	return retryTx(s.db, func(tx *sqlx.Tx) error {
		if _, _, err := s.Ledger.AppendTx(tx, hold); err != nil {
			return err
		}
		return s.Orders.SetItemWarehouseTx(tx, orderID, it.ProductID, warehouseID)
	})
}

// rollbackHolds releases every hold this reserve attempt already placed
// and clears the items' warehouse pins, so nothing suggests the order is
// reserved. It keeps going past individual failures and returns whatever
// could not be undone; a non-nil result means a stale hold survived and
// the caller must surface it.
func (s *FulfillmentService) rollbackHolds(orderID string, placed []placement, actor, attempt string) error {
	var errs error
	for _, p := range placed {
		rel := &domain.MovementRecord{
			WarehouseID: p.warehouseID,
			ProductID:   p.productID,
			Delta:       -p.qty,
			Kind:        domain.MovementRelease,
			RefKind:     domain.RefOrder,
			RefID:       orderID,
			Actor:       actor,
			IdemKey:     attemptKey("holdrel", orderID, p.productID, p.warehouseID, attempt),
		}
		unlock := s.locks.lock(p.warehouseID, p.productID)
		err := retryTx(s.db, func(tx *sqlx.Tx) error {
			if _, _, err := s.Ledger.AppendTx(tx, rel); err != nil {
				return err
			}
			return s.Orders.SetItemWarehouseTx(tx, orderID, p.productID, "")
		})
		unlock()
		if err != nil {
			s.log.Error("hold rollback failed",
				zap.String("order", orderID),
				zap.String("warehouse", p.warehouseID),
				zap.String("product", p.productID),
				zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// ConfirmPayment marks a payment completed. The first completed payment
// covering the full total converts the order's holds into committed
// outbound movements and advances the order to processing. Confirming an
// already-confirmed payment is a no-op.
func (s *FulfillmentService) ConfirmPayment(ctx context.Context, orderID string, p *domain.Payment, actor, correlationID string) error {
	o, err := s.Orders.Get(orderID)
	if err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.OrderID = orderID

	prior, err := s.Orders.GetPayment(p.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if prior != nil && prior.Status == domain.PaymentStateCompleted {
		return nil // gateway retry, already settled
	}
	if o.PaymentStatus == domain.PaymentPaid {
		// A different payment already covers this order's total.
		return &domain.InvalidTransitionError{Entity: "payment", From: string(domain.PaymentPaid), To: "completed"}
	}
	if o.Status != domain.OrderPending {
		return &domain.InvalidTransitionError{Entity: "order", From: string(o.Status), To: string(domain.OrderProcessing)}
	}

	covers := p.Amount-o.Total < 0.005 && p.Amount-o.Total > -0.005
	if covers {
		// Convert every hold to a linked release+outbound pair first.
		// The appends are idempotent, so a retry after a partial failure
		// simply skips what already landed.
		items := make([]domain.OrderItem, len(o.Items))
		copy(items, o.Items)
		sort.Slice(items, func(i, j int) bool {
			a, b := items[i], items[j]
			if a.WarehouseID != b.WarehouseID {
				return a.WarehouseID < b.WarehouseID
			}
			return a.ProductID < b.ProductID
		})
		for _, it := range items {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if it.WarehouseID == "" {
				return &domain.InvalidTransitionError{Entity: "order", From: "unreserved", To: string(domain.OrderProcessing)}
			}
			if err := s.commitItem(orderID, it, actor); err != nil {
				return err
			}
		}
	}

	p.Status = domain.PaymentStateCompleted
	err = retryTx(s.db, func(tx *sqlx.Tx) error {
		if covers {
			// Guarded flip first: if another payment already covered
			// the total, this whole transaction rolls back and no
			// second completed payment is recorded.
			if err := s.Orders.MarkPaidTx(tx, o.ID); err != nil {
				return err
			}
		}
		if err := s.Orders.InsertPaymentTx(tx, p); err != nil {
			return err
		}
		if err := s.Audit.RecordTx(tx, actor, domain.EntityPayment, p.ID, "complete", prior, p, correlationID); err != nil {
			return err
		}
		if covers {
			after := *o
			after.Status = domain.OrderProcessing
			after.PaymentStatus = domain.PaymentPaid
			return s.Audit.RecordTx(tx, actor, domain.EntityOrder, o.ID, "payment_confirmed", o, &after, correlationID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("payment confirmed",
		zap.String("order", orderID),
		zap.String("payment", p.ID),
		zap.Bool("covers_total", covers),
		zap.String("correlation", correlationID))
	return nil
}

// commitItem converts one item's hold into settled outbound stock: a
// release and an outbound movement appended as a linked pair in one
// transaction.
func (s *FulfillmentService) commitItem(orderID string, it domain.OrderItem, actor string) error {
	rel := &domain.MovementRecord{
		WarehouseID: it.WarehouseID,
		ProductID:   it.ProductID,
		Delta:       -it.Qty,
		Kind:        domain.MovementRelease,
		RefKind:     domain.RefOrder,
		RefID:       orderID,
		Actor:       actor,
		IdemKey:     movementKey("commitrel", orderID, it.ProductID, it.WarehouseID),
	}
	out := &domain.MovementRecord{
		WarehouseID: it.WarehouseID,
		ProductID:   it.ProductID,
		Delta:       -it.Qty,
		Kind:        domain.MovementOutbound,
		RefKind:     domain.RefOrder,
		RefID:       orderID,
		Actor:       actor,
		IdemKey:     movementKey("commitout", orderID, it.ProductID, it.WarehouseID),
	}
	if err := s.Ledger.Validate(rel); err != nil {
		return err
	}
	if err := s.Ledger.Validate(out); err != nil {
		return err
	}
	unlock := s.locks.lock(it.WarehouseID, it.ProductID)
	defer unlock()
	return retryTx(s.db, func(tx *sqlx.Tx) error {
		if _, _, err := s.Ledger.AppendTx(tx, rel); err != nil {
			return err
		}
		_, _, err := s.Ledger.AppendTx(tx, out)
		return err
	})
}

// Cancel reverses an order: releases still-open holds, or restores
// already-committed stock with compensating inbound movements, refunds a
// completed payment, and sets the order cancelled. Only permitted before
// shipping starts.
func (s *FulfillmentService) Cancel(ctx context.Context, orderID, actor, correlationID string) error {
	o, err := s.Orders.Get(orderID)
	if err != nil {
		return err
	}
	if o.Status != domain.OrderPending && o.Status != domain.OrderProcessing {
		return &domain.InvalidTransitionError{Entity: "order", From: string(o.Status), To: string(domain.OrderCancelled)}
	}
	if o.ShippingStatus != domain.ShippingUnshipped {
		return &domain.InvalidTransitionError{Entity: "order", From: string(o.ShippingStatus), To: string(domain.OrderCancelled)}
	}

	// What the order actually holds or has taken is read off its own
	// movements, never inferred from item fields: a rolled-back reserve
	// leaves no open hold even though it touched the items.
	open, taken, err := s.orderLedgerState(orderID)
	if err != nil {
		return err
	}
	for _, k := range sortedPairs(open, taken) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var m *domain.MovementRecord
		switch {
		case open[k] > 0:
			m = &domain.MovementRecord{
				WarehouseID: k.warehouseID,
				ProductID:   k.productID,
				Delta:       -open[k],
				Kind:        domain.MovementRelease,
				RefKind:     domain.RefOrder,
				RefID:       orderID,
				Actor:       actor,
				IdemKey:     movementKey("cancelrel", orderID, k.productID, k.warehouseID),
			}
		case taken[k] > 0:
			m = &domain.MovementRecord{
				WarehouseID: k.warehouseID,
				ProductID:   k.productID,
				Delta:       taken[k],
				Kind:        domain.MovementInbound,
				RefKind:     domain.RefOrder,
				RefID:       orderID,
				Actor:       actor,
				IdemKey:     movementKey("cancelin", orderID, k.productID, k.warehouseID),
			}
		default:
			continue
		}
		if err := s.Ledger.Validate(m); err != nil {
			return err
		}
		unlock := s.locks.lock(k.warehouseID, k.productID)
		err := retryTx(s.db, func(tx *sqlx.Tx) error {
			_, _, err := s.Ledger.AppendTx(tx, m)
			return err
		})
		unlock()
		if err != nil {
			return err
		}
	}

	payStatus := o.PaymentStatus
	var completed *domain.Payment
	payments, err := s.Orders.PaymentsFor(orderID)
	if err != nil {
		return err
	}
	for i := range payments {
		if payments[i].Status == domain.PaymentStateCompleted {
			completed = &payments[i]
			break
		}
	}
	if completed != nil {
		payStatus = domain.PaymentRefunded
	}

	err = retryTx(s.db, func(tx *sqlx.Tx) error {
		if completed != nil {
			refunded := *completed
			refunded.Status = domain.PaymentStateRefunded
			if err := s.Orders.UpdatePaymentStatusTx(tx, completed.ID, domain.PaymentStateRefunded); err != nil {
				return err
			}
			if err := s.Audit.RecordTx(tx, actor, domain.EntityPayment, completed.ID, "refund", completed, &refunded, correlationID); err != nil {
				return err
			}
		}
		after := *o
		after.Status = domain.OrderCancelled
		after.PaymentStatus = payStatus
		if err := s.Orders.UpdateStateTx(tx, o.ID, domain.OrderCancelled, payStatus, o.ShippingStatus); err != nil {
			return err
		}
		return s.Audit.RecordTx(tx, actor, domain.EntityOrder, o.ID, "cancel", o, &after, correlationID)
	})
	if err != nil {
		return err
	}

	s.log.Info("order cancelled",
		zap.String("order", orderID),
		zap.Bool("refunded", completed != nil),
		zap.String("correlation", correlationID))
	return nil
}

// AdvanceShipment moves the shipping axis forward. Backward transitions
// are rejected; delivery completes the order.
func (s *FulfillmentService) AdvanceShipment(orderID string, next domain.ShippingStatus, actor, correlationID string) error {
	o, err := s.Orders.Get(orderID)
	if err != nil {
		return err
	}
	if o.Status != domain.OrderProcessing && o.Status != domain.OrderCompleted {
		return &domain.InvalidTransitionError{Entity: "order", From: string(o.Status), To: string(next)}
	}
	if !o.ShippingStatus.CanAdvance(next) {
		return &domain.InvalidTransitionError{Entity: "shipping", From: string(o.ShippingStatus), To: string(next)}
	}

	status := o.Status
	if next == domain.ShippingDelivered && status == domain.OrderProcessing {
		status = domain.OrderCompleted
	}

	return retryTx(s.db, func(tx *sqlx.Tx) error {
		after := *o
		after.Status = status
		after.ShippingStatus = next
		if err := s.Orders.UpdateStateTx(tx, o.ID, status, o.PaymentStatus, next); err != nil {
			return err
		}
		return s.Audit.RecordTx(tx, actor, domain.EntityOrder, o.ID, "ship", o, &after, correlationID)
	})
}

type stockPair struct {
	warehouseID string
	productID   string
}

// orderLedgerState folds the order's movements pair by pair: open is the
// net reserved quantity still held, taken the net on-hand stock the order
// has consumed. Earlier releases and compensations cancel out, which
// makes Cancel retry-safe.
func (s *FulfillmentService) orderLedgerState(orderID string) (open, taken map[stockPair]int, err error) {
	moves, err := s.Ledger.ListByRef(domain.RefOrder, orderID)
	if err != nil {
		return nil, nil, err
	}
	open = make(map[stockPair]int)
	taken = make(map[stockPair]int)
	for _, m := range moves {
		k := stockPair{warehouseID: m.WarehouseID, productID: m.ProductID}
		if m.Kind.AffectsReserved() {
			open[k] += m.Delta
		}
		if m.Kind.AffectsOnHand() {
			taken[k] -= m.Delta
		}
	}
	return open, taken, nil
}

// sortedPairs merges both maps' keys into the fixed global lock order.
func sortedPairs(open, taken map[stockPair]int) []stockPair {
	seen := make(map[stockPair]bool, len(open)+len(taken))
	var out []stockPair
	for k := range open {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	for k := range taken {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.warehouseID != b.warehouseID {
			return a.warehouseID < b.warehouseID
		}
		return a.productID < b.productID
	})
	return out
}

// fallbackWarehouses is the candidate list used when the allocator
// supplied none for an item: the order's pinned warehouse if set,
// otherwise every active warehouse in stable order.
func (s *FulfillmentService) fallbackWarehouses(o *domain.Order) ([]string, error) {
	if o.WarehouseID != "" {
		return []string{o.WarehouseID}, nil
	}
	whs, err := s.Catalog.ListWarehouses()
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(whs))
	for i, w := range whs {
		ids[i] = w.ID
	}
	sort.Strings(ids)
	return ids, nil
}

// movementKey dedupes retries of conversions and cancellations: those
// quantities are derived fresh each call, so one key per order and item
// is exactly right.
func movementKey(op, orderID, productID, warehouseID string) string {
	return op + ":" + orderID + ":" + productID + ":" + warehouseID
}

// attemptKey scopes hold and rollback keys to one reserve attempt. A
// rolled-back attempt burns its keys; the next attempt must append real
// movements, not dedupe against dead ones.
func attemptKey(op, orderID, productID, warehouseID, attempt string) string {
	return op + ":" + orderID + ":" + productID + ":" + warehouseID + ":" + attempt
}
