package saga_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/zoff-tech/go-order-saga/pkg/broker"
	"github.com/zoff-tech/go-order-saga/pkg/event"
	"github.com/zoff-tech/go-order-saga/pkg/idempotency"
	"github.com/zoff-tech/go-order-saga/pkg/order"
	"github.com/zoff-tech/go-order-saga/pkg/outbox"
	"github.com/zoff-tech/go-order-saga/pkg/payment"
	"github.com/zoff-tech/go-order-saga/pkg/product"
	"github.com/zoff-tech/go-order-saga/pkg/promotion"
	"github.com/zoff-tech/go-order-saga/pkg/saga"
)

// memTxManager satisfies store.TxManager for in-memory stores, which have no
// transaction to open.
type memTxManager struct{}

func (memTxManager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// memLedger collects appended outbox entries; the test harness drains it to
// simulate the publisher and the broker.
type memLedger struct {
	queue []*outbox.Entry
	all   []*outbox.Entry
}

func (l *memLedger) Append(ctx context.Context, entry *outbox.Entry) error {
	l.queue = append(l.queue, entry)
	l.all = append(l.all, entry)
	return nil
}

type memIdem struct {
	records map[string]*idempotency.Record
}

func newMemIdem() *memIdem {
	return &memIdem{records: map[string]*idempotency.Record{}}
}

func (s *memIdem) Get(ctx context.Context, key string) (*idempotency.Record, error) {
	return s.records[key], nil
}

func (s *memIdem) Save(ctx context.Context, rec *idempotency.Record) error {
	s.records[rec.Key] = rec
	return nil
}

func (s *memIdem) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

type memOrders struct {
	orders map[string]*order.Order
}

func newMemOrders() *memOrders { return &memOrders{orders: map[string]*order.Order{}} }

func (s *memOrders) Create(ctx context.Context, o *order.Order) error {
	cp := *o
	s.orders[o.ID] = &cp
	return nil
}

func (s *memOrders) Finish(ctx context.Context, orderID string, status order.Status, reason string) error {
	o, ok := s.orders[orderID]
	if !ok || o.Status != order.StatusPending {
		return nil
	}
	o.Status = status
	o.FailureReason = reason
	return nil
}

func (s *memOrders) Get(ctx context.Context, orderID string) (*order.Order, error) {
	o, ok := s.orders[orderID]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

type memStocks struct {
	quantities   map[string]int
	reservations map[string]*product.Reservation
	reserveCalls int
}

func newMemStocks() *memStocks {
	return &memStocks{quantities: map[string]int{}, reservations: map[string]*product.Reservation{}}
}

func (s *memStocks) Reserve(ctx context.Context, productID string, quantity int) error {
	s.reserveCalls++
	if s.quantities[productID] < quantity {
		return product.ErrInsufficientStock
	}
	s.quantities[productID] -= quantity
	return nil
}

func (s *memStocks) Restore(ctx context.Context, productID string, quantity int) error {
	s.quantities[productID] += quantity
	return nil
}

func (s *memStocks) SaveReservation(ctx context.Context, r *product.Reservation) error {
	cp := *r
	s.reservations[r.OrderID] = &cp
	return nil
}

func (s *memStocks) GetReservation(ctx context.Context, orderID string) (*product.Reservation, error) {
	return s.reservations[orderID], nil
}

func (s *memStocks) ReleaseReservation(ctx context.Context, orderID string) error {
	if r := s.reservations[orderID]; r != nil {
		r.Released = true
	}
	return nil
}

func (s *memStocks) GetQuantity(ctx context.Context, productID string) (int, error) {
	return s.quantities[productID], nil
}

type memCoupons struct {
	statuses  map[string]string
	discounts map[string]int64
	usages    map[string]*promotion.Usage
}

func newMemCoupons() *memCoupons {
	return &memCoupons{
		statuses:  map[string]string{},
		discounts: map[string]int64{},
		usages:    map[string]*promotion.Usage{},
	}
}

func (s *memCoupons) Use(ctx context.Context, couponID string) (int64, error) {
	if s.statuses[couponID] != promotion.CouponAvailable {
		return 0, promotion.ErrCouponUnavailable
	}
	s.statuses[couponID] = promotion.CouponUsed
	return s.discounts[couponID], nil
}

func (s *memCoupons) Restore(ctx context.Context, couponID string) error {
	if s.statuses[couponID] == promotion.CouponUsed {
		s.statuses[couponID] = promotion.CouponAvailable
	}
	return nil
}

func (s *memCoupons) SaveUsage(ctx context.Context, u *promotion.Usage) error {
	cp := *u
	s.usages[u.OrderID] = &cp
	return nil
}

func (s *memCoupons) GetUsage(ctx context.Context, orderID string) (*promotion.Usage, error) {
	return s.usages[orderID], nil
}

func (s *memCoupons) ReleaseUsage(ctx context.Context, orderID string) error {
	if u := s.usages[orderID]; u != nil {
		u.Released = true
	}
	return nil
}

func (s *memCoupons) GetStatus(ctx context.Context, couponID string) (string, error) {
	return s.statuses[couponID], nil
}

type memPayments struct {
	balances map[string]int64
	payments map[string]*payment.Payment
}

func newMemPayments() *memPayments {
	return &memPayments{balances: map[string]int64{}, payments: map[string]*payment.Payment{}}
}

func (s *memPayments) Debit(ctx context.Context, userID string, amount int64) error {
	if s.balances[userID] < amount {
		return payment.ErrInsufficientBalance
	}
	s.balances[userID] -= amount
	return nil
}

func (s *memPayments) Credit(ctx context.Context, userID string, amount int64) error {
	s.balances[userID] += amount
	return nil
}

func (s *memPayments) SavePayment(ctx context.Context, p *payment.Payment) error {
	cp := *p
	s.payments[p.OrderID] = &cp
	return nil
}

func (s *memPayments) GetPayment(ctx context.Context, orderID string) (*payment.Payment, error) {
	return s.payments[orderID], nil
}

func (s *memPayments) MarkRefunded(ctx context.Context, orderID string) error {
	if p := s.payments[orderID]; p != nil {
		p.Refunded = true
	}
	return nil
}

func (s *memPayments) GetBalance(ctx context.Context, userID string) (int64, error) {
	return s.balances[userID], nil
}

// world wires all four participants onto one registry over in-memory stores
// and drives the choreography by draining the shared ledger.
type world struct {
	t        *testing.T
	registry *saga.Registry
	ledger   *memLedger
	idem     *memIdem
	orders   *memOrders
	stocks   *memStocks
	coupons  *memCoupons
	payments *memPayments
	service  *order.Service

	delivered []string // topics in delivery order
}

func newWorld(t *testing.T) *world {
	w := &world{
		t:        t,
		registry: saga.NewRegistry(zerolog.Nop()),
		ledger:   &memLedger{},
		idem:     newMemIdem(),
		orders:   newMemOrders(),
		stocks:   newMemStocks(),
		coupons:  newMemCoupons(),
		payments: newMemPayments(),
	}

	txm := memTxManager{}
	log := zerolog.Nop()
	w.service = order.NewService(txm, w.orders, w.ledger, log)
	order.RegisterListeners(w.registry, txm, w.orders, w.idem, w.ledger, log)
	product.RegisterListeners(w.registry, txm, w.stocks, w.idem, w.ledger, log)
	promotion.RegisterListeners(w.registry, txm, w.coupons, w.idem, w.ledger, log)
	payment.RegisterListeners(w.registry, txm, w.payments, w.idem, w.ledger, log)
	return w
}

func messageFor(t *testing.T, entry *outbox.Entry) *broker.Message {
	topic, err := event.TopicFor(entry.EventType)
	require.NoError(t, err)
	return &broker.Message{
		Topic: topic,
		Key:   []byte(entry.AggregateID),
		Value: entry.Payload,
	}
}

// drain relays queued ledger entries to their consumers until the saga
// settles. Topics without a registered executor (order.completed,
// payment.failed) are observability streams and are simply recorded.
func (w *world) drain() {
	for len(w.ledger.queue) > 0 {
		entry := w.ledger.queue[0]
		w.ledger.queue = w.ledger.queue[1:]

		msg := messageFor(w.t, entry)
		w.delivered = append(w.delivered, msg.Topic)
		require.NoError(w.t, w.registry.Handle(context.Background(), msg))
	}
}

func (w *world) countDelivered(topic string) int {
	n := 0
	for _, d := range w.delivered {
		if d == topic {
			n++
		}
	}
	return n
}
