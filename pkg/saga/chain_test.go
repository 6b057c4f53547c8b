package saga_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoff-tech/go-order-saga/pkg/event"
	"github.com/zoff-tech/go-order-saga/pkg/order"
	"github.com/zoff-tech/go-order-saga/pkg/outbox"
	"github.com/zoff-tech/go-order-saga/pkg/promotion"
)

func startSaga(t *testing.T, w *world, cmd order.CreateOrderCommand) *order.Order {
	o, err := w.service.CreateOrder(context.Background(), cmd)
	require.NoError(t, err)
	w.drain()
	return o
}

func TestSagaHappyPath(t *testing.T) {
	w := newWorld(t)
	w.stocks.quantities["product-1"] = 10
	w.coupons.statuses["coupon-1"] = promotion.CouponAvailable
	w.coupons.discounts["coupon-1"] = 300
	w.payments.balances["user-1"] = 5000

	o := startSaga(t, w, order.CreateOrderCommand{
		UserID:    "user-1",
		ProductID: "product-1",
		Quantity:  3,
		CouponID:  "coupon-1",
		Amount:    1000,
	})

	got, err := w.service.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, got.Status)

	assert.Equal(t, 7, w.stocks.quantities["product-1"])
	assert.Equal(t, promotion.CouponUsed, w.coupons.statuses["coupon-1"])
	// 1000 minus the 300 discount.
	assert.Equal(t, int64(5000-700), w.payments.balances["user-1"])
	require.NotNil(t, w.payments.payments[o.ID])
	assert.Equal(t, int64(700), w.payments.payments[o.ID].Amount)

	for _, topic := range []string{
		event.TopicOrderCreated,
		event.TopicStockReserved,
		event.TopicCouponReserved,
		event.TopicPaymentCompleted,
		event.TopicOrderCompleted,
	} {
		assert.Equal(t, 1, w.countDelivered(topic), topic)
	}
	assert.Zero(t, w.countDelivered(event.TopicOrderFailed))
}

func TestSagaWithoutCouponSkipsPromotion(t *testing.T) {
	w := newWorld(t)
	w.stocks.quantities["product-1"] = 5
	w.payments.balances["user-1"] = 1000

	o := startSaga(t, w, order.CreateOrderCommand{
		UserID:    "user-1",
		ProductID: "product-1",
		Quantity:  1,
		Amount:    1000,
	})

	got, err := w.service.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, got.Status)
	// No discount: the full amount was debited.
	assert.Zero(t, w.payments.balances["user-1"])
	assert.Empty(t, w.coupons.usages)
}

func TestSagaStockFailureFailsOrderWithoutCompensation(t *testing.T) {
	w := newWorld(t)
	w.stocks.quantities["product-1"] = 1
	w.coupons.statuses["coupon-1"] = promotion.CouponAvailable
	w.payments.balances["user-1"] = 5000

	o := startSaga(t, w, order.CreateOrderCommand{
		UserID:    "user-1",
		ProductID: "product-1",
		Quantity:  3,
		CouponID:  "coupon-1",
		Amount:    1000,
	})

	got, err := w.service.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusFailed, got.Status)
	assert.NotEmpty(t, got.FailureReason)

	// The first step failed before committing anything, so no later
	// participant ran and no compensation stream was touched.
	assert.Equal(t, 1, w.stocks.quantities["product-1"])
	assert.Equal(t, promotion.CouponAvailable, w.coupons.statuses["coupon-1"])
	assert.Equal(t, int64(5000), w.payments.balances["user-1"])
	assert.Equal(t, 1, w.countDelivered(event.TopicStockReservationFailed))
	assert.Zero(t, w.countDelivered(event.TopicCouponCompensation))
	assert.Zero(t, w.countDelivered(event.TopicStockCompensation))
}

func TestSagaCouponFailureCompensatesStock(t *testing.T) {
	w := newWorld(t)
	w.stocks.quantities["product-1"] = 10
	w.coupons.statuses["coupon-1"] = promotion.CouponExpired
	w.payments.balances["user-1"] = 5000

	o := startSaga(t, w, order.CreateOrderCommand{
		UserID:    "user-1",
		ProductID: "product-1",
		Quantity:  4,
		CouponID:  "coupon-1",
		Amount:    1000,
	})

	got, err := w.service.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusFailed, got.Status)

	// Stock was reserved, then restored by the compensation chain.
	assert.Equal(t, 10, w.stocks.quantities["product-1"])
	require.NotNil(t, w.stocks.reservations[o.ID])
	assert.True(t, w.stocks.reservations[o.ID].Released)
	assert.Equal(t, int64(5000), w.payments.balances["user-1"])

	assert.Equal(t, 1, w.countDelivered(event.TopicStockCompensation))
	assert.Zero(t, w.countDelivered(event.TopicCouponCompensation))
	assert.Equal(t, 1, w.countDelivered(event.TopicOrderFailed))
}

func TestSagaPaymentFailureCompensatesCouponAndStock(t *testing.T) {
	w := newWorld(t)
	w.stocks.quantities["product-1"] = 10
	w.coupons.statuses["coupon-1"] = promotion.CouponAvailable
	w.coupons.discounts["coupon-1"] = 100
	w.payments.balances["user-1"] = 50 // cannot cover 900

	o := startSaga(t, w, order.CreateOrderCommand{
		UserID:    "user-1",
		ProductID: "product-1",
		Quantity:  2,
		CouponID:  "coupon-1",
		Amount:    1000,
	})

	got, err := w.service.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusFailed, got.Status)

	// The rollback walked coupon then stock, restoring both.
	assert.Equal(t, 10, w.stocks.quantities["product-1"])
	assert.Equal(t, promotion.CouponAvailable, w.coupons.statuses["coupon-1"])
	assert.True(t, w.coupons.usages[o.ID].Released)
	assert.Equal(t, int64(50), w.payments.balances["user-1"])

	assert.Equal(t, 1, w.countDelivered(event.TopicPaymentFailed))
	assert.Equal(t, 1, w.countDelivered(event.TopicCouponCompensation))
	assert.Equal(t, 1, w.countDelivered(event.TopicStockCompensation))
	assert.Equal(t, 1, w.countDelivered(event.TopicOrderFailed))
	assert.Zero(t, w.countDelivered(event.TopicOrderCompleted))
}

func TestSagaCompensationIsIdempotentOnRedelivery(t *testing.T) {
	w := newWorld(t)
	w.stocks.quantities["product-1"] = 10
	w.coupons.statuses["coupon-1"] = promotion.CouponAvailable
	w.coupons.discounts["coupon-1"] = 100
	w.payments.balances["user-1"] = 50

	o := startSaga(t, w, order.CreateOrderCommand{
		UserID:    "user-1",
		ProductID: "product-1",
		Quantity:  2,
		CouponID:  "coupon-1",
		Amount:    1000,
	})

	var compEntry *outbox.Entry
	for _, entry := range w.ledger.all {
		if entry.EventType == event.TypeCouponCompensation {
			compEntry = entry
		}
	}
	require.NotNil(t, compEntry)

	// Redeliver the coupon compensation request and let the re-emitted chain
	// run to the end again.
	require.NoError(t, w.registry.Handle(context.Background(), messageFor(t, compEntry)))
	w.drain()

	// Nothing was undone twice.
	assert.Equal(t, 10, w.stocks.quantities["product-1"])
	assert.Equal(t, promotion.CouponAvailable, w.coupons.statuses["coupon-1"])
	assert.Equal(t, int64(50), w.payments.balances["user-1"])

	got, err := w.service.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusFailed, got.Status)
}
