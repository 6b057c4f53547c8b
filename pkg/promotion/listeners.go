package promotion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/zoff-tech/go-order-saga/pkg/event"
	"github.com/zoff-tech/go-order-saga/pkg/idempotency"
	"github.com/zoff-tech/go-order-saga/pkg/outbox"
	"github.com/zoff-tech/go-order-saga/pkg/saga"
	"github.com/zoff-tech/go-order-saga/pkg/store"
)

const (
	// AggregateType tags this participant's outbox entries.
	AggregateType = "PROMOTION"

	StepReserveCoupon    = "RESERVE_COUPON"
	StepCompensateCoupon = "RESERVE_COUPON:COMPENSATE"
)

// RegisterListeners wires the promotion participant's step executors:
// stock.reserved reserves the coupon and coupon.compensation.required
// restores it and continues the rollback.
func RegisterListeners(reg *saga.Registry, tx store.TxManager, coupons Store, idem idempotency.Store, ledger outbox.Ledger, log zerolog.Logger) {
	router := saga.Router{}
	reg.Register(event.TopicStockReserved, saga.NewExecutor(
		StepReserveCoupon, AggregateType, tx, idem, ledger,
		reserveHandler(coupons, router),
		saga.WithLogger(log),
	))
	reg.Register(event.TopicCouponCompensation, saga.NewExecutor(
		StepCompensateCoupon, AggregateType, tx, idem, ledger,
		compensateHandler(coupons, router),
		saga.WithLogger(log),
	))
}

func reserveHandler(coupons Store, router saga.Router) saga.HandlerFunc {
	return func(ctx context.Context, payload []byte) ([]event.DomainEvent, error) {
		var ev event.StockReserved
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", saga.ErrPoison, err)
		}

		amount := ev.Amount

		if ev.CouponID != "" {
			discount, err := coupons.Use(ctx, ev.CouponID)
			if errors.Is(err, ErrCouponUnavailable) {
				// Stock is already committed: walk the saga back.
				reason := fmt.Sprintf("coupon %s not available", ev.CouponID)
				return []event.DomainEvent{router.Next(event.CompensateReserveCoupon, ev.OrderID, reason)}, nil
			}
			if err != nil {
				return nil, err
			}

			if err := coupons.SaveUsage(ctx, &Usage{
				OrderID:   ev.OrderID,
				CouponID:  ev.CouponID,
				Discount:  discount,
				CreatedAt: time.Now().UTC(),
			}); err != nil {
				return nil, err
			}

			amount -= discount
			if amount < 0 {
				amount = 0
			}
		}

		return []event.DomainEvent{event.CouponReserved{
			OrderID:   ev.OrderID,
			UserID:    ev.UserID,
			CouponID:  ev.CouponID,
			Amount:    amount,
			Timestamp: time.Now().UTC(),
		}}, nil
	}
}

func compensateHandler(coupons Store, router saga.Router) saga.HandlerFunc {
	return func(ctx context.Context, payload []byte) ([]event.DomainEvent, error) {
		var ev event.CompensationRequested
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", saga.ErrPoison, err)
		}

		// Orders without a coupon have no usage record; the rollback just
		// moves on to the stock step.
		u, err := coupons.GetUsage(ctx, ev.OrderID)
		if err != nil {
			return nil, err
		}
		if u != nil && !u.Released {
			if err := coupons.Restore(ctx, u.CouponID); err != nil {
				return nil, err
			}
			if err := coupons.ReleaseUsage(ctx, ev.OrderID); err != nil {
				return nil, err
			}
		}

		return []event.DomainEvent{router.Next(event.CompensateReserveCoupon, ev.OrderID, ev.Reason)}, nil
	}
}
