package payment

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
	AggregateType = "PAYMENT"

	StepDeductPoints     = "DEDUCT_POINTS"
	StepCompensatePoints = "DEDUCT_POINTS:COMPENSATE"
)

// RegisterListeners wires the payment participant's step executors:
// coupon.reserved debits the balance (the last mutating step) and
// payment.compensation.required refunds it.
func RegisterListeners(reg *saga.Registry, tx store.TxManager, payments Store, idem idempotency.Store, ledger outbox.Ledger, log zerolog.Logger) {
	router := saga.Router{}
	reg.Register(event.TopicCouponReserved, saga.NewExecutor(
		StepDeductPoints, AggregateType, tx, idem, ledger,
		deductHandler(payments, router),
		saga.WithLogger(log),
	))
	reg.Register(event.TopicPaymentCompensation, saga.NewExecutor(
		StepCompensatePoints, AggregateType, tx, idem, ledger,
		refundHandler(payments, router),
		saga.WithLogger(log),
	))
}

func deductHandler(payments Store, router saga.Router) saga.HandlerFunc {
	return func(ctx context.Context, payload []byte) ([]event.DomainEvent, error) {
		var ev event.CouponReserved
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", saga.ErrPoison, err)
		}

		now := time.Now().UTC()

		err := payments.Debit(ctx, ev.UserID, ev.Amount)
		if errors.Is(err, ErrInsufficientBalance) {
			// Stock and coupon are committed: report the failure and start
			// the compensation chain at the coupon step.
			reason := fmt.Sprintf("insufficient balance for user %s: required %d", ev.UserID, ev.Amount)
			return []event.DomainEvent{
				event.PaymentFailed{OrderID: ev.OrderID, Reason: reason, Timestamp: now},
				router.Next(event.CompensateDeductPoints, ev.OrderID, reason),
			}, nil
		}
		if err != nil {
			return nil, err
		}

		if err := payments.SavePayment(ctx, &Payment{
			OrderID:   ev.OrderID,
			UserID:    ev.UserID,
			Amount:    ev.Amount,
			CreatedAt: now,
		}); err != nil {
			return nil, err
		}

		return []event.DomainEvent{event.PaymentCompleted{
			OrderID:   ev.OrderID,
			UserID:    ev.UserID,
			Amount:    ev.Amount,
			Timestamp: now,
		}}, nil
	}
}

func refundHandler(payments Store, router saga.Router) saga.HandlerFunc {
	return func(ctx context.Context, payload []byte) ([]event.DomainEvent, error) {
		var ev event.CompensationRequested
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", saga.ErrPoison, err)
		}

		p, err := payments.GetPayment(ctx, ev.OrderID)
		if err != nil {
			return nil, err
		}
		if p != nil && !p.Refunded {
			if err := payments.Credit(ctx, p.UserID, p.Amount); err != nil {
				return nil, err
			}
			if err := payments.MarkRefunded(ctx, ev.OrderID); err != nil {
				return nil, err
			}
		}

		return []event.DomainEvent{router.Next(event.CompensateDeductPoints, ev.OrderID, ev.Reason)}, nil
	}
}
