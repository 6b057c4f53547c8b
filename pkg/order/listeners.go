package order

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/zoff-tech/go-order-saga/pkg/event"
	"github.com/zoff-tech/go-order-saga/pkg/idempotency"
	"github.com/zoff-tech/go-order-saga/pkg/outbox"
	"github.com/zoff-tech/go-order-saga/pkg/saga"
	"github.com/zoff-tech/go-order-saga/pkg/store"
)

// Step names of this participant.
const (
	StepCompleteOrder = "COMPLETE_ORDER"
	StepFailOrder     = "FAIL_ORDER"
)

// RegisterListeners wires the order participant's step executors.
// payment.completed finalizes the order; stock.reservation.failed (early
// failure, nothing to compensate) and order.failed (end of the compensation
// chain) both move it to FAILED.
func RegisterListeners(reg *saga.Registry, tx store.TxManager, orders Store, idem idempotency.Store, ledger outbox.Ledger, log zerolog.Logger) {
	reg.Register(event.TopicPaymentCompleted, saga.NewExecutor(
		StepCompleteOrder, AggregateType, tx, idem, ledger,
		completeHandler(orders),
		saga.WithLogger(log),
	))
	reg.Register(event.TopicStockReservationFailed, saga.NewExecutor(
		StepFailOrder, AggregateType, tx, idem, ledger,
		failHandler(orders, decodeReservationFailure),
		saga.WithLogger(log),
	))
	reg.Register(event.TopicOrderFailed, saga.NewExecutor(
		StepFailOrder, AggregateType, tx, idem, ledger,
		failHandler(orders, decodeOrderFailure),
		saga.WithLogger(log),
	))
}

func completeHandler(orders Store) saga.HandlerFunc {
	return func(ctx context.Context, payload []byte) ([]event.DomainEvent, error) {
		var ev event.PaymentCompleted
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", saga.ErrPoison, err)
		}

		if err := orders.Finish(ctx, ev.OrderID, StatusCompleted, ""); err != nil {
			return nil, err
		}

		return []event.DomainEvent{event.OrderCompleted{
			OrderID:   ev.OrderID,
			Timestamp: time.Now().UTC(),
		}}, nil
	}
}

type failure struct {
	orderID string
	reason  string
}

func failHandler(orders Store, decode func([]byte) (failure, error)) saga.HandlerFunc {
	return func(ctx context.Context, payload []byte) ([]event.DomainEvent, error) {
		f, err := decode(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", saga.ErrPoison, err)
		}
		if err := orders.Finish(ctx, f.orderID, StatusFailed, f.reason); err != nil {
			return nil, err
		}
		return nil, nil
	}
}

func decodeReservationFailure(payload []byte) (failure, error) {
	var ev event.StockReservationFailed
	if err := json.Unmarshal(payload, &ev); err != nil {
		return failure{}, err
	}
	return failure{orderID: ev.OrderID, reason: ev.Reason}, nil
}

func decodeOrderFailure(payload []byte) (failure, error) {
	var ev event.OrderFailed
	if err := json.Unmarshal(payload, &ev); err != nil {
		return failure{}, err
	}
	return failure{orderID: ev.OrderID, reason: ev.Reason}, nil
}
