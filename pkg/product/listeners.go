package product

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
	AggregateType = "PRODUCT"

	StepReserveStock    = "RESERVE_STOCK"
	StepCompensateStock = "RESERVE_STOCK:COMPENSATE"
)

// RegisterListeners wires the product participant's step executors:
// order.created reserves stock (the saga's first mutating step) and
// stock.compensation.required rolls the reservation back.
func RegisterListeners(reg *saga.Registry, tx store.TxManager, stocks Store, idem idempotency.Store, ledger outbox.Ledger, log zerolog.Logger) {
	router := saga.Router{}
	reg.Register(event.TopicOrderCreated, saga.NewExecutor(
		StepReserveStock, AggregateType, tx, idem, ledger,
		reserveHandler(stocks),
		saga.WithLogger(log),
	))
	reg.Register(event.TopicStockCompensation, saga.NewExecutor(
		StepCompensateStock, AggregateType, tx, idem, ledger,
		compensateHandler(stocks, router, log),
		saga.WithLogger(log),
	))
}

func reserveHandler(stocks Store) saga.HandlerFunc {
	return func(ctx context.Context, payload []byte) ([]event.DomainEvent, error) {
		var ev event.OrderCreated
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", saga.ErrPoison, err)
		}

		err := stocks.Reserve(ctx, ev.ProductID, ev.Quantity)
		if errors.Is(err, ErrInsufficientStock) {
			// First mutating step: terminal failure, nothing to compensate.
			return []event.DomainEvent{event.StockReservationFailed{
				OrderID:   ev.OrderID,
				Reason:    fmt.Sprintf("insufficient stock for product %s: requested %d", ev.ProductID, ev.Quantity),
				Timestamp: time.Now().UTC(),
			}}, nil
		}
		if err != nil {
			return nil, err
		}

		if err := stocks.SaveReservation(ctx, &Reservation{
			OrderID:   ev.OrderID,
			ProductID: ev.ProductID,
			Quantity:  ev.Quantity,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			return nil, err
		}

		return []event.DomainEvent{event.StockReserved{
			OrderID:   ev.OrderID,
			UserID:    ev.UserID,
			ProductID: ev.ProductID,
			Quantity:  ev.Quantity,
			CouponID:  ev.CouponID,
			Amount:    ev.Amount,
			Timestamp: time.Now().UTC(),
		}}, nil
	}
}

func compensateHandler(stocks Store, router saga.Router, log zerolog.Logger) saga.HandlerFunc {
	return func(ctx context.Context, payload []byte) ([]event.DomainEvent, error) {
		var ev event.CompensationRequested
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", saga.ErrPoison, err)
		}

		r, err := stocks.GetReservation(ctx, ev.OrderID)
		if err != nil {
			return nil, err
		}
		if r != nil && !r.Released {
			if err := stocks.Restore(ctx, r.ProductID, r.Quantity); err != nil {
				return nil, err
			}
			if err := stocks.ReleaseReservation(ctx, ev.OrderID); err != nil {
				return nil, err
			}
		} else if r == nil {
			log.Warn().Str("order_id", ev.OrderID).Msg("stock compensation without reservation record")
		}

		return []event.DomainEvent{router.Next(event.CompensateReserveStock, ev.OrderID, ev.Reason)}, nil
	}
}
