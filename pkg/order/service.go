package order

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zoff-tech/go-order-saga/pkg/event"
	"github.com/zoff-tech/go-order-saga/pkg/outbox"
	"github.com/zoff-tech/go-order-saga/pkg/store"
)

// AggregateType tags this participant's outbox entries.
const AggregateType = "ORDER"

// CreateOrderCommand carries the inputs of the initiating step.
type CreateOrderCommand struct {
	UserID    string
	ProductID string
	Quantity  int
	CouponID  string
	Amount    int64
}

// Service owns the order aggregate: it starts the saga and exposes the
// terminal state for user-facing status queries.
type Service struct {
	tx     store.TxManager
	orders Store
	ledger outbox.Ledger
	log    zerolog.Logger
}

func NewService(tx store.TxManager, orders Store, ledger outbox.Ledger, log zerolog.Logger) *Service {
	return &Service{tx: tx, orders: orders, ledger: ledger, log: log}
}

// CreateOrder inserts the PENDING order and appends the order.created event
// in one local transaction, then lets the choreography take over.
func (s *Service) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (*Order, error) {
	if cmd.Quantity <= 0 {
		return nil, errors.New("order: quantity must be positive")
	}
	if cmd.Amount <= 0 {
		return nil, errors.New("order: amount must be positive")
	}

	o := &Order{
		ID:        uuid.NewString(),
		UserID:    cmd.UserID,
		ProductID: cmd.ProductID,
		Quantity:  cmd.Quantity,
		CouponID:  cmd.CouponID,
		Amount:    cmd.Amount,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	err := s.tx.Do(ctx, func(ctx context.Context) error {
		if err := s.orders.Create(ctx, o); err != nil {
			return err
		}
		entry, err := outbox.NewEntry(AggregateType, event.OrderCreated{
			OrderID:   o.ID,
			UserID:    o.UserID,
			ProductID: o.ProductID,
			Quantity:  o.Quantity,
			CouponID:  o.CouponID,
			Amount:    o.Amount,
			Timestamp: o.CreatedAt,
		})
		if err != nil {
			return err
		}
		return s.ledger.Append(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("order_id", o.ID).Msg("order created, saga started")
	return o, nil
}

// Get returns the order, including its terminal status and failure reason.
func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	return s.orders.Get(ctx, orderID)
}
