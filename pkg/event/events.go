package event

import "time"

// Event type tags. The set is closed: the publisher resolves topics from
// these tags and treats anything else as a configuration error.
const (
	TypeOrderCreated           = "ORDER_CREATED"
	TypeStockReserved          = "STOCK_RESERVED"
	TypeStockReservationFailed = "STOCK_RESERVATION_FAILED"
	TypeCouponReserved         = "COUPON_RESERVED"
	TypePaymentCompleted       = "PAYMENT_COMPLETED"
	TypePaymentFailed          = "PAYMENT_FAILED"
	TypeOrderCompleted         = "ORDER_COMPLETED"
	TypeOrderFailed            = "ORDER_FAILED"
	TypeStockCompensation      = "STOCK_COMPENSATION_REQUIRED"
	TypeCouponCompensation     = "COUPON_COMPENSATION_REQUIRED"
	TypePaymentCompensation    = "PAYMENT_COMPENSATION_REQUIRED"
)

// OrderCreated starts the saga. Amount is the price to debit; it is carried
// through the whole chain rather than recomputed by later participants.
type OrderCreated struct {
	OrderID   string    `json:"aggregateId"`
	UserID    string    `json:"userId"`
	ProductID string    `json:"productId"`
	Quantity  int       `json:"quantity"`
	CouponID  string    `json:"couponId,omitempty"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

func (e OrderCreated) AggregateID() string { return e.OrderID }
func (e OrderCreated) EventType() string   { return TypeOrderCreated }

// StockReserved confirms the stock reservation and propagates the order
// details the downstream steps still need.
type StockReserved struct {
	OrderID   string    `json:"aggregateId"`
	UserID    string    `json:"userId"`
	ProductID string    `json:"productId"`
	Quantity  int       `json:"quantity"`
	CouponID  string    `json:"couponId,omitempty"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

func (e StockReserved) AggregateID() string { return e.OrderID }
func (e StockReserved) EventType() string   { return TypeStockReserved }

// StockReservationFailed is the terminal failure of the first mutating step.
// No prior participant has mutated state, so no compensation is required.
type StockReservationFailed struct {
	OrderID   string    `json:"aggregateId"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

func (e StockReservationFailed) AggregateID() string { return e.OrderID }
func (e StockReservationFailed) EventType() string   { return TypeStockReservationFailed }

// CouponReserved confirms the coupon reservation. Amount already has the
// coupon discount applied.
type CouponReserved struct {
	OrderID   string    `json:"aggregateId"`
	UserID    string    `json:"userId"`
	CouponID  string    `json:"couponId,omitempty"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

func (e CouponReserved) AggregateID() string { return e.OrderID }
func (e CouponReserved) EventType() string   { return TypeCouponReserved }

// PaymentCompleted confirms the funds deduction, the last mutating step
// before the order is finalized.
type PaymentCompleted struct {
	OrderID   string    `json:"aggregateId"`
	UserID    string    `json:"userId"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

func (e PaymentCompleted) AggregateID() string { return e.OrderID }
func (e PaymentCompleted) EventType() string   { return TypePaymentCompleted }

// PaymentFailed reports a business failure of the funds deduction. It is
// always accompanied by a compensation event for the previous step.
type PaymentFailed struct {
	OrderID   string    `json:"aggregateId"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

func (e PaymentFailed) AggregateID() string { return e.OrderID }
func (e PaymentFailed) EventType() string   { return TypePaymentFailed }

// OrderCompleted is the terminal success event.
type OrderCompleted struct {
	OrderID   string    `json:"aggregateId"`
	Timestamp time.Time `json:"timestamp"`
}

func (e OrderCompleted) AggregateID() string { return e.OrderID }
func (e OrderCompleted) EventType() string   { return TypeOrderCompleted }

// OrderFailed is the terminal failure event, emitted either directly on an
// early failure or at the end of the compensation chain.
type OrderFailed struct {
	OrderID   string    `json:"aggregateId"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

func (e OrderFailed) AggregateID() string { return e.OrderID }
func (e OrderFailed) EventType() string   { return TypeOrderFailed }
