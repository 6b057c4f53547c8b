package event

import "time"

// CompensationType names the committed forward step a compensation event
// undoes. The set is closed; it mirrors the mutating steps of the saga.
type CompensationType string

const (
	CompensateReserveStock  CompensationType = "RESERVE_STOCK"
	CompensateReserveCoupon CompensationType = "RESERVE_COUPON"
	CompensateDeductPoints  CompensationType = "DEDUCT_POINTS"
)

// CompensationRequested asks the owner of a previously committed step to undo
// its local effect. The handler recovers quantities and amounts from its own
// reservation records, so the payload stays minimal.
type CompensationRequested struct {
	OrderID   string           `json:"orderId"`
	Target    CompensationType `json:"compensationType"`
	Reason    string           `json:"reason"`
	Timestamp time.Time        `json:"timestamp"`
}

func (e CompensationRequested) AggregateID() string { return e.OrderID }

func (e CompensationRequested) EventType() string {
	switch e.Target {
	case CompensateReserveStock:
		return TypeStockCompensation
	case CompensateReserveCoupon:
		return TypeCouponCompensation
	case CompensateDeductPoints:
		return TypePaymentCompensation
	}
	return ""
}
