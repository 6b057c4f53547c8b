package event

import "fmt"

// Saga topic names, one append-only stream per event type.
const (
	TopicOrderCreated           = "order.created"
	TopicStockReserved          = "stock.reserved"
	TopicStockReservationFailed = "stock.reservation.failed"
	TopicCouponReserved         = "coupon.reserved"
	TopicPaymentCompleted       = "payment.completed"
	TopicPaymentFailed          = "payment.failed"
	TopicOrderCompleted         = "order.completed"
	TopicOrderFailed            = "order.failed"
	TopicStockCompensation      = "stock.compensation.required"
	TopicCouponCompensation     = "coupon.compensation.required"
	TopicPaymentCompensation    = "payment.compensation.required"
)

var topicByType = map[string]string{
	TypeOrderCreated:           TopicOrderCreated,
	TypeStockReserved:          TopicStockReserved,
	TypeStockReservationFailed: TopicStockReservationFailed,
	TypeCouponReserved:         TopicCouponReserved,
	TypePaymentCompleted:       TopicPaymentCompleted,
	TypePaymentFailed:          TopicPaymentFailed,
	TypeOrderCompleted:         TopicOrderCompleted,
	TypeOrderFailed:            TopicOrderFailed,
	TypeStockCompensation:      TopicStockCompensation,
	TypeCouponCompensation:     TopicCouponCompensation,
	TypePaymentCompensation:    TopicPaymentCompensation,
}

// TopicFor resolves the broker topic for an event type. An unknown event type
// is a configuration error, never retried at runtime.
func TopicFor(eventType string) (string, error) {
	topic, ok := topicByType[eventType]
	if !ok {
		return "", fmt.Errorf("event: no topic mapped for event type %q", eventType)
	}
	return topic, nil
}
