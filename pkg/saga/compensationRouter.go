package saga

import (
	"time"

	"github.com/zoff-tech/go-order-saga/pkg/event"
)

// Router encodes the reverse path of the saga. The forward chain is
// reserve-stock, reserve-coupon, deduct-funds, complete; rollback walks the
// committed steps in the opposite order and ends with the terminal failure
// event that flips the order to FAILED.
type Router struct{}

// Next returns the event that continues the rollback once the given step's
// local effect is no longer in force: the compensation request for the next
// earlier step, or the terminal failure event when no earlier step exists.
// Callers use it in two places: a forward handler that hits a business
// failure at step k passes the compensation type of step k (whose effect was
// never committed), and a compensation handler passes the type of the step it
// just undid.
func (Router) Next(undone event.CompensationType, orderID, reason string) event.DomainEvent {
	now := time.Now().UTC()
	switch undone {
	case event.CompensateDeductPoints:
		return event.CompensationRequested{
			OrderID:   orderID,
			Target:    event.CompensateReserveCoupon,
			Reason:    reason,
			Timestamp: now,
		}
	case event.CompensateReserveCoupon:
		return event.CompensationRequested{
			OrderID:   orderID,
			Target:    event.CompensateReserveStock,
			Reason:    reason,
			Timestamp: now,
		}
	default: // RESERVE_STOCK is the first mutating step
		return event.OrderFailed{
			OrderID:   orderID,
			Reason:    reason,
			Timestamp: now,
		}
	}
}
