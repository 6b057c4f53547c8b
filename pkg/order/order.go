package order

import "time"

// Status represents the saga aggregate state of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Order is the saga aggregate. It is created PENDING by the initiating step
// and moved to a terminal status exactly once; COMPLETED and FAILED have no
// outgoing transitions.
type Order struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	ProductID     string    `json:"product_id"`
	Quantity      int       `json:"quantity"`
	CouponID      string    `json:"coupon_id,omitempty"`
	Amount        int64     `json:"amount"`
	Status        Status    `json:"status"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
