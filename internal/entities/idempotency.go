package entities

import "time"

// IdempotencyRecord maps a client-chosen token to the outcome of the first
// request that used it. Written exactly once, together with its order.
type IdempotencyRecord struct {
	Token       string
	RequestHash string
	OrderID     string
	CreatedAt   time.Time
}
