package entities

import (
	"bytes"
	"encoding/gob"
	"errors"
	"time"
)

type OrderStatus string

const (
	StatusNew        OrderStatus = "new"
	StatusProcessing OrderStatus = "processing"
	StatusCompleted  OrderStatus = "completed"
	StatusCancelled  OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusNew, StatusProcessing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Customer is the contact block captured at checkout.
type Customer struct {
	Name    string
	Email   string
	Phone   string
	Address string
	City    string
	ZIP     string
}

// LineItem is a frozen snapshot of a catalog position at admission time,
// not a live reference to catalog state.
type LineItem struct {
	ProductID      string
	Name           string
	Color          string
	Size           string
	UnitPriceCents int64
	Quantity       int
	SubtotalCents  int64
}

// Order is immutable once admitted except for Status.
type Order struct {
	ID            string
	OrderNumber   string
	Customer      Customer
	Items         []LineItem
	TotalCents    int64
	DeliveryMode  string
	PaymentMethod string
	StoreID       string
	Status        OrderStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrInvalidOrder        = errors.New("invalid order data")
	ErrInvalidStatus       = errors.New("invalid order status")
	ErrIdempotencyConflict = errors.New("idempotency token reused with different payload")
	ErrNumberExhausted     = errors.New("order number generation exhausted")
	ErrBackendUnavailable  = errors.New("storage backend unavailable for writes")
)

func (o *Order) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(o); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (o *Order) Unmarshal(data []byte) error {
	buf := bytes.NewBuffer(data)
	dec := gob.NewDecoder(buf)
	return dec.Decode(o)
}

func init() {
	gob.Register(Order{})
	gob.Register(Customer{})
	gob.Register(LineItem{})
}
