package handler

import (
	"time"

	"github.com/modahaus/storefront/internal/entities"
	"github.com/modahaus/storefront/internal/service"
)

// CheckoutRequest is a checkout submission. Line items arrive already priced
// and validated by the storefront's stock resolution; the total is trusted.
type CheckoutRequest struct {
	Customer      CustomerPayload   `json:"customer" validate:"required"`
	Items         []LineItemPayload `json:"items" validate:"required,min=1,dive"`
	TotalCents    int64             `json:"total_cents" validate:"gte=0"`
	DeliveryMode  string            `json:"delivery_mode" validate:"required,oneof=courier pickup postal"`
	PaymentMethod string            `json:"payment_method" validate:"required"`
	StoreID       string            `json:"store_id,omitempty"`
}

type CustomerPayload struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone,omitempty" validate:"omitempty,e164"`
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
	ZIP     string `json:"zip,omitempty"`
}

type LineItemPayload struct {
	ProductID      string `json:"product_id" validate:"required"`
	Name           string `json:"name" validate:"required"`
	Color          string `json:"color,omitempty"`
	Size           string `json:"size,omitempty"`
	UnitPriceCents int64  `json:"unit_price_cents" validate:"gte=0"`
	Quantity       int    `json:"quantity" validate:"required,gt=0"`
	SubtotalCents  int64  `json:"subtotal_cents" validate:"gte=0"`
}

// Order is the wire shape of an admitted order.
type Order struct {
	ID            string          `json:"id"`
	OrderNumber   string          `json:"order_number"`
	Customer      CustomerPayload `json:"customer"`
	Items         []LineItemPayload `json:"items"`
	TotalCents    int64           `json:"total_cents"`
	DeliveryMode  string          `json:"delivery_mode"`
	PaymentMethod string          `json:"payment_method"`
	StoreID       string          `json:"store_id,omitempty"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// StatusUpdate is the admin status transition body.
type StatusUpdate struct {
	Status string `json:"status" validate:"required"`
}

func (r CheckoutRequest) ToAdmission(token, hash string) service.AdmissionRequest {
	items := make([]entities.LineItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, entities.LineItem{
			ProductID:      it.ProductID,
			Name:           it.Name,
			Color:          it.Color,
			Size:           it.Size,
			UnitPriceCents: it.UnitPriceCents,
			Quantity:       it.Quantity,
			SubtotalCents:  it.SubtotalCents,
		})
	}

	return service.AdmissionRequest{
		Token:       token,
		RequestHash: hash,
		Customer: entities.Customer{
			Name:    r.Customer.Name,
			Email:   r.Customer.Email,
			Phone:   r.Customer.Phone,
			Address: r.Customer.Address,
			City:    r.Customer.City,
			ZIP:     r.Customer.ZIP,
		},
		Items:         items,
		TotalCents:    r.TotalCents,
		DeliveryMode:  r.DeliveryMode,
		PaymentMethod: r.PaymentMethod,
		StoreID:       r.StoreID,
	}
}

func OrderEntityToJSON(o entities.Order) Order {
	items := make([]LineItemPayload, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, LineItemPayload{
			ProductID:      it.ProductID,
			Name:           it.Name,
			Color:          it.Color,
			Size:           it.Size,
			UnitPriceCents: it.UnitPriceCents,
			Quantity:       it.Quantity,
			SubtotalCents:  it.SubtotalCents,
		})
	}

	return Order{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		Customer: CustomerPayload{
			Name:    o.Customer.Name,
			Email:   o.Customer.Email,
			Phone:   o.Customer.Phone,
			Address: o.Customer.Address,
			City:    o.Customer.City,
			ZIP:     o.Customer.ZIP,
		},
		Items:         items,
		TotalCents:    o.TotalCents,
		DeliveryMode:  o.DeliveryMode,
		PaymentMethod: o.PaymentMethod,
		StoreID:       o.StoreID,
		Status:        string(o.Status),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}
