package docstore

import (
	"time"

	"github.com/modahaus/storefront/internal/entities"
)

// Documents carry explicit, versioned field lists so round-tripping between
// backends cannot silently drop or reinterpret fields.

type ordersDocument struct {
	Version int        `json:"version"`
	Orders  []orderDoc `json:"orders"`
}

type ledgerDocument struct {
	Version int         `json:"version"`
	Records []recordDoc `json:"records"`
}

type orderDoc struct {
	ID            string    `json:"id"`
	OrderNumber   string    `json:"order_number"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	CustomerPhone string    `json:"customer_phone,omitempty"`
	Address       string    `json:"address,omitempty"`
	City          string    `json:"city,omitempty"`
	ZIP           string    `json:"zip,omitempty"`
	Items         []itemDoc `json:"items"`
	TotalCents    int64     `json:"total_cents"`
	DeliveryMode  string    `json:"delivery_mode"`
	PaymentMethod string    `json:"payment_method"`
	StoreID       string    `json:"store_id,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type itemDoc struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	Color          string `json:"color,omitempty"`
	Size           string `json:"size,omitempty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Quantity       int    `json:"quantity"`
	SubtotalCents  int64  `json:"subtotal_cents"`
}

type recordDoc struct {
	Token       string    `json:"token"`
	RequestHash string    `json:"request_hash"`
	OrderID     string    `json:"order_id"`
	CreatedAt   time.Time `json:"created_at"`
}

func orderToDoc(o entities.Order) orderDoc {
	items := make([]itemDoc, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, itemDoc{
			ProductID:      it.ProductID,
			Name:           it.Name,
			Color:          it.Color,
			Size:           it.Size,
			UnitPriceCents: it.UnitPriceCents,
			Quantity:       it.Quantity,
			SubtotalCents:  it.SubtotalCents,
		})
	}

	return orderDoc{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		CustomerName:  o.Customer.Name,
		CustomerEmail: o.Customer.Email,
		CustomerPhone: o.Customer.Phone,
		Address:       o.Customer.Address,
		City:          o.Customer.City,
		ZIP:           o.Customer.ZIP,
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

func orderFromDoc(d orderDoc) entities.Order {
	items := make([]entities.LineItem, 0, len(d.Items))
	for _, it := range d.Items {
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

	return entities.Order{
		ID:          d.ID,
		OrderNumber: d.OrderNumber,
		Customer: entities.Customer{
			Name:    d.CustomerName,
			Email:   d.CustomerEmail,
			Phone:   d.CustomerPhone,
			Address: d.Address,
			City:    d.City,
			ZIP:     d.ZIP,
		},
		Items:         items,
		TotalCents:    d.TotalCents,
		DeliveryMode:  d.DeliveryMode,
		PaymentMethod: d.PaymentMethod,
		StoreID:       d.StoreID,
		Status:        entities.OrderStatus(d.Status),
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func recordToDoc(r entities.IdempotencyRecord) recordDoc {
	return recordDoc{
		Token:       r.Token,
		RequestHash: r.RequestHash,
		OrderID:     r.OrderID,
		CreatedAt:   r.CreatedAt,
	}
}

func recordFromDoc(d recordDoc) entities.IdempotencyRecord {
	return entities.IdempotencyRecord{
		Token:       d.Token,
		RequestHash: d.RequestHash,
		OrderID:     d.OrderID,
		CreatedAt:   d.CreatedAt,
	}
}
