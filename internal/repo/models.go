package repo

import (
	"database/sql"
	"time"

	"github.com/modahaus/storefront/internal/entities"
)

type orderRow struct {
	ID            string         `db:"id"`
	OrderNumber   string         `db:"order_number"`
	CustomerName  string         `db:"customer_name"`
	CustomerEmail string         `db:"customer_email"`
	CustomerPhone sql.NullString `db:"customer_phone"`
	Address       sql.NullString `db:"address"`
	City          sql.NullString `db:"city"`
	ZIP           sql.NullString `db:"zip"`
	DeliveryMode  string         `db:"delivery_mode"`
	PaymentMethod string         `db:"payment_method"`
	StoreID       sql.NullString `db:"store_id"`
	TotalCents    int64          `db:"total_cents"`
	Status        string         `db:"status"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

type itemRow struct {
	OrderID        string         `db:"order_id"`
	ProductID      string         `db:"product_id"`
	Name           string         `db:"name"`
	Color          sql.NullString `db:"color"`
	Size           sql.NullString `db:"size"`
	UnitPriceCents int64          `db:"unit_price_cents"`
	Quantity       int            `db:"quantity"`
	SubtotalCents  int64          `db:"subtotal_cents"`
}

type idempotencyRow struct {
	ID          string    `db:"id"`
	Token       string    `db:"token"`
	RequestHash string    `db:"request_hash"`
	OrderID     string    `db:"order_id"`
	CreatedAt   time.Time `db:"created_at"`
}

func orderToEntity(o orderRow, items []itemRow) entities.Order {
	order := entities.Order{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		Customer: entities.Customer{
			Name:    o.CustomerName,
			Email:   o.CustomerEmail,
			Phone:   nullStringToString(o.CustomerPhone),
			Address: nullStringToString(o.Address),
			City:    nullStringToString(o.City),
			ZIP:     nullStringToString(o.ZIP),
		},
		DeliveryMode:  o.DeliveryMode,
		PaymentMethod: o.PaymentMethod,
		StoreID:       nullStringToString(o.StoreID),
		TotalCents:    o.TotalCents,
		Status:        entities.OrderStatus(o.Status),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}

	if len(items) > 0 {
		order.Items = make([]entities.LineItem, 0, len(items))
		for _, it := range items {
			order.Items = append(order.Items, itemToEntity(it))
		}
	}

	return order
}

func itemToEntity(i itemRow) entities.LineItem {
	return entities.LineItem{
		ProductID:      i.ProductID,
		Name:           i.Name,
		Color:          nullStringToString(i.Color),
		Size:           nullStringToString(i.Size),
		UnitPriceCents: i.UnitPriceCents,
		Quantity:       i.Quantity,
		SubtotalCents:  i.SubtotalCents,
	}
}

func recordToEntity(r idempotencyRow) entities.IdempotencyRecord {
	return entities.IdempotencyRecord{
		Token:       r.Token,
		RequestHash: r.RequestHash,
		OrderID:     r.OrderID,
		CreatedAt:   r.CreatedAt,
	}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
