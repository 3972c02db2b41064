package repo

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/modahaus/storefront/internal/entities"
	"github.com/modahaus/storefront/pkg/trm"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations brings the schema up to date at startup.
func RunMigrations(ctx context.Context, db *sqlx.DB) error {
	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db.DB, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

type postgresRepo struct {
	db *sqlx.DB
	qb sq.StatementBuilderType
}

func NewPostgresRepo(db *sqlx.DB) *postgresRepo {
	return &postgresRepo{
		db: db,
		qb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// InsertOrder persists the order and its line items. A uniqueness conflict
// (typically on order_number) comes back as an InsertResult value; the
// enclosing transaction is unusable after it and must be rolled back.
func (r *postgresRepo) InsertOrder(ctx context.Context, o entities.Order) (InsertResult, error) {
	query, args := r.qb.Insert("orders").
		Columns(
			"id", "order_number", "customer_name", "customer_email", "customer_phone",
			"address", "city", "zip", "delivery_mode", "payment_method",
			"store_id", "total_cents", "status", "created_at", "updated_at",
		).
		Values(
			o.ID, o.OrderNumber, o.Customer.Name, o.Customer.Email, nullString(o.Customer.Phone),
			nullString(o.Customer.Address), nullString(o.Customer.City), nullString(o.Customer.ZIP),
			o.DeliveryMode, o.PaymentMethod,
			nullString(o.StoreID), o.TotalCents, string(o.Status), o.CreatedAt, o.UpdatedAt,
		).
		MustSql()

	_, err := r.execContext(ctx, query, args...)
	res, err := classifyInsert(err)
	if err != nil {
		return InsertResult{}, fmt.Errorf("failed to insert order: %w", err)
	}
	if res.Outcome != Inserted {
		return res, nil
	}

	if len(o.Items) > 0 {
		q := r.qb.Insert("order_items").
			Columns("order_id", "product_id", "name", "color", "size",
				"unit_price_cents", "quantity", "subtotal_cents")

		for _, it := range o.Items {
			q = q.Values(
				o.ID,
				it.ProductID,
				it.Name,
				nullString(it.Color),
				nullString(it.Size),
				it.UnitPriceCents,
				it.Quantity,
				it.SubtotalCents,
			)
		}

		query, args := q.MustSql()
		if _, err := r.execContext(ctx, query, args...); err != nil {
			return InsertResult{}, fmt.Errorf("failed to insert order items: %w", err)
		}
	}

	return res, nil
}

// LookupToken returns the ledger record for token, with found=false when the
// token has never been seen.
func (r *postgresRepo) LookupToken(ctx context.Context, token string) (entities.IdempotencyRecord, bool, error) {
	query, args := r.qb.Select("id", "token", "request_hash", "order_id", "created_at").
		From("order_idempotency").
		Where(sq.Eq{"token": token}).
		MustSql()

	var row idempotencyRow
	err := r.getContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.IdempotencyRecord{}, false, nil
	}
	if err != nil {
		return entities.IdempotencyRecord{}, false, fmt.Errorf("failed to lookup idempotency token: %w", err)
	}

	return recordToEntity(row), true, nil
}

// RecordToken writes the ledger entry. Write-once: a uniqueness conflict on
// the token column is reported as a value so the caller can re-read and
// resolve replay vs conflict.
func (r *postgresRepo) RecordToken(ctx context.Context, id string, rec entities.IdempotencyRecord) (InsertResult, error) {
	query, args := r.qb.Insert("order_idempotency").
		Columns("id", "token", "request_hash", "order_id", "created_at").
		Values(id, rec.Token, rec.RequestHash, rec.OrderID, rec.CreatedAt).
		MustSql()

	_, err := r.execContext(ctx, query, args...)
	res, err := classifyInsert(err)
	if err != nil {
		return InsertResult{}, fmt.Errorf("failed to record idempotency token: %w", err)
	}
	return res, nil
}

func (r *postgresRepo) GetOrderByID(ctx context.Context, orderID string) (entities.Order, error) {
	query, args := r.qb.Select(
		"id", "order_number", "customer_name", "customer_email", "customer_phone",
		"address", "city", "zip", "delivery_mode", "payment_method",
		"store_id", "total_cents", "status", "created_at", "updated_at").
		From("orders").
		Where(sq.Eq{"id": orderID}).
		MustSql()

	var order orderRow
	err := r.getContext(ctx, &order, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Order{}, entities.ErrOrderNotFound
	}
	if err != nil {
		return entities.Order{}, fmt.Errorf("failed to get order: %w", err)
	}

	items, err := r.itemsFor(ctx, []string{orderID})
	if err != nil {
		return entities.Order{}, err
	}

	return orderToEntity(order, items[orderID]), nil
}

// LatestOrders returns the newest admitted orders for the back office.
func (r *postgresRepo) LatestOrders(ctx context.Context, count int) ([]entities.Order, error) {
	query, args := r.qb.Select(
		"id", "order_number", "customer_name", "customer_email", "customer_phone",
		"address", "city", "zip", "delivery_mode", "payment_method",
		"store_id", "total_cents", "status", "created_at", "updated_at").
		From("orders").
		OrderBy("created_at DESC").
		Limit(uint64(count)).
		MustSql()

	var orders []orderRow
	if err := r.selectContext(ctx, &orders, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select orders: %w", err)
	}

	if len(orders) == 0 {
		return []entities.Order{}, nil
	}

	ids := make([]string, len(orders))
	for i, order := range orders {
		ids[i] = order.ID
	}

	itemsMap, err := r.itemsFor(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]entities.Order, 0, len(orders))
	for _, order := range orders {
		result = append(result, orderToEntity(order, itemsMap[order.ID]))
	}

	return result, nil
}

// UpdateOrderStatus is the one mutation an admitted order permits.
func (r *postgresRepo) UpdateOrderStatus(ctx context.Context, orderID string, status entities.OrderStatus) error {
	query, args := r.qb.Update("orders").
		Set("status", string(status)).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": orderID}).
		MustSql()

	res, err := r.execContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return entities.ErrOrderNotFound
	}

	return nil
}

func (r *postgresRepo) itemsFor(ctx context.Context, orderIDs []string) (map[string][]itemRow, error) {
	query, args := r.qb.Select("order_id", "product_id", "name", "color", "size",
		"unit_price_cents", "quantity", "subtotal_cents").
		From("order_items").
		Where(sq.Eq{"order_id": orderIDs}).
		OrderBy("id").
		MustSql()

	var items []itemRow
	if err := r.selectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select order items: %w", err)
	}

	itemsMap := make(map[string][]itemRow, len(orderIDs))
	for _, item := range items {
		itemsMap[item.OrderID] = append(itemsMap[item.OrderID], item)
	}
	return itemsMap, nil
}

func (r *postgresRepo) execContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	tx := trm.ExtractTx(ctx)
	if tx != nil {
		return tx.ExecContext(ctx, query, args...)
	}
	return r.db.ExecContext(ctx, query, args...)
}

func (r *postgresRepo) getContext(ctx context.Context, dest any, query string, args ...any) error {
	tx := trm.ExtractTx(ctx)
	if tx != nil {
		return tx.GetContext(ctx, dest, query, args...)
	}
	return r.db.GetContext(ctx, dest, query, args...)
}

func (r *postgresRepo) selectContext(ctx context.Context, dest any, query string, args ...any) error {
	tx := trm.ExtractTx(ctx)
	if tx != nil {
		return tx.SelectContext(ctx, dest, query, args...)
	}
	return r.db.SelectContext(ctx, dest, query, args...)
}
