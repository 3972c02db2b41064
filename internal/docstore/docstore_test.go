package docstore_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/modahaus/storefront/internal/docstore"
	"github.com/modahaus/storefront/internal/entities"
	"github.com/modahaus/storefront/internal/ordernum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func testOrder(id string) entities.Order {
	now := time.Now().UTC().Truncate(time.Second)
	return entities.Order{
		ID: id,
		Customer: entities.Customer{
			Name:  "Anna Rossi",
			Email: "anna@example.com",
			City:  "Milano",
		},
		Items: []entities.LineItem{
			{ProductID: "coat-301", Name: "Wool Coat", Color: "camel", Size: "42", UnitPriceCents: 200000, Quantity: 2, SubtotalCents: 400000},
		},
		TotalCents:    400000,
		DeliveryMode:  "courier",
		PaymentMethod: "card",
		StoreID:       "milano-1",
		Status:        entities.StatusNew,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func record(token, hash, orderID string) entities.IdempotencyRecord {
	return entities.IdempotencyRecord{
		Token:       token,
		RequestHash: hash,
		OrderID:     orderID,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func TestStore_AdmitFreshThenReplay(t *testing.T) {
	ctx := context.Background()
	store, err := docstore.New(t.TempDir(), false)
	require.NoError(t, err)

	gen := ordernum.New("MH")

	res, err := store.Admit(ctx, testOrder("ord-1"), record("chk-001", "h1", ""), gen)
	require.NoError(t, err)
	assert.False(t, res.Replay)
	assert.Equal(t, fmt.Sprintf("MH-%d-000001", time.Now().UTC().Year()), res.Order.OrderNumber)

	// same token, same hash: replay returns the original order untouched
	replay, err := store.Admit(ctx, testOrder("ord-2"), record("chk-001", "h1", ""), gen)
	require.NoError(t, err)
	assert.True(t, replay.Replay)
	assert.Equal(t, res.Order.ID, replay.Order.ID)
	assert.Equal(t, res.Order.OrderNumber, replay.Order.OrderNumber)

	orders, err := store.LatestOrders(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestStore_AdmitConflictOnDifferentHash(t *testing.T) {
	ctx := context.Background()
	store, err := docstore.New(t.TempDir(), false)
	require.NoError(t, err)

	gen := ordernum.New("MH")

	_, err = store.Admit(ctx, testOrder("ord-1"), record("chk-001", "h1", ""), gen)
	require.NoError(t, err)

	_, err = store.Admit(ctx, testOrder("ord-2"), record("chk-001", "h2", ""), gen)
	assert.ErrorIs(t, err, entities.ErrIdempotencyConflict)

	orders, err := store.LatestOrders(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestStore_AdmitConcurrentSameToken(t *testing.T) {
	ctx := context.Background()
	store, err := docstore.New(t.TempDir(), false)
	require.NoError(t, err)

	gen := ordernum.New("MH")

	const attempts = 16
	replays := make([]bool, attempts)

	var g errgroup.Group
	for i := 0; i < attempts; i++ {
		i := i
		g.Go(func() error {
			res, err := store.Admit(ctx, testOrder(fmt.Sprintf("ord-%d", i)), record("chk-race", "h1", ""), gen)
			if err != nil {
				return err
			}
			replays[i] = res.Replay
			return nil
		})
	}
	require.NoError(t, g.Wait())

	fresh := 0
	for _, replay := range replays {
		if !replay {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh, "exactly one admission must create the order")

	orders, err := store.LatestOrders(ctx, attempts)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestStore_UpsertOrderIdempotent(t *testing.T) {
	ctx := context.Background()
	store, err := docstore.New(t.TempDir(), false)
	require.NoError(t, err)

	order := testOrder("ord-1")
	order.OrderNumber = "MH-2026-ABC-DEFG"

	require.NoError(t, store.UpsertOrder(ctx, order))
	require.NoError(t, store.UpsertOrder(ctx, order))

	orders, err := store.LatestOrders(ctx, 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, order, orders[0])
}

func TestStore_UpsertRecordIdempotent(t *testing.T) {
	ctx := context.Background()
	store, err := docstore.New(t.TempDir(), false)
	require.NoError(t, err)

	rec := record("chk-001", "h1", "ord-1")

	require.NoError(t, store.UpsertRecord(ctx, rec))
	require.NoError(t, store.UpsertRecord(ctx, rec))

	got, found, err := store.LookupToken(ctx, "chk-001")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rec, got)
}

func TestStore_ReadOnlyRejectsWrites(t *testing.T) {
	ctx := context.Background()
	store, err := docstore.New(t.TempDir(), true)
	require.NoError(t, err)

	_, err = store.Admit(ctx, testOrder("ord-1"), record("chk-001", "h1", ""), ordernum.New("MH"))
	assert.ErrorIs(t, err, entities.ErrBackendUnavailable)

	assert.ErrorIs(t, store.UpsertOrder(ctx, testOrder("ord-1")), entities.ErrBackendUnavailable)
	assert.ErrorIs(t, store.UpsertRecord(ctx, record("chk-001", "h1", "ord-1")), entities.ErrBackendUnavailable)
	assert.ErrorIs(t, store.UpdateOrderStatus(ctx, "ord-1", entities.StatusCancelled), entities.ErrBackendUnavailable)
}

func TestStore_UpdateOrderStatus(t *testing.T) {
	ctx := context.Background()
	store, err := docstore.New(t.TempDir(), false)
	require.NoError(t, err)

	res, err := store.Admit(ctx, testOrder("ord-1"), record("chk-001", "h1", ""), ordernum.New("MH"))
	require.NoError(t, err)

	require.NoError(t, store.UpdateOrderStatus(ctx, res.Order.ID, entities.StatusProcessing))

	got, err := store.GetOrderByID(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusProcessing, got.Status)

	err = store.UpdateOrderStatus(ctx, "missing", entities.StatusCompleted)
	assert.ErrorIs(t, err, entities.ErrOrderNotFound)
}
