package service_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/modahaus/storefront/internal/docstore"
	"github.com/modahaus/storefront/internal/entities"
	"github.com/modahaus/storefront/internal/ordernum"
	"github.com/modahaus/storefront/internal/repo"
	"github.com/modahaus/storefront/internal/service"
	"github.com/modahaus/storefront/internal/storagemode"
	"github.com/modahaus/storefront/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func relationalSettings(dualWrite bool) func() storagemode.Settings {
	return func() storagemode.Settings {
		return storagemode.Settings{
			RelationalConfigured: true,
			Preference:           storagemode.PreferRelational,
			DualWrite:            dualWrite,
		}
	}
}

func documentSettings() func() storagemode.Settings {
	return func() storagemode.Settings {
		return storagemode.Settings{Preference: storagemode.PreferDocument}
	}
}

func admissionRequest(token, hash string) service.AdmissionRequest {
	return service.AdmissionRequest{
		Token:       token,
		RequestHash: hash,
		Customer: entities.Customer{
			Name:  "Anna Rossi",
			Email: "anna@example.com",
		},
		Items: []entities.LineItem{
			{ProductID: "dress-17", Name: "Silk Dress", Color: "ivory", Size: "40", UnitPriceCents: 200000, Quantity: 2, SubtotalCents: 400000},
		},
		TotalCents:    400000,
		DeliveryMode:  "courier",
		PaymentMethod: "card",
		StoreID:       "milano-1",
	}
}

func newRelationalService(t *testing.T, orderRepo *fakeRepo, store *fakeStore, pub *fakePublisher, dualWrite bool) *service.OrderService {
	t.Helper()

	deps := service.Deps{
		TxManager: passthroughTx{},
		Repo:      orderRepo,
		Store:     store,
		Numbers:   ordernum.New("MH"),
		Cache:     cache.NewLRU(100, time.Minute),
		Settings:  relationalSettings(dualWrite),
	}
	if pub != nil {
		deps.Publisher = pub
	}
	return service.NewOrderService(discardLogger(), deps)
}

func TestAdmitOrder_RelationalFresh(t *testing.T) {
	orderRepo := newFakeRepo()
	store := newFakeStore()
	svc := newRelationalService(t, orderRepo, store, nil, false)

	res, err := svc.AdmitOrder(context.Background(), admissionRequest("chk-001", "h1"))
	require.NoError(t, err)

	assert.Equal(t, service.OutcomeCreated, res.Outcome)
	assert.NotEmpty(t, res.Order.ID)
	assert.Regexp(t, regexp.MustCompile(`^MH-\d{4}-`), res.Order.OrderNumber)
	assert.Equal(t, entities.StatusNew, res.Order.Status)
	assert.Equal(t, int64(400000), res.Order.TotalCents)

	rec, found, err := orderRepo.LookupToken(context.Background(), "chk-001")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, res.Order.ID, rec.OrderID)
	assert.Equal(t, "h1", rec.RequestHash)

	// dual-write disabled: nothing mirrored
	assert.Zero(t, store.orderUpserts)
}

func TestAdmitOrder_RelationalReplay(t *testing.T) {
	orderRepo := newFakeRepo()
	svc := newRelationalService(t, orderRepo, newFakeStore(), nil, false)

	first, err := svc.AdmitOrder(context.Background(), admissionRequest("chk-001", "h1"))
	require.NoError(t, err)

	second, err := svc.AdmitOrder(context.Background(), admissionRequest("chk-001", "h1"))
	require.NoError(t, err)

	assert.Equal(t, service.OutcomeExisting, second.Outcome)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, first.Order.OrderNumber, second.Order.OrderNumber)
	assert.Len(t, orderRepo.orders, 1)
}

func TestAdmitOrder_RelationalConflict(t *testing.T) {
	orderRepo := newFakeRepo()
	svc := newRelationalService(t, orderRepo, newFakeStore(), nil, false)

	_, err := svc.AdmitOrder(context.Background(), admissionRequest("chk-001", "h1"))
	require.NoError(t, err)

	_, err = svc.AdmitOrder(context.Background(), admissionRequest("chk-001", "h2"))
	assert.ErrorIs(t, err, entities.ErrIdempotencyConflict)
	assert.Len(t, orderRepo.orders, 1)
}

func TestAdmitOrder_NumberCollisionRegenerates(t *testing.T) {
	orderRepo := newFakeRepo()
	orderRepo.insertQueue = []repo.InsertResult{
		{Outcome: repo.UniqueViolation, Constraint: repo.ConstraintOrderNumber},
		{Outcome: repo.UniqueViolation, Constraint: repo.ConstraintOrderNumber},
	}
	svc := newRelationalService(t, orderRepo, newFakeStore(), nil, false)

	res, err := svc.AdmitOrder(context.Background(), admissionRequest("chk-001", "h1"))
	require.NoError(t, err)

	assert.Equal(t, service.OutcomeCreated, res.Outcome)
	assert.Equal(t, 3, orderRepo.insertCalls)
}

func TestAdmitOrder_NumberGenerationExhausted(t *testing.T) {
	orderRepo := newFakeRepo()
	for n := 0; n < ordernum.MaxAttempts; n++ {
		orderRepo.insertQueue = append(orderRepo.insertQueue,
			repo.InsertResult{Outcome: repo.UniqueViolation, Constraint: repo.ConstraintOrderNumber})
	}
	svc := newRelationalService(t, orderRepo, newFakeStore(), nil, false)

	_, err := svc.AdmitOrder(context.Background(), admissionRequest("chk-001", "h1"))
	assert.ErrorIs(t, err, entities.ErrNumberExhausted)
	assert.Equal(t, ordernum.MaxAttempts, orderRepo.insertCalls)
	assert.Empty(t, orderRepo.records)
}

func TestAdmitOrder_TokenRaceResolvesToReplay(t *testing.T) {
	winner := entities.Order{
		ID:          "winner-id",
		OrderNumber: "MH-2026-WINNER-1",
		Status:      entities.StatusNew,
	}
	winnerRec := entities.IdempotencyRecord{
		Token:       "chk-001",
		RequestHash: "h1",
		OrderID:     winner.ID,
		CreatedAt:   time.Now().UTC(),
	}

	orderRepo := newFakeRepo()
	orderRepo.recordQueue = []repo.InsertResult{
		{Outcome: repo.UniqueViolation, Constraint: repo.ConstraintToken},
	}
	orderRepo.raceOrder = &winner
	orderRepo.raceRecord = &winnerRec

	svc := newRelationalService(t, orderRepo, newFakeStore(), nil, false)

	res, err := svc.AdmitOrder(context.Background(), admissionRequest("chk-001", "h1"))
	require.NoError(t, err)

	assert.Equal(t, service.OutcomeExisting, res.Outcome)
	assert.Equal(t, "winner-id", res.Order.ID)
}

func TestAdmitOrder_TokenRaceResolvesToConflict(t *testing.T) {
	winnerRec := entities.IdempotencyRecord{
		Token:       "chk-001",
		RequestHash: "other-hash",
		OrderID:     "winner-id",
		CreatedAt:   time.Now().UTC(),
	}

	orderRepo := newFakeRepo()
	orderRepo.recordQueue = []repo.InsertResult{
		{Outcome: repo.UniqueViolation, Constraint: repo.ConstraintToken},
	}
	orderRepo.raceRecord = &winnerRec

	svc := newRelationalService(t, orderRepo, newFakeStore(), nil, false)

	_, err := svc.AdmitOrder(context.Background(), admissionRequest("chk-001", "h1"))
	assert.ErrorIs(t, err, entities.ErrIdempotencyConflict)
}

func TestAdmitOrder_DualWriteMirrors(t *testing.T) {
	orderRepo := newFakeRepo()
	store := newFakeStore()
	svc := newRelationalService(t, orderRepo, store, nil, true)

	res, err := svc.AdmitOrder(context.Background(), admissionRequest("chk-001", "h1"))
	require.NoError(t, err)

	mirrored, err := store.GetOrderByID(context.Background(), res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Order, mirrored)
	assert.Equal(t, 1, store.orderUpserts)
	assert.Equal(t, 1, store.recordUpserts)

	// replay mirrors again; upserts stay convergent
	_, err = svc.AdmitOrder(context.Background(), admissionRequest("chk-001", "h1"))
	require.NoError(t, err)
	assert.Equal(t, 2, store.orderUpserts)
	assert.Len(t, store.orders, 1)
}

func TestAdmitOrder_MirrorFailureDoesNotFailRequest(t *testing.T) {
	orderRepo := newFakeRepo()
	store := newFakeStore()
	store.upsertErr = errors.New("disk full")
	svc := newRelationalService(t, orderRepo, store, nil, true)

	res, err := svc.AdmitOrder(context.Background(), admissionRequest("chk-001", "h1"))
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeCreated, res.Outcome)
}

func TestAdmitOrder_PublishFailureDoesNotFailRequest(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	svc := newRelationalService(t, newFakeRepo(), newFakeStore(), pub, false)

	res, err := svc.AdmitOrder(context.Background(), admissionRequest("chk-001", "h1"))
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeCreated, res.Outcome)
}

func TestAdmitOrder_PublishesFreshOnly(t *testing.T) {
	pub := &fakePublisher{}
	svc := newRelationalService(t, newFakeRepo(), newFakeStore(), pub, false)

	_, err := svc.AdmitOrder(context.Background(), admissionRequest("chk-001", "h1"))
	require.NoError(t, err)
	_, err = svc.AdmitOrder(context.Background(), admissionRequest("chk-001", "h1"))
	require.NoError(t, err)

	assert.Len(t, pub.orders, 1)
}

func newDocumentService(t *testing.T) *service.OrderService {
	t.Helper()

	store, err := docstore.New(t.TempDir(), false)
	require.NoError(t, err)

	return service.NewOrderService(discardLogger(), service.Deps{
		Store:    store,
		Numbers:  ordernum.New("MH"),
		Cache:    cache.NewLRU(100, time.Minute),
		Settings: documentSettings(),
	})
}

// The full checkout scenario: fresh, replay, then conflicting payload.
func TestAdmitOrder_DocumentScenario(t *testing.T) {
	ctx := context.Background()
	svc := newDocumentService(t)

	year := time.Now().UTC().Year()

	first, err := svc.AdmitOrder(ctx, admissionRequest("chk-001", "h1"))
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeCreated, first.Outcome)
	assert.Equal(t, fmt.Sprintf("MH-%d-000001", year), first.Order.OrderNumber)

	second, err := svc.AdmitOrder(ctx, admissionRequest("chk-001", "h1"))
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeExisting, second.Outcome)
	assert.Equal(t, first.Order.OrderNumber, second.Order.OrderNumber)
	assert.Equal(t, first.Order.ID, second.Order.ID)

	_, err = svc.AdmitOrder(ctx, admissionRequest("chk-001", "h2"))
	assert.ErrorIs(t, err, entities.ErrIdempotencyConflict)

	orders, err := svc.LatestOrders(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestAdmitOrder_ReadOnlyDocumentStoreUnavailable(t *testing.T) {
	store, err := docstore.New(t.TempDir(), true)
	require.NoError(t, err)

	svc := service.NewOrderService(discardLogger(), service.Deps{
		Store:    store,
		Numbers:  ordernum.New("MH"),
		Cache:    cache.NewLRU(100, time.Minute),
		Settings: documentSettings(),
	})

	_, err = svc.AdmitOrder(context.Background(), admissionRequest("chk-001", "h1"))
	assert.ErrorIs(t, err, entities.ErrBackendUnavailable)
}
