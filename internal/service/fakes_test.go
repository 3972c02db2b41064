package service_test

import (
	"context"
	"database/sql"
	"sync"

	"github.com/modahaus/storefront/internal/docstore"
	"github.com/modahaus/storefront/internal/entities"
	"github.com/modahaus/storefront/internal/repo"
	"github.com/modahaus/storefront/pkg/trm"
)

// passthroughTx runs callbacks without a database, standing in for the
// serializable transaction wrapper.
type passthroughTx struct{}

type nopTx struct{}

func (nopTx) Commit() error   { return nil }
func (nopTx) Rollback() error { return nil }

func (passthroughTx) BeginTx(ctx context.Context, _ *sql.TxOptions) (context.Context, trm.Transaction, error) {
	return ctx, nopTx{}, nil
}

func (passthroughTx) Do(ctx context.Context, cb func(ctx context.Context) error) error {
	return cb(ctx)
}

func (passthroughTx) DoSerializable(ctx context.Context, cb func(ctx context.Context) error) error {
	return cb(ctx)
}

// fakeRepo is an in-memory RelationalRepo. Queued InsertResult values let
// tests inject uniqueness conflicts for particular insert calls.
type fakeRepo struct {
	mu      sync.Mutex
	orders  map[string]entities.Order
	records map[string]entities.IdempotencyRecord

	insertQueue []repo.InsertResult
	recordQueue []repo.InsertResult

	// installed when a queued token violation fires, simulating the
	// concurrent transaction that won the race.
	raceOrder  *entities.Order
	raceRecord *entities.IdempotencyRecord

	insertCalls int
	recordCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		orders:  make(map[string]entities.Order),
		records: make(map[string]entities.IdempotencyRecord),
	}
}

func (f *fakeRepo) InsertOrder(_ context.Context, o entities.Order) (repo.InsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.insertCalls++
	if len(f.insertQueue) > 0 {
		res := f.insertQueue[0]
		f.insertQueue = f.insertQueue[1:]
		if res.Outcome != repo.Inserted {
			return res, nil
		}
	}

	f.orders[o.ID] = o
	return repo.InsertResult{Outcome: repo.Inserted}, nil
}

func (f *fakeRepo) LookupToken(_ context.Context, token string) (entities.IdempotencyRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[token]
	return rec, ok, nil
}

func (f *fakeRepo) RecordToken(_ context.Context, _ string, rec entities.IdempotencyRecord) (repo.InsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.recordCalls++
	if len(f.recordQueue) > 0 {
		res := f.recordQueue[0]
		f.recordQueue = f.recordQueue[1:]
		if res.Outcome != repo.Inserted {
			if f.raceOrder != nil {
				f.orders[f.raceOrder.ID] = *f.raceOrder
			}
			if f.raceRecord != nil {
				f.records[f.raceRecord.Token] = *f.raceRecord
			}
			return res, nil
		}
	}

	f.records[rec.Token] = rec
	return repo.InsertResult{Outcome: repo.Inserted}, nil
}

func (f *fakeRepo) GetOrderByID(_ context.Context, orderID string) (entities.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	order, ok := f.orders[orderID]
	if !ok {
		return entities.Order{}, entities.ErrOrderNotFound
	}
	return order, nil
}

func (f *fakeRepo) LatestOrders(_ context.Context, count int) ([]entities.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	orders := make([]entities.Order, 0, count)
	for _, o := range f.orders {
		if len(orders) == count {
			break
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (f *fakeRepo) UpdateOrderStatus(_ context.Context, orderID string, status entities.OrderStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	order, ok := f.orders[orderID]
	if !ok {
		return entities.ErrOrderNotFound
	}
	order.Status = status
	f.orders[orderID] = order
	return nil
}

// fakeStore records mirror traffic and can be told to fail.
type fakeStore struct {
	mu        sync.Mutex
	orders    map[string]entities.Order
	records   map[string]entities.IdempotencyRecord
	upsertErr error

	orderUpserts  int
	recordUpserts int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:  make(map[string]entities.Order),
		records: make(map[string]entities.IdempotencyRecord),
	}
}

func (f *fakeStore) Admit(context.Context, entities.Order, entities.IdempotencyRecord, docstore.Sequencer) (docstore.AdmitResult, error) {
	return docstore.AdmitResult{}, entities.ErrBackendUnavailable
}

func (f *fakeStore) UpsertOrder(_ context.Context, order entities.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.orderUpserts++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.orders[order.ID] = order
	return nil
}

func (f *fakeStore) UpsertRecord(_ context.Context, rec entities.IdempotencyRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.recordUpserts++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.records[rec.Token] = rec
	return nil
}

func (f *fakeStore) GetOrderByID(_ context.Context, orderID string) (entities.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	order, ok := f.orders[orderID]
	if !ok {
		return entities.Order{}, entities.ErrOrderNotFound
	}
	return order, nil
}

func (f *fakeStore) LatestOrders(_ context.Context, count int) ([]entities.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	orders := make([]entities.Order, 0, count)
	for _, o := range f.orders {
		if len(orders) == count {
			break
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (f *fakeStore) UpdateOrderStatus(_ context.Context, orderID string, status entities.OrderStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	order, ok := f.orders[orderID]
	if !ok {
		return entities.ErrOrderNotFound
	}
	order.Status = status
	f.orders[orderID] = order
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	err    error
	orders []entities.Order
}

func (f *fakePublisher) PublishAdmitted(_ context.Context, order entities.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.orders = append(f.orders, order)
	return nil
}
