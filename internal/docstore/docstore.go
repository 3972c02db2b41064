// Package docstore is the flat-JSON storage backend: one document holding
// every order, one holding every idempotency record, each rewritten wholesale
// on mutation.
//
// A process-local mutex serializes all mutations, including the whole
// lookup-then-write admission window, which makes same-token races safe
// within one process. Concurrent use from multiple processes is not
// supported; the relational backend is the production consistency boundary.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/modahaus/storefront/internal/entities"
)

const (
	ordersFile = "orders.json"
	ledgerFile = "idempotency.json"

	schemaVersion = 1
)

// Sequencer produces an order number from the count of existing orders.
type Sequencer interface {
	Sequential(existing int) string
}

type Store struct {
	dir      string
	readOnly bool

	mu sync.Mutex
}

// New prepares the store directory. With readOnly set the store serves no
// writes and every mutation fails with entities.ErrBackendUnavailable.
func New(dir string, readOnly bool) (*Store, error) {
	s := &Store{dir: dir, readOnly: readOnly}
	if readOnly {
		return s, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create docstore dir: %w", err)
	}
	return s, nil
}

// AdmitResult reports how an admission resolved against the ledger.
type AdmitResult struct {
	Order  entities.Order
	Replay bool
}

// Admit runs the whole admission sequence under the store mutex: ledger
// lookup, order number assignment, order append, ledger append. The caller
// supplies the order with ID, status and timestamps already set; the number
// is assigned here because the sequence is derived from the order count.
func (s *Store) Admit(_ context.Context, order entities.Order, rec entities.IdempotencyRecord, seq Sequencer) (AdmitResult, error) {
	if s.readOnly {
		return AdmitResult{}, entities.ErrBackendUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ledger, err := s.loadLedger()
	if err != nil {
		return AdmitResult{}, err
	}

	for _, existing := range ledger.Records {
		if existing.Token != rec.Token {
			continue
		}
		if existing.RequestHash != rec.RequestHash {
			return AdmitResult{}, entities.ErrIdempotencyConflict
		}

		orders, err := s.loadOrders()
		if err != nil {
			return AdmitResult{}, err
		}
		for _, doc := range orders.Orders {
			if doc.ID == existing.OrderID {
				return AdmitResult{Order: orderFromDoc(doc), Replay: true}, nil
			}
		}
		return AdmitResult{}, fmt.Errorf("ledger references missing order %s", existing.OrderID)
	}

	orders, err := s.loadOrders()
	if err != nil {
		return AdmitResult{}, err
	}

	order.OrderNumber = seq.Sequential(len(orders.Orders))
	orders.Orders = append(orders.Orders, orderToDoc(order))
	if err := s.save(ordersFile, orders); err != nil {
		return AdmitResult{}, err
	}

	rec.OrderID = order.ID
	ledger.Records = append(ledger.Records, recordToDoc(rec))
	if err := s.save(ledgerFile, ledger); err != nil {
		// Order file already rewritten: a crash here leaves an order with no
		// ledger record, an accepted gap of this backend.
		return AdmitResult{}, err
	}

	return AdmitResult{Order: order}, nil
}

// UpsertOrder creates or overwrites the order by ID. Used by the dual-write
// mirror, so repeated applications converge.
func (s *Store) UpsertOrder(_ context.Context, order entities.Order) error {
	if s.readOnly {
		return entities.ErrBackendUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	orders, err := s.loadOrders()
	if err != nil {
		return err
	}

	doc := orderToDoc(order)
	replaced := false
	for i, existing := range orders.Orders {
		if existing.ID == order.ID {
			orders.Orders[i] = doc
			replaced = true
			break
		}
	}
	if !replaced {
		orders.Orders = append(orders.Orders, doc)
	}

	return s.save(ordersFile, orders)
}

// UpsertRecord creates or overwrites the ledger record by token.
func (s *Store) UpsertRecord(_ context.Context, rec entities.IdempotencyRecord) error {
	if s.readOnly {
		return entities.ErrBackendUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ledger, err := s.loadLedger()
	if err != nil {
		return err
	}

	doc := recordToDoc(rec)
	replaced := false
	for i, existing := range ledger.Records {
		if existing.Token == rec.Token {
			ledger.Records[i] = doc
			replaced = true
			break
		}
	}
	if !replaced {
		ledger.Records = append(ledger.Records, doc)
	}

	return s.save(ledgerFile, ledger)
}

func (s *Store) GetOrderByID(_ context.Context, orderID string) (entities.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders, err := s.loadOrders()
	if err != nil {
		return entities.Order{}, err
	}

	for _, doc := range orders.Orders {
		if doc.ID == orderID {
			return orderFromDoc(doc), nil
		}
	}
	return entities.Order{}, entities.ErrOrderNotFound
}

// LatestOrders returns up to count orders, newest first.
func (s *Store) LatestOrders(_ context.Context, count int) ([]entities.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders, err := s.loadOrders()
	if err != nil {
		return nil, err
	}

	result := make([]entities.Order, 0, count)
	for i := len(orders.Orders) - 1; i >= 0 && len(result) < count; i-- {
		result = append(result, orderFromDoc(orders.Orders[i]))
	}
	return result, nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, orderID string, status entities.OrderStatus) error {
	if s.readOnly {
		return entities.ErrBackendUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	orders, err := s.loadOrders()
	if err != nil {
		return err
	}

	for i, doc := range orders.Orders {
		if doc.ID == orderID {
			orders.Orders[i].Status = string(status)
			orders.Orders[i].UpdatedAt = time.Now().UTC()
			return s.save(ordersFile, orders)
		}
	}
	return entities.ErrOrderNotFound
}

// LookupToken resolves a ledger record outside of admission (read paths).
func (s *Store) LookupToken(_ context.Context, token string) (entities.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ledger, err := s.loadLedger()
	if err != nil {
		return entities.IdempotencyRecord{}, false, err
	}

	for _, doc := range ledger.Records {
		if doc.Token == token {
			return recordFromDoc(doc), true, nil
		}
	}
	return entities.IdempotencyRecord{}, false, nil
}

func (s *Store) loadOrders() (*ordersDocument, error) {
	doc := &ordersDocument{Version: schemaVersion}
	if err := s.load(ordersFile, doc); err != nil {
		return nil, err
	}
	if doc.Version > schemaVersion {
		return nil, fmt.Errorf("orders document version %d not supported", doc.Version)
	}
	return doc, nil
}

func (s *Store) loadLedger() (*ledgerDocument, error) {
	doc := &ledgerDocument{Version: schemaVersion}
	if err := s.load(ledgerFile, doc); err != nil {
		return nil, err
	}
	if doc.Version > schemaVersion {
		return nil, fmt.Errorf("ledger document version %d not supported", doc.Version)
	}
	return doc, nil
}

func (s *Store) load(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func (s *Store) save(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
