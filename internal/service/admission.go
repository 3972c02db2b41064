package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/modahaus/storefront/internal/docstore"
	"github.com/modahaus/storefront/internal/entities"
	"github.com/modahaus/storefront/internal/ordernum"
	"github.com/modahaus/storefront/internal/repo"
	"github.com/modahaus/storefront/internal/storagemode"
	"github.com/modahaus/storefront/pkg/trm"
)

// RelationalRepo is the slice of the Postgres repository admission needs.
type RelationalRepo interface {
	InsertOrder(ctx context.Context, o entities.Order) (repo.InsertResult, error)
	LookupToken(ctx context.Context, token string) (entities.IdempotencyRecord, bool, error)
	RecordToken(ctx context.Context, id string, rec entities.IdempotencyRecord) (repo.InsertResult, error)
	GetOrderByID(ctx context.Context, orderID string) (entities.Order, error)
	LatestOrders(ctx context.Context, count int) ([]entities.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status entities.OrderStatus) error
}

// DocumentStore is the document backend surface: sole store when no database
// is configured, best-effort mirror otherwise.
type DocumentStore interface {
	Admit(ctx context.Context, order entities.Order, rec entities.IdempotencyRecord, seq docstore.Sequencer) (docstore.AdmitResult, error)
	UpsertOrder(ctx context.Context, order entities.Order) error
	UpsertRecord(ctx context.Context, rec entities.IdempotencyRecord) error
	GetOrderByID(ctx context.Context, orderID string) (entities.Order, error)
	LatestOrders(ctx context.Context, count int) ([]entities.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status entities.OrderStatus) error
}

// AdmittedPublisher feeds freshly admitted orders to downstream consumers.
type AdmittedPublisher interface {
	PublishAdmitted(ctx context.Context, order entities.Order) error
}

type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	Invalidate(key string)
}

// AdmissionRequest is a checkout submission that already passed validation
// and pricing: line items arrive priced and the total is trusted.
type AdmissionRequest struct {
	Token       string
	RequestHash string

	Customer      entities.Customer
	Items         []entities.LineItem
	TotalCents    int64
	DeliveryMode  string
	PaymentMethod string
	StoreID       string
}

type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeExisting Outcome = "existing"
)

type AdmissionResult struct {
	Outcome Outcome
	Order   entities.Order
}

// control-flow sentinels inside the relational admission loop
var (
	errRegenerateNumber = errors.New("order number already taken")
	errTokenCommitted   = errors.New("token committed by a concurrent request")
)

const txRetryBound = 5

// Deps carries the backends; either side may be nil when the corresponding
// backend is not configured.
type Deps struct {
	TxManager trm.Manager
	Repo      RelationalRepo
	Store     DocumentStore
	Numbers   *ordernum.Generator
	Cache     Cache
	Publisher AdmittedPublisher
	// Settings snapshots the storage configuration; the mode is resolved
	// from it on every call, never cached.
	Settings func() storagemode.Settings
}

type OrderService struct {
	logger *slog.Logger
	deps   Deps

	newID func() string
	now   func() time.Time
}

func NewOrderService(logger *slog.Logger, deps Deps) *OrderService {
	return &OrderService{
		logger: logger.With(slog.String("service", "order")),
		deps:   deps,
		newID:  uuid.NewString,
		now:    time.Now,
	}
}

// AdmitOrder turns one checkout submission into at most one persisted order.
// Identical retries replay the original order; token reuse with a different
// payload fails with entities.ErrIdempotencyConflict.
func (s *OrderService) AdmitOrder(ctx context.Context, req AdmissionRequest) (AdmissionResult, error) {
	mode := storagemode.Resolve(s.deps.Settings())

	var (
		result AdmissionResult
		err    error
	)
	if mode.WriteRelational {
		result, err = s.admitRelational(ctx, req)
	} else {
		result, err = s.admitDocument(ctx, req)
	}
	if err != nil {
		if errors.Is(err, entities.ErrIdempotencyConflict) {
			admissionsTotal.WithLabelValues("conflict").Inc()
		}
		return AdmissionResult{}, err
	}

	admissionsTotal.WithLabelValues(string(result.Outcome)).Inc()

	// Everything past this point is best-effort: the authoritative backend
	// has committed, so mirror and feed failures are logged and contained,
	// never turned into a failed response.
	if mode.WriteRelational && mode.WriteDocumentStore {
		s.mirror(ctx, result.Order, entities.IdempotencyRecord{
			Token:       req.Token,
			RequestHash: req.RequestHash,
			OrderID:     result.Order.ID,
			CreatedAt:   result.Order.CreatedAt,
		})
	}
	if result.Outcome == OutcomeCreated {
		s.publish(ctx, result.Order)
	}

	return result, nil
}

func (s *OrderService) admitRelational(ctx context.Context, req AdmissionRequest) (AdmissionResult, error) {
	numberAttempts := 0
	txRetries := 0

	for {
		result, err := s.tryAdmitTx(ctx, req)
		switch {
		case err == nil:
			return result, nil

		case errors.Is(err, errRegenerateNumber):
			numberAttempts++
			numberRegenerations.Inc()
			if numberAttempts >= ordernum.MaxAttempts {
				return AdmissionResult{}, entities.ErrNumberExhausted
			}
			s.logger.Warn("order number collision, regenerating",
				slog.Int("attempt", numberAttempts))

		case errors.Is(err, errTokenCommitted):
			// Lost the race on the ledger token: rerun, the lookup now
			// observes the committed row and resolves replay or conflict.
			s.logger.Debug("concurrent admission with same token, re-reading ledger",
				slog.String("token", req.Token))

		case repo.IsSerializationFailure(err):
			txRetries++
			if txRetries >= txRetryBound {
				return AdmissionResult{}, fmt.Errorf("admission transaction kept failing: %w", err)
			}

		default:
			return AdmissionResult{}, err
		}
	}
}

// tryAdmitTx is one full pass of the admission state machine inside a single
// serializable transaction.
func (s *OrderService) tryAdmitTx(ctx context.Context, req AdmissionRequest) (AdmissionResult, error) {
	var result AdmissionResult

	err := s.deps.TxManager.DoSerializable(ctx, func(ctx context.Context) error {
		rec, found, err := s.deps.Repo.LookupToken(ctx, req.Token)
		if err != nil {
			return err
		}
		if found {
			if rec.RequestHash != req.RequestHash {
				return entities.ErrIdempotencyConflict
			}
			order, err := s.deps.Repo.GetOrderByID(ctx, rec.OrderID)
			if err != nil {
				return fmt.Errorf("load replayed order: %w", err)
			}
			result = AdmissionResult{Outcome: OutcomeExisting, Order: order}
			return nil
		}

		number, err := s.deps.Numbers.Relational()
		if err != nil {
			return err
		}

		order := s.buildOrder(req, number)

		insRes, err := s.deps.Repo.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		if insRes.Outcome == repo.UniqueViolation {
			if insRes.Constraint == repo.ConstraintOrderNumber {
				return errRegenerateNumber
			}
			return fmt.Errorf("unexpected unique violation on %q", insRes.Constraint)
		}

		recRes, err := s.deps.Repo.RecordToken(ctx, s.newID(), entities.IdempotencyRecord{
			Token:       req.Token,
			RequestHash: req.RequestHash,
			OrderID:     order.ID,
			CreatedAt:   order.CreatedAt,
		})
		if err != nil {
			return err
		}
		if recRes.Outcome == repo.UniqueViolation {
			return errTokenCommitted
		}

		result = AdmissionResult{Outcome: OutcomeCreated, Order: order}
		return nil
	})
	if err != nil {
		return AdmissionResult{}, err
	}
	return result, nil
}

func (s *OrderService) admitDocument(ctx context.Context, req AdmissionRequest) (AdmissionResult, error) {
	// Order number is assigned inside the store, under its writer lock.
	order := s.buildOrder(req, "")

	res, err := s.deps.Store.Admit(ctx, order, entities.IdempotencyRecord{
		Token:       req.Token,
		RequestHash: req.RequestHash,
		CreatedAt:   order.CreatedAt,
	}, s.deps.Numbers)
	if err != nil {
		return AdmissionResult{}, err
	}

	outcome := OutcomeCreated
	if res.Replay {
		outcome = OutcomeExisting
	}
	return AdmissionResult{Outcome: outcome, Order: res.Order}, nil
}

func (s *OrderService) buildOrder(req AdmissionRequest, number string) entities.Order {
	now := s.now().UTC()
	return entities.Order{
		ID:            s.newID(),
		OrderNumber:   number,
		Customer:      req.Customer,
		Items:         req.Items,
		TotalCents:    req.TotalCents,
		DeliveryMode:  req.DeliveryMode,
		PaymentMethod: req.PaymentMethod,
		StoreID:       req.StoreID,
		Status:        entities.StatusNew,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// mirror replicates the committed order and its ledger entry to the document
// store. Mirror failures never propagate: they are logged and counted so
// drift is visible operationally without failing a request that already
// succeeded.
func (s *OrderService) mirror(ctx context.Context, order entities.Order, rec entities.IdempotencyRecord) {
	if err := s.deps.Store.UpsertOrder(ctx, order); err != nil {
		mirrorFailures.Inc()
		s.logger.Error("mirror order write failed",
			slog.String("order_id", order.ID), slog.Any("error", err))
		return
	}
	if err := s.deps.Store.UpsertRecord(ctx, rec); err != nil {
		mirrorFailures.Inc()
		s.logger.Error("mirror ledger write failed",
			slog.String("order_id", order.ID), slog.Any("error", err))
	}
}

func (s *OrderService) publish(ctx context.Context, order entities.Order) {
	if s.deps.Publisher == nil {
		return
	}
	if err := s.deps.Publisher.PublishAdmitted(ctx, order); err != nil {
		publishFailures.Inc()
		s.logger.Error("admitted order publish failed",
			slog.String("order_id", order.ID), slog.Any("error", err))
	}
}
