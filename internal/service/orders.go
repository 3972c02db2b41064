package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/modahaus/storefront/internal/entities"
	"github.com/modahaus/storefront/internal/storagemode"
	"github.com/modahaus/storefront/pkg/utils"
)

var readRetry = utils.RetryConfig{
	InitialDelay: 100 * time.Millisecond,
	MaxAttempts:  3,
	Multiplier:   2,
}

// GetOrderByID serves the read path through the cache, falling back to the
// authoritative backend for the current mode.
func (s *OrderService) GetOrderByID(ctx context.Context, orderID string) (entities.Order, error) {
	if data, ok := s.deps.Cache.Get(orderID); ok {
		var order entities.Order
		if err := order.Unmarshal(data); err != nil {
			s.logger.Error("failed to unmarshal cached order",
				slog.String("order_id", orderID), slog.Any("error", err))
			return entities.Order{}, fmt.Errorf("%w: %v", entities.ErrInvalidOrder, err)
		}
		return order, nil
	}

	var order entities.Order
	fn := func() error {
		var err error
		order, err = s.readBackend().GetOrderByID(ctx, orderID)
		return err
	}
	if err := utils.Retry(readRetry, fn, entities.ErrOrderNotFound); err != nil {
		return entities.Order{}, err
	}

	data, err := order.Marshal()
	if err != nil {
		s.logger.Error("failed to marshal order for cache",
			slog.String("order_id", orderID), slog.Any("error", err))
		return order, nil
	}
	s.deps.Cache.Set(orderID, data)
	return order, nil
}

// LatestOrders lists the newest orders for the back office.
func (s *OrderService) LatestOrders(ctx context.Context, count int) ([]entities.Order, error) {
	var orders []entities.Order
	fn := func() error {
		var err error
		orders, err = s.readBackend().LatestOrders(ctx, count)
		return err
	}
	if err := utils.Retry(readRetry, fn); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateOrderStatus applies the one mutation an order permits after
// admission. The authoritative backend decides success; a dual-write mirror
// of the new status is best-effort like admission mirroring.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID string, status entities.OrderStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", entities.ErrInvalidStatus, status)
	}

	mode := storagemode.Resolve(s.deps.Settings())

	if mode.WriteRelational {
		if err := s.deps.Repo.UpdateOrderStatus(ctx, orderID, status); err != nil {
			return err
		}
		if mode.WriteDocumentStore {
			s.mirrorStatus(ctx, orderID)
		}
	} else {
		if !mode.WriteDocumentStore {
			return entities.ErrBackendUnavailable
		}
		if err := s.deps.Store.UpdateOrderStatus(ctx, orderID, status); err != nil {
			return err
		}
	}

	s.deps.Cache.Invalidate(orderID)
	return nil
}

func (s *OrderService) mirrorStatus(ctx context.Context, orderID string) {
	order, err := s.deps.Repo.GetOrderByID(ctx, orderID)
	if err != nil {
		mirrorFailures.Inc()
		s.logger.Error("mirror status read-back failed",
			slog.String("order_id", orderID), slog.Any("error", err))
		return
	}
	if err := s.deps.Store.UpsertOrder(ctx, order); err != nil {
		mirrorFailures.Inc()
		s.logger.Error("mirror status write failed",
			slog.String("order_id", orderID), slog.Any("error", err))
	}
}

// readBackend picks the store reads resolve against for the current mode.
func (s *OrderService) readBackend() readSource {
	mode := storagemode.Resolve(s.deps.Settings())
	if mode.ReadRelational {
		return s.deps.Repo
	}
	return s.deps.Store
}

type readSource interface {
	GetOrderByID(ctx context.Context, orderID string) (entities.Order, error)
	LatestOrders(ctx context.Context, count int) ([]entities.Order, error)
}
