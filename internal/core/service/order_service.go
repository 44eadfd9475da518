package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/apartment-hub/internal/core/domain"
	"github.com/rl1809/apartment-hub/internal/port"
)

var ErrOrderInProgress = fmt.Errorf("%w: an order is already being created from this cart", domain.ErrConflict)

const orderLockKeyPrefix = "order-lock:"

type OrderService struct {
	store   port.Store
	lock    port.OrderLock
	events  port.EventPublisher
	log     *slog.Logger
	lockTTL time.Duration
}

func NewOrderService(store port.Store, lock port.OrderLock, events port.EventPublisher, log *slog.Logger, lockTTL time.Duration) *OrderService {
	return &OrderService{
		store:   store,
		lock:    lock,
		events:  events,
		log:     log,
		lockTTL: lockTTL,
	}
}

// CreateFromCart snapshots the resident's cart into a PENDING order and
// empties the cart. Only one conversion per resident runs at a time.
func (s *OrderService) CreateFromCart(ctx context.Context, p domain.Principal) (*domain.Order, error) {
	key := orderLockKeyPrefix + p.ResidentID

	token, ok, err := s.lock.Acquire(ctx, key, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire order lock: %w", err)
	}
	if !ok {
		return nil, ErrOrderInProgress
	}
	defer func() {
		// the caller's context may already be cancelled; the lock must still go
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := s.lock.Release(releaseCtx, key, token); err != nil {
			s.log.ErrorContext(ctx, "release order lock failed", "resident_id", p.ResidentID, "error", err)
		}
	}()

	var order domain.Order
	err = s.store.RunInTx(ctx, func(ctx context.Context, repo port.DatabaseRepository) error {
		cart, err := repo.GetCartByResident(ctx, p.ResidentID, true)
		if err != nil {
			return fmt.Errorf("get cart: %w", err)
		}
		if cart == nil {
			return domain.NotFoundError("cart")
		}

		now := time.Now().UTC()
		order = domain.Order{
			ID:         uuid.NewString(),
			ResidentID: p.ResidentID,
			Total:      decimal.Zero,
			Status:     domain.OrderStatusPending,
			Lines:      make([]domain.OrderLine, 0, len(cart.Lines)),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := repo.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for _, cl := range cart.Lines {
			line := domain.NewOrderLine(uuid.NewString(), order.ID, cl)
			if err := repo.InsertOrderLine(ctx, line); err != nil {
				return fmt.Errorf("insert order line: %w", err)
			}
			order.Lines = append(order.Lines, line)
			order.Total = order.Total.Add(line.Subtotal())
		}

		if err := repo.UpdateOrderTotal(ctx, order); err != nil {
			return fmt.Errorf("update order total: %w", err)
		}
		if err := repo.DeleteCartLines(ctx, cart.ID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "order created",
		"order_id", order.ID,
		"resident_id", order.ResidentID,
		"lines", len(order.Lines),
		"total", order.Total.String(),
	)
	s.publish(ctx, domain.Event{
		Type:       domain.EventOrderCreated,
		ResidentID: order.ResidentID,
		EntityID:   order.ID,
		Payload:    order,
		OccurredAt: order.CreatedAt,
	})
	return &order, nil
}

// Confirm moves the resident's own PENDING order to SHIPPING. A missing
// order, someone else's order and an order past PENDING all yield NotFound.
func (s *OrderService) Confirm(ctx context.Context, p domain.Principal, orderID string) (*domain.Order, error) {
	order, err := s.transition(ctx, orderID, func(o *domain.Order) bool {
		return o.ResidentID == p.ResidentID && o.Status == domain.OrderStatusPending
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "order confirmed", "order_id", order.ID, "resident_id", order.ResidentID)
	s.publish(ctx, domain.Event{
		Type:       domain.EventOrderConfirmed,
		ResidentID: order.ResidentID,
		EntityID:   order.ID,
		Payload:    map[string]any{"status": order.Status},
		OccurredAt: order.UpdatedAt,
	})
	return order, nil
}

// Advance is the staff side of the lifecycle: SHIPPING to IN_TRANSIT to
// DELIVERED, one step per call.
func (s *OrderService) Advance(ctx context.Context, p domain.Principal, orderID string) (*domain.Order, error) {
	if !p.IsStaff() {
		return nil, fmt.Errorf("%w: only staff can advance orders", domain.ErrForbidden)
	}

	order, err := s.transition(ctx, orderID, func(o *domain.Order) bool {
		return o.Status != domain.OrderStatusPending
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "order advanced", "order_id", order.ID, "status", order.Status, "by", p.ResidentID)
	s.publish(ctx, domain.Event{
		Type:       domain.EventOrderAdvanced,
		ResidentID: order.ResidentID,
		EntityID:   order.ID,
		Payload:    map[string]any{"status": order.Status},
		OccurredAt: order.UpdatedAt,
	})
	return order, nil
}

func (s *OrderService) transition(ctx context.Context, orderID string, allowed func(*domain.Order) bool) (*domain.Order, error) {
	var order *domain.Order
	err := s.store.RunInTx(ctx, func(ctx context.Context, repo port.DatabaseRepository) error {
		var err error
		order, err = repo.GetOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("get order: %w", err)
		}
		if order == nil || !allowed(order) {
			return domain.NotFoundError("order")
		}
		next, ok := order.Status.Next()
		if !ok {
			return domain.NotFoundError("order")
		}

		updated, err := repo.UpdateOrderStatus(ctx, order.ID, order.Status, next)
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		if !updated {
			return domain.NotFoundError("order")
		}
		order.Status = next
		order.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) Get(ctx context.Context, p domain.Principal, orderID string) (*domain.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil || (order.ResidentID != p.ResidentID && !p.IsStaff()) {
		return nil, domain.NotFoundError("order")
	}
	return order, nil
}

func (s *OrderService) List(ctx context.Context, p domain.Principal) ([]domain.Order, error) {
	residentID := p.ResidentID
	if p.IsStaff() {
		residentID = ""
	}
	orders, err := s.store.ListOrders(ctx, residentID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// publish runs after commit. The write already succeeded, so a broker
// failure is logged and not returned.
func (s *OrderService) publish(ctx context.Context, event domain.Event) {
	publishEvent(ctx, s.events, s.log, event)
}

func publishEvent(ctx context.Context, events port.EventPublisher, log *slog.Logger, event domain.Event) {
	if err := events.Publish(ctx, event); err != nil {
		if errors.Is(err, context.Canceled) {
			log.WarnContext(ctx, "event publish cancelled", "type", event.Type, "entity_id", event.EntityID)
			return
		}
		log.ErrorContext(ctx, "event publish failed", "type", event.Type, "entity_id", event.EntityID, "error", err)
	}
}
