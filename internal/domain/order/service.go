package order

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/agrimarket/internal/event"
)

// Service is the sole authority for mutating order state
type Service struct {
	store     Store
	publisher event.Publisher
}

func NewService(store Store, publisher event.Publisher) *Service {
	return &Service{store: store, publisher: publisher}
}

// PlaceInput carries everything needed to create an order
type PlaceInput struct {
	BuyerID         string
	FarmerID        string
	Items           []Item
	PaymentMethod   PaymentMethod
	ShippingAddress Address
}

// Place creates a new order in pending and emits order.placed
func (s *Service) Place(ctx context.Context, in PlaceInput) (*Order, error) {
	if len(in.Items) == 0 {
		return nil, ErrEmptyOrder
	}
	for _, item := range in.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %s", ErrInvalidQuantity, item.ProductID)
		}
	}

	now := time.Now()
	o := &Order{
		ID:              uuid.New().String(),
		OrderNumber:     newOrderNumber(now),
		BuyerID:         in.BuyerID,
		FarmerID:        in.FarmerID,
		Items:           append([]Item(nil), in.Items...),
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		PaymentMethod:   in.PaymentMethod,
		ShippingAddress: in.ShippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
		Version:         1,
	}
	o.RecomputeTotal()

	if err := s.store.Create(ctx, o); err != nil {
		return nil, err
	}

	s.publish(ctx, EventOrderPlaced, o.ID, OrderPlaced{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		BuyerID:     o.BuyerID,
		FarmerID:    o.FarmerID,
		Items:       o.Items,
		TotalAmount: o.TotalAmount,
		PlacedAt:    now,
	})

	return o, nil
}

// RequestTransition validates and applies a status change on behalf of an
// actor. Requesting the status the order is already in is a no-op success
// so retried client requests stay harmless.
func (s *Service) RequestTransition(ctx context.Context, orderID string, target Status, actor Role) (*Order, error) {
	return s.transition(ctx, orderID, target, actor, "")
}

// Cancel is RequestTransition(cancelled) with an optional reason recorded
// on the emitted event
func (s *Service) Cancel(ctx context.Context, orderID string, actor Role, reason string) (*Order, error) {
	return s.transition(ctx, orderID, StatusCancelled, actor, reason)
}

func (s *Service) transition(ctx context.Context, orderID string, target Status, actor Role, reason string) (*Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if o.Status == target {
		return o, nil
	}

	if !o.CanTransitionTo(target) {
		return nil, o.transitionError(target)
	}
	if !allowedFor(actor, o.Status, target) {
		return nil, fmt.Errorf("%w: %s may not move order from %s to %s",
			ErrNotPermitted, actor, o.Status, target)
	}

	old := o.Status
	now := time.Now()

	updated := o.Clone()
	updated.Status = target
	updated.UpdatedAt = now
	if target == StatusDelivered && updated.DeliveryDate == nil {
		updated.DeliveryDate = &now
	}

	if err := s.store.Save(ctx, updated); err != nil {
		return nil, err
	}

	s.publish(ctx, EventOrderStatusChanged, updated.ID, OrderStatusChanged{
		OrderID:     updated.ID,
		OrderNumber: updated.OrderNumber,
		BuyerID:     updated.BuyerID,
		FarmerID:    updated.FarmerID,
		OldStatus:   old,
		NewStatus:   target,
		Actor:       actor,
		Reason:      reason,
		ChangedAt:   now,
	})

	return updated, nil
}

// SetPaymentStatus applies a manual payment override. Only admins may do
// this, and an order already refunded or failed stays that way.
func (s *Service) SetPaymentStatus(ctx context.Context, orderID string, target PaymentStatus, actor Role) (*Order, error) {
	if actor != RoleAdmin {
		return nil, fmt.Errorf("%w: %s may not change payment status", ErrNotPermitted, actor)
	}

	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus == target {
		return o, nil
	}
	if o.PaymentStatus == PaymentRefunded || o.PaymentStatus == PaymentFailed {
		return nil, fmt.Errorf("%w: payment already %s", ErrInvalidPaymentSet, o.PaymentStatus)
	}

	old := o.PaymentStatus
	now := time.Now()

	updated := o.Clone()
	updated.PaymentStatus = target
	updated.UpdatedAt = now

	if err := s.store.Save(ctx, updated); err != nil {
		return nil, err
	}

	s.publish(ctx, EventPaymentStatusChanged, updated.ID, PaymentStatusChanged{
		OrderID:   updated.ID,
		BuyerID:   updated.BuyerID,
		FarmerID:  updated.FarmerID,
		OldStatus: old,
		NewStatus: target,
		Actor:     actor,
		ChangedAt: now,
	})

	return updated, nil
}

// publish emits an event after the write has committed. Event delivery
// failures are logged, not surfaced: the state change already happened
// and must not be rolled back or retried into a duplicate.
func (s *Service) publish(ctx context.Context, eventType, orderID string, payload any) {
	if s.publisher == nil {
		return
	}
	e, err := event.New(eventType, orderID, payload)
	if err != nil {
		log.Printf("[Order] Failed to build %s event for order %s: %v", eventType, orderID, err)
		return
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		log.Printf("[Order] Failed to publish %s event for order %s: %v", eventType, orderID, err)
	}
}

// newOrderNumber builds the human-readable order number, e.g. AGM-20260901-1A2B3C
func newOrderNumber(t time.Time) string {
	suffix := strings.ToUpper(uuid.New().String()[:6])
	return fmt.Sprintf("AGM-%s-%s", t.Format("20060102"), suffix)
}
