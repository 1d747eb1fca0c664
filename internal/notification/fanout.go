package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/example/agrimarket/internal/auth"
	"github.com/example/agrimarket/internal/domain/order"
	"github.com/example/agrimarket/internal/domain/settlement"
	"github.com/example/agrimarket/internal/email"
	"github.com/example/agrimarket/internal/event"
)

// Fanout turns domain events into persisted per-user notifications.
// It is the single consumer-side mapping from "what happened" to
// "who gets told"; request handlers never create notifications.
type Fanout struct {
	store    Store
	users    auth.UserStore
	emailSvc *email.Service // nil disables the email channel
}

func NewFanout(store Store, users auth.UserStore, emailSvc *email.Service) *Fanout {
	return &Fanout{store: store, users: users, emailSvc: emailSvc}
}

// Apply dispatches a decoded event to its mapping
func (f *Fanout) Apply(ctx context.Context, e event.Event) error {
	switch e.Type {
	case order.EventOrderPlaced:
		return f.onOrderPlaced(ctx, e)
	case order.EventOrderStatusChanged:
		return f.onStatusChanged(ctx, e)
	case settlement.EventSettlementConfirmed:
		return f.onSettlementConfirmed(ctx, e)
	case settlement.EventSettlementFailed:
		return f.onSettlementFailed(ctx, e)
	}
	return nil
}

func (f *Fanout) onOrderPlaced(ctx context.Context, e event.Event) error {
	var p order.OrderPlaced
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return err
	}

	err := f.create(ctx, &Notification{
		UserID:    p.FarmerID,
		Type:      TypeOrder,
		Title:     "New Order Received",
		Message:   fmt.Sprintf("Order %s was placed for %d item(s).", p.OrderNumber, len(p.Items)),
		Priority:  PriorityMedium,
		ActionURL: orderURL(p.OrderID),
	})
	if err != nil {
		return err
	}

	f.sendOrderPlacedEmail(ctx, p)
	return nil
}

func (f *Fanout) onStatusChanged(ctx context.Context, e event.Event) error {
	var p order.OrderStatusChanged
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return err
	}

	msg := fmt.Sprintf("Order %s moved from %s to %s.", p.OrderNumber, p.OldStatus, p.NewStatus)
	if p.Reason != "" {
		msg = fmt.Sprintf("%s Reason: %s", msg, p.Reason)
	}

	typ := TypeOrder
	if p.NewStatus == order.StatusShipped || p.NewStatus == order.StatusDelivered {
		typ = TypeDelivery
	}

	for _, userID := range []string{p.BuyerID, p.FarmerID} {
		if err := f.create(ctx, &Notification{
			UserID:    userID,
			Type:      typ,
			Title:     "Order Status Updated",
			Message:   msg,
			Priority:  PriorityMedium,
			ActionURL: orderURL(p.OrderID),
		}); err != nil {
			return err
		}
	}

	f.sendStatusEmail(ctx, p)
	return nil
}

func (f *Fanout) onSettlementConfirmed(ctx context.Context, e event.Event) error {
	var p settlement.SettlementConfirmed
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return err
	}

	msg := fmt.Sprintf("Payment transaction %s for order %s was confirmed on chain.", p.TxID, p.OrderID)
	for _, userID := range []string{p.BuyerID, p.FarmerID} {
		if err := f.create(ctx, &Notification{
			UserID:    userID,
			Type:      TypePayment,
			Title:     "Transaction Confirmed",
			Message:   msg,
			Priority:  PriorityMedium,
			ActionURL: orderURL(p.OrderID),
		}); err != nil {
			return err
		}
	}
	return nil
}

// onSettlementFailed alerts the farmer and every admin. A failed
// settlement never cancels the order automatically, so someone has to
// look at it.
func (f *Fanout) onSettlementFailed(ctx context.Context, e event.Event) error {
	var p settlement.SettlementFailed
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return err
	}

	msg := fmt.Sprintf("Payment transaction %s for order %s failed on chain. Manual review required.", p.TxID, p.OrderID)

	recipients := []string{p.FarmerID}
	admins, err := f.users.ListByRole(ctx, auth.RoleAdmin)
	if err != nil {
		log.Printf("[Fanout] Failed to list admins for order %s: %v", p.OrderID, err)
	}
	for _, a := range admins {
		recipients = append(recipients, a.ID)
	}

	for _, userID := range recipients {
		if err := f.create(ctx, &Notification{
			UserID:    userID,
			Type:      TypePayment,
			Title:     "Transaction Failed",
			Message:   msg,
			Priority:  PriorityHigh,
			ActionURL: orderURL(p.OrderID),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fanout) create(ctx context.Context, n *Notification) error {
	n.ID = uuid.New().String()
	n.IsRead = false
	n.CreatedAt = time.Now()
	return f.store.Create(ctx, n)
}

func (f *Fanout) sendOrderPlacedEmail(ctx context.Context, p order.OrderPlaced) {
	if f.emailSvc == nil {
		return
	}
	farmer, err := f.users.GetByID(ctx, p.FarmerID)
	if err != nil {
		log.Printf("[Fanout] Skipping email, farmer %s not found: %v", p.FarmerID, err)
		return
	}
	if err := f.emailSvc.SendNewOrder(farmer.Email, p.OrderNumber, p.TotalAmount, len(p.Items)); err != nil {
		log.Printf("[Fanout] Failed to email %s about order %s: %v", farmer.Email, p.OrderID, err)
	}
}

func (f *Fanout) sendStatusEmail(ctx context.Context, p order.OrderStatusChanged) {
	if f.emailSvc == nil {
		return
	}
	buyer, err := f.users.GetByID(ctx, p.BuyerID)
	if err != nil {
		log.Printf("[Fanout] Skipping email, buyer %s not found: %v", p.BuyerID, err)
		return
	}
	if err := f.emailSvc.SendStatusUpdate(buyer.Email, p.OrderNumber, string(p.OldStatus), string(p.NewStatus)); err != nil {
		log.Printf("[Fanout] Failed to email %s about order %s: %v", buyer.Email, p.OrderID, err)
	}
}

func orderURL(orderID string) string {
	return "/orders/" + orderID
}
