package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/example/agrimarket/internal/api/middleware"
	"github.com/example/agrimarket/internal/auth"
	"github.com/example/agrimarket/internal/domain/order"
	"github.com/example/agrimarket/internal/domain/settlement"
	"github.com/example/agrimarket/internal/event"
	"github.com/example/agrimarket/internal/notification"
)

// EventLog reads back the journaled event history of an order. Nil when
// the deployment runs without an event journal.
type EventLog interface {
	ListByOrder(ctx context.Context, orderID string) ([]event.Event, error)
}

type Handlers struct {
	orderSvc  *order.Service
	orders    order.Store
	tracker   *settlement.Tracker
	notifySvc *notification.Service
	events    EventLog
}

func NewHandlers(orderSvc *order.Service, orders order.Store, tracker *settlement.Tracker, notifySvc *notification.Service, events EventLog) *Handlers {
	return &Handlers{
		orderSvc:  orderSvc,
		orders:    orders,
		tracker:   tracker,
		notifySvc: notifySvc,
		events:    events,
	}
}

// Order handlers

func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.GetUserFromContext(r.Context())

	var req struct {
		FarmerID        string              `json:"farmer_id"`
		Items           []order.Item        `json:"items"`
		PaymentMethod   order.PaymentMethod `json:"payment_method"`
		ShippingAddress order.Address       `json:"shipping_address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	o, err := h.orderSvc.Place(r.Context(), order.PlaceInput{
		BuyerID:         claims.UserID,
		FarmerID:        req.FarmerID,
		Items:           req.Items,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, o)
}

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.GetUserFromContext(r.Context())

	var (
		orders []*order.Order
		err    error
	)
	switch claims.Role {
	case auth.RoleFarmer:
		orders, err = h.orders.ListByFarmer(r.Context(), claims.UserID)
	case auth.RoleAdmin:
		orders, err = h.orders.ListAll(r.Context())
	default:
		orders, err = h.orders.ListByBuyer(r.Context(), claims.UserID)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/orders/")

	o, err := h.fetchVisibleOrder(w, r, id)
	if err != nil {
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// GetNextStatus reports the single legal forward step for progression UI.
// Terminal orders have no next status.
func (h *Handlers) GetNextStatus(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(extractPathParam(r.URL.Path, "/orders/"), "/next-status")

	o, err := h.fetchVisibleOrder(w, r, id)
	if err != nil {
		return
	}

	next, ok := order.NextStatus(o.Status)
	resp := struct {
		Status     order.Status  `json:"status"`
		NextStatus *order.Status `json:"next_status"`
	}{Status: o.Status}
	if ok {
		resp.NextStatus = &next
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handlers) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.GetUserFromContext(r.Context())
	id := strings.TrimSuffix(extractPathParam(r.URL.Path, "/orders/"), "/status")

	if _, err := h.fetchVisibleOrder(w, r, id); err != nil {
		return
	}

	var req struct {
		Status order.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	o, err := h.orderSvc.RequestTransition(r.Context(), id, req.Status, order.Role(claims.Role))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.GetUserFromContext(r.Context())
	id := strings.TrimSuffix(extractPathParam(r.URL.Path, "/orders/"), "/cancel")

	if _, err := h.fetchVisibleOrder(w, r, id); err != nil {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	// body is optional for cancellation
	_ = json.NewDecoder(r.Body).Decode(&req)

	o, err := h.orderSvc.Cancel(r.Context(), id, order.Role(claims.Role), req.Reason)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) SetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.GetUserFromContext(r.Context())
	id := strings.TrimSuffix(extractPathParam(r.URL.Path, "/orders/"), "/payment-status")

	var req struct {
		PaymentStatus order.PaymentStatus `json:"payment_status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	o, err := h.orderSvc.SetPaymentStatus(r.Context(), id, req.PaymentStatus, order.Role(claims.Role))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, o)
}

// Settlement handlers

func (h *Handlers) SubmitSettlement(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(extractPathParam(r.URL.Path, "/orders/"), "/settlement")

	if _, err := h.fetchVisibleOrder(w, r, id); err != nil {
		return
	}

	var req struct {
		TxID string `json:"tx_id"`
		Hash string `json:"hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.TxID == "" || req.Hash == "" {
		http.Error(w, "tx_id and hash are required", http.StatusBadRequest)
		return
	}

	tx, err := h.tracker.RecordSubmission(r.Context(), id, req.TxID, req.Hash)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, tx)
}

func (h *Handlers) VerifySettlement(w http.ResponseWriter, r *http.Request) {
	txID := strings.TrimSuffix(extractPathParam(r.URL.Path, "/transactions/"), "/verify")

	tx, err := h.tracker.Verify(r.Context(), txID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, tx)
}

// GetOrderEvents returns the journaled event history of an order, oldest
// first. Responds 404 when the deployment has no event journal configured.
func (h *Handlers) GetOrderEvents(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(extractPathParam(r.URL.Path, "/orders/"), "/events")

	if h.events == nil {
		http.Error(w, "event journal not configured", http.StatusNotFound)
		return
	}

	events, err := h.events.ListByOrder(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, events)
}

// Notification handlers

func (h *Handlers) GetNotifications(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	filter := notification.ListFilter{
		UnreadOnly: r.URL.Query().Get("unread") == "true",
		Type:       notification.Type(r.URL.Query().Get("type")),
	}

	items, err := h.notifySvc.ListByUser(r.Context(), userID, filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (h *Handlers) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	count, err := h.notifySvc.UnreadCount(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"unread": count})
}

func (h *Handlers) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(extractPathParam(r.URL.Path, "/notifications/"), "/read")

	if err := h.notifySvc.MarkRead(r.Context(), middleware.GetUserID(r.Context()), id); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	count, err := h.notifySvc.MarkAllRead(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"marked": count})
}

func (h *Handlers) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/notifications/")

	if err := h.notifySvc.Delete(r.Context(), middleware.GetUserID(r.Context()), id); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fetchVisibleOrder loads an order and enforces that non-admin callers
// only see their own orders
func (h *Handlers) fetchVisibleOrder(w http.ResponseWriter, r *http.Request, id string) (*order.Order, error) {
	claims, _ := middleware.GetUserFromContext(r.Context())

	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return nil, err
	}
	if claims.Role != auth.RoleAdmin && o.BuyerID != claims.UserID && o.FarmerID != claims.UserID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return nil, errors.New("forbidden")
	}
	return o, nil
}

// respondDomainError maps domain errors onto HTTP status codes
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, settlement.ErrTxNotFound),
		errors.Is(err, notification.ErrNotificationNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, order.ErrNotPermitted),
		errors.Is(err, order.ErrInvalidPaymentSet),
		errors.Is(err, settlement.ErrActiveTransaction):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, order.ErrVersionConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, order.ErrEmptyOrder),
		errors.Is(err, order.ErrInvalidQuantity):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, settlement.ErrOracleUnavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func extractPathParam(path, prefix string) string {
	return strings.TrimPrefix(path, prefix)
}
