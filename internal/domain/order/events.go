package order

import "time"

const (
	EventOrderPlaced          = "order.placed"
	EventOrderStatusChanged   = "order.status_changed"
	EventPaymentStatusChanged = "order.payment_status_changed"
)

type OrderPlaced struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	BuyerID     string    `json:"buyer_id"`
	FarmerID    string    `json:"farmer_id"`
	Items       []Item    `json:"items"`
	TotalAmount int64     `json:"total_amount"`
	PlacedAt    time.Time `json:"placed_at"`
}

type OrderStatusChanged struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	BuyerID     string    `json:"buyer_id"`
	FarmerID    string    `json:"farmer_id"`
	OldStatus   Status    `json:"old_status"`
	NewStatus   Status    `json:"new_status"`
	Actor       Role      `json:"actor"`
	Reason      string    `json:"reason,omitempty"`
	ChangedAt   time.Time `json:"changed_at"`
}

type PaymentStatusChanged struct {
	OrderID   string        `json:"order_id"`
	BuyerID   string        `json:"buyer_id"`
	FarmerID  string        `json:"farmer_id"`
	OldStatus PaymentStatus `json:"old_status"`
	NewStatus PaymentStatus `json:"new_status"`
	Actor     Role          `json:"actor"`
	ChangedAt time.Time     `json:"changed_at"`
}
