package order

import (
	"errors"
	"fmt"
	"time"
)

// Status is the delivery-side order state
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPreparing Status = "preparing"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// PaymentStatus tracks the money side, independent of delivery progress
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	MethodCard   PaymentMethod = "card"
	MethodUPI    PaymentMethod = "upi"
	MethodWallet PaymentMethod = "wallet"
	MethodCOD    PaymentMethod = "cod"
)

// OnChain reports whether the method settles through the blockchain.
// Cash on delivery is collected by the courier and never touches the chain.
func (m PaymentMethod) OnChain() bool {
	switch m {
	case MethodCard, MethodUPI, MethodWallet:
		return true
	}
	return false
}

// BlockchainStatus mirrors the settlement transaction state on the order
type BlockchainStatus string

const (
	ChainPending  BlockchainStatus = "pending"
	ChainVerified BlockchainStatus = "verified"
	ChainFailed   BlockchainStatus = "failed"
)

// Role of the actor requesting a transition
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleFarmer Role = "farmer"
	RoleAdmin  Role = "admin"
	RoleSystem Role = "system"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrEmptyOrder        = errors.New("order must have at least one item")
	ErrInvalidQuantity   = errors.New("item quantity must be positive")
	ErrInvalidStatus     = errors.New("invalid order status transition")
	ErrNotPermitted      = errors.New("actor not permitted to perform this transition")
	ErrInvalidPaymentSet = errors.New("invalid payment status change")
)

// validTransitions defines the allowed edges of the status graph.
// The first entry of each slice is the forward edge used for progression.
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusPreparing, StatusCancelled},
	StatusPreparing: {StatusShipped},
	StatusShipped:   {StatusDelivered},
	StatusDelivered: {}, // terminal state
	StatusCancelled: {}, // terminal state
}

// CanTransitionTo checks if the order can move to the target status
func (o *Order) CanTransitionTo(target Status) bool {
	allowed, exists := validTransitions[o.Status]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// NextStatus returns the single forward step from the given status.
// Terminal states have no next step.
func NextStatus(s Status) (Status, bool) {
	for _, t := range validTransitions[s] {
		if t != StatusCancelled {
			return t, true
		}
	}
	return "", false
}

// allowedFor checks role authority for one edge of the graph.
// Buyers may only back out of a not-yet-confirmed order; farmers and
// admins run fulfilment and may cancel until the order is being prepared;
// the system actor advances orders on behalf of automated flows.
func allowedFor(role Role, from, to Status) bool {
	if to == StatusCancelled {
		switch role {
		case RoleBuyer:
			return from == StatusPending
		case RoleFarmer, RoleAdmin:
			return from == StatusPending || from == StatusConfirmed
		}
		return false
	}
	switch role {
	case RoleFarmer, RoleAdmin, RoleSystem:
		return true
	}
	return false
}

// Item is a single order line, priced at time of purchase
type Item struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	LineTotal int64  `json:"line_total"`
}

// Address is the structured shipping destination
type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

type Order struct {
	ID              string           `json:"id"`
	OrderNumber     string           `json:"order_number"`
	BuyerID         string           `json:"buyer_id"`
	FarmerID        string           `json:"farmer_id"`
	Items           []Item           `json:"items"`
	TotalAmount     int64            `json:"total_amount"`
	Status          Status           `json:"status"`
	PaymentStatus   PaymentStatus    `json:"payment_status"`
	PaymentMethod   PaymentMethod    `json:"payment_method"`
	ShippingAddress Address          `json:"shipping_address"`
	DeliveryDate    *time.Time       `json:"delivery_date,omitempty"`
	BlockchainTxID  string           `json:"blockchain_tx_id,omitempty"`
	BlockchainHash  string           `json:"blockchain_hash,omitempty"`
	BlockchainState BlockchainStatus `json:"blockchain_status,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	Version         int              `json:"version"` // optimistic concurrency token
}

// RecomputeTotal refreshes every line total and the order total.
// Must be called after any item mutation so TotalAmount always equals
// the sum of line totals.
func (o *Order) RecomputeTotal() {
	var total int64
	for i := range o.Items {
		o.Items[i].LineTotal = o.Items[i].UnitPrice * int64(o.Items[i].Quantity)
		total += o.Items[i].LineTotal
	}
	o.TotalAmount = total
}

// transitionError returns the error for a structurally invalid transition
func (o *Order) transitionError(target Status) error {
	return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, o.Status, target)
}

// Clone returns a deep copy so validation failures never leak mutations
func (o *Order) Clone() *Order {
	cp := *o
	cp.Items = make([]Item, len(o.Items))
	copy(cp.Items, o.Items)
	if o.DeliveryDate != nil {
		d := *o.DeliveryDate
		cp.DeliveryDate = &d
	}
	return &cp
}
