package notification

import (
	"context"
	"errors"
	"time"
)

// Type categorizes a notification for filtering in the client
type Type string

const (
	TypeOrder     Type = "order"
	TypePayment   Type = "payment"
	TypeProduct   Type = "product"
	TypeSystem    Type = "system"
	TypeDelivery  Type = "delivery"
	TypeReview    Type = "review"
	TypePromotion Type = "promotion"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

var ErrNotificationNotFound = errors.New("notification not found")

// Notification is one per-user inbox entry derived from a domain event.
// Once created it only ever changes through read-state toggles.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      Type      `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	Priority  Priority  `json:"priority,omitempty"`
	ActionURL string    `json:"action_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ListFilter narrows ListByUser results
type ListFilter struct {
	UnreadOnly bool
	Type       Type // empty matches all types
}

// Store persists notifications. MarkAllRead must be atomic with respect
// to concurrent MarkRead calls so the unread count never drifts from the
// stored rows. MarkRead and Delete are scoped to the owning user; a
// notification belonging to someone else reads as not found.
type Store interface {
	Create(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID string, filter ListFilter) ([]*Notification, error)
	MarkRead(ctx context.Context, userID, id string) (bool, error)
	MarkAllRead(ctx context.Context, userID string) (int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, userID, id string) error
}
