package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope published for every domain state change.
// OrderID doubles as the partition key so all events for one order
// stay ordered on the wire.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	OrderID   string          `json:"order_id"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// New wraps a payload into an envelope
func New(eventType, orderID string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		OrderID:   orderID,
		Data:      data,
		Timestamp: time.Now(),
	}, nil
}

// Publisher delivers events to downstream consumers
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// MultiPublisher fans a single event out to several publishers
type MultiPublisher []Publisher

func (mp MultiPublisher) Publish(ctx context.Context, e Event) error {
	for _, p := range mp {
		if err := p.Publish(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
