package mocks

import (
	"context"
	"sync"

	"github.com/example/agrimarket/internal/event"
)

// MockPublisher records published events for assertions in tests
type MockPublisher struct {
	mu sync.Mutex

	Published  []event.Event
	PublishErr error
}

// NewMockPublisher creates a new MockPublisher
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{Published: make([]event.Event, 0)}
}

// Publish records the event
func (m *MockPublisher) Publish(ctx context.Context, e event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.Published = append(m.Published, e)
	return nil
}

// EventsOfType returns recorded events matching the given type
func (m *MockPublisher) EventsOfType(eventType string) []event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []event.Event
	for _, e := range m.Published {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears recorded events
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = m.Published[:0]
	m.PublishErr = nil
}
