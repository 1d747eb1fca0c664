package notification

import "context"

// Service exposes read-state operations over the notification store
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) ListByUser(ctx context.Context, userID string, filter ListFilter) ([]*Notification, error) {
	return s.store.ListByUser(ctx, userID, filter)
}

// MarkRead flags a single notification of the user as read. Marking an
// already-read notification is a no-op success; someone else's
// notification is not found.
func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	_, err := s.store.MarkRead(ctx, userID, id)
	return err
}

// MarkAllRead flags every unread notification of the user as read and
// returns how many were affected
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return s.store.MarkAllRead(ctx, userID)
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.store.CountUnread(ctx, userID)
}

// Delete removes a notification of the user. Deletion is a user action
// only; the system itself never deletes.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	return s.store.Delete(ctx, userID, id)
}
