package notification_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/agrimarket/internal/infrastructure/store"
	"github.com/example/agrimarket/internal/notification"
)

func newTestNotificationService() (*notification.Service, *store.MemoryNotificationStore) {
	st := store.NewMemoryNotificationStore()
	return notification.NewService(st), st
}

func seedNotifications(t *testing.T, st *store.MemoryNotificationStore, userID string, count int) []string {
	t.Helper()
	ctx := context.Background()
	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("%s-n%d", userID, i)
		require.NoError(t, st.Create(ctx, &notification.Notification{
			ID:        id,
			UserID:    userID,
			Type:      notification.TypeOrder,
			Title:     "Order Status Updated",
			Message:   fmt.Sprintf("update %d", i),
			CreatedAt: time.Now().Add(time.Duration(i) * time.Millisecond),
		}))
		ids = append(ids, id)
	}
	return ids
}

func TestService_UnreadCount_TracksReadState(t *testing.T) {
	svc, st := newTestNotificationService()
	ctx := context.Background()
	ids := seedNotifications(t, st, "user-1", 3)

	count, err := svc.UnreadCount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, svc.MarkRead(ctx, "user-1", ids[0]))

	count, err = svc.UnreadCount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	unread, err := svc.ListByUser(ctx, "user-1", notification.ListFilter{UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, unread, 2)
}

func TestService_MarkRead_AlreadyReadIsNoOp(t *testing.T) {
	svc, st := newTestNotificationService()
	ctx := context.Background()
	ids := seedNotifications(t, st, "user-1", 1)

	require.NoError(t, svc.MarkRead(ctx, "user-1", ids[0]))
	require.NoError(t, svc.MarkRead(ctx, "user-1", ids[0]))

	count, err := svc.UnreadCount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestService_MarkRead_NotFound(t *testing.T) {
	svc, _ := newTestNotificationService()

	err := svc.MarkRead(context.Background(), "user-1", "no-such-notification")
	assert.ErrorIs(t, err, notification.ErrNotificationNotFound)
}

func TestService_MarkRead_ForeignUserReadsAsNotFound(t *testing.T) {
	svc, st := newTestNotificationService()
	ctx := context.Background()
	ids := seedNotifications(t, st, "user-1", 1)

	err := svc.MarkRead(ctx, "user-2", ids[0])
	assert.ErrorIs(t, err, notification.ErrNotificationNotFound)

	count, err := svc.UnreadCount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "owner's notification stays unread")
}

func TestService_Delete_ForeignUserReadsAsNotFound(t *testing.T) {
	svc, st := newTestNotificationService()
	ctx := context.Background()
	ids := seedNotifications(t, st, "user-1", 1)

	err := svc.Delete(ctx, "user-2", ids[0])
	assert.ErrorIs(t, err, notification.ErrNotificationNotFound)

	remaining, err := svc.ListByUser(ctx, "user-1", notification.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestService_MarkAllRead(t *testing.T) {
	svc, st := newTestNotificationService()
	ctx := context.Background()
	ids := seedNotifications(t, st, "user-1", 5)
	seedNotifications(t, st, "user-2", 2)

	require.NoError(t, svc.MarkRead(ctx, "user-1", ids[0]))

	affected, err := svc.MarkAllRead(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 4, affected, "already-read rows are not counted")

	count, err := svc.UnreadCount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	otherCount, err := svc.UnreadCount(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, 2, otherCount, "other users are untouched")

	affected, err = svc.MarkAllRead(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, affected)
}

func TestService_ListByUser_TypeFilter(t *testing.T) {
	svc, st := newTestNotificationService()
	ctx := context.Background()

	require.NoError(t, st.Create(ctx, &notification.Notification{
		ID: "n1", UserID: "user-1", Type: notification.TypeOrder, CreatedAt: time.Now(),
	}))
	require.NoError(t, st.Create(ctx, &notification.Notification{
		ID: "n2", UserID: "user-1", Type: notification.TypePayment, CreatedAt: time.Now(),
	}))

	payments, err := svc.ListByUser(ctx, "user-1", notification.ListFilter{Type: notification.TypePayment})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "n2", payments[0].ID)
}

func TestService_Delete(t *testing.T) {
	svc, st := newTestNotificationService()
	ctx := context.Background()
	ids := seedNotifications(t, st, "user-1", 2)

	require.NoError(t, svc.Delete(ctx, "user-1", ids[0]))

	remaining, err := svc.ListByUser(ctx, "user-1", notification.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, remaining, 1)

	err = svc.Delete(ctx, "user-1", ids[0])
	assert.ErrorIs(t, err, notification.ErrNotificationNotFound)
}
