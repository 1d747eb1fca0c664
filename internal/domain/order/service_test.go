package order_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/agrimarket/internal/domain/order"
	"github.com/example/agrimarket/internal/event/mocks"
	"github.com/example/agrimarket/internal/infrastructure/store"
)

func newTestService() (*order.Service, *store.MemoryOrderStore, *mocks.MockPublisher) {
	orders := store.NewMemoryOrderStore()
	publisher := mocks.NewMockPublisher()
	return order.NewService(orders, publisher), orders, publisher
}

func placeInput() order.PlaceInput {
	return order.PlaceInput{
		BuyerID:  "buyer-1",
		FarmerID: "farmer-1",
		Items: []order.Item{
			{ProductID: "tomatoes", Quantity: 4, UnitPrice: 350},
			{ProductID: "eggs", Quantity: 1, UnitPrice: 600},
		},
		PaymentMethod: order.MethodUPI,
		ShippingAddress: order.Address{
			Street: "12 Market Lane", City: "Pune", State: "MH", Zip: "411001", Country: "IN",
		},
	}
}

// seedAt places an order and walks it forward to the wanted status
func seedAt(t *testing.T, svc *order.Service, pub *mocks.MockPublisher, status order.Status) *order.Order {
	t.Helper()
	ctx := context.Background()

	o, err := svc.Place(ctx, placeInput())
	require.NoError(t, err)

	for o.Status != status {
		next, ok := order.NextStatus(o.Status)
		require.True(t, ok, "cannot walk to %s from %s", status, o.Status)
		o, err = svc.RequestTransition(ctx, o.ID, next, order.RoleFarmer)
		require.NoError(t, err)
	}
	pub.Reset()
	return o
}

// ============================================
// Place Order Tests
// ============================================

func TestService_Place_Success(t *testing.T) {
	svc, orders, pub := newTestService()
	ctx := context.Background()

	o, err := svc.Place(ctx, placeInput())

	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, order.PaymentPending, o.PaymentStatus)
	assert.Equal(t, int64(2000), o.TotalAmount)
	assert.Equal(t, 1, o.Version)
	assert.True(t, strings.HasPrefix(o.OrderNumber, "AGM-"))

	stored, err := orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.OrderNumber, stored.OrderNumber)

	placed := pub.EventsOfType(order.EventOrderPlaced)
	require.Len(t, placed, 1)
	assert.Equal(t, o.ID, placed[0].OrderID)
}

func TestService_Place_EmptyOrder(t *testing.T) {
	svc, _, pub := newTestService()

	o, err := svc.Place(context.Background(), order.PlaceInput{BuyerID: "buyer-1", FarmerID: "farmer-1"})

	assert.ErrorIs(t, err, order.ErrEmptyOrder)
	assert.Nil(t, o)
	assert.Empty(t, pub.Published)
}

func TestService_Place_InvalidQuantity(t *testing.T) {
	svc, _, pub := newTestService()

	in := placeInput()
	in.Items[1].Quantity = 0
	o, err := svc.Place(context.Background(), in)

	assert.ErrorIs(t, err, order.ErrInvalidQuantity)
	assert.Nil(t, o)
	assert.Empty(t, pub.Published)
}

func TestService_Place_PublishFailureDoesNotFailPlacement(t *testing.T) {
	svc, orders, pub := newTestService()
	pub.PublishErr = errors.New("broker down")

	o, err := svc.Place(context.Background(), placeInput())

	require.NoError(t, err)
	_, err = orders.Get(context.Background(), o.ID)
	assert.NoError(t, err)
}

// ============================================
// Transition Tests
// ============================================

func TestService_RequestTransition_FarmerConfirms(t *testing.T) {
	svc, _, pub := newTestService()
	ctx := context.Background()
	o := seedAt(t, svc, pub, order.StatusPending)

	updated, err := svc.RequestTransition(ctx, o.ID, order.StatusConfirmed, order.RoleFarmer)

	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, updated.Status)

	changed := pub.EventsOfType(order.EventOrderStatusChanged)
	require.Len(t, changed, 1)
	var p order.OrderStatusChanged
	require.NoError(t, json.Unmarshal(changed[0].Data, &p))
	assert.Equal(t, order.StatusPending, p.OldStatus)
	assert.Equal(t, order.StatusConfirmed, p.NewStatus)
	assert.Equal(t, order.RoleFarmer, p.Actor)
}

func TestService_RequestTransition_BuyerCancelsPending(t *testing.T) {
	svc, _, pub := newTestService()
	ctx := context.Background()
	o := seedAt(t, svc, pub, order.StatusPending)

	updated, err := svc.Cancel(ctx, o.ID, order.RoleBuyer, "changed my mind")

	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, updated.Status)

	changed := pub.EventsOfType(order.EventOrderStatusChanged)
	require.Len(t, changed, 1)
	var p order.OrderStatusChanged
	require.NoError(t, json.Unmarshal(changed[0].Data, &p))
	assert.Equal(t, "changed my mind", p.Reason)
}

func TestService_RequestTransition_BuyerCancelsShipped(t *testing.T) {
	svc, orders, pub := newTestService()
	ctx := context.Background()
	o := seedAt(t, svc, pub, order.StatusShipped)

	_, err := svc.Cancel(ctx, o.ID, order.RoleBuyer, "")

	assert.ErrorIs(t, err, order.ErrInvalidStatus)

	stored, err := orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, stored.Status)
	assert.Empty(t, pub.Published)
}

func TestService_RequestTransition_BuyerCancelsConfirmed(t *testing.T) {
	svc, _, pub := newTestService()
	ctx := context.Background()
	o := seedAt(t, svc, pub, order.StatusConfirmed)

	// the edge exists, but not for buyers
	_, err := svc.Cancel(ctx, o.ID, order.RoleBuyer, "")

	assert.ErrorIs(t, err, order.ErrNotPermitted)
	assert.Empty(t, pub.Published)
}

func TestService_RequestTransition_BuyerMayNotAdvance(t *testing.T) {
	svc, _, pub := newTestService()
	ctx := context.Background()
	o := seedAt(t, svc, pub, order.StatusPending)

	_, err := svc.RequestTransition(ctx, o.ID, order.StatusConfirmed, order.RoleBuyer)

	assert.ErrorIs(t, err, order.ErrNotPermitted)
}

func TestService_RequestTransition_SystemMayNotCancel(t *testing.T) {
	svc, _, pub := newTestService()
	ctx := context.Background()
	o := seedAt(t, svc, pub, order.StatusPending)

	_, err := svc.Cancel(ctx, o.ID, order.RoleSystem, "")

	assert.ErrorIs(t, err, order.ErrNotPermitted)
}

func TestService_RequestTransition_SkipStep(t *testing.T) {
	svc, _, pub := newTestService()
	ctx := context.Background()
	o := seedAt(t, svc, pub, order.StatusPending)

	_, err := svc.RequestTransition(ctx, o.ID, order.StatusShipped, order.RoleFarmer)

	assert.ErrorIs(t, err, order.ErrInvalidStatus)
}

func TestService_RequestTransition_TerminalStates(t *testing.T) {
	svc, _, pub := newTestService()
	ctx := context.Background()

	delivered := seedAt(t, svc, pub, order.StatusDelivered)
	_, err := svc.Cancel(ctx, delivered.ID, order.RoleAdmin, "")
	assert.ErrorIs(t, err, order.ErrInvalidStatus)

	cancelled := seedAt(t, svc, pub, order.StatusPending)
	cancelled, err = svc.Cancel(ctx, cancelled.ID, order.RoleFarmer, "out of stock")
	require.NoError(t, err)
	_, err = svc.RequestTransition(ctx, cancelled.ID, order.StatusConfirmed, order.RoleAdmin)
	assert.ErrorIs(t, err, order.ErrInvalidStatus)
}

func TestService_RequestTransition_SameStatusNoOp(t *testing.T) {
	svc, _, pub := newTestService()
	ctx := context.Background()
	o := seedAt(t, svc, pub, order.StatusConfirmed)

	again, err := svc.RequestTransition(ctx, o.ID, order.StatusConfirmed, order.RoleFarmer)

	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, again.Status)
	assert.True(t, again.UpdatedAt.Equal(o.UpdatedAt), "no-op must not touch UpdatedAt")
	assert.Equal(t, o.Version, again.Version)
	assert.Empty(t, pub.Published, "no-op must not emit an event")
}

func TestService_RequestTransition_SameStatusSkipsRoleCheck(t *testing.T) {
	svc, _, pub := newTestService()
	ctx := context.Background()
	o := seedAt(t, svc, pub, order.StatusShipped)

	// a buyer could never cause shipped, but re-requesting it is harmless
	again, err := svc.RequestTransition(ctx, o.ID, order.StatusShipped, order.RoleBuyer)

	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, again.Status)
}

func TestService_RequestTransition_DeliveredStampsDeliveryDate(t *testing.T) {
	svc, _, pub := newTestService()
	ctx := context.Background()
	o := seedAt(t, svc, pub, order.StatusShipped)
	require.Nil(t, o.DeliveryDate)

	updated, err := svc.RequestTransition(ctx, o.ID, order.StatusDelivered, order.RoleFarmer)

	require.NoError(t, err)
	require.NotNil(t, updated.DeliveryDate)
	assert.WithinDuration(t, time.Now(), *updated.DeliveryDate, time.Minute)
}

func TestService_RequestTransition_OrderNotFound(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.RequestTransition(context.Background(), "no-such-order", order.StatusConfirmed, order.RoleFarmer)

	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

// ============================================
// Concurrency Tests
// ============================================

func TestService_RequestTransition_ConcurrentSameTarget(t *testing.T) {
	svc, orders, pub := newTestService()
	ctx := context.Background()
	o := seedAt(t, svc, pub, order.StatusConfirmed)

	const callers = 8
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.RequestTransition(ctx, o.ID, order.StatusPreparing, order.RoleFarmer)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			// losers of the save race surface the conflict; callers retry
			assert.ErrorIs(t, err, order.ErrVersionConflict)
		}
	}

	stored, err := orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPreparing, stored.Status)

	changed := pub.EventsOfType(order.EventOrderStatusChanged)
	assert.Len(t, changed, 1, "exactly one transition must win")
}

// ============================================
// Payment Status Tests
// ============================================

func TestService_SetPaymentStatus_AdminRefunds(t *testing.T) {
	svc, _, pub := newTestService()
	ctx := context.Background()
	o := seedAt(t, svc, pub, order.StatusConfirmed)

	updated, err := svc.SetPaymentStatus(ctx, o.ID, order.PaymentRefunded, order.RoleAdmin)

	require.NoError(t, err)
	assert.Equal(t, order.PaymentRefunded, updated.PaymentStatus)
	assert.Len(t, pub.EventsOfType(order.EventPaymentStatusChanged), 1)
}

func TestService_SetPaymentStatus_NonAdminDenied(t *testing.T) {
	svc, _, pub := newTestService()
	ctx := context.Background()
	o := seedAt(t, svc, pub, order.StatusConfirmed)

	for _, role := range []order.Role{order.RoleBuyer, order.RoleFarmer, order.RoleSystem} {
		_, err := svc.SetPaymentStatus(ctx, o.ID, order.PaymentPaid, role)
		assert.ErrorIs(t, err, order.ErrNotPermitted, "role %s", role)
	}
}

func TestService_SetPaymentStatus_RefundedIsSticky(t *testing.T) {
	svc, _, pub := newTestService()
	ctx := context.Background()
	o := seedAt(t, svc, pub, order.StatusConfirmed)

	_, err := svc.SetPaymentStatus(ctx, o.ID, order.PaymentRefunded, order.RoleAdmin)
	require.NoError(t, err)

	_, err = svc.SetPaymentStatus(ctx, o.ID, order.PaymentPaid, order.RoleAdmin)
	assert.ErrorIs(t, err, order.ErrInvalidPaymentSet)
}

func TestService_SetPaymentStatus_SameStatusNoOp(t *testing.T) {
	svc, _, pub := newTestService()
	ctx := context.Background()
	o := seedAt(t, svc, pub, order.StatusPending)

	again, err := svc.SetPaymentStatus(ctx, o.ID, order.PaymentPending, order.RoleAdmin)

	require.NoError(t, err)
	assert.Equal(t, o.Version, again.Version)
	assert.Empty(t, pub.Published)
}
