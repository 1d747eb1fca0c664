package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/agrimarket/internal/auth"
	"github.com/example/agrimarket/internal/domain/order"
	"github.com/example/agrimarket/internal/domain/settlement"
	"github.com/example/agrimarket/internal/notification"
)

// MemoryOrderStore is an in-memory order.Store for tests and dev mode.
// Save enforces the same optimistic version check as the PostgreSQL
// implementation.
type MemoryOrderStore struct {
	mu     sync.RWMutex
	orders map[string]*order.Order
}

func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{orders: make(map[string]*order.Order)}
}

func (s *MemoryOrderStore) Get(ctx context.Context, id string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (s *MemoryOrderStore) Create(ctx context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o.Clone()
	return nil
}

func (s *MemoryOrderStore) Save(ctx context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[o.ID]
	if !ok {
		return order.ErrOrderNotFound
	}
	if current.Version != o.Version {
		return order.ErrVersionConflict
	}

	saved := o.Clone()
	saved.Version++
	s.orders[o.ID] = saved
	o.Version = saved.Version
	return nil
}

func (s *MemoryOrderStore) ListByBuyer(ctx context.Context, buyerID string) ([]*order.Order, error) {
	return s.list(func(o *order.Order) bool { return o.BuyerID == buyerID }), nil
}

func (s *MemoryOrderStore) ListByFarmer(ctx context.Context, farmerID string) ([]*order.Order, error) {
	return s.list(func(o *order.Order) bool { return o.FarmerID == farmerID }), nil
}

func (s *MemoryOrderStore) ListAll(ctx context.Context) ([]*order.Order, error) {
	return s.list(func(*order.Order) bool { return true }), nil
}

func (s *MemoryOrderStore) list(match func(*order.Order) bool) []*order.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*order.Order, 0)
	for _, o := range s.orders {
		if match(o) {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// MemoryTransactionStore is an in-memory settlement.Store
type MemoryTransactionStore struct {
	mu  sync.RWMutex
	txs map[string]*settlement.Transaction // keyed by tx id
}

func NewMemoryTransactionStore() *MemoryTransactionStore {
	return &MemoryTransactionStore{txs: make(map[string]*settlement.Transaction)}
}

// Create rejects a second active transaction for the same order under
// the store lock, mirroring the partial unique index on the PostgreSQL
// table. The tracker's pre-check exists for a friendlier error message;
// this is the guard that holds under concurrency.
func (s *MemoryTransactionStore) Create(ctx context.Context, tx *settlement.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.txs {
		if existing.OrderID == tx.OrderID && existing.Status != settlement.TxFailed {
			return settlement.ErrActiveTransaction
		}
	}
	cp := *tx
	s.txs[tx.TxID] = &cp
	return nil
}

func (s *MemoryTransactionStore) GetByTxID(ctx context.Context, txID string) (*settlement.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txs[txID]
	if !ok {
		return nil, settlement.ErrTxNotFound
	}
	cp := *tx
	return &cp, nil
}

func (s *MemoryTransactionStore) GetActiveByOrder(ctx context.Context, orderID string) (*settlement.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tx := range s.txs {
		if tx.OrderID == orderID && tx.Status != settlement.TxFailed {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, settlement.ErrTxNotFound
}

// UpdateStatus performs the compare-and-set the tracker relies on
func (s *MemoryTransactionStore) UpdateStatus(ctx context.Context, txID string, from, to settlement.TxStatus, blockNumber, gasUsed *int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[txID]
	if !ok {
		return false, settlement.ErrTxNotFound
	}
	if tx.Status != from {
		return false, nil
	}

	tx.Status = to
	if blockNumber != nil {
		tx.BlockNumber = blockNumber
	}
	if gasUsed != nil {
		tx.GasUsed = gasUsed
	}
	tx.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemoryTransactionStore) ListPending(ctx context.Context) ([]*settlement.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*settlement.Transaction, 0)
	for _, tx := range s.txs {
		if tx.Status == settlement.TxPending {
			cp := *tx
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// MemoryNotificationStore is an in-memory notification.Store
type MemoryNotificationStore struct {
	mu            sync.RWMutex
	notifications map[string]*notification.Notification
}

func NewMemoryNotificationStore() *MemoryNotificationStore {
	return &MemoryNotificationStore{notifications: make(map[string]*notification.Notification)}
}

func (s *MemoryNotificationStore) Create(ctx context.Context, n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *n
	s.notifications[n.ID] = &cp
	return nil
}

func (s *MemoryNotificationStore) ListByUser(ctx context.Context, userID string, filter notification.ListFilter) ([]*notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*notification.Notification, 0)
	for _, n := range s.notifications {
		if n.UserID != userID {
			continue
		}
		if filter.UnreadOnly && n.IsRead {
			continue
		}
		if filter.Type != "" && n.Type != filter.Type {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryNotificationStore) MarkRead(ctx context.Context, userID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok || n.UserID != userID {
		return false, notification.ErrNotificationNotFound
	}
	if n.IsRead {
		return false, nil
	}
	n.IsRead = true
	return true, nil
}

func (s *MemoryNotificationStore) MarkAllRead(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, n := range s.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			count++
		}
	}
	return count, nil
}

func (s *MemoryNotificationStore) CountUnread(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (s *MemoryNotificationStore) Delete(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok || n.UserID != userID {
		return notification.ErrNotificationNotFound
	}
	delete(s.notifications, id)
	return nil
}

// MemoryUserStore is an in-memory auth.UserStore
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]*auth.User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]*auth.User)}
}

func (s *MemoryUserStore) Create(ctx context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return auth.ErrEmailTaken
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryUserStore) GetByID(ctx context.Context, id string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryUserStore) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrUserNotFound
}

func (s *MemoryUserStore) ListByRole(ctx context.Context, role string) ([]*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*auth.User, 0)
	for _, u := range s.users {
		if u.Role == role {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}
