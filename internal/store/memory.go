package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jogardn/order-store/pkg/models"
)

// MemoryStore is an in-process Store. Each call holds the lock for its whole
// duration, which gives it the same all-or-nothing behavior as a database
// transaction.
type MemoryStore struct {
	mu         sync.RWMutex
	orders     map[string]*models.Order
	sequence   []string
	nextItemID int64
	now        func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[string]*models.Order),
		now:    time.Now,
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) List(ctx context.Context) ([]models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, internalError("list orders", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]models.Order, 0, len(s.sequence))
	for _, id := range s.sequence {
		orders = append(orders, *s.orders[id].Clone())
	}
	return orders, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, internalError("get order", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return order.Clone(), nil
}

func (s *MemoryStore) Create(ctx context.Context, in models.OrderInput) (*models.Order, error) {
	order, err := buildOrder(in, normalize(s.now()))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, internalError("create order", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return nil, internalError("create order", fmt.Errorf("duplicate order id %q", order.ID))
	}

	for i := range order.Items {
		s.nextItemID++
		order.Items[i].ID = s.nextItemID
	}
	s.orders[order.ID] = order
	s.sequence = append(s.sequence, order.ID)

	return order.Clone(), nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, upd models.StatusUpdate) (*StatusChange, error) {
	status, err := checkStatusUpdate(upd)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, internalError("update order status", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}

	order.Status = status
	order.UpdatedAt = nextUpdatedAt(order.UpdatedAt, normalize(s.now()))
	return &StatusChange{ID: id, Status: status, UpdatedAt: order.UpdatedAt}, nil
}

func (s *MemoryStore) UpdateFields(ctx context.Context, id string, upd models.OrderUpdate) (*models.Order, error) {
	status, err := checkUpdate(upd)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, internalError("update order", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}

	applyUpdate(order, upd, status, normalize(s.now()))
	return order.Clone(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return internalError("delete order", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[id]; !ok {
		return ErrNotFound
	}
	delete(s.orders, id)
	for i, existing := range s.sequence {
		if existing == id {
			s.sequence = append(s.sequence[:i], s.sequence[i+1:]...)
			break
		}
	}
	return nil
}

// Item looks up a single line item by id across all orders.
func (s *MemoryStore) Item(id int64) (models.LineItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, order := range s.orders {
		for _, item := range order.Items {
			if item.ID == id {
				return item, true
			}
		}
	}
	return models.LineItem{}, false
}
