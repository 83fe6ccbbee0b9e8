package repositories

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"kasir/internal/models"
)

// MockOrderRepository is an in-memory implementation of OrderRepository. It
// enforces the same at-most-one-open-order-per-user invariant the store's
// partial unique index would, so service tests exercise the real contract.
type MockOrderRepository struct {
	orders map[string]models.Order
	mu     sync.RWMutex
}

// NewMockOrderRepository creates a new instance of MockOrderRepository.
func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders: make(map[string]models.Order),
	}
}

// Create adds a new order, rejecting a second open order for the same user.
func (r *MockOrderRepository) Create(order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if order.Status == models.OrderCreated {
		for _, existing := range r.orders {
			if existing.UserID == order.UserID && existing.Status == models.OrderCreated {
				return fmt.Errorf("creating order for user %s: %w", order.UserID, ErrOpenOrderExists)
			}
		}
	}
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	r.orders[order.ID] = *order
	return nil
}

// GetByID returns an order by its ID.
func (r *MockOrderRepository) GetByID(id string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("order with ID %s: %w", id, ErrOrderNotFound)
	}
	return &order, nil
}

// FindOpenByUser returns the most recent `created` order for the user.
func (r *MockOrderRepository) FindOpenByUser(userID string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *models.Order
	for _, order := range r.orders {
		if order.UserID != userID || order.Status != models.OrderCreated {
			continue
		}
		o := order
		if found == nil || o.CreatedAt.After(found.CreatedAt) {
			found = &o
		}
	}
	return found, nil
}

// FindByPaymentSession returns the order holding the payment session ID.
func (r *MockOrderRepository) FindByPaymentSession(sessionID string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, order := range r.orders {
		if order.PaymentSessionID == sessionID {
			o := order
			return &o, nil
		}
	}
	return nil, nil
}

// ListByUser returns the user's orders, newest first.
func (r *MockOrderRepository) ListByUser(userID string) ([]models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var orders []models.Order
	for _, order := range r.orders {
		if order.UserID == userID {
			orders = append(orders, order)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

// Update saves all fields of an existing order.
func (r *MockOrderRepository) Update(order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[order.ID]; !ok {
		return fmt.Errorf("order with ID %s: %w", order.ID, ErrOrderNotFound)
	}
	order.UpdatedAt = time.Now()
	r.orders[order.ID] = *order
	return nil
}

// UpdateStatus updates the status of an order.
func (r *MockOrderRepository) UpdateStatus(id string, status models.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return fmt.Errorf("order with ID %s: %w", id, ErrOrderNotFound)
	}
	order.Status = status
	order.UpdatedAt = time.Now()
	r.orders[id] = order
	return nil
}
