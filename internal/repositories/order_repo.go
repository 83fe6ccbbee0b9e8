package repositories

import (
	"errors"

	"kasir/internal/models"
)

// ErrOrderNotFound is returned when no order matches the lookup.
var ErrOrderNotFound = errors.New("order not found")

// ErrOpenOrderExists is returned by Create when the store's uniqueness
// constraint rejects a second `created` order for the same user. Callers
// treat it as a signal to re-run the reuse lookup, not as a fatal error.
var ErrOpenOrderExists = errors.New("an open order already exists for this user")

// OrderRepository defines the interface for order data access.
type OrderRepository interface {
	Create(order *models.Order) error
	GetByID(id string) (*models.Order, error)
	// FindOpenByUser returns the most recent order in `created` status for
	// the user, or (nil, nil) when there is none.
	FindOpenByUser(userID string) (*models.Order, error)
	// FindByPaymentSession returns the order holding the given payment
	// session identifier, or (nil, nil) when there is none.
	FindByPaymentSession(sessionID string) (*models.Order, error)
	ListByUser(userID string) ([]models.Order, error)
	Update(order *models.Order) error
	UpdateStatus(id string, status models.OrderStatus) error
}
