package models

import (
	"time"

	"kasir/internal/money"
)

// ShippingMethod selects how an order is delivered.
type ShippingMethod string

const (
	ShippingPickup   ShippingMethod = "pickup"
	ShippingDelivery ShippingMethod = "delivery"
)

// Valid reports whether the method is one of the known choices.
func (m ShippingMethod) Valid() bool {
	return m == ShippingPickup || m == ShippingDelivery
}

// OrderStatus is the bounded payment state of an order.
type OrderStatus string

const (
	OrderCreated   OrderStatus = "created"
	OrderApproved  OrderStatus = "approved"
	OrderPending   OrderStatus = "pending"
	OrderRejected  OrderStatus = "rejected"
	OrderAbandoned OrderStatus = "abandoned"
	OrderExpired   OrderStatus = "expired"
)

// IsTerminal reports whether payment reconciliation may no longer change the
// status. `pending` is semi-terminal and still accepts a final outcome.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderApproved, OrderRejected, OrderAbandoned, OrderExpired:
		return true
	}
	return false
}

// CanTransition reports whether the state machine allows moving to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	switch s {
	case OrderCreated:
		return next != OrderCreated
	case OrderPending:
		return next == OrderApproved || next == OrderRejected
	}
	return false
}

func (s OrderStatus) String() string {
	return string(s)
}

// OrderItem is a frozen snapshot of a cart line taken at materialization
// time. It is never re-derived from live product data afterwards.
type OrderItem struct {
	ProductID      string       `json:"product_id"`
	Title          string       `json:"title"`
	UnitBasePrice  money.Amount `json:"unit_base_price"`
	UnitFinalPrice money.Amount `json:"unit_final_price"`
	Quantity       int          `json:"quantity"`
	LineSubtotal   money.Amount `json:"line_subtotal"`
}

// Order is the durable record a cart materializes into. At most one order
// per user may be in `created` status at any time; the partial unique index
// on user_id below makes the store enforce that.
type Order struct {
	ID                 string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID             string         `json:"user_id" gorm:"type:varchar(36);index;index:idx_orders_open_user,unique,where:status = 'created'"`
	Items              []OrderItem    `json:"items" gorm:"serializer:json"`
	Subtotal           money.Amount   `json:"subtotal"`
	Discount           money.Amount   `json:"discount"`
	ShippingFee        money.Amount   `json:"shipping_fee"`
	Total              money.Amount   `json:"total"`
	ShippingMethod     ShippingMethod `json:"shipping_method" gorm:"type:varchar(16)"`
	ShippingAddressID  string         `json:"shipping_address_id,omitempty" gorm:"type:varchar(36)"`
	Status             OrderStatus    `json:"status" gorm:"type:varchar(16);index"`
	CartFingerprint    string         `json:"-" gorm:"type:varchar(64)"`
	SessionKey         string         `json:"-" gorm:"type:varchar(64)"`
	PaymentSessionID   string         `json:"payment_session_id,omitempty" gorm:"type:varchar(128);index"`
	PaymentReferenceID string         `json:"payment_reference_id,omitempty" gorm:"type:varchar(128)"`
	AttemptCount       int            `json:"attempt_count"`
	LastAttemptAt      time.Time      `json:"last_attempt_at"`
	ExpiresAt          time.Time      `json:"expires_at"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Expired reports whether the reuse window for a `created` order has passed.
func (o *Order) Expired(now time.Time) bool {
	return !o.ExpiresAt.After(now)
}

// SnapshotItems copies the cart lines into frozen order items.
func SnapshotItems(cart *Cart) []OrderItem {
	items := make([]OrderItem, 0, len(cart.Items))
	for _, line := range cart.Items {
		items = append(items, OrderItem{
			ProductID:      line.ProductID,
			Title:          line.Title,
			UnitBasePrice:  line.UnitBasePrice,
			UnitFinalPrice: line.UnitFinalPrice,
			Quantity:       line.Quantity,
			LineSubtotal:   line.LineSubtotal,
		})
	}
	return items
}
