package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"kasir/internal/models"
	"kasir/internal/money"
	"kasir/internal/repositories"
	"kasir/pkg/payment"
)

// PaymentGateway is the narrow surface of the payment client the checkout
// flow needs. *payment.Client satisfies it.
type PaymentGateway interface {
	CreatePreference(req payment.PreferenceRequest) (*payment.Preference, error)
	RedirectURL(p *payment.Preference) string
}

// CheckoutConfig carries checkout knobs from the application configuration.
type CheckoutConfig struct {
	// DeliveryFee is the flat fee charged for the delivery shipping method;
	// pickup is always free.
	DeliveryFee money.Amount
	// OrderTTL bounds how long an unpaid `created` order stays reusable.
	OrderTTL time.Duration
	// PublicBaseURL is where the gateway sends the buyer back.
	PublicBaseURL string
}

// ShippingSelection is the buyer's checkout choice.
type ShippingSelection struct {
	Method    models.ShippingMethod
	AddressID string
}

// CheckoutResult is the outcome of a successful checkout call: the durable
// order, the gateway redirect target, and any non-fatal warnings collected
// along the way (such as a superseded order that could not be transitioned).
type CheckoutResult struct {
	Order       *models.Order `json:"order"`
	RedirectURL string        `json:"redirect_url"`
	Warnings    []string      `json:"warnings,omitempty"`
}

// CheckoutService materializes session carts into durable orders and opens
// payment sessions for them.
type CheckoutService struct {
	carts     *CartService
	orderRepo repositories.OrderRepository
	gateway   PaymentGateway
	cfg       CheckoutConfig
}

// NewCheckoutService creates a new CheckoutService.
func NewCheckoutService(carts *CartService, orderRepo repositories.OrderRepository, gateway PaymentGateway, cfg CheckoutConfig) *CheckoutService {
	if cfg.OrderTTL == 0 {
		cfg.OrderTTL = 24 * time.Hour
	}
	return &CheckoutService{
		carts:     carts,
		orderRepo: orderRepo,
		gateway:   gateway,
		cfg:       cfg,
	}
}

// Checkout converts the session's cart into an order (reusing an open order
// for an unchanged cart) and requests a gateway redirect for it. A gateway
// failure is returned as ErrGatewaySession; the order it leaves behind stays
// in `created` status and is reused by the next attempt.
func (s *CheckoutService) Checkout(userID, sessionKey string, sel ShippingSelection) (*CheckoutResult, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	if !sel.Method.Valid() {
		return nil, fmt.Errorf("unknown shipping method %q", sel.Method)
	}

	cart, _, err := s.carts.Snapshot(sessionKey)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}

	order, warnings, err := s.Materialize(userID, sessionKey, cart, sel)
	if err != nil {
		return nil, err
	}

	redirectURL, err := s.openPaymentSession(order)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewaySession, err)
	}

	return &CheckoutResult{
		Order:       order,
		RedirectURL: redirectURL,
		Warnings:    warnings,
	}, nil
}

// ShippingFee resolves the fee for a shipping method.
func (s *CheckoutService) ShippingFee(method models.ShippingMethod) money.Amount {
	if method == models.ShippingDelivery {
		return s.cfg.DeliveryFee
	}
	return 0
}

// Materialize runs the idempotent create-or-reuse algorithm. An existing
// unexpired `created` order with the same cart fingerprint is reused (the
// attempt counter incremented and the frozen snapshot refreshed in place);
// an expired or superseded one is retired and replaced. The store's
// uniqueness constraint backstops concurrent submissions: a constraint
// violation is retried once as a reuse lookup. Failures transitioning a
// retired order are non-fatal and returned as warnings.
func (s *CheckoutService) Materialize(userID, sessionKey string, cart *models.Cart, sel ShippingSelection) (*models.Order, []string, error) {
	fee := s.ShippingFee(sel.Method)
	fingerprint := cart.Fingerprint(sel.Method, fee)
	now := time.Now()

	var warnings []string
	for attempt := 0; ; attempt++ {
		open, err := s.orderRepo.FindOpenByUser(userID)
		if err != nil {
			return nil, warnings, err
		}

		if open != nil {
			switch {
			case open.Expired(now):
				if err := s.orderRepo.UpdateStatus(open.ID, models.OrderExpired); err != nil {
					warnings = append(warnings, fmt.Sprintf("could not expire stale order %s: %v", open.ID, err))
				}
			case open.CartFingerprint != fingerprint:
				if err := s.orderRepo.UpdateStatus(open.ID, models.OrderAbandoned); err != nil {
					warnings = append(warnings, fmt.Sprintf("could not abandon superseded order %s: %v", open.ID, err))
				}
			default:
				// Same purchase attempt: reuse the order, refresh the frozen
				// snapshot so a double submit cannot drift the totals.
				open.AttemptCount++
				open.LastAttemptAt = now
				open.Items = models.SnapshotItems(cart)
				open.Subtotal = cart.Subtotal
				open.Discount = cart.Discount
				open.ShippingFee = fee
				open.Total = cart.Subtotal - cart.Discount + fee
				open.ShippingAddressID = sel.AddressID
				open.SessionKey = sessionKey
				if err := s.orderRepo.Update(open); err != nil {
					return nil, warnings, err
				}
				return open, warnings, nil
			}
		}

		order := &models.Order{
			UserID:            userID,
			Items:             models.SnapshotItems(cart),
			Subtotal:          cart.Subtotal,
			Discount:          cart.Discount,
			ShippingFee:       fee,
			Total:             cart.Subtotal - cart.Discount + fee,
			ShippingMethod:    sel.Method,
			ShippingAddressID: sel.AddressID,
			Status:            models.OrderCreated,
			CartFingerprint:   fingerprint,
			SessionKey:        sessionKey,
			AttemptCount:      0,
			LastAttemptAt:     now,
			ExpiresAt:         now.Add(s.cfg.OrderTTL),
		}
		err = s.orderRepo.Create(order)
		if err == nil {
			return order, warnings, nil
		}
		if errors.Is(err, repositories.ErrOpenOrderExists) && attempt == 0 {
			// Concurrent submission won the race; re-run the reuse lookup.
			log.Printf("open order race for user %s, retrying as reuse", userID)
			continue
		}
		return nil, warnings, err
	}
}

// Order returns the user's order for the status view. Orders belonging to
// other users are reported as not found rather than leaked.
func (s *CheckoutService) Order(userID, orderID string) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("order with ID %s: %w", orderID, repositories.ErrOrderNotFound)
	}
	return order, nil
}

// Orders returns the user's order history, newest first.
func (s *CheckoutService) Orders(userID string) ([]models.Order, error) {
	return s.orderRepo.ListByUser(userID)
}

// openPaymentSession registers a checkout preference for the order and
// persists the returned session identifier.
func (s *CheckoutService) openPaymentSession(order *models.Order) (string, error) {
	items := make([]payment.PreferenceItem, 0, len(order.Items)+1)
	for _, item := range order.Items {
		items = append(items, payment.PreferenceItem{
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: money.Float(item.UnitFinalPrice),
		})
	}
	if order.ShippingFee > 0 {
		items = append(items, payment.PreferenceItem{
			Title:     "Shipping",
			Quantity:  1,
			UnitPrice: money.Float(order.ShippingFee),
		})
	}

	returnURL := s.cfg.PublicBaseURL + "/api/v1/payment/return"
	pref, err := s.gateway.CreatePreference(payment.PreferenceRequest{
		Items:             items,
		ExternalReference: order.ID,
		BackURLs: payment.BackURLs{
			Success: returnURL,
			Pending: returnURL,
			Failure: returnURL,
		},
		NotificationURL: s.cfg.PublicBaseURL + "/api/v1/payment/webhook",
	})
	if err != nil {
		return "", err
	}

	order.PaymentSessionID = pref.ID
	if err := s.orderRepo.Update(order); err != nil {
		return "", fmt.Errorf("failed to persist payment session id: %w", err)
	}
	return s.gateway.RedirectURL(pref), nil
}
