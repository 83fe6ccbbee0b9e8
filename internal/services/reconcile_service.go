package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"kasir/internal/models"
	"kasir/internal/money"
	"kasir/internal/repositories"
)

// EventPublisher is the narrow messaging surface the reconciler publishes
// order status events through. *rabbitmq.Client satisfies it.
type EventPublisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// PaymentSignal is an inbound payment outcome, from either a return-URL
// visit or a webhook delivery. Parameter names vary by gateway; the web
// layer normalizes them into this struct.
type PaymentSignal struct {
	// PaymentID is the gateway's payment reference.
	PaymentID string
	// Status is the gateway's coarse outcome string.
	Status string
	// PreferenceID is the payment session identifier.
	PreferenceID string
	// ExternalReference is the internal order ID echoed back by the gateway.
	ExternalReference string
}

// ReconcileService maps gateway payment signals onto order status
// transitions, enforcing the bounded state machine: `created` accepts any
// mapped outcome, `pending` may still settle to `approved` or `rejected`,
// and terminal statuses are never overwritten.
type ReconcileService struct {
	orderRepo repositories.OrderRepository
	carts     repositories.CartStore
	publisher EventPublisher // optional; nil disables event publishing
}

// NewReconcileService creates a new ReconcileService.
func NewReconcileService(orderRepo repositories.OrderRepository, carts repositories.CartStore, publisher EventPublisher) *ReconcileService {
	return &ReconcileService{
		orderRepo: orderRepo,
		carts:     carts,
		publisher: publisher,
	}
}

// Reconcile resolves the target order and applies the signal. The order is
// found by the echoed order ID first, then by the payment session ID; if
// neither matches, ErrOrderNotFound is returned and no order is fabricated.
// Payment metadata is refreshed even when the status may not change, so a
// stale duplicate callback still records the freshest gateway identifiers.
func (s *ReconcileService) Reconcile(signal PaymentSignal) (*models.Order, error) {
	order, err := s.resolve(signal)
	if err != nil {
		return nil, err
	}

	outcome, err := mapOutcome(signal.Status)
	if err != nil {
		return nil, err
	}

	if signal.PaymentID != "" {
		order.PaymentReferenceID = signal.PaymentID
	}
	if signal.PreferenceID != "" {
		order.PaymentSessionID = signal.PreferenceID
	}

	transitioned := false
	if order.Status.CanTransition(outcome) {
		order.Status = outcome
		transitioned = true
	}

	if err := s.orderRepo.Update(order); err != nil {
		return nil, err
	}

	if transitioned && order.Status == models.OrderApproved {
		// The purchase is consummated: the live cart is done.
		if order.SessionKey != "" {
			if err := s.carts.Delete(order.SessionKey); err != nil {
				log.Printf("Warning: failed to clear cart for approved order %s: %v", order.ID, err)
			}
		}
		s.publishStatusEvent(order)
	} else if transitioned && order.Status == models.OrderRejected {
		s.publishStatusEvent(order)
	}

	return order, nil
}

func (s *ReconcileService) resolve(signal PaymentSignal) (*models.Order, error) {
	if signal.ExternalReference != "" {
		order, err := s.orderRepo.GetByID(signal.ExternalReference)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, repositories.ErrOrderNotFound) {
			return nil, err
		}
	}
	if signal.PreferenceID != "" {
		order, err := s.orderRepo.FindByPaymentSession(signal.PreferenceID)
		if err != nil {
			return nil, err
		}
		if order != nil {
			return order, nil
		}
	}
	return nil, ErrOrderNotFound
}

// mapOutcome translates the gateway's coarse status strings into order
// statuses.
func mapOutcome(status string) (models.OrderStatus, error) {
	switch strings.ToLower(status) {
	case "approved", "success", "paid":
		return models.OrderApproved, nil
	case "pending", "in_process", "in_progress":
		return models.OrderPending, nil
	case "rejected", "failure", "failed", "cancelled":
		return models.OrderRejected, nil
	}
	return "", fmt.Errorf("unrecognized gateway status %q", status)
}

// publishStatusEvent emits an order status event. Publishing is best effort;
// a failure is logged and never fails the reconciliation. The total crosses
// the wire as a decimal string so consumers are not coupled to the internal
// minor-units representation.
func (s *ReconcileService) publishStatusEvent(order *models.Order) {
	if s.publisher == nil {
		return
	}
	body, err := json.Marshal(map[string]interface{}{
		"order_id": order.ID,
		"user_id":  order.UserID,
		"status":   order.Status,
		"total":    money.Decimal(order.Total),
	})
	if err != nil {
		log.Printf("Warning: failed to marshal status event for order %s: %v", order.ID, err)
		return
	}
	routingKey := "order." + order.Status.String()
	if err := s.publisher.Publish("order", routingKey, body); err != nil {
		log.Printf("Warning: failed to publish %s event for order %s: %v", routingKey, order.ID, err)
	}
}
