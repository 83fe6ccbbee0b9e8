package handlers

import (
	"errors"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"kasir/internal/models"
	"kasir/internal/repositories"
	"kasir/internal/services"
)

// CheckoutHandler handles checkout submissions, payment callbacks and the
// order status view.
type CheckoutHandler struct {
	checkout   *services.CheckoutService
	reconciler *services.ReconcileService
	validate   *validator.Validate
}

// NewCheckoutHandler creates a new CheckoutHandler.
func NewCheckoutHandler(checkout *services.CheckoutService, reconciler *services.ReconcileService) *CheckoutHandler {
	return &CheckoutHandler{
		checkout:   checkout,
		reconciler: reconciler,
		validate:   validator.New(),
	}
}

// RegisterRoutes registers the authenticated checkout routes.
func (h *CheckoutHandler) RegisterRoutes(router fiber.Router) {
	router.Post("/checkout", h.HandleCheckout)
	orderRoutes := router.Group("/orders")
	orderRoutes.Get("/", h.HandleListOrders)
	orderRoutes.Get("/:id", h.HandleGetOrder)
}

// RegisterPublicRoutes registers the gateway callback routes. The gateway
// redirects the buyer's browser here without our auth header, so these stay
// outside the JWT middleware.
func (h *CheckoutHandler) RegisterPublicRoutes(router fiber.Router) {
	paymentRoutes := router.Group("/payment")
	paymentRoutes.Get("/return", h.HandlePaymentReturn)
	paymentRoutes.Post("/webhook", h.HandlePaymentWebhook)
}

// CheckoutRequest represents the checkout submission.
type CheckoutRequest struct {
	ShippingMethod    string `json:"shipping_method" validate:"required,oneof=pickup delivery"`
	ShippingAddressID string `json:"shipping_address_id" validate:"omitempty,uuid"`
}

// HandleCheckout materializes the session cart into an order and returns the
// gateway redirect target.
func (h *CheckoutHandler) HandleCheckout(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	var req CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  validationMessages(err),
		})
	}

	result, err := h.checkout.Checkout(userID, sessionKey(c), services.ShippingSelection{
		Method:    models.ShippingMethod(req.ShippingMethod),
		AddressID: req.ShippingAddressID,
	})
	if err != nil {
		return h.checkoutError(c, err)
	}

	return c.JSON(fiber.Map{
		"order_id":     result.Order.ID,
		"redirect_url": result.RedirectURL,
		"warnings":     result.Warnings,
	})
}

// HandlePaymentReturn consumes the gateway's synchronous return redirect.
// Query parameter names vary by gateway, so the common spellings are all
// accepted.
func (h *CheckoutHandler) HandlePaymentReturn(c *fiber.Ctx) error {
	signal := services.PaymentSignal{
		PaymentID:         firstQuery(c, "payment_id", "collection_id"),
		Status:            firstQuery(c, "status", "collection_status"),
		PreferenceID:      firstQuery(c, "preference_id", "session_id"),
		ExternalReference: firstQuery(c, "external_reference", "order_id"),
	}
	return h.reconcile(c, signal)
}

// WebhookRequest represents an asynchronous gateway notification.
type WebhookRequest struct {
	PaymentID         string `json:"payment_id"`
	Status            string `json:"status"`
	PreferenceID      string `json:"preference_id"`
	ExternalReference string `json:"external_reference"`
}

// HandlePaymentWebhook consumes asynchronous gateway notifications.
func (h *CheckoutHandler) HandlePaymentWebhook(c *fiber.Ctx) error {
	var req WebhookRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid webhook body",
			"error":   err.Error(),
		})
	}
	return h.reconcile(c, services.PaymentSignal{
		PaymentID:         req.PaymentID,
		Status:            req.Status,
		PreferenceID:      req.PreferenceID,
		ExternalReference: req.ExternalReference,
	})
}

func (h *CheckoutHandler) reconcile(c *fiber.Ctx, signal services.PaymentSignal) error {
	order, err := h.reconciler.Reconcile(signal)
	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"message": "We could not match this payment to an order.",
			})
		}
		log.Printf("Error reconciling payment signal: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "The payment result could not be processed.",
			"error":   err.Error(),
		})
	}
	return c.JSON(orderView(order))
}

// HandleListOrders returns the authenticated user's order history.
func (h *CheckoutHandler) HandleListOrders(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	orders, err := h.checkout.Orders(userID)
	if err != nil {
		log.Printf("Error listing orders for user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not retrieve orders",
			"error":   err.Error(),
		})
	}
	return c.JSON(orders)
}

// HandleGetOrder returns the order status view.
func (h *CheckoutHandler) HandleGetOrder(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	order, err := h.checkout.Order(userID, c.Params("id"))
	if err != nil {
		if errors.Is(err, repositories.ErrOrderNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"message": "Order not found",
			})
		}
		log.Printf("Error getting order %s: %v", c.Params("id"), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not retrieve order",
			"error":   err.Error(),
		})
	}
	return c.JSON(orderView(order))
}

// checkoutError maps checkout errors onto user-facing responses. Gateway
// failures keep the order reusable, so the message invites a retry.
func (h *CheckoutHandler) checkoutError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrEmptyCart):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Your cart is empty.",
		})
	case errors.Is(err, services.ErrMissingUser):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"message": "Please sign in to check out.",
		})
	case errors.Is(err, services.ErrGatewaySession):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"message": "The payment provider is unavailable, please try again.",
		})
	}
	log.Printf("Error during checkout: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"message": "Checkout failed",
		"error":   err.Error(),
	})
}

// orderView is the order status view exposed to the caller.
func orderView(order *models.Order) fiber.Map {
	return fiber.Map{
		"id":                   order.ID,
		"status":               order.Status,
		"total":                order.Total,
		"items":                order.Items,
		"payment_reference_id": order.PaymentReferenceID,
	}
}

// firstQuery returns the first non-empty query parameter among names.
func firstQuery(c *fiber.Ctx, names ...string) string {
	for _, name := range names {
		if v := c.Query(name); v != "" {
			return v
		}
	}
	return ""
}
