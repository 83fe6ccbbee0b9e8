package handlers

import (
	"errors"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"kasir/internal/services"
)

// sessionCookie names the cookie carrying the cart session key.
const sessionCookie = "cart_session"

// sessionKey returns the request's cart session key, issuing one on first
// touch.
func sessionKey(c *fiber.Ctx) string {
	if key := c.Cookies(sessionCookie); key != "" {
		return key
	}
	key := uuid.New().String()
	c.Cookie(&fiber.Cookie{
		Name:     sessionCookie,
		Value:    key,
		HTTPOnly: true,
	})
	return key
}

// CartHandler handles HTTP requests for the session cart.
type CartHandler struct {
	service  *services.CartService
	validate *validator.Validate
}

// NewCartHandler creates a new CartHandler.
func NewCartHandler(service *services.CartService) *CartHandler {
	return &CartHandler{
		service:  service,
		validate: validator.New(),
	}
}

// RegisterRoutes registers the cart routes with the Fiber app.
func (h *CartHandler) RegisterRoutes(router fiber.Router) {
	cartRoutes := router.Group("/cart")
	cartRoutes.Get("/", h.HandleGetCart)
	cartRoutes.Post("/items", h.HandleAddItem)
	cartRoutes.Patch("/items/:productId", h.HandleSetQuantity)
	cartRoutes.Delete("/items/:productId", h.HandleRemoveItem)
	cartRoutes.Delete("/", h.HandleClearCart)
}

// HandleGetCart returns the current cart summary.
func (h *CartHandler) HandleGetCart(c *fiber.Ctx) error {
	summary, err := h.service.Get(sessionKey(c))
	if err != nil {
		log.Printf("Error loading cart: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not load cart",
			"error":   err.Error(),
		})
	}
	return c.JSON(summary)
}

// AddItemRequest represents the request body for adding a cart item.
type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"omitempty,gte=1"`
}

// HandleAddItem adds a product to the cart.
func (h *CartHandler) HandleAddItem(c *fiber.Ctx) error {
	var req AddItemRequest
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
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	summary, err := h.service.AddItem(sessionKey(c), req.ProductID, req.Quantity)
	if err != nil {
		return h.cartError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(summary)
}

// SetQuantityRequest represents the request body for changing a line's
// quantity.
type SetQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// HandleSetQuantity updates a line's quantity; 0 removes the line.
func (h *CartHandler) HandleSetQuantity(c *fiber.Ctx) error {
	var req SetQuantityRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	summary, err := h.service.SetQuantity(sessionKey(c), c.Params("productId"), req.Quantity)
	if err != nil {
		return h.cartError(c, err)
	}
	return c.JSON(summary)
}

// HandleRemoveItem removes a line from the cart.
func (h *CartHandler) HandleRemoveItem(c *fiber.Ctx) error {
	summary, err := h.service.RemoveItem(sessionKey(c), c.Params("productId"))
	if err != nil {
		return h.cartError(c, err)
	}
	return c.JSON(summary)
}

// HandleClearCart empties the cart.
func (h *CartHandler) HandleClearCart(c *fiber.Ctx) error {
	if err := h.service.Clear(sessionKey(c)); err != nil {
		log.Printf("Error clearing cart: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not clear cart",
			"error":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{"message": "Cart cleared"})
}

// cartError maps cart mutation errors to responses the caller can re-render
// the cart with.
func (h *CartHandler) cartError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidProduct),
		errors.Is(err, services.ErrInvalidQuantity),
		errors.Is(err, services.ErrProductNotActive),
		errors.Is(err, services.ErrOutOfStock):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": err.Error(),
		})
	}
	log.Printf("Error mutating cart: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"message": "Could not update cart",
		"error":   err.Error(),
	})
}
