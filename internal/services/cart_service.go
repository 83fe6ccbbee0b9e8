package services

import (
	"fmt"

	"kasir/internal/models"
	"kasir/internal/money"
	"kasir/internal/repositories"
)

// CartSummary is what every cart operation returns to the caller: the
// derived totals plus any silent adjustments the recompute performed, so the
// presentation layer can warn the user about clamped or dropped lines.
type CartSummary struct {
	Items       []models.LineItem       `json:"items"`
	ItemCount   int                     `json:"item_count"`
	Subtotal    money.Amount            `json:"subtotal"`
	Discount    money.Amount            `json:"discount"`
	Total       money.Amount            `json:"total"`
	Adjustments []models.CartAdjustment `json:"adjustments,omitempty"`
}

// CartService orchestrates the session cart store and the product catalog
// around the cart aggregate. Every mutation recomputes the cart against
// fresh product rows before it is saved back to the session store.
type CartService struct {
	store       repositories.CartStore
	productRepo repositories.ProductRepository
}

// NewCartService creates a new CartService.
func NewCartService(store repositories.CartStore, productRepo repositories.ProductRepository) *CartService {
	return &CartService{
		store:       store,
		productRepo: productRepo,
	}
}

// Get returns the current cart for the session, refreshed against the
// catalog. A session without a cart yields an empty summary.
func (s *CartService) Get(sessionKey string) (*CartSummary, error) {
	cart, adjustments, err := s.load(sessionKey)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(sessionKey, cart); err != nil {
		return nil, err
	}
	return summarize(cart, adjustments), nil
}

// AddItem puts quantity units of a product into the cart, merging into an
// existing line if one exists. The resulting quantity is clamped to the
// product's current stock.
func (s *CartService) AddItem(sessionKey, productID string, quantity int) (*CartSummary, error) {
	if productID == "" {
		return nil, ErrInvalidProduct
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	product, err := s.productRepo.GetByID(productID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProduct, err)
	}
	if !product.Active {
		return nil, ErrProductNotActive
	}
	if product.Stock <= 0 {
		return nil, ErrOutOfStock
	}

	cart, adjustments, err := s.load(sessionKey)
	if err != nil {
		return nil, err
	}
	adjustments = append(adjustments, cart.Upsert(product, quantity)...)
	if err := s.store.Save(sessionKey, cart); err != nil {
		return nil, err
	}
	return summarize(cart, adjustments), nil
}

// SetQuantity updates the quantity of an existing line. A missing line is a
// no-op; a quantity below 1 removes the line.
func (s *CartService) SetQuantity(sessionKey, productID string, quantity int) (*CartSummary, error) {
	cart, adjustments, err := s.load(sessionKey)
	if err != nil {
		return nil, err
	}
	// Prefer a fresh product row as the stock ceiling; fall back to the
	// stored snapshot when the catalog no longer has the product.
	fresh, lookupErr := s.productRepo.GetByID(productID)
	if lookupErr != nil {
		fresh = nil
	}
	adjustments = append(adjustments, cart.SetQuantity(productID, quantity, fresh)...)
	if err := s.store.Save(sessionKey, cart); err != nil {
		return nil, err
	}
	return summarize(cart, adjustments), nil
}

// RemoveItem deletes a line from the cart if present.
func (s *CartService) RemoveItem(sessionKey, productID string) (*CartSummary, error) {
	cart, adjustments, err := s.load(sessionKey)
	if err != nil {
		return nil, err
	}
	adjustments = append(adjustments, cart.Remove(productID)...)
	if err := s.store.Save(sessionKey, cart); err != nil {
		return nil, err
	}
	return summarize(cart, adjustments), nil
}

// Clear empties the session's cart.
func (s *CartService) Clear(sessionKey string) error {
	return s.store.Delete(sessionKey)
}

// Snapshot returns the refreshed cart value itself, for checkout.
func (s *CartService) Snapshot(sessionKey string) (*models.Cart, []models.CartAdjustment, error) {
	cart, adjustments, err := s.load(sessionKey)
	if err != nil {
		return nil, nil, err
	}
	if err := s.store.Save(sessionKey, cart); err != nil {
		return nil, nil, err
	}
	return cart, adjustments, nil
}

// load fetches the session's cart (or a fresh empty one) and recomputes it
// against current product rows.
func (s *CartService) load(sessionKey string) (*models.Cart, []models.CartAdjustment, error) {
	cart, err := s.store.Get(sessionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if cart == nil {
		return models.NewCart(), nil, nil
	}

	ids := make([]string, 0, len(cart.Items))
	for _, line := range cart.Items {
		ids = append(ids, line.ProductID)
	}
	lookup, err := s.productRepo.GetByIDs(ids)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to refresh cart products: %w", err)
	}
	adjustments := cart.Recompute(lookup)
	return cart, adjustments, nil
}

func summarize(cart *models.Cart, adjustments []models.CartAdjustment) *CartSummary {
	return &CartSummary{
		Items:       cart.Items,
		ItemCount:   cart.ItemCount,
		Subtotal:    cart.Subtotal,
		Discount:    cart.Discount,
		Total:       cart.Total,
		Adjustments: adjustments,
	}
}
