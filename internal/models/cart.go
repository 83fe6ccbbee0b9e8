package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"kasir/internal/money"
)

// LineItem is one cart line. Prices and stock are snapshots taken at the
// last mutation, not live joins against the catalog.
type LineItem struct {
	ProductID      string       `json:"product_id"`
	Title          string       `json:"title"`
	UnitBasePrice  money.Amount `json:"unit_base_price"`
	UnitFinalPrice money.Amount `json:"unit_final_price"`
	Quantity       int          `json:"quantity"`
	Stock          int          `json:"stock"`
	LineSubtotal   money.Amount `json:"line_subtotal"`
}

// AdjustmentKind classifies a silent change Recompute made to a line.
type AdjustmentKind string

const (
	AdjustmentClamped AdjustmentKind = "clamped"
	AdjustmentRemoved AdjustmentKind = "removed"
)

// CartAdjustment reports a line that Recompute clamped or dropped, so the
// presentation layer can warn the user.
type CartAdjustment struct {
	ProductID string         `json:"product_id"`
	Title     string         `json:"title"`
	Kind      AdjustmentKind `json:"kind"`
}

// Cart is the session-scoped aggregate. The derived fields are recomputed on
// every mutation and never written directly.
type Cart struct {
	Items     []LineItem   `json:"items"`
	Subtotal  money.Amount `json:"subtotal"`
	Discount  money.Amount `json:"discount"`
	Total     money.Amount `json:"total"`
	ItemCount int          `json:"item_count"`
}

// NewCart returns an empty cart.
func NewCart() *Cart {
	return &Cart{Items: []LineItem{}}
}

// Line returns the line for a product, or nil.
func (c *Cart) Line(productID string) *LineItem {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i]
		}
	}
	return nil
}

// Upsert merges quantity into an existing line for the product or appends a
// new one. Quantity is clamped to the product's current stock. The caller
// validates the product and quantity beforehand.
func (c *Cart) Upsert(product *Product, quantity int) []CartAdjustment {
	if line := c.Line(product.ID); line != nil {
		line.Quantity += quantity
	} else {
		c.Items = append(c.Items, LineItem{
			ProductID: product.ID,
			Quantity:  quantity,
		})
	}
	return c.Recompute(map[string]*Product{product.ID: product})
}

// SetQuantity updates a line's quantity. Missing lines are a no-op and a
// quantity below 1 removes the line. When a fresh product row is supplied it
// becomes the new snapshot for that line.
func (c *Cart) SetQuantity(productID string, quantity int, fresh *Product) []CartAdjustment {
	line := c.Line(productID)
	if line == nil {
		return nil
	}
	if quantity < 1 {
		c.removeLine(productID)
		return c.Recompute(nil)
	}
	line.Quantity = quantity
	var lookup map[string]*Product
	if fresh != nil {
		lookup = map[string]*Product{productID: fresh}
	}
	return c.Recompute(lookup)
}

// Remove deletes a line if present.
func (c *Cart) Remove(productID string) []CartAdjustment {
	c.removeLine(productID)
	return c.Recompute(nil)
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.Items = []LineItem{}
	c.Recompute(nil)
}

func (c *Cart) removeLine(productID string) {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return
		}
	}
}

// Recompute re-derives every line from the supplied product lookup (or from
// the stored snapshot when the lookup is nil or misses the product), drops
// lines whose stock or quantity resolves to zero or less, clamps quantities
// to the stock ceiling, and rebuilds the totals from the surviving lines.
// Calling it twice without an intervening mutation yields an identical cart;
// the returned adjustments describe what changed this call.
func (c *Cart) Recompute(lookup map[string]*Product) []CartAdjustment {
	var adjustments []CartAdjustment
	survivors := c.Items[:0]
	for _, line := range c.Items {
		if lookup != nil {
			if p, ok := lookup[line.ProductID]; ok {
				if !p.Active {
					adjustments = append(adjustments, CartAdjustment{line.ProductID, p.Title, AdjustmentRemoved})
					continue
				}
				line.Title = p.Title
				line.UnitBasePrice = p.Price
				line.UnitFinalPrice = p.FinalPrice()
				line.Stock = p.Stock
			}
		}
		if line.Stock <= 0 || line.Quantity <= 0 {
			adjustments = append(adjustments, CartAdjustment{line.ProductID, line.Title, AdjustmentRemoved})
			continue
		}
		if line.Quantity > line.Stock {
			line.Quantity = line.Stock
			adjustments = append(adjustments, CartAdjustment{line.ProductID, line.Title, AdjustmentClamped})
		}
		line.LineSubtotal = line.UnitFinalPrice * money.Amount(line.Quantity)
		survivors = append(survivors, line)
	}
	c.Items = survivors

	c.Subtotal, c.Discount, c.Total, c.ItemCount = 0, 0, 0, 0
	for _, line := range c.Items {
		c.Subtotal += line.UnitBasePrice * money.Amount(line.Quantity)
		c.Discount += (line.UnitBasePrice - line.UnitFinalPrice) * money.Amount(line.Quantity)
		c.Total += line.LineSubtotal
		c.ItemCount += line.Quantity
	}
	return adjustments
}

// Fingerprint returns a stable digest over the ordered line tuples plus the
// shipping selection. Identical contents and shipping choice always hash to
// the same value; any change in price, quantity, item set or shipping choice
// changes it. The string fields are length-prefixed so delimiter characters
// inside a value cannot make two different carts encode alike.
func (c *Cart) Fingerprint(method ShippingMethod, fee money.Amount) string {
	var b strings.Builder
	for _, line := range c.Items {
		fmt.Fprintf(&b, "%d:%s|%d:%s|%d|%d;",
			len(line.ProductID), line.ProductID, len(line.Title), line.Title,
			line.UnitFinalPrice, line.Quantity)
	}
	fmt.Fprintf(&b, "ship:%s|%d", method, fee)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
