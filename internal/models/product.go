package models

import (
	"gorm.io/gorm"

	"kasir/internal/money"
)

// Product represents a catalog product. Prices are stored in minor units.
type Product struct {
	ID           string       `json:"id" gorm:"primaryKey;type:varchar(36)" validate:"omitempty,uuid"`
	Title        string       `json:"title" validate:"required,min=3,max=100"`
	Description  string       `json:"description" validate:"omitempty,max=500"`
	Price        money.Amount `json:"price" validate:"required,gt=0"`
	Stock        int          `json:"stock" validate:"gte=0"`
	Active       bool         `json:"active"`
	PromoEnabled bool         `json:"promo_enabled"`
	PromoPct     int          `json:"promo_pct" validate:"gte=0,lte=100"`
	ImageURL     string       `json:"image_url" validate:"omitempty,url"`
	gorm.Model                // Embed gorm.Model for CreatedAt, UpdatedAt, DeletedAt
}

// FinalPrice returns the effective unit price after any active promotion.
func (p *Product) FinalPrice() money.Amount {
	if p.PromoEnabled {
		return money.PromoPrice(p.Price, p.PromoPct)
	}
	return p.Price
}
