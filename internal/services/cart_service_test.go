package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"kasir/internal/models"
	"kasir/internal/money"
	"kasir/internal/repositories"
	"kasir/internal/services"
)

func newCartFixture(t *testing.T, products ...*models.Product) (*services.CartService, *repositories.MockProductRepository, repositories.CartStore) {
	t.Helper()
	productRepo := repositories.NewMockProductRepository()
	for _, p := range products {
		assert.NoError(t, productRepo.Create(p))
	}
	store := repositories.NewMemoryCartStore()
	return services.NewCartService(store, productRepo), productRepo, store
}

func activeProduct(id string, price money.Amount, stock int) *models.Product {
	return &models.Product{ID: id, Title: "Product " + id, Price: price, Stock: stock, Active: true}
}

func TestAddItemValidation(t *testing.T) {
	inactive := activeProduct("inactive", 100, 5)
	inactive.Active = false
	depleted := activeProduct("depleted", 100, 0)
	service, _, _ := newCartFixture(t, inactive, depleted, activeProduct("ok", 100, 5))

	_, err := service.AddItem("sess", "", 1)
	assert.ErrorIs(t, err, services.ErrInvalidProduct)

	_, err = service.AddItem("sess", "ok", 0)
	assert.ErrorIs(t, err, services.ErrInvalidQuantity)

	_, err = service.AddItem("sess", "ok", -2)
	assert.ErrorIs(t, err, services.ErrInvalidQuantity)

	_, err = service.AddItem("sess", "ghost", 1)
	assert.ErrorIs(t, err, services.ErrInvalidProduct)

	_, err = service.AddItem("sess", "inactive", 1)
	assert.ErrorIs(t, err, services.ErrProductNotActive)

	_, err = service.AddItem("sess", "depleted", 1)
	assert.ErrorIs(t, err, services.ErrOutOfStock)
}

func TestAddItemPersistsAcrossCalls(t *testing.T) {
	service, _, _ := newCartFixture(t, activeProduct("prod-1", 500, 10))

	summary, err := service.AddItem("sess", "prod-1", 2)
	assert.NoError(t, err)
	assert.Equal(t, 2, summary.ItemCount)
	assert.Equal(t, money.Amount(1000), summary.Total)

	// A later read sees the stored cart.
	summary, err = service.Get("sess")
	assert.NoError(t, err)
	assert.Len(t, summary.Items, 1)
	assert.Equal(t, 2, summary.Items[0].Quantity)
}

func TestCartsAreSessionScoped(t *testing.T) {
	service, _, _ := newCartFixture(t, activeProduct("prod-1", 500, 10))

	_, err := service.AddItem("sess-a", "prod-1", 1)
	assert.NoError(t, err)

	summary, err := service.Get("sess-b")
	assert.NoError(t, err)
	assert.Empty(t, summary.Items)
}

func TestGetReportsStockDropAdjustments(t *testing.T) {
	product := activeProduct("prod-1", 500, 5)
	service, productRepo, _ := newCartFixture(t, product)

	_, err := service.AddItem("sess", "prod-1", 5)
	assert.NoError(t, err)

	// Stock drops behind the cart's back.
	product.Stock = 2
	assert.NoError(t, productRepo.Update(product))

	summary, err := service.Get("sess")
	assert.NoError(t, err)
	assert.Equal(t, 2, summary.Items[0].Quantity)
	if assert.Len(t, summary.Adjustments, 1) {
		assert.Equal(t, models.AdjustmentClamped, summary.Adjustments[0].Kind)
		assert.Equal(t, "prod-1", summary.Adjustments[0].ProductID)
	}
}

func TestGetDropsDeactivatedProducts(t *testing.T) {
	product := activeProduct("prod-1", 500, 5)
	service, productRepo, _ := newCartFixture(t, product)

	_, err := service.AddItem("sess", "prod-1", 1)
	assert.NoError(t, err)

	assert.NoError(t, productRepo.SetActive("prod-1", false))

	summary, err := service.Get("sess")
	assert.NoError(t, err)
	assert.Empty(t, summary.Items)
	if assert.Len(t, summary.Adjustments, 1) {
		assert.Equal(t, models.AdjustmentRemoved, summary.Adjustments[0].Kind)
	}
}

func TestSetQuantityAndRemove(t *testing.T) {
	service, _, _ := newCartFixture(t,
		activeProduct("prod-1", 500, 10),
		activeProduct("prod-2", 300, 10),
	)

	_, err := service.AddItem("sess", "prod-1", 1)
	assert.NoError(t, err)
	_, err = service.AddItem("sess", "prod-2", 1)
	assert.NoError(t, err)

	summary, err := service.SetQuantity("sess", "prod-1", 4)
	assert.NoError(t, err)
	assert.Equal(t, 5, summary.ItemCount)
	assert.Equal(t, money.Amount(2300), summary.Total)

	summary, err = service.RemoveItem("sess", "prod-2")
	assert.NoError(t, err)
	assert.Len(t, summary.Items, 1)
	assert.Equal(t, money.Amount(2000), summary.Total)

	// Quantity below 1 removes the line.
	summary, err = service.SetQuantity("sess", "prod-1", 0)
	assert.NoError(t, err)
	assert.Empty(t, summary.Items)
}

func TestClearEmptiesTheSession(t *testing.T) {
	service, _, store := newCartFixture(t, activeProduct("prod-1", 500, 10))

	_, err := service.AddItem("sess", "prod-1", 2)
	assert.NoError(t, err)

	assert.NoError(t, service.Clear("sess"))

	cart, err := store.Get("sess")
	assert.NoError(t, err)
	assert.Nil(t, cart)
}
