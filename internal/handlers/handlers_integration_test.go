package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"kasir/internal/handlers"
	"kasir/internal/middleware"
	"kasir/internal/models"
	"kasir/internal/repositories"
	"kasir/internal/services"
	"kasir/pkg/payment"
)

// fakeGateway is an httptest stand-in for the payment provider.
func fakeGateway(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(payment.Preference{
			ID:        "pref-test",
			InitPoint: "https://gateway.test/init",
		})
	}))
}

// setupApp wires a Fiber app against in-memory SQLite and the fake gateway,
// the way main does against real backends.
func setupApp(t *testing.T, gatewayURL string) *fiber.App {
	t.Helper()

	viper.SetDefault("JWT_SECRET", "test_jwt_secret")
	viper.AutomaticEnv()
	jwtSecret := viper.GetString("JWT_SECRET")

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&models.Product{}, &models.User{}, &models.Order{}))

	productRepo := repositories.NewGORMProductRepository(db)
	orderRepo := repositories.NewGORMOrderRepository(db)
	userRepo := repositories.NewGORMUserRepository(db)
	cartStore := repositories.NewMemoryCartStore()

	assert.NoError(t, productRepo.Create(&models.Product{
		ID: "prod-1", Title: "Gaming Headset", Price: 1000, Stock: 10,
		Active: true, PromoEnabled: true, PromoPct: 25,
	}))
	assert.NoError(t, productRepo.Create(&models.Product{
		ID: "prod-2", Title: "Mouse Mat", Price: 300, Stock: 5, Active: true,
	}))

	gateway := payment.NewClient(payment.Config{BaseURL: gatewayURL, AccessToken: "test-token"})

	cartService := services.NewCartService(cartStore, productRepo)
	checkoutService := services.NewCheckoutService(cartService, orderRepo, gateway, services.CheckoutConfig{
		DeliveryFee:   1500,
		PublicBaseURL: "http://shop.test",
	})
	reconcileService := services.NewReconcileService(orderRepo, cartStore, nil)
	authService := services.NewAuthService(userRepo, jwtSecret)

	cartHandler := handlers.NewCartHandler(cartService)
	checkoutHandler := handlers.NewCheckoutHandler(checkoutService, reconcileService)
	authHandler := handlers.NewAuthHandler(authService)

	app := fiber.New()
	apiV1 := app.Group("/api/v1")

	authHandler.RegisterRoutes(apiV1)
	checkoutHandler.RegisterPublicRoutes(apiV1)

	protectedRoutes := apiV1.Group("", middleware.AuthRequired(authService))
	cartHandler.RegisterRoutes(protectedRoutes)
	checkoutHandler.RegisterRoutes(protectedRoutes)

	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		assert.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.AddCookie(&http.Cookie{Name: "cart_session", Value: "integration-session"})

	resp, err := app.Test(req, -1)
	assert.NoError(t, err)

	var decoded map[string]interface{}
	if resp.Body != nil {
		json.NewDecoder(resp.Body).Decode(&decoded)
	}
	return resp, decoded
}

func registerAndLogin(t *testing.T, app *fiber.App) string {
	t.Helper()

	resp, _ := doJSON(t, app, http.MethodPost, "/api/v1/auth/register", "", map[string]interface{}{
		"username": "shopper",
		"email":    "shopper@example.com",
		"password": "secret123",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/auth/login", "", map[string]interface{}{
		"username": "shopper",
		"password": "secret123",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	token, _ := body["token"].(string)
	assert.NotEmpty(t, token)
	return token
}

func TestCartRequiresAuthentication(t *testing.T) {
	gw := fakeGateway(t)
	defer gw.Close()
	app := setupApp(t, gw.URL)

	resp, _ := doJSON(t, app, http.MethodGet, "/api/v1/cart/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCheckoutJourney(t *testing.T) {
	gw := fakeGateway(t)
	defer gw.Close()
	app := setupApp(t, gw.URL)
	token := registerAndLogin(t, app)

	// Add a promoted product: 25% off 1000, qty 2.
	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/cart/items", token, map[string]interface{}{
		"product_id": "prod-1",
		"quantity":   2,
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.EqualValues(t, 2000, body["subtotal"])
	assert.EqualValues(t, 500, body["discount"])
	assert.EqualValues(t, 1500, body["total"])

	// Checkout for delivery: 1500 cart total + 1500 flat fee.
	resp, body = doJSON(t, app, http.MethodPost, "/api/v1/checkout", token, map[string]interface{}{
		"shipping_method": "delivery",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://gateway.test/init", body["redirect_url"])
	orderID, _ := body["order_id"].(string)
	assert.NotEmpty(t, orderID)

	// A double submit reuses the same order.
	resp, body = doJSON(t, app, http.MethodPost, "/api/v1/checkout", token, map[string]interface{}{
		"shipping_method": "delivery",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, orderID, body["order_id"])

	// The gateway sends the buyer back approved.
	returnPath := fmt.Sprintf("/api/v1/payment/return?status=approved&external_reference=%s&payment_id=pay-77", orderID)
	resp, body = doJSON(t, app, http.MethodGet, returnPath, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "approved", body["status"])

	// The status view reflects the outcome.
	resp, body = doJSON(t, app, http.MethodGet, "/api/v1/orders/"+orderID, token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "approved", body["status"])
	assert.Equal(t, "pay-77", body["payment_reference_id"])
	assert.EqualValues(t, 3000, body["total"])

	// The cart was cleared on approval.
	resp, body = doJSON(t, app, http.MethodGet, "/api/v1/cart/", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, body["item_count"])
}

func TestChangedCartCreatesNewOrder(t *testing.T) {
	gw := fakeGateway(t)
	defer gw.Close()
	app := setupApp(t, gw.URL)
	token := registerAndLogin(t, app)

	resp, _ := doJSON(t, app, http.MethodPost, "/api/v1/cart/items", token, map[string]interface{}{
		"product_id": "prod-1",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/checkout", token, map[string]interface{}{
		"shipping_method": "pickup",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	firstOrderID, _ := body["order_id"].(string)

	// The cart changes between attempts.
	resp, _ = doJSON(t, app, http.MethodPost, "/api/v1/cart/items", token, map[string]interface{}{
		"product_id": "prod-2",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body = doJSON(t, app, http.MethodPost, "/api/v1/checkout", token, map[string]interface{}{
		"shipping_method": "pickup",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	secondOrderID, _ := body["order_id"].(string)
	assert.NotEqual(t, firstOrderID, secondOrderID)

	// The superseded order is abandoned, not deleted.
	resp, body = doJSON(t, app, http.MethodGet, "/api/v1/orders/"+firstOrderID, token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "abandoned", body["status"])
}

func TestPaymentReturnForUnknownOrder(t *testing.T) {
	gw := fakeGateway(t)
	defer gw.Close()
	app := setupApp(t, gw.URL)

	resp, _ := doJSON(t, app, http.MethodGet, "/api/v1/payment/return?status=approved&external_reference=ghost", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCartMutationErrors(t *testing.T) {
	gw := fakeGateway(t)
	defer gw.Close()
	app := setupApp(t, gw.URL)
	token := registerAndLogin(t, app)

	// Unknown product
	resp, _ := doJSON(t, app, http.MethodPost, "/api/v1/cart/items", token, map[string]interface{}{
		"product_id": "ghost",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Missing product id
	resp, _ = doJSON(t, app, http.MethodPost, "/api/v1/cart/items", token, map[string]interface{}{
		"quantity": 1,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Empty cart checkout
	resp, _ = doJSON(t, app, http.MethodPost, "/api/v1/checkout", token, map[string]interface{}{
		"shipping_method": "pickup",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
