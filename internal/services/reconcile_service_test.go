package services_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"kasir/internal/models"
	"kasir/internal/repositories"
	"kasir/internal/services"
)

// MockPublisher is a mock implementation of services.EventPublisher.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(exchange, routingKey string, body []byte) error {
	args := m.Called(exchange, routingKey, body)
	return args.Error(0)
}

func newReconcileFixture(t *testing.T, status models.OrderStatus) (*services.ReconcileService, *repositories.MockOrderRepository, repositories.CartStore, *MockPublisher) {
	t.Helper()
	orderRepo := repositories.NewMockOrderRepository()
	assert.NoError(t, orderRepo.Create(&models.Order{
		ID:               "order-1",
		UserID:           "user-1",
		Status:           status,
		SessionKey:       "sess",
		PaymentSessionID: "pref-1",
		Total:            2500,
		ExpiresAt:        time.Now().Add(time.Hour),
	}))

	store := repositories.NewMemoryCartStore()
	cart := models.NewCart()
	cart.Upsert(activeProduct("prod-1", 500, 10), 1)
	assert.NoError(t, store.Save("sess", cart))

	publisher := new(MockPublisher)
	return services.NewReconcileService(orderRepo, store, publisher), orderRepo, store, publisher
}

func TestApprovalClearsCartAndPublishes(t *testing.T) {
	service, orderRepo, store, publisher := newReconcileFixture(t, models.OrderCreated)
	publisher.On("Publish", "order", "order.approved", mock.MatchedBy(func(body []byte) bool {
		var event map[string]interface{}
		if err := json.Unmarshal(body, &event); err != nil {
			return false
		}
		// Totals cross the wire as decimal strings.
		return event["order_id"] == "order-1" && event["total"] == "25.00"
	})).Return(nil).Once()

	order, err := service.Reconcile(services.PaymentSignal{
		PaymentID:         "pay-9",
		Status:            "approved",
		ExternalReference: "order-1",
	})
	assert.NoError(t, err)
	assert.Equal(t, models.OrderApproved, order.Status)
	assert.Equal(t, "pay-9", order.PaymentReferenceID)

	stored, err := orderRepo.GetByID("order-1")
	assert.NoError(t, err)
	assert.Equal(t, models.OrderApproved, stored.Status)

	// The purchase is consummated: the session cart is gone.
	cart, err := store.Get("sess")
	assert.NoError(t, err)
	assert.Nil(t, cart)

	publisher.AssertExpectations(t)
}

func TestStaleCallbackCannotDowngradeApproved(t *testing.T) {
	service, orderRepo, _, _ := newReconcileFixture(t, models.OrderApproved)

	for _, status := range []string{"pending", "rejected"} {
		order, err := service.Reconcile(services.PaymentSignal{
			PaymentID:         "pay-late",
			Status:            status,
			ExternalReference: "order-1",
		})
		assert.NoError(t, err)
		assert.Equal(t, models.OrderApproved, order.Status)
	}

	// The metadata update still happened.
	stored, err := orderRepo.GetByID("order-1")
	assert.NoError(t, err)
	assert.Equal(t, models.OrderApproved, stored.Status)
	assert.Equal(t, "pay-late", stored.PaymentReferenceID)
}

func TestTerminalStatusesRejectPaymentOutcomes(t *testing.T) {
	for _, terminal := range []models.OrderStatus{
		models.OrderRejected, models.OrderAbandoned, models.OrderExpired,
	} {
		service, orderRepo, _, _ := newReconcileFixture(t, terminal)

		order, err := service.Reconcile(services.PaymentSignal{
			Status:            "approved",
			ExternalReference: "order-1",
		})
		assert.NoError(t, err, "from %s", terminal)
		assert.Equal(t, terminal, order.Status, "from %s", terminal)

		stored, err := orderRepo.GetByID("order-1")
		assert.NoError(t, err)
		assert.Equal(t, terminal, stored.Status)
	}
}

func TestPendingMaySettleLater(t *testing.T) {
	service, _, _, publisher := newReconcileFixture(t, models.OrderCreated)
	publisher.On("Publish", "order", "order.approved", mock.Anything).Return(nil).Once()

	order, err := service.Reconcile(services.PaymentSignal{
		Status:            "in_process",
		ExternalReference: "order-1",
	})
	assert.NoError(t, err)
	assert.Equal(t, models.OrderPending, order.Status)

	order, err = service.Reconcile(services.PaymentSignal{
		Status:            "approved",
		ExternalReference: "order-1",
	})
	assert.NoError(t, err)
	assert.Equal(t, models.OrderApproved, order.Status)
	publisher.AssertExpectations(t)
}

func TestRejectionPublishesEvent(t *testing.T) {
	service, _, store, publisher := newReconcileFixture(t, models.OrderCreated)
	publisher.On("Publish", "order", "order.rejected", mock.Anything).Return(nil).Once()

	order, err := service.Reconcile(services.PaymentSignal{
		Status:            "rejected",
		ExternalReference: "order-1",
	})
	assert.NoError(t, err)
	assert.Equal(t, models.OrderRejected, order.Status)

	// A rejected payment keeps the cart for another try.
	cart, err := store.Get("sess")
	assert.NoError(t, err)
	assert.NotNil(t, cart)
	publisher.AssertExpectations(t)
}

func TestResolveFallsBackToPaymentSession(t *testing.T) {
	service, _, _, publisher := newReconcileFixture(t, models.OrderCreated)
	publisher.On("Publish", "order", "order.approved", mock.Anything).Return(nil).Once()

	order, err := service.Reconcile(services.PaymentSignal{
		Status:       "approved",
		PreferenceID: "pref-1",
	})
	assert.NoError(t, err)
	assert.Equal(t, "order-1", order.ID)
	assert.Equal(t, models.OrderApproved, order.Status)
}

func TestUnmatchedSignalIsReportedNotFabricated(t *testing.T) {
	service, orderRepo, _, _ := newReconcileFixture(t, models.OrderCreated)

	_, err := service.Reconcile(services.PaymentSignal{
		Status:            "approved",
		ExternalReference: "ghost-order",
		PreferenceID:      "ghost-pref",
	})
	assert.ErrorIs(t, err, services.ErrOrderNotFound)

	// Nothing new was created.
	orders, err := orderRepo.ListByUser("user-1")
	assert.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestUnrecognizedGatewayStatus(t *testing.T) {
	service, orderRepo, _, _ := newReconcileFixture(t, models.OrderCreated)

	_, err := service.Reconcile(services.PaymentSignal{
		Status:            "mystery",
		ExternalReference: "order-1",
	})
	assert.Error(t, err)

	stored, err := orderRepo.GetByID("order-1")
	assert.NoError(t, err)
	assert.Equal(t, models.OrderCreated, stored.Status)
}

func TestNilPublisherIsSafe(t *testing.T) {
	orderRepo := repositories.NewMockOrderRepository()
	assert.NoError(t, orderRepo.Create(&models.Order{
		ID:         "order-1",
		UserID:     "user-1",
		Status:     models.OrderCreated,
		SessionKey: "sess",
	}))
	service := services.NewReconcileService(orderRepo, repositories.NewMemoryCartStore(), nil)

	order, err := service.Reconcile(services.PaymentSignal{
		Status:            "approved",
		ExternalReference: "order-1",
	})
	assert.NoError(t, err)
	assert.Equal(t, models.OrderApproved, order.Status)
}
