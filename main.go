package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/spf13/viper"
	amqp "github.com/streadway/amqp"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"kasir/internal/handlers"
	"kasir/internal/middleware"
	"kasir/internal/models"
	"kasir/internal/money"
	"kasir/internal/repositories"
	"kasir/internal/services"
	"kasir/pkg/payment"
	"kasir/pkg/rabbitmq"
)

func main() {
	// --- Configuration ---
	viper.SetDefault("APP_PORT", ":8080")
	viper.SetDefault("DATABASE_DSN", "kasir.db")
	viper.SetDefault("JWT_SECRET", "change_me_in_production")
	viper.SetDefault("RABBITMQ_URL", "")
	viper.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	viper.SetDefault("PAYMENT_BASE_URL", "https://api.gateway.example")
	viper.SetDefault("PAYMENT_ACCESS_TOKEN", "")
	viper.SetDefault("PAYMENT_SANDBOX", true)
	viper.SetDefault("DELIVERY_FEE", "15.00")
	viper.SetDefault("ORDER_TTL_HOURS", 24)
	viper.AutomaticEnv()

	// --- Database (GORM) ---
	db, err := openDatabase(viper.GetString("DATABASE_DSN"))
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := db.AutoMigrate(&models.Product{}, &models.User{}, &models.Order{}); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// --- RabbitMQ (optional) ---
	var publisher services.EventPublisher
	if url := viper.GetString("RABBITMQ_URL"); url != "" {
		mqClient, err := rabbitmq.NewClient(rabbitmq.Config{URL: url})
		if err != nil {
			log.Fatalf("Failed to initialize RabbitMQ client: %v", err)
		}
		defer mqClient.Close()
		publisher = mqClient

		// Consume the status events we publish. Downstream this is where
		// notifications and fulfillment would hook in; for now each event is
		// logged and acknowledged.
		log.Println("Starting RabbitMQ consumer for order status events...")
		messageHandler := func(msg amqp.Delivery) error {
			log.Printf("Received order status event [%s] (Tag: %d): %s",
				msg.RoutingKey, msg.DeliveryTag, string(msg.Body))
			return nil // Return nil to acknowledge
		}
		if consumerErr := mqClient.ConsumeOrderStatusEvents(messageHandler); consumerErr != nil {
			log.Printf("Failed to start RabbitMQ consumer: %v", consumerErr)
		}
	} else {
		log.Println("RABBITMQ_URL not set, order status events disabled")
	}

	// --- Payment gateway ---
	gateway := payment.NewClient(payment.Config{
		BaseURL:     viper.GetString("PAYMENT_BASE_URL"),
		AccessToken: viper.GetString("PAYMENT_ACCESS_TOKEN"),
		Sandbox:     viper.GetBool("PAYMENT_SANDBOX"),
	})

	// --- Repositories ---
	productRepo := repositories.NewGORMProductRepository(db)
	orderRepo := repositories.NewGORMOrderRepository(db)
	userRepo := repositories.NewGORMUserRepository(db)
	cartStore := repositories.NewMemoryCartStore()

	seedProducts(productRepo)

	// --- Services ---
	deliveryFee, err := money.FromDecimal(viper.GetString("DELIVERY_FEE"))
	if err != nil {
		log.Fatalf("Invalid DELIVERY_FEE: %v", err)
	}

	cartService := services.NewCartService(cartStore, productRepo)
	checkoutService := services.NewCheckoutService(cartService, orderRepo, gateway, services.CheckoutConfig{
		DeliveryFee:   deliveryFee,
		OrderTTL:      time.Duration(viper.GetInt("ORDER_TTL_HOURS")) * time.Hour,
		PublicBaseURL: viper.GetString("PUBLIC_BASE_URL"),
	})
	reconcileService := services.NewReconcileService(orderRepo, cartStore, publisher)
	authService := services.NewAuthService(userRepo, viper.GetString("JWT_SECRET"))

	// --- Handlers ---
	cartHandler := handlers.NewCartHandler(cartService)
	checkoutHandler := handlers.NewCheckoutHandler(checkoutService, reconcileService)
	authHandler := handlers.NewAuthHandler(authService)

	// --- Fiber app ---
	app := fiber.New()
	app.Use(logger.New())

	apiV1 := app.Group("/api/v1")

	// Public routes: auth and the gateway callbacks (the gateway redirects
	// the buyer's browser back without our auth header).
	authHandler.RegisterRoutes(apiV1)
	checkoutHandler.RegisterPublicRoutes(apiV1)

	// Protected routes
	protectedRoutes := apiV1.Group("", middleware.AuthRequired(authService))
	cartHandler.RegisterRoutes(protectedRoutes)
	checkoutHandler.RegisterRoutes(protectedRoutes)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// --- Start HTTP server ---
	appPort := viper.GetString("APP_PORT")
	log.Printf("Starting server on port %s", appPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := app.Listen(appPort); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Printf("Error during Fiber shutdown: %v", err)
	}
	log.Println("Server gracefully stopped")
}

// openDatabase picks the GORM driver from the DSN shape: a postgres DSN
// contains key=value pairs, anything else is treated as a SQLite path.
func openDatabase(dsn string) (*gorm.DB, error) {
	if strings.Contains(dsn, "host=") || strings.HasPrefix(dsn, "postgres://") {
		return gorm.Open(postgres.Open(dsn), &gorm.Config{})
	}
	return gorm.Open(sqlite.Open(dsn), &gorm.Config{})
}

// seedProducts populates an empty catalog with some initial data.
func seedProducts(repo repositories.ProductRepository) {
	existing, err := repo.GetAll()
	if err != nil {
		log.Printf("Error checking catalog before seeding: %v", err)
		return
	}
	if len(existing) > 0 {
		return
	}

	products := []models.Product{
		{ID: "prod-1", Title: "Laptop", Description: "High performance laptop", Price: 120000, Stock: 10, Active: true},
		{ID: "prod-2", Title: "Keyboard", Description: "Mechanical keyboard", Price: 7500, Stock: 25, Active: true, PromoEnabled: true, PromoPct: 10},
		{ID: "prod-3", Title: "Mouse", Description: "Ergonomic wireless mouse", Price: 2500, Stock: 50, Active: true},
	}

	for i := range products {
		if err := repo.Create(&products[i]); err != nil {
			log.Printf("Error seeding product %s: %v", products[i].Title, err)
		} else {
			log.Printf("Seeded product: %s (ID: %s)", products[i].Title, products[i].ID)
		}
	}
}
