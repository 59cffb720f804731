package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"pos-monitor/config"
	"pos-monitor/handlers"
	"pos-monitor/middleware"
	"pos-monitor/models"
	"pos-monitor/services"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found")
	}

	// Initialize structured logger
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(logHandler))

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize MongoDB
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := services.InitMongoDB(ctx, cfg.MongoURI)
	if err != nil {
		slog.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	defer db.Disconnect(ctx)

	// Initialize services
	services.InitServices(db, cfg.DatabaseName)

	if err := services.CreateAuthSessionIndexes(ctx); err != nil {
		slog.Error("Failed to create auth session indexes", "error", err)
		// Continue anyway - the app can still work without indexes
	}

	// Wire the core: session lifecycle, notification side-channel, hub
	notifier := services.NewNotificationService()
	hub := services.NewHub(notifier)
	notifier.AttachHub(hub)

	sessionService := services.NewCashierSessionService(
		services.NewMongoSessionStore(),
		services.NewMongoSalesStore(),
		services.NewMongoDirectory(),
		cfg.Location(),
	)

	handlers.Init(sessionService, hub, notifier)

	// Start background sweeps
	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	defer cancelCleanup()
	services.StartAuthSessionCleanup(cleanupCtx)
	services.StartHubCleanup(cleanupCtx, hub)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			slog.Error("Request error", "error", err, "status", code)
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New())

	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:5173, http://localhost:3000",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path}\n",
	}))

	auth := app.Group("/auth")
	auth.Post("/login", handlers.Login)
	auth.Post("/logout", handlers.Logout)
	auth.Post("/logout-all", handlers.LogoutAll)
	auth.Get("/me", handlers.GetCurrentUser)

	// User provisioning (admin only, gated on the permission table)
	admin := app.Group("/admin", middleware.RequireAuth,
		middleware.RequirePermission("manage_users"))
	admin.Post("/users", handlers.CreateUser)
	admin.Get("/users", handlers.ListUsers)

	// Cashier session lifecycle (protected)
	cashier := app.Group("/cashier", middleware.RequireAuth)
	cashier.Post("/checkin", handlers.CheckIn)
	cashier.Post("/checkout", handlers.CheckOut)
	cashier.Get("/session-status/:cashierID", handlers.GetSessionStatus)
	cashier.Get("/session-history/:cashierID", handlers.GetSessionHistory)

	// Supervisor monitoring (protected, supervisor or admin only)
	supervisor := app.Group("/supervisor", middleware.RequireAuth,
		middleware.RequireRole(models.RoleSupervisor, models.RoleAdmin))
	supervisor.Get("/cashiers", handlers.GetLiveCashiers)
	supervisor.Get("/sessions", handlers.GetDailyReport)
	supervisor.Post("/sessions/:cashierID/review", handlers.ReviewSession)
	supervisor.Post("/force-checkout", handlers.ForceCheckout)

	notifications := app.Group("/notifications", middleware.RequireAuth,
		middleware.RequireRole(models.RoleSupervisor, models.RoleAdmin))
	notifications.Get("/", handlers.GetNotifications)
	notifications.Post("/:id/read", handlers.MarkNotificationRead)

	// Realtime channel; the handshake is validated before the upgrade
	app.Get("/ws", handlers.WebSocketAuth, handlers.WebSocketUpgrade, websocket.New(handlers.HandleWebSocket))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "pos-monitor",
		})
	})

	// Start server
	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	slog.Info("Server starting", "port", port)
	if err := app.Listen(":" + port); err != nil {
		slog.Error("Server failed to start", "error", err)
		os.Exit(1)
	}
}
