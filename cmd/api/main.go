package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/karhabty/karhabty-backend/internal/config"
	"github.com/karhabty/karhabty-backend/internal/database"
	"github.com/karhabty/karhabty-backend/internal/engine"
	"github.com/karhabty/karhabty-backend/internal/gateway"
	"github.com/karhabty/karhabty-backend/internal/handlers"
	"github.com/karhabty/karhabty-backend/internal/middleware"
	"github.com/karhabty/karhabty-backend/internal/services"
	"github.com/karhabty/karhabty-backend/internal/store"
	"github.com/karhabty/karhabty-backend/internal/wallet"
	"github.com/karhabty/karhabty-backend/internal/webhooks"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.InitDB()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get database instance: %v", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := services.InitRedis(); err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
	}

	// Optional; logs a warning when not configured
	if err := services.InitFirebase(); err != nil {
		log.Printf("Firebase initialization warning: %v", err)
	}

	if err := services.InitStorage(); err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	hub := services.NewHub()
	go hub.Run()

	// Wire the rental engine
	st := store.New(db)
	ledger := wallet.NewLedger(db, cfg.WalletFloor, logger)
	gw := gateway.NewClient(cfg, logger)
	notifier := services.NewRentalNotifier(db, hub)
	eng := engine.New(cfg, st, ledger, gw, engine.SystemClock(), notifier, logger)
	reconciler := webhooks.NewReconciler(eng, ledger, gw, db, logger)

	// Deposit expiry sweep
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@every 5m", func() {
		eng.SweepExpiredDeposits(context.Background())
	}); err != nil {
		log.Fatalf("Failed to schedule deposit expiry sweep: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	r := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	r.Use(cors.New(corsConfig))

	r.Static("/uploads", "/app/uploads")

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", handlers.Register(db))
			auth.POST("/login", handlers.Login(db))
		}

		// Gateway callbacks: unauthenticated, HMAC-verified
		api.POST("/payments/webhook", handlers.PaymentWebhook(reconciler))

		api.GET("/ws", middleware.AuthMiddleware(), handlers.HandleWebSocket(hub))

		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware())
		{
			users := protected.Group("/users")
			{
				users.GET("/profile", handlers.GetProfile(db))
				users.PUT("/profile", handlers.UpdateProfile(db))
			}

			cars := protected.Group("/cars")
			{
				cars.POST("", handlers.CreateCar(db))
				cars.GET("", handlers.ListCars(db))
				cars.GET("/:id", handlers.GetCar(db))
				cars.PUT("/:id", handlers.UpdateCar(db))
				cars.GET("/:id/reviews", handlers.ListCarReviews(db))
			}

			rentals := protected.Group("/rentals")
			{
				rentals.POST("", handlers.CreateRental(eng))
				rentals.GET("/client", handlers.ListClientRentals(eng))
				rentals.GET("/owner", handlers.ListOwnerRentals(eng))
				rentals.GET("/:id", handlers.GetRental(eng))
				rentals.GET("/:id/audit", handlers.RentalAuditTrail(eng))
				rentals.POST("/:id/confirm_booking", handlers.ConfirmBooking(eng))
				rentals.POST("/:id/owner_confirm_arrival", handlers.OwnerConfirmArrival(eng))
				rentals.POST("/:id/deposit_payment", handlers.DepositPayment(eng))
				rentals.POST("/:id/new_card_deposit_payment", handlers.NewCardDepositPayment(eng))
				rentals.POST("/:id/start_trip", handlers.StartTrip(eng))
				rentals.POST("/:id/stop_arrival", handlers.StopArrival(eng))
				rentals.POST("/:id/end_waiting", handlers.EndWaiting(eng))
				rentals.POST("/:id/end_trip", handlers.EndTrip(eng))
				rentals.POST("/:id/cancel_rental", handlers.CancelRental(eng))
			}

			selfdrive := protected.Group("/selfdrive-rentals")
			{
				selfdrive.POST("/:id/confirm_by_owner", handlers.ConfirmBooking(eng))
				selfdrive.POST("/:id/deposit_payment", handlers.DepositPayment(eng))
				selfdrive.POST("/:id/new_card_deposit_payment", handlers.NewCardDepositPayment(eng))
				selfdrive.POST("/:id/owner_pickup_handover", handlers.OwnerPickupHandover(eng))
				selfdrive.POST("/:id/renter_pickup_handover", handlers.RenterPickupHandover(eng))
				selfdrive.POST("/:id/renter_dropoff_handover", handlers.RenterDropoffHandover(eng))
				selfdrive.POST("/:id/owner_dropoff_handover", handlers.OwnerDropoffHandover(eng))
				selfdrive.POST("/:id/cancel_rental", handlers.CancelRental(eng))
			}

			walletGroup := protected.Group("/wallet")
			{
				walletGroup.GET("/balance", handlers.GetWalletBalance(eng))
				walletGroup.GET("/history", handlers.GetWalletHistory(eng))
				walletGroup.POST("/topup", handlers.WalletTopUp(eng))
			}

			cards := protected.Group("/cards")
			{
				cards.GET("", handlers.ListCards(db))
				cards.DELETE("/:id", handlers.DeleteCard(db))
			}

			protected.POST("/reviews", handlers.CreateReview(db))
			protected.POST("/devices", handlers.RegisterDevice(db))
			protected.DELETE("/devices", handlers.UnregisterDevice(db))
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
