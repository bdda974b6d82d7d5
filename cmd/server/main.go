package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"nexosql-backend/internal/aiclient"
	"nexosql-backend/internal/api"
	"nexosql-backend/internal/billing"
	"nexosql-backend/internal/config"
	"nexosql-backend/internal/crypto"
	"nexosql-backend/internal/engines"
	"nexosql-backend/internal/handlers"
	"nexosql-backend/internal/jobs"
	"nexosql-backend/internal/logging"
	"nexosql-backend/internal/services"
	"nexosql-backend/internal/store/gormstore"
)

func main() {
	logrus.Info("Starting NexoSQL Backend...")

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stdout); err != nil {
		logrus.Fatalf("Failed to configure logging: %v", err)
	}
	log := logging.Component("Main")

	// 2. Database
	db, err := gormstore.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Unable to get database handle: %v", err)
	}
	defer sqlDB.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := sqlDB.PingContext(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("Unable to ping database: %v", err)
	}
	pingCancel()

	if err := gormstore.Migrate(db); err != nil {
		log.Fatalf("Database migration failed: %v", err)
	}
	st := gormstore.New(db)
	log.Infof("%s store initialized and migrated.", cfg.DatabaseDriver)

	// 3. Dependencies
	sealer, err := crypto.NewSealer(cfg.EncryptionKey)
	if err != nil {
		log.Fatalf("Failed to create password sealer: %v", err)
	}
	testers := engines.NewDefaultRegistry(10 * time.Second)
	ai := aiclient.New(cfg.AIServiceURL, cfg.AIServiceTimeout)
	paypal := billing.NewPayPal(context.Background(), cfg.PayPal)

	// --- Services ---
	userService := services.NewUserService(st, cfg)
	connService := services.NewConnectionService(st, sealer, testers)
	chatService := services.NewChatService(st)
	queryService := services.NewQueryService(st, connService, ai)
	subService := services.NewSubscriptionService(st, paypal)
	supportService := services.NewSupportService(st)
	adminService := services.NewAdminService(st)
	log.Info("Services initialized.")

	// 4. Router
	router := api.NewRouter(api.RouterDependencies{
		UserHandler:         handlers.NewUserHandler(userService),
		ConnectionHandler:   handlers.NewConnectionHandler(connService),
		ChatHandler:         handlers.NewChatHandler(chatService, queryService),
		SubscriptionHandler: handlers.NewSubscriptionHandler(subService),
		SupportHandler:      handlers.NewSupportHandler(supportService),
		AdminHandler:        handlers.NewAdminHandler(adminService),
		Config:              cfg,
	})
	log.Info("HTTP router configured.")

	// 5. Background jobs
	scheduler, err := jobs.Start(cfg.SubscriptionSweepSpec, jobs.NewSubscriptionSweeper(st, cfg.PendingSubscriptionTTL))
	if err != nil {
		log.Fatalf("Failed to start subscription sweeper: %v", err)
	}

	// 6. HTTP server
	server := &http.Server{
		Addr:        ":" + cfg.HTTPPort,
		Handler:     router,
		ReadTimeout: 5 * time.Second,
		// process-query holds the connection while the AI service works.
		WriteTimeout: cfg.AIServiceTimeout + 20*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Infof("Server starting and listening on port %s", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Could not listen on %s: %v", cfg.HTTPPort, err)
		}
		log.Info("Server listener routine stopped.")
	}()

	<-stopChan
	log.Info("Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	scheduler.Stop(shutdownCtx)
	if n := queryService.InFlight(); n > 0 {
		log.Warnf("%d queries still in flight at shutdown", n)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server graceful shutdown failed: %v", err)
		return
	}

	log.Info("Server shutdown complete.")
}
