package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eletrogest/eletrogest/internal"
	"github.com/eletrogest/eletrogest/internal/billing"
	"github.com/eletrogest/eletrogest/internal/email"
	"github.com/eletrogest/eletrogest/internal/handler"
	"github.com/eletrogest/eletrogest/internal/metrics"
	"github.com/eletrogest/eletrogest/internal/middleware"
	"github.com/eletrogest/eletrogest/internal/repository"
	"github.com/eletrogest/eletrogest/internal/service"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Migrations run over database/sql; the application uses a pgx pool.
	migrationDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	if err := migrationDB.PingContext(ctx); err != nil {
		migrationDB.Close()
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := internal.RunMigrations(migrationDB); err != nil {
		migrationDB.Close()
		return fmt.Errorf("migration failed: %w", err)
	}
	migrationDB.Close()

	pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("connection pool failed: %w", err)
	}
	defer pool.Close()
	logger.Info("Database ready")

	// Initialize repository
	repo := repository.New(pool)

	// Email notifications (best effort; Mailhog in development)
	emailService := email.NewSMTPEmailService(email.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	}, cfg.BaseURL, logger)

	// Stripe billing (nil when not configured)
	var billingService billing.Service
	prices := billing.PriceConfig{
		BasicMonthlyPriceID:        cfg.StripeBasicMonthlyPriceID,
		BasicYearlyPriceID:         cfg.StripeBasicYearlyPriceID,
		ProfessionalMonthlyPriceID: cfg.StripeProfessionalMonthlyPriceID,
		ProfessionalYearlyPriceID:  cfg.StripeProfessionalYearlyPriceID,
	}
	if cfg.StripeSecretKey != "" {
		billingService = billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, prices)
		logger.Info("Stripe billing enabled")
	} else {
		logger.Warn("Stripe billing disabled: STRIPE_SECRET_KEY not set")
	}

	// Initialize services
	subscriptionService := service.NewSubscriptionService(repo, emailService, logger)
	entitlementService := service.NewEntitlementService(subscriptionService, repo, emailService, logger)
	promoService := service.NewPromoService(repo, subscriptionService, logger)
	referralService := service.NewReferralService(repo, subscriptionService, logger)

	// Initialize middleware
	authMw := middleware.NewAuthMiddleware(cfg.IdentitySecret, cfg.AdminKeyHashes, logger)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)

	// Initialize handlers
	entitlementHandler := handler.NewEntitlementHandler(entitlementService, subscriptionService, logger)
	redeemHandler := handler.NewRedeemHandler(promoService, referralService, logger)
	adminHandler := handler.NewAdminHandler(subscriptionService, promoService, logger)
	billingHandler := handler.NewBillingHandler(billingService, subscriptionService, cfg.BaseURL, prices, logger)
	webhookHandler := handler.NewWebhookHandler(billingService, subscriptionService, logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Metrics (basic auth when configured)
	mux.Handle("GET /metrics", middleware.MetricsAuth(cfg.MetricsUsername, cfg.MetricsPassword, promhttp.Handler()))

	// Webhooks (public; authenticated by signature)
	webhookHandler.RegisterRoutes(mux)

	entitlementHandler.RegisterRoutes(mux, authMw.RequireUser)
	redeemHandler.RegisterRoutes(mux, authMw.RequireUser)
	billingHandler.RegisterRoutes(mux, authMw.RequireUser)
	adminHandler.RegisterRoutes(mux, authMw.RequireAdmin)

	// Outermost: request logging, then HTTP metrics.
	root := middleware.Stack(loggingMw.Handler, metrics.Middleware)(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: root,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
