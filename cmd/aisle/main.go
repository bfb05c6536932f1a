package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aisleworks/aisle/internal/billing/stripe"
	"github.com/aisleworks/aisle/internal/database"
	"github.com/aisleworks/aisle/internal/email"
	"github.com/aisleworks/aisle/internal/logging"
	"github.com/aisleworks/aisle/internal/plan"
	"github.com/aisleworks/aisle/internal/server"
)

func main() {
	logger := logging.Setup(os.Getenv("AISLE_LOG_LEVEL"))

	port := os.Getenv("AISLE_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("AISLE_DB_PATH")
	if dbPath == "" {
		dbPath = "aisle.db"
	}

	baseURL := os.Getenv("AISLE_BASE_URL")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%s", port)
	}

	db, err := database.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	postmarkToken := os.Getenv("AISLE_POSTMARK_TOKEN")
	fromEmail := os.Getenv("AISLE_FROM_EMAIL")
	emailClient := email.NewClient(postmarkToken, fromEmail, baseURL)

	cfg := server.Config{
		BaseURL:       baseURL,
		SecureCookies: strings.HasPrefix(baseURL, "https://"),
		Stripe: stripe.Config{
			SecretKey:       os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret:   os.Getenv("STRIPE_WEBHOOK_SECRET"),
			SuccessURL:      baseURL + "/settings/billing?session_id={CHECKOUT_SESSION_ID}",
			CancelURL:       baseURL + "/pricing",
			AllowUnverified: os.Getenv("STRIPE_ALLOW_UNVERIFIED") == "true",
		},
		Prices: plan.PriceConfig{
			ProfessionalMonthlyPriceID: os.Getenv("STRIPE_PROFESSIONAL_PRICE_ID"),
			ProfessionalAnnualPriceID:  os.Getenv("STRIPE_PROFESSIONAL_ANNUAL_PRICE_ID"),
			EnterpriseMonthlyPriceID:   os.Getenv("STRIPE_ENTERPRISE_PRICE_ID"),
			EnterpriseAnnualPriceID:    os.Getenv("STRIPE_ENTERPRISE_ANNUAL_PRICE_ID"),
		},
	}

	srv := server.New(db, emailClient, cfg, logger)

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Background cleanup goroutine
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := srv.SessionStore().DeleteExpired(); err != nil {
					slog.Error("cleanup expired sessions", "error", err)
				} else if n > 0 {
					slog.Info("cleaned up expired sessions", "count", n)
				}
				if n, err := srv.MagicLinkStore().DeleteExpired(); err != nil {
					slog.Error("cleanup expired auth codes", "error", err)
				} else if n > 0 {
					slog.Info("cleaned up expired auth codes", "count", n)
				}
				srv.RateLimiter().Cleanup()
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	go func() {
		slog.Info("aisle starting", "addr", ":"+port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cleanupCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
