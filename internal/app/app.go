package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/order"
	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/payment"
	"github.com/PavaniPriya06/CLOUTH-AG/internal/gateway"
	"github.com/PavaniPriya06/CLOUTH-AG/internal/handler"
	"github.com/PavaniPriya06/CLOUTH-AG/internal/invoice"
	"github.com/PavaniPriya06/CLOUTH-AG/internal/notify"
	"github.com/PavaniPriya06/CLOUTH-AG/internal/storage/postgres"
	"github.com/PavaniPriya06/CLOUTH-AG/pkg/health"
	"github.com/PavaniPriya06/CLOUTH-AG/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles
// graceful shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.DatabasePingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	cartRepo := postgres.NewCartRepository(pool)
	userRepo := postgres.NewUserRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Collaborators.
	gatewayClient := gateway.NewClient(gateway.Config{
		BaseURL:   cfg.Gateway.BaseURL,
		KeyID:     cfg.Gateway.KeyID,
		KeySecret: cfg.Gateway.KeySecret,
	})
	invoices, err := invoice.NewGenerator(invoice.Config{
		Dir:           cfg.Invoice.Dir,
		PublicBaseURL: cfg.Invoice.PublicBaseURL,
		StoreName:     cfg.Invoice.StoreName,
	})
	if err != nil {
		return errors.Wrap(err, "create invoice generator")
	}
	notifier := notify.NewDispatcher(notify.Config{
		APIKey:        cfg.SMS.APIKey,
		Endpoint:      cfg.SMS.Endpoint,
		OperatorPhone: cfg.SMS.OperatorPhone,
	}, lg)

	// Domain services.
	materializer := order.NewMaterializer(productRepo,
		decimal.NewFromFloat(cfg.Shipping.FreeOver),
		decimal.NewFromFloat(cfg.Shipping.FlatFee))
	verifier := payment.NewVerifier(cfg.Gateway.KeySecret, cfg.Gateway.WebhookSecret)
	guard := payment.NewGuard(orderRepo)
	paymentSvc := payment.NewService(
		payment.Config{ReceivingUPI: cfg.Gateway.ReceivingUPI},
		verifier, guard, materializer,
		orderRepo, cartRepo, userRepo,
		gatewayClient, invoices, notifier,
		lg,
	)
	defer paymentSvc.WaitSideEffects()

	// HTTP handlers.
	security := handler.NewSecurity(apikeyRepo, userRepo, []byte(cfg.APIKeyPepper))
	h := handler.New(
		handler.Config{ImageBaseURL: cfg.ImageBaseURL},
		productRepo, orderRepo, userRepo,
		materializer, paymentSvc, invoices,
		security,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				KeyFunc: httpmiddleware.KeyByAPIKey(handler.APIKeyHeader),
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("clouth-api", m),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
