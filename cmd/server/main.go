package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/HSahraye/immigration-helper-ai-sub000/internal"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/anonymous"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/auth"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/billing"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/domain"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/handler"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/metrics"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/middleware"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/repository"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/retention"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/service"
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
	isSecure := !cfg.IsDevelopment()

	// Initialize storage
	queries, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// Initialize services
	usageService := service.NewUsageService(queries, logger)
	tierResolver := service.NewTierResolver(queries, logger)
	subscriptionService := service.NewSubscriptionService(queries, logger)
	quotaService := service.NewQuotaService(tierResolver, usageService, service.QuotaConfig{
		Limits:   cfg.QuotaLimits,
		FailOpen: cfg.QuotaFailOpen,
	}, logger)

	if err := bindStripePrices(ctx, subscriptionService, cfg.StripePriceIDs(), logger); err != nil {
		return err
	}

	var billingService billing.Service
	if cfg.StripeSecretKey != "" {
		billingService = billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set, billing endpoints are disabled")
	}

	// Identity and anonymous tracking
	verifier, err := auth.NewVerifier(cfg.SessionSecret)
	if err != nil {
		return fmt.Errorf("session verifier initialization failed: %w", err)
	}

	anonStore, closeAnon, err := openAnonStore(ctx, cfg, logger, isSecure)
	if err != nil {
		return err
	}
	defer closeAnon()
	tracker := anonymous.NewTracker(anonStore, cfg.AnonLifetimeLimit, cfg.AnonTTL, logger)

	// Initialize middleware
	authMw := middleware.NewAuthMiddleware(verifier, logger, cfg.SigninPath)
	gate := middleware.NewQuotaGate(quotaService, tracker, middleware.GateConfig{
		Routes:      cfg.QuotaRoutes,
		FailOpen:    cfg.QuotaFailOpen,
		SigninPath:  cfg.SigninPath,
		UpgradePath: cfg.UpgradePath,
	}, logger)
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)
	defer limiter.Stop()
	rateLimitMw := middleware.NewRateLimitMiddleware(limiter, logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	metricsAuthMw := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword, logger)

	// Initialize handlers
	usageHandler := handler.NewUsageHandler(quotaService, tracker, logger)
	subscriptionHandler := handler.NewSubscriptionHandler(subscriptionService, tierResolver, cfg.TestSubscriptionsEnabled, logger)
	billingHandler := handler.NewBillingHandler(billingService, subscriptionService, cfg.BaseURL, logger)
	webhookHandler := handler.NewWebhookHandler(billingService, subscriptionService, logger)

	upstream, err := handler.NewUpstreamProxy(cfg.UpstreamURL, logger)
	if err != nil {
		return fmt.Errorf("upstream proxy initialization failed: %w", err)
	}

	// Background pruning of old usage records
	if cfg.UsageRetention > 0 {
		scheduler, err := retention.NewScheduler(usageService, cfg.UsageRetention, cfg.UsagePruneSchedule, logger)
		if err != nil {
			return fmt.Errorf("retention scheduler initialization failed: %w", err)
		}
		if err := scheduler.Start(); err != nil {
			return err
		}
		defer func() { <-scheduler.Stop().Done() }()
	}

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	// The service's own JSON API
	api := http.NewServeMux()
	withUser := authMw.WithUser
	requireUser := middleware.Stack(authMw.WithUser, authMw.RequireUser)
	usageHandler.RegisterRoutes(api, withUser)
	subscriptionHandler.RegisterRoutes(api, requireUser)
	billingHandler.RegisterRoutes(api, requireUser)
	webhookHandler.RegisterRoutes(api)
	ownAPI := securityMw.Handler(api)

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Metrics (basic auth when configured)
	mux.Handle("GET /metrics", metricsAuthMw.Handler(promhttp.Handler()))

	ownPrefixes := []string{"/api/usage", "/api/plans", "/api/subscription", "/api/billing/", "/webhooks/stripe"}
	for _, prefix := range ownPrefixes {
		mux.Handle(prefix, ownAPI)
		if !strings.HasSuffix(prefix, "/") {
			mux.Handle(prefix+"/", ownAPI)
		}
	}

	// Guarded AI routes: burst limit, identity, quota, then the upstream
	guarded := middleware.Stack(rateLimitMw.Limit, authMw.WithUser, gate.Handler)(upstream)
	registerGuardedRoutes(mux, cfg.QuotaRoutes, guarded)

	// Everything else passes through to the upstream with a verified X-User-Id
	mux.Handle("/", middleware.Stack(authMw.WithUser, gate.Handler)(upstream))

	httpMetrics := metrics.NewHTTPMetrics(cfg.QuotaRoutes, ownPrefixes...)

	corsMw := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept"},
		ExposedHeaders:   []string{middleware.QuotaRemainingHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           middleware.Stack(httpMetrics.Handler, loggingMw.Handler, corsMw.Handler)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server started",
			"address", server.Addr,
			"env", cfg.Env,
			"store", cfg.StoreDriver,
			"anon_store", cfg.AnonStore,
			"guarded_routes", len(cfg.QuotaRoutes),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal or server failure
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

// openStore returns the repository for the configured driver and a func
// that releases it.
func openStore(ctx context.Context, cfg *internal.Config, logger *slog.Logger) (repository.Querier, func(), error) {
	if cfg.StoreDriver == internal.StoreDriverMemory {
		store := repository.NewMemoryStore()
		if err := repository.SeedDefaultPlans(ctx, store); err != nil {
			return nil, nil, fmt.Errorf("seeding plans failed: %w", err)
		}
		logger.Warn("Using in-memory store, data is lost on restart")
		return store, func() {}, nil
	}

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	return repository.New(db), func() { db.Close() }, nil
}

// openAnonStore returns the anonymous counter store for the configured
// backend and a func that releases it.
func openAnonStore(ctx context.Context, cfg *internal.Config, logger *slog.Logger, secure bool) (anonymous.Store, func(), error) {
	if cfg.AnonStore != internal.AnonStoreRedis {
		store, err := anonymous.NewCookieStore(cfg.AnonCookieSecret, secure)
		if err != nil {
			return nil, nil, fmt.Errorf("anonymous cookie store initialization failed: %w", err)
		}
		return store, func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("redis ping failed: %w", err)
	}
	logger.Info("Redis ready", "addr", opts.Addr)

	store := anonymous.NewRedisStore(client, "", cfg.AnonLifetimeLimit, secure)
	return store, func() { client.Close() }, nil
}

// bindStripePrices attaches configured Stripe price IDs to the seeded plans
// so checkout and webhooks can map prices to tiers.
func bindStripePrices(ctx context.Context, subscriptions service.SubscriptionService, priceIDs map[string]string, logger *slog.Logger) error {
	if len(priceIDs) == 0 {
		return nil
	}

	plans, err := subscriptions.ListPlans(ctx)
	if err != nil {
		return fmt.Errorf("listing plans failed: %w", err)
	}
	for _, plan := range plans {
		priceID, ok := priceIDs[plan.Name]
		if !ok || plan.StripePriceID == priceID {
			continue
		}
		if _, err := subscriptions.BindStripePrice(ctx, plan.ID, priceID); err != nil {
			return fmt.Errorf("binding price to %s failed: %w", plan.Name, err)
		}
		logger.Info("Stripe price bound", "plan", plan.Name, "price_id", priceID)
	}
	return nil
}

// registerGuardedRoutes mounts h for every guarded route, covering both the
// exact path and everything below it.
func registerGuardedRoutes(mux *http.ServeMux, routes []domain.GuardedRoute, h http.Handler) {
	seen := make(map[string]bool)
	register := func(pattern string) {
		if !seen[pattern] {
			seen[pattern] = true
			mux.Handle(pattern, h)
		}
	}

	for _, route := range routes {
		method := ""
		if route.Method != "" {
			method = route.Method + " "
		}
		prefix := strings.TrimSuffix(route.Prefix, "/")
		if prefix != "" {
			register(method + prefix)
		}
		register(method + prefix + "/")
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
