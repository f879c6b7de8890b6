package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/HSahraye/immigration-helper-ai-sub000/internal/domain"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/retention"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Anonymous counter stores.
const (
	AnonStoreCookie = "cookie"
	AnonStoreRedis  = "redis"
)

const (
	defaultQuotaLimits = "chat_message=5/day,document_generation=0/month,document_analysis=0/month,ai_feature=5/day"
	defaultQuotaRoutes = "POST /api/chat=chat_message,POST /api/documents/generate=document_generation," +
		"POST /api/documents/analyze=document_analysis,POST /api/ai=ai_feature"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	StoreDriver string // "postgres" or "memory"
	DatabaseUrl string

	// Application base URL (for checkout and portal return links)
	BaseURL string

	// Session verification. Tokens are issued by the identity provider.
	SessionSecret string

	// Anonymous tracking
	AnonStore         string // "cookie" or "redis"
	AnonCookieSecret  string
	RedisURL          string
	AnonLifetimeLimit int
	AnonTTL           time.Duration

	// Quota policy
	QuotaFailOpen bool
	QuotaLimits   domain.QuotaLimits
	QuotaRoutes   []domain.GuardedRoute

	// Downstream AI application for guarded routes
	UpstreamURL string
	SigninPath  string
	UpgradePath string

	// Per-IP burst limiting on guarded routes
	RateLimitRPS   float64
	RateLimitBurst int

	// CORS for the JSON API
	CORSAllowedOrigins []string

	// Stripe Billing Configuration
	// In development, billing endpoints answer 501 if these are empty.
	StripeSecretKey     string // Stripe API secret key (sk_test_... or sk_live_...)
	StripeWebhookSecret string // Stripe webhook signing secret (whsec_...)

	// Stripe Price IDs bound to the seeded plans at startup
	StripeBasicPriceID        string
	StripeProfessionalPriceID string
	StripeEnterprisePriceID   string

	// Allow POST /api/subscription/test (never in production)
	TestSubscriptionsEnabled bool

	// Usage record retention. Zero keeps records forever.
	UsageRetention     time.Duration
	UsagePruneSchedule string

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:         getEnv("ENV", "development"),
		Port:        getEnvInt("PORT", 8080),
		LogLevel:    getEnv("LOG_LEVEL", "debug"),
		StoreDriver: getEnv("STORE_DRIVER", StoreDriverPostgres),
		DatabaseUrl: os.Getenv("DATABASE_URL"),

		// Base URL defaults to localhost for development
		BaseURL: getEnv("BASE_URL", "http://localhost:8080"),

		SessionSecret: os.Getenv("SESSION_SECRET"),

		// Anonymous tracking defaults: signed cookie, 20 requests per 24h
		AnonStore:         getEnv("ANON_STORE", AnonStoreCookie),
		RedisURL:          getEnv("REDIS_URL", ""),
		AnonLifetimeLimit: getEnvInt("ANON_LIFETIME_LIMIT", domain.DefaultAnonymousLimit),
		AnonTTL:           getEnvDuration("ANON_TTL", domain.DefaultAnonymousTTL),

		QuotaFailOpen: getEnvBool("QUOTA_FAIL_OPEN", true),

		UpstreamURL: getEnv("UPSTREAM_URL", ""),
		SigninPath:  getEnv("SIGNIN_PATH", "/auth/signin"),
		UpgradePath: getEnv("UPGRADE_PATH", "/pricing"),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 20),

		// Stripe billing (optional in development)
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),

		StripeBasicPriceID:        getEnv("STRIPE_BASIC_PRICE_ID", ""),
		StripeProfessionalPriceID: getEnv("STRIPE_PROFESSIONAL_PRICE_ID", ""),
		StripeEnterprisePriceID:   getEnv("STRIPE_ENTERPRISE_PRICE_ID", ""),

		UsageRetention:     getEnvDuration("USAGE_RETENTION", 0),
		UsagePruneSchedule: getEnv("USAGE_PRUNE_SCHEDULE", "@daily"),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	cfg.AnonCookieSecret = getEnv("ANON_COOKIE_SECRET", cfg.SessionSecret)
	cfg.TestSubscriptionsEnabled = getEnvBool("TEST_SUBSCRIPTIONS_ENABLED", cfg.IsDevelopment())
	cfg.CORSAllowedOrigins = splitList(getEnv("CORS_ALLOWED_ORIGINS", cfg.BaseURL))

	var err error
	if cfg.QuotaLimits, err = domain.ParseQuotaLimits(getEnv("QUOTA_LIMITS", defaultQuotaLimits)); err != nil {
		return nil, fmt.Errorf("QUOTA_LIMITS: %w", err)
	}
	if cfg.QuotaRoutes, err = domain.ParseGuardedRoutes(getEnv("QUOTA_ROUTES", defaultQuotaRoutes)); err != nil {
		return nil, fmt.Errorf("QUOTA_ROUTES: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	// Required
	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}

	// Validate store configuration
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseUrl == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is 'postgres'")
		}
	case StoreDriverMemory:
		if !c.IsDevelopment() {
			return fmt.Errorf("STORE_DRIVER 'memory' is only allowed in development")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be either 'postgres' or 'memory', got: %s", c.StoreDriver)
	}

	// Validate anonymous tracking configuration
	switch c.AnonStore {
	case AnonStoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when ANON_STORE is 'redis'")
		}
	case AnonStoreCookie:
	default:
		return fmt.Errorf("ANON_STORE must be either 'cookie' or 'redis', got: %s", c.AnonStore)
	}
	if c.AnonLifetimeLimit < 1 {
		return fmt.Errorf("ANON_LIFETIME_LIMIT must be at least 1, got: %d", c.AnonLifetimeLimit)
	}
	if c.AnonTTL < time.Minute {
		return fmt.Errorf("ANON_TTL must be at least 1m, got: %s", c.AnonTTL)
	}

	if len(c.QuotaRoutes) == 0 {
		return fmt.Errorf("QUOTA_ROUTES must name at least one guarded route")
	}

	if !strings.HasPrefix(c.SigninPath, "/") {
		return fmt.Errorf("SIGNIN_PATH must be an absolute path, got: %s", c.SigninPath)
	}

	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_RPS must be positive and RATE_LIMIT_BURST at least 1")
	}

	if c.UsageRetention != 0 && c.UsageRetention < retention.MinRetention {
		return fmt.Errorf("USAGE_RETENTION must be 0 or at least %s, got: %s", retention.MinRetention, c.UsageRetention)
	}

	if c.TestSubscriptionsEnabled && !c.IsDevelopment() {
		return fmt.Errorf("TEST_SUBSCRIPTIONS_ENABLED is only allowed in development")
	}

	return nil
}

// StripePriceIDs maps seeded plan names to configured Stripe price IDs.
func (c *Config) StripePriceIDs() map[string]string {
	ids := make(map[string]string)
	if c.StripeBasicPriceID != "" {
		ids["Basic Plan"] = c.StripeBasicPriceID
	}
	if c.StripeProfessionalPriceID != "" {
		ids["Professional Plan"] = c.StripeProfessionalPriceID
	}
	if c.StripeEnterprisePriceID != "" {
		ids["Enterprise Plan"] = c.StripeEnterprisePriceID
	}
	return ids
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// splitList parses a comma-separated environment value.
func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
