package internal

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HSahraye/immigration-helper-ai-sub000/internal/domain"
)

// setBaseEnv sets the minimum environment for a valid development config.
func setBaseEnv(t *testing.T) {
	t.Helper()
	for key, value := range map[string]string{
		"ENV":                        "development",
		"STORE_DRIVER":               "memory",
		"SESSION_SECRET":             "test-secret",
		"DATABASE_URL":               "",
		"ANON_STORE":                 "",
		"ANON_COOKIE_SECRET":         "",
		"REDIS_URL":                  "",
		"ANON_LIFETIME_LIMIT":        "",
		"ANON_TTL":                   "",
		"QUOTA_FAIL_OPEN":            "",
		"QUOTA_LIMITS":               "",
		"QUOTA_ROUTES":               "",
		"SIGNIN_PATH":                "",
		"RATE_LIMIT_RPS":             "",
		"RATE_LIMIT_BURST":           "",
		"CORS_ALLOWED_ORIGINS":       "",
		"BASE_URL":                   "",
		"USAGE_RETENTION":            "",
		"TEST_SUBSCRIPTIONS_ENABLED": "",
	} {
		t.Setenv(key, value)
	}
}

func TestNewConfig_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, AnonStoreCookie, cfg.AnonStore)
	assert.Equal(t, "test-secret", cfg.AnonCookieSecret, "anonymous cookie secret falls back to the session secret")
	assert.Equal(t, 20, cfg.AnonLifetimeLimit)
	assert.Equal(t, 24*time.Hour, cfg.AnonTTL)
	assert.True(t, cfg.QuotaFailOpen)
	assert.True(t, cfg.TestSubscriptionsEnabled)
	assert.Equal(t, []string{"http://localhost:8080"}, cfg.CORSAllowedOrigins)
	assert.Zero(t, cfg.UsageRetention)

	assert.Equal(t, domain.DefaultQuotaLimits(), cfg.QuotaLimits)
	assert.Equal(t, domain.DefaultGuardedRoutes(), cfg.QuotaRoutes)
}

func TestNewConfig_Overrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("QUOTA_LIMITS", "chat_message=10/week")
	t.Setenv("QUOTA_ROUTES", "POST /v1/chat=chat_message")
	t.Setenv("QUOTA_FAIL_OPEN", "false")
	t.Setenv("ANON_STORE", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("USAGE_RETENTION", "2160h")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, domain.QuotaLimit{Limit: 10, Window: domain.WindowWeek}, cfg.QuotaLimits.For(domain.UsageTypeChatMessage))
	assert.Equal(t, domain.QuotaLimit{Limit: 0, Window: domain.WindowDay}, cfg.QuotaLimits.For(domain.UsageTypeAIFeature))
	assert.Equal(t, []domain.GuardedRoute{{Method: "POST", Prefix: "/v1/chat", Type: domain.UsageTypeChatMessage}}, cfg.QuotaRoutes)
	assert.False(t, cfg.QuotaFailOpen)
	assert.Equal(t, AnonStoreRedis, cfg.AnonStore)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 90*24*time.Hour, cfg.UsageRetention)
}

func TestNewConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing session secret", map[string]string{"SESSION_SECRET": ""}},
		{"postgres without url", map[string]string{"STORE_DRIVER": "postgres"}},
		{"unknown store", map[string]string{"STORE_DRIVER": "sqlite"}},
		{"memory in production", map[string]string{"ENV": "production", "TEST_SUBSCRIPTIONS_ENABLED": "false"}},
		{"redis without url", map[string]string{"ANON_STORE": "redis"}},
		{"unknown anon store", map[string]string{"ANON_STORE": "local"}},
		{"zero anon limit", map[string]string{"ANON_LIFETIME_LIMIT": "0"}},
		{"bad limits", map[string]string{"QUOTA_LIMITS": "chat_message=many"}},
		{"bad routes", map[string]string{"QUOTA_ROUTES": "POST /api/chat=unknown"}},
		{"relative signin path", map[string]string{"SIGNIN_PATH": "auth/signin"}},
		{"short retention", map[string]string{"USAGE_RETENTION": "24h"}},
		{"test subscriptions in production", map[string]string{
			"ENV":                        "production",
			"STORE_DRIVER":               "postgres",
			"DATABASE_URL":               "postgres://localhost/db",
			"TEST_SUBSCRIPTIONS_ENABLED": "true",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			for key, value := range tt.env {
				t.Setenv(key, value)
			}
			_, err := NewConfig()
			assert.Error(t, err)
		})
	}
}

func TestConfig_StripePriceIDs(t *testing.T) {
	cfg := &Config{StripeBasicPriceID: "price_basic", StripeEnterprisePriceID: "price_ent"}

	assert.Equal(t, map[string]string{
		"Basic Plan":      "price_basic",
		"Enterprise Plan": "price_ent",
	}, cfg.StripePriceIDs())
}

func TestNewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "production", "warn")
	logger.Info("hidden")
	logger.Warn("shown", "usage_type", "chat_message")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"usage_type":"chat_message"`)
}
