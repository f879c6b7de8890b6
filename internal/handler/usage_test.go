package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HSahraye/immigration-helper-ai-sub000/internal/anonymous"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/domain"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/service"
)

type usageFixture struct {
	usage         service.UsageService
	subscriptions service.SubscriptionService
	tracker       *anonymous.Tracker
	mux           *http.ServeMux
}

func newUsageFixture(t *testing.T) *usageFixture {
	t.Helper()
	logger := newTestLogger()
	store := newSeededStore(t)

	usage := service.NewUsageService(store, logger)
	tiers := service.NewTierResolver(store, logger)
	quota := service.NewQuotaService(tiers, usage, service.QuotaConfig{}, logger)

	cookies, err := anonymous.NewCookieStore("usage-handler-test-secret-0123456789", false)
	require.NoError(t, err)
	tracker := anonymous.NewTracker(cookies, 20, 0, logger)

	mux := http.NewServeMux()
	NewUsageHandler(quota, tracker, logger).RegisterRoutes(mux, passThrough)

	return &usageFixture{
		usage:         usage,
		subscriptions: service.NewSubscriptionService(store, logger),
		tracker:       tracker,
		mux:           mux,
	}
}

func (f *usageFixture) get(t *testing.T, req *http.Request) usageResponse {
	t.Helper()
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp usageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func findUsage(t *testing.T, items []usageItem, usageType domain.UsageType) usageItem {
	t.Helper()
	for _, item := range items {
		if item.Type == usageType {
			return item
		}
	}
	t.Fatalf("no usage reported for %s", usageType)
	return usageItem{}
}

func TestGetUsage_FreeTier(t *testing.T) {
	f := newUsageFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.usage.Record(ctx, domain.RecordUsageParams{UserID: "user-1", Type: domain.UsageTypeChatMessage})
		require.NoError(t, err)
	}

	resp := f.get(t, asUser(httptest.NewRequest(http.MethodGet, "/api/usage", nil), "user-1"))

	assert.True(t, resp.Authenticated)
	assert.Equal(t, string(domain.TierFree), resp.Tier)
	assert.Nil(t, resp.Anonymous)

	chat := findUsage(t, resp.Usage, domain.UsageTypeChatMessage)
	assert.EqualValues(t, 2, chat.Used)
	assert.EqualValues(t, 5, chat.Limit)
	assert.EqualValues(t, 3, chat.Remaining)
	assert.Equal(t, domain.WindowDay, chat.Window)
	assert.NotNil(t, chat.ResetAt)

	docs := findUsage(t, resp.Usage, domain.UsageTypeDocumentGeneration)
	assert.EqualValues(t, 0, docs.Limit)
	assert.EqualValues(t, 0, docs.Remaining)
}

func TestGetUsage_PaidTierIsUnlimited(t *testing.T) {
	f := newUsageFixture(t)

	_, err := f.subscriptions.ActivateTestSubscription(context.Background(), "user-2", defaultPlan(t, "Professional Plan").ID)
	require.NoError(t, err)

	resp := f.get(t, asUser(httptest.NewRequest(http.MethodGet, "/api/usage", nil), "user-2"))

	assert.Equal(t, string(domain.TierProfessional), resp.Tier)
	for _, item := range resp.Usage {
		assert.EqualValues(t, -1, item.Limit, "type %s", item.Type)
		assert.EqualValues(t, -1, item.Remaining, "type %s", item.Type)
		assert.Nil(t, item.ResetAt)
	}
}

func TestGetUsage_Anonymous(t *testing.T) {
	f := newUsageFixture(t)

	resp := f.get(t, httptest.NewRequest(http.MethodGet, "/api/usage", nil))
	assert.False(t, resp.Authenticated)
	require.NotNil(t, resp.Anonymous)
	assert.Equal(t, 0, resp.Anonymous.Used)
	assert.Equal(t, 20, resp.Anonymous.Limit)
	assert.Equal(t, 20, resp.Anonymous.Remaining)

	// Spend three anonymous requests and carry the cookie back.
	req := httptest.NewRequest(http.MethodGet, "/api/usage", nil)
	for i := 0; i < 3; i++ {
		_, next, err := f.tracker.Check(req)
		require.NoError(t, err)
		rec := httptest.NewRecorder()
		_, err = f.tracker.Commit(rec, req, next)
		require.NoError(t, err)

		req = httptest.NewRequest(http.MethodGet, "/api/usage", nil)
		for _, c := range rec.Result().Cookies() {
			req.AddCookie(c)
		}
	}

	resp = f.get(t, req)
	require.NotNil(t, resp.Anonymous)
	assert.Equal(t, 3, resp.Anonymous.Used)
	assert.Equal(t, 17, resp.Anonymous.Remaining)
	assert.False(t, resp.Anonymous.ExpiresAt.IsZero())
}

func TestGetUsage_TamperedAnonymousCookieStartsOver(t *testing.T) {
	f := newUsageFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/usage", nil)
	req.AddCookie(&http.Cookie{Name: anonymous.QuotaCookieName, Value: "not-a-token"})

	resp := f.get(t, req)
	require.NotNil(t, resp.Anonymous)
	assert.Equal(t, 0, resp.Anonymous.Used)
	assert.Equal(t, 20, resp.Anonymous.Remaining)
}
