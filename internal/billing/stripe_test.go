package billing

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/HSahraye/immigration-helper-ai-sub000/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
)

func TestMapStatus(t *testing.T) {
	tests := []struct {
		in   stripe.SubscriptionStatus
		want domain.SubscriptionStatus
	}{
		{stripe.SubscriptionStatusActive, domain.SubscriptionStatusActive},
		{stripe.SubscriptionStatusTrialing, domain.SubscriptionStatusTrialing},
		{stripe.SubscriptionStatusPastDue, domain.SubscriptionStatusPastDue},
		{stripe.SubscriptionStatusUnpaid, domain.SubscriptionStatusUnpaid},
		{stripe.SubscriptionStatusIncomplete, domain.SubscriptionStatusUnpaid},
		{stripe.SubscriptionStatusIncompleteExpired, domain.SubscriptionStatusCanceled},
		{stripe.SubscriptionStatusCanceled, domain.SubscriptionStatusCanceled},
		{stripe.SubscriptionStatusPaused, domain.SubscriptionStatusCanceled},
	}

	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, MapStatus(tt.in))
		})
	}
}

func TestPriceIDAndPeriod(t *testing.T) {
	raw := `{
		"id": "sub_123",
		"customer": "cus_123",
		"status": "active",
		"current_period_start": 1760000000,
		"current_period_end": 1762592000,
		"items": {"object": "list", "data": [{"id": "si_1", "price": {"id": "price_pro"}}]}
	}`

	var sub stripe.Subscription
	require.NoError(t, json.Unmarshal([]byte(raw), &sub))

	assert.Equal(t, "price_pro", PriceID(&sub))

	start, end := Period(&sub)
	assert.Equal(t, time.Unix(1760000000, 0).UTC(), start)
	assert.Equal(t, time.Unix(1762592000, 0).UTC(), end)

	assert.Empty(t, PriceID(nil))
	assert.Empty(t, PriceID(&stripe.Subscription{}))
}
