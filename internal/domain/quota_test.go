package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckAccess_FreeTier(t *testing.T) {
	for _, limit := range []int{1, 5, 100} {
		for _, count := range []int64{0, int64(limit) - 1, int64(limit), int64(limit) + 1} {
			t.Run(fmt.Sprintf("limit=%d count=%d", limit, count), func(t *testing.T) {
				got := CheckAccess(TierFree, UsageTypeChatMessage, count, limit)
				if count < int64(limit) {
					assert.True(t, got.Allowed)
					assert.Empty(t, got.Reason)
					assert.Equal(t, int64(limit)-count-1, got.Remaining)
				} else {
					assert.False(t, got.Allowed)
					assert.Equal(t, ReasonLimitExceeded, got.Reason)
				}
			})
		}
	}
}

func TestCheckAccess_ZeroLimitIsPremiumOnly(t *testing.T) {
	for _, count := range []int64{-1, 0, 1} {
		got := CheckAccess(TierFree, UsageTypeDocumentAnalysis, count, 0)
		assert.False(t, got.Allowed)
		assert.Equal(t, ReasonPremiumOnly, got.Reason, "count=%d", count)
	}
}

func TestCheckAccess_NegativeLimitIsUnlimited(t *testing.T) {
	got := CheckAccess(TierFree, UsageTypeAIFeature, 1_000_000, -1)
	assert.True(t, got.Allowed)
	assert.Equal(t, int64(-1), got.Remaining)
}

func TestCheckAccess_PaidTiersAlwaysAllowed(t *testing.T) {
	tiers := []Tier{TierBasic, TierProfessional, TierEnterprise}
	for _, tier := range tiers {
		for _, limit := range []int{0, 1, 5, 100} {
			for _, count := range []int64{0, 4, 5, 6, 10_000} {
				got := CheckAccess(tier, UsageTypeDocumentGeneration, count, limit)
				assert.True(t, got.Allowed, "tier=%s limit=%d count=%d", tier, limit, count)
				assert.Equal(t, int64(-1), got.Remaining)
			}
		}
	}
}

func TestCheckAccess_UnknownTierTreatedAsFree(t *testing.T) {
	got := CheckAccess(Tier("GOLD"), UsageTypeChatMessage, 5, 5)
	assert.False(t, got.Allowed)
	assert.Equal(t, ReasonLimitExceeded, got.Reason)
}
