package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow_Bounds(t *testing.T) {
	// Wednesday
	now := time.Date(2026, time.March, 18, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		window    Window
		wantStart time.Time
		wantEnd   time.Time
	}{
		{WindowDay, time.Date(2026, 3, 18, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 19, 0, 0, 0, 0, time.UTC)},
		{WindowWeek, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 23, 0, 0, 0, 0, time.UTC)},
		{WindowMonth, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(string(tt.window), func(t *testing.T) {
			start, end := tt.window.Bounds(now)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}

func TestWindow_Bounds_SundayBelongsToPreviousWeek(t *testing.T) {
	sunday := time.Date(2026, time.March, 22, 23, 0, 0, 0, time.UTC)
	start, _ := WindowWeek.Bounds(sunday)
	assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), start)
}

func TestParseWindow(t *testing.T) {
	w, err := ParseWindow("week")
	require.NoError(t, err)
	assert.Equal(t, WindowWeek, w)

	_, err = ParseWindow("year")
	require.Error(t, err)
	assert.Equal(t, EINVALID, ErrorCode(err))
}

func TestParseUsageType(t *testing.T) {
	u, err := ParseUsageType("document_analysis")
	require.NoError(t, err)
	assert.Equal(t, UsageTypeDocumentAnalysis, u)

	_, err = ParseUsageType("image_generation")
	assert.Error(t, err)
}

func TestQuotaLimits_For(t *testing.T) {
	limits := DefaultQuotaLimits()
	assert.Equal(t, QuotaLimit{Limit: 5, Window: WindowDay}, limits.For(UsageTypeChatMessage))
	assert.Equal(t, 0, limits.For(UsageTypeDocumentAnalysis).Limit)
	assert.Equal(t, QuotaLimit{Limit: 0, Window: WindowDay}, limits.For(UsageType("unknown")))
}
