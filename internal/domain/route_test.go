package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardedRoute_Matches(t *testing.T) {
	r := GuardedRoute{Method: "POST", Prefix: "/api/chat", Type: UsageTypeChatMessage}

	assert.True(t, r.Matches("POST", "/api/chat"))
	assert.True(t, r.Matches("post", "/api/chat/agent-1"))
	assert.False(t, r.Matches("GET", "/api/chat"))
	assert.False(t, r.Matches("POST", "/api/chatter"))
	assert.False(t, r.Matches("POST", "/api"))

	anyMethod := GuardedRoute{Prefix: "/api/ai/", Type: UsageTypeAIFeature}
	assert.True(t, anyMethod.Matches("GET", "/api/ai/translate"))
}

func TestParseGuardedRoutes(t *testing.T) {
	routes, err := ParseGuardedRoutes("POST /api/chat=chat_message, /api/ai=ai_feature,")
	require.NoError(t, err)
	require.Len(t, routes, 2)

	assert.Equal(t, GuardedRoute{Method: "POST", Prefix: "/api/chat", Type: UsageTypeChatMessage}, routes[0])
	assert.Equal(t, GuardedRoute{Prefix: "/api/ai", Type: UsageTypeAIFeature}, routes[1])

	for _, bad := range []string{
		"POST /api/chat",
		"POST /api/chat=unknown",
		"POST api/chat=chat_message",
		"POST /a /b=chat_message",
	} {
		_, err := ParseGuardedRoutes(bad)
		assert.Error(t, err, bad)
		assert.Equal(t, EINVALID, ErrorCode(err), bad)
	}
}

func TestParseQuotaLimits(t *testing.T) {
	limits, err := ParseQuotaLimits("chat_message=5/day, document_generation=3, document_analysis=0/month, ai_feature=-1/week")
	require.NoError(t, err)

	assert.Equal(t, QuotaLimit{Limit: 5, Window: WindowDay}, limits.For(UsageTypeChatMessage))
	assert.Equal(t, QuotaLimit{Limit: 3, Window: WindowDay}, limits.For(UsageTypeDocumentGeneration))
	assert.Equal(t, QuotaLimit{Limit: 0, Window: WindowMonth}, limits.For(UsageTypeDocumentAnalysis))
	assert.Equal(t, QuotaLimit{Limit: -1, Window: WindowWeek}, limits.For(UsageTypeAIFeature))

	for _, bad := range []string{"chat_message", "chat_message=x/day", "chat_message=-2/day", "chat_message=5/year", "nope=1/day"} {
		_, err := ParseQuotaLimits(bad)
		assert.Error(t, err, bad)
	}
}
