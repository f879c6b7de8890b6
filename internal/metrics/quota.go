package metrics

// Outcome labels shared by the decision counters.
const (
	OutcomeAllowed = "allowed"
)

// QuotaDecision records an authenticated gate decision.
func QuotaDecision(usageType, tier, outcome string) {
	QuotaDecisionsTotal.WithLabelValues(usageType, tier, outcome).Inc()
}

// AnonymousDecision records an anonymous gate decision.
func AnonymousDecision(usageType, outcome string) {
	AnonymousDecisionsTotal.WithLabelValues(usageType, outcome).Inc()
}

// UsageRecorded records a committed usage record.
func UsageRecorded(usageType string) {
	UsageRecordedTotal.WithLabelValues(usageType).Inc()
}

// FailOpen records a request allowed without readable quota state.
func FailOpen(usageType string) {
	QuotaFailOpenTotal.WithLabelValues(usageType).Inc()
}

// CommitFailed records a commit that failed after the request succeeded.
func CommitFailed(usageType, caller string) {
	QuotaCommitFailuresTotal.WithLabelValues(usageType, caller).Inc()
}

// CommitRefused records an anonymous request served after the limit was
// used up by concurrent requests.
func CommitRefused(usageType string) {
	AnonymousCommitsRefusedTotal.WithLabelValues(usageType).Inc()
}

// WebhookEvent records a processed Stripe webhook event.
func WebhookEvent(eventType, result string) {
	WebhookEventsTotal.WithLabelValues(eventType, result).Inc()
}

// RecordsPruned records rows removed by retention pruning.
func RecordsPruned(n int64) {
	if n > 0 {
		UsageRecordsPrunedTotal.Add(float64(n))
	}
}
