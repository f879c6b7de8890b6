// Package domain contains core business types and interfaces.
//
// This file defines the quota policy: a pure decision over a tier, a
// pre-aggregated usage count and the configured FREE-tier limit.
package domain

// DenyReason is the machine-readable reason attached to a denial.
type DenyReason string

const (
	ReasonLimitExceeded   DenyReason = "limit-exceeded"
	ReasonPremiumOnly     DenyReason = "premium-only"
	ReasonUnauthenticated DenyReason = "unauthenticated"
)

// Decision is the outcome of a quota check. A denial is a normal value,
// not an error.
type Decision struct {
	Allowed bool
	Reason  DenyReason
	// Remaining is the number of further actions allowed in the window,
	// or -1 when unlimited.
	Remaining int64
	// Tier is the caller's resolved tier, when known.
	Tier Tier
	// FailOpen is set when the decision was forced to allow because the
	// underlying state could not be read.
	FailOpen bool
}

// Allow returns an allowing decision with the given remaining count.
func Allow(remaining int64) Decision {
	return Decision{Allowed: true, Remaining: remaining}
}

// Deny returns a denying decision.
func Deny(reason DenyReason) Decision {
	return Decision{Allowed: false, Reason: reason, Remaining: 0}
}

// CheckAccess applies the quota policy.
//
// Every paid tier is unlimited. For FREE, a limit of zero marks the usage
// type as premium-only, a negative limit is unlimited, and otherwise the
// call is allowed while windowedCount < configuredLimit.
func CheckAccess(tier Tier, usageType UsageType, windowedCount int64, configuredLimit int) Decision {
	if tier.IsPaid() {
		return Allow(-1)
	}

	limit := int64(configuredLimit)
	switch {
	case limit == 0:
		return Deny(ReasonPremiumOnly)
	case limit < 0:
		return Allow(-1)
	case windowedCount < limit:
		return Allow(limit - windowedCount - 1)
	default:
		return Deny(ReasonLimitExceeded)
	}
}
