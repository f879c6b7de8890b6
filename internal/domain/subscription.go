// Package domain contains core business types and interfaces.
//
// This file defines subscription tiers, plans and the per-user subscription.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// SubscriptionStatus represents the possible states of a user's subscription.
// Transitions are driven by the billing provider; this service only reads them.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "ACTIVE"
	SubscriptionStatusTrialing SubscriptionStatus = "TRIALING"
	SubscriptionStatusPastDue  SubscriptionStatus = "PAST_DUE"
	SubscriptionStatusUnpaid   SubscriptionStatus = "UNPAID"
	SubscriptionStatusCanceled SubscriptionStatus = "CANCELED"
)

// Valid reports whether s is one of the known statuses.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusTrialing, SubscriptionStatusPastDue,
		SubscriptionStatusUnpaid, SubscriptionStatusCanceled:
		return true
	}
	return false
}

// Tier is the access level derived from a subscription.
type Tier string

const (
	TierFree         Tier = "FREE"
	TierBasic        Tier = "BASIC"
	TierProfessional Tier = "PROFESSIONAL"
	TierEnterprise   Tier = "ENTERPRISE"
)

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierBasic, TierProfessional, TierEnterprise:
		return true
	}
	return false
}

// IsPaid returns true for every tier above FREE.
func (t Tier) IsPaid() bool {
	return t.Valid() && t != TierFree
}

// DisplayName returns the tier in title case, e.g. "Professional".
func (t Tier) DisplayName() string {
	return cases.Title(language.English).String(strings.ToLower(string(t)))
}

// ParseTierFromPlanName maps a plan name to a tier using case-insensitive
// substring matching, checked in order BASIC, PROFESSIONAL/PRO, ENTERPRISE.
// Names matching none of them map to FREE so unknown plans never gain
// elevated access.
func ParseTierFromPlanName(name string) Tier {
	upper := strings.ToUpper(name)
	switch {
	case strings.Contains(upper, "BASIC"):
		return TierBasic
	case strings.Contains(upper, "PROFESSIONAL"), strings.Contains(upper, "PRO"):
		return TierProfessional
	case strings.Contains(upper, "ENTERPRISE"):
		return TierEnterprise
	default:
		return TierFree
	}
}

// Plan is a purchasable subscription plan.
//
// Tier is stored explicitly and decided when the plan is created. Rows
// created before the column existed may carry an empty tier, in which case
// the name is used.
type Plan struct {
	ID            uuid.UUID
	Name          string
	Tier          Tier
	Features      []string
	PriceCents    int64
	Currency      string
	StripePriceID string
	CreatedAt     time.Time
}

// EffectiveTier returns the plan's stored tier, falling back to the name.
func (p *Plan) EffectiveTier() Tier {
	if p == nil {
		return TierFree
	}
	if p.Tier.Valid() {
		return p.Tier
	}
	return ParseTierFromPlanName(p.Name)
}

// HasFeature reports whether the plan lists the named feature.
func (p *Plan) HasFeature(feature string) bool {
	if p == nil {
		return false
	}
	for _, f := range p.Features {
		if strings.EqualFold(f, feature) {
			return true
		}
	}
	return false
}

// Subscription is the single subscription row owned by a user.
type Subscription struct {
	ID                   uuid.UUID
	UserID               string
	PlanID               uuid.UUID
	Plan                 *Plan
	Status               SubscriptionStatus
	CurrentPeriodStart   time.Time
	CurrentPeriodEnd     time.Time
	CancelAtPeriodEnd    bool
	StripeCustomerID     string
	StripeSubscriptionID string
	// LastEventAt is the creation time of the newest billing event applied.
	LastEventAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsActive returns true if the subscription grants paid access.
func (s *Subscription) IsActive() bool {
	return s != nil && s.Status == SubscriptionStatusActive
}

// Tier resolves the access tier for this subscription.
func (s *Subscription) Tier() Tier {
	if !s.IsActive() {
		return TierFree
	}
	return s.Plan.EffectiveTier()
}

// UpsertSubscriptionParams carries a full subscription state to store.
type UpsertSubscriptionParams struct {
	UserID               string
	PlanID               uuid.UUID
	Status               SubscriptionStatus
	CurrentPeriodStart   time.Time
	CurrentPeriodEnd     time.Time
	CancelAtPeriodEnd    bool
	StripeCustomerID     string
	StripeSubscriptionID string
	EventAt              time.Time
}
