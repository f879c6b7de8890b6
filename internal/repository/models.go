package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type UsageRecord struct {
	ID        uuid.UUID
	UserID    string
	Type      string
	Count     int32
	Metadata  pqtype.NullRawMessage
	CreatedAt time.Time
}

type Plan struct {
	ID            uuid.UUID
	Name          string
	Tier          sql.NullString
	Features      []string
	PriceCents    int64
	Currency      string
	StripePriceID sql.NullString
	CreatedAt     time.Time
}

type Subscription struct {
	ID                   uuid.UUID
	UserID               string
	PlanID               uuid.UUID
	Status               string
	CurrentPeriodStart   time.Time
	CurrentPeriodEnd     time.Time
	CancelAtPeriodEnd    bool
	StripeCustomerID     sql.NullString
	StripeSubscriptionID sql.NullString
	LastEventAt          sql.NullTime
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// SubscriptionWithPlan is a subscription joined with its plan.
type SubscriptionWithPlan struct {
	Subscription Subscription
	Plan         Plan
}
