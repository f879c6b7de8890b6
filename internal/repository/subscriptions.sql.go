package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const subscriptionColumns = `s.id, s.user_id, s.plan_id, s.status, s.current_period_start, s.current_period_end,
       s.cancel_at_period_end, s.stripe_customer_id, s.stripe_subscription_id, s.last_event_at,
       s.created_at, s.updated_at`

const subscriptionWithPlanSelect = `
SELECT ` + subscriptionColumns + `,
       p.id, p.name, p.tier, p.features::text, p.price_cents, p.currency, p.stripe_price_id, p.created_at
FROM subscriptions s
JOIN plans p ON p.id = s.plan_id
`

func scanSubscriptionWithPlan(row *sql.Row) (SubscriptionWithPlan, error) {
	var i SubscriptionWithPlan
	err := row.Scan(
		&i.Subscription.ID,
		&i.Subscription.UserID,
		&i.Subscription.PlanID,
		&i.Subscription.Status,
		&i.Subscription.CurrentPeriodStart,
		&i.Subscription.CurrentPeriodEnd,
		&i.Subscription.CancelAtPeriodEnd,
		&i.Subscription.StripeCustomerID,
		&i.Subscription.StripeSubscriptionID,
		&i.Subscription.LastEventAt,
		&i.Subscription.CreatedAt,
		&i.Subscription.UpdatedAt,
		&i.Plan.ID,
		&i.Plan.Name,
		&i.Plan.Tier,
		pq.Array(&i.Plan.Features),
		&i.Plan.PriceCents,
		&i.Plan.Currency,
		&i.Plan.StripePriceID,
		&i.Plan.CreatedAt,
	)
	return i, err
}

func scanSubscription(row *sql.Row) (Subscription, error) {
	var i Subscription
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.PlanID,
		&i.Status,
		&i.CurrentPeriodStart,
		&i.CurrentPeriodEnd,
		&i.CancelAtPeriodEnd,
		&i.StripeCustomerID,
		&i.StripeSubscriptionID,
		&i.LastEventAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getSubscriptionByUserID = subscriptionWithPlanSelect + `WHERE s.user_id = $1`

func (q *Queries) GetSubscriptionByUserID(ctx context.Context, userID string) (SubscriptionWithPlan, error) {
	return scanSubscriptionWithPlan(q.db.QueryRowContext(ctx, getSubscriptionByUserID, userID))
}

const getSubscriptionByStripeSubscriptionID = subscriptionWithPlanSelect + `WHERE s.stripe_subscription_id = $1`

func (q *Queries) GetSubscriptionByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (SubscriptionWithPlan, error) {
	return scanSubscriptionWithPlan(q.db.QueryRowContext(ctx, getSubscriptionByStripeSubscriptionID, stripeSubscriptionID))
}

const getSubscriptionByStripeCustomerID = subscriptionWithPlanSelect + `WHERE s.stripe_customer_id = $1`

func (q *Queries) GetSubscriptionByStripeCustomerID(ctx context.Context, stripeCustomerID string) (SubscriptionWithPlan, error) {
	return scanSubscriptionWithPlan(q.db.QueryRowContext(ctx, getSubscriptionByStripeCustomerID, stripeCustomerID))
}

// upsertSubscription keeps one row per user. An event older than the one
// already applied leaves the row untouched and the query returns no rows.
const upsertSubscription = `
INSERT INTO subscriptions AS s (
    id, user_id, plan_id, status, current_period_start, current_period_end,
    cancel_at_period_end, stripe_customer_id, stripe_subscription_id, last_event_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (user_id) DO UPDATE SET
    plan_id = EXCLUDED.plan_id,
    status = EXCLUDED.status,
    current_period_start = EXCLUDED.current_period_start,
    current_period_end = EXCLUDED.current_period_end,
    cancel_at_period_end = EXCLUDED.cancel_at_period_end,
    stripe_customer_id = COALESCE(EXCLUDED.stripe_customer_id, s.stripe_customer_id),
    stripe_subscription_id = COALESCE(EXCLUDED.stripe_subscription_id, s.stripe_subscription_id),
    last_event_at = EXCLUDED.last_event_at,
    updated_at = NOW()
WHERE s.last_event_at IS NULL
   OR EXCLUDED.last_event_at IS NULL
   OR s.last_event_at <= EXCLUDED.last_event_at
RETURNING ` + subscriptionColumns

type UpsertSubscriptionParams struct {
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
}

func (q *Queries) UpsertSubscription(ctx context.Context, arg UpsertSubscriptionParams) (Subscription, error) {
	return scanSubscription(q.db.QueryRowContext(ctx, upsertSubscription,
		arg.ID,
		arg.UserID,
		arg.PlanID,
		arg.Status,
		arg.CurrentPeriodStart,
		arg.CurrentPeriodEnd,
		arg.CancelAtPeriodEnd,
		arg.StripeCustomerID,
		arg.StripeSubscriptionID,
		arg.LastEventAt,
	))
}

const setCancelAtPeriodEnd = `
UPDATE subscriptions AS s
SET cancel_at_period_end = $2, updated_at = NOW()
WHERE s.user_id = $1
RETURNING ` + subscriptionColumns

type SetCancelAtPeriodEndParams struct {
	UserID            string
	CancelAtPeriodEnd bool
}

func (q *Queries) SetCancelAtPeriodEnd(ctx context.Context, arg SetCancelAtPeriodEndParams) (Subscription, error) {
	return scanSubscription(q.db.QueryRowContext(ctx, setCancelAtPeriodEnd, arg.UserID, arg.CancelAtPeriodEnd))
}
