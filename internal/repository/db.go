// Package repository is the data access layer for usage records, plans and
// subscriptions. Queries wraps a database/sql handle (pgx stdlib driver);
// MemoryStore implements the same Querier contract in process.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Querier is the storage contract used by the service layer.
type Querier interface {
	InsertUsageRecord(ctx context.Context, arg InsertUsageRecordParams) (UsageRecord, error)
	SumUsage(ctx context.Context, arg SumUsageParams) (int64, error)
	DeleteUsageRecordsBefore(ctx context.Context, before time.Time) (int64, error)

	GetPlanByID(ctx context.Context, id uuid.UUID) (Plan, error)
	GetPlanByStripePriceID(ctx context.Context, stripePriceID string) (Plan, error)
	ListPlans(ctx context.Context) ([]Plan, error)
	CreatePlan(ctx context.Context, arg CreatePlanParams) (Plan, error)
	SetPlanStripePriceID(ctx context.Context, arg SetPlanStripePriceIDParams) (Plan, error)

	GetSubscriptionByUserID(ctx context.Context, userID string) (SubscriptionWithPlan, error)
	GetSubscriptionByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (SubscriptionWithPlan, error)
	GetSubscriptionByStripeCustomerID(ctx context.Context, stripeCustomerID string) (SubscriptionWithPlan, error)
	UpsertSubscription(ctx context.Context, arg UpsertSubscriptionParams) (Subscription, error)
	SetCancelAtPeriodEnd(ctx context.Context, arg SetCancelAtPeriodEndParams) (Subscription, error)
}

// Queries runs SQL against Postgres.
type Queries struct {
	db DBTX
}

// New creates Queries over a database handle.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns Queries bound to the given transaction.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

var (
	_ Querier = (*Queries)(nil)
	_ Querier = (*MemoryStore)(nil)
)
