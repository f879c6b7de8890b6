package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// features is read and written through its text form ("{a,b}") so the
// array literal round-trips through pq.Array regardless of driver.
const planColumns = `id, name, tier, features::text, price_cents, currency, stripe_price_id, created_at`

func scanPlan(row interface{ Scan(...interface{}) error }) (Plan, error) {
	var i Plan
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Tier,
		pq.Array(&i.Features),
		&i.PriceCents,
		&i.Currency,
		&i.StripePriceID,
		&i.CreatedAt,
	)
	return i, err
}

const getPlanByID = `SELECT ` + planColumns + ` FROM plans WHERE id = $1`

func (q *Queries) GetPlanByID(ctx context.Context, id uuid.UUID) (Plan, error) {
	return scanPlan(q.db.QueryRowContext(ctx, getPlanByID, id))
}

const getPlanByStripePriceID = `SELECT ` + planColumns + ` FROM plans WHERE stripe_price_id = $1`

func (q *Queries) GetPlanByStripePriceID(ctx context.Context, stripePriceID string) (Plan, error) {
	return scanPlan(q.db.QueryRowContext(ctx, getPlanByStripePriceID, stripePriceID))
}

const listPlans = `SELECT ` + planColumns + ` FROM plans ORDER BY price_cents, name`

func (q *Queries) ListPlans(ctx context.Context) ([]Plan, error) {
	rows, err := q.db.QueryContext(ctx, listPlans)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Plan
	for rows.Next() {
		i, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createPlan = `
INSERT INTO plans (id, name, tier, features, price_cents, currency, stripe_price_id)
VALUES ($1, $2, $3, $4::text::text[], $5, $6, $7)
RETURNING ` + planColumns

type CreatePlanParams struct {
	ID            uuid.UUID
	Name          string
	Tier          sql.NullString
	Features      []string
	PriceCents    int64
	Currency      string
	StripePriceID sql.NullString
}

func (q *Queries) CreatePlan(ctx context.Context, arg CreatePlanParams) (Plan, error) {
	return scanPlan(q.db.QueryRowContext(ctx, createPlan,
		arg.ID,
		arg.Name,
		arg.Tier,
		pq.Array(arg.Features),
		arg.PriceCents,
		arg.Currency,
		arg.StripePriceID,
	))
}

const setPlanStripePriceID = `
UPDATE plans SET stripe_price_id = $2
WHERE id = $1
RETURNING ` + planColumns

type SetPlanStripePriceIDParams struct {
	ID            uuid.UUID
	StripePriceID sql.NullString
}

func (q *Queries) SetPlanStripePriceID(ctx context.Context, arg SetPlanStripePriceIDParams) (Plan, error) {
	return scanPlan(q.db.QueryRowContext(ctx, setPlanStripePriceID, arg.ID, arg.StripePriceID))
}
