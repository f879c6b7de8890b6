package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// DefaultPlans mirrors the rows seeded by the plans migration.
var DefaultPlans = []CreatePlanParams{
	{
		ID:         uuid.MustParse("8a1f0c52-4c1e-4d0b-9a55-2a3c7f0e1b01"),
		Name:       "Basic Plan",
		Tier:       sql.NullString{String: "BASIC", Valid: true},
		Features:   []string{"chat_message", "document_generation"},
		PriceCents: 999,
		Currency:   "usd",
	},
	{
		ID:         uuid.MustParse("8a1f0c52-4c1e-4d0b-9a55-2a3c7f0e1b02"),
		Name:       "Professional Plan",
		Tier:       sql.NullString{String: "PROFESSIONAL", Valid: true},
		Features:   []string{"chat_message", "document_generation", "document_analysis"},
		PriceCents: 2999,
		Currency:   "usd",
	},
	{
		ID:         uuid.MustParse("8a1f0c52-4c1e-4d0b-9a55-2a3c7f0e1b03"),
		Name:       "Enterprise Plan",
		Tier:       sql.NullString{String: "ENTERPRISE", Valid: true},
		Features:   []string{"chat_message", "document_generation", "document_analysis", "ai_feature", "priority_support"},
		PriceCents: 9999,
		Currency:   "usd",
	},
}

// SeedDefaultPlans inserts DefaultPlans. Postgres gets them from the
// migration; this is for the in-memory store.
func SeedDefaultPlans(ctx context.Context, q Querier) error {
	for _, p := range DefaultPlans {
		if _, err := q.CreatePlan(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
