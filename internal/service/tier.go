package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/HSahraye/immigration-helper-ai-sub000/internal/domain"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/repository"
)

// TierResolver maps a user to an access tier.
type TierResolver interface {
	// ResolveTier returns FREE when the user has no subscription, when the
	// subscription is not ACTIVE, or when the plan maps to no paid tier.
	ResolveTier(ctx context.Context, userID string) (domain.Tier, error)
}

type tierResolver struct {
	queries repository.Querier
	logger  *slog.Logger
}

// NewTierResolver creates a TierResolver backed by the subscriptions table.
func NewTierResolver(queries repository.Querier, logger *slog.Logger) TierResolver {
	return &tierResolver{queries: queries, logger: logger}
}

func (r *tierResolver) ResolveTier(ctx context.Context, userID string) (domain.Tier, error) {
	const op = "tier.resolve"

	row, err := r.queries.GetSubscriptionByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TierFree, nil
		}
		return domain.TierFree, domain.Unavailable(err, op, "failed to load subscription")
	}

	sub := repoSubscriptionToDomain(row.Subscription, &row.Plan)
	tier := sub.Tier()
	if sub.IsActive() && tier == domain.TierFree {
		r.logger.Warn("active subscription on unmapped plan",
			"user_id", userID,
			"plan", row.Plan.Name,
		)
	}
	return tier, nil
}
