package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/HSahraye/immigration-helper-ai-sub000/internal/domain"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/repository"
	"github.com/google/uuid"
)

// TestSubscriptionPeriod is the length of a subscription activated without
// the billing provider.
const TestSubscriptionPeriod = 30 * 24 * time.Hour

// =============================================================================
// Interface Definition
// =============================================================================

// SubscriptionService reads and reconciles the per-user subscription row.
type SubscriptionService interface {
	// GetSubscription returns the user's subscription with its plan.
	// Returns domain.ENOTFOUND if the user has none.
	GetSubscription(ctx context.Context, userID string) (*domain.Subscription, error)

	// GetByStripeSubscriptionID finds a subscription by its billing ID.
	GetByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*domain.Subscription, error)

	// GetByStripeCustomerID finds a subscription by billing customer.
	GetByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*domain.Subscription, error)

	// ListPlans returns all plans ordered by price.
	ListPlans(ctx context.Context) ([]domain.Plan, error)

	// GetPlan returns a plan by ID.
	GetPlan(ctx context.Context, id uuid.UUID) (*domain.Plan, error)

	// GetPlanByStripePriceID returns the plan sold under a billing price.
	GetPlanByStripePriceID(ctx context.Context, priceID string) (*domain.Plan, error)

	// BindStripePrice records the billing price a plan is sold under.
	BindStripePrice(ctx context.Context, planID uuid.UUID, priceID string) (*domain.Plan, error)

	// Upsert writes the full subscription state for a user.
	// Returns domain.ECONFLICT when params.EventAt is older than the last
	// applied event.
	Upsert(ctx context.Context, params domain.UpsertSubscriptionParams) (*domain.Subscription, error)

	// ActivateTestSubscription gives the user an ACTIVE subscription to
	// the plan without involving billing.
	ActivateTestSubscription(ctx context.Context, userID string, planID uuid.UUID) (*domain.Subscription, error)

	// SetCancelAtPeriodEnd flags (or unflags) the subscription to end with
	// the current period.
	SetCancelAtPeriodEnd(ctx context.Context, userID string, cancel bool) (*domain.Subscription, error)
}

// =============================================================================
// Implementation
// =============================================================================

type subscriptionService struct {
	queries repository.Querier
	logger  *slog.Logger
	now     func() time.Time
}

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(queries repository.Querier, logger *slog.Logger) SubscriptionService {
	return &subscriptionService{
		queries: queries,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *subscriptionService) GetSubscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	const op = "subscription.get"

	row, err := s.queries.GetSubscriptionByUserID(ctx, userID)
	if err != nil {
		return nil, subscriptionLookupError(err, op, "user", userID)
	}
	return repoSubscriptionToDomain(row.Subscription, &row.Plan), nil
}

func (s *subscriptionService) GetByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*domain.Subscription, error) {
	const op = "subscription.get_by_stripe_subscription"

	row, err := s.queries.GetSubscriptionByStripeSubscriptionID(ctx, stripeSubscriptionID)
	if err != nil {
		return nil, subscriptionLookupError(err, op, "stripe subscription", stripeSubscriptionID)
	}
	return repoSubscriptionToDomain(row.Subscription, &row.Plan), nil
}

func (s *subscriptionService) GetByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*domain.Subscription, error) {
	const op = "subscription.get_by_stripe_customer"

	row, err := s.queries.GetSubscriptionByStripeCustomerID(ctx, stripeCustomerID)
	if err != nil {
		return nil, subscriptionLookupError(err, op, "stripe customer", stripeCustomerID)
	}
	return repoSubscriptionToDomain(row.Subscription, &row.Plan), nil
}

func (s *subscriptionService) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	const op = "subscription.list_plans"

	rows, err := s.queries.ListPlans(ctx)
	if err != nil {
		return nil, domain.Unavailable(err, op, "failed to list plans")
	}
	plans := make([]domain.Plan, 0, len(rows))
	for _, p := range rows {
		plans = append(plans, *repoPlanToDomain(p))
	}
	return plans, nil
}

func (s *subscriptionService) GetPlan(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	const op = "subscription.get_plan"

	p, err := s.queries.GetPlanByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "plan", id.String())
		}
		return nil, domain.Unavailable(err, op, "failed to load plan")
	}
	return repoPlanToDomain(p), nil
}

func (s *subscriptionService) GetPlanByStripePriceID(ctx context.Context, priceID string) (*domain.Plan, error) {
	const op = "subscription.get_plan_by_price"

	p, err := s.queries.GetPlanByStripePriceID(ctx, priceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "plan for price", priceID)
		}
		return nil, domain.Unavailable(err, op, "failed to load plan")
	}
	return repoPlanToDomain(p), nil
}

func (s *subscriptionService) BindStripePrice(ctx context.Context, planID uuid.UUID, priceID string) (*domain.Plan, error) {
	const op = "subscription.bind_stripe_price"

	p, err := s.queries.SetPlanStripePriceID(ctx, repository.SetPlanStripePriceIDParams{
		ID:            planID,
		StripePriceID: toNullString(priceID),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "plan", planID.String())
		}
		return nil, domain.Unavailable(err, op, "failed to bind stripe price")
	}
	return repoPlanToDomain(p), nil
}

func (s *subscriptionService) Upsert(ctx context.Context, params domain.UpsertSubscriptionParams) (*domain.Subscription, error) {
	const op = "subscription.upsert"

	if params.UserID == "" {
		return nil, domain.Invalid(op, "user ID is required")
	}
	if !params.Status.Valid() {
		return nil, domain.Invalid(op, "unknown subscription status")
	}

	row, err := s.queries.UpsertSubscription(ctx, repository.UpsertSubscriptionParams{
		ID:                   uuid.New(),
		UserID:               params.UserID,
		PlanID:               params.PlanID,
		Status:               string(params.Status),
		CurrentPeriodStart:   params.CurrentPeriodStart.UTC(),
		CurrentPeriodEnd:     params.CurrentPeriodEnd.UTC(),
		CancelAtPeriodEnd:    params.CancelAtPeriodEnd,
		StripeCustomerID:     toNullString(params.StripeCustomerID),
		StripeSubscriptionID: toNullString(params.StripeSubscriptionID),
		LastEventAt:          toNullTime(params.EventAt),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.Conflict(op, "a newer subscription update has already been applied")
		}
		return nil, domain.Unavailable(err, op, "failed to save subscription")
	}

	plan, err := s.queries.GetPlanByID(ctx, row.PlanID)
	if err != nil {
		return nil, domain.Unavailable(err, op, "failed to load plan")
	}

	s.logger.Info("subscription saved",
		"user_id", row.UserID,
		"status", row.Status,
		"plan", plan.Name,
	)
	return repoSubscriptionToDomain(row, &plan), nil
}

func (s *subscriptionService) ActivateTestSubscription(ctx context.Context, userID string, planID uuid.UUID) (*domain.Subscription, error) {
	if _, err := s.GetPlan(ctx, planID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	return s.Upsert(ctx, domain.UpsertSubscriptionParams{
		UserID:             userID,
		PlanID:             planID,
		Status:             domain.SubscriptionStatusActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.Add(TestSubscriptionPeriod),
		EventAt:            now,
	})
}

func (s *subscriptionService) SetCancelAtPeriodEnd(ctx context.Context, userID string, cancel bool) (*domain.Subscription, error) {
	const op = "subscription.set_cancel_at_period_end"

	row, err := s.queries.SetCancelAtPeriodEnd(ctx, repository.SetCancelAtPeriodEndParams{
		UserID:            userID,
		CancelAtPeriodEnd: cancel,
	})
	if err != nil {
		return nil, subscriptionLookupError(err, op, "user", userID)
	}

	plan, err := s.queries.GetPlanByID(ctx, row.PlanID)
	if err != nil {
		return nil, domain.Unavailable(err, op, "failed to load plan")
	}
	return repoSubscriptionToDomain(row, &plan), nil
}

// =============================================================================
// Conversion helpers
// =============================================================================

func subscriptionLookupError(err error, op, by, key string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFound(op, "subscription for "+by, key)
	}
	return domain.Unavailable(err, op, "failed to load subscription")
}

func repoPlanToDomain(p repository.Plan) *domain.Plan {
	return &domain.Plan{
		ID:            p.ID,
		Name:          p.Name,
		Tier:          domain.Tier(p.Tier.String),
		Features:      p.Features,
		PriceCents:    p.PriceCents,
		Currency:      p.Currency,
		StripePriceID: p.StripePriceID.String,
		CreatedAt:     p.CreatedAt,
	}
}

func repoSubscriptionToDomain(s repository.Subscription, p *repository.Plan) *domain.Subscription {
	sub := &domain.Subscription{
		ID:                   s.ID,
		UserID:               s.UserID,
		PlanID:               s.PlanID,
		Status:               domain.SubscriptionStatus(s.Status),
		CurrentPeriodStart:   s.CurrentPeriodStart,
		CurrentPeriodEnd:     s.CurrentPeriodEnd,
		CancelAtPeriodEnd:    s.CancelAtPeriodEnd,
		StripeCustomerID:     s.StripeCustomerID.String,
		StripeSubscriptionID: s.StripeSubscriptionID.String,
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
	if s.LastEventAt.Valid {
		sub.LastEventAt = s.LastEventAt.Time
	}
	if p != nil {
		sub.Plan = repoPlanToDomain(*p)
	}
	return sub
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
