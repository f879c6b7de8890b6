// Package service contains the business logic layer.
//
// This file implements the quota service: it resolves the caller's tier,
// aggregates usage over the configured window and applies the quota policy.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/HSahraye/immigration-helper-ai-sub000/internal/domain"
)

// =============================================================================
// Interface Definition
// =============================================================================

// QuotaService decides whether an authenticated user may perform an action.
type QuotaService interface {
	// Check returns the policy decision for one more action of usageType.
	// Denials are returned as decisions, not errors. An error is returned
	// only when state cannot be read and fail-open is disabled.
	Check(ctx context.Context, userID string, usageType domain.UsageType) (domain.Decision, error)

	// Commit records one action of usageType after it has succeeded.
	Commit(ctx context.Context, userID string, usageType domain.UsageType, metadata map[string]string) error

	// GetUsage returns the caller's tier and per-type usage summaries.
	GetUsage(ctx context.Context, userID string) (domain.Tier, []domain.UsageSummary, error)
}

// QuotaConfig holds the policy configuration.
type QuotaConfig struct {
	Limits domain.QuotaLimits
	// FailOpen allows requests when the ledger or subscription store fails.
	FailOpen bool
}

// =============================================================================
// Implementation
// =============================================================================

type quotaService struct {
	tiers  TierResolver
	usage  UsageService
	cfg    QuotaConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewQuotaService creates a new QuotaService.
func NewQuotaService(tiers TierResolver, usage UsageService, cfg QuotaConfig, logger *slog.Logger) QuotaService {
	if cfg.Limits == nil {
		cfg.Limits = domain.DefaultQuotaLimits()
	}
	return &quotaService{
		tiers:  tiers,
		usage:  usage,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (s *quotaService) Check(ctx context.Context, userID string, usageType domain.UsageType) (domain.Decision, error) {
	const op = "quota.check"

	tier, err := s.tiers.ResolveTier(ctx, userID)
	if err != nil {
		return s.failure(err, op, userID, usageType)
	}

	limit := s.cfg.Limits.For(usageType)

	// Paid tiers, premium-only and unlimited types don't depend on the count.
	var count int64
	if !tier.IsPaid() && limit.Limit > 0 {
		now := s.now()
		start, _ := limit.Window.Bounds(now)
		count, err = s.usage.WindowedSum(ctx, userID, usageType, start, now)
		if err != nil {
			return s.failure(err, op, userID, usageType)
		}
	}

	decision := domain.CheckAccess(tier, usageType, count, limit.Limit)
	decision.Tier = tier
	if !decision.Allowed {
		s.logger.Info("quota denied",
			"user_id", userID,
			"usage_type", usageType,
			"tier", tier,
			"reason", decision.Reason,
			"used", count,
			"limit", limit.Limit,
			"window", limit.Window,
		)
	}
	return decision, nil
}

// failure applies the fail-open policy to a storage error.
func (s *quotaService) failure(err error, op, userID string, usageType domain.UsageType) (domain.Decision, error) {
	if s.cfg.FailOpen {
		s.logger.Warn("quota check failed, allowing request",
			"user_id", userID,
			"usage_type", usageType,
			"op", op,
			"error", err,
		)
		return domain.Decision{Allowed: true, Remaining: -1, FailOpen: true}, nil
	}
	return domain.Decision{}, err
}

func (s *quotaService) Commit(ctx context.Context, userID string, usageType domain.UsageType, metadata map[string]string) error {
	_, err := s.usage.Record(ctx, domain.RecordUsageParams{
		UserID:   userID,
		Type:     usageType,
		Count:    1,
		Metadata: metadata,
	})
	return err
}

func (s *quotaService) GetUsage(ctx context.Context, userID string) (domain.Tier, []domain.UsageSummary, error) {
	tier, err := s.tiers.ResolveTier(ctx, userID)
	if err != nil {
		return domain.TierFree, nil, err
	}

	now := s.now()
	summaries := make([]domain.UsageSummary, 0, len(domain.UsageTypes))
	for _, usageType := range domain.UsageTypes {
		limit := s.cfg.Limits.For(usageType)
		start, end := limit.Window.Bounds(now)

		used, err := s.usage.WindowedSum(ctx, userID, usageType, start, now)
		if err != nil {
			return tier, nil, err
		}

		summary := domain.UsageSummary{
			Type:   usageType,
			Used:   used,
			Window: limit.Window,
		}
		if tier.IsPaid() || limit.Limit < 0 {
			summary.Limit = -1
			summary.Remaining = -1
		} else {
			summary.Limit = int64(limit.Limit)
			summary.Remaining = max(summary.Limit-used, 0)
			resetAt := end
			summary.ResetAt = &resetAt
		}
		summaries = append(summaries, summary)
	}
	return tier, summaries, nil
}
