// Package service contains the business logic layer.
//
// This file implements the usage ledger: append-only usage records summed
// over a time window.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/HSahraye/immigration-helper-ai-sub000/internal/domain"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/repository"
	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// =============================================================================
// Interface Definition
// =============================================================================

// UsageService records billable actions and sums them over time windows.
type UsageService interface {
	// Record appends a new immutable usage record. It never merges with
	// earlier records. A count below 1 is stored as 1.
	Record(ctx context.Context, params domain.RecordUsageParams) (*domain.UsageRecord, error)

	// WindowedSum returns the total count of the user's records of the given
	// type created within [windowStart, windowEnd]. A zero windowEnd means
	// now. Returns 0 when nothing matches.
	WindowedSum(ctx context.Context, userID string, usageType domain.UsageType, windowStart, windowEnd time.Time) (int64, error)

	// PruneBefore deletes records created before the cutoff.
	PruneBefore(ctx context.Context, before time.Time) (int64, error)
}

// =============================================================================
// Implementation
// =============================================================================

type usageService struct {
	queries repository.Querier
	logger  *slog.Logger
	now     func() time.Time
}

// NewUsageService creates a new UsageService.
func NewUsageService(queries repository.Querier, logger *slog.Logger) UsageService {
	return &usageService{
		queries: queries,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *usageService) Record(ctx context.Context, params domain.RecordUsageParams) (*domain.UsageRecord, error) {
	const op = "usage.record"

	if params.UserID == "" {
		return nil, domain.Invalid(op, "user ID is required")
	}
	if !params.Type.Valid() {
		return nil, domain.Invalid(op, "unknown usage type")
	}
	count := params.Count
	if count < 1 {
		count = 1
	}
	if count > math.MaxInt32 {
		return nil, domain.Invalid(op, "usage count is too large")
	}

	var metadata pqtype.NullRawMessage
	if len(params.Metadata) > 0 {
		raw, err := json.Marshal(params.Metadata)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to encode usage metadata")
		}
		metadata = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
	}

	rec, err := s.queries.InsertUsageRecord(ctx, repository.InsertUsageRecordParams{
		ID:        uuid.New(),
		UserID:    params.UserID,
		Type:      string(params.Type),
		Count:     int32(count),
		Metadata:  metadata,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, domain.Unavailable(err, op, "failed to record usage")
	}

	s.logger.Debug("usage recorded",
		"user_id", params.UserID,
		"usage_type", params.Type,
		"count", count,
	)

	return &domain.UsageRecord{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Type:      domain.UsageType(rec.Type),
		Count:     int(rec.Count),
		Metadata:  params.Metadata,
		CreatedAt: rec.CreatedAt,
	}, nil
}

func (s *usageService) WindowedSum(ctx context.Context, userID string, usageType domain.UsageType, windowStart, windowEnd time.Time) (int64, error) {
	const op = "usage.windowed_sum"

	if windowEnd.IsZero() {
		windowEnd = s.now()
	}
	if windowStart.After(windowEnd) {
		return 0, domain.Invalid(op, "window start must not be after window end")
	}

	total, err := s.queries.SumUsage(ctx, repository.SumUsageParams{
		UserID:      userID,
		Type:        string(usageType),
		WindowStart: windowStart.UTC(),
		WindowEnd:   windowEnd.UTC(),
	})
	if err != nil {
		return 0, domain.Unavailable(err, op, "failed to sum usage")
	}
	return total, nil
}

func (s *usageService) PruneBefore(ctx context.Context, before time.Time) (int64, error) {
	const op = "usage.prune"

	deleted, err := s.queries.DeleteUsageRecordsBefore(ctx, before.UTC())
	if err != nil {
		return 0, domain.Unavailable(err, op, "failed to prune usage records")
	}
	return deleted, nil
}
