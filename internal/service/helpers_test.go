package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/HSahraye/immigration-helper-ai-sub000/internal/domain"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/repository"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newSeededStore returns a memory store with the default plans.
func newSeededStore(t *testing.T) *repository.MemoryStore {
	t.Helper()
	store := repository.NewMemoryStore()
	if err := repository.SeedDefaultPlans(context.Background(), store); err != nil {
		t.Fatalf("seed plans: %v", err)
	}
	return store
}

// subscribe gives userID a subscription with the given status on the named
// default plan.
func subscribe(t *testing.T, store *repository.MemoryStore, userID, planName string, status domain.SubscriptionStatus) {
	t.Helper()
	for _, p := range repository.DefaultPlans {
		if p.Name != planName {
			continue
		}
		_, err := store.UpsertSubscription(context.Background(), repository.UpsertSubscriptionParams{
			UserID:             userID,
			PlanID:             p.ID,
			Status:             string(status),
			CurrentPeriodStart: time.Now().Add(-time.Hour),
			CurrentPeriodEnd:   time.Now().Add(30 * 24 * time.Hour),
		})
		if err != nil {
			t.Fatalf("upsert subscription: %v", err)
		}
		return
	}
	t.Fatalf("no default plan named %q", planName)
}

// failingTierResolver always returns an error.
type failingTierResolver struct{ err error }

func (f failingTierResolver) ResolveTier(ctx context.Context, userID string) (domain.Tier, error) {
	return domain.TierFree, f.err
}
