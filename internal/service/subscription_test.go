package service

import (
	"context"
	"testing"
	"time"

	"github.com/HSahraye/immigration-helper-ai-sub000/internal/domain"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/repository"
	"github.com/google/uuid"
)

func TestSubscriptionService_Upsert_RejectsStaleEvent(t *testing.T) {
	ctx := context.Background()
	svc := NewSubscriptionService(newSeededStore(t), newTestLogger())
	planID := repository.DefaultPlans[1].ID
	newer := time.Now().UTC()

	_, err := svc.Upsert(ctx, domain.UpsertSubscriptionParams{
		UserID: "user-1", PlanID: planID, Status: domain.SubscriptionStatusActive,
		StripeSubscriptionID: "sub_123", EventAt: newer,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	_, err = svc.Upsert(ctx, domain.UpsertSubscriptionParams{
		UserID: "user-1", PlanID: planID, Status: domain.SubscriptionStatusCanceled,
		EventAt: newer.Add(-time.Minute),
	})
	if domain.ErrorCode(err) != domain.ECONFLICT {
		t.Fatalf("expected ECONFLICT for stale event, got %v", err)
	}

	sub, err := svc.GetByStripeSubscriptionID(ctx, "sub_123")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sub.Status != domain.SubscriptionStatusActive {
		t.Errorf("stale event must not overwrite status, got %s", sub.Status)
	}
	if sub.Tier() != domain.TierProfessional {
		t.Errorf("expected PROFESSIONAL, got %s", sub.Tier())
	}
}

func TestSubscriptionService_Upsert_Validation(t *testing.T) {
	svc := NewSubscriptionService(newSeededStore(t), newTestLogger())

	_, err := svc.Upsert(context.Background(), domain.UpsertSubscriptionParams{UserID: "u", Status: "PAUSED"})
	if domain.ErrorCode(err) != domain.EINVALID {
		t.Errorf("expected EINVALID, got %v", err)
	}
}

func TestSubscriptionService_ActivateTestSubscription(t *testing.T) {
	ctx := context.Background()
	svc := NewSubscriptionService(newSeededStore(t), newTestLogger())

	sub, err := svc.ActivateTestSubscription(ctx, "user-1", repository.DefaultPlans[0].ID)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if !sub.IsActive() || sub.Tier() != domain.TierBasic {
		t.Errorf("expected active BASIC subscription, got %+v", sub)
	}

	_, err = svc.ActivateTestSubscription(ctx, "user-1", uuid.New())
	if !domain.IsNotFound(err) {
		t.Errorf("expected not found for unknown plan, got %v", err)
	}
}

func TestSubscriptionService_SetCancelAtPeriodEnd(t *testing.T) {
	ctx := context.Background()
	svc := NewSubscriptionService(newSeededStore(t), newTestLogger())

	if _, err := svc.SetCancelAtPeriodEnd(ctx, "nobody", true); !domain.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}

	_, _ = svc.ActivateTestSubscription(ctx, "user-1", repository.DefaultPlans[2].ID)
	sub, err := svc.SetCancelAtPeriodEnd(ctx, "user-1", true)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !sub.CancelAtPeriodEnd || !sub.IsActive() {
		t.Errorf("expected active subscription flagged to cancel, got %+v", sub)
	}
}

func TestSubscriptionService_ListPlans(t *testing.T) {
	svc := NewSubscriptionService(newSeededStore(t), newTestLogger())

	plans, err := svc.ListPlans(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(plans) != 3 || plans[0].Tier != domain.TierBasic || plans[2].Tier != domain.TierEnterprise {
		t.Errorf("unexpected plans: %+v", plans)
	}
}

func TestSubscriptionService_BindStripePrice(t *testing.T) {
	ctx := context.Background()
	svc := NewSubscriptionService(newSeededStore(t), newTestLogger())
	planID := repository.DefaultPlans[1].ID

	if _, err := svc.BindStripePrice(ctx, planID, "price_pro_monthly"); err != nil {
		t.Fatalf("bind: %v", err)
	}

	plan, err := svc.GetPlanByStripePriceID(ctx, "price_pro_monthly")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if plan.ID != planID {
		t.Errorf("expected plan %s, got %s", planID, plan.ID)
	}

	if _, err := svc.BindStripePrice(ctx, uuid.New(), "price_x"); !domain.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}
