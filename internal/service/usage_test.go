package service

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/HSahraye/immigration-helper-ai-sub000/internal/domain"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/repository"
)

func TestUsageService_WindowedSum_EmptyLedger(t *testing.T) {
	svc := NewUsageService(repository.NewMemoryStore(), newTestLogger())

	total, err := svc.WindowedSum(context.Background(), "user-1", domain.UsageTypeChatMessage, time.Now().Add(-24*time.Hour), time.Time{})
	if err != nil {
		t.Fatalf("expected no error on empty ledger, got %v", err)
	}
	if total != 0 {
		t.Errorf("expected 0, got %d", total)
	}
}

func TestUsageService_Record_AppendsAndSums(t *testing.T) {
	ctx := context.Background()
	svc := NewUsageService(repository.NewMemoryStore(), newTestLogger())
	start := time.Now().Add(-time.Minute)

	counts := []int{2, 1, 5}
	ids := map[string]bool{}
	for _, c := range counts {
		rec, err := svc.Record(ctx, domain.RecordUsageParams{
			UserID:   "user-1",
			Type:     domain.UsageTypeDocumentGeneration,
			Count:    c,
			Metadata: map[string]string{"template": "i-130"},
		})
		if err != nil {
			t.Fatalf("record: %v", err)
		}
		if ids[rec.ID.String()] {
			t.Errorf("record ID %s reused; records must not merge", rec.ID)
		}
		ids[rec.ID.String()] = true
	}

	total, err := svc.WindowedSum(ctx, "user-1", domain.UsageTypeDocumentGeneration, start, time.Time{})
	if err != nil {
		t.Fatalf("windowed sum: %v", err)
	}
	if total != 8 {
		t.Errorf("expected 8, got %d", total)
	}
}

func TestUsageService_Record_NormalisesCount(t *testing.T) {
	svc := NewUsageService(repository.NewMemoryStore(), newTestLogger())

	rec, err := svc.Record(context.Background(), domain.RecordUsageParams{
		UserID: "user-1",
		Type:   domain.UsageTypeChatMessage,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.Count != 1 {
		t.Errorf("expected default count 1, got %d", rec.Count)
	}
}

func TestUsageService_Record_Validation(t *testing.T) {
	svc := NewUsageService(repository.NewMemoryStore(), newTestLogger())
	tooMany := int64(math.MaxInt32) + 1

	testCases := []struct {
		name   string
		params domain.RecordUsageParams
	}{
		{"missing user", domain.RecordUsageParams{Type: domain.UsageTypeChatMessage}},
		{"unknown type", domain.RecordUsageParams{UserID: "u", Type: "image_generation"}},
		{"count overflows", domain.RecordUsageParams{UserID: "u", Type: domain.UsageTypeChatMessage, Count: int(tooMany)}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Record(context.Background(), tc.params)
			if domain.ErrorCode(err) != domain.EINVALID {
				t.Errorf("expected EINVALID, got %v", err)
			}
		})
	}
}

func TestUsageService_WindowedSum_InvertedWindow(t *testing.T) {
	svc := NewUsageService(repository.NewMemoryStore(), newTestLogger())
	now := time.Now()

	_, err := svc.WindowedSum(context.Background(), "user-1", domain.UsageTypeChatMessage, now, now.Add(-time.Hour))
	if domain.ErrorCode(err) != domain.EINVALID {
		t.Errorf("expected EINVALID, got %v", err)
	}
}

func TestUsageService_WindowedSum_StorageFailure(t *testing.T) {
	svc := NewUsageService(repository.NewMemoryStore(), newTestLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.WindowedSum(ctx, "user-1", domain.UsageTypeChatMessage, time.Now().Add(-time.Hour), time.Time{})
	if domain.ErrorCode(err) != domain.EUNAVAILABLE {
		t.Errorf("expected EUNAVAILABLE, got %v", err)
	}
}

func TestUsageService_Record_StampsWithServiceClock(t *testing.T) {
	ctx := context.Background()
	appNow := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// The database clock runs ahead of the application's.
	store := repository.NewMemoryStore()
	store.SetClock(func() time.Time { return appNow.Add(5 * time.Second) })
	svc := NewUsageService(store, newTestLogger()).(*usageService)
	svc.now = func() time.Time { return appNow }

	rec, err := svc.Record(ctx, domain.RecordUsageParams{UserID: "user-1", Type: domain.UsageTypeChatMessage})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !rec.CreatedAt.Equal(appNow) {
		t.Errorf("expected created_at %v, got %v", appNow, rec.CreatedAt)
	}

	// A window ending at the application's "now" must see the record.
	total, err := svc.WindowedSum(ctx, "user-1", domain.UsageTypeChatMessage, appNow.Add(-time.Hour), appNow)
	if err != nil {
		t.Fatalf("windowed sum: %v", err)
	}
	if total != 1 {
		t.Errorf("expected the record inside a window ending now, got %d", total)
	}
}
