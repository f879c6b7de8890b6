package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/HSahraye/immigration-helper-ai-sub000/internal/auth"
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

// defaultPlan returns the named default plan.
func defaultPlan(t *testing.T, name string) repository.CreatePlanParams {
	t.Helper()
	for _, p := range repository.DefaultPlans {
		if p.Name == name {
			return p
		}
	}
	t.Fatalf("no default plan named %q", name)
	return repository.CreatePlanParams{}
}

// asUser attaches a verified identity to the request.
func asUser(r *http.Request, userID string) *http.Request {
	id := &domain.Identity{
		UserID:    userID,
		Email:     userID + "@example.com",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	return r.WithContext(auth.SetIdentity(r.Context(), id))
}

// passThrough stands in for the auth middleware in route registration.
func passThrough(next http.Handler) http.Handler {
	return next
}
