package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/HSahraye/immigration-helper-ai-sub000/internal/auth"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/domain"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/service"
	"github.com/google/uuid"
)

// SubscriptionHandler exposes plans and the caller's subscription.
//
// Routes handled:
//   - GET  /api/plans              -> ListPlans (public)
//   - GET  /api/subscription       -> GetSubscription
//   - POST /api/subscription/test  -> ActivateTest (development only)
type SubscriptionHandler struct {
	subscriptions service.SubscriptionService
	tiers         service.TierResolver
	allowTest     bool
	logger        *slog.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler. allowTest
// enables the billing-free activation endpoint.
func NewSubscriptionHandler(subscriptions service.SubscriptionService, tiers service.TierResolver, allowTest bool, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptions: subscriptions,
		tiers:         tiers,
		allowTest:     allowTest,
		logger:        logger,
	}
}

// RegisterRoutes registers subscription routes on the provided mux.
func (h *SubscriptionHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /api/plans", h.ListPlans)
	mux.Handle("GET /api/subscription", requireUser(http.HandlerFunc(h.GetSubscription)))
	if h.allowTest {
		mux.Handle("POST /api/subscription/test", requireUser(http.HandlerFunc(h.ActivateTest)))
	}
}

type planResponse struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Tier       string    `json:"tier"`
	TierName   string    `json:"tier_name"`
	Features   []string  `json:"features"`
	PriceCents int64     `json:"price_cents"`
	Currency   string    `json:"currency"`
}

type subscriptionResponse struct {
	ID                 uuid.UUID                 `json:"id"`
	Status             domain.SubscriptionStatus `json:"status"`
	Plan               *planResponse             `json:"plan,omitempty"`
	CurrentPeriodStart time.Time                 `json:"current_period_start"`
	CurrentPeriodEnd   time.Time                 `json:"current_period_end"`
	CancelAtPeriodEnd  bool                      `json:"cancel_at_period_end"`
}

type subscriptionEnvelope struct {
	Tier         domain.Tier           `json:"tier"`
	Subscription *subscriptionResponse `json:"subscription"`
}

func toPlanResponse(p *domain.Plan) *planResponse {
	if p == nil {
		return nil
	}
	tier := p.EffectiveTier()
	features := p.Features
	if features == nil {
		features = []string{}
	}
	return &planResponse{
		ID:         p.ID,
		Name:       p.Name,
		Tier:       string(tier),
		TierName:   tier.DisplayName(),
		Features:   features,
		PriceCents: p.PriceCents,
		Currency:   p.Currency,
	}
}

func toSubscriptionResponse(s *domain.Subscription) *subscriptionResponse {
	return &subscriptionResponse{
		ID:                 s.ID,
		Status:             s.Status,
		Plan:               toPlanResponse(s.Plan),
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
	}
}

// ListPlans handles GET /api/plans.
func (h *SubscriptionHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.subscriptions.ListPlans(r.Context())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := make([]*planResponse, 0, len(plans))
	for i := range plans {
		resp = append(resp, toPlanResponse(&plans[i]))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"plans": resp})
}

// GetSubscription handles GET /api/subscription.
func (h *SubscriptionHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	id := auth.GetIdentity(r.Context())
	if id == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	tier, err := h.tiers.ResolveTier(r.Context(), id.UserID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := subscriptionEnvelope{Tier: tier}
	sub, err := h.subscriptions.GetSubscription(r.Context(), id.UserID)
	switch {
	case err == nil:
		resp.Subscription = toSubscriptionResponse(sub)
	case domain.IsNotFound(err):
	default:
		ErrorResponse(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

type activateTestRequest struct {
	PlanID string `json:"plan_id"`
}

// ActivateTest handles POST /api/subscription/test.
func (h *SubscriptionHandler) ActivateTest(w http.ResponseWriter, r *http.Request) {
	const op = "subscription.activate_test"

	id := auth.GetIdentity(r.Context())
	if id == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req activateTestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "request body must be JSON with a plan_id"))
		return
	}
	planID, err := uuid.Parse(req.PlanID)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "plan_id must be a UUID"))
		return
	}

	sub, err := h.subscriptions.ActivateTestSubscription(r.Context(), id.UserID, planID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Info("test subscription activated", "user_id", id.UserID, "plan_id", planID)
	WriteJSON(w, http.StatusOK, subscriptionEnvelope{
		Tier:         sub.Tier(),
		Subscription: toSubscriptionResponse(sub),
	})
}

// decodeJSON decodes a small JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
