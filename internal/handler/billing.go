// Package handler contains HTTP handlers for the quota engine's JSON API.
//
// This file implements billing/subscription management handlers backed by Stripe.
//
// Routes handled:
//   - POST /api/billing/checkout   -> CreateCheckout
//   - POST /api/billing/portal     -> OpenPortal
//   - POST /api/billing/cancel     -> CancelSubscription
//   - POST /api/billing/reactivate -> ReactivateSubscription
package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/HSahraye/immigration-helper-ai-sub000/internal/auth"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/billing"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/domain"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/service"
	"github.com/google/uuid"
)

// BillingHandler handles billing and subscription management HTTP requests.
type BillingHandler struct {
	billing       billing.Service
	subscriptions service.SubscriptionService
	baseURL       string
	logger        *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
// billingService may be nil when Stripe is not configured (development mode).
func NewBillingHandler(billingService billing.Service, subscriptions service.SubscriptionService, baseURL string, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		billing:       billingService,
		subscriptions: subscriptions,
		baseURL:       baseURL,
		logger:        logger,
	}
}

// RegisterRoutes registers billing routes on the provided mux.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("POST /api/billing/checkout", requireUser(http.HandlerFunc(h.CreateCheckout)))
	mux.Handle("POST /api/billing/portal", requireUser(http.HandlerFunc(h.OpenPortal)))
	mux.Handle("POST /api/billing/cancel", requireUser(http.HandlerFunc(h.CancelSubscription)))
	mux.Handle("POST /api/billing/reactivate", requireUser(http.HandlerFunc(h.ReactivateSubscription)))
}

type checkoutRequest struct {
	PlanID string `json:"plan_id"`
}

type redirectResponse struct {
	URL string `json:"url"`
}

// notConfigured is returned by every billing route when Stripe is disabled.
func notConfigured(op string) error {
	return domain.Errorf(domain.ENOTIMPL, op, "Billing is not configured")
}

// CreateCheckout creates a Stripe Checkout session for a plan and returns its URL.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	const op = "billing.checkout"

	id := auth.GetIdentity(r.Context())
	if id == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}
	if h.billing == nil {
		ErrorResponse(w, r, h.logger, notConfigured(op))
		return
	}

	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "request body must be JSON with a plan_id"))
		return
	}
	planID, err := uuid.Parse(req.PlanID)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "plan_id must be a UUID"))
		return
	}

	plan, err := h.subscriptions.GetPlan(r.Context(), planID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if plan.StripePriceID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "plan is not available for purchase"))
		return
	}

	// Reuse the Stripe customer from an earlier subscription if any. Plan
	// changes on a live subscription go through the portal instead.
	var customerID string
	if sub, err := h.subscriptions.GetSubscription(r.Context(), id.UserID); err == nil {
		if sub.IsActive() {
			ErrorResponse(w, r, h.logger, domain.Conflict(op, "You already have an active subscription; change plans from the billing portal"))
			return
		}
		customerID = sub.StripeCustomerID
	} else if !domain.IsNotFound(err) {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	checkoutURL, err := h.billing.CreateCheckoutSession(billing.CheckoutParams{
		UserID:     id.UserID,
		Email:      id.Email,
		CustomerID: customerID,
		PriceID:    plan.StripePriceID,
		SuccessURL: fmt.Sprintf("%s/dashboard?checkout=success&session_id={CHECKOUT_SESSION_ID}", h.baseURL),
		CancelURL:  fmt.Sprintf("%s/pricing?checkout=canceled", h.baseURL),
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Unavailable(err, op, "failed to create checkout session"))
		return
	}

	h.logger.Info("checkout session created", "user_id", id.UserID, "plan", plan.Name)
	WriteJSON(w, http.StatusOK, redirectResponse{URL: checkoutURL})
}

// OpenPortal creates a Stripe Customer Portal session and returns its URL.
func (h *BillingHandler) OpenPortal(w http.ResponseWriter, r *http.Request) {
	const op = "billing.portal"

	sub, ok := h.billedSubscription(w, r, op)
	if !ok {
		return
	}
	if sub.StripeCustomerID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "No billing account for this subscription"))
		return
	}

	portalURL, err := h.billing.CreatePortalSession(sub.StripeCustomerID, h.baseURL+"/dashboard")
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Unavailable(err, op, "failed to create portal session"))
		return
	}
	WriteJSON(w, http.StatusOK, redirectResponse{URL: portalURL})
}

// CancelSubscription sets the subscription to cancel at period end.
func (h *BillingHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	h.setCancelAtPeriodEnd(w, r, "billing.cancel", true)
}

// ReactivateSubscription removes the cancel-at-period-end flag.
func (h *BillingHandler) ReactivateSubscription(w http.ResponseWriter, r *http.Request) {
	h.setCancelAtPeriodEnd(w, r, "billing.reactivate", false)
}

func (h *BillingHandler) setCancelAtPeriodEnd(w http.ResponseWriter, r *http.Request, op string, cancel bool) {
	sub, ok := h.billedSubscription(w, r, op)
	if !ok {
		return
	}
	if sub.StripeSubscriptionID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "No billed subscription to update"))
		return
	}

	var err error
	if cancel {
		err = h.billing.CancelSubscription(sub.StripeSubscriptionID)
	} else {
		err = h.billing.ReactivateSubscription(sub.StripeSubscriptionID)
	}
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Unavailable(err, op, "failed to update subscription"))
		return
	}

	// The webhook is authoritative; this keeps the local row in step until it arrives.
	updated, err := h.subscriptions.SetCancelAtPeriodEnd(r.Context(), sub.UserID, cancel)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Info("subscription cancel flag updated", "user_id", sub.UserID, "cancel_at_period_end", cancel)
	WriteJSON(w, http.StatusOK, toSubscriptionResponse(updated))
}

// billedSubscription loads the caller's subscription, writing the error
// response itself when that is not possible.
func (h *BillingHandler) billedSubscription(w http.ResponseWriter, r *http.Request, op string) (*domain.Subscription, bool) {
	id := auth.GetIdentity(r.Context())
	if id == nil {
		UnauthorizedResponse(w, r, h.logger)
		return nil, false
	}
	if h.billing == nil {
		ErrorResponse(w, r, h.logger, notConfigured(op))
		return nil, false
	}

	sub, err := h.subscriptions.GetSubscription(r.Context(), id.UserID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return nil, false
	}
	return sub, true
}
