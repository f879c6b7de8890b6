// Package handler contains HTTP handlers for the quota engine's JSON API.
//
// This file implements the Stripe webhook handler that reconciles the
// per-user subscription row.
//
// Route:
//   - POST /webhooks/stripe -> HandleStripeWebhook
//
// This route is PUBLIC (no auth middleware) because Stripe calls it directly.
// Authentication is via the Stripe webhook signature verification.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/HSahraye/immigration-helper-ai-sub000/internal/billing"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/domain"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/metrics"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/service"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
)

// subscriptionChange says how a Stripe subscription event reached the handler.
// Only a new subscription may take over a row linked to a different one.
type subscriptionChange int

const (
	subscriptionCreated subscriptionChange = iota
	subscriptionUpdated
	subscriptionDeleted
)

// errSuperseded marks an event for a Stripe subscription the user's row no
// longer tracks.
var errSuperseded = errors.New("event for superseded subscription")

// WebhookHandler handles incoming webhook events from Stripe.
type WebhookHandler struct {
	billing       billing.Service
	subscriptions service.SubscriptionService
	logger        *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
// billingService may be nil when Stripe is not configured.
func NewWebhookHandler(billingService billing.Service, subscriptions service.SubscriptionService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		billing:       billingService,
		subscriptions: subscriptions,
		logger:        logger,
	}
}

// RegisterRoutes registers webhook routes on the provided mux.
// These routes are PUBLIC — no auth middleware.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/stripe", h.HandleStripeWebhook)
}

// HandleStripeWebhook verifies and processes a Stripe webhook event.
// Processing failures return an error status so Stripe retries delivery.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	// Read body (limit to 64KB)
	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	event, err := h.billing.VerifyWebhookSignature(body, signature)
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.logger.Info("stripe webhook received", "type", event.Type, "id", event.ID)

	if err := h.ProcessEvent(r.Context(), event); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ProcessEvent applies a verified event to the subscription store. Events
// older than the last applied one are ignored.
func (h *WebhookHandler) ProcessEvent(ctx context.Context, event stripe.Event) error {
	const op = "webhook.process"

	if event.Data == nil {
		return domain.Invalid(op, "event has no data")
	}
	eventAt := time.Unix(event.Created, 0).UTC()

	var err error
	result := "applied"
	switch event.Type {
	case "checkout.session.completed":
		err = h.handleCheckoutCompleted(ctx, event.Data.Raw, eventAt)
	case "customer.subscription.created":
		err = h.handleSubscriptionChanged(ctx, event.Data.Raw, eventAt, subscriptionCreated)
	case "customer.subscription.updated":
		err = h.handleSubscriptionChanged(ctx, event.Data.Raw, eventAt, subscriptionUpdated)
	case "customer.subscription.deleted":
		err = h.handleSubscriptionChanged(ctx, event.Data.Raw, eventAt, subscriptionDeleted)
	case "invoice.payment_succeeded":
		err = h.handleInvoice(ctx, event.Data.Raw, eventAt, domain.SubscriptionStatusActive)
	case "invoice.payment_failed":
		err = h.handleInvoice(ctx, event.Data.Raw, eventAt, domain.SubscriptionStatusPastDue)
	default:
		result = "ignored"
		h.logger.Debug("unhandled webhook event type", "type", event.Type)
	}

	switch {
	case err == nil:
	case errors.Is(err, errSuperseded):
		h.logger.Info("webhook event for superseded subscription ignored", "type", event.Type, "id", event.ID)
		result, err = "superseded", nil
	case domain.ErrorCode(err) == domain.ECONFLICT:
		h.logger.Info("stale webhook event ignored", "type", event.Type, "id", event.ID)
		result, err = "stale", nil
	default:
		result = "error"
	}
	metrics.WebhookEvent(string(event.Type), result)
	return err
}

func (h *WebhookHandler) handleCheckoutCompleted(ctx context.Context, raw json.RawMessage, eventAt time.Time) error {
	const op = "webhook.checkout_completed"

	var session stripe.CheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.Invalid(op, "malformed checkout session")
	}
	if session.Subscription == nil {
		h.logger.Warn("checkout session missing subscription", "session_id", session.ID)
		return nil
	}

	sub, err := h.billing.GetSubscription(session.Subscription.ID)
	if err != nil {
		return domain.Unavailable(err, op, "failed to fetch subscription")
	}
	return h.applySubscription(ctx, sub, session.ClientReferenceID, eventAt, subscriptionCreated)
}

func (h *WebhookHandler) handleSubscriptionChanged(ctx context.Context, raw json.RawMessage, eventAt time.Time, change subscriptionChange) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return domain.Invalid("webhook.subscription_changed", "malformed subscription")
	}
	return h.applySubscription(ctx, &sub, "", eventAt, change)
}

// applySubscription writes the state of a Stripe subscription to the user's
// row. The user is taken from the subscription metadata, the checkout
// reference, or an existing row linked to the same Stripe IDs. Updates and
// deletions of a Stripe subscription other than the one on the row return
// errSuperseded.
func (h *WebhookHandler) applySubscription(ctx context.Context, sub *stripe.Subscription, userID string, eventAt time.Time, change subscriptionChange) error {
	if id := sub.Metadata[billing.UserIDMetadataKey]; id != "" {
		userID = id
	}

	var customerID string
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}

	existing, err := h.findExisting(ctx, userID, sub.ID, customerID)
	if err != nil {
		return err
	}
	if userID == "" && existing != nil {
		userID = existing.UserID
	}
	if userID == "" {
		h.logger.Warn("no user for subscription event",
			"subscription_id", sub.ID,
			"customer_id", customerID,
		)
		return nil
	}
	if existing != nil && existing.StripeSubscriptionID != "" &&
		existing.StripeSubscriptionID != sub.ID && change != subscriptionCreated {
		h.logger.Debug("subscription event does not match tracked subscription",
			"user_id", userID,
			"subscription_id", sub.ID,
			"tracked_subscription_id", existing.StripeSubscriptionID,
		)
		return errSuperseded
	}

	planID, ok, err := h.resolvePlan(ctx, billing.PriceID(sub), existing)
	if err != nil {
		return err
	}
	if !ok {
		h.logger.Warn("subscription price maps to no plan",
			"subscription_id", sub.ID,
			"price_id", billing.PriceID(sub),
		)
		return nil
	}

	status := billing.MapStatus(sub.Status)
	if change == subscriptionDeleted {
		status = domain.SubscriptionStatusCanceled
	}
	start, end := billing.Period(sub)

	saved, err := h.subscriptions.Upsert(ctx, domain.UpsertSubscriptionParams{
		UserID:               userID,
		PlanID:               planID,
		Status:               status,
		CurrentPeriodStart:   start,
		CurrentPeriodEnd:     end,
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		StripeCustomerID:     customerID,
		StripeSubscriptionID: sub.ID,
		EventAt:              eventAt,
	})
	if err != nil {
		return err
	}

	h.logger.Info("subscription reconciled",
		"user_id", saved.UserID,
		"status", saved.Status,
		"tier", saved.Tier(),
		"subscription_id", sub.ID,
	)
	return nil
}

func (h *WebhookHandler) findExisting(ctx context.Context, userID, subscriptionID, customerID string) (*domain.Subscription, error) {
	lookups := []func() (*domain.Subscription, error){
		func() (*domain.Subscription, error) {
			if userID == "" {
				return nil, nil
			}
			return h.subscriptions.GetSubscription(ctx, userID)
		},
		func() (*domain.Subscription, error) {
			if subscriptionID == "" {
				return nil, nil
			}
			return h.subscriptions.GetByStripeSubscriptionID(ctx, subscriptionID)
		},
		func() (*domain.Subscription, error) {
			if customerID == "" {
				return nil, nil
			}
			return h.subscriptions.GetByStripeCustomerID(ctx, customerID)
		},
	}

	for _, lookup := range lookups {
		sub, err := lookup()
		if err != nil {
			if domain.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if sub != nil {
			return sub, nil
		}
	}
	return nil, nil
}

// resolvePlan maps a price to a plan, falling back to the existing row's
// plan when the price is unknown.
func (h *WebhookHandler) resolvePlan(ctx context.Context, priceID string, existing *domain.Subscription) (planID uuid.UUID, ok bool, err error) {
	if priceID != "" {
		plan, err := h.subscriptions.GetPlanByStripePriceID(ctx, priceID)
		if err == nil {
			return plan.ID, true, nil
		}
		if !domain.IsNotFound(err) {
			return planID, false, err
		}
	}
	if existing != nil {
		return existing.PlanID, true, nil
	}
	return planID, false, nil
}

func (h *WebhookHandler) handleInvoice(ctx context.Context, raw json.RawMessage, eventAt time.Time, status domain.SubscriptionStatus) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return domain.Invalid("webhook.invoice", "malformed invoice")
	}
	if invoice.Customer == nil {
		return nil
	}

	existing, err := h.subscriptions.GetByStripeCustomerID(ctx, invoice.Customer.ID)
	if err != nil {
		if domain.IsNotFound(err) {
			h.logger.Debug("no subscription for invoice customer", "customer_id", invoice.Customer.ID)
			return nil
		}
		return err
	}

	// A successful payment only recovers delinquent subscriptions.
	if status == domain.SubscriptionStatusActive &&
		existing.Status != domain.SubscriptionStatusPastDue &&
		existing.Status != domain.SubscriptionStatusUnpaid {
		return nil
	}
	if existing.Status == status {
		return nil
	}

	_, err = h.subscriptions.Upsert(ctx, domain.UpsertSubscriptionParams{
		UserID:               existing.UserID,
		PlanID:               existing.PlanID,
		Status:               status,
		CurrentPeriodStart:   existing.CurrentPeriodStart,
		CurrentPeriodEnd:     existing.CurrentPeriodEnd,
		CancelAtPeriodEnd:    existing.CancelAtPeriodEnd,
		StripeCustomerID:     existing.StripeCustomerID,
		StripeSubscriptionID: existing.StripeSubscriptionID,
		EventAt:              eventAt,
	})
	if err != nil {
		return err
	}

	if status == domain.SubscriptionStatusPastDue {
		h.logger.Warn("payment failed", "user_id", existing.UserID, "customer_id", invoice.Customer.ID)
	} else {
		h.logger.Info("payment recovered", "user_id", existing.UserID, "customer_id", invoice.Customer.ID)
	}
	return nil
}
