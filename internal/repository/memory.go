package repository

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps all rows in process. It mirrors the SQL semantics of
// Queries, including sql.ErrNoRows for missing rows and the stale-event
// guard on UpsertSubscription, and is used with STORE_DRIVER=memory and in
// tests.
type MemoryStore struct {
	mu            sync.RWMutex
	now           func() time.Time
	usage         []UsageRecord
	plans         map[uuid.UUID]Plan
	subscriptions map[string]Subscription // keyed by user ID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:           time.Now,
		plans:         make(map[uuid.UUID]Plan),
		subscriptions: make(map[string]Subscription),
	}
}

// SetClock replaces the clock used to stamp created_at / updated_at.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) InsertUsageRecord(ctx context.Context, arg InsertUsageRecordParams) (UsageRecord, error) {
	if err := ctx.Err(); err != nil {
		return UsageRecord{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	createdAt := arg.CreatedAt
	if createdAt.IsZero() {
		createdAt = m.now()
	}
	rec := UsageRecord{
		ID:        arg.ID,
		UserID:    arg.UserID,
		Type:      arg.Type,
		Count:     arg.Count,
		Metadata:  arg.Metadata,
		CreatedAt: createdAt.UTC(),
	}
	m.usage = append(m.usage, rec)
	return rec, nil
}

func (m *MemoryStore) SumUsage(ctx context.Context, arg SumUsageParams) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, rec := range m.usage {
		if rec.UserID != arg.UserID || rec.Type != arg.Type {
			continue
		}
		if rec.CreatedAt.Before(arg.WindowStart) || rec.CreatedAt.After(arg.WindowEnd) {
			continue
		}
		total += int64(rec.Count)
	}
	return total, nil
}

func (m *MemoryStore) DeleteUsageRecordsBefore(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.usage[:0]
	var deleted int64
	for _, rec := range m.usage {
		if rec.CreatedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	m.usage = kept
	return deleted, nil
}

func (m *MemoryStore) GetPlanByID(ctx context.Context, id uuid.UUID) (Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.plans[id]
	if !ok {
		return Plan{}, sql.ErrNoRows
	}
	return p, nil
}

func (m *MemoryStore) GetPlanByStripePriceID(ctx context.Context, stripePriceID string) (Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.plans {
		if p.StripePriceID.Valid && p.StripePriceID.String == stripePriceID {
			return p, nil
		}
	}
	return Plan{}, sql.ErrNoRows
}

func (m *MemoryStore) ListPlans(ctx context.Context) ([]Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]Plan, 0, len(m.plans))
	for _, p := range m.plans {
		items = append(items, p)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].PriceCents != items[j].PriceCents {
			return items[i].PriceCents < items[j].PriceCents
		}
		return items[i].Name < items[j].Name
	})
	return items, nil
}

func (m *MemoryStore) CreatePlan(ctx context.Context, arg CreatePlanParams) (Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := Plan{
		ID:            arg.ID,
		Name:          arg.Name,
		Tier:          arg.Tier,
		Features:      append([]string(nil), arg.Features...),
		PriceCents:    arg.PriceCents,
		Currency:      arg.Currency,
		StripePriceID: arg.StripePriceID,
		CreatedAt:     m.now().UTC(),
	}
	m.plans[p.ID] = p
	return p, nil
}

func (m *MemoryStore) SetPlanStripePriceID(ctx context.Context, arg SetPlanStripePriceIDParams) (Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.plans[arg.ID]
	if !ok {
		return Plan{}, sql.ErrNoRows
	}
	p.StripePriceID = arg.StripePriceID
	m.plans[arg.ID] = p
	return p, nil
}

func (m *MemoryStore) GetSubscriptionByUserID(ctx context.Context, userID string) (SubscriptionWithPlan, error) {
	if err := ctx.Err(); err != nil {
		return SubscriptionWithPlan{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.subscriptions[userID]
	if !ok {
		return SubscriptionWithPlan{}, sql.ErrNoRows
	}
	return m.joinPlan(s)
}

func (m *MemoryStore) GetSubscriptionByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (SubscriptionWithPlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.subscriptions {
		if s.StripeSubscriptionID.Valid && s.StripeSubscriptionID.String == stripeSubscriptionID {
			return m.joinPlan(s)
		}
	}
	return SubscriptionWithPlan{}, sql.ErrNoRows
}

func (m *MemoryStore) GetSubscriptionByStripeCustomerID(ctx context.Context, stripeCustomerID string) (SubscriptionWithPlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.subscriptions {
		if s.StripeCustomerID.Valid && s.StripeCustomerID.String == stripeCustomerID {
			return m.joinPlan(s)
		}
	}
	return SubscriptionWithPlan{}, sql.ErrNoRows
}

// joinPlan must be called with m.mu held.
func (m *MemoryStore) joinPlan(s Subscription) (SubscriptionWithPlan, error) {
	p, ok := m.plans[s.PlanID]
	if !ok {
		return SubscriptionWithPlan{}, sql.ErrNoRows
	}
	return SubscriptionWithPlan{Subscription: s, Plan: p}, nil
}

func (m *MemoryStore) UpsertSubscription(ctx context.Context, arg UpsertSubscriptionParams) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	existing, ok := m.subscriptions[arg.UserID]
	if !ok {
		s := Subscription{
			ID:                   arg.ID,
			UserID:               arg.UserID,
			PlanID:               arg.PlanID,
			Status:               arg.Status,
			CurrentPeriodStart:   arg.CurrentPeriodStart,
			CurrentPeriodEnd:     arg.CurrentPeriodEnd,
			CancelAtPeriodEnd:    arg.CancelAtPeriodEnd,
			StripeCustomerID:     arg.StripeCustomerID,
			StripeSubscriptionID: arg.StripeSubscriptionID,
			LastEventAt:          arg.LastEventAt,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		m.subscriptions[arg.UserID] = s
		return s, nil
	}

	if existing.LastEventAt.Valid && arg.LastEventAt.Valid && existing.LastEventAt.Time.After(arg.LastEventAt.Time) {
		return Subscription{}, sql.ErrNoRows
	}

	existing.PlanID = arg.PlanID
	existing.Status = arg.Status
	existing.CurrentPeriodStart = arg.CurrentPeriodStart
	existing.CurrentPeriodEnd = arg.CurrentPeriodEnd
	existing.CancelAtPeriodEnd = arg.CancelAtPeriodEnd
	if arg.StripeCustomerID.Valid {
		existing.StripeCustomerID = arg.StripeCustomerID
	}
	if arg.StripeSubscriptionID.Valid {
		existing.StripeSubscriptionID = arg.StripeSubscriptionID
	}
	existing.LastEventAt = arg.LastEventAt
	existing.UpdatedAt = now
	m.subscriptions[arg.UserID] = existing
	return existing, nil
}

func (m *MemoryStore) SetCancelAtPeriodEnd(ctx context.Context, arg SetCancelAtPeriodEndParams) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.subscriptions[arg.UserID]
	if !ok {
		return Subscription{}, sql.ErrNoRows
	}
	s.CancelAtPeriodEnd = arg.CancelAtPeriodEnd
	s.UpdatedAt = m.now().UTC()
	m.subscriptions[arg.UserID] = s
	return s, nil
}
