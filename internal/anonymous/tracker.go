// Package anonymous tracks guarded requests made without a session.
//
// Each anonymous caller gets a lifetime counter that expires a fixed TTL
// after its first write. The counter lives either in a signed cookie or in
// Redis keyed by an opaque cookie ID; both sit behind Store.
package anonymous

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/HSahraye/immigration-helper-ai-sub000/internal/domain"
	"github.com/google/uuid"
)

// Store persists anonymous counters.
type Store interface {
	// Load returns the caller's counter. A caller without one gets the zero
	// counter; an unreadable counter is an error.
	Load(r *http.Request) (domain.AnonymousCounter, error)

	// Commit persists next as the caller's counter and returns the stored
	// value. It must run before the response header is written.
	Commit(w http.ResponseWriter, r *http.Request, next domain.AnonymousCounter) (domain.AnonymousCounter, error)

	// Reset discards the caller's counter.
	Reset(w http.ResponseWriter, r *http.Request) error
}

// Tracker applies the anonymous lifetime limit.
type Tracker struct {
	store  Store
	limit  int
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewTracker creates a Tracker. Non-positive limit or ttl fall back to the
// defaults.
func NewTracker(store Store, limit int, ttl time.Duration, logger *slog.Logger) *Tracker {
	if limit <= 0 {
		limit = domain.DefaultAnonymousLimit
	}
	if ttl <= 0 {
		ttl = domain.DefaultAnonymousTTL
	}
	return &Tracker{
		store:  store,
		limit:  limit,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Limit returns the configured lifetime limit.
func (t *Tracker) Limit() int {
	return t.limit
}

// Check decides whether the caller may make one more guarded request. When
// allowed, next is the counter to pass to Commit once the request succeeds.
func (t *Tracker) Check(r *http.Request) (decision domain.Decision, next domain.AnonymousCounter, err error) {
	current, err := t.store.Load(r)
	if err != nil {
		return domain.Decision{}, domain.AnonymousCounter{}, err
	}
	current = t.normalize(current)

	allowed, next := current.CheckAndIncrement(t.limit)
	if !allowed {
		t.logger.Info("anonymous limit reached",
			"anon_id", current.ID,
			"count", current.Count,
			"limit", t.limit,
		)
		return domain.Deny(domain.ReasonUnauthenticated), current, nil
	}
	return domain.Allow(int64(next.Remaining(t.limit))), next, nil
}

// Peek returns the caller's current counter without changing it.
func (t *Tracker) Peek(r *http.Request) (domain.AnonymousCounter, error) {
	current, err := t.store.Load(r)
	if err != nil {
		return domain.AnonymousCounter{}, err
	}
	return t.normalize(current), nil
}

// Commit persists the incremented counter returned by Check.
func (t *Tracker) Commit(w http.ResponseWriter, r *http.Request, next domain.AnonymousCounter) (domain.AnonymousCounter, error) {
	return t.store.Commit(w, r, next)
}

// Reset discards the caller's counter, e.g. once they authenticate.
func (t *Tracker) Reset(w http.ResponseWriter, r *http.Request) error {
	return t.store.Reset(w, r)
}

// normalize starts a fresh window for new or expired counters.
func (t *Tracker) normalize(c domain.AnonymousCounter) domain.AnonymousCounter {
	now := t.now()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.ExpiresAt.IsZero() || c.Expired(now) {
		c.Count = 0
		c.ExpiresAt = now.Add(t.ttl)
	}
	return c
}
