package domain

import "time"

// DefaultAnonymousLimit is the lifetime cap for unauthenticated callers.
const DefaultAnonymousLimit = 20

// DefaultAnonymousTTL is how long an anonymous counter lives after its
// first write. Later increments do not extend it.
const DefaultAnonymousTTL = 24 * time.Hour

// AnonymousCounter tracks guarded requests made without a session.
type AnonymousCounter struct {
	ID        string
	Count     int
	ExpiresAt time.Time
}

// Expired reports whether the counter has passed its expiry.
func (c AnonymousCounter) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Remaining returns how many guarded requests are left under limit.
func (c AnonymousCounter) Remaining(limit int) int {
	if r := limit - c.Count; r > 0 {
		return r
	}
	return 0
}

// CheckAndIncrement decides whether another guarded request is allowed.
// When allowed, next carries count+1; when denied, next equals c.
func (c AnonymousCounter) CheckAndIncrement(limit int) (allowed bool, next AnonymousCounter) {
	if c.Count < 0 {
		c.Count = 0
	}
	if c.Count >= limit {
		return false, c
	}
	next = c
	next.Count++
	return true, next
}
