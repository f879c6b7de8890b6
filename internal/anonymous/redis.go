package anonymous

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/HSahraye/immigration-helper-ai-sub000/internal/domain"
	"github.com/redis/go-redis/v9"
)

// IDCookieName carries the opaque anonymous ID for the Redis store.
const IDCookieName = "anon_id"

// redisOpTimeout bounds each Redis round trip made on a request path.
const redisOpTimeout = 2 * time.Second

// commitScript increments the counter unless it already reached the limit,
// setting the expiry only on the first write.
var commitScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current >= tonumber(ARGV[1]) then
  return {current, redis.call("PTTL", KEYS[1]), 0}
end
current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return {current, redis.call("PTTL", KEYS[1]), 1}
`)

// ErrLimitReached is returned by RedisStore.Commit when the counter reached
// the limit between Check and Commit, so the increment was refused. The
// request that lost the race has already been served.
var ErrLimitReached = errors.New("anonymous limit reached before commit")

// RedisStore keeps counters in Redis so that clearing cookies alone does
// not reset the count of a known ID. Increments are atomic and never pass
// the limit; Check and Commit are separate round trips, so concurrent
// requests can all pass Check and the losers get ErrLimitReached.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	limit  int
	secure bool
	now    func() time.Time
}

// NewRedisStore creates a RedisStore. limit must match the tracker's so the
// commit script can refuse increments that lost a race.
func NewRedisStore(client redis.UniversalClient, prefix string, limit int, secure bool) *RedisStore {
	trimmed := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmed == "" {
		trimmed = "quota:anon"
	}
	if limit <= 0 {
		limit = domain.DefaultAnonymousLimit
	}
	return &RedisStore{
		client: client,
		prefix: trimmed,
		limit:  limit,
		secure: secure,
		now:    time.Now,
	}
}

func (s *RedisStore) key(id string) string {
	return fmt.Sprintf("%s:%s", s.prefix, id)
}

func (s *RedisStore) Load(r *http.Request) (domain.AnonymousCounter, error) {
	c, err := r.Cookie(IDCookieName)
	if err != nil || c.Value == "" {
		return domain.AnonymousCounter{}, nil
	}
	id := c.Value

	ctx, cancel := context.WithTimeout(r.Context(), redisOpTimeout)
	defer cancel()

	pipe := s.client.Pipeline()
	get := pipe.Get(ctx, s.key(id))
	pttl := pipe.PTTL(ctx, s.key(id))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.AnonymousCounter{}, fmt.Errorf("load anonymous counter: %w", err)
	}

	count, err := get.Int()
	if errors.Is(err, redis.Nil) {
		return domain.AnonymousCounter{ID: id}, nil
	}
	if err != nil {
		return domain.AnonymousCounter{}, fmt.Errorf("parse anonymous counter: %w", err)
	}

	counter := domain.AnonymousCounter{ID: id, Count: count}
	if ttl := pttl.Val(); ttl > 0 {
		counter.ExpiresAt = s.now().Add(ttl)
	}
	return counter, nil
}

// Commit increments the counter atomically. On ErrLimitReached the returned
// counter holds the stored count and the cookie is still refreshed.
func (s *RedisStore) Commit(w http.ResponseWriter, r *http.Request, next domain.AnonymousCounter) (domain.AnonymousCounter, error) {
	ttlMs := next.ExpiresAt.Sub(s.now()).Milliseconds()
	if ttlMs < 1000 {
		ttlMs = 1000
	}

	ctx, cancel := context.WithTimeout(r.Context(), redisOpTimeout)
	defer cancel()

	raw, err := commitScript.Run(ctx, s.client, []string{s.key(next.ID)}, s.limit, ttlMs).Result()
	if err != nil {
		return domain.AnonymousCounter{}, fmt.Errorf("commit anonymous counter: %w", err)
	}
	values, ok := raw.([]interface{})
	if !ok || len(values) != 3 {
		return domain.AnonymousCounter{}, fmt.Errorf("unexpected anonymous counter response shape: %T", raw)
	}
	count, _ := values[0].(int64)
	pttl, _ := values[1].(int64)
	applied, _ := values[2].(int64)

	stored := domain.AnonymousCounter{ID: next.ID, Count: int(count), ExpiresAt: next.ExpiresAt}
	if pttl > 0 {
		stored.ExpiresAt = s.now().Add(time.Duration(pttl) * time.Millisecond)
	}

	maxAge := int(stored.ExpiresAt.Sub(s.now()).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     IDCookieName,
		Value:    next.ID,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	if applied == 0 {
		return stored, ErrLimitReached
	}
	return stored, nil
}

func (s *RedisStore) Reset(w http.ResponseWriter, r *http.Request) error {
	c, err := r.Cookie(IDCookieName)
	if err != nil || c.Value == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(r.Context(), redisOpTimeout)
	defer cancel()

	if err := s.client.Del(ctx, s.key(c.Value)).Err(); err != nil {
		return fmt.Errorf("reset anonymous counter: %w", err)
	}
	clearCookie(w, IDCookieName, s.secure)
	return nil
}
