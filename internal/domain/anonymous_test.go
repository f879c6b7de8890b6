package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAnonymousCounter_CheckAndIncrement_LifetimeLimit(t *testing.T) {
	var c AnonymousCounter

	for i := 0; i < DefaultAnonymousLimit; i++ {
		allowed, next := c.CheckAndIncrement(DefaultAnonymousLimit)
		assert.True(t, allowed, "request %d should be allowed", i+1)
		assert.Equal(t, c.Count+1, next.Count)
		c = next
	}
	assert.Equal(t, DefaultAnonymousLimit, c.Count)

	allowed, next := c.CheckAndIncrement(DefaultAnonymousLimit)
	assert.False(t, allowed)
	assert.Equal(t, c, next, "denied check must not change state")
}

func TestAnonymousCounter_NegativeCountStartsAtZero(t *testing.T) {
	allowed, next := AnonymousCounter{Count: -5}.CheckAndIncrement(1)
	assert.True(t, allowed)
	assert.Equal(t, 1, next.Count)
}

func TestAnonymousCounter_Expired(t *testing.T) {
	now := time.Now()
	assert.False(t, AnonymousCounter{}.Expired(now))
	assert.False(t, AnonymousCounter{ExpiresAt: now.Add(time.Minute)}.Expired(now))
	assert.True(t, AnonymousCounter{ExpiresAt: now}.Expired(now))
}

func TestAnonymousCounter_Remaining(t *testing.T) {
	assert.Equal(t, 20, AnonymousCounter{}.Remaining(20))
	assert.Equal(t, 0, AnonymousCounter{Count: 25}.Remaining(20))
}
