package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChatLimiter_Allow(t *testing.T) {
	limiter := NewChatLimiter(10*time.Second, 2)
	base := time.Now()

	assert.True(t, limiter.Allow("conn1", base))
	assert.True(t, limiter.Allow("conn1", base.Add(time.Second)))
	assert.False(t, limiter.Allow("conn1", base.Add(2*time.Second)))
}

func TestChatLimiter_Allow_windowExpires(t *testing.T) {
	limiter := NewChatLimiter(10*time.Second, 1)
	base := time.Now()

	assert.True(t, limiter.Allow("conn1", base))
	assert.False(t, limiter.Allow("conn1", base.Add(time.Second)))
	assert.True(t, limiter.Allow("conn1", base.Add(11*time.Second)))
}

func TestChatLimiter_Allow_separateConnections(t *testing.T) {
	limiter := NewChatLimiter(10*time.Second, 1)
	base := time.Now()

	assert.True(t, limiter.Allow("conn1", base))
	assert.True(t, limiter.Allow("conn2", base))
}

func TestChatLimiter_Allow_emptyConnectionId(t *testing.T) {
	limiter := NewChatLimiter(10*time.Second, 5)
	assert.False(t, limiter.Allow("", time.Now()))
}

func TestChatLimiter_Clear(t *testing.T) {
	limiter := NewChatLimiter(10*time.Second, 1)
	base := time.Now()

	assert.True(t, limiter.Allow("conn1", base))
	assert.False(t, limiter.Allow("conn1", base.Add(time.Second)))

	limiter.Clear("conn1")
	assert.True(t, limiter.Allow("conn1", base.Add(2*time.Second)))
}
