package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestNewIPRateLimiter(t *testing.T) {
	logger := testLogger()
	r := rate.Limit(10)
	b := 5
	limiter := NewIPRateLimiter(r, b, logger)

	assert.NotNil(t, limiter)
	assert.Equal(t, r, limiter.r)
	assert.Equal(t, b, limiter.b)
	assert.Equal(t, logger, limiter.logger)
	assert.NotNil(t, limiter.ips)
}

func TestIPRateLimiter_GetLimiter(t *testing.T) {
	limiter := NewIPRateLimiter(rate.Limit(10), 5, testLogger())
	ip := "192.168.1.1"

	l1 := limiter.GetLimiter(ip)
	assert.NotNil(t, l1)
	assert.Equal(t, rate.Limit(10), l1.Limit())
	assert.Equal(t, 5, l1.Burst())

	// Same IP, same limiter
	l2 := limiter.GetLimiter(ip)
	assert.Same(t, l1, l2)

	l3 := limiter.GetLimiter("1.1.1.1")
	assert.NotSame(t, l1, l3)
}

func TestIPRateLimiter_Allow(t *testing.T) {
	limiter := NewIPRateLimiter(rate.Limit(0.001), 2, testLogger())

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.2"), "limits are per IP")
}

func TestIPRateLimiter_StartCleanup(t *testing.T) {
	limiter := NewIPRateLimiter(rate.Limit(1), 1, testLogger())

	for i := 0; i <= maxTrackedIPs; i++ {
		limiter.GetLimiter(fmt.Sprintf("ip-%d", i))
	}
	assert.Len(t, limiter.ips, maxTrackedIPs+1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limiter.StartCleanup(ctx, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		limiter.mu.Lock()
		defer limiter.mu.Unlock()
		return len(limiter.ips) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestIPRateLimiter_CleanupKeepsSmallMap(t *testing.T) {
	limiter := NewIPRateLimiter(rate.Limit(1), 1, testLogger())
	limiter.GetLimiter("127.0.0.1")

	limiter.cleanup()
	assert.Len(t, limiter.ips, 1)
}
