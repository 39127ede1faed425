package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestClientLimiterWaitBlocksUntilRefill(t *testing.T) {
	cl := NewClientLimiter(60, 1) // 1 token/sec refill, burst 1

	ctx := context.Background()
	assert.NoError(t, cl.Wait(ctx))

	start := time.Now()
	assert.NoError(t, cl.Wait(ctx))
	assert.True(t, time.Since(start) > 0)
}

func TestClientLimiterDeadlineExceeded(t *testing.T) {
	cl := NewClientLimiter(1, 1) // very slow refill

	ctx := context.Background()
	require_ := cl.Wait(ctx)
	assert.NoError(t, require_)

	tight, cancel := context.WithTimeout(ctx, 5*time.Millisecond)
	defer cancel()
	assert.Error(t, cl.Wait(tight))
}

func TestKeyedLimiterPerKeyIsolation(t *testing.T) {
	logger, _ := zap.NewProduction()
	kl := NewKeyedLimiter(1, 1, logger)
	defer kl.Close()

	assert.True(t, kl.Allow("plot-a"))
	assert.False(t, kl.Allow("plot-a"))
	assert.True(t, kl.Allow("plot-b"))
}
