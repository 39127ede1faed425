package taskstate

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvestguard/ingestcore/internal/apperr"
	"github.com/harvestguard/ingestcore/internal/cache"
)

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return cache.NewWithClient(client, nil)
}

func TestBeginStartsPending(t *testing.T) {
	s := NewStore(newTestCache(t))
	taskID, err := s.Begin(context.Background(), "weather.submit")
	require.NoError(t, err)

	state, err := s.Get(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, state.Status)
	assert.Equal(t, "weather.submit", state.Kind)
}

func TestCompleteTransitionsStatus(t *testing.T) {
	s := NewStore(newTestCache(t))
	taskID, err := s.Begin(context.Background(), "weather.submit")
	require.NoError(t, err)

	require.NoError(t, s.Complete(context.Background(), taskID))

	state, err := s.Get(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, state.Status)
}

func TestFailRecordsReason(t *testing.T) {
	s := NewStore(newTestCache(t))
	taskID, err := s.Begin(context.Background(), "weather.submit")
	require.NoError(t, err)

	require.NoError(t, s.Fail(context.Background(), taskID, "no stations nearby"))

	state, err := s.Get(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, state.Status)
	assert.Equal(t, "no stations nearby", state.Reason)
}

func TestGetUnknownTaskIsInsufficientData(t *testing.T) {
	s := NewStore(newTestCache(t))
	_, err := s.Get(context.Background(), "does-not-exist")
	require.Error(t, err)
	assert.Equal(t, apperr.InsufficientData, apperr.KindOf(err))
}
