package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvestguard/ingestcore/internal/apperr"
)

type fakeDedup struct {
	mu    sync.Mutex
	held  map[string]bool
	erron bool
}

func newFakeDedup() *fakeDedup { return &fakeDedup{held: make(map[string]bool)} }

func (f *fakeDedup) AcquireLease(_ context.Context, key string, _ time.Duration) (bool, error) {
	if f.erron {
		return false, errors.New("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] {
		return false, nil
	}
	f.held[key] = true
	return true, nil
}

type fakeQuarantine struct {
	mu      sync.Mutex
	records []QuarantineRecord
}

func (f *fakeQuarantine) Quarantine(_ context.Context, rec QuarantineRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeQuarantine) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func TestEnqueueRunsTaskSuccessfully(t *testing.T) {
	dedup := newFakeDedup()
	quarantine := &fakeQuarantine{}
	p := New(dedup, quarantine, nil)

	done := make(chan struct{}, 1)
	p.Register(TaskSpec{
		Kind:  "ping",
		Queue: QueueDefault,
		Run: func(ctx context.Context, job *Job) error {
			done <- struct{}{}
			return nil
		},
	})
	p.StartWorkers(map[Queue]int{QueueDefault: 1})
	defer p.Stop(time.Second)

	require.NoError(t, p.Enqueue(context.Background(), "ping", "k1", nil))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
}

func TestEnqueueAbsorbsDuplicateWithinWindow(t *testing.T) {
	dedup := newFakeDedup()
	quarantine := &fakeQuarantine{}
	p := New(dedup, quarantine, nil)

	var calls int32
	var mu sync.Mutex
	p.Register(TaskSpec{
		Kind:  "sweep",
		Queue: QueueWeather,
		Run: func(ctx context.Context, job *Job) error {
			mu.Lock()
			calls++
			mu.Unlock()
			return nil
		},
	})
	p.StartWorkers(map[Queue]int{QueueWeather: 1})
	defer p.Stop(time.Second)

	require.NoError(t, p.Enqueue(context.Background(), "sweep", "plot-1", nil))
	require.NoError(t, p.Enqueue(context.Background(), "sweep", "plot-1", nil))

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, int32(1), calls)
	mu.Unlock()
}

func TestExhaustedRetriesAreQuarantined(t *testing.T) {
	dedup := newFakeDedup()
	quarantine := &fakeQuarantine{}
	p := New(dedup, quarantine, nil)

	p.Register(TaskSpec{
		Kind:        "flaky",
		Queue:       QueueDamage,
		MaxAttempts: 2,
		BaseBackoff: 10 * time.Millisecond,
		Run: func(ctx context.Context, job *Job) error {
			return apperr.New(apperr.Transient, "upstream unavailable")
		},
	})
	p.StartWorkers(map[Queue]int{QueueDamage: 1})
	defer p.Stop(time.Second)

	require.NoError(t, p.Enqueue(context.Background(), "flaky", "job-1", nil))

	require.Eventually(t, func() bool {
		return quarantine.count() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestConflictIsNotRetried(t *testing.T) {
	dedup := newFakeDedup()
	quarantine := &fakeQuarantine{}
	p := New(dedup, quarantine, nil)

	var calls int32
	var mu sync.Mutex
	p.Register(TaskSpec{
		Kind:  "record-outcome",
		Queue: QueueDamage,
		Run: func(ctx context.Context, job *Job) error {
			mu.Lock()
			calls++
			mu.Unlock()
			return apperr.New(apperr.Conflict, "outcome already recorded")
		},
	})
	p.StartWorkers(map[Queue]int{QueueDamage: 1})
	defer p.Stop(time.Second)

	require.NoError(t, p.Enqueue(context.Background(), "record-outcome", "assessment-1", nil))
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, int32(1), calls)
	mu.Unlock()
	assert.Equal(t, 0, quarantine.count())
}

func TestStopIsIdempotentAndDrains(t *testing.T) {
	p := New(newFakeDedup(), &fakeQuarantine{}, nil)
	p.Register(TaskSpec{Kind: "noop", Queue: QueueDefault, Run: func(ctx context.Context, job *Job) error { return nil }})
	p.StartWorkers(map[Queue]int{QueueDefault: 1})

	require.NoError(t, p.Stop(time.Second))
	require.NoError(t, p.Stop(time.Second))
}
