// Package scheduler implements the periodic trigger table and the bounded
// worker pool that drives it (§4.5): named queues with per-queue
// concurrency, idempotency/dedup via a lease in the shared cache,
// per-kind retry policy with backoff+jitter, and poison-task quarantine.
// Grounded on the teacher's features/weather/scheduler/scheduler.go
// WaitGroup + ticker + graceful-Stop idiom, generalized from one
// weather-specific ticker loop into many named queues each with their own
// worker pool, and on aristath-sentinel's internal/scheduler/scheduler.go
// for the cron-table wrapper in cron.go.
package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/harvestguard/ingestcore/internal/apperr"
	"github.com/harvestguard/ingestcore/internal/metrics"
)

// Queue is one of the named queues each task kind is statically assigned to.
type Queue string

const (
	QueueDefault Queue = "default"
	QueueWeather Queue = "weather"
	QueuePlanet  Queue = "planet"
	QueueDamage  Queue = "damage"
)

// TaskFunc executes one task instance. It must return an *apperr.Error (via
// apperr.New/Wrap) so the pool can decide retry vs quarantine; any other
// error is treated as Fatal.
type TaskFunc func(ctx context.Context, job *Job) error

// TaskSpec statically binds a task kind to its queue and execution policy.
type TaskSpec struct {
	Kind        string
	Queue       Queue
	MaxAttempts int
	BaseBackoff time.Duration
	DedupWindow time.Duration
	SoftLimit   time.Duration
	HardLimit   time.Duration
	Run         TaskFunc
}

// Job is one in-flight work item (§3 ScheduledJob).
type Job struct {
	Kind       string
	DedupKey   string
	Payload    map[string]string
	Attempt    int
	EnqueuedAt time.Time
}

// QuarantineRecord is what gets written when a task exhausts its retry
// budget (§4.5: "a row is written with status failed and the original
// payload... not retried automatically").
type QuarantineRecord struct {
	Kind    string
	Payload map[string]string
	Reason  string
}

// QuarantineStore persists poison tasks. Implemented by the scheduled-job
// repository backed by the time-series/relational adapter.
type QuarantineStore interface {
	Quarantine(ctx context.Context, rec QuarantineRecord) error
}

// DedupGate is the best-effort lease primitive the cache adapter provides.
type DedupGate interface {
	AcquireLease(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

const defaultDedupWindow = time.Minute

// Pool is the bounded worker pool over named queues.
type Pool struct {
	logger     *zap.Logger
	dedup      DedupGate
	quarantine QuarantineStore

	mu      sync.Mutex
	specs   map[string]TaskSpec
	queues  map[Queue]chan *Job
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New builds an empty Pool. Call Register for every task kind, then
// StartWorkers to spin up the per-queue goroutines.
func New(dedup DedupGate, quarantine QuarantineStore, logger *zap.Logger) *Pool {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Pool{
		logger:     logger,
		dedup:      dedup,
		quarantine: quarantine,
		specs:      make(map[string]TaskSpec),
		queues:     make(map[Queue]chan *Job),
	}
}

// Register binds a task kind to its execution policy. Must be called before
// StartWorkers.
func (p *Pool) Register(spec TaskSpec) {
	if spec.MaxAttempts <= 0 {
		spec.MaxAttempts = 3
	}
	if spec.BaseBackoff <= 0 {
		spec.BaseBackoff = 5 * time.Second
	}
	if spec.DedupWindow <= 0 {
		spec.DedupWindow = defaultDedupWindow
	}
	if spec.HardLimit <= 0 {
		spec.HardLimit = 2 * time.Minute
	}
	if spec.SoftLimit <= 0 || spec.SoftLimit > spec.HardLimit {
		spec.SoftLimit = spec.HardLimit
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.specs[spec.Kind] = spec
	if _, ok := p.queues[spec.Queue]; !ok {
		p.queues[spec.Queue] = make(chan *Job)
	}
}

// StartWorkers spawns concurrency[queue] worker goroutines per queue. Queues
// with no configured concurrency default to 1.
func (p *Pool) StartWorkers(concurrency map[Queue]int) {
	p.mu.Lock()
	p.running = true
	p.stopCh = make(chan struct{})
	queues := p.queues
	p.mu.Unlock()

	for queue, ch := range queues {
		n := concurrency[queue]
		if n <= 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			p.wg.Add(1)
			go p.worker(queue, ch)
		}
	}
}

// Running reports whether the pool currently has worker goroutines up; used
// by the health checker's schedulerFunc.
func (p *Pool) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Pool) worker(queue Queue, ch chan *Job) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case job := <-ch:
			metrics.SetQueueDepth(string(queue), len(ch))
			p.execute(job)
		}
	}
}

// Enqueue submits a new logical job occurrence. Within DedupWindow, a
// second enqueue of the same (kind, dedupKey) is absorbed as a no-op (P6).
// Enqueue blocks if the queue is saturated — there is no unbounded in-memory
// queue (§5 Backpressure); callers should enqueue from a context that can be
// cancelled.
func (p *Pool) Enqueue(ctx context.Context, kind, dedupKey string, payload map[string]string) error {
	p.mu.Lock()
	spec, ok := p.specs[kind]
	queue := p.queues[spec.Queue]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown task kind %q", kind)
	}

	leaseKey := fmt.Sprintf("dedup:%s:%s", kind, dedupKey)
	acquired, err := p.dedup.AcquireLease(ctx, leaseKey, spec.DedupWindow)
	if err != nil {
		return fmt.Errorf("scheduler: dedup gate: %w", err)
	}
	if !acquired {
		metrics.RecordDedupAbsorbed(kind)
		return nil
	}

	job := &Job{Kind: kind, DedupKey: dedupKey, Payload: payload, Attempt: 1, EnqueuedAt: time.Now()}
	select {
	case queue <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resubmit pushes a job back onto its queue without a dedup check, used for
// cancellation re-enqueue and retry backoff.
func (p *Pool) resubmit(job *Job, spec TaskSpec, delay time.Duration) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-p.stopCh:
			return
		case <-timer.C:
		}
		p.mu.Lock()
		ch, ok := p.queues[spec.Queue]
		p.mu.Unlock()
		if !ok {
			return
		}
		select {
		case ch <- job:
		case <-p.stopCh:
		}
	}()
}

func (p *Pool) execute(job *Job) {
	p.mu.Lock()
	spec := p.specs[job.Kind]
	p.mu.Unlock()

	start := time.Now()
	hardCtx, cancelHard := context.WithTimeout(context.Background(), spec.HardLimit)
	defer cancelHard()

	softCtx, cancelSoft := context.WithCancel(hardCtx)
	softTimer := time.AfterFunc(spec.SoftLimit, cancelSoft)
	defer softTimer.Stop()

	err := spec.Run(softCtx, job)
	duration := time.Since(start)

	if err == nil {
		metrics.RecordTaskExecution(job.Kind, string(spec.Queue), "success", duration)
		return
	}

	kind := apperr.KindOf(err)

	switch kind {
	case apperr.Cancelled:
		metrics.RecordTaskExecution(job.Kind, string(spec.Queue), "cancelled", duration)
		p.resubmit(job, spec, 0)
		return
	case apperr.Conflict:
		metrics.RecordTaskExecution(job.Kind, string(spec.Queue), "conflict", duration)
		return
	case apperr.InsufficientData:
		metrics.RecordTaskExecution(job.Kind, string(spec.Queue), "insufficient_data", duration)
		p.logger.Debug("task produced no derived row",
			zap.String("kind", job.Kind), zap.Error(err))
		return
	case apperr.Transient, apperr.RateLimited:
		if job.Attempt < spec.MaxAttempts {
			metrics.RecordTaskExecution(job.Kind, string(spec.Queue), "retrying", duration)
			job.Attempt++
			p.resubmit(job, spec, backoffWithJitter(spec.BaseBackoff, job.Attempt))
			return
		}
	case apperr.Fatal:
		p.logger.Error("task raised a fatal invariant violation",
			zap.String("kind", job.Kind), zap.Error(err))
	}

	metrics.RecordTaskExecution(job.Kind, string(spec.Queue), "quarantined", duration)
	metrics.RecordTaskQuarantined(job.Kind)
	qctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if qerr := p.quarantine.Quarantine(qctx, QuarantineRecord{
		Kind:    job.Kind,
		Payload: job.Payload,
		Reason:  err.Error(),
	}); qerr != nil {
		p.logger.Error("failed to write quarantine record",
			zap.String("kind", job.Kind), zap.Error(qerr))
	}
}

func backoffWithJitter(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	jitter := time.Duration(rand.Int63n(int64(base)))
	return d + jitter
}

// Stop signals every worker to finish its current job and exit, waiting up
// to timeout for them to drain.
func (p *Pool) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("scheduler: stop timed out after %s", timeout)
	}
}
