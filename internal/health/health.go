// Package health implements the /health and /health/detailed checks named
// in §6: component-by-component pings plus a sliding-window error counter
// used to decide whether to raise an alert.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Status is the payload returned by /health/detailed.
type Status struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Version    string            `json:"version"`
	Uptime     time.Duration     `json:"uptime"`
	Components map[string]string `json:"components"`
	ErrorCount int               `json:"error_count"`
}

// Checker pings the storage adapter, cache and scheduler to decide whether
// the process is healthy.
type Checker struct {
	db            *gorm.DB
	redis         *redis.Client
	logger        *zap.Logger
	version       string
	startTime     time.Time
	schedulerFunc func() bool
	errorCounter  *ErrorCounter
}

// ErrorCounter tracks recent errors in a sliding time window, used to decide
// whether the error rate warrants an alert.
type ErrorCounter struct {
	mu      sync.RWMutex
	errors  []time.Time
	window  time.Duration
	maxRate int
}

// NewErrorCounter builds a counter over the given window with the given
// errors-per-minute alert threshold.
func NewErrorCounter(window time.Duration, maxRate int) *ErrorCounter {
	return &ErrorCounter{
		errors:  make([]time.Time, 0),
		window:  window,
		maxRate: maxRate,
	}
}

// Add records one error occurrence.
func (ec *ErrorCounter) Add() {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	now := time.Now()
	ec.errors = append(ec.errors, now)
	ec.cleanup(now)
}

// Count returns the number of errors currently inside the window.
func (ec *ErrorCounter) Count() int {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	ec.cleanup(time.Now())
	return len(ec.errors)
}

func (ec *ErrorCounter) cleanup(now time.Time) {
	cutoff := now.Add(-ec.window)
	valid := make([]time.Time, 0, len(ec.errors))
	for _, t := range ec.errors {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	ec.errors = valid
}

// ShouldAlert reports whether the current error rate exceeds the threshold.
func (ec *ErrorCounter) ShouldAlert() bool {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	if len(ec.errors) == 0 {
		return false
	}
	perMinute := float64(len(ec.errors)) / ec.window.Minutes()
	return int(perMinute) > ec.maxRate
}

// NewChecker builds a Checker. schedulerFunc reports whether the scheduler's
// worker pool is currently running.
func NewChecker(db *gorm.DB, redisClient *redis.Client, logger *zap.Logger, version string, schedulerFunc func() bool) *Checker {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Checker{
		db:            db,
		redis:         redisClient,
		logger:        logger,
		version:       version,
		startTime:     time.Now(),
		schedulerFunc: schedulerFunc,
		errorCounter:  NewErrorCounter(5*time.Minute, 10),
	}
}

// RecordError feeds one failure into the sliding-window counter and warns
// when the rate crosses the alert threshold.
func (h *Checker) RecordError() {
	h.errorCounter.Add()
	if h.errorCounter.ShouldAlert() {
		h.logger.Warn("high error rate detected",
			zap.Int("error_count", h.errorCounter.Count()),
			zap.Duration("window", 5*time.Minute))
	}
}

// Check pings every component and reports the aggregate status.
func (h *Checker) Check(ctx context.Context) *Status {
	components := make(map[string]string)
	healthy := true

	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err != nil {
			components["storage"] = "error: " + err.Error()
			healthy = false
		} else if err := sqlDB.PingContext(ctx); err != nil {
			components["storage"] = "error: " + err.Error()
			healthy = false
		} else {
			components["storage"] = "ok"
		}
	} else {
		components["storage"] = "not_configured"
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			components["cache"] = "error: " + err.Error()
			healthy = false
		} else {
			components["cache"] = "ok"
		}
	} else {
		components["cache"] = "not_configured"
	}

	if h.schedulerFunc != nil {
		if h.schedulerFunc() {
			components["scheduler"] = "running"
		} else {
			components["scheduler"] = "stopped"
			healthy = false
		}
	} else {
		components["scheduler"] = "not_configured"
	}

	status := "ok"
	if !healthy {
		status = "error"
	}

	return &Status{
		Status:     status,
		Timestamp:  time.Now(),
		Version:    h.version,
		Uptime:     time.Since(h.startTime),
		Components: components,
		ErrorCount: h.errorCounter.Count(),
	}
}

// Handler adapts Check to net/http for the metrics-server mux and for the
// plain /health liveness probe.
func (h *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := h.Check(ctx)
		w.Header().Set("Content-Type", "application/json")
		if status.Status == "ok" {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			h.logger.Error("failed to encode health status", zap.Error(err))
		}
	}
}
