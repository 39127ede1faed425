package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Trigger binds a cron schedule to the enqueue call it should perform
// (§4.5's periodic table). Fire is handed the firing time so fan-out tasks
// can stamp a stable dedup key from it.
type Trigger struct {
	Name     string
	Schedule string
	Fire     func(ctx context.Context, firedAt time.Time) error
}

// Cron wraps robfig/cron with the same ticking role the teacher's
// time.Ticker loop played, but table-driven across many named triggers
// instead of one fixed interval.
type Cron struct {
	inner  *cron.Cron
	logger *zap.Logger
}

// NewCron builds a Cron using 6-field expressions with a required leading
// seconds field, matching robfig/cron's WithSeconds parser.
func NewCron(logger *zap.Logger) *Cron {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Cron{
		inner:  cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
		logger: logger,
	}
}

// Register adds every trigger to the schedule. A trigger whose expression
// fails to parse is logged and skipped rather than aborting the rest.
func (c *Cron) Register(triggers ...Trigger) {
	for _, t := range triggers {
		trigger := t
		_, err := c.inner.AddFunc(trigger.Schedule, func() {
			firedAt := time.Now().UTC()
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := trigger.Fire(ctx, firedAt); err != nil {
				c.logger.Error("cron trigger failed to enqueue",
					zap.String("trigger", trigger.Name), zap.Error(err))
			}
		})
		if err != nil {
			c.logger.Error("invalid cron schedule, trigger disabled",
				zap.String("trigger", trigger.Name),
				zap.String("schedule", trigger.Schedule),
				zap.Error(err))
		}
	}
}

// Start begins firing registered triggers. Non-blocking; robfig/cron runs its
// own goroutine.
func (c *Cron) Start() { c.inner.Start() }

// Stop halts the schedule and waits for any in-flight Fire calls to return.
func (c *Cron) Stop() {
	ctx := c.inner.Stop()
	<-ctx.Done()
}
