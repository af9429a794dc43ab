package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Task is one housekeeping step. Run reports how many entries it removed.
type Task struct {
	Name string
	Run  func(ctx context.Context) (int, error)
}

// Janitor runs housekeeping tasks on a cron schedule: expired session-scoped
// blobs, idle workspaces, revoked refresh tokens and stale rate limiters.
type Janitor struct {
	tasks   []Task
	timeout time.Duration
	logger  *zap.Logger
	cron    *cron.Cron
}

// New creates a janitor. Each run gets timeout to finish all tasks.
func New(timeout time.Duration, logger *zap.Logger, tasks ...Task) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{
		tasks:   tasks,
		timeout: timeout,
		logger:  logger,
		cron:    cron.New(),
	}
}

// RunOnce runs every task in order. A failing task is logged and does not
// stop the rest. It returns the total number of removed entries.
func (j *Janitor) RunOnce(ctx context.Context) int {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	total := 0
	for _, t := range j.tasks {
		n, err := t.Run(ctx)
		if err != nil {
			j.logger.Warn("maintenance task failed", zap.String("task", t.Name), zap.Error(err))
			continue
		}
		if n > 0 {
			j.logger.Info("maintenance task", zap.String("task", t.Name), zap.Int("removed", n))
		}
		total += n
	}
	return total
}

// Start schedules RunOnce on schedule (standard cron syntax or "@every 15m")
// and starts the scheduler.
func (j *Janitor) Start(schedule string) error {
	if _, err := j.cron.AddFunc(schedule, func() { j.RunOnce(context.Background()) }); err != nil {
		return fmt.Errorf("schedule %q: %w", schedule, err)
	}
	j.cron.Start()
	j.logger.Info("maintenance scheduled", zap.String("schedule", schedule), zap.Int("tasks", len(j.tasks)))
	return nil
}

// Stop stops the scheduler and waits for a running pass to finish or ctx to end.
func (j *Janitor) Stop(ctx context.Context) {
	select {
	case <-j.cron.Stop().Done():
	case <-ctx.Done():
	}
}
