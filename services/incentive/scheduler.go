package incentive

import (
	"context"
	"time"

	taskname "turnover-rewards/pkg/asynq"
	"turnover-rewards/pkg/config"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Scheduler struct {
	cfg    *config.Config
	client *asynq.Client
}

func NewScheduler(cfg *config.Config, client *asynq.Client) *Scheduler {
	return &Scheduler{cfg: cfg, client: client}
}

func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go s.run(ctx)
			return nil
		},
	})
}

// run enqueues the full re-sync sweep once a night at the configured hour.
func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started incentive sweep scheduler")

	for {
		now := time.Now()
		next := nextRunTime(now, s.cfg.Program.SweepHour, 0)

		sleepDuration := next.Sub(now)
		zap.L().Info("[Scheduler] next sweep scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", sleepDuration),
		)

		select {
		case <-time.After(sleepDuration):
			s.enqueueSweep()
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) enqueueSweep() {
	task := asynq.NewTask(taskname.AvgLevelSweepTask, nil)
	info, err := s.client.Enqueue(task, asynq.Queue("low"))
	if err != nil {
		zap.L().Error("[Scheduler] failed to enqueue sweep", zap.Error(err))
		return
	}

	zap.L().Info("[Scheduler] sweep enqueued", zap.String("task_id", info.ID))
}

func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.After(next) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
