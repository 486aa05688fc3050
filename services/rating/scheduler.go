package rating

import (
	"context"
	"encoding/json"
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

// run enqueues a snapshot of the previous month once a day. Snapshot writes
// are skip-if-exists, so only the first run after month end does work.
func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started rating snapshot scheduler")

	for {
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), s.cfg.Program.SweepHour, 30, 0, 0, now.Location())
		if now.After(next) {
			next = next.Add(24 * time.Hour)
		}

		select {
		case <-time.After(next.Sub(now)):
			s.enqueueSnapshot()
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) enqueueSnapshot() {
	now := time.Now()
	prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	payload, err := json.Marshal(taskname.RatingSnapshotPayload{
		Year:  prev.Year(),
		Month: int(prev.Month()),
	})
	if err != nil {
		zap.L().Error("[Scheduler] failed to marshal snapshot payload", zap.Error(err))
		return
	}

	task := asynq.NewTask(taskname.RatingSnapshotTask, payload)
	info, err := s.client.Enqueue(task, asynq.Queue("low"))
	if err != nil {
		zap.L().Error("[Scheduler] failed to enqueue snapshot", zap.Error(err))
		return
	}

	zap.L().Info("[Scheduler] snapshot enqueued", zap.String("task_id", info.ID))
}
