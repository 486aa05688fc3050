package rating

import (
	"context"
	"encoding/json"
	"time"

	taskname "turnover-rewards/pkg/asynq"

	"github.com/hibiken/asynq"
)

func RegisterTaskHandlers(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(taskname.RatingSnapshotTask, svc.HandleSnapshot)
}

func (s *Service) HandleSnapshot(ctx context.Context, t *asynq.Task) error {
	var payload taskname.RatingSnapshotPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}

	return s.Snapshot(ctx, payload.Year, time.Month(payload.Month))
}
