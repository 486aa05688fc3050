package incentive

import (
	"context"
	"encoding/json"

	taskname "turnover-rewards/pkg/asynq"

	"github.com/hibiken/asynq"
)

func RegisterTaskHandlers(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(taskname.ClaimSyncTask, svc.HandleClaimSync)
	mux.HandleFunc(taskname.AvgLevelSweepTask, svc.HandleSweep)
}

func (s *Service) HandleClaimSync(ctx context.Context, t *asynq.Task) error {
	var payload taskname.ClaimSyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}

	return s.SyncClaim(ctx, payload.ClaimID)
}

func (s *Service) HandleSweep(ctx context.Context, t *asynq.Task) error {
	return s.SyncAll(ctx)
}
