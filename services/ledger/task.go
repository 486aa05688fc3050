package ledger

import (
	"context"
	"encoding/json"

	taskname "turnover-rewards/pkg/asynq"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

// Worker registers the chain verification handler; only the worker binary
// includes it.
var Worker = fx.Module("ledger.worker",
	fx.Invoke(RegisterTaskHandlers),
)

func RegisterTaskHandlers(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(taskname.LedgerVerifyTask, svc.HandleVerify)
}

func (s *Service) HandleVerify(ctx context.Context, t *asynq.Task) error {
	var payload taskname.LedgerVerifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}

	if payload.UserID != 0 {
		return s.VerifyChain(ctx, payload.UserID)
	}
	return s.VerifyAllChains(ctx)
}
