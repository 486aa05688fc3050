package incentive

import (
	"turnover-rewards/services/claim"
	"turnover-rewards/services/dispute"

	"go.uber.org/fx"
)

var Module = fx.Module("incentive.service",
	fx.Provide(
		NewService,
		func(s *Service) claim.Syncer { return s },
		func(s *Service) dispute.Syncer { return s },
	),
)

// Worker registers the asynq handlers; only the worker binary includes it.
var Worker = fx.Module("incentive.worker",
	fx.Provide(NewScheduler),
	fx.Invoke(RegisterTaskHandlers, StartScheduler),
)
