package rating

import "go.uber.org/fx"

var Module = fx.Module("rating.service",
	fx.Provide(NewService),
)

// Worker registers the snapshot handler; only the worker binary includes it.
var Worker = fx.Module("rating.worker",
	fx.Provide(NewScheduler),
	fx.Invoke(RegisterTaskHandlers, StartScheduler),
)
