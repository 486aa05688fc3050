package turnover

import "go.uber.org/fx"

var Module = fx.Module("turnover.service",
	fx.Provide(NewService),
)
