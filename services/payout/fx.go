package payout

import "go.uber.org/fx"

var Module = fx.Module("payout.service",
	fx.Provide(NewService),
)

var HTTP = fx.Module("payout.http",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)

var Worker = fx.Module("payout.worker",
	fx.Provide(NewTaskHandler, NewRetryPolicy),
	fx.Invoke(RegisterTaskHandlers),
)

var Health = fx.Module("payout.health",
	fx.Provide(NewHealthServer),
	fx.Invoke(RegisterHealthServer),
)
