package reward

import "go.uber.org/fx"

var Module = fx.Module("reward.service",
	fx.Provide(NewService),
)

var HTTP = fx.Module("reward.http",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
