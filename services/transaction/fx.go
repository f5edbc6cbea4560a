package transaction

import "go.uber.org/fx"

var Module = fx.Module("transaction.service",
	fx.Provide(NewService),
)

var HTTP = fx.Module("transaction.http",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
