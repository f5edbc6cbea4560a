package wallet

import "go.uber.org/fx"

var Module = fx.Module("wallet.service",
	fx.Provide(NewService),
)

// HTTP adds the wallet routes. Worker processes use Module alone.
var HTTP = fx.Module("wallet.http",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
