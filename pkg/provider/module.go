package provider

import (
	"creatorpay/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// Module provides the readiness Verifier. A Provider must be supplied by one
// of the implementation modules.
var Module = fx.Module("provider",
	fx.Provide(
		fx.Annotate(newVerifier, fx.As(new(Verifier))),
	),
)

type verifierParams struct {
	fx.In
	Config   *config.Config
	Provider Provider
	Redis    *redis.Client `optional:"true"`
}

func newVerifier(p verifierParams) *CachedVerifier {
	if p.Redis == nil {
		return NewCachedVerifier(p.Provider, nil, 0)
	}
	return NewCachedVerifier(p.Provider, p.Redis, p.Config.Stripe.ReadinessCacheTTL)
}
