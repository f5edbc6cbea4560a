package featureflags

import (
	"context"

	"creatorpay/pkg/config"

	"github.com/Flagsmith/flagsmith-go-client/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("featureflags", fx.Provide(ProvideFeatureFlag))

// PayoutBatch gates the scheduled payout batch.
const PayoutBatch = "payout_batch"

type FeatureFlag interface {
	Flags(ctx context.Context, identifier string, traits ...*flagsmith.Trait) (flagsmith.Flags, error)
	// Enabled returns def when flagsmith is not configured or unreachable.
	Enabled(ctx context.Context, identifier, flag string, def bool) bool
}

type featureflag struct {
	client *flagsmith.Client
}

type FeatureParams struct {
	fx.In
	Config *config.Config
}

func ProvideFeatureFlag(p FeatureParams) FeatureFlag {
	if p.Config.Flagsmith.ApiKey == "" {
		return &featureflag{}
	}

	opts := []flagsmith.Option{
		flagsmith.WithAnalytics(),
	}
	if p.Config.Flagsmith.Addr != "" {
		opts = append(opts, flagsmith.WithBaseURL(p.Config.Flagsmith.Addr))
	}

	return &featureflag{
		client: flagsmith.NewClient(p.Config.Flagsmith.ApiKey, opts...),
	}
}

func (s *featureflag) Flags(ctx context.Context, identifier string, traits ...*flagsmith.Trait) (flagsmith.Flags, error) {
	if identifier == "" {
		return s.client.GetEnvironmentFlags()
	}
	return s.client.GetIdentityFlags(identifier, traits)
}

func (s *featureflag) Enabled(ctx context.Context, identifier, flag string, def bool) bool {
	if s.client == nil {
		return def
	}

	flags, err := s.Flags(ctx, identifier)
	if err != nil {
		zap.L().Warn("failed to fetch feature flags", zap.String("flag", flag), zap.Error(err))
		return def
	}

	enabled, err := flags.IsFeatureEnabled(flag)
	if err != nil {
		return def
	}
	return enabled
}

// Static is a FeatureFlag with fixed answers, used where flagsmith is not wired.
type Static map[string]bool

func (s Static) Flags(ctx context.Context, identifier string, traits ...*flagsmith.Trait) (flagsmith.Flags, error) {
	return flagsmith.Flags{}, nil
}

func (s Static) Enabled(ctx context.Context, identifier, flag string, def bool) bool {
	if v, ok := s[flag]; ok {
		return v
	}
	return def
}
