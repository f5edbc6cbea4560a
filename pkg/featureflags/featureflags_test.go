package featureflags

import (
	"context"
	"testing"

	"creatorpay/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestEnabledWithoutClientUsesDefault(t *testing.T) {
	ff := ProvideFeatureFlag(FeatureParams{Config: config.Default()})

	require.True(t, ff.Enabled(context.Background(), "", PayoutBatch, true))
	require.False(t, ff.Enabled(context.Background(), "", PayoutBatch, false))
}

func TestStatic(t *testing.T) {
	ff := Static{PayoutBatch: false}

	require.False(t, ff.Enabled(context.Background(), "", PayoutBatch, true))
	require.True(t, ff.Enabled(context.Background(), "", "other", true))
}
