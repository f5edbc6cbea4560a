package migrate

import (
	"testing"

	"creatorpay/pkg/config"
	"creatorpay/services/payout"
	"creatorpay/services/reward"
	"creatorpay/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestRunCreatesEveryTable(t *testing.T) {
	conn := testutil.NewTestDB(t)
	cfg := config.Default()
	cfg.Database.AutoMigrate = true

	require.NoError(t, Run(cfg, conn))
	for _, m := range Models() {
		require.True(t, conn.Migrator().HasTable(m), "%T", m)
	}
	require.True(t, conn.Migrator().HasIndex(&payout.Payout{}, "idx_payouts_open_user"))
	require.True(t, conn.Migrator().HasIndex(&reward.VideoReward{}, "idx_video_rewards_active"))

	// a second start finds everything in place
	require.NoError(t, Run(cfg, conn))
}

func TestRunDisabled(t *testing.T) {
	conn := testutil.NewTestDB(t)
	require.NoError(t, Run(config.Default(), conn))
	require.False(t, conn.Migrator().HasTable(&payout.Payout{}))
}
