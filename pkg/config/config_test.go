package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.Equal(t, "creatorpay", cfg.AppName)
	require.Equal(t, 0.20, cfg.Monetization.RewardPoolPercentage)
	require.Equal(t, 0.0003, cfg.Monetization.RewardPerView)
	require.Equal(t, 10, cfg.Monetization.MinWatchSeconds)
	require.Equal(t, 30.0, cfg.Monetization.MinWatchPercentage)
	require.Equal(t, 20.0, cfg.Monetization.MinimumPayout)
	require.Equal(t, 3, cfg.Monetization.MaxRetries)
	require.Equal(t, 5*time.Minute, cfg.Monetization.RetryBaseDelay)
	require.Equal(t, time.Minute, cfg.Monetization.QueueBackoffBase)
	require.Equal(t, "Europe/London", cfg.Scheduler.Timezone)
	require.Equal(t, "monday", cfg.Scheduler.Weekday)
	require.Equal(t, 9, cfg.Scheduler.Hour)
	require.Equal(t, "eur", cfg.Stripe.Currency)
}
