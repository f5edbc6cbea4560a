package rediskey

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	require.Equal(t, "payout:batch:lock:weekly_2026-10-19_x", BuildPayoutBatchLockKey("weekly_2026-10-19_x"))
	require.Equal(t, "payout:batch:lock:running", BuildPayoutBatchRunningKey())
	require.Equal(t, "payout:account:ready:acct_1", BuildAccountReadyKey("acct_1"))
}
