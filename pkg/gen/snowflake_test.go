package gen

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIdempotencyKeyUnique(t *testing.T) {
	now := time.UnixMilli(1760860800000)
	a := IdempotencyKey("42", now)
	b := IdempotencyKey("42", now)

	require.True(t, strings.HasPrefix(a, "payout_42_1760860800000_"))
	require.NotEqual(t, a, b)
}

func TestBatchID(t *testing.T) {
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	require.True(t, strings.HasPrefix(BatchID("weekly", now), "weekly_2026-10-19_"))
}

func TestTransactionCode(t *testing.T) {
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	code := TransactionCode(now)
	require.True(t, strings.HasPrefix(code, "TXN-20261019-"))
	require.Len(t, code, len("TXN-20261019-")+12)
}

func TestNewSnowflakeNode(t *testing.T) {
	node, err := NewSnowflakeNode()
	require.NoError(t, err)
	require.NotEqual(t, node.Generate().String(), node.Generate().String())
}
