package logger

import (
	"testing"

	"creatorpay/pkg/config"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewReplacesGlobals(t *testing.T) {
	cfg := config.Default()
	cfg.AppEnv = "production"

	log := New(ConfigParams{Cfg: cfg})
	t.Cleanup(func() { zap.ReplaceGlobals(zap.NewNop()) })

	require.NotNil(t, log)
	require.Same(t, log, zap.L())
}
