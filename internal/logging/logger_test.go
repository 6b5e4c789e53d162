package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Parallel()

	for _, dev := range []bool{true, false} {
		logger, err := New(Options{Development: dev})
		require.NoError(t, err)
		logger.Info("logger ready")
		_ = logger.Sync()
	}
}

func TestNewHonoursLevel(t *testing.T) {
	t.Parallel()

	logger, err := New(Options{Level: "warn"})
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	require.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	_, err = New(Options{Level: "loud"})
	require.Error(t, err)
}
