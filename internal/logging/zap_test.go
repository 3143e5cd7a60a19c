package logging_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"payengine/internal/logging"
)

func TestNew_Levels(t *testing.T) {
	log, err := logging.New("debug", false)
	require.NoError(t, err)
	require.True(t, log.Core().Enabled(zapcore.DebugLevel))

	log, err = logging.New("bogus", true)
	require.NoError(t, err)
	require.False(t, log.Core().Enabled(zapcore.DebugLevel))
	require.True(t, log.Core().Enabled(zapcore.InfoLevel))
}
