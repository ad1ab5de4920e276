package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerDefaultsToNop(t *testing.T) {
	require.NotNil(t, Logger())
}

func TestSetLogger(t *testing.T) {
	old := Logger()
	t.Cleanup(func() { SetLogger(old) })

	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))

	Logger().Info("generated", zap.Int("decls", 3))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "generated", entry.Message)
	assert.Equal(t, int64(3), entry.ContextMap()["decls"])
}

func TestNewCLI(t *testing.T) {
	l, err := NewCLI(false)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zap.InfoLevel))
	assert.True(t, l.Core().Enabled(zap.WarnLevel))

	l, err = NewCLI(true)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zap.DebugLevel))
}
