package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	log, err := New("warn")
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))

	_, err = New("loud")
	assert.Error(t, err)
}

func TestForNode(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ForNode(zap.New(core), 3).Info("ready")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, int64(3), logs.All()[0].ContextMap()["node"])

	assert.NotNil(t, ForNode(nil, 1))
}
