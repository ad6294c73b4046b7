package sandbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewExecutor(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("ReadOnlyMode", func(t *testing.T) {
		executor, err := NewExecutor(logger, ModeReadOnly, 5*time.Second)
		require.NoError(t, err)
		assert.IsType(t, &ReadOnlyExecutor{}, executor)
	})

	t.Run("LabMode", func(t *testing.T) {
		executor, err := NewExecutor(logger, ModeLab, 15*time.Second)
		require.NoError(t, err)
		assert.IsType(t, &LabExecutor{}, executor)
	})

	t.Run("UnsupportedMode", func(t *testing.T) {
		_, err := NewExecutor(logger, "scripted", 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported execution mode")
	})
}
