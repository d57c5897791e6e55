package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectify/live/internal/hub/store"
	"github.com/projectify/live/logging"
)

func TestDefaultLoggerIsHubComponent(t *testing.T) {
	t.Setenv("LIVE_HOME", t.TempDir())
	t.Setenv("LIVE_LOG_LEVEL", "error")

	h, err := New(store.New(store.NewMemory()), Options{})
	require.NoError(t, err)
	defer h.Close()

	assert.Same(t, logging.NewLogger("hub"), h.logger)
	assert.Equal(t, "hub", h.logger.Data["component"])
}
