package resources

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectify/live/config"
	"github.com/projectify/live/internal/hub/hubtest"
	"github.com/projectify/live/pkg/cache"
	"github.com/projectify/live/pkg/protocol"
)

func TestTaskProgress(t *testing.T) {
	assert.Equal(t, -1.0, Task{}.Progress())
	task := Task{SubTasks: []SubTask{{Done: true}, {Done: false}, {Done: true}, {Done: true}}}
	assert.Equal(t, 0.75, task.Progress())
}

func TestCachesFromConfig(t *testing.T) {
	t.Setenv("LIVE_LOG_LEVEL", "error")
	f := hubtest.Start(t)

	ws := protocol.Resource{Type: protocol.ResourceWorkspace, UUID: "w-1"}
	task := protocol.Resource{Type: protocol.ResourceTask, UUID: "t-1"}
	f.Put(t, ws, Workspace{UUID: "w-1", Title: "Acme", Labels: []Label{{Name: "bug", Color: 1}}})
	f.Put(t, task, Task{UUID: "t-1", Title: "Ship it", Number: 7})

	cfg := &config.Config{APIURL: f.URL(), WSPath: "/ws"}
	cfg.Retry.InitialInterval = config.Duration(5 * time.Millisecond)
	cfg.SetDefaults()

	c, err := NewCaches(cfg)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	w, err := c.Workspace.LoadUUID(ctx, "w-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", w.Title)
	assert.Equal(t, "bug", w.Labels[0].Name)

	tk, err := c.Task.LoadUUID(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, 7, tk.Number)
	assert.Equal(t, cache.StateReady, c.Task.State())

	p, err := c.Project.LoadUUID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, p)

	assert.Equal(t, 2, c.Manager.Registry().Len())
	assert.Equal(t, 1, f.Connections())

	f.Put(t, task, Task{UUID: "t-1", Title: "Shipped", Number: 7})
	require.Eventually(t, func() bool {
		return c.Task.Get().Or(Task{}).Title == "Shipped"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Reset(ctx))
	assert.Equal(t, cache.StateStart, c.Workspace.State())
	assert.Equal(t, cache.StateStart, c.Task.State())
	assert.Equal(t, 0, c.Manager.Registry().Len())
	assert.Equal(t, 0, f.Subscribers(task))
}
