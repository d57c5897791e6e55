package main

import (
	"fmt"
	"strings"

	"github.com/grovetools/tend/pkg/assert"
	"github.com/grovetools/tend/pkg/harness"
)

// hubSteps wraps scenario steps between starting a seeded in-memory hub and
// stopping it again.
func hubSteps(dir string, steps ...harness.Step) []harness.Step {
	start := harness.NewStep("Start 'live serve --memory --seed'", func(ctx *harness.Context) error {
		projectDir := ctx.NewDir(dir)
		h, err := startHub(ctx, projectDir)
		if err != nil {
			return err
		}
		task, err := h.first("task")
		if err != nil {
			h.stop()
			return err
		}
		ctx.Set("hub", h)
		ctx.Set("project_dir", projectDir)
		ctx.Set("task_uuid", task)
		return nil
	})
	stop := harness.NewStep("Stop the hub", func(ctx *harness.Context) error {
		h, ok := ctx.Get("hub").(*hubProcess)
		if !ok {
			return fmt.Errorf("no hub recorded in the scenario context")
		}
		return h.stop()
	})
	return append(append([]harness.Step{start}, steps...), stop)
}

// ServeGetScenario fetches a seeded task over REST.
func ServeGetScenario() *harness.Scenario {
	return &harness.Scenario{
		Name:        "live-serve-get",
		Description: "Seeds an in-memory hub and reads a task back with 'live get'",
		Tags:        []string{"hub", "rest"},
		Steps: hubSteps("serve-get",
			harness.NewStep("Run 'live get task'", func(ctx *harness.Context) error {
				task := ctx.GetString("task_uuid")
				cmd := ctx.Command("live", "get", "task", task).Dir(ctx.GetString("project_dir"))
				result := cmd.Run()
				ctx.ShowCommandOutput(cmd.String(), result.Stdout, result.Stderr)
				if err := assert.Equal(0, result.ExitCode, "live get should exit successfully"); err != nil {
					return err
				}
				if err := assert.Contains(result.Stdout, task, "Document should carry the task uuid"); err != nil {
					return err
				}
				return assert.Contains(result.Stdout, `"title"`, "Document should be the task representation")
			}),
			harness.NewStep("Run 'live get task --select uuid'", func(ctx *harness.Context) error {
				task := ctx.GetString("task_uuid")
				cmd := ctx.Command("live", "get", "task", task, "--select", "uuid").Dir(ctx.GetString("project_dir"))
				result := cmd.Run()
				ctx.ShowCommandOutput(cmd.String(), result.Stdout, result.Stderr)
				if err := assert.Equal(0, result.ExitCode, "live get --select should exit successfully"); err != nil {
					return err
				}
				return assert.Equal(task, strings.TrimSpace(result.Stdout), "--select should print only the uuid")
			}),
			harness.NewStep("Run 'live get' for an unknown task", func(ctx *harness.Context) error {
				missing := "00000000-0000-4000-8000-000000000000"
				cmd := ctx.Command("live", "get", "task", missing).Dir(ctx.GetString("project_dir"))
				result := cmd.Run()
				ctx.ShowCommandOutput(cmd.String(), result.Stdout, result.Stderr)
				if result.ExitCode == 0 {
					return fmt.Errorf("live get of a missing task should fail")
				}
				return nil
			}),
		),
	}
}

// ServeWatchScenario follows a seeded task over the websocket for a bounded
// time.
func ServeWatchScenario() *harness.Scenario {
	return &harness.Scenario{
		Name:        "live-serve-watch",
		Description: "Seeds an in-memory hub and follows a task with 'live watch --for'",
		Tags:        []string{"hub", "websocket"},
		Steps: hubSteps("serve-watch",
			harness.NewStep("Run 'live watch task --for 1s'", func(ctx *harness.Context) error {
				task := ctx.GetString("task_uuid")
				cmd := ctx.Command("live", "watch", "task", task, "--for", "1s").Dir(ctx.GetString("project_dir"))
				result := cmd.Run()
				ctx.ShowCommandOutput(cmd.String(), result.Stdout, result.Stderr)
				if err := assert.Equal(0, result.ExitCode, "live watch should stop cleanly after --for"); err != nil {
					return err
				}
				if err := assert.Contains(result.Stdout, task, "The loaded value should be printed"); err != nil {
					return err
				}
				return assert.Contains(result.Stderr, "subscribes 1", "Exit statistics should count the subscription")
			}),
		),
	}
}
