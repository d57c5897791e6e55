package main

import (
	"encoding/json"
	"fmt"

	"github.com/grovetools/tend/pkg/assert"
	"github.com/grovetools/tend/pkg/command"
	"github.com/grovetools/tend/pkg/harness"
)

// VersionScenario tests the 'version' command.
func VersionScenario() *harness.Scenario {
	return &harness.Scenario{
		Name: "live-basic-version",
		Steps: []harness.Step{
			harness.NewStep("Run 'live version'", func(ctx *harness.Context) error {
				liveBinary, err := findLiveBinary()
				if err != nil {
					return err
				}

				cmd := command.New(liveBinary, "version")
				result := cmd.Run()
				ctx.ShowCommandOutput(cmd.String(), result.Stdout, result.Stderr)

				if err := assert.Equal(0, result.ExitCode, "live version should exit successfully"); err != nil {
					return err
				}
				for _, label := range []string{"Commit:", "Built:", "Go:", "Platform:"} {
					if err := assert.Contains(result.Stdout, label, "Output should contain "+label); err != nil {
						return err
					}
				}
				return assert.Contains(result.Stdout, "live ", "Output should start with the component name")
			}),
		},
	}
}

// VersionJSONScenario checks that --json turns the version into a document.
func VersionJSONScenario() *harness.Scenario {
	return &harness.Scenario{
		Name: "live-basic-version-json",
		Steps: []harness.Step{
			harness.NewStep("Run 'live version --json'", func(ctx *harness.Context) error {
				liveBinary, err := findLiveBinary()
				if err != nil {
					return err
				}

				cmd := command.New(liveBinary, "version", "--json")
				result := cmd.Run()
				ctx.ShowCommandOutput(cmd.String(), result.Stdout, result.Stderr)
				if err := assert.Equal(0, result.ExitCode, "live version --json should exit successfully"); err != nil {
					return err
				}

				var info map[string]interface{}
				if err := json.Unmarshal([]byte(result.Stdout), &info); err != nil {
					return fmt.Errorf("version output is not JSON: %w", err)
				}
				if _, ok := info["version"]; !ok {
					return fmt.Errorf("version document has no version field: %s", result.Stdout)
				}
				return nil
			}),
		},
	}
}
