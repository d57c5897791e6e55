package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/projectify/live/cli"
	"github.com/projectify/live/errors"
	"github.com/projectify/live/pkg/api"
	"github.com/projectify/live/pkg/profiling"
	"github.com/projectify/live/pkg/retry"
)

// NewGetCmd creates the `get` command: one fetch, no websocket.
func NewGetCmd() *cobra.Command {
	var selectPath string

	cmd := &cobra.Command{
		Use:   "get <type> <uuid>",
		Short: "Fetch a resource once and print it",
		Long:  "Fetches the current representation of a resource over REST without opening a subscription. This is the path a server-rendered page takes.",
		Example: `# Print a task
live get task 4f1c0a4e-8d7e-4c61-9a39-55a4f3d0c7b2

# Print only the title
live get task 4f1c0a4e-8d7e-4c61-9a39-55a4f3d0c7b2 --select title`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := resourceArgs(args)
			if err != nil {
				return err
			}
			cfg, _, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := newAPIClient(cmd, cfg)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd)
			defer cancel()
			span := profiling.Start("fetch " + res.String())
			body, err := retry.DoValue(ctx, retry.FromConfig(cfg.Retry), retry.Options{Name: "get " + res.String(), Logger: cli.GetLogger(cmd, "retry")},
				func(ctx context.Context) (json.RawMessage, error) {
					return client.Get(ctx, api.ResourcePath(res))
				})
			span.Stop()
			if err != nil {
				return err
			}
			if body == nil {
				return errors.ResourceNotFound(string(res.Type), res.UUID)
			}

			if selectPath != "" {
				result := gjson.GetBytes(body, selectPath)
				if !result.Exists() {
					return errors.New(errors.ErrCodeInvalidInput, "path not found in resource").WithDetail("select", selectPath)
				}
				if result.Type == gjson.String {
					fmt.Fprintln(cmd.OutOrStdout(), result.String())
					return nil
				}
				body = json.RawMessage(result.Raw)
			}
			fmt.Fprintln(cmd.OutOrStdout(), indentJSON(body))
			return nil
		},
	}

	cmd.Flags().StringVarP(&selectPath, "select", "s", "", "gjson path to print instead of the whole document")
	return cmd
}
