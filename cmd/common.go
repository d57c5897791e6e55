// Package cmd implements the subcommands of the live binary.
package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/projectify/live/cli"
	"github.com/projectify/live/config"
	"github.com/projectify/live/pkg/api"
	"github.com/projectify/live/pkg/protocol"
)

// resourceArgs parses the `<type> <uuid>` positional arguments.
func resourceArgs(args []string) (protocol.Resource, error) {
	t, err := protocol.ParseResourceType(args[0])
	if err != nil {
		return protocol.Resource{}, err
	}
	return protocol.Resource{Type: t, UUID: args[1]}, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newAPIClient(cmd *cobra.Command, cfg *config.Config) (*api.Client, error) {
	return api.New(api.Options{
		BaseURL: cfg.APIURL,
		Timeout: cfg.Connection.RequestTimeout.Std(),
		Logger:  cli.GetLogger(cmd, "api"),
	})
}

func indentJSON(raw []byte) string {
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return string(raw)
	}
	return out.String()
}

func compactJSON(raw []byte) string {
	var out bytes.Buffer
	if err := json.Compact(&out, raw); err != nil {
		return string(raw)
	}
	return out.String()
}
