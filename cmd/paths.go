package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/projectify/live/config"
	"github.com/projectify/live/pkg/paths"
)

// PathsOutput lists the directories and files the live tool uses.
type PathsOutput struct {
	ConfigDir    string `json:"config_dir"`
	GlobalConfig string `json:"global_config"`
	DataDir      string `json:"data_dir"`
	StateDir     string `json:"state_dir"`
	CacheDir     string `json:"cache_dir"`
	LogDir       string `json:"log_dir"`
	HubData      string `json:"hub_data"`
	PidFile      string `json:"pid_file"`
}

// NewPathsCmd prints the XDG paths as JSON.
func NewPathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print the paths used by live",
		Long:  "Prints the XDG paths as JSON. LIVE_HOME moves all of them below one directory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := PathsOutput{
				ConfigDir:    paths.ConfigDir(),
				GlobalConfig: config.GlobalConfigPath(),
				DataDir:      paths.DataDir(),
				StateDir:     paths.StateDir(),
				CacheDir:     paths.CacheDir(),
				LogDir:       paths.LogDir(),
				HubData:      paths.HubDataDir(),
				PidFile:      paths.PidFilePath(),
			}
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal paths to JSON: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}
