package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/projectify/live/cli"
	"github.com/projectify/live/errors"
	"github.com/projectify/live/internal/hub"
	"github.com/projectify/live/internal/hub/store"
	"github.com/projectify/live/internal/pidfile"
	"github.com/projectify/live/logging"
	"github.com/projectify/live/pkg/paths"
	"github.com/projectify/live/pkg/process"
)

// NewServeCmd returns the reference hub command with its subcommands.
func NewServeCmd() *cobra.Command {
	var (
		listen  string
		dataDir string
		memory  bool
		seed    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local API and subscription server",
		Long:  "Runs the reference hub in the foreground: the REST API, CSRF cookies and the websocket subscription endpoint, backed by leveldb or memory.",
		Example: `# Serve with demo data in memory
live serve --memory --seed

# Stop a running hub
live serve stop`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			logger := cli.GetLogger(cmd, "hub")
			if listen == "" {
				listen = cfg.Server.Listen
			}
			if dataDir == "" {
				dataDir = cfg.Server.DataDir
			}
			if dataDir == "" {
				dataDir = paths.HubDataDir()
			}

			pidPath := paths.PidFilePath()
			if err := pidfile.Acquire(pidPath); err != nil {
				return err
			}
			defer func() {
				if err := pidfile.Release(pidPath); err != nil {
					logger.Errorf("Failed to release pidfile: %v", err)
				}
			}()

			var backend store.Backend = store.NewMemory()
			if !memory {
				db, err := store.OpenLevelDB(dataDir)
				if err != nil {
					return err
				}
				backend = db
				logger.WithField("dir", dataDir).Info("Using leveldb store")
			}
			st := store.New(backend)
			defer st.Close()

			h, err := hub.New(st, hub.Options{WSPath: cfg.WSPath, Logger: logger})
			if err != nil {
				return err
			}
			srv := hub.NewServer(h, logger)
			ln, err := srv.Listen(listen)
			if err != nil {
				return err
			}

			if seed {
				created, err := seedDemo(h, time.Now().UTC(), logger)
				if err != nil {
					return err
				}
				pretty := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
				pretty.Success(fmt.Sprintf("Seeded %d resources", len(created)))
				for _, res := range created {
					pretty.Field(string(res.Type), res.UUID)
				}
			}

			ctx, cancel := signalContext(cmd)
			defer cancel()
			go func() {
				<-ctx.Done()
				logger.Info("Received stop signal")
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Errorf("Server shutdown error: %v", err)
				}
			}()

			logger.WithField("pid", os.Getpid()).Info("Starting hub")
			return srv.Serve(ln)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Address to listen on (default from server.listen)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "leveldb directory (default from server.data_dir)")
	cmd.Flags().BoolVar(&memory, "memory", false, "Keep data in memory only")
	cmd.Flags().BoolVar(&seed, "seed", false, "Create a demo workspace on start and print its resources")

	cmd.AddCommand(newServeStopCmd())
	cmd.AddCommand(newServeStatusCmd())
	return cmd
}

func newServeStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			running, pid, err := pidfile.IsRunning(paths.PidFilePath())
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to read pid file")
			}
			if !running {
				logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).Warn("Hub is not running")
				return nil
			}
			stopped, err := process.Terminate(pid, 5*time.Second)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to stop hub").WithDetail("pid", pid)
			}
			if !stopped {
				return errors.New(errors.ErrCodeInternal, "hub did not stop in time").WithDetail("pid", pid)
			}
			logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).Success(fmt.Sprintf("Stopped hub (PID %d)", pid))
			return nil
		},
	}
}

func newServeStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check whether a hub is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			running, pid, err := pidfile.IsRunning(paths.PidFilePath())
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to read pid file")
			}
			if !running {
				fmt.Fprintln(cmd.OutOrStdout(), "Stopped")
				return errors.New(errors.ErrCodeInternal, "hub is not running")
			}

			cfg, _, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			healthy := false
			if client, err := newAPIClient(cmd, cfg); err == nil {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				healthy = client.Health(ctx)
				cancel()
			}
			pretty := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
			pretty.Success("Running")
			pretty.Field("pid", pid)
			pretty.Field("api", cfg.APIURL)
			pretty.Field("healthy", healthy)
			return nil
		},
	}
}
