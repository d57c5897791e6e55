package cmd

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"

	"github.com/projectify/live/cli"
	"github.com/projectify/live/errors"
	"github.com/projectify/live/logging"
	"github.com/projectify/live/pkg/api"
	"github.com/projectify/live/pkg/cache"
	"github.com/projectify/live/pkg/configwatch"
	"github.com/projectify/live/pkg/live"
	"github.com/projectify/live/pkg/profiling"
	"github.com/projectify/live/pkg/protocol"
	"github.com/projectify/live/pkg/retry"
	"github.com/projectify/live/tui/watch"
)

// NewWatchCmd creates the `watch` command: load a resource and follow its
// changes until interrupted.
func NewWatchCmd() *cobra.Command {
	var (
		useTUI   bool
		duration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <type> <uuid>",
		Short: "Follow a resource live",
		Long:  "Loads a resource, subscribes to it and prints every change until interrupted. Connection statistics are printed on exit.",
		Example: `# Print each change as one JSON line
live watch project 0d6f7a52-3f0a-4c53-8d35-1e0b2b2a51c9

# Interactive viewer
live watch task 4f1c0a4e-8d7e-4c61-9a39-55a4f3d0c7b2 --tui`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := resourceArgs(args)
			if err != nil {
				return err
			}
			cfg, cfgPath, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			logger := cli.GetLogger(cmd, "watch")

			client, err := newAPIClient(cmd, cfg)
			if err != nil {
				return err
			}
			opts, err := live.OptionsFromConfig(cfg)
			if err != nil {
				return err
			}
			opts.Transport.Jar = client.Jar()
			opts.Logger = cli.GetLogger(cmd, "live")
			m := live.New(opts)
			defer m.Close()

			c := cache.New(cache.Options[json.RawMessage]{
				Type:       res.Type,
				Subscriber: m,
				Getter:     api.Getter[json.RawMessage](client, res.Type),
				Retry:      retry.FromConfig(cfg.Retry),
				Logger:     cli.GetLogger(cmd, "cache"),
			})
			defer c.Close()

			ctx, cancel := signalContext(cmd)
			defer cancel()
			if duration > 0 {
				go func() {
					select {
					case <-time.After(duration):
						cancel()
					case <-ctx.Done():
					}
				}()
			}

			if cfgPath != "" {
				w, err := configwatch.New(cfgPath, configwatch.DefaultDebounce, configwatch.ApplyLogging)
				if err != nil {
					logger.WithError(err).Warn("Config changes will not be applied live")
				} else {
					defer w.Close()
					go w.Start(ctx)
				}
			}

			opt := cli.GetOptions(cmd)
			defer func() {
				printStats(cmd.ErrOrStderr(), m, opt.JSONOutput)
			}()

			if useTUI {
				return runTUI(ctx, res, m, c)
			}

			out := cmd.OutOrStdout()
			unsubscribe := c.Subscribe(func(v cache.Value[json.RawMessage]) {
				if raw, ok := v.Get(); ok {
					fmt.Fprintln(out, compactJSON(raw))
				}
			})
			defer unsubscribe()

			span := profiling.Start("load " + res.String())
			value, err := c.LoadUUID(ctx, res.UUID)
			span.Stop()
			if err != nil {
				return err
			}
			if value == nil {
				return errors.ResourceNotFound(string(res.Type), res.UUID)
			}
			if c.State() == cache.StateSSR {
				logger.Info("Subscriptions are disabled, printed the current value only")
				return nil
			}

			unwatchGone := c.Subscribe(func(v cache.Value[json.RawMessage]) {
				if !v.Present() {
					logger.WithField("resource", res.String()).Info("Resource is gone")
					cancel()
				}
			})
			defer unwatchGone()

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().BoolVar(&useTUI, "tui", false, "Run the interactive viewer")
	cmd.Flags().DurationVar(&duration, "for", 0, "Stop after this long (0 runs until interrupted)")
	return cmd
}

// runTUI loads the resource in the background while the viewer runs.
func runTUI(ctx context.Context, res protocol.Resource, m *live.Manager, c *cache.Cache[json.RawMessage]) error {
	feed := watch.NewFeed()
	detach := watch.Attach(feed, m, c)
	defer detach()
	defer feed.Close()

	// Log lines on stderr would tear the alternate screen.
	restore := logging.Divert(io.Discard)
	defer restore()

	p := tea.NewProgram(watch.New(res, feed), tea.WithAltScreen(), tea.WithContext(ctx))

	loadErr := make(chan error, 1)
	go func() {
		value, err := c.LoadUUID(ctx, res.UUID)
		if err == nil && value == nil {
			err = errors.ResourceNotFound(string(res.Type), res.UUID)
		}
		if err != nil && ctx.Err() == nil {
			loadErr <- err
			p.Quit()
		}
	}()

	if _, err := p.Run(); err != nil && !stderrors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	select {
	case err := <-loadErr:
		return err
	default:
		return nil
	}
}

func printStats(w io.Writer, m *live.Manager, asJSON bool) {
	if asJSON {
		metrics.WriteJSONOnce(m.Metrics(), w)
		fmt.Fprintln(w)
		return
	}
	s := m.Stats()
	fmt.Fprintf(w, "frames sent %d, received %d, unmatched %d, reconnects %d, subscribes %d (p50 %s, p99 %s), failures %d\n",
		s.FramesSent, s.FramesReceived, s.Unmatched, s.Reconnects, s.Subscribes, s.SubscribeP50, s.SubscribeP99, s.SubscribeFailures)
}
