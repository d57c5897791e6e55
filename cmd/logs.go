package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"

	"github.com/projectify/live/cli"
	"github.com/projectify/live/errors"
	"github.com/projectify/live/pkg/paths"
	"github.com/projectify/live/tui/theme"
)

// NewLogsCmd creates the `logs` command.
func NewLogsCmd() *cobra.Command {
	var (
		follow bool
		lines  int
	)

	cmd := &cobra.Command{
		Use:   "logs [component]",
		Short: "Show the log file of a component",
		Long:  "Prints the most recent log file below the log directory, optionally for one component such as live, cache or hub.",
		Example: `# Follow the connection manager log
live logs live -f

# Last 20 lines of the newest log
live logs -n 20`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			component := ""
			if len(args) == 1 {
				component = args[0]
			}
			path, err := latestLogFile(paths.LogDir(), component)
			if err != nil {
				return err
			}
			asJSON := cli.GetOptions(cmd).JSONOutput
			out := cmd.OutOrStdout()

			for _, line := range lastLines(path, lines) {
				printLogLine(out, line, asJSON)
			}
			if !follow {
				return nil
			}

			t, err := tail.TailFile(path, tail.Config{
				Follow:   true,
				ReOpen:   true,
				Location: &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
				Logger:   tail.DiscardingLogger,
			})
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to tail log file").WithDetail("path", path)
			}
			defer t.Cleanup()

			ctx, cancel := signalContext(cmd)
			defer cancel()
			go func() {
				<-ctx.Done()
				_ = t.Stop()
			}()
			for line := range t.Lines {
				if line.Err != nil {
					continue
				}
				printLogLine(out, line.Text, asJSON)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show first (-1 shows all)")
	return cmd
}

// latestLogFile returns the newest non-empty log file for component, or the
// newest log file of any component when component is "".
func latestLogFile(dir, component string) (string, error) {
	pattern := "*.log"
	if component != "" {
		pattern = component + "-*.log"
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil || len(matches) == 0 {
		return "", errors.New(errors.ErrCodeInvalidInput, "no log files found").
			WithDetail("dir", dir).WithDetail("pattern", pattern)
	}

	var best string
	var bestMod time.Time
	bestEmpty := true
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		empty := info.Size() == 0
		switch {
		case best == "",
			bestEmpty && !empty,
			empty == bestEmpty && info.ModTime().After(bestMod):
			best, bestMod, bestEmpty = m, info.ModTime(), empty
		}
	}
	if best == "" {
		return "", errors.New(errors.ErrCodeInvalidInput, "no log files found").WithDetail("dir", dir)
	}
	return best, nil
}

// lastLines reads path to the end with a non-following tail and keeps the
// last n lines. n < 0 keeps all of them.
func lastLines(path string, n int) []string {
	if n == 0 {
		return nil
	}
	t, err := tail.TailFile(path, tail.Config{Follow: false, Logger: tail.DiscardingLogger})
	if err != nil {
		return nil
	}
	defer t.Cleanup()

	var buf []string
	for line := range t.Lines {
		if line.Err != nil {
			continue
		}
		buf = append(buf, line.Text)
		if n > 0 && len(buf) > n {
			buf = buf[1:]
		}
	}
	return buf
}

// printLogLine prints JSON log lines in a readable form and passes other
// lines through unchanged.
func printLogLine(w io.Writer, line string, asJSON bool) {
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		if asJSON {
			data, _ := json.Marshal(map[string]string{"raw_line": line})
			fmt.Fprintln(w, string(data))
			return
		}
		fmt.Fprintln(w, line)
		return
	}
	if asJSON {
		fmt.Fprintln(w, line)
		return
	}

	t := theme.DefaultTheme
	ts, _ := entry["time"].(string)
	level, _ := entry["level"].(string)
	msg, _ := entry["msg"].(string)
	component, _ := entry["component"].(string)

	timeStr := ts
	if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		timeStr = parsed.Format("15:04:05")
	}

	var levelStyle lipgloss.Style
	switch strings.ToLower(level) {
	case "error", "fatal", "panic":
		levelStyle = t.Error
	case "warning":
		levelStyle = t.Warning
	case "info":
		levelStyle = t.Info
	default:
		levelStyle = t.Muted
	}

	var keys []string
	for k := range entry {
		switch k {
		case "time", "level", "msg", "component":
		default:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	fields := make([]string, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, fmt.Sprintf("%s=%v", t.Muted.Render(k), entry[k]))
	}

	fmt.Fprintf(w, "%s %s [%s] %s %s\n",
		timeStr,
		levelStyle.Render(strings.ToUpper(level)),
		t.Accent.Render(component),
		msg,
		strings.Join(fields, " "),
	)
}
