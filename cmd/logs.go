// File: cmd/logs.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/hpcloud/tail"
	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
)

type logsOptions struct {
	follow    bool
	lines     int
	sessionID string
	level     string
}

func newLogsCmd() *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print or follow the structured log file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			path := cfg.Logger().LogFile
			if path == "" {
				return fmt.Errorf("no log file is configured (logger.log_file)")
			}
			return streamLogs(cmd.Context(), path, opts, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&opts.follow, "follow", "f", false, "keep printing new lines as they are written")
	f.IntVarP(&opts.lines, "lines", "n", 0, "print only the last N matching lines, without --follow (0 prints all)")
	f.StringVar(&opts.sessionID, "session", "", "only lines for this session id")
	f.StringVar(&opts.level, "level", "", "minimum level (debug, info, warn, error)")
	return cmd
}

// logFilter decides which JSON log lines are printed.
type logFilter struct {
	sessionID string
	minLevel  zapcore.Level
	leveled   bool
}

func newLogFilter(opts logsOptions) (logFilter, error) {
	f := logFilter{sessionID: opts.sessionID}
	if opts.level != "" {
		if err := f.minLevel.UnmarshalText([]byte(strings.ToLower(opts.level))); err != nil {
			return f, fmt.Errorf("invalid level '%s': %w", opts.level, err)
		}
		f.leveled = true
	}
	return f, nil
}

func (f logFilter) match(line string) bool {
	if f.sessionID == "" && !f.leveled {
		return true
	}
	var entry struct {
		Level     string `json:"level"`
		SessionID string `json:"session_id"`
	}
	if err := json.UnmarshalFromString(line, &entry); err != nil {
		// Lines that are not JSON (stack traces) only pass an unfiltered view.
		return false
	}
	if f.sessionID != "" && entry.SessionID != f.sessionID {
		return false
	}
	if f.leveled {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(strings.ToLower(entry.Level))); err != nil || lvl < f.minLevel {
			return false
		}
	}
	return true
}

// streamLogs prints the matching lines of path. Without follow it stops at the
// end of the file; with follow it continues until ctx is canceled.
func streamLogs(ctx context.Context, path string, opts logsOptions, out io.Writer) error {
	filter, err := newLogFilter(opts)
	if err != nil {
		return err
	}

	t, err := tail.TailFile(path, tail.Config{
		Follow:    opts.follow,
		ReOpen:    opts.follow,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer t.Cleanup()
	defer func() { _ = t.Stop() }()

	// Without follow the last N lines are held back until the end of the file.
	var ring []string
	flush := func() {
		for _, l := range ring {
			fmt.Fprintln(out, l)
		}
		ring = nil
	}
	emit := func(text string) {
		if opts.lines <= 0 || opts.follow {
			fmt.Fprintln(out, text)
			return
		}
		ring = append(ring, text)
		if len(ring) > opts.lines {
			ring = ring[1:]
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				flush()
				return nil
			}
			if line.Err != nil {
				return fmt.Errorf("error reading log file: %w", line.Err)
			}
			if filter.match(line.Text) {
				emit(line.Text)
			}
		}
	}
}
