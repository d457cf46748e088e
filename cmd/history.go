// File: cmd/history.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/docketpilot/internal/config"
	"github.com/xkilldash9x/docketpilot/internal/observability"
	"github.com/xkilldash9x/docketpilot/internal/service"
	"github.com/xkilldash9x/docketpilot/internal/workflow"
)

// transitionReader reads the audit trail of one session.
type transitionReader interface {
	TransitionsBySession(ctx context.Context, sessionID string) ([]workflow.TransitionRecord, error)
}

// storeProvider creates the audit store reader. This abstraction lets tests
// inject a fake instead of a live database connection.
type storeProvider interface {
	// Create returns the reader and a cleanup function that releases its resources.
	Create(ctx context.Context, cfg config.Interface) (transitionReader, func(), error)
}

// defaultStoreProvider connects to PostgreSQL.
type defaultStoreProvider struct{}

// NewStoreProvider is a factory function that creates a new defaultStoreProvider.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

func (p *defaultStoreProvider) Create(ctx context.Context, cfg config.Interface) (transitionReader, func(), error) {
	s, cleanup, err := service.InitializeStore(ctx, cfg.Database(), observability.GetLogger())
	if err != nil {
		return nil, nil, err
	}
	return s, cleanup, nil
}

func newHistoryCmd(provider storeProvider) *cobra.Command {
	var (
		sessionID string
		format    string
		trails    bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the recorded phase transitions of a session",
		Long: `Reads the audit store for one session and prints every trigger it received,
the phases it moved between and, with --trails, each resolution attempt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			reader, cleanup, err := provider.Create(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to open audit store: %w", err)
			}
			defer cleanup()

			records, err := reader.TransitionsBySession(ctx, sessionID)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return fmt.Errorf("no transitions recorded for session %s", sessionID)
			}
			return writeHistory(cmd.OutOrStdout(), format, records, trails)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session-id", "", "session to show")
	cmd.Flags().StringVarP(&format, "format", "o", "text", "output format: text or json")
	cmd.Flags().BoolVar(&trails, "trails", false, "include resolution attempts")
	_ = cmd.MarkFlagRequired("session-id")
	return cmd
}

func writeHistory(out io.Writer, format string, records []workflow.TransitionRecord, trails bool) error {
	switch strings.ToLower(format) {
	case "json":
		if !trails {
			stripped := make([]workflow.TransitionRecord, len(records))
			for i, r := range records {
				r.Trails = nil
				stripped[i] = r
			}
			records = stripped
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case "text", "":
		for _, r := range records {
			line := fmt.Sprintf("%s  %-24s %s -> %s  %s",
				r.OccurredAt.UTC().Format(time.RFC3339), r.Trigger, r.From, r.To, r.Status)
			if r.ErrorKind != workflow.KindNone {
				line += fmt.Sprintf(" [%s] %s", r.ErrorKind, r.Message)
			}
			fmt.Fprintln(out, line)
			if !trails {
				continue
			}
			for _, t := range r.Trails {
				fmt.Fprintf(out, "    %s\n", t.Target)
				for _, a := range t.Attempts {
					fmt.Fprintf(out, "      %-10s %s", a.Outcome, a.Source)
					if a.Detail != "" {
						fmt.Fprintf(out, " (%s)", a.Detail)
					}
					fmt.Fprintln(out)
				}
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported format '%s' (use text or json)", format)
	}
}
