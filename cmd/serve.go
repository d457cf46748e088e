// File: cmd/serve.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/docketpilot/internal/api"
	"github.com/xkilldash9x/docketpilot/internal/config"
	"github.com/xkilldash9x/docketpilot/internal/observability"
	"github.com/xkilldash9x/docketpilot/internal/service"
)

// janitorInterval bounds how stale an idle session can get past its timeout.
const janitorInterval = time.Minute

// apiRunner is the part of the API server serve depends on.
type apiRunner interface {
	Run(ctx context.Context) error
}

func newServeCmd(factory service.ComponentFactory) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the workflow over HTTP until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.SetAPIAddr(addr)
			}

			components, err := factory.Create(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			srv := api.NewServer(cfg.API(), components.Sessions, Version, logger)
			return serve(ctx, srv, components.Sessions, cfg.API(), logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides api.addr)")
	return cmd
}

// serve runs the API and the idle-session janitor until ctx is canceled or
// either of them fails.
func serve(ctx context.Context, srv apiRunner, sessions *service.SessionManager, cfg config.APIConfig, logger *zap.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		interval := janitorInterval
		if cfg.SessionIdleTimeout > 0 && cfg.SessionIdleTimeout < interval {
			interval = cfg.SessionIdleTimeout
		}
		return sessions.RunJanitor(gctx, interval)
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server stopped with error.", zap.Error(err))
		return err
	}
	logger.Info("Server stopped.")
	return nil
}
