// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/docketpilot/internal/browser/cdp"
	"github.com/xkilldash9x/docketpilot/internal/config"
	"github.com/xkilldash9x/docketpilot/internal/workflow"
)

// ComponentFactory creates the components behind `run` and `serve`.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct{}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// browserTabs opens session tabs on a shared browser.
type browserTabs struct {
	manager      *cdp.Manager
	pollInterval time.Duration
}

func (b browserTabs) OpenTab(ctx context.Context) (Tab, error) {
	page, err := b.manager.NewPage(ctx, b.pollInterval)
	if err != nil {
		return nil, err
	}
	return page, nil
}

// Create wires the audit store (when configured), the browser and the session manager.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	components := &Components{logger: logger}

	// Ensure cleanup happens if initialization fails midway.
	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Audit store
	var auditor workflow.Auditor = workflow.NopAuditor{}
	if cfg.Database().Enabled() {
		s, cleanup, err := InitializeStore(ctx, cfg.Database(), logger)
		if err != nil {
			initializationErr = fmt.Errorf("failed to initialize audit store: %w", err)
			return nil, initializationErr
		}
		components.Store = s
		components.closeDB = cleanup
		components.Audit = StartAuditQueue(context.WithoutCancel(ctx), s, logger)
		auditor = components.Audit
		logger.Debug("Audit store initialized.")
	} else {
		logger.Info("No database configured; phase transitions will not be persisted.")
	}

	// 2. Browser
	manager, err := cdp.NewManager(ctx, logger, cfg.Browser())
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize browser manager: %w", err)
		return nil, initializationErr
	}
	components.Browser = manager
	logger.Debug("Browser manager initialized.")

	// 3. Sessions
	tabs := browserTabs{manager: manager, pollInterval: cfg.Timing().PollInterval}
	components.Sessions = NewSessionManager(tabs, cfg, logger, WithAuditor(auditor))

	logger.Info("All components initialized successfully.")
	return components, nil
}
