// File: internal/service/components.go
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/docketpilot/internal/store"
)

// BrowserManager is the part of the browser lifecycle the components own.
type BrowserManager interface {
	Shutdown(ctx context.Context) error
}

// Components holds everything the CLI and the API need to run sessions.
type Components struct {
	Sessions *SessionManager
	Browser  BrowserManager
	// Store is nil when no database is configured.
	Store *store.Store
	Audit *AuditQueue

	closeDB func()
	logger  *zap.Logger
}

// Shutdown releases resources in dependency order: sessions, then the browser,
// then the audit queue, then the database.
func (c *Components) Shutdown() {
	logger := c.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Beginning components shutdown sequence.")

	// Use a separate context so shutdown completes even if the main context was canceled.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if c.Sessions != nil {
		if err := c.Sessions.CloseAll(ctx); err != nil {
			logger.Warn("Some sessions did not close cleanly.", zap.Error(err))
		}
	}

	if c.Browser != nil {
		if err := c.Browser.Shutdown(ctx); err != nil {
			logger.Warn("Error during browser manager shutdown.", zap.Error(err))
		} else {
			logger.Debug("Browser manager shut down.")
		}
	}

	if c.Audit != nil {
		c.Audit.Close()
		logger.Debug("Audit queue drained.")
	}

	if c.closeDB != nil {
		c.closeDB()
		logger.Debug("Database connection pool closed.")
	}

	logger.Info("All components shut down successfully.")
}
