// internal/browser/cdp/manager.go
package cdp

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/docketpilot/internal/config"
)

const defaultStartupTimeout = 30 * time.Second

// Manager owns the browser process. Every page it hands out lives in its own
// browser context, so sessions never share cookies or storage.
type Manager struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	// allocatorCtx manages the browser process; browserCtx is its first target.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc

	// wg tracks open pages for a graceful shutdown.
	wg sync.WaitGroup
}

// NewManager launches the browser and checks that it responds.
func NewManager(ctx context.Context, logger *zap.Logger, cfg config.BrowserConfig) (*Manager, error) {
	m := &Manager{
		logger: logger.Named("browser_manager"),
		cfg:    cfg,
	}
	if err := m.launchBrowser(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return m, nil
}

func (m *Manager) launchBrowser(ctx context.Context) error {
	m.logger.Info("Initializing browser allocator...", zap.Bool("headless", m.cfg.Headless))

	// The allocator outlives ctx; Shutdown is what ends it.
	m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(context.WithoutCancel(ctx), buildAllocatorOptions(m.cfg)...)
	m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocatorCtx)

	timeout := m.cfg.StartupTimeout
	if timeout <= 0 {
		timeout = defaultStartupTimeout
	}

	// The first Run allocates the process, so it must use browserCtx itself and
	// not a derived context that would kill the browser when it expires.
	errc := make(chan error, 1)
	go func() { errc <- chromedp.Run(m.browserCtx, chromedp.Navigate("about:blank")) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-errc:
		if err != nil {
			m.terminate()
			return fmt.Errorf("browser failed to start or respond: %w", err)
		}
	case <-timer.C:
		m.terminate()
		return fmt.Errorf("browser did not respond within %v", timeout)
	case <-ctx.Done():
		m.terminate()
		return ctx.Err()
	}

	m.logger.Info("Browser launched successfully and is responsive.")
	return nil
}

// NewPage opens an isolated tab. The tab stays open until the page is closed or
// the manager shuts down.
func (m *Manager) NewPage(ctx context.Context, pollInterval time.Duration) (*Page, error) {
	tabCtx, cancel := chromedp.NewContext(m.browserCtx, chromedp.WithNewBrowserContext())

	actions := []chromedp.Action{}
	if w, h := m.cfg.Viewport["width"], m.cfg.Viewport["height"]; w > 0 && h > 0 {
		actions = append(actions, chromedp.EmulateViewport(int64(w), int64(h)))
	}

	errc := make(chan error, 1)
	go func() { errc <- chromedp.Run(tabCtx, actions...) }()
	select {
	case err := <-errc:
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to open browser tab: %w", err)
		}
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}

	m.wg.Add(1)
	return newPage(tabCtx, cancel, pollInterval, m.logger, m.wg.Done), nil
}

// Shutdown waits for open pages to close, respecting ctx, then ends the browser process.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Browser manager shutdown initiated. Waiting for open pages to close...")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All pages have closed.")
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	m.terminate()
	return nil
}

func (m *Manager) terminate() {
	if m.allocatorCancel == nil {
		return
	}
	m.logger.Info("Shutting down main browser process...")
	m.browserCancel()
	m.allocatorCancel()
	<-m.allocatorCtx.Done()
}

// flag is one command line switch passed to the browser.
type flag struct {
	name  string
	value any
}

// browserFlags lists the switches for cfg. "enable-automation" is never set.
func browserFlags(cfg config.BrowserConfig) []flag {
	flags := []flag{
		{"headless", cfg.Headless},
		{"ignore-certificate-errors", cfg.IgnoreTLSErrors},
		// Hides navigator.webdriver.
		{"disable-blink-features", "AutomationControlled"},
		{"disable-extensions", true},
		{"disable-gpu", cfg.Headless},
	}
	if w, h := cfg.Viewport["width"], cfg.Viewport["height"]; w > 0 && h > 0 {
		flags = append(flags, flag{"window-size", fmt.Sprintf("%d,%d", w, h)})
	}

	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if name == "" {
			continue
		}
		if len(parts) == 2 {
			flags = append(flags, flag{name, parts[1]})
		} else {
			flags = append(flags, flag{name, true})
		}
	}

	// Required inside containers.
	if runtime.GOOS == "linux" {
		flags = append(flags,
			flag{"no-sandbox", true},
			flag{"disable-dev-shm-usage", true},
			flag{"disable-setuid-sandbox", true},
		)
	}
	return flags
}

func buildAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for _, f := range browserFlags(cfg) {
		opts = append(opts, chromedp.Flag(f.name, f.value))
	}
	// A later flag overrides an earlier one with the same name.
	opts = append(opts, chromedp.Flag("enable-automation", false))
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	return opts
}
