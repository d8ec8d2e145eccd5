package browser

import (
	"context"
	"errors"
	"fmt"
	"odoo-rpa/internal/config"
	"odoo-rpa/internal/metrics"
	"odoo-rpa/internal/ports"
	"odoo-rpa/pkg/apperr"
	"odoo-rpa/pkg/logg"
	"odoo-rpa/pkg/tracing"
	"os"
	"path/filepath"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	browserManagerName = "BrowserManager"
	browserTracer      = "browser.manager"
	settleDelay        = 500 * time.Millisecond
)

type Manager struct {
	config         *config.Config
	logger         *zap.Logger
	tracer         trace.Tracer
	alerter        ports.Alerter
	metrics        *metrics.Recorder
	playwright     *playwright.Playwright
	browser        playwright.Browser
	browserContext playwright.BrowserContext
	page           playwright.Page
	dispatcher     *Dispatcher
	ready          bool
}

type Params struct {
	fx.In

	Config  *config.Config
	Logger  *zap.Logger
	Alerter ports.Alerter
	Metrics *metrics.Recorder `optional:"true"`
}

func NewManager(params Params) *Manager {
	return &Manager{
		config:  params.Config,
		logger:  params.Logger.With(zap.String(logg.Layer, browserManagerName)),
		tracer:  otel.Tracer(browserTracer),
		alerter: params.Alerter,
		metrics: params.Metrics,
		ready:   false,
	}
}

func (m *Manager) Launch(ctx context.Context) (err error) {
	const op = "Launch"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	if m.ready {
		return nil
	}

	logger.Info("Launching browser...")
	step.AddEvent("installing playwright")

	err = playwright.Install(&playwright.RunOptions{
		Browsers: []string{"chromium"},
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "playwright_install_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	step.AddEvent("starting playwright")

	pw, err := playwright.Run()
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "playwright_start_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	m.playwright = pw

	browserConfig := m.config.BrowserConfig

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(browserConfig.Headless),
		SlowMo:   playwright.Float(float64(browserConfig.SlowMo)),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
		},
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "browser_launch_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	m.browser = browser

	contextOptions := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  1600,
			Height: 900,
		},
		AcceptDownloads:   playwright.Bool(true),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            playwright.String(browserConfig.Locale),
		TimezoneId:        playwright.String(browserConfig.TimezoneID),
	}

	if statePath := browserConfig.SessionStatePath; statePath != "" {
		if _, statErr := os.Stat(statePath); statErr == nil {
			logger.Info("Restoring saved session state", zap.String(logg.Path, statePath))
			contextOptions.StorageStatePath = playwright.String(statePath)
		}
	}

	browserContext, err := browser.NewContext(contextOptions)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "context_create_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	m.browserContext = browserContext

	browserContext.SetDefaultTimeout(float64(browserConfig.Timeout))

	page, err := browserContext.NewPage()
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "page_create_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	m.page = page
	m.dispatcher = m.newDispatcher(page)

	m.ready = true
	logger.Info("Browser launched successfully")

	return nil
}

func (m *Manager) newDispatcher(page playwright.Page) *Dispatcher {
	retry := m.config.RetryConfig
	surface := newPageSurface(page,
		time.Duration(m.config.BrowserConfig.Timeout)*time.Millisecond,
		retry.DownloadTimeout)

	return NewDispatcher(surface,
		WithLogger(m.logger),
		WithAlerter(m.alerter),
		WithMetrics(m.metrics),
		WithInteractRetry(retry.InteractAttempts, retry.InteractDelay),
		WithDownloadRetry(retry.DownloadAttempts, retry.DownloadStep, retry.DownloadMaxDelay),
	)
}

// Close tears down page, context, browser and driver. It is safe to call on a
// manager that never launched.
func (m *Manager) Close(ctx context.Context) (err error) {
	const op = "Close"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	if m.playwright == nil {
		return nil
	}

	logger.Info("Closing browser...")

	if m.browserContext != nil {
		if err := m.browserContext.Close(); err != nil {
			logger.Warn("Failed to close context", zap.Error(err))
		}
	}

	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			logger.Warn("Failed to close browser", zap.Error(err))
		}
	}

	stopErr := m.playwright.Stop()

	m.playwright = nil
	m.browser = nil
	m.browserContext = nil
	m.page = nil
	m.dispatcher = nil
	m.ready = false

	if stopErr != nil {
		return apperr.Wrap(op, apperr.CodeInternal, stopErr, map[string]any{
			apperr.MetaReason: "playwright_stop_failed",
		})
	}

	logger.Info("Browser closed")

	return nil
}

func (m *Manager) ensurePageActive() error {
	if m.browserContext == nil {
		return errors.New("browser context is nil")
	}

	if m.page != nil && !m.page.IsClosed() {
		return nil
	}

	m.logger.Info("Page closed, reconnecting to active page...")

	for _, p := range m.browserContext.Pages() {
		if !p.IsClosed() {
			m.page = p
			m.dispatcher = m.newDispatcher(p)
			m.logger.Info("Reconnected to existing page")

			return nil
		}
	}

	page, err := m.browserContext.NewPage()
	if err != nil {
		return fmt.Errorf("failed to create new page: %w", err)
	}

	m.page = page
	m.dispatcher = m.newDispatcher(page)
	m.logger.Info("Created new page")

	return nil
}

func (m *Manager) Navigate(ctx context.Context, url string) (err error) {
	const op = "Navigate"
	logger := m.logger.With(zap.String(logg.Operation, op), zap.String(logg.URL, url))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op, attribute.String("url", url))
	defer func() {
		step.End(err)
	}()

	if !m.ready {
		return apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	if err := m.ensurePageActive(); err != nil {
		return apperr.Wrap(op, apperr.CodeBrowserNotReady, err, map[string]any{
			apperr.MetaReason: "page_not_active",
		})
	}

	step.AddEvent("navigating to URL")

	_, err = m.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(m.config.BrowserConfig.Timeout)),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason: "goto_failed",
			apperr.MetaStage:  apperr.StageNavigation,
			apperr.MetaURL:    url,
		})
	}

	time.Sleep(settleDelay)
	step.AddEvent("navigation completed")

	return nil
}

// SaveSession persists cookies and local storage so the next run can skip
// the interactive login.
func (m *Manager) SaveSession(ctx context.Context) (err error) {
	const op = "SaveSession"
	path := m.config.BrowserConfig.SessionStatePath
	logger := m.logger.With(zap.String(logg.Operation, op), zap.String(logg.Path, path))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	if path == "" {
		return nil
	}

	if !m.ready {
		return apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "mkdir_failed",
			apperr.MetaStage:  apperr.StageSession,
		})
	}

	if _, err := m.browserContext.StorageState(path); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "storage_state_failed",
			apperr.MetaStage:  apperr.StageSession,
			apperr.MetaPath:   path,
		})
	}

	logger.Info("Session state saved")

	return nil
}

// Screenshot captures the current viewport, used as evidence when a job fails.
func (m *Manager) Screenshot(ctx context.Context, path string) (err error) {
	const op = "Screenshot"
	logger := m.logger.With(zap.String(logg.Operation, op), zap.String(logg.Path, path))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	if !m.ready {
		return apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	if err := m.ensurePageActive(); err != nil {
		return apperr.Wrap(op, apperr.CodeBrowserNotReady, err, map[string]any{
			apperr.MetaReason: "page_not_active",
		})
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "mkdir_failed",
		})
	}

	_, err = m.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
		Type:     playwright.ScreenshotTypePng,
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "screenshot_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	return nil
}

// Dispatcher returns the action dispatcher bound to the active page.
func (m *Manager) Dispatcher() (ports.Dispatcher, error) {
	const op = "Dispatcher"

	if !m.ready {
		return nil, apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	if err := m.ensurePageActive(); err != nil {
		return nil, apperr.Wrap(op, apperr.CodeBrowserNotReady, err, map[string]any{
			apperr.MetaReason: "page_not_active",
		})
	}

	return m.dispatcher, nil
}

// CurrentURL is the address of the active page, "" before launch.
func (m *Manager) CurrentURL() string {
	if !m.ready || m.page == nil {
		return ""
	}

	return m.page.URL()
}

func (m *Manager) IsReady() bool {
	return m.ready
}
