package odoo

import (
	"context"
	"errors"
	"fmt"
	"odoo-rpa/internal/config"
	"odoo-rpa/internal/entity"
	"odoo-rpa/internal/ports"
	"odoo-rpa/pkg/apperr"
	"odoo-rpa/pkg/logg"
	"odoo-rpa/pkg/tracing"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	portalName   = "Portal"
	portalTracer = "odoo.portal"

	sessionCheckWait = 3 * time.Second
	shellWait        = 20 * time.Second
	listWait         = 20 * time.Second
	dialogWait       = 10 * time.Second
	selectionWait    = 3 * time.Second
	domainLinkWait   = time.Second
)

// Portal drives the Odoo web client through the browser dispatcher.
type Portal struct {
	config  *config.Config
	logger  *zap.Logger
	tracer  trace.Tracer
	browser ports.BrowserManager
	now     func() time.Time
}

type PortalParams struct {
	fx.In

	Config  *config.Config
	Logger  *zap.Logger
	Browser ports.BrowserManager
}

func NewPortal(params PortalParams) *Portal {
	return &Portal{
		config:  params.Config,
		logger:  params.Logger.With(zap.String(logg.Layer, portalName)),
		tracer:  otel.Tracer(portalTracer),
		browser: params.Browser,
		now:     time.Now,
	}
}

func (p *Portal) baseURL() string {
	return strings.TrimRight(p.config.OdooConfig.URL, "/")
}

// Login opens the login page and signs in unless the restored session already
// lands in the backend. A fresh session is saved for the next run.
func (p *Portal) Login(ctx context.Context) (err error) {
	const op = "Login"
	logger := p.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, p.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	if err := p.browser.Navigate(ctx, p.baseURL()+"/web/login"); err != nil {
		return err
	}

	d, err := p.browser.Dispatcher()
	if err != nil {
		return err
	}

	if d.Try(ctx, SelectorMainNavbar, entity.ActionWait, entity.ActionOptions{Wait: sessionCheckWait, MaxAttempts: 1}) {
		logger.Info("Restored session is still valid")
		step.AddEvent("session reused")

		return nil
	}

	odooConfig := p.config.OdooConfig

	if odooConfig.Database != "" {
		d.Try(ctx, SelectorDatabaseInput, entity.ActionSelectOption, entity.ActionOptions{Label: odooConfig.Database, MaxAttempts: 1})
	}

	if _, err := d.Interact(ctx, SelectorLoginInput, entity.ActionFill, entity.ActionOptions{Text: odooConfig.Login}); err != nil {
		return err
	}

	if _, err := d.Interact(ctx, SelectorPasswordInput, entity.ActionFill, entity.ActionOptions{Text: odooConfig.Password}); err != nil {
		return err
	}

	if _, err := d.Interact(ctx, SelectorLoginButton, entity.ActionClick, entity.ActionOptions{}); err != nil {
		return err
	}

	if _, err := d.Interact(ctx, SelectorMainNavbar, entity.ActionWait, entity.ActionOptions{Wait: shellWait}); err != nil {
		reason := "backend_not_reached"
		banner := entity.ActionOptions{MaxAttempts: 1, Quiet: true}
		if text, readErr := d.Interact(ctx, SelectorLoginError, entity.ActionReadText, banner); readErr == nil {
			reason = strings.TrimSpace(text)
		}

		return apperr.Wrap(op, apperr.CodeUnauthenticated, err, map[string]any{
			apperr.MetaReason: reason,
			apperr.MetaStage:  apperr.StageSession,
			apperr.MetaURL:    p.browser.CurrentURL(),
		})
	}

	logger.Info("Logged in", zap.String("login", odooConfig.Login))

	if err := p.browser.SaveSession(ctx); err != nil {
		logger.Warn("Failed to save session state", zap.Error(err))
	}

	return nil
}

// Export runs one saved-template export from the job's list view and returns
// the path of the downloaded file.
func (p *Portal) Export(ctx context.Context, job entity.ExportJob) (path string, err error) {
	const op = "Export"
	logger := p.logger.With(zap.String(logg.Operation, op), zap.String(logg.Job, job.Name))

	ctx, step := tracing.StartSpan(ctx, p.tracer, logger, op, attribute.String("job", job.Name))
	defer func() {
		step.End(err)
	}()

	if err := validateJob(job); err != nil {
		return "", apperr.InvalidReqError(op, "job", err)
	}

	if err := p.browser.Navigate(ctx, p.baseURL()+job.ActionPath); err != nil {
		return "", err
	}

	d, err := p.browser.Dispatcher()
	if err != nil {
		return "", err
	}

	fail := func(err error, reason string) (string, error) {
		return "", apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason: reason,
			apperr.MetaStage:  apperr.StageExport,
			apperr.MetaJob:    job.Name,
		})
	}

	if _, err := d.Interact(ctx, SelectorListView, entity.ActionWait, entity.ActionOptions{Wait: listWait}); err != nil {
		return fail(err, "list_view_missing")
	}

	if job.Search != nil {
		if term := job.Search(p.now()); term != "" {
			logger.Info("Filtering list", zap.String("search", term))

			if _, err := d.Interact(ctx, SelectorSearchInput, entity.ActionFill, entity.ActionOptions{Text: term}); err != nil {
				return fail(err, "search_failed")
			}

			if _, err := d.Interact(ctx, SelectorSearchInput, entity.ActionKeyPress, entity.ActionOptions{Key: "Enter"}); err != nil {
				return fail(err, "search_failed")
			}

			if _, err := d.Interact(ctx, SelectorListView, entity.ActionWait, entity.ActionOptions{Wait: listWait}); err != nil {
				return fail(err, "list_view_missing")
			}
		}
	}

	if _, err := d.Interact(ctx, SelectorSelectAllRows, entity.ActionClick, entity.ActionOptions{}); err != nil {
		return fail(err, "select_rows_failed")
	}

	// The selection box renders a frame after the checkbox click. The domain
	// link inside it only exists when the result spans more than one page.
	if !d.Try(ctx, SelectorSelectionBox, entity.ActionWait, entity.ActionOptions{Wait: selectionWait, MaxAttempts: 1}) {
		logger.Warn("Selection box did not render, exporting the visible page only")
	} else if d.Try(ctx, SelectorSelectAllRecords, entity.ActionWait, entity.ActionOptions{Wait: domainLinkWait, MaxAttempts: 1}) {
		if _, err := d.Interact(ctx, SelectorSelectAllRecords, entity.ActionClick, entity.ActionOptions{}); err != nil {
			return fail(err, "select_domain_failed")
		}

		step.AddEvent("selected whole domain")
	}

	if _, err := d.Interact(ctx, SelectorActionMenu, entity.ActionClick, entity.ActionOptions{}); err != nil {
		return fail(err, "action_menu_failed")
	}

	if _, err := d.Interact(ctx, SelectorActionMenuExport, entity.ActionClick, entity.ActionOptions{}); err != nil {
		return fail(err, "export_menu_failed")
	}

	if _, err := d.Interact(ctx, SelectorExportDialog, entity.ActionWait, entity.ActionOptions{Wait: dialogWait}); err != nil {
		return fail(err, "export_dialog_missing")
	}

	formatSelector := SelectorExportFormatCSV
	if job.Format == entity.FormatXLSX {
		formatSelector = SelectorExportFormatXLSX
	}

	if _, err := d.Interact(ctx, formatSelector, entity.ActionClick, entity.ActionOptions{}); err != nil {
		return fail(err, "format_select_failed")
	}

	if _, err := d.Interact(ctx, SelectorExportTemplate, entity.ActionSelectOption, entity.ActionOptions{Label: job.Template}); err != nil {
		return fail(err, "template_select_failed")
	}

	step.AddEvent("export dialog configured")

	path, err = d.DownloadFile(ctx, entity.DownloadRequest{
		Trigger: SelectorExportButton,
		Prefix:  job.Prefix,
		Dir:     p.config.BrowserConfig.DownloadDir,
	})
	if err != nil {
		return "", err
	}

	d.Try(ctx, SelectorExportCloseButton, entity.ActionClick, entity.ActionOptions{MaxAttempts: 1})

	logger.Info("Export downloaded", zap.String(logg.Path, path))

	return path, nil
}

func validateJob(job entity.ExportJob) error {
	switch {
	case job.Name == "":
		return errors.New("job name is empty")
	case job.ActionPath == "":
		return fmt.Errorf("job %s has no action path", job.Name)
	case job.Template == "":
		return fmt.Errorf("job %s has no export template", job.Name)
	case job.Prefix == "":
		return fmt.Errorf("job %s has no file prefix", job.Name)
	case job.Format != entity.FormatCSV && job.Format != entity.FormatXLSX:
		return fmt.Errorf("job %s has unsupported format %q", job.Name, job.Format)
	}

	return nil
}
