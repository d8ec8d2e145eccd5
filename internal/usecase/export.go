package usecase

import (
	"context"
	"fmt"
	"odoo-rpa/internal/config"
	"odoo-rpa/internal/entity"
	"odoo-rpa/internal/metrics"
	"odoo-rpa/internal/odoo"
	"odoo-rpa/internal/ports"
	"odoo-rpa/internal/sheet"
	"odoo-rpa/pkg/apperr"
	"odoo-rpa/pkg/logg"
	"odoo-rpa/pkg/tracing"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	exportServiceName = "ExportService"
	exportTracer      = "usecase.export"
	failureDir        = "failures"
)

// ExportService runs export jobs end to end: browser session, Odoo export,
// optional conversion and upload.
type ExportService struct {
	config   *config.Config
	logger   *zap.Logger
	tracer   trace.Tracer
	browser  ports.BrowserManager
	portal   ports.Portal
	uploader ports.Uploader
	metrics  *metrics.Recorder
	lookup   func(names ...string) ([]entity.ExportJob, error)
	convert  func(path string) (string, error)
	now      func() time.Time
}

type ExportServiceParams struct {
	fx.In

	Config   *config.Config
	Logger   *zap.Logger
	Browser  ports.BrowserManager
	Portal   ports.Portal
	Uploader ports.Uploader
	Metrics  *metrics.Recorder `optional:"true"`
}

func NewExportService(params ExportServiceParams) *ExportService {
	return &ExportService{
		config:   params.Config,
		logger:   params.Logger.With(zap.String(logg.Layer, exportServiceName)),
		tracer:   otel.Tracer(exportTracer),
		browser:  params.Browser,
		portal:   params.Portal,
		uploader: params.Uploader,
		metrics:  params.Metrics,
		lookup:   odoo.LookupJobs,
		convert:  sheet.ConvertCSV,
		now:      time.Now,
	}
}

// Run executes the named jobs in order, or every job when names is empty.
// The first failing job ends the run. The browser is closed on every path.
func (s *ExportService) Run(ctx context.Context, names ...string) (run *entity.Run, err error) {
	const op = "Run"
	logger := s.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op, attribute.StringSlice("jobs", names))
	defer func() {
		step.End(err)
	}()

	jobs, err := s.lookup(names...)
	if err != nil {
		return nil, apperr.InvalidReqError(op, "jobs", err)
	}

	if err := s.config.OdooConfig.ValidateSession(); err != nil {
		return nil, apperr.InvalidReqError(op, "odoo", err)
	}

	run = entity.NewRun("export")
	step.SetAttributes(attribute.String("run_id", run.ID.String()))
	logger = logger.With(zap.String(logg.RunID, run.ID.String()))
	logger.Info("Export run started", zap.Int("jobs", len(jobs)))

	fail := func(err error) (*entity.Run, error) {
		run.Fail(err)
		logger.Error("Export run failed", zap.Error(err))

		return run, err
	}

	defer func() {
		if closeErr := s.browser.Close(context.WithoutCancel(ctx)); closeErr != nil {
			logger.Warn("Failed to close browser", zap.Error(closeErr))
		}
	}()

	if err := s.browser.Launch(ctx); err != nil {
		return fail(err)
	}

	login := entity.NewStep("", "login")
	if err := s.portal.Login(ctx); err != nil {
		s.record(run, login, "", err)
		s.captureFailure(ctx, "login")

		return fail(err)
	}
	s.record(run, login, "", nil)

	for _, job := range jobs {
		started := s.now()
		err := s.runJob(ctx, run, job)
		s.metrics.Job(job.Name, s.now().Sub(started), err)

		if err != nil {
			s.captureFailure(ctx, job.Name)

			return fail(apperr.Wrap(op, codeOr(err, apperr.CodeActionFailed), err, map[string]any{
				apperr.MetaReason: "job_failed",
				apperr.MetaJob:    job.Name,
				apperr.MetaRunID:  run.ID.String(),
			}))
		}
	}

	run.Complete()
	logger.Info("Export run completed", zap.Int("steps", len(run.Steps)))

	return run, nil
}

func (s *ExportService) runJob(ctx context.Context, run *entity.Run, job entity.ExportJob) error {
	logger := s.logger.With(zap.String(logg.RunID, run.ID.String()), zap.String(logg.Job, job.Name))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, "Job", attribute.String("job", job.Name))

	var err error
	defer func() {
		step.End(err)
	}()

	exportStep := entity.NewStep(job.Name, "export")
	path, err := s.portal.Export(ctx, job)
	s.record(run, exportStep, path, err)
	if err != nil {
		return err
	}

	if job.ConvertXLSX && strings.EqualFold(filepath.Ext(path), ".csv") {
		convertStep := entity.NewStep(job.Name, "convert")

		var converted string
		converted, err = s.convert(path)
		if err != nil {
			err = apperr.Wrap("Convert", apperr.CodeInternal, err, map[string]any{
				apperr.MetaReason: "convert_failed",
				apperr.MetaStage:  apperr.StageConvert,
				apperr.MetaPath:   path,
			})
		}
		s.record(run, convertStep, converted, err)
		if err != nil {
			return err
		}

		path = converted
	}

	if !s.uploadEnabled() || job.Endpoint == "" {
		logger.Info("Upload skipped", zap.String(logg.Path, path))

		return nil
	}

	uploadStep := entity.NewStep(job.Name, "upload")
	receipt, err := s.uploader.Upload(ctx, job.Endpoint, path)
	uploadStep.Receipt = receipt
	s.record(run, uploadStep, path, err)

	return err
}

func (s *ExportService) uploadEnabled() bool {
	return s.uploader != nil && s.config.UploadConfig != nil && s.config.UploadConfig.BaseURL != ""
}

func (s *ExportService) record(run *entity.Run, step entity.Step, path string, err error) {
	step.Path = path
	step.Success = err == nil
	if err != nil {
		step.Error = err.Error()
	}

	run.Record(step)
}

// captureFailure saves a screenshot of the page a job died on.
func (s *ExportService) captureFailure(ctx context.Context, name string) {
	if !s.browser.IsReady() {
		return
	}

	path := filepath.Join(s.config.BrowserConfig.DownloadDir, failureDir,
		fmt.Sprintf("%s_%s.png", name, s.now().UTC().Format("20060102T150405Z")))

	if err := s.browser.Screenshot(context.WithoutCancel(ctx), path); err != nil {
		s.logger.Warn("Failed to capture failure screenshot", zap.Error(err))

		return
	}

	s.logger.Info("Failure screenshot saved",
		zap.String(logg.Path, path), zap.String(logg.URL, s.browser.CurrentURL()))
}

func codeOr(err error, fallback string) string {
	if code := apperr.CodeOf(err); code != "" {
		return code
	}

	return fallback
}
