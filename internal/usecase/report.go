package usecase

import (
	"context"
	"fmt"
	"odoo-rpa/internal/config"
	"odoo-rpa/internal/entity"
	"odoo-rpa/internal/odoo"
	"odoo-rpa/internal/ports"
	"odoo-rpa/internal/sheet"
	"odoo-rpa/pkg/apperr"
	"odoo-rpa/pkg/logg"
	"odoo-rpa/pkg/tracing"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	reportServiceName = "ReportService"
	reportTracer      = "usecase.report"
)

type serverCounter struct {
	Label  string
	Model  string
	Domain []any
}

// Totals read straight from the database so the report can be checked
// against the exported rows.
var serverCounters = []serverCounter{
	{
		Label:  "Open helpdesk tickets",
		Model:  "helpdesk.ticket",
		Domain: []any{[]any{"stage_id.fold", "=", false}},
	},
	{
		Label: "Unpaid customer invoices",
		Model: "account.move",
		Domain: []any{
			[]any{"move_type", "=", "out_invoice"},
			[]any{"state", "=", "posted"},
			[]any{"payment_state", "in", []any{"not_paid", "partial"}},
		},
	},
}

// ReportService summarises the newest export of a job into a PDF and mails it.
type ReportService struct {
	config   *config.Config
	logger   *zap.Logger
	tracer   trace.Tracer
	counter  ports.RecordCounter
	renderer ports.ReportRenderer
	mailer   ports.Mailer
	now      func() time.Time
}

type ReportServiceParams struct {
	fx.In

	Config   *config.Config
	Logger   *zap.Logger
	Counter  ports.RecordCounter
	Renderer ports.ReportRenderer
	Mailer   ports.Mailer
}

func NewReportService(params ReportServiceParams) *ReportService {
	return &ReportService{
		config:   params.Config,
		logger:   params.Logger.With(zap.String(logg.Layer, reportServiceName)),
		tracer:   otel.Tracer(reportTracer),
		counter:  params.Counter,
		renderer: params.Renderer,
		mailer:   params.Mailer,
		now:      time.Now,
	}
}

func (s *ReportService) Run(ctx context.Context) (run *entity.Run, err error) {
	const op = "Run"
	logger := s.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	reportConfig := s.config.ReportConfig

	run = entity.NewRun("report")
	step.SetAttributes(attribute.String("run_id", run.ID.String()))
	logger = logger.With(zap.String(logg.RunID, run.ID.String()), zap.String(logg.Job, reportConfig.SourceJob))

	fail := func(stepName string, err error) (*entity.Run, error) {
		failed := entity.NewStep(reportConfig.SourceJob, stepName)
		failed.Error = err.Error()
		run.Record(failed)
		run.Fail(err)
		logger.Error("Report run failed", zap.String("step", stepName), zap.Error(err))

		return run, err
	}

	source, err := s.latestExport(reportConfig.SourceJob)
	if err != nil {
		return fail("locate", err)
	}

	table, err := sheet.Read(source)
	if err != nil {
		return fail("read", apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "read_export_failed",
			apperr.MetaStage:  apperr.StageReport,
			apperr.MetaPath:   source,
		}))
	}

	report := entity.Report{
		Title:       reportConfig.Title,
		Source:      filepath.Base(source),
		GeneratedAt: s.now(),
		Counters:    s.countServerRecords(ctx),
	}

	for _, column := range reportConfig.GroupBy {
		column = strings.TrimSpace(column)
		if column == "" {
			continue
		}

		groups, err := table.GroupCount(column)
		if err != nil {
			return fail("group", apperr.Wrap(op, apperr.CodeInvalidArgument, err, map[string]any{
				apperr.MetaReason: "unknown_column",
				apperr.MetaStage:  apperr.StageReport,
				apperr.MetaField:  column,
			}))
		}

		section := entity.ReportSection{
			Title:  fmt.Sprintf("%d rows by %s", len(table.Rows), column),
			Column: column,
			Rows:   make([]entity.Counter, 0, len(groups)),
		}
		for _, g := range groups {
			section.Rows = append(section.Rows, entity.Counter{Label: g.Key, Value: g.Count})
		}

		report.Sections = append(report.Sections, section)
	}

	output := filepath.Join(reportConfig.OutputDir,
		fmt.Sprintf("%s_report_%s.pdf", reportConfig.SourceJob, s.now().UTC().Format("2006-01-02")))

	renderStep := entity.NewStep(reportConfig.SourceJob, "render")
	if err := s.renderer.Render(ctx, report, output); err != nil {
		return fail("render", err)
	}
	renderStep.Path = output
	renderStep.Success = true
	run.Record(renderStep)

	if len(reportConfig.Recipients) == 0 {
		logger.Info("No report recipients configured, skipping mail", zap.String(logg.Path, output))
		run.Complete()

		return run, nil
	}

	mailStep := entity.NewStep(reportConfig.SourceJob, "mail")
	err = s.mailer.Send(ctx, entity.Mail{
		To:          reportConfig.Recipients,
		Subject:     fmt.Sprintf("%s (%s)", reportConfig.Title, s.now().Format("2006-01-02")),
		Body:        fmt.Sprintf("Attached is the report built from %s.\n", report.Source),
		Attachments: []string{output},
	})
	if err != nil {
		return fail("mail", err)
	}
	mailStep.Path = output
	mailStep.Success = true
	run.Record(mailStep)

	run.Complete()
	logger.Info("Report run completed", zap.String(logg.Path, output))

	return run, nil
}

// latestExport finds the newest download of job. File names carry an ISO
// timestamp, so the lexically greatest name is the newest.
func (s *ReportService) latestExport(jobName string) (string, error) {
	const op = "LatestExport"

	prefix := jobName
	if jobs, err := odoo.LookupJobs(jobName); err == nil && len(jobs) == 1 {
		prefix = jobs[0].Prefix
	}

	dir := s.config.BrowserConfig.DownloadDir

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", apperr.NotFoundError(op, err)
	}

	var candidates []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix+"_") {
			continue
		}

		switch strings.ToLower(filepath.Ext(name)) {
		case ".csv", ".xlsx":
			candidates = append(candidates, name)
		}
	}

	if len(candidates) == 0 {
		return "", apperr.NotFoundError(op, fmt.Errorf("no %s export in %s", jobName, dir))
	}

	sort.Strings(candidates)

	return filepath.Join(dir, candidates[len(candidates)-1]), nil
}

func (s *ReportService) countServerRecords(ctx context.Context) []entity.Counter {
	if s.counter == nil || !s.counter.Enabled() {
		return nil
	}

	counters := make([]entity.Counter, 0, len(serverCounters))
	for _, c := range serverCounters {
		value, err := s.counter.Count(ctx, c.Model, c.Domain)
		if err != nil {
			s.logger.Warn("Server count failed, leaving it out of the report",
				zap.String("model", c.Model), zap.Error(err))

			continue
		}

		counters = append(counters, entity.Counter{Label: c.Label, Value: value})
	}

	return counters
}
