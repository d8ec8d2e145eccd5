package usecase

import (
	"context"
	"errors"
	"odoo-rpa/internal/config"
	"odoo-rpa/internal/entity"
	"odoo-rpa/pkg/apperr"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type reportFixture struct {
	service  *ReportService
	counter  *fakeCounter
	renderer *fakeRenderer
	mailer   *fakeMailer
	config   *config.ReportConfig
	dir      string
}

func newReportFixture(t *testing.T) *reportFixture {
	t.Helper()

	dir := t.TempDir()
	f := &reportFixture{
		counter:  &fakeCounter{enabled: true, values: map[string]int64{"helpdesk.ticket": 9, "account.move": 4}},
		renderer: &fakeRenderer{},
		mailer:   &fakeMailer{},
		config: &config.ReportConfig{
			OutputDir:  t.TempDir(),
			Title:      "Helpdesk ticket report",
			SourceJob:  "tickets",
			GroupBy:    []string{"Stage", " Assigned to "},
			Recipients: []string{"support-leads@example.com"},
		},
		dir: dir,
	}

	f.service = NewReportService(ReportServiceParams{
		Config: &config.Config{
			BrowserConfig: &config.BrowserConfig{DownloadDir: dir},
			ReportConfig:  f.config,
		},
		Logger:   zap.NewNop(),
		Counter:  f.counter,
		Renderer: f.renderer,
		Mailer:   f.mailer,
	})
	f.service.now = func() time.Time { return time.Date(2025, 3, 7, 10, 0, 0, 0, time.UTC) }

	return f
}

func (f *reportFixture) write(t *testing.T, name, content string) {
	t.Helper()

	require.NoError(t, os.WriteFile(filepath.Join(f.dir, name), []byte(content), 0o644))
}

func TestReportService_BuildsAndMailsNewestExport(t *testing.T) {
	f := newReportFixture(t)
	f.write(t, "tickets_2025-03-01T08-00-00-000Z.csv", "Stage,Assigned to\nOld,Zed\n")
	f.write(t, "tickets_2025-03-07T09-05-01-234Z.csv", "Stage,Assigned to\nNew,Ana\nNew,Ben\nSolved,Ana\n")
	f.write(t, "billing_2025-03-08T09-05-01-234Z.csv", "Number\n1\n")

	run, err := f.service.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, entity.RunStatusCompleted, run.Status)
	assert.Equal(t, []string{"tickets:render", "tickets:mail"}, stepNames(run))

	require.Len(t, f.renderer.reports, 1)
	report := f.renderer.reports[0]
	assert.Equal(t, "tickets_2025-03-07T09-05-01-234Z.csv", report.Source)
	assert.Equal(t, []entity.Counter{
		{Label: "Open helpdesk tickets", Value: 9},
		{Label: "Unpaid customer invoices", Value: 4},
	}, report.Counters)

	require.Len(t, report.Sections, 2)
	assert.Equal(t, "Stage", report.Sections[0].Column)
	assert.Equal(t, []entity.Counter{{Label: "New", Value: 2}, {Label: "Solved", Value: 1}}, report.Sections[0].Rows)
	assert.Equal(t, int64(3), report.Sections[1].Total())

	wantPDF := filepath.Join(f.config.OutputDir, "tickets_report_2025-03-07.pdf")
	assert.Equal(t, []string{wantPDF}, f.renderer.paths)

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, []string{"support-leads@example.com"}, f.mailer.sent[0].To)
	assert.Equal(t, []string{wantPDF}, f.mailer.sent[0].Attachments)
}

func TestReportService_SkipsCountersWhenRPCDisabledOrFailing(t *testing.T) {
	f := newReportFixture(t)
	f.write(t, "tickets_2025-03-07T09-05-01-234Z.csv", "Stage,Assigned to\nNew,Ana\n")

	f.counter.enabled = false
	_, err := f.service.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.counter.models)
	assert.Empty(t, f.renderer.reports[0].Counters)

	f.counter.enabled = true
	f.counter.err = errors.New("connection refused")
	_, err = f.service.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, f.counter.models, 2)
	assert.Empty(t, f.renderer.reports[1].Counters)
}

func TestReportService_NoRecipientsSkipsMail(t *testing.T) {
	f := newReportFixture(t)
	f.config.Recipients = nil
	f.write(t, "tickets_2025-03-07T09-05-01-234Z.xlsx", "")
	f.write(t, "tickets_2025-03-07T09-05-01-234Z.csv", "Stage,Assigned to\nNew,Ana\n")

	run, err := f.service.Run(context.Background())

	// The .xlsx sorts last but is not a readable workbook.
	require.Error(t, err)
	assert.Equal(t, entity.RunStatusFailed, run.Status)
	assert.Empty(t, f.mailer.sent)

	require.NoError(t, os.Remove(filepath.Join(f.dir, "tickets_2025-03-07T09-05-01-234Z.xlsx")))

	run, err = f.service.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"tickets:render"}, stepNames(run))
	assert.Empty(t, f.mailer.sent)
}

func TestReportService_Failures(t *testing.T) {
	t.Run("no export", func(t *testing.T) {
		f := newReportFixture(t)

		run, err := f.service.Run(context.Background())

		assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
		assert.Equal(t, []string{"tickets:locate"}, stepNames(run))
		assert.Empty(t, f.renderer.reports)
	})

	t.Run("unknown column", func(t *testing.T) {
		f := newReportFixture(t)
		f.config.GroupBy = []string{"Priority"}
		f.write(t, "tickets_2025-03-07T09-05-01-234Z.csv", "Stage\nNew\n")

		_, err := f.service.Run(context.Background())

		var appErr *apperr.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperr.CodeInvalidArgument, appErr.Code)
		assert.Equal(t, "Priority", appErr.Metadata[apperr.MetaField])
	})

	t.Run("mail", func(t *testing.T) {
		f := newReportFixture(t)
		f.mailer.err = errors.New("smtp down")
		f.write(t, "tickets_2025-03-07T09-05-01-234Z.csv", "Stage,Assigned to\nNew,Ana\n")

		run, err := f.service.Run(context.Background())

		require.Error(t, err)
		assert.Equal(t, []string{"tickets:render", "tickets:mail"}, stepNames(run))
		assert.False(t, run.Steps[1].Success)
	})
}
