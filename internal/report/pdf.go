package report

import (
	"context"
	"errors"
	"fmt"
	"odoo-rpa/internal/entity"
	"odoo-rpa/pkg/apperr"
	"odoo-rpa/pkg/logg"
	"odoo-rpa/pkg/tracing"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-pdf/fpdf"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	rendererName   = "PDFRenderer"
	rendererTracer = "report.pdf"

	fontFamily = "Helvetica"
	keyWidth   = 140.0
	countWidth = 40.0
	rowHeight  = 7.0
)

// PDFRenderer lays a report out on A4 pages.
type PDFRenderer struct {
	logger *zap.Logger
	tracer trace.Tracer
}

type Params struct {
	fx.In

	Logger *zap.Logger
}

func NewPDFRenderer(params Params) *PDFRenderer {
	return &PDFRenderer{
		logger: params.Logger.With(zap.String(logg.Layer, rendererName)),
		tracer: otel.Tracer(rendererTracer),
	}
}

func (r *PDFRenderer) Render(ctx context.Context, report entity.Report, path string) (err error) {
	const op = "Render"
	logger := r.logger.With(zap.String(logg.Operation, op), zap.String(logg.Path, path))

	_, step := tracing.StartSpan(ctx, r.tracer, logger, op, attribute.Int("sections", len(report.Sections)))
	defer func() {
		step.End(err)
	}()

	if path == "" {
		return apperr.InvalidReqError(op, "path", errors.New("output path is empty"))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "mkdir_failed",
			apperr.MetaStage:  apperr.StageReport,
		})
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetTitle(report.Title, true)
	pdf.SetCreator("odoo-rpa", true)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(fontFamily, "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AliasNbPages("")
	pdf.AddPage()

	pdf.SetFont(fontFamily, "B", 18)
	pdf.CellFormat(0, 12, tr(report.Title), "", 1, "L", false, 0, "")

	pdf.SetFont(fontFamily, "", 10)
	pdf.CellFormat(0, 6, tr("Generated "+report.GeneratedAt.Format("2006-01-02 15:04 MST")), "", 1, "L", false, 0, "")
	if report.Source != "" {
		pdf.CellFormat(0, 6, tr("Source: "+report.Source), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	if len(report.Counters) > 0 {
		heading(pdf, tr("Server totals"))
		for _, counter := range report.Counters {
			row(pdf, tr(counter.Label), counter.Value, false)
		}
		pdf.Ln(4)
	}

	for _, section := range report.Sections {
		heading(pdf, tr(section.Title))

		pdf.SetFont(fontFamily, "B", 10)
		pdf.SetFillColor(221, 235, 247)
		pdf.CellFormat(keyWidth, rowHeight, tr(section.Column), "1", 0, "L", true, 0, "")
		pdf.CellFormat(countWidth, rowHeight, "Count", "1", 1, "R", true, 0, "")

		for i, group := range section.Rows {
			row(pdf, tr(group.Label), group.Value, i%2 == 1)
		}

		pdf.SetFont(fontFamily, "B", 10)
		pdf.CellFormat(keyWidth, rowHeight, "Total", "1", 0, "L", false, 0, "")
		pdf.CellFormat(countWidth, rowHeight, strconv.FormatInt(section.Total(), 10), "1", 1, "R", false, 0, "")
		pdf.Ln(6)
	}

	if err := pdf.OutputFileAndClose(path); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "pdf_write_failed",
			apperr.MetaStage:  apperr.StageReport,
			apperr.MetaPath:   path,
		})
	}

	logger.Info("Report rendered", zap.Int("sections", len(report.Sections)))

	return nil
}

func heading(pdf *fpdf.Fpdf, text string) {
	pdf.SetFont(fontFamily, "B", 13)
	pdf.CellFormat(0, 9, text, "", 1, "L", false, 0, "")
}

func row(pdf *fpdf.Fpdf, label string, value int64, shaded bool) {
	pdf.SetFont(fontFamily, "", 10)
	pdf.SetFillColor(245, 245, 245)
	pdf.CellFormat(keyWidth, rowHeight, label, "1", 0, "L", shaded, 0, "")
	pdf.CellFormat(countWidth, rowHeight, strconv.FormatInt(value, 10), "1", 1, "R", shaded, 0, "")
}
