package usecase

import (
	"odoo-rpa/internal/config"
	"odoo-rpa/internal/metrics"
	"odoo-rpa/internal/ports"
	"odoo-rpa/internal/usecase/adapters"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Service struct {
	Export adapters.ExportService
	Report adapters.ReportService
}

type Params struct {
	fx.In

	Logger   *zap.Logger
	Config   *config.Config
	Browser  ports.BrowserManager
	Portal   ports.Portal
	Uploader ports.Uploader
	Counter  ports.RecordCounter
	Renderer ports.ReportRenderer
	Mailer   ports.Mailer
	Metrics  *metrics.Recorder `optional:"true"`
}

func NewUsecase(params Params) *Service {
	factory := newServiceFactory(params)

	return &Service{
		Export: factory.CreateExportService(),
		Report: factory.CreateReportService(),
	}
}
