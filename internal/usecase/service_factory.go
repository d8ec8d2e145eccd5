package usecase

import (
	"odoo-rpa/internal/usecase/adapters"
)

type serviceFactory struct {
	deps Params
}

func newServiceFactory(deps Params) *serviceFactory {
	return &serviceFactory{
		deps: deps,
	}
}

func (f *serviceFactory) CreateExportService() adapters.ExportService {
	return NewExportService(ExportServiceParams{
		Config:   f.deps.Config,
		Logger:   f.deps.Logger,
		Browser:  f.deps.Browser,
		Portal:   f.deps.Portal,
		Uploader: f.deps.Uploader,
		Metrics:  f.deps.Metrics,
	})
}

func (f *serviceFactory) CreateReportService() adapters.ReportService {
	return NewReportService(ReportServiceParams{
		Config:   f.deps.Config,
		Logger:   f.deps.Logger,
		Counter:  f.deps.Counter,
		Renderer: f.deps.Renderer,
		Mailer:   f.deps.Mailer,
	})
}
