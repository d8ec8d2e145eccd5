package ports

import (
	"context"
	"odoo-rpa/internal/entity"
)

type BrowserManager interface {
	Launch(ctx context.Context) error
	Close(ctx context.Context) error
	Navigate(ctx context.Context, url string) error
	SaveSession(ctx context.Context) error
	Screenshot(ctx context.Context, path string) error
	Dispatcher() (Dispatcher, error)
	CurrentURL() string
	IsReady() bool
}

// Dispatcher performs retried element actions and download captures on the
// live page.
type Dispatcher interface {
	Interact(ctx context.Context, locator string, kind entity.ActionKind, opts entity.ActionOptions) (string, error)
	Try(ctx context.Context, locator string, kind entity.ActionKind, opts entity.ActionOptions) bool
	DownloadFile(ctx context.Context, req entity.DownloadRequest) (string, error)
}

// Portal is the Odoo web UI as seen by the export jobs.
type Portal interface {
	Login(ctx context.Context) error
	Export(ctx context.Context, job entity.ExportJob) (string, error)
}

// RecordCounter answers server-side record counts for the report.
type RecordCounter interface {
	Enabled() bool
	Count(ctx context.Context, model string, domain []any) (int64, error)
}

type Uploader interface {
	Upload(ctx context.Context, endpoint, path string) (*entity.UploadReceipt, error)
}

type Mailer interface {
	Send(ctx context.Context, mail entity.Mail) error
}

// Alerter delivers operator alerts without blocking the caller.
type Alerter interface {
	Alert(ctx context.Context, subject, body string)
}

type ReportRenderer interface {
	Render(ctx context.Context, report entity.Report, path string) error
}
