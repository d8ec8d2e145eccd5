package usecase

import (
	"context"
	"odoo-rpa/internal/entity"
	"odoo-rpa/internal/ports"
	"os"
)

type fakeBrowser struct {
	launchErr   error
	ready       bool
	launched    int
	closed      int
	screenshots []string
}

func (b *fakeBrowser) Launch(context.Context) error {
	b.launched++
	if b.launchErr != nil {
		return b.launchErr
	}

	b.ready = true

	return nil
}

func (b *fakeBrowser) Close(context.Context) error {
	b.closed++
	b.ready = false

	return nil
}

func (b *fakeBrowser) Navigate(context.Context, string) error { return nil }
func (b *fakeBrowser) SaveSession(context.Context) error      { return nil }

func (b *fakeBrowser) Screenshot(_ context.Context, path string) error {
	b.screenshots = append(b.screenshots, path)

	return nil
}

func (b *fakeBrowser) Dispatcher() (ports.Dispatcher, error) { return nil, nil }
func (b *fakeBrowser) CurrentURL() string                    { return "https://odoo.example.com/web" }
func (b *fakeBrowser) IsReady() bool                         { return b.ready }

type fakePortal struct {
	loginErr  error
	paths     map[string]string
	errs      map[string]error
	exported  []string
	loginRuns int
}

func (p *fakePortal) Login(context.Context) error {
	p.loginRuns++

	return p.loginErr
}

func (p *fakePortal) Export(_ context.Context, job entity.ExportJob) (string, error) {
	p.exported = append(p.exported, job.Name)

	if err := p.errs[job.Name]; err != nil {
		return "", err
	}

	return p.paths[job.Name], nil
}

type upload struct {
	endpoint string
	path     string
}

type fakeUploader struct {
	uploads []upload
	err     error
}

func (u *fakeUploader) Upload(_ context.Context, endpoint, path string) (*entity.UploadReceipt, error) {
	u.uploads = append(u.uploads, upload{endpoint: endpoint, path: path})
	if u.err != nil {
		return nil, u.err
	}

	return &entity.UploadReceipt{ID: "imp-" + endpoint, Rows: 3}, nil
}

type fakeCounter struct {
	enabled bool
	values  map[string]int64
	err     error
	models  []string
}

func (c *fakeCounter) Enabled() bool { return c.enabled }

func (c *fakeCounter) Count(_ context.Context, model string, _ []any) (int64, error) {
	c.models = append(c.models, model)
	if c.err != nil {
		return 0, c.err
	}

	return c.values[model], nil
}

type fakeRenderer struct {
	reports []entity.Report
	paths   []string
}

func (r *fakeRenderer) Render(_ context.Context, report entity.Report, path string) error {
	r.reports = append(r.reports, report)
	r.paths = append(r.paths, path)

	return os.WriteFile(path, []byte("%PDF-1.3"), 0o644)
}

type fakeMailer struct {
	sent []entity.Mail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, mail entity.Mail) error {
	m.sent = append(m.sent, mail)

	return m.err
}
