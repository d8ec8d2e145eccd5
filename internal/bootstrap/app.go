package bootstrap

import (
	"odoo-rpa/internal/browser"
	"odoo-rpa/internal/config"
	"odoo-rpa/internal/metrics"
	"odoo-rpa/internal/notify"
	"odoo-rpa/internal/odoo"
	"odoo-rpa/internal/ports"
	"odoo-rpa/internal/report"
	"odoo-rpa/internal/upload"
	"odoo-rpa/internal/usecase"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewApp wires every component. Callers add fx.Populate or fx.Invoke options
// to reach the services they need.
func NewApp(opts ...fx.Option) *fx.App {
	base := []fx.Option{
		fx.Provide(
			config.GetConfig,
			newLogger,
			newTraceProvider,
			metrics.NewRecorder,

			fx.Annotate(notify.NewMailer, fx.As(new(ports.Mailer))),
			fx.Annotate(notify.NewAlerter, fx.As(fx.Self()), fx.As(new(ports.Alerter))),

			fx.Annotate(browser.NewManager, fx.As(new(ports.BrowserManager))),
			fx.Annotate(odoo.NewPortal, fx.As(new(ports.Portal))),
			fx.Annotate(odoo.NewRPCClient, fx.As(fx.Self()), fx.As(new(ports.RecordCounter))),
			fx.Annotate(upload.NewClient, fx.As(new(ports.Uploader))),
			fx.Annotate(report.NewPDFRenderer, fx.As(new(ports.ReportRenderer))),

			usecase.NewUsecase,
		),

		fx.Invoke(
			registerShutdown,
		),

		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			fxLogger := &fxevent.ZapLogger{Logger: logger.Named("fx")}
			fxLogger.UseLogLevel(zapcore.DebugLevel)

			return fxLogger
		}),

		fx.StartTimeout(10 * time.Second),
		fx.StopTimeout(30 * time.Second),
	}

	return fx.New(append(base, opts...)...)
}
