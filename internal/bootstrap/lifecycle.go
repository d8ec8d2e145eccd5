package bootstrap

import (
	"context"
	"odoo-rpa/internal/config"
	"odoo-rpa/internal/metrics"
	"odoo-rpa/internal/notify"
	"odoo-rpa/internal/odoo"
	"odoo-rpa/internal/ports"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type shutdownParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Logger    *zap.Logger
	Browser   ports.BrowserManager
	Alerter   *notify.Alerter
	RPC       *odoo.RPCClient
	Metrics   *metrics.Recorder
	Tracer    *sdktrace.TracerProvider
}

// registerShutdown releases whatever a command left open: the browser if a
// run aborted, pending alerts, the RPC connection and the metrics textfile.
func registerShutdown(params shutdownParams) {
	logger := params.Logger

	params.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down odoo-rpa...")

			if err := params.Browser.Close(ctx); err != nil {
				logger.Error("Failed to close browser", zap.Error(err))
			}

			if err := params.Alerter.Wait(ctx); err != nil {
				logger.Warn("Pending alerts abandoned", zap.Error(err))
			}

			if err := params.RPC.Close(); err != nil {
				logger.Warn("Failed to close Odoo API client", zap.Error(err))
			}

			if err := params.Metrics.WriteTextfile(params.Config.AppConfig.MetricsFile); err != nil {
				logger.Error("Failed to write metrics", zap.Error(err))
			}

			_ = logger.Sync()

			return nil
		},
	})
}
