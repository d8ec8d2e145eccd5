package browser

import (
	"context"
	"errors"
	"fmt"
	"odoo-rpa/internal/entity"
	"odoo-rpa/internal/metrics"
	"odoo-rpa/pkg/apperr"
	"odoo-rpa/pkg/logg"
	"odoo-rpa/pkg/tracing"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const fallbackExtension = ".bin"

// DownloadFile clicks req.Trigger while waiting for the download it starts,
// saves the file as <Dir>/<Prefix>_<timestamp><ext> and returns that path.
// Before each attempt a blocking modal dialog, if any, is dismissed; a
// disabled trigger counts as a failed attempt. Attempts back off linearly
// (step*attempt, capped).
func (d *Dispatcher) DownloadFile(ctx context.Context, req entity.DownloadRequest) (path string, err error) {
	const op = "DownloadFile"
	logger := d.logger.With(
		zap.String(logg.Operation, op),
		zap.String(logg.Selector, req.Trigger),
	)

	ctx, step := tracing.StartSpan(ctx, d.tracer, logger, op,
		attribute.String("selector", req.Trigger),
		attribute.String("prefix", req.Prefix))
	defer func() {
		step.End(err)
	}()

	switch {
	case req.Trigger == "":
		return "", apperr.InvalidReqError(op, "trigger", errors.New("trigger locator cannot be empty"))
	case req.Prefix == "":
		return "", apperr.InvalidReqError(op, "prefix", errors.New("file prefix cannot be empty"))
	case req.Dir == "":
		return "", apperr.InvalidReqError(op, "dir", errors.New("download directory cannot be empty"))
	case req.MaxAttempts < 0:
		return "", apperr.InvalidReqError(op, "max_attempts", fmt.Errorf("must not be negative, got %d", req.MaxAttempts))
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = d.downloadAttempts
	}

	attempt := 0
	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}

		attempt++
		step.AddEvent("attempt", attribute.Int("attempt", attempt))

		var attemptErr error
		path, attemptErr = d.downloadAttempt(req, logger)
		if attemptErr != nil {
			d.metrics.Download(metrics.OutcomeRetry)
			logger.Warn("Download attempt failed",
				zap.Int(logg.Attempt, attempt),
				zap.Int("max_attempts", maxAttempts),
				zap.Error(attemptErr))
		}

		return attemptErr
	}

	notify := func(_ error, delay time.Duration) {
		logger.Info("Backing off before next download attempt", zap.Duration("delay", delay))
	}

	policy := newLinearBackOff(d.downloadStep, d.downloadMaxDelay)

	lastErr := d.retry(ctx, operation, policy, maxAttempts, notify)
	if lastErr == nil {
		d.metrics.Download(metrics.OutcomeSuccess)
		logger.Info("File downloaded", zap.String(logg.Path, path), zap.Int(logg.Attempt, attempt))

		return path, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(lastErr, ctxErr) {
		return "", apperr.Wrap(op, apperr.CodeTimeout, lastErr, map[string]any{
			apperr.MetaReason:   "context_done",
			apperr.MetaSelector: req.Trigger,
			apperr.MetaAttempts: attempt,
		})
	}

	d.metrics.Download(metrics.OutcomeExhausted)
	logger.Error("Download exhausted all attempts", zap.Error(lastErr))

	d.alert(ctx,
		fmt.Sprintf("RPA download failed: %s", req.Prefix),
		fmt.Sprintf("Download via %q failed after %d attempts.\nLast error: %v", req.Trigger, maxAttempts, lastErr))

	return "", apperr.Wrap(op, apperr.CodeExhausted, lastErr, map[string]any{
		apperr.MetaReason:   "download_exhausted",
		apperr.MetaStage:    apperr.StageDownload,
		apperr.MetaSelector: req.Trigger,
		apperr.MetaAttempts: maxAttempts,
	})
}

func (d *Dispatcher) downloadAttempt(req entity.DownloadRequest, logger *zap.Logger) (string, error) {
	d.dismissBlockingDialog(req.Trigger, logger)

	trigger := d.surface.Locate(req.Trigger)

	found, err := trigger.Exists()
	if err != nil {
		return "", fmt.Errorf("locate trigger: %w", err)
	}

	if !found {
		return "", ErrElementNotFound
	}

	disabled, err := trigger.Disabled()
	if err != nil {
		return "", fmt.Errorf("check trigger state: %w", err)
	}

	if disabled {
		return "", ErrTriggerDisabled
	}

	download, err := d.surface.ExpectDownload(trigger.Click)
	if err != nil {
		return "", fmt.Errorf("capture download: %w", err)
	}

	if err := os.MkdirAll(req.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	path := filepath.Join(req.Dir, downloadFileName(req.Prefix, download.SuggestedFilename(), d.now()))

	if err := download.SaveAs(path); err != nil {
		return "", fmt.Errorf("save download: %w", err)
	}

	return path, nil
}

// dismissBlockingDialog closes a modal that would swallow the trigger click.
// Failures only get logged; the attempt that follows reports the real outcome.
func (d *Dispatcher) dismissBlockingDialog(trigger string, logger *zap.Logger) {
	dialog, err := d.surface.BlockingDialog(trigger)
	if err != nil {
		logger.Debug("Blocking dialog check failed", zap.Error(err))

		return
	}

	if !dialog.Found {
		return
	}

	logger.Warn("Dismissing blocking dialog", zap.String("title", dialog.Title))

	if dialog.CloseLocator != "" {
		err := d.surface.Locate(dialog.CloseLocator).Click()
		if err == nil {
			return
		}

		logger.Debug("Dialog close control failed, falling back to Escape", zap.Error(err))
	}

	if err := d.surface.PressKey("Escape"); err != nil {
		logger.Debug("Escape did not dismiss dialog", zap.Error(err))
	}
}

// downloadFileName builds <prefix>_<ISO timestamp><ext>, with ':' and '.' of
// the timestamp replaced by '-' so the name is portable.
func downloadFileName(prefix, suggested string, at time.Time) string {
	ext := strings.ToLower(filepath.Ext(suggested))
	if ext == "" || ext == "." {
		ext = fallbackExtension
	}

	return fmt.Sprintf("%s_%s%s", prefix, isoStamp(at), ext)
}

func isoStamp(t time.Time) string {
	t = t.UTC()

	return fmt.Sprintf("%s-%03dZ", t.Format("2006-01-02T15-04-05"), t.Nanosecond()/int(time.Millisecond))
}
