package browser

import (
	"context"
	"errors"
	"fmt"
	"odoo-rpa/internal/entity"
	"odoo-rpa/internal/metrics"
	"odoo-rpa/internal/ports"
	"odoo-rpa/pkg/apperr"
	"odoo-rpa/pkg/logg"
	"odoo-rpa/pkg/tracing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	dispatcherName    = "Dispatcher"
	dispatcherTracer  = "browser.dispatcher"
	defaultAttempts   = 3
	defaultDelay      = time.Second
	defaultWait       = 5 * time.Second
	defaultDlAttempts = 3
	defaultDlStep     = 5 * time.Second
	defaultDlMaxDelay = 15 * time.Second
)

var (
	ErrElementNotFound = errors.New("element not found")
	ErrTriggerDisabled = errors.New("download trigger is disabled")
)

// Dispatcher runs named actions against elements of a flaky, asynchronously
// rendered page. Every action is retried up to a bound; nothing guarantees
// that a retried action is idempotent.
type Dispatcher struct {
	surface Surface
	logger  *zap.Logger
	tracer  trace.Tracer
	alerter ports.Alerter
	metrics *metrics.Recorder
	now     func() time.Time

	// newTimer drives the waits between attempts; nil uses a real timer.
	newTimer func() backoff.Timer

	maxAttempts int
	delay       time.Duration
	wait        time.Duration

	downloadAttempts int
	downloadStep     time.Duration
	downloadMaxDelay time.Duration
}

type DispatcherOption func(*Dispatcher)

func WithLogger(logger *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger.With(zap.String(logg.Layer, dispatcherName))
	}
}

// WithAlerter makes exhaustion fire an alert before the error is returned.
func WithAlerter(alerter ports.Alerter) DispatcherOption {
	return func(d *Dispatcher) {
		d.alerter = alerter
	}
}

func WithMetrics(recorder *metrics.Recorder) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = recorder
	}
}

func WithInteractRetry(attempts int, delay time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if attempts > 0 {
			d.maxAttempts = attempts
		}
		if delay >= 0 {
			d.delay = delay
		}
	}
}

func WithDownloadRetry(attempts int, step, maxDelay time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if attempts > 0 {
			d.downloadAttempts = attempts
		}
		if step >= 0 {
			d.downloadStep = step
		}
		if maxDelay >= 0 {
			d.downloadMaxDelay = maxDelay
		}
	}
}

func WithDefaultWait(wait time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if wait > 0 {
			d.wait = wait
		}
	}
}

func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		d.now = now
	}
}

func NewDispatcher(surface Surface, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		surface:          surface,
		logger:           zap.NewNop(),
		tracer:           otel.Tracer(dispatcherTracer),
		now:              time.Now,
		maxAttempts:      defaultAttempts,
		delay:            defaultDelay,
		wait:             defaultWait,
		downloadAttempts: defaultDlAttempts,
		downloadStep:     defaultDlStep,
		downloadMaxDelay: defaultDlMaxDelay,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Interact performs kind on the element matched by locator. It returns the
// element text for ActionReadText and "" for every other kind. After the last
// failed attempt it fires an alert, when one is configured and opts.Quiet is
// unset, and returns an error with code apperr.CodeExhausted.
func (d *Dispatcher) Interact(ctx context.Context, locator string, kind entity.ActionKind, opts entity.ActionOptions) (string, error) {
	return d.interact(ctx, locator, kind, opts, !opts.Quiet)
}

// Try is Interact for optional steps: it reports success as a bool and never
// alerts.
func (d *Dispatcher) Try(ctx context.Context, locator string, kind entity.ActionKind, opts entity.ActionOptions) bool {
	_, err := d.interact(ctx, locator, kind, opts, false)

	return err == nil
}

func (d *Dispatcher) interact(
	ctx context.Context,
	locator string,
	kind entity.ActionKind,
	opts entity.ActionOptions,
	alert bool,
) (text string, err error) {
	const op = "Interact"
	logger := d.logger.With(
		zap.String(logg.Operation, op),
		zap.String(logg.Action, string(kind)),
		zap.String(logg.Selector, locator),
	)

	ctx, step := tracing.StartSpan(ctx, d.tracer, logger, op,
		attribute.String("action", string(kind)),
		attribute.String("selector", locator))
	defer func() {
		step.End(err)
	}()

	if locator == "" {
		return "", apperr.InvalidReqError(op, "locator", errors.New("locator cannot be empty"))
	}

	if !kind.Valid() {
		return "", apperr.InvalidReqError(op, "kind", fmt.Errorf("unknown action kind %q", kind))
	}

	if err := opts.Validate(kind); err != nil {
		return "", apperr.InvalidReqError(op, "options", err)
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = d.maxAttempts
	}

	attempt := 0
	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}

		attempt++
		step.AddEvent("attempt", attribute.Int("attempt", attempt))

		var attemptErr error
		text, attemptErr = d.attempt(locator, kind, opts)
		if attemptErr != nil {
			d.metrics.Attempt(string(kind), metrics.OutcomeRetry)
			logger.Warn("Action attempt failed",
				zap.Int(logg.Attempt, attempt),
				zap.Int("max_attempts", maxAttempts),
				zap.Error(attemptErr))
		}

		return attemptErr
	}

	notify := func(_ error, delay time.Duration) {
		logger.Debug("Retrying action", zap.Duration("delay", delay))
	}

	lastErr := d.retry(ctx, operation, backoff.NewConstantBackOff(d.delay), maxAttempts, notify)
	if lastErr == nil {
		d.metrics.Attempt(string(kind), metrics.OutcomeSuccess)

		if attempt > 1 {
			logger.Info("Action succeeded after retry", zap.Int(logg.Attempt, attempt))
		}

		return text, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(lastErr, ctxErr) {
		return "", apperr.Wrap(op, apperr.CodeTimeout, lastErr, map[string]any{
			apperr.MetaReason:   "context_done",
			apperr.MetaSelector: locator,
			apperr.MetaAction:   string(kind),
			apperr.MetaAttempts: attempt,
		})
	}

	d.metrics.Attempt(string(kind), metrics.OutcomeExhausted)
	logger.Error("Action exhausted all attempts", zap.Int("max_attempts", maxAttempts), zap.Error(lastErr))

	if alert {
		d.alert(ctx,
			fmt.Sprintf("RPA action failed: %s", kind),
			fmt.Sprintf("Action %q on %q failed after %d attempts.\nLast error: %v", kind, locator, maxAttempts, lastErr))
	}

	return "", apperr.Wrap(op, apperr.CodeExhausted, lastErr, map[string]any{
		apperr.MetaReason:   "interact_exhausted",
		apperr.MetaStage:    apperr.StageInteraction,
		apperr.MetaSelector: locator,
		apperr.MetaAction:   string(kind),
		apperr.MetaAttempts: maxAttempts,
	})
}

// attempt is one Searching → Found → Acting pass.
func (d *Dispatcher) attempt(locator string, kind entity.ActionKind, opts entity.ActionOptions) (string, error) {
	element := d.surface.Locate(locator)

	if kind == entity.ActionWait {
		wait := opts.Wait
		if wait <= 0 {
			wait = d.wait
		}

		if err := element.WaitVisible(wait); err != nil {
			return "", fmt.Errorf("wait for element: %w", err)
		}

		return "", nil
	}

	found, err := element.Exists()
	if err != nil {
		return "", fmt.Errorf("locate element: %w", err)
	}

	if !found {
		return "", ErrElementNotFound
	}

	return perform(element, kind, opts)
}

func perform(element Element, kind entity.ActionKind, opts entity.ActionOptions) (string, error) {
	var err error

	switch kind {
	case entity.ActionClick:
		err = element.Click()
	case entity.ActionDoubleClick:
		err = element.DoubleClick()
	case entity.ActionHover:
		err = element.Hover()
	case entity.ActionReadText:
		text, err := element.Text()
		if err != nil {
			return "", fmt.Errorf("%s: %w", kind, err)
		}

		return text, nil
	case entity.ActionFill:
		err = element.Fill(opts.Text)
	case entity.ActionType:
		err = element.Type(opts.Text)
	case entity.ActionKeyPress:
		err = element.Press(opts.Key)
	case entity.ActionSelectOption:
		err = element.SelectOption(opts.Label)
	case entity.ActionPaste:
		err = element.Paste(opts.Text)
	default:
		return "", fmt.Errorf("unsupported action kind %q", kind)
	}

	if err != nil {
		return "", fmt.Errorf("%s: %w", kind, err)
	}

	return "", nil
}

// alert hands off to the alerter without waiting on it. The alert gets a
// context detached from ctx so a cancelled step still reports.
func (d *Dispatcher) alert(ctx context.Context, subject, body string) {
	if d.alerter == nil {
		return
	}

	d.alerter.Alert(context.WithoutCancel(ctx), subject, body)
}
