package browser

import (
	"context"
	"errors"
	"odoo-rpa/internal/entity"
	"odoo-rpa/internal/metrics"
	"odoo-rpa/pkg/apperr"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestDispatcher(surface Surface, opts ...DispatcherOption) *Dispatcher {
	base := []DispatcherOption{
		WithInteractRetry(3, time.Millisecond),
		WithDownloadRetry(3, time.Millisecond, 2*time.Millisecond),
	}

	return NewDispatcher(surface, append(base, opts...)...)
}

func TestInteract_ClickSucceedsFirstAttempt(t *testing.T) {
	surface := newFakeSurface()
	d := newTestDispatcher(surface)

	text, err := d.Interact(context.Background(), "button.o_list_export", entity.ActionClick, entity.ActionOptions{})

	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Equal(t, 1, surface.element("button.o_list_export").count("click"))
}

func TestInteract_RetriesUntilElementAppears(t *testing.T) {
	surface := newFakeSurface()
	el := surface.element("#login")
	el.exists = []bool{false, false, true}

	d := newTestDispatcher(surface)

	_, err := d.Interact(context.Background(), "#login", entity.ActionFill, entity.ActionOptions{Text: "admin"})

	require.NoError(t, err)
	assert.Equal(t, 3, el.count("exists"))
	assert.Equal(t, 1, el.count("fill"))
	assert.Equal(t, "admin", el.lastArg)
}

func TestInteract_ActionErrorIsRetried(t *testing.T) {
	surface := newFakeSurface()
	el := surface.element(".o_menu_toggle")
	el.actionErr = []error{errDetached, nil}

	d := newTestDispatcher(surface)

	_, err := d.Interact(context.Background(), ".o_menu_toggle", entity.ActionClick, entity.ActionOptions{})

	require.NoError(t, err)
	assert.Equal(t, 2, el.count("click"))
}

func TestInteract_ReadTextReturnsContent(t *testing.T) {
	surface := newFakeSurface()
	el := surface.element(".o_pager_limit")
	el.text = "1-80"

	d := newTestDispatcher(surface)

	text, err := d.Interact(context.Background(), ".o_pager_limit", entity.ActionReadText, entity.ActionOptions{})

	require.NoError(t, err)
	assert.Equal(t, "1-80", text)
}

func TestInteract_DispatchesEveryKind(t *testing.T) {
	cases := []struct {
		kind entity.ActionKind
		opts entity.ActionOptions
		call string
		arg  string
	}{
		{kind: entity.ActionClick, call: "click"},
		{kind: entity.ActionDoubleClick, call: "double_click"},
		{kind: entity.ActionHover, call: "hover"},
		{kind: entity.ActionReadText, call: "read_text"},
		{kind: entity.ActionWait, call: "wait"},
		{kind: entity.ActionFill, opts: entity.ActionOptions{Text: "2024-01"}, call: "fill", arg: "2024-01"},
		{kind: entity.ActionType, opts: entity.ActionOptions{Text: "INV/"}, call: "type", arg: "INV/"},
		{kind: entity.ActionKeyPress, opts: entity.ActionOptions{Key: "Enter"}, call: "key_press", arg: "Enter"},
		{kind: entity.ActionSelectOption, opts: entity.ActionOptions{Label: "Contracts"}, call: "select_option", arg: "Contracts"},
		{kind: entity.ActionPaste, opts: entity.ActionOptions{Text: "pasted"}, call: "paste", arg: "pasted"},
	}

	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			surface := newFakeSurface()
			d := newTestDispatcher(surface)

			_, err := d.Interact(context.Background(), "#target", tc.kind, tc.opts)

			require.NoError(t, err)
			el := surface.element("#target")
			assert.Equal(t, 1, el.count(tc.call))
			assert.Equal(t, tc.arg, el.lastArg)
		})
	}
}

func TestInteract_WaitSkipsPresenceCheckAndUsesDuration(t *testing.T) {
	surface := newFakeSurface()
	el := surface.element(".o_list_view")
	el.exists = []bool{false}

	d := newTestDispatcher(surface, WithDefaultWait(7*time.Second))

	_, err := d.Interact(context.Background(), ".o_list_view", entity.ActionWait, entity.ActionOptions{})
	require.NoError(t, err)

	_, err = d.Interact(context.Background(), ".o_list_view", entity.ActionWait, entity.ActionOptions{Wait: 2 * time.Second})
	require.NoError(t, err)

	assert.Equal(t, 0, el.count("exists"))
	assert.Equal(t, []time.Duration{7 * time.Second, 2 * time.Second}, el.waits)
}

func TestInteract_ExhaustedReturnsErrorAndAlerts(t *testing.T) {
	surface := newFakeSurface()
	el := surface.element("#missing")
	el.exists = []bool{false}

	alerter := &fakeAlerter{}
	recorder := metrics.NewRecorder()
	d := newTestDispatcher(surface, WithAlerter(alerter), WithMetrics(recorder))

	_, err := d.Interact(context.Background(), "#missing", entity.ActionClick, entity.ActionOptions{})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrElementNotFound)
	assert.True(t, apperr.HasCode(err, apperr.CodeExhausted))

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "#missing", appErr.Metadata[apperr.MetaSelector])
	assert.Equal(t, 3, appErr.Metadata[apperr.MetaAttempts])

	assert.Equal(t, 3, el.count("exists"))
	assert.Equal(t, 0, el.count("click"))

	alerts := alerter.sent()
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0].subject, "click")
	assert.Contains(t, alerts[0].body, "#missing")
	assert.Contains(t, alerts[0].body, "3 attempts")
}

func TestInteract_QuietExhaustionDoesNotAlert(t *testing.T) {
	surface := newFakeSurface()
	surface.element(".alert-danger").exists = []bool{false}

	alerter := &fakeAlerter{}
	d := newTestDispatcher(surface, WithAlerter(alerter))

	_, err := d.Interact(context.Background(), ".alert-danger", entity.ActionReadText, entity.ActionOptions{MaxAttempts: 1, Quiet: true})

	assert.True(t, apperr.HasCode(err, apperr.CodeExhausted))
	assert.Empty(t, alerter.sent())
}

func TestInteract_MaxAttemptsOverride(t *testing.T) {
	surface := newFakeSurface()
	el := surface.element("#flaky")
	el.actionErr = []error{errDetached}

	d := newTestDispatcher(surface)

	_, err := d.Interact(context.Background(), "#flaky", entity.ActionHover, entity.ActionOptions{MaxAttempts: 5})

	require.Error(t, err)
	assert.ErrorIs(t, err, errDetached)
	assert.Equal(t, 5, el.count("hover"))
}

func TestTry_ReportsBoolAndNeverAlerts(t *testing.T) {
	surface := newFakeSurface()
	surface.element(".o_list_select_domain").exists = []bool{false}

	alerter := &fakeAlerter{}
	d := newTestDispatcher(surface, WithAlerter(alerter))

	assert.False(t, d.Try(context.Background(), ".o_list_select_domain", entity.ActionClick, entity.ActionOptions{}))
	assert.True(t, d.Try(context.Background(), ".o_cp_action_menus", entity.ActionClick, entity.ActionOptions{}))
	assert.Empty(t, alerter.sent())
}

func TestInteract_RejectsInvalidInput(t *testing.T) {
	surface := newFakeSurface()
	d := newTestDispatcher(surface)

	cases := []struct {
		name    string
		locator string
		kind    entity.ActionKind
		opts    entity.ActionOptions
		field   string
	}{
		{name: "empty locator", locator: "", kind: entity.ActionClick, field: "locator"},
		{name: "unknown kind", locator: "#a", kind: "drag", field: "kind"},
		{name: "key press without key", locator: "#a", kind: entity.ActionKeyPress, field: "options"},
		{name: "select without label", locator: "#a", kind: entity.ActionSelectOption, field: "options"},
		{name: "negative attempts", locator: "#a", kind: entity.ActionClick, opts: entity.ActionOptions{MaxAttempts: -1}, field: "options"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.Interact(context.Background(), tc.locator, tc.kind, tc.opts)

			var appErr *apperr.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, apperr.CodeInvalidArgument, appErr.Code)
			assert.Equal(t, tc.field, appErr.Metadata[apperr.MetaField])
		})
	}

	assert.Empty(t, surface.elements)
}

func TestInteract_ContextCancelledDuringBackoff(t *testing.T) {
	surface := newFakeSurface()
	surface.element("#slow").exists = []bool{false}

	alerter := &fakeAlerter{}
	d := NewDispatcher(surface, WithInteractRetry(3, time.Hour), WithAlerter(alerter))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := d.Interact(ctx, "#slow", entity.ActionClick, entity.ActionOptions{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, apperr.CodeTimeout, apperr.CodeOf(err))
	assert.Equal(t, 1, surface.element("#slow").count("exists"))
	assert.Empty(t, alerter.sent())
}

func TestInteract_WaitsConstantDelayBetweenAttempts(t *testing.T) {
	surface := newFakeSurface()
	surface.element("#missing").exists = []bool{false}

	d := NewDispatcher(surface)
	timer := newFakeTimer()
	timer.use(d)

	_, err := d.Interact(context.Background(), "#missing", entity.ActionClick, entity.ActionOptions{})

	require.Error(t, err)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, timer.waits)
	assert.Equal(t, 3, surface.element("#missing").count("exists"))
}

func TestInteract_CancelledContextMakesNoAttempt(t *testing.T) {
	surface := newFakeSurface()
	d := newTestDispatcher(surface)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Interact(ctx, "#login", entity.ActionClick, entity.ActionOptions{})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, apperr.CodeTimeout, apperr.CodeOf(err))
	assert.Zero(t, surface.element("#login").count("exists"))
}

func TestLinearBackOff_CapsAtLimit(t *testing.T) {
	b := newLinearBackOff(5*time.Second, 15*time.Second)

	assert.Equal(t, 5*time.Second, b.NextBackOff())
	assert.Equal(t, 10*time.Second, b.NextBackOff())
	assert.Equal(t, 15*time.Second, b.NextBackOff())
	assert.Equal(t, 15*time.Second, b.NextBackOff())

	b.Reset()
	assert.Equal(t, 5*time.Second, b.NextBackOff())
}
