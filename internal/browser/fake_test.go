package browser

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// fakeElement answers from per-call scripts; calls past the end of a script
// reuse its last entry.
type fakeElement struct {
	mu        sync.Mutex
	exists    []bool
	disabled  []bool
	actionErr []error
	text      string
	calls     map[string]int
	lastArg   string
	waits     []time.Duration
}

func newFakeElement() *fakeElement {
	return &fakeElement{calls: make(map[string]int)}
}

func pick[T any](script []T, n int, zero T) T {
	if len(script) == 0 {
		return zero
	}

	if n >= len(script) {
		return script[len(script)-1]
	}

	return script[n]
}

func (e *fakeElement) count(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.calls[name]
}

func (e *fakeElement) record(name, arg string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := e.calls[name]
	e.calls[name] = n + 1
	if arg != "" {
		e.lastArg = arg
	}

	return n
}

func (e *fakeElement) act(name, arg string) error {
	e.record(name, arg)

	e.mu.Lock()
	defer e.mu.Unlock()

	n := e.calls["action"]
	e.calls["action"] = n + 1

	return pick(e.actionErr, n, nil)
}

func (e *fakeElement) Exists() (bool, error) {
	n := e.record("exists", "")

	return pick(e.exists, n, true), nil
}

func (e *fakeElement) Disabled() (bool, error) {
	n := e.record("disabled", "")

	return pick(e.disabled, n, false), nil
}

func (e *fakeElement) Click() error       { return e.act("click", "") }
func (e *fakeElement) DoubleClick() error { return e.act("double_click", "") }
func (e *fakeElement) Hover() error       { return e.act("hover", "") }

func (e *fakeElement) Text() (string, error) {
	if err := e.act("read_text", ""); err != nil {
		return "", err
	}

	return e.text, nil
}

func (e *fakeElement) WaitVisible(timeout time.Duration) error {
	e.mu.Lock()
	e.waits = append(e.waits, timeout)
	e.mu.Unlock()

	return e.act("wait", "")
}

func (e *fakeElement) Fill(text string) error          { return e.act("fill", text) }
func (e *fakeElement) Type(text string) error          { return e.act("type", text) }
func (e *fakeElement) Press(key string) error          { return e.act("key_press", key) }
func (e *fakeElement) SelectOption(label string) error { return e.act("select_option", label) }
func (e *fakeElement) Paste(text string) error         { return e.act("paste", text) }

type fakeDownload struct {
	name    string
	content string
	saveErr error
}

func (d *fakeDownload) SuggestedFilename() string { return d.name }

func (d *fakeDownload) SaveAs(path string) error {
	if d.saveErr != nil {
		return d.saveErr
	}

	return os.WriteFile(path, []byte(d.content), 0o644)
}

type fakeSurface struct {
	mu          sync.Mutex
	elements    map[string]*fakeElement
	downloads   []*fakeDownload
	downloadErr []error
	dialogs     []Dialog
	dialogCalls int
	expects     int
	keys        []string
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{elements: make(map[string]*fakeElement)}
}

func (s *fakeSurface) element(locator string) *fakeElement {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.elements[locator]
	if !ok {
		el = newFakeElement()
		s.elements[locator] = el
	}

	return el
}

func (s *fakeSurface) Locate(locator string) Element {
	return s.element(locator)
}

func (s *fakeSurface) ExpectDownload(trigger func() error) (Download, error) {
	s.mu.Lock()
	n := s.expects
	s.expects++
	s.mu.Unlock()

	if err := trigger(); err != nil {
		return nil, err
	}

	if err := pick(s.downloadErr, n, nil); err != nil {
		return nil, err
	}

	return pick(s.downloads, n, &fakeDownload{name: "export.csv", content: "id\n1\n"}), nil
}

func (s *fakeSurface) BlockingDialog(string) (Dialog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.dialogCalls
	s.dialogCalls++

	return pick(s.dialogs, n, Dialog{}), nil
}

func (s *fakeSurface) PressKey(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.keys = append(s.keys, key)

	return nil
}

type sentAlert struct {
	subject string
	body    string
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []sentAlert
}

func (a *fakeAlerter) Alert(_ context.Context, subject, body string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.alerts = append(a.alerts, sentAlert{subject: subject, body: body})
}

func (a *fakeAlerter) sent() []sentAlert {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]sentAlert(nil), a.alerts...)
}

var errDetached = errors.New("element is not attached to the DOM")

// fakeTimer records every requested wait. It fires at once unless onStart
// says otherwise, in which case it never fires.
type fakeTimer struct {
	waits   []time.Duration
	onStart func(time.Duration) bool
	c       chan time.Time
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{c: make(chan time.Time, 1)}
}

func (t *fakeTimer) Start(d time.Duration) {
	t.waits = append(t.waits, d)

	if t.onStart != nil && !t.onStart(d) {
		return
	}

	t.c <- time.Time{}
}

func (t *fakeTimer) Stop() {}

func (t *fakeTimer) C() <-chan time.Time { return t.c }

func (t *fakeTimer) use(d *Dispatcher) {
	d.newTimer = func() backoff.Timer { return t }
}
