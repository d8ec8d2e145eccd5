package browser

import (
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Surface is the dispatcher's view of a live page.
type Surface interface {
	Locate(locator string) Element
	ExpectDownload(trigger func() error) (Download, error)
	BlockingDialog(trigger string) (Dialog, error)
	PressKey(key string) error
}

// Element is a lazily resolved handle to the first match of a locator.
type Element interface {
	Exists() (bool, error)
	Disabled() (bool, error)
	Click() error
	DoubleClick() error
	Hover() error
	Text() (string, error)
	WaitVisible(timeout time.Duration) error
	Fill(text string) error
	Type(text string) error
	Press(key string) error
	SelectOption(label string) error
	Paste(text string) error
}

type Download interface {
	SuggestedFilename() string
	SaveAs(path string) error
}

// Dialog describes a visible modal that is not the one holding the trigger.
type Dialog struct {
	Found        bool
	Title        string
	CloseLocator string
}

type pageSurface struct {
	page            playwright.Page
	actionTimeout   float64
	downloadTimeout float64
}

func newPageSurface(page playwright.Page, actionTimeout, downloadTimeout time.Duration) *pageSurface {
	return &pageSurface{
		page:            page,
		actionTimeout:   float64(actionTimeout.Milliseconds()),
		downloadTimeout: float64(downloadTimeout.Milliseconds()),
	}
}

func (s *pageSurface) Locate(locator string) Element {
	all := s.page.Locator(locator)

	return &locatorElement{
		page:    s.page,
		all:     all,
		first:   all.First(),
		timeout: s.actionTimeout,
	}
}

func (s *pageSurface) ExpectDownload(trigger func() error) (Download, error) {
	return s.page.ExpectDownload(trigger, playwright.PageExpectDownloadOptions{
		Timeout: playwright.Float(s.downloadTimeout),
	})
}

func (s *pageSurface) BlockingDialog(trigger string) (Dialog, error) {
	var arg interface{}

	if trigger != "" {
		all := s.page.Locator(trigger)
		if n, err := all.Count(); err == nil && n > 0 {
			handle, err := all.First().ElementHandle(playwright.LocatorElementHandleOptions{
				Timeout: playwright.Float(2000),
			})
			if err == nil {
				defer handle.Dispose()
				arg = handle
			}
		}
	}

	result, err := s.page.Evaluate(blockingDialogScript(), arg)
	if err != nil {
		return Dialog{}, err
	}

	resultMap, ok := result.(map[string]interface{})
	if !ok {
		return Dialog{}, nil
	}

	return Dialog{
		Found:        getBool(resultMap, "found"),
		Title:        getString(resultMap, "title"),
		CloseLocator: getString(resultMap, "close"),
	}, nil
}

func (s *pageSurface) PressKey(key string) error {
	return s.page.Keyboard().Press(key)
}

type locatorElement struct {
	page    playwright.Page
	all     playwright.Locator
	first   playwright.Locator
	timeout float64
}

func (e *locatorElement) Exists() (bool, error) {
	n, err := e.all.Count()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

func (e *locatorElement) Disabled() (bool, error) {
	return e.first.IsDisabled(playwright.LocatorIsDisabledOptions{
		Timeout: playwright.Float(e.timeout),
	})
}

func (e *locatorElement) Click() error {
	return e.first.Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(e.timeout),
	})
}

func (e *locatorElement) DoubleClick() error {
	return e.first.Dblclick(playwright.LocatorDblclickOptions{
		Timeout: playwright.Float(e.timeout),
	})
}

func (e *locatorElement) Hover() error {
	return e.first.Hover(playwright.LocatorHoverOptions{
		Timeout: playwright.Float(e.timeout),
	})
}

func (e *locatorElement) Text() (string, error) {
	text, err := e.first.TextContent(playwright.LocatorTextContentOptions{
		Timeout: playwright.Float(e.timeout),
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(text), nil
}

func (e *locatorElement) WaitVisible(timeout time.Duration) error {
	return e.first.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
}

func (e *locatorElement) Fill(text string) error {
	return e.first.Fill(text, playwright.LocatorFillOptions{
		Timeout: playwright.Float(e.timeout),
	})
}

func (e *locatorElement) Type(text string) error {
	return e.first.PressSequentially(text, playwright.LocatorPressSequentiallyOptions{
		Delay:   playwright.Float(40),
		Timeout: playwright.Float(e.timeout),
	})
}

func (e *locatorElement) Press(key string) error {
	return e.first.Press(key, playwright.LocatorPressOptions{
		Timeout: playwright.Float(e.timeout),
	})
}

func (e *locatorElement) SelectOption(label string) error {
	_, err := e.first.SelectOption(playwright.SelectOptionValues{
		Labels: &[]string{label},
	}, playwright.LocatorSelectOptionOptions{
		Timeout: playwright.Float(e.timeout),
	})

	return err
}

// Paste focuses the element and inserts text the way a clipboard paste does:
// one input event, no per-key events.
func (e *locatorElement) Paste(text string) error {
	if err := e.first.Focus(playwright.LocatorFocusOptions{
		Timeout: playwright.Float(e.timeout),
	}); err != nil {
		return err
	}

	return e.page.Keyboard().InsertText(text)
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}

	return ""
}

func getBool(m map[string]interface{}, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}

	return false
}
