package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActionKind is an operation the dispatcher performs on a located element.
type ActionKind string

const (
	ActionClick        ActionKind = "click"
	ActionDoubleClick  ActionKind = "double_click"
	ActionHover        ActionKind = "hover"
	ActionReadText     ActionKind = "read_text"
	ActionWait         ActionKind = "wait"
	ActionFill         ActionKind = "fill"
	ActionType         ActionKind = "type"
	ActionKeyPress     ActionKind = "key_press"
	ActionSelectOption ActionKind = "select_option"
	ActionPaste        ActionKind = "paste"
)

var actionKinds = map[ActionKind]struct{}{
	ActionClick:        {},
	ActionDoubleClick:  {},
	ActionHover:        {},
	ActionReadText:     {},
	ActionWait:         {},
	ActionFill:         {},
	ActionType:         {},
	ActionKeyPress:     {},
	ActionSelectOption: {},
	ActionPaste:        {},
}

func (k ActionKind) Valid() bool {
	_, ok := actionKinds[k]

	return ok
}

// ActionOptions is the free-form bag accompanying an action. Zero values
// fall back to dispatcher defaults.
type ActionOptions struct {
	Text        string
	Key         string
	Label       string
	Wait        time.Duration
	MaxAttempts int
	// Quiet keeps an exhausted Interact from alerting. Checks whose failure
	// is already reported by the caller set it.
	Quiet bool
}

// Validate checks that the fields the kind depends on are present.
func (o ActionOptions) Validate(kind ActionKind) error {
	switch kind {
	case ActionKeyPress:
		if o.Key == "" {
			return fmt.Errorf("%s requires a key", kind)
		}
	case ActionSelectOption:
		if o.Label == "" {
			return fmt.Errorf("%s requires a label", kind)
		}
	}

	if o.MaxAttempts < 0 {
		return fmt.Errorf("max attempts must not be negative, got %d", o.MaxAttempts)
	}

	return nil
}

// DownloadRequest describes a click that is expected to produce a file.
type DownloadRequest struct {
	Trigger     string
	Prefix      string
	Dir         string
	MaxAttempts int
}

type FileFormat string

const (
	FormatCSV  FileFormat = "csv"
	FormatXLSX FileFormat = "xlsx"
)

// ExportJob is one saved-template export from an Odoo list view.
type ExportJob struct {
	Name        string
	Description string
	ActionPath  string
	Template    string
	Prefix      string
	Format      FileFormat
	ConvertXLSX bool
	Search      func(now time.Time) string
	Endpoint    string
}

type RunStatus string

const (
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

// Run records one invocation of the export or report service.
type Run struct {
	ID          uuid.UUID
	Kind        string
	Status      RunStatus
	CreatedAt   time.Time
	CompletedAt *time.Time
	Steps       []Step
	Error       string
}

func NewRun(kind string) *Run {
	return &Run{
		ID:        uuid.New(),
		Kind:      kind,
		Status:    RunStatusInProgress,
		CreatedAt: time.Now(),
		Steps:     make([]Step, 0),
	}
}

func (r *Run) Record(step Step) {
	r.Steps = append(r.Steps, step)
}

func (r *Run) Complete() {
	completedAt := time.Now()
	r.CompletedAt = &completedAt
	r.Status = RunStatusCompleted
}

func (r *Run) Fail(err error) {
	completedAt := time.Now()
	r.CompletedAt = &completedAt
	r.Status = RunStatusFailed
	r.Error = err.Error()
}

type Step struct {
	ID        uuid.UUID
	Job       string
	Name      string
	Timestamp time.Time
	Success   bool
	Error     string
	Path      string
	Receipt   *UploadReceipt
}

func NewStep(job, name string) Step {
	return Step{
		ID:        uuid.New(),
		Job:       job,
		Name:      name,
		Timestamp: time.Now(),
	}
}

// UploadReceipt is what the internal API answers after accepting a file.
type UploadReceipt struct {
	ID   string `json:"id"`
	Rows int    `json:"rows"`
}

// Mail is an outgoing email with optional file attachments.
type Mail struct {
	To          []string
	Subject     string
	Body        string
	Attachments []string
}

// Report is the data rendered into the PDF.
type Report struct {
	Title       string
	Source      string
	GeneratedAt time.Time
	Counters    []Counter
	Sections    []ReportSection
}

type Counter struct {
	Label string
	Value int64
}

type ReportSection struct {
	Title  string
	Column string
	Rows   []Counter
}

func (s ReportSection) Total() int64 {
	var total int64
	for _, row := range s.Rows {
		total += row.Value
	}

	return total
}
