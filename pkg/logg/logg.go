package logg

// Field keys shared by every component logger.
const (
	Layer     = "layer"
	Operation = "operation"
	RunID     = "run_id"
	Job       = "job"
	Action    = "action"
	Selector  = "selector"
	URL       = "url"
	Path      = "path"
	Attempt   = "attempt"
	Endpoint  = "endpoint"
)
