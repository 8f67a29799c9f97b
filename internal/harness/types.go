package harness

// Trace event types.
const (
	EventSet     = "set"
	EventFormula = "formula"
	EventReset   = "reset"
	EventPass    = "pass"
)

// TraceEvent is one entry of a scenario's trace: an edit applied by the
// harness, or a calculation pass reported by the workbook.
type TraceEvent struct {
	Type       string `json:"type"`
	Seq        int64  `json:"seq"`
	Ref        string `json:"ref,omitempty"`
	Value      any    `json:"value,omitempty"`
	Formula    string `json:"formula,omitempty"`
	PassID     string `json:"pass_id,omitempty"`
	Calculated int    `json:"calculated,omitempty"`
	Errors     int    `json:"errors,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// Cells holds the final raw value of every formula cell, keyed by
	// Sheet!A1 address.
	Cells map[string]any `json:"cells"`

	// State holds the persisted entered values after the flow.
	State map[string]any `json:"state"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Cells:  make(map[string]any),
		State:  make(map[string]any),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) record(e TraceEvent) {
	e.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, e)
}

// Passes returns the pass events of the trace.
func (r *Result) Passes() []TraceEvent {
	var out []TraceEvent
	for _, e := range r.Trace {
		if e.Type == EventPass {
			out = append(out, e)
		}
	}
	return out
}
