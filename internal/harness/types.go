package harness

// Outcome names, matching the metrics outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Step       int      `json:"step"`
	Verb       string   `json:"verb"`
	Collection string   `json:"collection"`
	Input      any      `json:"input,omitempty"`
	Outcome    string   `json:"outcome"`
	Result     any      `json:"result,omitempty"`
	Error      string   `json:"error,omitempty"`
	Ops        []string `json:"ops"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Ops returns the round-trips of every step, in order.
func (r *Result) Ops() []string {
	var ops []string
	for _, e := range r.Trace {
		ops = append(ops, e.Ops...)
	}
	return ops
}
