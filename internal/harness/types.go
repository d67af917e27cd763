package harness

import "github.com/roach88/restq/internal/ir"

// Trace event types.
const (
	TypeCall  = "call"
	TypeEvent = "event"
)

// TraceEvent is one resource call or one published service event.
type TraceEvent struct {
	Type   string         `json:"type"`   // "call" or "event"
	Action string         `json:"action"` // "todo.patch" for calls, "todo.patched" for events
	ID     any            `json:"id,omitempty"`
	Query  map[string]any `json:"query,omitempty"`
	Data   any            `json:"data,omitempty"`

	// Outcome is "ok" or the error kind of a failed call. Empty for events.
	Outcome string `json:"outcome,omitempty"`
	Result  any    `json:"result,omitempty"`
	Seq     int64  `json:"seq"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Trace contains all calls and published events in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State holds every record of every model after the flow, in id order.
	State map[string][]ir.Record `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string][]ir.Record),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddCallTrace adds a resource call to the trace.
func (r *Result) AddCallTrace(step Step, outcome string, result any, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:    TypeCall,
		Action:  step.Model + "." + step.Call,
		ID:      step.ID,
		Query:   step.Query,
		Data:    step.Data,
		Outcome: outcome,
		Result:  result,
		Seq:     seq,
	})
}

// AddEventTrace adds a published event to the trace.
func (r *Result) AddEventTrace(model, name string, data any, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   TypeEvent,
		Action: model + "." + name,
		Data:   data,
		Seq:    seq,
	})
}
