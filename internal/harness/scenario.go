package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/restq/internal/service"
)

// Scenario defines a conformance test scenario.
// Scenarios run a flow of resource calls against a fresh store and assert
// on the returned records, the published events and the final state.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the path to the CUE model schema.
	// Relative paths are resolved against the scenario file's directory.
	Schema string `yaml:"schema"`

	// Resources configures the resource of a model. Models without an
	// entry get a resource with default options.
	Resources []service.Options `yaml:"resources,omitempty"`

	// Seed lists records written straight to the store before the flow.
	// Seeding publishes no events.
	Seed map[string][]map[string]any `yaml:"seed,omitempty"`

	// Flow contains the resource calls, in order.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_order, trace_count,
	// final_state, record_count
	Assertions []Assertion `yaml:"assertions"`
}

// Step calls one resource method.
type Step struct {
	// Call is the method: find, get, create, update, patch, remove or emit.
	// patch and remove without an id act on every matching record.
	Call string `yaml:"call"`

	// Model names the resource.
	Model string `yaml:"model"`

	// ID is the record id of single-record calls.
	ID any `yaml:"id,omitempty"`

	// Data is the record to write. A list creates many records. For emit
	// it is the event payload.
	Data any `yaml:"data,omitempty"`

	// Query is the REST query object.
	Query map[string]any `yaml:"query,omitempty"`

	// Event is the custom event name (used by emit).
	Event string `yaml:"event,omitempty"`

	// Expect specifies the expected outcome.
	// If nil, the call must succeed and its result is not checked.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a call.
type ExpectClause struct {
	// Error is the expected error kind, e.g. "NotFound" or "BadRequest".
	Error string `yaml:"error,omitempty"`

	// Code is the expected error code (used with error).
	Code string `yaml:"code,omitempty"`

	// Message must be contained in the error message (used with error).
	Message string `yaml:"message,omitempty"`

	// Result is matched against the returned record (a mapping) or records
	// (a list). Only the listed fields of each record are compared.
	Result any `yaml:"result,omitempty"`

	// Count is the expected number of returned records.
	Count *int `yaml:"count,omitempty"`

	// Total is the expected total of a paginated find.
	Total *int64 `yaml:"total,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": Check a call or event appears in the trace with data
	// - "trace_order": Check calls and events appear in order
	// - "trace_count": Check a call or event appears exactly N times
	// - "final_state": Find exactly one record and verify expected values
	// - "record_count": Check how many records match
	Type string `yaml:"type"`

	// Action is "<model>.<method>" for calls or "<model>.<event>" for
	// events (used by trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Data is the expected call data or event payload (used by
	// trace_contains). Subset match - only specified fields are validated.
	Data map[string]any `yaml:"data,omitempty"`

	// Model is the model to query (used by final_state, record_count).
	Model string `yaml:"model,omitempty"`

	// Where is a native equality filter (used by final_state, record_count).
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected field values (used by final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of occurrences (used by trace_count,
	// record_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected action order (used by trace_order).
	Actions []string `yaml:"actions,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertRecordCount   = "record_count"
)

// Step call names.
const (
	CallFind   = "find"
	CallGet    = "get"
	CallCreate = "create"
	CallUpdate = "update"
	CallPatch  = "patch"
	CallRemove = "remove"
	CallEmit   = "emit"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, "")
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the schema path relative to basePath. An empty basePath means
// the scenario file's directory.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if basePath == "" {
		basePath = filepath.Dir(path)
	}
	// Resolve the schema path BEFORE validation
	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) {
		scenario.Schema = filepath.Join(basePath, scenario.Schema)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if _, err := os.Stat(s.Schema); os.IsNotExist(err) {
		return fmt.Errorf("schema file not found: %s", s.Schema)
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, r := range s.Resources {
		if r.Model == "" {
			return fmt.Errorf("resources[%d]: model is required", i)
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateStep validates a single flow step based on its call.
func validateStep(index int, s *Step) error {
	if s.Model == "" {
		return fmt.Errorf("flow[%d]: model is required", index)
	}

	switch s.Call {
	case CallFind, CallGet, CallPatch, CallRemove:
	case CallCreate:
		if s.Data == nil {
			return fmt.Errorf("flow[%d]: data is required for create", index)
		}
	case CallUpdate:
		if _, ok := s.Data.(map[string]any); !ok {
			return fmt.Errorf("flow[%d]: data must be a mapping for update", index)
		}
	case CallEmit:
		if s.Event == "" {
			return fmt.Errorf("flow[%d]: event is required for emit", index)
		}
	case "":
		return fmt.Errorf("flow[%d]: call is required", index)
	default:
		return fmt.Errorf("flow[%d]: unknown call %q", index, s.Call)
	}

	if s.Call == CallPatch {
		if _, ok := s.Data.(map[string]any); !ok {
			return fmt.Errorf("flow[%d]: data must be a mapping for patch", index)
		}
	}

	if e := s.Expect; e != nil && e.Error == "" && (e.Code != "" || e.Message != "") {
		return fmt.Errorf("flow[%d].expect: code and message require error", index)
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Model == "" {
			return fmt.Errorf("assertions[%d]: model is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertRecordCount:
		if a.Model == "" {
			return fmt.Errorf("assertions[%d]: model is required for record_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for record_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
