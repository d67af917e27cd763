package service

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/restq/internal/events"
	"github.com/roach88/restq/internal/ir"
	"github.com/roach88/restq/internal/query"
	"github.com/roach88/restq/internal/queryir"
)

// Options are the construction parameters of a Resource.
type Options struct {
	// Model names the store model served by the resource. Required.
	Model string `json:"model" yaml:"model" toml:"model"`

	// ID names the id field. Defaults to the model's id field.
	ID string `json:"id,omitempty" yaml:"id,omitempty" toml:"id,omitempty"`

	// Paginate is the page size policy for Find.
	Paginate query.Paginate `json:"paginate,omitempty" yaml:"paginate,omitempty" toml:"paginate,omitempty"`

	// Multi lists the methods allowed to touch many records in one call.
	Multi Multi `json:"multi,omitempty" yaml:"multi,omitempty" toml:"multi,omitempty"`

	// Whitelist adds operator and directive keys to the default set.
	Whitelist []string `json:"whitelist,omitempty" yaml:"whitelist,omitempty" toml:"whitelist,omitempty"`

	// Filters names resource-specific query keys that are split off and
	// not compiled into the filter.
	Filters []string `json:"filters,omitempty" yaml:"filters,omitempty" toml:"filters,omitempty"`

	// Events lists custom events Emit may publish.
	Events []string `json:"events,omitempty" yaml:"events,omitempty" toml:"events,omitempty"`
}

// Multi is either "all methods" (true) or a list of method names. The zero
// value allows none.
type Multi struct {
	All     bool
	Methods []string
}

// MultiAll allows every bulk method.
var MultiAll = Multi{All: true}

// MultiOf allows the named methods.
func MultiOf(methods ...string) Multi {
	return Multi{Methods: methods}
}

// Allows reports whether method may run without an id.
func (m Multi) Allows(method string) bool {
	return m.All || slices.Contains(m.Methods, method)
}

func (m Multi) MarshalJSON() ([]byte, error) {
	if m.All || len(m.Methods) == 0 {
		return json.Marshal(m.All)
	}
	return json.Marshal(m.Methods)
}

func (m *Multi) UnmarshalJSON(data []byte) error {
	var all bool
	if err := json.Unmarshal(data, &all); err == nil {
		*m = Multi{All: all}
		return nil
	}
	var methods []string
	if err := json.Unmarshal(data, &methods); err != nil {
		return fmt.Errorf("multi must be a boolean or a list of methods: %w", err)
	}
	*m = Multi{Methods: methods}
	return nil
}

func (m Multi) MarshalYAML() (any, error) {
	if m.All || len(m.Methods) == 0 {
		return m.All, nil
	}
	return m.Methods, nil
}

func (m *Multi) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var all bool
		if err := node.Decode(&all); err != nil {
			return fmt.Errorf("line %d: multi must be a boolean or a list of methods", node.Line)
		}
		*m = Multi{All: all}
	case yaml.SequenceNode:
		var methods []string
		if err := node.Decode(&methods); err != nil {
			return fmt.Errorf("line %d: multi: %w", node.Line, err)
		}
		*m = Multi{Methods: methods}
	default:
		return fmt.Errorf("line %d: multi must be a boolean or a list of methods", node.Line)
	}
	return nil
}

// UnmarshalTOML implements toml.Unmarshaler.
func (m *Multi) UnmarshalTOML(v any) error {
	switch x := v.(type) {
	case bool:
		*m = Multi{All: x}
	case []any:
		methods := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("multi: method names must be strings, got %T", item)
			}
			methods = append(methods, s)
		}
		*m = Multi{Methods: methods}
	default:
		return fmt.Errorf("multi must be a boolean or a list of methods, got %T", v)
	}
	return nil
}

// Option configures a Resource.
type Option func(*Resource)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Resource) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithPublisher sets the event publisher. The default publishes nothing.
func WithPublisher(p events.Publisher) Option {
	return func(r *Resource) {
		if p != nil {
			r.publisher = p
		}
	}
}

// WithEventPrefix sets the subject prefix of published events.
func WithEventPrefix(prefix string) Option {
	return func(r *Resource) {
		r.eventPrefix = prefix
	}
}

// WithOperators replaces the operator table.
func WithOperators(t query.OperatorTable) Option {
	return func(r *Resource) {
		r.operators = t
	}
}

// Params are the per-call parameters.
type Params struct {
	// Query is the REST query object.
	Query query.Object

	// Native is the per-call override in the store's native shape. Its
	// where is ANDed with the compiled filter; its other fields replace
	// the compiled ones.
	Native *queryir.FindArgs

	// Paginate replaces the resource's page size policy for this call.
	// A non-nil zero value disables pagination.
	Paginate *query.Paginate
}

// Page is the result of Find. An unpaginated page marshals as the bare
// list of records.
type Page struct {
	Total     int64       `json:"total"`
	Skip      int         `json:"skip"`
	Limit     int         `json:"limit"`
	Data      []ir.Record `json:"data"`
	Paginated bool        `json:"-"`
}

func (p *Page) MarshalJSON() ([]byte, error) {
	if !p.Paginated {
		return json.Marshal(p.Data)
	}
	type page Page
	return json.Marshal((*page)(p))
}
