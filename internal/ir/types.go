package ir

import (
	"fmt"
	"slices"
)

// Record is a single row as seen by callers: field name -> value.
// Included relations appear as nested Record (to-one, or nil) and
// []Record (to-many) values.
type Record map[string]any

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// FieldType is the declared storage type of a model field.
type FieldType string

const (
	TypeInt      FieldType = "int"
	TypeFloat    FieldType = "float"
	TypeString   FieldType = "string"
	TypeBool     FieldType = "bool"
	TypeDatetime FieldType = "datetime"
	TypeUUID     FieldType = "uuid"
)

// ValidFieldTypes defines allowed field types.
var ValidFieldTypes = map[FieldType]bool{
	TypeInt:      true,
	TypeFloat:    true,
	TypeString:   true,
	TypeBool:     true,
	TypeDatetime: true,
	TypeUUID:     true,
}

// RelationKind distinguishes to-one from to-many relations.
type RelationKind string

const (
	RelationOne  RelationKind = "one"
	RelationMany RelationKind = "many"
)

// FieldSpec describes one scalar column of a model.
type FieldSpec struct {
	Name     string    `json:"name"`
	Column   string    `json:"column"`
	Type     FieldType `json:"type"`
	Optional bool      `json:"optional,omitempty"`
}

// RelationSpec describes a relation from one model to another.
//
// LocalField and ForeignField name the joined fields:
//   - to-one (todo.user):   todo.LocalField (userId) = user.ForeignField (id)
//   - to-many (user.todos): user.LocalField (id)     = todo.ForeignField (userId)
type RelationSpec struct {
	Name         string       `json:"name"`
	Target       string       `json:"target"`
	Kind         RelationKind `json:"kind"`
	LocalField   string       `json:"local_field"`
	ForeignField string       `json:"foreign_field"`
}

// ModelSpec represents a compiled model definition.
type ModelSpec struct {
	Name      string                  `json:"name"`
	Table     string                  `json:"table"`
	IDField   string                  `json:"id_field"`
	Fields    map[string]FieldSpec    `json:"fields"`
	Relations map[string]RelationSpec `json:"relations,omitempty"`
}

// Field returns the field spec for name.
func (m *ModelSpec) Field(name string) (FieldSpec, bool) {
	f, ok := m.Fields[name]
	return f, ok
}

// Relation returns the relation spec for name.
func (m *ModelSpec) Relation(name string) (RelationSpec, bool) {
	r, ok := m.Relations[name]
	return r, ok
}

// ID returns the id field spec.
func (m *ModelSpec) ID() FieldSpec {
	return m.Fields[m.IDField]
}

// FieldNames returns field names in deterministic order, id first.
func (m *ModelSpec) FieldNames() []string {
	names := make([]string, 0, len(m.Fields))
	for name := range m.Fields {
		if name != m.IDField {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	if _, ok := m.Fields[m.IDField]; ok {
		names = append([]string{m.IDField}, names...)
	}
	return names
}

// RelationNames returns relation names in sorted order.
func (m *ModelSpec) RelationNames() []string {
	names := make([]string, 0, len(m.Relations))
	for name := range m.Relations {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Schema is a set of models keyed by model name.
type Schema map[string]*ModelSpec

// Model returns the named model or an error.
func (s Schema) Model(name string) (*ModelSpec, error) {
	m, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("unknown model %q", name)
	}
	return m, nil
}

// Names returns model names in sorted order.
func (s Schema) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
