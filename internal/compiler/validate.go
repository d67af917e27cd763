package compiler

import (
	"fmt"

	"github.com/roach88/restq/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// ModelSpec errors (E101-E109)
	ErrModelNoIDField    = "E101" // id field is not declared
	ErrModelNoFields     = "E102" // at least one field required
	ErrOptionalIDField   = "E103" // id field must not be optional
	ErrInvalidFieldType  = "E104" // invalid type string
	ErrDuplicateName     = "E105" // duplicate column, table or member name
	ErrInvalidIDType     = "E106" // id type cannot identify a record
	ErrEmptyStorageName  = "E107" // empty table or column name
	ErrModelNameMismatch = "E108" // schema key differs from model name

	// RelationSpec errors (E110-E119)
	ErrUnknownRelationTarget = "E110" // relation target model not defined
	ErrInvalidRelationKind   = "E111" // kind must be one or many
	ErrUnknownRelationField  = "E112" // local or foreign field not defined
	ErrRelationTypeMismatch  = "E113" // joined fields have different types
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates compiled models against schema rules.
// Returns all errors found (does not fail-fast).
// Supports ir.Schema and ModelSpec; relation targets are only checked
// for a whole schema.
func Validate(v any) []ValidationError {
	switch s := v.(type) {
	case ir.Schema:
		return validateSchema(s)
	case *ir.ModelSpec:
		return validateModel(nil, s)
	case ir.ModelSpec:
		return validateModel(nil, &s)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

func validateSchema(schema ir.Schema) []ValidationError {
	var errs []ValidationError

	tables := make(map[string]string)
	for _, name := range schema.Names() {
		m := schema[name]
		if m == nil {
			errs = append(errs, ValidationError{
				Field:   name,
				Message: "model is nil",
				Code:    ErrUnsupportedIRType,
			})
			continue
		}

		// E108: schema key must be the model name
		if m.Name != name {
			errs = append(errs, ValidationError{
				Field:   name + ".name",
				Message: fmt.Sprintf("model registered as %q is named %q", name, m.Name),
				Code:    ErrModelNameMismatch,
			})
		}

		// E105: two models sharing one table
		if other, ok := tables[m.Table]; ok {
			errs = append(errs, ValidationError{
				Field:   name + ".table",
				Message: fmt.Sprintf("table %q is already used by model %q", m.Table, other),
				Code:    ErrDuplicateName,
			})
		}
		tables[m.Table] = name

		errs = append(errs, validateModel(schema, m)...)
	}
	return errs
}

// validateModel validates one model. schema may be nil, in which case
// relation targets are not resolved.
func validateModel(schema ir.Schema, m *ir.ModelSpec) []ValidationError {
	var errs []ValidationError

	if m.Table == "" {
		errs = append(errs, ValidationError{
			Field:   m.Name + ".table",
			Message: "table name is required",
			Code:    ErrEmptyStorageName,
		})
	}

	// E102: at least one field
	if len(m.Fields) == 0 {
		errs = append(errs, ValidationError{
			Field:   m.Name + ".fields",
			Message: "at least one field is required",
			Code:    ErrModelNoFields,
		})
	}

	// E101, E103, E106: the id field
	if id, ok := m.Fields[m.IDField]; !ok {
		errs = append(errs, ValidationError{
			Field:   m.Name + ".id",
			Message: fmt.Sprintf("id field %q is not declared", m.IDField),
			Code:    ErrModelNoIDField,
		})
	} else {
		if id.Optional {
			errs = append(errs, ValidationError{
				Field:   m.Name + ".fields." + m.IDField,
				Message: "id field must not be optional",
				Code:    ErrOptionalIDField,
			})
		}
		if !isIDType(id.Type) {
			errs = append(errs, ValidationError{
				Field:   m.Name + ".fields." + m.IDField,
				Message: fmt.Sprintf("id field cannot have type %q, use int, string or uuid", id.Type),
				Code:    ErrInvalidIDType,
			})
		}
	}

	columns := make(map[string]string)
	for _, name := range m.FieldNames() {
		f := m.Fields[name]
		path := m.Name + ".fields." + name

		// E104: valid type
		if !ir.ValidFieldTypes[f.Type] {
			errs = append(errs, ValidationError{
				Field:   path + ".type",
				Message: fmt.Sprintf("invalid type %q for field %q", f.Type, name),
				Code:    ErrInvalidFieldType,
			})
		}

		if f.Column == "" {
			errs = append(errs, ValidationError{
				Field:   path + ".column",
				Message: "column name is required",
				Code:    ErrEmptyStorageName,
			})
			continue
		}

		// E105: column collision
		if other, ok := columns[f.Column]; ok {
			errs = append(errs, ValidationError{
				Field:   path + ".column",
				Message: fmt.Sprintf("column %q is already used by field %q", f.Column, other),
				Code:    ErrDuplicateName,
			})
		}
		columns[f.Column] = name
	}

	for _, name := range m.RelationNames() {
		errs = append(errs, validateRelation(schema, m, m.Relations[name])...)
	}
	return errs
}

func validateRelation(schema ir.Schema, m *ir.ModelSpec, rel ir.RelationSpec) []ValidationError {
	var errs []ValidationError
	path := m.Name + ".relations." + rel.Name

	// E105: a relation shadowing a field
	if _, ok := m.Fields[rel.Name]; ok {
		errs = append(errs, ValidationError{
			Field:   path,
			Message: fmt.Sprintf("relation %q has the same name as a field", rel.Name),
			Code:    ErrDuplicateName,
		})
	}

	// E111: kind
	if rel.Kind != ir.RelationOne && rel.Kind != ir.RelationMany {
		errs = append(errs, ValidationError{
			Field:   path + ".kind",
			Message: fmt.Sprintf("invalid relation kind %q, must be \"one\" or \"many\"", rel.Kind),
			Code:    ErrInvalidRelationKind,
		})
	}

	// E112: local field
	local, ok := m.Fields[rel.LocalField]
	if !ok {
		errs = append(errs, ValidationError{
			Field:   path + ".local",
			Message: fmt.Sprintf("local field %q is not declared on %q", rel.LocalField, m.Name),
			Code:    ErrUnknownRelationField,
		})
	}

	if schema == nil {
		return errs
	}

	// E110: target
	target, exists := schema[rel.Target]
	if !exists || target == nil {
		errs = append(errs, ValidationError{
			Field:   path + ".model",
			Message: fmt.Sprintf("relation target %q is not defined", rel.Target),
			Code:    ErrUnknownRelationTarget,
		})
		return errs
	}

	// E112: foreign field
	foreign, fok := target.Fields[rel.ForeignField]
	if !fok {
		errs = append(errs, ValidationError{
			Field:   path + ".foreign",
			Message: fmt.Sprintf("foreign field %q is not declared on %q", rel.ForeignField, target.Name),
			Code:    ErrUnknownRelationField,
		})
		return errs
	}

	// E113: joined types
	if ok && local.Type != foreign.Type {
		errs = append(errs, ValidationError{
			Field:   path,
			Message: fmt.Sprintf("%s.%s (%s) cannot join %s.%s (%s)", m.Name, local.Name, local.Type, target.Name, foreign.Name, foreign.Type),
			Code:    ErrRelationTypeMismatch,
		})
	}
	return errs
}

// isIDType reports whether a field type can identify a record.
func isIDType(t ir.FieldType) bool {
	return t == ir.TypeInt || t == ir.TypeString || t == ir.TypeUUID
}
