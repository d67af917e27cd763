package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/restq/internal/ir"
)

// DefaultIDField is the id field name used when a model does not declare one.
const DefaultIDField = "id"

// CompileSchema compiles every model under the top-level "model" struct.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
//	model: todo: {
//		table: "todos"
//		fields: {
//			id:        int
//			title:     string
//			completed: bool
//			userId?:   {type: "int", column: "user_id"}
//		}
//		relations: user: {model: "user", kind: "one", local: "userId"}
//	}
func CompileSchema(v cue.Value) (ir.Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	modelsVal := v.LookupPath(cue.ParsePath("model"))
	if !modelsVal.Exists() {
		return nil, &CompileError{
			Field:   "model",
			Message: "no models defined",
			Pos:     v.Pos(),
		}
	}

	iter, err := modelsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	schema := make(ir.Schema)
	for iter.Next() {
		spec, err := CompileModel(iter.Value())
		if err != nil {
			return nil, err
		}
		schema[spec.Name] = spec
	}
	return schema, nil
}

// CompileSource compiles CUE source text holding a "model" struct.
// filename is only used in error positions.
func CompileSource(filename, src string) (ir.Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	return CompileSchema(v)
}

// CompileModel parses a CUE value into a ModelSpec. The model name is the
// struct label, e.g. CompileModel(v.LookupPath(cue.ParsePath("model.todo"))).
func CompileModel(v cue.Value) (*ir.ModelSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.ModelSpec{
		IDField:   DefaultIDField,
		Fields:    make(map[string]ir.FieldSpec),
		Relations: make(map[string]ir.RelationSpec),
	}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}
	spec.Table = spec.Name

	var err error
	if spec.Table, err = optionalString(v, "table", spec.Table); err != nil {
		return nil, err
	}
	if spec.IDField, err = optionalString(v, "id", spec.IDField); err != nil {
		return nil, err
	}

	if err := parseFields(v, spec); err != nil {
		return nil, err
	}
	if len(spec.Fields) == 0 {
		return nil, &CompileError{
			Field:   "fields",
			Message: fmt.Sprintf("model %q must declare at least one field", spec.Name),
			Pos:     v.Pos(),
		}
	}
	if _, ok := spec.Fields[spec.IDField]; !ok {
		return nil, &CompileError{
			Field:   "id",
			Message: fmt.Sprintf("model %q has no id field %q", spec.Name, spec.IDField),
			Pos:     v.Pos(),
		}
	}

	if err := parseRelations(v, spec); err != nil {
		return nil, err
	}
	return spec, nil
}

// parseFields extracts field definitions. A field is either a bare CUE
// type (int, string, bool, float), a type name string ("datetime",
// "uuid"), or a struct {type, column?, optional?}. Optional CUE fields
// (name?: type) are nullable columns.
func parseFields(v cue.Value, spec *ir.ModelSpec) error {
	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil
	}

	iter, err := fieldsVal.Fields(cue.Optional(true))
	if err != nil {
		return formatCUEError(err)
	}

	for iter.Next() {
		name := iter.Selector().Unquoted()
		field := ir.FieldSpec{
			Name:     name,
			Column:   name,
			Optional: iter.IsOptional(),
		}

		fv := iter.Value()
		if fv.IncompleteKind() == cue.StructKind {
			if err := parseFieldStruct(fv, &field); err != nil {
				return err
			}
		} else {
			if field.Type, err = extractFieldType(fv); err != nil {
				return err
			}
		}
		spec.Fields[name] = field
	}
	return nil
}

func parseFieldStruct(v cue.Value, field *ir.FieldSpec) error {
	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("field %q requires a type", field.Name),
			Pos:     v.Pos(),
		}
	}
	t, err := extractFieldType(typeVal)
	if err != nil {
		return err
	}
	field.Type = t

	if field.Column, err = optionalString(v, "column", field.Column); err != nil {
		return err
	}

	optVal := v.LookupPath(cue.ParsePath("optional"))
	if optVal.Exists() {
		opt, err := optVal.Bool()
		if err != nil {
			return formatCUEError(err)
		}
		field.Optional = field.Optional || opt
	}
	return nil
}

// parseRelations extracts relation definitions. Defaults:
//   - to-one:  local = <relation>Id, foreign = id
//   - to-many: local = id, foreign = <model>Id
func parseRelations(v cue.Value, spec *ir.ModelSpec) error {
	relsVal := v.LookupPath(cue.ParsePath("relations"))
	if !relsVal.Exists() {
		return nil
	}

	iter, err := relsVal.Fields()
	if err != nil {
		return formatCUEError(err)
	}

	for iter.Next() {
		name := iter.Label()
		rv := iter.Value()

		rel := ir.RelationSpec{Name: name, Target: name}
		if rel.Target, err = optionalString(rv, "model", rel.Target); err != nil {
			return err
		}

		kind, err := optionalString(rv, "kind", string(ir.RelationOne))
		if err != nil {
			return err
		}
		rel.Kind = ir.RelationKind(kind)

		switch rel.Kind {
		case ir.RelationOne:
			rel.LocalField, rel.ForeignField = name+"Id", DefaultIDField
		case ir.RelationMany:
			rel.LocalField, rel.ForeignField = spec.IDField, spec.Name+"Id"
		default:
			return &CompileError{
				Field:   "kind",
				Message: fmt.Sprintf("relation %q: kind must be \"one\" or \"many\", got %q", name, kind),
				Pos:     rv.Pos(),
			}
		}

		if rel.LocalField, err = optionalString(rv, "local", rel.LocalField); err != nil {
			return err
		}
		if rel.ForeignField, err = optionalString(rv, "foreign", rel.ForeignField); err != nil {
			return err
		}
		spec.Relations[name] = rel
	}
	return nil
}

// extractFieldType converts a CUE type or type-name string to a field type.
func extractFieldType(v cue.Value) (ir.FieldType, error) {
	if v.IsConcrete() && v.Kind() == cue.StringKind {
		s, err := v.String()
		if err != nil {
			return "", formatCUEError(err)
		}
		t := ir.FieldType(s)
		if !ir.ValidFieldTypes[t] {
			return "", &CompileError{
				Field:   "type",
				Message: fmt.Sprintf("unknown field type %q", s),
				Pos:     v.Pos(),
			}
		}
		return t, nil
	}

	switch v.IncompleteKind() {
	case cue.StringKind:
		return ir.TypeString, nil
	case cue.IntKind:
		return ir.TypeInt, nil
	case cue.BoolKind:
		return ir.TypeBool, nil
	case cue.FloatKind, cue.NumberKind:
		return ir.TypeFloat, nil
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// optionalString returns the string at path, or def if absent.
func optionalString(v cue.Value, path, def string) (string, error) {
	sv := v.LookupPath(cue.ParsePath(path))
	if !sv.Exists() {
		return def, nil
	}
	s, err := sv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	if s == "" {
		return "", &CompileError{
			Field:   path,
			Message: "must be non-empty",
			Pos:     sv.Pos(),
		}
	}
	return s, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
