package queryir

import (
	"errors"
	"fmt"
	"reflect"
	"slices"

	"github.com/roach88/restq/internal/ir"
)

// ParseError reports a native filter that does not fit the model schema.
type ParseError struct {
	Path    string // dotted location, e.g. "where.user.is.name"
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsParseError reports whether err is (or wraps) a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// Known field operators.
var fieldOperators = map[string]bool{
	"equals":     true,
	"not":        true,
	"lt":         true,
	"lte":        true,
	"gt":         true,
	"gte":        true,
	"in":         true,
	"notIn":      true,
	"contains":   true,
	"startsWith": true,
	"endsWith":   true,
	"search":     true,
	"mode":       true,
}

// ParseWhere converts a native filter tree into a predicate against model.
// Related models are resolved through schema. A nil or empty Where yields a
// nil predicate (no filter).
//
// Keys are visited in sorted order so the resulting predicate, and the SQL
// compiled from it, is deterministic.
func ParseWhere(schema ir.Schema, model *ir.ModelSpec, w Where) (Predicate, error) {
	p := &parser{schema: schema}
	return p.where(model, map[string]any(w), "where")
}

type parser struct {
	schema ir.Schema
}

func (p *parser) where(m *ir.ModelSpec, w map[string]any, path string) (Predicate, error) {
	if len(w) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var preds []Predicate
	for _, key := range keys {
		val := w[key]
		sub := path + "." + key

		switch key {
		case "AND":
			list, err := p.whereList(m, val, sub)
			if err != nil {
				return nil, err
			}
			preds = append(preds, list...)
		case "OR":
			list, err := p.whereList(m, val, sub)
			if err != nil {
				return nil, err
			}
			preds = append(preds, Or{Predicates: list})
		case "NOT":
			list, err := p.whereList(m, val, sub)
			if err != nil {
				return nil, err
			}
			if len(list) > 0 {
				preds = append(preds, Not{Predicate: conjoin(list)})
			}
		default:
			if f, ok := m.Field(key); ok {
				pred, err := p.field(f, val, sub)
				if err != nil {
					return nil, err
				}
				if pred != nil {
					preds = append(preds, pred)
				}
				continue
			}
			if r, ok := m.Relation(key); ok {
				pred, err := p.relation(r, val, sub)
				if err != nil {
					return nil, err
				}
				if pred != nil {
					preds = append(preds, pred)
				}
				continue
			}
			return nil, &ParseError{Path: sub, Message: fmt.Sprintf("unknown field %q on model %q", key, m.Name)}
		}
	}

	return conjoin(preds), nil
}

// whereList accepts a single filter or a list of filters. Empty filters in
// a list become And{} (true) so OR semantics are preserved.
func (p *parser) whereList(m *ir.ModelSpec, v any, path string) ([]Predicate, error) {
	if obj, ok := AsMap(v); ok {
		pred, err := p.where(m, obj, path)
		if err != nil {
			return nil, err
		}
		if pred == nil {
			return nil, nil
		}
		return []Predicate{pred}, nil
	}

	items, ok := AsList(v)
	if !ok {
		return nil, &ParseError{Path: path, Message: fmt.Sprintf("expected filter object or list, got %T", v)}
	}

	out := make([]Predicate, 0, len(items))
	for i, item := range items {
		obj, ok := AsMap(item)
		if !ok {
			return nil, &ParseError{Path: fmt.Sprintf("%s[%d]", path, i), Message: fmt.Sprintf("expected filter object, got %T", item)}
		}
		pred, err := p.where(m, obj, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		if pred == nil {
			pred = And{}
		}
		out = append(out, pred)
	}
	return out, nil
}

func (p *parser) field(f ir.FieldSpec, v any, path string) (Predicate, error) {
	if v == nil {
		return IsNull{Field: f.Name}, nil
	}
	if ops, ok := AsMap(v); ok {
		return p.ops(f, ops, path)
	}
	if _, ok := AsList(v); ok {
		return nil, &ParseError{Path: path, Message: "list values require the in or notIn operator"}
	}
	value, err := p.value(f, v, path)
	if err != nil {
		return nil, err
	}
	return Equals{Field: f.Name, Value: value}, nil
}

func (p *parser) ops(f ir.FieldSpec, ops map[string]any, path string) (Predicate, error) {
	insensitive := false
	if mode, ok := ops["mode"]; ok {
		switch mode {
		case "insensitive":
			insensitive = true
		case "default":
		default:
			return nil, &ParseError{Path: path + ".mode", Message: fmt.Sprintf("invalid mode %v", mode)}
		}
	}

	keys := make([]string, 0, len(ops))
	for k := range ops {
		if !fieldOperators[k] {
			return nil, &ParseError{Path: path + "." + k, Message: fmt.Sprintf("unknown operator %q", k)}
		}
		if k != "mode" {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	var preds []Predicate
	for _, op := range keys {
		val := ops[op]
		sub := path + "." + op

		switch op {
		case "equals":
			if val == nil {
				preds = append(preds, IsNull{Field: f.Name})
				continue
			}
			value, err := p.value(f, val, sub)
			if err != nil {
				return nil, err
			}
			preds = append(preds, Equals{Field: f.Name, Value: value, Insensitive: insensitive && isText(f)})

		case "not":
			if val == nil {
				preds = append(preds, IsNull{Field: f.Name, Negate: true})
				continue
			}
			if nested, ok := AsMap(val); ok {
				if _, has := nested["mode"]; !has && insensitive {
					nested = withMode(nested)
				}
				inner, err := p.ops(f, nested, sub)
				if err != nil {
					return nil, err
				}
				if inner != nil {
					preds = append(preds, Not{Predicate: inner})
				}
				continue
			}
			value, err := p.value(f, val, sub)
			if err != nil {
				return nil, err
			}
			preds = append(preds, Equals{Field: f.Name, Value: value, Insensitive: insensitive && isText(f), Negate: true})

		case "lt", "lte", "gt", "gte":
			if val == nil {
				return nil, &ParseError{Path: sub, Message: "comparison with null"}
			}
			value, err := p.value(f, val, sub)
			if err != nil {
				return nil, err
			}
			preds = append(preds, Compare{Field: f.Name, Op: CompareOp(op), Value: value})

		case "in", "notIn":
			items, ok := AsList(val)
			if !ok {
				items = []any{val}
			}
			values := make([]any, 0, len(items))
			for i, item := range items {
				if item == nil {
					return nil, &ParseError{Path: fmt.Sprintf("%s[%d]", sub, i), Message: "null in set"}
				}
				value, err := p.value(f, item, fmt.Sprintf("%s[%d]", sub, i))
				if err != nil {
					return nil, err
				}
				values = append(values, value)
			}
			preds = append(preds, In{Field: f.Name, Values: values, Negate: op == "notIn"})

		case "contains", "startsWith", "endsWith", "search":
			if !isText(f) {
				return nil, &ParseError{Path: sub, Message: fmt.Sprintf("%s requires a string field, %q is %s", op, f.Name, f.Type)}
			}
			s, ok := val.(string)
			if !ok {
				return nil, &ParseError{Path: sub, Message: fmt.Sprintf("%s requires a string, got %T", op, val)}
			}
			kind := MatchKind(op)
			preds = append(preds, Match{Field: f.Name, Kind: kind, Value: s, Insensitive: insensitive || kind == MatchSearch})
		}
	}

	return conjoin(preds), nil
}

func (p *parser) relation(r ir.RelationSpec, v any, path string) (Predicate, error) {
	target, err := p.schema.Model(r.Target)
	if err != nil {
		return nil, &ParseError{Path: path, Message: err.Error(), Err: err}
	}

	if v == nil {
		if r.Kind == ir.RelationMany {
			return nil, &ParseError{Path: path, Message: "to-many relation filter cannot be null"}
		}
		return Relation{Name: r.Name, Quantifier: None}, nil
	}

	obj, ok := AsMap(v)
	if !ok {
		return nil, &ParseError{Path: path, Message: fmt.Sprintf("expected relation filter object, got %T", v)}
	}

	quantified := map[string]Quantifier{}
	if r.Kind == ir.RelationMany {
		for k := range obj {
			switch k {
			case "some", "every", "none":
				quantified[k] = Quantifier(k)
			default:
				return nil, &ParseError{Path: path + "." + k, Message: "to-many relation filters take some, every or none"}
			}
		}
	} else {
		_, hasIs := obj["is"]
		_, hasIsNot := obj["isNot"]
		if !hasIs && !hasIsNot {
			filter, err := p.where(target, obj, path)
			if err != nil {
				return nil, err
			}
			return Relation{Name: r.Name, Quantifier: Some, Filter: filter}, nil
		}
		for k := range obj {
			switch k {
			case "is":
				quantified[k] = Some
			case "isNot":
				quantified[k] = None
			default:
				return nil, &ParseError{Path: path + "." + k, Message: "cannot mix is/isNot with field filters"}
			}
		}
	}

	keys := make([]string, 0, len(quantified))
	for k := range quantified {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var preds []Predicate
	for _, k := range keys {
		q := quantified[k]
		val := obj[k]
		sub := path + "." + k

		if val == nil {
			if r.Kind == ir.RelationMany {
				return nil, &ParseError{Path: sub, Message: "relation filter cannot be null"}
			}
			// is: null means "no related row"; isNot: null means "has one".
			if q == Some {
				q = None
			} else {
				q = Some
			}
			preds = append(preds, Relation{Name: r.Name, Quantifier: q})
			continue
		}

		nested, ok := AsMap(val)
		if !ok {
			return nil, &ParseError{Path: sub, Message: fmt.Sprintf("expected filter object, got %T", val)}
		}
		filter, err := p.where(target, nested, sub)
		if err != nil {
			return nil, err
		}
		preds = append(preds, Relation{Name: r.Name, Quantifier: q, Filter: filter})
	}
	return conjoin(preds), nil
}

func (p *parser) value(f ir.FieldSpec, v any, path string) (any, error) {
	value, err := ir.ToStorage(f, v)
	if err != nil {
		return nil, &ParseError{Path: path, Message: err.Error(), Err: err}
	}
	return value, nil
}

func conjoin(preds []Predicate) Predicate {
	switch len(preds) {
	case 0:
		return nil
	case 1:
		return preds[0]
	default:
		return And{Predicates: preds}
	}
}

func isText(f ir.FieldSpec) bool {
	return f.Type == ir.TypeString || f.Type == ir.TypeUUID
}

func withMode(ops map[string]any) map[string]any {
	out := make(map[string]any, len(ops)+1)
	for k, v := range ops {
		out[k] = v
	}
	out["mode"] = "insensitive"
	return out
}

// AsMap returns v as a plain map if it is any of the map shapes callers use.
func AsMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Where:
		return map[string]any(m), true
	case ir.Record:
		return map[string]any(m), true
	}
	return nil, false
}

// AsList returns v as []any if it is a slice of any element type.
func AsList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
