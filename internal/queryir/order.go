package queryir

import (
	"fmt"
	"strconv"

	"github.com/roach88/restq/internal/ir"
)

// ParseOrderBy converts native orderBy terms into Order values against model.
//
// Each term maps a field to "asc" or "desc", or a to-one relation to a
// nested term. Keys inside one term are taken in sorted order; list order
// carries precedence across terms.
func ParseOrderBy(schema ir.Schema, model *ir.ModelSpec, terms []map[string]any) ([]Order, error) {
	var out []Order
	for i, term := range terms {
		path := "orderBy[" + strconv.Itoa(i) + "]"
		orders, err := parseOrderTerm(schema, model, term, nil, path)
		if err != nil {
			return nil, err
		}
		out = append(out, orders...)
	}
	return out, nil
}

// OrderTerms accepts the orderBy shapes callers write by hand: a single
// term or a list of terms.
func OrderTerms(v any) ([]map[string]any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []map[string]any:
		return t, nil
	}
	if m, ok := AsMap(v); ok {
		return []map[string]any{m}, nil
	}
	list, ok := AsList(v)
	if !ok {
		return nil, &ParseError{Path: "orderBy", Message: fmt.Sprintf("expected an object or a list, got %T", v)}
	}
	out := make([]map[string]any, 0, len(list))
	for i, item := range list {
		m, ok := AsMap(item)
		if !ok {
			return nil, &ParseError{Path: "orderBy[" + strconv.Itoa(i) + "]", Message: fmt.Sprintf("expected an object, got %T", item)}
		}
		out = append(out, m)
	}
	return out, nil
}

func parseOrderTerm(schema ir.Schema, m *ir.ModelSpec, term map[string]any, prefix []string, path string) ([]Order, error) {
	var out []Order
	for _, key := range ir.SortedKeys(term) {
		v := term[key]
		keyPath := path + "." + key
		full := append(append([]string{}, prefix...), key)

		if _, ok := m.Field(key); ok {
			desc, err := direction(v, keyPath)
			if err != nil {
				return nil, err
			}
			out = append(out, Order{Path: full, Desc: desc})
			continue
		}

		rel, ok := m.Relation(key)
		if !ok {
			return nil, &ParseError{Path: keyPath, Message: fmt.Sprintf("unknown field %q on model %q", key, m.Name)}
		}
		if rel.Kind != ir.RelationOne {
			return nil, &ParseError{Path: keyPath, Message: fmt.Sprintf("cannot order by to-many relation %q", key)}
		}
		nested, ok := AsMap(v)
		if !ok {
			return nil, &ParseError{Path: keyPath, Message: "relation order must be an object"}
		}
		target, err := schema.Model(rel.Target)
		if err != nil {
			return nil, &ParseError{Path: keyPath, Message: err.Error(), Err: err}
		}
		orders, err := parseOrderTerm(schema, target, nested, full, keyPath)
		if err != nil {
			return nil, err
		}
		out = append(out, orders...)
	}
	return out, nil
}

func direction(v any, path string) (bool, error) {
	switch v {
	case "asc":
		return false, nil
	case "desc":
		return true, nil
	}
	return false, &ParseError{Path: path, Message: fmt.Sprintf("sort direction must be \"asc\" or \"desc\", got %v", v)}
}
