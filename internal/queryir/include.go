package queryir

import (
	"fmt"
	"strconv"
)

// NormalizeInclude returns an include spec in its map form.
//
// A bare relation name is shorthand for {name: true}. The map form
// ({relation: true | args}) is returned as a copy. The sequence form lists relation names, where a
// nested list names a relation followed by its own includes:
//
//	["user", ["todos", ["user"]]]
//	→ {user: true, todos: {include: {user: true}}}
//
// A nested list whose first element is not a string is rejected.
func NormalizeInclude(v any) (map[string]any, error) {
	return normalizeInclude(v, "include")
}

func normalizeInclude(v any, path string) (map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	if name, ok := v.(string); ok {
		if name == "" {
			return nil, &ParseError{Path: path, Message: "relation name must not be empty"}
		}
		return map[string]any{name: true}, nil
	}
	if m, ok := AsMap(v); ok {
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, nil
	}

	list, ok := AsList(v)
	if !ok {
		return nil, &ParseError{Path: path, Message: fmt.Sprintf("expected an object or a list, got %T", v)}
	}
	out := make(map[string]any, len(list))
	for i, item := range list {
		itemPath := path + "[" + strconv.Itoa(i) + "]"
		if name, ok := item.(string); ok {
			out[name] = true
			continue
		}
		sub, ok := AsList(item)
		if !ok || len(sub) == 0 {
			return nil, &ParseError{Path: itemPath, Message: "expected a relation name or a nested list"}
		}
		name, ok := sub[0].(string)
		if !ok {
			return nil, &ParseError{Path: itemPath, Message: "first element of a nested include must be a relation name"}
		}
		if len(sub) == 1 {
			out[name] = true
			continue
		}
		nested, err := normalizeInclude(sub[1:], itemPath)
		if err != nil {
			return nil, err
		}
		out[name] = map[string]any{"include": nested}
	}
	return out, nil
}
