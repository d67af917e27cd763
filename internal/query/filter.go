package query

import (
	"fmt"
	"maps"

	"github.com/roach88/restq/internal/errs"
	"github.com/roach88/restq/internal/ir"
	"github.com/roach88/restq/internal/queryir"
)

// Object is a caller-facing query: field names and directive keys mapped
// to literals, operator objects, or (for $and/$or) lists of Objects.
type Object map[string]any

// CompileOperatorObject maps one operator object ({$gt: 3, $in: [...]})
// to native operators. Keys that are not whitelisted, not in the table, or
// are $eager are dropped. List values are coerced element-wise. A raw
// passthrough key with an object value has that object's keys spliced
// into the result unmapped.
func CompileOperatorObject(ops map[string]any, table OperatorTable, wl Whitelist) map[string]any {
	out := make(map[string]any, len(ops))
	for _, key := range ir.SortedKeys(ops) {
		native, ok := table.Lookup(key)
		if !ok || key == KeyEager || !wl.Allows(key) {
			continue
		}
		value := ops[key]

		if table.IsRaw(key) {
			if raw, ok := asObject(value); ok {
				maps.Copy(out, raw)
			}
			continue
		}
		if list, ok := queryir.AsList(value); ok {
			out[native] = coerceList(list)
			continue
		}
		if _, ok := asObject(value); ok {
			continue
		}
		out[native] = CoerceScalar(value)
	}
	return out
}

// MergeFilterForKey combines a new constraint for key with whatever where
// already holds for it. An operator-object filter is merged over an
// existing operator object; an existing bare value becomes {equals: v}
// first so neither constraint is lost. A scalar filter replaces the
// existing constraint.
func MergeFilterForKey(where queryir.Where, key string, filter any) any {
	next, ok := asObject(filter)
	if !ok {
		return filter
	}

	current, exists := where[key]
	cur, curIsMap := asObject(current)
	merged := make(map[string]any, len(next)+len(cur)+1)
	maps.Copy(merged, cur)
	maps.Copy(merged, next)
	if exists && !curIsMap {
		merged["equals"] = current
	}
	return merged
}

// compiler walks one query Object.
type compiler struct {
	table OperatorTable
	wl    Whitelist
}

// object compiles q into a native where and, when $eager is whitelisted,
// an inclusion spec passed through as given. Plain fields are compiled
// first, then $or, then $and, so $and always narrows what the fields
// already constrain.
func (c *compiler) object(q map[string]any, path string) (queryir.Where, any, error) {
	where := queryir.Where{}
	var include any

	keys := ir.SortedKeys(q)
	for _, key := range keys {
		value := q[key]
		sub := path + "." + key

		switch {
		case key == KeyEager:
			if !c.wl.Allows(KeyEager) {
				continue
			}
			if err := validateEager(value, sub); err != nil {
				return nil, nil, err
			}
			include = value

		case isDirective(key):
			// $and/$or run below; anything else is dropped like an operator.
			continue

		default:
			if ops, ok := asObject(value); ok {
				where[key] = MergeFilterForKey(where, key, CompileOperatorObject(ops, c.table, c.wl))
				continue
			}
			if _, ok := queryir.AsList(value); ok {
				return nil, nil, errs.Validation(errs.CodeInvalidQuery,
					"%s: a list of values needs the %s operator", sub, KeyIn).With("path", sub)
			}
			where[key] = CoerceScalar(value)
		}
	}

	if value, ok := q[KeyOr]; ok {
		sub := path + "." + KeyOr
		list, err := c.list(value, sub)
		if err != nil {
			return nil, nil, err
		}
		branches := make([]any, 0, len(list))
		for i, item := range list {
			branch, err := c.nested(item, fmt.Sprintf("%s[%d]", sub, i))
			if err != nil {
				return nil, nil, err
			}
			branches = append(branches, map[string]any(branch))
		}
		where["OR"] = branches
	}

	if value, ok := q[KeyAnd]; ok {
		sub := path + "." + KeyAnd
		list, err := c.list(value, sub)
		if err != nil {
			return nil, nil, err
		}
		for i, item := range list {
			clause, err := c.nested(item, fmt.Sprintf("%s[%d]", sub, i))
			if err != nil {
				return nil, nil, err
			}
			for _, k := range ir.SortedKeys(clause) {
				_, exists := where[k]
				_, isOps := asObject(clause[k])
				if k == "OR" || k == "AND" || (exists && !isOps) {
					// Both constraints must hold and neither can absorb the other.
					appendAnd(where, queryir.Where{k: clause[k]})
					continue
				}
				where[k] = MergeFilterForKey(where, k, clause[k])
			}
		}
	}
	return where, include, nil
}

func (c *compiler) list(v any, path string) ([]any, error) {
	list, ok := queryir.AsList(v)
	if !ok {
		return nil, errs.Validation(errs.CodeInvalidQuery, "%s must be an array", path).With("path", path)
	}
	return list, nil
}

// nested compiles an element of $and/$or.
func (c *compiler) nested(v any, path string) (queryir.Where, error) {
	q, ok := asObject(v)
	if !ok {
		return nil, errs.Validation(errs.CodeInvalidQuery, "%s must be an object", path).With("path", path)
	}
	where, _, err := c.object(q, path)
	return where, err
}

// appendAnd adds clause to where's AND list.
func appendAnd(where queryir.Where, clause queryir.Where) {
	var list []any
	switch cur := where["AND"].(type) {
	case nil:
	case []any:
		list = cur
	default:
		list = []any{cur}
	}
	where["AND"] = append(list, map[string]any(clause))
}

// asObject accepts Object as well as the map shapes queryir.AsMap knows.
func asObject(v any) (map[string]any, bool) {
	if o, ok := v.(Object); ok {
		return map[string]any(o), true
	}
	return queryir.AsMap(v)
}

func isDirective(key string) bool {
	return len(key) > 0 && key[0] == '$'
}

// validateEager checks the sequence form of $eager: each element is a
// relation name or a list whose first element is a relation name followed
// by nested eager elements. The object form is passed through unchecked.
func validateEager(v any, path string) error {
	if v == nil {
		return nil
	}
	if _, ok := asObject(v); ok {
		return nil
	}
	if s, ok := v.(string); ok {
		if s == "" {
			return eagerShapeError(path)
		}
		return nil
	}
	list, ok := queryir.AsList(v)
	if !ok {
		return eagerShapeError(path)
	}
	for i, item := range list {
		sub := fmt.Sprintf("%s[%d]", path, i)
		switch el := item.(type) {
		case string:
			continue
		default:
			inner, ok := queryir.AsList(el)
			if !ok || len(inner) == 0 {
				return eagerShapeError(sub)
			}
			if _, ok := inner[0].(string); !ok {
				return eagerShapeError(sub)
			}
			if err := validateEager(inner[1:], sub); err != nil {
				return err
			}
		}
	}
	return nil
}

func eagerShapeError(path string) error {
	return errs.Validation(errs.CodeInvalidEagerShape,
		"First Array Item in a sub-array must be a string!").With("path", path)
}
