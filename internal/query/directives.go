package query

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/restq/internal/errs"
	"github.com/roach88/restq/internal/ir"
	"github.com/roach88/restq/internal/queryir"
)

// Paginate is a resource's page size policy. Default turns on paged
// results. Max caps the rows of any find, paged or not.
type Paginate struct {
	Default int `json:"default,omitempty" yaml:"default,omitempty" toml:"default,omitempty"`
	Max     int `json:"max,omitempty" yaml:"max,omitempty" toml:"max,omitempty"`
}

// Enabled reports whether find returns pages rather than plain lists.
func (p Paginate) Enabled() bool {
	return p.Default > 0
}

// Filters holds the directives split off a query before it is compiled
// into a filter.
type Filters struct {
	Select []string
	Sort   []map[string]any // native orderBy terms
	Skip   int
	Limit  *int           // nil = unbounded
	Custom map[string]any // resource-declared filter keys
}

// SplitFilters removes $select, $sort, $skip, $limit and the custom keys
// from q and parses them. The returned Object is q without those keys;
// q itself is not modified. With paginate enabled a missing $limit becomes
// the default and any $limit is capped at the max.
func SplitFilters(q Object, custom []string, paginate Paginate) (Filters, Object, error) {
	var f Filters
	rest := make(Object, len(q))
	for k, v := range q {
		rest[k] = v
	}

	var err error
	if v, ok := rest[KeySelect]; ok {
		delete(rest, KeySelect)
		if f.Select, err = parseSelect(v); err != nil {
			return Filters{}, nil, err
		}
	}
	if v, ok := rest[KeySort]; ok {
		delete(rest, KeySort)
		if f.Sort, err = parseSort(v); err != nil {
			return Filters{}, nil, err
		}
	}
	if v, ok := rest[KeySkip]; ok {
		delete(rest, KeySkip)
		skip, err := parseCount(v, KeySkip)
		if err != nil {
			return Filters{}, nil, err
		}
		if skip != nil {
			f.Skip = *skip
		}
	}
	if v, ok := rest[KeyLimit]; ok {
		delete(rest, KeyLimit)
		if f.Limit, err = parseCount(v, KeyLimit); err != nil {
			return Filters{}, nil, err
		}
	}
	f.Limit = paginate.limit(f.Limit)

	for _, key := range custom {
		if v, ok := rest[key]; ok {
			if f.Custom == nil {
				f.Custom = make(map[string]any)
			}
			f.Custom[key] = v
			delete(rest, key)
		}
	}
	return f, rest, nil
}

// limit applies the paginate policy to a requested limit. Max bounds
// every read, including unpaginated ones with no $limit.
func (p Paginate) limit(requested *int) *int {
	if !p.Enabled() && p.Max <= 0 {
		return requested
	}
	var n int
	switch {
	case requested != nil:
		n = *requested
	case p.Default > 0:
		n = p.Default
	default:
		n = p.Max
	}
	if p.Max > 0 && n > p.Max {
		n = p.Max
	}
	return &n
}

// parseSelect accepts a list of field names or a single name.
func parseSelect(v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok {
		return []string{s}, nil
	}
	list, ok := queryir.AsList(v)
	if !ok {
		return nil, errs.Validation(errs.CodeInvalidSelect, "%s must be an array of field names", KeySelect)
	}
	out := make([]string, 0, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok || s == "" {
			return nil, errs.Validation(errs.CodeInvalidSelect, "%s[%d] must be a field name", KeySelect, i)
		}
		out = append(out, s)
	}
	return out, nil
}

// parseSort accepts {field: 1|-1} or a list of such objects. Nested
// objects order by a related model's fields. Keys of one object are taken
// in sorted order; use the list form when precedence matters.
func parseSort(v any) ([]map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	if obj, ok := asObject(v); ok {
		return sortTerms(obj, KeySort)
	}
	list, ok := queryir.AsList(v)
	if !ok {
		return nil, errs.Validation(errs.CodeInvalidSort, "%s must be an object or an array of objects", KeySort)
	}
	var out []map[string]any
	for i, item := range list {
		obj, ok := asObject(item)
		if !ok {
			return nil, errs.Validation(errs.CodeInvalidSort, "%s[%d] must be an object", KeySort, i)
		}
		terms, err := sortTerms(obj, fmt.Sprintf("%s[%d]", KeySort, i))
		if err != nil {
			return nil, err
		}
		out = append(out, terms...)
	}
	return out, nil
}

func sortTerms(obj map[string]any, path string) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(obj))
	for _, key := range ir.SortedKeys(obj) {
		dir, err := sortDirection(obj[key], path+"."+key)
		if err != nil {
			return nil, err
		}
		out = append(out, map[string]any{key: dir})
	}
	return out, nil
}

// sortDirection maps 1 to "asc" and -1 to "desc". A nested object maps
// each of its keys the same way.
func sortDirection(v any, path string) (any, error) {
	if obj, ok := asObject(v); ok {
		nested := make(map[string]any, len(obj))
		for _, key := range ir.SortedKeys(obj) {
			dir, err := sortDirection(obj[key], path+"."+key)
			if err != nil {
				return nil, err
			}
			nested[key] = dir
		}
		return nested, nil
	}

	switch d := v.(type) {
	case string:
		switch strings.ToLower(d) {
		case "1", "asc", "ascending":
			return "asc", nil
		case "-1", "desc", "descending":
			return "desc", nil
		}
	default:
		if n, ok := toInt(v); ok {
			switch n {
			case 1:
				return "asc", nil
			case -1:
				return "desc", nil
			}
		}
	}
	return nil, errs.Validation(errs.CodeInvalidSort, "%s: sort direction must be 1 or -1, got %v", path, v).With("path", path)
}

// parseCount parses $skip or $limit: a non-negative integer or a numeric
// string.
func parseCount(v any, key string) (*int, error) {
	if v == nil {
		return nil, nil
	}
	n, ok := toInt(v)
	if !ok || n < 0 {
		return nil, errs.Validation(errs.CodeInvalidPagination, "%s must be a non-negative integer, got %v", key, v).With("path", key)
	}
	return &n, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}
