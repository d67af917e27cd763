package query

import (
	"maps"
	"slices"
)

// Query directive and operator keys.
const (
	KeyAnd        = "$and"
	KeyOr         = "$or"
	KeyEager      = "$eager"
	KeySelect     = "$select"
	KeySort       = "$sort"
	KeySkip       = "$skip"
	KeyLimit      = "$limit"
	KeyRawWhere   = "$rawWhere"
	KeyPrisma     = "$prisma"
	KeySearch     = "$search"
	KeyNotEqual   = "$ne"
	KeyIn         = "$in"
	KeyNotIn      = "$nin"
	KeyLessThan   = "$lt"
	KeyLessEq     = "$lte"
	KeyGreater    = "$gt"
	KeyGreaterEq  = "$gte"
	KeyContains   = "$contains"
	KeyStartsWith = "$startsWith"
	KeyEndsWith   = "$endsWith"
	KeyMode       = "$mode"
)

// rawOperator marks table entries whose object value is spliced into the
// compiled filter instead of being mapped.
const rawOperator = ""

// OperatorTable maps caller-facing operator keys to native filter operators.
// The zero value is empty; use DefaultOperatorTable.
type OperatorTable struct {
	m map[string]string
}

// DefaultOperatorTable returns the built-in operator mapping.
func DefaultOperatorTable() OperatorTable {
	return NewOperatorTable(map[string]string{
		KeyLessThan:   "lt",
		KeyLessEq:     "lte",
		KeyGreater:    "gt",
		KeyGreaterEq:  "gte",
		KeyIn:         "in",
		KeyNotIn:      "notIn",
		KeyNotEqual:   "not",
		KeyEager:      "include",
		KeyContains:   "contains",
		KeySearch:     "search",
		KeyStartsWith: "startsWith",
		KeyEndsWith:   "endsWith",
		KeyMode:       "mode",
		KeyRawWhere:   rawOperator,
		KeyPrisma:     rawOperator,
	})
}

// NewOperatorTable builds a table from key -> native operator pairs. An
// empty native name marks a raw passthrough key.
func NewOperatorTable(m map[string]string) OperatorTable {
	return OperatorTable{m: maps.Clone(m)}
}

// Lookup returns the native operator for key.
func (t OperatorTable) Lookup(key string) (native string, ok bool) {
	native, ok = t.m[key]
	return native, ok
}

// IsRaw reports whether key splices its object value verbatim.
func (t OperatorTable) IsRaw(key string) bool {
	native, ok := t.m[key]
	return ok && native == rawOperator
}

func (t OperatorTable) isZero() bool {
	return t.m == nil
}

// defaultWhitelist is always honored. $eager, $search and the raw
// passthrough keys must be added per resource.
var defaultWhitelist = []string{
	KeyNotEqual, KeyGreaterEq, KeyGreater, KeyLessEq, KeyLessThan,
	KeyIn, KeyNotIn, KeyAnd, KeyOr,
	KeyContains, KeyStartsWith, KeyEndsWith, KeyMode,
}

// Whitelist is the set of operator and directive keys a resource honors.
type Whitelist struct {
	keys map[string]bool
}

// NewWhitelist returns the default operator set plus extra.
func NewWhitelist(extra ...string) Whitelist {
	keys := make(map[string]bool, len(defaultWhitelist)+len(extra))
	for _, k := range defaultWhitelist {
		keys[k] = true
	}
	for _, k := range extra {
		keys[k] = true
	}
	return Whitelist{keys: keys}
}

// Allows reports whether key is whitelisted.
func (w Whitelist) Allows(key string) bool {
	return w.keys[key]
}

// Keys returns the whitelisted keys in sorted order.
func (w Whitelist) Keys() []string {
	return slices.Sorted(maps.Keys(w.keys))
}

func (w Whitelist) isZero() bool {
	return w.keys == nil
}
