// Package queryir provides the backend-native query shapes and an abstract
// predicate intermediate representation (IR) for restq's record store.
//
// ARCHITECTURE:
//
// Two layers live here:
//
//	[REST query] → query.Compile → [native shapes] → ParseWhere → [predicate IR] → querysql
//
// The native shapes (Where, FindArgs) are the store's structured request
// grammar: a filter tree keyed by field names, relation names and the
// AND/OR/NOT combinators, plus select/include/orderBy/skip/take. They are
// plain maps so callers can hand-write them through the override channel.
//
// The predicate IR is the typed form of a Where after it has been checked
// against a model schema. Unknown fields, unknown operators and values that
// do not fit a field's type are rejected by ParseWhere with a *ParseError.
//
// SEALED INTERFACES:
//
// Query and Predicate are sealed interfaces using the marker method pattern.
// Only types in this package can implement them, so backend compilers can
// use exhaustive type switches.
//
//	switch p := pred.(type) {
//	case Equals:
//	    // col = ?
//	case Relation:
//	    // EXISTS (...)
//	default:
//	    // impossible
//	}
//
// NATIVE FILTER GRAMMAR:
//
//	where    := { key: clause, ... }
//	key      := field | relation | "AND" | "OR" | "NOT"
//	clause   := scalar | null | ops | relfilter
//	ops      := { equals | not | lt | lte | gt | gte | in | notIn |
//	             contains | startsWith | endsWith | search | mode }
//	relfilter (to-many) := { some | every | none: where }
//	relfilter (to-one)  := { is | isNot: where | null } | where
//
// AND and OR accept a single where or a list of them; NOT accepts either
// and negates their conjunction.
package queryir
