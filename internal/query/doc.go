// Package query compiles the caller-facing query language into the native
// find arguments accepted by the store.
//
// A query Object mixes plain field constraints, operator objects ($in,
// $gt, $contains, ...), the $and/$or combinators and the directives
// $select, $sort, $skip, $limit and $eager. Compile turns one Object into a
// Descriptor: a native Where tree, a projection (select) or inclusion
// (include) spec, an ordering, a window and two diagnostics the mutation
// orchestrator uses to choose its code path.
//
// Operator keys are honored only when they are on the Whitelist. Anything
// else is dropped without error, so untrusted query strings cannot reach
// native filter syntax unless a resource opts in to $rawWhere or $prisma.
//
// Compilation is pure: no I/O, no shared state. OperatorTable and
// Whitelist are immutable values passed in through Options.
package query
