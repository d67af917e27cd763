// Package store provides the record store behind restq resources.
//
// A Store serves the models of one ir.Schema over database/sql, on SQLite
// (github.com/mattn/go-sqlite3) or PostgreSQL (github.com/lib/pq). Each
// model is reached through a ModelClient exposing the structured request
// primitives the resource layer composes:
//
//   - FindMany / FindFirst: filtered, ordered, windowed reads with
//     select/include projection and relation loading
//   - Count: number of rows matching a filter
//   - Create: insert one row and read it back
//   - UpdateMany / DeleteMany: bulk mutations reporting only a row count
//
// RunInTransaction executes a function against a Client bound to one
// database transaction. This is the atomic batch: every primitive called
// on the transaction's client observes the same snapshot and commits or
// rolls back together.
//
// # Critical Patterns
//
// Deterministic Query Results
//   - Every row read ends with ORDER BY <id> ASC unless the id is ordered on
//   - Relation rows are loaded in one IN query per relation and level
//
// Parameterized SQL
//   - Values are always bound, never interpolated (see internal/querysql)
//
// Error Translation
//   - Primitives return driver errors unchanged (wrapped with context)
//   - TranslateError maps them onto the internal/errs taxonomy
//
// # Database Configuration (SQLite)
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - Single connection: one writer, and ":memory:" databases survive
package store
