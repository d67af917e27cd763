// Package testutil provides fixtures shared by package tests: a todo/user
// schema, seeded SQLite stores and a deterministic id generator.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/restq/internal/compiler"
	"github.com/roach88/restq/internal/ir"
	"github.com/roach88/restq/internal/queryir"
	"github.com/roach88/restq/internal/store"
)

// TodoSchemaCUE declares the fixture models. A todo may belong to a user;
// a user has many todos. Labels have uuid ids and notes have string ids.
const TodoSchemaCUE = `
model: todo: {
	table: "todos"
	fields: {
		id:        int
		title:     string
		completed: bool
		tag?:      string
		userId?:   {type: "int", column: "user_id"}
	}
	relations: user: {model: "user", kind: "one", local: "userId"}
}

model: user: {
	table: "users"
	fields: {
		id:   int
		name: string
	}
	relations: todos: {model: "todo", kind: "many"}
}

model: label: {
	table: "labels"
	fields: {
		id:   "uuid"
		name: string
	}
}

model: note: {
	table: "notes"
	fields: {
		id:   string
		body: string
	}
}
`

// TodoSchema compiles TodoSchemaCUE.
func TodoSchema(t testing.TB) ir.Schema {
	t.Helper()
	schema, err := compiler.CompileSource("schema.cue", TodoSchemaCUE)
	require.NoError(t, err, "compile fixture schema")
	require.Empty(t, compiler.Validate(schema), "validate fixture schema")
	return schema
}

// OpenStore opens a SQLite store for schema in a temp directory. The store
// is closed when the test ends.
func OpenStore(t testing.TB, schema ir.Schema, opts ...store.Option) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "restq.db")
	s, err := store.Open("sqlite3", path, schema, opts...)
	require.NoError(t, err, "open store")
	t.Cleanup(func() { s.Close() })
	return s
}

// TodoStore opens a store for TodoSchema with sequential ids and seeds it
// with SeedTodos.
func TodoStore(t testing.TB) *store.Store {
	t.Helper()
	s := OpenStore(t, TodoSchema(t), store.WithIDGenerator(NewSequentialIDs("")))
	SeedTodos(t, s)
	return s
}

// SeedTodos creates two users and four todos:
//
//	id 1 "Title"    user 1 "Alice"  tag A  open
//	id 2 "Title 2"  user 1 "Alice"  tag B  done
//	id 3 "Title 3"  user 2 "Bob"    tag A  open
//	id 4 "Title 4"  no user         tag B  done
func SeedTodos(t testing.TB, s store.Client) {
	t.Helper()
	ctx := context.Background()

	users, err := s.Model("user")
	require.NoError(t, err)
	for _, name := range []string{"Alice", "Bob"} {
		_, err := users.Create(ctx, ir.Record{"name": name}, queryir.Projection{})
		require.NoError(t, err, "create user %s", name)
	}

	todos, err := s.Model("todo")
	require.NoError(t, err)
	for _, td := range Todos() {
		_, err := todos.Create(ctx, td, queryir.Projection{})
		require.NoError(t, err, "create todo %v", td["title"])
	}
}

// Todos returns the todo rows created by SeedTodos, without ids.
func Todos() []ir.Record {
	return []ir.Record{
		{"title": "Title", "completed": false, "tag": "A", "userId": 1},
		{"title": "Title 2", "completed": true, "tag": "B", "userId": 1},
		{"title": "Title 3", "completed": false, "tag": "A", "userId": 2},
		{"title": "Title 4", "completed": true, "tag": "B"},
	}
}

// Titles returns the title field of each record.
func Titles(records []ir.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i], _ = r["title"].(string)
	}
	return out
}
