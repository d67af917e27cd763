package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/restq/internal/ir"
	"github.com/roach88/restq/internal/queryir"
)

// testSchema is the todo/user pair used across store tests. A todo may
// belong to a user; a user has many todos.
func testSchema() ir.Schema {
	return ir.Schema{
		"todo": {
			Name:    "todo",
			Table:   "todos",
			IDField: "id",
			Fields: map[string]ir.FieldSpec{
				"id":        {Name: "id", Column: "id", Type: ir.TypeInt},
				"title":     {Name: "title", Column: "title", Type: ir.TypeString},
				"completed": {Name: "completed", Column: "completed", Type: ir.TypeBool},
				"userId":    {Name: "userId", Column: "user_id", Type: ir.TypeInt, Optional: true},
			},
			Relations: map[string]ir.RelationSpec{
				"user": {Name: "user", Target: "user", Kind: ir.RelationOne, LocalField: "userId", ForeignField: "id"},
			},
		},
		"user": {
			Name:    "user",
			Table:   "users",
			IDField: "id",
			Fields: map[string]ir.FieldSpec{
				"id":   {Name: "id", Column: "id", Type: ir.TypeInt},
				"name": {Name: "name", Column: "name", Type: ir.TypeString},
			},
			Relations: map[string]ir.RelationSpec{
				"todos": {Name: "todos", Target: "todo", Kind: ir.RelationMany, LocalField: "id", ForeignField: "userId"},
			},
		},
		"tag": {
			Name:    "tag",
			Table:   "tags",
			IDField: "id",
			Fields: map[string]ir.FieldSpec{
				"id":    {Name: "id", Column: "id", Type: ir.TypeUUID},
				"label": {Name: "label", Column: "label", Type: ir.TypeString},
			},
		},
	}
}

// createTestStore creates a new SQLite store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open("sqlite3", path, testSchema())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedTodos creates two users and four todos:
//
//	user 1 "Alice": "Title", "Title 2"
//	user 2 "Bob":   "Title 3"
//	no user:        "Title 4"
func seedTodos(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()

	users := mustModel(t, s, "user")
	for _, name := range []string{"Alice", "Bob"} {
		if _, err := users.Create(ctx, ir.Record{"name": name}, queryir.Projection{}); err != nil {
			t.Fatalf("create user %s: %v", name, err)
		}
	}

	todos := mustModel(t, s, "todo")
	for _, td := range []ir.Record{
		{"title": "Title", "completed": false, "userId": 1},
		{"title": "Title 2", "completed": true, "userId": 1},
		{"title": "Title 3", "completed": false, "userId": 2},
		{"title": "Title 4", "completed": true},
	} {
		if _, err := todos.Create(ctx, td, queryir.Projection{}); err != nil {
			t.Fatalf("create todo %v: %v", td["title"], err)
		}
	}
}

func mustModel(t *testing.T, c Client, name string) ModelClient {
	t.Helper()
	m, err := c.Model(name)
	if err != nil {
		t.Fatalf("Model(%q) failed: %v", name, err)
	}
	return m
}

func titles(records []ir.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i], _ = r["title"].(string)
	}
	return out
}

func intPtr(n int) *int {
	return &n
}
