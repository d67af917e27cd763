package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/restq/internal/ir"
	"github.com/roach88/restq/internal/queryir"
)

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
	}
}

const todoColumns = `t0."id", t0."completed", t0."title", t0."user_id"`

func TestCompile_SimpleSelect(t *testing.T) {
	c := NewSQLCompiler(SQLite, testSchema())

	sql, params, err := c.Compile(queryir.Select{
		Model:  "todo",
		Filter: queryir.Equals{Field: "title", Value: "Title"},
	})
	require.NoError(t, err)

	assert.Equal(t, `SELECT `+todoColumns+` FROM "todos" AS t0 WHERE t0."title" = ? ORDER BY t0."id" ASC`, sql)
	assert.Equal(t, []any{"Title"}, params)
}

func TestCompile_PointerForms(t *testing.T) {
	c := NewSQLCompiler(SQLite, testSchema())

	sql, params, err := c.Compile(&queryir.Select{
		Model:  "todo",
		Filter: &queryir.Equals{Field: "title", Value: "Title"},
	})
	require.NoError(t, err)

	assert.Contains(t, sql, `WHERE t0."title" = ?`)
	assert.Equal(t, []any{"Title"}, params)
}

func TestCompile_OrderByMandatory(t *testing.T) {
	c := NewSQLCompiler(SQLite, testSchema())

	testCases := []struct {
		name  string
		query queryir.Select
		order string
	}{
		{"no order", queryir.Select{Model: "todo"}, `ORDER BY t0."id" ASC`},
		{"field order", queryir.Select{Model: "todo", Order: []queryir.Order{{Path: []string{"title"}}}},
			`ORDER BY t0."title" ASC, t0."id" ASC`},
		{"id already ordered", queryir.Select{Model: "todo", Order: []queryir.Order{{Path: []string{"id"}, Desc: true}}},
			`ORDER BY t0."id" DESC`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sql, _, err := c.Compile(tc.query)
			require.NoError(t, err)
			assert.Contains(t, sql, tc.order)
		})
	}
}

func TestCompile_Window(t *testing.T) {
	take := 2

	sql, params, err := NewSQLCompiler(Postgres, testSchema()).Compile(queryir.Select{
		Model:  "todo",
		Filter: queryir.Equals{Field: "completed", Value: false},
		Order:  []queryir.Order{{Path: []string{"title"}}},
		Skip:   2,
		Take:   &take,
	})
	require.NoError(t, err)
	assert.Equal(t, `SELECT `+todoColumns+` FROM "todos" AS t0 WHERE t0."completed" = $1 ORDER BY t0."title" ASC, t0."id" ASC LIMIT $2 OFFSET $3`, sql)
	assert.Equal(t, []any{false, int64(2), int64(2)}, params)

	sql, params, err = NewSQLCompiler(SQLite, testSchema()).Compile(queryir.Select{Model: "todo", Skip: 3})
	require.NoError(t, err)
	assert.Contains(t, sql, `LIMIT -1 OFFSET ?`)
	assert.Equal(t, []any{int64(3)}, params)

	sql, _, err = NewSQLCompiler(Postgres, testSchema()).Compile(queryir.Select{Model: "todo", Skip: 3})
	require.NoError(t, err)
	assert.NotContains(t, sql, "LIMIT")
	assert.Contains(t, sql, `OFFSET $1`)
}

func TestCompile_NoStringInterpolation(t *testing.T) {
	c := NewSQLCompiler(SQLite, testSchema())
	dangerous := "'; DROP TABLE todos; --"

	sql, params, err := c.Compile(queryir.Select{
		Model:  "todo",
		Filter: queryir.Equals{Field: "title", Value: dangerous},
	})
	require.NoError(t, err)

	assert.NotContains(t, sql, dangerous)
	assert.Contains(t, params, dangerous)
}

func TestCompile_Predicates(t *testing.T) {
	tests := []struct {
		name   string
		pred   queryir.Predicate
		where  string
		params []any
	}{
		{"insensitive equals", queryir.Equals{Field: "title", Value: "T", Insensitive: true},
			`LOWER(t0."title") = LOWER(?)`, []any{"T"}},
		{"negated equals keeps nulls", queryir.Equals{Field: "userId", Value: int64(1), Negate: true},
			`(t0."user_id" <> ? OR t0."user_id" IS NULL)`, []any{int64(1)}},
		{"compare", queryir.Compare{Field: "id", Op: queryir.OpGte, Value: int64(2)},
			`t0."id" >= ?`, []any{int64(2)}},
		{"in", queryir.In{Field: "id", Values: []any{int64(1), int64(2)}},
			`t0."id" IN (?, ?)`, []any{int64(1), int64(2)}},
		{"empty in", queryir.In{Field: "id"}, `1 = 0`, nil},
		{"empty not in", queryir.In{Field: "id", Negate: true}, `1 = 1`, nil},
		{"not in", queryir.In{Field: "id", Values: []any{int64(1)}, Negate: true},
			`(t0."id" NOT IN (?) OR t0."id" IS NULL)`, []any{int64(1)}},
		{"is null", queryir.IsNull{Field: "userId"}, `t0."user_id" IS NULL`, nil},
		{"is not null", queryir.IsNull{Field: "userId", Negate: true}, `t0."user_id" IS NOT NULL`, nil},
		{"glob contains", queryir.Match{Field: "title", Kind: queryir.MatchContains, Value: "a*b"},
			`t0."title" GLOB ?`, []any{"*a[*]b*"}},
		{"insensitive prefix", queryir.Match{Field: "title", Kind: queryir.MatchStartsWith, Value: "50%", Insensitive: true},
			`t0."title" LIKE ? ESCAPE '\'`, []any{`50\%%`}},
		{"suffix", queryir.Match{Field: "title", Kind: queryir.MatchEndsWith, Value: "x"},
			`t0."title" GLOB ?`, []any{"*x"}},
		{"nested junctions", queryir.And{Predicates: []queryir.Predicate{
			queryir.Equals{Field: "title", Value: "a"},
			queryir.Or{Predicates: []queryir.Predicate{
				queryir.Equals{Field: "title", Value: "b"},
				queryir.Equals{Field: "title", Value: "c"},
			}},
		}}, `(t0."title" = ? AND (t0."title" = ? OR t0."title" = ?))`, []any{"a", "b", "c"}},
		{"empty or", queryir.Or{}, `1 = 0`, nil},
		{"empty and", queryir.And{}, `1 = 1`, nil},
		{"not", queryir.Not{Predicate: queryir.Equals{Field: "completed", Value: true}},
			`NOT (t0."completed" = ?)`, []any{true}},
	}

	c := NewSQLCompiler(SQLite, testSchema())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, params, err := c.Compile(queryir.Count{Model: "todo", Filter: tt.pred})
			require.NoError(t, err)
			assert.Equal(t, `SELECT COUNT(*) FROM "todos" AS t0 WHERE `+tt.where, sql)
			assert.Equal(t, tt.params, params)
		})
	}
}

func TestCompile_PostgresMatch(t *testing.T) {
	c := NewSQLCompiler(Postgres, testSchema())

	sql, params, err := c.Compile(queryir.Count{Model: "todo", Filter: queryir.And{Predicates: []queryir.Predicate{
		queryir.Match{Field: "title", Kind: queryir.MatchContains, Value: "a_b"},
		queryir.Match{Field: "title", Kind: queryir.MatchSearch, Value: "X", Insensitive: true},
	}}})
	require.NoError(t, err)

	assert.Equal(t, `SELECT COUNT(*) FROM "todos" AS t0 WHERE (t0."title" LIKE $1 ESCAPE '\' AND t0."title" ILIKE $2 ESCAPE '\')`, sql)
	assert.Equal(t, []any{`%a\_b%`, "%X%"}, params)
}

func TestCompile_Relations(t *testing.T) {
	tests := []struct {
		name  string
		model string
		pred  queryir.Predicate
		where string
	}{
		{"to-one some", "todo",
			queryir.Relation{Name: "user", Quantifier: queryir.Some, Filter: queryir.Equals{Field: "name", Value: "Alice"}},
			`EXISTS (SELECT 1 FROM "users" AS r1 WHERE r1."id" = t0."user_id" AND r1."name" = ?)`},
		{"to-one none without filter", "todo",
			queryir.Relation{Name: "user", Quantifier: queryir.None},
			`NOT EXISTS (SELECT 1 FROM "users" AS r1 WHERE r1."id" = t0."user_id")`},
		{"to-many every", "user",
			queryir.Relation{Name: "todos", Quantifier: queryir.Every, Filter: queryir.Equals{Field: "completed", Value: true}},
			`NOT EXISTS (SELECT 1 FROM "todos" AS r1 WHERE r1."user_id" = t0."id" AND NOT (r1."completed" = ?))`},
		{"every without filter", "user",
			queryir.Relation{Name: "todos", Quantifier: queryir.Every},
			`1 = 1`},
		{"nested", "user",
			queryir.Relation{Name: "todos", Quantifier: queryir.Some, Filter: queryir.Relation{
				Name: "user", Quantifier: queryir.Some, Filter: queryir.Equals{Field: "name", Value: "Bob"},
			}},
			`EXISTS (SELECT 1 FROM "todos" AS r1 WHERE r1."user_id" = t0."id" AND EXISTS (SELECT 1 FROM "users" AS r2 WHERE r2."id" = r1."user_id" AND r2."name" = ?))`},
	}

	c := NewSQLCompiler(SQLite, testSchema())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, _, err := c.Compile(queryir.Count{Model: tt.model, Filter: tt.pred})
			require.NoError(t, err)
			assert.Contains(t, sql, "WHERE "+tt.where)
		})
	}
}

func TestCompile_RelationOrder(t *testing.T) {
	c := NewSQLCompiler(SQLite, testSchema())

	sql, _, err := c.Compile(queryir.Select{
		Model: "todo",
		Order: []queryir.Order{{Path: []string{"user", "name"}, Desc: true}},
	})
	require.NoError(t, err)
	assert.Contains(t, sql, `ORDER BY (SELECT r1."name" FROM "users" AS r1 WHERE r1."id" = t0."user_id") DESC, t0."id" ASC`)

	_, _, err = c.Compile(queryir.Select{
		Model: "user",
		Order: []queryir.Order{{Path: []string{"todos", "title"}}},
	})
	assert.ErrorContains(t, err, "to-many")
}

func TestCompile_Errors(t *testing.T) {
	c := NewSQLCompiler(SQLite, testSchema())

	_, _, err := c.Compile(nil)
	assert.Error(t, err)

	_, _, err = c.Compile(queryir.Select{Model: "nope"})
	assert.Error(t, err)

	_, _, err = c.Compile(queryir.Select{Model: "todo", Filter: queryir.Equals{Field: "nope", Value: 1}})
	assert.ErrorContains(t, err, `unknown field "nope"`)

	_, _, err = c.Compile(queryir.Count{Model: "todo", Filter: queryir.Relation{Name: "nope", Quantifier: queryir.Some}})
	assert.ErrorContains(t, err, `unknown relation "nope"`)
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("sqlite3")
	require.NoError(t, err)
	assert.Equal(t, SQLite, d)

	d, err = ParseDialect("postgres")
	require.NoError(t, err)
	assert.Equal(t, Postgres, d)

	_, err = ParseDialect("mysql")
	assert.Error(t, err)

	assert.Equal(t, `"a""b"`, SQLite.Quote(`a"b`))
	assert.Equal(t, "$3", Postgres.Placeholder(3))
}
