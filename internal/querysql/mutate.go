package querysql

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/restq/internal/ir"
	"github.com/roach88/restq/internal/queryir"
)

// Insert compiles an INSERT of one row. values maps field names to storage
// values. On PostgreSQL the id is returned with RETURNING; on SQLite callers
// read LastInsertId.
func (c *SQLCompiler) Insert(model string, values map[string]any) (string, []any, error) {
	m, err := c.Schema.Model(model)
	if err != nil {
		return "", nil, err
	}
	s := &state{d: c.Dialect}

	fields, err := sortedFields(m, values)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s", c.Dialect.Quote(m.Table))
	if len(fields) == 0 {
		b.WriteString(" DEFAULT VALUES")
	} else {
		cols := make([]string, len(fields))
		marks := make([]string, len(fields))
		for i, f := range fields {
			cols[i] = c.Dialect.Quote(m.Fields[f].Column)
			marks[i] = s.bind(values[f])
		}
		fmt.Fprintf(&b, " (%s) VALUES (%s)", strings.Join(cols, ", "), strings.Join(marks, ", "))
	}

	if c.Dialect == Postgres {
		b.WriteString(" RETURNING " + c.Dialect.Quote(m.ID().Column))
	}
	return b.String(), s.params, nil
}

// Update compiles an UPDATE of every row matching filter. Rows are matched
// through an id subquery so the filter may reference relations.
func (c *SQLCompiler) Update(model string, filter queryir.Predicate, values map[string]any) (string, []any, error) {
	m, err := c.Schema.Model(model)
	if err != nil {
		return "", nil, err
	}
	fields, err := sortedFields(m, values)
	if err != nil {
		return "", nil, err
	}
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("update of %q sets no fields", model)
	}

	s := &state{d: c.Dialect}
	sets := make([]string, len(fields))
	for i, f := range fields {
		sets[i] = c.Dialect.Quote(m.Fields[f].Column) + " = " + s.bind(values[f])
	}

	match, err := c.matchIDs(s, m, filter)
	if err != nil {
		return "", nil, err
	}
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s", c.Dialect.Quote(m.Table), strings.Join(sets, ", "), match)
	return sql, s.params, nil
}

// Delete compiles a DELETE of every row matching filter.
func (c *SQLCompiler) Delete(model string, filter queryir.Predicate) (string, []any, error) {
	m, err := c.Schema.Model(model)
	if err != nil {
		return "", nil, err
	}
	s := &state{d: c.Dialect}
	match, err := c.matchIDs(s, m, filter)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("DELETE FROM %s WHERE %s", c.Dialect.Quote(m.Table), match), s.params, nil
}

// matchIDs renders `"id" IN (SELECT t0."id" FROM table AS t0 WHERE filter)`.
// A nil filter matches every row.
func (c *SQLCompiler) matchIDs(s *state, m *ir.ModelSpec, filter queryir.Predicate) (string, error) {
	if filter == nil {
		return "1 = 1", nil
	}
	sc := scope{model: m, alias: rootAlias}
	where, err := c.compilePredicate(s, sc, filter)
	if err != nil {
		return "", fmt.Errorf("compile filter: %w", err)
	}
	id := c.Dialect.Quote(m.ID().Column)
	return fmt.Sprintf("%s IN (SELECT %s.%s FROM %s AS %s WHERE %s)",
		id, rootAlias, id, c.Dialect.Quote(m.Table), rootAlias, where), nil
}

// CreateTable compiles CREATE TABLE IF NOT EXISTS for a model. Integer ids
// are assigned by the database; other id types are supplied on insert.
func (c *SQLCompiler) CreateTable(model string) (string, error) {
	m, err := c.Schema.Model(model)
	if err != nil {
		return "", err
	}

	defs := make([]string, 0, len(m.Fields))
	for _, name := range m.FieldNames() {
		f := m.Fields[name]
		switch {
		case name == m.IDField && f.Type == ir.TypeInt:
			defs = append(defs, c.Dialect.autoIncrementID(f.Column))
		case name == m.IDField:
			defs = append(defs, c.Dialect.Quote(f.Column)+" "+c.Dialect.columnType(f.Type)+" PRIMARY KEY")
		case f.Optional:
			defs = append(defs, c.Dialect.Quote(f.Column)+" "+c.Dialect.columnType(f.Type))
		default:
			defs = append(defs, c.Dialect.Quote(f.Column)+" "+c.Dialect.columnType(f.Type)+" NOT NULL")
		}
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", c.Dialect.Quote(m.Table), strings.Join(defs, ", ")), nil
}

func sortedFields(m *ir.ModelSpec, values map[string]any) ([]string, error) {
	fields := make([]string, 0, len(values))
	for f := range values {
		if _, ok := m.Fields[f]; !ok {
			return nil, fmt.Errorf("unknown field %q on model %q", f, m.Name)
		}
		fields = append(fields, f)
	}
	slices.Sort(fields)
	return fields, nil
}
