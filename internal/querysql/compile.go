package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/restq/internal/ir"
	"github.com/roach88/restq/internal/queryir"
)

// SQLCompiler compiles the query IR to parameterized SQL.
//
// CRITICAL: ALL row reads end with the model id as ORDER BY tiebreaker so
// pagination is deterministic.
// CRITICAL: All values are parameterized (never interpolated).
type SQLCompiler struct {
	Dialect Dialect
	Schema  ir.Schema
}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler(d Dialect, schema ir.Schema) *SQLCompiler {
	return &SQLCompiler{Dialect: d, Schema: schema}
}

// rootAlias is the alias of the table a statement reads from.
const rootAlias = "t0"

// state carries parameters and alias numbering through one compilation.
type state struct {
	d       Dialect
	params  []any
	aliases int
}

// bind appends a parameter and returns its placeholder.
func (s *state) bind(v any) string {
	s.params = append(s.params, v)
	return s.d.Placeholder(len(s.params))
}

// nextAlias returns a fresh alias for a relation subquery.
func (s *state) nextAlias() string {
	s.aliases++
	return "r" + strconv.Itoa(s.aliases)
}

// scope is the model and alias a predicate is evaluated against.
type scope struct {
	model *ir.ModelSpec
	alias string
}

func (c *SQLCompiler) col(sc scope, field string) (string, error) {
	f, ok := sc.model.Field(field)
	if !ok {
		return "", fmt.Errorf("unknown field %q on model %q", field, sc.model.Name)
	}
	return sc.alias + "." + c.Dialect.Quote(f.Column), nil
}

// Columns returns the field names a Select statement returns, in order.
// Scanners must use this order.
func Columns(m *ir.ModelSpec) []string {
	return m.FieldNames()
}

// Compile converts a query to parameterized SQL.
// Returns (sql, params, error) tuple.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	case queryir.Count:
		return c.compileCount(query)
	case *queryir.Count:
		return c.compileCount(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

// compileSelect compiles a queryir.Select to SQL.
// MANDATORY: Includes ORDER BY with id tiebreaker.
func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	m, err := c.Schema.Model(q.Model)
	if err != nil {
		return "", nil, err
	}
	s := &state{d: c.Dialect}
	sc := scope{model: m, alias: rootAlias}

	cols := make([]string, 0, len(m.Fields))
	for _, name := range Columns(m) {
		col, _ := c.col(sc, name)
		cols = append(cols, col)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s AS %s", strings.Join(cols, ", "), c.Dialect.Quote(m.Table), rootAlias)

	if q.Filter != nil {
		where, err := c.compilePredicate(s, sc, q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" WHERE " + where)
	}

	order, err := c.compileOrder(s, sc, q.Order)
	if err != nil {
		return "", nil, fmt.Errorf("compile order: %w", err)
	}
	b.WriteString(" ORDER BY " + order)

	switch {
	case q.Take != nil:
		b.WriteString(" LIMIT " + s.bind(int64(*q.Take)))
		if q.Skip > 0 {
			b.WriteString(" OFFSET " + s.bind(int64(q.Skip)))
		}
	case q.Skip > 0:
		// SQLite requires a LIMIT before OFFSET; -1 means unbounded.
		if c.Dialect == SQLite {
			b.WriteString(" LIMIT -1")
		}
		b.WriteString(" OFFSET " + s.bind(int64(q.Skip)))
	}

	return b.String(), s.params, nil
}

// compileCount compiles a queryir.Count to SQL.
func (c *SQLCompiler) compileCount(q queryir.Count) (string, []any, error) {
	m, err := c.Schema.Model(q.Model)
	if err != nil {
		return "", nil, err
	}
	s := &state{d: c.Dialect}
	sc := scope{model: m, alias: rootAlias}

	sql := fmt.Sprintf("SELECT COUNT(*) FROM %s AS %s", c.Dialect.Quote(m.Table), rootAlias)
	if q.Filter != nil {
		where, err := c.compilePredicate(s, sc, q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		sql += " WHERE " + where
	}
	return sql, s.params, nil
}

// compileOrder renders ORDER BY terms and appends the id tiebreaker unless
// the id is already ordered on.
func (c *SQLCompiler) compileOrder(s *state, sc scope, order []queryir.Order) (string, error) {
	parts := make([]string, 0, len(order)+1)
	idOrdered := false

	for _, o := range order {
		if len(o.Path) == 0 {
			return "", fmt.Errorf("empty order path")
		}
		if len(o.Path) == 1 && o.Path[0] == sc.model.IDField {
			idOrdered = true
		}
		expr, err := c.orderExpr(s, sc, o.Path)
		if err != nil {
			return "", err
		}
		dir := " ASC"
		if o.Desc {
			dir = " DESC"
		}
		parts = append(parts, expr+dir)
	}

	if !idOrdered {
		id, err := c.col(sc, sc.model.IDField)
		if err != nil {
			return "", err
		}
		parts = append(parts, id+" ASC")
	}
	return strings.Join(parts, ", "), nil
}

// orderExpr resolves an order path. A path through to-one relations becomes
// a correlated scalar subquery.
func (c *SQLCompiler) orderExpr(s *state, sc scope, path []string) (string, error) {
	if len(path) == 1 {
		return c.col(sc, path[0])
	}

	rel, ok := sc.model.Relation(path[0])
	if !ok {
		return "", fmt.Errorf("unknown relation %q on model %q", path[0], sc.model.Name)
	}
	if rel.Kind != ir.RelationOne {
		return "", fmt.Errorf("cannot order by to-many relation %q", rel.Name)
	}
	target, err := c.Schema.Model(rel.Target)
	if err != nil {
		return "", err
	}

	inner := scope{model: target, alias: s.nextAlias()}
	join, err := c.joinCondition(sc, inner, rel)
	if err != nil {
		return "", err
	}
	expr, err := c.orderExpr(s, inner, path[1:])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(SELECT %s FROM %s AS %s WHERE %s)", expr, c.Dialect.Quote(target.Table), inner.alias, join), nil
}

// joinCondition links rows of a related model to the outer row.
func (c *SQLCompiler) joinCondition(outer, inner scope, rel ir.RelationSpec) (string, error) {
	foreign, err := c.col(inner, rel.ForeignField)
	if err != nil {
		return "", err
	}
	local, err := c.col(outer, rel.LocalField)
	if err != nil {
		return "", err
	}
	return foreign + " = " + local, nil
}

// compilePredicate compiles a predicate to a WHERE clause fragment.
// CRITICAL: Values NEVER interpolated - always bound.
func (c *SQLCompiler) compilePredicate(s *state, sc scope, p queryir.Predicate) (string, error) {
	if p == nil {
		return "1 = 1", nil
	}

	switch pred := deref(p).(type) {
	case queryir.Equals:
		return c.compileEquals(s, sc, pred)
	case queryir.Compare:
		return c.compileCompare(s, sc, pred)
	case queryir.In:
		return c.compileIn(s, sc, pred)
	case queryir.Match:
		return c.compileMatch(s, sc, pred)
	case queryir.IsNull:
		col, err := c.col(sc, pred.Field)
		if err != nil {
			return "", err
		}
		if pred.Negate {
			return col + " IS NOT NULL", nil
		}
		return col + " IS NULL", nil
	case queryir.And:
		return c.compileJunction(s, sc, pred.Predicates, " AND ", "1 = 1")
	case queryir.Or:
		return c.compileJunction(s, sc, pred.Predicates, " OR ", "1 = 0")
	case queryir.Not:
		inner, err := c.compilePredicate(s, sc, pred.Predicate)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	case queryir.Relation:
		return c.compileRelation(s, sc, pred)
	default:
		return "", fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileEquals compiles an Equals predicate to "col = ?".
// Negated equality keeps NULL rows, matching "field is not this value".
func (c *SQLCompiler) compileEquals(s *state, sc scope, eq queryir.Equals) (string, error) {
	col, err := c.col(sc, eq.Field)
	if err != nil {
		return "", err
	}
	lhs, rhs := col, s.bind(eq.Value)
	if eq.Insensitive {
		lhs, rhs = "LOWER("+lhs+")", "LOWER("+rhs+")"
	}
	if eq.Negate {
		return fmt.Sprintf("(%s <> %s OR %s IS NULL)", lhs, rhs, col), nil
	}
	return lhs + " = " + rhs, nil
}

var compareOps = map[queryir.CompareOp]string{
	queryir.OpLt:  "<",
	queryir.OpLte: "<=",
	queryir.OpGt:  ">",
	queryir.OpGte: ">=",
}

func (c *SQLCompiler) compileCompare(s *state, sc scope, cmp queryir.Compare) (string, error) {
	col, err := c.col(sc, cmp.Field)
	if err != nil {
		return "", err
	}
	op, ok := compareOps[cmp.Op]
	if !ok {
		return "", fmt.Errorf("unsupported comparison %q", cmp.Op)
	}
	return col + " " + op + " " + s.bind(cmp.Value), nil
}

// compileIn compiles set membership. An empty set is false for IN and true
// for NOT IN.
func (c *SQLCompiler) compileIn(s *state, sc scope, in queryir.In) (string, error) {
	col, err := c.col(sc, in.Field)
	if err != nil {
		return "", err
	}
	if len(in.Values) == 0 {
		if in.Negate {
			return "1 = 1", nil
		}
		return "1 = 0", nil
	}

	marks := make([]string, len(in.Values))
	for i, v := range in.Values {
		marks[i] = s.bind(v)
	}
	list := strings.Join(marks, ", ")
	if in.Negate {
		return fmt.Sprintf("(%s NOT IN (%s) OR %s IS NULL)", col, list, col), nil
	}
	return fmt.Sprintf("%s IN (%s)", col, list), nil
}

// compileMatch compiles pattern matching.
//
// SQLite LIKE is case-insensitive for ASCII, so case-sensitive matching uses
// GLOB. PostgreSQL uses LIKE and ILIKE.
func (c *SQLCompiler) compileMatch(s *state, sc scope, m queryir.Match) (string, error) {
	col, err := c.col(sc, m.Field)
	if err != nil {
		return "", err
	}

	if c.Dialect == SQLite && !m.Insensitive {
		return col + " GLOB " + s.bind(wrapPattern(m.Kind, escapeGlob(m.Value), "*")), nil
	}

	pattern := s.bind(wrapPattern(m.Kind, escapeLike(m.Value), "%"))
	switch {
	case c.Dialect == Postgres && m.Insensitive:
		return col + " ILIKE " + pattern + ` ESCAPE '\'`, nil
	default:
		return col + " LIKE " + pattern + ` ESCAPE '\'`, nil
	}
}

func wrapPattern(kind queryir.MatchKind, escaped, wildcard string) string {
	switch kind {
	case queryir.MatchStartsWith:
		return escaped + wildcard
	case queryir.MatchEndsWith:
		return wildcard + escaped
	default:
		return wildcard + escaped + wildcard
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var globEscaper = strings.NewReplacer(`*`, `[*]`, `?`, `[?]`, `[`, `[[]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}

func (c *SQLCompiler) compileJunction(s *state, sc scope, preds []queryir.Predicate, sep, empty string) (string, error) {
	if len(preds) == 0 {
		return empty, nil
	}
	parts := make([]string, 0, len(preds))
	for _, p := range preds {
		sql, err := c.compilePredicate(s, sc, p)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

// compileRelation compiles a quantified relation filter to an EXISTS
// subquery correlated with the outer row.
//
//	some(F)  EXISTS (related AND F)
//	none(F)  NOT EXISTS (related AND F)
//	every(F) NOT EXISTS (related AND NOT F)
func (c *SQLCompiler) compileRelation(s *state, sc scope, r queryir.Relation) (string, error) {
	rel, ok := sc.model.Relation(r.Name)
	if !ok {
		return "", fmt.Errorf("unknown relation %q on model %q", r.Name, sc.model.Name)
	}
	target, err := c.Schema.Model(rel.Target)
	if err != nil {
		return "", err
	}

	inner := scope{model: target, alias: s.nextAlias()}
	join, err := c.joinCondition(sc, inner, rel)
	if err != nil {
		return "", err
	}

	cond := join
	switch r.Quantifier {
	case queryir.Some, queryir.None:
		if r.Filter != nil {
			f, err := c.compilePredicate(s, inner, r.Filter)
			if err != nil {
				return "", err
			}
			cond += " AND " + f
		}
	case queryir.Every:
		if r.Filter == nil {
			return "1 = 1", nil
		}
		f, err := c.compilePredicate(s, inner, r.Filter)
		if err != nil {
			return "", err
		}
		cond += " AND NOT (" + f + ")"
	default:
		return "", fmt.Errorf("unsupported quantifier %q", r.Quantifier)
	}

	sub := fmt.Sprintf("EXISTS (SELECT 1 FROM %s AS %s WHERE %s)", c.Dialect.Quote(target.Table), inner.alias, cond)
	if r.Quantifier == queryir.Some {
		return sub, nil
	}
	return "NOT " + sub, nil
}

// deref accepts pointer forms of predicates.
func deref(p queryir.Predicate) queryir.Predicate {
	switch pred := p.(type) {
	case *queryir.Equals:
		return *pred
	case *queryir.Compare:
		return *pred
	case *queryir.In:
		return *pred
	case *queryir.Match:
		return *pred
	case *queryir.IsNull:
		return *pred
	case *queryir.And:
		return *pred
	case *queryir.Or:
		return *pred
	case *queryir.Not:
		return *pred
	case *queryir.Relation:
		return *pred
	default:
		return p
	}
}
