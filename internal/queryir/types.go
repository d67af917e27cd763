package queryir

// Where is a native filter tree.
type Where map[string]any

// FindArgs is the native request shape accepted by the store's read and
// mutation primitives.
//
// Pointer and nil fields mean "not set"; this matters for the override
// channel, where only the keys an override actually carries replace the
// compiled ones.
type FindArgs struct {
	Where   Where            `json:"where,omitempty" yaml:"where,omitempty"`
	Select  map[string]any   `json:"select,omitempty" yaml:"select,omitempty"`
	Include any              `json:"include,omitempty" yaml:"include,omitempty"`
	OrderBy []map[string]any `json:"orderBy,omitempty" yaml:"orderBy,omitempty"`
	Skip    *int             `json:"skip,omitempty" yaml:"skip,omitempty"`
	Take    *int             `json:"take,omitempty" yaml:"take,omitempty"`
}

// Projection is the select/include part of a request.
// At most one of Select and Include is set.
type Projection struct {
	Select  map[string]any
	Include any
}

// Projection returns the select/include pair of args.
func (a *FindArgs) Projection() Projection {
	if a == nil {
		return Projection{}
	}
	return Projection{Select: a.Select, Include: a.Include}
}

// IsZero reports whether p neither selects nor includes anything.
func (p Projection) IsZero() bool {
	return len(p.Select) == 0 && p.Include == nil
}

// Query represents an abstract read against one model.
//
// This is a sealed interface - only types in this package implement it.
//
// Query types:
//   - Select: rows of a model filtered, ordered and windowed
//   - Count: number of rows of a model matching a filter
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Predicate represents a filter condition in the IR.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - Equals: field = value (or <> when negated)
//   - Compare: field <op> value
//   - In: field IN (values) (or NOT IN when negated)
//   - Match: substring/prefix/suffix matching
//   - IsNull: field IS [NOT] NULL
//   - And, Or, Not: boolean combinators
//   - Relation: quantified filter over a related model
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Select reads rows of a model.
//
// Semantics:
//
//	SELECT * FROM <model> WHERE <filter> ORDER BY <order>, id LIMIT <take> OFFSET <skip>
//
// The id tiebreaker is always appended by the SQL backend unless the id is
// already part of Order.
type Select struct {
	Model  string    // Model name
	Filter Predicate // nil = no filter
	Order  []Order   // ORDER BY terms, most significant first
	Skip   int       // rows to skip
	Take   *int      // nil = unbounded
}

func (Select) queryNode() {}

// Count counts rows of a model matching Filter.
type Count struct {
	Model  string
	Filter Predicate
}

func (Count) queryNode() {}

// Order is one ORDER BY term. Path is a field name, or a chain of to-one
// relation names ending in a field of the last related model.
type Order struct {
	Path []string
	Desc bool
}

// Equals represents a field-equals-value predicate.
//
// Semantics:
//
//	<field> = <value>                (Negate: <field> <> <value> OR <field> IS NULL)
//	LOWER(<field>) = LOWER(<value>)  (Insensitive)
//
// Value is already converted to the field's storage type and is never nil;
// comparisons with null are expressed with IsNull.
type Equals struct {
	Field       string
	Value       any
	Insensitive bool
	Negate      bool
}

func (Equals) predicateNode() {}

// CompareOp is an ordering comparison operator.
type CompareOp string

const (
	OpLt  CompareOp = "lt"
	OpLte CompareOp = "lte"
	OpGt  CompareOp = "gt"
	OpGte CompareOp = "gte"
)

// Compare represents an ordering comparison against a value.
type Compare struct {
	Field string
	Op    CompareOp
	Value any
}

func (Compare) predicateNode() {}

// In represents set membership.
//
// Semantics:
//
//	<field> IN (<values>)                          (empty: false)
//	<field> NOT IN (<values>) OR <field> IS NULL   (Negate; empty: true)
type In struct {
	Field  string
	Values []any
	Negate bool
}

func (In) predicateNode() {}

// MatchKind selects how Match compares its pattern.
type MatchKind string

const (
	MatchContains   MatchKind = "contains"
	MatchStartsWith MatchKind = "startsWith"
	MatchEndsWith   MatchKind = "endsWith"

	// MatchSearch is case-insensitive containment of the whole term.
	MatchSearch MatchKind = "search"
)

// Match represents string pattern matching. Value is matched literally:
// wildcard characters in it carry no special meaning.
type Match struct {
	Field       string
	Kind        MatchKind
	Value       string
	Insensitive bool
}

func (Match) predicateNode() {}

// IsNull represents a NULL test.
type IsNull struct {
	Field  string
	Negate bool
}

func (IsNull) predicateNode() {}

// And is true when every predicate is true. An empty And is true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or is true when any predicate is true. An empty Or is false.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// Not negates a predicate.
type Not struct {
	Predicate Predicate
}

func (Not) predicateNode() {}

// Quantifier selects how a Relation filter applies to related rows.
type Quantifier string

const (
	// Some: at least one related row matches Filter.
	Some Quantifier = "some"

	// Every: no related row fails Filter (vacuously true without rows).
	Every Quantifier = "every"

	// None: no related row matches Filter.
	None Quantifier = "none"
)

// Relation represents a quantified filter over the rows of a related model.
// A nil Filter matches every related row, so Some(nil) means "has a related
// row" and None(nil) means "has no related row".
type Relation struct {
	Name       string
	Quantifier Quantifier
	Filter     Predicate
}

func (Relation) predicateNode() {}
