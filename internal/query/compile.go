package query

import (
	"fmt"
	"maps"

	"github.com/roach88/restq/internal/errs"
	"github.com/roach88/restq/internal/queryir"
)

// Options configures one compilation.
type Options struct {
	// IDField names the resource's id field. Defaults to "id".
	IDField string

	// ID is the resource id of a single-record call, spliced into the
	// filter as an identity constraint. nil for multi-record calls.
	ID any

	// Operators maps operator keys to native operators. The zero value
	// means DefaultOperatorTable().
	Operators OperatorTable

	// Whitelist lists the honored operator and directive keys. The zero
	// value means NewWhitelist().
	Whitelist Whitelist

	// Filters names resource-specific keys split off with $select & co.
	Filters []string

	// Paginate applies the resource page size policy to $limit.
	Paginate Paginate

	// Override is the per-call native override. Its where is ANDed with
	// the compiled filter; its other set fields replace the compiled ones.
	Override *queryir.FindArgs
}

// Diagnostics describe the identity constraint of a compiled filter.
type Diagnostics struct {
	// HasNonIDConstraints: the filter constrains something besides the id.
	HasNonIDConstraints bool `json:"hasNonIdConstraints"`

	// IDConstraintIsComplex: the id is constrained by an operator object
	// rather than a plain value.
	IDConstraintIsComplex bool `json:"idConstraintIsComplex"`
}

// Descriptor is a compiled query. At most one of Select and Include is set.
type Descriptor struct {
	Where       queryir.Where    `json:"where"`
	Select      map[string]any   `json:"select,omitempty"`
	Include     any              `json:"include,omitempty"`
	OrderBy     []map[string]any `json:"orderBy"`
	Skip        int              `json:"skip"`
	Take        *int             `json:"take,omitempty"`
	Diagnostics Diagnostics      `json:"diagnostics"`

	// Custom holds values of resource-declared filter keys.
	Custom map[string]any `json:"-"`
}

// FindArgs returns the native find arguments for d.
func (d *Descriptor) FindArgs() queryir.FindArgs {
	skip := d.Skip
	return queryir.FindArgs{
		Where:   d.Where,
		Select:  d.Select,
		Include: d.Include,
		OrderBy: d.OrderBy,
		Skip:    &skip,
		Take:    d.Take,
	}
}

// Projection returns the select/include pair of d.
func (d *Descriptor) Projection() queryir.Projection {
	return queryir.Projection{Select: d.Select, Include: d.Include}
}

// Compile translates q into a Descriptor.
func Compile(q Object, opts Options) (*Descriptor, error) {
	idField := opts.IDField
	if idField == "" {
		idField = "id"
	}
	c := &compiler{table: opts.Operators, wl: opts.Whitelist}
	if c.table.isZero() {
		c.table = DefaultOperatorTable()
	}
	if c.wl.isZero() {
		c.wl = NewWhitelist()
	}

	filters, rest, err := SplitFilters(q, opts.Filters, opts.Paginate)
	if err != nil {
		return nil, err
	}

	where, include, err := c.object(rest, "query")
	if err != nil {
		return nil, err
	}
	if opts.ID != nil {
		spliceID(where, idField, opts.ID)
	}

	d := &Descriptor{
		Where:   where,
		OrderBy: filters.Sort,
		Skip:    filters.Skip,
		Take:    filters.Limit,
		Custom:  filters.Custom,
	}
	if d.OrderBy == nil {
		d.OrderBy = []map[string]any{}
	}

	if len(filters.Select) > 0 {
		sel, err := foldSelect(idField, filters.Select, include)
		if err != nil {
			return nil, err
		}
		d.Select = sel
	} else if include != nil {
		d.Include = include
	}

	d.Diagnostics = diagnose(where, idField)
	if opts.Override != nil {
		applyOverride(d, opts.Override)
	}
	return d, nil
}

// spliceID adds the resource id to where's identity constraint. An
// operator object on the id gains equals: id; a bare id equal to it is
// kept; anything else is ANDed.
func spliceID(where queryir.Where, idField string, id any) {
	current, exists := where[idField]
	if !exists {
		where[idField] = id
		return
	}
	if ops, ok := asObject(current); ok {
		if eq, has := ops["equals"]; has && !sameID(eq, id) {
			appendAnd(where, queryir.Where{idField: id})
			return
		}
		merged := maps.Clone(ops)
		merged["equals"] = id
		where[idField] = merged
		return
	}
	if sameID(current, id) {
		where[idField] = id
		return
	}
	appendAnd(where, queryir.Where{idField: id})
}

// sameID compares ids the way they arrive from a URL and a query string.
func sameID(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// foldSelect builds select = {id: true, ...$select, ...include}. A
// sequence-form include is normalized first so it can be merged by key.
func foldSelect(idField string, fields []string, include any) (map[string]any, error) {
	sel := map[string]any{idField: true}
	for _, f := range fields {
		sel[f] = true
	}
	if include == nil {
		return sel, nil
	}
	inc, err := queryir.NormalizeInclude(include)
	if err != nil {
		return nil, errs.Validation(errs.CodeInvalidEagerShape, "%v", err).Wrap(err)
	}
	maps.Copy(sel, inc)
	return sel, nil
}

func diagnose(where queryir.Where, idField string) Diagnostics {
	var d Diagnostics
	for k := range where {
		if k != idField {
			d.HasNonIDConstraints = true
			break
		}
	}
	_, d.IDConstraintIsComplex = asObject(where[idField])
	return d
}

// applyOverride composes a native override over d. The override's where
// is ANDed with the compiled one. Its select or include replaces the
// compiled projection, and its orderBy, skip and take replace theirs.
func applyOverride(d *Descriptor, o *queryir.FindArgs) {
	if len(o.Where) > 0 {
		if len(d.Where) == 0 {
			d.Where = maps.Clone(o.Where)
		} else {
			d.Where = queryir.Where{"AND": []any{map[string]any(o.Where), map[string]any(d.Where)}}
		}
		d.Diagnostics.HasNonIDConstraints = true
	}
	switch {
	case o.Select != nil:
		d.Select, d.Include = o.Select, nil
	case o.Include != nil:
		d.Select, d.Include = nil, o.Include
	}
	if o.OrderBy != nil {
		d.OrderBy = o.OrderBy
	}
	if o.Skip != nil {
		d.Skip = *o.Skip
	}
	if o.Take != nil {
		d.Take = o.Take
	}
}
