package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/restq/internal/ir"
	"github.com/roach88/restq/internal/queryir"
)

// plan describes the shape of the records a read returns.
type plan struct {
	// fields lists the scalar fields kept; nil keeps every field.
	fields []string

	// relations are loaded in name order.
	relations []relationPlan
}

// relationPlan loads one relation. args carries where/orderBy/skip/take
// for the related rows and the projection applied to them.
type relationPlan struct {
	spec   ir.RelationSpec
	target *ir.ModelSpec
	args   queryir.FindArgs
}

// ErrSelectInclude rejects find args that set both select and include.
var ErrSelectInclude = errors.New("select and include cannot be used together")

// buildPlan resolves a projection against a model.
//
// Select keeps the named fields (and loads the named relations); include
// keeps every field and loads the named relations. Entries set to false
// are ignored. Include accepts both the map form and the sequence form
// (see queryir.NormalizeInclude).
func buildPlan(schema ir.Schema, m *ir.ModelSpec, proj queryir.Projection) (plan, error) {
	if len(proj.Select) > 0 && proj.Include != nil {
		return plan{}, ErrSelectInclude
	}

	var p plan
	entries := proj.Select
	if len(proj.Select) > 0 {
		p.fields = []string{}
	} else {
		include, err := queryir.NormalizeInclude(proj.Include)
		if err != nil {
			return plan{}, err
		}
		entries = include
	}

	for _, key := range ir.SortedKeys(entries) {
		v := entries[key]
		if !enabled(v) {
			continue
		}
		if _, ok := m.Field(key); ok {
			if p.fields == nil {
				return plan{}, fmt.Errorf("include entry %q is a field, not a relation", key)
			}
			p.fields = append(p.fields, key)
			continue
		}

		rel, ok := m.Relation(key)
		if !ok {
			return plan{}, fmt.Errorf("unknown field or relation %q on model %q", key, m.Name)
		}
		target, err := schema.Model(rel.Target)
		if err != nil {
			return plan{}, err
		}
		args, err := relationArgs(target, v, key)
		if err != nil {
			return plan{}, err
		}
		// Nested projections are checked up front so a bad one fails the
		// whole read before any query runs.
		if _, err := buildPlan(schema, target, args.Projection()); err != nil {
			return plan{}, fmt.Errorf("%s: %w", key, err)
		}
		p.relations = append(p.relations, relationPlan{spec: rel, target: target, args: args})
	}
	return p, nil
}

// enabled reports whether a select/include entry asks for its key.
func enabled(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	}
	return true
}

// relationArgs parses the value of a relation entry: true, a list of field
// names to select, or an object of nested read arguments.
func relationArgs(target *ir.ModelSpec, v any, name string) (queryir.FindArgs, error) {
	if _, ok := v.(bool); ok {
		return queryir.FindArgs{}, nil
	}

	if m, ok := queryir.AsMap(v); ok {
		var args queryir.FindArgs
		for _, key := range ir.SortedKeys(m) {
			val := m[key]
			switch key {
			case "where":
				w, ok := queryir.AsMap(val)
				if !ok && val != nil {
					return args, fmt.Errorf("%s.where must be an object", name)
				}
				args.Where = w
			case "select":
				sel, ok := queryir.AsMap(val)
				if !ok && val != nil {
					return args, fmt.Errorf("%s.select must be an object", name)
				}
				args.Select = sel
			case "include":
				args.Include = val
			case "orderBy":
				terms, err := queryir.OrderTerms(val)
				if err != nil {
					return args, fmt.Errorf("%s.%w", name, err)
				}
				args.OrderBy = terms
			case "skip", "take":
				n, err := toInt(val)
				if err != nil {
					return args, fmt.Errorf("%s.%s: %w", name, key, err)
				}
				if key == "skip" {
					args.Skip = &n
				} else {
					args.Take = &n
				}
			default:
				return args, fmt.Errorf("unknown argument %q for relation %q", key, name)
			}
		}
		return args, nil
	}

	if list, ok := queryir.AsList(v); ok {
		sel := map[string]any{target.IDField: true}
		for _, item := range list {
			field, ok := item.(string)
			if !ok {
				return queryir.FindArgs{}, fmt.Errorf("%s: selected field names must be strings, got %T", name, item)
			}
			sel[field] = true
		}
		return queryir.FindArgs{Select: sel}, nil
	}

	return queryir.FindArgs{}, fmt.Errorf("relation %q: expected true, a field list or an object, got %T", name, v)
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n == float64(int(n)) {
			return int(n), nil
		}
	case json.Number:
		i, err := n.Int64()
		if err == nil {
			return int(i), nil
		}
	}
	return 0, fmt.Errorf("expected an integer, got %v", v)
}

// load attaches relations to records and then trims them to the planned
// fields. Records are modified in place.
func (c *client) load(ctx context.Context, m *ir.ModelSpec, records []ir.Record, p plan) error {
	if len(records) == 0 {
		return nil
	}
	for _, rp := range p.relations {
		if err := c.loadRelation(ctx, records, rp); err != nil {
			return fmt.Errorf("load %s.%s: %w", m.Name, rp.spec.Name, err)
		}
	}
	if p.fields != nil {
		keep := make(map[string]bool, len(p.fields)+len(p.relations))
		for _, f := range p.fields {
			keep[f] = true
		}
		for _, rp := range p.relations {
			keep[rp.spec.Name] = true
		}
		for _, rec := range records {
			for k := range rec {
				if !keep[k] {
					delete(rec, k)
				}
			}
		}
	}
	return nil
}

// loadRelation reads the related rows of every record with one IN query
// and attaches them: a Record (or nil) for to-one relations, a []ir.Record
// (never nil) for to-many relations. skip/take window each record's
// related rows separately.
func (c *client) loadRelation(ctx context.Context, records []ir.Record, rp relationPlan) error {
	name := rp.spec.Name
	many := rp.spec.Kind == ir.RelationMany

	var keys []any
	seen := make(map[any]bool)
	for _, rec := range records {
		k := rec[rp.spec.LocalField]
		if k == nil || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}

	groups := make(map[any][]ir.Record)
	if len(keys) > 0 {
		filter, err := queryir.ParseWhere(c.s.schema, rp.target, rp.args.Where)
		if err != nil {
			return invalid(name+".where", err)
		}
		in := queryir.In{Field: rp.spec.ForeignField, Values: keys}
		if filter != nil {
			filter = queryir.And{Predicates: []queryir.Predicate{in, filter}}
		} else {
			filter = in
		}
		order, err := queryir.ParseOrderBy(c.s.schema, rp.target, rp.args.OrderBy)
		if err != nil {
			return invalid(name+".orderBy", err)
		}
		skip, take, err := window(rp.args.Skip, rp.args.Take)
		if err != nil {
			return invalid(name, err)
		}

		related, err := c.selectRecords(ctx, queryir.Select{Model: rp.target.Name, Filter: filter, Order: order})
		if err != nil {
			return err
		}
		for _, r := range related {
			k := r[rp.spec.ForeignField]
			groups[k] = append(groups[k], r)
		}
		if many {
			for k, g := range groups {
				groups[k] = windowRecords(g, skip, take)
			}
		}

		var loaded []ir.Record
		for _, k := range keys {
			loaded = append(loaded, groups[k]...)
		}
		sub, err := buildPlan(c.s.schema, rp.target, rp.args.Projection())
		if err != nil {
			return invalid(name, err)
		}
		if err := c.load(ctx, rp.target, loaded, sub); err != nil {
			return err
		}
	}

	for _, rec := range records {
		g := groups[rec[rp.spec.LocalField]]
		switch {
		case many && g == nil:
			rec[name] = []ir.Record{}
		case many:
			rec[name] = slices.Clone(g)
		case len(g) == 0:
			rec[name] = nil
		default:
			rec[name] = g[0]
		}
	}
	return nil
}

func windowRecords(g []ir.Record, skip int, take *int) []ir.Record {
	if skip >= len(g) {
		return nil
	}
	g = g[skip:]
	if take != nil && *take < len(g) {
		g = g[:*take]
	}
	return g
}
