package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/restq/internal/ir"
	"github.com/roach88/restq/internal/queryir"
	"github.com/roach88/restq/internal/querysql"
)

// Client reaches the models of a store, either directly or inside a
// transaction.
type Client interface {
	// Model returns the client for the named model, or an error if the
	// schema has no such model.
	Model(name string) (ModelClient, error)

	// RunInTransaction calls fn with a client whose primitives all run in
	// one transaction. Calling it on a transaction's client reuses that
	// transaction.
	RunInTransaction(ctx context.Context, fn func(tx Client) error) error
}

// ModelClient exposes the request primitives of one model.
type ModelClient interface {
	// Spec returns the model definition.
	Spec() *ir.ModelSpec

	// FindMany returns every row matching args. The result is never nil.
	FindMany(ctx context.Context, args queryir.FindArgs) ([]ir.Record, error)

	// FindFirst returns the first row matching args, or nil if none does.
	FindFirst(ctx context.Context, args queryir.FindArgs) (ir.Record, error)

	// Count returns the number of rows matching where.
	Count(ctx context.Context, where queryir.Where) (int64, error)

	// Create inserts one row and returns it shaped by proj.
	Create(ctx context.Context, data ir.Record, proj queryir.Projection) (ir.Record, error)

	// UpdateMany sets data on every row matching where and returns the
	// number of rows matched.
	UpdateMany(ctx context.Context, where queryir.Where, data ir.Record) (int64, error)

	// DeleteMany deletes every row matching where and returns the number
	// of rows deleted.
	DeleteMany(ctx context.Context, where queryir.Where) (int64, error)
}

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// client binds a store to an executor.
type client struct {
	s    *Store
	exec executor
	inTx bool
}

func (c *client) Model(name string) (ModelClient, error) {
	m, err := c.s.schema.Model(name)
	if err != nil {
		return nil, err
	}
	return &modelClient{c: c, m: m}, nil
}

func (c *client) RunInTransaction(ctx context.Context, fn func(tx Client) error) error {
	if c.inTx {
		return fn(c)
	}

	tx, err := c.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txc := &client{s: c.s, exec: tx, inTx: true}
	if err := fn(txc); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// modelClient implements ModelClient for one model.
type modelClient struct {
	c *client
	m *ir.ModelSpec
}

// Compile-time check that modelClient implements ModelClient.
var _ ModelClient = (*modelClient)(nil)

func (mc *modelClient) Spec() *ir.ModelSpec {
	return mc.m
}

func (mc *modelClient) FindMany(ctx context.Context, args queryir.FindArgs) ([]ir.Record, error) {
	s := mc.c.s

	filter, err := mc.filter(args.Where)
	if err != nil {
		return nil, err
	}
	order, err := queryir.ParseOrderBy(s.schema, mc.m, args.OrderBy)
	if err != nil {
		return nil, invalid("findMany", err)
	}
	skip, take, err := window(args.Skip, args.Take)
	if err != nil {
		return nil, invalid("findMany", err)
	}
	p, err := buildPlan(s.schema, mc.m, args.Projection())
	if err != nil {
		return nil, invalid("findMany", err)
	}

	records, err := mc.c.selectRecords(ctx, queryir.Select{
		Model:  mc.m.Name,
		Filter: filter,
		Order:  order,
		Skip:   skip,
		Take:   take,
	})
	if err != nil {
		return nil, fmt.Errorf("find many %s: %w", mc.m.Name, err)
	}

	if err := mc.c.load(ctx, mc.m, records, p); err != nil {
		return nil, fmt.Errorf("find many %s: %w", mc.m.Name, err)
	}
	return records, nil
}

func (mc *modelClient) FindFirst(ctx context.Context, args queryir.FindArgs) (ir.Record, error) {
	one := 1
	args.Take = &one
	records, err := mc.FindMany(ctx, args)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func (mc *modelClient) Count(ctx context.Context, where queryir.Where) (int64, error) {
	filter, err := mc.filter(where)
	if err != nil {
		return 0, err
	}
	query, params, err := mc.c.s.compiler.Compile(queryir.Count{Model: mc.m.Name, Filter: filter})
	if err != nil {
		return 0, invalid("count", err)
	}
	mc.c.trace(mc.m, "count", query)

	var n int64
	if err := mc.c.exec.QueryRowContext(ctx, query, params...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", mc.m.Name, err)
	}
	return n, nil
}

func (mc *modelClient) Create(ctx context.Context, data ir.Record, proj queryir.Projection) (ir.Record, error) {
	s := mc.c.s

	values, err := storageValues(mc.m, data)
	if err != nil {
		return nil, invalid("create", err)
	}
	// Check the projection before writing anything.
	if _, err := buildPlan(s.schema, mc.m, proj); err != nil {
		return nil, invalid("create", err)
	}

	idField := mc.m.ID()
	id, supplied := values[idField.Name]
	if !supplied || id == nil {
		generated, err := s.ids.Generate(idField)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", mc.m.Name, err)
		}
		if generated != nil {
			values[idField.Name] = generated
			id, supplied = generated, true
		} else {
			delete(values, idField.Name)
			supplied = false
		}
	}

	query, params, err := s.compiler.Insert(mc.m.Name, values)
	if err != nil {
		return nil, invalid("create", err)
	}
	mc.c.trace(mc.m, "create", query)

	switch {
	case s.dialect == querysql.Postgres:
		var returned any
		if err := mc.c.exec.QueryRowContext(ctx, query, params...).Scan(&returned); err != nil {
			return nil, fmt.Errorf("create %s: %w", mc.m.Name, err)
		}
		if id, err = ir.FromStorage(idField, returned); err != nil {
			return nil, fmt.Errorf("create %s: %w", mc.m.Name, err)
		}
	case supplied:
		if _, err := mc.c.exec.ExecContext(ctx, query, params...); err != nil {
			return nil, fmt.Errorf("create %s: %w", mc.m.Name, err)
		}
	default:
		res, err := mc.c.exec.ExecContext(ctx, query, params...)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", mc.m.Name, err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("create %s: last insert id: %w", mc.m.Name, err)
		}
	}

	record, err := mc.FindFirst(ctx, queryir.FindArgs{
		Where:   queryir.Where{idField.Name: id},
		Select:  proj.Select,
		Include: proj.Include,
	})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("create %s: created row %v not readable", mc.m.Name, id)
	}
	return record, nil
}

func (mc *modelClient) UpdateMany(ctx context.Context, where queryir.Where, data ir.Record) (int64, error) {
	values, err := storageValues(mc.m, data)
	if err != nil {
		return 0, invalid("updateMany", err)
	}
	if len(values) == 0 {
		return mc.Count(ctx, where)
	}
	filter, err := mc.filter(where)
	if err != nil {
		return 0, err
	}

	query, params, err := mc.c.s.compiler.Update(mc.m.Name, filter, values)
	if err != nil {
		return 0, invalid("updateMany", err)
	}
	mc.c.trace(mc.m, "updateMany", query)
	return mc.c.execCount(ctx, query, params, "update many "+mc.m.Name)
}

func (mc *modelClient) DeleteMany(ctx context.Context, where queryir.Where) (int64, error) {
	filter, err := mc.filter(where)
	if err != nil {
		return 0, err
	}
	query, params, err := mc.c.s.compiler.Delete(mc.m.Name, filter)
	if err != nil {
		return 0, invalid("deleteMany", err)
	}
	mc.c.trace(mc.m, "deleteMany", query)
	return mc.c.execCount(ctx, query, params, "delete many "+mc.m.Name)
}

// filter parses where and logs dialect portability warnings.
func (mc *modelClient) filter(where queryir.Where) (queryir.Predicate, error) {
	pred, err := queryir.ParseWhere(mc.c.s.schema, mc.m, where)
	if err != nil {
		return nil, invalid("where", err)
	}
	if res := queryir.Validate(pred); !res.IsPortable {
		mc.c.s.logger.Debug("non-portable filter",
			"model", mc.m.Name,
			"dialect", string(mc.c.s.dialect),
			"warnings", res.Warnings,
		)
	}
	return pred, nil
}

func (c *client) execCount(ctx context.Context, query string, params []any, op string) (int64, error) {
	res, err := c.exec.ExecContext(ctx, query, params...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	return n, nil
}

// selectRecords runs a Select and returns every row with all fields.
// Rows are fully read and closed before returning so callers may issue
// further queries on the same connection.
func (c *client) selectRecords(ctx context.Context, q queryir.Select) ([]ir.Record, error) {
	m, err := c.s.schema.Model(q.Model)
	if err != nil {
		return nil, err
	}
	query, params, err := c.s.compiler.Compile(q)
	if err != nil {
		return nil, invalid("select", err)
	}
	c.trace(m, "select", query)

	rows, err := c.exec.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows, m)
}

func (c *client) trace(m *ir.ModelSpec, op, query string) {
	c.s.logger.Debug("store query", "model", m.Name, "op", op, "sql", query, "tx", c.inTx)
}

// storageValues converts caller data to driver values keyed by field name.
func storageValues(m *ir.ModelSpec, data ir.Record) (map[string]any, error) {
	values := make(map[string]any, len(data))
	for name, v := range data {
		f, ok := m.Field(name)
		if !ok {
			if _, isRel := m.Relation(name); isRel {
				return nil, fmt.Errorf("relation %q cannot be written through model %q", name, m.Name)
			}
			return nil, fmt.Errorf("unknown field %q on model %q", name, m.Name)
		}
		sv, err := ir.ToStorage(f, v)
		if err != nil {
			return nil, err
		}
		values[name] = sv
	}
	return values, nil
}

// window validates skip/take. A negative value is rejected.
func window(skip, take *int) (int, *int, error) {
	s := 0
	if skip != nil {
		if *skip < 0 {
			return 0, nil, fmt.Errorf("skip must not be negative, got %d", *skip)
		}
		s = *skip
	}
	if take != nil && *take < 0 {
		return 0, nil, fmt.Errorf("take must not be negative, got %d", *take)
	}
	return s, take, nil
}
