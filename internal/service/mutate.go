package service

import (
	"context"
	"maps"

	"github.com/roach88/restq/internal/errs"
	"github.com/roach88/restq/internal/events"
	"github.com/roach88/restq/internal/ir"
	"github.com/roach88/restq/internal/queryir"
	"github.com/roach88/restq/internal/store"
)

// Update sets data on the record with id and returns {id, ...data}, or the
// re-read record when p selects or includes anything.
func (r *Resource) Update(ctx context.Context, id any, data ir.Record, p Params) (ir.Record, error) {
	if id == nil {
		e := errs.BadRequest("You can not replace multiple instances. Did you mean 'patch'?")
		e.Code = errs.CodeReplaceWithoutID
		return nil, e
	}
	rec, err := r.mutateOne(ctx, MethodUpdate, id, data, p, false)
	if err != nil {
		return nil, err
	}
	r.publish(ctx, events.Updated, rec)
	return rec, nil
}

// Patch sets data on the record with id and returns the re-read record.
func (r *Resource) Patch(ctx context.Context, id any, data ir.Record, p Params) (ir.Record, error) {
	if id == nil {
		e := errs.BadRequest("An id is required for patch. Use PatchMany to patch multiple records.")
		e.Code = errs.CodeIDRequired
		return nil, e
	}
	rec, err := r.mutateOne(ctx, MethodPatch, id, data, p, true)
	if err != nil {
		return nil, err
	}
	r.publish(ctx, events.Patched, rec)
	return rec, nil
}

// mutateOne runs a single-record update: the update itself and the read of
// the result run in one transaction. The update must match exactly one row.
func (r *Resource) mutateOne(ctx context.Context, method string, id any, data ir.Record, p Params, full bool) (ir.Record, error) {
	if err := checkIDInQuery(r.idField, id, p.Query); err != nil {
		return nil, err
	}
	d, err := r.compile(id, p, false)
	if err != nil {
		return nil, err
	}
	res := Resolve(id, d.Diagnostics)
	r.trace(method, res)

	target := id
	var result ir.Record
	err = r.client.RunInTransaction(ctx, func(tx store.Client) error {
		mc, err := r.model(tx)
		if err != nil {
			return err
		}

		where := d.Where
		if res == ScanThenConfirm {
			confirmed, err := r.confirm(ctx, mc, d.Where)
			if err != nil {
				return err
			}
			if confirmed == nil {
				return notFound(r.idField, id)
			}
			target = confirmed
			where = queryir.Where{r.idField: target}
		}

		count, err := mc.UpdateMany(ctx, where, data)
		if err != nil {
			return err
		}
		switch {
		case count == 0:
			return notFound(r.idField, id)
		case count > 1:
			return errs.Internal(errs.CodeMultipleRecords, "Multi records updated. Expected single update.").
				With("count", count)
		}

		// The update may itself have changed the id.
		if newID, ok := data[r.idField]; ok && newID != nil {
			target = newID
		}
		result, err = mc.FindFirst(ctx, queryir.FindArgs{
			Where:   queryir.Where{r.idField: target},
			Select:  d.Select,
			Include: d.Include,
		})
		return err
	})
	if err != nil {
		return nil, r.fail(method, err)
	}

	if full || !d.Projection().IsZero() {
		if result == nil {
			return nil, notFound(r.idField, id)
		}
		return result, nil
	}
	echo := make(ir.Record, len(data)+1)
	echo[r.idField] = target
	maps.Copy(echo, data)
	return echo, nil
}

// confirm returns the id of the first record matching where, or nil.
func (r *Resource) confirm(ctx context.Context, mc store.ModelClient, where queryir.Where) (any, error) {
	rec, err := mc.FindFirst(ctx, queryir.FindArgs{
		Where:  where,
		Select: map[string]any{r.idField: true},
	})
	if err != nil || rec == nil {
		return nil, err
	}
	return rec[r.idField], nil
}

// PatchMany sets data on every record matching p and returns the records
// that match the filter and the patched values afterwards.
func (r *Resource) PatchMany(ctx context.Context, data ir.Record, p Params) ([]ir.Record, error) {
	if !r.opts.Multi.Allows(MethodPatch) {
		return nil, errs.MethodNotAllowed("Can not patch multiple entries")
	}
	d, err := r.compile(nil, p, false)
	if err != nil {
		return nil, err
	}
	r.trace(MethodPatch, Bulk)

	var out []ir.Record
	err = r.client.RunInTransaction(ctx, func(tx store.Client) error {
		mc, err := r.model(tx)
		if err != nil {
			return err
		}
		if _, err := mc.UpdateMany(ctx, d.Where, data); err != nil {
			return err
		}
		out, err = mc.FindMany(ctx, queryir.FindArgs{
			Where:   patchedWhere(d.Where, data),
			Select:  d.Select,
			Include: d.Include,
			OrderBy: d.OrderBy,
		})
		return err
	})
	if err != nil {
		return nil, r.fail(MethodPatch, err)
	}
	for _, rec := range out {
		r.publish(ctx, events.Patched, rec)
	}
	return out, nil
}

// patchedWhere narrows where to records holding the patched values.
func patchedWhere(where queryir.Where, data ir.Record) queryir.Where {
	out := maps.Clone(where)
	if out == nil {
		out = queryir.Where{}
	}
	for k, v := range data {
		out[k] = v
	}
	return out
}

// Remove deletes the record with id and returns it as it was before the
// delete.
func (r *Resource) Remove(ctx context.Context, id any, p Params) (ir.Record, error) {
	if id == nil {
		e := errs.BadRequest("An id is required for remove. Use RemoveMany to remove multiple records.")
		e.Code = errs.CodeIDRequired
		return nil, e
	}
	if err := checkIDInQuery(r.idField, id, p.Query); err != nil {
		return nil, err
	}
	d, err := r.compile(id, p, false)
	if err != nil {
		return nil, err
	}
	res := Resolve(id, d.Diagnostics)
	r.trace(MethodRemove, res)

	var snapshot ir.Record
	err = r.client.RunInTransaction(ctx, func(tx store.Client) error {
		mc, err := r.model(tx)
		if err != nil {
			return err
		}

		where := d.Where
		if res == ScanThenConfirm {
			confirmed, err := r.confirm(ctx, mc, d.Where)
			if err != nil {
				return err
			}
			if confirmed == nil {
				return notFound(r.idField, id)
			}
			where = queryir.Where{r.idField: confirmed}
		}

		snapshot, err = mc.FindFirst(ctx, queryir.FindArgs{Where: where, Select: d.Select, Include: d.Include})
		if err != nil {
			return err
		}
		if snapshot == nil {
			return notFound(r.idField, id)
		}
		_, err = mc.DeleteMany(ctx, where)
		return err
	})
	if err != nil {
		return nil, r.fail(MethodRemove, err)
	}
	r.publish(ctx, events.Removed, snapshot)
	return snapshot, nil
}

// RemoveMany deletes every record matching p and returns them as they were
// before the delete.
func (r *Resource) RemoveMany(ctx context.Context, p Params) ([]ir.Record, error) {
	if !r.opts.Multi.Allows(MethodRemove) {
		return nil, errs.MethodNotAllowed("Can not remove multiple entries")
	}
	d, err := r.compile(nil, p, false)
	if err != nil {
		return nil, err
	}
	r.trace(MethodRemove, Bulk)

	var out []ir.Record
	err = r.client.RunInTransaction(ctx, func(tx store.Client) error {
		mc, err := r.model(tx)
		if err != nil {
			return err
		}
		out, err = mc.FindMany(ctx, queryir.FindArgs{
			Where:   d.Where,
			Select:  d.Select,
			Include: d.Include,
			OrderBy: d.OrderBy,
		})
		if err != nil {
			return err
		}
		_, err = mc.DeleteMany(ctx, d.Where)
		return err
	})
	if err != nil {
		return nil, r.fail(MethodRemove, err)
	}
	for _, rec := range out {
		r.publish(ctx, events.Removed, rec)
	}
	return out, nil
}
