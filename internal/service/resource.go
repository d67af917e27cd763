package service

import (
	"context"
	"log/slog"

	"github.com/roach88/restq/internal/errs"
	"github.com/roach88/restq/internal/events"
	"github.com/roach88/restq/internal/ir"
	"github.com/roach88/restq/internal/query"
	"github.com/roach88/restq/internal/queryir"
	"github.com/roach88/restq/internal/store"
)

// Method names, as used by the multi option and error translation.
const (
	MethodFind   = "find"
	MethodGet    = "get"
	MethodCreate = "create"
	MethodUpdate = "update"
	MethodPatch  = "patch"
	MethodRemove = "remove"
)

// Resource serves one model of a store.
//
// A Resource holds no per-call state and is safe for concurrent use.
type Resource struct {
	opts      Options
	idField   string
	client    store.Client
	operators query.OperatorTable
	whitelist query.Whitelist
	custom    map[string]bool

	publisher   events.Publisher
	eventPrefix string
	logger      *slog.Logger
}

// New creates a Resource for opts.Model. It fails if the model is missing
// from opts or unknown to client, or if opts.ID names no field of it.
func New(opts Options, client store.Client, o ...Option) (*Resource, error) {
	if opts.Model == "" {
		e := errs.General("You must provide a model string.")
		e.Code = errs.CodeMissingModel
		return nil, e
	}
	mc, err := client.Model(opts.Model)
	if err != nil {
		e := errs.General("No model with name %s found in store client.", opts.Model).Wrap(err)
		e.Code = errs.CodeUnknownModel
		return nil, e
	}

	spec := mc.Spec()
	idField := opts.ID
	if idField == "" {
		idField = spec.IDField
	}
	if _, ok := spec.Field(idField); !ok {
		e := errs.General("Model %s has no id field %s.", opts.Model, idField)
		e.Code = errs.CodeUnknownModel
		return nil, e
	}

	r := &Resource{
		opts:      opts,
		idField:   idField,
		client:    client,
		operators: query.DefaultOperatorTable(),
		whitelist: query.NewWhitelist(opts.Whitelist...),
		custom:    make(map[string]bool, len(opts.Events)),
		publisher: &events.NoopPublisher{},
		logger:    slog.Default(),
	}
	for _, name := range opts.Events {
		r.custom[name] = true
	}
	for _, opt := range o {
		opt(r)
	}
	return r, nil
}

// Model returns the name of the served model.
func (r *Resource) Model() string {
	return r.opts.Model
}

// IDField returns the name of the id field.
func (r *Resource) IDField() string {
	return r.idField
}

// Options returns the construction parameters.
func (r *Resource) Options() Options {
	return r.opts
}

// Compile compiles p for a call acting on id (nil for multi-record calls)
// without running it.
func (r *Resource) Compile(id any, p Params) (*query.Descriptor, error) {
	return r.compile(id, p, true)
}

// compile translates p. Page size policy only applies to find.
func (r *Resource) compile(id any, p Params, paginate bool) (*query.Descriptor, error) {
	opts := query.Options{
		IDField:   r.idField,
		ID:        id,
		Operators: r.operators,
		Whitelist: r.whitelist,
		Filters:   r.opts.Filters,
		Override:  p.Native,
	}
	if paginate {
		opts.Paginate = r.paginate(p)
	}
	return query.Compile(p.Query, opts)
}

func (r *Resource) paginate(p Params) query.Paginate {
	if p.Paginate != nil {
		return *p.Paginate
	}
	return r.opts.Paginate
}

// model returns the model client of c, which may be a transaction.
func (r *Resource) model(c store.Client) (store.ModelClient, error) {
	return c.Model(r.opts.Model)
}

// fail translates a store failure for method and logs it.
func (r *Resource) fail(method string, err error) error {
	translated := store.TranslateError(err, method)
	if e, ok := errs.As(translated); ok && (e.Kind == errs.KindGeneral || e.Kind == errs.KindInternal) {
		r.logger.Error("store call failed",
			"model", r.opts.Model,
			"method", method,
			"error", err)
	}
	return translated
}

func (r *Resource) trace(method string, res IdentityResolution) {
	r.logger.Debug("resource call",
		"model", r.opts.Model,
		"method", method,
		"resolution", res.String())
}

// Find returns the records matching p. With pagination enabled and a page
// size in effect the rows and the total count are read in one transaction
// and the page is marked Paginated.
func (r *Resource) Find(ctx context.Context, p Params) (*Page, error) {
	d, err := r.compile(nil, p, true)
	if err != nil {
		return nil, err
	}
	r.trace(MethodFind, Bulk)
	args := d.FindArgs()

	if !r.paginate(p).Enabled() || d.Take == nil {
		mc, err := r.model(r.client)
		if err != nil {
			return nil, r.fail(MethodFind, err)
		}
		data, err := mc.FindMany(ctx, args)
		if err != nil {
			return nil, r.fail(MethodFind, err)
		}
		return &Page{Total: int64(len(data)), Skip: d.Skip, Data: data}, nil
	}

	page := &Page{Skip: d.Skip, Limit: *d.Take, Paginated: true}
	err = r.client.RunInTransaction(ctx, func(tx store.Client) error {
		mc, err := r.model(tx)
		if err != nil {
			return err
		}
		if page.Data, err = mc.FindMany(ctx, args); err != nil {
			return err
		}
		page.Total, err = mc.Count(ctx, d.Where)
		return err
	})
	if err != nil {
		return nil, r.fail(MethodFind, err)
	}
	return page, nil
}

// Get returns the record with id that also matches p's filter.
func (r *Resource) Get(ctx context.Context, id any, p Params) (ir.Record, error) {
	if id == nil {
		e := errs.BadRequest("An id is required for get.")
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
	r.trace(MethodGet, Resolve(id, d.Diagnostics))

	mc, err := r.model(r.client)
	if err != nil {
		return nil, r.fail(MethodGet, err)
	}
	rec, err := mc.FindFirst(ctx, queryir.FindArgs{Where: d.Where, Select: d.Select, Include: d.Include})
	if err != nil {
		return nil, r.fail(MethodGet, err)
	}
	if rec == nil {
		return nil, notFound(r.idField, id)
	}
	return rec, nil
}

// Create inserts data and returns the new record, shaped by p's $select
// and $eager.
func (r *Resource) Create(ctx context.Context, data ir.Record, p Params) (ir.Record, error) {
	d, err := r.compile(nil, p, false)
	if err != nil {
		return nil, err
	}
	r.trace(MethodCreate, Bulk)

	mc, err := r.model(r.client)
	if err != nil {
		return nil, r.fail(MethodCreate, err)
	}
	rec, err := mc.Create(ctx, data, d.Projection())
	if err != nil {
		return nil, r.fail(MethodCreate, err)
	}
	r.publish(ctx, events.Created, rec)
	return rec, nil
}

// CreateMany inserts every item in one transaction. Either all are created
// or none is.
func (r *Resource) CreateMany(ctx context.Context, data []ir.Record, p Params) ([]ir.Record, error) {
	if !r.opts.Multi.Allows(MethodCreate) {
		return nil, errs.MethodNotAllowed("Can not create multiple entries")
	}
	d, err := r.compile(nil, p, false)
	if err != nil {
		return nil, err
	}
	r.trace(MethodCreate, Bulk)

	out := make([]ir.Record, 0, len(data))
	err = r.client.RunInTransaction(ctx, func(tx store.Client) error {
		mc, err := r.model(tx)
		if err != nil {
			return err
		}
		for _, item := range data {
			rec, err := mc.Create(ctx, item, d.Projection())
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, r.fail(MethodCreate, err)
	}
	for _, rec := range out {
		r.publish(ctx, events.Created, rec)
	}
	return out, nil
}
