package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/restq/internal/events"
	"github.com/roach88/restq/internal/ir"
	"github.com/roach88/restq/internal/queryir"
	"github.com/roach88/restq/internal/store"
	"github.com/roach88/restq/internal/testutil"
)

// spy wraps a store client and records the primitives called through it,
// including inside transactions.
type spy struct {
	store.Client

	mu    sync.Mutex
	calls []string

	// forceCount, when > 0, replaces the count UpdateMany reports.
	forceCount int64
}

func (s *spy) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *spy) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *spy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

func (s *spy) Model(name string) (store.ModelClient, error) {
	return s.wrap(s.Client, name)
}

func (s *spy) wrap(c store.Client, name string) (store.ModelClient, error) {
	mc, err := c.Model(name)
	if err != nil {
		return nil, err
	}
	return &spyModel{ModelClient: mc, spy: s}, nil
}

func (s *spy) RunInTransaction(ctx context.Context, fn func(tx store.Client) error) error {
	s.record("begin")
	return s.Client.RunInTransaction(ctx, func(tx store.Client) error {
		return fn(&spyTx{Client: tx, spy: s})
	})
}

type spyTx struct {
	store.Client
	spy *spy
}

func (t *spyTx) Model(name string) (store.ModelClient, error) {
	return t.spy.wrap(t.Client, name)
}

type spyModel struct {
	store.ModelClient
	spy *spy
}

func (m *spyModel) FindMany(ctx context.Context, args queryir.FindArgs) ([]ir.Record, error) {
	m.spy.record("findMany")
	return m.ModelClient.FindMany(ctx, args)
}

func (m *spyModel) FindFirst(ctx context.Context, args queryir.FindArgs) (ir.Record, error) {
	m.spy.record("findFirst")
	return m.ModelClient.FindFirst(ctx, args)
}

func (m *spyModel) Count(ctx context.Context, where queryir.Where) (int64, error) {
	m.spy.record("count")
	return m.ModelClient.Count(ctx, where)
}

func (m *spyModel) Create(ctx context.Context, data ir.Record, proj queryir.Projection) (ir.Record, error) {
	m.spy.record("create")
	return m.ModelClient.Create(ctx, data, proj)
}

func (m *spyModel) UpdateMany(ctx context.Context, where queryir.Where, data ir.Record) (int64, error) {
	m.spy.record("updateMany")
	n, err := m.ModelClient.UpdateMany(ctx, where, data)
	if err == nil && m.spy.forceCount > 0 {
		return m.spy.forceCount, nil
	}
	return n, err
}

func (m *spyModel) DeleteMany(ctx context.Context, where queryir.Where) (int64, error) {
	m.spy.record("deleteMany")
	return m.ModelClient.DeleteMany(ctx, where)
}

// fixture is a todo resource over a seeded store.
type fixture struct {
	store  *store.Store
	spy    *spy
	pub    *events.MemoryPublisher
	todos  *Resource
	logger *slog.Logger
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	s := testutil.TodoStore(t)
	f := &fixture{
		store:  s,
		spy:    &spy{Client: s},
		pub:    &events.MemoryPublisher{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if opts.Model == "" {
		opts.Model = "todo"
	}
	r, err := New(opts, f.spy, WithPublisher(f.pub), WithLogger(f.logger))
	require.NoError(t, err)
	f.todos = r
	return f
}

// count returns the number of todos matching where, bypassing the spy.
func (f *fixture) count(t *testing.T, where queryir.Where) int64 {
	t.Helper()
	mc, err := f.store.Model("todo")
	require.NoError(t, err)
	n, err := mc.Count(context.Background(), where)
	require.NoError(t, err)
	return n
}

func (f *fixture) todo(t *testing.T, id int) ir.Record {
	t.Helper()
	mc, err := f.store.Model("todo")
	require.NoError(t, err)
	rec, err := mc.FindFirst(context.Background(), queryir.FindArgs{Where: queryir.Where{"id": id}})
	require.NoError(t, err)
	return rec
}
