package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/restq/internal/errs"
	"github.com/roach88/restq/internal/ir"
	"github.com/roach88/restq/internal/query"
	"github.com/roach88/restq/internal/queryir"
	"github.com/roach88/restq/internal/testutil"
)

func TestUpdate_EchoesData(t *testing.T) {
	f := newFixture(t, Options{})

	rec, err := f.todos.Update(context.Background(), 1, ir.Record{"title": "Renamed"}, Params{})
	require.NoError(t, err)
	assert.Equal(t, ir.Record{"id": 1, "title": "Renamed"}, rec)
	assert.Equal(t, "Renamed", f.todo(t, 1)["title"])
	assert.Equal(t, []string{"begin", "updateMany", "findFirst"}, f.spy.Calls())
	assert.Equal(t, []string{"restq.todo.updated"}, f.pub.Topics())
}

func TestUpdate_WithSelectReturnsRecord(t *testing.T) {
	f := newFixture(t, Options{})

	rec, err := f.todos.Update(context.Background(), 1, ir.Record{"title": "Renamed"}, Params{
		Query: query.Object{"$select": []any{"title", "completed"}},
	})
	require.NoError(t, err)
	assert.Equal(t, ir.Record{"id": int64(1), "title": "Renamed", "completed": false}, rec)
}

func TestUpdate_WithoutID(t *testing.T) {
	f := newFixture(t, Options{Multi: MultiAll})

	_, err := f.todos.Update(context.Background(), nil, ir.Record{"title": "x"}, Params{})
	require.Error(t, err)
	assert.True(t, errs.IsBadRequest(err))
	assert.Contains(t, err.Error(), "You can not replace multiple instances. Did you mean 'patch'?")
	assert.Empty(t, f.spy.Calls())
}

func TestPatch_ReturnsRecord(t *testing.T) {
	f := newFixture(t, Options{})

	rec, err := f.todos.Patch(context.Background(), 2, ir.Record{"completed": false}, Params{})
	require.NoError(t, err)
	assert.Equal(t, "Title 2", rec["title"])
	assert.Equal(t, false, rec["completed"])
	assert.Equal(t, []string{"restq.todo.patched"}, f.pub.Topics())
}

func TestPatch_NotFound(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.todos.Patch(context.Background(), 99, ir.Record{"title": "x"}, Params{})
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
	assert.Contains(t, err.Error(), "No record found for id '99'")
	assert.Empty(t, f.pub.Events())
}

func TestPatch_ScanThenConfirm(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	rec, err := f.todos.Patch(ctx, 3, ir.Record{"title": "Bob's"}, Params{Query: query.Object{"tag": "A"}})
	require.NoError(t, err)
	assert.Equal(t, "Bob's", rec["title"])
	assert.Equal(t, []string{"begin", "findFirst", "updateMany", "findFirst"}, f.spy.Calls())

	// Todo 1 is open, so the filter excludes it and nothing is written.
	f.spy.Reset()
	_, err = f.todos.Patch(ctx, 1, ir.Record{"title": "x"}, Params{Query: query.Object{"completed": true}})
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
	assert.Equal(t, []string{"begin", "findFirst"}, f.spy.Calls())
	assert.Equal(t, "Title", f.todo(t, 1)["title"])
}

func TestPatch_ComplexIDConstraint(t *testing.T) {
	f := newFixture(t, Options{})

	rec, err := f.todos.Patch(context.Background(), 2, ir.Record{"tag": "C"}, Params{
		Query: query.Object{"id": map[string]any{"$in": []any{1, 2}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "C", rec["tag"])
	assert.Equal(t, []string{"begin", "findFirst", "updateMany", "findFirst"}, f.spy.Calls())
}

func TestPatch_ChangesID(t *testing.T) {
	f := newFixture(t, Options{})

	rec, err := f.todos.Patch(context.Background(), 4, ir.Record{"id": 40}, Params{})
	require.NoError(t, err)
	assert.EqualValues(t, 40, rec["id"])
	assert.Equal(t, "Title 4", rec["title"])
}

func TestPatch_MultipleRowsUpdated(t *testing.T) {
	f := newFixture(t, Options{})
	f.spy.forceCount = 2

	_, err := f.todos.Patch(context.Background(), 1, ir.Record{"title": "x"}, Params{})
	require.Error(t, err)
	assert.True(t, errs.IsInternal(err))
	assert.Contains(t, err.Error(), "Multi records updated. Expected single update.")
	assert.Equal(t, "Title", f.todo(t, 1)["title"], "rolled back")
}

func TestSingleCalls_IDQueryConflict(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	p := Params{Query: query.Object{"id": "2"}}

	_, err := f.todos.Update(ctx, 1, ir.Record{"title": "x"}, p)
	assert.True(t, errs.IsNotFound(err))
	_, err = f.todos.Patch(ctx, 1, ir.Record{"title": "x"}, p)
	assert.True(t, errs.IsNotFound(err))
	_, err = f.todos.Remove(ctx, 1, p)
	assert.True(t, errs.IsNotFound(err))

	assert.Empty(t, f.spy.Calls())
	assert.Equal(t, int64(4), f.count(t, nil))
}

func TestSingleCalls_MatchingIDInQuery(t *testing.T) {
	f := newFixture(t, Options{})

	rec, err := f.todos.Patch(context.Background(), 1, ir.Record{"title": "x"}, Params{Query: query.Object{"id": "1"}})
	require.NoError(t, err)
	assert.Equal(t, "x", rec["title"])
}

func TestPatch_RequiresID(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.todos.Patch(context.Background(), nil, ir.Record{"title": "x"}, Params{})
	assert.True(t, errs.IsBadRequest(err))
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.CodeIDRequired, e.Code)
	assert.Empty(t, f.spy.Calls())
}

func TestPatchMany(t *testing.T) {
	f := newFixture(t, Options{Multi: MultiOf(MethodPatch)})

	out, err := f.todos.PatchMany(context.Background(), ir.Record{"completed": true}, Params{
		Query: query.Object{"tag": "A"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Title", "Title 3"}, testutil.Titles(out))
	for _, rec := range out {
		assert.Equal(t, true, rec["completed"])
	}
	assert.Equal(t, []string{"begin", "updateMany", "findMany"}, f.spy.Calls())
	assert.Equal(t, int64(4), f.count(t, queryir.Where{"completed": true}))
	assert.Len(t, f.pub.Events(), 2)
}

func TestPatchMany_RefindUsesPatchedValues(t *testing.T) {
	f := newFixture(t, Options{Multi: MultiAll})

	// The filter no longer matches after the patch; the re-read follows
	// the new values instead.
	out, err := f.todos.PatchMany(context.Background(), ir.Record{"tag": "Z"}, Params{
		Query: query.Object{"tag": "B"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Title 2", "Title 4"}, testutil.Titles(out))
}

func TestPatchMany_RequiresMulti(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.todos.PatchMany(context.Background(), ir.Record{"completed": true}, Params{})
	require.Error(t, err)
	assert.True(t, errs.IsMethodNotAllowed(err))
	assert.Contains(t, err.Error(), "Can not patch multiple entries")
	assert.Equal(t, int64(2), f.count(t, queryir.Where{"completed": true}))
}

func TestRemove(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	rec, err := f.todos.Remove(ctx, 2, Params{})
	require.NoError(t, err)
	assert.Equal(t, "Title 2", rec["title"])
	assert.Equal(t, []string{"begin", "findFirst", "deleteMany"}, f.spy.Calls())
	assert.Equal(t, []string{"restq.todo.removed"}, f.pub.Topics())

	_, err = f.todos.Get(ctx, 2, Params{})
	assert.True(t, errs.IsNotFound(err))
}

func TestRemove_NotFound(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.todos.Remove(context.Background(), 99, Params{})
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
	assert.Contains(t, err.Error(), "No record found for id '99'")
	assert.Equal(t, int64(4), f.count(t, nil))
}

func TestRemove_FilterMismatchKeepsRecord(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.todos.Remove(context.Background(), 1, Params{Query: query.Object{"tag": "B"}})
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
	assert.NotNil(t, f.todo(t, 1))
	assert.NotContains(t, f.spy.Calls(), "deleteMany")
}

func TestRemove_ScanThenConfirmDeletesByID(t *testing.T) {
	f := newFixture(t, Options{})

	rec, err := f.todos.Remove(context.Background(), 3, Params{Query: query.Object{"tag": "A"}})
	require.NoError(t, err)
	assert.Equal(t, "Title 3", rec["title"])
	assert.Equal(t, int64(3), f.count(t, nil))
	assert.NotNil(t, f.todo(t, 1), "other tag A todo kept")
}

func TestRemoveMany_Snapshot(t *testing.T) {
	f := newFixture(t, Options{Multi: MultiOf(MethodRemove)})
	ctx := context.Background()
	p := Params{Query: query.Object{"completed": true}}

	before, err := f.todos.Find(ctx, p)
	require.NoError(t, err)

	removed, err := f.todos.RemoveMany(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, before.Data, removed)
	assert.Equal(t, []string{"Title 2", "Title 4"}, testutil.Titles(removed))

	after, err := f.todos.Find(ctx, p)
	require.NoError(t, err)
	assert.Empty(t, after.Data)
	assert.Equal(t, int64(2), f.count(t, nil))
	assert.Len(t, f.pub.Events(), 2)
}

func TestRemoveMany_RequiresMulti(t *testing.T) {
	f := newFixture(t, Options{Multi: MultiOf(MethodCreate)})

	_, err := f.todos.RemoveMany(context.Background(), Params{})
	require.Error(t, err)
	assert.True(t, errs.IsMethodNotAllowed(err))
	assert.Equal(t, int64(4), f.count(t, nil))
}

func TestRemove_RequiresID(t *testing.T) {
	f := newFixture(t, Options{Multi: MultiAll})

	_, err := f.todos.Remove(context.Background(), nil, Params{})
	assert.True(t, errs.IsBadRequest(err))
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.CodeIDRequired, e.Code)
	assert.Equal(t, int64(4), f.count(t, nil))
}
