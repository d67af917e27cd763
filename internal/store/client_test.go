package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/restq/internal/errs"
	"github.com/roach88/restq/internal/ir"
	"github.com/roach88/restq/internal/queryir"
)

func TestFindMany_FilterAndDeterministicOrder(t *testing.T) {
	s := createTestStore(t)
	seedTodos(t, s)
	todos := mustModel(t, s, "todo")
	ctx := context.Background()

	got, err := todos.FindMany(ctx, queryir.FindArgs{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Title", "Title 2", "Title 3", "Title 4"}, titles(got))

	got, err = todos.FindMany(ctx, queryir.FindArgs{
		Where: queryir.Where{"completed": true},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Title 2", "Title 4"}, titles(got))

	got, err = todos.FindMany(ctx, queryir.FindArgs{
		Where: queryir.Where{"title": map[string]any{"in": []any{"Title", "Title 3"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Title", "Title 3"}, titles(got))

	got, err = todos.FindMany(ctx, queryir.FindArgs{
		Where: queryir.Where{"userId": nil},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Title 4"}, titles(got))
}

func TestFindMany_EmptyResultIsNotNil(t *testing.T) {
	s := createTestStore(t)
	todos := mustModel(t, s, "todo")

	got, err := todos.FindMany(context.Background(), queryir.FindArgs{})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFindMany_ScannedTypes(t *testing.T) {
	s := createTestStore(t)
	seedTodos(t, s)
	todos := mustModel(t, s, "todo")

	got, err := todos.FindFirst(context.Background(), queryir.FindArgs{Where: queryir.Where{"id": 1}})
	require.NoError(t, err)
	assert.Equal(t, ir.Record{
		"id":        int64(1),
		"title":     "Title",
		"completed": false,
		"userId":    int64(1),
	}, got)
}

func TestFindMany_OrderAndWindow(t *testing.T) {
	s := createTestStore(t)
	seedTodos(t, s)
	todos := mustModel(t, s, "todo")
	ctx := context.Background()

	got, err := todos.FindMany(ctx, queryir.FindArgs{
		OrderBy: []map[string]any{{"title": "asc"}},
		Skip:    intPtr(2),
		Take:    intPtr(2),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Title 3", "Title 4"}, titles(got))

	got, err = todos.FindMany(ctx, queryir.FindArgs{
		OrderBy: []map[string]any{{"completed": "desc"}, {"title": "desc"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Title 4", "Title 2", "Title 3", "Title"}, titles(got))

	got, err = todos.FindMany(ctx, queryir.FindArgs{Skip: intPtr(3)})
	require.NoError(t, err)
	assert.Equal(t, []string{"Title 4"}, titles(got))
}

func TestFindMany_OrderByRelationField(t *testing.T) {
	s := createTestStore(t)
	seedTodos(t, s)
	todos := mustModel(t, s, "todo")

	got, err := todos.FindMany(context.Background(), queryir.FindArgs{
		Where:   queryir.Where{"userId": map[string]any{"not": nil}},
		OrderBy: []map[string]any{{"user": map[string]any{"name": "desc"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Title 3", "Title", "Title 2"}, titles(got))
}

func TestFindMany_RelationFilters(t *testing.T) {
	s := createTestStore(t)
	seedTodos(t, s)
	ctx := context.Background()

	todos := mustModel(t, s, "todo")
	got, err := todos.FindMany(ctx, queryir.FindArgs{
		Where: queryir.Where{"user": map[string]any{"is": map[string]any{"name": "Bob"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Title 3"}, titles(got))

	users := mustModel(t, s, "user")
	got, err = users.FindMany(ctx, queryir.FindArgs{
		Where: queryir.Where{"todos": map[string]any{"every": map[string]any{"completed": false}}},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Bob", got[0]["name"])
}

func TestFindMany_Select(t *testing.T) {
	s := createTestStore(t)
	seedTodos(t, s)
	todos := mustModel(t, s, "todo")

	got, err := todos.FindMany(context.Background(), queryir.FindArgs{
		Where:  queryir.Where{"id": 3},
		Select: map[string]any{"id": true, "title": true, "completed": false},
	})
	require.NoError(t, err)
	assert.Equal(t, []ir.Record{{"id": int64(3), "title": "Title 3"}}, got)
}

func TestFindMany_SelectWithRelation(t *testing.T) {
	s := createTestStore(t)
	seedTodos(t, s)
	todos := mustModel(t, s, "todo")

	got, err := todos.FindMany(context.Background(), queryir.FindArgs{
		Where:  queryir.Where{"id": 1},
		Select: map[string]any{"id": true, "user": []any{"name"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []ir.Record{{
		"id":   int64(1),
		"user": ir.Record{"id": int64(1), "name": "Alice"},
	}}, got)
}

func TestFindMany_IncludeMapForm(t *testing.T) {
	s := createTestStore(t)
	seedTodos(t, s)
	users := mustModel(t, s, "user")

	got, err := users.FindMany(context.Background(), queryir.FindArgs{
		Include: map[string]any{"todos": map[string]any{
			"where":   map[string]any{"completed": false},
			"orderBy": map[string]any{"title": "desc"},
		}},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"Title"}, titles(got[0]["todos"].([]ir.Record)))
	assert.Equal(t, []string{"Title 3"}, titles(got[1]["todos"].([]ir.Record)))
}

func TestFindMany_IncludeWindowPerParent(t *testing.T) {
	s := createTestStore(t)
	seedTodos(t, s)
	users := mustModel(t, s, "user")

	got, err := users.FindMany(context.Background(), queryir.FindArgs{
		Include: map[string]any{"todos": map[string]any{"take": 1, "orderBy": []any{map[string]any{"title": "desc"}}}},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"Title 2"}, titles(got[0]["todos"].([]ir.Record)))
	assert.Equal(t, []string{"Title 3"}, titles(got[1]["todos"].([]ir.Record)))
}

func TestFindMany_IncludeToOneWithoutParent(t *testing.T) {
	s := createTestStore(t)
	seedTodos(t, s)
	todos := mustModel(t, s, "todo")

	got, err := todos.FindFirst(context.Background(), queryir.FindArgs{
		Where:   queryir.Where{"title": "Title 4"},
		Include: map[string]any{"user": true},
	})
	require.NoError(t, err)
	require.Contains(t, got, "user")
	assert.Nil(t, got["user"])
}

func TestFindMany_IncludeSequenceFormNested(t *testing.T) {
	s := createTestStore(t)
	seedTodos(t, s)
	todos := mustModel(t, s, "todo")

	got, err := todos.FindFirst(context.Background(), queryir.FindArgs{
		Where:   queryir.Where{"id": 1},
		Include: []any{[]any{"user", []any{"todos", []any{"user"}}}},
	})
	require.NoError(t, err)
	require.NotNil(t, got)

	user, ok := got["user"].(ir.Record)
	require.True(t, ok, "user should be a record, got %T", got["user"])
	userTodos, ok := user["todos"].([]ir.Record)
	require.True(t, ok, "user.todos should be a list, got %T", user["todos"])
	require.Len(t, userTodos, 2)

	inner, ok := userTodos[0]["user"].(ir.Record)
	require.True(t, ok)
	assert.Equal(t, got["userId"], inner["id"])
}

func TestFindMany_InvalidArgs(t *testing.T) {
	s := createTestStore(t)
	todos := mustModel(t, s, "todo")
	ctx := context.Background()

	tests := []struct {
		name string
		args queryir.FindArgs
	}{
		{"unknown field", queryir.FindArgs{Where: queryir.Where{"nope": 1}}},
		{"bad value", queryir.FindArgs{Where: queryir.Where{"id": "abc"}}},
		{"unknown order field", queryir.FindArgs{OrderBy: []map[string]any{{"nope": "asc"}}}},
		{"negative take", queryir.FindArgs{Take: intPtr(-1)}},
		{"select and include", queryir.FindArgs{Select: map[string]any{"id": true}, Include: map[string]any{"user": true}}},
		{"unknown include", queryir.FindArgs{Include: map[string]any{"owner": true}}},
		{"field in include", queryir.FindArgs{Include: map[string]any{"title": true}}},
		{"bad nested argument", queryir.FindArgs{Include: map[string]any{"user": map[string]any{"limit": 1}}}},
		{"bad sequence", queryir.FindArgs{Include: []any{[]any{1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := todos.FindMany(ctx, tt.args)
			require.Error(t, err)
			var ae *ArgsError
			assert.ErrorAs(t, err, &ae)
		})
	}
}

func TestFindMany_SelectIncludeConflict(t *testing.T) {
	s := createTestStore(t)
	todos := mustModel(t, s, "todo")

	_, err := todos.FindMany(context.Background(), queryir.FindArgs{
		Select:  map[string]any{"id": true},
		Include: map[string]any{"user": true},
	})
	require.ErrorIs(t, err, ErrSelectInclude)

	e, ok := errs.As(TranslateError(err, "find"))
	require.True(t, ok)
	assert.Equal(t, errs.CodeSelectInclude, e.Code)
}

func TestCount(t *testing.T) {
	s := createTestStore(t)
	seedTodos(t, s)
	todos := mustModel(t, s, "todo")
	ctx := context.Background()

	n, err := todos.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	n, err = todos.Count(ctx, queryir.Where{"title": map[string]any{"startsWith": "Title "}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestCreate_AutoincrementAndProjection(t *testing.T) {
	s := createTestStore(t)
	seedTodos(t, s)
	todos := mustModel(t, s, "todo")

	got, err := todos.Create(context.Background(), ir.Record{"title": "New", "completed": "true", "userId": "2"},
		queryir.Projection{Include: map[string]any{"user": true}})
	require.NoError(t, err)
	assert.Equal(t, int64(5), got["id"])
	assert.Equal(t, true, got["completed"])
	assert.Equal(t, int64(2), got["userId"])
	assert.Equal(t, "Bob", got["user"].(ir.Record)["name"])
}

func TestCreate_GeneratesUUID(t *testing.T) {
	s := createTestStore(t)
	tags := mustModel(t, s, "tag")

	got, err := tags.Create(context.Background(), ir.Record{"label": "home"}, queryir.Projection{})
	require.NoError(t, err)

	id, ok := got["id"].(string)
	require.True(t, ok)
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

type fixedIDs struct{ id string }

func (f fixedIDs) Generate(ir.FieldSpec) (any, error) { return f.id, nil }

func TestCreate_CustomIDGenerator(t *testing.T) {
	s := createTestStore(t)
	s.ids = fixedIDs{id: "tag-1"}
	tags := mustModel(t, s, "tag")
	ctx := context.Background()

	got, err := tags.Create(ctx, ir.Record{"label": "home"}, queryir.Projection{})
	require.NoError(t, err)
	assert.Equal(t, "tag-1", got["id"])

	got, err = tags.Create(ctx, ir.Record{"id": "explicit", "label": "work"}, queryir.Projection{})
	require.NoError(t, err)
	assert.Equal(t, "explicit", got["id"])
}

func TestCreate_Rejects(t *testing.T) {
	s := createTestStore(t)
	todos := mustModel(t, s, "todo")
	ctx := context.Background()

	_, err := todos.Create(ctx, ir.Record{"title": "x", "completed": false, "user": map[string]any{}}, queryir.Projection{})
	var ae *ArgsError
	assert.ErrorAs(t, err, &ae)

	// NOT NULL violation comes from the database.
	_, err = todos.Create(ctx, ir.Record{"completed": false}, queryir.Projection{})
	require.Error(t, err)
	assert.False(t, errors.As(err, &ae))
}

func TestUpdateMany(t *testing.T) {
	s := createTestStore(t)
	seedTodos(t, s)
	todos := mustModel(t, s, "todo")
	ctx := context.Background()

	n, err := todos.UpdateMany(ctx, queryir.Where{"userId": 1}, ir.Record{"completed": true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Rows already holding the value still count as matched.
	n, err = todos.UpdateMany(ctx, queryir.Where{"userId": 1}, ir.Record{"completed": true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = todos.UpdateMany(ctx, queryir.Where{"user": map[string]any{"name": "Bob"}}, ir.Record{"title": "Bob's"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := todos.FindFirst(ctx, queryir.FindArgs{Where: queryir.Where{"id": 3}})
	require.NoError(t, err)
	assert.Equal(t, "Bob's", got["title"])

	// Empty data reports the matched count without writing.
	n, err = todos.UpdateMany(ctx, queryir.Where{"completed": true}, ir.Record{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestDeleteMany(t *testing.T) {
	s := createTestStore(t)
	seedTodos(t, s)
	todos := mustModel(t, s, "todo")
	ctx := context.Background()

	n, err := todos.DeleteMany(ctx, queryir.Where{"completed": true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = todos.DeleteMany(ctx, queryir.Where{"id": 99})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	got, err := todos.FindMany(ctx, queryir.FindArgs{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Title", "Title 3"}, titles(got))
}

func TestRunInTransaction_Commit(t *testing.T) {
	s := createTestStore(t)
	seedTodos(t, s)
	ctx := context.Background()

	var snapshot []ir.Record
	err := s.RunInTransaction(ctx, func(tx Client) error {
		todos := mustModel(t, tx, "todo")
		var err error
		snapshot, err = todos.FindMany(ctx, queryir.FindArgs{Where: queryir.Where{"userId": 1}})
		if err != nil {
			return err
		}
		_, err = todos.DeleteMany(ctx, queryir.Where{"userId": 1})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Title", "Title 2"}, titles(snapshot))

	n, err := mustModel(t, s, "todo").Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRunInTransaction_RollbackOnError(t *testing.T) {
	s := createTestStore(t)
	seedTodos(t, s)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.RunInTransaction(ctx, func(tx Client) error {
		if _, err := mustModel(t, tx, "todo").DeleteMany(ctx, nil); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := mustModel(t, s, "todo").Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestRunInTransaction_Nested(t *testing.T) {
	s := createTestStore(t)
	seedTodos(t, s)
	ctx := context.Background()

	err := s.RunInTransaction(ctx, func(tx Client) error {
		return tx.RunInTransaction(ctx, func(inner Client) error {
			assert.Same(t, tx, inner)
			_, err := mustModel(t, inner, "todo").DeleteMany(ctx, queryir.Where{"id": 1})
			return err
		})
	})
	require.NoError(t, err)

	n, err := mustModel(t, s, "todo").Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestModel_Unknown(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Model("nope")
	assert.ErrorContains(t, err, `unknown model "nope"`)
}
