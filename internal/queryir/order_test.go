package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderBy(t *testing.T) {
	s := testSchema()

	orders, err := ParseOrderBy(s, s["todo"], []map[string]any{
		{"title": "asc"},
		{"user": map[string]any{"name": "desc"}},
		{"completed": "desc", "id": "asc"},
	})
	require.NoError(t, err)
	assert.Equal(t, []Order{
		{Path: []string{"title"}},
		{Path: []string{"user", "name"}, Desc: true},
		{Path: []string{"completed"}, Desc: true},
		{Path: []string{"id"}},
	}, orders)
}

func TestParseOrderBy_Errors(t *testing.T) {
	s := testSchema()

	tests := []struct {
		name  string
		terms []map[string]any
		path  string
	}{
		{"unknown field", []map[string]any{{"nope": "asc"}}, "orderBy[0].nope"},
		{"bad direction", []map[string]any{{"title": 1}}, "orderBy[0].title"},
		{"to-many relation", []map[string]any{{"todos": map[string]any{"title": "asc"}}}, "orderBy[0].todos"},
		{"relation scalar", []map[string]any{{"user": "asc"}}, "orderBy[0].user"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := s["todo"]
			if tt.name == "to-many relation" {
				model = s["user"]
			}
			_, err := ParseOrderBy(s, model, tt.terms)
			require.Error(t, err)
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.path, pe.Path)
		})
	}
}

func TestOrderTerms(t *testing.T) {
	terms, err := OrderTerms(map[string]any{"title": "asc"})
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"title": "asc"}}, terms)

	terms, err = OrderTerms([]any{map[string]any{"title": "asc"}, map[string]any{"id": "desc"}})
	require.NoError(t, err)
	assert.Len(t, terms, 2)

	terms, err = OrderTerms(nil)
	require.NoError(t, err)
	assert.Nil(t, terms)

	_, err = OrderTerms("title")
	assert.True(t, IsParseError(err))

	_, err = OrderTerms([]any{"title"})
	assert.True(t, IsParseError(err))
}

func TestNormalizeInclude(t *testing.T) {
	got, err := NormalizeInclude([]any{[]any{"user", []any{"todos", []any{"user"}}}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"user": map[string]any{"include": map[string]any{
			"todos": map[string]any{"include": map[string]any{"user": true}},
		}},
	}, got)

	got, err = NormalizeInclude([]string{"user"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"user": true}, got)

	in := map[string]any{"user": true}
	got, err = NormalizeInclude(in)
	require.NoError(t, err)
	assert.Equal(t, in, got)
	got["other"] = true
	assert.NotContains(t, in, "other")

	got, err = NormalizeInclude("user")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"user": true}, got)

	got, err = NormalizeInclude(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNormalizeInclude_RejectsBadShape(t *testing.T) {
	_, err := NormalizeInclude([]any{[]any{1, "user"}})
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "include[0]", pe.Path)

	_, err = NormalizeInclude([]any{[]any{}})
	assert.True(t, IsParseError(err))

	_, err = NormalizeInclude(42)
	assert.True(t, IsParseError(err))

	_, err = NormalizeInclude("")
	assert.True(t, IsParseError(err))
}
