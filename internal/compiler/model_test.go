package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/restq/internal/ir"
)

const todoSchema = `
model: todo: {
	table: "todos"
	fields: {
		id:        int
		title:     string
		completed: bool
		userId?:   {type: "int", column: "user_id"}
	}
	relations: user: {model: "user", kind: "one", local: "userId"}
}

model: user: {
	table: "users"
	fields: {
		id:   int
		name: string
	}
	relations: todos: {model: "todo", kind: "many", foreign: "userId"}
}
`

func TestCompileSchemaBasic(t *testing.T) {
	schema, err := CompileSource("schema.cue", todoSchema)
	require.NoError(t, err)

	assert.Equal(t, []string{"todo", "user"}, schema.Names())

	todo := schema["todo"]
	assert.Equal(t, "todo", todo.Name)
	assert.Equal(t, "todos", todo.Table)
	assert.Equal(t, "id", todo.IDField)
	assert.Equal(t, []string{"id", "completed", "title", "userId"}, todo.FieldNames())
	assert.Equal(t, ir.FieldSpec{Name: "userId", Column: "user_id", Type: ir.TypeInt, Optional: true}, todo.Fields["userId"])
	assert.Equal(t, ir.FieldSpec{Name: "title", Column: "title", Type: ir.TypeString}, todo.Fields["title"])
	assert.Equal(t, ir.RelationSpec{
		Name: "user", Target: "user", Kind: ir.RelationOne, LocalField: "userId", ForeignField: "id",
	}, todo.Relations["user"])

	assert.Equal(t, ir.RelationSpec{
		Name: "todos", Target: "todo", Kind: ir.RelationMany, LocalField: "id", ForeignField: "userId",
	}, schema["user"].Relations["todos"])

	assert.Empty(t, Validate(schema))
}

func TestCompileModelDefaults(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		model: author: {
			fields: {
				id:   int
				name: string
			}
			relations: posts: {model: "post", kind: "many"}
		}
	`)
	require.NoError(t, v.Err())

	spec, err := CompileModel(v.LookupPath(cue.ParsePath("model.author")))
	require.NoError(t, err)

	assert.Equal(t, "author", spec.Table)
	assert.Equal(t, "id", spec.IDField)
	assert.Equal(t, "id", spec.Relations["posts"].LocalField)
	assert.Equal(t, "authorId", spec.Relations["posts"].ForeignField)
}

func TestCompileModelToOneDefaults(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		model: post: {
			fields: {
				id:       string
				authorId: int
			}
			relations: author: {}
		}
	`)
	require.NoError(t, v.Err())

	spec, err := CompileModel(v.LookupPath(cue.ParsePath("model.post")))
	require.NoError(t, err)

	rel := spec.Relations["author"]
	assert.Equal(t, "author", rel.Target)
	assert.Equal(t, ir.RelationOne, rel.Kind)
	assert.Equal(t, "authorId", rel.LocalField)
	assert.Equal(t, "id", rel.ForeignField)
}

func TestCompileModelFieldTypes(t *testing.T) {
	schema, err := CompileSource("types.cue", `
		model: event: {
			id: "key"
			fields: {
				key:       "uuid"
				at:        "datetime"
				score:     number
				ratio:     float
				count:     int
				label:     string
				done:      bool
				note?:     string
				legacy:    {type: string, column: "legacy_col", optional: true}
			}
		}
	`)
	require.NoError(t, err)

	m := schema["event"]
	assert.Equal(t, "key", m.IDField)
	want := map[string]ir.FieldType{
		"key":    ir.TypeUUID,
		"at":     ir.TypeDatetime,
		"score":  ir.TypeFloat,
		"ratio":  ir.TypeFloat,
		"count":  ir.TypeInt,
		"label":  ir.TypeString,
		"done":   ir.TypeBool,
		"note":   ir.TypeString,
		"legacy": ir.TypeString,
	}
	for name, typ := range want {
		assert.Equal(t, typ, m.Fields[name].Type, name)
	}
	assert.True(t, m.Fields["note"].Optional)
	assert.True(t, m.Fields["legacy"].Optional)
	assert.Equal(t, "legacy_col", m.Fields["legacy"].Column)
	assert.False(t, m.Fields["label"].Optional)
}

func TestCompileModelErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{
			name:  "no models",
			src:   `other: 1`,
			field: "model",
		},
		{
			name:  "no fields",
			src:   `model: empty: {table: "empty"}`,
			field: "fields",
		},
		{
			name:  "missing id",
			src:   `model: thing: fields: {name: string}`,
			field: "id",
		},
		{
			name:  "unknown type name",
			src:   `model: thing: fields: {id: int, blob: "bytes"}`,
			field: "type",
		},
		{
			name:  "unsupported kind",
			src:   `model: thing: fields: {id: int, tags: [...string]}`,
			field: "type",
		},
		{
			name:  "struct without type",
			src:   `model: thing: fields: {id: int, name: {column: "n"}}`,
			field: "type",
		},
		{
			name:  "bad relation kind",
			src:   `model: thing: {fields: {id: int}, relations: other: {kind: "several"}}`,
			field: "kind",
		},
		{
			name:  "empty table",
			src:   `model: thing: {table: "", fields: {id: int}}`,
			field: "table",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileSource("bad.cue", tt.src)
			require.Error(t, err)

			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestCompileErrorPosition(t *testing.T) {
	_, err := CompileSource("pos.cue", "model: thing: {\n\tfields: {name: string}\n}\n")
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.True(t, ce.Pos.IsValid())
	assert.Contains(t, err.Error(), "pos.cue:")
}

func TestCompileSchemaCUEError(t *testing.T) {
	_, err := CompileSource("conflict.cue", `
		model: thing: {
			table: "a"
			table: "b"
			fields: id: int
		}
	`)
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "cue", ce.Field)
}

func TestCompileErrorFormat(t *testing.T) {
	err := &CompileError{Field: "fields", Message: "at least one field"}
	assert.Equal(t, "fields: at least one field", err.Error())
}
