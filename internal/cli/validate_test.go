package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/restq/internal/compiler"
	"github.com/roach88/restq/internal/testutil"
)

func TestValidateValidSchema(t *testing.T) {
	path := writeFile(t, t.TempDir(), "schema.cue", testutil.TodoSchemaCUE)

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "✓ Schema valid (4 model(s))")
}

func TestValidateValidDirectoryJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "user.cue", userSchema)

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 1, resp.Data.Models)
}

func TestValidateNonExistentPath(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"/nonexistent/schema"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
}

func TestValidateNoModels(t *testing.T) {
	path := writeFile(t, t.TempDir(), "schema.cue", "other: 1\n")

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "no models defined")
}

func TestValidateMultipleErrors(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.cue", `
model: a: fields: {
	title: string
}

model: b: fields: {
	id:    int
	price: "money"
}
`)

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "2 error(s)")

	output := buf.String()
	assert.Contains(t, output, "✗ Validation failed")
	assert.Contains(t, output, compiler.ErrModelNoIDField+": model.a.id")
	assert.Contains(t, output, compiler.ErrInvalidFieldType+": model.b.type")
}

func TestValidateUnknownRelationTargetJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "schema.cue", `
model: todo: {
	fields: {
		id:       int
		title:    string
		ownerId?: int
	}
	relations: owner: {model: "person", kind: "one"}
}
`)

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.NotNil(t, resp.Error)
	assert.Equal(t, compiler.ErrUnknownRelationTarget, resp.Error.Code)
}

func TestValidateVerboseOutput(t *testing.T) {
	path := writeFile(t, t.TempDir(), "schema.cue", userSchema)

	errBuf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text", Verbose: true})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(errBuf)
	cmd.SetArgs([]string{path})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, errBuf.String(), "Found 1 CUE file(s)")
	assert.Contains(t, errBuf.String(), "Validating model: user")
}

func TestValidateSchema(t *testing.T) {
	dir := t.TempDir()

	errs, err := ValidateSchema(writeFile(t, dir, "good.cue", testutil.TodoSchemaCUE))
	require.NoError(t, err)
	assert.Empty(t, errs)

	errs, err = ValidateSchema(writeFile(t, dir, "bad.cue", "model: a: fields: {title: string}\n"))
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, compiler.ErrModelNoIDField, errs[0].Code)

	_, err = ValidateSchema(dir + "/missing.cue")
	require.Error(t, err)
}
