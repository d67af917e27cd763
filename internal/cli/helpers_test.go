package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/restq/internal/config"
	"github.com/roach88/restq/internal/testutil"
)

// writeFile writes content to name inside dir and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// clearEnv unsets every RESTQ_* override for the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		config.EnvDatabaseDriver, config.EnvDatabaseDSN, config.EnvSchema,
		config.EnvNATSURL, config.EnvNATSPrefix,
	} {
		t.Setenv(key, "")
	}
}

// writeConfig writes the fixture schema and a YAML config using a SQLite
// database in a temp directory. resources is appended verbatim under
// "resources:". Returns the config path.
func writeConfig(t *testing.T, resources string) string {
	t.Helper()
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "schema.cue", testutil.TodoSchemaCUE)
	content := "schema: schema.cue\ndatabase:\n  driver: sqlite3\n  dsn: restq.db\n"
	if resources != "" {
		content += "resources:\n" + resources
	}
	return writeFile(t, dir, "restq.yaml", content)
}

// execute runs the root command with args and returns stdout, stderr and
// the command error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}
