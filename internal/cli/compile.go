package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/restq/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult holds the compiled models in name order.
type CompilationResult struct {
	SchemaVersion string          `json:"schema_version"`
	Models        []*ir.ModelSpec `json:"models"`
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	ModelCount     int
	TotalFields    int
	TotalRelations int
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <schema>",
		Short: "Compile a CUE model schema to IR",
		Long: `Compile a CUE model schema to its JSON intermediate representation.

<schema> is a .cue file or a directory holding one CUE package. The
compiled models list tables, columns, field types, id fields and
relations exactly as the store sees them.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, schemaPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	loaded, err := LoadSchema(schemaPath)
	if err != nil {
		return outputCompileError(formatter, err)
	}

	formatter.VerboseLog("Loaded %d CUE file(s) from %s", loaded.FileCount, schemaPath)

	result := newCompilationResult(loaded.Schema)
	for _, m := range result.Models {
		formatter.VerboseLog("Compiled model: %s (table %s)", m.Name, m.Table)
	}

	stats := calculateStats(result)

	if opts.Output != "" {
		if err := writeIRToFile(result, opts.Output); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, ErrCodeWriteFailed, err)
		}
	}

	return outputCompileSuccess(formatter, result, stats, opts.Output)
}

func newCompilationResult(schema ir.Schema) *CompilationResult {
	result := &CompilationResult{
		SchemaVersion: ir.SchemaVersion,
		Models:        make([]*ir.ModelSpec, 0, len(schema)),
	}
	for _, name := range schema.Names() {
		result.Models = append(result.Models, schema[name])
	}
	return result
}

// calculateStats computes summary statistics from compilation result.
func calculateStats(result *CompilationResult) CompilationStats {
	stats := CompilationStats{ModelCount: len(result.Models)}
	for _, m := range result.Models {
		stats.TotalFields += len(m.Fields)
		stats.TotalRelations += len(m.Relations)
	}
	return stats
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, stats CompilationStats, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d model(s), %d field(s), %d relation(s)\n\n",
		stats.ModelCount, stats.TotalFields, stats.TotalRelations)

	fmt.Fprintln(w, "Models:")
	for _, m := range result.Models {
		id := m.ID()
		fmt.Fprintf(w, "  %s (%s): id %s %s, %d field(s)\n",
			m.Name, m.Table, id.Name, id.Type, len(m.Fields))
		for _, name := range m.RelationNames() {
			rel := m.Relations[name]
			fmt.Fprintf(w, "    %s → %s (%s)\n", name, rel.Target, rel.Kind)
		}
	}
	fmt.Fprintln(w)

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote IR to %s\n", outputFile)
	}

	return nil
}

// outputCompileError reports a load or compile failure.
// Schema errors are command-level errors (exit code 2).
func outputCompileError(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		loadErr = &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}

	if formatter.Format == "json" {
		_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
	} else {
		fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
		fmt.Fprintln(formatter.Writer)
		if loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", loadErr.Code, loadErr.Message)
	}

	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", loadErr.Code, loadErr.Message), nil)
}

// writeIRToFile writes the compilation result as indented JSON.
func writeIRToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling IR: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
