package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"cuelang.org/go/cue"
	"github.com/spf13/cobra"

	"github.com/roach88/restq/internal/compiler"
	"github.com/roach88/restq/internal/ir"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Models int                        `json:"models"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schema>",
		Short: "Validate a model schema without writing IR",
		Long: `Validate a CUE model schema.

Every model is compiled on its own so that all errors are reported at
once, then the schema is checked as a whole: id fields, storage names
and relation targets.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, schemaPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	value, fileCount, err := loadCUE(schemaPath)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputValidateError(formatter, ErrCodeGeneric, err.Error())
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", fileCount, schemaPath)

	schema, validationErrors := validateAll(value, formatter)
	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}

	return outputValidateSuccess(formatter, len(schema))
}

// validateAll compiles each model under "model" and validates the
// resulting schema. Compile errors of one model do not hide another's.
func validateAll(value cue.Value, formatter *OutputFormatter) (ir.Schema, []compiler.ValidationError) {
	modelsVal := value.LookupPath(cue.ParsePath("model"))
	if !modelsVal.Exists() {
		return nil, []compiler.ValidationError{{
			Field:   "model",
			Message: "no models defined",
			Code:    ErrCodeGeneric,
		}}
	}

	iter, err := modelsVal.Fields()
	if err != nil {
		return nil, []compiler.ValidationError{{
			Field:   "model",
			Message: err.Error(),
			Code:    ErrCodeGeneric,
		}}
	}

	var allErrors []compiler.ValidationError
	schema := make(ir.Schema)
	for iter.Next() {
		name := iter.Label()
		formatter.VerboseLog("Validating model: %s", name)

		spec, err := compiler.CompileModel(iter.Value())
		if err != nil {
			allErrors = append(allErrors, compileToValidationError("model."+name, err))
			continue
		}
		schema[spec.Name] = spec
	}

	if len(allErrors) > 0 {
		return schema, allErrors
	}
	return schema, compiler.Validate(schema)
}

func compileToValidationError(field string, err error) compiler.ValidationError {
	var cErr *compiler.CompileError
	if errors.As(err, &cErr) {
		ve := compiler.ValidationError{
			Field:   field + "." + cErr.Field,
			Message: cErr.Message,
			Code:    MapFieldToErrorCode(cErr.Field),
		}
		if cErr.Pos.IsValid() {
			ve.Line = cErr.Pos.Line()
		}
		return ve
	}
	return compiler.ValidationError{Field: field, Message: err.Error(), Code: ErrCodeGeneric}
}

func outputValidateSuccess(formatter *OutputFormatter, models int) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Models: models})
	}

	fmt.Fprintf(formatter.Writer, "✓ Schema valid (%d model(s))\n", models)
	return nil
}

// outputValidateError outputs a load error. These are command-level errors (exit code 2).
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs every validation error. Validation
// failures exit with code 1.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

// ValidateSchema validates the schema at path and returns every error found.
func ValidateSchema(path string) ([]compiler.ValidationError, error) {
	value, _, err := loadCUE(path)
	if err != nil {
		return nil, err
	}
	silent := &OutputFormatter{Format: "text", Writer: io.Discard}
	_, validationErrs := validateAll(value, silent)
	return validationErrs, nil
}
