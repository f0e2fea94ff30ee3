package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/minirx/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Features int                        `json:"features"`
	Effects  int                        `json:"effects"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <specs-dir>",
		Short: "Validate specs without writing output",
		Long: `Validate CUE feature and effect specs.

Performs syntax checking, schema validation and consistency checks
(duplicate feature keys, SET-STATE targets, payload references), then
reports effect dispatch loops as warnings.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, specsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	loadResult, loadErrors := compiler.LoadDir(specsDir)
	if loadResult == nil {
		var validationErrors []compiler.ValidationError
		for _, err := range loadErrors {
			var loadErr *compiler.LoadError
			if !errors.As(err, &loadErr) {
				return outputValidateError(formatter, compiler.ErrCodeGeneric, err.Error(), nil)
			}
			// Directory-level failures are command errors, compile errors are spec failures.
			if loadErr.Code != compiler.ErrCodeCompile && loadErr.Code != compiler.ErrCodeGeneric {
				return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
			}
			validationErrors = append(validationErrors, compiler.ValidationError{
				Field:   "load",
				Message: loadErr.Message,
				Code:    loadErr.Code,
				Line:    lineOf(loadErr),
			})
		}
		return outputValidationErrors(formatter, validationErrors)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, specsDir)

	validationErrors := compiler.Validate(loadResult.Specs)
	if len(loadResult.Specs.Features) == 0 && len(loadResult.Specs.Effects) == 0 {
		validationErrors = append(validationErrors, compiler.ValidationError{
			Field:   "specs",
			Message: "no features or effects found in specs",
			Code:    compiler.ErrCodeGeneric,
		})
	}
	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}

	for _, f := range loadResult.Specs.Features {
		formatter.VerboseLog("Validated feature: %s (%d case(s))", f.Key, len(f.Cases))
	}
	for _, e := range loadResult.Specs.Effects {
		formatter.VerboseLog("Validated effect: %s", e.Name)
	}

	return outputValidateSuccess(formatter, ValidationResult{
		Valid:    true,
		Features: len(loadResult.Specs.Features),
		Effects:  len(loadResult.Specs.Effects),
		Warnings: compiler.AnalyzeCycles(loadResult.Specs.Effects),
	})
}

// lineOf extracts the line number of a load error, or 0.
func lineOf(err *compiler.LoadError) int {
	if err.Pos.IsValid() {
		return err.Pos.Line()
	}
	return 0
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintln(formatter.Writer, "✓ All specs valid")
	for _, w := range result.Warnings {
		fmt.Fprintf(formatter.Writer, "  %s: %s\n", w.Level, w.Message)
	}
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Validation errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data: ValidationResult{
				Valid:  false,
				Errors: errs,
			},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}
		if err := writeJSON(formatter.Writer, response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

// loadSpecs loads and validates a spec directory for commands that run
// the specs. Any load or validation error fails the command.
func loadSpecs(specsDir string) (*compiler.LoadResult, error) {
	loadResult, loadErrors := compiler.LoadDir(specsDir)
	if loadResult == nil {
		return nil, WrapExitError(ExitCommandError, "failed to compile specs", errors.Join(loadErrors...))
	}
	if verrs := compiler.Validate(loadResult.Specs); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, e := range verrs {
			errs[i] = e
		}
		return nil, WrapExitError(ExitCommandError, "invalid specs", errors.Join(errs...))
	}
	return loadResult, nil
}
