package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/minirx/internal/compiler"
	"github.com/roach88/minirx/internal/ir"
)

// ErrCodeWriteFailed reports a failure writing the compiled output.
const ErrCodeWriteFailed = "E008"

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult holds the compiled spec set and its hash.
type CompilationResult struct {
	Hash     string           `json:"hash"`
	Features []ir.FeatureSpec `json:"features"`
	Effects  []ir.EffectSpec  `json:"effects"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <specs-dir>",
		Short: "Compile CUE specs to canonical form",
		Long: `Compile CUE feature and effect specs to their canonical form.

The compiler parses CUE files, checks them against the spec schema and
prints the compiled spec set with its hash. With --output the canonical
JSON (the bytes the hash is computed over) is written to a file.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, specsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	loadResult, loadErrors := compiler.LoadDir(specsDir)
	if loadResult == nil {
		return outputCompileErrors(formatter, loadErrors)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, specsDir)

	if verrs := compiler.Validate(loadResult.Specs); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, e := range verrs {
			errs[i] = e
		}
		return outputCompileErrors(formatter, errs)
	}

	for _, f := range loadResult.Specs.Features {
		formatter.VerboseLog("Compiled feature: %s", f.Key)
	}
	for _, e := range loadResult.Specs.Effects {
		formatter.VerboseLog("Compiled effect: %s", e.Name)
	}

	result := &CompilationResult{
		Hash:     loadResult.Hash,
		Features: loadResult.Specs.Features,
		Effects:  loadResult.Specs.Effects,
	}

	if opts.Output != "" {
		if err := writeSpecsToFile(loadResult.Specs, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d feature(s), %d effect(s)\n", len(result.Features), len(result.Effects))
	fmt.Fprintf(formatter.Writer, "Hash: %s\n\n", result.Hash)

	if len(result.Features) > 0 {
		fmt.Fprintln(formatter.Writer, "Features:")
		for _, f := range result.Features {
			fmt.Fprintf(formatter.Writer, "  %s: %d case(s)\n", f.Key, len(f.Cases))
		}
		fmt.Fprintln(formatter.Writer)
	}

	if len(result.Effects) > 0 {
		fmt.Fprintln(formatter.Writer, "Effects:")
		for _, e := range result.Effects {
			target := "(no dispatch)"
			if e.Emit != nil {
				target = e.Emit.Type
			}
			fmt.Fprintf(formatter.Writer, "  %s: %v → %s\n", e.Name, e.OfType, target)
		}
		fmt.Fprintln(formatter.Writer)
	}

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "Wrote canonical specs to %s\n", outputFile)
	}
	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Compilation errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseCompileError(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}

		response := CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors, // Include all errors in data
		}
		if err := writeJSON(formatter.Writer, response); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		code, message := parseCompileError(err)
		var loadErr *compiler.LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}

	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var loadErr *compiler.LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	var verr compiler.ValidationError
	if errors.As(err, &verr) {
		return verr.Code, fmt.Sprintf("%s: %s", verr.Field, verr.Message)
	}
	return compiler.ErrCodeGeneric, err.Error()
}

// writeSpecsToFile writes the spec set as canonical JSON, the same bytes
// the spec hash is computed over.
func writeSpecsToFile(set *ir.SpecSet, filename string) error {
	data, err := ir.MarshalCanonical(set)
	if err != nil {
		return fmt.Errorf("marshaling specs: %w", err)
	}
	return os.WriteFile(filename, data, 0o644)
}
