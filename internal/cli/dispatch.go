package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/minirx/internal/config"
	"github.com/roach88/minirx/internal/ir"
)

// DispatchOptions holds flags for the dispatch command.
type DispatchOptions struct {
	*RootOptions
	Database string
	Actions  []string // JSON actions, in order
	Stdin    bool     // read newline-delimited JSON actions from stdin
}

// DispatchResult is the outcome of a dispatch run.
type DispatchResult struct {
	Session    string   `json:"session"`
	Dispatched int      `json:"dispatched"`
	SpecHash   string   `json:"spec_hash"`
	State      ir.State `json:"state"`
}

// actionJSON is the accepted action shape.
type actionJSON struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewDispatchCommand creates the dispatch command.
func NewDispatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DispatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dispatch <specs-dir>",
		Short: "Dispatch actions into a fresh store",
		Long: `Start a store with compiled specs, dispatch actions into it and print
the resulting state.

Each action is a JSON object {"type": ..., "payload": ...}. Effects started
by an action settle before the next one is dispatched. With --db the
session is recorded to the journal for trace and replay.

Examples:
  minirx dispatch ./specs --action '{"type":"increment"}'
  minirx dispatch ./specs --db ./minirx.db --action '{"type":"add","payload":5}'
  cat actions.jsonl | minirx dispatch ./specs --stdin --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (optional)")
	cmd.Flags().StringArrayVar(&opts.Actions, "action", nil, "action as JSON (repeatable)")
	cmd.Flags().BoolVar(&opts.Stdin, "stdin", false, "read newline-delimited JSON actions from stdin")

	return cmd
}

func runDispatch(opts *DispatchOptions, specsDir string, cmd *cobra.Command) error {
	actions, err := parseActions(opts.Actions)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --action", err)
	}
	if opts.Stdin {
		more, err := readActions(cmd.InOrStdin())
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid action on stdin", err)
		}
		actions = append(actions, more...)
	}
	if len(actions) == 0 {
		return NewExitError(ExitCommandError, "no actions given (use --action or --stdin)")
	}

	specs, err := loadSpecs(specsDir)
	if err != nil {
		return err
	}

	cfg := config.Config{
		Journal: config.JournalConfig{Path: opts.Database},
		Store: config.StoreConfig{
			MaxDrainSteps: config.DefaultMaxDrainSteps,
			LogActions:    opts.Verbose,
		},
	}
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	rt, err := openRuntime(cmd.Context(), cfg, specs, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start store", err)
	}
	defer rt.Close()

	for _, a := range actions {
		rt.store.Dispatch(a)
		rt.store.WaitEffects()
	}

	result := DispatchResult{
		Session:    rt.store.Session(),
		Dispatched: len(actions),
		SpecHash:   specs.Hash,
		State:      rt.store.State(),
	}
	if rt.recorder != nil {
		if n := rt.recorder.Failed(); n > 0 {
			return NewExitError(ExitFailure, fmt.Sprintf("journal dropped %d transition(s)", n))
		}
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: result, Session: result.Session})
	}

	state, err := ir.MarshalCanonical(result.State)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Session: %s\n", result.Session)
	fmt.Fprintf(w, "Dispatched: %d action(s)\n", result.Dispatched)
	fmt.Fprintf(w, "State: %s\n", state)
	return nil
}

func parseActions(raw []string) ([]ir.Action, error) {
	out := make([]ir.Action, 0, len(raw))
	for i, s := range raw {
		a, err := parseAction(s)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// readActions reads one JSON action per non-blank line.
func readActions(r io.Reader) ([]ir.Action, error) {
	var out []ir.Action
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		a, err := parseAction(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, a)
	}
	return out, scanner.Err()
}

func parseAction(s string) (ir.Action, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.DisallowUnknownFields()
	var raw actionJSON
	if err := dec.Decode(&raw); err != nil {
		return ir.Action{}, err
	}
	if raw.Type == "" {
		return ir.Action{}, fmt.Errorf("type is required")
	}
	a := ir.Action{Type: raw.Type}
	if len(raw.Payload) > 0 {
		p, err := ir.UnmarshalCanonical(raw.Payload)
		if err != nil {
			return ir.Action{}, fmt.Errorf("payload: %w", err)
		}
		a.Payload = p
	}
	return a, nil
}
