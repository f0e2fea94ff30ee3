package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/minirx/internal/compiler"
	"github.com/roach88/minirx/internal/engine"
	"github.com/roach88/minirx/internal/ir"
	"github.com/roach88/minirx/internal/journal"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Session  string
	Seq      int64  // time-travel target; 0 means the last recorded seq
	Specs    string // optional - re-execute with these specs
}

// ReplayResult holds the replay result for one session.
type ReplayResult struct {
	Session string   `json:"session"`
	Seq     int64    `json:"seq"`
	State   ir.State `json:"state"`
	Hash    string   `json:"state_hash"`

	// Intact is false when a recorded action id or state hash no longer
	// matches its content; BrokenAt is the first such seq.
	Intact   bool  `json:"intact"`
	BrokenAt int64 `json:"broken_at,omitempty"`

	// Set when --specs is given.
	Reexecuted   bool   `json:"reexecuted"`
	Dispatched   int    `json:"dispatched,omitempty"`
	ReplayHash   string `json:"replay_hash,omitempty"`
	Reproduced   bool   `json:"reproduced"`
	SpecMismatch bool   `json:"spec_mismatch,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Time-travel and re-execute a recorded session",
		Long: `Restore the state of a recorded session at a given seq and verify it.

The journal is checked for integrity (recomputed action ids and state
hashes). With --specs the session's actions up to --seq are re-dispatched
into a fresh store built from the specs (reducers only; effect outputs are
already in the journal) and the resulting state hash is compared with
the recorded one.

Exit codes:
  0 - Journal intact (and state reproduced, with --specs)
  1 - Journal corrupted or re-execution diverged
  2 - Command error (journal or session not found, etc.)

Examples:
  minirx replay --db ./minirx.db --session 0190...
  minirx replay --db ./minirx.db --session 0190... --seq 3
  minirx replay --db ./minirx.db --session 0190... --specs ./specs --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session to replay (required)")
	_ = cmd.MarkFlagRequired("session")
	cmd.Flags().Int64Var(&opts.Seq, "seq", 0, "seq to travel to (default: last)")
	cmd.Flags().StringVar(&opts.Specs, "specs", "", "specs directory to re-execute with")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	jr, err := openJournal(opts.Database)
	if err != nil {
		return err
	}
	defer jr.Close()

	header, err := jr.ReadSession(ctx, opts.Session)
	if errors.Is(err, journal.ErrNotFound) {
		return NewExitError(ExitCommandError, fmt.Sprintf("session not found: %s", opts.Session))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}

	seq := opts.Seq
	if seq <= 0 {
		summaries, err := jr.Sessions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list sessions", err)
		}
		for _, s := range summaries {
			if s.ID == header.ID {
				seq = s.LastSeq
			}
		}
	}

	state, err := jr.StateAt(ctx, header.ID, seq)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to restore state", err)
	}
	hash, err := ir.StateHash(state)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash state", err)
	}

	result := ReplayResult{
		Session: header.ID,
		Seq:     seq,
		State:   state,
		Hash:    hash,
	}

	brokenAt, err := jr.Verify(ctx, header.ID)
	if err != nil && brokenAt == 0 {
		return WrapExitError(ExitCommandError, "failed to verify journal", err)
	}
	result.Intact = brokenAt == 0
	result.BrokenAt = brokenAt

	if opts.Specs != "" {
		if err := reexecute(ctx, jr, header, seq, opts, cmd, &result); err != nil {
			return err
		}
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// reexecute re-dispatches the session into a fresh store holding only the
// spec reducers, seeded with the session's initial state.
func reexecute(ctx context.Context, jr *journal.Journal, header journal.Session, seq int64, opts *ReplayOptions, cmd *cobra.Command, result *ReplayResult) error {
	specs, err := loadSpecs(opts.Specs)
	if err != nil {
		return err
	}
	result.Reexecuted = true
	result.SpecMismatch = header.SpecHash != "" && header.SpecHash != specs.Hash

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.Verbose {
		logger = newLogger(opts.RootOptions, cmd.ErrOrStderr())
	}

	st, err := engine.New(engine.Config{InitialState: header.InitialState},
		engine.WithLogger(logger),
		engine.WithSessionGenerator(engine.NewFixedGenerator(header.ID)),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create store", err)
	}
	defer st.Close()

	for _, f := range specs.Specs.Features {
		if err := st.RegisterFeature(f.Key, compiler.BuildReducer(f)); err != nil {
			return WrapExitError(ExitCommandError, "failed to register feature", err)
		}
	}

	n, err := journal.Redispatch(ctx, jr, header.ID, seq, st)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to re-dispatch session", err)
	}
	replayHash, err := ir.StateHash(st.State())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash replayed state", err)
	}

	result.Dispatched = n
	result.ReplayHash = replayHash
	result.Reproduced = replayHash == result.Hash
	return nil
}

func (r ReplayResult) ok() bool {
	return r.Intact && (!r.Reexecuted || r.Reproduced)
}

func (r ReplayResult) failure() string {
	if !r.Intact {
		return fmt.Sprintf("journal corrupted at seq %d", r.BrokenAt)
	}
	return "re-execution diverged from the recorded state"
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status:  "ok",
		Data:    result,
		Session: result.Session,
	}
	if !result.ok() {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_REPLAY",
			Message: result.failure(),
		}
	}

	if err := writeJSON(cmd.OutOrStdout(), response); err != nil {
		return err
	}
	if !result.ok() {
		return NewExitError(ExitFailure, result.failure())
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Session: %s\n", result.Session)
	fmt.Fprintf(w, "State at seq %d: %s\n", result.Seq, result.Hash)
	if verbose {
		if data, err := ir.MarshalCanonical(result.State); err == nil {
			fmt.Fprintf(w, "  %s\n", data)
		}
	}

	if result.Intact {
		fmt.Fprintln(w, "✓ Journal intact")
	} else {
		fmt.Fprintf(w, "✗ Journal corrupted at seq %d\n", result.BrokenAt)
	}

	if result.Reexecuted {
		if result.SpecMismatch {
			fmt.Fprintln(w, "! Specs differ from the ones the session was recorded with")
		}
		if result.Reproduced {
			fmt.Fprintf(w, "✓ Re-executed %d action(s), state reproduced\n", result.Dispatched)
		} else {
			fmt.Fprintf(w, "✗ Re-executed %d action(s), state diverged: %s\n", result.Dispatched, result.ReplayHash)
		}
	}

	if !result.ok() {
		return NewExitError(ExitFailure, result.failure())
	}
	return nil
}
