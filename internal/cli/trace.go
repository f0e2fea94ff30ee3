package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/minirx/internal/ir"
	"github.com/roach88/minirx/internal/journal"
	"github.com/roach88/minirx/internal/query"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string // optional - list sessions when empty
	Action   string   // optional - filter to specific action type
	Where    []string // optional - query expressions, all must match
}

// TraceEvent represents a single transition in the trace timeline.
type TraceEvent struct {
	Seq       int64  `json:"seq"`
	Action    string `json:"action"`
	Payload   any    `json:"payload,omitempty"`
	Changed   bool   `json:"changed"`
	StateHash string `json:"state_hash"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Session  string       `json:"session"`
	SpecHash string       `json:"spec_hash,omitempty"`
	Timeline []TraceEvent `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int   `json:"total_events"`
	Changed     int   `json:"changed"`
	Unchanged   int   `json:"unchanged"`
	LastSeq     int64 `json:"last_seq"`
}

// SessionList is the output of trace without --session.
type SessionList struct {
	Sessions []SessionInfo `json:"sessions"`
}

// SessionInfo is one recorded session.
type SessionInfo struct {
	ID          string `json:"id"`
	Transitions int    `json:"transitions"`
	LastSeq     int64  `json:"last_seq"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect recorded sessions",
		Long: `Inspect the transitions recorded in a journal.

Without --session, lists the recorded sessions. With --session, prints the
session's timeline: every dispatched action in order with its payload,
whether it changed the state, and the resulting state hash.

--where filters the timeline with field<op>value expressions over seq,
action, action_id, state_hash, changed, payload[.path] and state.path.
Operators are = ^= (prefix) > >= < <=. Repeated --where flags must all
match.

Examples:
  minirx trace --db ./minirx.db
  minirx trace --db ./minirx.db --session 0190...
  minirx trace --db ./minirx.db --session 0190... --action add --format json
  minirx trace --db ./minirx.db --session 0190... --where 'payload.amount>=3'
  minirx trace --db ./minirx.db --session 0190... --where 'action^=@mini-rx/todo/'`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session to trace")
	cmd.Flags().StringVar(&opts.Action, "action", "", "filter to a specific action type")
	cmd.Flags().StringArrayVar(&opts.Where, "where", nil, "filter expression, e.g. 'payload.amount>=3' (repeatable)")

	return cmd
}

// openJournal opens an existing journal. It refuses to create one.
func openJournal(path string) (*journal.Journal, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "journal not found", err)
	}
	j, err := journal.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	return j, nil
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	jr, err := openJournal(opts.Database)
	if err != nil {
		return err
	}
	defer jr.Close()

	if opts.Session == "" {
		summaries, err := jr.Sessions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list sessions", err)
		}
		list := SessionList{Sessions: make([]SessionInfo, len(summaries))}
		for i, s := range summaries {
			list.Sessions[i] = SessionInfo{ID: s.ID, Transitions: s.Transitions, LastSeq: s.LastSeq}
		}
		return outputSessions(cmd, opts, list)
	}

	header, err := jr.ReadSession(ctx, opts.Session)
	if errors.Is(err, journal.ErrNotFound) {
		return NewExitError(ExitCommandError, fmt.Sprintf("session not found: %s", opts.Session))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}

	filter, err := traceFilter(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid filter", err)
	}
	records, err := jr.Find(ctx, opts.Session, filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read transitions", err)
	}

	result := TraceResult{
		Session:  header.ID,
		SpecHash: header.SpecHash,
		Timeline: buildTimeline(records),
	}
	for _, e := range result.Timeline {
		result.Stats.TotalEvents++
		if e.Changed {
			result.Stats.Changed++
		} else {
			result.Stats.Unchanged++
		}
	}
	if len(records) > 0 {
		result.Stats.LastSeq = records[len(records)-1].Seq
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: result, Session: result.Session})
	}
	return outputTraceText(cmd, result, opts.Verbose)
}

// traceFilter combines --action and --where into one predicate.
func traceFilter(opts *TraceOptions) (query.Predicate, error) {
	var preds []query.Predicate
	if opts.Action != "" {
		preds = append(preds, query.Equals{Field: "action", Value: opts.Action})
	}
	for _, expr := range opts.Where {
		p, err := query.Parse(expr)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	switch len(preds) {
	case 0:
		return nil, nil
	case 1:
		return preds[0], nil
	}
	return query.And{Predicates: preds}, nil
}

// buildTimeline converts journal records to timeline events.
func buildTimeline(records []journal.Record) []TraceEvent {
	timeline := []TraceEvent{}
	for _, r := range records {
		timeline = append(timeline, TraceEvent{
			Seq:       r.Seq,
			Action:    r.Action.Type,
			Payload:   r.Action.Payload,
			Changed:   r.Changed,
			StateHash: r.StateHash,
		})
	}
	return timeline
}

func outputSessions(cmd *cobra.Command, opts *TraceOptions, list SessionList) error {
	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: list})
	}

	w := cmd.OutOrStdout()
	if len(list.Sessions) == 0 {
		fmt.Fprintln(w, "No sessions recorded.")
		return nil
	}
	fmt.Fprintf(w, "Sessions: %d\n\n", len(list.Sessions))
	for _, s := range list.Sessions {
		fmt.Fprintf(w, "  %s  %d transition(s), last seq %d\n", s.ID, s.Transitions, s.LastSeq)
	}
	return nil
}

// outputTraceText outputs the trace result as text.
func outputTraceText(cmd *cobra.Command, result TraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Session: %s\n", result.Session)
	if result.SpecHash != "" {
		fmt.Fprintf(w, "Spec hash: %s\n", result.SpecHash)
	}
	fmt.Fprintln(w)

	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "No transitions.")
		return nil
	}

	fmt.Fprintln(w, "Timeline:")
	for _, e := range result.Timeline {
		marker := "·"
		if e.Changed {
			marker = "●"
		}
		line := fmt.Sprintf("  [%d] %s %s", e.Seq, marker, e.Action)
		if e.Payload != nil {
			if data, err := ir.MarshalCanonical(e.Payload); err == nil {
				line += " " + string(data)
			}
		}
		fmt.Fprintln(w, line)
		if verbose {
			fmt.Fprintf(w, "      state %s\n", e.StateHash)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Stats: %d event(s), %d changed, %d unchanged\n",
		result.Stats.TotalEvents, result.Stats.Changed, result.Stats.Unchanged)
	return nil
}
