package journal

import (
	"context"
	"fmt"

	"github.com/roach88/minirx/internal/ir"
)

// Session describes one recorded store instance.
type Session struct {
	ID             string
	EngineVersion  string
	JournalVersion string
	SpecHash       string
	InitialState   ir.State
}

// Record is one journaled transition.
type Record struct {
	Session   string
	Seq       int64
	ActionID  string
	Action    ir.Action
	State     ir.State
	StateHash string
	Changed   bool
}

// NewRecord builds a record and computes its content-addressed fields.
func NewRecord(session string, seq int64, a ir.Action, s ir.State, changed bool) (Record, error) {
	id, err := ir.ActionID(a, seq)
	if err != nil {
		return Record{}, err
	}
	hash, err := ir.StateHash(s)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Session:   session,
		Seq:       seq,
		ActionID:  id,
		Action:    a,
		State:     s,
		StateHash: hash,
		Changed:   changed,
	}, nil
}

// WriteSession inserts a session row.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (j *Journal) WriteSession(ctx context.Context, s Session) error {
	initial, err := ir.MarshalCanonical(s.InitialState.Clone())
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	engineVersion := s.EngineVersion
	if engineVersion == "" {
		engineVersion = ir.EngineVersion
	}
	journalVersion := s.JournalVersion
	if journalVersion == "" {
		journalVersion = ir.JournalVersion
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO sessions (id, engine_version, journal_version, spec_hash, initial_state)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		s.ID,
		engineVersion,
		journalVersion,
		s.SpecHash,
		string(initial),
	)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// WriteTransition inserts a transition record.
// Uses ON CONFLICT(session_id, seq) DO NOTHING for idempotency; the session
// must exist (foreign key constraint).
func (j *Journal) WriteTransition(ctx context.Context, r Record) error {
	payload, err := ir.MarshalCanonical(r.Action.Payload)
	if err != nil {
		return fmt.Errorf("write transition: payload: %w", err)
	}
	state, err := ir.MarshalCanonical(r.State.Clone())
	if err != nil {
		return fmt.Errorf("write transition: state: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO transitions
		(session_id, seq, action_id, action_type, payload, state, state_hash, changed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`,
		r.Session,
		r.Seq,
		r.ActionID,
		r.Action.Type,
		string(payload),
		string(state),
		r.StateHash,
		r.Changed,
	)
	if err != nil {
		return fmt.Errorf("write transition: %w", err)
	}
	return nil
}
