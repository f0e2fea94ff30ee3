package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/minirx/internal/ir"
	"github.com/roach88/minirx/internal/query"
)

// SessionSummary is one line of the session listing.
type SessionSummary struct {
	ID          string
	Transitions int
	LastSeq     int64
}

// ReadSession returns a session's header.
// Returns ErrNotFound if the session does not exist.
func (j *Journal) ReadSession(ctx context.Context, id string) (Session, error) {
	var (
		s       Session
		initial string
	)
	err := j.db.QueryRowContext(ctx, `
		SELECT id, engine_version, journal_version, spec_hash, initial_state
		FROM sessions
		WHERE id = ?
	`, id).Scan(&s.ID, &s.EngineVersion, &s.JournalVersion, &s.SpecHash, &initial)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("read session: %w", err)
	}

	s.InitialState, err = decodeState(initial)
	if err != nil {
		return Session{}, fmt.Errorf("read session: %w", err)
	}
	return s, nil
}

// Sessions lists all sessions ordered by id.
// Returns an empty slice (not nil) if the journal is empty.
func (j *Journal) Sessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT s.id, COUNT(t.seq), COALESCE(MAX(t.seq), 0)
		FROM sessions s
		LEFT JOIN transitions t ON t.session_id = s.id
		GROUP BY s.id
		ORDER BY s.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	out := []SessionSummary{}
	for rows.Next() {
		var s SessionSummary
		if err := rows.Scan(&s.ID, &s.Transitions, &s.LastSeq); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// ReadTransitions returns all transitions of a session ordered by seq.
// Returns an empty slice (not nil) if the session has none.
func (j *Journal) ReadTransitions(ctx context.Context, session string) ([]Record, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT session_id, seq, action_id, action_type, payload, state, state_hash, changed
		FROM transitions
		WHERE session_id = ?
		ORDER BY seq ASC
	`, session)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return out, nil
}

// Find returns the transitions of a session matching p, ordered by seq.
// A nil predicate matches every transition.
func (j *Journal) Find(ctx context.Context, session string, p query.Predicate) ([]Record, error) {
	where, params, err := query.Compile(p)
	if err != nil {
		return nil, err
	}
	stmt := `
		SELECT session_id, seq, action_id, action_type, payload, state, state_hash, changed
		FROM transitions
		WHERE session_id = ?`
	if where != "" {
		stmt += " AND " + where
	}
	stmt += " ORDER BY seq ASC"

	rows, err := j.db.QueryContext(ctx, stmt, append([]any{session}, params...)...)
	if err != nil {
		return nil, fmt.Errorf("find transitions: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return out, nil
}

// StateAt returns the state tree as of seq: the state of the last
// transition with seq <= the given one, or the session's initial state if
// there is none.
//
// Returns ErrNotFound if the session does not exist.
func (j *Journal) StateAt(ctx context.Context, session string, seq int64) (ir.State, error) {
	var state string
	err := j.db.QueryRowContext(ctx, `
		SELECT state
		FROM transitions
		WHERE session_id = ? AND seq <= ?
		ORDER BY seq DESC
		LIMIT 1
	`, session, seq).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		s, err := j.ReadSession(ctx, session)
		if err != nil {
			return nil, err
		}
		return s.InitialState, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state at %d: %w", seq, err)
	}
	return decodeState(state)
}

// Verify recomputes every record's action id and state hash. It returns
// the seq of the first record that does not match, or 0 when all match.
func (j *Journal) Verify(ctx context.Context, session string) (int64, error) {
	records, err := j.ReadTransitions(ctx, session)
	if err != nil {
		return 0, err
	}
	for _, r := range records {
		want, err := NewRecord(r.Session, r.Seq, r.Action, r.State, r.Changed)
		if err != nil {
			return r.Seq, err
		}
		if want.ActionID != r.ActionID || want.StateHash != r.StateHash {
			return r.Seq, nil
		}
	}
	return 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		r       Record
		payload string
		state   string
	)
	if err := row.Scan(&r.Session, &r.Seq, &r.ActionID, &r.Action.Type, &payload, &state, &r.StateHash, &r.Changed); err != nil {
		return Record{}, fmt.Errorf("scan transition: %w", err)
	}

	p, err := ir.UnmarshalCanonical([]byte(payload))
	if err != nil {
		return Record{}, fmt.Errorf("decode payload at seq %d: %w", r.Seq, err)
	}
	r.Action.Payload = p

	r.State, err = decodeState(state)
	if err != nil {
		return Record{}, fmt.Errorf("decode state at seq %d: %w", r.Seq, err)
	}
	return r, nil
}

func decodeState(data string) (ir.State, error) {
	v, err := ir.UnmarshalCanonical([]byte(data))
	if err != nil {
		return nil, err
	}
	tree, ok := ir.AsState(v)
	if !ok {
		return nil, fmt.Errorf("state is %T, want object", v)
	}
	return tree, nil
}
