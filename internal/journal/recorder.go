package journal

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/minirx/internal/engine"
	"github.com/roach88/minirx/internal/stream"
)

// Recorder writes a store's transitions to a journal.
//
// Write failures are logged and counted; recording continues with the next
// transition so a full disk never stalls the store.
type Recorder struct {
	journal *Journal
	logger  *slog.Logger
	sub     stream.Subscription
	failed  atomic.Int64
	written atomic.Int64
}

// RecorderOption configures a Recorder.
type RecorderOption func(*recorderConfig)

type recorderConfig struct {
	logger   *slog.Logger
	specHash string
}

// WithRecorderLogger sets the logger for write failures.
func WithRecorderLogger(l *slog.Logger) RecorderOption {
	return func(c *recorderConfig) {
		c.logger = l
	}
}

// WithSpecHash stores the hash of the declarative specs the store was
// built from, so replays can check they run the same program.
func WithSpecHash(h string) RecorderOption {
	return func(c *recorderConfig) {
		c.specHash = h
	}
}

// Record writes the session header for s and subscribes to its
// transitions. Call Stop (or close the store) to end recording.
func Record(ctx context.Context, j *Journal, s *engine.Store, opts ...RecorderOption) (*Recorder, error) {
	cfg := recorderConfig{logger: s.Logger()}
	for _, opt := range opts {
		opt(&cfg)
	}

	err := j.WriteSession(ctx, Session{
		ID:           s.Session(),
		SpecHash:     cfg.specHash,
		InitialState: s.State(),
	})
	if err != nil {
		return nil, fmt.Errorf("record: %w", err)
	}

	r := &Recorder{journal: j, logger: cfg.logger.With("session", s.Session())}
	r.sub = s.Transitions().Subscribe(func(tr engine.Transition) {
		if err := r.write(ctx, tr); err != nil {
			r.failed.Add(1)
			r.logger.Error("journal write failed, transition skipped",
				"seq", tr.Seq,
				"action", tr.Action.Type,
				"error", err.Error(),
			)
			return
		}
		r.written.Add(1)
	})
	return r, nil
}

// Stop ends recording.
func (r *Recorder) Stop() {
	r.sub.Unsubscribe()
}

// Written returns the number of transitions recorded.
func (r *Recorder) Written() int64 {
	return r.written.Load()
}

// Failed returns the number of transitions that could not be written.
func (r *Recorder) Failed() int64 {
	return r.failed.Load()
}

func (r *Recorder) write(ctx context.Context, tr engine.Transition) error {
	rec, err := NewRecord(tr.Session, tr.Seq, tr.Action, tr.State, tr.Changed)
	if err != nil {
		return err
	}
	return r.journal.WriteTransition(ctx, rec)
}
