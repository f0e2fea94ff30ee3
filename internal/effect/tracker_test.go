package effect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/minirx/internal/ir"
	"github.com/roach88/minirx/internal/stream"
)

func TestTrackerZeroValueIsIdle(t *testing.T) {
	var tr Tracker
	assert.NoError(t, tr.Wait(context.Background()))
	assert.Equal(t, 0, tr.Count())
}

func TestTrackerAddWhileWaiting(t *testing.T) {
	var tr Tracker
	tr.Add(1)

	done := make(chan struct{})
	go func() {
		assert.NoError(t, tr.Wait(context.Background()))
		close(done)
	}()

	// Work handed on before the first unit finishes keeps Wait blocked.
	tr.Add(1)
	tr.Done()
	select {
	case <-done:
		t.Fatal("Wait returned with work outstanding")
	case <-time.After(20 * time.Millisecond):
	}

	tr.Done()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return once idle")
	}

	// The tracker can go busy again after reaching zero.
	tr.Add(2)
	assert.Equal(t, 2, tr.Count())
	tr.Add(-2)
	assert.NoError(t, tr.Wait(context.Background()))
}

func TestTrackerWaitHonoursContext(t *testing.T) {
	var tr Tracker
	tr.Add(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tr.Wait(ctx), context.DeadlineExceeded)
}

func TestTrackerNegativeCountPanics(t *testing.T) {
	var tr Tracker
	assert.Panics(t, func() { tr.Done() })
}

// chainSink re-triggers the source from its Dispatch, the way a store
// feeds effect results back into the action stream.
type chainSink struct {
	src *stream.Subject[ir.Action]
	got *sink
}

func (c *chainSink) Dispatch(a ir.Action) {
	c.got.Dispatch(a)
	c.src.Next(a)
}

func TestWaitCoversInvocationsStartedByResults(t *testing.T) {
	src := stream.NewSubject[ir.Action]()
	got := &sink{}
	shared := &Tracker{}
	r := newTestRunner(&chainSink{src: src, got: got}, WithTracker(shared))
	defer r.Close()

	_, err := r.Register(src, Effect{
		Types: []string{"a", "b"},
		Mode:  Merge,
		Handler: func(_ context.Context, a ir.Action) ([]ir.Action, error) {
			time.Sleep(5 * time.Millisecond)
			next := map[string]string{"a": "b", "b": "c"}[a.Type]
			return []ir.Action{{Type: next}}, nil
		},
	})
	require.NoError(t, err)

	src.Next(ir.Action{Type: "a"})
	r.Wait()
	assert.Equal(t, []string{"b", "c"}, got.types())
	assert.Equal(t, 0, r.InFlight())
	assert.Equal(t, 0, shared.Count())
}
