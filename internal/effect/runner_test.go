package effect

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/minirx/internal/ir"
	"github.com/roach88/minirx/internal/stream"
)

type sink struct {
	mu  sync.Mutex
	got []string
}

func (s *sink) Dispatch(a ir.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, a.Type)
}

func (s *sink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.got...)
}

func newTestRunner(d Dispatcher, opts ...Option) *Runner {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewRunner(d, opts...)
}

func echo(suffix string) Handler {
	return Map(func(_ context.Context, a ir.Action) (ir.Action, error) {
		return ir.Action{Type: a.Type + suffix, Payload: a.Payload}, nil
	})
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", Inline, false},
		{"inline", Inline, false},
		{"merge", Merge, false},
		{"SWITCH", Switch, false},
		{"concat", Concat, false},
		{"exhaust", Exhaust, false},
		{"flat", Inline, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, mustParse(t, got.String()))
		})
	}
}

func mustParse(t *testing.T, s string) Mode {
	t.Helper()
	m, err := ParseMode(s)
	require.NoError(t, err)
	return m
}

func TestEffectMatches(t *testing.T) {
	e := Effect{Types: []string{"a", "b"}}
	assert.True(t, e.Matches(ir.Action{Type: "a"}))
	assert.False(t, e.Matches(ir.Action{Type: "c"}))

	e.Filter = func(a ir.Action) bool { return a.Payload != nil }
	assert.False(t, e.Matches(ir.Action{Type: "a"}))
	assert.True(t, e.Matches(ir.Action{Type: "a", Payload: 1}))

	all := Effect{}
	assert.True(t, all.Matches(ir.Action{Type: "anything"}))
	assert.True(t, OfType("x", "y")(ir.Action{Type: "y"}))
}

func TestRegisterValidation(t *testing.T) {
	r := newTestRunner(&sink{})
	src := stream.NewSubject[ir.Action]()

	_, err := r.Register(src, Effect{Name: "nohandler"})
	assert.Error(t, err)

	_, err = r.Register(src, Effect{Handler: echo("!"), Mode: Mode(42)})
	assert.Error(t, err)

	r.Close()
	_, err = r.Register(src, Effect{Handler: echo("!")})
	assert.Error(t, err)
}

func TestInlineDispatchesSynchronously(t *testing.T) {
	d := &sink{}
	r := newTestRunner(d)
	defer r.Close()
	src := stream.NewSubject[ir.Action]()

	_, err := r.Register(src, Effect{Types: []string{"ping"}, Handler: echo("/pong")})
	require.NoError(t, err)

	src.Next(ir.Action{Type: "ping"})
	src.Next(ir.Action{Type: "other"})
	assert.Equal(t, []string{"ping/pong"}, d.types())
}

func TestHandlerFailureKeepsSubscription(t *testing.T) {
	d := &sink{}
	var reported []*TransformError
	r := newTestRunner(d, WithErrorHook(func(err *TransformError) {
		reported = append(reported, err)
	}))
	defer r.Close()
	src := stream.NewSubject[ir.Action]()

	boom := errors.New("boom")
	_, err := r.Register(src, Effect{
		Name: "flaky",
		Handler: func(_ context.Context, a ir.Action) ([]ir.Action, error) {
			switch a.Payload {
			case "fail":
				return nil, boom
			case "panic":
				panic("kaboom")
			}
			return []ir.Action{{Type: "ok"}}, nil
		},
	})
	require.NoError(t, err)

	for _, p := range []string{"fail", "panic", "fail", "good"} {
		src.Next(ir.Action{Type: "go", Payload: p})
	}

	assert.Equal(t, []string{"ok"}, d.types())
	require.Len(t, reported, 3)
	assert.ErrorIs(t, reported[0], boom)
	assert.Equal(t, "kaboom", reported[1].Panic)
	assert.Equal(t, "flaky", reported[2].Effect)
	assert.Equal(t, "go", reported[2].ActionType)
}

func TestNoDispatchDropsResults(t *testing.T) {
	d := &sink{}
	r := newTestRunner(d)
	defer r.Close()
	src := stream.NewSubject[ir.Action]()

	var seen []string
	_, err := r.Register(src, Effect{
		NoDispatch: true,
		Handler: func(_ context.Context, a ir.Action) ([]ir.Action, error) {
			seen = append(seen, a.Type)
			return []ir.Action{{Type: "never"}}, nil
		},
	})
	require.NoError(t, err)

	src.Next(ir.Action{Type: "x"})
	assert.Equal(t, []string{"x"}, seen)
	assert.Empty(t, d.types())
}

func TestEmptyResultTypeIgnored(t *testing.T) {
	d := &sink{}
	r := newTestRunner(d)
	defer r.Close()
	src := stream.NewSubject[ir.Action]()

	_, err := r.Register(src, Effect{Handler: func(context.Context, ir.Action) ([]ir.Action, error) {
		return []ir.Action{{}, {Type: "real"}}, nil
	}})
	require.NoError(t, err)

	src.Next(ir.Action{Type: "x"})
	assert.Equal(t, []string{"real"}, d.types())
}

func TestMergeRunsConcurrently(t *testing.T) {
	d := &sink{}
	r := newTestRunner(d)
	defer r.Close()
	src := stream.NewSubject[ir.Action]()

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(2)
	_, err := r.Register(src, Effect{
		Mode: Merge,
		Handler: func(_ context.Context, a ir.Action) ([]ir.Action, error) {
			started.Done()
			<-release
			return []ir.Action{{Type: a.Type + "/done"}}, nil
		},
	})
	require.NoError(t, err)

	src.Next(ir.Action{Type: "a"})
	src.Next(ir.Action{Type: "b"})
	started.Wait()
	close(release)
	r.Wait()

	assert.ElementsMatch(t, []string{"a/done", "b/done"}, d.types())
}

func TestSwitchCancelsPrevious(t *testing.T) {
	d := &sink{}
	r := newTestRunner(d)
	defer r.Close()
	src := stream.NewSubject[ir.Action]()

	firstStarted := make(chan struct{})
	_, err := r.Register(src, Effect{
		Mode: Switch,
		Handler: func(ctx context.Context, a ir.Action) ([]ir.Action, error) {
			if a.Type == "first" {
				close(firstStarted)
				<-ctx.Done()
				return []ir.Action{{Type: "first/done"}}, nil
			}
			return []ir.Action{{Type: a.Type + "/done"}}, nil
		},
	})
	require.NoError(t, err)

	src.Next(ir.Action{Type: "first"})
	<-firstStarted
	src.Next(ir.Action{Type: "second"})
	r.Wait()

	assert.Equal(t, []string{"second/done"}, d.types())
}

func TestConcatPreservesOrder(t *testing.T) {
	d := &sink{}
	r := newTestRunner(d)
	defer r.Close()
	src := stream.NewSubject[ir.Action]()

	_, err := r.Register(src, Effect{
		Mode: Concat,
		Handler: func(_ context.Context, a ir.Action) ([]ir.Action, error) {
			// Earlier triggers sleep longer; order must still hold.
			if a.Type == "1" {
				time.Sleep(20 * time.Millisecond)
			}
			return []ir.Action{{Type: a.Type}}, nil
		},
	})
	require.NoError(t, err)

	for _, ty := range []string{"1", "2", "3"} {
		src.Next(ir.Action{Type: ty})
	}
	r.Wait()

	assert.Equal(t, []string{"1", "2", "3"}, d.types())
}

func TestExhaustDropsWhileBusy(t *testing.T) {
	d := &sink{}
	r := newTestRunner(d)
	defer r.Close()
	src := stream.NewSubject[ir.Action]()

	release := make(chan struct{})
	started := make(chan struct{}, 3)
	_, err := r.Register(src, Effect{
		Mode: Exhaust,
		Handler: func(_ context.Context, a ir.Action) ([]ir.Action, error) {
			started <- struct{}{}
			<-release
			return []ir.Action{{Type: a.Type}}, nil
		},
	})
	require.NoError(t, err)

	src.Next(ir.Action{Type: "first"})
	<-started
	src.Next(ir.Action{Type: "dropped"})
	close(release)
	r.Wait()

	src.Next(ir.Action{Type: "after"})
	r.Wait()

	assert.Equal(t, []string{"first", "after"}, d.types())
}

func TestUnsubscribeCancelsInFlight(t *testing.T) {
	d := &sink{}
	r := newTestRunner(d)
	defer r.Close()
	src := stream.NewSubject[ir.Action]()

	started := make(chan struct{})
	sub, err := r.Register(src, Effect{
		Mode: Merge,
		Handler: func(ctx context.Context, a ir.Action) ([]ir.Action, error) {
			close(started)
			<-ctx.Done()
			return []ir.Action{{Type: "late"}}, nil
		},
	})
	require.NoError(t, err)

	src.Next(ir.Action{Type: "go"})
	<-started
	sub.Unsubscribe()
	r.Wait()

	src.Next(ir.Action{Type: "go"})
	r.Wait()
	assert.Empty(t, d.types())
	assert.Equal(t, 0, src.ObserverCount())
}

func TestCloseStopsEverything(t *testing.T) {
	d := &sink{}
	r := newTestRunner(d)
	src := stream.NewSubject[ir.Action]()

	_, err := r.Register(src, Effect{Handler: echo("!")})
	require.NoError(t, err)
	_, err = r.Register(src, Effect{Handler: echo("?")})
	require.NoError(t, err)
	assert.Equal(t, 2, src.ObserverCount())

	r.Close()
	r.Close()
	assert.Equal(t, 0, src.ObserverCount())

	src.Next(ir.Action{Type: "x"})
	assert.Empty(t, d.types())
}

func TestTapProducesNothing(t *testing.T) {
	d := &sink{}
	r := newTestRunner(d)
	defer r.Close()
	src := stream.NewSubject[ir.Action]()

	var tapped int
	_, err := r.Register(src, Effect{Handler: Tap(func(context.Context, ir.Action) error {
		tapped++
		return nil
	})})
	require.NoError(t, err)

	src.Next(ir.Action{Type: "x"})
	src.Next(ir.Action{Type: "y"})
	assert.Equal(t, 2, tapped)
	assert.Empty(t, d.types())
}
