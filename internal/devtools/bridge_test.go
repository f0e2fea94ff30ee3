package devtools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/minirx/internal/engine"
	"github.com/roach88/minirx/internal/ir"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeConn struct {
	mu       sync.Mutex
	sent     []Frame
	in       chan Message
	failSend bool
	closed   bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan Message, 8)}
}

func (c *fakeConn) Send(_ context.Context, f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend {
		return errors.New("broken pipe")
	}
	c.sent = append(c.sent, f)
	return nil
}

func (c *fakeConn) Receive(ctx context.Context) (Message, error) {
	select {
	case m, ok := <-c.in:
		if !ok {
			return Message{}, io.EOF
		}
		return m, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) frames() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Frame(nil), c.sent...)
}

// reducerCalls counts how often the counter reducer runs.
type reducerCalls struct {
	mu sync.Mutex
	n  int
}

func (r *reducerCalls) get() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

func newStore(t *testing.T, b *Bridge) (*engine.Store, *reducerCalls) {
	t.Helper()
	calls := &reducerCalls{}
	counter := engine.ReducerFor(map[string]any{"n": 0}, func(s map[string]any, a ir.Action) map[string]any {
		calls.mu.Lock()
		calls.n++
		calls.mu.Unlock()
		if a.Type != "inc" {
			return s
		}
		return map[string]any{"n": s["n"].(int) + 1}
	})
	s, err := engine.New(engine.Config{
		Reducers:   map[string]engine.Reducer{"counter": counter},
		Extensions: []engine.Extension{b},
	}, engine.WithLogger(quiet()))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, calls
}

func serve(t *testing.T, b *Bridge, c Conn) (cancel func(), done <-chan error) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	before := b.ClientCount()
	go func() { errc <- b.Serve(ctx, c) }()
	require.Eventually(t, func() bool { return b.ClientCount() == before+1 }, time.Second, 5*time.Millisecond)
	return stop, errc
}

// waitFrames blocks until c has received at least n frames.
func waitFrames(t *testing.T, c *fakeConn, n int) []Frame {
	t.Helper()
	require.Eventually(t, func() bool { return len(c.frames()) >= n }, time.Second, time.Millisecond)
	return c.frames()
}

func dispatchJump(kind string, state string) Message {
	return Message{
		Type:    MsgDispatch,
		Payload: json.RawMessage(`{"type":"` + kind + `"}`),
		State:   state,
	}
}

func TestBridgeSendsInitAndBacklog(t *testing.T) {
	b := NewBridge(Options{Logger: quiet(), MaxAge: 2})
	s, _ := newStore(t, b)

	s.Dispatch(ir.Action{Type: "inc"})
	s.Dispatch(ir.Action{Type: "inc"})
	require.Len(t, b.History(), 2, "init frame trimmed by max age")

	c := newFakeConn()
	stop, _ := serve(t, b, c)
	defer stop()

	frames := waitFrames(t, c, 3)
	require.Len(t, frames, 3)
	assert.Equal(t, FrameInit, frames[0].Type)
	assert.Equal(t, DefaultName, frames[0].Name)
	assert.Equal(t, s.Session(), frames[0].Session)
	assert.JSONEq(t, `{"counter":{"n":2}}`, string(frames[0].State))
	assert.Equal(t, "inc", frames[1].Action.Type)
	assert.Equal(t, int64(2), frames[1].Seq)
	assert.Equal(t, int64(3), frames[2].Seq)
}

func TestBridgeStreamsLiveActions(t *testing.T) {
	b := NewBridge(Options{Logger: quiet(), Name: "test-store"})
	s, _ := newStore(t, b)

	c := newFakeConn()
	stop, _ := serve(t, b, c)
	defer stop()

	backlog := len(waitFrames(t, c, 1+len(b.History())))
	s.Dispatch(ir.Action{Type: "inc", Payload: map[string]any{"by": 1}})

	frames := waitFrames(t, c, backlog+1)
	last := frames[len(frames)-1]
	assert.Equal(t, FrameAction, last.Type)
	assert.Equal(t, "test-store", last.Name)
	assert.Equal(t, "inc", last.Action.Type)
	assert.Equal(t, map[string]any{"by": 1}, last.Action.Payload)
	assert.JSONEq(t, `{"counter":{"n":1}}`, string(last.State))
}

func TestJumpReplacesStateWithoutReducers(t *testing.T) {
	for _, kind := range []string{MsgJumpToState, MsgJumpToAction} {
		t.Run(kind, func(t *testing.T) {
			b := NewBridge(Options{Logger: quiet()})
			s, calls := newStore(t, b)
			s.Dispatch(ir.Action{Type: "inc"})

			var seen []map[string]any
			engine.Select(s, func(st ir.State) map[string]any {
				m, _ := engine.Coerce[map[string]any](st["counter"])
				return m
			}).Subscribe(func(v map[string]any) { seen = append(seen, v) })

			before := calls.get()
			history := b.History()
			b.Handle(dispatchJump(kind, `{"counter":{"n":9}}`))

			assert.Equal(t, before, calls.get(), "jump must not run reducers")
			require.Len(t, seen, 2)
			assert.Equal(t, map[string]any{"n": int64(9)}, seen[1])
			assert.Equal(t, history, b.History(), "a jump is not echoed back as an action")
		})
	}
}

func TestUnsupportedMessagesIgnored(t *testing.T) {
	b := NewBridge(Options{Logger: quiet()})
	s, _ := newStore(t, b)
	before := s.State()

	b.Handle(dispatchJump("TOGGLE_ACTION", `{"counter":{"n":5}}`))
	b.Handle(dispatchJump(MsgJumpToState, ``))
	b.Handle(dispatchJump(MsgJumpToState, `[1,2]`))
	b.Handle(dispatchJump(MsgJumpToState, `{broken`))
	b.Handle(Message{Type: "START"})
	b.Handle(Message{Type: MsgAction, Payload: json.RawMessage(`{"payload":1}`)})

	assert.True(t, ir.Same(before, s.State()))
}

func TestClientAction(t *testing.T) {
	b := NewBridge(Options{Logger: quiet()})
	s, _ := newStore(t, b)

	b.Handle(Message{Type: MsgAction, Payload: json.RawMessage(`"{\"type\":\"inc\"}"`)})
	b.Handle(Message{Type: MsgAction, Payload: json.RawMessage(`{"type":"inc"}`)})

	assert.Equal(t, 2, s.State()["counter"].(map[string]any)["n"])
}

func TestServeHandlesIncomingMessages(t *testing.T) {
	b := NewBridge(Options{Logger: quiet()})
	s, _ := newStore(t, b)

	c := newFakeConn()
	stop, done := serve(t, b, c)
	c.in <- dispatchJump(MsgJumpToState, `{"counter":{"n":4}}`)

	require.Eventually(t, func() bool {
		m, ok := s.State()["counter"].(map[string]any)
		return ok && m["n"] == int64(4)
	}, time.Second, 5*time.Millisecond)

	stop()
	assert.NoError(t, <-done)
	assert.Equal(t, 0, b.ClientCount())
}

func TestBrokenClientIsDropped(t *testing.T) {
	b := NewBridge(Options{Logger: quiet()})
	s, _ := newStore(t, b)

	c := newFakeConn()
	stop, _ := serve(t, b, c)
	defer stop()

	c.mu.Lock()
	c.failSend = true
	c.mu.Unlock()

	s.Dispatch(ir.Action{Type: "inc"})
	require.Eventually(t, func() bool { return b.ClientCount() == 0 }, time.Second, time.Millisecond)
	c.mu.Lock()
	assert.True(t, c.closed)
	c.mu.Unlock()
}

func TestJumpIsNotSentToClients(t *testing.T) {
	b := NewBridge(Options{Logger: quiet()})
	s, _ := newStore(t, b)

	c := newFakeConn()
	stop, _ := serve(t, b, c)
	defer stop()
	backlog := len(waitFrames(t, c, 1+len(b.History())))

	b.Handle(dispatchJump(MsgJumpToState, `{"counter":{"n":7}}`))
	s.Dispatch(ir.Action{Type: "other"})

	frames := waitFrames(t, c, backlog+1)
	require.Len(t, frames, backlog+1)
	last := frames[backlog]
	assert.Equal(t, "other", last.Action.Type)
	assert.JSONEq(t, `{"counter":{"n":7}}`, string(last.State))
}

// stalledConn blocks every Send until it is closed.
type stalledConn struct {
	*fakeConn
	release chan struct{}
	once    sync.Once
}

func newStalledConn() *stalledConn {
	return &stalledConn{fakeConn: newFakeConn(), release: make(chan struct{})}
}

func (c *stalledConn) Send(ctx context.Context, f Frame) error {
	select {
	case <-c.release:
		return errors.New("closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *stalledConn) Close() error {
	c.once.Do(func() { close(c.release) })
	return c.fakeConn.Close()
}

func TestStalledClientDoesNotBlockDispatch(t *testing.T) {
	b := NewBridge(Options{Logger: quiet(), SendBuffer: 4})
	s, _ := newStore(t, b)

	slow := newStalledConn()
	stopSlow, _ := serve(t, b, slow)
	defer stopSlow()

	finished := make(chan struct{})
	go func() {
		for range 20 {
			s.Dispatch(ir.Action{Type: "inc"})
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch blocked on a stalled client")
	}

	assert.Equal(t, 20, s.State()["counter"].(map[string]any)["n"])
	require.Eventually(t, func() bool { return b.ClientCount() == 0 }, time.Second, time.Millisecond, "stalled client dropped")

	c := newFakeConn()
	stop, _ := serve(t, b, c)
	defer stop()
	frames := waitFrames(t, c, 1)
	assert.JSONEq(t, `{"counter":{"n":20}}`, string(frames[0].State))
}

func TestServeRequiresStore(t *testing.T) {
	b := NewBridge(Options{Logger: quiet()})
	err := b.Serve(context.Background(), newFakeConn())
	assert.Error(t, err)
}

func TestTraceLimit(t *testing.T) {
	b := NewBridge(Options{Logger: quiet(), TraceLimit: 3})
	s, _ := newStore(t, b)
	s.Dispatch(ir.Action{Type: "inc"})

	h := b.History()
	trace := h[len(h)-1].Trace
	require.NotEmpty(t, trace)
	assert.LessOrEqual(t, len(trace), 3)

	plain := NewBridge(Options{Logger: quiet()})
	s2, _ := newStore(t, plain)
	s2.Dispatch(ir.Action{Type: "inc"})
	assert.Nil(t, plain.History()[0].Trace)
}

func TestWebsocketRoundTrip(t *testing.T) {
	b := NewBridge(Options{Logger: quiet()})
	s, _ := newStore(t, b)

	srv := httptest.NewServer(Handler(b))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	var init Frame
	require.NoError(t, ws.ReadJSON(&init))
	assert.Equal(t, FrameInit, init.Type)

	// Skip the backlog (the store's INIT action).
	for range b.History() {
		var f Frame
		require.NoError(t, ws.ReadJSON(&f))
	}

	s.Dispatch(ir.Action{Type: "inc"})
	var live Frame
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, ws.ReadJSON(&live))
	assert.Equal(t, "inc", live.Action.Type)

	require.NoError(t, ws.WriteJSON(dispatchJump(MsgJumpToState, `{"counter":{"n":42}}`)))
	require.Eventually(t, func() bool {
		m, ok := s.State()["counter"].(map[string]any)
		return ok && m["n"] == int64(42)
	}, 2*time.Second, 10*time.Millisecond)

	ws.Close()
	require.Eventually(t, func() bool { return b.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
