package devtools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/roach88/minirx/internal/engine"
	"github.com/roach88/minirx/internal/ir"
)

// DefaultName is the instance name shown by clients.
const DefaultName = "MiniRx - Redux Dev Tools"

// DefaultMaxAge is the number of frames kept for late-joining clients.
const DefaultMaxAge = 50

// Conn is one client connection.
type Conn interface {
	Send(ctx context.Context, f Frame) error
	Receive(ctx context.Context) (Message, error)
	Close() error
}

// DefaultSendBuffer is the number of live frames queued per client before
// the client is considered stalled and dropped.
const DefaultSendBuffer = 256

// Options configures a Bridge.
type Options struct {
	// Name identifies the store instance. Default: DefaultName.
	Name string

	// MaxAge bounds the replay history. Default: DefaultMaxAge.
	MaxAge int

	// TraceLimit attaches up to this many stack frames of the dispatching
	// goroutine to each ACTION frame. Zero disables traces.
	TraceLimit int

	// SendBuffer bounds each client's queue of live frames.
	// Default: DefaultSendBuffer.
	SendBuffer int

	Logger *slog.Logger
}

// Bridge is a store extension that mirrors transitions to clients.
//
// Thread-safety: Serve and Handle may be called from any goroutine. Frames
// reach each client through its own writer goroutine; a store transition
// never waits on a network write.
type Bridge struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	host    engine.Host
	session string
	seq     int64
	history []Frame
	clients map[Conn]*client
}

// client is one attached connection and its outbound queue.
type client struct {
	conn   Conn
	out    chan Frame
	done   chan struct{}
	exited chan struct{}
	once   sync.Once
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

// NewBridge creates a debugging bridge.
func NewBridge(opts Options) *Bridge {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		opts:    opts,
		logger:  logger.With("extension", "devtools"),
		clients: make(map[Conn]*client),
	}
}

// Name implements engine.Named.
func (b *Bridge) Name() string { return "devtools" }

// Init implements engine.Extension.
func (b *Bridge) Init(h engine.Host) error {
	b.mu.Lock()
	b.host = h
	b.session = h.Session()
	b.mu.Unlock()
	return nil
}

// OnActionAndState implements engine.Extension. External replacements
// (ir.UpdateStateType) are not mirrored: they come from a jump the client
// already knows about.
func (b *Bridge) OnActionAndState(a ir.Action, s ir.State) error {
	if a.Type == ir.UpdateStateType {
		return nil
	}
	state, err := ir.MarshalCanonical(s)
	if err != nil {
		return fmt.Errorf("devtools: encode state: %w", err)
	}
	f := Frame{
		Type:   FrameAction,
		Name:   b.opts.Name,
		Action: &FrameAction{Type: a.Type, Payload: a.Payload},
		State:  state,
		Trace:  b.trace(),
	}

	var stalled []Conn
	b.mu.Lock()
	b.seq++
	f.Seq = b.seq
	f.Session = b.session
	b.history = append(b.history, f)
	if len(b.history) > b.opts.MaxAge {
		b.history = b.history[len(b.history)-b.opts.MaxAge:]
	}
	for conn, cl := range b.clients {
		select {
		case cl.out <- f:
		default:
			stalled = append(stalled, conn)
		}
	}
	b.mu.Unlock()

	for _, conn := range stalled {
		b.logger.Warn("client dropped", "error", "send buffer full")
		b.detach(conn)
	}
	return nil
}

// History returns the frames kept for replay, oldest first.
func (b *Bridge) History() []Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Frame(nil), b.history...)
}

// ClientCount returns the number of connected clients.
func (b *Bridge) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Serve attaches c, sends it the current state and the retained history,
// and handles its messages until ctx is done or the connection fails.
// The connection is closed on return.
func (b *Bridge) Serve(ctx context.Context, c Conn) error {
	cl, err := b.attach(c)
	if err != nil {
		c.Close()
		return err
	}
	go b.write(ctx, cl)
	defer func() {
		b.detach(c)
		<-cl.exited
	}()
	b.logger.Debug("client connected")

	for {
		msg, err := c.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		b.Handle(msg)
	}
}

// Handle applies one client message. Unknown messages are ignored.
func (b *Bridge) Handle(msg Message) {
	b.mu.Lock()
	host := b.host
	b.mu.Unlock()
	if host == nil {
		return
	}

	switch msg.Type {
	case MsgDispatch:
		switch msg.instruction() {
		case MsgJumpToState, MsgJumpToAction:
			state, err := parseState(msg.State)
			if err != nil {
				b.logger.Warn("jump ignored", "error", err.Error())
				return
			}
			host.UpdateState(state)
		}

	case MsgAction:
		a, err := parseAction(msg.Payload)
		if err != nil {
			b.logger.Warn("action from client ignored", "error", err.Error())
			return
		}
		host.Dispatch(a)
	}
}

// attach queues the INIT frame and the backlog, then registers c. Both
// happen under the lock so no live frame can overtake the backlog.
func (b *Bridge) attach(c Conn) (*client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.host == nil {
		return nil, errors.New("devtools: bridge is not attached to a store")
	}
	init, err := b.initFrame()
	if err != nil {
		return nil, err
	}
	cl := &client{
		conn:   c,
		out:    make(chan Frame, 1+len(b.history)+b.opts.SendBuffer),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	cl.out <- init
	for _, f := range b.history {
		cl.out <- f
	}
	b.clients[c] = cl
	return cl, nil
}

// write drains the client's queue onto the connection until the client
// is detached or a send fails.
func (b *Bridge) write(ctx context.Context, cl *client) {
	defer close(cl.exited)
	for {
		select {
		case <-cl.done:
			return
		case <-ctx.Done():
			return
		case f := <-cl.out:
			if err := cl.conn.Send(ctx, f); err != nil {
				b.logger.Warn("client dropped", "error", err.Error())
				b.detach(cl.conn)
				return
			}
		}
	}
}

func (b *Bridge) initFrame() (Frame, error) {
	state, err := ir.MarshalCanonical(b.host.State())
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameInit, Name: b.opts.Name, Session: b.session, State: state}, nil
}

func (b *Bridge) detach(c Conn) {
	b.mu.Lock()
	cl, ok := b.clients[c]
	delete(b.clients, c)
	b.mu.Unlock()
	if ok {
		cl.stop()
		c.Close()
	}
}

func (b *Bridge) trace() []string {
	if b.opts.TraceLimit <= 0 {
		return nil
	}
	pcs := make([]uintptr, b.opts.TraceLimit)
	// Skip runtime.Callers, trace and OnActionAndState.
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	out := make([]string, 0, n)
	for {
		fr, more := frames.Next()
		out = append(out, fmt.Sprintf("%s (%s:%d)", fr.Function, fr.File, fr.Line))
		if !more {
			break
		}
	}
	return out
}

// parseState decodes the serialized tree sent with a jump instruction.
func parseState(s string) (ir.State, error) {
	if s == "" {
		return nil, errors.New("missing state")
	}
	v, err := ir.UnmarshalCanonical([]byte(s))
	if err != nil {
		return nil, err
	}
	tree, ok := ir.AsState(v)
	if !ok {
		return nil, fmt.Errorf("state is %T, want object", v)
	}
	return tree, nil
}

// parseAction accepts either an action object or a JSON string holding one.
func parseAction(raw json.RawMessage) (ir.Action, error) {
	var text string
	if json.Unmarshal(raw, &text) == nil {
		raw = json.RawMessage(text)
	}
	var a struct {
		Type    string `json:"type"`
		Payload any    `json:"payload"`
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		return ir.Action{}, err
	}
	if a.Type == "" {
		return ir.Action{}, errors.New("action type is required")
	}
	return ir.Action{Type: a.Type, Payload: a.Payload}, nil
}
