package engine

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/minirx/internal/ir"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, cfg Config, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	s, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

// counterReducer increments "counter" on action type "counter".
func counterReducer(initial int) Reducer {
	return ReducerFor(map[string]any{"counter": initial}, func(s map[string]any, a ir.Action) map[string]any {
		if a.Type != "counter" {
			return s
		}
		return map[string]any{"counter": s["counter"].(int) + 1}
	})
}

// recorder collects actions from the action stream.
type recorder struct {
	types []string
}

func (r *recorder) observe(a ir.Action) {
	r.types = append(r.types, a.Type)
}

// hookExtension records hook calls and can be told to fail.
type hookExtension struct {
	name    string
	log     *[]string
	failOn  string
	panicOn string
	host    Host
	states  []ir.State
}

func (h *hookExtension) Name() string { return h.name }

func (h *hookExtension) Init(host Host) error {
	h.host = host
	*h.log = append(*h.log, h.name+":init")
	return nil
}

func (h *hookExtension) OnActionAndState(a ir.Action, s ir.State) error {
	*h.log = append(*h.log, h.name+":"+a.Type)
	h.states = append(h.states, s)
	if a.Type == h.panicOn {
		panic("boom")
	}
	if a.Type == h.failOn {
		return io.ErrUnexpectedEOF
	}
	return nil
}
