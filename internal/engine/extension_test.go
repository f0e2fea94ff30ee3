package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/minirx/internal/ir"
)

func TestExtension_HooksRunInRegistrationOrder(t *testing.T) {
	var log []string
	s := newTestStore(t, Config{})
	s.AddExtension(&hookExtension{name: "first", log: &log})
	s.AddExtension(&hookExtension{name: "second", log: &log})

	s.Dispatch(ir.Action{Type: "a"})

	assert.Equal(t, []string{
		"first:init",
		"second:init",
		"first:a",
		"second:a",
	}, log)
}

func TestExtension_FailureIsolated(t *testing.T) {
	var log []string
	failing := &hookExtension{name: "failing", log: &log, failOn: "a"}
	panicking := &hookExtension{name: "panicking", log: &log, panicOn: "a"}
	healthy := &hookExtension{name: "healthy", log: &log}

	s := newTestStore(t, Config{Extensions: []Extension{failing, panicking, healthy}})
	require.NoError(t, s.RegisterFeature("counter", counterReducer(0)))

	log = nil
	require.NotPanics(t, func() { s.Dispatch(ir.Action{Type: "a"}) })
	assert.Equal(t, []string{"failing:a", "panicking:a", "healthy:a"}, log)

	s.Dispatch(ir.Action{Type: "counter"})
	assert.Equal(t, map[string]any{"counter": 1}, s.State()["counter"], "state publication unaffected")
}

func TestExtension_SeesUpdateState(t *testing.T) {
	var log []string
	ext := &hookExtension{name: "dev", log: &log}
	s := newTestStore(t, Config{Extensions: []Extension{ext}})

	s.UpdateState(ir.State{"x": 1})
	assert.Equal(t, "dev:"+ir.UpdateStateType, log[len(log)-1])
	assert.Equal(t, ir.State{"x": 1}, ext.states[len(ext.states)-1])
}

func TestExtension_HostCanDispatchAndTimeTravel(t *testing.T) {
	var log []string
	ext := &hookExtension{name: "dev", log: &log}
	s := newTestStore(t, Config{Extensions: []Extension{ext}})
	require.NoError(t, s.RegisterFeature("counter", counterReducer(0)))

	ext.host.Dispatch(ir.Action{Type: "counter"})
	assert.Equal(t, map[string]any{"counter": 1}, ext.host.State()["counter"])

	ext.host.UpdateState(ir.State{"counter": map[string]any{"counter": 40}})
	s.Dispatch(ir.Action{Type: "counter"})
	assert.Equal(t, map[string]any{"counter": 41}, s.State()["counter"])
	assert.Equal(t, s.Session(), ext.host.Session())
}

type metaExtension struct {
	hookExtension
	calls int
}

func (m *metaExtension) MetaReducer() MetaReducer {
	return func(next Reducer) Reducer {
		return func(state any, a ir.Action) any {
			m.calls++
			return next(state, a)
		}
	}
}

func TestExtension_MetaReducerProvider(t *testing.T) {
	var log []string
	ext := &metaExtension{hookExtension: hookExtension{name: "meta", log: &log}}
	newTestStore(t, Config{Extensions: []Extension{ext}})

	assert.Equal(t, 1, ext.calls, "wraps the root reducer before INIT")
}

func TestExtension_DispatchFromHookIsQueued(t *testing.T) {
	s := newTestStore(t, Config{})
	rec := &recorder{}
	s.Actions().Subscribe(rec.observe)

	s.AddExtension(&dispatchingExtension{store: s})
	s.Dispatch(ir.Action{Type: "trigger"})

	assert.Equal(t, []string{"trigger", "followup"}, rec.types)
}

type dispatchingExtension struct {
	store *Store
}

func (d *dispatchingExtension) Init(Host) error { return nil }

func (d *dispatchingExtension) OnActionAndState(a ir.Action, _ ir.State) error {
	if a.Type == "trigger" {
		d.store.Dispatch(ir.Action{Type: "followup"})
	}
	return nil
}
