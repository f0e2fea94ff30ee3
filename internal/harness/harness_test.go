package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/minirx/internal/ir"
)

func loadTestdata(t *testing.T, name string) *Scenario {
	t.Helper()
	dir := filepath.Join("testdata", "scenarios")
	scenario, err := LoadScenarioWithBasePath(filepath.Join(dir, name), dir)
	require.NoError(t, err)
	return scenario
}

func counterSpecPath() string {
	return filepath.Join("testdata", "specs", "counter.cue")
}

func TestRun_CounterBasic(t *testing.T) {
	result, err := Run(loadTestdata(t, "counter_basic.yaml"))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	assert.Equal(t, "session-counter", result.Session)
	assert.Len(t, result.SpecHash, 64)
	require.Len(t, result.Trace, 4)
	assert.Equal(t, ir.FeatureInitType("counter"), result.Trace[0].Action)
	assert.Equal(t, int64(2), result.Trace[0].Seq)
	assert.False(t, result.Trace[3].Changed, "unhandled action leaves state unchanged")
	for _, ev := range result.Trace {
		assert.Len(t, ev.StateHash, 64)
	}
	assert.Equal(t, ir.State{"counter": map[string]any{"count": int64(6)}}, result.State)
}

func TestRun_EffectsSettleBetweenSteps(t *testing.T) {
	result, err := Run(loadTestdata(t, "todo_effects.yaml"))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 3)
	assert.Equal(t, ir.EffectSetStateType("todo", "persist"), result.Trace[2].Action)
}

func TestRun_SeededStateAndUpdateState(t *testing.T) {
	result, err := Run(loadTestdata(t, "seeded_state.yaml"))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	// Seeded slice already present, so registering the feature is a no-op.
	assert.False(t, result.Trace[0].Changed)
}

func TestRun_DefaultSession(t *testing.T) {
	result, err := Run(&Scenario{
		Name:       "default_session",
		Specs:      []string{counterSpecPath()},
		Flow:       []Step{{Dispatch: "increment"}},
		Assertions: []Assertion{{Type: AssertTraceCount, Action: "increment", Count: 1}},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass)
	assert.Equal(t, DefaultSession, result.Session)
}

func TestRun_StepExpectationFailure(t *testing.T) {
	result, err := Run(&Scenario{
		Name:  "expect_failure",
		Specs: []string{counterSpecPath()},
		Flow: []Step{
			{Dispatch: "increment", Expect: map[string]any{"counter": map[string]any{"count": 2}}},
			{Dispatch: "increment", Expect: map[string]any{"missing": 1}},
		},
		Assertions: []Assertion{{Type: AssertTraceCount, Action: "increment", Count: 2}},
	})
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], `flow[0]: state counter = {"count":1}, want {"count":2}`)
	assert.Contains(t, result.Errors[1], `flow[1]: expected state key "missing"`)
}

func TestRun_AssertionFailure(t *testing.T) {
	result, err := Run(&Scenario{
		Name:       "assertion_failure",
		Specs:      []string{counterSpecPath()},
		Flow:       []Step{{Dispatch: "increment"}},
		Assertions: []Assertion{{Type: AssertTraceCount, Action: "increment", Count: 3}},
	})
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "3 occurrences of increment")
}

func TestRun_InvalidSpecs(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.cue")
	require.NoError(t, os.WriteFile(bad, []byte(`effects: e: {of_type: ["A"], mode: "parallel"}`), 0o644))

	_, err := Run(&Scenario{
		Name:       "bad",
		Specs:      []string{bad},
		Flow:       []Step{{Dispatch: "A"}},
		Assertions: []Assertion{{Type: AssertTraceCount, Action: "A", Count: 1}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile")
}

func TestLoadSpecs_MergesAndValidates(t *testing.T) {
	set, hash, err := LoadSpecs([]string{
		counterSpecPath(),
		filepath.Join("testdata", "specs", "todo.cue"),
	})
	require.NoError(t, err)
	assert.Len(t, set.Features, 2)
	assert.Len(t, set.Effects, 1)
	assert.Len(t, hash, 64)

	_, _, err = LoadSpecs([]string{counterSpecPath(), counterSpecPath()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid specs")
}
