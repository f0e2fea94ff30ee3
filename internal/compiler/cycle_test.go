package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/minirx/internal/ir"
)

func emitting(name, emit string, ofType ...string) ir.EffectSpec {
	return ir.EffectSpec{
		Name:     name,
		OfType:   ofType,
		Emit:     &ir.EmitSpec{Type: emit},
		Dispatch: true,
	}
}

// TestAnalyzeCycles_Empty tests that empty input produces no warnings.
func TestAnalyzeCycles_Empty(t *testing.T) {
	warnings := AnalyzeCycles(nil)
	assert.NotNil(t, warnings)
	assert.Empty(t, warnings, "no effects should produce no warnings")
}

// TestAnalyzeCycles_DAG tests that a chain of effects produces no warnings.
func TestAnalyzeCycles_DAG(t *testing.T) {
	effects := []ir.EffectSpec{
		emitting("load", "LOAD_SUCCESS", "LOAD"),
		emitting("notify", "NOTIFIED", "LOAD_SUCCESS"),
		emitting("audit", "AUDITED", "LOAD_SUCCESS"),
	}

	warnings := AnalyzeCycles(effects)
	assert.Empty(t, warnings, "DAG should produce no cycle warnings")
}

// TestAnalyzeCycles_SelfLoop tests detection of a self-triggering effect.
func TestAnalyzeCycles_SelfLoop(t *testing.T) {
	effects := []ir.EffectSpec{
		emitting("poll", "TICK", "TICK"),
	}

	warnings := AnalyzeCycles(effects)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"poll", "poll"}, warnings[0].Path)
	assert.Equal(t, "warning", warnings[0].Level)
	assert.Contains(t, warnings[0].Message, "Self-triggering")
}

// TestAnalyzeCycles_TwoNodeCycle tests a ping-pong pair.
func TestAnalyzeCycles_TwoNodeCycle(t *testing.T) {
	effects := []ir.EffectSpec{
		emitting("ping", "PONG", "PING"),
		emitting("pong", "PING", "PONG"),
	}

	warnings := AnalyzeCycles(effects)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"ping", "pong", "ping"}, warnings[0].Path)
	assert.Contains(t, warnings[0].Message, "ping → pong → ping")
}

// TestAnalyzeCycles_ThreeNodeCycle tests a longer loop plus an unrelated effect.
func TestAnalyzeCycles_ThreeNodeCycle(t *testing.T) {
	effects := []ir.EffectSpec{
		emitting("a", "B", "A"),
		emitting("b", "C", "B"),
		emitting("c", "A", "C"),
		emitting("side", "DONE", "A"),
	}

	warnings := AnalyzeCycles(effects)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"a", "b", "c", "a"}, warnings[0].Path)
}

// TestAnalyzeCycles_NonDispatchingBreaksLoop tests that dispatch: false
// effects contribute no edges.
func TestAnalyzeCycles_NonDispatchingBreaksLoop(t *testing.T) {
	quiet := emitting("pong", "PING", "PONG")
	quiet.Dispatch = false
	effects := []ir.EffectSpec{
		emitting("ping", "PONG", "PING"),
		quiet,
	}

	assert.Empty(t, AnalyzeCycles(effects))
}

// TestAnalyzeCycles_Deterministic tests that repeated runs report the same
// cycles in the same order.
func TestAnalyzeCycles_Deterministic(t *testing.T) {
	effects := []ir.EffectSpec{
		emitting("z", "Z", "Z"),
		emitting("m", "N", "M"),
		emitting("n", "M", "N"),
		emitting("a", "A", "A"),
	}

	first := AnalyzeCycles(effects)
	require.Len(t, first, 3)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, AnalyzeCycles(effects))
	}
	assert.Equal(t, "a", first[0].Path[0])
	assert.Equal(t, "m", first[1].Path[0])
	assert.Equal(t, "z", first[2].Path[0])
}
