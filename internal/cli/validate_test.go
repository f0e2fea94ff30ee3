package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/minirx/internal/compiler"
)

func TestValidate_Valid(t *testing.T) {
	dir := writeSpecs(t, counterSpecs)

	out, err := execute(t, "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ All specs valid")
}

func TestValidate_JSON(t *testing.T) {
	dir := writeSpecs(t, counterSpecs)

	out, err := execute(t, "validate", dir, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	decodeResponse(t, out, &resp)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 1, resp.Data.Features)
	assert.Equal(t, 1, resp.Data.Effects)
	assert.Empty(t, resp.Data.Warnings)
}

func TestValidate_ReportsCycles(t *testing.T) {
	dir := writeSpecs(t, `package specs

effects: ping: {of_type: ["PING"], emit: {type: "PONG"}}
effects: pong: {of_type: ["PONG"], emit: {type: "PING"}}
`)

	out, err := execute(t, "validate", dir)
	require.NoError(t, err, "cycles are warnings")
	assert.Contains(t, out, "✓ All specs valid")
	assert.Contains(t, out, "warning")
}

func TestValidate_SpecErrors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantCode string
	}{
		{
			name: "unknown SET-STATE target",
			src: `package specs

effects: save: {of_type: ["SAVE"], emit: {type: "@mini-rx/ghost/SET-STATE"}}
`,
			wantCode: compiler.ErrEffectFeature,
		},
		{
			name: "bad payload reference",
			src: `package specs

features: f: {initial_state: {}, on: x: [{op: "set", path: "a", value: "$other"}]}
`,
			wantCode: compiler.ErrInvalidPayloadRef,
		},
		{
			name:     "schema violation",
			src:      "package specs\n\neffects: e: {of_type: [\"A\"], mode: \"parallel\"}\n",
			wantCode: compiler.ErrCodeCompile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeSpecs(t, tt.src)

			out, err := execute(t, "validate", dir)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.Contains(t, out, "✗ Validation failed")
			assert.Contains(t, out, tt.wantCode)
		})
	}
}

func TestValidate_EmptySpecs(t *testing.T) {
	dir := writeSpecs(t, "package specs\n")

	out, err := execute(t, "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "no features or effects found")
}

func TestValidate_MissingDirectory(t *testing.T) {
	out, err := execute(t, "validate", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, compiler.ErrCodeNotFound)
}
