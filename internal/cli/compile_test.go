package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/minirx/internal/compiler"
	"github.com/roach88/minirx/internal/ir"
)

func TestCompile_Text(t *testing.T) {
	dir := writeSpecs(t, counterSpecs)

	out, err := execute(t, "compile", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Compiled 1 feature(s), 1 effect(s)")
	assert.Contains(t, out, "counter: 3 case(s)")
	assert.Contains(t, out, "celebrate: [add] → @mini-rx/counter/EFFECT/celebrate/SET-STATE")
}

func TestCompile_JSONCarriesHash(t *testing.T) {
	dir := writeSpecs(t, counterSpecs)

	out, err := execute(t, "compile", dir, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	decodeResponse(t, out, &resp)
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Features, 1)
	assert.Equal(t, "counter", resp.Data.Features[0].Key)

	loaded, errs := compiler.LoadDir(dir)
	require.Empty(t, errs)
	assert.Equal(t, loaded.Hash, resp.Data.Hash)
}

func TestCompile_OutputFileIsCanonical(t *testing.T) {
	dir := writeSpecs(t, counterSpecs)
	outFile := filepath.Join(t.TempDir(), "specs.json")

	out, err := execute(t, "compile", dir, "-o", outFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote canonical specs to "+outFile)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)

	loaded, errs := compiler.LoadDir(dir)
	require.Empty(t, errs)
	want, err := ir.MarshalCanonical(loaded.Specs)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(data))
}

func TestCompile_Errors(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		out, err := execute(t, "compile", filepath.Join(t.TempDir(), "nope"))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "✗ Compilation failed")
		assert.Contains(t, out, compiler.ErrCodeNotFound)
	})

	t.Run("invalid spec json", func(t *testing.T) {
		dir := writeSpecs(t, "package specs\n\neffects: save: {of_type: [\"SAVE\"], emit: {type: \"@mini-rx/ghost/SET-STATE\"}}\n")
		out, err := execute(t, "compile", dir, "--format", "json")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))

		var resp CLIResponse
		decodeResponse(t, out, &resp)
		assert.Equal(t, "error", resp.Status)
		require.NotNil(t, resp.Error)
		assert.Equal(t, compiler.ErrEffectFeature, resp.Error.Code)
	})
}
