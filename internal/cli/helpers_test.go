package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const counterSpecs = `package specs

features: counter: {
	initial_state: {count: 0}
	on: {
		increment: [{op: "inc", path: "count"}]
		add: [{op: "inc", path: "count", value: "$payload"}]
		"counter/reset": [{op: "reset"}]
	}
}

effects: celebrate: {
	of_type: ["add"]
	emit: {type: "@mini-rx/counter/EFFECT/celebrate/SET-STATE", payload: {last: "$payload"}}
}
`

// writeSpecs writes src as the only CUE file of a fresh specs directory.
func writeSpecs(t *testing.T, src string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "specs")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "specs.cue"), []byte(src), 0o644))
	return dir
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// recordSession dispatches actions through the dispatch command into a
// fresh journal and returns the journal path and session id.
func recordSession(t *testing.T, specsDir string, actions ...string) (string, string) {
	t.Helper()
	db := filepath.Join(t.TempDir(), "minirx.db")
	args := []string{"dispatch", specsDir, "--db", db, "--format", "json"}
	for _, a := range actions {
		args = append(args, "--action", a)
	}
	out, err := execute(t, args...)
	require.NoError(t, err, out)

	var resp struct {
		Data DispatchResult `json:"data"`
	}
	decodeResponse(t, out, &resp)
	require.NotEmpty(t, resp.Data.Session)
	return db, resp.Data.Session
}

func decodeResponse(t *testing.T, out string, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(out), v), out)
}
