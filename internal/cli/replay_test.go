package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplay_LatestState(t *testing.T) {
	dir := writeSpecs(t, counterSpecs)
	db, session := recordSession(t, dir, `{"type":"increment"}`, `{"type":"add","payload":4}`)

	out, err := execute(t, "replay", "--db", db, "--session", session, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   ReplayResult `json:"data"`
	}
	decodeResponse(t, out, &resp)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Intact)
	assert.False(t, resp.Data.Reexecuted)
	// INIT-FEATURE, increment, add, celebrate SET-STATE after INIT at seq 1.
	assert.Equal(t, int64(5), resp.Data.Seq)
	counter := resp.Data.State["counter"].(map[string]any)
	assert.Equal(t, float64(5), counter["count"])
	assert.Equal(t, float64(4), counter["last"])
}

func TestReplay_TimeTravel(t *testing.T) {
	dir := writeSpecs(t, counterSpecs)
	db, session := recordSession(t, dir, `{"type":"increment"}`, `{"type":"add","payload":4}`)

	out, err := execute(t, "replay", "--db", db, "--session", session, "--seq", "3", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data ReplayResult `json:"data"`
	}
	decodeResponse(t, out, &resp)
	assert.Equal(t, int64(3), resp.Data.Seq)
	assert.Equal(t, map[string]any{"count": float64(1)}, resp.Data.State["counter"])
}

func TestReplay_Reexecute(t *testing.T) {
	dir := writeSpecs(t, counterSpecs)
	db, session := recordSession(t, dir,
		`{"type":"increment"}`,
		`{"type":"add","payload":4}`,
		`{"type":"counter/reset"}`,
		`{"type":"add","payload":2}`,
	)

	out, err := execute(t, "replay", "--db", db, "--session", session, "--specs", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ Journal intact")
	assert.Contains(t, out, "state reproduced")
	assert.NotContains(t, out, "Specs differ")
}

func TestReplay_ReexecuteWithDifferentSpecsDiverges(t *testing.T) {
	dir := writeSpecs(t, counterSpecs)
	db, session := recordSession(t, dir, `{"type":"increment"}`, `{"type":"increment"}`)

	doubled := writeSpecs(t, `package specs

features: counter: {
	initial_state: {count: 0}
	on: increment: [{op: "inc", path: "count", by: 2}]
}
`)

	out, err := execute(t, "replay", "--db", db, "--session", session, "--specs", doubled)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Specs differ")
	assert.Contains(t, out, "state diverged")
}

func TestReplay_Errors(t *testing.T) {
	dir := writeSpecs(t, counterSpecs)
	db, _ := recordSession(t, dir, `{"type":"increment"}`)

	_, err := execute(t, "replay", "--db", db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")

	_, err = execute(t, "replay", "--db", db, "--session", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "session not found")
}
