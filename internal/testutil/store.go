package testutil

import (
	"io"
	"log/slog"
	"testing"

	"github.com/roach88/minirx/internal/engine"
)

// QuietLogger discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewStore creates a store for tests with a discarding logger and a fixed
// session id ("test-session-1"). Options passed by the caller are applied
// after the defaults and can override them. The store is closed when the
// test ends.
func NewStore(t testing.TB, cfg engine.Config, opts ...engine.Option) *engine.Store {
	t.Helper()
	defaults := []engine.Option{
		engine.WithLogger(QuietLogger()),
		engine.WithSessionGenerator(NewSequentialSessions("")),
	}
	s, err := engine.New(cfg, append(defaults, opts...)...)
	if err != nil {
		t.Fatalf("engine.New() failed: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}
