package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/roach88/minirx/internal/compiler"
	"github.com/roach88/minirx/internal/config"
	"github.com/roach88/minirx/internal/devtools"
	"github.com/roach88/minirx/internal/engine"
	"github.com/roach88/minirx/internal/extension"
	"github.com/roach88/minirx/internal/journal"
	"github.com/roach88/minirx/internal/telemetry"
)

// runtime is a store with its specs installed and the extensions and
// journal the config asks for.
type runtime struct {
	store    *engine.Store
	journal  *journal.Journal
	recorder *journal.Recorder
	bridge   *devtools.Bridge
	registry *prometheus.Registry
}

// openRuntime builds the store described by cfg and installs specs into
// it. The caller must Close the runtime.
func openRuntime(ctx context.Context, cfg config.Config, specs *compiler.LoadResult, logger *slog.Logger) (*runtime, error) {
	rt := &runtime{}
	var exts []engine.Extension
	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithMaxDrainSteps(cfg.Store.MaxDrainSteps),
	}

	if cfg.Store.LogActions {
		logOpts := []extension.LoggerOption{}
		if cfg.Store.LogState {
			logOpts = append(logOpts, extension.WithState())
		}
		exts = append(exts, extension.NewLogger(logger, logOpts...))
	}
	if cfg.Store.Immutable {
		var immOpts []extension.ImmutableOption
		if cfg.Store.Strict {
			immOpts = append(immOpts, extension.Strict())
		}
		exts = append(exts, extension.NewImmutableState(logger, immOpts...))
	}
	if cfg.Store.UndoBuffer > 0 {
		exts = append(exts, extension.NewUndo(cfg.Store.UndoBuffer))
	}
	if cfg.Metrics.Enabled {
		rt.registry = prometheus.NewRegistry()
		rt.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m, err := telemetry.NewMetrics(rt.registry)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		exts = append(exts, m)
		opts = append(opts, engine.WithEffectErrorHook(m.EffectErrorHook()))
	}
	if cfg.Tracing.Enabled {
		exts = append(exts, telemetry.NewTracing())
	}
	if cfg.Devtools.Enabled {
		rt.bridge = devtools.NewBridge(devtools.Options{
			Name:       cfg.Devtools.Name,
			MaxAge:     cfg.Devtools.MaxAge,
			TraceLimit: cfg.Devtools.TraceLimit,
			Logger:     logger,
		})
		exts = append(exts, rt.bridge)
	}

	st, err := engine.New(engine.Config{Extensions: exts}, opts...)
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}
	rt.store = st

	if cfg.Journal.Path != "" {
		jr, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("open journal: %w", err)
		}
		rt.journal = jr
		rec, err := journal.Record(ctx, jr, st,
			journal.WithSpecHash(specs.Hash),
			journal.WithRecorderLogger(logger),
		)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.recorder = rec
	}

	if _, err := compiler.Install(st, specs.Specs); err != nil {
		rt.Close()
		return nil, err
	}
	logger.Info("store ready",
		"session", st.Session(),
		"features", len(specs.Specs.Features),
		"effects", len(specs.Specs.Effects),
		"spec_hash", specs.Hash,
	)
	return rt, nil
}

// Close settles running effects, stops recording and closes the store
// and journal.
func (rt *runtime) Close() {
	if rt.store != nil {
		rt.store.WaitEffects()
	}
	if rt.recorder != nil {
		rt.recorder.Stop()
	}
	if rt.store != nil {
		rt.store.Close()
	}
	if rt.journal != nil {
		_ = rt.journal.Close()
	}
}
