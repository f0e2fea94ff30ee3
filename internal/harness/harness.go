package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/roach88/minirx/internal/compiler"
	"github.com/roach88/minirx/internal/engine"
	"github.com/roach88/minirx/internal/ir"
	"github.com/roach88/minirx/internal/journal"
)

// Harness runs one scenario against a real store.
type Harness struct {
	store    *engine.Store
	journal  *journal.Journal
	recorder *journal.Recorder
	logger   *slog.Logger
}

// Option configures Run.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger handed to the store. Logs are discarded by
// default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh store recorded into an in-memory journal,
// with a fixed session id and a store clock starting at zero, so traces
// are reproducible.
//
// Execution flow:
//  1. Compile the scenario's specs
//  2. Create the store and start recording
//  3. Install features and effects
//  4. Execute setup and flow steps, settling effects after each
//  5. Read the trace back from the journal and evaluate assertions
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	return RunContext(context.Background(), scenario, opts...)
}

// RunContext is Run with a caller-supplied context for journal writes.
func RunContext(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	specs, specHash, err := LoadSpecs(scenario.Specs)
	if err != nil {
		return nil, err
	}

	jr, err := journal.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory journal: %w", err)
	}
	defer jr.Close()

	session := scenario.Session
	if session == "" {
		session = DefaultSession
	}

	initial, err := toState(scenario.InitialState)
	if err != nil {
		return nil, fmt.Errorf("initial_state: %w", err)
	}

	st, err := engine.New(engine.Config{InitialState: initial},
		engine.WithLogger(o.logger),
		engine.WithSessionGenerator(engine.NewFixedGenerator(session)),
		engine.WithClock(engine.NewClock()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	rec, err := journal.Record(ctx, jr, st, journal.WithSpecHash(specHash))
	if err != nil {
		return nil, err
	}
	defer rec.Stop()

	h := &Harness{store: st, journal: jr, recorder: rec, logger: o.logger}

	if _, err := compiler.Install(st, specs); err != nil {
		return nil, err
	}

	result := NewResult()
	result.Session = st.Session()
	result.SpecHash = specHash

	if err := h.executeSteps("setup", scenario.Setup, result); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	if err := h.executeSteps("flow", scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	if n := rec.Failed(); n > 0 {
		return nil, fmt.Errorf("journal dropped %d transitions", n)
	}
	records, err := jr.ReadTransitions(ctx, st.Session())
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	for _, r := range records {
		result.AddRecord(r)
	}
	result.State = st.State()

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// executeSteps runs steps in order and checks each step's expectation
// once the store has settled.
func (h *Harness) executeSteps(section string, steps []Step, result *Result) error {
	for i, step := range steps {
		if step.UpdateState != nil {
			next, err := toState(step.UpdateState)
			if err != nil {
				return fmt.Errorf("%s[%d]: update_state: %w", section, i, err)
			}
			h.store.UpdateState(next)
		} else {
			payload, err := normalize(step.Payload)
			if err != nil {
				return fmt.Errorf("%s[%d]: payload: %w", section, i, err)
			}
			h.store.Dispatch(ir.Action{Type: step.Dispatch, Payload: payload})
		}
		h.store.WaitEffects()

		if step.Expect != nil {
			for _, msg := range checkState(h.store.State(), step.Expect) {
				result.AddError(fmt.Sprintf("%s[%d]: %s", section, i, msg))
			}
		}

		h.logger.Debug("step completed",
			"section", section,
			"step", i,
			"action", step.Dispatch,
		)
	}
	return nil
}

// LoadSpecs compiles the given CUE files into one spec set and returns it
// with its spec hash. Files compile independently; the merged set must
// pass validation as a whole.
func LoadSpecs(paths []string) (*ir.SpecSet, string, error) {
	merged := &ir.SpecSet{}
	for _, path := range paths {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read spec: %w", err)
		}
		res, errs := compiler.LoadString(path, string(src))
		if len(errs) > 0 {
			return nil, "", fmt.Errorf("compile %s: %w", path, errors.Join(errs...))
		}
		merged.Features = append(merged.Features, res.Specs.Features...)
		merged.Effects = append(merged.Effects, res.Specs.Effects...)
	}

	if verrs := compiler.Validate(merged); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, e := range verrs {
			errs[i] = e
		}
		return nil, "", fmt.Errorf("invalid specs: %w", errors.Join(errs...))
	}

	hash, err := compiler.SpecHash(merged)
	if err != nil {
		return nil, "", err
	}
	return merged, hash, nil
}

func toState(m map[string]any) (ir.State, error) {
	if m == nil {
		return ir.State{}, nil
	}
	n, err := normalize(m)
	if err != nil {
		return nil, err
	}
	s, ok := ir.AsState(n)
	if !ok {
		return nil, fmt.Errorf("expected an object, got %T", n)
	}
	return s, nil
}

// normalize converts YAML-decoded values into canonical JSON data.
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return nil, err
	}
	return ir.UnmarshalCanonical(data)
}
