package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/minirx/internal/engine"
	"github.com/roach88/minirx/internal/ir"
)

const defaultTracerName = "minirx"

// Tracing is a store extension that wraps every reduction in an
// OpenTelemetry span named "reduce <action type>".
//
// The tracer comes from the global provider unless WithTracer is given.
// State replacements are recorded as zero-length "replace-state" spans.
type Tracing struct {
	tracer  trace.Tracer
	session string
}

// TracingOption configures Tracing.
type TracingOption func(*Tracing)

// WithTracer sets the tracer used for spans.
func WithTracer(t trace.Tracer) TracingOption {
	return func(x *Tracing) {
		x.tracer = t
	}
}

// NewTracing creates a tracing extension.
func NewTracing(opts ...TracingOption) *Tracing {
	x := &Tracing{}
	for _, opt := range opts {
		opt(x)
	}
	if x.tracer == nil {
		x.tracer = otel.Tracer(defaultTracerName)
	}
	return x
}

// Name implements engine.Named.
func (x *Tracing) Name() string { return "tracing" }

// Init implements engine.Extension.
func (x *Tracing) Init(h engine.Host) error {
	x.session = h.Session()
	return nil
}

// OnActionAndState implements engine.Extension.
func (x *Tracing) OnActionAndState(a ir.Action, _ ir.State) error {
	if a.Type != ir.UpdateStateType {
		return nil
	}
	_, span := x.tracer.Start(context.Background(), "replace-state",
		trace.WithAttributes(attribute.String("minirx.session", x.session)),
	)
	span.End()
	return nil
}

// MetaReducer implements engine.MetaReducerProvider.
func (x *Tracing) MetaReducer() engine.MetaReducer {
	return func(next engine.Reducer) engine.Reducer {
		return func(state any, a ir.Action) any {
			_, span := x.tracer.Start(context.Background(), "reduce "+a.Type,
				trace.WithAttributes(
					attribute.String("minirx.session", x.session),
					attribute.String("minirx.action.type", a.Type),
				),
			)
			defer span.End()
			defer func() {
				if p := recover(); p != nil {
					span.RecordError(fmt.Errorf("reducer panicked: %v", p))
					span.SetStatus(codes.Error, "reducer panicked")
					panic(p)
				}
			}()

			out := next(state, a)
			span.SetAttributes(attribute.Bool("minirx.state.changed", !ir.Same(state, out)))
			return out
		}
	}
}
