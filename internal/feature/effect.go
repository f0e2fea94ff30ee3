package feature

import (
	"context"

	"github.com/roach88/minirx/internal/effect"
	"github.com/roach88/minirx/internal/engine"
	"github.com/roach88/minirx/internal/ir"
	"github.com/roach88/minirx/internal/stream"
)

// Transform is the body of a feature effect. Its result becomes the
// payload of the effect's SET-STATE action.
type Transform[T, P any] func(ctx context.Context, payload P) (T, error)

type effectOptions struct {
	name       string
	mode       effect.Mode
	noDispatch bool
}

// EffectOption configures CreateEffect.
type EffectOption func(*effectOptions)

// EffectName names the effect. Unnamed effects are numbered 1, 2, ... per
// feature in creation order.
func EffectName(name string) EffectOption {
	return func(o *effectOptions) {
		o.name = name
	}
}

// EffectMode sets how overlapping triggers are flattened. Default: Inline.
func EffectMode(m effect.Mode) EffectOption {
	return func(o *effectOptions) {
		o.mode = m
	}
}

// NoDispatch runs the transform for its side work; the result is dropped.
func NoDispatch() EffectOption {
	return func(o *effectOptions) {
		o.noDispatch = true
	}
}

// CreateEffect wires transform to a private trigger source and returns the
// trigger. Each call of the trigger dispatches
//
//	@mini-rx/<key>/EFFECT/<name>
//
// with the payload and then runs transform. A successful result is
// dispatched as @mini-rx/<key>/EFFECT/<name>/SET-STATE and merged into the
// slice. Errors and panics are logged and the effect keeps accepting
// triggers.
//
// Returns an error if the feature is destroyed or the store is closed.
func CreateEffect[T, P any](f *Feature[T], transform Transform[T, P], opts ...EffectOption) (func(P), error) {
	if f.destroyed.Load() {
		return nil, ErrDestroyed
	}

	var o effectOptions
	for _, opt := range opts {
		opt(&o)
	}
	name := o.name
	if name == "" {
		name = f.nextEffectName()
	}
	triggerType := ir.EffectType(f.key, name)
	resultType := ir.EffectSetStateType(f.key, name)

	trigger := stream.NewSubject[ir.Action]()
	sub, err := f.store.Effects().Register(trigger, effect.Effect{
		Name:       triggerType,
		Types:      []string{triggerType},
		Mode:       o.mode,
		NoDispatch: o.noDispatch,
		Handler: func(ctx context.Context, a ir.Action) ([]ir.Action, error) {
			p, _ := engine.Coerce[P](a.Payload)
			out, err := transform(ctx, p)
			if err != nil {
				return nil, err
			}
			return []ir.Action{{Type: resultType, Payload: out}}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	f.subs.Add(sub)

	return func(payload P) {
		if f.destroyed.Load() {
			f.logger.Warn("effect trigger on destroyed feature ignored", "effect", name)
			return
		}
		a := ir.Action{Type: triggerType, Payload: payload}
		f.store.Dispatch(a)
		trigger.Next(a)
	}, nil
}
