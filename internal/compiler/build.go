package compiler

import (
	"context"
	"fmt"
	"maps"
	"math"
	"strings"
	"time"

	"github.com/roach88/minirx/internal/effect"
	"github.com/roach88/minirx/internal/engine"
	"github.com/roach88/minirx/internal/ir"
	"github.com/roach88/minirx/internal/stream"
)

const (
	refPrefix  = "$"
	payloadRef = "$payload"
)

// Target is the part of a store that Install needs.
type Target interface {
	RegisterFeature(key string, reducer engine.Reducer, opts ...engine.FeatureOptions) error
	RegisterEffect(e effect.Effect) (stream.Subscription, error)
}

// Install registers every feature and effect of set on t, features
// first so effects can target their SET-STATE actions. It stops at the
// first registration error.
func Install(t Target, set *ir.SpecSet) ([]stream.Subscription, error) {
	for _, f := range set.Features {
		err := t.RegisterFeature(f.Key, BuildReducer(f), engine.FeatureOptions{
			InitialState: cloneValue(f.InitialState),
		})
		if err != nil {
			return nil, fmt.Errorf("install feature %s: %w", f.Key, err)
		}
	}

	subs := make([]stream.Subscription, 0, len(set.Effects))
	for _, spec := range set.Effects {
		e, err := BuildEffect(spec)
		if err != nil {
			return subs, err
		}
		sub, err := t.RegisterEffect(e)
		if err != nil {
			return subs, fmt.Errorf("install effect %s: %w", spec.Name, err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// BuildReducer turns a feature spec into a reducer over map[string]any.
//
// Actions without a matching case return the input slice unchanged. A
// feature also accepts its own SET-STATE actions (see ir.IsSetStateFor):
// an object payload is shallow-merged into the slice.
func BuildReducer(spec ir.FeatureSpec) engine.Reducer {
	cases := make(map[string][]ir.Op, len(spec.Cases))
	for _, c := range spec.Cases {
		cases[c.ActionType] = c.Ops
	}
	initial := spec.InitialState
	if initial == nil {
		initial = map[string]any{}
	}

	return engine.ReducerFor(initial, func(s map[string]any, a ir.Action) map[string]any {
		if ir.IsSetStateFor(spec.Key, a.Type) {
			patch, ok := normalizePayload(a.Payload).(map[string]any)
			if !ok || len(patch) == 0 {
				return s
			}
			next := maps.Clone(s)
			maps.Copy(next, patch)
			return next
		}

		ops, ok := cases[a.Type]
		if !ok {
			return s
		}
		payload := normalizePayload(a.Payload)
		next := maps.Clone(s)
		if next == nil {
			next = map[string]any{}
		}
		for _, op := range ops {
			next = applyOp(next, op, payload, initial)
		}
		return next
	})
}

// applyOp applies one operation to a private copy of the slice.
func applyOp(s map[string]any, op ir.Op, payload any, initial map[string]any) map[string]any {
	switch op.Kind {
	case ir.OpSet:
		return setPath(s, op.Path, resolve(op.Value, payload))

	case ir.OpInc:
		by := any(op.By)
		if op.Value != nil {
			by = resolve(op.Value, payload)
		}
		cur, _ := getPath(s, op.Path)
		return setPath(s, op.Path, add(cur, by))

	case ir.OpMerge:
		patch, ok := resolve(op.Value, payload).(map[string]any)
		if !ok {
			return s
		}
		if op.Path == "" {
			maps.Copy(s, cloneMap(patch))
			return s
		}
		cur, _ := getPath(s, op.Path)
		base, _ := cur.(map[string]any)
		merged := maps.Clone(base)
		if merged == nil {
			merged = map[string]any{}
		}
		maps.Copy(merged, cloneMap(patch))
		return setPath(s, op.Path, merged)

	case ir.OpReset:
		return cloneMap(initial)

	case ir.OpAppend:
		cur, _ := getPath(s, op.Path)
		list, _ := cur.([]any)
		out := make([]any, 0, len(list)+1)
		out = append(out, list...)
		out = append(out, resolve(op.Value, payload))
		return setPath(s, op.Path, out)

	case ir.OpRemove:
		return removePath(s, op.Path)
	}
	return s
}

// BuildEffect turns an effect spec into an effect. The handler waits for
// the configured delay (cancelled with its context) and then emits the
// resolved action, if any.
func BuildEffect(spec ir.EffectSpec) (effect.Effect, error) {
	mode, err := effect.ParseMode(spec.Mode)
	if err != nil {
		return effect.Effect{}, fmt.Errorf("effect %s: %w", spec.Name, err)
	}
	delay := time.Duration(spec.DelayMS) * time.Millisecond
	emit := spec.Emit

	return effect.Effect{
		Name:       spec.Name,
		Types:      append([]string(nil), spec.OfType...),
		Mode:       mode,
		NoDispatch: !spec.Dispatch,
		Handler: func(ctx context.Context, a ir.Action) ([]ir.Action, error) {
			if delay > 0 {
				timer := time.NewTimer(delay)
				defer timer.Stop()
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-timer.C:
				}
			}
			if emit == nil {
				return nil, nil
			}
			payload := normalizePayload(a.Payload)
			return []ir.Action{{Type: emit.Type, Payload: resolve(emit.Payload, payload)}}, nil
		},
	}, nil
}

// resolve replaces payload references in v. "$payload" is the whole
// payload, "$payload.a.b" a nested field (nil when missing). Maps and
// lists are resolved element-wise into fresh copies.
func resolve(v any, payload any) any {
	switch x := v.(type) {
	case string:
		if x == payloadRef {
			return cloneValue(payload)
		}
		if path, ok := strings.CutPrefix(x, payloadRef+"."); ok {
			got, _ := getPath(asMap(payload), path)
			return cloneValue(got)
		}
		return x
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = resolve(e, payload)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = resolve(e, payload)
		}
		return out
	default:
		return x
	}
}

// normalizePayload converts a payload to canonical JSON data (int64
// integers, map[string]any objects) so struct payloads can be addressed
// by field name. Values that cannot be encoded are returned unchanged.
func normalizePayload(p any) any {
	if p == nil {
		return nil
	}
	switch p.(type) {
	case string, bool, int64, float64:
		return p
	}
	n, err := normalize(p)
	if err != nil {
		return p
	}
	return n
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func getPath(s map[string]any, path string) (any, bool) {
	var cur any = s
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// setPath sets s[path] = v, copying every intermediate map on the way.
func setPath(s map[string]any, path string, v any) map[string]any {
	head, rest, nested := strings.Cut(path, ".")
	if !nested {
		s[head] = v
		return s
	}
	child, _ := s[head].(map[string]any)
	child = maps.Clone(child)
	if child == nil {
		child = map[string]any{}
	}
	s[head] = setPath(child, rest, v)
	return s
}

func removePath(s map[string]any, path string) map[string]any {
	head, rest, nested := strings.Cut(path, ".")
	if !nested {
		delete(s, head)
		return s
	}
	child, ok := s[head].(map[string]any)
	if !ok {
		return s
	}
	s[head] = removePath(maps.Clone(child), rest)
	return s
}

// add sums two JSON numbers. Integers stay integers unless either side is
// fractional or the sum overflows int64.
func add(a, b any) any {
	ai, aInt := toInt(a)
	bi, bInt := toInt(b)
	if aInt && bInt {
		sum := ai + bi
		if (bi > 0 && sum < ai) || (bi < 0 && sum > ai) {
			return float64(ai) + float64(bi)
		}
		return sum
	}
	return toFloat(a) + toFloat(b)
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return int64(n), true
		}
	}
	return 0, false
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case float64:
		return n
	case float32:
		return float64(n)
	}
	return 0
}

func cloneMap(m map[string]any) map[string]any {
	out, _ := cloneValue(m).(map[string]any)
	if out == nil {
		out = map[string]any{}
	}
	return out
}

// cloneValue deep-copies JSON-shaped data.
func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
