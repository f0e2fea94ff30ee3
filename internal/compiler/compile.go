package compiler

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/minirx/internal/ir"
)

//go:embed schema.cue
var schemaSource string

// Compile turns a CUE value holding `features` and `effects` structs into
// a SpecSet. The value is first unified with the built-in schema, which
// fills defaults (dispatch: true, mode: "inline") and rejects unknown
// fields.
//
// Returns every compile error found, not just the first.
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`features: counter: { ... }`)
//	set, errs := Compile(v)
func Compile(v cue.Value) (*ir.SpecSet, []error) {
	if err := v.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}

	schema := v.Context().CompileString(schemaSource, cue.Filename("minirx/schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, []error{fmt.Errorf("schema: %w", err)}
	}
	spec := schema.LookupPath(cue.ParsePath("#Spec")).Unify(v)
	if err := spec.Validate(cue.Concrete(true)); err != nil {
		return nil, cueErrors(err)
	}

	set := &ir.SpecSet{}
	var errs []error

	if features := spec.LookupPath(cue.ParsePath("features")); features.Exists() {
		iter, err := features.Fields()
		if err != nil {
			return nil, []error{formatCUEError(err)}
		}
		for iter.Next() {
			f, err := CompileFeature(iter.Selector().Unquoted(), iter.Value())
			if err != nil {
				errs = append(errs, err)
				continue
			}
			set.Features = append(set.Features, *f)
		}
	}

	if effects := spec.LookupPath(cue.ParsePath("effects")); effects.Exists() {
		iter, err := effects.Fields()
		if err != nil {
			return nil, []error{formatCUEError(err)}
		}
		for iter.Next() {
			e, err := CompileEffect(iter.Selector().Unquoted(), iter.Value())
			if err != nil {
				errs = append(errs, err)
				continue
			}
			set.Effects = append(set.Effects, *e)
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return set, nil
}

// CompileFeature parses one feature struct. Cases keep declaration order.
func CompileFeature(key string, v cue.Value) (*ir.FeatureSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.FeatureSpec{Key: key, InitialState: map[string]any{}}

	if initVal := v.LookupPath(cue.ParsePath("initial_state")); initVal.Exists() {
		initial, err := decodeValue(initVal)
		if err != nil {
			return nil, err
		}
		m, ok := initial.(map[string]any)
		if !ok {
			return nil, &CompileError{
				Field:   "features." + key + ".initial_state",
				Message: "initial_state must be a struct",
				Pos:     initVal.Pos(),
			}
		}
		spec.InitialState = m
	}

	onVal := v.LookupPath(cue.ParsePath("on"))
	if !onVal.Exists() {
		return spec, nil
	}
	iter, err := onVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		c := ir.ReducerCase{ActionType: iter.Selector().Unquoted()}
		ops, err := iter.Value().List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for ops.Next() {
			op, err := compileOp(ops.Value())
			if err != nil {
				return nil, err
			}
			c.Ops = append(c.Ops, op)
		}
		spec.Cases = append(spec.Cases, c)
	}
	return spec, nil
}

func compileOp(v cue.Value) (ir.Op, error) {
	var op ir.Op
	if err := v.Decode(&op); err != nil {
		return ir.Op{}, formatCUEError(err)
	}
	if op.Kind == ir.OpInc && !v.LookupPath(cue.ParsePath("by")).IsConcrete() {
		op.By = 1
	}
	if op.Value != nil {
		normalized, err := normalize(op.Value)
		if err != nil {
			return ir.Op{}, &CompileError{Field: "value", Message: err.Error(), Pos: v.Pos()}
		}
		op.Value = normalized
	}
	return op, nil
}

// CompileEffect parses one effect struct.
func CompileEffect(name string, v cue.Value) (*ir.EffectSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.EffectSpec{}
	if err := v.Decode(spec); err != nil {
		return nil, formatCUEError(err)
	}
	spec.Name = name
	if spec.Mode == "inline" {
		spec.Mode = ""
	}
	if spec.Emit != nil && spec.Emit.Payload != nil {
		normalized, err := normalize(spec.Emit.Payload)
		if err != nil {
			return nil, &CompileError{Field: "effects." + name + ".emit.payload", Message: err.Error(), Pos: v.Pos()}
		}
		spec.Emit.Payload = normalized
	}
	return spec, nil
}

// decodeValue decodes a concrete CUE value into canonical Go data
// (int64 for integers, float64 for other numbers).
func decodeValue(v cue.Value) (any, error) {
	var out any
	if err := v.Decode(&out); err != nil {
		return nil, formatCUEError(err)
	}
	return normalize(out)
}

func normalize(v any) (any, error) {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return nil, err
	}
	return ir.UnmarshalCanonical(data)
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// cueErrors splits a CUE error list into CompileErrors.
func cueErrors(err error) []error {
	list := errors.Errors(err)
	if len(list) == 0 {
		return []error{err}
	}
	out := make([]error, 0, len(list))
	for _, e := range list {
		out = append(out, formatCUEError(e))
	}
	return out
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	field := "cue"
	if path := first.Path(); len(path) > 0 {
		field = strings.Join(path, ".")
	}
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   field,
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return &CompileError{Field: field, Message: first.Error()}
}
