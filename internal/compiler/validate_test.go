package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/minirx/internal/ir"
)

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidate_UnsupportedType(t *testing.T) {
	errs := Validate("not a spec")
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnsupportedIRType, errs[0].Code)
}

func TestValidate_ValidSpecSet(t *testing.T) {
	set := ir.SpecSet{
		Features: []ir.FeatureSpec{{
			Key:          "todo",
			InitialState: map[string]any{"items": []any{}},
			Cases: []ir.ReducerCase{{
				ActionType: "todo/add",
				Ops:        []ir.Op{{Kind: ir.OpAppend, Path: "items", Value: "$payload.title"}},
			}},
		}},
		Effects: []ir.EffectSpec{{
			Name:     "save",
			OfType:   []string{"todo/add"},
			Emit:     &ir.EmitSpec{Type: ir.SetStateType("todo", "saved"), Payload: map[string]any{"saved": true}},
			Dispatch: true,
		}},
	}

	assert.Empty(t, Validate(set))
	assert.Empty(t, Validate(&set))
}

func TestValidate_FeatureErrors(t *testing.T) {
	tests := []struct {
		name string
		spec ir.FeatureSpec
		want []string
	}{
		{
			name: "missing key",
			spec: ir.FeatureSpec{},
			want: []string{ErrFeatureKey},
		},
		{
			name: "slash in key",
			spec: ir.FeatureSpec{Key: "a/b"},
			want: []string{ErrFeatureKey},
		},
		{
			name: "unknown op",
			spec: ir.FeatureSpec{Key: "f", Cases: []ir.ReducerCase{{
				ActionType: "x",
				Ops:        []ir.Op{{Kind: "multiply"}},
			}}},
			want: []string{ErrInvalidOp},
		},
		{
			name: "missing path",
			spec: ir.FeatureSpec{Key: "f", Cases: []ir.ReducerCase{{
				ActionType: "x",
				Ops:        []ir.Op{{Kind: ir.OpSet, Value: 1}},
			}}},
			want: []string{ErrInvalidOp},
		},
		{
			name: "duplicate case",
			spec: ir.FeatureSpec{Key: "f", Cases: []ir.ReducerCase{
				{ActionType: "x"},
				{ActionType: "x"},
			}},
			want: []string{ErrInvalidCase},
		},
		{
			name: "reserved type",
			spec: ir.FeatureSpec{Key: "f", Cases: []ir.ReducerCase{{ActionType: ir.InitType}}},
			want: []string{ErrReservedActionType},
		},
		{
			name: "bad payload ref",
			spec: ir.FeatureSpec{Key: "f", Cases: []ir.ReducerCase{{
				ActionType: "x",
				Ops:        []ir.Op{{Kind: ir.OpSet, Path: "n", Value: map[string]any{"a": "$payload..x"}}},
			}}},
			want: []string{ErrInvalidPayloadRef},
		},
		{
			name: "unknown ref root",
			spec: ir.FeatureSpec{Key: "f", Cases: []ir.ReducerCase{{
				ActionType: "x",
				Ops:        []ir.Op{{Kind: ir.OpSet, Path: "n", Value: "$state.n"}},
			}}},
			want: []string{ErrInvalidPayloadRef},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, codes(Validate(tt.spec)))
		})
	}
}

func TestValidate_EffectErrors(t *testing.T) {
	tests := []struct {
		name string
		spec ir.EffectSpec
		want []string
	}{
		{
			name: "missing name and types",
			spec: ir.EffectSpec{},
			want: []string{ErrEffectName, ErrEffectOfType},
		},
		{
			name: "bad mode",
			spec: ir.EffectSpec{Name: "e", OfType: []string{"A"}, Mode: "parallel"},
			want: []string{ErrEffectMode},
		},
		{
			name: "dispatch without emit",
			spec: ir.EffectSpec{Name: "e", OfType: []string{"A"}, Dispatch: true},
			want: []string{ErrEffectEmit},
		},
		{
			name: "negative delay",
			spec: ir.EffectSpec{Name: "e", OfType: []string{"A"}, DelayMS: -5},
			want: []string{ErrEffectDelay},
		},
		{
			name: "bad emit ref",
			spec: ir.EffectSpec{
				Name:   "e",
				OfType: []string{"A"},
				Emit:   &ir.EmitSpec{Type: "B", Payload: []any{"$payload."}},
			},
			want: []string{ErrInvalidPayloadRef},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, codes(Validate(&tt.spec)))
		})
	}
}

func TestValidate_SpecSetCrossChecks(t *testing.T) {
	set := &ir.SpecSet{
		Features: []ir.FeatureSpec{{Key: "a"}, {Key: "a"}},
		Effects: []ir.EffectSpec{
			{Name: "e", OfType: []string{"X"}},
			{Name: "e", OfType: []string{"X"}},
			{
				Name:     "orphan",
				OfType:   []string{"X"},
				Emit:     &ir.EmitSpec{Type: ir.EffectSetStateType("missing", "load")},
				Dispatch: true,
			},
		},
	}

	errs := Validate(set)
	assert.Equal(t, []string{ErrDuplicateName, ErrDuplicateName, ErrEffectFeature}, codes(errs))
	assert.Contains(t, errs[2].Message, `feature "missing"`)
}

func TestValidationErrorString(t *testing.T) {
	e := ValidationError{Field: "effects.e.mode", Message: "bad", Code: ErrEffectMode}
	assert.Equal(t, "[E112] effects.e.mode: bad", e.Error())

	e.Line = 7
	assert.Equal(t, "[E112] line 7: effects.e.mode: bad", e.Error())
}
