package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeatureSpecValidate(t *testing.T) {
	valid := FeatureSpec{
		Key: "counter",
		Cases: []ReducerCase{
			{ActionType: "inc", Ops: []Op{{Kind: OpInc, Path: "count", By: 1}}},
			{ActionType: "reset", Ops: []Op{{Kind: OpReset}}},
		},
	}
	assert.Empty(t, valid.Validate())

	invalid := FeatureSpec{
		Cases: []ReducerCase{
			{ActionType: "inc", Ops: []Op{{Kind: OpInc}}},
			{ActionType: "inc", Ops: []Op{{Kind: "explode"}}},
		},
	}
	errs := invalid.Validate()
	fields := make([]string, len(errs))
	for i, e := range errs {
		fields[i] = e.Field
	}
	assert.Contains(t, fields, "key")
	assert.Contains(t, fields, "on[0].ops[0].path")
	assert.Contains(t, fields, "on[1]")
	assert.Contains(t, fields, "on[1].ops[0]")
}

func TestEffectSpecValidate(t *testing.T) {
	valid := EffectSpec{
		Name:     "load",
		OfType:   []string{"LOAD"},
		Emit:     &EmitSpec{Type: "LOAD_SUCCESS"},
		Mode:     "merge",
		Dispatch: true,
	}
	assert.Empty(t, valid.Validate())

	invalid := EffectSpec{Mode: "parallel", Dispatch: true, DelayMS: -1}
	errs := invalid.Validate()
	assert.Len(t, errs, 5)
}
