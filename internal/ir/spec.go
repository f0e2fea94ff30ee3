package ir

import "fmt"

// SpecSet is the compiled form of a declarative store definition.
type SpecSet struct {
	Features []FeatureSpec `json:"features"`
	Effects  []EffectSpec  `json:"effects"`
}

// FeatureSpec declares a feature slice: its key, initial state and the
// state operations applied for each action type.
type FeatureSpec struct {
	Key          string         `json:"key"`
	InitialState map[string]any `json:"initial_state"`
	Cases        []ReducerCase  `json:"cases"` // declaration order
}

// ReducerCase binds an action type to an ordered list of operations.
type ReducerCase struct {
	ActionType string `json:"action_type"`
	Ops        []Op   `json:"ops"`
}

// OpKind names a declarative state operation.
type OpKind string

const (
	OpSet    OpKind = "set"    // state[path] = value
	OpInc    OpKind = "inc"    // state[path] += by
	OpMerge  OpKind = "merge"  // shallow merge value into state (or state[path])
	OpReset  OpKind = "reset"  // state = initial state
	OpAppend OpKind = "append" // state[path] = append(state[path], value)
	OpRemove OpKind = "remove" // delete(state, path)
)

// ValidOpKinds lists the operations the reducer builder understands.
var ValidOpKinds = map[OpKind]bool{
	OpSet:    true,
	OpInc:    true,
	OpMerge:  true,
	OpReset:  true,
	OpAppend: true,
	OpRemove: true,
}

// Op is one state operation. Value may be a literal or a payload
// reference string ("$payload" or "$payload.field.sub").
type Op struct {
	Kind  OpKind `json:"op"`
	Path  string `json:"path,omitempty"`
	Value any    `json:"value,omitempty"`
	By    int64  `json:"by,omitempty"`
}

// EffectSpec declares an effect that reacts to action types and emits a
// follow-up action.
type EffectSpec struct {
	Name     string    `json:"name"`
	OfType   []string  `json:"of_type"`
	Emit     *EmitSpec `json:"emit,omitempty"`
	DelayMS  int64     `json:"delay_ms,omitempty"`
	Mode     string    `json:"mode,omitempty"`
	Dispatch bool      `json:"dispatch"`
}

// EmitSpec is the action an effect produces. Payload may contain payload
// reference strings resolved against the triggering action.
type EmitSpec struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// ValidEffectModes lists the accepted effect flattening modes.
var ValidEffectModes = map[string]bool{
	"":        true,
	"inline":  true,
	"merge":   true,
	"switch":  true,
	"concat":  true,
	"exhaust": true,
}

// ValidationError represents a validation error with field path and message.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a feature spec for structural errors.
// Returns all errors (not fail-fast) for better developer experience.
func (f *FeatureSpec) Validate() []ValidationError {
	var errs []ValidationError
	if f.Key == "" {
		errs = append(errs, ValidationError{Field: "key", Message: "feature key is required"})
	}

	seen := make(map[string]bool)
	for i, c := range f.Cases {
		field := fmt.Sprintf("on[%d]", i)
		if c.ActionType == "" {
			errs = append(errs, ValidationError{Field: field, Message: "action type is required"})
		}
		if seen[c.ActionType] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate action type %q", c.ActionType),
			})
		}
		seen[c.ActionType] = true

		for j, op := range c.Ops {
			opField := fmt.Sprintf("%s.ops[%d]", field, j)
			if !ValidOpKinds[op.Kind] {
				errs = append(errs, ValidationError{
					Field:   opField,
					Message: fmt.Sprintf("unknown op %q, must be one of: set, inc, merge, reset, append, remove", op.Kind),
				})
				continue
			}
			switch op.Kind {
			case OpSet, OpInc, OpAppend, OpRemove:
				if op.Path == "" {
					errs = append(errs, ValidationError{
						Field:   opField + ".path",
						Message: fmt.Sprintf("op %q requires a path", op.Kind),
					})
				}
			}
		}
	}
	return errs
}

// Validate checks an effect spec for structural errors.
func (e *EffectSpec) Validate() []ValidationError {
	var errs []ValidationError
	if e.Name == "" {
		errs = append(errs, ValidationError{Field: "name", Message: "effect name is required"})
	}
	if len(e.OfType) == 0 {
		errs = append(errs, ValidationError{Field: "of_type", Message: "at least one action type is required"})
	}
	if !ValidEffectModes[e.Mode] {
		errs = append(errs, ValidationError{
			Field:   "mode",
			Message: fmt.Sprintf("invalid mode %q, must be one of: inline, merge, switch, concat, exhaust", e.Mode),
		})
	}
	if e.Dispatch && e.Emit == nil {
		errs = append(errs, ValidationError{Field: "emit", Message: "dispatching effect must declare emit"})
	}
	if e.Emit != nil && e.Emit.Type == "" {
		errs = append(errs, ValidationError{Field: "emit.type", Message: "emit type is required"})
	}
	if e.DelayMS < 0 {
		errs = append(errs, ValidationError{Field: "delay_ms", Message: "delay must not be negative"})
	}
	return errs
}
