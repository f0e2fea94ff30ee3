package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/minirx/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// FeatureSpec errors (E101-E109)
	ErrFeatureKey         = "E101" // missing or malformed feature key
	ErrInvalidOp          = "E102" // unknown op or missing path
	ErrInvalidCase        = "E103" // empty or duplicate action type
	ErrDuplicateName      = "E105" // duplicate feature key or effect name
	ErrInvalidPayloadRef  = "E106" // malformed $payload reference
	ErrReservedActionType = "E107" // case shadows a synthesized action type

	// EffectSpec errors (E110-E119)
	ErrEffectName    = "E110" // missing effect name
	ErrEffectOfType  = "E111" // no trigger action types
	ErrEffectMode    = "E112" // unknown flattening mode
	ErrEffectEmit    = "E113" // dispatching effect without emit, or empty emit type
	ErrEffectDelay   = "E114" // negative delay
	ErrEffectFeature = "E115" // effect emits a SET-STATE for an unknown feature
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates compiled specs against schema rules.
// Returns all errors found (does not fail-fast).
// Supports SpecSet, FeatureSpec and EffectSpec.
func Validate(v any) []ValidationError {
	switch spec := v.(type) {
	case *ir.SpecSet:
		return validateSpecSet(spec)
	case ir.SpecSet:
		return validateSpecSet(&spec)
	case *ir.FeatureSpec:
		return validateFeatureSpec(spec)
	case ir.FeatureSpec:
		return validateFeatureSpec(&spec)
	case *ir.EffectSpec:
		return validateEffectSpec(spec)
	case ir.EffectSpec:
		return validateEffectSpec(&spec)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

func validateSpecSet(set *ir.SpecSet) []ValidationError {
	var errs []ValidationError

	keys := make(map[string]bool)
	for i := range set.Features {
		f := &set.Features[i]
		for _, e := range validateFeatureSpec(f) {
			e.Field = fmt.Sprintf("features.%s.%s", f.Key, e.Field)
			errs = append(errs, e)
		}
		if keys[f.Key] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("features[%d].key", i),
				Message: fmt.Sprintf("duplicate feature key %q", f.Key),
				Code:    ErrDuplicateName,
			})
		}
		keys[f.Key] = true
	}

	names := make(map[string]bool)
	for i := range set.Effects {
		e := &set.Effects[i]
		for _, ve := range validateEffectSpec(e) {
			ve.Field = fmt.Sprintf("effects.%s.%s", e.Name, ve.Field)
			errs = append(errs, ve)
		}
		if names[e.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("effects[%d].name", i),
				Message: fmt.Sprintf("duplicate effect name %q", e.Name),
				Code:    ErrDuplicateName,
			})
		}
		names[e.Name] = true

		// An emitted @mini-rx/<key>/SET-STATE action is only reduced if the
		// feature exists.
		if e.Emit != nil {
			if key, ok := setStateTarget(e.Emit.Type); ok && !keys[key] {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("effects.%s.emit.type", e.Name),
					Message: fmt.Sprintf("emits %q but feature %q is not declared", e.Emit.Type, key),
					Code:    ErrEffectFeature,
				})
			}
		}
	}

	return errs
}

func validateFeatureSpec(f *ir.FeatureSpec) []ValidationError {
	var errs []ValidationError
	for _, e := range f.Validate() {
		errs = append(errs, ValidationError{
			Field:   e.Field,
			Message: e.Message,
			Code:    featureCode(e.Field),
		})
	}

	if strings.Contains(f.Key, "/") {
		errs = append(errs, ValidationError{
			Field:   "key",
			Message: fmt.Sprintf("feature key %q must not contain '/'", f.Key),
			Code:    ErrFeatureKey,
		})
	}

	for i, c := range f.Cases {
		if c.ActionType == ir.InitType || c.ActionType == ir.UpdateStateType {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("on[%d]", i),
				Message: fmt.Sprintf("%q is synthesized by the store and never reaches reducers this way", c.ActionType),
				Code:    ErrReservedActionType,
			})
		}
		for j, op := range c.Ops {
			for _, ref := range payloadRefs(op.Value) {
				if !validPayloadRef(ref) {
					errs = append(errs, ValidationError{
						Field:   fmt.Sprintf("on[%d].ops[%d].value", i, j),
						Message: fmt.Sprintf("invalid payload reference %q", ref),
						Code:    ErrInvalidPayloadRef,
					})
				}
			}
		}
	}
	return errs
}

func validateEffectSpec(e *ir.EffectSpec) []ValidationError {
	var errs []ValidationError
	for _, ve := range e.Validate() {
		errs = append(errs, ValidationError{
			Field:   ve.Field,
			Message: ve.Message,
			Code:    effectCode(ve.Field),
		})
	}
	if e.Emit != nil {
		for _, ref := range payloadRefs(e.Emit.Payload) {
			if !validPayloadRef(ref) {
				errs = append(errs, ValidationError{
					Field:   "emit.payload",
					Message: fmt.Sprintf("invalid payload reference %q", ref),
					Code:    ErrInvalidPayloadRef,
				})
			}
		}
	}
	return errs
}

func featureCode(field string) string {
	switch {
	case field == "key":
		return ErrFeatureKey
	case strings.Contains(field, ".ops["):
		return ErrInvalidOp
	default:
		return ErrInvalidCase
	}
}

func effectCode(field string) string {
	switch {
	case field == "name":
		return ErrEffectName
	case field == "of_type":
		return ErrEffectOfType
	case field == "mode":
		return ErrEffectMode
	case strings.HasPrefix(field, "emit"):
		return ErrEffectEmit
	case field == "delay_ms":
		return ErrEffectDelay
	default:
		return ErrUnsupportedIRType
	}
}

// setStateTarget extracts <key> from a state update action type owned by
// a feature (see ir.IsSetStateFor).
func setStateTarget(actionType string) (string, bool) {
	rest, ok := strings.CutPrefix(actionType, ir.TypePrefix+"/")
	if !ok {
		return "", false
	}
	key, _, ok := strings.Cut(rest, "/")
	if !ok || !ir.IsSetStateFor(key, actionType) {
		return "", false
	}
	return key, true
}

// payloadRefs collects every string in v that starts with "$".
func payloadRefs(v any) []string {
	var refs []string
	var walk func(any)
	walk = func(v any) {
		switch x := v.(type) {
		case string:
			if strings.HasPrefix(x, refPrefix) {
				refs = append(refs, x)
			}
		case map[string]any:
			for _, e := range x {
				walk(e)
			}
		case []any:
			for _, e := range x {
				walk(e)
			}
		}
	}
	walk(v)
	return refs
}

func validPayloadRef(ref string) bool {
	if ref == payloadRef {
		return true
	}
	rest, ok := strings.CutPrefix(ref, payloadRef+".")
	if !ok {
		return false
	}
	for _, seg := range strings.Split(rest, ".") {
		if seg == "" {
			return false
		}
	}
	return true
}
