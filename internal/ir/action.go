package ir

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
)

// Action is a typed message describing an intent to change state.
//
// Type is the routing key reducers and effects match on. Payload is optional
// and treated as immutable once the action has been dispatched.
type Action struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// NewAction builds an action with an optional payload.
func NewAction(actionType string, payload ...any) Action {
	a := Action{Type: actionType}
	if len(payload) > 0 {
		a.Payload = payload[0]
	}
	return a
}

// Equal reports structural equality: same type and same canonical payload.
// Payloads that cannot be canonically encoded fall back to reflect.DeepEqual.
func (a Action) Equal(other Action) bool {
	if a.Type != other.Type {
		return false
	}
	if a.Payload == nil || other.Payload == nil {
		return a.Payload == nil && other.Payload == nil
	}
	ca, errA := MarshalCanonical(a.Payload)
	cb, errB := MarshalCanonical(other.Payload)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a.Payload, other.Payload)
	}
	return bytes.Equal(ca, cb)
}

// String renders the action for logs.
func (a Action) String() string {
	if a.Payload == nil {
		return a.Type
	}
	return fmt.Sprintf("%s %v", a.Type, a.Payload)
}

// Action type naming. These strings are consumed by external debugging
// tools and must stay byte-for-byte stable.
const (
	// TypePrefix is the namespace for every action the library synthesizes.
	TypePrefix = "@mini-rx"

	// InitType is dispatched once when a store is created.
	InitType = TypePrefix + "/INIT"

	// UpdateStateType labels external full-state replacements for extensions.
	// It is never emitted on the action channel.
	UpdateStateType = TypePrefix + "/UPDATE-STATE"

	// UndoType asks the undo extension to drop a previously applied action.
	UndoType = TypePrefix + "/UNDO"

	setStateSuffix = "SET-STATE"
	effectSegment  = "EFFECT"
)

// ActionPrefix returns "@mini-rx/<key>".
func ActionPrefix(key string) string {
	return TypePrefix + "/" + key
}

// SetStateType returns "@mini-rx/<key>/SET-STATE[/<name>]".
func SetStateType(key, name string) string {
	t := ActionPrefix(key) + "/" + setStateSuffix
	if name != "" {
		t += "/" + name
	}
	return t
}

// EffectType returns "@mini-rx/<key>/EFFECT/<name>".
func EffectType(key, name string) string {
	return ActionPrefix(key) + "/" + effectSegment + "/" + name
}

// EffectSetStateType returns "@mini-rx/<key>/EFFECT/<name>/SET-STATE".
func EffectSetStateType(key, name string) string {
	return EffectType(key, name) + "/" + setStateSuffix
}

// FeatureInitType returns the action dispatched when a feature registers.
func FeatureInitType(key string) string {
	return ActionPrefix(key) + "/INIT-FEATURE"
}

// FeatureDestroyType returns the action dispatched when a feature is removed.
func FeatureDestroyType(key string) string {
	return ActionPrefix(key) + "/DESTROY-FEATURE"
}

// IsSetStateFor reports whether actionType is a state update owned by the
// feature key: either a direct SET-STATE or an effect result SET-STATE.
func IsSetStateFor(key, actionType string) bool {
	prefix := ActionPrefix(key) + "/"
	if !strings.HasPrefix(actionType, prefix) {
		return false
	}
	rest := actionType[len(prefix):]
	if rest == setStateSuffix || strings.HasPrefix(rest, setStateSuffix+"/") {
		return true
	}
	// EFFECT/<name>/SET-STATE
	if strings.HasPrefix(rest, effectSegment+"/") && strings.HasSuffix(rest, "/"+setStateSuffix) {
		return len(rest) > len(effectSegment)+len(setStateSuffix)+2
	}
	return false
}
