package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/minirx/internal/effect"
)

// Error represents an error detected by the store.
//
// Configuration errors (duplicate or invalid features) are returned to the
// caller of the registration API. Runtime errors (reducer panics, extension
// hook failures, quota overruns) are logged and processing continues.
//
// Error includes structured fields for diagnostics.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Key identifies the affected feature, if any.
	Key string

	// Extension names the failing extension (for hook errors).
	Extension string

	// ActionType is the action being processed when the error occurred.
	ActionType string

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes store errors.
type ErrorCode string

const (
	// ErrCodeDuplicateFeatureKey indicates a feature key is already registered.
	ErrCodeDuplicateFeatureKey ErrorCode = "DUPLICATE_FEATURE_KEY"

	// ErrCodeInvalidFeature indicates a registration with missing fields.
	ErrCodeInvalidFeature ErrorCode = "INVALID_FEATURE"

	// ErrCodeReducerPanic indicates a reducer panicked; the action was dropped.
	ErrCodeReducerPanic ErrorCode = "REDUCER_PANIC"

	// ErrCodeInvalidState indicates the root reducer returned something
	// other than a state tree; the action was dropped.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"

	// ErrCodeReducerPurity indicates a reducer mutated its input state.
	// Only reported by the immutability checking extension.
	ErrCodeReducerPurity ErrorCode = "REDUCER_PURITY_VIOLATION"

	// ErrCodeExtensionHook indicates an extension hook returned an error or panicked.
	ErrCodeExtensionHook ErrorCode = "EXTENSION_HOOK"

	// ErrCodeQuotaExceeded indicates a single drain processed too many tasks.
	ErrCodeQuotaExceeded ErrorCode = "QUOTA_EXCEEDED"

	// ErrCodeStoreClosed indicates work was submitted after Close.
	ErrCodeStoreClosed ErrorCode = "STORE_CLOSED"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Key != "":
		msg += fmt.Sprintf(" (feature=%s)", e.Key)
	case e.Extension != "":
		msg += fmt.Sprintf(" (extension=%s)", e.Extension)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsDuplicateKeyError returns true if the error is a duplicate feature key error.
// Uses errors.As to handle wrapped errors.
func IsDuplicateKeyError(err error) bool {
	return hasCode(err, ErrCodeDuplicateFeatureKey)
}

// IsInvalidFeatureError returns true if the error is an invalid feature error.
func IsInvalidFeatureError(err error) bool {
	return hasCode(err, ErrCodeInvalidFeature)
}

// IsExtensionError returns true if the error came from an extension hook.
func IsExtensionError(err error) bool {
	return hasCode(err, ErrCodeExtensionHook)
}

// IsPurityError returns true if the error reports a mutated state.
func IsPurityError(err error) bool {
	return hasCode(err, ErrCodeReducerPurity)
}

// IsQuotaError returns true if the error is a quota exceeded error.
// Matches both Error with ErrCodeQuotaExceeded and StepsExceededError.
func IsQuotaError(err error) bool {
	if hasCode(err, ErrCodeQuotaExceeded) {
		return true
	}
	var se *StepsExceededError
	return errors.As(err, &se)
}

// IsEffectError returns true if the error escaped an effect handler.
func IsEffectError(err error) bool {
	var te *effect.TransformError
	return errors.As(err, &te)
}

// NewDuplicateKeyError creates an Error for an already registered key.
func NewDuplicateKeyError(key string) *Error {
	return &Error{
		Code:    ErrCodeDuplicateFeatureKey,
		Message: "feature key already registered",
		Key:     key,
	}
}

// NewInvalidFeatureError creates an Error for a malformed registration.
func NewInvalidFeatureError(key, reason string) *Error {
	return &Error{
		Code:    ErrCodeInvalidFeature,
		Message: reason,
		Key:     key,
	}
}

// NewPurityError creates an Error for a reducer that mutated its input.
func NewPurityError(actionType, detail string) *Error {
	return &Error{
		Code:       ErrCodeReducerPurity,
		Message:    detail,
		ActionType: actionType,
	}
}

// NewExtensionError wraps a failure from an extension hook.
func NewExtensionError(extension, hook string, err error) *Error {
	return &Error{
		Code:      ErrCodeExtensionHook,
		Message:   hook + " failed",
		Extension: extension,
		Err:       err,
	}
}
