package harness

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/minirx/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			if event.Payload != nil {
				fmt.Fprintf(&buf, "  [%d] %s %s\n", event.Seq, event.Action, describe(event.Payload))
			} else {
				fmt.Fprintf(&buf, "  [%d] %s\n", event.Seq, event.Action)
			}
		}
	}
	return buf.String()
}

// assertTraceContains checks if the trace contains the action with a
// matching payload.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Action == assertion.Action && matchValue(event.Payload, assertion.Payload) {
			return nil
		}
	}

	expected := fmt.Sprintf("action %s", assertion.Action)
	if assertion.Payload != nil {
		expected += " with payload " + describe(assertion.Payload)
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if actions appear in the specified order.
// Actions don't need to be consecutive, and each expected action is
// matched after the previous one, so repeats are allowed.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	pos := 0
	for i, want := range assertion.Actions {
		found := false
		for pos < len(trace) {
			event := trace[pos]
			pos++
			if event.Action == want {
				found = true
				break
			}
		}
		if !found {
			actual := fmt.Sprintf("missing action: %s", want)
			if i > 0 && countAction(trace, want) > 0 {
				actual = fmt.Sprintf("%s does not appear after %s", want, assertion.Actions[i-1])
			}
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", assertion.Actions),
				Actual:   actual,
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks if the action appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := countAction(trace, assertion.Action)
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks the value under a top-level state key.
func assertFinalState(state ir.State, assertion Assertion) error {
	actual, ok := state.Get(assertion.Key)
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("state key %q to exist", assertion.Key),
			Actual:   fmt.Sprintf("keys present: %v", state.Keys()),
		}
	}
	if !matchValue(actual, assertion.Expect) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s = %s", assertion.Key, describe(assertion.Expect)),
			Actual:   fmt.Sprintf("%s = %s", assertion.Key, describe(actual)),
		}
	}
	return nil
}

// checkState compares each expected top-level key against state and
// returns a message per mismatch, in key order.
func checkState(state ir.State, expect map[string]any) []string {
	keys := make([]string, 0, len(expect))
	for k := range expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var msgs []string
	for _, k := range keys {
		actual, ok := state.Get(k)
		if !ok {
			msgs = append(msgs, fmt.Sprintf("expected state key %q, not present", k))
			continue
		}
		if !matchValue(actual, expect[k]) {
			msgs = append(msgs, fmt.Sprintf("state %s = %s, want %s", k, describe(actual), describe(expect[k])))
		}
	}
	return msgs
}

func countAction(trace []TraceEvent, action string) int {
	n := 0
	for _, event := range trace {
		if event.Action == action {
			n++
		}
	}
	return n
}

// matchValue reports whether actual matches expected. A nil expectation
// matches anything. Objects match as a subset, recursively; everything
// else must be canonically equal, so 3, int64(3) and 3.0 are the same.
func matchValue(actual, expected any) bool {
	if expected == nil {
		return true
	}
	if exp, ok := expected.(map[string]any); ok {
		act, ok := normalized(actual).(map[string]any)
		if !ok {
			return false
		}
		for key, want := range exp {
			got, exists := act[key]
			if !exists {
				return false
			}
			if want == nil {
				if got != nil {
					return false
				}
				continue
			}
			if !matchValue(got, want) {
				return false
			}
		}
		return true
	}
	return canonicalEqual(actual, expected)
}

func canonicalEqual(a, b any) bool {
	ab, err := ir.MarshalCanonical(a)
	if err != nil {
		return false
	}
	bb, err := ir.MarshalCanonical(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

func normalized(v any) any {
	n, err := normalize(v)
	if err != nil {
		return v
	}
	return n
}

func describe(v any) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			err = assertFinalState(result.State, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
