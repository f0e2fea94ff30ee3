package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/minirx/internal/ir"
)

// Predicate filters transitions. Only types in this package implement it.
type Predicate interface {
	predicateNode()
}

// Equals matches when Field equals Value. A nil Value matches a missing
// or null field.
type Equals struct {
	Field string
	Value any
}

func (Equals) predicateNode() {}

// Prefix matches string fields starting with Prefix.
type Prefix struct {
	Field  string
	Prefix string
}

func (Prefix) predicateNode() {}

// Compare matches numeric fields against Value with Op, one of
// ">", ">=", "<", "<=".
type Compare struct {
	Field string
	Op    string
	Value any
}

func (Compare) predicateNode() {}

// And matches when every predicate matches. An empty And matches
// everything.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Comparison operators accepted by Compare.
const (
	OpGreater      = ">"
	OpGreaterEqual = ">="
	OpLess         = "<"
	OpLessEqual    = "<="
)

var scalarFields = map[string]bool{
	"seq":        true,
	"action":     true,
	"action_id":  true,
	"state_hash": true,
	"changed":    true,
}

// ErrInvalid is wrapped by every validation and parse error.
var ErrInvalid = errors.New("invalid query")

// splitField returns the column and the nested path of a field. The path
// is empty for scalar fields and for payload or state as a whole.
func splitField(field string) (column string, path []string, err error) {
	if scalarFields[field] {
		return field, nil, nil
	}
	head, rest, nested := strings.Cut(field, ".")
	if head != "payload" && head != "state" {
		return "", nil, fmt.Errorf("%w: unknown field %q", ErrInvalid, field)
	}
	if !nested {
		return head, nil, nil
	}
	path = strings.Split(rest, ".")
	for _, seg := range path {
		if seg == "" {
			return "", nil, fmt.Errorf("%w: empty path segment in %q", ErrInvalid, field)
		}
	}
	return head, path, nil
}

// Validate checks fields, operators and value types of the whole tree.
func Validate(p Predicate) error {
	switch pred := p.(type) {
	case nil:
		return nil
	case Equals:
		return validateEquals(pred)
	case *Equals:
		return validateEquals(*pred)
	case Prefix:
		return validatePrefix(pred)
	case *Prefix:
		return validatePrefix(*pred)
	case Compare:
		return validateCompare(pred)
	case *Compare:
		return validateCompare(*pred)
	case And:
		return validateAnd(pred)
	case *And:
		return validateAnd(*pred)
	default:
		return fmt.Errorf("%w: unsupported predicate %T", ErrInvalid, p)
	}
}

func validateEquals(eq Equals) error {
	column, path, err := splitField(eq.Field)
	if err != nil {
		return err
	}
	switch column {
	case "seq":
		switch eq.Value.(type) {
		case int, int64:
		default:
			return fmt.Errorf("%w: seq must be compared with an integer", ErrInvalid)
		}
	case "changed":
		if _, ok := eq.Value.(bool); !ok {
			return fmt.Errorf("%w: changed must be compared with true or false", ErrInvalid)
		}
	case "action", "action_id", "state_hash":
		if _, ok := eq.Value.(string); !ok {
			return fmt.Errorf("%w: %s must be compared with a string", ErrInvalid, column)
		}
	case "state":
		if len(path) == 0 {
			return fmt.Errorf("%w: compare state_hash instead of the whole state", ErrInvalid)
		}
	}
	return nil
}

func validatePrefix(p Prefix) error {
	column, path, err := splitField(p.Field)
	if err != nil {
		return err
	}
	switch column {
	case "seq", "changed":
		return fmt.Errorf("%w: %s is not a string field", ErrInvalid, column)
	case "payload", "state":
		if column == "state" && len(path) == 0 {
			return fmt.Errorf("%w: state is not a string field", ErrInvalid)
		}
	}
	if p.Prefix == "" {
		return fmt.Errorf("%w: empty prefix for %s", ErrInvalid, p.Field)
	}
	return nil
}

func validateCompare(c Compare) error {
	column, path, err := splitField(c.Field)
	if err != nil {
		return err
	}
	switch c.Op {
	case OpGreater, OpGreaterEqual, OpLess, OpLessEqual:
	default:
		return fmt.Errorf("%w: unknown operator %q", ErrInvalid, c.Op)
	}
	switch column {
	case "seq":
	case "payload", "state":
		if len(path) == 0 && column == "state" {
			return fmt.Errorf("%w: state is not a numeric field", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: %s is not a numeric field", ErrInvalid, column)
	}
	switch c.Value.(type) {
	case int, int64, float64:
		return nil
	}
	return fmt.Errorf("%w: %s %s needs a number, got %T", ErrInvalid, c.Field, c.Op, c.Value)
}

func validateAnd(and And) error {
	for _, sub := range and.Predicates {
		if err := Validate(sub); err != nil {
			return err
		}
	}
	return nil
}

// parseOps is ordered so two-character operators win over their
// one-character prefixes at the same position.
var parseOps = []string{">=", "<=", "^=", "=", ">", "<"}

// Parse reads one expression of the form field<op>value where op is one
// of = ^= > >= < <=. Values are read as JSON when they parse (3, true,
// "x", {"a":1}) and as plain strings otherwise. The ^= value is always a
// plain string.
func Parse(expr string) (Predicate, error) {
	for i := 0; i < len(expr); i++ {
		for _, op := range parseOps {
			if !strings.HasPrefix(expr[i:], op) {
				continue
			}
			field := strings.TrimSpace(expr[:i])
			raw := strings.TrimSpace(expr[i+len(op):])
			if field == "" {
				return nil, fmt.Errorf("%w: missing field in %q", ErrInvalid, expr)
			}

			var p Predicate
			switch op {
			case "=":
				p = Equals{Field: field, Value: parseValue(raw)}
			case "^=":
				p = Prefix{Field: field, Prefix: raw}
			default:
				p = Compare{Field: field, Op: op, Value: parseValue(raw)}
			}
			if err := Validate(p); err != nil {
				return nil, err
			}
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: no operator in %q", ErrInvalid, expr)
}

// ParseAll parses every expression and joins them with And. It returns
// nil for no expressions.
func ParseAll(exprs []string) (Predicate, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	preds := make([]Predicate, 0, len(exprs))
	for _, e := range exprs {
		p, err := Parse(e)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	if len(preds) == 1 {
		return preds[0], nil
	}
	return And{Predicates: preds}, nil
}

func parseValue(raw string) any {
	if !json.Valid([]byte(raw)) {
		return raw
	}
	v, err := ir.UnmarshalCanonical([]byte(raw))
	if err != nil {
		return raw
	}
	return v
}
