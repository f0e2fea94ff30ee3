package query

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/roach88/minirx/internal/ir"
)

var columns = map[string]string{
	"seq":        "seq",
	"action":     "action_type",
	"action_id":  "action_id",
	"state_hash": "state_hash",
	"changed":    "changed",
	"payload":    "payload",
	"state":      "state",
}

// Compile converts p into a parameterized SQL condition over the
// transitions table. A nil predicate compiles to "".
func Compile(p Predicate) (string, []any, error) {
	if p == nil {
		return "", nil, nil
	}
	if err := Validate(p); err != nil {
		return "", nil, err
	}
	return compile(p)
}

func compile(p Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case Equals:
		return compileEquals(pred)
	case *Equals:
		return compileEquals(*pred)
	case Prefix:
		return compilePrefix(pred)
	case *Prefix:
		return compilePrefix(*pred)
	case Compare:
		return compileCompare(pred)
	case *Compare:
		return compileCompare(*pred)
	case And:
		return compileAnd(pred)
	case *And:
		return compileAnd(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// fieldExpr returns the SQL expression reading field and its parameters.
// JSON columns are always read through json_extract so that nested
// values compare as SQL scalars.
func fieldExpr(field string) (string, []any, error) {
	column, path, err := splitField(field)
	if err != nil {
		return "", nil, err
	}
	col := columns[column]
	if column != "payload" && column != "state" {
		return col, nil, nil
	}
	return fmt.Sprintf("json_extract(%s, ?)", col), []any{jsonPath(path)}, nil
}

// jsonPath renders a SQLite JSON path with every key quoted.
func jsonPath(path []string) string {
	var b strings.Builder
	b.WriteString("$")
	for _, seg := range path {
		b.WriteString(`."`)
		b.WriteString(seg)
		b.WriteString(`"`)
	}
	return b.String()
}

func compileEquals(eq Equals) (string, []any, error) {
	expr, params, err := fieldExpr(eq.Field)
	if err != nil {
		return "", nil, err
	}
	if eq.Value == nil {
		return expr + " IS NULL", params, nil
	}
	param, err := sqlParam(eq.Value)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", eq.Field, err)
	}
	return expr + " = ?", append(params, param), nil
}

func compilePrefix(p Prefix) (string, []any, error) {
	expr, params, err := fieldExpr(p.Field)
	if err != nil {
		return "", nil, err
	}
	// substr instead of LIKE: LIKE folds ASCII case.
	sql := fmt.Sprintf("substr(%s, 1, ?) = ?", expr)
	return sql, append(params, int64(utf8.RuneCountInString(p.Prefix)), p.Prefix), nil
}

func compileCompare(c Compare) (string, []any, error) {
	expr, params, err := fieldExpr(c.Field)
	if err != nil {
		return "", nil, err
	}
	param, err := sqlParam(c.Value)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", c.Field, err)
	}
	return fmt.Sprintf("%s %s ?", expr, c.Op), append(params, param), nil
}

func compileAnd(and And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}
	parts := make([]string, 0, len(and.Predicates))
	var params []any
	for _, sub := range and.Predicates {
		sql, subParams, err := compile(sub)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, subParams...)
	}
	return "(" + strings.Join(parts, " AND ") + ")", params, nil
}

// sqlParam converts a JSON value to the form json_extract and the
// transitions columns produce: booleans are 0 or 1, objects and arrays
// their canonical text.
func sqlParam(v any) (any, error) {
	switch val := v.(type) {
	case bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case string, int64, float64:
		return val, nil
	case int:
		return int64(val), nil
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return string(data), nil
}
