package rules

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// operatorFunc compares a resolved field value against a condition's operands.
type operatorFunc func(field, value, value2 any) bool

func builtinOperators() map[domain.Operator]operatorFunc {
	return map[domain.Operator]operatorFunc{
		domain.OpEquals:    opEquals,
		domain.OpNotEquals: func(f, v, _ any) bool { return !opEquals(f, v, nil) },

		domain.OpGreaterThan:        numeric(func(a, b float64) bool { return a > b }),
		domain.OpLessThan:           numeric(func(a, b float64) bool { return a < b }),
		domain.OpGreaterThanOrEqual: numeric(func(a, b float64) bool { return a >= b }),
		domain.OpLessThanOrEqual:    numeric(func(a, b float64) bool { return a <= b }),
		domain.OpBetween:            opBetween,

		domain.OpIn:    opIn,
		domain.OpNotIn: func(f, v, _ any) bool { return !opIn(f, v, nil) },

		domain.OpContains:   textual(strings.Contains),
		domain.OpStartsWith: textual(strings.HasPrefix),

		domain.OpIsEmpty:    func(f, _, _ any) bool { return isEmpty(f) },
		domain.OpIsNotEmpty: func(f, _, _ any) bool { return !isEmpty(f) },
	}
}

// opEquals compares canonical string forms. Two nils are equal; nil never
// equals a non-nil value.
func opEquals(field, value, _ any) bool {
	if field == nil || value == nil {
		return field == nil && value == nil
	}
	return canonical(field) == canonical(value)
}

func numeric(cmp func(a, b float64) bool) operatorFunc {
	return func(field, value, _ any) bool {
		a, ok := toFloat(field)
		if !ok {
			return false
		}
		b, ok := toFloat(value)
		if !ok {
			return false
		}
		return cmp(a, b)
	}
}

func opBetween(field, low, high any) bool {
	x, ok := toFloat(field)
	if !ok {
		return false
	}
	lo, ok := toFloat(low)
	if !ok {
		return false
	}
	hi, ok := toFloat(high)
	if !ok {
		return false
	}
	return lo <= x && x <= hi
}

// opIn tests membership by canonical string form. A scalar operand is
// treated as a one-element list.
func opIn(field, value, _ any) bool {
	if field == nil {
		return false
	}
	items, ok := toList(value)
	if !ok {
		return opEquals(field, value, nil)
	}
	want := canonical(field)
	for _, item := range items {
		if item != nil && canonical(item) == want {
			return true
		}
	}
	return false
}

func textual(match func(s, sub string) bool) operatorFunc {
	return func(field, value, _ any) bool {
		if field == nil || value == nil {
			return false
		}
		return match(strings.ToLower(canonical(field)), strings.ToLower(canonical(value)))
	}
}

func isEmpty(v any) bool {
	return v == nil || canonical(v) == ""
}

// canonical renders a scalar in the form used for string comparison.
// Integral floats drop their fraction, so 5.0 renders as "5".
func canonical(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int8:
		return strconv.FormatInt(int64(t), 10)
	case int16:
		return strconv.FormatInt(int64(t), 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint:
		return strconv.FormatUint(uint64(t), 10)
	case uint8:
		return strconv.FormatUint(uint64(t), 10)
	case uint16:
		return strconv.FormatUint(uint64(t), 10)
	case uint32:
		return strconv.FormatUint(uint64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// toFloat parses a scalar as float64. Booleans and nil do not parse.
func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]any, len(t))
		for i, f := range t {
			out[i] = f
		}
		return out, true
	case []int:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out, true
	default:
		return nil, false
	}
}
