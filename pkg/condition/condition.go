// Package condition evaluates declarative predicates against an entity and
// the context accumulated by already-executed events.
package condition

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/healthsim/healthsim/pkg/models"
)

// Evaluate resolves cond.Field first in context, then in the entity's
// static attributes, and applies the operator. A field present in neither
// source returns an EvaluationError; callers treat that as condition=false
// and record the error.
func Evaluate(cond *models.EventCondition, entity *models.Entity, context map[string]any) (bool, error) {
	if cond == nil {
		return true, nil
	}

	actual, ok := lookup(cond.Field, entity, context)
	if !ok {
		return false, &models.EvaluationError{Field: cond.Field}
	}

	switch cond.Operator {
	case models.OperatorEq:
		return equal(actual, cond.Value), nil
	case models.OperatorNe:
		return !equal(actual, cond.Value), nil
	case models.OperatorGt:
		return compare(actual, cond.Value, false)
	case models.OperatorLt:
		return compare(actual, cond.Value, true)
	case models.OperatorIn:
		return contains(cond.Value, actual), nil
	case models.OperatorContains:
		return contains(actual, cond.Value), nil
	default:
		return false, fmt.Errorf("unsupported operator %q", cond.Operator)
	}
}

func lookup(field string, entity *models.Entity, context map[string]any) (any, bool) {
	if context != nil {
		if v, ok := context[field]; ok {
			return v, true
		}
	}

	return entity.Attribute(field)
}

func equal(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}

	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func compare(actual, expected any, lessThan bool) (bool, error) {
	af, aok := toFloat(actual)
	ef, eok := toFloat(expected)

	if !aok || !eok {
		// Fall back to lexical ordering for non-numeric values such as
		// ISO dates.
		as := fmt.Sprintf("%v", actual)
		es := fmt.Sprintf("%v", expected)

		if lessThan {
			return as < es, nil
		}

		return as > es, nil
	}

	if lessThan {
		return af < ef, nil
	}

	return af > ef, nil
}

// contains reports whether haystack (a slice, or a string) contains needle.
func contains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case []any:
		for _, item := range h {
			if equal(item, needle) {
				return true
			}
		}

		return false
	case []string:
		for _, item := range h {
			if equal(item, needle) {
				return true
			}
		}

		return false
	case string:
		return strings.Contains(h, fmt.Sprintf("%v", needle))
	default:
		return equal(haystack, needle)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)

		return f, err == nil
	default:
		return 0, false
	}
}
