package authz

import (
	"fmt"
	"strings"
	"time"
)

// Operator is the closed comparison set for conditions.
type Operator string

const (
	OpEquals    Operator = "eq"
	OpNotEquals Operator = "neq"
	OpIn        Operator = "in"
	OpNotIn     Operator = "nin"
	OpContains  Operator = "contains"
	OpPrefix    Operator = "prefix"
)

// Condition narrows a permission to resource instances whose field
// satisfies the operator against the value. String values may carry
// {{...}} placeholders resolved from the request context.
type Condition struct {
	Field string   `json:"field" yaml:"field"`
	Op    Operator `json:"op" yaml:"op"`
	Value any      `json:"value" yaml:"value"`
}

func (c *Condition) validate() error {
	if c.Field == "" {
		return fmt.Errorf("authz: condition missing field")
	}
	switch c.Op {
	case OpEquals, OpNotEquals, OpIn, OpNotIn, OpContains, OpPrefix:
		return nil
	}
	return fmt.Errorf("authz: unknown condition operator %q", c.Op)
}

// EvalContext carries the closed set of request fields available to
// placeholder substitution.
type EvalContext struct {
	PrincipalID string
	OrgID       string
	ClientIP    string
	Now         time.Time
}

// contextFields is the explicit lookup table for placeholders. Anything
// not listed here is an unknown placeholder and fails the condition.
var contextFields = map[string]func(EvalContext) string{
	"principal.id":     func(e EvalContext) string { return e.PrincipalID },
	"principal.org_id": func(e EvalContext) string { return e.OrgID },
	"request.ip":       func(e EvalContext) string { return e.ClientIP },
	"request.time":     func(e EvalContext) string { return e.Now.UTC().Format(time.RFC3339) },
}

// substitute resolves {{name}} placeholders in s. An unknown name is an
// error: the caller treats it as condition-not-satisfied, never a crash.
func substitute(s string, ectx EvalContext) (string, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}
	var b strings.Builder
	rest := s
	for {
		i := strings.Index(rest, "{{")
		if i < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		j := strings.Index(rest[i:], "}}")
		if j < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		name := strings.TrimSpace(rest[i+2 : i+j])
		fn, ok := contextFields[name]
		if !ok {
			return "", fmt.Errorf("authz: unknown placeholder %q", name)
		}
		b.WriteString(rest[:i])
		b.WriteString(fn(ectx))
		rest = rest[i+j+2:]
	}
}

// evalCondition checks one condition against concrete resource data.
// A missing field, a substitution failure, or a malformed value all
// evaluate false: conditions fail closed.
func evalCondition(c Condition, data map[string]any, ectx EvalContext) bool {
	raw, ok := data[c.Field]
	if !ok {
		return false
	}
	actual := fmt.Sprintf("%v", raw)

	switch c.Op {
	case OpIn, OpNotIn:
		values, err := conditionSet(c.Value, ectx)
		if err != nil {
			return false
		}
		member := false
		for _, v := range values {
			if v == actual {
				member = true
				break
			}
		}
		if c.Op == OpIn {
			return member
		}
		return !member
	}

	expected, err := conditionScalar(c.Value, ectx)
	if err != nil {
		return false
	}
	switch c.Op {
	case OpEquals:
		return actual == expected
	case OpNotEquals:
		return actual != expected
	case OpContains:
		return strings.Contains(actual, expected)
	case OpPrefix:
		return strings.HasPrefix(actual, expected)
	}
	return false
}

func conditionScalar(v any, ectx EvalContext) (string, error) {
	s, ok := v.(string)
	if !ok {
		return fmt.Sprintf("%v", v), nil
	}
	return substitute(s, ectx)
}

func conditionSet(v any, ectx EvalContext) ([]string, error) {
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case []string:
		for _, s := range t {
			items = append(items, s)
		}
	case string:
		// allow a comma-separated shorthand in configuration
		for _, s := range strings.Split(t, ",") {
			items = append(items, strings.TrimSpace(s))
		}
	default:
		return nil, fmt.Errorf("authz: set operator needs a list value")
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, err := conditionScalar(it, ectx)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
