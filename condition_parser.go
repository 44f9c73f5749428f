package pageguard

import (
	"fmt"
	"regexp"
	"strings"
)

// ParseCondition parses a compact condition string into a Condition. It
// supports the commonly written patterns in config and seed files while
// keeping parsing simple and deterministic:
//
//	user.role EQUALS ADMIN
//	NOT user.groups CONTAINS suspended
//	user.lastLogin WITHIN_LAST 30_days
//	user.subscriptionEndDate BETWEEN 2026-01-01 2026-12-31
var conditionRe = regexp.MustCompile(`^(NOT\s+)?([a-zA-Z.]+)\s+([A-Z_]+)\s+(.+)$`)

func ParseCondition(s string) (Condition, error) {
	s = strings.TrimSpace(s)
	m := conditionRe.FindStringSubmatch(s)
	if m == nil {
		return Condition{}, fmt.Errorf("cannot parse condition %q", s)
	}
	op := ConditionOperator(m[3])
	switch op {
	case OpEquals, OpNotEquals, OpContains, OpNotContains,
		OpGreaterThan, OpLessThan, OpBetween, OpWithinLast:
	default:
		return Condition{}, fmt.Errorf("unknown operator %q in condition %q", m[3], s)
	}
	if _, known := fieldExtractors[m[2]]; !known {
		return Condition{}, fmt.Errorf("unknown field path %q in condition %q", m[2], s)
	}
	c := Condition{
		FieldPath: m[2],
		Operator:  op,
		Negate:    m[1] != "",
	}
	rest := strings.TrimSpace(m[4])
	if op == OpBetween {
		parts := strings.Fields(rest)
		if len(parts) != 2 {
			return Condition{}, fmt.Errorf("BETWEEN needs two operands in %q", s)
		}
		c.Expected = []any{unquote(parts[0]), unquote(parts[1])}
		return c, nil
	}
	c.Expected = unquote(rest)
	return c, nil
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}
