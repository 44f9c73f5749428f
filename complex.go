package pageguard

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oarkflow/date"
)

// ============================================================================
// COMPLEX RULE EVALUATION
// ============================================================================

// complexOutcome is the internal result of one policy-tree walk
type complexOutcome struct {
	allowed bool
	level   AccessLevel
}

// evaluateComplex walks the policy's rule-group tree bottom-up. The caller
// guarantees p is enabled with strategy COMPLEX. Groups are evaluated either
// sequentially or fanned out per group; results land in indexed slots and
// per-group trace buffers are merged in priority order, so both the boolean
// outcome and the trace are deterministic under either mode.
func evaluateComplex(p *Policy, ec *EvaluationContext, trace *[]string, concurrent bool) complexOutcome {
	groups := make([]*RuleGroup, 0, len(p.RuleGroups))
	for i := range p.RuleGroups {
		groups = append(groups, &p.RuleGroups[i])
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Priority < groups[j].Priority })

	results := make([]bool, len(groups))
	levels := make([][]AccessLevel, len(groups))
	traces := make([][]string, len(groups))

	eval := func(i int) {
		var buf []string
		results[i], levels[i] = evaluateRuleGroup(groups[i], ec, &buf)
		traces[i] = buf
	}

	if concurrent {
		var wg sync.WaitGroup
		for i := range groups {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				eval(i)
			}(i)
		}
		wg.Wait()
	} else {
		for i := range groups {
			eval(i)
		}
	}

	op := p.MainOperator
	if op == "" {
		op = OperatorAnd
	}
	granted := make([]AccessLevel, 0)
	final := op == OperatorAnd // AND starts true, OR starts false
	if len(groups) == 0 {
		final = false
	}
	for i, g := range groups {
		appendTraceAll(trace, traces[i])
		appendTrace(trace, fmt.Sprintf("group %q (%s) => %v", g.Name, g.Operator, results[i]))
		if op == OperatorAnd {
			final = final && results[i]
		} else {
			final = final || results[i]
		}
		granted = append(granted, levels[i]...)
	}
	appendTrace(trace, fmt.Sprintf("policy %q: %s over %d groups => %v", p.Name, op, len(groups), final))

	out := complexOutcome{allowed: final}
	if final {
		out.level = MaxAccessLevel(granted)
	}
	return out
}

// evaluateRuleGroup combines its rules under the group operator. A disabled
// group is false; levels collects the access level of every individually
// true rule regardless of the group outcome (the policy-level max runs over
// all true rules).
func evaluateRuleGroup(g *RuleGroup, ec *EvaluationContext, trace *[]string) (bool, []AccessLevel) {
	if !g.Enabled {
		appendTrace(trace, fmt.Sprintf("group %q disabled", g.Name))
		return false, nil
	}
	rules := make([]*Rule, 0, len(g.Rules))
	for i := range g.Rules {
		rules = append(rules, &g.Rules[i])
	}
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority < rules[j].Priority })

	levels := make([]AccessLevel, 0)
	result := g.Operator == OperatorAnd
	if len(rules) == 0 {
		result = false
	}
	for _, r := range rules {
		ok := evaluateRule(r, ec, trace)
		if ok && r.AccessLevel != "" {
			levels = append(levels, r.AccessLevel)
		}
		if g.Operator == OperatorAnd {
			result = result && ok
		} else {
			result = result || ok
		}
	}
	return result, levels
}

// evaluateRule checks the rule's own time window first (a failing window
// makes the rule false outright), then combines its conditions, sorted
// ascending by priority, under the rule operator. An empty condition list is
// false under either operator.
func evaluateRule(r *Rule, ec *EvaluationContext, trace *[]string) bool {
	if !r.Enabled {
		appendTrace(trace, fmt.Sprintf("rule %q disabled", r.Name))
		return false
	}
	if res := CheckTimeWindow(r.TimeWindow, ec.Time); !res.Allowed {
		appendTrace(trace, fmt.Sprintf("rule %q window failed: %s", r.Name, res.Reason))
		return false
	}
	if len(r.Conditions) == 0 {
		appendTrace(trace, fmt.Sprintf("rule %q has no conditions => false", r.Name))
		return false
	}
	conds := make([]*Condition, 0, len(r.Conditions))
	for i := range r.Conditions {
		conds = append(conds, &r.Conditions[i])
	}
	sort.SliceStable(conds, func(i, j int) bool { return conds[i].Priority < conds[j].Priority })

	result := r.Operator == OperatorAnd
	for _, c := range conds {
		ok, err := evaluateCondition(c, ec)
		if err != nil {
			// fault downgrades only this condition to false
			appendTrace(trace, fmt.Sprintf("rule %q condition %s: fault: %v", r.Name, c.FieldPath, err))
			ok = false
		} else {
			appendTrace(trace, fmt.Sprintf("rule %q condition %s %s %v => %v", r.Name, c.FieldPath, c.Operator, c.Expected, ok))
		}
		if r.Operator == OperatorAnd {
			result = result && ok
		} else {
			result = result || ok
		}
	}
	appendTrace(trace, fmt.Sprintf("rule %q (%s) => %v", r.Name, r.Operator, result))
	return result
}

// evaluateCondition resolves the field and applies the operator; negate flips
// the outcome last. A resolution failure or unsupported operator returns an
// error; the caller treats it as false.
func evaluateCondition(c *Condition, ec *EvaluationContext) (bool, error) {
	val, err := ResolveField(c.FieldPath, ec)
	if err != nil {
		return false, &EvaluationFault{Scope: "condition", Ref: c.FieldPath, Err: err}
	}
	var result bool
	switch c.Operator {
	case OpEquals:
		result = valueEquals(val, c.Expected)
	case OpNotEquals:
		result = !valueEquals(val, c.Expected)
	case OpContains:
		result = valueContains(val, c.Expected)
	case OpNotContains:
		result = !valueContains(val, c.Expected)
	case OpGreaterThan:
		cmp, cerr := compareOrdered(val, c.Expected)
		if cerr != nil {
			return false, &EvaluationFault{Scope: "condition", Ref: c.FieldPath, Err: cerr}
		}
		result = cmp > 0
	case OpLessThan:
		cmp, cerr := compareOrdered(val, c.Expected)
		if cerr != nil {
			return false, &EvaluationFault{Scope: "condition", Ref: c.FieldPath, Err: cerr}
		}
		result = cmp < 0
	case OpBetween:
		result, err = evalBetween(val, c.Expected)
		if err != nil {
			return false, &EvaluationFault{Scope: "condition", Ref: c.FieldPath, Err: err}
		}
	case OpWithinLast:
		result, err = evalWithinLast(val, c.Expected, ec.Time.Now)
		if err != nil {
			return false, &EvaluationFault{Scope: "condition", Ref: c.FieldPath, Err: err}
		}
	default:
		return false, &EvaluationFault{Scope: "condition", Ref: c.FieldPath, Err: fmt.Errorf("unsupported operator %q", c.Operator)}
	}
	if c.Negate {
		result = !result
	}
	return result, nil
}

// ============================================================================
// DYNAMIC VALUE COMPARISON
// ============================================================================

func valueEquals(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if at, aok := asTime(a); aok {
		if bt, bok := asTime(b); bok {
			return at.Equal(bt)
		}
	}
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// valueContains checks membership of expected in an array-valued field
func valueContains(val, expected any) bool {
	want := fmt.Sprint(expected)
	switch list := val.(type) {
	case []string:
		for _, v := range list {
			if v == want {
				return true
			}
		}
	case []any:
		for _, v := range list {
			if fmt.Sprint(v) == want {
				return true
			}
		}
	case string:
		return strings.Contains(list, want)
	}
	return false
}

// compareOrdered compares two dynamically typed values: times as times,
// numbers as numbers, otherwise lexical strings.
func compareOrdered(a, b any) (int, error) {
	if a == nil || b == nil {
		return 0, fmt.Errorf("cannot order nil value")
	}
	if at, aok := asTime(a); aok {
		bt, bok := asTime(b)
		if !bok {
			return 0, fmt.Errorf("cannot compare time with %T", b)
		}
		switch {
		case at.Before(bt):
			return -1, nil
		case at.After(bt):
			return 1, nil
		default:
			return 0, nil
		}
	}
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			switch {
			case af < bf:
				return -1, nil
			case af > bf:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	return strings.Compare(as, bs), nil
}

// evalBetween expects a two-element bound list; dates are compared as dates.
func evalBetween(val, expected any) (bool, error) {
	bounds, ok := asPair(expected)
	if !ok {
		return false, fmt.Errorf("BETWEEN expects a [low, high] pair, got %T", expected)
	}
	lo, err := compareOrdered(val, bounds[0])
	if err != nil {
		return false, err
	}
	hi, err := compareOrdered(val, bounds[1])
	if err != nil {
		return false, err
	}
	return lo >= 0 && hi <= 0, nil
}

// evalWithinLast parses a "<n>_days|hours|minutes" duration and checks
// now - fieldValue <= duration.
func evalWithinLast(val, expected any, now time.Time) (bool, error) {
	spec, ok := expected.(string)
	if !ok {
		return false, fmt.Errorf("WITHIN_LAST expects a duration string, got %T", expected)
	}
	dur, err := parseDurationSpec(spec)
	if err != nil {
		return false, err
	}
	t, ok := asTime(val)
	if !ok {
		return false, fmt.Errorf("WITHIN_LAST field is not a date: %T", val)
	}
	return now.Sub(t) <= dur, nil
}

func parseDurationSpec(s string) (time.Duration, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "_", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("bad duration %q, want <n>_days|hours|minutes", s)
	}
	n, err := strconv.Atoi(parts[0])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("bad duration count %q", parts[0])
	}
	switch strings.ToLower(parts[1]) {
	case "days", "day":
		return time.Duration(n) * 24 * time.Hour, nil
	case "hours", "hour":
		return time.Duration(n) * time.Hour, nil
	case "minutes", "minute":
		return time.Duration(n) * time.Minute, nil
	default:
		return 0, fmt.Errorf("bad duration unit %q", parts[1])
	}
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		// only treat parseable date-looking strings as times
		if len(t) < 8 || !strings.ContainsAny(t, "-/:") {
			return time.Time{}, false
		}
		parsed, err := date.Parse(t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}
	return time.Time{}, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func asPair(v any) ([2]any, bool) {
	switch list := v.(type) {
	case []any:
		if len(list) == 2 {
			return [2]any{list[0], list[1]}, true
		}
	case []string:
		if len(list) == 2 {
			return [2]any{list[0], list[1]}, true
		}
	}
	return [2]any{}, false
}

func appendTraceAll(trace *[]string, lines []string) {
	if trace != nil {
		*trace = append(*trace, lines...)
	}
}
