package pageguard

import (
	"fmt"
	"strings"
)

// ============================================================================
// SIMPLE RULE EVALUATION
// ============================================================================

// evaluateSimple walks the flat rule list in declaration order; the first
// rule whose subject matches and whose own time window passes wins. A subject
// match with a failing time window is skipped, not a hard deny.
func evaluateSimple(p *Policy, ec *EvaluationContext, trace *[]string) *AccessDecision {
	for i := range p.Rules {
		r := &p.Rules[i]
		if !simpleSubjectMatches(r, ec) {
			appendTrace(trace, fmt.Sprintf("simple rule %d (%s=%s): subject no match", i, r.SubjectType, r.SubjectValue))
			continue
		}
		if res := CheckTimeWindow(r.TimeWindow, ec.Time); !res.Allowed {
			appendTrace(trace, fmt.Sprintf("simple rule %d (%s=%s): subject matched, window failed: %s", i, r.SubjectType, r.SubjectValue, res.Reason))
			continue
		}
		appendTrace(trace, fmt.Sprintf("simple rule %d (%s=%s): MATCH level=%s", i, r.SubjectType, r.SubjectValue, r.AccessLevel))
		return &AccessDecision{
			Allowed:     true,
			Reason:      fmt.Sprintf("matched %s rule for %s", strings.ToLower(string(r.SubjectType)), r.SubjectValue),
			AccessLevel: r.AccessLevel,
			Source:      SourceDatabase,
		}
	}
	appendTrace(trace, "simple rules exhausted: no matching rule")
	return &AccessDecision{
		Allowed: false,
		Reason:  "no matching rule",
		Source:  SourceDatabase,
	}
}

func simpleSubjectMatches(r *SimpleRule, ec *EvaluationContext) bool {
	if ec.User == nil {
		return false
	}
	switch r.SubjectType {
	case SubjectUser:
		return strings.EqualFold(ec.User.Email, r.SubjectValue)
	case SubjectRole:
		return ec.User.Role == r.SubjectValue
	case SubjectGroup:
		return ec.InGroup(r.SubjectValue)
	case SubjectTag:
		return ec.HasTag(r.SubjectValue)
	default:
		return false
	}
}

func appendTrace(trace *[]string, line string) {
	if trace != nil {
		*trace = append(*trace, line)
	}
}
