package pageguard

import "time"

// Builders provide a fluent API for creating policies, rule groups, rules
// and conditions, mainly for tests and seed data.

// PolicyBuilder builds a Policy
type PolicyBuilder struct {
	p *Policy
}

func NewPolicyBuilder() *PolicyBuilder {
	return &PolicyBuilder{p: &Policy{Enabled: true, MainOperator: OperatorAnd}}
}

func (b *PolicyBuilder) ID(id string) *PolicyBuilder            { b.p.ID = id; return b }
func (b *PolicyBuilder) Resource(id string) *PolicyBuilder      { b.p.ResourceID = id; return b }
func (b *PolicyBuilder) Name(n string) *PolicyBuilder           { b.p.Name = n; return b }
func (b *PolicyBuilder) Strategy(s Strategy) *PolicyBuilder     { b.p.Strategy = s; return b }
func (b *PolicyBuilder) Enabled(enabled bool) *PolicyBuilder    { b.p.Enabled = enabled; return b }
func (b *PolicyBuilder) MainOp(op LogicOperator) *PolicyBuilder { b.p.MainOperator = op; return b }
func (b *PolicyBuilder) ValidFrom(t time.Time) *PolicyBuilder   { b.p.ValidFrom = &t; return b }
func (b *PolicyBuilder) ValidTo(t time.Time) *PolicyBuilder     { b.p.ValidTo = &t; return b }
func (b *PolicyBuilder) Daily(start, end string) *PolicyBuilder {
	b.p.DailyStart, b.p.DailyEnd = start, end
	return b
}
func (b *PolicyBuilder) Days(days ...string) *PolicyBuilder {
	b.p.DaysOfWeek = append(b.p.DaysOfWeek, days...)
	return b
}
func (b *PolicyBuilder) IPRange(start, end string) *PolicyBuilder {
	b.p.IPRestrictions = append(b.p.IPRestrictions, IPRestriction{StartIP: start, EndIP: end})
	return b
}
func (b *PolicyBuilder) Geo(g GeoRestriction) *PolicyBuilder {
	b.p.GeoRestrictions = append(b.p.GeoRestrictions, g)
	return b
}
func (b *PolicyBuilder) Device(d DeviceRestriction) *PolicyBuilder {
	b.p.DeviceRestrictions = append(b.p.DeviceRestrictions, d)
	return b
}
func (b *PolicyBuilder) SimpleRule(r SimpleRule) *PolicyBuilder {
	b.p.Rules = append(b.p.Rules, r)
	return b
}
func (b *PolicyBuilder) Group(g RuleGroup) *PolicyBuilder {
	b.p.RuleGroups = append(b.p.RuleGroups, g)
	return b
}
func (b *PolicyBuilder) Build() *Policy { return b.p }

// GroupBuilder builds a RuleGroup
type GroupBuilder struct {
	g *RuleGroup
}

func NewGroupBuilder() *GroupBuilder {
	return &GroupBuilder{g: &RuleGroup{Enabled: true, Operator: OperatorAnd}}
}

func (b *GroupBuilder) ID(id string) *GroupBuilder           { b.g.ID = id; return b }
func (b *GroupBuilder) Name(n string) *GroupBuilder          { b.g.Name = n; return b }
func (b *GroupBuilder) Op(op LogicOperator) *GroupBuilder    { b.g.Operator = op; return b }
func (b *GroupBuilder) Priority(p int) *GroupBuilder         { b.g.Priority = p; return b }
func (b *GroupBuilder) Enabled(enabled bool) *GroupBuilder   { b.g.Enabled = enabled; return b }
func (b *GroupBuilder) Rule(r Rule) *GroupBuilder {
	b.g.Rules = append(b.g.Rules, r)
	return b
}
func (b *GroupBuilder) Build() RuleGroup { return *b.g }

// RuleBuilder builds a Rule
type RuleBuilder struct {
	r *Rule
}

func NewRuleBuilder() *RuleBuilder {
	return &RuleBuilder{r: &Rule{Enabled: true, Operator: OperatorAnd}}
}

func (b *RuleBuilder) ID(id string) *RuleBuilder             { b.r.ID = id; return b }
func (b *RuleBuilder) Name(n string) *RuleBuilder            { b.r.Name = n; return b }
func (b *RuleBuilder) Op(op LogicOperator) *RuleBuilder      { b.r.Operator = op; return b }
func (b *RuleBuilder) Priority(p int) *RuleBuilder           { b.r.Priority = p; return b }
func (b *RuleBuilder) Enabled(enabled bool) *RuleBuilder     { b.r.Enabled = enabled; return b }
func (b *RuleBuilder) Level(l AccessLevel) *RuleBuilder      { b.r.AccessLevel = l; return b }
func (b *RuleBuilder) Window(w *TimeWindow) *RuleBuilder     { b.r.TimeWindow = w; return b }
func (b *RuleBuilder) Condition(c Condition) *RuleBuilder {
	b.r.Conditions = append(b.r.Conditions, c)
	return b
}
func (b *RuleBuilder) Build() Rule { return *b.r }

// Cond is a shorthand constructor for a Condition
func Cond(fieldPath string, op ConditionOperator, expected any) Condition {
	return Condition{FieldPath: fieldPath, Operator: op, Expected: expected}
}
