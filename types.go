package pageguard

import (
	"strings"
	"time"
)

// ============================================================================
// DOMAIN OBJECTS
// ============================================================================

// Strategy selects how a stored policy is evaluated
type Strategy string

const (
	StrategySimple  Strategy = "SIMPLE"
	StrategyComplex Strategy = "COMPLEX"
)

// LogicOperator combines child results at any level of the rule tree
type LogicOperator string

const (
	OperatorAnd LogicOperator = "AND"
	OperatorOr  LogicOperator = "OR"
)

// ConditionOperator compares a resolved field against an expected value
type ConditionOperator string

const (
	OpEquals      ConditionOperator = "EQUALS"
	OpNotEquals   ConditionOperator = "NOT_EQUALS"
	OpContains    ConditionOperator = "CONTAINS"
	OpNotContains ConditionOperator = "NOT_CONTAINS"
	OpGreaterThan ConditionOperator = "GREATER_THAN"
	OpLessThan    ConditionOperator = "LESS_THAN"
	OpBetween     ConditionOperator = "BETWEEN"
	OpWithinLast  ConditionOperator = "WITHIN_LAST"
)

// SubjectType is what a simple rule matches against the caller
type SubjectType string

const (
	SubjectUser  SubjectType = "USER"
	SubjectRole  SubjectType = "ROLE"
	SubjectGroup SubjectType = "GROUP"
	SubjectTag   SubjectType = "TAG"
)

// AccessLevel is an ordered capability tag attached to a successful rule match
type AccessLevel string

const (
	LevelRead      AccessLevel = "READ"
	LevelWrite     AccessLevel = "WRITE"
	LevelCreate    AccessLevel = "CREATE"
	LevelUpdate    AccessLevel = "UPDATE"
	LevelDelete    AccessLevel = "DELETE"
	LevelManage    AccessLevel = "MANAGE"
	LevelConfigure AccessLevel = "CONFIGURE"
	LevelFull      AccessLevel = "FULL"
)

// accessLevelOrder encodes the capability hierarchy explicitly; the max-level
// computation uses this list, never alphabetic or declaration order.
var accessLevelOrder = []AccessLevel{
	LevelRead, LevelWrite, LevelCreate, LevelUpdate,
	LevelDelete, LevelManage, LevelConfigure, LevelFull,
}

// Rank returns the position of the level in the capability hierarchy,
// or -1 for an unknown level.
func (l AccessLevel) Rank() int {
	for i, lv := range accessLevelOrder {
		if lv == l {
			return i
		}
	}
	return -1
}

// MaxAccessLevel returns the highest level among the given ones.
// Unknown levels are ignored; the empty string is returned if none rank.
func MaxAccessLevel(levels []AccessLevel) AccessLevel {
	best := AccessLevel("")
	bestRank := -1
	for _, l := range levels {
		if r := l.Rank(); r > bestRank {
			best = l
			bestRank = r
		}
	}
	return best
}

// DecisionSource records which tier produced the final decision
type DecisionSource string

const (
	SourceDatabase DecisionSource = "database"
	SourceConfig   DecisionSource = "config"
	SourceDefault  DecisionSource = "default"
)

// ResourceRef identifies the target of an access check
type ResourceRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// GeneratePageID derives a stable resource id from a route path. The same
// path always yields the same id: separators collapse to '-', dynamic-segment
// markers ('[name]', '[...name]') lose their brackets, and the bare root maps
// to "home".
func GeneratePageID(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.Trim(path, "/")
	if path == "" {
		return "home"
	}
	var b strings.Builder
	b.Grow(len(path))
	bracketed := false
	for _, r := range path {
		switch r {
		case '/':
			b.WriteByte('-')
		case '[':
			bracketed = true
		case ']':
			bracketed = false
		case '.':
			// the catch-all ellipsis is a marker; a literal dot is identity
			if !bracketed {
				b.WriteByte('.')
			}
		default:
			if r >= 'A' && r <= 'Z' {
				r += 'a' - 'A'
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ============================================================================
// POLICY MODEL
// ============================================================================

// IPRestriction is a single dotted-IPv4 address or inclusive range
type IPRestriction struct {
	StartIP string `json:"start_ip" yaml:"start_ip"`
	EndIP   string `json:"end_ip,omitempty" yaml:"end_ip,omitempty"`
}

// GeoRestriction matches when every present field equals the request geo
type GeoRestriction struct {
	Country string `json:"country,omitempty" yaml:"country,omitempty"`
	Region  string `json:"region,omitempty" yaml:"region,omitempty"`
	City    string `json:"city,omitempty" yaml:"city,omitempty"`
}

// DeviceRestriction matches a parsed device type and optional OS membership
type DeviceRestriction struct {
	DeviceType       string   `json:"device_type,omitempty" yaml:"device_type,omitempty"` // mobile, tablet, desktop
	OperatingSystems []string `json:"operating_systems,omitempty" yaml:"operating_systems,omitempty"`
}

// TimeWindow bounds when a policy or rule may grant access
type TimeWindow struct {
	ValidFrom  *time.Time `json:"valid_from,omitempty" yaml:"valid_from,omitempty"`
	ValidTo    *time.Time `json:"valid_to,omitempty" yaml:"valid_to,omitempty"`
	DailyStart string     `json:"daily_start,omitempty" yaml:"daily_start,omitempty"` // "HH:MM"
	DailyEnd   string     `json:"daily_end,omitempty" yaml:"daily_end,omitempty"`     // "HH:MM"
	DaysOfWeek []string   `json:"days_of_week,omitempty" yaml:"days_of_week,omitempty"`
}

// Condition is the leaf of the complex rule tree
type Condition struct {
	FieldPath string            `json:"field_path" yaml:"field_path"`
	Operator  ConditionOperator `json:"operator" yaml:"operator"`
	Expected  any               `json:"expected" yaml:"expected"`
	Negate    bool              `json:"negate,omitempty" yaml:"negate,omitempty"`
	Priority  int               `json:"priority" yaml:"priority"`
}

// Rule combines conditions under one operator and carries the granted level
type Rule struct {
	ID          string        `json:"id" yaml:"id"`
	Name        string        `json:"name" yaml:"name"`
	Enabled     bool          `json:"enabled" yaml:"enabled"`
	Operator    LogicOperator `json:"operator" yaml:"operator"`
	Priority    int           `json:"priority" yaml:"priority"`
	AccessLevel AccessLevel   `json:"access_level" yaml:"access_level"`
	TimeWindow  *TimeWindow   `json:"time_window,omitempty" yaml:"time_window,omitempty"`
	Conditions  []Condition   `json:"conditions" yaml:"conditions"`
}

// RuleGroup combines rules under one operator
type RuleGroup struct {
	ID       string        `json:"id" yaml:"id"`
	Name     string        `json:"name" yaml:"name"`
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Operator LogicOperator `json:"operator" yaml:"operator"`
	Priority int           `json:"priority" yaml:"priority"`
	Rules    []Rule        `json:"rules" yaml:"rules"`
}

// SimpleRule is one entry of the flat, declaration-ordered simple strategy
type SimpleRule struct {
	SubjectType  SubjectType `json:"subject_type" yaml:"subject_type"`
	SubjectValue string      `json:"subject_value" yaml:"subject_value"`
	AccessLevel  AccessLevel `json:"access_level" yaml:"access_level"`
	TimeWindow   *TimeWindow `json:"time_window,omitempty" yaml:"time_window,omitempty"`
}

// Policy is the stored authorization configuration for one resource
type Policy struct {
	ID                 string              `json:"id" yaml:"id"`
	ResourceID         string              `json:"resource_id" yaml:"resource_id"`
	Name               string              `json:"name,omitempty" yaml:"name,omitempty"`
	Enabled            bool                `json:"enabled" yaml:"enabled"`
	Strategy           Strategy            `json:"strategy" yaml:"strategy"`
	ValidFrom          *time.Time          `json:"valid_from,omitempty" yaml:"valid_from,omitempty"`
	ValidTo            *time.Time          `json:"valid_to,omitempty" yaml:"valid_to,omitempty"`
	DailyStart         string              `json:"daily_start,omitempty" yaml:"daily_start,omitempty"`
	DailyEnd           string              `json:"daily_end,omitempty" yaml:"daily_end,omitempty"`
	DaysOfWeek         []string            `json:"days_of_week,omitempty" yaml:"days_of_week,omitempty"`
	IPRestrictions     []IPRestriction     `json:"ip_restrictions,omitempty" yaml:"ip_restrictions,omitempty"`
	GeoRestrictions    []GeoRestriction    `json:"geo_restrictions,omitempty" yaml:"geo_restrictions,omitempty"`
	DeviceRestrictions []DeviceRestriction `json:"device_restrictions,omitempty" yaml:"device_restrictions,omitempty"`
	Rules              []SimpleRule        `json:"rules,omitempty" yaml:"rules,omitempty"`
	RuleGroups         []RuleGroup         `json:"rule_groups,omitempty" yaml:"rule_groups,omitempty"`
	MainOperator       LogicOperator       `json:"main_operator,omitempty" yaml:"main_operator,omitempty"`
	CreatedAt          time.Time           `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt          time.Time           `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// Window returns the policy-level time window
func (p *Policy) Window() *TimeWindow {
	return &TimeWindow{
		ValidFrom:  p.ValidFrom,
		ValidTo:    p.ValidTo,
		DailyStart: p.DailyStart,
		DailyEnd:   p.DailyEnd,
		DaysOfWeek: p.DaysOfWeek,
	}
}

// ============================================================================
// EVALUATION CONTEXT
// ============================================================================

// UserContext is the caller identity; a nil *UserContext means anonymous
type UserContext struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	Role                string     `json:"role"`
	Groups              []string   `json:"groups,omitempty"`
	Tags                []string   `json:"tags,omitempty"`
	Services            []string   `json:"services,omitempty"`
	Status              string     `json:"status,omitempty"`
	DeactivationDate    *time.Time `json:"deactivation_date,omitempty"`
	SubscriptionEndDate *time.Time `json:"subscription_end_date,omitempty"`
	LastLogin           *time.Time `json:"last_login,omitempty"`
}

// GeoInfo is the request's resolved geography
type GeoInfo struct {
	Country string `json:"country,omitempty"`
	Region  string `json:"region,omitempty"`
	City    string `json:"city,omitempty"`
}

// RequestInfo is the per-request transport metadata
type RequestInfo struct {
	IP        string   `json:"ip,omitempty"`
	UserAgent string   `json:"user_agent,omitempty"`
	Geo       *GeoInfo `json:"geo,omitempty"`
}

// TimeInfo is the temporal snapshot the evaluation runs against
type TimeInfo struct {
	Now       time.Time `json:"now"`
	TimeOfDay string    `json:"time_of_day"` // "HH:MM"
	DayOfWeek string    `json:"day_of_week"` // "Monday".."Sunday"
}

// NewTimeInfo builds a TimeInfo snapshot from a wall-clock instant
func NewTimeInfo(now time.Time) TimeInfo {
	return TimeInfo{
		Now:       now,
		TimeOfDay: now.Format("15:04"),
		DayOfWeek: now.Weekday().String(),
	}
}

// EvaluationContext is the full immutable input of one evaluation
type EvaluationContext struct {
	User     *UserContext `json:"user,omitempty"`
	Request  RequestInfo  `json:"request"`
	Time     TimeInfo     `json:"time"`
	Resource ResourceRef  `json:"resource"`
}

// InGroup reports group membership for the caller
func (c *EvaluationContext) InGroup(group string) bool {
	if c.User == nil {
		return false
	}
	for _, g := range c.User.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// HasTag reports tag membership for the caller
func (c *EvaluationContext) HasTag(tag string) bool {
	if c.User == nil {
		return false
	}
	for _, t := range c.User.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ============================================================================
// DECISION
// ============================================================================

// AccessDecision is the outcome of one evaluation; constructed fresh per
// request and never mutated after return.
type AccessDecision struct {
	Allowed          bool           `json:"allowed"`
	Reason           string         `json:"reason"`
	AccessLevel      AccessLevel    `json:"access_level,omitempty"`
	Redirect         string         `json:"redirect,omitempty"`
	Source           DecisionSource `json:"source"`
	Trace            []string       `json:"trace,omitempty"`
	EvaluationTimeMs int64          `json:"evaluation_time_ms"`
}
