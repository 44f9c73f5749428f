package pageguard

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// staticStore serves a fixed policy set and counts fetches
type staticStore struct {
	policies map[string][]*Policy
	err      error
	calls    int
}

func (s *staticStore) GetPoliciesForResource(_ context.Context, resourceID string) ([]*Policy, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.policies[resourceID], nil
}

func engineConfig(t *testing.T) *SiteConfig {
	t.Helper()
	cfg, err := NewConfigLoader().LoadYAML([]byte(`
version: 1
routes:
  main:
    - path: /
      access:
        type: public
    - path: /login
      access:
        type: auth
    - path: /pricing
      access:
        type: public
    - path: /dashboard
      access:
        type: private
    - path: /admin
      access:
        type: private
        roles: [admin]
    - path: /open
exceptions:
  - email: vip@example.com
    allowed_routes: ["*"]
  - domain: partner.io
    allowed_routes: ["/dashboard/*", "/pricing"]
`))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func newTestEngine(t *testing.T, cfg *SiteConfig, store PolicyStore, opts ...EngineOption) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, store, opts...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func authedContext(email, role string) *EvaluationContext {
	return &EvaluationContext{
		User: &UserContext{ID: "u1", Email: email, Role: role, Status: "active"},
		Time: NewTimeInfo(time.Now()),
	}
}

func anonContext() *EvaluationContext {
	return &EvaluationContext{Time: NewTimeInfo(time.Now())}
}

func TestEngineRouteNotFound(t *testing.T) {
	e := newTestEngine(t, engineConfig(t), &staticStore{})
	d := e.Evaluate(context.Background(), "/missing", anonContext())
	if d.Allowed {
		t.Fatalf("expected deny for unknown route")
	}
	if d.Redirect != "/404" {
		t.Fatalf("expected /404 redirect, got %q", d.Redirect)
	}
	if d.Source != SourceConfig {
		t.Fatalf("expected config source, got %s", d.Source)
	}
}

func TestEnginePublicRoute(t *testing.T) {
	e := newTestEngine(t, engineConfig(t), &staticStore{})
	d := e.Evaluate(context.Background(), "/pricing", anonContext())
	if !d.Allowed {
		t.Fatalf("public route must allow anonymous: %+v", d)
	}
}

func TestEngineRouteWithoutRuleDefaultsAllow(t *testing.T) {
	e := newTestEngine(t, engineConfig(t), &staticStore{})
	d := e.Evaluate(context.Background(), "/open", anonContext())
	if !d.Allowed {
		t.Fatalf("route without access rule must allow: %+v", d)
	}
	if d.Source != SourceDefault {
		t.Fatalf("expected default source, got %s", d.Source)
	}
}

func TestEngineAuthRouteRedirectsAuthed(t *testing.T) {
	e := newTestEngine(t, engineConfig(t), &staticStore{})

	d := e.Evaluate(context.Background(), "/login", anonContext())
	if !d.Allowed || d.Redirect != "" {
		t.Fatalf("anonymous caller should reach the login page: %+v", d)
	}

	d = e.Evaluate(context.Background(), "/login", authedContext("kim@example.com", "user"))
	if !d.Allowed || d.Redirect != "/" {
		t.Fatalf("authed caller should be redirected away from login: %+v", d)
	}
}

func TestEnginePrivateRequiresAuth(t *testing.T) {
	e := newTestEngine(t, engineConfig(t), &staticStore{})
	d := e.Evaluate(context.Background(), "/dashboard", anonContext())
	if d.Allowed {
		t.Fatalf("private route must deny anonymous")
	}
	if d.Redirect != "/login" {
		t.Fatalf("expected login redirect, got %q", d.Redirect)
	}

	d = e.Evaluate(context.Background(), "/dashboard", authedContext("kim@example.com", "user"))
	if !d.Allowed {
		t.Fatalf("private route without lists must allow any authed caller: %+v", d)
	}
}

func TestEngineRoleRestrictedRoute(t *testing.T) {
	e := newTestEngine(t, engineConfig(t), &staticStore{})

	d := e.Evaluate(context.Background(), "/admin", authedContext("kim@example.com", "user"))
	if d.Allowed {
		t.Fatalf("non-admin must be denied")
	}
	if d.Redirect != "/403" {
		t.Fatalf("expected forbidden redirect, got %q", d.Redirect)
	}

	d = e.Evaluate(context.Background(), "/admin", authedContext("root@example.com", "admin"))
	if !d.Allowed {
		t.Fatalf("admin must pass: %+v", d)
	}
}

func TestEngineMaintenanceMode(t *testing.T) {
	cfg := engineConfig(t)
	cfg.Maintenance = MaintenanceConfig{
		Enabled:       true,
		AllowedRoles:  []string{"admin"},
		AllowedEmails: []string{"oncall@example.com"},
	}
	e := newTestEngine(t, cfg, &staticStore{})

	d := e.Evaluate(context.Background(), "/pricing", authedContext("kim@example.com", "user"))
	if d.Allowed {
		t.Fatalf("maintenance must deny ordinary users")
	}
	if d.Redirect != "/maintenance" {
		t.Fatalf("expected maintenance redirect, got %q", d.Redirect)
	}

	d = e.Evaluate(context.Background(), "/pricing", authedContext("root@example.com", "admin"))
	if !d.Allowed {
		t.Fatalf("allowed role must bypass maintenance: %+v", d)
	}

	d = e.Evaluate(context.Background(), "/pricing", authedContext("ONCALL@example.com", "user"))
	if !d.Allowed {
		t.Fatalf("allowed email must bypass maintenance case-insensitively: %+v", d)
	}

	d = e.Evaluate(context.Background(), "/pricing", anonContext())
	if d.Allowed {
		t.Fatalf("maintenance must deny anonymous")
	}
}

func TestEngineEmailException(t *testing.T) {
	// a stored policy would deny, but the exception short-circuits first
	store := &staticStore{policies: map[string][]*Policy{
		"dashboard": {{
			ID: "deny-all", ResourceID: "dashboard", Enabled: true, Strategy: StrategySimple,
			Rules: []SimpleRule{{SubjectType: SubjectRole, SubjectValue: "nobody"}},
		}},
	}}
	e := newTestEngine(t, engineConfig(t), store)

	d := e.Evaluate(context.Background(), "/dashboard", authedContext("vip@example.com", "user"))
	if !d.Allowed {
		t.Fatalf("email exception must allow: %+v", d)
	}
	if d.Source != SourceConfig {
		t.Fatalf("exception decisions come from config, got %s", d.Source)
	}
	if store.calls != 0 {
		t.Fatalf("exception must decide before the store is consulted")
	}
}

func TestEngineDomainExceptionScopedToRoutes(t *testing.T) {
	e := newTestEngine(t, engineConfig(t), &staticStore{})

	d := e.Evaluate(context.Background(), "/dashboard", authedContext("dev@partner.io", "user"))
	if !d.Allowed || !strings.Contains(d.Reason, "partner.io") {
		t.Fatalf("domain exception must allow /dashboard: %+v", d)
	}

	// /admin is not in the partner.io allowed routes; the route rule applies
	d = e.Evaluate(context.Background(), "/admin", authedContext("dev@partner.io", "user"))
	if d.Allowed {
		t.Fatalf("exception must not leak beyond its allowed routes")
	}
}

func TestEngineDisabledPolicyDenies(t *testing.T) {
	store := &staticStore{policies: map[string][]*Policy{
		"dashboard": {{
			ID: "p-off", ResourceID: "dashboard", Enabled: false, Strategy: StrategyComplex,
			RuleGroups: []RuleGroup{
				{ID: "g", Enabled: true, Operator: OperatorAnd, Rules: []Rule{
					{ID: "r", Enabled: true, Operator: OperatorAnd, Conditions: []Condition{
						{FieldPath: "user.role", Operator: OpEquals, Expected: "user"},
					}},
				}},
			},
		}},
	}}
	e := newTestEngine(t, engineConfig(t), store)

	// the caller would satisfy the rules; the disabled policy must still deny
	d := e.Evaluate(context.Background(), "/dashboard", authedContext("kim@example.com", "user"))
	if d.Allowed {
		t.Fatalf("disabled policy must deny")
	}
	if !strings.Contains(d.Reason, "disabled") {
		t.Fatalf("reason must name the disabled policy, got %q", d.Reason)
	}
	if d.Source != SourceDatabase {
		t.Fatalf("expected database source, got %s", d.Source)
	}
}

func TestEngineComplexPolicyAllows(t *testing.T) {
	store := &staticStore{policies: map[string][]*Policy{
		"dashboard": {{
			ID: "p1", ResourceID: "dashboard", Enabled: true, Strategy: StrategyComplex,
			MainOperator: OperatorOr,
			RuleGroups: []RuleGroup{
				{ID: "admins", Enabled: true, Operator: OperatorAnd, Rules: []Rule{
					{ID: "is-admin", Enabled: true, Operator: OperatorAnd, AccessLevel: LevelFull, Conditions: []Condition{
						{FieldPath: "user.role", Operator: OpEquals, Expected: "admin"},
					}},
				}},
				{ID: "actives", Enabled: true, Operator: OperatorAnd, Priority: 1, Rules: []Rule{
					{ID: "is-active", Enabled: true, Operator: OperatorAnd, AccessLevel: LevelRead, Conditions: []Condition{
						{FieldPath: "user.status", Operator: OpEquals, Expected: "active"},
					}},
				}},
			},
		}},
	}}
	e := newTestEngine(t, engineConfig(t), store)

	d := e.Evaluate(context.Background(), "/dashboard", authedContext("kim@example.com", "user"))
	if !d.Allowed {
		t.Fatalf("OR group should allow the active user: %+v", d)
	}
	if d.AccessLevel != LevelRead {
		t.Fatalf("expected READ level, got %s", d.AccessLevel)
	}
	if d.Source != SourceDatabase {
		t.Fatalf("expected database source, got %s", d.Source)
	}
}

func TestEngineComplexDenyRedirectsForbidden(t *testing.T) {
	store := &staticStore{policies: map[string][]*Policy{
		"dashboard": {{
			ID: "p1", ResourceID: "dashboard", Enabled: true, Strategy: StrategyComplex,
			MainOperator: OperatorAnd,
			RuleGroups: []RuleGroup{
				{ID: "admins", Enabled: true, Operator: OperatorAnd, Rules: []Rule{
					{ID: "is-admin", Enabled: true, Operator: OperatorAnd, Conditions: []Condition{
						{FieldPath: "user.role", Operator: OpEquals, Expected: "admin"},
					}},
				}},
			},
		}},
	}}
	e := newTestEngine(t, engineConfig(t), store)

	d := e.Evaluate(context.Background(), "/dashboard", authedContext("kim@example.com", "user"))
	if d.Allowed {
		t.Fatalf("expected policy deny")
	}
	if d.Redirect != "/403" {
		t.Fatalf("expected forbidden redirect, got %q", d.Redirect)
	}
}

func TestEngineComplexWithoutGroupsFallsToSimple(t *testing.T) {
	store := &staticStore{policies: map[string][]*Policy{
		"dashboard": {
			{ID: "pc", ResourceID: "dashboard", Enabled: true, Strategy: StrategyComplex},
			{ID: "ps", ResourceID: "dashboard", Enabled: true, Strategy: StrategySimple,
				Rules: []SimpleRule{{SubjectType: SubjectRole, SubjectValue: "user", AccessLevel: LevelRead}}},
		},
	}}
	e := newTestEngine(t, engineConfig(t), store)

	d := e.Evaluate(context.Background(), "/dashboard", authedContext("kim@example.com", "user"))
	if !d.Allowed || d.AccessLevel != LevelRead {
		t.Fatalf("expected the simple fallback to allow with READ: %+v", d)
	}
}

func TestEnginePolicyRestrictionsDeny(t *testing.T) {
	store := &staticStore{policies: map[string][]*Policy{
		"dashboard": {{
			ID: "p1", ResourceID: "dashboard", Enabled: true, Strategy: StrategySimple,
			IPRestrictions: []IPRestriction{{StartIP: "10.0.0.0", EndIP: "10.0.0.255"}},
			Rules:          []SimpleRule{{SubjectType: SubjectRole, SubjectValue: "user", AccessLevel: LevelRead}},
		}},
	}}
	e := newTestEngine(t, engineConfig(t), store)

	ec := authedContext("kim@example.com", "user")
	ec.Request.IP = "172.16.0.9"
	d := e.Evaluate(context.Background(), "/dashboard", ec)
	if d.Allowed {
		t.Fatalf("ip outside the allowed range must deny")
	}

	ec = authedContext("kim@example.com", "user")
	ec.Request.IP = "10.0.0.57"
	d = e.Evaluate(context.Background(), "/dashboard", ec)
	if !d.Allowed {
		t.Fatalf("ip inside the range must pass to the rules: %+v", d)
	}
}

func TestEngineStoreOutageFallsBackToConfig(t *testing.T) {
	store := &staticStore{err: errors.New("connection refused")}
	e := newTestEngine(t, engineConfig(t), store)

	d := e.Evaluate(context.Background(), "/dashboard", authedContext("kim@example.com", "user"))
	if !d.Allowed {
		t.Fatalf("store outage must degrade to the config tier: %+v", d)
	}
	if d.Source != SourceConfig {
		t.Fatalf("expected config source after outage, got %s", d.Source)
	}
}

func TestEnginePolicyCacheAvoidsRefetch(t *testing.T) {
	store := &staticStore{policies: map[string][]*Policy{}}
	e := newTestEngine(t, engineConfig(t), store)

	ec := authedContext("kim@example.com", "user")
	_ = e.Evaluate(context.Background(), "/dashboard", ec)
	_ = e.Evaluate(context.Background(), "/dashboard", ec)
	if store.calls != 1 {
		t.Fatalf("expected a single store fetch, got %d", store.calls)
	}

	e.Invalidate("dashboard")
	_ = e.Evaluate(context.Background(), "/dashboard", ec)
	if store.calls != 2 {
		t.Fatalf("invalidation must force a refetch, got %d calls", store.calls)
	}
}

func TestEngineExplainCarriesTrace(t *testing.T) {
	e := newTestEngine(t, engineConfig(t), &staticStore{})
	d := e.Explain(context.Background(), "/dashboard", authedContext("kim@example.com", "user"))
	if len(d.Trace) == 0 {
		t.Fatalf("explain must attach a trace")
	}
	found := false
	for _, line := range d.Trace {
		if strings.Contains(line, "route matched") {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("trace should record route resolution: %v", d.Trace)
	}

	// plain Evaluate carries no trace
	d = e.Evaluate(context.Background(), "/dashboard", authedContext("kim@example.com", "user"))
	if len(d.Trace) != 0 {
		t.Fatalf("evaluate should not build a trace, got %v", d.Trace)
	}
}

func TestEngineDecisionCacheConfigured(t *testing.T) {
	e := newTestEngine(t, engineConfig(t), &staticStore{},
		ConfigureRistrettoDecisionCache(1000, 10000, 64, time.Second))

	ec := authedContext("kim@example.com", "user")
	first := e.Evaluate(context.Background(), "/dashboard", ec)
	second := e.Evaluate(context.Background(), "/dashboard", ec)
	if first.Allowed != second.Allowed || first.Reason != second.Reason {
		t.Fatalf("memoized decision must agree: %+v vs %+v", first, second)
	}
}

func TestEngineExplainRequest(t *testing.T) {
	e := newTestEngine(t, engineConfig(t), &staticStore{})
	d := e.ExplainRequest(context.Background(), &ExplainRequest{
		Path:  "/dashboard",
		Email: "kim@example.com",
	})
	if !d.Allowed {
		t.Fatalf("expected allow for authed caller: %+v", d)
	}

	d = e.ExplainRequest(context.Background(), &ExplainRequest{Path: "/dashboard"})
	if d.Allowed || d.Redirect != "/login" {
		t.Fatalf("anonymous explain should hit the login redirect: %+v", d)
	}
}

func TestEngineRejectsInvalidConfig(t *testing.T) {
	cfg := &SiteConfig{}
	if _, err := NewEngine(cfg, &staticStore{}); err == nil {
		t.Fatalf("expected error for empty config")
	}
}

func TestEngineEvaluationTimeRecorded(t *testing.T) {
	e := newTestEngine(t, engineConfig(t), &staticStore{})
	d := e.Evaluate(context.Background(), "/pricing", anonContext())
	if d.EvaluationTimeMs < 0 {
		t.Fatalf("evaluation time must be non-negative, got %d", d.EvaluationTimeMs)
	}
}
