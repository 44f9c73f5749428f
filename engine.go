package pageguard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oarkflow/pageguard/logger"
	"github.com/oarkflow/pageguard/utils"
)

// ============================================================================
// DECISION ENGINE
// ============================================================================

// DefaultStoreTimeout bounds the policy-store fetch on a cache miss. A slow
// store must degrade to the config tier, never hang the request.
const DefaultStoreTimeout = 3 * time.Second

// Engine is the decision aggregator: it resolves the route, applies
// maintenance and exceptions, evaluates stored policies with the
// complex -> simple fallback, and finally applies the config route rule.
// It is stateless apart from the shared caches.
type Engine struct {
	cfg              *SiteConfig
	resolver         *RouteResolver
	store            PolicyStore
	cache            *PolicyCache
	decisions        *decisionCache
	logger           logger.Logger
	storeTimeout     time.Duration
	concurrentGroups bool
}

// EngineOption configures an Engine at construction
type EngineOption func(*Engine) error

// WithLogger installs a structured logger; the default discards everything.
func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) error {
		e.logger = l
		return nil
	}
}

// WithPolicyCache injects a pre-built (possibly pre-seeded) policy cache.
func WithPolicyCache(c *PolicyCache) EngineOption {
	return func(e *Engine) error {
		if c == nil {
			return fmt.Errorf("nil policy cache")
		}
		e.cache = c
		return nil
	}
}

// WithPolicyCacheTTL sets the snapshot TTL on the engine-owned cache.
func WithPolicyCacheTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) error {
		e.cache = NewPolicyCache(ttl)
		return nil
	}
}

// WithStoreTimeout bounds the cache-miss fetch against the policy store.
func WithStoreTimeout(d time.Duration) EngineOption {
	return func(e *Engine) error {
		if d > 0 {
			e.storeTimeout = d
		}
		return nil
	}
}

// WithConcurrentGroups evaluates sibling rule groups on separate goroutines.
// The boolean outcome and the trace stay deterministic either way.
func WithConcurrentGroups() EngineOption {
	return func(e *Engine) error {
		e.concurrentGroups = true
		return nil
	}
}

// ConfigureRistrettoDecisionCache enables a short-TTL ristretto decision
// cache on top of the policy cache.
func ConfigureRistrettoDecisionCache(numCounters, maxCost, bufferItems int64, ttl time.Duration) EngineOption {
	return func(e *Engine) error {
		dc, err := newDecisionCache(numCounters, maxCost, bufferItems, ttl)
		if err != nil {
			return fmt.Errorf("configure decision cache: %w", err)
		}
		e.decisions = dc
		return nil
	}
}

// NewEngine builds an engine over a validated site config and a policy store.
func NewEngine(cfg *SiteConfig, store PolicyStore, opts ...EngineOption) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("site config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid site config: %w", err)
	}
	e := &Engine{
		cfg:          cfg,
		resolver:     NewRouteResolver(cfg.Routes, cfg.CategoryOrder),
		store:        store,
		cache:        NewPolicyCache(DefaultPolicyCacheTTL),
		logger:       logger.NewNullLogger(),
		storeTimeout: DefaultStoreTimeout,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Invalidate evicts one resource's cached policies (and all memoized
// decisions, which may depend on it). Exposed so the policy store's write
// path can evict stale entries after an edit.
func (e *Engine) Invalidate(resourceID string) {
	e.cache.Invalidate(resourceID)
	if e.decisions != nil {
		e.decisions.clear()
	}
}

// InvalidateAll evicts every cached policy snapshot and decision.
func (e *Engine) InvalidateAll() {
	e.cache.InvalidateAll()
	if e.decisions != nil {
		e.decisions.clear()
	}
}

// Evaluate decides access for a request path and caller context.
func (e *Engine) Evaluate(ctx context.Context, path string, ec *EvaluationContext) *AccessDecision {
	return e.evaluateInternal(ctx, path, ec, false)
}

// Explain is Evaluate with the full diagnostic trace attached.
func (e *Engine) Explain(ctx context.Context, path string, ec *EvaluationContext) *AccessDecision {
	return e.evaluateInternal(ctx, path, ec, true)
}

func (e *Engine) evaluateInternal(ctx context.Context, path string, ec *EvaluationContext, includeTrace bool) *AccessDecision {
	start := time.Now()
	var trace []string
	tp := &trace
	if !includeTrace {
		tp = nil
	}
	finish := func(d *AccessDecision) *AccessDecision {
		d.Trace = trace
		d.EvaluationTimeMs = time.Since(start).Milliseconds()
		e.logger.Debug("access decision",
			"path", path,
			"allowed", d.Allowed,
			"source", string(d.Source),
			"reason", d.Reason,
		)
		return d
	}

	// 1. Maintenance mode overrides everything.
	if d := e.checkMaintenance(ec, tp); d != nil {
		return finish(d)
	}

	// 2. Route resolution.
	match := e.resolver.Match(path)
	if match == nil {
		appendTrace(tp, fmt.Sprintf("route not found: %s", path))
		return finish(&AccessDecision{
			Allowed:  false,
			Reason:   "route not found",
			Redirect: e.cfg.Redirects.NotFound,
			Source:   SourceConfig,
		})
	}
	appendTrace(tp, fmt.Sprintf("route matched: %s (category %s)", match.FullPath, match.Category))
	ec.Resource = ResourceRef{ID: GeneratePageID(match.FullPath), Type: "page"}

	// Memoized decision fast path; skipped for Explain so the trace is full.
	key := e.decisionKey(ec)
	if !includeTrace && e.decisions != nil {
		if cached, ok := e.decisions.get(key); ok {
			return cached
		}
	}
	memo := func(d *AccessDecision) *AccessDecision {
		d = finish(d)
		if !includeTrace && e.decisions != nil {
			e.decisions.set(key, d)
		}
		return d
	}

	// 3. Email / domain exceptions.
	if d := e.checkExceptions(path, ec, tp); d != nil {
		return memo(d)
	}

	// 4. Stored policies: complex first, then simple against the same
	// resource; a store outage degrades to the config tier.
	policies, err := e.fetchPolicies(ctx, ec.Resource.ID)
	if err != nil {
		e.logger.Error("policy store fetch failed, falling back to config rules",
			"resource", ec.Resource.ID, "error", err.Error())
		appendTrace(tp, fmt.Sprintf("policy store unavailable: %v", err))
	} else if d := e.evaluateStoredPolicies(policies, ec, tp); d != nil {
		return memo(d)
	}

	// 5. Config-based route rule.
	return memo(e.applyRouteRule(match, ec, tp))
}

func (e *Engine) decisionKey(ec *EvaluationContext) DecisionKey {
	key := DecisionKey{ResourceID: ec.Resource.ID, IP: ec.Request.IP}
	if ec.User != nil {
		key.UserID = ec.User.ID
	}
	return key
}

// checkMaintenance denies everyone outside the allow lists while maintenance
// mode is on, before any other stage runs.
func (e *Engine) checkMaintenance(ec *EvaluationContext, trace *[]string) *AccessDecision {
	m := &e.cfg.Maintenance
	if !m.Enabled {
		return nil
	}
	if ec.User != nil {
		for _, r := range m.AllowedRoles {
			if ec.User.Role == r {
				appendTrace(trace, fmt.Sprintf("maintenance override: role %s", r))
				return nil
			}
		}
		for _, em := range m.AllowedEmails {
			if strings.EqualFold(ec.User.Email, em) {
				appendTrace(trace, fmt.Sprintf("maintenance override: email %s", em))
				return nil
			}
		}
	}
	appendTrace(trace, "maintenance mode: access denied")
	return &AccessDecision{
		Allowed:  false,
		Reason:   "site is under maintenance",
		Redirect: e.cfg.Redirects.Maintenance,
		Source:   SourceConfig,
	}
}

// checkExceptions allows the caller outright when their exact email or their
// domain carries an exception whose route patterns match the path.
func (e *Engine) checkExceptions(path string, ec *EvaluationContext, trace *[]string) *AccessDecision {
	if ec.User == nil || ec.User.Email == "" {
		return nil
	}
	email := strings.ToLower(ec.User.Email)
	domain := ""
	if at := strings.LastIndex(email, "@"); at >= 0 {
		domain = email[at+1:]
	}
	for i := range e.cfg.Exceptions {
		ex := &e.cfg.Exceptions[i]
		matched := false
		switch {
		case ex.Email != "" && strings.EqualFold(ex.Email, email):
			matched = true
		case ex.Domain != "" && strings.EqualFold(ex.Domain, domain):
			matched = true
		}
		if !matched {
			continue
		}
		if utils.MatchAnyRoute(path, ex.AllowedRoutes) {
			who := ex.Email
			if who == "" {
				who = "@" + ex.Domain
			}
			appendTrace(trace, fmt.Sprintf("exception matched for %s", who))
			return &AccessDecision{
				Allowed: true,
				Reason:  fmt.Sprintf("access exception for %s", who),
				Source:  SourceConfig,
			}
		}
	}
	return nil
}

// fetchPolicies serves the snapshot from cache, refetching from the store
// under a bounded timeout when missing or stale.
func (e *Engine) fetchPolicies(ctx context.Context, resourceID string) ([]*Policy, error) {
	if cached, ok := e.cache.Get(resourceID); ok {
		return cached, nil
	}
	if e.store == nil {
		return nil, nil
	}
	fetchCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()
	policies, err := e.store.GetPoliciesForResource(fetchCtx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.cache.Put(resourceID, policies)
	return policies, nil
}

// evaluateStoredPolicies runs the database tier: complex strategy first,
// falling back to simple on the same resource. Returns nil when no stored
// policy can decide, letting the config tier take over.
func (e *Engine) evaluateStoredPolicies(policies []*Policy, ec *EvaluationContext, trace *[]string) *AccessDecision {
	if d := e.tryComplex(policies, ec, trace); d != nil {
		return d
	}
	if d := e.trySimple(policies, ec, trace); d != nil {
		return d
	}
	appendTrace(trace, "no stored policy for resource")
	return nil
}

// tryComplex evaluates the first COMPLEX policy for the resource. A disabled
// policy denies before a single rule is examined. An internal fault aborts
// complex evaluation and reports unsupported, triggering the simple fallback.
func (e *Engine) tryComplex(policies []*Policy, ec *EvaluationContext, trace *[]string) (decision *AccessDecision) {
	p := selectPolicy(policies, StrategyComplex)
	if p == nil {
		return nil
	}
	if !p.Enabled {
		appendTrace(trace, fmt.Sprintf("complex policy %s is disabled", p.ID))
		return deny(p, "access policy is disabled", e.cfg.Redirects.Forbidden)
	}
	if len(p.RuleGroups) == 0 {
		// COMPLEX requires at least one rule group
		appendTrace(trace, fmt.Sprintf("complex policy %s has no rule groups", p.ID))
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("complex evaluation fault, falling back to simple",
				"policy", p.ID, "fault", fmt.Sprint(r))
			appendTrace(trace, fmt.Sprintf("complex evaluation fault: %v", r))
			decision = nil
		}
	}()
	if res := checkPolicyRestrictions(p, ec); !res.Allowed {
		appendTrace(trace, fmt.Sprintf("complex policy %s restriction failed: %s", p.ID, res.Reason))
		return deny(p, res.Reason, e.cfg.Redirects.Forbidden)
	}
	out := evaluateComplex(p, ec, trace, e.concurrentGroups)
	if !out.allowed {
		return deny(p, "access denied by policy", e.cfg.Redirects.Forbidden)
	}
	return &AccessDecision{
		Allowed:     true,
		Reason:      "allowed by access policy",
		AccessLevel: out.level,
		Source:      SourceDatabase,
	}
}

// trySimple evaluates the first SIMPLE policy for the resource.
func (e *Engine) trySimple(policies []*Policy, ec *EvaluationContext, trace *[]string) *AccessDecision {
	p := selectPolicy(policies, StrategySimple)
	if p == nil {
		return nil
	}
	if !p.Enabled {
		appendTrace(trace, fmt.Sprintf("simple policy %s is disabled", p.ID))
		return deny(p, "access policy is disabled", e.cfg.Redirects.Forbidden)
	}
	if res := checkPolicyRestrictions(p, ec); !res.Allowed {
		appendTrace(trace, fmt.Sprintf("simple policy %s restriction failed: %s", p.ID, res.Reason))
		return deny(p, res.Reason, e.cfg.Redirects.Forbidden)
	}
	d := evaluateSimple(p, ec, trace)
	if !d.Allowed {
		d.Redirect = e.cfg.Redirects.Forbidden
	}
	return d
}

func selectPolicy(policies []*Policy, s Strategy) *Policy {
	for _, p := range policies {
		if p.Strategy == s {
			return p
		}
	}
	return nil
}

func deny(p *Policy, reason, redirect string) *AccessDecision {
	return &AccessDecision{
		Allowed:  false,
		Reason:   reason,
		Redirect: redirect,
		Source:   SourceDatabase,
	}
}

// applyRouteRule is the final tier: the matched route's configured access
// rule. Public routes pass, auth routes redirect authenticated callers away,
// every other type requires authentication plus a role/email/domain match.
func (e *Engine) applyRouteRule(match *RouteMatch, ec *EvaluationContext, trace *[]string) *AccessDecision {
	rule := match.Route.Access
	if rule == nil {
		appendTrace(trace, "no access rule on route: default allow")
		return &AccessDecision{Allowed: true, Reason: "no access rule configured", Source: SourceDefault}
	}
	authed := ec.User != nil

	switch rule.Type {
	case RoutePublic:
		if authed && rule.RedirectIfAuthed != "" {
			appendTrace(trace, "public route: authenticated caller redirected")
			return &AccessDecision{
				Allowed:  true,
				Reason:   "public route",
				Redirect: rule.RedirectIfAuthed,
				Source:   SourceConfig,
			}
		}
		appendTrace(trace, "public route: allowed")
		return &AccessDecision{Allowed: true, Reason: "public route", Source: SourceConfig}

	case RouteAuth:
		// pages for signed-out visitors (login, register)
		if authed {
			target := rule.RedirectIfAuthed
			if target == "" {
				target = e.cfg.Redirects.Home
			}
			if target == "" {
				target = "/"
			}
			appendTrace(trace, "auth route: already authenticated, redirecting")
			return &AccessDecision{
				Allowed:  true,
				Reason:   "already authenticated",
				Redirect: target,
				Source:   SourceConfig,
			}
		}
		appendTrace(trace, "auth route: allowed")
		return &AccessDecision{Allowed: true, Reason: "auth route", Source: SourceConfig}

	default:
		// private, admin, api: authentication required
		if !authed {
			appendTrace(trace, fmt.Sprintf("%s route: authentication required", rule.Type))
			return &AccessDecision{
				Allowed:  false,
				Reason:   "authentication required",
				Redirect: e.cfg.Redirects.Login,
				Source:   SourceConfig,
			}
		}
		if !routeRuleMatchesUser(rule, ec.User) {
			appendTrace(trace, fmt.Sprintf("%s route: caller does not satisfy roles/emails/domains", rule.Type))
			return &AccessDecision{
				Allowed:  false,
				Reason:   "insufficient permissions for this route",
				Redirect: e.cfg.Redirects.Forbidden,
				Source:   SourceConfig,
			}
		}
		appendTrace(trace, fmt.Sprintf("%s route: allowed by route rule", rule.Type))
		return &AccessDecision{Allowed: true, Reason: "allowed by route rule", Source: SourceConfig}
	}
}

// routeRuleMatchesUser requires membership in at least one configured list;
// a rule with no lists admits any authenticated caller.
func routeRuleMatchesUser(rule *RouteAccessRule, u *UserContext) bool {
	if len(rule.Roles) == 0 && len(rule.Emails) == 0 && len(rule.Domains) == 0 {
		return true
	}
	for _, r := range rule.Roles {
		if u.Role == r {
			return true
		}
	}
	for _, em := range rule.Emails {
		if strings.EqualFold(u.Email, em) {
			return true
		}
	}
	email := strings.ToLower(u.Email)
	for _, d := range rule.Domains {
		if strings.HasSuffix(email, "@"+strings.ToLower(d)) {
			return true
		}
	}
	return false
}
