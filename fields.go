package pageguard

import "fmt"

// ============================================================================
// FIELD RESOLUTION
// ============================================================================

// fieldExtractor resolves one known dotted path against a context. The
// dispatch table is closed: condition authors write dotted paths, the engine
// maps them to extractors, unknown paths are a resolution failure.
type fieldExtractor func(*EvaluationContext) any

var fieldExtractors = map[string]fieldExtractor{
	"user.id":                  func(c *EvaluationContext) any { return userString(c, func(u *UserContext) string { return u.ID }) },
	"user.email":               func(c *EvaluationContext) any { return userString(c, func(u *UserContext) string { return u.Email }) },
	"user.role":                func(c *EvaluationContext) any { return userString(c, func(u *UserContext) string { return u.Role }) },
	"user.status":              func(c *EvaluationContext) any { return userString(c, func(u *UserContext) string { return u.Status }) },
	"user.groups":              func(c *EvaluationContext) any { return userList(c, func(u *UserContext) []string { return u.Groups }) },
	"user.tags":                func(c *EvaluationContext) any { return userList(c, func(u *UserContext) []string { return u.Tags }) },
	"user.services":            func(c *EvaluationContext) any { return userList(c, func(u *UserContext) []string { return u.Services }) },
	"user.deactivationDate":    func(c *EvaluationContext) any { return userTime(c, func(u *UserContext) any { return deref(u.DeactivationDate) }) },
	"user.subscriptionEndDate": func(c *EvaluationContext) any { return userTime(c, func(u *UserContext) any { return deref(u.SubscriptionEndDate) }) },
	"user.lastLogin":           func(c *EvaluationContext) any { return userTime(c, func(u *UserContext) any { return deref(u.LastLogin) }) },
	"request.ip":               func(c *EvaluationContext) any { return c.Request.IP },
	"request.userAgent":        func(c *EvaluationContext) any { return c.Request.UserAgent },
	"request.geo.country": func(c *EvaluationContext) any {
		if c.Request.Geo == nil {
			return nil
		}
		return c.Request.Geo.Country
	},
	"request.geo.region": func(c *EvaluationContext) any {
		if c.Request.Geo == nil {
			return nil
		}
		return c.Request.Geo.Region
	},
	"request.geo.city": func(c *EvaluationContext) any {
		if c.Request.Geo == nil {
			return nil
		}
		return c.Request.Geo.City
	},
	"time.now":       func(c *EvaluationContext) any { return c.Time.Now },
	"time.timeOfDay": func(c *EvaluationContext) any { return c.Time.TimeOfDay },
	"time.dayOfWeek": func(c *EvaluationContext) any { return c.Time.DayOfWeek },
	"resource.id":    func(c *EvaluationContext) any { return c.Resource.ID },
	"resource.type":  func(c *EvaluationContext) any { return c.Resource.Type },
}

func userString(c *EvaluationContext, f func(*UserContext) string) any {
	if c.User == nil {
		return nil
	}
	return f(c.User)
}

func userList(c *EvaluationContext, f func(*UserContext) []string) any {
	if c.User == nil {
		return nil
	}
	return f(c.User)
}

func userTime(c *EvaluationContext, f func(*UserContext) any) any {
	if c.User == nil {
		return nil
	}
	return f(c.User)
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// ResolveField returns the value behind a dotted field path. A nil value with
// a nil error means the field exists but is unset (e.g. anonymous caller).
func ResolveField(path string, c *EvaluationContext) (any, error) {
	ex, ok := fieldExtractors[path]
	if !ok {
		return nil, fmt.Errorf("unknown field path: %s", path)
	}
	return ex(c), nil
}
