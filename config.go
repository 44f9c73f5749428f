package pageguard

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ============================================================================
// SITE CONFIGURATION
// ============================================================================

// AccessException grants an email or a whole domain direct access to routes
// matching its patterns ("*", "prefix/*", or an exact path).
type AccessException struct {
	Email         string   `json:"email,omitempty" yaml:"email,omitempty"`
	Domain        string   `json:"domain,omitempty" yaml:"domain,omitempty"`
	AllowedRoutes []string `json:"allowed_routes" yaml:"allowed_routes"`
}

// MaintenanceConfig gates the whole site behind a maintenance page
type MaintenanceConfig struct {
	Enabled       bool     `json:"enabled" yaml:"enabled"`
	AllowedRoles  []string `json:"allowed_roles,omitempty" yaml:"allowed_roles,omitempty"`
	AllowedEmails []string `json:"allowed_emails,omitempty" yaml:"allowed_emails,omitempty"`
}

// RedirectConfig holds the deny-target pages per failure class
type RedirectConfig struct {
	Login       string `json:"login" yaml:"login"`
	Forbidden   string `json:"forbidden" yaml:"forbidden"`
	NotFound    string `json:"not_found" yaml:"not_found"`
	Maintenance string `json:"maintenance" yaml:"maintenance"`
	Home        string `json:"home,omitempty" yaml:"home,omitempty"`
}

// SiteConfig is the static configuration loaded once at process start:
// the route tree by category, exceptions, maintenance mode, and redirects.
type SiteConfig struct {
	Version       uint16                 `json:"version,omitempty" yaml:"version,omitempty"`
	CategoryOrder []string               `json:"category_order" yaml:"category_order"`
	Routes        map[string][]RouteNode `json:"routes" yaml:"routes"`
	Exceptions    []AccessException      `json:"exceptions,omitempty" yaml:"exceptions,omitempty"`
	Maintenance   MaintenanceConfig      `json:"maintenance" yaml:"maintenance"`
	Redirects     RedirectConfig         `json:"redirects" yaml:"redirects"`
}

// ConfigLoader loads site configuration from the supported formats
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

func (l *ConfigLoader) LoadYAML(data []byte) (*SiteConfig, error) {
	cfg := &SiteConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*SiteConfig, error) {
	cfg := &SiteConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// ToYAML exports config to YAML
func (c *SiteConfig) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ToJSON exports config to JSON
func (c *SiteConfig) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// applyDefaults fills the category order from the route map when omitted.
// Map iteration order is not stable, so an explicit order is required when
// more than one category exists.
func (c *SiteConfig) applyDefaults() {
	if len(c.CategoryOrder) == 0 && len(c.Routes) == 1 {
		for cat := range c.Routes {
			c.CategoryOrder = []string{cat}
		}
	}
	if c.Redirects.Login == "" {
		c.Redirects.Login = "/login"
	}
	if c.Redirects.NotFound == "" {
		c.Redirects.NotFound = "/404"
	}
	if c.Redirects.Forbidden == "" {
		c.Redirects.Forbidden = "/403"
	}
	if c.Redirects.Maintenance == "" {
		c.Redirects.Maintenance = "/maintenance"
	}
}

// Validate checks structural soundness: every referenced category exists,
// routes carry paths, catch-alls are terminal, exceptions name a subject.
func (c *SiteConfig) Validate() error {
	if len(c.Routes) == 0 {
		return fmt.Errorf("config has no routes")
	}
	if len(c.CategoryOrder) == 0 {
		return fmt.Errorf("category_order is required when routes has multiple categories")
	}
	for _, cat := range c.CategoryOrder {
		if _, ok := c.Routes[cat]; !ok {
			return fmt.Errorf("category_order references unknown category %q", cat)
		}
	}
	for cat, nodes := range c.Routes {
		for i := range nodes {
			if err := validateRouteNode(&nodes[i], cat); err != nil {
				return err
			}
		}
	}
	for i, ex := range c.Exceptions {
		if ex.Email == "" && ex.Domain == "" {
			return fmt.Errorf("exception %d: email or domain is required", i)
		}
		if len(ex.AllowedRoutes) == 0 {
			return fmt.Errorf("exception %d: allowed_routes is required", i)
		}
	}
	return nil
}

func validateRouteNode(n *RouteNode, cat string) error {
	if n.Path == "" {
		return fmt.Errorf("category %q: route with empty path", cat)
	}
	segs := splitPath(n.Path)
	for i, s := range segs {
		if strings.HasPrefix(s, "[...") && i != len(segs)-1 {
			return fmt.Errorf("category %q route %q: catch-all segment must be last", cat, n.Path)
		}
	}
	if n.Access != nil {
		switch n.Access.Type {
		case RoutePublic, RouteAuth, RoutePrivate, RouteAdmin, RouteAPI:
		default:
			return fmt.Errorf("category %q route %q: unknown access type %q", cat, n.Path, n.Access.Type)
		}
	}
	for i := range n.Children {
		if err := validateRouteNode(&n.Children[i], cat); err != nil {
			return err
		}
	}
	return nil
}

// ConfigStats summarizes a config for the CLI
type ConfigStats struct {
	Categories    int `json:"categories"`
	Routes        int `json:"routes"`
	DynamicRoutes int `json:"dynamic_routes"`
	GuardedRoutes int `json:"guarded_routes"`
	Exceptions    int `json:"exceptions"`
}

func (c *SiteConfig) Stats() ConfigStats {
	st := ConfigStats{Categories: len(c.Routes), Exceptions: len(c.Exceptions)}
	var walk func(nodes []RouteNode)
	walk = func(nodes []RouteNode) {
		for i := range nodes {
			st.Routes++
			if strings.Contains(nodes[i].Path, "[") {
				st.DynamicRoutes++
			}
			if nodes[i].Access != nil {
				st.GuardedRoutes++
			}
			walk(nodes[i].Children)
		}
	}
	for _, nodes := range c.Routes {
		walk(nodes)
	}
	return st
}
