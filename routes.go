package pageguard

import "strings"

// ============================================================================
// ROUTE TREE
// ============================================================================

// RouteAccessType declares the visibility class of a route
type RouteAccessType string

const (
	RoutePublic  RouteAccessType = "public"
	RouteAuth    RouteAccessType = "auth"
	RoutePrivate RouteAccessType = "private"
	RouteAdmin   RouteAccessType = "admin"
	RouteAPI     RouteAccessType = "api"
)

// RouteAccessRule declares who may reach a route when no stored policy decides
type RouteAccessRule struct {
	Type             RouteAccessType `json:"type" yaml:"type"`
	Roles            []string        `json:"roles,omitempty" yaml:"roles,omitempty"`
	Emails           []string        `json:"emails,omitempty" yaml:"emails,omitempty"`
	Domains          []string        `json:"domains,omitempty" yaml:"domains,omitempty"`
	RedirectIfAuthed string          `json:"redirect_if_authed,omitempty" yaml:"redirect_if_authed,omitempty"`
}

// RouteNode is one node of the configured route tree. Children paths are
// relative to the parent; the parent prefix is accumulated by the matcher,
// not stored on the node.
type RouteNode struct {
	Path     string           `json:"path" yaml:"path"`
	Access   *RouteAccessRule `json:"access,omitempty" yaml:"access,omitempty"`
	Children []RouteNode      `json:"children,omitempty" yaml:"children,omitempty"`
}

// RouteMatch is a successful resolution of a request path
type RouteMatch struct {
	Route    *RouteNode
	Category string
	FullPath string            // configured path with markers, e.g. /users/[id]
	Params   map[string]string // extracted [param] and [...catchAll] values
}

// RouteResolver matches request paths against the configured route tree.
// Categories are walked in the order given at construction, then routes in
// declaration order; the first match wins.
type RouteResolver struct {
	categories []string
	routes     map[string][]RouteNode
}

// NewRouteResolver builds a resolver over category -> route list. The order
// slice fixes category precedence; categories absent from it are ignored.
func NewRouteResolver(routes map[string][]RouteNode, order []string) *RouteResolver {
	return &RouteResolver{categories: order, routes: routes}
}

// Match resolves a request path. Query string and fragment are stripped
// before matching. Returns nil when nothing matches.
func (r *RouteResolver) Match(path string) *RouteMatch {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	segs := splitPath(path)
	for _, cat := range r.categories {
		for i := range r.routes[cat] {
			if m := matchNode(&r.routes[cat][i], "", segs); m != nil {
				m.Category = cat
				return m
			}
		}
	}
	return nil
}

// matchNode tries the node's accumulated path against the request segments,
// then recurses into children. Depth-first, declaration order.
func matchNode(node *RouteNode, prefix string, segs []string) *RouteMatch {
	full := joinPath(prefix, node.Path)
	if params, ok := matchSegments(splitPath(full), segs); ok {
		return &RouteMatch{Route: node, FullPath: full, Params: params}
	}
	for i := range node.Children {
		if m := matchNode(&node.Children[i], full, segs); m != nil {
			return m
		}
	}
	return nil
}

// matchSegments compares pattern segments against request segments.
// A literal segment matches itself, "[name]" matches any single segment, and
// "[...name]" consumes the remaining segments (it must be last). Without a
// catch-all the segment counts must be equal.
func matchSegments(pattern, segs []string) (map[string]string, bool) {
	params := make(map[string]string)
	for i, p := range pattern {
		if strings.HasPrefix(p, "[...") && strings.HasSuffix(p, "]") {
			if i != len(pattern)-1 {
				return nil, false
			}
			if i >= len(segs) {
				return nil, false
			}
			name := p[4 : len(p)-1]
			params[name] = strings.Join(segs[i:], "/")
			return params, true
		}
		if i >= len(segs) {
			return nil, false
		}
		if strings.HasPrefix(p, "[") && strings.HasSuffix(p, "]") {
			params[p[1:len(p)-1]] = segs[i]
			continue
		}
		if p != segs[i] {
			return nil, false
		}
	}
	if len(pattern) != len(segs) {
		return nil, false
	}
	return params, true
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func joinPath(prefix, p string) string {
	p = strings.Trim(p, "/")
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return "/" + p
	}
	if p == "" {
		return prefix
	}
	return prefix + "/" + p
}
