package utils

import "strings"

// MatchRoute checks a request path against an exception route pattern.
// Patterns come in three shapes:
//   - "*" matches every path.
//   - "prefix/*" matches the prefix itself and anything below it.
//   - anything else is an exact match (trailing slashes ignored).
func MatchRoute(path, pattern string) bool {
	if pattern == "*" {
		return true
	}
	path = normalize(path)
	pattern = normalize(pattern)
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
	return path == pattern
}

// MatchAnyRoute reports whether any pattern in the list matches the path.
func MatchAnyRoute(path string, patterns []string) bool {
	for _, p := range patterns {
		if MatchRoute(path, p) {
			return true
		}
	}
	return false
}

func normalize(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}
