package domain

import (
	"fmt"
	"net/http"
	"strings"
)

// GuardedRoute binds a method and path prefix to the usage type the
// request gate charges for it.
type GuardedRoute struct {
	Method string // empty matches any method
	Prefix string
	Type   UsageType
}

// Matches reports whether the route covers a request. The prefix matches
// the exact path or any path below it.
func (g GuardedRoute) Matches(method, path string) bool {
	if g.Method != "" && !strings.EqualFold(g.Method, method) {
		return false
	}
	if path == g.Prefix {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(g.Prefix, "/")+"/")
}

// DefaultGuardedRoutes are the AI endpoints of the application.
func DefaultGuardedRoutes() []GuardedRoute {
	return []GuardedRoute{
		{Method: http.MethodPost, Prefix: "/api/chat", Type: UsageTypeChatMessage},
		{Method: http.MethodPost, Prefix: "/api/documents/generate", Type: UsageTypeDocumentGeneration},
		{Method: http.MethodPost, Prefix: "/api/documents/analyze", Type: UsageTypeDocumentAnalysis},
		{Method: http.MethodPost, Prefix: "/api/ai", Type: UsageTypeAIFeature},
	}
}

// ParseGuardedRoutes parses "METHOD /prefix=usage_type" entries separated
// by commas. The method may be omitted to match any method.
func ParseGuardedRoutes(s string) ([]GuardedRoute, error) {
	const op = "route.parse"

	var routes []GuardedRoute
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		target, typ, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, Invalid(op, fmt.Sprintf("route %q must look like \"METHOD /path=usage_type\"", entry))
		}
		usageType, err := ParseUsageType(strings.TrimSpace(typ))
		if err != nil {
			return nil, err
		}

		route := GuardedRoute{Type: usageType}
		fields := strings.Fields(target)
		switch len(fields) {
		case 1:
			route.Prefix = fields[0]
		case 2:
			route.Method = strings.ToUpper(fields[0])
			route.Prefix = fields[1]
		default:
			return nil, Invalid(op, fmt.Sprintf("route %q has an invalid target", entry))
		}
		if !strings.HasPrefix(route.Prefix, "/") {
			return nil, Invalid(op, fmt.Sprintf("route prefix %q must start with /", route.Prefix))
		}
		routes = append(routes, route)
	}
	return routes, nil
}
