package httpserver

import "strings"

// Route binds one host/path pattern to the component that should
// receive matching inbound requests. Grounded on
// pkg/ingress/router.go's Rule/Paths matching, generalized from an
// IngressBackend address to a component id since the builtin-http-server
// feature dispatches straight into the host's own component pool
// instead of proxying to an external service.
type Route struct {
	Host        string // "" matches any host; "*.example.com" matches a wildcard suffix
	PathPrefix  string // "" or "/" matches any path
	ComponentID string
}

// Router finds the best-matching Route for one inbound request, the
// longest path prefix winning among routes whose host also matches.
type Router struct {
	routes []Route
}

func NewRouter(routes []Route) *Router {
	return &Router{routes: routes}
}

func (r *Router) UpdateRoutes(routes []Route) {
	r.routes = routes
}

// Route returns the component id that should handle host/path, or
// false if nothing matches.
func (r *Router) Route(host, path string) (string, bool) {
	var best Route
	var bestLen = -1
	for _, route := range r.routes {
		if !matchHost(route.Host, host) {
			continue
		}
		if !matchPath(route.PathPrefix, path) {
			continue
		}
		if len(route.PathPrefix) > bestLen {
			best = route
			bestLen = len(route.PathPrefix)
		}
	}
	if bestLen < 0 {
		return "", false
	}
	return best.ComponentID, true
}

func matchHost(pattern, host string) bool {
	if pattern == "" {
		return true
	}
	if idx := strings.IndexByte(host, ':'); idx != -1 {
		host = host[:idx]
	}
	if pattern == host {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		return strings.HasSuffix(host, pattern[1:])
	}
	return false
}

func matchPath(pattern, requestPath string) bool {
	if pattern == "" || pattern == "/" {
		return true
	}
	if !strings.HasPrefix(requestPath, pattern) {
		return false
	}
	if len(requestPath) == len(pattern) {
		return true
	}
	if pattern[len(pattern)-1] == '/' {
		return true
	}
	return requestPath[len(pattern)] == '/'
}
