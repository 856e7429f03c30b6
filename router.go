package evmvc

import "strings"

// Router is one node of the hierarchical router tree described in §3/§4.3:
// a path segment, an ordered list of child routers, a flat list of routes
// registered directly on it, a pre-handler chain, a post-handler chain, and
// a policy chain. Unlike the teacher's radix-tree router (router.go, which
// flattens every registered path into a single trie of static/param/any
// nodes), routers here nest explicitly — each Router owns its own routes
// and children, mirroring the sub-application mounting model in
// original_source's include/evmvc/router.h.
//
// The back-reference Router.parent is a plain pointer, not a weak one: Go's garbage collector reclaims reference cycles on its own,
// so the spec's "never as owning cycles" concern (about manual refcounting
// leaks, not collectability) doesn't apply here. What the spec actually
// requires — that tearing down a subtree doesn't require walking parents
// — still holds, since nothing here keeps a parent alive solely via a
// child's back-reference refcount.
type Router struct {
	path   string
	parent *Router

	children []*Router
	routes   []*Route
	index    *Route

	preHandlers  []Handler
	postHandlers []Handler
	policy       *FilterPolicy

	caseSensitive bool
}

// NewRouter returns the root of a new router tree. path is this router's
// own path segment ("" for a root router). Per §4.3, double slashes inside
// path are collapsed before it's used as a mount prefix.
func NewRouter(path string) *Router {
	return &Router{path: collapseSlashes(strings.Trim(path, "/"))}
}

// CaseSensitive sets whether routes registered directly on r compile
// case-sensitively (§4.3, Design Note/PART D: routes are
// case-insensitive by default).
func (r *Router) CaseSensitive(v bool) *Router {
	r.caseSensitive = v
	return r
}

// Mount attaches child as a sub-router of r, claiming the "/"+child.path
// namespace. Children are tried in mount order during resolution (§4.3
// step 2), matching the teacher's FILO/ordered chain style elsewhere in
// air.go (Pregases/Gases).
func (r *Router) Mount(child *Router) *Router {
	child.parent = r
	r.children = append(r.children, child)
	return r
}

// Use appends pre-handlers (run root-to-leaf before route handlers) and
// post-handlers (run root-to-leaf after route handlers, always, per
// §4.4 steps 3 and 5) to r.
func (r *Router) Use(pre, post []Handler) *Router {
	r.preHandlers = append(r.preHandlers, pre...)
	r.postHandlers = append(r.postHandlers, post...)
	return r
}

// Policy attaches policy (run per §4.4 step 1) to r.
func (r *Router) Policy(policy *FilterPolicy) *Router {
	r.policy = policy
	return r
}

// Index registers the handler chain that serves this router's own root
// path ("/" relative to r), i.e. router_index per PART D item 2.
func (r *Router) Index(handlers ...Handler) *Router {
	route, err := compileRoute("", "/", r.caseSensitive, handlers, nil)
	if err != nil {
		panic(err)
	}
	r.index = route
	return r
}

// Handle registers a route for method and pattern (relative to r) with
// handlers, guarded by policy (may be nil). It panics on an invalid
// pattern, matching the teacher's add()'s panic-on-conflict style
// (router.go).
func (r *Router) Handle(method, pattern string, policy *FilterPolicy, handlers ...Handler) *Route {
	route, err := compileRoute(method, pattern, r.caseSensitive, handlers, policy)
	if err != nil {
		panic(err)
	}
	r.routes = append(r.routes, route)
	return route
}

// GET, POST, PUT, PATCH, DELETE, HEAD, OPTIONS register a route for the
// corresponding HTTP method, mirroring the teacher's per-verb methods on
// Air (air.go's GET/POST/...).
func (r *Router) GET(pattern string, policy *FilterPolicy, handlers ...Handler) *Route {
	return r.Handle("GET", pattern, policy, handlers...)
}

func (r *Router) POST(pattern string, policy *FilterPolicy, handlers ...Handler) *Route {
	return r.Handle("POST", pattern, policy, handlers...)
}

func (r *Router) PUT(pattern string, policy *FilterPolicy, handlers ...Handler) *Route {
	return r.Handle("PUT", pattern, policy, handlers...)
}

func (r *Router) PATCH(pattern string, policy *FilterPolicy, handlers ...Handler) *Route {
	return r.Handle("PATCH", pattern, policy, handlers...)
}

func (r *Router) DELETE(pattern string, policy *FilterPolicy, handlers ...Handler) *Route {
	return r.Handle("DELETE", pattern, policy, handlers...)
}

func (r *Router) HEAD(pattern string, policy *FilterPolicy, handlers ...Handler) *Route {
	return r.Handle("HEAD", pattern, policy, handlers...)
}

func (r *Router) OPTIONS(pattern string, policy *FilterPolicy, handlers ...Handler) *Route {
	return r.Handle("OPTIONS", pattern, policy, handlers...)
}

// ResolveResult is the outcome of resolving a (method, path) pair: the
// matched route, its extracted params, the router chain from root to the
// route's owning router (needed to run policies/pre/post-handlers
// outward, per §4.4), and the owning router itself.
type ResolveResult struct {
	Route   *Route
	Params  map[string]string
	Chain   []*Router // root-first
	Router  *Router
}

// Resolve walks the router tree for (method, path) per §4.3's four-step
// algorithm: try child routers first (in mount order), then this
// router's index for an empty remainder, then this router's own routes.
// Path-only matches under a different method produce ErrMethodNotAllowed
// instead of falling through to a 404.
func (r *Router) Resolve(method, path string) (*ResolveResult, error) {
	return r.resolve(method, path, nil)
}

func (r *Router) resolve(method, remaining string, chain []*Router) (*ResolveResult, error) {
	chain = append(chain, r)

	for _, child := range r.children {
		rest, ok := stripRouterPrefix(remaining, child.path)
		if !ok {
			continue
		}
		return child.resolve(method, rest, chain)
	}

	if (remaining == "" || remaining == "/") && r.index != nil {
		return &ResolveResult{Route: r.index, Params: map[string]string{}, Chain: chain, Router: r}, nil
	}

	pathMatchedOtherMethod := false
	for _, route := range r.routes {
		params, ok := route.match(remaining)
		if !ok {
			continue
		}
		if route.Method != method {
			pathMatchedOtherMethod = true
			continue
		}
		return &ResolveResult{Route: route, Params: params, Chain: chain, Router: r}, nil
	}

	if pathMatchedOtherMethod {
		return nil, ErrMethodNotAllowed
	}

	return nil, ErrNotFound
}

// stripRouterPrefix reports whether path begins with the path segment
// prefix (a router's mount path), returning the remainder. "" matches
// everything unchanged (an unnamed pass-through router).
func stripRouterPrefix(path, prefix string) (string, bool) {
	if prefix == "" {
		return path, true
	}

	full := "/" + prefix
	if !strings.HasPrefix(path, full) {
		return "", false
	}

	rest := path[len(full):]
	if rest != "" && rest[0] != '/' {
		return "", false
	}
	if rest == "" {
		rest = "/"
	}

	return rest, true
}

// Policies returns the policy chain for res, routers outermost-first
// (root to the route's own router) then the route's own policy last,
// per §4.4 step 1: "Execute router policies outermost-first, then route
// policies" — confirmed by original_source/include/evmvc/router.h's
// validate_access, which recurses to the parent router before validating
// its own rules.
func (res *ResolveResult) Policies() []*FilterPolicy {
	var out []*FilterPolicy
	for _, router := range res.Chain {
		if p := router.policy; p != nil {
			out = append(out, p)
		}
	}
	if res.Route != nil && res.Route.Policy != nil {
		out = append(out, res.Route.Policy)
	}
	return out
}

// PreHandlers returns every router's pre-handlers root-to-leaf, per
// §4.4 step 3.
func (res *ResolveResult) PreHandlers() []Handler {
	var out []Handler
	for _, router := range res.Chain {
		out = append(out, router.preHandlers...)
	}
	return out
}

// PostHandlers returns every router's post-handlers root-to-leaf, per
// §4.4 step 5.
func (res *ResolveResult) PostHandlers() []Handler {
	var out []Handler
	for _, router := range res.Chain {
		out = append(out, router.postHandlers...)
	}
	return out
}
