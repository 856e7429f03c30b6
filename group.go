package evmvc

// Group returns a new Router mounted under r at path, sharing r's
// case-sensitivity setting. Grounded on the teacher's Air.Group
// (air.go), which returns an *AirGroup wrapping a path prefix and the
// parent's Pregases/Gases; generalized here to just return another
// Router, since in this module's hierarchical tree a sub-router already
// is the grouping unit (§3/§4.3) — no separate Group type is needed.
func (r *Router) Group(path string) *Router {
	child := NewRouter(path)
	child.caseSensitive = r.caseSensitive
	r.Mount(child)
	return child
}

// RegisterRoute is a verbose alias for Handle, naming the operation the
// way §3/§4.4 name it ("register_route").
func (r *Router) RegisterRoute(method, pattern string, policy *FilterPolicy, handlers ...Handler) *Route {
	return r.Handle(method, pattern, policy, handlers...)
}

// RegisterRouter is a verbose alias for Mount ("register_router").
func (r *Router) RegisterRouter(child *Router) *Router {
	return r.Mount(child)
}

// RegisterPolicy is a verbose alias for Policy ("register_policy").
func (r *Router) RegisterPolicy(policy *FilterPolicy) *Router {
	return r.Policy(policy)
}

// UsePre registers pre-handlers only ("use", pre-handler form).
func (r *Router) UsePre(handlers ...Handler) *Router {
	return r.Use(handlers, nil)
}

// UsePost registers post-handlers only ("use", post-handler form).
func (r *Router) UsePost(handlers ...Handler) *Router {
	return r.Use(nil, handlers)
}

// RouterIndex is a verbose alias for Index ("router_index").
func (r *Router) RouterIndex(handlers ...Handler) *Router {
	return r.Index(handlers...)
}
