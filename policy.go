package evmvc

// PolicyFunc decides whether a request may proceed past one filter rule.
// It calls next(nil) to allow, next(err) to deny (err becomes a
// PolicyDenied error per §7 unless it is already an *HTTPError), per
// §3/§4.4 step 1.
type PolicyFunc func(ctx *FilterRuleCtx, next func(error))

// FilterRuleCtx is the read-only view a PolicyFunc gets of the request
// being filtered — the route it resolved to (if any) and the router that
// owns the rule being evaluated. Grounded on the teacher's Gas signature
// (air.go's `type Gas func(Handler) Handler`), generalized into an
// explicit context object since the spec's policy chain needs to see
// which router/route is being evaluated at each step (§4.4 step 1:
// router policies from the root down, then the route's own).
type FilterRuleCtx struct {
	Request  *Request
	Response *Response
	Router   *Router
	Route    *Route
}

// FilterPolicy is an ordered chain of policy rules attached to a Router
// or a Route. Per §4.4 step 1, the root router's policy runs first, then
// each descendant router's down to the route's owning router, then the
// route's own policy (see ResolveResult.Policies); within one
// FilterPolicy, rules run in order.
type FilterPolicy struct {
	rules []PolicyFunc
}

// NewFilterPolicy returns a FilterPolicy running rules in order.
func NewFilterPolicy(rules ...PolicyFunc) *FilterPolicy {
	return &FilterPolicy{rules: append([]PolicyFunc(nil), rules...)}
}

// Append adds rules to the end of p's chain and returns p.
func (p *FilterPolicy) Append(rules ...PolicyFunc) *FilterPolicy {
	p.rules = append(p.rules, rules...)
	return p
}

// run evaluates p's rules in order, calling done with the first denial
// or nil if every rule allowed.
func (p *FilterPolicy) run(ctx *FilterRuleCtx, done func(error)) {
	if p == nil || len(p.rules) == 0 {
		done(nil)
		return
	}

	var step func(i int)
	step = func(i int) {
		if i >= len(p.rules) {
			done(nil)
			return
		}

		p.rules[i](ctx, func(err error) {
			if err != nil {
				done(err)
				return
			}
			step(i + 1)
		})
	}

	step(0)
}

// chainPolicies runs each FilterPolicy in policies in the order given
// (ResolveResult.Policies supplies routers root-first, then the route's
// own policy, per §4.4 step 1), short-circuiting on the first denial.
func chainPolicies(policies []*FilterPolicy, ctx *FilterRuleCtx, done func(error)) {
	var step func(i int)
	step = func(i int) {
		if i >= len(policies) {
			done(nil)
			return
		}

		policies[i].run(ctx, func(err error) {
			if err != nil {
				done(err)
				return
			}
			step(i + 1)
		})
	}

	step(0)
}
