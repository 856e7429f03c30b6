package evmvc

import "net/http"

// dispatch runs the full pipeline for one completed request against the
// server's router tree, per §4.4: resolve the route, run its policy
// chain (router policies root-first, then the route's own), then pre-handlers
// (root-to-leaf), then the route's own handler chain, then post-handlers
// (root-to-leaf, always run), then end the response exactly once.
//
// Grounded on the teacher's Air.ServeHTTP (air.go), whose
// Pregases→router.route→Gases chaining this generalizes into the
// spec's richer policy/pre/post structure; the "next(err) short-
// circuits, but post-handlers still run" rule has no teacher
// equivalent (air's Gases wrap unconditionally) and is built fresh from
// §4.4 step 5.
func (s *Server) dispatch(req *Request, res *Response) {
	result, err := s.Router.Resolve(req.Method, req.URL.Path)
	if err != nil {
		s.dispatchMiss(req, res, err)
		return
	}

	req.Params = result.Params

	ctx := &FilterRuleCtx{Request: req, Response: res, Router: result.Router, Route: result.Route}
	post := result.PostHandlers()

	chainPolicies(result.Policies(), ctx, func(err error) {
		if err != nil {
			s.finishWithError(req, res, post, err, ErrKindPolicyDenied)
			return
		}
		s.runHandlerChain(req, res, result.PreHandlers(), func(err error) {
			if err != nil {
				s.finishWithError(req, res, post, err, ErrKindHandler)
				return
			}
			s.runHandlerChain(req, res, result.Route.Handlers, func(err error) {
				if err != nil {
					s.finishWithError(req, res, post, err, ErrKindHandler)
					return
				}
				s.runPostHandlers(req, res, post)
			})
		})
	})
}

// dispatchMiss handles a RouteMiss/MethodNotAllowed resolution error by
// invoking the server's NotFoundHandler/MethodNotAllowedHandler (§7),
// which — like the teacher's DefaultNotFoundHandler (air.go) — set no
// body of their own and instead signal next(err) so the same ErrorHandler
// renders every error uniformly. Root-level post-handlers still run
// afterward per §4.4 step 5, since no route resolved to supply its own.
func (s *Server) dispatchMiss(req *Request, res *Response, err error) {
	handler := s.NotFoundHandler
	if he, ok := err.(*HTTPError); ok && he.Status == http.StatusMethodNotAllowed {
		handler = s.MethodNotAllowedHandler
	}

	post := s.Router.postHandlers
	s.runHandlerChain(req, res, []Handler{handler}, func(err error) {
		if err != nil {
			s.finishWithError(req, res, post, err, ErrKindRouteMiss)
			return
		}
		s.runPostHandlers(req, res, post)
	})
}

// finishWithError populates the well-known "_err_*" Data keys (§7),
// invokes the server's ErrorHandler to render a response, then still runs
// post, per §4.4 step 5's "always run" rule.
func (s *Server) finishWithError(req *Request, res *Response, post []Handler, err error, kind ErrorKind) {
	status, message := statusForError(err, kind)
	res.Data[DataErrStatus] = status
	res.Data[DataErrStatusDesc] = http.StatusText(status)
	res.Data[DataErrMessage] = message

	s.runHandlerChain(req, res, []Handler{s.ErrorHandler}, func(error) {
		s.runPostHandlers(req, res, post)
	})
}

// runPostHandlers runs every post-handler in post, then ends the response
// exactly once.
func (s *Server) runPostHandlers(req *Request, res *Response, post []Handler) {
	s.runHandlerChain(req, res, post, func(error) {
		res.end()
	})
}

// runHandlerChain runs handlers in order, short-circuiting (without
// running the remaining handlers in this chain) the first time one
// calls next with a non-nil error, then calls done exactly once.
func (s *Server) runHandlerChain(req *Request, res *Response, handlers []Handler, done func(error)) {
	var step func(i int)
	step = func(i int) {
		if i >= len(handlers) {
			done(nil)
			return
		}

		handlers[i](req, res, func(err error) {
			if err != nil {
				done(err)
				return
			}
			step(i + 1)
		})
	}

	step(0)
}
