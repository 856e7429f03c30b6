package evmvc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newDispatchTestConn(server *Server) (*fakeSocket, *Connection) {
	sock := &fakeSocket{}
	conn := newConnection(sock, fakeReactor{}, server)
	return sock, conn
}

func TestDispatchRunsRouteHandler(t *testing.T) {
	server := NewServer(nil)
	server.Router.GET("/ok", nil, func(req *Request, res *Response, next func(error)) {
		res.WriteString("ok")
		next(nil)
	})

	sock, conn := newDispatchTestConn(server)
	req := newRequest(conn)
	req.Method = "GET"
	req.URL = &URL{Path: "/ok"}
	res := newResponse(conn, req)

	server.dispatch(req, res)

	assert.Contains(t, sock.written.String(), "ok")
}

func TestDispatchNotFoundCallsNotFoundHandler(t *testing.T) {
	server := NewServer(nil)

	sock, conn := newDispatchTestConn(server)
	req := newRequest(conn)
	req.Method = "GET"
	req.URL = &URL{Path: "/missing"}
	res := newResponse(conn, req)

	server.dispatch(req, res)

	assert.Contains(t, sock.written.String(), "HTTP/1.1 404")
}

func TestDispatchMethodNotAllowed(t *testing.T) {
	server := NewServer(nil)
	server.Router.GET("/only-get", nil, func(req *Request, res *Response, next func(error)) { next(nil) })

	sock, conn := newDispatchTestConn(server)
	req := newRequest(conn)
	req.Method = "POST"
	req.URL = &URL{Path: "/only-get"}
	res := newResponse(conn, req)

	server.dispatch(req, res)

	assert.Contains(t, sock.written.String(), "HTTP/1.1 405")
}

func TestDispatchPolicyDenialSkipsHandlerButRunsPostHandlers(t *testing.T) {
	server := NewServer(nil)
	var postRan bool
	server.Router.Use(nil, []Handler{func(req *Request, res *Response, next func(error)) {
		postRan = true
		next(nil)
	}})

	var handlerRan bool
	denyErr := errors.New("nope")
	policy := NewFilterPolicy(func(ctx *FilterRuleCtx, next func(error)) { next(denyErr) })
	server.Router.GET("/guarded", policy, func(req *Request, res *Response, next func(error)) {
		handlerRan = true
		next(nil)
	})

	sock, conn := newDispatchTestConn(server)
	req := newRequest(conn)
	req.Method = "GET"
	req.URL = &URL{Path: "/guarded"}
	res := newResponse(conn, req)

	server.dispatch(req, res)

	assert.False(t, handlerRan)
	assert.True(t, postRan)
	assert.Contains(t, sock.written.String(), "HTTP/1.1 403")
}

func TestDispatchHandlerErrorStillRunsPostHandlers(t *testing.T) {
	server := NewServer(nil)
	var postRan bool
	server.Router.Use(nil, []Handler{func(req *Request, res *Response, next func(error)) {
		postRan = true
		next(nil)
	}})
	server.Router.GET("/fails", nil, func(req *Request, res *Response, next func(error)) {
		next(NewHTTPError(500))
	})

	sock, conn := newDispatchTestConn(server)
	req := newRequest(conn)
	req.Method = "GET"
	req.URL = &URL{Path: "/fails"}
	res := newResponse(conn, req)

	server.dispatch(req, res)

	assert.True(t, postRan)
	assert.Contains(t, sock.written.String(), "HTTP/1.1 500")
}

func TestRunHandlerChainShortCircuits(t *testing.T) {
	server := &Server{}
	var ranSecond bool

	handlers := []Handler{
		func(req *Request, res *Response, next func(error)) { next(errors.New("stop")) },
		func(req *Request, res *Response, next func(error)) { ranSecond = true; next(nil) },
	}

	var gotErr error
	server.runHandlerChain(nil, nil, handlers, func(err error) { gotErr = err })

	assert.Error(t, gotErr)
	assert.False(t, ranSecond)
}

func TestRunHandlerChainEmptyCallsDoneWithNil(t *testing.T) {
	server := &Server{}

	var called bool
	server.runHandlerChain(nil, nil, nil, func(err error) {
		called = true
		assert.NoError(t, err)
	})
	assert.True(t, called)
}
