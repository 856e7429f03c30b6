package evmvc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func noopHandler(req *Request, res *Response, next func(error)) { next(nil) }

func TestRouterResolveOwnRoute(t *testing.T) {
	root := NewRouter("")
	root.GET("/users/:id", nil, noopHandler)

	result, err := root.Resolve("GET", "/users/42")
	assert.NoError(t, err)
	assert.Equal(t, "42", result.Params["id"])
	assert.Same(t, root, result.Router)
}

func TestRouterResolveMethodNotAllowed(t *testing.T) {
	root := NewRouter("")
	root.GET("/users/:id", nil, noopHandler)

	_, err := root.Resolve("POST", "/users/42")
	assert.ErrorIs(t, err, ErrMethodNotAllowed)
}

func TestRouterResolveNotFound(t *testing.T) {
	root := NewRouter("")
	root.GET("/users/:id", nil, noopHandler)

	_, err := root.Resolve("GET", "/accounts/1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRouterResolveChildRouter(t *testing.T) {
	root := NewRouter("")
	users := root.Group("users")
	users.GET("/:id", nil, noopHandler)

	result, err := root.Resolve("GET", "/users/42")
	assert.NoError(t, err)
	assert.Equal(t, "42", result.Params["id"])
	assert.Same(t, users, result.Router)
	assert.Len(t, result.Chain, 2)
}

func TestRouterResolveIndex(t *testing.T) {
	root := NewRouter("")
	users := root.Group("users")
	users.Index(noopHandler)

	result, err := root.Resolve("GET", "/users")
	assert.NoError(t, err)
	assert.Same(t, users.index, result.Route)
}

func TestRouterMountPathCollapsesDoubleSlashes(t *testing.T) {
	root := NewRouter("")
	users := NewRouter("users//profile")
	root.Mount(users)
	users.GET("/:id", nil, noopHandler)

	result, err := root.Resolve("GET", "/users/profile/42")
	assert.NoError(t, err)
	assert.Equal(t, "42", result.Params["id"])
}

func TestResolveResultPoliciesOrderedRootFirstThenLeafward(t *testing.T) {
	var order []string
	track := func(name string) PolicyFunc {
		return func(ctx *FilterRuleCtx, next func(error)) {
			order = append(order, name)
			next(nil)
		}
	}

	root := NewRouter("")
	root.Policy(NewFilterPolicy(track("root")))

	users := root.Group("users")
	users.Policy(NewFilterPolicy(track("users")))

	route := users.GET("/:id", NewFilterPolicy(track("route")), noopHandler)
	_ = route

	result, err := root.Resolve("GET", "/users/42")
	assert.NoError(t, err)

	chainPolicies(result.Policies(), &FilterRuleCtx{}, func(err error) {
		assert.NoError(t, err)
	})

	assert.Equal(t, []string{"root", "users", "route"}, order)
}

func TestResolveResultPreAndPostHandlersRunRootToLeaf(t *testing.T) {
	var order []string
	track := func(name string) Handler {
		return func(req *Request, res *Response, next func(error)) {
			order = append(order, name)
			next(nil)
		}
	}

	root := NewRouter("")
	root.Use([]Handler{track("root-pre")}, []Handler{track("root-post")})

	users := root.Group("users")
	users.Use([]Handler{track("users-pre")}, []Handler{track("users-post")})
	users.GET("/:id", nil, noopHandler)

	result, err := root.Resolve("GET", "/users/42")
	assert.NoError(t, err)

	assert.Equal(t, []Handler{root.preHandlers[0], users.preHandlers[0]}, result.PreHandlers())

	for _, h := range result.PreHandlers() {
		h(nil, nil, func(error) {})
	}
	assert.Equal(t, []string{"root-pre", "users-pre"}, order)

	order = nil
	for _, h := range result.PostHandlers() {
		h(nil, nil, func(error) {})
	}
	assert.Equal(t, []string{"root-post", "users-post"}, order)
}
