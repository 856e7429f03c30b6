package evmvc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompilePatternLiteral(t *testing.T) {
	re, names, err := compilePattern("/users/list", true)
	assert.NoError(t, err)
	assert.Empty(t, names)
	assert.True(t, re.MatchString("/users/list"))
	assert.True(t, re.MatchString("/users/list/"))
	assert.False(t, re.MatchString("/users/List"))
}

func TestCompilePatternCaseInsensitiveByDefault(t *testing.T) {
	re, _, err := compilePattern("/users/list", false)
	assert.NoError(t, err)
	assert.True(t, re.MatchString("/Users/List"))
}

func TestCompilePatternRequiredParam(t *testing.T) {
	re, names, err := compilePattern("/users/:id", true)
	assert.NoError(t, err)
	assert.Equal(t, []string{"id"}, names)
	assert.True(t, re.MatchString("/users/42"))
	assert.False(t, re.MatchString("/users/"))
	assert.False(t, re.MatchString("/users"))
}

func TestCompilePatternCustomRegexParam(t *testing.T) {
	re, _, err := compilePattern(`/users/:id(\d+)`, true)
	assert.NoError(t, err)
	assert.True(t, re.MatchString("/users/42"))
	assert.False(t, re.MatchString("/users/abc"))
}

func TestCompilePatternOptionalParam(t *testing.T) {
	re, names, err := compilePattern("/users/:[id]", true)
	assert.NoError(t, err)
	assert.Equal(t, []string{"id"}, names)
	assert.True(t, re.MatchString("/users"))
	assert.True(t, re.MatchString("/users/42"))
}

func TestCompilePatternOptionalMustBeTrailing(t *testing.T) {
	_, _, err := compilePattern("/users/:[id]/posts", true)
	assert.Error(t, err)
}

func TestCompilePatternAnySegment(t *testing.T) {
	re, _, err := compilePattern("/files/*", true)
	assert.NoError(t, err)
	assert.True(t, re.MatchString("/files/a.txt"))
	assert.False(t, re.MatchString("/files/a/b.txt"))
}

func TestCompilePatternGreedyRemainder(t *testing.T) {
	re, _, err := compilePattern("/files/**", true)
	assert.NoError(t, err)
	assert.True(t, re.MatchString("/files/a/b/c.txt"))
}

func TestCompilePatternCollapsesDoubleSlashes(t *testing.T) {
	re, names, err := compilePattern("/users//:id//posts", true)
	assert.NoError(t, err)
	assert.Equal(t, []string{"id"}, names)
	assert.True(t, re.MatchString("/users/42/posts"))
}

func TestRouteMatchExtractsParams(t *testing.T) {
	rt, err := compileRoute("GET", "/users/:id", true, nil, nil)
	assert.NoError(t, err)

	params, ok := rt.match("/users/42")
	assert.True(t, ok)
	assert.Equal(t, "42", params["id"])
}

func TestRouteMatchUnmatchedOptionalParamAbsent(t *testing.T) {
	rt, err := compileRoute("GET", "/users/:[id]", true, nil, nil)
	assert.NoError(t, err)

	params, ok := rt.match("/users")
	assert.True(t, ok)
	_, present := params["id"]
	assert.False(t, present)
}
