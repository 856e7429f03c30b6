package evmvc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestURLStringPathOnly(t *testing.T) {
	u := &URL{Path: "/a/b"}
	assert.Equal(t, "/a/b", u.String())
}

func TestURLStringWithQuery(t *testing.T) {
	u := &URL{Path: "/a/b", RawQuery: "x=1"}
	assert.Equal(t, "/a/b?x=1", u.String())
}

func TestURLStringWithSchemeAndHost(t *testing.T) {
	u := &URL{Scheme: "https", Host: "example.com", Path: "/a"}
	assert.Equal(t, "https://example.com/a", u.String())
}

func TestURLStringHostWithoutLeadingSlashPath(t *testing.T) {
	u := &URL{Host: "example.com", Path: "a"}
	assert.Equal(t, "//example.com/a", u.String())
}

func TestURLQueryParsesRawQuery(t *testing.T) {
	u := &URL{RawQuery: "a=1&b=2"}
	q, err := u.Query()
	assert.NoError(t, err)
	assert.Equal(t, "1", q.Get("a"))
	assert.Equal(t, "2", q.Get("b"))
}

func TestURLQueryEmpty(t *testing.T) {
	u := &URL{}
	q, err := u.Query()
	assert.NoError(t, err)
	assert.Empty(t, q)
}
