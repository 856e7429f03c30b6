package evmvc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeadersCaseInsensitiveSetGetFirst(t *testing.T) {
	h := Headers{}
	h.Set("Content-Type", "text/plain")

	assert.Equal(t, []string{"text/plain"}, h.Get("content-type"))
	assert.Equal(t, "text/plain", h.First("CONTENT-TYPE"))
}

func TestHeadersAddAppends(t *testing.T) {
	h := Headers{}
	h.Add("Set-Cookie", "a=1")
	h.Add("Set-Cookie", "b=2")

	assert.Equal(t, []string{"a=1", "b=2"}, h.Get("set-cookie"))
}

func TestHeadersDelete(t *testing.T) {
	h := Headers{}
	h.Set("X-Foo", "bar")
	h.Delete("x-foo")

	assert.Nil(t, h.Get("X-Foo"))
}

func TestHeadersHasToken(t *testing.T) {
	h := Headers{}
	h.Set("Connection", "keep-alive, Upgrade")

	assert.True(t, h.Has("Connection", "upgrade"))
	assert.False(t, h.Has("Connection", "close"))
}

func TestAttributeParsesKeyValuePairs(t *testing.T) {
	v, ok := Attribute(`a; k1=v1; k2="v2"`, "k1", ';', '=')
	assert.True(t, ok)
	assert.Equal(t, "v1", v)

	v, ok = Attribute(`a; k1=v1; k2="v2"`, "k2", ';', '=')
	assert.True(t, ok)
	assert.Equal(t, "v2", v)

	_, ok = Attribute(`a; k1=v1`, "missing", ';', '=')
	assert.False(t, ok)
}

func TestFlagDetectsBareToken(t *testing.T) {
	assert.True(t, Flag("a; secure", "secure"))
	assert.False(t, Flag("a; secure", "httponly"))
}

func TestParseAcceptEncodingOrdersByWeight(t *testing.T) {
	parsed := ParseAcceptEncoding("gzip;q=0.5, deflate;q=0.8, br")
	assert.Equal(t, EncodingUnsupported, parsed[0].Kind) // br, implicit q=1
	assert.Equal(t, EncodingDeflate, parsed[1].Kind)
	assert.Equal(t, EncodingGzip, parsed[2].Kind)
}

func TestParseAcceptEncodingEmpty(t *testing.T) {
	assert.Nil(t, ParseAcceptEncoding(""))
}

func TestPreferredEncodingPrefersGzipOnTie(t *testing.T) {
	accepted := []AcceptEncoding{
		{Kind: EncodingGzip, Weight: 0.8},
		{Kind: EncodingDeflate, Weight: 0.8},
	}
	assert.Equal(t, EncodingGzip, PreferredEncoding(accepted))
}

func TestPreferredEncodingStarFallback(t *testing.T) {
	accepted := ParseAcceptEncoding("*;q=0.7")
	assert.Equal(t, EncodingGzip, PreferredEncoding(accepted))
}

func TestPreferredEncodingNoneAcceptable(t *testing.T) {
	assert.Equal(t, EncodingUnsupported, PreferredEncoding(nil))
}

func TestParseAcceptLanguageOrdersByWeight(t *testing.T) {
	parsed := ParseAcceptLanguage("fr;q=0.3, en;q=0.9")
	assert.Len(t, parsed, 2)
	assert.Equal(t, "en", parsed[0].Tag)
	assert.Equal(t, "fr", parsed[1].Tag)
}

func TestParseAcceptLanguageEmpty(t *testing.T) {
	assert.Nil(t, ParseAcceptLanguage(""))
}
