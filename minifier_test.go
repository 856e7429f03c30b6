package evmvc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinifierMinifiesCSS(t *testing.T) {
	mf := NewMinifier()
	out, err := mf.Minify("text/css", []byte("body {\n  color: red;\n}\n"))
	assert.NoError(t, err)
	assert.Equal(t, "body{color:red}", string(out))
}

func TestMinifierMinifiesHTML(t *testing.T) {
	mf := NewMinifier()
	out, err := mf.Minify("text/html", []byte("<html>   <body>  hi  </body> </html>"))
	assert.NoError(t, err)
	assert.NotContains(t, string(out), "   ")
}

func TestMinifierStripsMIMEParameters(t *testing.T) {
	mf := NewMinifier()
	out, err := mf.Minify("text/css; charset=utf-8", []byte("a { color: blue; }"))
	assert.NoError(t, err)
	assert.Equal(t, "a{color:blue}", string(out))
}

func TestMinifierUnsupportedMIMEErrors(t *testing.T) {
	mf := NewMinifier()
	_, err := mf.Minify("application/x-unknown", []byte("data"))
	assert.Error(t, err)
}

func TestMinifierRegistersLazilyOnlyOnce(t *testing.T) {
	mf := NewMinifier()
	_, err := mf.Minify("application/json", []byte(`{"a": 1}`))
	assert.NoError(t, err)

	out, err := mf.Minify("application/json", []byte(`{"a":   2}`))
	assert.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(out))
}
