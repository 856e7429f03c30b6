package evmvc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestServer() (*Server, *fakeSocket, *Connection) {
	server := NewServer(nil)
	server.Router.GET("/hello", nil, func(req *Request, res *Response, next func(error)) {
		res.WriteString("hi")
		next(nil)
	})

	sock := &fakeSocket{}
	conn := newConnection(sock, fakeReactor{}, server)
	return server, sock, conn
}

func TestHTTPParserFeedsSimpleGETAndDispatches(t *testing.T) {
	_, sock, conn := newTestServer()

	conn.onReadable([]byte("GET /hello HTTP/1.1\r\nHost: example.com\r\n\r\n"))

	out := sock.written.String()
	assert.Contains(t, out, "HTTP/1.1 200 OK\r\n")
	assert.True(t, strings.HasSuffix(out, "hi"))
	assert.False(t, conn.flags.has(connWaitRelease))
	assert.Equal(t, 0, conn.in.Len())
}

func TestHTTPParserParsesContentLengthBody(t *testing.T) {
	server := NewServer(nil)
	var gotBody string
	server.Router.POST("/echo", nil, func(req *Request, res *Response, next func(error)) {
		gotBody = string(req.Body.Bytes())
		res.WriteString(gotBody)
		next(nil)
	})

	sock := &fakeSocket{}
	conn := newConnection(sock, fakeReactor{}, server)
	conn.onReadable([]byte("POST /echo HTTP/1.1\r\nContent-Length: 5\r\n\r\nhowdy"))

	assert.Equal(t, "howdy", gotBody)
}

func TestHTTPParserParsesChunkedBody(t *testing.T) {
	server := NewServer(nil)
	var gotBody string
	server.Router.POST("/echo", nil, func(req *Request, res *Response, next func(error)) {
		gotBody = string(req.Body.Bytes())
		res.WriteString(gotBody)
		next(nil)
	})

	sock := &fakeSocket{}
	conn := newConnection(sock, fakeReactor{}, server)
	msg := "POST /echo HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"4\r\nwiki\r\n5\r\npedia\r\n0\r\n\r\n"
	conn.onReadable([]byte(msg))

	assert.Equal(t, "wikipedia", gotBody)
}

func TestHTTPParserRejectsMalformedRequestLine(t *testing.T) {
	_, sock, conn := newTestServer()

	conn.onReadable([]byte("GARBAGE\r\n\r\n"))

	assert.True(t, conn.flags.has(connError))
	assert.True(t, sock.closed)
}

func TestHTTPParserPartialMessageWaitsForMoreData(t *testing.T) {
	_, _, conn := newTestServer()

	conn.onReadable([]byte("GET /hello HTTP/1.1\r\n"))
	assert.Equal(t, stateHeaders, conn.parser.state)
	assert.False(t, conn.flags.has(connWaitRelease))
}

func TestHTTPParserResetForNext(t *testing.T) {
	p := newHTTPParser(nil)
	p.state = stateBody
	p.contentLength = 10
	p.bodyRemaining = 5
	p.chunked = true
	p.chunkRemaining = 3

	p.resetForNext()

	assert.Equal(t, stateStartLine, p.state)
	assert.Nil(t, p.req)
	assert.EqualValues(t, 0, p.contentLength)
	assert.EqualValues(t, 0, p.bodyRemaining)
	assert.False(t, p.chunked)
	assert.EqualValues(t, 0, p.chunkRemaining)
}
