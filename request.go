package evmvc

import (
	"net/url"
	"sync"
)

// Request is an in-flight HTTP request, assembled incrementally by the
// parser driver (httpparser.go) and handed to the dispatch pipeline once
// headers (and, for buffered bodies, the body) are complete. Grounded on
// the teacher's Request (request.go)'s field shape — Method, URL, Header,
// RemoteAddr, pooled reuse via sync.Pool — generalized with the route
// Params/CookieJar the spec's dispatch pipeline needs (§3, §4.4).
type Request struct {
	Method     string
	URL        *URL
	Header     Headers
	RemoteAddr string
	Proto      string

	Params map[string]string
	Cookie *CookieJar

	// Body holds the request body as it is received; handlers read it
	// directly rather than through io.Reader, since the parser already
	// drains the connection's Buffer into it incrementally (§4.2).
	Body *Buffer

	conn *Connection
	res  *Response

	query     url.Values
	queryOnce bool
}

var requestPool = sync.Pool{New: func() interface{} { return &Request{} }}

// newRequest returns a pooled, reset Request bound to conn.
func newRequest(conn *Connection) *Request {
	req := requestPool.Get().(*Request)
	req.reset()
	req.conn = conn
	return req
}

func (req *Request) reset() {
	req.Method = ""
	req.URL = nil
	req.Header = Headers{}
	req.RemoteAddr = ""
	req.Proto = ""
	req.Params = nil
	req.Cookie = nil
	if req.Body != nil {
		req.Body.Reset()
	} else {
		req.Body = NewBuffer(nil)
	}
	req.conn = nil
	req.res = nil
	req.query = nil
	req.queryOnce = false
}

// release returns req to its pool. Called exactly once per request, at
// the end of dispatch (§4.4 step 6), mirroring the teacher's ServeHTTP
// pool.Put(req) (air.go).
func (req *Request) release() {
	requestPool.Put(req)
}

// Query parses and caches req.URL.RawQuery as an ordered multimap (§3).
func (req *Request) Query() url.Values {
	if !req.queryOnce {
		req.query, _ = req.URL.Query()
		req.queryOnce = true
	}
	return req.query
}

// Param returns the named route parameter, or "" if absent (either
// unmatched-optional per §4.3, or not part of the route pattern at all).
func (req *Request) Param(name string) string {
	return req.Params[name]
}

// HasParam reports whether name was present in the match, distinguishing
// an optional param that matched empty from one that didn't match at all.
func (req *Request) HasParam(name string) bool {
	_, ok := req.Params[name]
	return ok
}
