package evmvc

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/aofei/mimesniffer"
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/proto"
	"gopkg.in/yaml.v3"
)

// Response is an in-flight HTTP response, serialized directly onto its
// owning Connection. Grounded on the teacher's Response (response.go) —
// Status/Header/Written/deferredFuncs, WriteString/JSON/XML/Msgpack/
// Protobuf/TOML/YAML, WriteFile via its coffer+minifier pairing, Defer —
// generalized from net/http.ResponseWriter onto the Connection/Buffer
// pair this module streams through instead, and extended with the
// chunked/on-the-fly-deflate streaming §4.5 requires, which net/http
// already gave the teacher for free.
type Response struct {
	Status int
	Header Headers
	Cookie *CookieJar

	Written  bool
	Gzipped  bool
	Minified bool

	// Data is a per-response, typed-by-convention scratch map threaded
	// through the dispatch chain (pre-handlers, route handler,
	// post-handlers); it carries the well-known "_err_*" keys (§7) as
	// well as arbitrary handler-set values. Per §3's data model, the
	// current error/error-status live on the Response, not the Request.
	Data map[string]interface{}

	conn *Connection
	req  *Request

	headersSent   bool
	chunked       bool
	deferredFuncs []func()

	aborted bool
}

var responsePool = sync.Pool{New: func() interface{} { return &Response{} }}

// newResponse returns a pooled, reset Response bound to conn and req.
func newResponse(conn *Connection, req *Request) *Response {
	res := responsePool.Get().(*Response)
	res.reset()
	res.conn = conn
	res.req = req
	req.res = res
	conn.req = req
	conn.res = res
	return res
}

func (res *Response) reset() {
	res.Status = 200
	res.Header = Headers{}
	res.Cookie = newCookieJar()
	res.Written = false
	res.Gzipped = false
	res.Minified = false
	res.Data = map[string]interface{}{}
	res.conn = nil
	res.req = nil
	res.headersSent = false
	res.chunked = false
	res.deferredFuncs = nil
	res.aborted = false
}

func (res *Response) release() {
	responsePool.Put(res)
}

// Defer registers fn to run after the response has been fully written,
// in LIFO order, mirroring the teacher's Response.Defer (response.go).
func (res *Response) Defer(fn func()) {
	res.deferredFuncs = append(res.deferredFuncs, fn)
}

// SetCookie adds c to the response's Set-Cookie headers.
func (res *Response) SetCookie(c *Cookie) {
	res.Cookie.Set(c)
}

// HasError reports whether the dispatch pipeline has recorded a current
// error against this response (§3, §8 scenario 6), i.e. whether
// finishWithError has populated the "_err_*" Data keys.
func (res *Response) HasError() bool {
	_, ok := res.Data[DataErrStatus]
	return ok
}

// ErrorStatus returns the status code recorded by finishWithError, or 0
// if HasError is false.
func (res *Response) ErrorStatus() int {
	status, _ := res.Data[DataErrStatus].(int)
	return status
}

// Pause suspends read interest on the owning Connection, letting a
// handler or policy hold up the pipeline (e.g. while awaiting a slow
// upstream call) without losing bytes already buffered from a
// pipelined next request, per §4.4/§5's backpressure requirement and
// §6's Response API.
func (res *Response) Pause() {
	res.conn.pause()
}

// Resume lifts a prior Pause and then invokes cb, per §8 scenario 5. When
// the connection is paused, both happen on a zero-delay reactor timer,
// never inline with the caller's stack (see Connection.resume); when it
// is not paused, cb runs immediately.
func (res *Response) Resume(cb func()) {
	res.conn.resumeWithCallback(cb)
}

// sniffContentType guesses a MIME type from the first chunk of body
// content using aofei/mimesniffer, mirroring the teacher's use of the
// same library in Response.Write (response.go).
func (res *Response) sniffContentType(b []byte) string {
	if ct := res.Header.First("Content-Type"); ct != "" {
		return ct
	}
	return mimesniffer.Sniff(b)
}

// chooseEncoding picks gzip/deflate per the request's Accept-Encoding,
// per §4.5/PART C.
func (res *Response) chooseEncoding() EncodingKind {
	accept := res.req.Header.First("Accept-Encoding")
	return PreferredEncoding(ParseAcceptEncoding(accept))
}

// WriteBytes writes b as the full, already-in-memory response body,
// framed with a fixed Content-Length (§4.5). Content-Type is sniffed if
// not already set; the body is minified (if a Minifier is configured
// and the MIME type is eligible) and gzip/deflate-encoded whole, in one
// pass, before being sent. For content that should stream instead of
// fully materializing first — files in particular — see WriteFile/
// Download, which drive writeChunk directly.
func (res *Response) WriteBytes(b []byte) error {
	if res.Written {
		return fmt.Errorf("evmvc: response already written")
	}

	ct := res.sniffContentType(b)
	if res.Header.First("Content-Type") == "" {
		res.Header.Set("Content-Type", ct)
	}

	if mf := res.conn.server.Minifier; mf != nil {
		if out, err := mf.Minify(ct, b); err == nil {
			b = out
			res.Minified = true
		}
	}

	switch res.chooseEncoding() {
	case EncodingGzip:
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		if _, err := gw.Write(b); err == nil && gw.Close() == nil {
			b = buf.Bytes()
			res.Header.Set("Content-Encoding", "gzip")
			res.Gzipped = true
		}
	case EncodingDeflate:
		var buf bytes.Buffer
		fw, _ := flate.NewWriter(&buf, flate.DefaultCompression)
		if _, err := fw.Write(b); err == nil {
			fw.Flush()
			fw.Close()
			b = buf.Bytes()
			res.Header.Set("Content-Encoding", "deflate")
			res.Gzipped = true
		}
	}

	res.Header.Set("Content-Length", strconv.Itoa(len(b)))
	if err := res.sendHeaders(); err != nil {
		return err
	}

	res.Written = true
	_, err := res.conn.write(b)
	return err
}

// WriteString writes s as a text/plain body (sniffed unless Content-Type
// is already set).
func (res *Response) WriteString(s string) error {
	return res.WriteBytes([]byte(s))
}

// WriteHTML writes s as a text/html body.
func (res *Response) WriteHTML(s string) error {
	res.Header.Set("Content-Type", "text/html; charset=utf-8")
	return res.WriteBytes([]byte(s))
}

// WriteJSON marshals v as application/json.
func (res *Response) WriteJSON(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	res.Header.Set("Content-Type", "application/json; charset=utf-8")
	return res.WriteBytes(b)
}

// WriteJSONP marshals v as application/javascript wrapped in
// callback(...), escaping U+2028/U+2029 (which are valid in JSON strings
// but illegal in unescaped JavaScript string literals) per §4.5.
func (res *Response) WriteJSONP(callback string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	b = bytes.ReplaceAll(b, []byte(" "), []byte(`\u2028`))
	b = bytes.ReplaceAll(b, []byte(" "), []byte(`\u2029`))

	out := bytes.Buffer{}
	out.WriteString(callback)
	out.WriteByte('(')
	out.Write(b)
	out.WriteString(");")

	res.Header.Set("Content-Type", "application/javascript; charset=utf-8")
	return res.WriteBytes(out.Bytes())
}

// WriteXML marshals v as application/xml.
func (res *Response) WriteXML(v interface{}) error {
	b, err := xml.Marshal(v)
	if err != nil {
		return err
	}
	res.Header.Set("Content-Type", "application/xml; charset=utf-8")
	return res.WriteBytes(b)
}

// WriteTOML marshals v as application/toml.
func (res *Response) WriteTOML(v interface{}) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(v); err != nil {
		return err
	}
	res.Header.Set("Content-Type", "application/toml; charset=utf-8")
	return res.WriteBytes(buf.Bytes())
}

// WriteYAML marshals v as application/yaml.
func (res *Response) WriteYAML(v interface{}) error {
	b, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	res.Header.Set("Content-Type", "application/yaml; charset=utf-8")
	return res.WriteBytes(b)
}

// WriteMsgpack marshals v as application/msgpack.
func (res *Response) WriteMsgpack(v interface{}) error {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	res.Header.Set("Content-Type", "application/msgpack")
	return res.WriteBytes(b)
}

// WriteProtobuf marshals a proto.Message as application/protobuf.
func (res *Response) WriteProtobuf(m proto.Message) error {
	b, err := proto.Marshal(m)
	if err != nil {
		return err
	}
	res.Header.Set("Content-Type", "application/protobuf")
	return res.WriteBytes(b)
}

// fileStreamChunkSize is the size of the one bounded read buffer a file
// stream works from (§4.5: "bounds memory to one file read buffer plus
// one compressed buffer").
const fileStreamChunkSize = 32 * 1024

// fileStream is the in-progress state of a chunked file response
// (§4.5): a source to read from, an optional on-the-fly compressor
// wrapping a small scratch buffer, and the Response it is feeding.
// Connection.onWritable drives it forward one chunk at a time, via
// pushFileChunk, as the socket's outbound buffer drains — the backpressure
// mechanism §5 suspension point (c) and §8 scenarios 3/4 require.
type fileStream struct {
	res    *Response
	src    io.Reader
	closer io.Closer

	gzw *gzip.Writer
	flw *flate.Writer
	out *bytes.Buffer

	buf []byte
}

// WriteFile serves the file at path through the server's Coffer (if
// configured), attaching an ETag and honoring gzip/deflate negotiation,
// per PART C's coffer+minifier pairing. Falls back to a direct disk read
// when no Coffer is configured. The body itself is always streamed in
// bounded chunks — see streamFile.
func (res *Response) WriteFile(path string) error {
	return res.serveFile(path, "")
}

// Download is WriteFile plus a Content-Disposition: attachment header
// (§6's download(path, filename?, enc?, cb?), §8 scenario 3), using
// filename if given or path's base name otherwise.
func (res *Response) Download(path, filename string) error {
	if filename == "" {
		filename = filepath.Base(path)
	}
	res.Header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	return res.serveFile(path, filename)
}

func (res *Response) serveFile(path, _ string) error {
	if res.Written {
		return fmt.Errorf("evmvc: response already written")
	}

	coffer := res.conn.server.Coffer
	if coffer == nil {
		f, err := os.Open(path)
		if err != nil {
			return NewHTTPError(404).WithCause(err)
		}

		head := make([]byte, 512)
		n, _ := f.Read(head)
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return err
		}
		if res.Header.First("Content-Type") == "" {
			res.Header.Set("Content-Type", mimesniffer.Sniff(head[:n]))
		}

		return res.streamFile(f, f, res.chooseEncoding())
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	a, err := coffer.Asset(abs)
	if err != nil {
		return NewHTTPError(404).WithCause(err)
	}
	if a == nil {
		return NewHTTPError(404)
	}

	res.Header.Set("ETag", a.ETag())
	if inm := res.req.Header.First("If-None-Match"); inm != "" && inm == a.ETag() {
		res.Status = 304
		return res.WriteBytes(nil)
	}

	if a.mimeType != "" {
		res.Header.Set("Content-Type", a.mimeType)
	}
	res.Minified = a.minified

	// When the Coffer pre-gzipped the asset at load time (Coffer.SetGzip)
	// and the client accepts gzip, its cached bytes are already fully
	// encoded: stream them as-is rather than compressing a second time.
	wantsGzip := res.chooseEncoding() == EncodingGzip
	if gb := a.Content(true); wantsGzip && gb != nil {
		res.Header.Set("Content-Encoding", "gzip")
		res.Gzipped = true
		return res.streamFile(bytes.NewReader(gb), nil, EncodingUnsupported)
	}

	b := a.Content(false)
	return res.streamFile(bytes.NewReader(b), nil, res.chooseEncoding())
}

// streamFile sends response headers for a chunked body and kicks off
// fileStream's first chunk; the remainder is pushed by
// Connection.onWritable as the socket drains (§4.5). encode selects
// on-the-fly per-chunk gzip/deflate (SYNC_FLUSH on every chunk, FINISH
// once src is exhausted); EncodingUnsupported streams src's bytes
// unmodified, for sources that are already encoded or that the client
// didn't ask to compress.
func (res *Response) streamFile(src io.Reader, closer io.Closer, encode EncodingKind) error {
	res.Header.Delete("Content-Length")

	fs := &fileStream{res: res, src: src, closer: closer, buf: make([]byte, fileStreamChunkSize), out: &bytes.Buffer{}}
	switch encode {
	case EncodingGzip:
		res.Header.Set("Content-Encoding", "gzip")
		res.Gzipped = true
		fs.gzw = gzip.NewWriter(fs.out)
	case EncodingDeflate:
		res.Header.Set("Content-Encoding", "deflate")
		res.Gzipped = true
		fs.flw, _ = flate.NewWriter(fs.out, flate.DefaultCompression)
	}

	res.Header.Set("Transfer-Encoding", "chunked")
	res.chunked = true
	if err := res.sendHeaders(); err != nil {
		return err
	}
	res.Written = true

	res.conn.fileStream = fs
	res.conn.flags.set(connSendingFile)
	res.conn.pushFileChunk()
	return nil
}

// pushFileChunk reads and sends one fileStreamChunkSize chunk of the
// in-progress file stream, stopping to await the next onWritable once
// the socket reports it is past writeWatermark — never looping further
// ahead than that. Reaching EOF flushes the compressor (if any) with
// FINISH semantics and ends the stream.
func (c *Connection) pushFileChunk() {
	fs := c.fileStream
	if fs == nil {
		return
	}

	for {
		n, rerr := fs.src.Read(fs.buf)

		var queued int
		var err error
		if n > 0 {
			queued, err = fs.writeChunk(fs.buf[:n], false)
			if err != nil {
				c.endFileStream()
				return
			}
		}

		if rerr != nil {
			if rerr != io.EOF {
				fs.res.abort(rerr)
				c.endFileStream()
				return
			}

			fs.writeChunk(nil, true)
			fs.res.EndStream()
			c.endFileStream()
			return
		}

		if queued > writeWatermark {
			// onWritable resumes pushFileChunk once the socket drains.
			return
		}
	}
}

// endFileStream tears down an in-progress (or just-completed) file
// stream and clears connSendingFile.
func (c *Connection) endFileStream() {
	if fs := c.fileStream; fs != nil && fs.closer != nil {
		fs.closer.Close()
	}
	c.fileStream = nil
	c.flags.clear(connSendingFile)
}

// writeChunk compresses b (if fs has a compressor) with SYNC_FLUSH, or
// FINISH when final is true, and sends the result as one writeChunk
// frame, returning the queued-bytes watermark reading.
func (fs *fileStream) writeChunk(b []byte, final bool) (int, error) {
	fs.out.Reset()

	switch {
	case fs.gzw != nil:
		if len(b) > 0 {
			if _, err := fs.gzw.Write(b); err != nil {
				return 0, err
			}
		}
		if final {
			if err := fs.gzw.Close(); err != nil {
				return 0, err
			}
		} else if err := fs.gzw.Flush(); err != nil {
			return 0, err
		}
	case fs.flw != nil:
		if len(b) > 0 {
			if _, err := fs.flw.Write(b); err != nil {
				return 0, err
			}
		}
		if final {
			if err := fs.flw.Close(); err != nil {
				return 0, err
			}
		} else if err := fs.flw.Flush(); err != nil {
			return 0, err
		}
	default:
		fs.out.Write(b)
	}

	if fs.out.Len() == 0 {
		return 0, nil
	}
	return fs.res.writeChunk(fs.out.Bytes())
}

// Redirect writes a redirect response to location with status, which
// must be one of the 3xx redirect statuses (§4.5).
func (res *Response) Redirect(location string, status int) error {
	switch status {
	case 300, 301, 302, 303, 304, 305, 307, 308:
	default:
		return fmt.Errorf("evmvc: invalid redirect status %d", status)
	}

	res.Status = status
	res.Header.Set("Location", location)
	return res.WriteBytes(nil)
}

// SSEEvent is one server-sent event, per §4.5/PART D (grounded on
// original_source's SSE handling). SendEvent writes an id line only when
// ID is set; no id is generated for an event that omits one.
type SSEEvent struct {
	ID    string
	Event string
	Data  string
	Retry time.Duration
}

// SendEvent writes one SSE frame to an already-open text/event-stream
// response (the caller is expected to have called BeginStream first).
func (res *Response) SendEvent(e SSEEvent) error {
	buf := bytes.Buffer{}
	if e.ID != "" {
		fmt.Fprintf(&buf, "id: %s\n", e.ID)
	}
	if e.Event != "" {
		fmt.Fprintf(&buf, "event: %s\n", e.Event)
	}
	if e.Retry > 0 {
		fmt.Fprintf(&buf, "retry: %d\n", e.Retry.Milliseconds())
	}
	for _, line := range splitLines(e.Data) {
		fmt.Fprintf(&buf, "data: %s\n", line)
	}
	buf.WriteByte('\n')

	_, err := res.writeChunk(buf.Bytes())
	return err
}

// BeginStream sends response headers for a chunked, streamed body (SSE
// or otherwise) without a known Content-Length, per §4.5.
func (res *Response) BeginStream(contentType string) error {
	res.Header.Set("Content-Type", contentType)
	res.Header.Set("Transfer-Encoding", "chunked")
	res.Header.Set("Cache-Control", "no-cache")
	res.chunked = true
	return res.sendHeaders()
}

// writeChunk writes one hex-length-framed chunk of a chunked stream
// (§4.2's chunked transfer-encoding framing), returning the number of
// bytes the socket reports queued once the chunk's body is handed to it —
// used by pushFileChunk to decide whether to keep streaming or wait for
// onWritable (§4.5, §5 suspension point (c)).
func (res *Response) writeChunk(b []byte) (int, error) {
	if !res.chunked {
		return 0, fmt.Errorf("evmvc: writeChunk called without BeginStream")
	}
	frame := fmt.Sprintf("%x\r\n", len(b))
	if _, err := res.conn.write([]byte(frame)); err != nil {
		return 0, err
	}
	queued, err := res.conn.write(b)
	if err != nil {
		return queued, err
	}
	if _, err := res.conn.write([]byte("\r\n")); err != nil {
		return queued, err
	}
	return queued, nil
}

// EndStream writes the terminating zero-length chunk.
func (res *Response) EndStream() error {
	res.Written = true
	_, err := res.conn.write([]byte("0\r\n\r\n"))
	return err
}

// sendHeaders serializes and writes the status line and headers exactly
// once per response (§4.1's _reply_start).
func (res *Response) sendHeaders() error {
	if res.headersSent {
		return nil
	}
	res.headersSent = true

	for _, c := range res.Cookie.All() {
		if s := c.String(); s != "" {
			res.Header.Add("Set-Cookie", s)
		}
	}

	buf := bytes.Buffer{}
	fmt.Fprintf(&buf, "HTTP/1.1 %d %s\r\n", res.Status, http.StatusText(res.Status))
	for name, values := range res.Header {
		for _, v := range values {
			buf.WriteString(textproto.CanonicalMIMEHeaderKey(name))
			buf.WriteString(": ")
			buf.WriteString(v)
			buf.WriteString("\r\n")
		}
	}
	buf.WriteString("\r\n")

	_, err := res.conn.write(buf.Bytes())
	return err
}

// abort marks the response as aborted by an I/O error mid-stream, per
// §7's "I/O error during streaming" handling: no further writes are
// attempted and the chunked stream (if any) is simply left unterminated.
func (res *Response) abort(err error) {
	res.aborted = true
}

// writeErrorAndClose renders he as the full response, ignoring any
// partially-written state, and closes the connection. Used for parse
// errors (§7), which happen before a Request/Response pair is fully
// wired into the dispatch pipeline.
func (res *Response) writeErrorAndClose(he *HTTPError) {
	res.Status = he.Status
	res.WriteString(he.Message)
	res.conn.Close()
}

// end runs deferred functions in LIFO order and releases the request/
// response pair, then either keeps the connection alive for the next
// request or closes it, per §4.1's keepalive flag and §4.4 step 6.
func (res *Response) end() {
	for i := len(res.deferredFuncs) - 1; i >= 0; i-- {
		res.deferredFuncs[i]()
	}

	req := res.req
	conn := res.conn

	keepAlive := !res.aborted && conn.keepAlive(req)

	req.release()
	res.release()
	conn.req = nil
	conn.res = nil

	if !keepAlive {
		conn.Close()
		return
	}

	conn.flags.clear(connWaitRelease)
	conn.parser.resetForNext()
	if conn.in.Len() > 0 {
		if err := conn.parser.feed(conn.in); err != nil {
			conn.flags.set(connError)
			conn.failParse(err)
		}
	}
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
