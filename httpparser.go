package evmvc

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// parserState is one state of the incremental HTTP/1.x parser (§4.2).
type parserState uint8

const (
	stateStartLine parserState = iota
	stateHeaders
	stateBody
	stateChunkSize
	stateChunkData
	stateChunkTrailer
	stateWaitRelease
)

// httpParser incrementally parses one HTTP/1.x message at a time off a
// Connection's read Buffer, per §4.2's callback-driven design — here
// expressed as direct method calls (onStartLine/onHeaderLine/
// onHeadersComplete/messageComplete, with body bytes appended inline and
// parse errors returned from feed) rather than registered callbacks,
// since Go closures over the owning Connection make an explicit callback
// table unnecessary.
//
// Grounded on net/http's httputil/internal chunked reader idiom (the
// teacher delegates parsing entirely to net/http and has no equivalent to
// adapt) generalized to the stateful, feed-incrementally shape §4.2
// requires — net/http parses a whole request from a blocking io.Reader,
// never one arbitrary-sized chunk at a time.
type httpParser struct {
	conn  *Connection
	state parserState
	req   *Request

	contentLength int64
	bodyRemaining int64

	chunked        bool
	chunkRemaining int64
}

func newHTTPParser(conn *Connection) *httpParser {
	return &httpParser{conn: conn, state: stateStartLine}
}

// resetForNext prepares the parser to read the next pipelined/keep-alive
// request.
func (p *httpParser) resetForNext() {
	p.state = stateStartLine
	p.req = nil
	p.contentLength = 0
	p.bodyRemaining = 0
	p.chunked = false
	p.chunkRemaining = 0
}

// feed consumes as much of buf as forms complete parser tokens (lines,
// chunk bodies), dispatching the request once a full message has been
// parsed. It returns as soon as buf no longer holds a complete token,
// to be resumed on the next onReadable call.
func (p *httpParser) feed(buf *Buffer) error {
	for {
		switch p.state {
		case stateWaitRelease:
			return nil

		case stateStartLine:
			line, ok := readLine(buf)
			if !ok {
				return nil
			}
			if line == "" {
				// Tolerate a leading blank line between
				// pipelined messages (RFC 7230 §3.5).
				continue
			}
			if err := p.onStartLine(line); err != nil {
				return err
			}

		case stateHeaders:
			line, ok := readLine(buf)
			if !ok {
				return nil
			}
			if line == "" {
				if err := p.onHeadersComplete(); err != nil {
					return err
				}
				continue
			}
			if err := p.onHeaderLine(line); err != nil {
				return err
			}

		case stateBody:
			if int64(buf.Len()) < p.bodyRemaining {
				return nil
			}
			if p.bodyRemaining > 0 {
				p.req.Body.Append(copyBytes(buf.PullUp(int(p.bodyRemaining))))
				buf.DrainFront(int(p.bodyRemaining))
				p.bodyRemaining = 0
			}
			p.messageComplete()
			return nil

		case stateChunkSize:
			line, ok := readLine(buf)
			if !ok {
				return nil
			}
			sizeText := line
			if i := strings.IndexByte(line, ';'); i >= 0 {
				sizeText = line[:i]
			}
			size, err := strconv.ParseInt(strings.TrimSpace(sizeText), 16, 64)
			if err != nil {
				return fmt.Errorf("evmvc: malformed chunk size %q: %w", line, err)
			}
			if size == 0 {
				p.state = stateChunkTrailer
				continue
			}
			p.chunkRemaining = size
			p.state = stateChunkData

		case stateChunkData:
			need := int(p.chunkRemaining) + 2 // trailing CRLF
			if buf.Len() < need {
				return nil
			}
			p.req.Body.Append(copyBytes(buf.PullUp(int(p.chunkRemaining))))
			buf.DrainFront(need)
			p.state = stateChunkSize

		case stateChunkTrailer:
			line, ok := readLine(buf)
			if !ok {
				return nil
			}
			if line == "" {
				p.messageComplete()
				return nil
			}
			// Trailer headers are read but not merged into
			// req.Header — §4.2 doesn't require surfacing them.
		}
	}
}

func (p *httpParser) onStartLine(line string) error {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return fmt.Errorf("evmvc: malformed request line %q", line)
	}

	method, target, proto := parts[0], parts[1], parts[2]
	if proto != "HTTP/1.1" && proto != "HTTP/1.0" {
		return fmt.Errorf("evmvc: unsupported protocol version %q", proto)
	}

	path, rawQuery := target, ""
	if i := strings.IndexByte(target, '?'); i >= 0 {
		path, rawQuery = target[:i], target[i+1:]
	}

	p.req = newRequest(p.conn)
	p.req.Method = method
	p.req.Proto = proto
	p.req.URL = &URL{Path: path, RawQuery: rawQuery}
	p.req.RemoteAddr = p.conn.remoteAddr

	p.state = stateHeaders
	return nil
}

func (p *httpParser) onHeaderLine(line string) error {
	name, value, ok := cutByte(line, ':')
	if !ok {
		return fmt.Errorf("evmvc: malformed header line %q", line)
	}
	p.req.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	return nil
}

func (p *httpParser) onHeadersComplete() error {
	if cookie := p.req.Header.First("Cookie"); cookie != "" {
		p.req.Cookie = parseCookieHeader(cookie)
	} else {
		p.req.Cookie = newCookieJar()
	}

	if p.req.Header.Has("Transfer-Encoding", "chunked") {
		p.chunked = true
		p.state = stateChunkSize
		return nil
	}

	if cl := p.req.Header.First("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || n < 0 {
			return fmt.Errorf("evmvc: malformed Content-Length %q", cl)
		}
		p.contentLength = n
		p.bodyRemaining = n
		if n == 0 {
			p.messageComplete()
			return nil
		}
		p.state = stateBody
		return nil
	}

	p.messageComplete()
	return nil
}

// messageComplete hands the parsed request off to the server's dispatch
// pipeline and marks the connection as waiting for the response to
// finish (§4.1's wait_release flag), since this module serves one
// request at a time per connection rather than pipelining concurrently.
func (p *httpParser) messageComplete() {
	req := p.req
	conn := p.conn

	conn.flags.set(connWaitRelease)
	p.state = stateWaitRelease

	res := newResponse(conn, req)
	conn.server.dispatch(req, res)
}

func readLine(buf *Buffer) (string, bool) {
	b := buf.Bytes()
	idx := bytes.Index(b, []byte("\r\n"))
	if idx < 0 {
		return "", false
	}
	line := string(b[:idx])
	buf.DrainFront(idx + 2)
	return line, true
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
