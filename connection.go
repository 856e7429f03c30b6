package evmvc

import (
	"net"
	"sync"
	"time"
)

// connFlag is one bit of a Connection's state machine, per §4.1.
type connFlag uint32

// Connection flags (§4.1).
const (
	connError connFlag = 1 << iota
	connPaused
	connWaiting
	connConnected
	connKeepAlive
	connSendingFile
	connWaitRelease
)

// Connection is one accepted TCP connection's HTTP/1.x state machine: it
// owns the connection's read/write Buffers, drives the incremental parser
// over incoming bytes, and exposes pause()/resume() for response
// backpressure (§4.1, §5). All mutation of a Connection happens on the
// Reactor's single dispatch goroutine — the Go analogue of the spec's
// single-threaded event-loop invariant, since nothing here is ever called
// concurrently with itself (see reactor.go's loopReactor).
//
// Grounded on the teacher's server.go/listener.go connection handling
// (net.Conn wrapping, PROXY protocol unwrap) generalized into an explicit
// state machine, since the teacher delegates all per-connection protocol
// state to net/http and has no equivalent to adapt.
type Connection struct {
	sock    Socket
	reactor Reactor
	server  *Server

	flags flagSet

	parser *httpParser
	in     *Buffer
	out    *Buffer

	req *Request
	res *Response

	resumeTimer Timer

	// fileStream holds an in-progress chunked file transfer (§4.5);
	// onWritable drives it forward one chunk at a time as the socket's
	// outbound buffer drains. Nil when no file stream is active.
	fileStream *fileStream

	remoteAddr string
}

// writeWatermark bounds how far a Response can get ahead of what the
// socket has actually managed to hand to the kernel before Connection
// applies write-side backpressure (§4.5, §5 suspension point (c)):
// past this many queued bytes, Connection stops reading further
// pipelined request bytes until onWritable reports the buffer has
// drained.
const writeWatermark = 256 * 1024

// flagSet is a tiny non-atomic bitset: safe because every access happens
// on the reactor's single dispatch goroutine.
type flagSet struct{ bits connFlag }

func (f *flagSet) has(flag connFlag) bool { return f.bits&flag != 0 }
func (f *flagSet) set(flag connFlag)      { f.bits |= flag }
func (f *flagSet) clear(flag connFlag)    { f.bits &^= flag }

// newConnection wraps an accepted Socket in a fresh Connection and
// performs the initial parser setup. It does not itself bind the socket
// into the reactor — callers do that via Reactor.Bind, wiring its
// callbacks to onReadable/onConnError/onConnClosed.
func newConnection(sock Socket, reactor Reactor, server *Server) *Connection {
	c := &Connection{
		sock:       sock,
		reactor:    reactor,
		server:     server,
		in:         NewBuffer(nil),
		out:        NewBuffer(nil),
		remoteAddr: sock.RemoteAddr().String(),
	}
	c.flags.set(connConnected)
	c.parser = newHTTPParser(c)
	return c
}

// onReadable feeds newly-read bytes into the connection's parser. Per
// §4.1's on_read semantics: parse errors set connError and begin an
// error response; a completed request dispatches it; partial messages
// just accumulate in c.in.
func (c *Connection) onReadable(data []byte) {
	if c.flags.has(connError) {
		return
	}

	c.in.Append(data)

	// While a request is waiting for its response to finish
	// (connWaitRelease, §4.1), bytes accumulate in c.in but are not fed
	// to the parser — Response.end() re-feeds them once the connection
	// is free for the next request.
	if c.flags.has(connWaitRelease) {
		return
	}

	if err := c.parser.feed(c.in); err != nil {
		c.flags.set(connError)
		c.failParse(err)
	}
}

// onConnError marks the connection dead and, if a response is in
// progress, terminates it per §7's "I/O error during streaming"
// handling: the chunked stream (if any) is abandoned and the socket
// closed, with no further writes attempted.
func (c *Connection) onConnError(err error) {
	c.flags.set(connError)
	if c.res != nil {
		c.res.abort(err)
	}
	c.Close()
}

// onConnClosed releases the in-flight request/response, if any.
func (c *Connection) onConnClosed() {
	if c.req != nil {
		c.req.release()
		c.req = nil
	}
	c.res = nil
}

// write queues p on the socket (§4.1's on_write path). If the socket
// reports more than writeWatermark bytes still queued (p included), read
// interest is suspended (connWaiting) until onWritable reports the
// buffer has drained — the write-side half of §4.5/§5's backpressure
// requirement, the read-side half being pause()/resume().
func (c *Connection) write(p []byte) (int, error) {
	queued, err := c.sock.Write(p)
	if err != nil {
		c.onConnError(err)
		return queued, err
	}

	if queued > writeWatermark && !c.flags.has(connWaiting) {
		c.flags.set(connWaiting)
		c.sock.DisableRead()
	}

	return queued, nil
}

// onWritable runs once the socket's outbound buffer has drained (§4.1's
// on_write event): it pushes the next file-stream chunk if one is in
// progress (connSendingFile), or — if write-side backpressure had
// suspended reads (connWaiting) — lifts that suspension.
func (c *Connection) onWritable() {
	if c.flags.has(connSendingFile) {
		c.pushFileChunk()
		return
	}

	if c.flags.has(connWaiting) {
		c.flags.clear(connWaiting)
		c.sock.EnableRead()
	}
}

// pause suspends read interest on the connection's socket, per §4.1's
// "paused" flag and §5's backpressure requirement.
func (c *Connection) pause() {
	if c.flags.has(connPaused) {
		return
	}
	c.flags.set(connPaused)
	c.sock.DisableRead()
}

// resume lifts a pause. Per the spec's "resume never re-enters inline
// with the caller's stack" rule, the actual re-enabling of read interest
// and any buffered continuation is scheduled as a zero-delay timer
// callback on the reactor rather than invoked synchronously.
func (c *Connection) resume() {
	c.resumeWithCallback(nil)
}

// resumeWithCallback is resume, plus an optional cb run after read
// interest is restored — the mechanism Response.Resume uses to let a
// handler know its suspension has genuinely lifted (§8 scenario 5). If
// the connection isn't paused, cb (if any) still runs, just immediately.
func (c *Connection) resumeWithCallback(cb func()) {
	if !c.flags.has(connPaused) {
		if cb != nil {
			cb()
		}
		return
	}

	if c.resumeTimer != nil {
		c.resumeTimer.Stop()
	}
	c.resumeTimer = c.reactor.AfterFunc(0, func() {
		c.flags.clear(connPaused)
		c.sock.EnableRead()
		if cb != nil {
			cb()
		}
	})
}

// Close tears the connection down, releasing any in-flight request and
// closing its socket. The Reactor the connection is bound to is shared
// with the server's other connections and is left running; Server.Shutdown
// closes it.
func (c *Connection) Close() {
	c.onConnClosed()
	c.sock.Close()
}

func (c *Connection) failParse(err error) {
	res := newResponse(c, newRequest(c))
	he := NewHTTPErrorf(400, "%s", err).WithKind(ErrKindParse)
	res.writeErrorAndClose(he)
}

// keepAlive reports whether the connection should remain open once the
// current response completes (§4.1's keepalive flag): HTTP/1.1 defaults
// to true absent "Connection: close"; HTTP/1.0 defaults to false absent
// an explicit "Connection: keep-alive" — compared case-insensitively via
// httpguts per Design Note (b).
func (c *Connection) keepAlive(req *Request) bool {
	conn := req.Header.Get("Connection")
	switch {
	case req.Header.Has("Connection", "close"):
		return false
	case req.Proto == "HTTP/1.0":
		return req.Header.Has("Connection", "keep-alive")
	default:
		_ = conn
		return true
	}
}

// Server holds process-wide configuration shared by every Connection it
// accepts: the root Router, logger, coffer, minifier, and the
// mapstructure-decoded Config (§ambient stack B.3). There is no
// cross-connection mutable state beyond this read-mostly configuration —
// each Connection's request handling runs in isolation on the reactor
// goroutine that owns it, per §5's "process-level fan-out only" rule.
type Server struct {
	Config *Config
	Router *Router
	Logger *Logger

	Coffer   *Coffer
	Minifier *Minifier

	ErrorHandler         Handler
	NotFoundHandler      Handler
	MethodNotAllowedHandler Handler

	listeners []net.Listener

	// reactors is the fixed-size pool every accepted connection is bound
	// into round-robin (§5): its length is Config.ReactorPoolSize, set up
	// once in Serve, never grown per-connection.
	reactors    []Reactor
	nextReactor uint64 // atomic

	shutdownJobs []func()
	mu           sync.Mutex
	closing      bool
}

// NewServer returns a Server ready to accept connections once Serve is
// called, per air.go's New()/Serve() split.
func NewServer(cfg *Config) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Server{
		Config: cfg,
		Router: NewRouter(""),
		Logger: NewLogger(cfg.AppName),
	}
	s.ErrorHandler = s.defaultErrorHandler
	s.NotFoundHandler = s.defaultNotFoundHandler
	s.MethodNotAllowedHandler = s.defaultMethodNotAllowedHandler
	if cfg.LogFormat != "" {
		s.Logger.SetFormat(cfg.LogFormat)
	}
	s.Logger.SetEnabled(true)

	if cfg.CofferEnabled {
		s.Coffer = NewCoffer(cfg.CofferMaxMemoryBytes, cfg.AssetRoot)
	}
	if cfg.MinifierEnabled {
		s.Minifier = NewMinifier()
	}
	if s.Coffer != nil && s.Minifier != nil {
		s.Coffer.SetMinifier(s.Minifier)
	}

	return s
}

// AddShutdownJob registers fn to run during Shutdown, mirroring the
// teacher's Air.AddShutdownJob (air.go).
func (s *Server) AddShutdownJob(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdownJobs = append(s.shutdownJobs, fn)
}

// Shutdown closes every listener and reactor and runs registered
// shutdown jobs, in the teacher's Air.Shutdown style.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	s.closing = true
	jobs := append([]func(){}, s.shutdownJobs...)
	listeners := append([]net.Listener{}, s.listeners...)
	reactors := append([]Reactor{}, s.reactors...)
	s.mu.Unlock()

	for _, l := range listeners {
		_ = l.Close()
	}
	for _, r := range reactors {
		_ = r.Close()
	}
	for _, job := range jobs {
		job()
	}
	return nil
}
