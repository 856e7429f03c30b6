package evmvc

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync/atomic"
)

// Serve starts accepting connections on s.Config.Address, binding each one into a
// fixed-size pool of Reactors (§5's "fan-out is process-level" rule) per
// the teacher's Air.Serve (air.go) config-driven startup, generalized away
// from net/http.Server onto the Reactor/Connection pair since the spec's
// dispatch model doesn't delegate to net/http.
func (s *Server) Serve() error {
	cfg := s.Config

	poolSize := cfg.ReactorPoolSize
	if poolSize < 1 {
		poolSize = 1
	}
	s.mu.Lock()
	for i := 0; i < poolSize; i++ {
		s.reactors = append(s.reactors, NewReactor())
	}
	s.mu.Unlock()

	nl := newListener(cfg.PROXYEnabled, cfg.PROXYReadHeaderTimeout, cfg.PROXYRelayerIPWhitelist)
	if err := nl.listen(cfg.Address); err != nil {
		return fmt.Errorf("evmvc: listen %s: %w", cfg.Address, err)
	}

	var ln net.Listener = nl
	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return fmt.Errorf("evmvc: loading TLS keypair: %w", err)
		}
		ln = tls.NewListener(nl, &tls.Config{Certificates: []tls.Certificate{cert}})
	}

	s.mu.Lock()
	s.listeners = append(s.listeners, ln)
	s.mu.Unlock()

	s.Logger.Infof("listening on %s", cfg.Address)

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return nil
			}
			return err
		}

		s.acceptConn(conn)
	}
}

// acceptConn binds conn into one of the server's fixed Reactor pool,
// chosen round-robin, and wires up its Connection state machine. Every
// connection bound to the same Reactor has its callbacks serialized on
// that Reactor's one loop goroutine (§5), and the number of loop
// goroutines stays fixed at Config.ReactorPoolSize regardless of how many
// connections are accepted — the process-level fan-out the spec asks for,
// rather than a reactor spun up per connection. Each connection still gets
// two goroutines of its own: a pump performing the blocking net.Conn.Read
// (Go's net package has no nonblocking read to multiplex without one) and
// a writeLoop performing the blocking net.Conn.Write; the serialized
// dispatch loop itself is not per connection.
func (s *Server) acceptConn(netConn net.Conn) {
	s.mu.Lock()
	reactor := s.reactors[atomic.AddUint64(&s.nextReactor, 1)%uint64(len(s.reactors))]
	s.mu.Unlock()

	var conn *Connection
	sock := reactor.Bind(netConn,
		func(data []byte) { conn.onReadable(data) },
		func() { conn.onWritable() },
		func(err error) { conn.onConnError(err) },
	)

	conn = newConnection(sock, reactor, s)
}

// defaultNotFoundHandler serves a 404, mirroring
// Air.DefaultNotFoundHandler (air.go).
func (s *Server) defaultNotFoundHandler(req *Request, res *Response, next func(error)) {
	next(ErrNotFound)
}

// defaultMethodNotAllowedHandler serves a 405, mirroring
// Air.DefaultMethodNotAllowedHandler (air.go).
func (s *Server) defaultMethodNotAllowedHandler(req *Request, res *Response, next func(error)) {
	next(ErrMethodNotAllowed)
}

// defaultErrorHandler renders a plain-text error body from the well-known
// "_err_*" Data keys (§7), mirroring Air.DefaultErrorHandler (air.go),
// which writes res.Status/res.WriteString the same way.
func (s *Server) defaultErrorHandler(req *Request, res *Response, next func(error)) {
	status, _ := res.Data[DataErrStatus].(int)
	if status == 0 {
		status = 500
	}
	message, _ := res.Data[DataErrMessage].(string)
	if message == "" {
		message = "Internal Server Error"
	}

	res.Status = status
	res.WriteString(message)
	next(nil)
}
