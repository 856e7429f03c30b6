package evmvc

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Reactor is the evented I/O loop that a Connection is driven by. It is an
// external collaborator per the dispatch pipeline's design: the core only
// calls into it (nonblocking sockets, buffered reads/writes, one-shot and
// recurring timers, and the ability to temporarily disable read/write
// interest on a socket), it never reimplements epoll/kqueue itself.
//
// All callbacks registered through a Reactor for a given Socket are
// invoked serially, on the Reactor's single loop goroutine, never
// concurrently with each other — this is what lets Connection treat its
// own state as single-threaded (§5).
type Reactor interface {
	// Bind adopts conn and returns a Socket wired to call back into the
	// loop on readability, writability, and error.
	Bind(conn net.Conn, onReadable func([]byte), onWritable func(), onError func(error)) Socket

	// AfterFunc schedules f to run once, on the loop goroutine, after d.
	AfterFunc(d time.Duration, f func()) Timer

	// TickerFunc schedules f to run repeatedly, on the loop goroutine,
	// every d, until the returned Timer is stopped.
	TickerFunc(d time.Duration, f func()) Timer

	// Close shuts the reactor's loop down. It does not close the Sockets
	// bound to the reactor; each is closed through its own Close.
	Close() error
}

// Socket is a nonblocking, buffered, flow-controllable handle to an
// accepted connection.
type Socket interface {
	// Write queues p for writing. It never blocks the caller; queued
	// bytes are transmitted in the background and onWritable is called
	// after each queued write completes. It returns the number of bytes
	// currently queued, p included (for watermark decisions), and an
	// error if the socket is closed.
	Write(p []byte) (queued int, err error)

	// DisableRead suspends delivery of onReadable callbacks until
	// EnableRead is called. Bytes already in flight on the OS socket
	// are left unread, providing TCP-level backpressure to the peer.
	DisableRead()

	// EnableRead resumes delivery of onReadable callbacks.
	EnableRead()

	// RemoteAddr returns the address of the peer.
	RemoteAddr() net.Addr

	// Close closes the underlying connection. Idempotent.
	Close() error
}

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop prevents the Timer from firing, if it hasn't already. It
	// returns true if the stop prevented a pending fire.
	Stop() bool
}

// loopEvent is a unit of work posted to a loopReactor's single dispatch
// goroutine.
type loopEvent struct {
	fn func()
}

// loopReactor is the default Reactor. It approximates a single-threaded
// evented loop (the kind libevent/epoll give you natively) using ordinary
// goroutines: one pump goroutine per Socket blocks in conn.Read and posts
// each chunk it receives to a single shared event channel; one loop
// goroutine drains that channel and invokes callbacks one at a time. No
// connection's callbacks ever run concurrently with another's, and a
// Socket's own callbacks never run concurrently with themselves, which is
// the guarantee Connection depends on.
//
// This is the idiomatic-Go rendering of the reactor interface: Go's net
// package deliberately does not expose raw nonblocking/epoll primitives,
// so a literal single-OS-thread event loop is not how the ecosystem builds
// this; funnelling per-connection reads through one serializing goroutine
// reproduces the single-threaded-entry guarantee the spec requires without
// fighting the standard library.
type loopReactor struct {
	events chan loopEvent
	done   chan struct{}
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// NewReactor returns the default Reactor implementation.
func NewReactor() Reactor {
	r := &loopReactor{
		events: make(chan loopEvent, 256),
		done:   make(chan struct{}),
	}

	r.wg.Add(1)
	go r.loop()

	return r
}

func (r *loopReactor) loop() {
	defer r.wg.Done()

	for {
		select {
		case ev := <-r.events:
			ev.fn()
		case <-r.done:
			// Drain whatever is left without blocking, then exit.
			for {
				select {
				case ev := <-r.events:
					ev.fn()
				default:
					return
				}
			}
		}
	}
}

// post enqueues fn to run on the loop goroutine. Safe to call from any
// goroutine, including the loop goroutine itself.
func (r *loopReactor) post(fn func()) {
	select {
	case r.events <- loopEvent{fn: fn}:
	case <-r.done:
	}
}

func (r *loopReactor) Bind(
	conn net.Conn,
	onReadable func([]byte),
	onWritable func(),
	onError func(error),
) Socket {
	s := &loopSocket{
		conn:       conn,
		reactor:    r,
		onReadable: onReadable,
		onWritable: onWritable,
		onError:    onError,
		resume:     make(chan struct{}, 1),
		writeWake:  make(chan struct{}, 1),
	}
	atomic.StoreInt32(&s.readEnabled, 1)

	s.wg.Add(2)
	go s.pump()
	go s.writeLoop()

	return s
}

func (r *loopReactor) AfterFunc(d time.Duration, f func()) Timer {
	t := time.AfterFunc(d, func() {
		r.post(f)
	})
	return t
}

func (r *loopReactor) TickerFunc(d time.Duration, f func()) Timer {
	ticker := time.NewTicker(d)
	stop := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				r.post(f)
			case <-stop:
				ticker.Stop()
				return
			}
		}
	}()

	return &tickerTimer{stop: stop}
}

func (r *loopReactor) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
	return nil
}

type tickerTimer struct {
	stopped int32
	stop    chan struct{}
}

func (t *tickerTimer) Stop() bool {
	if atomic.CompareAndSwapInt32(&t.stopped, 0, 1) {
		close(t.stop)
		return true
	}
	return false
}

// loopSocket is the default Socket implementation bound to a net.Conn.
type loopSocket struct {
	conn    net.Conn
	reactor *loopReactor

	onReadable func([]byte)
	onWritable func()
	onError    func(error)

	readEnabled int32 // atomic bool
	resume      chan struct{}

	// writeQueue holds chunks handed to Write but not yet handed to
	// conn.Write, draining on writeLoop's own goroutine so Write itself
	// never blocks the caller. queuedBytes is the live total across every
	// queued chunk, reported back to callers for watermark decisions.
	writeMu     sync.Mutex
	writeQueue  [][]byte
	queuedBytes int64 // atomic
	writeWake   chan struct{}

	closeOnce sync.Once
	closed    int32 // atomic bool

	wg sync.WaitGroup
}

// pump is the per-socket goroutine that performs the actual blocking
// net.Conn.Read and forwards results to the reactor's single loop
// goroutine. It is the only goroutine that ever calls conn.Read, so reads
// are effectively serialized per connection, and DisableRead genuinely
// stops consuming from the OS socket (applying TCP backpressure) rather
// than just discarding delivered bytes.
func (s *loopSocket) pump() {
	defer s.wg.Done()

	buf := make([]byte, 64*1024)
	for {
		if atomic.LoadInt32(&s.readEnabled) == 0 {
			select {
			case <-s.resume:
			case <-s.reactor.done:
				return
			}
			continue
		}

		n, err := s.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.reactor.post(func() {
				s.onReadable(chunk)
			})
		}

		if err != nil {
			s.reactor.post(func() {
				s.onError(err)
			})
			return
		}
	}
}

// Write enqueues p and returns immediately; writeLoop performs the actual
// conn.Write call on its own goroutine so a slow peer (a full TCP send
// buffer) never blocks whatever goroutine is calling Write (the reactor's
// loop goroutine, per Connection.write). The returned count is the total
// bytes now queued ahead of (and including) p, for watermark decisions.
func (s *loopSocket) Write(p []byte) (int, error) {
	if atomic.LoadInt32(&s.closed) == 1 {
		return 0, net.ErrClosed
	}

	cp := make([]byte, len(p))
	copy(cp, p)

	s.writeMu.Lock()
	s.writeQueue = append(s.writeQueue, cp)
	s.writeMu.Unlock()

	queued := atomic.AddInt64(&s.queuedBytes, int64(len(p)))

	select {
	case s.writeWake <- struct{}{}:
	default:
	}

	return int(queued), nil
}

// writeLoop drains writeQueue one chunk at a time, performing the actual
// blocking conn.Write. After each chunk is fully written it posts
// onWritable to the reactor's loop goroutine, reporting that the queue has
// drained by that much — the signal Connection.onWritable relies on to
// lift write-side backpressure or push the next file-stream chunk.
func (s *loopSocket) writeLoop() {
	defer s.wg.Done()

	for {
		s.writeMu.Lock()
		if len(s.writeQueue) == 0 {
			s.writeMu.Unlock()
			select {
			case <-s.writeWake:
				continue
			case <-s.reactor.done:
				return
			}
		}
		chunk := s.writeQueue[0]
		s.writeQueue = s.writeQueue[1:]
		s.writeMu.Unlock()

		if _, err := s.conn.Write(chunk); err != nil {
			s.reactor.post(func() {
				s.onError(err)
			})
			return
		}

		atomic.AddInt64(&s.queuedBytes, -int64(len(chunk)))
		s.reactor.post(func() {
			if atomic.LoadInt32(&s.closed) == 0 {
				s.onWritable()
			}
		})
	}
}

func (s *loopSocket) DisableRead() {
	atomic.StoreInt32(&s.readEnabled, 0)
}

func (s *loopSocket) EnableRead() {
	if atomic.CompareAndSwapInt32(&s.readEnabled, 0, 1) {
		select {
		case s.resume <- struct{}{}:
		default:
		}
	}
}

func (s *loopSocket) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

func (s *loopSocket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		atomic.StoreInt32(&s.closed, 1)
		s.EnableRead() // unblock a parked pump goroutine so it can exit
		err = s.conn.Close()
	})
	return err
}
