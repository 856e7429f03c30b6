package evmvc

import (
	"net"
	"time"
)

// fakeReactor is a no-op Reactor for tests that construct a Connection
// directly without going through Server.acceptConn: AfterFunc runs its
// callback immediately (resume() has no meaningful delay to observe in a
// single-goroutine test), Close is a harmless no-op rather than the real
// loopReactor's wg.Wait(), which would require a live loop goroutine.
type fakeReactor struct{}

func (fakeReactor) Bind(conn net.Conn, onReadable func([]byte), onWritable func(), onError func(error)) Socket {
	panic("fakeReactor.Bind not used by these tests")
}

func (fakeReactor) AfterFunc(d time.Duration, f func()) Timer {
	f()
	return fakeTimer{}
}

func (fakeReactor) TickerFunc(d time.Duration, f func()) Timer {
	return fakeTimer{}
}

func (fakeReactor) Close() error { return nil }

type fakeTimer struct{}

func (fakeTimer) Stop() bool { return true }
