package evmvc

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// blockingConn wraps one side of a net.Pipe, letting tests hold up Write
// until release() is called, to observe loopSocket's queuing behavior
// independent of how fast the peer drains it.
type blockingConn struct {
	net.Conn
	mu      sync.Mutex
	blocked bool
	cond    *sync.Cond
}

func newBlockingConn(c net.Conn) *blockingConn {
	bc := &blockingConn{Conn: c}
	bc.cond = sync.NewCond(&bc.mu)
	return bc
}

func (c *blockingConn) block() {
	c.mu.Lock()
	c.blocked = true
	c.mu.Unlock()
}

func (c *blockingConn) release() {
	c.mu.Lock()
	c.blocked = false
	c.cond.Broadcast()
	c.mu.Unlock()
}

func (c *blockingConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	for c.blocked {
		c.cond.Wait()
	}
	c.mu.Unlock()
	return c.Conn.Write(p)
}

func TestLoopSocketWriteDoesNotBlockCaller(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer clientSide.Close()

	blocking := newBlockingConn(serverSide)
	blocking.block()

	reactor := NewReactor().(*loopReactor)
	defer reactor.Close()

	var onWritableCalls int32
	var mu sync.Mutex
	sock := reactor.Bind(blocking,
		func([]byte) {},
		func() { mu.Lock(); onWritableCalls++; mu.Unlock() },
		func(error) {},
	)

	done := make(chan struct{})
	go func() {
		queued, err := sock.Write([]byte("hello"))
		assert.NoError(t, err)
		assert.Greater(t, queued, 0)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Write blocked the caller while the peer was unable to read")
	}

	blocking.release()

	buf := make([]byte, 5)
	n, err := io.ReadFull(clientSide, buf)
	assert.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestLoopSocketWriteReportsQueuedBytes(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()
	defer clientSide.Close()

	reactor := NewReactor().(*loopReactor)
	defer reactor.Close()

	onWritable := make(chan struct{}, 8)
	sock := reactor.Bind(serverSide,
		func([]byte) {},
		func() { onWritable <- struct{}{} },
		func(error) {},
	)

	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := clientSide.Read(buf); err != nil {
				return
			}
		}
	}()

	queued, err := sock.Write([]byte("first"))
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, queued, len("first"))

	select {
	case <-onWritable:
	case <-time.After(time.Second):
		t.Fatal("onWritable never fired after the queued write drained")
	}
}
