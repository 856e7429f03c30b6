package evmvc

import (
	"bufio"
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newProxyConn(conn net.Conn) *proxyConn {
	return &proxyConn{
		Conn:           conn,
		bufReader:      bufio.NewReader(conn),
		readHeaderOnce: &sync.Once{},
	}
}

func TestListenerParsesPROXYV1Header(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		client.Write([]byte("PROXY TCP4 192.168.1.1 192.168.1.2 11111 22222\r\n"))
		client.Write([]byte("hello"))
	}()

	pc := newProxyConn(server)

	buf := make([]byte, 5)
	n, err := pc.Read(buf)
	assert.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	assert.Equal(t, "192.168.1.1:11111", pc.RemoteAddr().String())
	assert.Equal(t, "192.168.1.2:22222", pc.LocalAddr().String())
}

func TestListenerRejectsMalformedPROXYV1Header(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		client.Write([]byte("PROXY BOGUS\r\n"))
	}()

	pc := newProxyConn(server)

	_, err := pc.Read(make([]byte, 1))
	assert.Error(t, err)
}

func TestListenerParsesPROXYV2HeaderIPv4(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	header := append([]byte{}, proxyProtocolSign...)
	header = append(header, 0x21) // version 2, PROXY command
	header = append(header, 0x11) // AF_INET, STREAM

	addrLen := make([]byte, 2)
	binary.BigEndian.PutUint16(addrLen, 12)
	header = append(header, addrLen...)

	header = append(header, net.ParseIP("10.0.0.1").To4()...)
	header = append(header, net.ParseIP("10.0.0.2").To4()...)

	srcPort := make([]byte, 2)
	binary.BigEndian.PutUint16(srcPort, 1234)
	header = append(header, srcPort...)

	dstPort := make([]byte, 2)
	binary.BigEndian.PutUint16(dstPort, 5678)
	header = append(header, dstPort...)

	go func() {
		client.Write(header)
		client.Write([]byte("world"))
	}()

	pc := newProxyConn(server)

	buf := make([]byte, 5)
	n, err := pc.Read(buf)
	assert.NoError(t, err)
	assert.Equal(t, "world", string(buf[:n]))

	assert.Equal(t, "10.0.0.1:1234", pc.RemoteAddr().String())
	assert.Equal(t, "10.0.0.2:5678", pc.LocalAddr().String())
}

func TestListenerPassesThroughNonPROXYConnection(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		client.Write([]byte("GET / HTTP/1.1\r\n"))
	}()

	pc := newProxyConn(server)

	buf := make([]byte, 16)
	n, err := pc.Read(buf)
	assert.NoError(t, err)
	assert.Equal(t, "GET / HTTP/1.1\r\n", string(buf[:n]))

	assert.Equal(t, server.RemoteAddr(), pc.RemoteAddr())
}

func TestNewListenerBuildsAllowedIPNets(t *testing.T) {
	l := newListener(true, 2*time.Second, []string{"192.168.1.1", "10.0.0.0/8"})

	assert.True(t, l.proxyEnabled)
	assert.Equal(t, 2*time.Second, l.proxyReadHeaderTimeout)
	assert.Len(t, l.allowedPROXYRelayerIPNets, 2)

	assert.True(t, l.allowedPROXYRelayerIPNets[0].Contains(net.ParseIP("192.168.1.1")))
	assert.True(t, l.allowedPROXYRelayerIPNets[1].Contains(net.ParseIP("10.1.2.3")))
}
