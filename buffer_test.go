package evmvc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferAppendAndLen(t *testing.T) {
	b := NewBuffer(nil)
	b.AppendString("hello")
	b.Append([]byte(" world"))
	assert.Equal(t, 11, b.Len())
	assert.Equal(t, "hello world", string(b.Bytes()))
}

func TestBufferPullUp(t *testing.T) {
	b := NewBuffer([]byte("abcdef"))
	assert.Equal(t, []byte("abc"), b.PullUp(3))
	assert.Panics(t, func() { b.PullUp(100) })
}

func TestBufferDrainFront(t *testing.T) {
	b := NewBuffer([]byte("abcdef"))
	b.DrainFront(2)
	assert.Equal(t, "cdef", string(b.Bytes()))
	assert.Equal(t, 4, b.Len())
	assert.Panics(t, func() { b.DrainFront(100) })
}

func TestBufferDrainFrontReclaimsStorage(t *testing.T) {
	b := NewBuffer([]byte("abcdef"))
	b.DrainFront(6)
	assert.Equal(t, 0, b.Len())
	b.AppendString("ghi")
	assert.Equal(t, "ghi", string(b.Bytes()))
}

func TestBufferMoveInto(t *testing.T) {
	src := NewBuffer([]byte("abc"))
	dst := NewBuffer([]byte("xyz"))
	src.MoveInto(dst)
	assert.Equal(t, 0, src.Len())
	assert.Equal(t, "xyzabc", string(dst.Bytes()))
}

func TestBufferReset(t *testing.T) {
	b := NewBuffer([]byte("abc"))
	b.Reset()
	assert.Equal(t, 0, b.Len())
}
