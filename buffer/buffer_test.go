package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrowableWriteRead(t *testing.T) {
	b := NewGrowable(4)
	require.NoError(t, b.WriteU16(0x0102))
	require.NoError(t, b.WriteU8(0x03))
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, b.Bytes())

	v, err := b.ReadU16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0102), v)

	v8, err := b.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x03), v8)

	_, err = b.ReadU8()
	assert.ErrorIs(t, err, ErrOutOfData)
}

func TestStaticBufferRefusesGrowth(t *testing.T) {
	b := NewStatic([]byte{1, 2, 3})
	assert.True(t, b.Tainted())
	assert.False(t, b.Growable())
	err := b.Reserve(100)
	assert.ErrorIs(t, err, ErrResizeDisallowed)
}

func TestRawReadTaints(t *testing.T) {
	b := NewGrowable(8)
	require.NoError(t, b.WriteU32(0xAABBCCDD))
	assert.False(t, b.Tainted())

	window, err := b.RawRead(4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC, 0xDD}, window)
	assert.True(t, b.Tainted())

	// once tainted, growth past capacity must fail even though growable
	err = b.Reserve(cap(b.B) + 1024)
	assert.ErrorIs(t, err, ErrResizeDisallowed)
}

func TestWipeZeroesAndResets(t *testing.T) {
	b := NewGrowable(4)
	_, err := b.WriteBytes([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	require.NoError(t, err)
	b.Wipe()
	assert.Equal(t, 0, b.Len())
}

func TestPoolRoundTrip(t *testing.T) {
	b := Get()
	_, err := b.WriteBytes([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b.Bytes()))
	Put(b)

	b2 := Get()
	assert.Equal(t, 0, b2.Len())
	Put(b2)
}

func TestEnsureLenReusesBackingArray(t *testing.T) {
	b := make([]byte, 0, 16)
	b = append(b, 1, 2, 3)
	grown := EnsureLen(b, 10)
	assert.Equal(t, 10, len(grown))
	assert.Equal(t, byte(1), grown[0])
}
