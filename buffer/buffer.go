// Package buffer implements the linear byte arena every wire read, wire
// write and cryptographic staging area in this module is built on top of.
package buffer

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/valyala/bytebufferpool"
)

var (
	ErrOutOfData        = errors.New("buffer: read past write cursor")
	ErrFull             = errors.New("buffer: write past capacity")
	ErrResizeDisallowed = errors.New("buffer: grow on tainted or static buffer")
	ErrNull             = errors.New("buffer: nil payload")
)

// Buffer is a linear byte arena: a read cursor, a write cursor, a high
// water mark and a backing store, plus the taint/growable flags from
// spec §4.1. B is the backing slice; exported so callers can take the
// same zero-copy shortcuts the teacher's byteBuffer.B field allows
// (direct slicing for record headers, MAC windows, AEAD staging).
type Buffer struct {
	B []byte

	readCursor  int
	writeCursor int
	highWater   int

	growable bool
	tainted  bool
	static   bool

	pooled *bytebufferpool.ByteBuffer
}

var pool = sync.Pool{
	New: func() interface{} {
		return &Buffer{growable: true}
	},
}

// Get returns a pooled growable Buffer, empty and ready for reuse. The
// pool's backing array comes from bytebufferpool so repeated Get/Put
// cycles amortize the allocator the way a hot record-layer path needs.
func Get() *Buffer {
	b := pool.Get().(*Buffer)
	b.pooled = bytebufferpool.Get()
	b.B = b.pooled.B[:0]
	b.readCursor = 0
	b.writeCursor = 0
	b.highWater = 0
	b.growable = true
	b.tainted = false
	b.static = false
	return b
}

// Put resets b and returns it (and its backing store) to their pools.
func Put(b *Buffer) {
	b.Reset()
	if b.pooled != nil {
		b.pooled.B = b.B
		bytebufferpool.Put(b.pooled)
		b.pooled = nil
	}
	b.B = nil
	pool.Put(b)
}

// NewStatic aliases mem directly: read-only, not growable, tainted from
// birth since the caller retains ownership of mem.
func NewStatic(mem []byte) *Buffer {
	return &Buffer{B: mem, growable: false, tainted: true, static: true, highWater: len(mem), writeCursor: len(mem)}
}

// NewReadOnlyFromString is NewStatic over the string's bytes; callers
// must not mutate the returned Buffer's backing store.
func NewReadOnlyFromString(s string) *Buffer {
	return NewStatic([]byte(s))
}

// NewGrowable allocates an owned, growable buffer with the given initial
// capacity.
func NewGrowable(initialCap int) *Buffer {
	return &Buffer{B: make([]byte, 0, initialCap), growable: true}
}

func (b *Buffer) Len() int { return len(b.B) }

func (b *Buffer) Bytes() []byte { return b.B }

func (b *Buffer) Tainted() bool { return b.tainted }

func (b *Buffer) Growable() bool { return b.growable }

// Reset rewinds both cursors and the length without releasing the
// backing array, matching the teacher's Reset/reuse idiom.
func (b *Buffer) Reset() {
	b.B = b.B[:0]
	b.readCursor = 0
	b.writeCursor = 0
	b.highWater = 0
}

// Wipe zeroes [0, highWater) and resets cursors — used before a Bank's
// secret material is dropped.
func (b *Buffer) Wipe() {
	if b.highWater > len(b.B) {
		b.highWater = len(b.B)
	}
	zeroSlice(b.B[:b.highWater])
	b.Reset()
}

// Free zeroes the backing array up to its capacity and detaches it. For
// a static buffer that array is the caller's memory, which is zeroed
// too; callers must not Free a static buffer that aliases memory they
// still need.
func (b *Buffer) Free() {
	zeroSlice(b.B[:cap(b.B)])
	b.B = nil
	b.readCursor = 0
	b.writeCursor = 0
	b.highWater = 0
}

// Reserve grows the backing array to at least n bytes of capacity if the
// buffer is growable; otherwise it fails without mutating state.
func (b *Buffer) Reserve(n int) error {
	if n <= cap(b.B) {
		return nil
	}
	if !b.growable || b.tainted {
		return ErrResizeDisallowed
	}
	grown := make([]byte, len(b.B), n)
	copy(grown, b.B)
	b.B = grown
	return nil
}

func (b *Buffer) track(n int) {
	if len(b.B) > b.highWater {
		b.highWater = len(b.B)
	}
	if n > b.writeCursor {
		b.writeCursor = n
	}
}

// WriteBytes appends p, growing if permitted.
func (b *Buffer) WriteBytes(p []byte) (int, error) {
	if p == nil {
		return 0, ErrNull
	}
	if !b.growable && len(b.B)+len(p) > cap(b.B) {
		return 0, ErrFull
	}
	if err := b.Reserve(len(b.B) + len(p)); err != nil {
		return 0, err
	}
	b.B = append(b.B, p...)
	b.track(len(b.B))
	return len(p), nil
}

// Write implements io.Writer in terms of WriteBytes.
func (b *Buffer) Write(p []byte) (int, error) { return b.WriteBytes(p) }

func (b *Buffer) WriteByte(c byte) error {
	_, err := b.WriteBytes([]byte{c})
	return err
}

func (b *Buffer) WriteU8(v uint8) error { return b.WriteByte(v) }

func (b *Buffer) WriteU16(v uint16) error {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	_, err := b.WriteBytes(tmp[:])
	return err
}

func (b *Buffer) WriteU24(v uint32) error {
	tmp := [3]byte{byte(v >> 16), byte(v >> 8), byte(v)}
	_, err := b.WriteBytes(tmp[:])
	return err
}

func (b *Buffer) WriteU32(v uint32) error {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	_, err := b.WriteBytes(tmp[:])
	return err
}

func (b *Buffer) WriteU64(v uint64) error {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	_, err := b.WriteBytes(tmp[:])
	return err
}

// ReadBytes copies n bytes starting at readCursor into a new slice and
// advances readCursor. Use RawRead on the hot path to avoid the copy.
func (b *Buffer) ReadBytes(n int) ([]byte, error) {
	window, err := b.RawRead(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, window)
	return out, nil
}

// RawRead returns a zero-copy window into the backing store and marks
// the buffer tainted: once a caller holds this pointer, growth would
// invalidate it, so Reserve refuses growth from then on. Reset, Wipe and
// Free leave the flag set; only a buffer handed out by Get starts clean.
func (b *Buffer) RawRead(n int) ([]byte, error) {
	if b.readCursor+n > len(b.B) {
		return nil, ErrOutOfData
	}
	window := b.B[b.readCursor : b.readCursor+n]
	b.readCursor += n
	b.tainted = true
	return window, nil
}

// RawWrite returns a zero-copy window of n bytes at the current write
// position, growing if permitted, and marks the buffer tainted.
func (b *Buffer) RawWrite(n int) ([]byte, error) {
	need := len(b.B) + n
	if err := b.Reserve(need); err != nil {
		return nil, err
	}
	b.B = b.B[:need]
	window := b.B[need-n : need]
	b.track(need)
	b.tainted = true
	return window, nil
}

func (b *Buffer) SkipRead(n int) error {
	if b.readCursor+n > len(b.B) {
		return ErrOutOfData
	}
	b.readCursor += n
	return nil
}

func (b *Buffer) SkipWrite(n int) error {
	_, err := b.RawWrite(n)
	return err
}

func (b *Buffer) ReadU8() (uint8, error) {
	w, err := b.RawRead(1)
	if err != nil {
		return 0, err
	}
	return w[0], nil
}

func (b *Buffer) ReadU16() (uint16, error) {
	w, err := b.RawRead(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(w), nil
}

func (b *Buffer) ReadU24() (uint32, error) {
	w, err := b.RawRead(3)
	if err != nil {
		return 0, err
	}
	return uint32(w[0])<<16 | uint32(w[1])<<8 | uint32(w[2]), nil
}

func (b *Buffer) ReadU32() (uint32, error) {
	w, err := b.RawRead(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(w), nil
}

func (b *Buffer) ReadU64() (uint64, error) {
	w, err := b.RawRead(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(w), nil
}

// EnsureLen returns b extended (via append, reusing the backing array
// when capacity allows) so that len(b) == n. Mirrors the teacher's
// utils.go EnsureLen trick used to prepend record/handshake headers
// without a second allocation.
func EnsureLen(b []byte, n int) []byte {
	if n <= cap(b) {
		return b[:n]
	}
	return append(b, make([]byte, n-len(b))...)
}
