package qmesh

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

// cancelCheckInterval is how many bytes a cursor consumes between context polls.
const cancelCheckInterval = 4096

// Cursor is a bounds-checked little-endian reader over a byte slice.
// It borrows the slice and never copies it; slices returned by ReadBytes
// alias the underlying buffer.
type Cursor struct {
	buf       []byte
	off       int
	ctx       context.Context
	nextCheck int
}

// NewCursor returns a cursor positioned at the start of buf.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// WithContext makes the cursor fail with ErrCancelled once ctx is done.
// The context is polled every few kilobytes of consumption.
func (c *Cursor) WithContext(ctx context.Context) *Cursor {
	c.ctx = ctx
	c.nextCheck = c.off
	return c
}

// Offset returns the number of bytes consumed so far.
func (c *Cursor) Offset() int {
	return c.off
}

// Len returns the total length of the underlying buffer.
func (c *Cursor) Len() int {
	return len(c.buf)
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.off
}

// HasRemaining reports whether any unread bytes are left.
func (c *Cursor) HasRemaining() bool {
	return c.off < len(c.buf)
}

// Err returns ErrCancelled if the cursor's context is done.
func (c *Cursor) Err() error {
	if c.ctx == nil {
		return nil
	}
	if err := c.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	return nil
}

// take reserves the next n bytes and returns them.
func (c *Cursor) take(n int, what string) ([]byte, error) {
	if n < 0 || n > c.Remaining() {
		return nil, fmt.Errorf("%w: %s needs %d bytes, %d remain", ErrTruncatedBuffer, what, n, c.Remaining())
	}
	if c.ctx != nil && c.off >= c.nextCheck {
		if err := c.Err(); err != nil {
			return nil, err
		}
		c.nextCheck = c.off + cancelCheckInterval
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

// ReadUint8 reads one byte.
func (c *Cursor) ReadUint8() (uint8, error) {
	b, err := c.take(1, "u8")
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint16 reads a little-endian uint16.
func (c *Cursor) ReadUint16() (uint16, error) {
	b, err := c.take(2, "u16")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadUint32 reads a little-endian uint32.
func (c *Cursor) ReadUint32() (uint32, error) {
	b, err := c.take(4, "u32")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadFloat32 reads a little-endian IEEE 754 float32.
func (c *Cursor) ReadFloat32() (float32, error) {
	b, err := c.take(4, "f32")
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
}

// ReadFloat64 reads a little-endian IEEE 754 float64.
func (c *Cursor) ReadFloat64() (float64, error) {
	b, err := c.take(8, "f64")
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// ReadUint16s reads n consecutive little-endian uint16 values into a new slice.
// The length is checked before anything is allocated.
func (c *Cursor) ReadUint16s(n int) ([]uint16, error) {
	if n < 0 || n > c.Remaining()/2 {
		return nil, fmt.Errorf("%w: %d u16 values need %d bytes, %d remain",
			ErrTruncatedBuffer, n, 2*n, c.Remaining())
	}
	out := make([]uint16, n)
	for i := range out {
		v, err := c.ReadUint16()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ReadBytes returns the next n bytes. The result aliases the buffer.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	return c.take(n, "bytes")
}

// Skip advances past n bytes without reading them.
func (c *Cursor) Skip(n int) error {
	_, err := c.take(n, "skip")
	return err
}
