package classfile

import (
	"encoding/binary"
	"fmt"
)

// Cursor reads big-endian fields from an in-memory buffer. The first
// failed read is sticky: later reads return zero values and Err reports
// the original failure.
type Cursor struct {
	data []byte
	pos  int
	base int
	err  error
}

func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data}
}

// Offset is the absolute position of the next read within the buffer the
// outermost cursor was created from.
func (c *Cursor) Offset() int {
	return c.base + c.pos
}

func (c *Cursor) Remaining() int {
	return len(c.data) - c.pos
}

func (c *Cursor) Err() error {
	return c.err
}

func (c *Cursor) fail(err error) {
	if c.err == nil {
		c.err = &DecodeError{Offset: c.Offset(), Err: err}
	}
}

func (c *Cursor) take(n int) []byte {
	if c.err != nil {
		return nil
	}
	if n < 0 || c.Remaining() < n {
		c.fail(fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, n, c.Remaining()))
		return nil
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b
}

func (c *Cursor) U1() uint8 {
	b := c.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (c *Cursor) U2() uint16 {
	b := c.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (c *Cursor) U4() uint32 {
	b := c.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (c *Cursor) U8() uint64 {
	b := c.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// Bytes returns the next n bytes without copying.
func (c *Cursor) Bytes(n int) []byte {
	return c.take(n)
}

func (c *Cursor) Skip(n int) {
	c.take(n)
}

// Sub carves the next n bytes into an independent cursor and advances past
// them, whatever the sub-cursor's reader later does with them.
func (c *Cursor) Sub(n int) *Cursor {
	start := c.Offset()
	b := c.take(n)
	if b == nil {
		return &Cursor{base: start, err: c.err}
	}
	return &Cursor{data: b, base: start}
}
