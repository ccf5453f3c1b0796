// Package wire holds the big-endian primitives every netvend message is
// built from.
//
// Ownership boundary:
// - Writer appends fixed-width integers and length-prefixed byte strings.
// - Cursor consumes them again with a bounds check on every read.
// - Neither type knows about commands, results or packets.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	MaxLen8  = 0xff
	MaxLen16 = 0xffff
)

var (
	ErrUnexpectedEnd = errors.New("wire: unexpected end of data")
	ErrFieldTooLong  = errors.New("wire: field too long for length prefix")
	ErrTrailingBytes = errors.New("wire: trailing bytes after message")
)

// Writer appends encoded fields to a growable buffer.
type Writer struct {
	buf []byte
}

func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Len() int {
	return len(w.buf)
}

func (w *Writer) Uint8(v uint8) int {
	w.buf = append(w.buf, v)
	return 1
}

func (w *Writer) Bool(v bool) int {
	if v {
		return w.Uint8(1)
	}
	return w.Uint8(0)
}

func (w *Writer) Uint16(v uint16) int {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
	return 2
}

func (w *Writer) Uint32(v uint32) int {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
	return 4
}

func (w *Writer) Uint64(v uint64) int {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
	return 8
}

func (w *Writer) Int8(v int8) int   { return w.Uint8(uint8(v)) }
func (w *Writer) Int16(v int16) int { return w.Uint16(uint16(v)) }
func (w *Writer) Int32(v int32) int { return w.Uint32(uint32(v)) }
func (w *Writer) Int64(v int64) int { return w.Uint64(uint64(v)) }

// Raw appends b without a length prefix.
func (w *Writer) Raw(b []byte) int {
	w.buf = append(w.buf, b...)
	return len(b)
}

// Bytes8 appends b behind a one-byte length prefix.
func (w *Writer) Bytes8(b []byte) (int, error) {
	if len(b) > MaxLen8 {
		return 0, fmt.Errorf("%w: %d > %d", ErrFieldTooLong, len(b), MaxLen8)
	}
	w.Uint8(uint8(len(b)))
	return 1 + w.Raw(b), nil
}

// Bytes16 appends b behind a two-byte length prefix.
func (w *Writer) Bytes16(b []byte) (int, error) {
	if len(b) > MaxLen16 {
		return 0, fmt.Errorf("%w: %d > %d", ErrFieldTooLong, len(b), MaxLen16)
	}
	w.Uint16(uint16(len(b)))
	return 2 + w.Raw(b), nil
}

// Fixed appends b zero-padded to exactly size bytes.
func (w *Writer) Fixed(b []byte, size int) (int, error) {
	if len(b) > size {
		return 0, fmt.Errorf("%w: %d > fixed %d", ErrFieldTooLong, len(b), size)
	}
	w.Raw(b)
	w.buf = append(w.buf, make([]byte, size-len(b))...)
	return size, nil
}

// Cursor reads fields from an immutable input buffer.
type Cursor struct {
	data []byte
	pos  int
}

func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data}
}

func (c *Cursor) Offset() int {
	return c.pos
}

func (c *Cursor) Remaining() int {
	return len(c.data) - c.pos
}

// Done reports ErrTrailingBytes when unread input is left.
func (c *Cursor) Done() error {
	if c.Remaining() != 0 {
		return fmt.Errorf("%w: %d left at offset %d", ErrTrailingBytes, c.Remaining(), c.pos)
	}
	return nil
}

func (c *Cursor) take(n int) ([]byte, error) {
	if n < 0 || c.Remaining() < n {
		return nil, fmt.Errorf("%w: need %d at offset %d, have %d", ErrUnexpectedEnd, n, c.pos, c.Remaining())
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *Cursor) Uint8() (uint8, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Cursor) Bool() (bool, error) {
	v, err := c.Uint8()
	return v != 0, err
}

func (c *Cursor) Uint16() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (c *Cursor) Uint32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (c *Cursor) Uint64() (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (c *Cursor) Int8() (int8, error) {
	v, err := c.Uint8()
	return int8(v), err
}

func (c *Cursor) Int16() (int16, error) {
	v, err := c.Uint16()
	return int16(v), err
}

func (c *Cursor) Int32() (int32, error) {
	v, err := c.Uint32()
	return int32(v), err
}

func (c *Cursor) Int64() (int64, error) {
	v, err := c.Uint64()
	return int64(v), err
}

// Raw returns a copy of the next n bytes.
func (c *Cursor) Raw(n int) ([]byte, error) {
	b, err := c.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

func (c *Cursor) Bytes8() ([]byte, error) {
	n, err := c.Uint8()
	if err != nil {
		return nil, err
	}
	return c.Raw(int(n))
}

func (c *Cursor) Bytes16() ([]byte, error) {
	n, err := c.Uint16()
	if err != nil {
		return nil, err
	}
	return c.Raw(int(n))
}

// FixedString reads a size-byte zero-padded field and trims it at the
// first zero byte.
func (c *Cursor) FixedString(size int) (string, error) {
	b, err := c.take(size)
	if err != nil {
		return "", err
	}
	return string(TrimZero(b)), nil
}

// TrimZero returns the prefix of b before its first zero byte.
func TrimZero(b []byte) []byte {
	for i, v := range b {
		if v == 0 {
			return b[:i]
		}
	}
	return b
}
