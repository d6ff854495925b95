package decoder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

type Endianness uint8

const (
	LittleEndian Endianness = iota
	BigEndian
)

func (e Endianness) String() string {
	switch e {
	case LittleEndian:
		return "little"
	case BigEndian:
		return "big"
	default:
		return "unknown"
	}
}

func ParseEndianness(s string) (Endianness, error) {
	switch s {
	case "little", "le":
		return LittleEndian, nil
	case "big", "be", "":
		return BigEndian, nil
	default:
		return LittleEndian, fmt.Errorf("unknown byte order %q", s)
	}
}

// ByteCursor reads fixed-width unsigned integers from a seekable source and
// keeps track of the absolute position in the stream.
type ByteCursor struct {
	source   io.ReadSeeker
	reader   *bufio.Reader
	position int64
	scratch  [8]byte
}

func NewByteCursor(source io.ReadSeeker) *ByteCursor {
	return &ByteCursor{
		source: source,
		reader: bufio.NewReaderSize(source, 64*1024),
	}
}

// ReadUint reads n (1 to 8) bytes and assembles them with the given byte order.
func (c *ByteCursor) ReadUint(n int, order Endianness) (uint64, error) {
	return c.readField("field", n, order)
}

func (c *ByteCursor) readField(field string, n int, order Endianness) (uint64, error) {
	if n < 1 || n > 8 {
		return 0, fmt.Errorf("invalid integer width %d for %s", n, field)
	}
	buf := c.scratch[:n]
	nRead, err := io.ReadFull(c.reader, buf)
	c.position += int64(nRead)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, &TruncatedReadError{Field: field, Offset: c.position - int64(nRead), Want: n, Got: nRead}
		}
		return 0, fmt.Errorf("error reading %s: %w", field, err)
	}

	var value uint64
	switch order {
	case BigEndian:
		for _, b := range buf {
			value = value<<8 | uint64(b)
		}
	default:
		for i := n - 1; i >= 0; i-- {
			value = value<<8 | uint64(buf[i])
		}
	}
	return value, nil
}

func (c *ByteCursor) ReadUint8(field string) (uint8, error) {
	v, err := c.readField(field, 1, LittleEndian)
	return uint8(v), err
}

func (c *ByteCursor) ReadUint16(field string) (uint16, error) {
	v, err := c.readField(field, 2, LittleEndian)
	return uint16(v), err
}

func (c *ByteCursor) ReadUint32(field string) (uint32, error) {
	v, err := c.readField(field, 4, LittleEndian)
	return uint32(v), err
}

func (c *ByteCursor) ReadUint64(field string) (uint64, error) {
	return c.readField(field, 8, LittleEndian)
}

// AtEnd reports whether no byte is left to read.
func (c *ByteCursor) AtEnd() bool {
	_, err := c.reader.Peek(1)
	return err != nil
}

func (c *ByteCursor) Tell() int64 {
	return c.position
}

func (c *ByteCursor) Seek(pos int64) error {
	if pos < 0 {
		return fmt.Errorf("invalid seek position %d", pos)
	}
	if _, err := c.source.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("error seeking to %d: %w", pos, err)
	}
	c.reader.Reset(c.source)
	c.position = pos
	return nil
}

// Skip moves the cursor n bytes forward. Small skips are served from the
// read buffer, larger ones seek the underlying source.
func (c *ByteCursor) Skip(n int64) error {
	if n < 0 {
		return c.Seek(c.position + n)
	}
	if n <= int64(c.reader.Buffered()) {
		discarded, err := c.reader.Discard(int(n))
		c.position += int64(discarded)
		return err
	}
	return c.Seek(c.position + n)
}
