package mjpeg

import (
	"bufio"
	"errors"
	"io"
)

// ErrMarkExpired is returned by Reset when no mark is set or more bytes than
// the mark window were consumed since it was set. It indicates a window
// configured smaller than the frames being read, not a transport fault.
var ErrMarkExpired = errors.New("mjpeg: mark expired, scan window too small")

// Cursor is a forward-only reader over a live byte source with a single
// pending mark. Bytes consumed after Mark are retained (up to the window) so
// Reset can replay them.
type Cursor struct {
	r *bufio.Reader

	// buf holds bytes consumed since the mark; pos is the replay position
	// after a Reset. pos == len(buf) means reads come from r.
	buf    []byte
	pos    int
	window int
	marked bool

	offset int64
}

// NewCursor wraps r. r is not closed by the cursor.
func NewCursor(r io.Reader) *Cursor {
	return &Cursor{r: bufio.NewReaderSize(r, 64*1024)}
}

// Offset returns the stream-relative position of the next byte to be read.
func (c *Cursor) Offset() int64 {
	return c.offset
}

// Mark records the current position. Up to window bytes may be consumed
// before Reset stops being able to return here.
func (c *Cursor) Mark(window int) {
	if c.pos < len(c.buf) {
		// Keep bytes replayed but not yet consumed since the last Reset.
		n := copy(c.buf, c.buf[c.pos:])
		c.buf = c.buf[:n]
	} else {
		c.buf = c.buf[:0]
	}
	c.pos = 0
	c.window = window
	c.marked = true
}

// Reset rewinds to the last mark.
func (c *Cursor) Reset() error {
	if !c.marked {
		return ErrMarkExpired
	}
	c.offset -= int64(c.pos)
	c.pos = 0
	return nil
}

// ReadByte reads one byte, returning io.EOF at end of stream.
func (c *Cursor) ReadByte() (byte, error) {
	if c.pos < len(c.buf) {
		b := c.buf[c.pos]
		c.pos++
		c.offset++
		return b, nil
	}
	b, err := c.r.ReadByte()
	if err != nil {
		return 0, err
	}
	c.record([]byte{b})
	c.offset++
	return b, nil
}

// ReadFull reads exactly n bytes. A stream that ends early yields
// io.ErrUnexpectedEOF (io.EOF if nothing was read).
func (c *Cursor) ReadFull(n int) ([]byte, error) {
	if n < 0 {
		return nil, errors.New("mjpeg: negative read length")
	}
	out := make([]byte, n)
	got := copy(out, c.buf[c.pos:])
	c.pos += got
	c.offset += int64(got)
	if got == n {
		return out, nil
	}

	m, err := io.ReadFull(c.r, out[got:])
	c.record(out[got : got+m])
	c.offset += int64(m)
	if err != nil {
		if errors.Is(err, io.EOF) && got > 0 {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return out, nil
}

// Skip discards n bytes.
func (c *Cursor) Skip(n int) error {
	replay := min(n, len(c.buf)-c.pos)
	c.pos += replay
	c.offset += int64(replay)
	n -= replay
	if n == 0 {
		return nil
	}

	if !c.marked {
		m, err := c.r.Discard(n)
		c.offset += int64(m)
		if err != nil && m > 0 && errors.Is(err, io.EOF) {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	_, err := c.ReadFull(n)
	return err
}

// record appends bytes freshly read from the source to the mark buffer,
// dropping the mark once the window is exceeded.
func (c *Cursor) record(p []byte) {
	if !c.marked || len(p) == 0 {
		return
	}
	if len(c.buf)+len(p) > c.window {
		c.marked = false
		c.buf = c.buf[:0]
		c.pos = 0
		return
	}
	c.buf = append(c.buf, p...)
	c.pos = len(c.buf)
}
