package mjpeg

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
)

const (
	// DefaultMaxHeaderSize is the largest text preamble read as a header.
	DefaultMaxHeaderSize = 100

	// DefaultMaxFrameSize bounds one JPEG payload: an uncompressed 800x600
	// RGB image is never exceeded by its JPEG encoding.
	DefaultMaxFrameSize = 3 * 800 * 600
)

// Frame is one complete JPEG image extracted from the stream.
type Frame struct {
	Seq    uint64 // 1-based position in the stream
	Offset int64  // stream offset of the first header byte

	RawHeader []byte // preamble exactly as read
	Header    Header

	Data []byte // SOI..EOI, or exactly the declared length

	// Fallback is true when the payload length came from the end marker
	// scan rather than the declared length.
	Fallback bool
}

// IOError wraps a fault of the underlying stream.
type IOError struct {
	Err error
}

func (e *IOError) Error() string {
	return "mjpeg: read: " + e.Err.Error()
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Stats counts demuxer activity.
type Stats struct {
	Frames     uint64
	FastPath   uint64
	Fallback   uint64
	Mismatches uint64 // declared length disagreed with the markers
	Resyncs    uint64
	Bytes      int64
}

// Option configures a Demuxer.
type Option func(*Demuxer)

// WithMaxFrameSize sets the largest payload the demuxer will extract.
func WithMaxFrameSize(n int) Option {
	return func(d *Demuxer) { d.maxFrame = n }
}

// WithMaxHeaderSize sets the largest preamble treated as a header.
func WithMaxHeaderSize(n int) Option {
	return func(d *Demuxer) { d.maxHeader = n }
}

// Demuxer splits an MJPEG byte stream into frames. It is bound to one stream
// for its lifetime and must be driven from a single goroutine; Stats may be
// read concurrently.
type Demuxer struct {
	c         *Cursor
	maxFrame  int
	maxHeader int

	seq        uint64
	frames     atomic.Uint64
	fastPath   atomic.Uint64
	fallback   atomic.Uint64
	mismatches atomic.Uint64
	resyncs    atomic.Uint64
	bytes      atomic.Int64
}

// NewDemuxer returns a demuxer reading frames from r.
func NewDemuxer(r io.Reader, opts ...Option) *Demuxer {
	d := &Demuxer{
		c:         NewCursor(r),
		maxFrame:  DefaultMaxFrameSize,
		maxHeader: DefaultMaxHeaderSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Window returns the number of bytes a single frame may span, header
// included. Markers not found within it are reported as ErrMarkerNotFound.
func (d *Demuxer) Window() int {
	return d.maxFrame + d.maxHeader
}

// Stats returns a snapshot of the counters.
func (d *Demuxer) Stats() Stats {
	return Stats{
		Frames:     d.frames.Load(),
		FastPath:   d.fastPath.Load(),
		Fallback:   d.fallback.Load(),
		Mismatches: d.mismatches.Load(),
		Resyncs:    d.resyncs.Load(),
		Bytes:      d.bytes.Load(),
	}
}

// NextFrame reads the next complete frame.
//
// It returns io.EOF when the stream ends, including when it ends inside a
// frame; partial frames are never returned. A marker missing from the scan
// window yields an error wrapping ErrMarkerNotFound after the cursor has been
// moved past the bad region, so the following call resynchronizes on the next
// start marker. ErrMarkExpired indicates a window smaller than the frames
// actually read. Any other error is an *IOError.
func (d *Demuxer) NextFrame() (Frame, error) {
	start := d.c.Offset()
	f, err := d.readFrame()
	d.bytes.Add(d.c.Offset() - start)
	if err != nil {
		return Frame{}, classify(err)
	}
	d.seq++
	f.Seq = d.seq
	d.frames.Add(1)
	if f.Fallback {
		d.fallback.Add(1)
	} else {
		d.fastPath.Add(1)
	}
	return f, nil
}

func (d *Demuxer) readFrame() (Frame, error) {
	c := d.c
	window := d.Window()

	c.Mark(window)
	offset := c.Offset()
	headerLen, err := FindMarkerStart(c, SOI, window)
	if errors.Is(err, ErrMarkerNotFound) {
		// Leave the last byte unread in case it begins a split marker.
		if err := c.Reset(); err != nil {
			return Frame{}, err
		}
		if err := c.Skip(window - 1); err != nil {
			return Frame{}, err
		}
		d.resyncs.Add(1)
		slog.Debug("mjpeg: no start marker in scan window, skipping",
			"offset", offset,
			"window", window,
		)
		return Frame{}, fmt.Errorf("start of image: %w", ErrMarkerNotFound)
	}
	if err != nil {
		return Frame{}, err
	}
	if err := c.Reset(); err != nil {
		return Frame{}, err
	}

	if headerLen > d.maxHeader {
		// Not a header: discard everything before the start marker and
		// read the frame without one.
		if err := c.Skip(headerLen); err != nil {
			return Frame{}, err
		}
		d.resyncs.Add(1)
		slog.Debug("mjpeg: discarded oversized preamble",
			"offset", offset,
			"bytes", headerLen,
		)
		c.Mark(window)
		offset += int64(headerLen)
		headerLen = 0
	}

	raw, err := c.ReadFull(headerLen)
	if err != nil {
		return Frame{}, err
	}
	header, herr := ParseHeader(raw)
	if herr != nil {
		slog.Debug("mjpeg: unparseable frame header", "offset", offset, "error", herr)
	}

	f := Frame{Offset: offset, RawHeader: raw, Header: header}

	if n, lerr := header.ContentLength(); lerr == nil && d.declaredUsable(headerLen, n) {
		if err := c.Reset(); err != nil {
			return Frame{}, err
		}
		if err := c.Skip(headerLen); err != nil {
			return Frame{}, err
		}
		data, err := c.ReadFull(n)
		switch {
		case err == nil && isImage(data):
			f.Data = data
			return f, nil
		case err == nil, errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			// The stream may end before the declared length does; the
			// scan below decides whether a whole image is buffered.
			d.mismatches.Add(1)
			slog.Debug("mjpeg: declared length does not match image markers, scanning",
				"offset", offset,
				"declared", n,
				"short", err != nil,
			)
		default:
			return Frame{}, err
		}
	}

	// Slow path: find the end marker.
	if err := c.Reset(); err != nil {
		return Frame{}, err
	}
	if err := c.Skip(headerLen); err != nil {
		return Frame{}, err
	}
	payloadLen, err := FindMarkerEnd(c, EOI, window-headerLen)
	if errors.Is(err, ErrMarkerNotFound) {
		if err := c.Reset(); err != nil {
			return Frame{}, err
		}
		if err := c.Skip(headerLen + len(SOI)); err != nil {
			return Frame{}, err
		}
		d.resyncs.Add(1)
		slog.Debug("mjpeg: no end marker in scan window, resynchronizing",
			"offset", offset,
			"window", window,
		)
		return Frame{}, fmt.Errorf("end of image: %w", ErrMarkerNotFound)
	}
	if err != nil {
		return Frame{}, err
	}
	if err := c.Reset(); err != nil {
		return Frame{}, err
	}
	if err := c.Skip(headerLen); err != nil {
		return Frame{}, err
	}
	data, err := c.ReadFull(payloadLen)
	if err != nil {
		return Frame{}, err
	}
	f.Data = data
	f.Fallback = true
	return f, nil
}

// declaredUsable reports whether a declared length can be trusted enough to
// read: it must hold both markers and fit in the window with the header.
func (d *Demuxer) declaredUsable(headerLen, n int) bool {
	return n >= len(SOI)+len(EOI) && headerLen+n <= d.Window()
}

func isImage(data []byte) bool {
	n := len(data)
	return n >= 4 &&
		data[0] == SOI[0] && data[1] == SOI[1] &&
		data[n-2] == EOI[0] && data[n-1] == EOI[1]
}

func classify(err error) error {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return io.EOF
	case errors.Is(err, ErrMarkerNotFound), errors.Is(err, ErrMarkExpired):
		return err
	default:
		return &IOError{Err: err}
	}
}
