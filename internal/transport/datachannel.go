package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pion/webrtc/v4"
)

const (
	// ChunkSize is the largest message sent on the channel. Browsers and
	// pion agree on 16 KiB as the interoperable SCTP message size.
	ChunkSize = 16 * 1024

	// Send blocks while more than this many bytes are queued.
	maxBufferedAmount = 1 << 20
	lowBufferedAmount = 256 * 1024
)

// Label names the data channel carrying the MJPEG byte stream.
const Label = "mjpeg"

// ErrClosed is returned by Send after the channel has closed.
var ErrClosed = errors.New("transport: data channel closed")

// DataChannelTransport carries an MJPEG byte stream over one ordered,
// reliable WebRTC DataChannel.
type DataChannelTransport struct {
	mu      sync.Mutex
	dc      *webrtc.DataChannel
	onData  func(data []byte)
	onClose func()

	drained chan struct{}
	closed  chan struct{}
	once    sync.Once
}

// NewDataChannelTransport wraps dc, which may be nil until SetChannel.
func NewDataChannelTransport(dc *webrtc.DataChannel) *DataChannelTransport {
	t := &DataChannelTransport{
		drained: make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
	if dc != nil {
		t.SetChannel(dc)
	}
	return t
}

// ChannelInit returns the options for the stream channel: ordered and
// reliable, since the demuxer needs every byte in sequence.
func ChannelInit() *webrtc.DataChannelInit {
	ordered := true
	return &webrtc.DataChannelInit{Ordered: &ordered}
}

// SetChannel sets or replaces the DataChannel.
func (t *DataChannelTransport) SetChannel(dc *webrtc.DataChannel) {
	t.mu.Lock()
	t.dc = dc
	t.mu.Unlock()

	dc.SetBufferedAmountLowThreshold(lowBufferedAmount)
	dc.OnBufferedAmountLow(func() {
		select {
		case t.drained <- struct{}{}:
		default:
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.deliver(msg.Data)
	})
	dc.OnClose(t.close)
}

// Send writes data as one or more messages, waiting while the channel's
// send buffer is full.
func (t *DataChannelTransport) Send(data []byte) error {
	t.mu.Lock()
	dc := t.dc
	t.mu.Unlock()
	if dc == nil {
		return fmt.Errorf("stream data channel not set")
	}

	for _, chunk := range chunks(data, ChunkSize) {
		for dc.BufferedAmount() > maxBufferedAmount {
			select {
			case <-t.drained:
			case <-t.closed:
				return ErrClosed
			}
		}
		if err := dc.Send(chunk); err != nil {
			return err
		}
	}
	return nil
}

// Write implements io.Writer so a stream can be copied onto the channel.
func (t *DataChannelTransport) Write(p []byte) (int, error) {
	if err := t.Send(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *DataChannelTransport) OnData(cb func(data []byte)) {
	t.mu.Lock()
	t.onData = cb
	t.mu.Unlock()
}

func (t *DataChannelTransport) OnClose(cb func()) {
	t.mu.Lock()
	t.onClose = cb
	t.mu.Unlock()
}

// Close closes the underlying channel.
func (t *DataChannelTransport) Close() error {
	t.mu.Lock()
	dc := t.dc
	t.mu.Unlock()
	t.close()
	if dc == nil {
		return nil
	}
	return dc.Close()
}

// Closed is closed once the channel has closed.
func (t *DataChannelTransport) Closed() <-chan struct{} {
	return t.closed
}

func (t *DataChannelTransport) deliver(data []byte) {
	t.mu.Lock()
	cb := t.onData
	t.mu.Unlock()
	if cb != nil {
		cb(data)
	}
}

func (t *DataChannelTransport) close() {
	t.once.Do(func() {
		close(t.closed)
		t.mu.Lock()
		cb := t.onClose
		t.mu.Unlock()
		if cb != nil {
			cb()
		}
	})
}

// NewStreamReader returns a reader over the bytes r delivers, in order.
// It reports io.EOF once r closes. Delivery blocks until the bytes are read,
// which holds back the remote sender; closing the reader discards the rest.
func NewStreamReader(r StreamReceiver) io.ReadCloser {
	pr, pw := io.Pipe()
	r.OnData(func(data []byte) {
		_, _ = pw.Write(data)
	})
	r.OnClose(func() {
		pw.Close()
	})
	return pr
}

func chunks(data []byte, size int) [][]byte {
	var out [][]byte
	for len(data) > size {
		out = append(out, data[:size])
		data = data[size:]
	}
	if len(data) > 0 {
		out = append(out, data)
	}
	return out
}
