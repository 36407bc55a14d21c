package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

var fastSession = Config{Worker: fastWorker, JoinInterval: 10 * time.Millisecond}

// countingCloser counts Close calls on a reader.
type countingCloser struct {
	io.Reader
	closes atomic.Int32
}

func (c *countingCloser) Close() error {
	c.closes.Add(1)
	return nil
}

func mjpegStream(frames ...[]byte) []byte {
	var buf bytes.Buffer
	for _, f := range frames {
		fmt.Fprintf(&buf, "Content-Length: %d\n\n", len(f))
		buf.Write(f)
	}
	return buf.Bytes()
}

func staticOpener(rc io.ReadCloser) Opener {
	return OpenerFunc(func(context.Context) (io.ReadCloser, error) {
		return rc, nil
	})
}

func stopWithin(t *testing.T, s *Session, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("Stop() did not return")
	}
}

func TestSessionStopImmediatelyAfterStart(t *testing.T) {
	// The connection never opens until cancelled.
	opener := OpenerFunc(func(ctx context.Context) (io.ReadCloser, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	s := NewSession(&recordingSink{}, fastSession)
	if err := s.Start(context.Background(), opener); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !s.IsStreaming() {
		t.Error("IsStreaming() = false after Start")
	}
	stopWithin(t, s, 5*time.Second)
	if s.IsStreaming() {
		t.Error("IsStreaming() = true after Stop")
	}
}

func TestSessionID(t *testing.T) {
	a := NewSession(&recordingSink{}, fastSession)
	b := NewSession(&recordingSink{}, fastSession)
	if _, err := uuid.Parse(a.ID()); err != nil {
		t.Errorf("ID() = %q is not a UUID: %v", a.ID(), err)
	}
	if a.ID() == b.ID() {
		t.Errorf("two sessions share ID %q", a.ID())
	}
}

func TestSessionStopWithoutStart(t *testing.T) {
	s := NewSession(&recordingSink{}, fastSession)
	stopWithin(t, s, time.Second)
	stopWithin(t, s, time.Second)
	if s.IsStreaming() {
		t.Error("IsStreaming() = true")
	}
}

func TestSessionStartFailedOpen(t *testing.T) {
	opener := OpenerFunc(func(context.Context) (io.ReadCloser, error) {
		return nil, errors.New("connection refused")
	})
	s := NewSession(&recordingSink{}, fastSession)
	if err := s.Start(context.Background(), opener); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	stopWithin(t, s, 5*time.Second)
}

func TestSessionStreamsFrames(t *testing.T) {
	frames := [][]byte{
		{0xFF, 0xD8, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0xFF, 0xD9},
		{0xFF, 0xD8, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0xFF, 0xD9},
		{0xFF, 0xD8, 0x0D, 0x0E, 0x0F, 0x10, 0x11, 0x12, 0xFF, 0xD9},
	}
	conn := &countingCloser{Reader: bytes.NewReader(mjpegStream(frames...))}
	sink := &recordingSink{}

	s := NewSession(sink, fastSession)
	if err := s.Start(context.Background(), staticOpener(conn)); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "three frames", func() bool { return len(sink.painted()) == 3 })

	ws, ds := s.Stats()
	if ws.Painted != 3 || ds.Frames != 3 {
		t.Errorf("Stats() = %+v, %+v", ws, ds)
	}

	stopWithin(t, s, 5*time.Second)
	for i, f := range sink.painted() {
		if !bytes.Equal(f, frames[i]) {
			t.Errorf("frame %d = % x, want % x", i, f, frames[i])
		}
	}
	if n := conn.closes.Load(); n != 1 {
		t.Errorf("connection closed %d times, want 1", n)
	}
	// A second stop must not close it again.
	stopWithin(t, s, time.Second)
	if n := conn.closes.Load(); n != 1 {
		t.Errorf("connection closed %d times after second Stop, want 1", n)
	}
}

func TestSessionStopUnblocksRead(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	s := NewSession(&recordingSink{}, fastSession)
	if err := s.Start(context.Background(), staticOpener(pr)); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	// Give the worker time to block reading the pipe.
	waitFor(t, "source attached", func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.conn != nil
	})
	time.Sleep(20 * time.Millisecond)

	stopWithin(t, s, 5*time.Second)
}

func TestSessionAttachSourceReplaces(t *testing.T) {
	first := &countingCloser{Reader: bytes.NewReader(nil)}
	second := &countingCloser{Reader: bytes.NewReader(mjpegStream([]byte{0xFF, 0xD8, 0x00, 0x00, 0xFF, 0xD9}))}
	sink := &recordingSink{}

	s := NewSession(sink, fastSession)
	if err := s.Start(context.Background(), staticOpener(first)); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "first source", func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.conn != nil
	})

	s.AttachSource(second)
	if n := first.closes.Load(); n != 1 {
		t.Errorf("replaced connection closed %d times, want 1", n)
	}
	waitFor(t, "frame from second source", func() bool { return len(sink.painted()) == 1 })

	s.AttachSource(nil)
	if n := second.closes.Load(); n != 1 {
		t.Errorf("detached connection closed %d times, want 1", n)
	}
	stopWithin(t, s, 5*time.Second)
}

func TestSessionAttachAfterStopCloses(t *testing.T) {
	s := NewSession(&recordingSink{}, fastSession)
	rc := &countingCloser{Reader: bytes.NewReader(nil)}
	s.AttachSource(rc)
	if n := rc.closes.Load(); n != 1 {
		t.Errorf("connection attached to an idle session closed %d times, want 1", n)
	}
}

func TestSessionStartTwice(t *testing.T) {
	s := NewSession(&recordingSink{}, fastSession)
	opener := staticOpener(&countingCloser{Reader: bytes.NewReader(nil)})
	if err := s.Start(context.Background(), opener); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer stopWithin(t, s, 5*time.Second)
	if err := s.Start(context.Background(), opener); err == nil {
		t.Error("second Start() succeeded")
	}
}

func TestSessionClearDisplay(t *testing.T) {
	sink := &recordingSink{}
	s := NewSession(sink, fastSession)
	s.ClearDisplay()
	if sink.cleared != 1 {
		t.Errorf("cleared %d times, want 1", sink.cleared)
	}
}
