// Package stream drives MJPEG frames from a live connection to a display.
package stream

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/junsooki/camview/internal/mjpeg"
)

const (
	// DefaultFrameDelay paces painting between frames.
	DefaultFrameDelay = 500 * time.Millisecond

	// DefaultIdleDelay is how often a worker without a source rechecks.
	DefaultIdleDelay = 50 * time.Millisecond
)

// FrameSource yields frames in stream order. *mjpeg.Demuxer implements it.
type FrameSource interface {
	NextFrame() (mjpeg.Frame, error)
}

// FrameSink decodes and paints raw JPEG frames.
type FrameSink interface {
	Paint(data []byte) error
	Clear()
}

// WorkerConfig tunes the render loop.
type WorkerConfig struct {
	FrameDelay time.Duration
	IdleDelay  time.Duration
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.FrameDelay <= 0 {
		c.FrameDelay = DefaultFrameDelay
	}
	if c.IdleDelay <= 0 {
		c.IdleDelay = DefaultIdleDelay
	}
	return c
}

// WorkerStats counts render loop outcomes.
type WorkerStats struct {
	Painted      uint64
	FrameErrors  uint64 // read faults and frames the demuxer had to skip
	DecodeErrors uint64
	Detaches     uint64 // sources dropped at end of stream
}

// Worker pulls frames from the attached source and paints them, one at a
// time, on its own goroutine. Whether it runs and whether it has a source
// are independent: a running worker without a source idles.
type Worker struct {
	sink FrameSink
	cfg  WorkerConfig

	running   atomic.Bool
	hasSource atomic.Bool

	srcMu sync.Mutex
	src   FrameSource

	// surfaceMu gives the painter exclusive use of the sink.
	surfaceMu sync.Mutex

	wake    chan struct{}
	started atomic.Bool
	done    chan struct{}

	painted      atomic.Uint64
	frameErrors  atomic.Uint64
	decodeErrors atomic.Uint64
	detaches     atomic.Uint64
}

// NewWorker returns a stopped worker painting on sink.
func NewWorker(sink FrameSink, cfg WorkerConfig) *Worker {
	return &Worker{
		sink: sink,
		cfg:  cfg.withDefaults(),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Start launches the render loop. A worker runs at most once.
func (w *Worker) Start() error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("stream: worker already started")
	}
	w.running.Store(true)
	go w.loop()
	return nil
}

// Stop asks the loop to exit after the current iteration. It does not wait;
// use Join.
func (w *Worker) Stop() {
	w.running.Store(false)
	w.signal()
}

// Join blocks until the loop has exited. It returns immediately for a
// worker that was never started.
func (w *Worker) Join() {
	if !w.started.Load() {
		return
	}
	<-w.done
}

// Done is closed when the loop exits.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// SetSource attaches src, or detaches the current source when src is nil.
func (w *Worker) SetSource(src FrameSource) {
	w.srcMu.Lock()
	w.src = src
	w.hasSource.Store(src != nil)
	w.srcMu.Unlock()
	w.signal()
}

// IsRunning reports whether the loop has been asked to run.
func (w *Worker) IsRunning() bool {
	return w.running.Load()
}

// HasSource reports whether a source is attached.
func (w *Worker) HasSource() bool {
	return w.hasSource.Load()
}

// ClearDisplay blanks the sink, waiting for any paint in progress.
func (w *Worker) ClearDisplay() {
	w.surfaceMu.Lock()
	defer w.surfaceMu.Unlock()
	w.sink.Clear()
}

// Stats returns a snapshot of the counters.
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		Painted:      w.painted.Load(),
		FrameErrors:  w.frameErrors.Load(),
		DecodeErrors: w.decodeErrors.Load(),
		Detaches:     w.detaches.Load(),
	}
}

func (w *Worker) loop() {
	defer close(w.done)
	slog.Debug("stream: render loop started")

	for w.running.Load() {
		if !w.hasSource.Load() {
			w.sleep(w.cfg.IdleDelay)
			continue
		}
		w.renderOnce()
		w.sleep(w.cfg.FrameDelay)
	}

	slog.Debug("stream: render loop exited", "painted", w.painted.Load())
}

// renderOnce reads one frame and paints it while holding the surface.
func (w *Worker) renderOnce() {
	w.srcMu.Lock()
	src := w.src
	w.srcMu.Unlock()
	if src == nil {
		return
	}

	w.surfaceMu.Lock()
	defer w.surfaceMu.Unlock()

	frame, err := src.NextFrame()
	if err != nil {
		w.handleReadError(src, err)
		return
	}
	if err := w.sink.Paint(frame.Data); err != nil {
		w.decodeErrors.Add(1)
		slog.Warn("stream: paint frame",
			"seq", frame.Seq,
			"bytes", len(frame.Data),
			"error", err,
		)
		return
	}
	w.painted.Add(1)
}

func (w *Worker) handleReadError(src FrameSource, err error) {
	if errors.Is(err, io.EOF) {
		w.srcMu.Lock()
		if w.src == src {
			w.src = nil
			w.hasSource.Store(false)
		}
		w.srcMu.Unlock()
		w.detaches.Add(1)
		slog.Info("stream: end of stream, source detached")
		return
	}

	w.frameErrors.Add(1)
	if errors.Is(err, mjpeg.ErrMarkExpired) {
		// Misconfigured window; every frame of this size will fail.
		slog.Error("stream: frame exceeds scan window", "error", err)
		return
	}
	slog.Warn("stream: skipping frame", "error", fmt.Errorf("read frame: %w", err))
}

// sleep waits for d or until Stop or SetSource is called.
func (w *Worker) sleep(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-w.wake:
	}
}

func (w *Worker) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}
