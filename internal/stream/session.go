package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/junsooki/camview/internal/mjpeg"
)

// Opener opens the byte stream a session reads frames from. Open must return
// promptly once ctx is cancelled.
type Opener interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context) (io.ReadCloser, error)

func (f OpenerFunc) Open(ctx context.Context) (io.ReadCloser, error) {
	return f(ctx)
}

// Config configures a Session.
type Config struct {
	Worker        WorkerConfig
	MaxFrameSize  int
	MaxHeaderSize int

	// JoinInterval is how often Stop reports a worker that has not exited
	// yet. Stop keeps waiting regardless.
	JoinInterval time.Duration
}

func (c Config) demuxOptions() []mjpeg.Option {
	var opts []mjpeg.Option
	if c.MaxFrameSize > 0 {
		opts = append(opts, mjpeg.WithMaxFrameSize(c.MaxFrameSize))
	}
	if c.MaxHeaderSize > 0 {
		opts = append(opts, mjpeg.WithMaxHeaderSize(c.MaxHeaderSize))
	}
	return opts
}

// Session owns one connection at a time and the worker rendering it.
type Session struct {
	id   string
	sink FrameSink
	cfg  Config

	mu        sync.Mutex
	streaming atomic.Bool
	gen       uint64 // bumped by Start and Stop
	worker    *Worker
	cancel    context.CancelFunc
	fetchDone chan struct{}
	conn      *handle
	demux     *mjpeg.Demuxer
}

// NewSession returns an idle session painting on sink.
func NewSession(sink FrameSink, cfg Config) *Session {
	if cfg.JoinInterval <= 0 {
		cfg.JoinInterval = time.Second
	}
	return &Session{
		id:   uuid.NewString(),
		sink: sink,
		cfg:  cfg,
	}
}

// ID identifies the session in logs.
func (s *Session) ID() string {
	return s.id
}

// Start starts a render worker and opens the connection in the background.
// Frames are painted once the connection is attached. Starting a streaming
// session is an error.
func (s *Session) Start(ctx context.Context, opener Opener) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.streaming.Load() {
		return errors.New("stream: session already streaming")
	}

	w := NewWorker(s.sink, s.cfg.Worker)
	if err := w.Start(); err != nil {
		return err
	}
	s.worker = w
	s.streaming.Store(true)
	s.gen++
	gen := s.gen

	fetchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.fetchDone = done

	slog.Info("stream: session started", "session", s.id)

	go func() {
		defer close(done)
		rc, err := opener.Open(fetchCtx)
		if err != nil {
			if fetchCtx.Err() == nil {
				slog.Error("stream: open source", "session", s.id, "error", err)
			}
			return
		}
		s.attach(rc, gen)
	}()
	return nil
}

// AttachSource hands rc to the session, replacing and closing the current
// connection. A nil rc detaches the current one.
func (s *Session) AttachSource(rc io.ReadCloser) {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	s.attach(rc, gen)
}

// attach installs rc if the session is still in generation gen. A
// connection that finished opening after Stop is closed instead.
func (s *Session) attach(rc io.ReadCloser, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rc != nil && (!s.streaming.Load() || gen != s.gen) {
		rc.Close()
		return
	}

	old := s.conn
	s.conn, s.demux = nil, nil
	var src FrameSource
	if rc != nil {
		s.conn = &handle{rc: rc}
		s.demux = mjpeg.NewDemuxer(s.conn, s.cfg.demuxOptions()...)
		src = s.demux
	}
	if s.worker != nil {
		s.worker.SetSource(src)
	}
	if old != nil {
		old.Close()
	}
	slog.Info("stream: source attached", "session", s.id, "attached", rc != nil)
}

// Stop ends streaming: it cancels a connection still being opened, closes
// the current one, and waits for the worker to exit. It is safe to call on
// a session that never started or whose connection never opened.
func (s *Session) Stop() {
	s.mu.Lock()
	s.streaming.Store(false)
	s.gen++
	w, cancel, fetchDone := s.worker, s.cancel, s.fetchDone
	conn, demux := s.conn, s.demux
	s.worker, s.cancel, s.fetchDone = nil, nil, nil
	s.conn, s.demux = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if w != nil {
		w.Stop()
		w.SetSource(nil)
	}
	// Closing the connection unblocks a read in progress.
	if conn != nil {
		conn.Close()
	}
	if fetchDone != nil {
		s.join("fetch", fetchDone)
	}
	if w != nil {
		s.join("worker", w.Done())
		stats := w.Stats()
		attrs := []any{
			"session", s.id,
			"painted", stats.Painted,
			"frame_errors", stats.FrameErrors,
			"decode_errors", stats.DecodeErrors,
		}
		if demux != nil {
			ds := demux.Stats()
			attrs = append(attrs,
				"fallback", ds.Fallback,
				"resyncs", ds.Resyncs,
				"bytes", ds.Bytes,
			)
		}
		slog.Info("stream: session stopped", attrs...)
	}
}

// IsStreaming reports whether the session has been started and not stopped.
func (s *Session) IsStreaming() bool {
	return s.streaming.Load()
}

// ClearDisplay blanks the display.
func (s *Session) ClearDisplay() {
	s.mu.Lock()
	w := s.worker
	s.mu.Unlock()
	if w != nil {
		w.ClearDisplay()
		return
	}
	s.sink.Clear()
}

// Stats returns the current worker's counters.
func (s *Session) Stats() (WorkerStats, mjpeg.Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ws WorkerStats
	var ds mjpeg.Stats
	if s.worker != nil {
		ws = s.worker.Stats()
	}
	if s.demux != nil {
		ds = s.demux.Stats()
	}
	return ws, ds
}

// join waits for done, logging periodically until it closes.
func (s *Session) join(what string, done <-chan struct{}) {
	t := time.NewTicker(s.cfg.JoinInterval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			slog.Warn("stream: still waiting for exit", "session", s.id, "task", what)
		}
	}
}

// handle closes the underlying connection exactly once.
type handle struct {
	rc   io.ReadCloser
	once sync.Once
	err  error
}

func (h *handle) Read(p []byte) (int, error) {
	return h.rc.Read(p)
}

func (h *handle) Close() error {
	h.once.Do(func() {
		h.err = h.rc.Close()
	})
	return h.err
}
