package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/junsooki/camview/internal/config"
	"github.com/junsooki/camview/internal/peer"
	"github.com/junsooki/camview/internal/signaling"
	"github.com/junsooki/camview/internal/source"
	"github.com/junsooki/camview/internal/stream"
	"github.com/junsooki/camview/internal/transport"
)

func main() {
	cfg, err := config.ParseRelayFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	slog.Info("camview relay starting",
		"id", cfg.RelayID,
		"signaling", cfg.SignalingURL,
		"camera", cfg.CameraURL,
	)

	var camera stream.Opener = source.HTTP{URL: cfg.CameraURL}
	if cfg.CameraURL == "" {
		camera = source.Pattern{Width: 640, Height: 480, Interval: stream.DefaultFrameDelay / 2}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	r := &relay{ctx: gctx, group: g, camera: camera}

	sig := signaling.NewClient(cfg.SignalingURL, cfg.RelayID, signaling.ClientTypeRelay, signaling.Handler{
		OnRegistered: func() {
			slog.Info("registered with signaling server")
		},
		OnOffer: r.handleOffer,
		OnICECandidate: func(from string, payload json.RawMessage) {
			if p := r.current(); p != nil {
				if err := p.HandleICECandidate(payload); err != nil {
					slog.Warn("handle ICE candidate", "viewer", from, "error", err)
				}
			}
		},
		OnError: func(msg string) {
			slog.Warn("signaling error", "message", msg)
		},
	})
	r.sig = sig

	if err := sig.Connect(ctx); err != nil {
		slog.Error("signaling connect", "error", err)
		os.Exit(1)
	}
	defer sig.Close()

	slog.Info("relay ready, share this ID with viewers", "id", cfg.RelayID)

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-sig.Done():
			return errors.New("signaling connection lost")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("relay stopped", "error", err)
	}
	slog.Info("shutting down")
	r.close()
}

// relay serves one viewer at a time; a new offer replaces the current peer.
type relay struct {
	ctx    context.Context
	group  *errgroup.Group
	camera stream.Opener
	sig    *signaling.Client

	mu     sync.Mutex
	peer   *peer.Relay
	cancel context.CancelFunc
}

func (r *relay) current() *peer.Relay {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peer
}

func (r *relay) handleOffer(from string, payload json.RawMessage) {
	slog.Info("received offer", "viewer", from)

	p, err := peer.NewRelay(r.sig)
	if err != nil {
		slog.Error("create relay peer", "error", err)
		return
	}
	ctx, cancel := context.WithCancel(r.ctx)

	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
		r.peer.Close()
	}
	r.peer, r.cancel = p, cancel
	r.mu.Unlock()

	p.OnStream(func(t *transport.DataChannelTransport) {
		r.group.Go(func() error {
			forward(ctx, r.camera, t, from)
			return nil
		})
	})

	if err := p.HandleOffer(from, payload); err != nil {
		slog.Warn("handle offer", "viewer", from, "error", err)
	}
}

func (r *relay) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.peer.Close()
		r.peer, r.cancel = nil, nil
	}
}

// forward copies the camera stream onto the data channel until either side
// closes. Faults end this viewer's stream only.
func forward(ctx context.Context, camera stream.Opener, t *transport.DataChannelTransport, viewer string) {
	rc, err := camera.Open(ctx)
	if err != nil {
		slog.Warn("open camera", "error", err)
		t.Close()
		return
	}
	defer rc.Close()

	go func() {
		select {
		case <-t.Closed():
		case <-ctx.Done():
			t.Close()
		}
		rc.Close()
	}()

	n, err := io.CopyBuffer(t, rc, make([]byte, transport.ChunkSize))
	if err != nil && ctx.Err() == nil && !errors.Is(err, transport.ErrClosed) {
		slog.Warn("forward stream", "viewer", viewer, "bytes", n, "error", err)
	}
	slog.Info("viewer stream ended", "viewer", viewer, "bytes", n)
	t.Close()
}
