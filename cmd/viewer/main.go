package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/junsooki/camview/internal/config"
	"github.com/junsooki/camview/internal/decoder"
	"github.com/junsooki/camview/internal/display"
	"github.com/junsooki/camview/internal/encoder"
	"github.com/junsooki/camview/internal/render"
	"github.com/junsooki/camview/internal/source"
	"github.com/junsooki/camview/internal/stream"
)

const rateInterval = 10 * time.Second

func main() {
	cfg, err := config.ParseViewerFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	slog.Info("camview viewer starting",
		"id", cfg.ViewerID,
		"source", cfg.Source,
		"url", cfg.URL,
		"relay", cfg.RelayID,
		"delay", cfg.FrameDelay,
	)

	var decOpts []decoder.Option
	if cfg.MaxWidth > 0 || cfg.MaxHeight > 0 {
		decOpts = append(decOpts, decoder.WithMaxSize(cfg.MaxWidth, cfg.MaxHeight))
	}
	dec := decoder.NewJPEGDecoder(decOpts...)

	var sinkOpts []render.SinkOption
	if cfg.Overlay {
		sinkOpts = append(sinkOpts, render.WithOverlay())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opener := openerFor(cfg)

	if cfg.Headless {
		surface := render.NewFileSurface(cfg.Out, encoder.NewJPEGEncoder(85))
		sink := render.NewSink(dec, surface, sinkOpts...)
		session := stream.NewSession(sink, cfg.Stream())
		if err := session.Start(ctx, opener); err != nil {
			slog.Error("start session", "error", err)
			os.Exit(1)
		}
		slog.Info("writing frames", "session", session.ID(), "out", cfg.Out)
		go reportRate(ctx, sink)
		<-ctx.Done()
		slog.Info("shutting down")
		session.Stop()
		return
	}

	var session *stream.Session
	disp := display.NewEbitenDisplay("camview "+cfg.ViewerID, display.Controls{
		ToggleStreaming: func() {
			// Stop joins the worker; keep it off the draw loop.
			go toggle(ctx, session, opener)
		},
		ClearDisplay: func() {
			go session.ClearDisplay()
		},
	})
	sink := render.NewSink(dec, disp, sinkOpts...)
	session = stream.NewSession(sink, cfg.Stream())

	if err := session.Start(ctx, opener); err != nil {
		slog.Error("start session", "error", err)
		os.Exit(1)
	}
	slog.Info("session started", "session", session.ID())
	go reportRate(ctx, sink)
	go func() {
		<-ctx.Done()
		disp.Close()
	}()

	// Ebitengine RunGame must be on the main goroutine (macOS requirement).
	if err := disp.Run(); err != nil {
		slog.Error("display", "error", err)
	}
	slog.Info("shutting down")
	session.Stop()
}

func openerFor(cfg *config.ViewerConfig) stream.Opener {
	switch cfg.Source {
	case config.SourceWebSocket:
		return source.WebSocket{URL: cfg.URL}
	case config.SourceWebRTC:
		return source.DataChannel{
			SignalingURL: cfg.SignalingURL,
			ViewerID:     cfg.ViewerID,
			RelayID:      cfg.RelayID,
		}
	case config.SourcePattern:
		return source.Pattern{Width: 640, Height: 480, Interval: cfg.FrameDelay / 2}
	default:
		return source.HTTP{URL: cfg.URL}
	}
}

// reportRate logs the paint rate until ctx is done.
func reportRate(ctx context.Context, sink *render.Sink) {
	t := time.NewTicker(rateInterval)
	defer t.Stop()
	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			frames := sink.Frames()
			if frames != last {
				slog.Info("paint rate", "fps", sink.FPS(), "frames", frames)
				last = frames
			}
		}
	}
}

func toggle(ctx context.Context, s *stream.Session, opener stream.Opener) {
	if s.IsStreaming() {
		s.Stop()
		return
	}
	if err := s.Start(ctx, opener); err != nil {
		slog.Warn("restart session", "error", err)
	}
}
