// Package config parses command-line configuration for the binaries.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/junsooki/camview/internal/mjpeg"
	"github.com/junsooki/camview/internal/stream"
)

// Source kinds accepted by -source.
const (
	SourceHTTP      = "http"
	SourceWebSocket = "ws"
	SourceWebRTC    = "webrtc"
	SourcePattern   = "pattern"
)

// ViewerConfig holds configuration for the viewer binary.
type ViewerConfig struct {
	Source string
	URL    string

	SignalingURL string
	ViewerID     string
	RelayID      string

	FrameDelay    time.Duration
	IdleDelay     time.Duration
	MaxFrameSize  int
	MaxHeaderSize int

	MaxWidth  int
	MaxHeight int
	Overlay   bool

	Headless bool
	Out      string

	LogLevel slog.Level
}

// Stream returns the session configuration.
func (c *ViewerConfig) Stream() stream.Config {
	return stream.Config{
		Worker: stream.WorkerConfig{
			FrameDelay: c.FrameDelay,
			IdleDelay:  c.IdleDelay,
		},
		MaxFrameSize:  c.MaxFrameSize,
		MaxHeaderSize: c.MaxHeaderSize,
	}
}

// ParseViewerFlags parses flags for the viewer binary.
func ParseViewerFlags(args []string) (*ViewerConfig, error) {
	cfg := &ViewerConfig{}
	fs := flag.NewFlagSet("viewer", flag.ContinueOnError)
	fs.StringVar(&cfg.Source, "source", SourceHTTP, "Stream source: http, ws, webrtc or pattern")
	fs.StringVar(&cfg.URL, "url", "", "MJPEG stream URL (http and ws sources)")
	fs.StringVar(&cfg.SignalingURL, "signaling", "ws://localhost:8080", "Signaling server WebSocket URL")
	fs.StringVar(&cfg.ViewerID, "id", "", "Viewer ID (auto-generated if empty)")
	fs.StringVar(&cfg.RelayID, "relay", "", "Relay ID to connect to (webrtc source; empty picks the first online relay)")
	fs.DurationVar(&cfg.FrameDelay, "delay", stream.DefaultFrameDelay, "Pause between painted frames")
	fs.DurationVar(&cfg.IdleDelay, "idle", stream.DefaultIdleDelay, "Poll interval while no source is attached")
	fs.IntVar(&cfg.MaxFrameSize, "max-frame", mjpeg.DefaultMaxFrameSize, "Largest JPEG frame in bytes")
	fs.IntVar(&cfg.MaxHeaderSize, "max-header", mjpeg.DefaultMaxHeaderSize, "Largest frame header in bytes")
	fs.IntVar(&cfg.MaxWidth, "max-width", 0, "Downscale frames wider than this (0 = off)")
	fs.IntVar(&cfg.MaxHeight, "max-height", 0, "Downscale frames taller than this (0 = off)")
	fs.BoolVar(&cfg.Overlay, "overlay", false, "Draw the paint rate on each frame")
	fs.BoolVar(&cfg.Headless, "headless", false, "Write frames to -out instead of opening a window")
	fs.StringVar(&cfg.Out, "out", "frame.jpg", "Output file for -headless")
	level := fs.String("log-level", "info", "Log level: debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var err error
	if cfg.LogLevel, err = parseLevel(*level); err != nil {
		return nil, err
	}
	switch cfg.Source {
	case SourceHTTP, SourceWebSocket:
		if cfg.URL == "" {
			return nil, fmt.Errorf("config: -url is required for the %s source", cfg.Source)
		}
	case SourceWebRTC, SourcePattern:
	default:
		return nil, fmt.Errorf("config: unknown source %q", cfg.Source)
	}
	if cfg.MaxFrameSize <= 0 || cfg.MaxHeaderSize <= 0 {
		return nil, errors.New("config: frame and header limits must be positive")
	}
	if cfg.ViewerID == "" {
		cfg.ViewerID = "viewer-" + shortID()
	}
	return cfg, nil
}

// RelayConfig holds configuration for the relay binary.
type RelayConfig struct {
	SignalingURL string
	RelayID      string
	CameraURL    string
	LogLevel     slog.Level
}

// ParseRelayFlags parses flags for the relay binary.
func ParseRelayFlags(args []string) (*RelayConfig, error) {
	cfg := &RelayConfig{}
	fs := flag.NewFlagSet("relay", flag.ContinueOnError)
	fs.StringVar(&cfg.SignalingURL, "signaling", "ws://localhost:8080", "Signaling server WebSocket URL")
	fs.StringVar(&cfg.RelayID, "id", "", "Relay ID (auto-generated if empty)")
	fs.StringVar(&cfg.CameraURL, "url", "", "Camera MJPEG URL (empty streams a test pattern)")
	level := fs.String("log-level", "info", "Log level: debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var err error
	if cfg.LogLevel, err = parseLevel(*level); err != nil {
		return nil, err
	}
	if cfg.RelayID == "" {
		cfg.RelayID = "relay-" + shortID()
	}
	return cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("config: invalid log level %q", s)
	}
	return l, nil
}

func shortID() string {
	return uuid.NewString()[:8]
}
