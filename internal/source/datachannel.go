package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/junsooki/camview/internal/peer"
	"github.com/junsooki/camview/internal/signaling"
	"github.com/junsooki/camview/internal/transport"
)

// ErrNoRelay is returned when no relay is given and none is online.
var ErrNoRelay = errors.New("source: no relay online")

// DataChannel receives the stream from a relay over a WebRTC data channel,
// negotiated through the signaling server.
type DataChannel struct {
	SignalingURL string
	ViewerID     string
	RelayID      string // empty picks the first online relay
}

// Open registers with the signaling server, offers a connection to the
// relay and returns the channel's byte stream. The stream is readable at
// once; bytes arrive when the channel opens. Closing it tears down the
// peer connection and the signaling client.
func (s DataChannel) Open(ctx context.Context) (io.ReadCloser, error) {
	var (
		mu     sync.Mutex
		viewer *peer.Viewer
		target = s.RelayID
	)
	current := func() *peer.Viewer {
		mu.Lock()
		defer mu.Unlock()
		return viewer
	}

	registered := make(chan struct{})
	relays := make(chan []signaling.RelayInfo, 1)
	var once sync.Once
	sig := signaling.NewClient(s.SignalingURL, s.ViewerID, signaling.ClientTypeViewer, signaling.Handler{
		OnRegistered: func() {
			once.Do(func() { close(registered) })
		},
		OnAnswer: func(from string, payload json.RawMessage) {
			if v := current(); v != nil {
				if err := v.HandleAnswer(payload); err != nil {
					slog.Warn("source: handle answer", "relay", from, "error", err)
				}
			}
		},
		OnICECandidate: func(from string, payload json.RawMessage) {
			if v := current(); v != nil {
				if err := v.HandleICECandidate(payload); err != nil {
					slog.Warn("source: handle ICE candidate", "relay", from, "error", err)
				}
			}
		},
		OnRelaysUpdated: func(list []signaling.RelayInfo) {
			select {
			case relays <- list:
			default:
			}
		},
		OnRelayDisconnected: func(relayID string) {
			mu.Lock()
			ours := relayID == target
			mu.Unlock()
			if ours {
				slog.Info("source: relay disconnected", "relay", relayID)
			}
		},
		OnError: func(msg string) {
			slog.Warn("source: signaling error", "message", msg)
		},
	})

	if err := sig.Connect(ctx); err != nil {
		return nil, err
	}

	select {
	case <-registered:
	case <-sig.Done():
		return nil, errors.New("source: signaling closed before registration")
	case <-ctx.Done():
		sig.Close()
		return nil, ctx.Err()
	}

	relayID := s.RelayID
	if relayID == "" {
		id, err := discoverRelay(ctx, sig, relays)
		if err != nil {
			sig.Close()
			return nil, err
		}
		relayID = id
	}

	v, err := peer.NewViewer(sig, relayID)
	if err != nil {
		sig.Close()
		return nil, fmt.Errorf("source: create viewer peer: %w", err)
	}
	// The reader must be wired before any message can arrive.
	stream := transport.NewStreamReader(v.Transport())
	mu.Lock()
	viewer, target = v, relayID
	mu.Unlock()

	if err := v.Connect(); err != nil {
		stream.Close()
		v.Close()
		sig.Close()
		return nil, fmt.Errorf("source: offer to relay %s: %w", relayID, err)
	}
	slog.Info("source: offered stream", "relay", relayID, "viewer", s.ViewerID)

	return closeOnCancel(ctx, &peerStream{
		ReadCloser: stream,
		viewer:     v,
		sig:        sig,
	}), nil
}

// discoverRelay asks the server for its relays and returns the first one
// online.
func discoverRelay(ctx context.Context, sig *signaling.Client, relays <-chan []signaling.RelayInfo) (string, error) {
	if err := sig.RequestRelayList(); err != nil {
		return "", fmt.Errorf("source: request relay list: %w", err)
	}
	select {
	case list := <-relays:
		id, ok := firstOnline(list)
		if !ok {
			return "", ErrNoRelay
		}
		slog.Info("source: selected relay", "relay", id, "listed", len(list))
		return id, nil
	case <-sig.Done():
		return "", errors.New("source: signaling closed before relay list")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func firstOnline(list []signaling.RelayInfo) (string, bool) {
	for _, r := range list {
		if r.Online && r.ID != "" {
			return r.ID, true
		}
	}
	return "", false
}

type peerStream struct {
	io.ReadCloser
	viewer *peer.Viewer
	sig    *signaling.Client
}

func (p *peerStream) Close() error {
	err := p.ReadCloser.Close()
	p.viewer.Close()
	p.sig.Close()
	return err
}
