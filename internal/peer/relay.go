package peer

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/junsooki/camview/internal/transport"
)

// Relay is the publishing side: it answers a viewer's offer and hands the
// viewer's stream channel to OnStream once it opens.
type Relay struct {
	pc  *webrtc.PeerConnection
	sig Signaler

	mu       sync.Mutex
	viewerID string
	onStream func(t *transport.DataChannelTransport)
}

// NewRelay creates a Relay peer.
func NewRelay(sig Signaler) (*Relay, error) {
	pc, err := NewPeerConnection()
	if err != nil {
		return nil, err
	}

	r := &Relay{pc: pc, sig: sig}

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != transport.Label {
			slog.Warn("peer: ignoring unexpected data channel", "label", dc.Label())
			return
		}
		t := transport.NewDataChannelTransport(dc)
		dc.OnOpen(func() {
			slog.Info("peer: stream data channel open", "viewer", r.peer())
			r.mu.Lock()
			cb := r.onStream
			r.mu.Unlock()
			if cb != nil {
				cb(t)
			}
		})
	})

	trickle(pc, sig, r.peer)
	return r, nil
}

// OnStream registers the callback run when the viewer's channel opens.
func (r *Relay) OnStream(cb func(t *transport.DataChannelTransport)) {
	r.mu.Lock()
	r.onStream = cb
	r.mu.Unlock()
}

func (r *Relay) peer() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewerID
}

// HandleOffer processes an incoming offer from a viewer.
func (r *Relay) HandleOffer(from string, payload json.RawMessage) error {
	r.mu.Lock()
	r.viewerID = from
	r.mu.Unlock()

	var offer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &offer); err != nil {
		return err
	}

	if err := r.pc.SetRemoteDescription(offer); err != nil {
		return err
	}

	answer, err := r.pc.CreateAnswer(nil)
	if err != nil {
		return err
	}

	if err := r.pc.SetLocalDescription(answer); err != nil {
		return err
	}

	answerJSON, err := json.Marshal(answer)
	if err != nil {
		return err
	}

	return r.sig.SendAnswer(from, answerJSON)
}

// HandleICECandidate adds a remote ICE candidate.
func (r *Relay) HandleICECandidate(payload json.RawMessage) error {
	return addCandidate(r.pc, payload)
}

// Close shuts down the peer connection.
func (r *Relay) Close() error {
	return r.pc.Close()
}
