package peer

import (
	"encoding/json"
	"log/slog"

	"github.com/pion/webrtc/v4"
)

// ICEServers is the default ICE server configuration.
var ICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"}},
}

// Signaler relays session descriptions and candidates to the remote peer.
// *signaling.Client implements it.
type Signaler interface {
	SendOffer(target string, payload json.RawMessage) error
	SendAnswer(target string, payload json.RawMessage) error
	SendICECandidate(target string, payload json.RawMessage) error
}

// NewPeerConnection creates a configured PeerConnection.
func NewPeerConnection() (*webrtc.PeerConnection, error) {
	cfg := webrtc.Configuration{
		ICEServers: ICEServers,
	}
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		slog.Info("peer: connection state changed", "state", state.String())
	})
	return pc, nil
}

// trickle sends local ICE candidates to whoever target returns.
func trickle(pc *webrtc.PeerConnection, sig Signaler, target func() string) {
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		to := target()
		if to == "" {
			return
		}
		sendCandidate(sig, to, c.ToJSON())
	})
}

func sendCandidate(sig Signaler, to string, c webrtc.ICECandidateInit) {
	data, err := json.Marshal(c)
	if err != nil {
		slog.Warn("peer: marshal ICE candidate", "error", err)
		return
	}
	if err := sig.SendICECandidate(to, data); err != nil {
		slog.Warn("peer: send ICE candidate", "target", to, "error", err)
	}
}

func addCandidate(pc *webrtc.PeerConnection, payload json.RawMessage) error {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &candidate); err != nil {
		return err
	}
	return pc.AddICECandidate(candidate)
}
