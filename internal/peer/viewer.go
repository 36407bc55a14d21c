package peer

import (
	"encoding/json"
	"log/slog"

	"github.com/pion/webrtc/v4"

	"github.com/junsooki/camview/internal/transport"
)

// Viewer is the receiving side: it offers a connection to a relay and reads
// the MJPEG stream from the data channel it creates.
type Viewer struct {
	pc        *webrtc.PeerConnection
	sig       Signaler
	transport *transport.DataChannelTransport
	relayID   string
}

// NewViewer creates the peer connection and the stream data channel.
func NewViewer(sig Signaler, relayID string) (*Viewer, error) {
	pc, err := NewPeerConnection()
	if err != nil {
		return nil, err
	}

	// The offerer creates the channel so the offer carries an SCTP section.
	dc, err := pc.CreateDataChannel(transport.Label, transport.ChannelInit())
	if err != nil {
		pc.Close()
		return nil, err
	}
	dc.OnOpen(func() {
		slog.Info("peer: stream data channel open", "relay", relayID)
	})

	v := &Viewer{
		pc:        pc,
		sig:       sig,
		transport: transport.NewDataChannelTransport(dc),
		relayID:   relayID,
	}
	trickle(pc, sig, func() string { return relayID })
	return v, nil
}

// Transport returns the stream transport.
func (v *Viewer) Transport() *transport.DataChannelTransport {
	return v.transport
}

// Connect initiates the WebRTC connection by creating and sending an offer.
func (v *Viewer) Connect() error {
	offer, err := v.pc.CreateOffer(nil)
	if err != nil {
		return err
	}

	if err := v.pc.SetLocalDescription(offer); err != nil {
		return err
	}

	offerJSON, err := json.Marshal(offer)
	if err != nil {
		return err
	}

	return v.sig.SendOffer(v.relayID, offerJSON)
}

// HandleAnswer processes an incoming SDP answer.
func (v *Viewer) HandleAnswer(payload json.RawMessage) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &answer); err != nil {
		return err
	}
	return v.pc.SetRemoteDescription(answer)
}

// HandleICECandidate adds a remote ICE candidate.
func (v *Viewer) HandleICECandidate(payload json.RawMessage) error {
	return addCandidate(v.pc, payload)
}

// Close shuts down the peer connection.
func (v *Viewer) Close() error {
	return v.pc.Close()
}
