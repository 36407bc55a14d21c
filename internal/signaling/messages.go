package signaling

import "encoding/json"

// Message types for signaling protocol.
const (
	TypeRegister          = "register"
	TypeRegistered        = "registered"
	TypeListRelays        = "list-hosts"
	TypeRelays            = "hosts"
	TypeRelaysUpdated     = "hosts-updated"
	TypeOffer             = "offer"
	TypeAnswer            = "answer"
	TypeICECandidate      = "ice-candidate"
	TypePing              = "ping"
	TypePong              = "pong"
	TypeError             = "error"
	TypeRelayDisconnected = "host-disconnected"
)

// ClientType distinguishes a relay publishing a camera from a viewer.
// The wire values are shared with the signaling server's host/controller
// roles.
const (
	ClientTypeRelay  = "host"
	ClientTypeViewer = "controller"
)

// Message is the envelope for all signaling messages.
type Message struct {
	Type       string          `json:"type"`
	ID         string          `json:"id,omitempty"`
	ClientType string          `json:"clientType,omitempty"`
	From       string          `json:"from,omitempty"`
	Target     string          `json:"target,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	List       []RelayInfo     `json:"list,omitempty"`
	RelayID    string          `json:"hostId,omitempty"`
	Msg        string          `json:"message,omitempty"`
	Timestamp  int64           `json:"timestamp,omitempty"`
}

// RelayInfo describes a relay in the relay list.
type RelayInfo struct {
	ID     string `json:"id"`
	Online bool   `json:"online"`
}
