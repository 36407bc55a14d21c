package transport

// StreamSender sends raw stream bytes to the remote peer.
type StreamSender interface {
	Send(data []byte) error
}

// StreamReceiver delivers raw stream bytes from the remote peer.
type StreamReceiver interface {
	OnData(callback func(data []byte))
	OnClose(callback func())
}
