package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/gorilla/websocket"
)

// WebSocket reads the stream from the binary messages of a WebSocket
// connection. Message boundaries carry no meaning; text messages are
// ignored.
type WebSocket struct {
	URL    string
	Dialer *websocket.Dialer // nil means websocket.DefaultDialer
}

func (s WebSocket) Open(ctx context.Context) (io.ReadCloser, error) {
	dialer := s.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("source: dial %s: %w", s.URL, err)
	}
	slog.Info("source: websocket stream open", "url", s.URL)
	return closeOnCancel(ctx, &wsReader{conn: conn}), nil
}

type wsReader struct {
	conn *websocket.Conn
	cur  io.Reader
}

func (r *wsReader) Read(p []byte) (int, error) {
	for {
		if r.cur == nil {
			typ, mr, err := r.conn.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if typ != websocket.BinaryMessage {
				continue
			}
			r.cur = mr
		}
		n, err := r.cur.Read(p)
		if err == io.EOF {
			r.cur = nil
			if n == 0 {
				continue
			}
			err = nil
		}
		return n, err
	}
}

func (r *wsReader) Close() error {
	return r.conn.Close()
}
