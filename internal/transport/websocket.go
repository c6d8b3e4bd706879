// ABOUTME: Gorilla websocket adapter implementing the Wire and Dialer interfaces
// ABOUTME: Text frames carry JSON envelopes

package transport

import (
	"context"

	"github.com/gorilla/websocket"
)

// websocketDialer is the production Dialer backed by gorilla/websocket.
type websocketDialer struct{}

func (d *websocketDialer) Dial(ctx context.Context, url string) (Wire, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &websocketWire{conn: conn}, nil
}

// websocketWire adapts a *websocket.Conn to the Wire interface.
type websocketWire struct {
	conn *websocket.Conn
}

func (w *websocketWire) ReadMessage() ([]byte, error) {
	_, data, err := w.conn.ReadMessage()
	return data, err
}

func (w *websocketWire) WriteMessage(data []byte) error {
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *websocketWire) Close() error {
	return w.conn.Close()
}
