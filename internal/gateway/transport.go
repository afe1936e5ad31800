package gateway

import (
	"time"

	"github.com/gorilla/websocket"
)

// Transport is the framed duplex connection the state machine runs over.
// Read is called from the connection's read loop only; Write from its
// writer goroutine only. Close unblocks a pending Read.
type Transport interface {
	Read() ([]byte, error)
	Write(data []byte) error
	Close(code CloseCode, reason string) error
}

const closeWriteTimeout = 5 * time.Second

type wsTransport struct {
	conn *websocket.Conn
}

// NewWebsocketTransport wraps a gorilla connection. readLimit bounds the
// size of a single inbound frame.
func NewWebsocketTransport(conn *websocket.Conn, readLimit int64) Transport {
	if readLimit > 0 {
		conn.SetReadLimit(readLimit)
	}
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Read() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) Write(data []byte) error {
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close(code CloseCode, reason string) error {
	deadline := time.Now().Add(closeWriteTimeout)
	msg := websocket.FormatCloseMessage(int(code), reason)
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	return t.conn.Close()
}
