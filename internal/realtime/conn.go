package realtime

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the slice of *websocket.Conn the manager needs. Tests substitute
// an in-memory implementation.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Dialer opens the realtime transport. The production dialer wraps
// gorilla's; tests inject scripted connections and failures.
type Dialer func(url string, header http.Header) (Conn, error)

func DefaultDialer(timeout time.Duration) Dialer {
	return func(url string, header http.Header) (Conn, error) {
		d := websocket.Dialer{HandshakeTimeout: timeout}
		conn, resp, err := d.Dial(url, header)
		if err != nil {
			if resp != nil {
				resp.Body.Close()
			}
			return nil, err
		}
		return conn, nil
	}
}
