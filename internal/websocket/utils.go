package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// writeWait bounds a single frame write.
const writeWait = 10 * time.Second

// WriteTyped sends a strongly-typed message over the WebSocket.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteError sends a typed ErrorMessage over the WebSocket.
func WriteError(conn *websocket.Conn, errMsg string) error {
	return WriteTyped(conn, ErrorMessage{
		Event: EventError,
		Error: errMsg,
	})
}

// WritePing sends a protocol ping. Browsers answer it with a pong, which
// DrainReads turns into a fresh read deadline.
func WritePing(conn *websocket.Conn) error {
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// DrainReads discards client frames until the peer goes away, so that close
// and pong control frames are processed. The returned channel is closed when
// reading stops.
func DrainReads(conn *websocket.Conn, idle time.Duration) <-chan struct{} {
	done := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(idle))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(idle))
	})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
			conn.SetReadDeadline(time.Now().Add(idle))
		}
	}()
	return done
}
