package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dialPair upgrades one connection through an httptest server and hands the
// server side to serve.
func dialPair(t *testing.T, serve func(conn *websocket.Conn)) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn)
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestWritePing_SendsOneControlFrame(t *testing.T) {
	served := make(chan error, 1)
	client := dialPair(t, func(conn *websocket.Conn) {
		served <- WritePing(conn)
		_ = WriteError(conn, "bye")
		time.Sleep(50 * time.Millisecond)
	})

	pings := make(chan struct{}, 4)
	client.SetPingHandler(func(string) error {
		pings <- struct{}{}
		return nil
	})

	// The ping is handled while reading the next data frame.
	var msg ErrorMessage
	require.NoError(t, client.ReadJSON(&msg))
	assert.Equal(t, EventError, msg.Event)
	assert.Equal(t, "bye", msg.Error)

	require.NoError(t, <-served)
	assert.Len(t, pings, 1)
}

func TestDrainReads_PongExtendsDeadline(t *testing.T) {
	alive := make(chan bool, 1)
	client := dialPair(t, func(conn *websocket.Conn) {
		closed := DrainReads(conn, 150*time.Millisecond)
		// Four pings 100ms apart outlive the idle timeout only if every
		// pong pushes the read deadline forward.
		for i := 0; i < 4; i++ {
			if err := WritePing(conn); err != nil {
				alive <- false
				return
			}
			select {
			case <-closed:
				alive <- false
				return
			case <-time.After(100 * time.Millisecond):
			}
		}
		alive <- true
	})

	// Reading lets the default ping handler answer with pongs.
	go func() {
		for {
			if _, _, err := client.NextReader(); err != nil {
				return
			}
		}
	}()

	select {
	case ok := <-alive:
		assert.True(t, ok, "read deadline lapsed despite pongs")
	case <-time.After(2 * time.Second):
		t.Fatal("server loop did not finish")
	}
}

func TestDrainReads_ClosesWhenPeerLeaves(t *testing.T) {
	closed := make(chan (<-chan struct{}), 1)
	release := make(chan struct{})
	client := dialPair(t, func(conn *websocket.Conn) {
		closed <- DrainReads(conn, time.Minute)
		<-release
	})
	defer close(release)

	drained := <-closed
	require.NoError(t, client.Close())

	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("DrainReads did not stop after the peer closed")
	}
}
