package integration

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"racetrack/internal/api"
	"racetrack/internal/course"
	"racetrack/internal/dispatch"
	"racetrack/internal/hub"
	"racetrack/internal/race"
	"racetrack/internal/websocket"
)

const waitTimeout = 3 * time.Second

type stack struct {
	server      *httptest.Server
	races       *race.Registry
	connections *websocket.Registry
}

// startStack runs the full server in-process with a fast countdown.
func startStack(t *testing.T) *stack {
	t.Helper()

	races := race.NewRegistry(race.Options{
		Generator:     course.NewHedges(2000, 200),
		Clock:         clockwork.NewRealClock(),
		SpectatorID:   race.DefaultSpectatorID,
		CountdownFrom: 3,
		CountdownStep: 10 * time.Millisecond,
	})
	dispatcher := dispatch.NewDispatcher(races, nil)
	messageHub := hub.NewHub(dispatcher, 0)
	require.NoError(t, messageHub.Start(context.Background()))

	connections := websocket.NewRegistry()
	wsHandler := websocket.NewHandler(connections, messageHub, websocket.DefaultOptions(), nil)
	server := httptest.NewServer(api.NewServer(races, connections, wsHandler, api.Options{}))

	t.Cleanup(func() {
		connections.CloseAll()
		server.Close()
		_ = messageHub.Stop()
		races.Shutdown()
	})
	return &stack{server: server, races: races, connections: connections}
}

type client struct {
	t      *testing.T
	conn   *gorilla.Conn
	frames chan map[string]any
}

func (s *stack) dial(t *testing.T, path string) *client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + path
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	c := &client{t: t, conn: conn, frames: make(chan map[string]any, 256)}
	go c.readLoop()
	t.Cleanup(func() { _ = conn.Close() })
	return c
}

func (c *client) readLoop() {
	defer close(c.frames)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame map[string]any
		if json.Unmarshal(data, &frame) == nil {
			c.frames <- frame
		}
	}
}

func (c *client) send(frame map[string]any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(frame))
}

// expect skips frames until one of the given type arrives.
func (c *client) expect(typ string) map[string]any {
	c.t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case frame, ok := <-c.frames:
			require.True(c.t, ok, "connection closed waiting for %s", typ)
			if frame["type"] == typ {
				return frame
			}
		case <-deadline:
			c.t.Fatalf("timed out waiting for %s", typ)
			return nil
		}
	}
}

// expectNone asserts no frame of the given type arrives within window.
func (c *client) expectNone(typ string, window time.Duration) {
	c.t.Helper()
	deadline := time.After(window)
	for {
		select {
		case frame, ok := <-c.frames:
			if !ok {
				return
			}
			require.NotEqual(c.t, typ, frame["type"], "unexpected %s", typ)
		case <-deadline:
			return
		}
	}
}

func (c *client) join(code, id string) map[string]any {
	c.t.Helper()
	c.send(map[string]any{"type": "join-room", "roomCode": code, "playerId": id, "horse": map[string]any{"name": id}})
	return c.expect("room-joined")
}
