package websocket

import (
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"racetrack/pkg/interfaces"
)

// Inbox receives everything a connection reads. The hub implements it.
type Inbox interface {
	Submit(conn interfaces.Connection, data []byte) error
	Disconnect(conn interfaces.Connection) error
}

// Handler upgrades HTTP requests and pumps frames into an Inbox.
type Handler struct {
	registry *Registry
	inbox    Inbox
	opts     Options
	upgrader websocket.Upgrader
}

// NewHandler creates a handler. An empty allowedOrigins accepts any origin.
func NewHandler(registry *Registry, inbox Inbox, opts Options, allowedOrigins []string) *Handler {
	return &Handler{
		registry: registry,
		inbox:    inbox,
		opts:     opts,
		upgrader: websocket.Upgrader{
			CheckOrigin:      originChecker(allowedOrigins),
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

// ServeHTTP upgrades the request and starts the read pump.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	conn := NewConnection(ws, h.opts)
	if err := h.registry.Register(conn); err != nil {
		log.Error().Err(err).Str("connection_id", conn.ID()).Msg("connection registration failed")
		_ = conn.Close()
		return
	}

	log.Info().
		Str("connection_id", conn.ID()).
		Str("remote", r.RemoteAddr).
		Int("connections", h.registry.Len()).
		Msg("client connected")

	go h.readPump(conn)
}

// readPump forwards text frames until the socket fails, then closes the
// connection and reports the disconnect.
func (h *Handler) readPump(conn *Connection) {
	defer func() {
		h.registry.Unregister(conn)
		_ = conn.Close()
		if err := h.inbox.Disconnect(conn); err != nil {
			log.Debug().Err(err).Str("connection_id", conn.ID()).Msg("disconnect not queued")
		}
		log.Info().
			Str("connection_id", conn.ID()).
			Int("connections", h.registry.Len()).
			Msg("client disconnected")
	}()

	if h.opts.MaxMessageSize > 0 {
		conn.conn.SetReadLimit(h.opts.MaxMessageSize)
	}
	extend := func() error {
		if h.opts.ReadTimeout <= 0 {
			return nil
		}
		return conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	}
	if err := extend(); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error { return extend() })

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Debug().Err(err).Str("connection_id", conn.ID()).Msg("websocket read error")
			}
			return
		}
		if err := extend(); err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		if err := h.inbox.Submit(conn, data); err != nil {
			log.Warn().Err(err).Str("connection_id", conn.ID()).Msg("frame dropped")
		}
	}
}
