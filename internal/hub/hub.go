// Package hub serialises every inbound frame and disconnect onto a single
// goroutine so session state is only ever touched by one caller at a time.
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"racetrack/pkg/interfaces"
)

// DefaultInboxSize is used when NewHub is given a non-positive size.
const DefaultInboxSize = 1024

// DefaultSubmitTimeout bounds how long Submit waits for room in a full inbox.
const DefaultSubmitTimeout = 2 * time.Second

// Hub feeds connection events to a MessageDispatcher from one goroutine.
//
// Frames and disconnects share one queue, so a disconnect is never applied
// ahead of frames its connection submitted earlier.
type Hub struct {
	events   chan event
	shutdown chan struct{}
	done     chan struct{}

	dispatcher    interfaces.MessageDispatcher
	submitTimeout time.Duration

	running bool
	mu      sync.RWMutex
}

type event struct {
	conn       interfaces.Connection
	data       []byte
	disconnect bool
}

// NewHub creates a stopped hub in front of dispatcher.
func NewHub(dispatcher interfaces.MessageDispatcher, inboxSize int) *Hub {
	if inboxSize <= 0 {
		inboxSize = DefaultInboxSize
	}
	return &Hub{
		events:     make(chan event, inboxSize),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		dispatcher:    dispatcher,
		submitTimeout: DefaultSubmitTimeout,
	}
}

// Start launches the processing goroutine. It stops on Stop or when ctx is
// cancelled. A hub cannot be restarted.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	select {
	case <-h.done:
		return ErrHubNotRunning
	default:
	}
	h.running = true

	log.Info().Int("inbox", cap(h.events)).Msg("hub started")
	go h.run(ctx)
	return nil
}

// Stop ends processing and waits for the goroutine to exit. Events still
// queued are discarded.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdown)
	h.mu.Unlock()

	<-h.done
	return nil
}

// Submit queues one inbound frame from conn. A full inbox makes it wait up
// to the submit timeout, which pushes back on the caller's read loop; the
// frame is dropped with ErrInboxFull only if no room frees up in time.
func (h *Hub) Submit(conn interfaces.Connection, data []byte) error {
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()
	if !running {
		return ErrHubNotRunning
	}

	ev := event{conn: conn, data: data}
	select {
	case h.events <- ev:
		return nil
	default:
	}

	timer := time.NewTimer(h.submitTimeout)
	defer timer.Stop()
	select {
	case h.events <- ev:
		return nil
	case <-h.done:
		return ErrHubNotRunning
	case <-timer.C:
		return ErrInboxFull
	}
}

// Disconnect queues the release of conn's seat. Unlike Submit it waits for
// room without a deadline, so disconnects are never dropped while the hub
// runs.
func (h *Hub) Disconnect(conn interfaces.Connection) error {
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()
	if !running {
		return ErrHubNotRunning
	}

	select {
	case h.events <- event{conn: conn, disconnect: true}:
		return nil
	case <-h.done:
		return ErrHubNotRunning
	}
}

// Pending returns the number of queued events.
func (h *Hub) Pending() int {
	return len(h.events)
}

// IsRunning reports whether the processing goroutine is live.
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	defer log.Info().Msg("hub stopped")

	for {
		select {
		case ev := <-h.events:
			h.handle(ev)
		case <-h.shutdown:
			return
		case <-ctx.Done():
			h.mu.Lock()
			h.running = false
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) handle(ev event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("connection_id", ev.conn.ID()).
				Bool("disconnect", ev.disconnect).
				Msg("event handler panicked")
		}
	}()

	if ev.disconnect {
		h.dispatcher.HandleDisconnect(ev.conn)
		return
	}
	h.dispatcher.HandleFrame(ev.conn, ev.data)
}
