// Package dispatch turns decoded client frames into race session operations.
package dispatch

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"racetrack/internal/protocol"
	"racetrack/internal/race"
	"racetrack/pkg/interfaces"
)

// Dispatcher implements interfaces.MessageDispatcher over a race.Registry.
//
// It is not safe for concurrent use; the hub calls it from one goroutine.
// Every failure is logged and swallowed so that a confused client never
// brings its connection down.
type Dispatcher struct {
	registry *race.Registry
	limiter  *RateLimiter
}

var _ interfaces.MessageDispatcher = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher. limiter may be nil.
func NewDispatcher(registry *race.Registry, limiter *RateLimiter) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		limiter:  limiter,
	}
}

// HandleFrame decodes one frame and applies it.
func (d *Dispatcher) HandleFrame(conn interfaces.Connection, data []byte) {
	logger := log.With().Str("connection_id", conn.ID()).Logger()

	if d.limiter != nil && !d.limiter.Allow(conn.ID()) {
		logger.Warn().Err(ErrRateLimitExceeded).Msg("frame dropped")
		return
	}

	msg, err := protocol.Decode(data)
	if err != nil {
		logger.Warn().Err(err).Int("bytes", len(data)).Msg("frame dropped")
		return
	}

	if err := d.apply(conn, msg, logger); err != nil {
		logger.Debug().
			Err(err).
			Str("type", msg.MessageType()).
			Str("session", msg.Room()).
			Msg("message ignored")
	}
}

// HandleDisconnect releases the seat conn holds, discarding its session
// once nobody is left in it.
func (d *Dispatcher) HandleDisconnect(conn interfaces.Connection) {
	if d.limiter != nil {
		d.limiter.Forget(conn.ID())
	}

	code, id, ok := conn.Seat()
	if !ok {
		return
	}
	log.Info().
		Str("connection_id", conn.ID()).
		Str("session", code).
		Str("participant", id).
		Msg("seat released on disconnect")
	d.leave(conn, code, id)
}

func (d *Dispatcher) apply(conn interfaces.Connection, msg protocol.Inbound, logger zerolog.Logger) error {
	if m, ok := msg.(protocol.JoinRoom); ok {
		d.join(conn, m, logger)
		return nil
	}

	s, err := d.registry.Lookup(msg.Room())
	if err != nil {
		return err
	}

	switch m := msg.(type) {
	case protocol.EnableReady:
		return s.EnableReady()
	case protocol.PlayerReady:
		return s.MarkReady(m.PlayerID)
	case protocol.UpdatePosition:
		return s.UpdateTelemetry(m.PlayerID, race.Telemetry{
			Position: race.Position{X: m.X, Z: m.Z},
			Distance: m.Distance,
			Speed:    m.Speed,
		})
	case protocol.PlayerFinished:
		return s.ReportFinish(m.PlayerID, m.Time)
	case protocol.ResetRace:
		s.Reset()
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnhandledMessage, msg.MessageType())
	}
}

func (d *Dispatcher) join(conn interfaces.Connection, m protocol.JoinRoom, logger zerolog.Logger) {
	if code, id, ok := conn.Seat(); ok && (code != m.RoomCode || id != m.PlayerID) {
		d.leave(conn, code, id)
	}

	s, created := d.registry.GetOrCreate(m.RoomCode)
	if created {
		logger.Info().Str("session", m.RoomCode).Int("sessions", d.registry.Len()).Msg("session opened")
	}

	displaced := s.AddParticipant(m.PlayerID, conn, m.Horse)
	conn.SetSeat(m.RoomCode, m.PlayerID)

	if old, ok := displaced.(interfaces.Connection); ok {
		logger.Info().
			Str("session", m.RoomCode).
			Str("participant", m.PlayerID).
			Str("displaced_connection_id", old.ID()).
			Msg("closing displaced connection")
		old.ClearSeat()
		if err := old.Close(); err != nil {
			logger.Debug().Err(err).Msg("displaced connection close")
		}
	}
}

func (d *Dispatcher) leave(conn interfaces.Connection, code, id string) {
	conn.ClearSeat()

	s, err := d.registry.Lookup(code)
	if err != nil {
		return
	}
	s.Detach(id, conn)
	d.registry.RemoveIfEmpty(code)
}
