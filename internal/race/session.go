// Package race implements the race session state machine and the registry
// that owns live sessions.
package race

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"racetrack/internal/course"
	"racetrack/internal/fanout"
	"racetrack/internal/protocol"
)

// DefaultSpectatorID is the reserved id of the display screen.
const DefaultSpectatorID = "RECEIVER"

// Options configures every Session a Registry creates.
type Options struct {
	Generator     course.Generator
	Clock         clockwork.Clock
	SpectatorID   string
	CountdownFrom int
	CountdownStep time.Duration
}

// DefaultOptions returns a 2000 unit hedge course, a 3-2-1 countdown at one
// step per second and the RECEIVER spectator.
func DefaultOptions() Options {
	return Options{
		Generator:     course.NewHedges(2000, 200),
		Clock:         clockwork.NewRealClock(),
		SpectatorID:   DefaultSpectatorID,
		CountdownFrom: 3,
		CountdownStep: time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Generator == nil {
		o.Generator = def.Generator
	}
	if o.Clock == nil {
		o.Clock = def.Clock
	}
	if o.SpectatorID == "" {
		o.SpectatorID = def.SpectatorID
	}
	if o.CountdownFrom < 1 {
		o.CountdownFrom = def.CountdownFrom
	}
	if o.CountdownStep <= 0 {
		o.CountdownStep = def.CountdownStep
	}
	return o
}

// Session is one race room. All operations are applied atomically, in the
// order they are called, under a single mutex; the countdown goroutine takes
// the same mutex for each tick.
type Session struct {
	code   string
	opts   Options
	logger zerolog.Logger

	mu           sync.Mutex
	state        State
	participants map[string]*Participant
	order        []string
	obstacles    []course.Obstacle
	finishOrder  []Finish

	// entrants holds the competing ids seated when the race started, minus
	// those who left before finishing. expected is the number of finishes
	// that completes the race.
	entrants map[string]struct{}
	expected int

	countdown  *countdown
	generation uint64
}

// SessionStats is a point-in-time summary of a session.
type SessionStats struct {
	Code         string `json:"code"`
	State        State  `json:"state"`
	Participants int    `json:"participants"`
	Competing    int    `json:"competing"`
	Ready        int    `json:"ready"`
	Finished     int    `json:"finished"`
}

// NewSession creates a session in the lobby with a freshly generated course.
func NewSession(code string, opts Options) *Session {
	opts = opts.withDefaults()
	s := &Session{
		code:         code,
		opts:         opts,
		logger:       log.With().Str("session", code).Logger(),
		state:        StateLobby,
		participants: make(map[string]*Participant),
		obstacles:    opts.Generator.Generate(),
	}
	s.logger.Info().Int("obstacles", len(s.obstacles)).Msg("session created")
	return s
}

// Code returns the session code the session was created under.
func (s *Session) Code() string { return s.code }

// SpectatorID returns the reserved id excluded from race accounting.
func (s *Session) SpectatorID() string { return s.opts.SpectatorID }

// State returns the current phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Len returns the number of seated participants, spectator included.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.participants)
}

// CompetingCount returns the number of seated non-spectator participants.
func (s *Session) CompetingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.competingLocked()
}

// ReadyCount returns the number of competing participants flagged ready.
func (s *Session) ReadyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readyCountLocked()
}

// ParticipantIDs returns seated ids in join order.
func (s *Session) ParticipantIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.order)
}

// Participant returns a copy of the participant seated under id.
func (s *Session) Participant(id string) (Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	if !ok {
		return Participant{}, false
	}
	return p.snapshot(), true
}

// Obstacles returns a copy of the current course.
func (s *Session) Obstacles() []course.Obstacle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.obstacles)
}

// FinishOrder returns a copy of the finishes recorded so far, in rank order.
func (s *Session) FinishOrder() []Finish {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.finishOrder)
}

// Stats summarises the session for the stats endpoint.
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionStats{
		Code:         s.code,
		State:        s.state,
		Participants: len(s.participants),
		Competing:    s.competingLocked(),
		Ready:        s.readyCountLocked(),
		Finished:     len(s.finishOrder),
	}
}

// AddParticipant seats id on conn, confirms the join to conn and announces
// it to everyone else.
//
// Rejoining under an id that is already seated moves the seat to conn and
// keeps its race progress. The connection that held the seat before is
// returned so the caller can close it; nil means nothing was displaced.
func (s *Session) AddParticipant(id string, conn fanout.Endpoint, cosmetic json.RawMessage) fanout.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	var displaced fanout.Endpoint
	if existing, ok := s.participants[id]; ok {
		if existing.Conn != conn {
			displaced = existing.Conn
		}
		existing.Conn = conn
		existing.Cosmetic = cosmetic
		s.logger.Info().Str("participant", id).Bool("displaced", displaced != nil).Msg("participant rejoined")
	} else {
		s.participants[id] = &Participant{ID: id, Conn: conn, Cosmetic: cosmetic}
		s.order = append(s.order, id)
		s.logger.Info().Str("participant", id).Int("participants", len(s.participants)).Msg("participant joined")
	}

	roster := s.rosterLocked()
	s.broadcastLocked(protocol.NewRoomJoined(s.code, id, roster), fanout.Only(id))
	s.broadcastLocked(protocol.NewPlayerJoined(id, cosmetic, roster), fanout.Except(id))
	return displaced
}

// RemoveParticipant unseats id and tells the remaining participants.
// It reports whether anyone was removed. Discarding an emptied session is
// the caller's job.
func (s *Session) RemoveParticipant(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

// Detach is RemoveParticipant for a disconnecting connection: the seat is
// only removed while conn still holds it.
func (s *Session) Detach(id string, conn fanout.Endpoint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[id]
	if !ok || p.Conn != conn {
		return false
	}
	return s.removeLocked(id)
}

// EnableReady opens the ready check and tells competing participants.
// Repeating it during the ready check re-sends the notice.
func (s *Session) EnableReady() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateLobby:
		s.setStateLocked(StateReadyCheck)
	case StateReadyCheck:
	default:
		return fmt.Errorf("%w: enable ready in %s", ErrWrongState, s.state)
	}

	s.broadcastLocked(protocol.NewReadyEnabled(), fanout.Except(s.opts.SpectatorID))
	s.checkAllReadyLocked()
	return nil
}

// MarkReady flags id as ready, broadcasts the ready count and starts the
// countdown once every competing participant is ready. Marking an already
// ready participant changes nothing but the status is still broadcast.
func (s *Session) MarkReady(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrParticipantNotFound, id)
	}
	if !p.Ready {
		p.Ready = true
		s.logger.Info().Str("participant", id).Msg("participant ready")
	}

	ready, total := s.readyCountLocked(), s.competingLocked()
	s.broadcastLocked(protocol.NewPlayerReadyStatus(id, ready, total), fanout.Everyone)
	s.checkAllReadyLocked()
	return nil
}

// UpdateTelemetry records a live update from id and relays it, with the
// participant's cosmetic, to everyone but id. Only accepted while racing.
func (s *Session) UpdateTelemetry(id string, t Telemetry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRacing {
		return fmt.Errorf("%w: telemetry in %s", ErrWrongState, s.state)
	}
	p, ok := s.participants[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrParticipantNotFound, id)
	}

	p.Telemetry = t
	msg := protocol.NewPlayerPosition(id, t.Position.X, t.Position.Z, t.Distance, t.Speed, p.Cosmetic)
	s.broadcastLocked(msg, fanout.Except(id))
	return nil
}

// ReportFinish records id crossing the line at time. Ranks follow call
// order. A second report from the same participant is rejected and leaves
// the first one untouched.
func (s *Session) ReportFinish(id string, time float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRacing {
		return fmt.Errorf("%w: finish in %s", ErrWrongState, s.state)
	}
	p, ok := s.participants[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrParticipantNotFound, id)
	}
	if p.Finished || s.hasFinishedLocked(id) {
		return fmt.Errorf("%w: %s", ErrAlreadyFinished, id)
	}
	if _, ok := s.entrants[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotEntrant, id)
	}

	p.Finished = true
	p.FinishTime = &time
	rank := len(s.finishOrder) + 1
	s.finishOrder = append(s.finishOrder, Finish{
		Rank:          rank,
		ParticipantID: id,
		Cosmetic:      p.Cosmetic,
		Time:          time,
	})
	s.logger.Info().Str("participant", id).Int("rank", rank).Float64("finish_time", time).Msg("participant finished")

	s.broadcastLocked(protocol.NewPlayerFinished(id, rank, time), fanout.Everyone)
	s.checkCompletionLocked()
	return nil
}

// Reset returns the session to the lobby from any state: the countdown is
// cancelled, race progress is cleared, a new course is generated and every
// participant is told.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopCountdownLocked()
	s.setStateLocked(StateLobby)
	s.finishOrder = nil
	s.entrants = nil
	s.expected = 0
	for _, p := range s.participants {
		p.resetForLobby()
	}
	s.obstacles = s.opts.Generator.Generate()

	s.broadcastLocked(protocol.NewRaceReset(), fanout.Everyone)
}

// Broadcast delivers msg to every participant selected by keep.
func (s *Session) Broadcast(msg any, keep fanout.Predicate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastLocked(msg, keep)
}

// Close cancels any pending countdown. The session stays usable.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCountdownLocked()
}

func (s *Session) removeLocked(id string) bool {
	p, ok := s.participants[id]
	if !ok {
		return false
	}
	delete(s.participants, id)
	s.order = slices.DeleteFunc(s.order, func(seated string) bool { return seated == id })
	s.logger.Info().Str("participant", id).Int("participants", len(s.participants)).Msg("participant left")

	s.broadcastLocked(protocol.NewPlayerLeft(id), fanout.Everyone)

	if id == s.opts.SpectatorID {
		return true
	}

	switch s.state {
	case StateReadyCheck:
		s.checkAllReadyLocked()
	case StateCountdown:
		if s.competingLocked() == 0 {
			s.stopCountdownLocked()
			s.setStateLocked(StateReadyCheck)
		}
	case StateRacing:
		if _, entrant := s.entrants[id]; entrant && !p.Finished {
			delete(s.entrants, id)
			s.expected--
			s.checkCompletionLocked()
		}
	}
	return true
}

func (s *Session) checkAllReadyLocked() {
	if s.state != StateReadyCheck {
		return
	}
	total := s.competingLocked()
	if total == 0 || s.readyCountLocked() != total {
		return
	}
	s.setStateLocked(StateCountdown)
	s.startCountdownLocked()
}

func (s *Session) startRaceLocked() {
	s.entrants = make(map[string]struct{})
	for _, id := range s.order {
		if id != s.opts.SpectatorID {
			s.entrants[id] = struct{}{}
		}
	}
	s.expected = len(s.entrants)
	s.finishOrder = nil
	s.setStateLocked(StateRacing)

	s.broadcastLocked(protocol.NewRaceStart(slices.Clone(s.obstacles)), fanout.Everyone)
}

func (s *Session) checkCompletionLocked() {
	if s.state != StateRacing || len(s.finishOrder) < s.expected {
		return
	}
	s.setStateLocked(StateFinished)

	results := make([]protocol.Standing, 0, len(s.finishOrder))
	for _, f := range s.finishOrder {
		results = append(results, protocol.Standing{
			Position: f.Rank,
			PlayerID: f.ParticipantID,
			Horse:    f.Cosmetic,
			Time:     f.Time,
		})
	}
	s.broadcastLocked(protocol.NewRaceEnd(results), fanout.Everyone)
}

func (s *Session) setStateLocked(next State) {
	if s.state == next {
		return
	}
	s.logger.Info().Stringer("from", s.state).Stringer("to", next).Msg("state changed")
	s.state = next
}

func (s *Session) competingLocked() int {
	n := 0
	for id := range s.participants {
		if id != s.opts.SpectatorID {
			n++
		}
	}
	return n
}

func (s *Session) readyCountLocked() int {
	n := 0
	for id, p := range s.participants {
		if p.Ready && id != s.opts.SpectatorID {
			n++
		}
	}
	return n
}

func (s *Session) hasFinishedLocked(id string) bool {
	for _, f := range s.finishOrder {
		if f.ParticipantID == id {
			return true
		}
	}
	return false
}

func (s *Session) rosterLocked() []protocol.PlayerSummary {
	roster := make([]protocol.PlayerSummary, 0, len(s.order))
	for _, id := range s.order {
		roster = append(roster, protocol.PlayerSummary{ID: id, Horse: s.participants[id].Cosmetic})
	}
	return roster
}

func (s *Session) targetsLocked() []fanout.Target {
	targets := make([]fanout.Target, 0, len(s.order))
	for _, id := range s.order {
		targets = append(targets, fanout.Target{ID: id, Endpoint: s.participants[id].Conn})
	}
	return targets
}

func (s *Session) broadcastLocked(msg any, keep fanout.Predicate) {
	msgType := messageType(msg)
	report, err := fanout.Deliver(msg, s.targetsLocked(), keep)
	if err != nil {
		s.logger.Error().Err(err).Str("msg_type", msgType).Msg("broadcast dropped")
		return
	}
	for id, failure := range report.Failed {
		s.logger.Warn().Err(failure).Str("participant", id).Str("msg_type", msgType).Msg("delivery failed")
	}
	s.logger.Debug().
		Str("msg_type", msgType).
		Strs("recipients", report.Delivered).
		Msg("broadcast")
}

// messageType names msg by its wire type, falling back to the Go type.
func messageType(msg any) string {
	if typed, ok := msg.(interface{ MessageType() string }); ok {
		return typed.MessageType()
	}
	return fmt.Sprintf("%T", msg)
}
