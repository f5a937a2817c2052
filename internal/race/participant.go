package race

import (
	"encoding/json"

	"racetrack/internal/fanout"
)

// Position is the last reported ground position of a participant.
type Position struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

// Telemetry is one live update reported by a participant. It is advisory
// and never validated.
type Telemetry struct {
	Position Position
	Distance float64
	Speed    float64
}

// Participant is one seat in a Session.
//
// The connection is shared with the dispatcher; the Session only sends on it
// and never closes it.
type Participant struct {
	ID       string
	Conn     fanout.Endpoint
	Cosmetic json.RawMessage

	Ready      bool
	Finished   bool
	FinishTime *float64

	Telemetry Telemetry
}

// resetForLobby clears everything a new lobby cycle must not inherit.
func (p *Participant) resetForLobby() {
	p.Ready = false
	p.Finished = false
	p.FinishTime = nil
	p.Telemetry = Telemetry{}
}

// snapshot copies p so callers outside the session lock can read it.
func (p *Participant) snapshot() Participant {
	cp := *p
	if p.FinishTime != nil {
		t := *p.FinishTime
		cp.FinishTime = &t
	}
	return cp
}

// Finish is one line of a race's finish order. Rank is 1-based.
type Finish struct {
	Rank          int
	ParticipantID string
	Cosmetic      json.RawMessage
	Time          float64
}
