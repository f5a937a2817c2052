// Package protocol defines the JSON messages exchanged with race clients.
//
// Every frame is an object with a "type" discriminator. Inbound frames are
// decoded once, at the connection boundary, into one of the concrete types
// below; callers switch over them exhaustively.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Message types sent by clients. TypePlayerFinished is also used outbound.
const (
	TypeJoinRoom       = "join-room"
	TypeEnableReady    = "enable-ready"
	TypePlayerReady    = "player-ready"
	TypeUpdatePosition = "update-position"
	TypePlayerFinished = "player-finished"
	TypeResetRace      = "reset-race"
)

// Inbound is a decoded client message.
type Inbound interface {
	MessageType() string
	Room() string
}

type JoinRoom struct {
	RoomCode string          `json:"roomCode"`
	PlayerID string          `json:"playerId"`
	Horse    json.RawMessage `json:"horse"`
}

type EnableReady struct {
	RoomCode string `json:"roomCode"`
}

type PlayerReady struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

type UpdatePosition struct {
	RoomCode string  `json:"roomCode"`
	PlayerID string  `json:"playerId"`
	X        float64 `json:"x"`
	Z        float64 `json:"z"`
	Distance float64 `json:"distance"`
	Speed    float64 `json:"speed"`
}

type PlayerFinished struct {
	RoomCode string  `json:"roomCode"`
	PlayerID string  `json:"playerId"`
	Time     float64 `json:"time"`
}

type ResetRace struct {
	RoomCode string `json:"roomCode"`
}

func (JoinRoom) MessageType() string       { return TypeJoinRoom }
func (EnableReady) MessageType() string    { return TypeEnableReady }
func (PlayerReady) MessageType() string    { return TypePlayerReady }
func (UpdatePosition) MessageType() string { return TypeUpdatePosition }
func (PlayerFinished) MessageType() string { return TypePlayerFinished }
func (ResetRace) MessageType() string      { return TypeResetRace }

func (m JoinRoom) Room() string       { return m.RoomCode }
func (m EnableReady) Room() string    { return m.RoomCode }
func (m PlayerReady) Room() string    { return m.RoomCode }
func (m UpdatePosition) Room() string { return m.RoomCode }
func (m PlayerFinished) Room() string { return m.RoomCode }
func (m ResetRace) Room() string      { return m.RoomCode }

type envelope struct {
	Type string `json:"type"`
}

// Decode parses one client frame. The returned error wraps one of
// ErrMalformedMessage, ErrUnknownMessageType, ErrMissingField,
// ErrInvalidSessionCode or ErrInvalidParticipantID.
func Decode(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch env.Type {
	case TypeJoinRoom:
		var m JoinRoom
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		if err := validateSeat(m.RoomCode, m.PlayerID); err != nil {
			return nil, err
		}
		return m, nil

	case TypeEnableReady:
		var m EnableReady
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		if err := validateCode(m.RoomCode); err != nil {
			return nil, err
		}
		return m, nil

	case TypePlayerReady:
		var m PlayerReady
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		if err := validateSeat(m.RoomCode, m.PlayerID); err != nil {
			return nil, err
		}
		return m, nil

	case TypeUpdatePosition:
		var m UpdatePosition
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		if err := validateSeat(m.RoomCode, m.PlayerID); err != nil {
			return nil, err
		}
		return m, nil

	case TypePlayerFinished:
		var raw struct {
			RoomCode string   `json:"roomCode"`
			PlayerID string   `json:"playerId"`
			Time     *float64 `json:"time"`
		}
		if err := unmarshal(data, &raw); err != nil {
			return nil, err
		}
		if err := validateSeat(raw.RoomCode, raw.PlayerID); err != nil {
			return nil, err
		}
		if raw.Time == nil {
			return nil, fmt.Errorf("%w: time", ErrMissingField)
		}
		return PlayerFinished{RoomCode: raw.RoomCode, PlayerID: raw.PlayerID, Time: *raw.Time}, nil

	case TypeResetRace:
		var m ResetRace
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		if err := validateCode(m.RoomCode); err != nil {
			return nil, err
		}
		return m, nil

	case "":
		return nil, fmt.Errorf("%w: type", ErrMissingField)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}
}

func unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return nil
}
