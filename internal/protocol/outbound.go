package protocol

import (
	"encoding/json"

	"racetrack/internal/course"
)

// Message types sent by the server.
const (
	TypeRoomJoined        = "room-joined"
	TypePlayerJoined      = "player-joined"
	TypeReadyEnabled      = "ready-enabled"
	TypePlayerReadyStatus = "player-ready-status"
	TypeCountdown         = "countdown"
	TypeRaceStart         = "race-start"
	TypePlayerPosition    = "player-position"
	TypeRaceEnd           = "race-end"
	TypeRaceReset         = "race-reset"
	TypePlayerLeft        = "player-left"
)

// PlayerSummary is a roster entry.
type PlayerSummary struct {
	ID    string          `json:"id"`
	Horse json.RawMessage `json:"horse"`
}

// Standing is one line of the finish order. Position is the 1-based rank.
type Standing struct {
	Position int             `json:"position"`
	PlayerID string          `json:"playerId"`
	Horse    json.RawMessage `json:"horse"`
	Time     float64         `json:"time"`
}

type RoomJoined struct {
	Type     string          `json:"type"`
	RoomCode string          `json:"roomCode"`
	PlayerID string          `json:"playerId"`
	Players  []PlayerSummary `json:"players"`
}

type PlayerJoined struct {
	Type     string          `json:"type"`
	PlayerID string          `json:"playerId"`
	Horse    json.RawMessage `json:"horse"`
	Players  []PlayerSummary `json:"players"`
}

type ReadyEnabled struct {
	Type string `json:"type"`
}

type PlayerReadyStatus struct {
	Type       string `json:"type"`
	PlayerID   string `json:"playerId"`
	ReadyCount int    `json:"readyCount"`
	TotalCount int    `json:"totalCount"`
}

type Countdown struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type RaceStart struct {
	Type      string            `json:"type"`
	Obstacles []course.Obstacle `json:"obstacles"`
}

type PlayerPosition struct {
	Type     string          `json:"type"`
	PlayerID string          `json:"playerId"`
	X        float64         `json:"x"`
	Z        float64         `json:"z"`
	Distance float64         `json:"distance"`
	Speed    float64         `json:"speed"`
	Horse    json.RawMessage `json:"horse"`
}

type PlayerFinishedEvent struct {
	Type     string  `json:"type"`
	PlayerID string  `json:"playerId"`
	Position int     `json:"position"`
	Time     float64 `json:"time"`
}

type RaceEnd struct {
	Type    string     `json:"type"`
	Results []Standing `json:"results"`
}

type RaceReset struct {
	Type string `json:"type"`
}

type PlayerLeft struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
}

// MessageType returns the wire type of an outbound message.
func (m RoomJoined) MessageType() string          { return m.Type }
func (m PlayerJoined) MessageType() string        { return m.Type }
func (m ReadyEnabled) MessageType() string        { return m.Type }
func (m PlayerReadyStatus) MessageType() string   { return m.Type }
func (m Countdown) MessageType() string           { return m.Type }
func (m RaceStart) MessageType() string           { return m.Type }
func (m PlayerPosition) MessageType() string      { return m.Type }
func (m PlayerFinishedEvent) MessageType() string { return m.Type }
func (m RaceEnd) MessageType() string             { return m.Type }
func (m RaceReset) MessageType() string           { return m.Type }
func (m PlayerLeft) MessageType() string          { return m.Type }

func NewRoomJoined(code, playerID string, players []PlayerSummary) RoomJoined {
	return RoomJoined{Type: TypeRoomJoined, RoomCode: code, PlayerID: playerID, Players: nonNil(players)}
}

func NewPlayerJoined(playerID string, horse json.RawMessage, players []PlayerSummary) PlayerJoined {
	return PlayerJoined{Type: TypePlayerJoined, PlayerID: playerID, Horse: horse, Players: nonNil(players)}
}

func NewReadyEnabled() ReadyEnabled { return ReadyEnabled{Type: TypeReadyEnabled} }

func NewPlayerReadyStatus(playerID string, ready, total int) PlayerReadyStatus {
	return PlayerReadyStatus{Type: TypePlayerReadyStatus, PlayerID: playerID, ReadyCount: ready, TotalCount: total}
}

func NewCountdown(count int) Countdown { return Countdown{Type: TypeCountdown, Count: count} }

func NewRaceStart(obstacles []course.Obstacle) RaceStart {
	if obstacles == nil {
		obstacles = []course.Obstacle{}
	}
	return RaceStart{Type: TypeRaceStart, Obstacles: obstacles}
}

func NewPlayerPosition(playerID string, x, z, distance, speed float64, horse json.RawMessage) PlayerPosition {
	return PlayerPosition{
		Type:     TypePlayerPosition,
		PlayerID: playerID,
		X:        x,
		Z:        z,
		Distance: distance,
		Speed:    speed,
		Horse:    horse,
	}
}

func NewPlayerFinished(playerID string, position int, time float64) PlayerFinishedEvent {
	return PlayerFinishedEvent{Type: TypePlayerFinished, PlayerID: playerID, Position: position, Time: time}
}

func NewRaceEnd(results []Standing) RaceEnd {
	if results == nil {
		results = []Standing{}
	}
	return RaceEnd{Type: TypeRaceEnd, Results: results}
}

func NewRaceReset() RaceReset { return RaceReset{Type: TypeRaceReset} }

func NewPlayerLeft(playerID string) PlayerLeft {
	return PlayerLeft{Type: TypePlayerLeft, PlayerID: playerID}
}

func nonNil(players []PlayerSummary) []PlayerSummary {
	if players == nil {
		return []PlayerSummary{}
	}
	return players
}
