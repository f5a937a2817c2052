package protocol

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racetrack/internal/course"
)

func TestDecode_KnownTypes(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  Inbound
	}{
		{
			name:  "join room",
			frame: `{"type":"join-room","roomCode":"ABC123","playerId":"p1","horse":{"name":"Bolt","color":"#fff"}}`,
			want: JoinRoom{
				RoomCode: "ABC123",
				PlayerID: "p1",
				Horse:    json.RawMessage(`{"name":"Bolt","color":"#fff"}`),
			},
		},
		{
			name:  "enable ready",
			frame: `{"type":"enable-ready","roomCode":"ABC123"}`,
			want:  EnableReady{RoomCode: "ABC123"},
		},
		{
			name:  "player ready",
			frame: `{"type":"player-ready","roomCode":"ABC123","playerId":"p1"}`,
			want:  PlayerReady{RoomCode: "ABC123", PlayerID: "p1"},
		},
		{
			name:  "update position",
			frame: `{"type":"update-position","roomCode":"ABC123","playerId":"p1","x":1.5,"z":-2,"distance":310.25,"speed":14}`,
			want:  UpdatePosition{RoomCode: "ABC123", PlayerID: "p1", X: 1.5, Z: -2, Distance: 310.25, Speed: 14},
		},
		{
			name:  "player finished",
			frame: `{"type":"player-finished","roomCode":"ABC123","playerId":"p1","time":12.34}`,
			want:  PlayerFinished{RoomCode: "ABC123", PlayerID: "p1", Time: 12.34},
		},
		{
			name:  "reset race",
			frame: `{"type":"reset-race","roomCode":"ABC123"}`,
			want:  ResetRace{RoomCode: "ABC123"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "ABC123", got.Room())
		})
	}
}

func TestDecode_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		wantErr error
	}{
		{"not json", `{"type":`, ErrMalformedMessage},
		{"array", `[1,2]`, ErrMalformedMessage},
		{"missing type", `{"roomCode":"A"}`, ErrMissingField},
		{"unknown type", `{"type":"fly","roomCode":"A"}`, ErrUnknownMessageType},
		{"wrong field type", `{"type":"update-position","roomCode":"A","playerId":"p","x":"left"}`, ErrMalformedMessage},
		{"missing room", `{"type":"enable-ready"}`, ErrInvalidSessionCode},
		{"bad room", `{"type":"reset-race","roomCode":"a b"}`, ErrInvalidSessionCode},
		{"missing player", `{"type":"player-ready","roomCode":"A"}`, ErrInvalidParticipantID},
		{"long player", `{"type":"join-room","roomCode":"A","playerId":"` + strings.Repeat("p", 65) + `"}`, ErrInvalidParticipantID},
		{"finish without time", `{"type":"player-finished","roomCode":"A","playerId":"p"}`, ErrMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.frame))
			assert.Nil(t, msg)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDecode_JoinWithoutHorse(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"join-room","roomCode":"A","playerId":"RECEIVER"}`))
	require.NoError(t, err)

	join, ok := msg.(JoinRoom)
	require.True(t, ok)
	assert.Nil(t, join.Horse)
}

func TestOutbound_WireShapes(t *testing.T) {
	horse := json.RawMessage(`{"name":"Bolt"}`)
	tests := []struct {
		name string
		msg  any
		want string
	}{
		{
			name: "room joined with empty roster",
			msg:  NewRoomJoined("A", "p1", nil),
			want: `{"type":"room-joined","roomCode":"A","playerId":"p1","players":[]}`,
		},
		{
			name: "player joined",
			msg:  NewPlayerJoined("p1", horse, []PlayerSummary{{ID: "p1", Horse: horse}}),
			want: `{"type":"player-joined","playerId":"p1","horse":{"name":"Bolt"},"players":[{"id":"p1","horse":{"name":"Bolt"}}]}`,
		},
		{
			name: "ready status",
			msg:  NewPlayerReadyStatus("p1", 1, 2),
			want: `{"type":"player-ready-status","playerId":"p1","readyCount":1,"totalCount":2}`,
		},
		{
			name: "countdown",
			msg:  NewCountdown(3),
			want: `{"type":"countdown","count":3}`,
		},
		{
			name: "race start",
			msg:  NewRaceStart([]course.Obstacle{{ID: "hedge_200", Distance: 200, Kind: course.KindHedge}}),
			want: `{"type":"race-start","obstacles":[{"id":"hedge_200","distance":200,"type":"hedge"}]}`,
		},
		{
			name: "position without cosmetic",
			msg:  NewPlayerPosition("p1", 1, 2, 3, 4, nil),
			want: `{"type":"player-position","playerId":"p1","x":1,"z":2,"distance":3,"speed":4,"horse":null}`,
		},
		{
			name: "finished",
			msg:  NewPlayerFinished("p1", 1, 12.34),
			want: `{"type":"player-finished","playerId":"p1","position":1,"time":12.34}`,
		},
		{
			name: "race end",
			msg:  NewRaceEnd([]Standing{{Position: 1, PlayerID: "p1", Horse: horse, Time: 12.34}}),
			want: `{"type":"race-end","results":[{"position":1,"playerId":"p1","horse":{"name":"Bolt"},"time":12.34}]}`,
		},
		{
			name: "empty race end",
			msg:  NewRaceEnd(nil),
			want: `{"type":"race-end","results":[]}`,
		},
		{name: "reset", msg: NewRaceReset(), want: `{"type":"race-reset"}`},
		{name: "enabled", msg: NewReadyEnabled(), want: `{"type":"ready-enabled"}`},
		{name: "left", msg: NewPlayerLeft("p2"), want: `{"type":"player-left","playerId":"p2"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.msg)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestIdentifierValidation(t *testing.T) {
	assert.True(t, IsValidSessionCode("ABC123"))
	assert.True(t, IsValidParticipantID("player_1.a-b"))
	assert.False(t, IsValidSessionCode(""))
	assert.False(t, IsValidParticipantID("p 1"))
	assert.False(t, IsValidParticipantID("p/1"))
}
