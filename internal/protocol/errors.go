package protocol

import "errors"

// Decode errors. None of them close the connection; the frame is dropped.
var (
	ErrMalformedMessage     = errors.New("malformed message")
	ErrUnknownMessageType   = errors.New("unknown message type")
	ErrMissingField         = errors.New("required field missing")
	ErrInvalidSessionCode   = errors.New("room code must be 1-64 characters: letters, digits, '.', '_' or '-'")
	ErrInvalidParticipantID = errors.New("player id must be 1-64 characters: letters, digits, '.', '_' or '-'")
)
