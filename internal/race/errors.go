package race

import "errors"

// Session operation errors. The dispatcher logs them; clients never see them.
var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrWrongState          = errors.New("operation not allowed in current state")
	ErrAlreadyFinished     = errors.New("participant already finished")
	ErrNotEntrant          = errors.New("participant was not in the starting field")
)
