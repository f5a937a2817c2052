package protocol

import "regexp"

var identifierRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// IsValidSessionCode reports whether code can key a session.
func IsValidSessionCode(code string) bool {
	return identifierRegex.MatchString(code)
}

// IsValidParticipantID reports whether id can name a participant.
func IsValidParticipantID(id string) bool {
	return identifierRegex.MatchString(id)
}

func validateCode(code string) error {
	if !IsValidSessionCode(code) {
		return ErrInvalidSessionCode
	}
	return nil
}

func validateSeat(code, id string) error {
	if err := validateCode(code); err != nil {
		return err
	}
	if !IsValidParticipantID(id) {
		return ErrInvalidParticipantID
	}
	return nil
}
