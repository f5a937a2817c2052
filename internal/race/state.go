package race

// State is the phase a Session is in.
type State int

const (
	StateLobby State = iota
	StateReadyCheck
	StateCountdown
	StateRacing
	StateFinished
)

// String returns the name used in logs and stats.
func (s State) String() string {
	switch s {
	case StateLobby:
		return "lobby"
	case StateReadyCheck:
		return "ready_check"
	case StateCountdown:
		return "countdown"
	case StateRacing:
		return "racing"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// MarshalText lets State appear by name in JSON stats and log fields.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
