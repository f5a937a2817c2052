package interfaces

// Connection is one client transport as seen by the dispatcher.
// Implementations must be safe for concurrent use and Send must not block.
type Connection interface {
	// ID uniquely identifies the connection for its lifetime.
	ID() string

	// Send queues an encoded frame for delivery.
	Send(data []byte) error

	// Close tears the transport down. Calling it more than once is safe.
	Close() error

	// SetSeat records the session seat this connection last joined so a
	// disconnect can be resolved without the client re-identifying itself.
	SetSeat(sessionCode, participantID string)

	// Seat returns the recorded seat, if any.
	Seat() (sessionCode, participantID string, ok bool)

	// ClearSeat forgets the recorded seat.
	ClearSeat()
}
