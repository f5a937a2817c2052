package interfaces

// MessageDispatcher applies inbound frames and disconnects to session state.
// Callers serialise invocations; implementations need not be reentrant.
type MessageDispatcher interface {
	// HandleFrame decodes and applies one inbound frame from conn.
	// Failures are logged and never surfaced to the client.
	HandleFrame(conn Connection, data []byte)

	// HandleDisconnect releases whatever seat conn holds.
	HandleDisconnect(conn Connection)
}
