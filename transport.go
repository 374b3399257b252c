package coursesync

import "context"

// Event names delivered over the realtime transport.
const (
	EventContentChange  = "content_change"
	EventCursorPosition = "cursor_position"
	EventPresence       = "presence"
)

// ConnectionState reports the transport's connection status.
type ConnectionState string

const (
	StateConnected    ConnectionState = "connected"
	StateConnecting   ConnectionState = "connecting"
	StateDisconnected ConnectionState = "disconnected"
)

// Transport is the bidirectional event channel that delivers remote change
// events and accepts outgoing batches. It is owned and implemented by the
// surrounding system; this engine only consumes it.
type Transport interface {
	// Connect establishes the connection.
	Connect(ctx context.Context) error

	// On registers a handler for a named event. Payloads are raw event
	// bodies; content_change events decode as RemoteChange.
	On(event string, handler func(payload []byte))

	// Emit sends a named event to the current room.
	Emit(event string, payload []byte) error

	// State reports the current connection state.
	State() ConnectionState

	// JoinRoom and LeaveRoom scope presence and events to one document.
	JoinRoom(room string) error
	LeaveRoom(room string) error

	// Close tears down the connection.
	Close() error
}
