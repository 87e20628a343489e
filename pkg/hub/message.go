// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern.
package hub

// Message is one pre-encoded JSON document sent to every client as a
// websocket text frame.
type Message struct {
	Data []byte
}

// NewJSONMessage creates a message from pre-encoded JSON bytes
func NewJSONMessage(data []byte) Message {
	return Message{Data: data}
}
