package operations

import "crunchcli/pkg/contracts/events"

// WebSocketHub is the broadcast side of the websocket hub.
type WebSocketHub interface {
	Broadcast(messageType events.MessageType, data any)
}
