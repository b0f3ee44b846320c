// Package events contains the messages pushed to websocket clients while
// batches run.
package events

import (
	"time"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// MessageTypeBatchSnapshot carries the full state of one batch. It is
	// the only message sent for batch progress.
	MessageTypeBatchSnapshot MessageType = "batch:snapshot"

	// Connection messages
	MessageTypeConnect    MessageType = "connect"
	MessageTypeDisconnect MessageType = "disconnect"
	MessageTypeError      MessageType = "error"
)

// BaseMessage represents the base structure for all WebSocket messages
type BaseMessage struct {
	ID        string      `json:"id,omitempty"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// WebSocketMessage represents a complete WebSocket message
type WebSocketMessage struct {
	BaseMessage
	Data any `json:"data,omitempty"`
}

// BatchSnapshot is the state of a batch as seen by clients.
type BatchSnapshot struct {
	BatchID     string         `json:"batch_id"`
	Status      string         `json:"status"` // pending|running|completed|failed|cancelled
	Progress    int            `json:"progress"`
	CurrentStep string         `json:"current_step,omitempty"`
	Steps       []StepSnapshot `json:"steps"`
	StartedAt   time.Time      `json:"started_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	Message     string         `json:"message,omitempty"`
}

// StepSnapshot represents the state of a single step
type StepSnapshot struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Status   string         `json:"status"` // pending|active|completed|failed|skipped
	Progress int            `json:"progress"`
	Message  string         `json:"message,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ErrorData is the payload of a MessageTypeError message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
