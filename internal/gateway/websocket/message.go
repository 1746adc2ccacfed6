// Package websocket streams exercise runs to browser clients and pushes
// catalog reload notices.
package websocket

import (
	"runbox/internal/jsvm"
	"runbox/internal/jsvm/hostapi"
)

// WSMessage represents a WebSocket message in either direction.
type WSMessage struct {
	Type string `json:"type"`

	// Run request fields.
	Code   string `json:"code,omitempty"`
	Module string `json:"module,omitempty"`

	// Run stream fields.
	RunID  string          `json:"run_id,omitempty"`
	Line   *string         `json:"line,omitempty"`
	Level  hostapi.Level   `json:"level,omitempty"`
	Result *jsvm.RunResult `json:"result,omitempty"`

	// Error fields.
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Message types.
const (
	TypeRun    = "run"
	TypeOutput = "output"
	TypeResult = "result"
	TypePing   = "ping"
	TypePong   = "pong"
	TypeReload = "reload"
	TypeError  = "error"
)

// Error codes sent in error messages.
const (
	ErrCodeInvalidMessage = "INVALID_MESSAGE"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeRunInProgress  = "RUN_IN_PROGRESS"
	ErrCodeUnknownType    = "UNKNOWN_TYPE"
)

// NewOutputMessage creates an output message for one console line.
func NewOutputMessage(runID string, line hostapi.Line) WSMessage {
	text := line.Text
	return WSMessage{Type: TypeOutput, RunID: runID, Line: &text, Level: line.Level}
}

// NewResultMessage creates the final message of a run.
func NewResultMessage(runID string, result *jsvm.RunResult) WSMessage {
	return WSMessage{Type: TypeResult, RunID: runID, Result: result}
}

// NewErrorMessage creates an error message.
func NewErrorMessage(code, message string) WSMessage {
	return WSMessage{Type: TypeError, ErrorCode: code, Message: message}
}
