package socket

import (
	"encoding/json"
	"fmt"

	"github.com/tenantauth/auth-backend/internal/api/response"
)

// Event names accepted on a connection.
const (
	EventRegister     = "register"
	EventLogin        = "login"
	EventRefreshToken = "refresh_token"
	EventLogout       = "logout"
	EventMe           = "me"

	// EventError is emitted by the server, never handled.
	EventError = "error"
)

// Inbound is a client frame. Ack is echoed back in the reply; zero means the
// client does not want one.
type Inbound struct {
	Event string          `json:"event"`
	Ack   uint64          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Ack answers one inbound frame.
type Ack struct {
	Ack     uint64 `json:"ack"`
	Success bool   `json:"success"`
	Message string `json:"message"`
	Payload any    `json:"payload"`
}

// Outbound is a server-initiated event.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// ErrorData is the body of an "error" event.
type ErrorData struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Error wraps a failure raised while handling an event so that it is
// answered on the connection instead of tearing it down.
type Error struct {
	Event string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("socket %s: %v", e.Event, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func successAck(id uint64, message string, result any) Ack {
	return Ack{Ack: id, Success: true, Message: message, Payload: response.Result{Result: result}}
}

func failureAck(id uint64, err error) Ack {
	_, env := response.Error(err)
	return Ack{Ack: id, Success: false, Message: env.Message, Payload: env.Payload}
}

func errorEvent(err error) Outbound {
	status, env := response.Error(err)
	return Outbound{Event: EventError, Data: ErrorData{Message: env.Message, Code: status}}
}
