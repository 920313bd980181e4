package lean

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownRequest is returned when polling an id this engine never issued.
	ErrUnknownRequest = errors.New("request id was never issued")

	// ErrConsumed is returned when polling an id whose response was already taken.
	ErrConsumed = errors.New("response already consumed")

	// ErrServerExited is returned once the server closed its stdout.
	ErrServerExited = errors.New("language server exited")

	// ErrHandshakeTimeout is returned when initialize gets no reply in time.
	ErrHandshakeTimeout = errors.New("initialize handshake timed out")

	// ErrRelativePath is returned when a URI is requested for a relative path.
	ErrRelativePath = errors.New("path is not absolute")
)

// ProtocolError reports a frame or correlation violation by the server.
// An engine that hit one refuses all further work, since a later reply
// could be matched to the wrong request.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol violation: " + e.Reason
}

// RPCError is a JSON-RPC error object returned by the server.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("rpc error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC and LSP error codes.
const (
	CodeParseError           = -32700
	CodeInvalidRequest       = -32600
	CodeMethodNotFound       = -32601
	CodeInvalidParams        = -32602
	CodeInternalError        = -32603
	CodeServerNotInitialized = -32002
	CodeRequestCancelled     = -32800
	CodeContentModified      = -32801
)
