package lean

// lsp.go: Content-Length framing and JSON-RPC 2.0 envelopes.

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

var headerSeparator = []byte("\r\n\r\n")

// RequestID identifies an outgoing request. IDs start at 0 and are never
// reused within one Engine.
type RequestID int64

// Message is a decoded JSON-RPC envelope as received from the server.
// ID is kept raw because server-initiated requests may use string ids.
type Message struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// HasID reports whether the message carries a non-null id.
func (m *Message) HasID() bool {
	return len(m.ID) > 0 && string(m.ID) != "null"
}

// NumericID returns the id when it is a JSON integer.
func (m *Message) NumericID() (RequestID, bool) {
	if !m.HasID() {
		return 0, false
	}
	n, err := strconv.ParseInt(string(m.ID), 10, 64)
	if err != nil {
		return 0, false
	}
	return RequestID(n), true
}

// Response is a reply to one of our requests.
type Response struct {
	ID     RequestID
	Result json.RawMessage
	Error  *RPCError
}

// Err returns the RPC error carried by the response, if any.
func (r *Response) Err() error {
	if r.Error != nil {
		return r.Error
	}
	return nil
}

// Wire types for encoding.

type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      RequestID       `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonRPCNotification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	return json.Marshal(params)
}

// EncodeFrame prefixes body with its Content-Length header.
func EncodeFrame(body []byte) []byte {
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))
	out := make([]byte, 0, len(header)+len(body))
	out = append(out, header...)
	return append(out, body...)
}

// DecodeFrame extracts at most one complete frame from the front of acc.
// When the header or body is still incomplete it returns ok == false and
// leaves acc untouched. A header block without a usable Content-Length,
// or a body that is not JSON, is a *ProtocolError.
func DecodeFrame(acc *bytes.Buffer) (body json.RawMessage, ok bool, err error) {
	data := acc.Bytes()
	sep := bytes.Index(data, headerSeparator)
	if sep < 0 {
		return nil, false, nil
	}

	n, err := contentLength(data[:sep])
	if err != nil {
		return nil, false, err
	}

	start := sep + len(headerSeparator)
	if len(data)-start < n {
		return nil, false, nil
	}

	body = bytes.Clone(data[start : start+n])
	if !json.Valid(body) {
		return nil, false, &ProtocolError{Reason: fmt.Sprintf("frame body is not JSON: %q", truncate(body, 64))}
	}
	acc.Next(start + n)
	return body, true, nil
}

// contentLength finds the Content-Length header among CRLF-separated lines.
func contentLength(header []byte) (int, error) {
	for _, line := range strings.Split(string(header), "\r\n") {
		name, value, found := strings.Cut(line, ":")
		if !found || !strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return 0, &ProtocolError{Reason: fmt.Sprintf("bad Content-Length %q", value)}
		}
		return n, nil
	}
	return 0, &ProtocolError{Reason: fmt.Sprintf("missing Content-Length header in %q", truncate(header, 64))}
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
