// Package leantest provides an in-memory language server for tests.
package leantest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/bollu/elide-sub000/internal/lean"
)

// Handler computes the result of a request. A nil result is sent as null.
// Handlers run with the server locked and must not call back into it.
type Handler func(params json.RawMessage) any

// Server implements lean.Channel. Everything the client writes is decoded
// and recorded; requests with a registered handler are answered at once,
// the rest wait for Respond.
type Server struct {
	mu sync.Mutex

	// MaxWrite caps the bytes accepted per Write call when positive.
	MaxWrite int

	in       bytes.Buffer
	out      bytes.Buffer
	handlers map[string]Handler
	received []*lean.Message
	hungUp   bool
	closed   bool
}

// New returns a server that answers initialize and shutdown.
func New() *Server {
	s := &Server{handlers: make(map[string]Handler)}
	s.handlers[lean.MethodInitialize] = func(json.RawMessage) any {
		return map[string]any{
			"capabilities": map[string]any{},
			"serverInfo":   map[string]any{"name": "leantest", "version": "0"},
		}
	}
	s.handlers[lean.MethodShutdown] = func(json.RawMessage) any { return nil }
	return s
}

// Handle registers h for method, replacing any previous handler. A nil h
// leaves requests for method unanswered.
func (s *Server) Handle(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h == nil {
		delete(s.handlers, method)
		return
	}
	s.handlers[method] = h
}

// Write implements lean.Channel.
func (s *Server) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	if s.MaxWrite > 0 && len(p) > s.MaxWrite {
		p = p[:s.MaxWrite]
	}
	s.in.Write(p)
	for {
		body, ok, err := lean.DecodeFrame(&s.in)
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		var m lean.Message
		if err := json.Unmarshal(body, &m); err != nil {
			return 0, err
		}
		s.received = append(s.received, &m)
		if m.Method == "" || !m.HasID() {
			continue
		}
		if h, ok := s.handlers[m.Method]; ok {
			s.writeLocked(map[string]any{"jsonrpc": "2.0", "id": m.ID, "result": h(m.Params)})
		}
	}
	return len(p), nil
}

// ReadAvailable implements lean.Channel.
func (s *Server) ReadAvailable() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out.Len() == 0 && s.hungUp {
		return nil, io.EOF
	}
	out := bytes.Clone(s.out.Bytes())
	s.out.Reset()
	return out, nil
}

// Close implements io.Closer.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether the client closed the channel.
func (s *Server) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Hangup makes ReadAvailable report io.EOF once pending output is read.
func (s *Server) Hangup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hungUp = true
}

func (s *Server) writeLocked(v any) {
	body, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("leantest: marshal: %v", err))
	}
	s.out.Write(lean.EncodeFrame(body))
}

// Respond answers request id with result.
func (s *Server) Respond(id lean.RequestID, result any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeLocked(map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
}

// Notify pushes a notification to the client.
func (s *Server) Notify(method string, params any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeLocked(map[string]any{"jsonrpc": "2.0", "method": method, "params": params})
}

// Send frames body verbatim.
func (s *Server) Send(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.Write(lean.EncodeFrame([]byte(body)))
}

// SendRaw queues bytes without framing them.
func (s *Server) SendRaw(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.Write(b)
}

// Received returns the client messages with the given method, in order.
// An empty method returns all of them.
func (s *Server) Received(method string) []*lean.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*lean.Message
	for _, m := range s.received {
		if method == "" || m.Method == method {
			out = append(out, m)
		}
	}
	return out
}

// Last returns the most recent client message with the given method.
func (s *Server) Last(method string) (*lean.Message, bool) {
	ms := s.Received(method)
	if len(ms) == 0 {
		return nil, false
	}
	return ms[len(ms)-1], true
}

// DocumentText decodes the text carried by a didOpen or didChange.
func DocumentText(m *lean.Message) (text string, version int32, err error) {
	var p struct {
		TextDocument struct {
			Version int32  `json:"version"`
			Text    string `json:"text"`
		} `json:"textDocument"`
		ContentChanges []struct {
			Text string `json:"text"`
		} `json:"contentChanges"`
	}
	if err := json.Unmarshal(m.Params, &p); err != nil {
		return "", 0, err
	}
	switch m.Method {
	case lean.MethodDidOpen:
		return p.TextDocument.Text, p.TextDocument.Version, nil
	case lean.MethodDidChange:
		if len(p.ContentChanges) != 1 {
			return "", 0, fmt.Errorf("expected one content change, got %d", len(p.ContentChanges))
		}
		return p.ContentChanges[0].Text, p.TextDocument.Version, nil
	}
	return "", 0, fmt.Errorf("%s carries no document text", m.Method)
}
