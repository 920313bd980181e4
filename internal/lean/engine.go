package lean

// engine.go: request ids, response correlation and the unsolicited queue.

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.lsp.dev/protocol"
	"go.uber.org/zap"
)

// Channel is the byte transport under an Engine. ReadAvailable must not
// block; it returns an empty slice when nothing is pending.
type Channel interface {
	Write(p []byte) (int, error)
	ReadAvailable() ([]byte, error)
}

// stderrDrainer is implemented by channels that also expose the server's
// stderr. The engine logs it so the child never stalls on a full pipe.
type stderrDrainer interface {
	DrainStderr() ([]byte, error)
}

// Stats exposes the correlation counters. Issued is always
// ResponsesRead + Outstanding + Abandoned, where Abandoned counts ids spent
// on requests whose write failed. A caller waiting on a reply while
// Outstanding is zero is waiting for nothing.
type Stats struct {
	Issued        int64
	ResponsesRead int64
	Outstanding   int
	Abandoned     int64
	Buffered      int
	Unsolicited   int
}

// Engine is a poll-driven JSON-RPC client. It is not safe for concurrent
// use; one goroutine drives all calls.
type Engine struct {
	ch  Channel
	log *zap.Logger

	acc    bytes.Buffer
	nextID RequestID

	outstanding map[RequestID]struct{}
	responses   map[RequestID]*Response
	consumed    map[RequestID]struct{}
	unsolicited []*Message

	responsesRead int64
	abandoned     int64
	exited        bool
	poisoned      error
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

// NewEngine wraps ch. The engine owns ch from here on.
func NewEngine(ch Channel, opts ...EngineOption) *Engine {
	e := &Engine{
		ch:          ch,
		log:         zap.NewNop(),
		outstanding: make(map[RequestID]struct{}),
		responses:   make(map[RequestID]*Response),
		consumed:    make(map[RequestID]struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Err returns the protocol error that poisoned the engine, if any.
func (e *Engine) Err() error {
	return e.poisoned
}

func (e *Engine) poison(err error) error {
	var pe *ProtocolError
	if errors.As(err, &pe) && e.poisoned == nil {
		e.poisoned = err
		e.log.Error("engine poisoned", zap.Error(err))
	}
	return err
}

// WriteRequest sends a request and returns its id.
func (e *Engine) WriteRequest(method string, params any) (RequestID, error) {
	if e.poisoned != nil {
		return 0, e.poisoned
	}
	raw, err := marshalParams(params)
	if err != nil {
		return 0, fmt.Errorf("marshal %s params: %w", method, err)
	}
	id := e.nextID
	body, err := json.Marshal(&jsonRPCRequest{JSONRPC: "2.0", ID: id, Method: method, Params: raw})
	if err != nil {
		return 0, fmt.Errorf("marshal %s: %w", method, err)
	}
	// The id is spent even if the write fails; ids are never reused.
	e.nextID++
	if err := e.writeAll(EncodeFrame(body)); err != nil {
		e.abandoned++
		return 0, fmt.Errorf("write %s: %w", method, err)
	}
	e.outstanding[id] = struct{}{}
	e.log.Debug("request", zap.Int64("id", int64(id)), zap.String("method", method))
	return id, nil
}

// WriteNotification sends a notification. No id is consumed.
func (e *Engine) WriteNotification(method string, params any) error {
	if e.poisoned != nil {
		return e.poisoned
	}
	raw, err := marshalParams(params)
	if err != nil {
		return fmt.Errorf("marshal %s params: %w", method, err)
	}
	body, err := json.Marshal(&jsonRPCNotification{JSONRPC: "2.0", Method: method, Params: raw})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}
	if err := e.writeAll(EncodeFrame(body)); err != nil {
		return fmt.Errorf("write %s: %w", method, err)
	}
	e.log.Debug("notification", zap.String("method", method))
	return nil
}

// Reply answers a server-initiated request.
func (e *Engine) Reply(id json.RawMessage, result any) error {
	if e.poisoned != nil {
		return e.poisoned
	}
	raw := json.RawMessage("null")
	if result != nil {
		var err error
		if raw, err = json.Marshal(result); err != nil {
			return fmt.Errorf("marshal reply: %w", err)
		}
	}
	body, err := json.Marshal(&jsonRPCResponse{JSONRPC: "2.0", ID: id, Result: raw})
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}
	if err := e.writeAll(EncodeFrame(body)); err != nil {
		return fmt.Errorf("write reply %s: %w", id, err)
	}
	return nil
}

// writeAll loops until the channel took every byte.
func (e *Engine) writeAll(p []byte) error {
	for len(p) > 0 {
		n, err := e.ch.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// Tick moves whatever the server has written into the response table and
// the unsolicited queue. It never blocks.
func (e *Engine) Tick() error {
	if e.poisoned != nil {
		return e.poisoned
	}
	e.drainStderr()

	if !e.exited {
		data, err := e.ch.ReadAvailable()
		e.acc.Write(data)
		switch {
		case errors.Is(err, io.EOF):
			e.exited = true
			e.log.Warn("language server closed stdout")
		case err != nil:
			return fmt.Errorf("read: %w", err)
		}
	}

	for {
		body, ok, err := DecodeFrame(&e.acc)
		if err != nil {
			return e.poison(err)
		}
		if !ok {
			break
		}
		if err := e.route(body); err != nil {
			return e.poison(err)
		}
	}

	if e.exited && len(e.outstanding) > 0 {
		return ErrServerExited
	}
	return nil
}

func (e *Engine) drainStderr() {
	d, ok := e.ch.(stderrDrainer)
	if !ok {
		return
	}
	out, err := d.DrainStderr()
	for _, line := range bytes.Split(bytes.TrimRight(out, "\n"), []byte("\n")) {
		if len(line) > 0 {
			e.log.Debug("server stderr", zap.ByteString("line", line))
		}
	}
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
		e.log.Warn("stderr read failed", zap.Error(err))
	}
}

func (e *Engine) route(body json.RawMessage) error {
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return &ProtocolError{Reason: fmt.Sprintf("frame is not a JSON-RPC object: %v", err)}
	}
	if m.Method == "" {
		if id, ok := m.NumericID(); ok {
			if _, pending := e.outstanding[id]; pending {
				delete(e.outstanding, id)
				e.responses[id] = &Response{ID: id, Result: m.Result, Error: m.Error}
				e.responsesRead++
				return nil
			}
			_, held := e.responses[id]
			_, taken := e.consumed[id]
			if held || taken {
				return &ProtocolError{Reason: fmt.Sprintf("duplicate response for id %d", id)}
			}
		}
	}
	e.unsolicited = append(e.unsolicited, &m)
	return nil
}

// PollResponse ticks once and returns the response for id if it arrived.
// A response is handed out exactly once.
func (e *Engine) PollResponse(id RequestID) (*Response, bool, error) {
	if id < 0 || id >= e.nextID {
		return nil, false, fmt.Errorf("poll %d: %w", id, ErrUnknownRequest)
	}
	if _, taken := e.consumed[id]; taken {
		return nil, false, fmt.Errorf("poll %d: %w", id, ErrConsumed)
	}
	if err := e.Tick(); err != nil {
		// A dead server may still have answered this id before exiting.
		if !errors.Is(err, ErrServerExited) {
			return nil, false, err
		}
		if r, ok := e.take(id); ok {
			return r, true, nil
		}
		return nil, false, err
	}
	r, ok := e.take(id)
	return r, ok, nil
}

func (e *Engine) take(id RequestID) (*Response, bool) {
	r, ok := e.responses[id]
	if !ok {
		return nil, false
	}
	delete(e.responses, id)
	e.consumed[id] = struct{}{}
	return r, true
}

// NextUnsolicited pops the oldest unsolicited message.
func (e *Engine) NextUnsolicited() (*Message, bool) {
	if len(e.unsolicited) == 0 {
		return nil, false
	}
	m := e.unsolicited[0]
	e.unsolicited[0] = nil
	e.unsolicited = e.unsolicited[1:]
	return m, true
}

// DrainUnsolicited pops every queued unsolicited message in arrival order.
func (e *Engine) DrainUnsolicited() []*Message {
	out := e.unsolicited
	e.unsolicited = nil
	return out
}

func (e *Engine) Stats() Stats {
	return Stats{
		Issued:        int64(e.nextID),
		ResponsesRead: e.responsesRead,
		Outstanding:   len(e.outstanding),
		Abandoned:     e.abandoned,
		Buffered:      e.acc.Len(),
		Unsolicited:   len(e.unsolicited),
	}
}

// Await polls id up to retries times, sleeping interval between polls.
// It is only meant for the handshake and for shutdown.
func (e *Engine) Await(id RequestID, retries int, interval time.Duration) (*Response, error) {
	for i := 0; i < retries; i++ {
		r, ok, err := e.PollResponse(id)
		if err != nil {
			return nil, err
		}
		if ok {
			return r, nil
		}
		time.Sleep(interval)
	}
	return nil, ErrHandshakeTimeout
}

// Initialize performs the initialize handshake and sends initialized.
func (e *Engine) Initialize(rootURI protocol.DocumentURI, retries int, interval time.Duration) (*InitializeResult, error) {
	id, err := e.WriteRequest(MethodInitialize, &initializeParams{
		ProcessID:    os.Getpid(),
		RootURI:      rootURI,
		ClientInfo:   clientInfo{Name: "elide"},
		Capabilities: clientCapabilities,
	})
	if err != nil {
		return nil, err
	}
	r, err := e.Await(id, retries, interval)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	res, err := DecodeInitialize(r)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	if err := e.WriteNotification(MethodInitialized, struct{}{}); err != nil {
		return nil, err
	}
	if res != nil && res.ServerInfo != nil {
		e.log.Info("language server initialized",
			zap.String("server", res.ServerInfo.Name), zap.String("version", res.ServerInfo.Version))
	}
	return res, nil
}

// Shutdown asks the server to shut down and then to exit.
func (e *Engine) Shutdown(retries int, interval time.Duration) error {
	id, err := e.WriteRequest(MethodShutdown, nil)
	if err != nil {
		return err
	}
	if _, err := e.Await(id, retries, interval); err != nil && !errors.Is(err, ErrServerExited) {
		e.log.Warn("shutdown not acknowledged", zap.Error(err))
	}
	return e.WriteNotification(MethodExit, nil)
}

// Close releases the channel if it can be closed.
func (e *Engine) Close() error {
	if c, ok := e.ch.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
