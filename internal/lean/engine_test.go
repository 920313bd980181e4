package lean_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/bollu/elide-sub000/internal/lean"
	"github.com/bollu/elide-sub000/internal/lean/leantest"
)

func mustRequest(t *testing.T, e *lean.Engine, method string) lean.RequestID {
	t.Helper()
	id, err := e.WriteRequest(method, map[string]int{"n": 1})
	if err != nil {
		t.Fatalf("WriteRequest(%s): %v", method, err)
	}
	return id
}

func resultString(t *testing.T, r *lean.Response) string {
	t.Helper()
	var s string
	if err := json.Unmarshal(r.Result, &s); err != nil {
		t.Fatalf("result %s: %v", r.Result, err)
	}
	return s
}

func TestRequestIDsStartAtZeroAndNeverRepeat(t *testing.T) {
	srv := leantest.New()
	e := lean.NewEngine(srv)

	id0 := mustRequest(t, e, "a")
	id1 := mustRequest(t, e, "b")
	if id0 != 0 || id1 != 1 {
		t.Fatalf("expected ids 0,1 got %d,%d", id0, id1)
	}

	srv.Respond(id0, "x")
	srv.Respond(id1, "y")
	for _, id := range []lean.RequestID{id0, id1} {
		if _, ok, err := e.PollResponse(id); !ok || err != nil {
			t.Fatalf("poll %d: ok=%v err=%v", id, ok, err)
		}
	}

	if id2 := mustRequest(t, e, "c"); id2 != 2 {
		t.Fatalf("expected id 2 after consuming 0 and 1, got %d", id2)
	}
	if err := e.WriteNotification("n", nil); err != nil {
		t.Fatalf("WriteNotification: %v", err)
	}
	if id3 := mustRequest(t, e, "d"); id3 != 3 {
		t.Fatalf("notification consumed an id: got %d", id3)
	}
}

func TestWireShape(t *testing.T) {
	srv := leantest.New()
	e := lean.NewEngine(srv)
	mustRequest(t, e, "textDocument/hover")
	if err := e.WriteNotification("initialized", struct{}{}); err != nil {
		t.Fatalf("WriteNotification: %v", err)
	}

	msgs := srv.Received("")
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if string(msgs[0].ID) != "0" || msgs[0].Method != "textDocument/hover" {
		t.Fatalf("unexpected request %+v", msgs[0])
	}
	if msgs[1].HasID() {
		t.Fatalf("notification carries id %s", msgs[1].ID)
	}
}

func TestResponsesMatchedByID(t *testing.T) {
	srv := leantest.New()
	e := lean.NewEngine(srv)
	ids := []lean.RequestID{mustRequest(t, e, "a"), mustRequest(t, e, "b"), mustRequest(t, e, "c")}

	srv.Respond(ids[2], "two")
	srv.Respond(ids[0], "zero")
	srv.Respond(ids[1], "one")

	want := []string{"zero", "one", "two"}
	for i, id := range ids {
		r, ok, err := e.PollResponse(id)
		if err != nil || !ok {
			t.Fatalf("poll %d: ok=%v err=%v", id, ok, err)
		}
		if r.ID != id {
			t.Fatalf("poll %d returned response for %d", id, r.ID)
		}
		if got := resultString(t, r); got != want[i] {
			t.Fatalf("poll %d: expected %q, got %q", id, want[i], got)
		}
	}

	st := e.Stats()
	if st.Issued != 3 || st.ResponsesRead != 3 || st.Outstanding != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestPollBeforeArrival(t *testing.T) {
	srv := leantest.New()
	e := lean.NewEngine(srv)
	id := mustRequest(t, e, "a")

	r, ok, err := e.PollResponse(id)
	if r != nil || ok || err != nil {
		t.Fatalf("expected nothing yet, got %v %v %v", r, ok, err)
	}
	st := e.Stats()
	if st.Outstanding != 1 || st.ResponsesRead != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}

	srv.Respond(id, "late")
	if _, ok, err := e.PollResponse(id); !ok || err != nil {
		t.Fatalf("expected response, ok=%v err=%v", ok, err)
	}
}

func TestPollUnknownAndConsumed(t *testing.T) {
	srv := leantest.New()
	e := lean.NewEngine(srv)

	if _, _, err := e.PollResponse(0); !errors.Is(err, lean.ErrUnknownRequest) {
		t.Fatalf("expected ErrUnknownRequest, got %v", err)
	}

	id := mustRequest(t, e, "a")
	srv.Respond(id, "x")
	if _, ok, err := e.PollResponse(id); !ok || err != nil {
		t.Fatalf("poll: ok=%v err=%v", ok, err)
	}
	if _, _, err := e.PollResponse(id); !errors.Is(err, lean.ErrConsumed) {
		t.Fatalf("expected ErrConsumed, got %v", err)
	}
}

func TestUnsolicitedFIFO(t *testing.T) {
	srv := leantest.New()
	e := lean.NewEngine(srv)
	id := mustRequest(t, e, "a")

	srv.Notify("first", nil)
	srv.Respond(id, "x")
	srv.Notify("second", nil)
	// A server request reusing a pending id still carries a method.
	srv.Send(`{"jsonrpc":"2.0","id":0,"method":"window/workDoneProgress/create","params":{}}`)
	// A reply to an id we never issued.
	srv.Send(`{"jsonrpc":"2.0","id":99,"result":null}`)

	if err := e.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	st := e.Stats()
	if st.ResponsesRead != 1 || st.Unsolicited != 4 {
		t.Fatalf("unexpected stats %+v", st)
	}

	m, ok := e.NextUnsolicited()
	if !ok || m.Method != "first" {
		t.Fatalf("expected first, got %+v", m)
	}
	rest := e.DrainUnsolicited()
	if len(rest) != 3 {
		t.Fatalf("expected 3 remaining, got %d", len(rest))
	}
	if rest[0].Method != "second" || rest[1].Method != "window/workDoneProgress/create" || string(rest[2].ID) != "99" {
		t.Fatalf("unexpected order: %q %q %s", rest[0].Method, rest[1].Method, rest[2].ID)
	}
	if _, ok := e.NextUnsolicited(); ok {
		t.Fatalf("queue should be empty")
	}

	if r, ok, err := e.PollResponse(id); !ok || err != nil || resultString(t, r) != "x" {
		t.Fatalf("response lost among pushes: ok=%v err=%v", ok, err)
	}
}

func TestDuplicateResponsePoisons(t *testing.T) {
	srv := leantest.New()
	e := lean.NewEngine(srv)
	id := mustRequest(t, e, "a")

	srv.Respond(id, "x")
	srv.Respond(id, "again")

	err := e.Tick()
	var pe *lean.ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProtocolError, got %v", err)
	}
	if !errors.Is(e.Err(), err) {
		t.Fatalf("engine not poisoned: %v", e.Err())
	}
	if _, werr := e.WriteRequest("b", nil); !errors.As(werr, &pe) {
		t.Fatalf("poisoned engine accepted a request: %v", werr)
	}
}

func TestMalformedFramePoisons(t *testing.T) {
	srv := leantest.New()
	e := lean.NewEngine(srv)
	srv.SendRaw([]byte("X-Nothing: 1\r\n\r\n{}"))

	var pe *lean.ProtocolError
	if err := e.Tick(); !errors.As(err, &pe) {
		t.Fatalf("expected *ProtocolError, got %v", err)
	}
	if err := e.Tick(); !errors.As(err, &pe) {
		t.Fatalf("second tick should repeat the poison, got %v", err)
	}
}

func TestShortWritesAreCompleted(t *testing.T) {
	srv := leantest.New()
	srv.MaxWrite = 3
	e := lean.NewEngine(srv)

	id := mustRequest(t, e, "textDocument/hover")
	if err := e.WriteNotification("textDocument/didOpen", map[string]string{"text": "théorème"}); err != nil {
		t.Fatalf("WriteNotification: %v", err)
	}

	msgs := srv.Received("")
	if len(msgs) != 2 {
		t.Fatalf("expected 2 complete messages, got %d", len(msgs))
	}
	if msgs[0].Method != "textDocument/hover" || string(msgs[0].ID) != "0" || id != 0 {
		t.Fatalf("unexpected request %+v", msgs[0])
	}
}

func TestReplyToServerRequest(t *testing.T) {
	srv := leantest.New()
	e := lean.NewEngine(srv)
	if err := e.Reply(json.RawMessage(`"tok-1"`), nil); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	msgs := srv.Received("")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if string(msgs[0].ID) != `"tok-1"` || string(msgs[0].Result) != "null" {
		t.Fatalf("unexpected reply id=%s result=%s", msgs[0].ID, msgs[0].Result)
	}
}

func TestServerExit(t *testing.T) {
	srv := leantest.New()
	e := lean.NewEngine(srv)
	answered := mustRequest(t, e, "a")
	pending := mustRequest(t, e, "b")
	srv.Respond(answered, "x")
	srv.Hangup()

	if r, ok, err := e.PollResponse(answered); !ok || err != nil || resultString(t, r) != "x" {
		t.Fatalf("answer before exit lost: ok=%v err=%v", ok, err)
	}
	if _, _, err := e.PollResponse(pending); !errors.Is(err, lean.ErrServerExited) {
		t.Fatalf("expected ErrServerExited, got %v", err)
	}
}

func TestInitializeHandshake(t *testing.T) {
	srv := leantest.New()
	e := lean.NewEngine(srv)

	res, err := e.Initialize("file:///tmp/proj", 10, time.Millisecond)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if res == nil || res.ServerInfo == nil || res.ServerInfo.Name != "leantest" {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, ok := srv.Last(lean.MethodInitialized); !ok {
		t.Fatalf("initialized notification not sent")
	}
	req, _ := srv.Last(lean.MethodInitialize)
	var p struct {
		RootURI string `json:"rootUri"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil || p.RootURI != "file:///tmp/proj" {
		t.Fatalf("rootUri = %q (%v)", p.RootURI, err)
	}
}

func TestInitializeTimeout(t *testing.T) {
	srv := leantest.New()
	srv.Handle(lean.MethodInitialize, nil)
	e := lean.NewEngine(srv)
	if _, err := e.Initialize("file:///tmp", 3, time.Millisecond); !errors.Is(err, lean.ErrHandshakeTimeout) {
		t.Fatalf("expected ErrHandshakeTimeout, got %v", err)
	}
	if _, ok := srv.Last(lean.MethodInitialized); ok {
		t.Fatalf("initialized sent without a reply")
	}
}

func TestShutdownSendsExit(t *testing.T) {
	srv := leantest.New()
	e := lean.NewEngine(srv)
	if err := e.Shutdown(5, time.Millisecond); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, ok := srv.Last(lean.MethodExit); !ok {
		t.Fatalf("exit not sent")
	}
	if err := e.Close(); err != nil || !srv.Closed() {
		t.Fatalf("Close: %v closed=%v", err, srv.Closed())
	}
}

func TestFailedWriteCountsAsAbandoned(t *testing.T) {
	srv := leantest.New()
	e := lean.NewEngine(srv)
	answered := mustRequest(t, e, "a")
	srv.Respond(answered, "x")
	if _, ok, err := e.PollResponse(answered); !ok || err != nil {
		t.Fatalf("poll: ok=%v err=%v", ok, err)
	}

	_ = srv.Close()
	if _, err := e.WriteRequest("b", nil); err == nil {
		t.Fatal("expected write to a closed server to fail")
	}
	st := e.Stats()
	if st.Issued != 2 || st.ResponsesRead != 1 || st.Outstanding != 0 || st.Abandoned != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if st.Issued != st.ResponsesRead+int64(st.Outstanding)+st.Abandoned {
		t.Fatalf("counters do not add up: %+v", st)
	}
}
