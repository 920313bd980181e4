package lean

import (
	"encoding/json"
	"errors"
	"testing"

	"go.lsp.dev/protocol"
)

func TestDecodePushDiagnostics(t *testing.T) {
	m := &Message{
		Method: MethodPublishDiagnostics,
		Params: json.RawMessage(`{"uri":"file:///a.lean","version":4,"diagnostics":[
			{"range":{"start":{"line":1,"character":2},"end":{"line":1,"character":5}},"severity":1,"message":"unknown identifier"}]}`),
	}
	p, err := DecodePush(m)
	if err != nil {
		t.Fatalf("DecodePush: %v", err)
	}
	d, ok := p.(*DiagnosticsPush)
	if !ok {
		t.Fatalf("expected *DiagnosticsPush, got %T", p)
	}
	if d.Version == nil || *d.Version != 4 {
		t.Fatalf("expected version 4, got %v", d.Version)
	}
	if len(d.Diagnostics) != 1 || d.Diagnostics[0].Message != "unknown identifier" {
		t.Fatalf("unexpected diagnostics %+v", d.Diagnostics)
	}
	if d.Diagnostics[0].Severity != protocol.DiagnosticSeverityError {
		t.Fatalf("expected error severity, got %v", d.Diagnostics[0].Severity)
	}
	if d.Diagnostics[0].Range.Start.Character != 2 {
		t.Fatalf("unexpected range %+v", d.Diagnostics[0].Range)
	}
}

func TestDecodePushDiagnosticsWithoutVersion(t *testing.T) {
	m := &Message{
		Method: MethodPublishDiagnostics,
		Params: json.RawMessage(`{"uri":"file:///a.lean","diagnostics":[]}`),
	}
	p, err := DecodePush(m)
	if err != nil {
		t.Fatalf("DecodePush: %v", err)
	}
	if d := p.(*DiagnosticsPush); d.Version != nil || len(d.Diagnostics) != 0 {
		t.Fatalf("unexpected push %+v", d)
	}
}

func TestDecodePushProgress(t *testing.T) {
	busy := &Message{
		Method: MethodFileProgress,
		Params: json.RawMessage(`{"textDocument":{"uri":"file:///a.lean","version":2},
			"processing":[{"range":{"start":{"line":3,"character":0},"end":{"line":9,"character":0}},"kind":1}]}`),
	}
	p, err := DecodePush(busy)
	if err != nil {
		t.Fatalf("DecodePush: %v", err)
	}
	pp := p.(*ProgressPush)
	if pp.Processing == nil || pp.Processing.StartRow != 3 || pp.Processing.EndRow != 9 || pp.Version != 2 {
		t.Fatalf("unexpected progress %+v", pp)
	}

	done := &Message{
		Method: MethodFileProgress,
		Params: json.RawMessage(`{"textDocument":{"uri":"file:///a.lean","version":2},"processing":[]}`),
	}
	p, err = DecodePush(done)
	if err != nil {
		t.Fatalf("DecodePush: %v", err)
	}
	if p.(*ProgressPush).Processing != nil {
		t.Fatalf("expected finished progress")
	}
}

func TestDecodePushServerRequestAndOther(t *testing.T) {
	p, err := DecodePush(&Message{ID: json.RawMessage(`"x"`), Method: "client/registerCapability"})
	if err != nil {
		t.Fatalf("DecodePush: %v", err)
	}
	if r, ok := p.(*ServerRequest); !ok || string(r.ID) != `"x"` {
		t.Fatalf("expected server request, got %#v", p)
	}

	p, err = DecodePush(&Message{Method: "window/logMessage", Params: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatalf("DecodePush: %v", err)
	}
	if p.PushMethod() != "window/logMessage" {
		t.Fatalf("unexpected method %q", p.PushMethod())
	}
	if _, ok := p.(*OtherPush); !ok {
		t.Fatalf("expected *OtherPush, got %T", p)
	}
}

func TestDecodePushBadParams(t *testing.T) {
	if _, err := DecodePush(&Message{Method: MethodPublishDiagnostics, Params: json.RawMessage(`[1]`)}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDecodePlainGoal(t *testing.T) {
	r := &Response{Result: json.RawMessage(`{"rendered":"⊢ 1 = 1","goals":["⊢ 1 = 1"]}`)}
	g, err := DecodePlainGoal(r)
	if err != nil {
		t.Fatalf("DecodePlainGoal: %v", err)
	}
	if g == nil || len(g.Goals) != 1 || g.Goals[0] != "⊢ 1 = 1" {
		t.Fatalf("unexpected goal %+v", g)
	}

	g, err = DecodePlainGoal(&Response{Result: json.RawMessage(`null`)})
	if err != nil || g != nil {
		t.Fatalf("null result: %+v %v", g, err)
	}
}

func TestDecodeRPCError(t *testing.T) {
	r := &Response{Error: &RPCError{Code: CodeContentModified, Message: "content modified"}}
	_, err := DecodeTermGoal(r)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != CodeContentModified {
		t.Fatalf("expected content-modified RPCError, got %v", err)
	}
	if r.Err() == nil {
		t.Fatalf("Err() should report the rpc error")
	}
}

func TestDecodeHover(t *testing.T) {
	h, err := DecodeHover(&Response{Result: json.RawMessage(`{"contents":{"kind":"markdown","value":"**Nat**"}}`)})
	if err != nil {
		t.Fatalf("DecodeHover: %v", err)
	}
	if h.Contents.Value != "**Nat**" || h.Contents.Kind != protocol.Markdown {
		t.Fatalf("unexpected hover %+v", h)
	}

	h, err = DecodeHover(&Response{Result: json.RawMessage(`{"contents":"plain"}`)})
	if err != nil {
		t.Fatalf("DecodeHover legacy: %v", err)
	}
	if h.Contents.Value != "plain" || h.Contents.Kind != protocol.PlainText {
		t.Fatalf("unexpected hover %+v", h)
	}
}

func TestDecodeLocations(t *testing.T) {
	rng := `{"start":{"line":4,"character":1},"end":{"line":4,"character":6}}`
	tests := []struct {
		name   string
		result string
		want   int
	}{
		{"null", `null`, 0},
		{"single", `{"uri":"file:///a.lean","range":` + rng + `}`, 1},
		{"array", `[{"uri":"file:///a.lean","range":` + rng + `},{"uri":"file:///b.lean","range":` + rng + `}]`, 2},
		{"links", `[{"targetUri":"file:///c.lean","targetRange":` + rng + `,"targetSelectionRange":` + rng + `}]`, 1},
		{"empty", `[]`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			locs, err := DecodeLocations(&Response{Result: json.RawMessage(tt.result)})
			if err != nil {
				t.Fatalf("DecodeLocations: %v", err)
			}
			if len(locs) != tt.want {
				t.Fatalf("expected %d locations, got %d", tt.want, len(locs))
			}
			for _, l := range locs {
				if l.URI == "" || l.Range.Start.Line != 4 {
					t.Fatalf("unexpected location %+v", l)
				}
			}
		})
	}
}

func TestDecodeCompletion(t *testing.T) {
	list, err := DecodeCompletion(&Response{Result: json.RawMessage(`[{"label":"Nat.add"},{"label":"Nat.mul"}]`)})
	if err != nil {
		t.Fatalf("DecodeCompletion: %v", err)
	}
	if len(list.Items) != 2 || list.Items[1].Label != "Nat.mul" {
		t.Fatalf("unexpected items %+v", list.Items)
	}

	list, err = DecodeCompletion(&Response{Result: json.RawMessage(`{"isIncomplete":true,"items":[{"label":"simp"}]}`)})
	if err != nil {
		t.Fatalf("DecodeCompletion: %v", err)
	}
	if !list.IsIncomplete || len(list.Items) != 1 {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestDidChangeParamsShape(t *testing.T) {
	body, err := json.Marshal(DidChangeParams("file:///a.lean", 7, "theorem t : True := trivial"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"textDocument":{"uri":"file:///a.lean","version":7},"contentChanges":[{"text":"theorem t : True := trivial"}]}`
	if string(body) != want {
		t.Fatalf("expected %s, got %s", want, body)
	}

	body, err = json.Marshal(DidOpenParams("file:///a.lean", "lean4", 1, "x"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want = `{"textDocument":{"uri":"file:///a.lean","languageId":"lean4","version":1,"text":"x"}}`
	if string(body) != want {
		t.Fatalf("expected %s, got %s", want, body)
	}
}

func TestPositionParamsShape(t *testing.T) {
	body, err := json.Marshal(PositionParams("file:///a.lean", 3, 5))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var p struct {
		TextDocument struct {
			URI string `json:"uri"`
		} `json:"textDocument"`
		Position struct {
			Line      int `json:"line"`
			Character int `json:"character"`
		} `json:"position"`
	}
	if err := json.Unmarshal(body, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.TextDocument.URI != "file:///a.lean" || p.Position.Line != 3 || p.Position.Character != 5 {
		t.Fatalf("unexpected params %s", body)
	}
}
