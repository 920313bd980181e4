package lean

// messages.go: typed views of the messages exchanged with the Lean server.

import (
	"encoding/json"
	"fmt"

	"go.lsp.dev/protocol"
)

// Methods sent or received by the client.
const (
	MethodInitialize         = "initialize"
	MethodInitialized        = "initialized"
	MethodShutdown           = "shutdown"
	MethodExit               = "exit"
	MethodDidOpen            = "textDocument/didOpen"
	MethodDidChange          = "textDocument/didChange"
	MethodDidClose           = "textDocument/didClose"
	MethodDidSave            = "textDocument/didSave"
	MethodHover              = "textDocument/hover"
	MethodDefinition         = "textDocument/definition"
	MethodTypeDefinition     = "textDocument/typeDefinition"
	MethodCompletion         = "textDocument/completion"
	MethodPublishDiagnostics = "textDocument/publishDiagnostics"
	MethodPlainGoal          = "$/lean/plainGoal"
	MethodPlainTermGoal      = "$/lean/plainTermGoal"
	MethodFileProgress       = "$/lean/fileProgress"
)

// Outgoing params.

type initializeParams struct {
	ProcessID    int                  `json:"processId"`
	RootURI      protocol.DocumentURI `json:"rootUri"`
	ClientInfo   clientInfo           `json:"clientInfo"`
	Capabilities json.RawMessage      `json:"capabilities"`
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// The client only asks for what the editor displays.
var clientCapabilities = json.RawMessage(`{
	"textDocument": {
		"publishDiagnostics": {"versionSupport": true},
		"hover": {"contentFormat": ["markdown", "plaintext"]},
		"definition": {"linkSupport": true},
		"typeDefinition": {"linkSupport": true},
		"completion": {"completionItem": {"snippetSupport": false}}
	}
}`)

type textDocumentItem struct {
	URI        protocol.DocumentURI `json:"uri"`
	LanguageID string               `json:"languageId"`
	Version    int32                `json:"version"`
	Text       string               `json:"text"`
}

type versionedTextDocumentIdentifier struct {
	URI     protocol.DocumentURI `json:"uri"`
	Version int32                `json:"version"`
}

type didOpenParams struct {
	TextDocument textDocumentItem `json:"textDocument"`
}

// fullTextChange replaces the whole document.
type fullTextChange struct {
	Text string `json:"text"`
}

type didChangeParams struct {
	TextDocument   versionedTextDocumentIdentifier `json:"textDocument"`
	ContentChanges []fullTextChange                `json:"contentChanges"`
}

type didSaveParams struct {
	TextDocument protocol.TextDocumentIdentifier `json:"textDocument"`
	Text         string                          `json:"text,omitempty"`
}

// DidOpenParams builds textDocument/didOpen params carrying the full text.
func DidOpenParams(u protocol.DocumentURI, languageID string, version int32, text string) any {
	return didOpenParams{
		TextDocument: textDocumentItem{URI: u, LanguageID: languageID, Version: version, Text: text},
	}
}

// DidChangeParams builds a full-replacement textDocument/didChange.
func DidChangeParams(u protocol.DocumentURI, version int32, text string) any {
	return didChangeParams{
		TextDocument:   versionedTextDocumentIdentifier{URI: u, Version: version},
		ContentChanges: []fullTextChange{{Text: text}},
	}
}

func DidCloseParams(u protocol.DocumentURI) any {
	return protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: u},
	}
}

func DidSaveParams(u protocol.DocumentURI) any {
	return didSaveParams{TextDocument: protocol.TextDocumentIdentifier{URI: u}}
}

// PositionParams addresses a (line, UTF-16 column) in a document.
func PositionParams(u protocol.DocumentURI, line, character int) any {
	return protocol.TextDocumentPositionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: u},
		Position:     protocol.Position{Line: uint32(line), Character: uint32(character)},
	}
}

// Pushes.

// Push is a decoded unsolicited message.
type Push interface {
	PushMethod() string
}

// DiagnosticsPush is textDocument/publishDiagnostics. Version is nil when
// the server did not say which document version it checked.
type DiagnosticsPush struct {
	URI         protocol.DocumentURI  `json:"uri"`
	Version     *int32                `json:"version,omitempty"`
	Diagnostics []protocol.Diagnostic `json:"diagnostics"`
}

func (*DiagnosticsPush) PushMethod() string { return MethodPublishDiagnostics }

// LineRange is an inclusive range of rows.
type LineRange struct {
	StartRow int
	EndRow   int
}

// ProgressPush is $/lean/fileProgress. A nil Processing means the server
// finished elaborating the file.
type ProgressPush struct {
	URI        protocol.DocumentURI
	Version    int32
	Processing *LineRange
}

func (*ProgressPush) PushMethod() string { return MethodFileProgress }

// ServerRequest is a request initiated by the server; it expects a reply.
type ServerRequest struct {
	ID     json.RawMessage
	Method string
	Params json.RawMessage
}

func (r *ServerRequest) PushMethod() string { return r.Method }

// OtherPush is any unsolicited message without a dedicated decoder,
// including replies to ids the engine never issued.
type OtherPush struct {
	Method string
	Params json.RawMessage
	ID     json.RawMessage
}

func (o *OtherPush) PushMethod() string { return o.Method }

type fileProgressParams struct {
	TextDocument versionedTextDocumentIdentifier `json:"textDocument"`
	Processing   []struct {
		Range protocol.Range `json:"range"`
		Kind  int            `json:"kind"`
	} `json:"processing"`
}

// DecodePush turns an unsolicited message into its typed variant.
func DecodePush(m *Message) (Push, error) {
	if m.Method != "" && m.HasID() {
		return &ServerRequest{ID: m.ID, Method: m.Method, Params: m.Params}, nil
	}
	switch m.Method {
	case MethodPublishDiagnostics:
		var p DiagnosticsPush
		if err := json.Unmarshal(m.Params, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", m.Method, err)
		}
		return &p, nil
	case MethodFileProgress:
		var raw fileProgressParams
		if err := json.Unmarshal(m.Params, &raw); err != nil {
			return nil, fmt.Errorf("decode %s: %w", m.Method, err)
		}
		p := &ProgressPush{URI: raw.TextDocument.URI, Version: raw.TextDocument.Version}
		if len(raw.Processing) > 0 {
			r := raw.Processing[0].Range
			p.Processing = &LineRange{StartRow: int(r.Start.Line), EndRow: int(r.End.Line)}
		}
		return p, nil
	}
	return &OtherPush{Method: m.Method, Params: m.Params, ID: m.ID}, nil
}

// Responses.

// InitializeResult keeps the server's capabilities undecoded; the client
// only logs them.
type InitializeResult struct {
	Capabilities json.RawMessage `json:"capabilities"`
	ServerInfo   *struct {
		Name    string `json:"name"`
		Version string `json:"version,omitempty"`
	} `json:"serverInfo,omitempty"`
}

// PlainGoal is the reply to $/lean/plainGoal.
type PlainGoal struct {
	Rendered string   `json:"rendered"`
	Goals    []string `json:"goals"`
}

// TermGoal is the reply to $/lean/plainTermGoal.
type TermGoal struct {
	Goal  string         `json:"goal"`
	Range protocol.Range `json:"range"`
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// decodeResult decodes a successful reply. A null result yields nil.
func decodeResult[T any](r *Response) (*T, error) {
	if r.Error != nil {
		return nil, r.Error
	}
	if isNull(r.Result) {
		return nil, nil
	}
	v := new(T)
	if err := json.Unmarshal(r.Result, v); err != nil {
		return nil, fmt.Errorf("decode %T: %w", v, err)
	}
	return v, nil
}

func DecodeInitialize(r *Response) (*InitializeResult, error) {
	return decodeResult[InitializeResult](r)
}

func DecodePlainGoal(r *Response) (*PlainGoal, error) {
	return decodeResult[PlainGoal](r)
}

func DecodeTermGoal(r *Response) (*TermGoal, error) {
	return decodeResult[TermGoal](r)
}

// DecodeHover accepts MarkupContent and bare string contents.
func DecodeHover(r *Response) (*protocol.Hover, error) {
	h, err := decodeResult[protocol.Hover](r)
	if err == nil {
		return h, nil
	}
	var legacy struct {
		Contents string          `json:"contents"`
		Range    *protocol.Range `json:"range,omitempty"`
	}
	if json.Unmarshal(r.Result, &legacy) != nil {
		return nil, err
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{Kind: protocol.PlainText, Value: legacy.Contents},
		Range:    legacy.Range,
	}, nil
}

// DecodeLocations accepts a Location, a Location array, or a LocationLink
// array, and normalises them to Locations.
func DecodeLocations(r *Response) ([]protocol.Location, error) {
	if r.Error != nil {
		return nil, r.Error
	}
	if isNull(r.Result) {
		return nil, nil
	}
	if len(r.Result) > 0 && r.Result[0] == '{' {
		var loc protocol.Location
		if err := json.Unmarshal(r.Result, &loc); err != nil {
			return nil, fmt.Errorf("decode location: %w", err)
		}
		return []protocol.Location{loc}, nil
	}

	var peek []map[string]json.RawMessage
	if err := json.Unmarshal(r.Result, &peek); err != nil {
		return nil, fmt.Errorf("decode locations: %w", err)
	}
	if len(peek) > 0 {
		if _, isLink := peek[0]["targetUri"]; isLink {
			var links []protocol.LocationLink
			if err := json.Unmarshal(r.Result, &links); err != nil {
				return nil, fmt.Errorf("decode location links: %w", err)
			}
			locs := make([]protocol.Location, 0, len(links))
			for _, l := range links {
				locs = append(locs, protocol.Location{URI: l.TargetURI, Range: l.TargetSelectionRange})
			}
			return locs, nil
		}
	}
	var locs []protocol.Location
	if err := json.Unmarshal(r.Result, &locs); err != nil {
		return nil, fmt.Errorf("decode locations: %w", err)
	}
	return locs, nil
}

// DecodeCompletion accepts a CompletionList or a bare item array.
func DecodeCompletion(r *Response) (*protocol.CompletionList, error) {
	if r.Error != nil {
		return nil, r.Error
	}
	if isNull(r.Result) {
		return nil, nil
	}
	if r.Result[0] == '[' {
		var items []protocol.CompletionItem
		if err := json.Unmarshal(r.Result, &items); err != nil {
			return nil, fmt.Errorf("decode completion items: %w", err)
		}
		return &protocol.CompletionList{Items: items}, nil
	}
	return decodeResult[protocol.CompletionList](r)
}
