// Package session holds one open document: its rows, cursor, undo history
// and the language server engine that checks it.
//
// A Session is driven from a single goroutine. Edits only touch memory and
// set two dirty flags; Tick pushes the text to the server, applies what
// the server sent back and answers pending info-view requests.
package session

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.lsp.dev/protocol"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/bollu/elide-sub000/internal/config"
	"github.com/bollu/elide-sub000/internal/history"
	"github.com/bollu/elide-sub000/internal/lean"
	"github.com/bollu/elide-sub000/internal/text"
)

// Snapshot is the undoable part of a session.
type Snapshot struct {
	Rows      []*text.Buffer
	Cursor    text.Cursor
	ScrollRow int
	ScrollCol int
}

// Equal compares rows byte for byte, then cursor and scroll.
func (s Snapshot) Equal(o Snapshot) bool {
	if s.Cursor != o.Cursor || s.ScrollRow != o.ScrollRow || s.ScrollCol != o.ScrollCol {
		return false
	}
	return rowsEqual(s.Rows, o.Rows)
}

func rowsEqual(a, b []*text.Buffer) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func cloneRows(rows []*text.Buffer) []*text.Buffer {
	out := make([]*text.Buffer, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}

// Diagnostic is a server diagnostic with codepoint columns.
type Diagnostic struct {
	Start    text.Cursor
	End      text.Cursor
	Severity protocol.DiagnosticSeverity
	Source   string
	Message  string
}

type settings struct {
	log          *zap.Logger
	now          func() time.Time
	languageID   string
	debounce     time.Duration
	historyLimit int
	retries      int
	interval     time.Duration
}

// Option configures a Session.
type Option func(*settings)

func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.log = l }
}

// WithClock replaces time.Now for checkpoint debouncing.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithConfig applies the editor and server settings of cfg.
func WithConfig(cfg config.Config) Option {
	return func(s *settings) {
		s.languageID = cfg.Server.LanguageID
		s.debounce = cfg.Editor.CheckpointDebounce.Duration
		s.historyLimit = cfg.Editor.HistoryLimit
		s.retries = cfg.Server.HandshakeRetries
		s.interval = cfg.Server.HandshakeInterval.Duration
	}
}

func newSettings(opts []Option) settings {
	def := config.Default()
	st := settings{log: zap.NewNop(), now: time.Now}
	WithConfig(def)(&st)
	for _, o := range opts {
		o(&st)
	}
	return st
}

// Session is one open document.
type Session struct {
	id     uuid.UUID
	path   string
	uri    protocol.DocumentURI
	engine *lean.Engine
	log    *zap.Logger
	st     settings

	rows      []*text.Buffer
	cursor    text.Cursor
	scrollRow int
	scrollCol int
	hist      *history.History[Snapshot]

	version   int32
	needsSave bool
	needsSync bool
	synced    bool

	diagnostics  []Diagnostic
	progress     *lean.LineRange
	progressDone bool

	info infoState
}

// Open reads path into a new session. A missing file opens as an empty
// document that will be created on the first save.
func Open(path string, engine *lean.Engine, opts ...Option) (*Session, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return newSession(path, []*text.Buffer{text.New()}, engine, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var rows []*text.Buffer
	r := bufio.NewReader(f)
	for {
		line, err := text.ReadLine(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s line %d: %w", path, len(rows)+1, err)
		}
		rows = append(rows, line)
	}
	if len(rows) == 0 {
		rows = append(rows, text.New())
	}
	return newSession(path, rows, engine, opts)
}

// New creates a session over in-memory content. The text is split on
// newlines; it is not written to path until saved.
func New(path, content string, engine *lean.Engine, opts ...Option) (*Session, error) {
	var rows []*text.Buffer
	for _, line := range strings.Split(content, "\n") {
		rows = append(rows, text.FromString(strings.TrimSuffix(line, "\r")))
	}
	s, err := newSession(path, rows, engine, opts)
	if err != nil {
		return nil, err
	}
	s.needsSave = true
	return s, nil
}

func newSession(path string, rows []*text.Buffer, engine *lean.Engine, opts []Option) (*Session, error) {
	u, err := lean.FileURI(path)
	if err != nil {
		return nil, err
	}
	st := newSettings(opts)
	s := &Session{
		id:        uuid.New(),
		path:      path,
		uri:       u,
		engine:    engine,
		st:        st,
		rows:      rows,
		needsSync: true,
		info:      newInfoState(),
	}
	s.log = st.log.With(zap.Stringer("session", s.id), zap.String("path", path))
	s.hist = history.New(s.snapshot, s.restore, Snapshot.Equal,
		history.WithDebounce(st.debounce),
		history.WithClock(st.now),
		history.WithLimit(st.historyLimit))
	s.log.Debug("session opened", zap.Int("rows", len(rows)))
	return s, nil
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{
		Rows:      cloneRows(s.rows),
		Cursor:    s.cursor,
		ScrollRow: s.scrollRow,
		ScrollCol: s.scrollCol,
	}
}

func (s *Session) restore(snap Snapshot) {
	if !rowsEqual(s.rows, snap.Rows) {
		s.needsSave = true
		s.needsSync = true
	}
	s.rows = cloneRows(snap.Rows)
	s.cursor = snap.Cursor.Clamp(s.rows)
	s.scrollRow = snap.ScrollRow
	s.scrollCol = snap.ScrollCol
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) Path() string { return s.path }

func (s *Session) URI() protocol.DocumentURI { return s.uri }

func (s *Session) Engine() *lean.Engine { return s.engine }

// Version is the version sent with the last didOpen or didChange.
func (s *Session) Version() int32 { return s.version }

func (s *Session) NeedsSave() bool { return s.needsSave }

func (s *Session) NeedsSync() bool { return s.needsSync || !s.synced }

func (s *Session) Cursor() text.Cursor { return s.cursor }

// Scroll returns the first visible row and column.
func (s *Session) Scroll() (row, col int) { return s.scrollRow, s.scrollCol }

// CursorCell returns the terminal cell the cursor sits in on its row, and
// whether that row holds characters that are not one cell wide. It is
// 0, false on the virtual row.
func (s *Session) CursorCell() (cell int, wide bool) {
	if s.cursor.Row >= len(s.rows) {
		return 0, false
	}
	row := s.rows[s.cursor.Row]
	n := row.NCodepoints()
	return row.DisplayWidth(s.cursor.Col), row.DisplayWidth(n) != n
}

// Rows returns a copy of the document lines.
func (s *Session) Rows() []string {
	out := make([]string, len(s.rows))
	for i, r := range s.rows {
		out[i] = r.String()
	}
	return out
}

// Text joins the rows with "\n".
func (s *Session) Text() string {
	var sb strings.Builder
	for i, r := range s.rows {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.Write(r.Bytes())
	}
	return sb.String()
}

// Diagnostics returns the diagnostics for the current version.
func (s *Session) Diagnostics() []Diagnostic {
	return append([]Diagnostic(nil), s.diagnostics...)
}

// Progress returns the rows the server is still elaborating, or nil.
func (s *Session) Progress() *lean.LineRange { return s.progress }

// Elaborated reports whether the server finished the current version.
func (s *Session) Elaborated() bool {
	return s.synced && !s.needsSync && s.progressDone
}

// History exposes undo depths for display.
func (s *Session) History() (undo, redo int) {
	return s.hist.UndoDepth(), s.hist.RedoDepth()
}

// Checkpoint records the current state as an undo step.
func (s *Session) Checkpoint() bool {
	return s.hist.Checkpoint()
}

// Undo restores the previous snapshot.
func (s *Session) Undo() bool {
	return s.hist.Undo()
}

// Redo re-applies the last undone snapshot.
func (s *Session) Redo() bool {
	return s.hist.Redo()
}

// SyncProtocolIfDirty sends the full text to the server when it changed
// since the last sync. The first sync is a didOpen. It leaves the save
// flag alone.
func (s *Session) SyncProtocolIfDirty() (bool, error) {
	if s.synced && !s.needsSync {
		return false, nil
	}
	body := s.Text()
	s.version++
	var err error
	if !s.synced {
		err = s.engine.WriteNotification(lean.MethodDidOpen,
			lean.DidOpenParams(s.uri, s.st.languageID, s.version, body))
	} else {
		err = s.engine.WriteNotification(lean.MethodDidChange,
			lean.DidChangeParams(s.uri, s.version, body))
	}
	if err != nil {
		return false, fmt.Errorf("sync version %d: %w", s.version, err)
	}
	s.synced = true
	s.needsSync = false
	s.progressDone = false
	s.log.Debug("synced", zap.Int32("version", s.version), zap.Int("bytes", len(body)))
	return true, nil
}

// SaveIfDirty rewrites the file when the text changed since the last
// save. A failed save keeps the flag set so it can be retried. It leaves
// the protocol flag alone.
func (s *Session) SaveIfDirty() (bool, error) {
	if !s.needsSave {
		return false, nil
	}
	body := []byte(s.Text())
	if err := writeFile(s.path, body); err != nil {
		s.log.Warn("save failed", zap.Error(err))
		return false, fmt.Errorf("save %s: %w", s.path, err)
	}
	s.needsSave = false
	s.log.Info("saved", zap.Int("bytes", len(body)))
	if s.synced {
		if err := s.engine.WriteNotification(lean.MethodDidSave, lean.DidSaveParams(s.uri)); err != nil {
			return true, err
		}
	}
	return true, nil
}

func writeFile(path string, body []byte) (err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, f.Close()) }()
	if _, err := f.Write(body); err != nil {
		return err
	}
	return f.Truncate(int64(len(body)))
}

// Tick runs one round of protocol work: read from the server, apply
// pushes, collect info-view replies, then sync pending edits.
func (s *Session) Tick() error {
	if err := s.engine.Tick(); err != nil {
		return err
	}
	for _, m := range s.engine.DrainUnsolicited() {
		if err := s.handle(m); err != nil {
			return err
		}
	}
	if err := s.pollInfo(); err != nil {
		return err
	}
	_, err := s.SyncProtocolIfDirty()
	return err
}

func (s *Session) handle(m *lean.Message) error {
	push, err := lean.DecodePush(m)
	if err != nil {
		s.log.Warn("dropping undecodable push", zap.String("method", m.Method), zap.Error(err))
		return nil
	}
	switch p := push.(type) {
	case *lean.DiagnosticsPush:
		s.applyDiagnostics(p)
	case *lean.ProgressPush:
		s.applyProgress(p)
	case *lean.ServerRequest:
		s.log.Debug("answering server request", zap.String("method", p.Method))
		return s.engine.Reply(p.ID, nil)
	default:
		s.log.Debug("ignoring push", zap.String("method", push.PushMethod()))
	}
	return nil
}

func (s *Session) applyDiagnostics(p *lean.DiagnosticsPush) {
	if p.URI != s.uri {
		return
	}
	if p.Version != nil && *p.Version != s.version {
		s.log.Debug("stale diagnostics",
			zap.Int32("got", *p.Version), zap.Int32("current", s.version))
		return
	}
	out := make([]Diagnostic, 0, len(p.Diagnostics))
	for _, d := range p.Diagnostics {
		out = append(out, Diagnostic{
			Start:    s.fromProtocol(d.Range.Start),
			End:      s.fromProtocol(d.Range.End),
			Severity: d.Severity,
			Source:   d.Source,
			Message:  d.Message,
		})
	}
	s.diagnostics = out
}

func (s *Session) applyProgress(p *lean.ProgressPush) {
	if p.URI != s.uri || (p.Version != 0 && p.Version != s.version) {
		return
	}
	s.progress = p.Processing
	s.progressDone = p.Processing == nil
}

// fromProtocol converts a (line, UTF-16 unit) position to a cursor.
func (s *Session) fromProtocol(p protocol.Position) text.Cursor {
	row := int(p.Line)
	if row >= len(s.rows) {
		return text.Cursor{Row: len(s.rows)}
	}
	return text.Cursor{Row: row, Col: s.rows[row].CodepointFromUTF16(int(p.Character))}
}

// toProtocol converts a cursor to a (line, UTF-16 unit) position.
func (s *Session) toProtocol(c text.Cursor) (line, character int) {
	if c.Row >= len(s.rows) {
		return c.Row, 0
	}
	return c.Row, s.rows[c.Row].UTF16Offset(c.Col)
}

// Close tells the server the document is gone, shuts the server down and
// releases the channel.
func (s *Session) Close() error {
	var err error
	if s.synced {
		err = s.engine.WriteNotification(lean.MethodDidClose, lean.DidCloseParams(s.uri))
	}
	if serr := s.engine.Shutdown(s.st.retries, s.st.interval); serr != nil {
		err = multierr.Append(err, serr)
	}
	err = multierr.Append(err, s.engine.Close())
	s.log.Debug("session closed", zap.Error(err))
	return err
}
