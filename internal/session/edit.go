package session

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bollu/elide-sub000/internal/text"
)

// beginEdit anchors history before a content change. Editing after an
// undo forks history, so it always checkpoints then.
func (s *Session) beginEdit() {
	if s.hist.Browsing() {
		s.hist.Checkpoint()
		return
	}
	s.hist.CheckpointDebounced()
}

func (s *Session) markEdited() {
	s.needsSave = true
	s.needsSync = true
}

// ensureRow turns the virtual row past the end into a real empty row.
func (s *Session) ensureRow() {
	if s.cursor.Row == len(s.rows) {
		s.rows = append(s.rows, text.New())
		s.cursor.Col = 0
	}
}

func (s *Session) insertRow(at int, b *text.Buffer) {
	s.rows = append(s.rows, nil)
	copy(s.rows[at+1:], s.rows[at:])
	s.rows[at] = b
}

func (s *Session) removeRow(at int) {
	copy(s.rows[at:], s.rows[at+1:])
	s.rows[len(s.rows)-1] = nil
	s.rows = s.rows[:len(s.rows)-1]
}

// InsertCodepoint inserts the first codepoint of cp at the cursor.
func (s *Session) InsertCodepoint(cp []byte) {
	s.beginEdit()
	s.insertCodepoint(cp)
	s.markEdited()
}

func (s *Session) insertCodepoint(cp []byte) {
	s.ensureRow()
	s.rows[s.cursor.Row].InsertCodepointBefore(s.cursor.Col, cp)
	s.cursor.Col++
}

// InsertText inserts s at the cursor. A "\n" splits the row without
// copying indentation; "\r" is dropped.
func (s *Session) InsertText(str string) {
	if !utf8.ValidString(str) {
		panic(fmt.Sprintf("session: InsertText: invalid UTF-8 %q", str))
	}
	if str == "" {
		return
	}
	s.beginEdit()
	var buf [utf8.UTFMax]byte
	for _, r := range str {
		switch r {
		case '\r':
		case '\n':
			s.splitRow(false)
		default:
			n := utf8.EncodeRune(buf[:], r)
			s.insertCodepoint(buf[:n])
		}
	}
	s.markEdited()
}

// InsertNewline splits the row at the cursor. The left part loses its
// trailing spaces, the right part loses its leading spaces and gets the
// original row's indentation, and the cursor lands after that indentation.
func (s *Session) InsertNewline() {
	s.beginEdit()
	s.splitRow(true)
	s.markEdited()
}

func (s *Session) splitRow(indent bool) {
	if s.cursor.Row == len(s.rows) {
		// Commit the virtual row and move onto the next one.
		s.rows = append(s.rows, text.New())
		s.cursor = text.Cursor{Row: len(s.rows)}
		return
	}
	row := s.rows[s.cursor.Row]
	n := row.LeadingSpaces()
	tail := row.SplitAt(s.cursor.Col)
	col := 0
	if indent {
		row.TrimTrailingSpaces()
		tail.TrimLeadingSpaces()
		next := text.FromString(strings.Repeat(" ", n))
		next.AppendBuffer(tail)
		tail = next
		col = n
	}
	s.insertRow(s.cursor.Row+1, tail)
	s.cursor = text.Cursor{Row: s.cursor.Row + 1, Col: col}
}

// Backspace deletes the codepoint before the cursor, joining with the
// previous row at column 0. It reports whether the text changed.
func (s *Session) Backspace() bool {
	c := s.cursor
	switch {
	case c.Row == len(s.rows):
		if c.Row > 0 {
			s.cursor = text.Cursor{Row: c.Row - 1, Col: s.rows[c.Row-1].NCodepoints()}
		}
		return false
	case c.Col > 0:
		s.beginEdit()
		s.rows[c.Row].DeleteCodepointAt(c.Col - 1)
		s.cursor.Col--
	case c.Row > 0:
		s.beginEdit()
		prev := s.rows[c.Row-1]
		col := prev.NCodepoints()
		prev.AppendBuffer(s.rows[c.Row])
		s.removeRow(c.Row)
		s.cursor = text.Cursor{Row: c.Row - 1, Col: col}
	default:
		return false
	}
	s.markEdited()
	return true
}

// DeleteForward deletes the codepoint under the cursor, joining the next
// row at the end of a line. It reports whether the text changed.
func (s *Session) DeleteForward() bool {
	c := s.cursor
	if c.Row >= len(s.rows) {
		return false
	}
	row := s.rows[c.Row]
	switch {
	case c.Col < row.NCodepoints():
		s.beginEdit()
		row.DeleteCodepointAt(c.Col)
	case c.Row+1 < len(s.rows):
		s.beginEdit()
		row.AppendBuffer(s.rows[c.Row+1])
		s.removeRow(c.Row + 1)
	default:
		return false
	}
	s.markEdited()
	return true
}

func (s *Session) rowLen(row int) int {
	if row >= len(s.rows) {
		return 0
	}
	return s.rows[row].NCodepoints()
}

func (s *Session) MoveLeft() {
	switch {
	case s.cursor.Col > 0:
		s.cursor.Col--
	case s.cursor.Row > 0:
		s.cursor.Row--
		s.cursor.Col = s.rowLen(s.cursor.Row)
	}
}

func (s *Session) MoveRight() {
	if s.cursor.Row >= len(s.rows) {
		return
	}
	if s.cursor.Col < s.rowLen(s.cursor.Row) {
		s.cursor.Col++
		return
	}
	s.cursor = text.Cursor{Row: s.cursor.Row + 1}
}

func (s *Session) MoveUp() {
	if s.cursor.Row > 0 {
		s.cursor = text.Cursor{Row: s.cursor.Row - 1, Col: s.cursor.Col}.Clamp(s.rows)
	}
}

func (s *Session) MoveDown() {
	if s.cursor.Row < len(s.rows) {
		s.cursor = text.Cursor{Row: s.cursor.Row + 1, Col: s.cursor.Col}.Clamp(s.rows)
	}
}

func (s *Session) MoveHome() { s.cursor.Col = 0 }

func (s *Session) MoveEnd() { s.cursor.Col = s.rowLen(s.cursor.Row) }

// SetCursor moves the cursor, clamping it into the document.
func (s *Session) SetCursor(c text.Cursor) {
	s.cursor = c.Clamp(s.rows)
}

// SetScroll sets the first visible row and column.
func (s *Session) SetScroll(row, col int) {
	s.scrollRow = max(row, 0)
	s.scrollCol = max(col, 0)
}
