package text

import "fmt"

// Cursor is a (row, codepoint column) position. Row may equal the number
// of rows, in which case it sits on the virtual row past the last line
// and Col is 0.
type Cursor struct {
	Row int
	Col int
}

func (c Cursor) String() string {
	return fmt.Sprintf("%d:%d", c.Row, c.Col)
}

// Less orders cursors by row, then column.
func (c Cursor) Less(o Cursor) bool {
	if c.Row != o.Row {
		return c.Row < o.Row
	}
	return c.Col < o.Col
}

// Valid reports whether c addresses a position inside rows.
func (c Cursor) Valid(rows []*Buffer) bool {
	if c.Row < 0 || c.Col < 0 || c.Row > len(rows) {
		return false
	}
	if c.Row == len(rows) {
		return c.Col == 0
	}
	return c.Col <= rows[c.Row].NCodepoints()
}

// Clamp returns the nearest valid cursor for rows.
func (c Cursor) Clamp(rows []*Buffer) Cursor {
	if c.Row < 0 {
		c.Row = 0
	}
	if c.Col < 0 {
		c.Col = 0
	}
	if c.Row >= len(rows) {
		return Cursor{Row: len(rows)}
	}
	if n := rows[c.Row].NCodepoints(); c.Col > n {
		c.Col = n
	}
	return c
}
