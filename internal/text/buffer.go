package text

// buffer.go: growable UTF-8 byte buffer addressed by codepoint index.

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

// ErrInvalidUTF8 is returned when a line read from disk is not valid UTF-8.
var ErrInvalidUTF8 = errors.New("invalid UTF-8")

// Buffer is a mutable byte buffer whose API is indexed by codepoint.
// The bytes are always valid UTF-8 and every index passed to a method
// must fall on a codepoint boundary. Out-of-range indices panic; use
// NCodepoints to check preconditions before calling.
type Buffer struct {
	b     []byte
	dirty bool
}

// New returns an empty buffer.
func New() *Buffer {
	return &Buffer{}
}

// FromString returns a buffer holding a copy of s.
func FromString(s string) *Buffer {
	if !utf8.ValidString(s) {
		panic(fmt.Sprintf("text: FromString: invalid UTF-8 %q", s))
	}
	return &Buffer{b: []byte(s)}
}

// FromBytes returns a buffer holding a copy of p.
func FromBytes(p []byte) *Buffer {
	if !utf8.Valid(p) {
		panic(fmt.Sprintf("text: FromBytes: invalid UTF-8 %q", p))
	}
	return &Buffer{b: bytes.Clone(p)}
}

// ReadLine reads one line from r, stripping the "\n" or "\r\n" terminator.
// It returns io.EOF only when no bytes were read at all.
func ReadLine(r *bufio.Reader) (*Buffer, error) {
	line, err := r.ReadBytes('\n')
	if err != nil && (err != io.EOF || len(line) == 0) {
		return nil, err
	}
	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !utf8.Valid(line) {
		return nil, ErrInvalidUTF8
	}
	return &Buffer{b: bytes.Clone(line)}, nil
}

// CodepointWidth decodes the byte width of a UTF-8 sequence from its
// leading byte. It panics on a continuation or otherwise illegal byte.
func CodepointWidth(lead byte) int {
	switch {
	case lead&0x80 == 0x00:
		return 1
	case lead&0xE0 == 0xC0:
		return 2
	case lead&0xF0 == 0xE0:
		return 3
	case lead&0xF8 == 0xF0:
		return 4
	}
	panic(fmt.Sprintf("text: byte %#02x is not a UTF-8 leading byte", lead))
}

// Len returns the length in bytes.
func (b *Buffer) Len() int { return len(b.b) }

// Cap returns the capacity of the backing array.
func (b *Buffer) Cap() int { return cap(b.b) }

// Bytes returns the underlying bytes. The slice aliases the buffer and is
// only valid until the next mutation.
func (b *Buffer) Bytes() []byte { return b.b }

func (b *Buffer) String() string { return string(b.b) }

// Dirty reports whether the buffer was mutated since the last ClearDirty.
func (b *Buffer) Dirty() bool { return b.dirty }

func (b *Buffer) ClearDirty() { b.dirty = false }

// Clone returns an independent copy. The dirty flag is copied too.
func (b *Buffer) Clone() *Buffer {
	return &Buffer{b: bytes.Clone(b.b), dirty: b.dirty}
}

// Equal reports byte-exact equality.
func (b *Buffer) Equal(o *Buffer) bool {
	return bytes.Equal(b.b, o.b)
}

// NCodepoints counts codepoints by walking leading-byte widths.
func (b *Buffer) NCodepoints() int {
	n := 0
	i := 0
	for i < len(b.b) {
		i += CodepointWidth(b.b[i])
		n++
	}
	if i != len(b.b) {
		panic(fmt.Sprintf("text: truncated UTF-8 sequence at end of %q", b.b))
	}
	return n
}

// ByteOffset maps a codepoint index to the byte offset where that
// codepoint starts. ix may equal NCodepoints, which maps to Len.
func (b *Buffer) ByteOffset(ix int) int {
	if ix < 0 {
		panic(fmt.Sprintf("text: negative codepoint index %d", ix))
	}
	off := 0
	for k := 0; k < ix; k++ {
		if off >= len(b.b) {
			panic(fmt.Sprintf("text: codepoint index %d out of range [0, %d]", ix, k))
		}
		off += CodepointWidth(b.b[off])
	}
	if off > len(b.b) {
		panic(fmt.Sprintf("text: truncated UTF-8 sequence in %q", b.b))
	}
	return off
}

// GetCodepoint returns the bytes from codepoint ix to the end. ix may
// equal NCodepoints, in which case the result is empty.
func (b *Buffer) GetCodepoint(ix int) []byte {
	return b.b[b.ByteOffset(ix):]
}

// GetCodepointFromRight is GetCodepoint counted from the end: ix 0 is the
// end of the buffer and ix NCodepoints is its start.
func (b *Buffer) GetCodepointFromRight(ix int) []byte {
	n := b.NCodepoints()
	if ix < 0 || ix > n {
		panic(fmt.Sprintf("text: right codepoint index %d out of range [0, %d]", ix, n))
	}
	return b.GetCodepoint(n - ix)
}

// InsertCodepointBefore splices the first codepoint of cp in before
// codepoint at. at may equal NCodepoints.
func (b *Buffer) InsertCodepointBefore(at int, cp []byte) {
	if len(cp) == 0 {
		panic("text: InsertCodepointBefore: empty codepoint")
	}
	w := CodepointWidth(cp[0])
	if len(cp) < w || !utf8.Valid(cp[:w]) {
		panic(fmt.Sprintf("text: InsertCodepointBefore: malformed codepoint %q", cp))
	}
	off := b.ByteOffset(at)
	b.b = append(b.b, cp[:w]...)
	copy(b.b[off+w:], b.b[off:len(b.b)-w])
	copy(b.b[off:], cp[:w])
	b.dirty = true
}

// DeleteCodepointAt removes exactly the bytes of codepoint at.
func (b *Buffer) DeleteCodepointAt(at int) {
	off := b.ByteOffset(at)
	if off >= len(b.b) {
		panic(fmt.Sprintf("text: DeleteCodepointAt: index %d is the end of the buffer", at))
	}
	w := CodepointWidth(b.b[off])
	b.b = append(b.b[:off], b.b[off+w:]...)
	b.dirty = true
}

func (b *Buffer) AppendCodepoint(cp []byte) {
	b.InsertCodepointBefore(b.NCodepoints(), cp)
}

func (b *Buffer) PrependCodepoint(cp []byte) {
	b.InsertCodepointBefore(0, cp)
}

// AppendString appends every codepoint of s.
func (b *Buffer) AppendString(s string) {
	if !utf8.ValidString(s) {
		panic(fmt.Sprintf("text: AppendString: invalid UTF-8 %q", s))
	}
	if s == "" {
		return
	}
	b.b = append(b.b, s...)
	b.dirty = true
}

// AppendBuffer appends the contents of o.
func (b *Buffer) AppendBuffer(o *Buffer) {
	if o.Len() == 0 {
		return
	}
	b.b = append(b.b, o.b...)
	b.dirty = true
}

// TruncateNCodepoints keeps the first n codepoints.
func (b *Buffer) TruncateNCodepoints(n int) {
	off := b.ByteOffset(n)
	if off == len(b.b) {
		return
	}
	b.b = b.b[:off]
	b.dirty = true
}

// DropNBytes removes the first n bytes. n must land on a codepoint
// boundary.
func (b *Buffer) DropNBytes(n int) {
	b.checkBoundary(n)
	if n == 0 {
		return
	}
	b.b = append(b.b[:0], b.b[n:]...)
	b.dirty = true
}

// TakeNBytes removes the first n bytes and returns them as a new buffer.
func (b *Buffer) TakeNBytes(n int) *Buffer {
	b.checkBoundary(n)
	head := &Buffer{b: bytes.Clone(b.b[:n])}
	b.DropNBytes(n)
	return head
}

// SplitAt truncates the buffer to its first at codepoints and returns
// the remainder as a new buffer.
func (b *Buffer) SplitAt(at int) *Buffer {
	off := b.ByteOffset(at)
	tail := &Buffer{b: bytes.Clone(b.b[off:])}
	b.TruncateNCodepoints(at)
	return tail
}

func (b *Buffer) checkBoundary(n int) {
	if n < 0 || n > len(b.b) {
		panic(fmt.Sprintf("text: byte count %d out of range [0, %d]", n, len(b.b)))
	}
	if n < len(b.b) && !utf8.RuneStart(b.b[n]) {
		panic(fmt.Sprintf("text: byte count %d splits a codepoint", n))
	}
}

// LeadingSpaces counts the ASCII spaces at the start of the buffer.
func (b *Buffer) LeadingSpaces() int {
	n := 0
	for n < len(b.b) && b.b[n] == ' ' {
		n++
	}
	return n
}

// TrimLeadingSpaces removes leading ASCII spaces.
func (b *Buffer) TrimLeadingSpaces() {
	b.DropNBytes(b.LeadingSpaces())
}

// TrimTrailingSpaces removes trailing ASCII spaces.
func (b *Buffer) TrimTrailingSpaces() {
	end := len(b.b)
	for end > 0 && b.b[end-1] == ' ' {
		end--
	}
	if end != len(b.b) {
		b.b = b.b[:end]
		b.dirty = true
	}
}

// UTF16Offset returns the number of UTF-16 code units spanned by the
// first col codepoints.
func (b *Buffer) UTF16Offset(col int) int {
	units := 0
	off := 0
	for k := 0; k < col; k++ {
		if off >= len(b.b) {
			panic(fmt.Sprintf("text: codepoint column %d out of range", col))
		}
		w := CodepointWidth(b.b[off])
		if w == 4 {
			units += 2
		} else {
			units++
		}
		off += w
	}
	return units
}

// CodepointFromUTF16 converts a UTF-16 code unit column back to a
// codepoint column, clamping to the end of the buffer. A column that
// lands inside a surrogate pair rounds down.
func (b *Buffer) CodepointFromUTF16(units int) int {
	col := 0
	off := 0
	for off < len(b.b) {
		w := CodepointWidth(b.b[off])
		step := 1
		if w == 4 {
			step = 2
		}
		if units < step {
			break
		}
		units -= step
		off += w
		col++
	}
	return col
}

// DisplayWidth returns the terminal cell width of the first col codepoints.
func (b *Buffer) DisplayWidth(col int) int {
	end := b.ByteOffset(col)
	return runewidth.StringWidth(string(b.b[:end]))
}
