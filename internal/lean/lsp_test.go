package lean

import (
	"bytes"
	"errors"
	"strconv"
	"testing"
)

func frame(body string) string {
	return "Content-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n" + body
}

func TestEncodeFrame(t *testing.T) {
	got := string(EncodeFrame([]byte(`{"a":1}`)))
	want := "Content-Length: 7\r\n\r\n{\"a\":1}"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestDecodeFrameByteAtATime(t *testing.T) {
	body := `{"jsonrpc":"2.0","method":"test","params":{"s":"héllo"}}`
	stream := frame(body)

	var acc bytes.Buffer
	for i := 0; i < len(stream); i++ {
		acc.WriteByte(stream[i])
		got, ok, err := DecodeFrame(&acc)
		if err != nil {
			t.Fatalf("byte %d: %v", i, err)
		}
		if i < len(stream)-1 {
			if ok {
				t.Fatalf("frame reported after %d of %d bytes", i+1, len(stream))
			}
			if acc.Len() != i+1 {
				t.Fatalf("partial frame consumed: have %d bytes, want %d", acc.Len(), i+1)
			}
			continue
		}
		if !ok {
			t.Fatalf("no frame after all bytes")
		}
		if string(got) != body {
			t.Fatalf("expected body %q, got %q", body, got)
		}
	}
	if acc.Len() != 0 {
		t.Fatalf("expected empty accumulator, %d bytes left", acc.Len())
	}
}

func TestDecodeFrameTwoFramesOneChunk(t *testing.T) {
	a := `{"jsonrpc":"2.0","id":0,"result":null}`
	b := `{"jsonrpc":"2.0","method":"x"}`
	var acc bytes.Buffer
	acc.WriteString(frame(a) + frame(b))

	got, ok, err := DecodeFrame(&acc)
	if err != nil || !ok {
		t.Fatalf("first frame: ok=%v err=%v", ok, err)
	}
	if string(got) != a {
		t.Fatalf("expected %q, got %q", a, got)
	}
	if acc.String() != frame(b) {
		t.Fatalf("first decode consumed the wrong bytes, left %q", acc.String())
	}

	got, ok, err = DecodeFrame(&acc)
	if err != nil || !ok {
		t.Fatalf("second frame: ok=%v err=%v", ok, err)
	}
	if string(got) != b {
		t.Fatalf("expected %q, got %q", b, got)
	}

	if _, ok, err := DecodeFrame(&acc); ok || err != nil {
		t.Fatalf("expected no third frame, ok=%v err=%v", ok, err)
	}
}

func TestDecodeFrameHeaderCase(t *testing.T) {
	body := `{"method":"m"}`
	var acc bytes.Buffer
	acc.WriteString("content-type: application/vscode-jsonrpc; charset=utf-8\r\ncontent-length: " +
		strconv.Itoa(len(body)) + "\r\n\r\n" + body)
	got, ok, err := DecodeFrame(&acc)
	if err != nil || !ok || string(got) != body {
		t.Fatalf("got %q ok=%v err=%v", got, ok, err)
	}
}

func TestDecodeFrameMissingContentLength(t *testing.T) {
	var acc bytes.Buffer
	acc.WriteString("Content-Type: x\r\n\r\n{}")
	_, _, err := DecodeFrame(&acc)
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProtocolError, got %v", err)
	}
}

func TestDecodeFrameBadBody(t *testing.T) {
	var acc bytes.Buffer
	acc.WriteString(frame("{not json"))
	_, _, err := DecodeFrame(&acc)
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProtocolError, got %v", err)
	}
}

func TestMessageNumericID(t *testing.T) {
	tests := []struct {
		raw   string
		id    RequestID
		ok    bool
		hasID bool
	}{
		{raw: `7`, id: 7, ok: true, hasID: true},
		{raw: `"abc"`, ok: false, hasID: true},
		{raw: `null`, ok: false, hasID: false},
		{raw: ``, ok: false, hasID: false},
	}
	for _, tt := range tests {
		m := &Message{ID: []byte(tt.raw)}
		if m.HasID() != tt.hasID {
			t.Errorf("%q: HasID = %v", tt.raw, m.HasID())
		}
		id, ok := m.NumericID()
		if ok != tt.ok || id != tt.id {
			t.Errorf("%q: NumericID = %d, %v", tt.raw, id, ok)
		}
	}
}
