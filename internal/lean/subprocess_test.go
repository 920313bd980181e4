package lean

import (
	"os/exec"
	"testing"
	"time"
)

func startCat(t *testing.T) *Subprocess {
	t.Helper()
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	p, err := StartSubprocess(ServerCommand{Name: "cat", Dir: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("StartSubprocess: %v", err)
	}
	return p
}

func TestSubprocessReadDoesNotBlock(t *testing.T) {
	p := startCat(t)
	defer p.Close()

	start := time.Now()
	data, err := p.ReadAvailable()
	if err != nil {
		t.Fatalf("ReadAvailable: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("expected no data, got %q", data)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("ReadAvailable blocked")
	}
}

func TestSubprocessEcho(t *testing.T) {
	p := startCat(t)
	defer p.Close()

	e := NewEngine(p)
	if err := e.WriteNotification("ping", map[string]string{"s": "∀ x, x = x"}); err != nil {
		t.Fatalf("WriteNotification: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if err := e.Tick(); err != nil {
			t.Fatalf("Tick: %v", err)
		}
		if m, ok := e.NextUnsolicited(); ok {
			if m.Method != "ping" {
				t.Fatalf("expected echoed ping, got %q", m.Method)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no echo within deadline")
}

func TestSubprocessStartFailure(t *testing.T) {
	_, err := StartSubprocess(ServerCommand{Name: "/nonexistent/elide-server"}, nil)
	if err == nil {
		t.Fatalf("expected error for missing binary")
	}
}
