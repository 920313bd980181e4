package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bollu/elide-sub000/internal/lean"
	"github.com/bollu/elide-sub000/internal/lean/leantest"
	"github.com/bollu/elide-sub000/internal/session"
)

var testOptions = traceOptions{
	elaborate: 100 * time.Millisecond,
	request:   100 * time.Millisecond,
	interval:  time.Millisecond,
}

func newTraceSession(t *testing.T, content string) (*session.Session, *leantest.Server) {
	t.Helper()
	srv := leantest.New()
	s, err := session.New(filepath.Join(t.TempDir(), "Trace.lean"), content, lean.NewEngine(srv))
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	// Send didOpen so pushes can target version 1.
	if err := s.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	return s, srv
}

// goalsByLine answers plainGoal requests from a per-line table.
func goalsByLine(goals map[int][]string) leantest.Handler {
	return func(params json.RawMessage) any {
		var p struct {
			Position struct {
				Line int `json:"line"`
			} `json:"position"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil
		}
		g, ok := goals[p.Position.Line]
		if !ok {
			return nil
		}
		return map[string]any{"rendered": "", "goals": g}
	}
}

func TestTracePrintsGoalsPerLine(t *testing.T) {
	s, srv := newTraceSession(t, "theorem t : True := by\n\n  sorry")
	srv.Handle(lean.MethodPlainGoal, goalsByLine(map[int][]string{
		0: {"⊢ True"},
		2: {},
	}))
	srv.Notify(lean.MethodPublishDiagnostics, map[string]any{
		"uri":     string(s.URI()),
		"version": 1,
		"diagnostics": []any{map[string]any{
			"range": map[string]any{
				"start": map[string]any{"line": 2, "character": 2},
				"end":   map[string]any{"line": 2, "character": 7},
			},
			"severity": 2,
			"message":  "declaration uses 'sorry'",
		}},
	})
	srv.Notify(lean.MethodFileProgress, map[string]any{
		"textDocument": map[string]any{"uri": string(s.URI()), "version": 1},
		"processing":   []any{},
	})

	var out bytes.Buffer
	if err := trace(context.Background(), s, &out, testOptions); err != nil {
		t.Fatalf("trace: %v", err)
	}
	text := out.String()
	for _, want := range []string{
		"=== Line 1 ===\n> theorem t : True := by\n\nGoal:\n  ⊢ True\n",
		"=== Line 3 ===\n> sorry\n\nNo goals.\n",
		"[warning] line 3:2-3:7: declaration uses 'sorry'",
		"--- Done: 2 lines ---",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in:\n%s", want, text)
		}
	}
	if strings.Contains(text, "=== Line 2 ===") || strings.Contains(text, "warning: elaboration") {
		t.Errorf("unexpected output:\n%s", text)
	}
}

func TestTraceWarnsWhenElaborationUnfinished(t *testing.T) {
	s, srv := newTraceSession(t, "example : True := trivial")
	srv.Handle(lean.MethodPlainGoal, goalsByLine(nil))

	var out bytes.Buffer
	if err := trace(context.Background(), s, &out, testOptions); err != nil {
		t.Fatalf("trace: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "warning: elaboration unfinished") || !strings.Contains(text, "No goal at cursor.") {
		t.Fatalf("got:\n%s", text)
	}
}

func TestTraceFailsWhenServerIsSilent(t *testing.T) {
	s, srv := newTraceSession(t, "example : True := trivial")
	srv.Notify(lean.MethodFileProgress, map[string]any{
		"textDocument": map[string]any{"uri": string(s.URI()), "version": 1},
		"processing":   []any{},
	})

	var out bytes.Buffer
	err := trace(context.Background(), s, &out, testOptions)
	if err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Fatalf("err = %v, want a line 1 timeout", err)
	}
}
