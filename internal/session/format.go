package session

// format.go: rendering goals, diagnostics and hovers as plain text.

import (
	"fmt"
	"strings"

	"go.lsp.dev/protocol"

	"github.com/bollu/elide-sub000/internal/lean"
)

// SeverityName returns the lowercase name of an LSP severity.
func SeverityName(s protocol.DiagnosticSeverity) string {
	switch s {
	case protocol.DiagnosticSeverityError:
		return "error"
	case protocol.DiagnosticSeverityWarning:
		return "warning"
	case protocol.DiagnosticSeverityHint:
		return "hint"
	}
	return "info"
}

// WriteGoals writes the goals of a plainGoal reply, one block per goal.
func WriteGoals(sb *strings.Builder, g *lean.PlainGoal) {
	switch {
	case g == nil:
		sb.WriteString("No goal at cursor.\n")
	case len(g.Goals) == 0:
		sb.WriteString("No goals.\n")
	case len(g.Goals) == 1:
		sb.WriteString("Goal:\n")
		writeIndented(sb, g.Goals[0])
	default:
		for i, goal := range g.Goals {
			if i > 0 {
				sb.WriteString("\n")
			}
			fmt.Fprintf(sb, "Goal %d of %d:\n", i+1, len(g.Goals))
			writeIndented(sb, goal)
		}
	}
}

func writeIndented(sb *strings.Builder, s string) {
	for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		fmt.Fprintf(sb, "  %s\n", line)
	}
}

// WriteTermGoal writes the expected type at the cursor, if any.
func WriteTermGoal(sb *strings.Builder, g *lean.TermGoal) {
	if g == nil {
		return
	}
	sb.WriteString("Expected type:\n")
	writeIndented(sb, g.Goal)
}

// FormatHover returns the hover text, or "" when there is none.
func FormatHover(h *protocol.Hover) string {
	if h == nil {
		return ""
	}
	return strings.TrimSpace(h.Contents.Value)
}

// FormatDiagnostics appends diagnostics to sb. Lines are 1-based and
// columns are codepoints.
func FormatDiagnostics(sb *strings.Builder, diags []Diagnostic) {
	if len(diags) == 0 {
		return
	}
	sb.WriteString("\n=== Diagnostics ===\n")
	for _, d := range diags {
		fmt.Fprintf(sb, "[%s] line %d:%d-%d:%d: %s\n",
			SeverityName(d.Severity),
			d.Start.Row+1, d.Start.Col,
			d.End.Row+1, d.End.Col,
			d.Message)
	}
}

// FormatLocations lists locations as path:line:col, 1-based lines.
func FormatLocations(sb *strings.Builder, locs []protocol.Location) {
	if len(locs) == 0 {
		sb.WriteString("No definition found.\n")
		return
	}
	for _, l := range locs {
		fmt.Fprintf(sb, "%s:%d:%d\n", lean.PathFromURI(l.URI), l.Range.Start.Line+1, l.Range.Start.Character)
	}
}

// FormatProgress describes the server's elaboration state.
func FormatProgress(s *Session) string {
	switch {
	case s.NeedsSync():
		return "not yet sent to the server"
	case s.Progress() != nil:
		p := s.Progress()
		return fmt.Sprintf("elaborating lines %d-%d", p.StartRow+1, p.EndRow+1)
	case s.Elaborated():
		return "elaborated"
	}
	return "waiting for the server"
}

// WriteStatus writes the cursor position, version and progress line.
func WriteStatus(sb *strings.Builder, s *Session) {
	fmt.Fprintf(sb, "Cursor %d:%d (version %d, %s)\n",
		s.Cursor().Row+1, s.Cursor().Col, s.Version(), FormatProgress(s))
}

// FormatInfoView renders the goal, expected type, hover and diagnostics.
func FormatInfoView(s *Session) string {
	var sb strings.Builder
	WriteStatus(&sb, s)
	sb.WriteString("\n")
	WriteGoals(&sb, s.Goal())
	if tg := s.TermGoal(); tg != nil {
		sb.WriteString("\n")
		WriteTermGoal(&sb, tg)
	}
	if h := FormatHover(s.Hover()); h != "" {
		sb.WriteString("\n=== Hover ===\n")
		sb.WriteString(h)
		sb.WriteString("\n")
	}
	FormatDiagnostics(&sb, s.Diagnostics())
	return sb.String()
}
