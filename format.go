package main

// format.go: tool results, goal deltas and document listings.

import (
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.lsp.dev/protocol"

	"github.com/bollu/elide-sub000/internal/lean"
	"github.com/bollu/elide-sub000/internal/session"
)

// textResult wraps text in an MCP CallToolResult.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// errResult wraps an error in an MCP CallToolResult.
func errResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: err.Error()},
		},
	}
}

// goal is one rendered Lean goal split into hypotheses and target.
type goal struct {
	Hypotheses []string
	Target     string
}

// splitGoal splits a rendered goal at the turnstile line. Indented lines
// continue the previous hypothesis.
func splitGoal(rendered string) goal {
	var g goal
	lines := strings.Split(strings.TrimRight(rendered, "\n"), "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "⊢") {
			g.Target = strings.Join(lines[i:], "\n")
			return g
		}
		if n := len(g.Hypotheses); n > 0 && strings.HasPrefix(line, " ") {
			g.Hypotheses[n-1] += "\n" + line
			continue
		}
		g.Hypotheses = append(g.Hypotheses, line)
	}
	return g
}

// writeGoalDelta writes the goals at the cursor as a delta against the
// previous goal view. The focused goal is shown in full with its
// hypotheses diffed; the others are summarized by their target.
func writeGoalDelta(sb *strings.Builder, prev, cur *lean.PlainGoal) {
	if cur == nil {
		sb.WriteString("No goal at cursor.\n")
		return
	}
	if len(cur.Goals) == 0 {
		sb.WriteString("No goals.\n")
		return
	}

	prevCount := 0
	if prev != nil {
		prevCount = len(prev.Goals)
	}
	switch delta := len(cur.Goals) - prevCount; {
	case prevCount == 0 || delta == 0:
		fmt.Fprintf(sb, "=== Goals: %d ===\n", len(cur.Goals))
	case delta > 0:
		fmt.Fprintf(sb, "=== Goals: %d (+%d) ===\n", len(cur.Goals), delta)
	default:
		fmt.Fprintf(sb, "=== Goals: %d (%d) ===\n", len(cur.Goals), delta)
	}

	focused := splitGoal(cur.Goals[0])
	sb.WriteString("\nFocused goal:\n")
	var prevFocused *goal
	if prevCount > 0 {
		g := splitGoal(prev.Goals[0])
		prevFocused = &g
	}
	writeHypothesesDiff(sb, prevFocused, &focused)
	writeBlock(sb, "  ", focused.Target)

	for i := 1; i < len(cur.Goals); i++ {
		fmt.Fprintf(sb, "\nGoal %d: %s\n", i+1, oneLine(splitGoal(cur.Goals[i]).Target))
	}
}

// writeHypothesesDiff writes the focused goal's hypotheses, marking
// additions and removals relative to the previous focused goal.
func writeHypothesesDiff(sb *strings.Builder, prev, cur *goal) {
	if prev == nil {
		for _, h := range cur.Hypotheses {
			writeBlock(sb, "  ", h)
		}
		return
	}
	prevSet := make(map[string]bool, len(prev.Hypotheses))
	for _, h := range prev.Hypotheses {
		prevSet[h] = true
	}
	curSet := make(map[string]bool, len(cur.Hypotheses))
	for _, h := range cur.Hypotheses {
		curSet[h] = true
	}
	for _, h := range prev.Hypotheses {
		if !curSet[h] {
			writeBlock(sb, "  - ", h)
		}
	}
	for _, h := range cur.Hypotheses {
		if prevSet[h] {
			writeBlock(sb, "  ", h)
		} else {
			writeBlock(sb, "  + ", h)
		}
	}
}

func writeBlock(sb *strings.Builder, prefix, s string) {
	if s == "" {
		return
	}
	for i, line := range strings.Split(s, "\n") {
		if i == 0 {
			sb.WriteString(prefix)
		} else {
			sb.WriteString(strings.Repeat(" ", len(prefix)))
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// formatGoalView renders the info view for the cursor. With prev set the
// goals are a delta against it.
func formatGoalView(prev *lean.PlainGoal, s *session.Session, full bool) string {
	if full {
		return session.FormatInfoView(s)
	}
	var sb strings.Builder
	session.WriteStatus(&sb, s)
	sb.WriteString("\n")
	writeGoalDelta(&sb, prev, s.Goal())
	if tg := s.TermGoal(); tg != nil {
		sb.WriteString("\n")
		session.WriteTermGoal(&sb, tg)
	}
	session.FormatDiagnostics(&sb, s.Diagnostics())
	return sb.String()
}

// rowGutter is the width of the mark and line number before each row.
const rowGutter = 7

// formatRows lists rows from..to (exclusive) with 1-based line numbers
// and marks the cursor row. When that row has wide characters a caret line
// under it shows which cell the cursor is in.
func formatRows(s *session.Session, from, to int) string {
	rows := s.Rows()
	from = max(from, 0)
	if to <= 0 || to > len(rows) {
		to = len(rows)
	}
	var sb strings.Builder
	session.WriteStatus(&sb, s)
	if s.NeedsSave() {
		sb.WriteString("Unsaved changes.\n")
	}
	sb.WriteString("\n")
	cur := s.Cursor()
	for i := from; i < to; i++ {
		mark := " "
		if i == cur.Row {
			mark = ">"
		}
		fmt.Fprintf(&sb, "%s%4d  %s\n", mark, i+1, rows[i])
		if cell, wide := s.CursorCell(); i == cur.Row && wide {
			fmt.Fprintf(&sb, "%*s^\n", rowGutter+cell, "")
		}
	}
	return sb.String()
}

// formatCompletion lists completion labels with their detail.
func formatCompletion(list *protocol.CompletionList, limit int) string {
	if list == nil || len(list.Items) == 0 {
		return "No completions."
	}
	var sb strings.Builder
	for i, item := range list.Items {
		if limit > 0 && i == limit {
			fmt.Fprintf(&sb, "... %d more\n", len(list.Items)-limit)
			break
		}
		sb.WriteString(item.Label)
		if item.Detail != "" {
			fmt.Fprintf(&sb, " : %s", oneLine(item.Detail))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
