package main

import (
	"strings"
	"testing"

	"go.lsp.dev/protocol"

	"github.com/bollu/elide-sub000/internal/lean"
)

func TestSplitGoal(t *testing.T) {
	g := splitGoal("case succ\nn : Nat\nih : 0 + n = n\n  ∧ True\n⊢ 0 + (n + 1) = n + 1")
	want := []string{"case succ", "n : Nat", "ih : 0 + n = n\n  ∧ True"}
	if strings.Join(g.Hypotheses, "|") != strings.Join(want, "|") {
		t.Fatalf("hypotheses = %q, want %q", g.Hypotheses, want)
	}
	if g.Target != "⊢ 0 + (n + 1) = n + 1" {
		t.Fatalf("target = %q", g.Target)
	}
}

func TestSplitGoalWithoutTurnstile(t *testing.T) {
	g := splitGoal("a : Nat")
	if g.Target != "" || len(g.Hypotheses) != 1 {
		t.Fatalf("got %+v", g)
	}
}

func TestGoalDeltaRemovedHypothesis(t *testing.T) {
	prev := &lean.PlainGoal{Goals: []string{"n : Nat\nh : n = 0\n⊢ n = n", "⊢ True"}}
	cur := &lean.PlainGoal{Goals: []string{"n : Nat\n⊢ n = n"}}

	var sb strings.Builder
	writeGoalDelta(&sb, prev, cur)
	text := sb.String()

	for _, want := range []string{"=== Goals: 1 (-1) ===", "  - h : n = 0", "  n : Nat", "  ⊢ n = n"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in:\n%s", want, text)
		}
	}
	if strings.Contains(text, "Goal 2") {
		t.Errorf("unexpected second goal:\n%s", text)
	}
}

func TestGoalDeltaMultilineHypothesis(t *testing.T) {
	cur := &lean.PlainGoal{Goals: []string{"h : a\n  ∧ b\n⊢ c"}}
	var sb strings.Builder
	writeGoalDelta(&sb, &lean.PlainGoal{Goals: []string{"⊢ c"}}, cur)
	if !strings.Contains(sb.String(), "  + h : a\n      ∧ b\n") {
		t.Fatalf("continuation lines should align under the marker:\n%s", sb.String())
	}
}

func TestGoalDeltaNoGoals(t *testing.T) {
	var sb strings.Builder
	writeGoalDelta(&sb, nil, &lean.PlainGoal{})
	if sb.String() != "No goals.\n" {
		t.Fatalf("got %q", sb.String())
	}
	sb.Reset()
	writeGoalDelta(&sb, nil, nil)
	if sb.String() != "No goal at cursor.\n" {
		t.Fatalf("got %q", sb.String())
	}
}

func TestFormatCompletion(t *testing.T) {
	if got := formatCompletion(nil, 5); got != "No completions." {
		t.Fatalf("nil list: %q", got)
	}
	list := &protocol.CompletionList{Items: []protocol.CompletionItem{
		{Label: "Nat.succ", Detail: "Nat →\n  Nat"},
		{Label: "Nat.zero"},
	}}
	got := formatCompletion(list, 0)
	if got != "Nat.succ : Nat → Nat\nNat.zero\n" {
		t.Fatalf("got %q", got)
	}
}
