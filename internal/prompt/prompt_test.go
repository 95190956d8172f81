package prompt

import (
	"strings"
	"testing"

	"raicompanion/internal/classify"
	"raicompanion/internal/content"
	"raicompanion/internal/domain"
	"raicompanion/internal/selection"
)

func buildSelection(t *testing.T, raw string, mode domain.Mode) (domain.ClassifiedInput, domain.Selection) {
	t.Helper()
	lib, err := content.Default()
	if err != nil {
		t.Fatalf("content.Default: %v", err)
	}
	in, err := classify.Classify(raw)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	return in, selection.New(lib, 14).Select(in, mode)
}

func TestComposeIncludesEveryModuleInOrder(t *testing.T) {
	raw := "Why do the media never cover the debt crisis in the regions?"
	for _, mode := range domain.Modes {
		in, sel := buildSelection(t, raw, mode)
		out := Compose(in, sel, mode)

		last := -1
		for _, id := range sel.ExecutionOrder {
			m, _ := sel.Module(id)
			idx := strings.Index(out, m.Name)
			if idx < 0 {
				t.Fatalf("mode %s: module %s name %q missing from prompt", mode, id, m.Name)
			}
			if idx < last {
				t.Fatalf("mode %s: module %s appears out of execution order", mode, id)
			}
			last = idx
		}
	}
}

func TestComposeSectionsInFixedOrder(t *testing.T) {
	in, sel := buildSelection(t, "The deep state controls government policy through unelected bureaucrats.", domain.ModeExpert)
	out := Compose(in, sel, domain.ModeExpert)

	markers := []string{
		"Real Artificial Intelligence (RAI) Framework",
		"Output mode: Expert.",
		"Modules to apply:",
		"Input:",
		"Analysis instructions:",
	}
	last := -1
	for _, marker := range markers {
		idx := strings.Index(out, marker)
		if idx < 0 {
			t.Fatalf("marker %q missing", marker)
		}
		if idx <= last {
			t.Fatalf("marker %q out of order", marker)
		}
		last = idx
	}
	if !strings.Contains(out, in.RawText) {
		t.Fatal("raw input missing from prompt")
	}
	if !strings.Contains(out, "- Type: system-level-claim") {
		t.Fatal("classification summary missing")
	}
}

func TestComposeIncludesResolvedPremises(t *testing.T) {
	in, sel := buildSelection(t, "On March 15, 2024, reports confirmed that 50 civilians were killed in Mariupol bombing.", domain.ModeGuided)
	out := Compose(in, sel, domain.ModeGuided)
	for _, p := range sel.ResolvedPremises {
		if !strings.Contains(out, p.Title) {
			t.Fatalf("premise %s title missing from prompt", p.ID)
		}
	}
}

func TestComposeIsPure(t *testing.T) {
	in, sel := buildSelection(t, "Prices rose because the harvest failed.", domain.ModeQuick)
	if Compose(in, sel, domain.ModeQuick) != Compose(in, sel, domain.ModeQuick) {
		t.Fatal("Compose should be deterministic")
	}
}

func TestComposeKeepsRawInputVerbatim(t *testing.T) {
	raw := "He said \"the war is over\".\nOfficials disagree."
	in, sel := buildSelection(t, raw, domain.ModeGuided)
	out := Compose(in, sel, domain.ModeGuided)

	if !strings.Contains(out, inputBegin+"\n"+raw+"\n"+inputEnd) {
		t.Fatalf("raw input not carried verbatim:\n%s", out)
	}
	if strings.Contains(out, `\"`) || strings.Contains(out, `\n`) {
		t.Fatalf("input was escaped:\n%s", out)
	}
}
