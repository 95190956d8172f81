package selection

import (
	"strings"
	"testing"

	"raicompanion/internal/classify"
	"raicompanion/internal/content"
	"raicompanion/internal/domain"

	"github.com/google/go-cmp/cmp"
)

const (
	mariupolInput  = "On March 15, 2024, reports confirmed that 50 civilians were killed in Mariupol bombing."
	deepStateInput = "The deep state controls government policy through unelected bureaucrats."
)

func mustLibrary(t *testing.T) *content.Library {
	t.Helper()
	lib, err := content.Default()
	if err != nil {
		t.Fatalf("content.Default: %v", err)
	}
	return lib
}

func mustClassify(t *testing.T, raw string) domain.ClassifiedInput {
	t.Helper()
	in, err := classify.Classify(raw)
	if err != nil {
		t.Fatalf("Classify(%q): %v", raw, err)
	}
	return in
}

// stubCatalog hides or breaks individual entries of a real library.
type stubCatalog struct {
	lib            *content.Library
	missingModule  string
	missingPremise string
	panicOn        string
}

func (s stubCatalog) Module(id string) (domain.Module, bool) {
	if id == s.panicOn {
		panic("corrupt module " + id)
	}
	if id == s.missingModule {
		return domain.Module{}, false
	}
	return s.lib.Module(id)
}

func (s stubCatalog) Premise(id string) (domain.Premise, bool) {
	if id == s.missingPremise {
		return domain.Premise{}, false
	}
	return s.lib.Premise(id)
}

func TestSelectFactualScenario(t *testing.T) {
	e := New(mustLibrary(t), 14)
	sel := e.Select(mustClassify(t, mariupolInput), domain.ModeGuided)

	if sel.Fallback {
		t.Fatalf("unexpected fallback: %s", sel.Rationale)
	}
	if sel.EntryLevel != domain.LevelFact {
		t.Fatalf("entry level = %s, want fact", sel.EntryLevel)
	}
	want := []string{"CL-0", "FL-1", "FL-3", "FL-7", "FL-8", "NL-1", "SL-1", "SL-4"}
	if diff := cmp.Diff(want, sel.ExecutionOrder); diff != "" {
		t.Fatalf("execution order mismatch (-want +got):\n%s", diff)
	}
	if _, ok := sel.Module("FL-8"); !ok {
		t.Fatal("expected a fact module from the category table")
	}
}

func TestSelectSystemScenario(t *testing.T) {
	e := New(mustLibrary(t), 14)
	sel := e.Select(mustClassify(t, deepStateInput), domain.ModeExpert)

	if sel.EntryLevel != domain.LevelSystem {
		t.Fatalf("entry level = %s, want system", sel.EntryLevel)
	}
	want := []string{"CL-0", "CL-4", "SL-1", "SL-2", "SL-4", "NL-1", "FL-1"}
	if diff := cmp.Diff(want, sel.ExecutionOrder); diff != "" {
		t.Fatalf("execution order mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(sel.Rationale, "system-level-claim") || !strings.Contains(sel.Rationale, "power-governance") {
		t.Fatalf("rationale missing classification details: %s", sel.Rationale)
	}
}

func TestEntryLevelTieBreak(t *testing.T) {
	in := mustClassify(t, "Nobody is talking about the river anymore.")
	if got := EntryLevel(in); got != domain.LevelSystem {
		t.Fatalf("all-zero scores should favour system, got %s", got)
	}

	// one narrative hit against one fact hit: narrative wins the tie over fact
	in = mustClassify(t, "It is a story with no evidence at all.")
	in.Category = domain.CategoryMixed
	if got := EntryLevel(in); got != domain.LevelNarrative {
		t.Fatalf("narrative should beat fact on a tie, got %s", got)
	}
}

func TestQuickModeTrimsSimpleInput(t *testing.T) {
	e := New(mustLibrary(t), 14)
	in := mustClassify(t, "The ministry confirmed the figures yesterday.")
	if !in.Simple() {
		t.Fatalf("expected simple input, got %+v", in)
	}

	quick := e.Select(in, domain.ModeQuick)
	if diff := cmp.Diff([]string{"CL-0", "FL-1", "FL-3", "FL-8"}, quick.ExecutionOrder); diff != "" {
		t.Fatalf("quick order mismatch (-want +got):\n%s", diff)
	}

	guided := e.Select(in, domain.ModeGuided)
	if len(guided.SelectedModules) != 6 {
		t.Fatalf("guided should repair coverage to 6 modules, got %v", guided.ExecutionOrder)
	}
	counts := guided.LevelCounts()
	for _, level := range domain.MainLevels {
		if counts[level] == 0 {
			t.Fatalf("guided selection missing level %s: %v", level, guided.ExecutionOrder)
		}
	}
}

func TestMaxModulesKeepsCoverage(t *testing.T) {
	e := New(mustLibrary(t), 4)
	sel := e.Select(mustClassify(t, deepStateInput), domain.ModeGuided)
	want := []string{"CL-0", "SL-1", "NL-1", "FL-1"}
	if diff := cmp.Diff(want, sel.ExecutionOrder); diff != "" {
		t.Fatalf("capped order mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectFallsBackOnUnknownModule(t *testing.T) {
	lib := mustLibrary(t)
	e := New(stubCatalog{lib: lib, missingModule: "FL-8"}, 14)
	sel := e.Select(mustClassify(t, mariupolInput), domain.ModeGuided)
	assertFallback(t, sel)
}

func TestSelectFallsBackOnPanic(t *testing.T) {
	lib := mustLibrary(t)
	e := New(stubCatalog{lib: lib, panicOn: "SL-4"}, 14)
	sel := e.Select(mustClassify(t, deepStateInput), domain.ModeGuided)
	assertFallback(t, sel)
}

func assertFallback(t *testing.T, sel domain.Selection) {
	t.Helper()
	if !sel.Fallback || sel.Rationale != FallbackRationale {
		t.Fatalf("expected fallback selection, got rationale %q", sel.Rationale)
	}
	if diff := cmp.Diff([]string{"CL-0", "FL-1", "NL-1", "SL-1"}, sel.ExecutionOrder); diff != "" {
		t.Fatalf("fallback order mismatch (-want +got):\n%s", diff)
	}
	if len(sel.ResolvedPremises) == 0 {
		t.Fatal("fallback selection should still resolve premises")
	}
}

func TestUnresolvedPremiseIsDropped(t *testing.T) {
	lib := mustLibrary(t)
	e := New(stubCatalog{lib: lib, missingPremise: "D1.1"}, 14)
	sel := e.Select(mustClassify(t, deepStateInput), domain.ModeGuided)
	if sel.Fallback {
		t.Fatal("a missing premise must not trigger fallback")
	}
	if _, ok := sel.Premise("D1.1"); ok {
		t.Fatal("unresolved premise should be dropped")
	}
	if len(sel.ResolvedPremises) == 0 {
		t.Fatal("other premises should still resolve")
	}
}

func TestSelectionProperties(t *testing.T) {
	lib := mustLibrary(t)
	e := New(lib, 10)
	inputs := []string{
		mariupolInput,
		deepStateInput,
		"Why do the media never cover the debt crisis in the regions?",
		"Prices rose because the harvest failed, therefore people blamed the president.",
		"THIS IS OUTRAGEOUS!!! The so-called elites destroyed our culture and our economy with endless war!",
		"Nobody is talking about the river anymore.",
		strings.Repeat("The geopolitical order shifts slowly. ", 12),
	}
	for _, raw := range inputs {
		in := mustClassify(t, raw)
		for _, mode := range domain.Modes {
			sel := e.Select(in, mode)
			again := e.Select(in, mode)
			if diff := cmp.Diff(sel, again); diff != "" {
				t.Fatalf("Select not deterministic for %q/%s:\n%s", raw, mode, diff)
			}
			if len(sel.SelectedModules) == 0 || len(sel.SelectedModules) > 10 {
				t.Fatalf("selection size %d out of bounds for %q/%s", len(sel.SelectedModules), raw, mode)
			}
			if sel.ExecutionOrder[0] != domain.InputNormalizationModuleID {
				t.Fatalf("execution order must start with CL-0, got %v", sel.ExecutionOrder)
			}
			assertPermutation(t, sel)
			for _, p := range sel.ResolvedPremises {
				if _, ok := lib.Premise(p.ID); !ok {
					t.Fatalf("premise %s not in library", p.ID)
				}
			}
			if !(mode == domain.ModeQuick && in.Simple()) {
				counts := sel.LevelCounts()
				for _, level := range domain.MainLevels {
					if counts[level] == 0 {
						t.Fatalf("missing level %s for %q/%s: %v", level, raw, mode, sel.ExecutionOrder)
					}
				}
			}
		}
	}
}

func assertPermutation(t *testing.T, sel domain.Selection) {
	t.Helper()
	if len(sel.ExecutionOrder) != len(sel.SelectedModules) {
		t.Fatalf("order has %d ids for %d modules", len(sel.ExecutionOrder), len(sel.SelectedModules))
	}
	seen := make(map[string]bool)
	for _, id := range sel.ExecutionOrder {
		if seen[id] {
			t.Fatalf("duplicate id %s in execution order", id)
		}
		seen[id] = true
		if _, ok := sel.Module(id); !ok {
			t.Fatalf("execution order id %s not among selected modules", id)
		}
	}
}

const sparseLibrary = `
version: 1
dimensions:
  - id: D1
    name: One
    premises:
      - id: D1.1
        title: First
        content: body
levels:
  - level: cross-cutting
    modules:
      - id: CL-0
        name: Normalize
        anchors: [D1.1]
  - level: fact
    modules:
      - id: FL-2
        name: Fact
  - level: narrative
    modules:
      - id: NL-2
        name: Story
  - level: system
    modules:
      - id: SL-2
        name: System
`

func TestValidate(t *testing.T) {
	if err := Validate(mustLibrary(t)); err != nil {
		t.Fatalf("default library should validate: %v", err)
	}

	err := Validate(stubCatalog{lib: mustLibrary(t), missingModule: "SL-4"})
	if err == nil || !strings.Contains(err.Error(), "SL-4") {
		t.Fatalf("expected SL-4 to be reported missing, got %v", err)
	}

	sparse, err := content.Load([]byte(sparseLibrary))
	if err != nil {
		t.Fatalf("sparse library should parse: %v", err)
	}
	err = Validate(sparse)
	if err == nil {
		t.Fatal("library without the table modules must be rejected")
	}
	for _, id := range []string{"FL-1", "NL-1", "SL-1", "CL-4"} {
		if !strings.Contains(err.Error(), id) {
			t.Fatalf("error %q does not name %s", err, id)
		}
	}
}
