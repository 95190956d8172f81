package prompt

import (
	"fmt"
	"strings"

	"raicompanion/internal/domain"
)

const preamble = `You are operating under the Real Artificial Intelligence (RAI) Framework.
Your analysis must meet three standards at once: factual precision, narrative coherence, and systemic insight.
Aim for interpretive adequacy rather than mechanical neutrality.`

var modeInstructions = map[domain.Mode]string{
	domain.ModeQuick: `Output mode: Quick.
Keep the answer short. Give one or two sentences per module and a brief final synthesis.
Skip premises that add nothing to this input.`,
	domain.ModeGuided: `Output mode: Guided.
Walk through each module in order with clear headings. Explain your reasoning in plain language
and show how the premises shape your reading. End with a final synthesis.`,
	domain.ModeExpert: `Output mode: Expert.
Give a dense, rigorous analysis. Apply every core question, test competing explanations,
name uncertainties explicitly, and connect the levels to each other before the final synthesis.`,
}

const closing = `Analysis instructions:
1. Apply the modules above in the order given.
2. Use the premises as interpretive lenses where they are relevant; do not force them.
3. Keep epistemic humility: flag uncertainty, missing evidence, and the limits of this analysis.
4. Prefer adequacy over acceptability.
5. Structure the answer in markdown with a "## " heading per level (Fact, Narrative, System).
6. Finish with a "## Final Synthesis" section that integrates the levels.

Begin the analysis.`

const (
	inputBegin = "<<<INPUT"
	inputEnd   = "INPUT>>>"
)

// Compose renders the full prompt for one request. Every module in the
// execution order appears, in that order.
func Compose(in domain.ClassifiedInput, sel domain.Selection, mode domain.Mode) string {
	var b strings.Builder

	b.WriteString(preamble)
	b.WriteString("\n\n")

	instr, ok := modeInstructions[mode]
	if !ok {
		instr = modeInstructions[domain.ModeGuided]
	}
	b.WriteString(instr)
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Starting level: %s\n\n", sel.EntryLevel))

	b.WriteString("Modules to apply:\n\n")
	for i, id := range sel.ExecutionOrder {
		m, ok := sel.Module(id)
		if !ok {
			// not reachable for selections built by the engine
			b.WriteString(fmt.Sprintf("### %d. %s\n\n", i+1, id))
			continue
		}
		writeModule(&b, i+1, m, sel)
	}

	b.WriteString("Input:\n")
	b.WriteString("Original text, verbatim between the markers:\n")
	b.WriteString(inputBegin + "\n")
	b.WriteString(in.RawText)
	b.WriteString("\n" + inputEnd + "\n")
	b.WriteString(fmt.Sprintf("- Cleaned: %s\n", in.CleanedText))
	b.WriteString(fmt.Sprintf("- Type: %s\n", in.Category))
	b.WriteString(fmt.Sprintf("- Style flags: %s\n", joinOrNone(in.StyleFlags)))
	b.WriteString(fmt.Sprintf("- Emotional charge: %d/5\n", in.EmotionalCharge))
	b.WriteString(fmt.Sprintf("- Complexity: %d/5\n", in.Complexity))
	b.WriteString(fmt.Sprintf("- Topics: %s\n\n", joinOrNone(in.TopicHints)))

	b.WriteString(closing)
	b.WriteString("\n")
	return b.String()
}

func writeModule(b *strings.Builder, n int, m domain.Module, sel domain.Selection) {
	b.WriteString(fmt.Sprintf("### %d. %s: %s\n", n, m.ID, m.Name))
	if m.Purpose != "" {
		b.WriteString(fmt.Sprintf("Purpose: %s\n", m.Purpose))
	}
	if len(m.CoreQuestions) > 0 {
		b.WriteString("Core questions:\n")
		for _, q := range m.CoreQuestions {
			b.WriteString(fmt.Sprintf("- %s\n", q))
		}
	}
	var anchored []domain.Premise
	for _, pid := range m.AnchoredPremiseIDs {
		if p, ok := sel.Premise(pid); ok {
			anchored = append(anchored, p)
		}
	}
	if len(anchored) > 0 {
		b.WriteString("Premises:\n")
		for _, p := range anchored {
			b.WriteString(fmt.Sprintf("- %s %s: %s\n", p.ID, p.Title, p.Content))
		}
	}
	if len(m.Guidance) > 0 {
		b.WriteString(fmt.Sprintf("Guidance: %s\n", strings.Join(m.Guidance, " ")))
	}
	b.WriteString("\n")
}

func joinOrNone[T ~string](vals []T) string {
	if len(vals) == 0 {
		return "none"
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
