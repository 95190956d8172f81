package format

import (
	"strings"
	"testing"
)

func TestFormatMarkdownSubset(t *testing.T) {
	raw := strings.Join([]string{
		"# Report",
		"This input makes a **strong** claim with *loaded* wording.",
		"## Fact Level",
		"• first point",
		"* second point",
		"+ third point",
		"1. step one",
		"2) step two",
		"---",
		"> quoted source",
		"###### tiny",
	}, "\n")

	res := Format(raw)
	if res.Fallback {
		t.Fatalf("unexpected fallback: %s", res.HTML)
	}
	checks := []string{
		`<div class="rai-analysis-container">`,
		"<h1>Report</h1>",
		"<h2>Fact Level</h2>",
		"<strong>strong</strong>",
		"<em>loaded</em>",
		"<li>first point</li>",
		"<li>third point</li>",
		"<ol>",
		"<li>step two</li>",
		"<hr",
		"<blockquote>",
		"<h6>tiny</h6>",
	}
	for _, want := range checks {
		if !strings.Contains(res.HTML, want) {
			t.Fatalf("HTML missing %q:\n%s", want, res.HTML)
		}
	}
	if strings.Count(res.HTML, "<ul>") != 1 {
		t.Fatalf("consecutive bullets should share one list:\n%s", res.HTML)
	}
	if res.Sections != 2 {
		t.Fatalf("sections = %d, want 2", res.Sections)
	}
	if res.Summary != "This input makes a strong claim with loaded wording." {
		t.Fatalf("summary = %q", res.Summary)
	}
}

func TestFormatPlainTextWithoutMarkdown(t *testing.T) {
	raw := "the model answered in plain prose\nand a second line < 5 & more"
	res := Format(raw)
	if res.HTML == "" {
		t.Fatal("HTML must not be empty")
	}
	if !strings.Contains(res.HTML, "the model answered in plain prose") {
		t.Fatalf("original text missing:\n%s", res.HTML)
	}
	if !strings.Contains(res.HTML, "&lt; 5 &amp; more") {
		t.Fatalf("special characters should be escaped:\n%s", res.HTML)
	}
	if strings.Count(res.HTML, "<p>") != 2 {
		t.Fatalf("each line should become its own paragraph:\n%s", res.HTML)
	}
	if res.Summary != defaultSummary || res.Sections != 1 {
		t.Fatalf("summary=%q sections=%d", res.Summary, res.Sections)
	}
}

func TestFormatMalformedMarkdownNeverDrops(t *testing.T) {
	raw := "**unclosed bold\n* \n#\n```\ncode without end\n[link](\n|a|b|\n"
	res := Format(raw)
	for _, frag := range []string{"unclosed bold", "code without end", "link"} {
		if !strings.Contains(res.HTML, frag) {
			t.Fatalf("fragment %q dropped:\n%s", frag, res.HTML)
		}
	}

	angled := []struct {
		raw  string
		want string
	}{
		{"The claim that <Russia> bombed the city is unverified.", "The claim that &lt;Russia&gt; bombed the city is unverified."},
		{"Officials said x<y and z>w in the report.", "Officials said x&lt;y and z&gt;w in the report."},
		{"<div>\nblock text\n</div>", "block text"},
	}
	for _, tt := range angled {
		res := Format(tt.raw)
		if res.Fallback || !strings.Contains(res.HTML, tt.want) {
			t.Fatalf("Format(%q) lost text, want %q in:\n%s", tt.raw, tt.want, res.HTML)
		}
	}
}

func TestFormatKeepsTables(t *testing.T) {
	raw := "## Evidence\n| Source | Verdict |\n|---|---|\n| Ministry | Unverified |\n| Reuters | Confirmed |\nClosing line."
	res := Format(raw)
	for _, want := range []string{"<table>", "<th>Source</th>", "<td>Reuters</td>", "<p>Closing line.</p>"} {
		if !strings.Contains(res.HTML, want) {
			t.Fatalf("HTML missing %q:\n%s", want, res.HTML)
		}
	}
}

func TestFormatSanitizesScripts(t *testing.T) {
	res := Format("Hello <script>alert(1)</script> world")
	if strings.Contains(res.HTML, "<script>") {
		t.Fatalf("script tag survived sanitizing:\n%s", res.HTML)
	}
	if !strings.Contains(res.HTML, "&lt;script&gt;") {
		t.Fatalf("script markup should be shown as text:\n%s", res.HTML)
	}
	if !strings.Contains(res.HTML, "Hello") {
		t.Fatalf("text dropped:\n%s", res.HTML)
	}
}

func TestFallbackHTMLEscapes(t *testing.T) {
	got := fallbackHTML("<b>x</b>")
	want := `<div class="rai-analysis-container"><pre>&lt;b&gt;x&lt;/b&gt;</pre></div>`
	if got != want {
		t.Fatalf("fallbackHTML = %q, want %q", got, want)
	}
}

func TestSetextUnderlineBecomesRule(t *testing.T) {
	res := Format("Some text\n---\nMore text")
	if strings.Contains(res.HTML, "<h2>") {
		t.Fatalf("a dashed line should not turn the previous line into a heading:\n%s", res.HTML)
	}
	if !strings.Contains(res.HTML, "<hr") {
		t.Fatalf("expected horizontal rule:\n%s", res.HTML)
	}
}

func TestTerminalRendersText(t *testing.T) {
	out := Terminal("# Title\n\nBody text", 60)
	if !strings.Contains(out, "Title") || !strings.Contains(out, "Body text") {
		t.Fatalf("terminal output missing text: %q", out)
	}
}
