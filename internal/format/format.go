package format

import (
	"bytes"
	"fmt"
	"html"
	"log"
	"regexp"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

const (
	containerOpen  = `<div class="rai-analysis-container">`
	containerClose = `</div>`
	defaultSummary = "RAI analysis completed"
	summaryScan    = 5
	summaryMinLen  = 10
	summaryMaxLen  = 240
)

type Result struct {
	HTML     string `json:"html"`
	Summary  string `json:"summary"`
	Sections int    `json:"sections"`
	Fallback bool   `json:"fallback,omitempty"`
}

var (
	md = goldmark.New(
		goldmark.WithExtensions(extension.Table, extension.Strikethrough),
		goldmark.WithRendererOptions(
			renderer.WithNodeRenderers(util.Prioritized(literalHTML{}, 100)),
		),
	)
	policy = bluemonday.UGCPolicy()

	bulletLine   = regexp.MustCompile(`^[-*+•]\s+(.*)$`)
	numberedLine = regexp.MustCompile(`^(\d+)[.)]\s+(.*)$`)
	tableRow     = regexp.MustCompile(`^\|.*\|$`)
	ruleLine     = regexp.MustCompile(`^(-{3,}|\*{3,}|_{3,})$`)
	tightHeading = regexp.MustCompile(`^(#{1,6})([^#\s])`)
	sectionLine  = regexp.MustCompile(`^#{1,3}\s`)
	markupChars  = regexp.MustCompile("[#*_>`]+")
	summaryWords = regexp.MustCompile(`(?i)analy[sz]|claim|input|statement`)
)

// Format converts model markdown into sanitized HTML. It never fails: any
// rendering problem yields the raw text escaped inside a <pre> block.
func Format(raw string) (res Result) {
	res.Summary = summary(raw)
	res.Sections = countSections(raw)

	defer func() {
		if r := recover(); r != nil {
			log.Printf("format panic recovered: %v", r)
			res.HTML = fallbackHTML(raw)
			res.Fallback = true
		}
	}()

	var buf bytes.Buffer
	if err := md.Convert([]byte(normalize(raw)), &buf); err != nil {
		log.Printf("format render error: %v", err)
		res.HTML = fallbackHTML(raw)
		res.Fallback = true
		return res
	}
	body := strings.TrimSpace(policy.Sanitize(buf.String()))
	if body == "" && strings.TrimSpace(raw) != "" {
		res.HTML = fallbackHTML(raw)
		res.Fallback = true
		return res
	}
	res.HTML = containerOpen + "\n" + body + "\n" + containerClose
	return res
}

// literalHTML renders HTML found in model output as visible text, so a phrase
// like "<Russia>" or "x<y and z>w" is shown instead of becoming a tag that
// the sanitizer would strip.
type literalHTML struct{}

func (literalHTML) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindRawHTML, renderRawHTML)
	reg.Register(ast.KindHTMLBlock, renderHTMLBlock)
}

func renderRawHTML(w util.BufWriter, source []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkSkipChildren, nil
	}
	segs := n.(*ast.RawHTML).Segments
	for i := 0; i < segs.Len(); i++ {
		seg := segs.At(i)
		_, _ = w.WriteString(html.EscapeString(string(seg.Value(source))))
	}
	return ast.WalkSkipChildren, nil
}

func renderHTMLBlock(w util.BufWriter, source []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	block := n.(*ast.HTMLBlock)
	var text strings.Builder
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		text.Write(seg.Value(source))
	}
	if block.HasClosure() {
		text.Write(block.ClosureLine.Value(source))
	}
	_, _ = w.WriteString("<p>" + html.EscapeString(strings.TrimRight(text.String(), "\n")) + "</p>\n")
	return ast.WalkSkipChildren, nil
}

func fallbackHTML(raw string) string {
	return containerOpen + "<pre>" + html.EscapeString(raw) + "</pre>" + containerClose
}

// normalize rewrites the loose markdown models produce into blocks goldmark
// reads the same way every time: each plain line is its own paragraph,
// consecutive list lines form one list, fenced code is left alone.
func normalize(raw string) string {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	var out []string
	inFence := false
	prevList := ""

	blank := func() {
		if len(out) > 0 && out[len(out)-1] != "" {
			out = append(out, "")
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if !inFence {
				blank()
			}
			out = append(out, trimmed)
			inFence = !inFence
			if !inFence {
				out = append(out, "")
			}
			prevList = ""
			continue
		}
		if inFence {
			out = append(out, line)
			continue
		}
		if trimmed == "" {
			blank()
			prevList = ""
			continue
		}

		switch {
		case tableRow.MatchString(trimmed):
			if prevList != "table" {
				blank()
			}
			out = append(out, trimmed)
			prevList = "table"
		case ruleLine.MatchString(trimmed):
			blank()
			out = append(out, "---", "")
			prevList = ""
		case bulletLine.MatchString(trimmed):
			if prevList != "bullet" {
				blank()
			}
			out = append(out, "- "+bulletLine.FindStringSubmatch(trimmed)[1])
			prevList = "bullet"
		case numberedLine.MatchString(trimmed):
			if prevList != "numbered" {
				blank()
			}
			m := numberedLine.FindStringSubmatch(trimmed)
			out = append(out, m[1]+". "+m[2])
			prevList = "numbered"
		default:
			blank()
			out = append(out, tightHeading.ReplaceAllString(trimmed, "$1 $2"), "")
			prevList = ""
		}
	}
	if inFence {
		out = append(out, "```")
	}
	return strings.Join(out, "\n")
}

func summary(raw string) string {
	scanned := 0
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		scanned++
		if scanned > summaryScan {
			break
		}
		if !summaryWords.MatchString(line) {
			continue
		}
		clean := strings.TrimSpace(markupChars.ReplaceAllString(line, ""))
		clean = strings.TrimLeft(clean, "-+• ")
		if len(clean) <= summaryMinLen {
			continue
		}
		if len(clean) > summaryMaxLen {
			clean = truncateRunes(clean, summaryMaxLen) + "..."
		}
		return clean
	}
	return defaultSummary
}

func countSections(raw string) int {
	n := 0
	inFence := false
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "```") {
			inFence = !inFence
			continue
		}
		if !inFence && sectionLine.MatchString(line) {
			n++
		}
	}
	return max(n, 1)
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

// Terminal renders markdown for a terminal. Rendering errors fall back to the
// raw text.
func Terminal(raw string, width int) string {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		log.Printf("format terminal renderer error: %v", err)
		return raw
	}
	out, err := r.Render(raw)
	if err != nil {
		log.Printf("format terminal render error: %v", err)
		return raw
	}
	return out
}

// Footer is the one-line metadata trailer shown under CLI and Slack output.
func Footer(modules, premises int, model, mode string) string {
	return fmt.Sprintf("%d modules · %d premises · model %s · mode %s", modules, premises, model, mode)
}
