// Package output renders search results and evaluation reports for the CLI.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/pagewise-ai/pagewise/internal/eval"
	"github.com/pagewise-ai/pagewise/internal/search"
)

// Color palette.
const (
	colorAccent   = "39"  // blue accent for headers and scores
	colorGray     = "245" // secondary text
	colorDarkGray = "238" // separators
	colorRed      = "196" // failures
	colorGreen    = "35"  // passes
	colorYellow   = "220" // degradation warnings
)

// Styles holds the renderer's lipgloss styles.
type Styles struct {
	Header  lipgloss.Style
	Score   lipgloss.Style
	Label   lipgloss.Style
	Dim     lipgloss.Style
	Warning lipgloss.Style
	Pass    lipgloss.Style
	Fail    lipgloss.Style
}

// DefaultStyles returns styled components for terminal output.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorAccent)),
		Score:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorAccent)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(colorDarkGray)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(colorYellow)),
		Pass:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorGreen)),
		Fail:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)),
	}
}

// NoColorStyles returns unstyled components for plain/piped output.
func NoColorStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle(),
		Score:   lipgloss.NewStyle(),
		Label:   lipgloss.NewStyle(),
		Dim:     lipgloss.NewStyle(),
		Warning: lipgloss.NewStyle(),
		Pass:    lipgloss.NewStyle(),
		Fail:    lipgloss.NewStyle(),
	}
}

// Renderer writes human-readable output.
type Renderer struct {
	w      io.Writer
	styles Styles
}

// NewRenderer creates a renderer for w, with colors when w is a terminal.
func NewRenderer(w io.Writer) *Renderer {
	styles := NoColorStyles()
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		styles = DefaultStyles()
	}
	return &Renderer{w: w, styles: styles}
}

// snippetLen bounds the text preview per result.
const snippetLen = 160

// RenderResponse writes one search response.
func (r *Renderer) RenderResponse(resp *search.Response) {
	s := r.styles

	switch resp.Status {
	case search.StatusNoRetrieval:
		fmt.Fprintln(r.w, s.Fail.Render("no retrieval: all indices unavailable"))
		return
	case search.StatusNoResults:
		fmt.Fprintln(r.w, s.Label.Render("no results"))
	}

	if resp.Degraded {
		fmt.Fprintln(r.w, s.Warning.Render(
			fmt.Sprintf("degraded: %s unavailable", strings.Join(resp.DegradedIndexes, ", "))))
	}

	for _, res := range resp.Results {
		header := fmt.Sprintf("%d. %s  p.%d", res.Rank, res.DocumentID, res.PageNumber)
		fmt.Fprintln(r.w, s.Header.Render(header))

		score := fmt.Sprintf("   score %.4f  (lex %.3f, vec %.3f", res.FinalScore,
			res.Breakdown.Lexical, res.Breakdown.Vector)
		if res.Breakdown.Rerank != nil {
			score += fmt.Sprintf(", rerank %.3f", *res.Breakdown.Rerank)
		}
		if res.Breakdown.StructuredBoost > 0 {
			score += fmt.Sprintf(", boost %.3f", res.Breakdown.StructuredBoost)
		}
		score += ")"
		fmt.Fprintln(r.w, s.Score.Render(score))

		if !res.Metadata.Empty() {
			fmt.Fprintln(r.w, s.Label.Render("   "+formatMetadata(res)))
		}
		fmt.Fprintln(r.w, "   "+snippet(res.Text))
		fmt.Fprintln(r.w)
	}

	footer := fmt.Sprintf("generation %s  took %s", resp.GenerationID, resp.Took.Round(0))
	if resp.Reranked {
		footer += "  reranked"
	}
	fmt.Fprintln(r.w, r.styles.Dim.Render(footer))
}

// RenderReport writes an evaluation report with the decision gate.
func (r *Renderer) RenderReport(report *eval.Report) {
	s := r.styles

	fmt.Fprintln(r.w, s.Header.Render("Evaluation Report"))
	for _, cr := range report.Results {
		mark := s.Pass.Render("PASS")
		if !cr.Passed {
			mark = s.Fail.Render("FAIL")
		}
		fmt.Fprintf(r.w, "  %s  %s  %s\n", mark, cr.Latency.Round(0), snippet(cr.Case.Query))
		if !cr.Passed {
			fmt.Fprintln(r.w, s.Label.Render(
				fmt.Sprintf("        expected p.%d, got pages %v", cr.Case.ExpectedPage, cr.TopPages)))
		}
	}

	fmt.Fprintln(r.w)
	fmt.Fprintf(r.w, "accuracy %d/%d = %.2f  p50 %s  p95 %s\n",
		report.Passed, report.Total, report.Accuracy,
		report.P50.Round(0), report.P95.Round(0))

	gate := s.Fail.Render(fmt.Sprintf("GATE FAIL (< %.2f)", report.Threshold))
	if report.Pass {
		gate = s.Pass.Render(fmt.Sprintf("GATE PASS (>= %.2f)", report.Threshold))
	}
	fmt.Fprintln(r.w, gate)
}

func formatMetadata(res *search.Result) string {
	parts := make([]string, 0, 3)
	if res.Metadata.FiscalPeriod != "" {
		parts = append(parts, res.Metadata.FiscalPeriod)
	}
	if res.Metadata.CompanyName != "" {
		parts = append(parts, res.Metadata.CompanyName)
	}
	if res.Metadata.DepartmentName != "" {
		parts = append(parts, res.Metadata.DepartmentName)
	}
	return strings.Join(parts, " / ")
}

func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= snippetLen {
		return text
	}
	// Back up to a rune boundary so the cut never splits a multi-byte
	// character.
	cut := snippetLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "…"
}
