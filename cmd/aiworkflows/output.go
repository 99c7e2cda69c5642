package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/brunobiangulo/aiworkflows"
	"github.com/brunobiangulo/aiworkflows/extract"
	"github.com/brunobiangulo/aiworkflows/llm"
	"github.com/charmbracelet/lipgloss"
)

var (
	// titleStyle for bold headers
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("33"))

	// dimStyle for muted metadata text
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	// boxStyle for summaries
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("33")).
			Padding(0, 1)
)

func cachedLabel(cached bool) string {
	if cached {
		return successStyle.Render("cached")
	}
	return ""
}

func formatMarkdownSummary(w io.Writer, file string, res *aiworkflows.MarkdownResult) {
	lines := []string{
		fmt.Sprintf("%s %s %s", dimStyle.Render("File:"), titleStyle.Render(filepath.Base(file)), cachedLabel(res.Cached)),
		fmt.Sprintf("%s %s", dimStyle.Render("Strategy:"), res.Strategy),
		fmt.Sprintf("%s %d  %s %d", dimStyle.Render("Fragments:"), len(res.Fragments),
			dimStyle.Render("Tokens:"), aiworkflows.CountTokens(res.Markdown)),
	}
	fmt.Fprintln(w, boxStyle.Render(strings.Join(lines, "\n")))
	formatUnitErrors(w, res.Errors)
}

func formatJSONSummary(w io.Writer, source string, res *aiworkflows.JSONResult) {
	status := successStyle.Render(fmt.Sprintf("%d/%d units", res.Succeeded(), len(res.Entries)))
	if res.Succeeded() < len(res.Entries) {
		status = warnStyle.Render(fmt.Sprintf("%d/%d units", res.Succeeded(), len(res.Entries)))
	}
	lines := []string{
		fmt.Sprintf("%s %s %s", dimStyle.Render("Source:"), titleStyle.Render(filepath.Base(source)), cachedLabel(res.Cached)),
	}
	if res.Strategy != "" {
		lines = append(lines, fmt.Sprintf("%s %s", dimStyle.Render("Strategy:"), res.Strategy))
	}
	lines = append(lines, fmt.Sprintf("%s %s", dimStyle.Render("Extracted:"), status))
	fmt.Fprintln(w, boxStyle.Render(strings.Join(lines, "\n")))
	formatUnitErrors(w, res.Errors())
}

func formatPromptSummary(w io.Writer, resp *llm.JSONResponse) {
	fmt.Fprintf(w, "%s %s  %s %d\n",
		dimStyle.Render("Model:"), resp.Model,
		dimStyle.Render("Attempts:"), resp.Attempts)
}

func formatUnitErrors(w io.Writer, errs []extract.UnitError) {
	for _, e := range errs {
		fmt.Fprintf(w, "%s %s\n", errorStyle.Render("✗"), e.Error())
	}
}

func formatPlan(w io.Writer, p *aiworkflows.Plan) {
	pages := fmt.Sprintf("%d", p.Pages)
	if p.RenderedPages > 0 {
		pages += fmt.Sprintf(" (%d rendered)", p.RenderedPages)
	}
	lines := []string{
		fmt.Sprintf("%s %s", dimStyle.Render("File:"), titleStyle.Render(p.File)),
		fmt.Sprintf("%s %s  %s %d bytes", dimStyle.Render("Format:"), p.Format, dimStyle.Render("Size:"), p.Size),
		fmt.Sprintf("%s %s  %s %d  %s %v", dimStyle.Render("Pages:"), pages,
			dimStyle.Render("Tokens:"), p.Tokens, dimStyle.Render("Visuals:"), p.HasVisuals),
		fmt.Sprintf("%s llm=%v vision=%v office=%v", dimStyle.Render("Capabilities:"),
			p.Capabilities.LLM, p.Capabilities.VisionLLM, p.Capabilities.OfficeRenderer),
		fmt.Sprintf("%s %s", dimStyle.Render("Strategy:"), successStyle.Render(string(p.Decision.Strategy))),
	}
	if p.Decision.Markdown != "" && p.Decision.Markdown != p.Decision.Strategy {
		lines = append(lines, fmt.Sprintf("%s %s", dimStyle.Render("Markdown via:"), p.Decision.Markdown))
	}
	lines = append(lines, fmt.Sprintf("%s %s", dimStyle.Render("Reason:"), p.Decision.Reason))
	fmt.Fprintln(w, boxStyle.Render(strings.Join(lines, "\n")))
}
