package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"charm.land/glamour/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/byteowlz/hstry/internal/search"
	"github.com/byteowlz/hstry/internal/types"
)

var (
	styleDim    = lipgloss.NewStyle().Faint(true)
	styleBold   = lipgloss.NewStyle().Bold(true)
	styleRemote = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

func init() {
	// Respect NO_COLOR / a dumb terminal even when stdout is a TTY
	// (piped through `less -R`, CI runners that fake a TTY), so
	// plain-output mode isn't solely a TTY check.
	if termenv.EnvColorProfile() == termenv.Ascii {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// printJSON marshals v as indented JSON to stdout, used whenever
// --json is set.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// termWidth returns the terminal width for word-wrapping rendered
// output, falling back to 100 columns when stdout isn't a TTY (piped
// output, CI).
func termWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 100
}

func renderHits(hits []search.Hit, truncated bool) error {
	if jsonOutput {
		return printJSON(map[string]any{"hits": hits, "truncated": truncated})
	}
	if len(hits) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, h := range hits {
		conv := h.Conversation
		header := fmt.Sprintf("%d. %s", i+1, firstNonEmpty(conv.Title, conv.ID))
		if h.Remote != "" {
			header += " " + styleRemote.Render("["+h.Remote+"]")
		}
		fmt.Println(styleBold.Render(header))
		fmt.Println(styleDim.Render(fmt.Sprintf("   source=%s workspace=%s rank=%.3f updated=%s",
			conv.SourceID, conv.Workspace, h.Rank, formatTime(conv.UpdatedAt))))
	}
	if truncated {
		fmt.Println(styleDim.Render("(results truncated)"))
	}
	return nil
}

func renderConversation(conv *types.Conversation) error {
	if jsonOutput {
		return printJSON(conv)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", firstNonEmpty(conv.Title, conv.ID))
	fmt.Fprintf(&b, "_source: %s · workspace: %s · %s messages_\n\n", conv.SourceID, conv.Workspace, fmt.Sprint(len(conv.Messages)))
	for _, m := range conv.Messages {
		fmt.Fprintf(&b, "**%s** (%s)\n\n", strings.ToUpper(string(m.Role)), formatTime(m.CreatedAt))
		fmt.Fprintln(&b, m.Content)
		fmt.Fprintln(&b)
	}

	renderer, err := glamour.NewTermRenderer(glamour.WithEnvironmentConfig(), glamour.WithWordWrap(termWidth()))
	if err != nil {
		fmt.Print(b.String())
		return nil
	}
	out, err := renderer.Render(b.String())
	if err != nil {
		fmt.Print(b.String())
		return nil
	}
	fmt.Print(out)
	return nil
}

func renderList(convs []*types.Conversation) error {
	if jsonOutput {
		return printJSON(convs)
	}
	for _, c := range convs {
		fmt.Printf("%-10s %-20s %-30s %s\n", c.ID, c.SourceID, truncate(firstNonEmpty(c.Title, "(untitled)"), 30), formatTime(c.UpdatedAt))
	}
	return nil
}

func formatTime(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format(time.RFC3339)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
