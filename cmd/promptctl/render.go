package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/HsiangNianian/promptrelay/internal/client"
	"github.com/HsiangNianian/promptrelay/internal/host"
	"github.com/HsiangNianian/promptrelay/internal/scrape"
	"github.com/HsiangNianian/promptrelay/internal/tabs"
	"github.com/charmbracelet/lipgloss"
)

var (
	errorTitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff6b9d")).Bold(true)
	errorBoxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#ff6b9d")).
			Padding(0, 1)
	recoveryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7ee787"))
)

// localHints covers failures that never reach the relay.
var localHints = []struct {
	err  error
	hint client.Hint
}{
	{tabs.ErrBrowserNotRunning, client.Hint{
		Title:       "Browser not running",
		Description: "The browser hosting the extension is not running.",
		Recovery:    "Start the browser, or set tabs.auto_launch in the config.",
	}},
	{tabs.ErrNoTab, client.HintFor("chatgpt_tab_missing")},
	{tabs.ErrFocusRejected, client.Hint{
		Title:       "Focus failed",
		Description: "The extension could not bring the chat tab to the foreground.",
		Recovery:    "Check that the browser window is not minimized and try again.",
	}},
	{host.ErrLaunchTimeout, client.Hint{
		Title:       "Browser launch timeout",
		Description: "The browser process did not appear after launching it.",
		Recovery:    "Set tabs.browser_binary to the browser executable.",
	}},
	{scrape.ErrNotFound, client.Hint{
		Title:       "Nothing to extract",
		Description: "No JSON line with the requested key was found.",
		Recovery:    "Check --key and the command output.",
	}},
}

func hintFor(err error) (client.Hint, bool) {
	var ce *client.Error
	if errors.As(err, &ce) {
		return ce.Hint(), true
	}
	for _, lh := range localHints {
		if errors.Is(err, lh.err) {
			return lh.hint, true
		}
	}
	return client.Hint{}, false
}

func formatError(err error) string {
	h, ok := hintFor(err)
	if !ok {
		return errorTitleStyle.Render("Error: ") + err.Error()
	}
	var b strings.Builder
	b.WriteString(errorTitleStyle.Render(h.Title))
	b.WriteString("\n")
	b.WriteString(h.Description)
	b.WriteString("\n\n")
	b.WriteString(err.Error())
	if h.Recovery != "" {
		b.WriteString("\n\n")
		b.WriteString(recoveryStyle.Render("→ " + h.Recovery))
	}
	return errorBoxStyle.Render(b.String())
}

func renderError(w io.Writer, err error) {
	fmt.Fprintln(w, formatError(err))
}
