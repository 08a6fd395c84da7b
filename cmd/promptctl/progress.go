package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/HsiangNianian/promptrelay/internal/client"
	"github.com/HsiangNianian/promptrelay/internal/protocol"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

type heartbeatMsg struct{ elapsed time.Duration }

type doneMsg struct{}

type progressModel struct {
	spinner spinner.Model
	label   string
	beats   int
	elapsed time.Duration
	done    bool
}

var (
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7dd3fc"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8b8fa3"))
)

func newProgressModel(label string) progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle
	return progressModel{spinner: s, label: label}
}

func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case heartbeatMsg:
		m.beats++
		m.elapsed = msg.elapsed
		return m, nil
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) View() string {
	if m.done {
		return ""
	}
	status := "waiting for ack"
	if m.beats > 0 {
		status = fmt.Sprintf("%s elapsed, %d heartbeats", m.elapsed.Round(time.Second), m.beats)
	}
	return fmt.Sprintf("%s %s %s\n", m.spinner.View(), m.label, mutedStyle.Render("("+status+")"))
}

// withProgress runs fn while a spinner on w tracks the request's heartbeats.
// Without a terminal fn runs unadorned.
func withProgress(ctx context.Context, w io.Writer, c *client.Client, label string, fn func() (*client.Result, error)) (*client.Result, error) {
	if !isTerminal(w) {
		return fn()
	}

	p := tea.NewProgram(newProgressModel(label),
		tea.WithContext(ctx),
		tea.WithInput(nil),
		tea.WithOutput(w),
		tea.WithoutSignalHandler(),
	)
	prev := c.OnHeartbeat
	c.OnHeartbeat = func(hb *protocol.Heartbeat) {
		p.Send(heartbeatMsg{elapsed: time.Duration(hb.ElapsedMs) * time.Millisecond})
	}
	defer func() { c.OnHeartbeat = prev }()

	var (
		res *client.Result
		err error
	)
	done := make(chan struct{})
	go func() {
		res, err = fn()
		close(done)
		p.Send(doneMsg{})
	}()
	_, runErr := p.Run()
	<-done
	if err == nil && runErr != nil && ctx.Err() == nil {
		return nil, runErr
	}
	return res, err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
