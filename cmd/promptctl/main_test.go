package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/HsiangNianian/promptrelay/internal/client"
	"github.com/HsiangNianian/promptrelay/internal/protocol"
	"github.com/HsiangNianian/promptrelay/internal/tabs"
)

func TestWriteAnswer(t *testing.T) {
	resp := &protocol.Response{Response: "Paris", HTML: "<p>Paris</p>"}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	if err := writeAnswer(&buf, "json", "capital?", resp, now); err != nil {
		t.Fatal(err)
	}
	var got answer
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode json output: %v\n%s", err, buf.String())
	}
	want := answer{Provider: "chatgpt", Method: "extension", Timestamp: "2025-03-01T12:00:00Z", Prompt: "capital?", Response: "Paris", HTML: "<p>Paris</p>"}
	if got != want {
		t.Fatalf("answer = %#v, want %#v", got, want)
	}

	tests := []struct {
		format string
		resp   *protocol.Response
		want   string
	}{
		{"raw", resp, "Paris\n"},
		{"html", resp, "<p>Paris</p>\n"},
		{"html", &protocol.Response{Response: "<div>inline</div>", HTML: "<p>x</p>"}, "<div>inline</div>\n"},
	}
	for _, tt := range tests {
		buf.Reset()
		if err := writeAnswer(&buf, tt.format, "q", tt.resp, now); err != nil {
			t.Fatal(err)
		}
		if buf.String() != tt.want {
			t.Errorf("%s: got %q, want %q", tt.format, buf.String(), tt.want)
		}
	}
}

func TestWriteTabs(t *testing.T) {
	var buf bytes.Buffer
	err := writeTabs(&buf, []protocol.Tab{{ID: 4, URL: "https://chatgpt.com/", Title: "ChatGPT", Active: true}})
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "ID") || !strings.Contains(lines[1], "https://chatgpt.com/") {
		t.Fatalf("output = %q", buf.String())
	}
}

func TestFormatError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{
			name: "relay error",
			err:  &client.Error{Kind: client.KindRemote, Type: protocol.ErrExtensionNotConnected, Message: "no executor"},
			want: []string{"Extension not connected", "no executor", "Reload the extension"},
		},
		{
			name: "wrapped local error",
			err:  fmt.Errorf("ensure: %w", tabs.ErrBrowserNotRunning),
			want: []string{"Browser not running", "tabs.auto_launch"},
		},
		{
			name: "plain",
			err:  errors.New("a prompt is required"),
			want: []string{"Error:", "a prompt is required"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatError(tt.err)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("formatError() missing %q in:\n%s", w, got)
				}
			}
		})
	}
}

func TestProgressModel(t *testing.T) {
	m := newProgressModel("Waiting")
	if !strings.Contains(m.View(), "waiting for ack") {
		t.Fatalf("initial view = %q", m.View())
	}

	next, _ := m.Update(heartbeatMsg{elapsed: 3 * time.Second})
	m = next.(progressModel)
	next, _ = m.Update(heartbeatMsg{elapsed: 6 * time.Second})
	m = next.(progressModel)
	if m.beats != 2 || !strings.Contains(m.View(), "6s elapsed, 2 heartbeats") {
		t.Fatalf("view = %q", m.View())
	}

	next, cmd := m.Update(m.spinner.Tick())
	m = next.(progressModel)
	if cmd == nil {
		t.Fatal("spinner tick should schedule the next tick")
	}

	next, cmd = m.Update(doneMsg{})
	m = next.(progressModel)
	if !m.done || cmd == nil || m.View() != "" {
		t.Fatalf("done model = %#v", m)
	}
}

func TestAskRejectsBadInput(t *testing.T) {
	var out, errOut bytes.Buffer
	a := &app{stdout: &out, stderr: &errOut}
	root := newRootCmd(a)
	root.SetArgs([]string{"ask", "--url", "ws://127.0.0.1:1/", "-o", "xml", "hello"})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "unknown output format") {
		t.Fatalf("err = %v", err)
	}

	root = newRootCmd(a)
	root.SetArgs([]string{"ask", "--url", "ws://127.0.0.1:1/", "-o", "json"})
	if err := root.Execute(); err == nil || !strings.Contains(err.Error(), "prompt is required") {
		t.Fatalf("err = %v", err)
	}
}

func TestScrapeCommand(t *testing.T) {
	var out bytes.Buffer
	a := &app{stdout: &out, stderr: &bytes.Buffer{}}
	root := newRootCmd(a)
	root.SetIn(strings.NewReader("log line\n{\"response\":\"ChatGPT said: hi\"}\n"))
	root.SetArgs([]string{"scrape", "--key", "response"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if out.String() != "hi\n" {
		t.Fatalf("out = %q", out.String())
	}
}
