// Package host probes, launches and drives the browser that runs the executor
// extension.
package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/HsiangNianian/promptrelay/internal/config"
)

var ErrLaunchTimeout = errors.New("browser did not start in time")

// Runner executes external commands. Output blocks until the command exits,
// Start returns once it is running.
type Runner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	Start(name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

func (execRunner) Start(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

type ExecHost struct {
	Process string
	Binary  string
	GOOS    string

	LaunchWait   time.Duration
	PollInterval time.Duration

	runner Runner
}

func New(cfg config.TabsConfig) *ExecHost {
	return &ExecHost{
		Process:      cfg.BrowserProcess,
		Binary:       cfg.BrowserBinary,
		GOOS:         runtime.GOOS,
		LaunchWait:   30 * time.Second,
		PollInterval: time.Second,
		runner:       execRunner{},
	}
}

// WithRunner replaces the command runner.
func (h *ExecHost) WithRunner(r Runner) *ExecHost {
	h.runner = r
	return h
}

// Running reports whether a process with the configured name exists.
func (h *ExecHost) Running(ctx context.Context) (bool, error) {
	if h.GOOS == "windows" {
		out, err := h.runner.Output(ctx, "tasklist")
		if err != nil {
			return false, fmt.Errorf("tasklist failed: %w", err)
		}
		return bytes.Contains(bytes.ToLower(out), []byte(strings.ToLower(h.Process)+".exe")), nil
	}
	out, err := h.runner.Output(ctx, "pgrep", "-i", h.Process)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return false, nil
		}
		return false, fmt.Errorf("pgrep failed: %w", err)
	}
	return len(bytes.TrimSpace(out)) > 0, nil
}

// Launch starts the browser and polls until its process shows up.
func (h *ExecHost) Launch(ctx context.Context) error {
	bin := h.Binary
	if bin == "" {
		bin = h.Process
	}
	if err := h.runner.Start(bin); err != nil {
		return fmt.Errorf("start %s failed: %w", bin, err)
	}

	deadline := time.Now().Add(h.LaunchWait)
	ticker := time.NewTicker(h.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if ok, err := h.Running(ctx); err == nil && ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrLaunchTimeout
		}
	}
}

// OpenPage opens url in the system default browser.
func (h *ExecHost) OpenPage(_ context.Context, url string) error {
	var name string
	var args []string
	switch h.GOOS {
	case "windows":
		name, args = "cmd", []string{"/c", "start", "", url}
	case "darwin":
		name, args = "open", []string{url}
	default:
		name, args = "xdg-open", []string{url}
	}
	if err := h.runner.Start(name, args...); err != nil {
		return fmt.Errorf("open %s failed: %w", url, err)
	}
	return nil
}
