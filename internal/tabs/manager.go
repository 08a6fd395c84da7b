// Package tabs finds the chat page among the executor's tabs and brings it to
// the foreground, opening a new one when none exists.
package tabs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/HsiangNianian/promptrelay/internal/config"
	"github.com/HsiangNianian/promptrelay/internal/protocol"
)

var (
	ErrBrowserNotRunning = errors.New("browser not running")
	ErrNoTab             = errors.New("no matching tab")
	ErrFocusRejected     = errors.New("executor could not focus tab")
)

// Requester is the subset of the relay client the manager needs.
type Requester interface {
	Ping(ctx context.Context) error
	DebugTabs(ctx context.Context) ([]protocol.Tab, error)
	FocusTab(ctx context.Context) (bool, string, error)
}

// Host controls the browser process hosting the executor.
type Host interface {
	Running(ctx context.Context) (bool, error)
	Launch(ctx context.Context) error
	OpenPage(ctx context.Context, url string) error
}

type Manager struct {
	relay  Requester
	host   Host
	cfg    config.TabsConfig
	logger *log.Logger
	sleep  func(context.Context, time.Duration) error
}

func NewManager(relay Requester, host Host, cfg config.TabsConfig) *Manager {
	return &Manager{
		relay:  relay,
		host:   host,
		cfg:    cfg,
		logger: log.New(io.Discard, "", 0),
		sleep:  sleepContext,
	}
}

func (m *Manager) SetLogger(logger *log.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// List returns every tab the executor reports.
func (m *Manager) List(ctx context.Context) ([]protocol.Tab, error) {
	return m.relay.DebugTabs(ctx)
}

// Discover returns the tabs that look like the chat page.
func (m *Manager) Discover(ctx context.Context) ([]protocol.Tab, error) {
	all, err := m.relay.DebugTabs(ctx)
	if err != nil {
		return nil, err
	}
	return m.Filter(all), nil
}

// Filter keeps tabs on a configured domain whose title carries a keyword.
// Internal browser pages never match.
func (m *Manager) Filter(all []protocol.Tab) []protocol.Tab {
	var out []protocol.Tab
	for _, tab := range all {
		if m.matches(tab) {
			out = append(out, tab)
		}
	}
	return out
}

func (m *Manager) matches(tab protocol.Tab) bool {
	url := strings.ToLower(tab.URL)
	for _, scheme := range m.cfg.ExcludedSchemes {
		if strings.HasPrefix(url, strings.ToLower(scheme)) {
			return false
		}
	}
	if !containsAny(url, m.cfg.Domains) {
		return false
	}
	return containsAny(strings.ToLower(tab.Title), m.cfg.TitleKeywords)
}

// EnsureFocused makes sure a chat tab exists and is in the foreground.
func (m *Manager) EnsureFocused(ctx context.Context) (protocol.Tab, error) {
	if err := m.relay.Ping(ctx); err != nil {
		return protocol.Tab{}, err
	}
	if err := m.ensureBrowser(ctx); err != nil {
		return protocol.Tab{}, err
	}

	found, err := m.Discover(ctx)
	if err != nil {
		return protocol.Tab{}, err
	}
	if len(found) == 0 {
		m.logger.Printf("no chat tab found, opening %s", m.cfg.TargetURL)
		if err := m.host.OpenPage(ctx, m.cfg.TargetURL); err != nil {
			return protocol.Tab{}, fmt.Errorf("open page failed: %w", err)
		}
		if err := m.sleep(ctx, m.cfg.SettleDelay.Duration); err != nil {
			return protocol.Tab{}, err
		}
		if found, err = m.Discover(ctx); err != nil {
			return protocol.Tab{}, err
		}
		if len(found) == 0 {
			return protocol.Tab{}, ErrNoTab
		}
	}
	for _, tab := range found {
		m.logger.Printf("chat tab: id=%d url=%s title=%q active=%t", tab.ID, tab.URL, tab.Title, tab.Active)
	}

	ok, reason, err := m.relay.FocusTab(ctx)
	if err != nil {
		return protocol.Tab{}, err
	}
	if !ok {
		return protocol.Tab{}, fmt.Errorf("%w: %s", ErrFocusRejected, reason)
	}
	return found[0], nil
}

func (m *Manager) ensureBrowser(ctx context.Context) error {
	running, err := m.host.Running(ctx)
	if err != nil {
		return fmt.Errorf("check browser failed: %w", err)
	}
	if running {
		return nil
	}
	if !m.cfg.AutoLaunch {
		return ErrBrowserNotRunning
	}
	m.logger.Printf("browser not running, launching")
	if err := m.host.Launch(ctx); err != nil {
		return fmt.Errorf("launch browser failed: %w", err)
	}
	return nil
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
