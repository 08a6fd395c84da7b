package tabs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/HsiangNianian/promptrelay/internal/config"
	"github.com/HsiangNianian/promptrelay/internal/protocol"
)

type fakeRelay struct {
	pingErr   error
	listings  [][]protocol.Tab
	listCalls int
	focusOK   bool
	focused   int
}

func (f *fakeRelay) Ping(context.Context) error { return f.pingErr }

func (f *fakeRelay) DebugTabs(context.Context) ([]protocol.Tab, error) {
	i := f.listCalls
	if i >= len(f.listings) {
		i = len(f.listings) - 1
	}
	f.listCalls++
	return f.listings[i], nil
}

func (f *fakeRelay) FocusTab(context.Context) (bool, string, error) {
	f.focused++
	if !f.focusOK {
		return false, "window minimized", nil
	}
	return true, "", nil
}

type fakeHost struct {
	running  bool
	launched bool
	opened   []string
}

func (h *fakeHost) Running(context.Context) (bool, error) { return h.running, nil }

func (h *fakeHost) Launch(context.Context) error {
	h.launched = true
	h.running = true
	return nil
}

func (h *fakeHost) OpenPage(_ context.Context, url string) error {
	h.opened = append(h.opened, url)
	return nil
}

var (
	chatTab     = protocol.Tab{ID: 7, URL: "https://chatgpt.com/c/abc", Title: "ChatGPT"}
	newTab      = protocol.Tab{ID: 1, URL: "chrome://newtab/", Title: "New Tab"}
	docsTab     = protocol.Tab{ID: 2, URL: "https://platform.openai.com/docs", Title: "API Reference"}
	internalTab = protocol.Tab{ID: 3, URL: "chrome-extension://xyz/chatgpt.com", Title: "ChatGPT helper"}
)

func newTestManager(relay *fakeRelay, host *fakeHost, mutate func(*config.TabsConfig)) (*Manager, *[]time.Duration) {
	cfg := config.Default().Tabs
	if mutate != nil {
		mutate(&cfg)
	}
	m := NewManager(relay, host, cfg)
	var slept []time.Duration
	m.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return m, &slept
}

func TestFilter(t *testing.T) {
	m, _ := newTestManager(&fakeRelay{}, &fakeHost{}, nil)
	got := m.Filter([]protocol.Tab{newTab, docsTab, internalTab, chatTab})
	if len(got) != 1 || got[0].ID != chatTab.ID {
		t.Fatalf("Filter() = %#v", got)
	}
}

func TestEnsureFocusedExistingTab(t *testing.T) {
	relay := &fakeRelay{listings: [][]protocol.Tab{{newTab, chatTab}}, focusOK: true}
	host := &fakeHost{running: true}
	m, slept := newTestManager(relay, host, nil)

	tab, err := m.EnsureFocused(context.Background())
	if err != nil {
		t.Fatalf("EnsureFocused() error = %v", err)
	}
	if tab.ID != chatTab.ID || relay.focused != 1 {
		t.Fatalf("tab = %#v focused = %d", tab, relay.focused)
	}
	if len(host.opened) != 0 || len(*slept) != 0 {
		t.Fatalf("unexpected open: %v %v", host.opened, *slept)
	}
}

func TestEnsureFocusedOpensPageAndRetries(t *testing.T) {
	relay := &fakeRelay{listings: [][]protocol.Tab{{newTab}, {newTab, chatTab}}, focusOK: true}
	host := &fakeHost{running: true}
	m, slept := newTestManager(relay, host, nil)

	if _, err := m.EnsureFocused(context.Background()); err != nil {
		t.Fatalf("EnsureFocused() error = %v", err)
	}
	if len(host.opened) != 1 || host.opened[0] != "https://chatgpt.com/" {
		t.Fatalf("opened = %v", host.opened)
	}
	if len(*slept) != 1 || (*slept)[0] != 8*time.Second {
		t.Fatalf("slept = %v", *slept)
	}
	if relay.listCalls != 2 {
		t.Fatalf("listCalls = %d", relay.listCalls)
	}
}

func TestEnsureFocusedGivesUpAfterOneRetry(t *testing.T) {
	relay := &fakeRelay{listings: [][]protocol.Tab{{newTab}}, focusOK: true}
	m, _ := newTestManager(relay, &fakeHost{running: true}, nil)

	_, err := m.EnsureFocused(context.Background())
	if !errors.Is(err, ErrNoTab) {
		t.Fatalf("err = %v, want ErrNoTab", err)
	}
	if relay.focused != 0 {
		t.Fatal("focus must not be requested without a tab")
	}
}

func TestEnsureFocusedBrowser(t *testing.T) {
	relay := &fakeRelay{listings: [][]protocol.Tab{{chatTab}}, focusOK: true}

	m, _ := newTestManager(relay, &fakeHost{}, nil)
	if _, err := m.EnsureFocused(context.Background()); !errors.Is(err, ErrBrowserNotRunning) {
		t.Fatalf("err = %v, want ErrBrowserNotRunning", err)
	}

	host := &fakeHost{}
	m, _ = newTestManager(relay, host, func(c *config.TabsConfig) { c.AutoLaunch = true })
	if _, err := m.EnsureFocused(context.Background()); err != nil {
		t.Fatalf("EnsureFocused() error = %v", err)
	}
	if !host.launched {
		t.Fatal("browser was not launched")
	}
}

func TestEnsureFocusedFailures(t *testing.T) {
	down := errors.New("relay down")
	m, _ := newTestManager(&fakeRelay{pingErr: down}, &fakeHost{running: true}, nil)
	if _, err := m.EnsureFocused(context.Background()); !errors.Is(err, down) {
		t.Fatalf("err = %v", err)
	}

	relay := &fakeRelay{listings: [][]protocol.Tab{{chatTab}}}
	m, _ = newTestManager(relay, &fakeHost{running: true}, nil)
	if _, err := m.EnsureFocused(context.Background()); !errors.Is(err, ErrFocusRejected) {
		t.Fatalf("err = %v, want ErrFocusRejected", err)
	}
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if err := sleepContext(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
}
