package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/HsiangNianian/promptrelay/internal/config"
	"github.com/HsiangNianian/promptrelay/internal/protocol"
	"github.com/HsiangNianian/promptrelay/internal/store"
	"github.com/HsiangNianian/promptrelay/internal/ws"
	"github.com/gorilla/websocket"
)

func TestRouter(t *testing.T) {
	cfg := config.Default().Server
	cfg.Path = "/relay"
	hub := ws.NewHub(store.NewMemoryStore(), cfg)
	hub.SetLogger(log.New(io.Discard, "", 0))
	defer hub.Close()
	srv := httptest.NewServer(newRouter(hub, cfg.Path))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	var stats ws.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if stats.Status != "ok" || stats.ExecutorConnected {
		t.Fatalf("stats = %#v", stats)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/relay", nil)
	if err != nil {
		t.Fatalf("dial relay path: %v", err)
	}
	defer conn.Close()
	if err := conn.WriteMessage(websocket.TextMessage, protocol.MustEncode(&protocol.CLIRequest{Message: "hi"})); err != nil {
		t.Fatal(err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	m, err := protocol.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if e, ok := m.(*protocol.Error); !ok || e.ErrorType != protocol.ErrExtensionNotConnected {
		t.Fatalf("got %#v", m)
	}
}

func TestOpenMemoryStore(t *testing.T) {
	st, closeFn, err := openStore(context.Background(), config.StoreConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	if _, ok := st.(*store.MemoryStore); !ok {
		t.Fatalf("store = %T", st)
	}
}
