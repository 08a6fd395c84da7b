package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeVariants(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Type
	}{
		{"register", `{"type":"extension_register"}`, TypeRegister},
		{"cli request", `{"type":"cli_request","message":"hi"}`, TypeCLIRequest},
		{"ack", `{"type":"ack","status":"accepted","correlationId":"a"}`, TypeAck},
		{"heartbeat", `{"type":"heartbeat","correlationId":"a"}`, TypeHeartbeat},
		{"response", `{"type":"response","correlationId":"a","response":"pong"}`, TypeResponse},
		{"error", `{"type":"error","error":"x","error_type":"response_timeout"}`, TypeError},
		{"inject", `{"type":"inject","correlationId":"a","message":"m"}`, TypeInject},
		{"focus", `{"type":"focus_tab","correlationId":"a"}`, TypeFocusTab},
		{"debug", `{"type":"debug_tabs","correlationId":"a"}`, TypeDebugTabs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Decode([]byte(tt.in))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if m.MessageType() != tt.want {
				t.Fatalf("MessageType() = %s, want %s", m.MessageType(), tt.want)
			}
		})
	}
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	m, err := Decode([]byte(`{"type":"cli_request","message":"ping","future_field":{"a":1}}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	req, ok := m.(*CLIRequest)
	if !ok {
		t.Fatalf("got %T, want *CLIRequest", m)
	}
	if req.Message != "ping" {
		t.Fatalf("Message = %q", req.Message)
	}
	if req.Kind() != KindInject {
		t.Fatalf("Kind() = %s, want inject default", req.Kind())
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode([]byte(`{not json`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("malformed: err = %v", err)
	}
	if _, err := Decode([]byte(`{"message":"x"}`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("missing type: err = %v", err)
	}
	if _, err := Decode([]byte(`{"type":"subscribe"}`)); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("unknown type: err = %v", err)
	}
	if _, err := Decode([]byte(`{"type":"response","tabs":"nope"}`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("bad payload: err = %v", err)
	}
}

func TestDecodeLegacyMessageID(t *testing.T) {
	m, err := Decode([]byte(`{"type":"cli_request","request_type":"focus_tab","messageId":"legacy-1"}`))
	if err != nil {
		t.Fatal(err)
	}
	if m.ID() != "legacy-1" {
		t.Fatalf("ID() = %q, want legacy-1", m.ID())
	}

	m, err = Decode([]byte(`{"type":"response","correlationId":"new","messageId":"old"}`))
	if err != nil {
		t.Fatal(err)
	}
	if m.ID() != "new" {
		t.Fatalf("correlationId should win, got %q", m.ID())
	}
}

func TestEncodeSetsTypeAndTimestamp(t *testing.T) {
	b, err := Encode(&Ack{Header: Header{Type: TypeError, CorrelationID: "c1"}, Status: AckAccepted})
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatal(err)
	}
	if raw["type"] != "ack" {
		t.Fatalf("type = %v, want ack", raw["type"])
	}
	if raw["correlationId"] != "c1" {
		t.Fatalf("correlationId = %v", raw["correlationId"])
	}
	if ts, ok := raw["timestamp"].(float64); !ok || ts <= 0 {
		t.Fatalf("timestamp = %v", raw["timestamp"])
	}
}

func TestWorkOrder(t *testing.T) {
	inj := WorkOrder("a", &CLIRequest{Message: "hello"})
	if i, ok := inj.(*Inject); !ok || i.Message != "hello" || i.OutputFormat != "json" || i.ID() != "a" {
		t.Fatalf("inject work order = %#v", inj)
	}
	if _, ok := WorkOrder("b", &CLIRequest{RequestType: KindFocusTab}).(*FocusTab); !ok {
		t.Fatal("expected *FocusTab")
	}
	if _, ok := WorkOrder("c", &CLIRequest{RequestType: KindDebugTabs}).(*DebugTabs); !ok {
		t.Fatal("expected *DebugTabs")
	}
}

func TestProject(t *testing.T) {
	yes := true
	src := &Response{
		Response: "pong",
		HTML:     "<p>pong</p>",
		Success:  &yes,
		Tabs:     []Tab{{ID: 1, URL: "https://chatgpt.com/"}, {ID: 2}},
	}

	inj := Project(KindInject, "x", src)
	if inj.Response != "pong" || inj.HTML != "<p>pong</p>" || inj.Success != nil || inj.Tabs != nil {
		t.Fatalf("inject projection = %#v", inj)
	}

	focus := Project(KindFocusTab, "x", src)
	if focus.Success == nil || !*focus.Success || focus.Response != "" {
		t.Fatalf("focus projection = %#v", focus)
	}
	if f := Project(KindFocusTab, "x", &Response{}); f.Success == nil || *f.Success {
		t.Fatalf("missing success should project to false, got %#v", f.Success)
	}

	dbg := Project(KindDebugTabs, "x", src)
	if dbg.TabCount == nil || *dbg.TabCount != 2 || len(dbg.Tabs) != 2 {
		t.Fatalf("debug projection = %#v", dbg)
	}
	if dbg.ID() != "x" {
		t.Fatalf("ID() = %q", dbg.ID())
	}
}

func TestKindHelpers(t *testing.T) {
	if !KindDebugTabs.Valid() || Kind("reload").Valid() {
		t.Fatal("Valid() mismatch")
	}
	if Timeout(KindInject) != ErrResponseTimeout || Timeout(KindFocusTab) != ErrFocusTimeout || Timeout(KindDebugTabs) != ErrDebugTimeout {
		t.Fatal("Timeout() mismatch")
	}
	if ForwardFailure(KindInject) != ErrInjectionFailed || ForwardFailure(KindFocusTab) != ErrFocusTabFailed {
		t.Fatal("ForwardFailure() mismatch")
	}
}
