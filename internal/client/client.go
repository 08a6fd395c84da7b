// Package client submits requests to the relay and waits for their single
// terminal reply.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/HsiangNianian/promptrelay/internal/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type Timeouts struct {
	Inject time.Duration
	Focus  time.Duration
	Debug  time.Duration
}

type Client struct {
	URL      string
	Header   http.Header
	Dialer   *websocket.Dialer
	Timeouts Timeouts

	// OnHeartbeat is called for every heartbeat of the request in flight.
	OnHeartbeat func(*protocol.Heartbeat)

	Logger *log.Logger
}

func New(url string) *Client {
	return &Client{
		URL: url,
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 2 * time.Second,
		},
		Timeouts: Timeouts{
			Inject: 120 * time.Second,
			Focus:  20 * time.Second,
			Debug:  20 * time.Second,
		},
		Logger: log.New(io.Discard, "", 0),
	}
}

type Request struct {
	Kind          protocol.Kind
	Message       string
	OutputFormat  string
	CorrelationID string
}

type Result struct {
	CorrelationID string
	Response      *protocol.Response
	Heartbeats    int
	Elapsed       time.Duration
}

// Submit sends one request and blocks until its terminal reply, the client
// deadline, or ctx cancellation. Heartbeats never extend the deadline.
func (c *Client) Submit(ctx context.Context, req Request, timeout time.Duration) (*Result, error) {
	if req.Kind == "" {
		req.Kind = protocol.KindInject
	}
	if timeout <= 0 {
		timeout = c.timeoutFor(req.Kind)
	}
	id := req.CorrelationID
	if id == "" {
		id = uuid.NewString()
	}

	start := time.Now()
	deadline := start.Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	conn, err := c.dial(ctx, deadline)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	out := &protocol.CLIRequest{
		Header:       protocol.Header{CorrelationID: id},
		RequestType:  req.Kind,
		Message:      req.Message,
		OutputFormat: req.OutputFormat,
	}
	data, err := protocol.Encode(out)
	if err != nil {
		return nil, err
	}
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return nil, c.unavailable(id, "send request failed", err)
	}
	c.Logger.Printf("sent cli_request: correlation_id=%s kind=%s timeout=%s", id, req.Kind, timeout)

	acked := false
	beats := 0
	for {
		_ = conn.SetReadDeadline(deadline)
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, ctx.Err()
			}
			var ne net.Error
			if ctx.Err() != nil || (errors.As(err, &ne) && ne.Timeout()) {
				return nil, &Error{
					Kind:          KindTimeout,
					Type:          protocol.ErrClientTimeout,
					CorrelationID: id,
					Message:       fmt.Sprintf("no %s response within %s (heartbeats=%d)", req.Kind, timeout, beats),
					Err:           err,
				}
			}
			return nil, c.unavailable(id, "connection to relay lost", err)
		}

		msg, err := protocol.Decode(frame)
		if err != nil {
			c.Logger.Printf("drop frame: correlation_id=%s err=%v", id, err)
			continue
		}

		if !acked {
			switch m := msg.(type) {
			case *protocol.Ack:
				if m.ID() != "" && m.ID() != id {
					return nil, violation(id, "ack for %q", m.ID())
				}
				acked = true
				c.Logger.Printf("ack: correlation_id=%s status=%s", id, m.Status)
				continue
			case *protocol.Error:
				return nil, remote(id, m)
			default:
				return nil, violation(id, "expected ack, got %s", msg.MessageType())
			}
		}

		if msg.ID() != "" && msg.ID() != id {
			c.Logger.Printf("ignore %s for other request: correlation_id=%s", msg.MessageType(), msg.ID())
			continue
		}
		switch m := msg.(type) {
		case *protocol.Heartbeat:
			beats++
			if c.OnHeartbeat != nil {
				c.OnHeartbeat(m)
			}
		case *protocol.Error:
			return nil, remote(id, m)
		case *protocol.Response:
			return &Result{
				CorrelationID: id,
				Response:      m,
				Heartbeats:    beats,
				Elapsed:       time.Since(start),
			}, nil
		default:
			return nil, violation(id, "unexpected %s after ack", msg.MessageType())
		}
	}
}

// Ask submits a prompt.
func (c *Client) Ask(ctx context.Context, message, outputFormat string) (*Result, error) {
	return c.Submit(ctx, Request{Kind: protocol.KindInject, Message: message, OutputFormat: outputFormat}, c.Timeouts.Inject)
}

// FocusTab asks the executor to bring the target page to the foreground. The
// returned string is the executor's reason when it could not.
func (c *Client) FocusTab(ctx context.Context) (bool, string, error) {
	res, err := c.Submit(ctx, Request{Kind: protocol.KindFocusTab}, c.Timeouts.Focus)
	if err != nil {
		return false, "", err
	}
	r := res.Response
	return r.Success != nil && *r.Success, r.Error, nil
}

// DebugTabs lists the pages the executor can see.
func (c *Client) DebugTabs(ctx context.Context) ([]protocol.Tab, error) {
	res, err := c.Submit(ctx, Request{Kind: protocol.KindDebugTabs}, c.Timeouts.Debug)
	if err != nil {
		return nil, err
	}
	return res.Response.Tabs, nil
}

// Ping checks that the relay accepts connections.
func (c *Client) Ping(ctx context.Context) error {
	conn, err := c.dial(ctx, time.Now().Add(c.dialer().HandshakeTimeout+time.Second))
	if err != nil {
		return err
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return conn.Close()
}

func (c *Client) dial(ctx context.Context, deadline time.Time) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	conn, resp, err := c.dialer().DialContext(dialCtx, c.URL, c.Header)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := fmt.Sprintf("cannot connect to relay at %s", c.URL)
		if resp != nil {
			msg = fmt.Sprintf("%s (http %d)", msg, resp.StatusCode)
		}
		return nil, c.unavailable("", msg, err)
	}
	return conn, nil
}

func (c *Client) dialer() *websocket.Dialer {
	if c.Dialer != nil {
		return c.Dialer
	}
	return websocket.DefaultDialer
}

func (c *Client) timeoutFor(k protocol.Kind) time.Duration {
	var d time.Duration
	switch k {
	case protocol.KindFocusTab:
		d = c.Timeouts.Focus
	case protocol.KindDebugTabs:
		d = c.Timeouts.Debug
	default:
		d = c.Timeouts.Inject
	}
	if d <= 0 {
		d = 120 * time.Second
	}
	return d
}

func (c *Client) unavailable(id, msg string, err error) *Error {
	c.Logger.Printf("relay unavailable: url=%s err=%v", c.URL, err)
	return &Error{
		Kind:          KindUnavailable,
		Type:          protocol.ErrServerNotRunning,
		CorrelationID: id,
		Message:       msg,
		Err:           err,
	}
}

func remote(id string, m *protocol.Error) *Error {
	if m.ID() != "" {
		id = m.ID()
	}
	return &Error{Kind: KindRemote, Type: m.ErrorType, CorrelationID: id, Message: m.Error}
}

func violation(id, format string, args ...any) *Error {
	return &Error{
		Kind:          KindProtocol,
		Type:          protocol.ErrProtocolViolation,
		CorrelationID: id,
		Message:       fmt.Sprintf(format, args...),
	}
}
