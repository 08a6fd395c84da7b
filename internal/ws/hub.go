package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/HsiangNianian/promptrelay/internal/config"
	"github.com/HsiangNianian/promptrelay/internal/pending"
	"github.com/HsiangNianian/promptrelay/internal/protocol"
	"github.com/HsiangNianian/promptrelay/internal/store"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	maxFrameBytes = 16 << 20
	storeTimeout  = 2 * time.Second
	idAttempts    = 3
)

// Hub is the relay: it owns the executor slot and the pending-request table
// and serves every websocket connection.
type Hub struct {
	store  store.Store
	cfg    config.ServerConfig
	logger *log.Logger

	upgrader websocket.Upgrader

	pending  *pending.Table
	executor executorSlot

	connMu sync.Mutex
	conns  map[*peer]struct{}
	closed bool

	// gate is held for reading while a request is admitted, so Close never
	// races waiters.Add.
	gate    sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
	waiters sync.WaitGroup
}

func NewHub(st store.Store, cfg config.ServerConfig) *Hub {
	def := config.Default().Server
	if cfg.HeartbeatInterval.Duration <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = def.MaxClients
	}
	if cfg.StatusTTL.Duration <= 0 {
		cfg.StatusTTL = def.StatusTTL
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		store:  st,
		cfg:    cfg,
		logger: log.Default(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		pending: pending.NewTable(),
		conns:   make(map[*peer]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (h *Hub) SetLogger(l *log.Logger) {
	h.logger = l
}

// HandleWS upgrades the connection and runs its read loop until it closes.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	if h.isClosed() {
		http.Error(w, "relay shutting down", http.StatusServiceUnavailable)
		return
	}
	if !h.authorized(r) {
		h.logger.Printf("unauthorized: remote=%s", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade ws failed: %v", err)
		return
	}
	p := newPeer(conn, r.RemoteAddr, h.cfg.WriteTimeout.Duration)
	p.executorHint = executorHint(r)

	if !h.admit(p) {
		if h.isClosed() {
			p.closeWith(websocket.CloseGoingAway, "relay shutting down")
			return
		}
		h.logger.Printf("refuse connection: remote=%s max_clients=%d", r.RemoteAddr, h.cfg.MaxClients)
		p.closeWith(websocket.ClosePolicyViolation, "too many clients")
		return
	}
	h.logger.Printf("connected: conn=%s remote=%s executor_hint=%t active_clients=%d", p.id, p.remote, p.executorHint, h.clientCount())
	h.serve(p)
}

func (h *Hub) authorized(r *http.Request) bool {
	if h.cfg.AuthToken == "" {
		return true
	}
	if r.Header.Get("Authorization") == "Bearer "+h.cfg.AuthToken {
		return true
	}
	return r.URL.Query().Get("token") == h.cfg.AuthToken
}

// executorHint reports whether the connection announced itself as the
// executor at upgrade time, with ?role=executor or an X-Relay-Role header.
func executorHint(r *http.Request) bool {
	return r.URL.Query().Get("role") == "executor" || strings.EqualFold(r.Header.Get("X-Relay-Role"), "executor")
}

// admit tracks p. Only client connections count against MaxClients, so the
// executor can always reconnect to a full relay.
func (h *Hub) admit(p *peer) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.closed {
		return false
	}
	if p.countsAsClient() && h.clientCountLocked() >= h.cfg.MaxClients {
		return false
	}
	h.conns[p] = struct{}{}
	return true
}

func (h *Hub) clientCount() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.clientCountLocked()
}

func (h *Hub) clientCountLocked() int {
	n := 0
	for p := range h.conns {
		if p.countsAsClient() {
			n++
		}
	}
	return n
}

func (h *Hub) isClosed() bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.closed
}

func (h *Hub) serve(p *peer) {
	defer h.disconnect(p)
	p.conn.SetReadLimit(maxFrameBytes)

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Printf("recv failed: conn=%s role=%s err=%v", p.id, p.role(), err)
			}
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			h.logger.Printf("drop frame: conn=%s err=%v", p.id, err)
			continue
		}
		h.logEvent("recv", p, msg)

		switch m := msg.(type) {
		case *protocol.Register:
			h.registerExecutor(p)
		case *protocol.CLIRequest:
			h.handleRequest(p, m)
		case *protocol.Response:
			h.handleResult(p, m.ID(), pending.Result{Response: m})
		case *protocol.Error:
			h.handleResult(p, m.ID(), pending.Result{Error: m})
		default:
			h.logger.Printf("ignore %s from %s: conn=%s", m.MessageType(), p.role(), p.id)
		}
	}
}

func (h *Hub) disconnect(p *peer) {
	h.connMu.Lock()
	delete(h.conns, p)
	h.connMu.Unlock()
	_ = p.conn.Close()

	if h.executor.Clear(p) {
		h.logger.Printf("executor disconnected: conn=%s pending=%d", p.id, h.pending.Len())
		return
	}
	if h.cfg.CancelOnDisconnect {
		for _, id := range h.pending.OwnedBy(p) {
			if h.pending.Remove(id) {
				h.setStatus(id, store.StatusCancelled)
				h.logger.Printf("cancel pending request: correlation_id=%s conn=%s", id, p.id)
			}
		}
	}
	h.logger.Printf("disconnected: conn=%s role=%s", p.id, p.role())
}

func (h *Hub) registerExecutor(p *peer) {
	p.executor.Store(true)

	prev := h.executor.Swap(p)
	if prev != nil && prev != p {
		h.logger.Printf("executor superseded: old=%s new=%s", prev.id, p.id)
		prev.closeWith(websocket.CloseNormalClosure, "superseded")
	}
	h.logger.Printf("executor registered: conn=%s remote=%s", p.id, p.remote)
	h.send(p, &protocol.Ack{Status: protocol.AckExtensionRegistered})
}

func (h *Hub) handleRequest(p *peer, m *protocol.CLIRequest) {
	h.gate.RLock()
	defer h.gate.RUnlock()
	if h.ctx.Err() != nil {
		h.reject(p, m.ID(), protocol.ErrRelayShutdown, "relay shutting down")
		return
	}

	kind := m.Kind()
	if !kind.Valid() {
		h.reject(p, m.ID(), protocol.ErrInvalidRequest, fmt.Sprintf("unsupported request_type %q", m.RequestType))
		return
	}
	if kind == protocol.KindInject && m.Message == "" {
		h.reject(p, m.ID(), protocol.ErrInvalidRequest, "message is required for inject")
		return
	}

	exec := h.executor.Current()
	if exec == nil {
		h.reject(p, m.ID(), protocol.ErrExtensionNotConnected, "No extension connected")
		return
	}

	id, err := h.claimID(m.ID())
	if err != nil {
		h.reject(p, m.ID(), protocol.ErrDuplicateCorrelationID, err.Error())
		return
	}
	req, err := h.pending.Create(id, kind, m, p)
	if err != nil {
		h.reject(p, id, protocol.ErrDuplicateCorrelationID, err.Error())
		return
	}
	h.setStatus(id, store.StatusAccepted)
	h.send(p, &protocol.Ack{Header: protocol.Header{CorrelationID: id}, Status: protocol.AckAccepted})

	order := protocol.WorkOrder(id, m)
	if err := exec.Send(order); err != nil {
		h.logger.Printf("forward failed: correlation_id=%s kind=%s executor=%s err=%v", id, kind, exec.id, err)
		if h.pending.Remove(id) {
			h.setStatus(id, store.StatusForwardFailed)
			h.reject(p, id, protocol.ForwardFailure(kind), err.Error())
		}
		return
	}
	h.logEvent("send executor", exec, order)

	h.waiters.Add(1)
	go h.await(req)
}

// claimID returns the correlation id for a new request. Client supplied ids
// must be unused; generated ids are regenerated on collision.
func (h *Hub) claimID(requested string) (string, error) {
	ctx, cancel := context.WithTimeout(h.ctx, storeTimeout)
	defer cancel()

	claim := func(id string) bool {
		if h.pending.Has(id) {
			return false
		}
		ok, err := h.store.ClaimID(ctx, id, h.cfg.StatusTTL.Duration)
		if err != nil {
			h.logger.Printf("claim id failed, relying on pending table: correlation_id=%s err=%v", id, err)
			return true
		}
		return ok
	}

	if requested != "" {
		if !claim(requested) {
			return "", fmt.Errorf("%w: %s", pending.ErrDuplicateCorrelationID, requested)
		}
		return requested, nil
	}
	for i := 0; i < idAttempts; i++ {
		id := uuid.NewString()
		if claim(id) {
			return id, nil
		}
		h.logger.Printf("generated correlation id collided, retrying: correlation_id=%s", id)
	}
	return "", errors.New("could not allocate a correlation id")
}

// await waits for the terminal transition of req and sends heartbeats to the
// owning client meanwhile.
func (h *Hub) await(req *pending.Request) {
	defer h.waiters.Done()

	timeout := h.timeoutFor(req.Kind)
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ticker := time.NewTicker(h.cfg.HeartbeatInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-req.Resolved():
			h.finish(req)
			return
		case <-timer.C:
			if !h.pending.Remove(req.ID) {
				return
			}
			h.setStatus(req.ID, store.StatusTimedOut)
			h.logger.Printf("request timed out: correlation_id=%s kind=%s timeout=%s", req.ID, req.Kind, timeout)
			h.reject(req.Owner, req.ID, protocol.Timeout(req.Kind),
				fmt.Sprintf("Timeout waiting for %s response after %s", req.Kind, timeout))
			return
		case <-req.Removed():
			return
		case now := <-ticker.C:
			select {
			case <-req.Resolved():
				h.finish(req)
				return
			case <-req.Removed():
				return
			default:
			}
			h.pending.Touch(req.ID, now)
			h.send(req.Owner, &protocol.Heartbeat{
				Header:    protocol.Header{CorrelationID: req.ID},
				ElapsedMs: now.Sub(req.CreatedAt).Milliseconds(),
			})
		case <-h.ctx.Done():
			if h.pending.Remove(req.ID) {
				h.setStatus(req.ID, store.StatusCancelled)
				h.reject(req.Owner, req.ID, protocol.ErrRelayShutdown, "relay shutting down")
			}
			return
		}
	}
}

func (h *Hub) finish(req *pending.Request) {
	if !h.pending.Remove(req.ID) {
		return
	}
	res := h.pending.Result(req)
	if res == nil {
		return
	}
	if res.Error != nil {
		h.setStatus(req.ID, store.StatusFailed)
		errType := res.Error.ErrorType
		if errType == "" {
			errType = protocol.ForwardFailure(req.Kind)
		}
		h.reject(req.Owner, req.ID, errType, res.Error.Error)
		return
	}
	h.setStatus(req.ID, store.StatusResolved)
	h.send(req.Owner, protocol.Project(req.Kind, req.ID, res.Response))
}

func (h *Hub) handleResult(p *peer, id string, res pending.Result) {
	if !p.executor.Load() {
		h.logger.Printf("ignore result from client: conn=%s correlation_id=%s", p.id, id)
		return
	}
	if id == "" {
		h.logger.Printf("drop result without correlation id: conn=%s", p.id)
		return
	}
	if !h.pending.Resolve(id, res) {
		h.logger.Printf("drop unmatched result: correlation_id=%s conn=%s", id, p.id)
	}
}

func (h *Hub) timeoutFor(k protocol.Kind) time.Duration {
	def := config.Default().Server
	d, fallback := h.cfg.InjectTimeout, def.InjectTimeout
	switch k {
	case protocol.KindFocusTab:
		d, fallback = h.cfg.FocusTimeout, def.FocusTimeout
	case protocol.KindDebugTabs:
		d, fallback = h.cfg.DebugTimeout, def.DebugTimeout
	}
	if d.Duration <= 0 {
		return fallback.Duration
	}
	return d.Duration
}

func (h *Hub) reject(o pending.Owner, id string, errType protocol.ErrorType, message string) {
	h.send(o, &protocol.Error{
		Header:    protocol.Header{CorrelationID: id},
		Error:     message,
		ErrorType: errType,
	})
}

func (h *Hub) send(o pending.Owner, m protocol.Message) {
	p, _ := o.(*peer)
	if err := o.Send(m); err != nil {
		if p != nil {
			h.logger.Printf("send %s failed: conn=%s correlation_id=%s err=%v", m.MessageType(), p.id, m.ID(), err)
		}
		return
	}
	if p != nil {
		h.logEvent("send", p, m)
	}
}

func (h *Hub) setStatus(id, status string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.store.SetStatus(ctx, id, status, h.cfg.StatusTTL.Duration); err != nil {
		h.logger.Printf("set status failed: correlation_id=%s status=%s err=%v", id, status, err)
	}
}

// Stats is reported by the health endpoint.
type Stats struct {
	Status            string `json:"status"`
	ExecutorConnected bool   `json:"executor_connected"`
	Clients           int    `json:"clients"`
	Pending           int    `json:"pending"`
}

func (h *Hub) Stats() Stats {
	return Stats{
		Status:            "ok",
		ExecutorConnected: h.executor.Current() != nil,
		Clients:           h.clientCount(),
		Pending:           h.pending.Len(),
	}
}

func (h *Hub) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Stats())
}

// HandleRequestStatus reports the last recorded status of one correlation id.
func (h *Hub) HandleRequestStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	status, err := h.store.GetStatus(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if status == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown correlation id"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"correlationId": id, "status": status})
}

// PendingInfo describes one request still waiting for its terminal reply.
type PendingInfo struct {
	CorrelationID   string        `json:"correlationId"`
	Kind            protocol.Kind `json:"request_type"`
	Conn            string        `json:"conn,omitempty"`
	AgeMs           int64         `json:"age_ms"`
	LastHeartbeatAt *time.Time    `json:"last_heartbeat_at,omitempty"`
}

// Pending lists in-flight requests, oldest first.
func (h *Hub) Pending() []PendingInfo {
	now := time.Now()
	out := []PendingInfo{}
	h.pending.ForEach(func(req *pending.Request) {
		info := PendingInfo{
			CorrelationID: req.ID,
			Kind:          req.Kind,
			AgeMs:         now.Sub(req.CreatedAt).Milliseconds(),
		}
		if p, ok := req.Owner.(*peer); ok {
			info.Conn = p.id
		}
		if at, ok := h.pending.LastHeartbeat(req.ID); ok && !at.IsZero() {
			info.LastHeartbeatAt = &at
		}
		out = append(out, info)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].AgeMs > out[j].AgeMs })
	return out
}

func (h *Hub) HandlePending(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Pending())
}

// Close refuses new connections and requests, fails every in-flight request
// with relay_shutting_down and closes all connections.
func (h *Hub) Close() {
	h.connMu.Lock()
	h.closed = true
	h.connMu.Unlock()

	h.gate.Lock()
	h.cancel()
	h.gate.Unlock()
	h.waiters.Wait()

	h.connMu.Lock()
	peers := make([]*peer, 0, len(h.conns))
	for p := range h.conns {
		peers = append(peers, p)
	}
	h.connMu.Unlock()
	for _, p := range peers {
		p.closeWith(websocket.CloseGoingAway, "relay shutting down")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Hub) logEvent(prefix string, p *peer, m protocol.Message) {
	h.logger.Printf("%s: conn=%s role=%s type=%s correlation_id=%s", prefix, p.id, p.role(), m.MessageType(), m.ID())
}
