package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HsiangNianian/promptrelay/internal/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// peer is one websocket connection, either a client or the executor.
type peer struct {
	id     string
	remote string
	conn   *websocket.Conn

	mu           sync.Mutex
	writeTimeout time.Duration

	executor     atomic.Bool
	executorHint bool
}

func newPeer(conn *websocket.Conn, remote string, writeTimeout time.Duration) *peer {
	return &peer{
		id:           uuid.NewString()[:8],
		remote:       remote,
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

func (p *peer) Send(m protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeTimeout > 0 {
		_ = p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
	}
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

func (p *peer) closeWith(code int, reason string) {
	_ = p.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	_ = p.conn.Close()
}

func (p *peer) countsAsClient() bool {
	return !p.executorHint && !p.executor.Load()
}

func (p *peer) role() string {
	if p.executor.Load() {
		return "executor"
	}
	return "client"
}

// executorSlot holds at most one executor. Registration is last-writer-wins.
type executorSlot struct {
	mu      sync.RWMutex
	current *peer
}

// Swap installs p and returns the executor it replaced, if any.
func (s *executorSlot) Swap(p *peer) *peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.current
	s.current = p
	return prev
}

func (s *executorSlot) Current() *peer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Clear empties the slot only if p is still the registered executor.
func (s *executorSlot) Clear(p *peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != p {
		return false
	}
	s.current = nil
	return true
}
