// Package pending tracks requests that were forwarded to the executor and
// are waiting for their single terminal reply.
package pending

import (
	"errors"
	"sync"
	"time"

	"github.com/HsiangNianian/promptrelay/internal/protocol"
)

var ErrDuplicateCorrelationID = errors.New("duplicate correlation id")

// Owner is the connection that receives the terminal reply.
type Owner interface {
	Send(m protocol.Message) error
}

// Result is what the executor reported. Exactly one field is set.
type Result struct {
	Response *protocol.Response
	Error    *protocol.Error
}

type Request struct {
	ID        string
	Kind      protocol.Kind
	Payload   *protocol.CLIRequest
	Owner     Owner
	CreatedAt time.Time

	lastHeartbeatAt time.Time
	result          *Result
	resolved        chan struct{}
	removed         chan struct{}
}

// Resolved is closed once a result has been stored.
func (r *Request) Resolved() <-chan struct{} { return r.resolved }

// Removed is closed when the request leaves the table.
func (r *Request) Removed() <-chan struct{} { return r.removed }

type Table struct {
	mu      sync.Mutex
	entries map[string]*Request
	now     func() time.Time
}

func NewTable() *Table {
	return &Table{
		entries: make(map[string]*Request),
		now:     time.Now,
	}
}

func (t *Table) Create(id string, kind protocol.Kind, payload *protocol.CLIRequest, owner Owner) (*Request, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[id]; ok {
		return nil, ErrDuplicateCorrelationID
	}
	now := t.now()
	req := &Request{
		ID:              id,
		Kind:            kind,
		Payload:         payload,
		Owner:           owner,
		CreatedAt:       now,
		lastHeartbeatAt: now,
		resolved:        make(chan struct{}),
		removed:         make(chan struct{}),
	}
	t.entries[id] = req
	return req, nil
}

// Resolve stores the result for id. It reports false when id is unknown or
// already resolved; the caller is expected to log and drop.
func (t *Table) Resolve(id string, result Result) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.entries[id]
	if !ok || req.result != nil {
		return false
	}
	req.result = &result
	close(req.resolved)
	return true
}

// Remove deletes id and reports whether this call removed it. Only the caller
// that gets true may emit the terminal reply.
func (t *Table) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.entries[id]
	if !ok {
		return false
	}
	delete(t.entries, id)
	close(req.removed)
	return true
}

// Result returns the stored result, or nil while unresolved.
func (t *Table) Result(req *Request) *Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return req.result
}

func (t *Table) Has(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[id]
	return ok
}

// Touch records a heartbeat for id.
func (t *Table) Touch(id string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if req, ok := t.entries[id]; ok {
		req.lastHeartbeatAt = at
	}
}

func (t *Table) LastHeartbeat(id string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.entries[id]
	if !ok {
		return time.Time{}, false
	}
	return req.lastHeartbeatAt, true
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// ForEach calls fn on a snapshot of the pending requests, outside the lock.
func (t *Table) ForEach(fn func(*Request)) {
	for _, req := range t.snapshot() {
		fn(req)
	}
}

// OwnedBy returns the ids currently owned by o.
func (t *Table) OwnedBy(o Owner) []string {
	var ids []string
	for _, req := range t.snapshot() {
		if req.Owner == o {
			ids = append(ids, req.ID)
		}
	}
	return ids
}

func (t *Table) snapshot() []*Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Request, 0, len(t.entries))
	for _, req := range t.entries {
		out = append(out, req)
	}
	return out
}
