package deploy

import (
	"sync"

	"conflux/internal/adapter"
)

// pendingTable unifies the two completion disciplines behind one
// abstraction: every dispatch registers a result channel keyed by its
// correlation id, and both poll loops and inbound callbacks resolve
// through it. The batch state machine never knows which transport
// answered.
type pendingTable struct {
	mu sync.Mutex
	m  map[string]chan adapter.Status
}

func newPendingTable() *pendingTable {
	return &pendingTable{m: make(map[string]chan adapter.Status)}
}

// register creates the completion slot for a correlation id.
func (p *pendingTable) register(correlationID string) <-chan adapter.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan adapter.Status, 1)
	p.m[correlationID] = ch
	return ch
}

// Resolve delivers a terminal status. Unknown ids and duplicate
// deliveries are dropped; only the first answer counts.
func (p *pendingTable) Resolve(correlationID string, status adapter.Status) {
	p.mu.Lock()
	ch, ok := p.m[correlationID]
	p.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- status:
	default:
	}
}

// drop forgets a correlation id once its dispatch settled.
func (p *pendingTable) drop(correlationID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.m, correlationID)
}
