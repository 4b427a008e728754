package adapter

import (
	"context"
	"fmt"
	"sync"

	"conflux/internal/nffg"
)

// Mock is a scriptable Collaborator for tests.
type Mock struct {
	Domain string
	Topo   *nffg.NFFG

	// RejectDeploys makes Deploy return *RejectedError.
	RejectDeploys bool
	// Outcome is the terminal status reported for accepted change-sets.
	// Defaults to StatusSuccess.
	Outcome Status
	// PendingPolls is how many Poll calls answer pending before the
	// terminal status.
	PendingPolls int
	// Hang makes Poll answer pending forever, forcing the caller's
	// timeout path.
	Hang bool
	// UseCallback delivers the outcome through the sink at deploy time
	// instead of answering polls.
	UseCallback bool

	mu       sync.Mutex
	sink     CallbackSink
	polls    map[string]int
	Deployed []MockDeploy
}

// MockDeploy records one Deploy call.
type MockDeploy struct {
	ChangeSet     *nffg.NFFG
	Diff          bool
	CorrelationID string
}

// Name returns the mock's domain name.
func (m *Mock) Name() string { return m.Domain }

// SetCallbackSink implements CallbackCapable.
func (m *Mock) SetCallbackSink(sink CallbackSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = sink
}

// Topology returns a copy of the scripted topology.
func (m *Mock) Topology(ctx context.Context) (*nffg.NFFG, error) {
	if m.Topo == nil {
		return nil, fmt.Errorf("mock domain %s has no topology", m.Domain)
	}
	return m.Topo.Copy(), nil
}

func (m *Mock) outcome() Status {
	if m.Outcome == "" {
		return StatusSuccess
	}
	return m.Outcome
}

// Deploy records the call and either rejects it or schedules completion.
func (m *Mock) Deploy(ctx context.Context, changeSet *nffg.NFFG, diff bool, correlationID string) error {
	m.mu.Lock()
	m.Deployed = append(m.Deployed, MockDeploy{ChangeSet: changeSet, Diff: diff, CorrelationID: correlationID})
	sink := m.sink
	m.mu.Unlock()

	if m.RejectDeploys {
		return &RejectedError{Domain: m.Domain, Reason: "scripted rejection"}
	}
	if m.UseCallback && sink != nil && !m.Hang {
		sink.Resolve(correlationID, m.outcome())
	}
	return nil
}

// Poll counts down the scripted pending answers, then goes terminal.
func (m *Mock) Poll(ctx context.Context, correlationID string) (Status, error) {
	if m.Hang {
		return StatusPending, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.polls == nil {
		m.polls = make(map[string]int)
	}
	m.polls[correlationID]++
	if m.polls[correlationID] <= m.PendingPolls {
		return StatusPending, nil
	}
	return m.outcome(), nil
}
