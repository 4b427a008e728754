package adapter

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"conflux/internal/codec"
	"conflux/internal/nffg"
)

// StaticCollaborator serves a fixed topology loaded from a file and
// acknowledges change-sets locally. It stands in for an emulated or
// not-yet-connected domain and is the reference Collaborator
// implementation.
type StaticCollaborator struct {
	name string

	mu       sync.Mutex
	topo     *nffg.NFFG
	statuses map[string]Status
	sink     CallbackSink
}

// NewStaticCollaborator creates a static domain from an in-memory graph.
func NewStaticCollaborator(name string, topo *nffg.NFFG) *StaticCollaborator {
	return &StaticCollaborator{
		name:     name,
		topo:     topo,
		statuses: make(map[string]Status),
	}
}

// LoadStaticCollaborator creates a static domain from a topology file.
// The format is chosen by file extension (json or yaml).
func LoadStaticCollaborator(name, path, format string) (*StaticCollaborator, error) {
	c := codec.ForFormat(format)
	if c == nil {
		return nil, fmt.Errorf("unsupported topology format %q", format)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open topology file: %w", err)
	}
	defer f.Close()
	topo, err := c.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse topology file %s: %w", path, err)
	}
	return NewStaticCollaborator(name, topo), nil
}

// Name returns the domain name.
func (s *StaticCollaborator) Name() string { return s.name }

// Reload replaces the served topology from a file. Used by the file
// watcher when the topology on disk changes.
func (s *StaticCollaborator) Reload(path, format string) error {
	c := codec.ForFormat(format)
	if c == nil {
		return fmt.Errorf("unsupported topology format %q", format)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open topology file: %w", err)
	}
	defer f.Close()
	topo, err := c.Parse(f)
	if err != nil {
		return fmt.Errorf("parse topology file %s: %w", path, err)
	}

	s.mu.Lock()
	s.topo = topo
	s.mu.Unlock()
	log.Printf("Static domain %s reloaded topology from %s", s.name, path)
	return nil
}

// SetCallbackSink wires the completion sink; deploys acknowledge through
// it when set.
func (s *StaticCollaborator) SetCallbackSink(sink CallbackSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// Topology returns a copy of the static graph.
func (s *StaticCollaborator) Topology(ctx context.Context) (*nffg.NFFG, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topo.Copy(), nil
}

// Deploy accepts any well-formed change-set and completes it immediately.
func (s *StaticCollaborator) Deploy(ctx context.Context, changeSet *nffg.NFFG, diff bool, correlationID string) error {
	if changeSet == nil {
		return &RejectedError{Domain: s.name, Reason: "nil change-set"}
	}
	if err := changeSet.Validate(); err != nil {
		return &RejectedError{Domain: s.name, Reason: err.Error()}
	}
	s.mu.Lock()
	s.statuses[correlationID] = StatusSuccess
	sink := s.sink
	s.mu.Unlock()

	log.Printf("Static domain %s applied change-set %s (diff=%v, %d nodes)",
		s.name, correlationID, diff, changeSet.NodeCount())
	if sink != nil {
		sink.Resolve(correlationID, StatusSuccess)
	}
	return nil
}

// Poll reports the recorded status of a change-set.
func (s *StaticCollaborator) Poll(ctx context.Context, correlationID string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[correlationID]
	if !ok {
		return "", fmt.Errorf("unknown correlation id %q", correlationID)
	}
	return st, nil
}
