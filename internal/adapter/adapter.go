// Package adapter is the boundary to the infrastructure domains. Every
// domain is driven through the same Collaborator interface regardless of
// the transport underneath; the registry owns their lifecycle and feeds
// topology reports upstream.
package adapter

import (
	"context"
	"fmt"

	"conflux/internal/nffg"
)

// Discipline selects how deployment completion is observed for a domain.
type Discipline string

const (
	// DisciplinePoll - the coordinator re-queries status until terminal.
	DisciplinePoll Discipline = "poll"
	// DisciplineCallback - the domain delivers a completion notice
	// addressed by correlation id.
	DisciplineCallback Discipline = "callback"
)

// Status is a domain's answer about one dispatched change-set.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Terminal reports whether the status will not change again.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// Config holds the per-domain settings read once at construction.
type Config struct {
	// Enabled determines if the collaborator participates at all.
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Diff selects incremental change-sets over full ones.
	Diff bool `json:"diff" yaml:"diff"`
	// Discipline selects poll vs callback completion.
	Discipline Discipline `json:"discipline" yaml:"discipline"`
	// PollInterval for topology refresh (e.g. "30s"). Empty disables the
	// topology poll loop.
	PollInterval string `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`
}

// Collaborator is the narrow contract every domain is driven through.
// Implementations wrap one transport each and must be safe for use from
// multiple goroutines.
type Collaborator interface {
	// Name returns the domain name this collaborator manages.
	Name() string

	// Topology fetches the domain's current resource graph.
	Topology(ctx context.Context) (*nffg.NFFG, error)

	// Deploy hands a change-set to the domain. diff marks it as an
	// incremental delta rather than a full configuration. A rejected
	// hand-off returns *RejectedError; acceptance only means the domain
	// started working, completion arrives via Poll or callback.
	Deploy(ctx context.Context, changeSet *nffg.NFFG, diff bool, correlationID string) error

	// Poll queries the state of an accepted change-set.
	Poll(ctx context.Context, correlationID string) (Status, error)
}

// CallbackSink receives completion notices from callback-discipline
// domains, keyed by the correlation id assigned at dispatch.
type CallbackSink interface {
	Resolve(correlationID string, status Status)
}

// CallbackCapable is implemented by collaborators able to push completion
// notices instead of being polled.
type CallbackCapable interface {
	Collaborator
	SetCallbackSink(sink CallbackSink)
}

// RejectedError means the domain refused a change-set at hand-off.
type RejectedError struct {
	Domain string
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("domain %q rejected change-set: %s", e.Domain, e.Reason)
}
