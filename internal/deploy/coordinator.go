// Package deploy drives the multi-domain installation of a mapped graph:
// split per domain, parallel dispatch, asynchronous completion, and a
// terminal commit or rollback. A batch always reaches a terminal state -
// every suspension point is timeout-bounded - and always reports which
// domains succeeded and which failed.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"conflux/internal/adapter"
	"conflux/internal/nffg"
	"conflux/internal/view"
)

// State is a deployment batch's position in its lifecycle.
type State string

const (
	StatePlanned      State = "PLANNED"
	StateSplit        State = "SPLIT"
	StateDispatched   State = "DISPATCHED"
	StateAckedFull    State = "ACKED_FULL"
	StateAckedPartial State = "ACKED_PARTIAL"
	StateCommitted    State = "COMMITTED"
	StateRolledBack   State = "ROLLED_BACK"
	StateDone         State = "DONE"
	StateCancelled    State = "CANCELLED"
)

// Policy fixes the coordinator's behaviour. Read once at construction,
// immutable afterwards.
type Policy struct {
	// Rollback issues compensating change-sets to the succeeded domains
	// when any domain fails. When false a partial failure is committed
	// and recorded as such - never silently reported as full success.
	Rollback bool
	// Remerge selects the diff-based view update discipline on commit.
	Remerge bool
	// DispatchTimeout bounds each domain's settle time.
	DispatchTimeout time.Duration
	// PollInterval paces status re-queries for poll-discipline domains.
	PollInterval time.Duration
}

// DomainOutcome is one domain's terminal result within a batch.
type DomainOutcome struct {
	Domain        string         `json:"domain"`
	CorrelationID string         `json:"correlation_id"`
	Status        adapter.Status `json:"status"`
	Error         string         `json:"error,omitempty"`
}

// Batch tracks one deployment through the state machine.
type Batch struct {
	ID        string                    `json:"id"`
	State     State                     `json:"state"`
	Outcomes  map[string]*DomainOutcome `json:"outcomes"`
	CreatedAt time.Time                 `json:"created_at"`
	SettledAt time.Time                 `json:"settled_at,omitempty"`

	mapped    *nffg.NFFG
	parts     map[string]*nffg.NFFG
	cancelled bool
}

// Succeeded lists the domains that reported success, sorted.
func (b *Batch) Succeeded() []string {
	var out []string
	for d, o := range b.Outcomes {
		if o.Status == adapter.StatusSuccess {
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out
}

// Failed lists the domains that failed or timed out, sorted.
func (b *Batch) Failed() []string {
	var out []string
	for d, o := range b.Outcomes {
		if o.Status != adapter.StatusSuccess {
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out
}

// Event is published on every batch state transition.
type Event struct {
	Type    string                    `json:"type"`
	BatchID string                    `json:"batch_id"`
	State   State                     `json:"state"`
	Domains map[string]*DomainOutcome `json:"domains,omitempty"`
}

// EventHandler receives batch events; must not block.
type EventHandler func(Event)

// Coordinator executes deployment batches against the registered domain
// collaborators and commits settled state into the global view.
type Coordinator struct {
	registry *adapter.Registry
	agg      *view.Aggregator
	policy   Policy
	pending  *pendingTable
	onEvent  EventHandler

	mu      sync.Mutex
	inUse   map[string]string // domain -> batch id holding its dispatch lock
	batches map[string]*Batch
}

// New creates a coordinator. The policy is fixed for its lifetime.
func New(registry *adapter.Registry, agg *view.Aggregator, policy Policy, onEvent EventHandler) *Coordinator {
	if policy.DispatchTimeout <= 0 {
		policy.DispatchTimeout = 60 * time.Second
	}
	if policy.PollInterval <= 0 {
		policy.PollInterval = 2 * time.Second
	}
	return &Coordinator{
		registry: registry,
		agg:      agg,
		policy:   policy,
		pending:  newPendingTable(),
		onEvent:  onEvent,
		inUse:    make(map[string]string),
		batches:  make(map[string]*Batch),
	}
}

// Resolve implements adapter.CallbackSink: inbound completion notices
// land here, keyed by correlation id.
func (c *Coordinator) Resolve(correlationID string, status adapter.Status) {
	c.pending.Resolve(correlationID, status)
}

// Batch returns an independent snapshot of a batch by id, or nil. A
// batch keeps mutating while its dispatch goroutines settle, so callers
// get a copy they can read or encode freely.
func (c *Coordinator) Batch(id string) *Batch {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.batches[id]
	if !ok {
		return nil
	}
	return &Batch{
		ID:        b.ID,
		State:     b.State,
		Outcomes:  copyOutcomes(b.Outcomes),
		CreatedAt: b.CreatedAt,
		SettledAt: b.SettledAt,
	}
}

func copyOutcomes(in map[string]*DomainOutcome) map[string]*DomainOutcome {
	out := make(map[string]*DomainOutcome, len(in))
	for d, o := range in {
		co := *o
		out[d] = &co
	}
	return out
}

// Cancel aborts a batch. Before dispatch the batch simply stops; once
// dispatched the domains are external processes, so cancellation becomes
// an immediate rollback of whatever succeeds.
func (c *Coordinator) Cancel(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.batches[id]
	if !ok {
		return fmt.Errorf("unknown batch %q", id)
	}
	b.cancelled = true
	return nil
}

// Execute runs one mapped graph through the full state machine and
// returns the settled batch. The returned error is non-nil only for
// failures before dispatch (empty split, busy domain); after dispatch the
// batch itself carries the per-domain outcomes.
func (c *Coordinator) Execute(ctx context.Context, mapped *nffg.NFFG) (*Batch, error) {
	b := &Batch{
		ID:        uuid.NewString(),
		State:     StatePlanned,
		Outcomes:  make(map[string]*DomainOutcome),
		CreatedAt: time.Now(),
		mapped:    mapped,
	}
	c.mu.Lock()
	c.batches[b.ID] = b
	c.mu.Unlock()
	c.transition(b, StatePlanned)

	b.parts = Split(mapped)
	if len(b.parts) == 0 {
		c.transition(b, StateDone)
		return b, fmt.Errorf("mapped graph %s has no domain-owned elements", mapped.ID)
	}
	c.transition(b, StateSplit)

	if c.isCancelled(b) {
		c.transition(b, StateCancelled)
		return b, nil
	}

	if err := c.acquireDomains(b); err != nil {
		c.transition(b, StateDone)
		return b, err
	}
	defer c.releaseDomains(b)

	c.dispatchAll(ctx, b)

	failed := len(b.Failed())
	if failed == 0 {
		c.transition(b, StateAckedFull)
	} else {
		c.transition(b, StateAckedPartial)
		log.Printf("deploy: batch %s settled partial: %d/%d domains failed (%v)",
			b.ID, failed, len(b.parts), b.Failed())
	}
	c.mu.Lock()
	b.SettledAt = time.Now()
	c.mu.Unlock()

	cancelled := c.isCancelled(b)
	if failed > 0 && c.policy.Rollback || cancelled {
		c.rollback(ctx, b)
		c.transition(b, StateRolledBack)
	} else {
		c.commit(b)
		c.transition(b, StateCommitted)
	}

	c.transition(b, StateDone)
	return b, nil
}

func (c *Coordinator) isCancelled(b *Batch) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return b.cancelled
}

// acquireDomains takes the per-domain dispatch locks, all or nothing.
func (c *Coordinator) acquireDomains(b *Batch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, domain := range Domains(b.parts) {
		if holder, busy := c.inUse[domain]; busy {
			return &DomainBusyError{Domain: domain, BatchID: holder}
		}
	}
	for domain := range b.parts {
		c.inUse[domain] = b.ID
	}
	return nil
}

func (c *Coordinator) releaseDomains(b *Batch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for domain, holder := range c.inUse {
		if holder == b.ID {
			delete(c.inUse, domain)
		}
	}
}

// dispatchAll hands every part to its domain in parallel and waits until
// each one settles or times out. A slow domain never blocks the others.
func (c *Coordinator) dispatchAll(ctx context.Context, b *Batch) {
	c.transition(b, StateDispatched)
	g, gctx := errgroup.WithContext(ctx)

	for _, domain := range Domains(b.parts) {
		domain := domain
		part := b.parts[domain]
		g.Go(func() error {
			outcome := c.dispatchOne(gctx, domain, part)
			c.mu.Lock()
			b.Outcomes[domain] = outcome
			c.mu.Unlock()
			return nil // a domain failure is an outcome, not a group error
		})
	}
	_ = g.Wait()
	recordBatchOutcomes(b)
}

// dispatchOne sends one change-set and observes its completion under the
// domain's configured discipline.
func (c *Coordinator) dispatchOne(ctx context.Context, domain string, part *nffg.NFFG) *DomainOutcome {
	outcome := &DomainOutcome{Domain: domain, CorrelationID: uuid.NewString(), Status: adapter.StatusFailure}

	collab := c.registry.Collaborator(domain)
	if collab == nil {
		outcome.Error = "no collaborator registered"
		return outcome
	}
	cfg, _ := c.registry.ConfigFor(domain)

	ch := c.pending.register(outcome.CorrelationID)
	defer c.pending.drop(outcome.CorrelationID)

	dctx, cancel := context.WithTimeout(ctx, c.policy.DispatchTimeout)
	defer cancel()

	start := time.Now()
	if err := collab.Deploy(dctx, part, cfg.Diff, outcome.CorrelationID); err != nil {
		var rej *adapter.RejectedError
		if errors.As(err, &rej) {
			outcome.Error = rej.Error()
		} else {
			outcome.Error = fmt.Sprintf("dispatch: %v", err)
		}
		return outcome
	}

	status, err := c.await(dctx, collab, cfg, ch, outcome.CorrelationID)
	if err != nil {
		outcome.Error = err.Error()
		observeDispatch(domain, adapter.StatusFailure, time.Since(start))
		return outcome
	}
	outcome.Status = status
	if status != adapter.StatusSuccess {
		outcome.Error = fmt.Sprintf("domain reported %s", status)
	}
	observeDispatch(domain, status, time.Since(start))
	return outcome
}

// await blocks until the domain settles: a callback resolution, a poll
// answer, or the deadline, whichever is first. Both disciplines funnel
// through the same pending-completion channel.
func (c *Coordinator) await(ctx context.Context, collab adapter.Collaborator, cfg adapter.Config, ch <-chan adapter.Status, correlationID string) (adapter.Status, error) {
	if cfg.Discipline == adapter.DisciplineCallback {
		select {
		case st := <-ch:
			return st, nil
		case <-ctx.Done():
			return "", &TimeoutError{Domain: collab.Name(), Elapsed: c.policy.DispatchTimeout}
		}
	}

	ticker := time.NewTicker(c.policy.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case st := <-ch:
			return st, nil
		case <-ctx.Done():
			return "", &TimeoutError{Domain: collab.Name(), Elapsed: c.policy.DispatchTimeout}
		case <-ticker.C:
			st, err := collab.Poll(ctx, correlationID)
			if err != nil {
				log.Printf("deploy: poll %s failed: %v", collab.Name(), err)
				continue
			}
			if st.Terminal() {
				return st, nil
			}
		}
	}
}

// rollback issues a compensating change-set to every domain that
// succeeded, restoring its pre-batch configuration. Failed domains are
// left alone - they never applied the change.
func (c *Coordinator) rollback(ctx context.Context, b *Batch) {
	for _, domain := range b.Succeeded() {
		collab := c.registry.Collaborator(domain)
		if collab == nil {
			continue
		}
		cfg, _ := c.registry.ConfigFor(domain)
		comp := compensate(b.parts[domain])
		correlation := uuid.NewString()
		rctx, cancel := context.WithTimeout(ctx, c.policy.DispatchTimeout)
		if err := collab.Deploy(rctx, comp, cfg.Diff, correlation); err != nil {
			log.Printf("deploy: rollback dispatch to %s failed: %v", domain, err)
		} else {
			log.Printf("deploy: rollback change-set sent to %s", domain)
		}
		cancel()
	}
}

// compensate builds the reset change-set for one domain: its part with
// every installed artifact stripped, i.e. the configuration the domain
// held before the batch.
func compensate(part *nffg.NFFG) *nffg.NFFG {
	out := part.Copy()
	out.ID = part.ID + ":rollback"
	for _, nf := range out.NFs() {
		out.DelNode(nf.ID)
	}
	for _, infra := range out.Infras() {
		for _, p := range infra.Ports {
			p.FlowRules = nil
		}
	}
	return out
}

// commit folds the settled state into the global view in one step: only
// after every domain settled, and only the succeeding domains' parts.
func (c *Coordinator) commit(b *Batch) {
	installed := make(map[string]*nffg.NFFG)
	for _, domain := range b.Succeeded() {
		installed[domain] = b.parts[domain]
	}
	if len(installed) == 0 {
		return
	}
	discipline := view.DisciplineReplace
	if c.policy.Remerge {
		discipline = view.DisciplineRemerge
	}
	if err := c.agg.ApplyInstalled(installed, discipline); err != nil {
		log.Printf("deploy: committing batch %s to global view failed: %v", b.ID, err)
	}
}

// transition moves the batch and publishes the event. Concurrent Batch
// lookups read under the same lock; the event carries its own outcome
// copy because handlers encode it after transition returns.
func (c *Coordinator) transition(b *Batch, s State) {
	c.mu.Lock()
	b.State = s
	var domains map[string]*DomainOutcome
	if s == StateAckedFull || s == StateAckedPartial || s == StateDone {
		domains = copyOutcomes(b.Outcomes)
	}
	c.mu.Unlock()
	observeState(s)
	if c.onEvent != nil {
		c.onEvent(Event{Type: "deployment", BatchID: b.ID, State: s, Domains: domains})
	}
}

