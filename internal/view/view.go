// Package view owns the Domain-of-Virtualizers: the single merged
// topology built from every domain's reported graph. Mutations are
// serialized through one writer; readers take immutable snapshots and are
// never blocked by a mutation in progress.
package view

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"conflux/internal/nffg"
)

// UpdateDiscipline selects how a domain's new report is folded into the
// global view.
type UpdateDiscipline string

const (
	// DisciplineReplace - drop the domain's prior subtree, then insert
	// the new one, as two separate operations.
	DisciplineReplace UpdateDiscipline = "replace"
	// DisciplineRemerge - diff the new report against the prior one and
	// apply only the delta.
	DisciplineRemerge UpdateDiscipline = "remerge"
)

// ChangeCause says why a DomainChangedEvent fired.
type ChangeCause string

const (
	CauseUpdated ChangeCause = "updated"
	CauseRemoved ChangeCause = "removed"
)

// DomainChangedEvent is published after every successful mutation.
type DomainChangedEvent struct {
	Domain  string      `json:"domain"`
	Cause   ChangeCause `json:"cause"`
	Version uint64      `json:"version"`
}

// ChangeHandler receives DomainChangedEvents. Called synchronously after
// the new snapshot is visible; handlers must not block.
type ChangeHandler func(DomainChangedEvent)

// snapshot is an immutable (graph, version) pair. Readers load the current
// snapshot pointer and copy out of it; writers install a fresh one.
type snapshot struct {
	graph   *nffg.NFFG
	version uint64
}

// Aggregator maintains the global view. The zero value is not usable;
// construct with New.
type Aggregator struct {
	writeMu sync.Mutex
	current atomic.Pointer[snapshot]

	// last accepted (namespaced) report per domain, guarded by writeMu.
	// Needed to strip a domain's subtree on replace/remove and to compute
	// remerge deltas.
	reports map[string]*nffg.NFFG

	ensureUniqueID bool
	onChange       ChangeHandler
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithUniqueIDs enables the ensure-unique-id policy: element ids of every
// ingested report are rewritten to "domain:id" so reports from different
// domains can never collide.
func WithUniqueIDs() Option {
	return func(a *Aggregator) { a.ensureUniqueID = true }
}

// WithChangeHandler registers the change event sink.
func WithChangeHandler(h ChangeHandler) Option {
	return func(a *Aggregator) { a.onChange = h }
}

// New creates an aggregator with an empty global view.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		reports: make(map[string]*nffg.NFFG),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.current.Store(&snapshot{graph: nffg.New("DoV"), version: 0})
	return a
}

// Version returns the version of the current snapshot.
func (a *Aggregator) Version() uint64 {
	return a.current.Load().version
}

// Domains returns the names of all domains with an accepted report.
func (a *Aggregator) Domains() []string {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	out := make([]string, 0, len(a.reports))
	for d := range a.reports {
		out = append(out, d)
	}
	return out
}

// ApplyDomainReport folds a domain's reported topology into the global
// view under the given discipline. The apply is atomic: a malformed
// report is rejected with *DomainReportError and the view is unchanged.
func (a *Aggregator) ApplyDomainReport(domain string, report *nffg.NFFG, discipline UpdateDiscipline) error {
	if domain == "" {
		return &DomainReportError{Domain: domain, Reason: "empty domain name"}
	}
	if report == nil {
		return &DomainReportError{Domain: domain, Reason: "nil report"}
	}
	if err := report.Validate(); err != nil {
		return &DomainReportError{Domain: domain, Reason: err.Error(), Cause: err}
	}

	namespaced := report.Copy()
	if a.ensureUniqueID {
		namespaced.Relabel(domain, ":")
	}
	// Stamp ownership on every infra node so the deploy coordinator can
	// split mapped graphs by domain later.
	for _, n := range namespaced.Infras() {
		if n.Domain == "" {
			n.Domain = domain
		}
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	candidate := a.current.Load().graph.Copy()
	prior := a.reports[domain]

	switch discipline {
	case DisciplineRemerge:
		if prior == nil {
			prior = nffg.New(domain)
		}
		cs := nffg.Diff(prior, namespaced)
		if cs.Empty() {
			log.Printf("view: domain %s report carries no delta, version stays %d", domain, a.current.Load().version)
			a.reports[domain] = namespaced
			return nil
		}
		if err := candidate.Apply(cs); err != nil {
			return &DomainReportError{Domain: domain, Reason: "remerge delta rejected: " + err.Error(), Cause: err}
		}
	case DisciplineReplace, "":
		if prior != nil {
			stripReport(candidate, prior)
		}
		if err := candidate.Merge(namespaced); err != nil {
			return &DomainReportError{Domain: domain, Reason: "merge rejected: " + err.Error(), Cause: err}
		}
	default:
		return &DomainReportError{Domain: domain, Reason: fmt.Sprintf("unknown discipline %q", discipline)}
	}

	if err := candidate.Validate(); err != nil {
		return &DomainReportError{Domain: domain, Reason: "merged view invalid: " + err.Error(), Cause: err}
	}

	a.reports[domain] = namespaced
	a.install(candidate)
	log.Printf("view: applied %s report from domain %s (version %d, %d nodes)",
		discipline, domain, a.Version(), candidate.NodeCount())
	a.emit(DomainChangedEvent{Domain: domain, Cause: CauseUpdated, Version: a.Version()})
	return nil
}

// RemoveDomain deletes a domain's subtree from the global view. Removing
// an unknown domain is a no-op.
func (a *Aggregator) RemoveDomain(domain string) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	prior := a.reports[domain]
	if prior == nil {
		return nil
	}
	candidate := a.current.Load().graph.Copy()
	stripReport(candidate, prior)
	delete(a.reports, domain)
	a.install(candidate)
	log.Printf("view: removed domain %s (version %d)", domain, a.Version())
	a.emit(DomainChangedEvent{Domain: domain, Cause: CauseRemoved, Version: a.Version()})
	return nil
}

// install publishes candidate as the new snapshot. Caller holds writeMu.
func (a *Aggregator) install(candidate *nffg.NFFG) {
	next := a.current.Load().version + 1
	candidate.Version = next
	a.current.Store(&snapshot{graph: candidate, version: next})
}

func (a *Aggregator) emit(ev DomainChangedEvent) {
	if a.onChange != nil {
		a.onChange(ev)
	}
}

// stripReport removes every element of a prior report from g, edges first.
func stripReport(g *nffg.NFFG, report *nffg.NFFG) {
	for _, r := range report.Requirements() {
		cs := &nffg.ChangeSet{RemovedRequirements: []string{r.ID}}
		_ = g.Apply(cs)
	}
	for _, h := range report.Hops() {
		g.DelHop(h.ID)
	}
	for _, l := range report.Links() {
		g.DelLink(l.ID)
	}
	for _, n := range report.Nodes() {
		g.DelNode(n.ID)
	}
}
