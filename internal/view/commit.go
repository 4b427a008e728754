package view

import (
	"log"

	"conflux/internal/nffg"
)

// ApplyInstalled folds the post-deployment state of several domains into
// the global view as one logical update: a single new snapshot, one
// version bump, visible only after every part has been applied. parts is
// the per-domain split of a committed mapped graph (placed functions,
// installed flow rules, boundary stubs).
//
// Each domain's new report is its prior report overlaid with the
// installed elements, so topology the deployment never touched survives
// the commit.
func (a *Aggregator) ApplyInstalled(parts map[string]*nffg.NFFG, discipline UpdateDiscipline) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	candidate := a.current.Load().graph.Copy()
	updated := make(map[string]*nffg.NFFG, len(parts))

	for domain, part := range parts {
		prior := a.reports[domain]
		if prior == nil {
			prior = nffg.New(domain)
		}
		report := overlayInstalled(prior, part)
		if err := report.Validate(); err != nil {
			return &DomainReportError{Domain: domain, Reason: "installed state invalid: " + err.Error(), Cause: err}
		}

		switch discipline {
		case DisciplineRemerge:
			cs := nffg.Diff(prior, report)
			if err := candidate.Apply(cs); err != nil {
				return &DomainReportError{Domain: domain, Reason: "remerge delta rejected: " + err.Error(), Cause: err}
			}
		default:
			stripReport(candidate, prior)
			if err := candidate.Merge(report); err != nil {
				return &DomainReportError{Domain: domain, Reason: "merge rejected: " + err.Error(), Cause: err}
			}
		}
		updated[domain] = report
	}

	if err := candidate.Validate(); err != nil {
		return &DomainReportError{Reason: "committed view invalid: " + err.Error(), Cause: err}
	}

	for domain, report := range updated {
		a.reports[domain] = report
	}
	a.install(candidate)
	log.Printf("view: committed installed state of %d domains (version %d)", len(updated), a.Version())
	for domain := range updated {
		a.emit(DomainChangedEvent{Domain: domain, Cause: CauseUpdated, Version: a.Version()})
	}
	return nil
}

// overlayInstalled upserts a change-set's elements onto a domain's prior
// report: nodes and links the deployment added or annotated replace their
// prior versions, everything untouched stays. Boundary stubs never enter
// the report - the real node lives in the neighbor domain's subtree.
func overlayInstalled(prior, part *nffg.NFFG) *nffg.NFFG {
	out := prior.Copy()
	cs := &nffg.ChangeSet{}
	for _, n := range part.Nodes() {
		if n.InfraType == nffg.InfraTypeBoundaryStub {
			continue
		}
		if out.Node(n.ID) == nil {
			cs.AddedNodes = append(cs.AddedNodes, n)
		} else {
			cs.UpdatedNodes = append(cs.UpdatedNodes, n)
		}
	}
	for _, l := range part.Links() {
		if part.Node(l.Src.Node).InfraType == nffg.InfraTypeBoundaryStub ||
			part.Node(l.Dst.Node).InfraType == nffg.InfraTypeBoundaryStub {
			continue
		}
		if out.Link(l.ID) == nil {
			cs.AddedLinks = append(cs.AddedLinks, l)
		}
	}
	for _, h := range part.Hops() {
		if out.Hop(h.ID) == nil {
			cs.AddedHops = append(cs.AddedHops, h)
		}
	}
	if err := out.Apply(cs); err != nil {
		// Elements come from a graph that validated at mapping time;
		// surface the inconsistency loudly rather than committing it.
		panic(err)
	}
	return out
}
