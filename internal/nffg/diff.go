package nffg

// ChangeSet is the add/update/remove delta between two versions of the
// same logical graph, keyed by element id. Added and Updated carry full
// copies of the new elements; Removed carries ids only.
type ChangeSet struct {
	AddedNodes   []*Node
	UpdatedNodes []*Node
	RemovedNodes []string

	AddedLinks   []*Link
	RemovedLinks []string

	AddedHops   []*SGHop
	RemovedHops []string

	AddedRequirements   []*Requirement
	RemovedRequirements []string
}

// Empty reports whether the change-set carries no delta at all.
func (c *ChangeSet) Empty() bool {
	return len(c.AddedNodes) == 0 && len(c.UpdatedNodes) == 0 && len(c.RemovedNodes) == 0 &&
		len(c.AddedLinks) == 0 && len(c.RemovedLinks) == 0 &&
		len(c.AddedHops) == 0 && len(c.RemovedHops) == 0 &&
		len(c.AddedRequirements) == 0 && len(c.RemovedRequirements) == 0
}

// Diff computes the change-set that transforms old into new. Equality is
// structural: an element counts as updated only when some attribute
// actually differs. Links, hops and requirements have no meaningful
// in-place update; a changed one shows up as remove+add.
func Diff(old, new *NFFG) *ChangeSet {
	cs := &ChangeSet{}

	for _, n := range new.Nodes() {
		prev := old.Node(n.ID)
		switch {
		case prev == nil:
			cs.AddedNodes = append(cs.AddedNodes, copyNode(n))
		case !EqualNode(prev, n):
			cs.UpdatedNodes = append(cs.UpdatedNodes, copyNode(n))
		}
	}
	for _, n := range old.Nodes() {
		if new.Node(n.ID) == nil {
			cs.RemovedNodes = append(cs.RemovedNodes, n.ID)
		}
	}

	for _, l := range new.links {
		prev := old.Link(l.ID)
		if prev == nil || !EqualLink(prev, l) {
			cl := *l
			cs.AddedLinks = append(cs.AddedLinks, &cl)
		}
	}
	for _, l := range old.links {
		cur := new.Link(l.ID)
		if cur == nil || !EqualLink(cur, l) {
			cs.RemovedLinks = append(cs.RemovedLinks, l.ID)
		}
	}

	for _, h := range new.hops {
		prev := old.Hop(h.ID)
		if prev == nil || !EqualHop(prev, h) {
			ch := *h
			cs.AddedHops = append(cs.AddedHops, &ch)
		}
	}
	for _, h := range old.hops {
		cur := new.Hop(h.ID)
		if cur == nil || !EqualHop(cur, h) {
			cs.RemovedHops = append(cs.RemovedHops, h.ID)
		}
	}

	for _, r := range new.requirements {
		prev := old.Requirement(r.ID)
		if prev == nil || !EqualRequirement(prev, r) {
			cr := *r
			cr.HopIDs = append([]string(nil), r.HopIDs...)
			cs.AddedRequirements = append(cs.AddedRequirements, &cr)
		}
	}
	for _, r := range old.requirements {
		cur := new.Requirement(r.ID)
		if cur == nil || !EqualRequirement(cur, r) {
			cs.RemovedRequirements = append(cs.RemovedRequirements, r.ID)
		}
	}

	return cs
}

// Apply mutates g by the given change-set: removals first, then adds and
// updates. Elements landing in g are copies of the change-set's.
func (g *NFFG) Apply(cs *ChangeSet) error {
	for _, id := range cs.RemovedRequirements {
		reqs := g.requirements[:0]
		for _, r := range g.requirements {
			if r.ID != id {
				reqs = append(reqs, r)
			}
		}
		g.requirements = reqs
	}
	for _, id := range cs.RemovedHops {
		g.DelHop(id)
	}
	for _, id := range cs.RemovedLinks {
		g.DelLink(id)
	}
	for _, id := range cs.RemovedNodes {
		g.DelNode(id)
	}

	for _, n := range cs.AddedNodes {
		if err := g.AddNode(copyNode(n)); err != nil {
			return err
		}
	}
	for _, n := range cs.UpdatedNodes {
		if g.Node(n.ID) == nil {
			return &ParseError{Element: n.ID, Reason: "update for unknown node"}
		}
		g.nodes[n.ID] = copyNode(n)
	}
	for _, l := range cs.AddedLinks {
		cl := *l
		if err := g.AddLink(&cl); err != nil {
			return err
		}
	}
	for _, h := range cs.AddedHops {
		ch := *h
		if err := g.AddHop(&ch); err != nil {
			return err
		}
	}
	for _, r := range cs.AddedRequirements {
		cr := *r
		cr.HopIDs = append([]string(nil), r.HopIDs...)
		if err := g.AddRequirement(&cr); err != nil {
			return err
		}
	}
	return nil
}
