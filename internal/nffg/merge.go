package nffg

import "strings"

// Merge unions other into g. Elements whose ids collide must be
// structurally equal to the element already present; otherwise the merge
// is rejected with a ConflictError and g is left unchanged. Merged-in
// elements are deep copies - g never aliases other's memory.
func (g *NFFG) Merge(other *NFFG) error {
	// Dry run first so a rejected merge leaves no partial state behind.
	for id, n := range other.nodes {
		if existing, ok := g.nodes[id]; ok && !EqualNode(existing, n) {
			return &ConflictError{ID: id, Reason: "node differs from already-merged node"}
		}
	}
	for _, l := range other.links {
		if existing := g.Link(l.ID); existing != nil && !EqualLink(existing, l) {
			return &ConflictError{ID: l.ID, Reason: "link differs from already-merged link"}
		}
	}
	for _, h := range other.hops {
		if existing := g.Hop(h.ID); existing != nil && !EqualHop(existing, h) {
			return &ConflictError{ID: h.ID, Reason: "hop differs from already-merged hop"}
		}
	}
	for _, r := range other.requirements {
		if existing := g.Requirement(r.ID); existing != nil && !EqualRequirement(existing, r) {
			return &ConflictError{ID: r.ID, Reason: "requirement differs from already-merged requirement"}
		}
	}

	for _, n := range other.Nodes() {
		if _, ok := g.nodes[n.ID]; !ok {
			g.nodes[n.ID] = copyNode(n)
		}
	}
	for _, l := range other.links {
		if g.Link(l.ID) == nil {
			cl := *l
			g.links = append(g.links, &cl)
		}
	}
	for _, h := range other.hops {
		if g.Hop(h.ID) == nil {
			ch := *h
			g.hops = append(g.hops, &ch)
		}
	}
	for _, r := range other.requirements {
		if g.Requirement(r.ID) == nil {
			cr := *r
			cr.HopIDs = append([]string(nil), r.HopIDs...)
			g.requirements = append(g.requirements, &cr)
		}
	}
	return nil
}

// Relabel rewrites every element id to prefix+sep+id, including edge
// endpoint references and requirement hop lists. Used by the global view's
// ensure-unique-id policy to namespace a domain's report before merging.
// Ids already carrying the prefix are left alone, so relabeling is
// idempotent across report/commit round trips.
func (g *NFFG) Relabel(prefix, sep string) {
	rename := func(id string) string {
		if id == "" || strings.HasPrefix(id, prefix+sep) {
			return id
		}
		return prefix + sep + id
	}
	renamed := make(map[string]*Node, len(g.nodes))
	for _, n := range g.nodes {
		n.ID = rename(n.ID)
		n.Host = rename(n.Host)
		renamed[n.ID] = n
	}
	g.nodes = renamed
	for _, l := range g.links {
		l.ID = rename(l.ID)
		l.Src.Node = rename(l.Src.Node)
		l.Dst.Node = rename(l.Dst.Node)
	}
	for _, h := range g.hops {
		h.ID = rename(h.ID)
		h.Src.Node = rename(h.Src.Node)
		h.Dst.Node = rename(h.Dst.Node)
	}
	for _, r := range g.requirements {
		r.ID = rename(r.ID)
		r.Src.Node = rename(r.Src.Node)
		r.Dst.Node = rename(r.Dst.Node)
		for i, hid := range r.HopIDs {
			r.HopIDs[i] = rename(hid)
		}
	}
	for _, n := range g.nodes {
		for _, p := range n.Ports {
			for _, fr := range p.FlowRules {
				fr.HopID = rename(fr.HopID)
			}
		}
	}
}
