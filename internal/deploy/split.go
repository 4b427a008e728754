package deploy

import (
	"sort"

	"conflux/internal/nffg"
)

// Split partitions a mapped graph into one sub-graph per owning domain:
// the domain's infrastructure nodes with their flow rules, the functions
// placed on them, the access points and links local to the domain, and
// stub endpoints for boundary links so inter-domain stitching stays
// expressible. Every sub-graph is an independent copy.
func Split(m *nffg.NFFG) map[string]*nffg.NFFG {
	domains := make(map[string]*nffg.NFFG)

	owner := make(map[string]string) // node id -> domain
	for _, infra := range m.Infras() {
		if infra.Domain == "" {
			continue
		}
		owner[infra.ID] = infra.Domain
		if domains[infra.Domain] == nil {
			domains[infra.Domain] = nffg.New(m.ID + ":" + infra.Domain)
			domains[infra.Domain].Version = m.Version
		}
		mustAdd(domains[infra.Domain], nffg.CopyNode(infra))
	}

	// Functions follow their hosting infra.
	for _, nf := range m.NFs() {
		if d, ok := owner[nf.Host]; ok {
			owner[nf.ID] = d
			mustAdd(domains[d], nffg.CopyNode(nf))
		}
	}

	// Access points belong to the domain of the infra they link to.
	for _, l := range m.Links() {
		src, dst := m.Node(l.Src.Node), m.Node(l.Dst.Node)
		if src == nil || dst == nil {
			continue
		}
		if src.Type == nffg.NodeTypeSAP && dst.Type == nffg.NodeTypeInfra {
			if d, ok := owner[dst.ID]; ok && owner[src.ID] == "" {
				owner[src.ID] = d
				mustAdd(domains[d], nffg.CopyNode(src))
			}
		}
	}

	for _, l := range m.Links() {
		sd, dd := owner[l.Src.Node], owner[l.Dst.Node]
		switch {
		case sd != "" && sd == dd:
			cl := *l
			mustAddLink(domains[sd], &cl)
		case sd != "" && dd != "" && sd != dd:
			// Boundary link: both domains carry it, each with a stub of
			// the far endpoint.
			addBoundary(domains[sd], m, l, l.Dst.Node)
			addBoundary(domains[dd], m, l, l.Src.Node)
		}
	}

	// Hops whose endpoints both landed in one domain travel with it.
	for _, h := range m.Hops() {
		if d := owner[h.Src.Node]; d != "" && d == owner[h.Dst.Node] {
			ch := *h
			if domains[d].Hop(ch.ID) == nil {
				_ = domains[d].AddHop(&ch)
			}
		}
	}

	return domains
}

// Domains returns the sorted domain names of a split result.
func Domains(parts map[string]*nffg.NFFG) []string {
	out := make([]string, 0, len(parts))
	for d := range parts {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// addBoundary inserts a boundary link into sub, creating a capacity-less
// stub of the far node if the domain does not carry it.
func addBoundary(sub *nffg.NFFG, m *nffg.NFFG, l *nffg.Link, farID string) {
	farPort := l.Src.Port
	if l.Dst.Node == farID {
		farPort = l.Dst.Port
	}
	stub := sub.Node(farID)
	if stub == nil {
		far := m.Node(farID)
		stub = &nffg.Node{
			ID:        far.ID,
			Type:      far.Type,
			Domain:    far.Domain,
			InfraType: nffg.InfraTypeBoundaryStub,
		}
		mustAdd(sub, stub)
	}
	if stub.Port(farPort) == nil {
		stub.MustAddPort(farPort)
	}
	if sub.Link(l.ID) == nil {
		cl := *l
		mustAddLink(sub, &cl)
	}
}

func mustAdd(g *nffg.NFFG, n *nffg.Node) {
	if err := g.AddNode(n); err != nil {
		panic(err)
	}
}

func mustAddLink(g *nffg.NFFG, l *nffg.Link) {
	if err := g.AddLink(l); err != nil {
		panic(err)
	}
}
