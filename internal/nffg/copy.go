package nffg

// Copy returns a deep copy of the graph. Copies are fully independent:
// mutating one never shows through the other. Per-domain change-sets and
// view snapshots are always copies, never aliases.
func (g *NFFG) Copy() *NFFG {
	out := New(g.ID)
	out.Name = g.Name
	out.Version = g.Version
	for _, n := range g.nodes {
		out.nodes[n.ID] = copyNode(n)
	}
	out.links = make([]*Link, len(g.links))
	for i, l := range g.links {
		cl := *l
		out.links[i] = &cl
	}
	out.hops = make([]*SGHop, len(g.hops))
	for i, h := range g.hops {
		ch := *h
		out.hops[i] = &ch
	}
	out.requirements = make([]*Requirement, len(g.requirements))
	for i, r := range g.requirements {
		cr := *r
		cr.HopIDs = append([]string(nil), r.HopIDs...)
		out.requirements[i] = &cr
	}
	return out
}

// CopyNode returns a deep copy of a single node.
func CopyNode(n *Node) *Node { return copyNode(n) }

func copyNode(n *Node) *Node {
	cn := *n
	cn.SupportedTypes = append([]string(nil), n.SupportedTypes...)
	cn.Ports = make([]*Port, len(n.Ports))
	for i, p := range n.Ports {
		cn.Ports[i] = copyPort(p)
	}
	return &cn
}

func copyPort(p *Port) *Port {
	cp := *p
	if p.Properties != nil {
		cp.Properties = make(map[string]string, len(p.Properties))
		for k, v := range p.Properties {
			cp.Properties[k] = v
		}
	}
	cp.FlowRules = make([]*FlowRule, len(p.FlowRules))
	for i, fr := range p.FlowRules {
		cfr := *fr
		cp.FlowRules[i] = &cfr
	}
	return &cp
}
