// Package nffg holds the canonical in-memory representation of service
// requests, domain topologies and mapped graphs. One schema serves all
// three populations; only the node mix differs. Pure data plus
// validation - no I/O lives here.
package nffg

import (
	"fmt"
	"sort"
)

// NFFG is a network function forwarding graph: nodes, substrate links,
// service-graph hops and end-to-end requirements. An instance exclusively
// owns its elements; handing a graph across a concurrency boundary means
// handing a Copy.
type NFFG struct {
	ID      string
	Name    string
	Version uint64

	nodes        map[string]*Node
	links        []*Link
	hops         []*SGHop
	requirements []*Requirement
}

// New creates an empty graph with the given id.
func New(id string) *NFFG {
	return &NFFG{
		ID:    id,
		nodes: make(map[string]*Node),
	}
}

// AddNode inserts a node. The id must be unique within the graph and the
// node's resource vectors must be non-negative.
func (g *NFFG) AddNode(n *Node) error {
	if n.ID == "" {
		return &ParseError{Reason: "node with empty id"}
	}
	if _, exists := g.nodes[n.ID]; exists {
		return &ParseError{Element: n.ID, Reason: "duplicate node id"}
	}
	if !n.Demand.NonNegative() || !n.Capacity.NonNegative() {
		return &ParseError{Element: n.ID, Reason: "negative resource quantity"}
	}
	seen := make(map[string]struct{}, len(n.Ports))
	for _, p := range n.Ports {
		if _, dup := seen[p.ID]; dup {
			return &ParseError{Element: n.ID, Reason: fmt.Sprintf("duplicate port id %q", p.ID)}
		}
		seen[p.ID] = struct{}{}
	}
	g.nodes[n.ID] = n
	return nil
}

// Node returns the node with the given id, or nil.
func (g *NFFG) Node(id string) *Node {
	return g.nodes[id]
}

// DelNode removes a node and every edge touching it. Returns true if the
// node existed.
func (g *NFFG) DelNode(id string) bool {
	if _, ok := g.nodes[id]; !ok {
		return false
	}
	delete(g.nodes, id)
	g.links = filterLinks(g.links, id)
	kept := g.hops[:0]
	for _, h := range g.hops {
		if h.Src.Node != id && h.Dst.Node != id {
			kept = append(kept, h)
		}
	}
	g.hops = kept
	reqs := g.requirements[:0]
	for _, r := range g.requirements {
		if r.Src.Node != id && r.Dst.Node != id {
			reqs = append(reqs, r)
		}
	}
	g.requirements = reqs
	return true
}

func filterLinks(links []*Link, nodeID string) []*Link {
	kept := links[:0]
	for _, l := range links {
		if l.Src.Node != nodeID && l.Dst.Node != nodeID {
			kept = append(kept, l)
		}
	}
	return kept
}

// AddLink inserts a substrate link. Both endpoints must already exist.
func (g *NFFG) AddLink(l *Link) error {
	if err := g.checkRef(l.Src); err != nil {
		return &ParseError{Element: l.ID, Reason: "src: " + err.Error()}
	}
	if err := g.checkRef(l.Dst); err != nil {
		return &ParseError{Element: l.ID, Reason: "dst: " + err.Error()}
	}
	if l.ID == "" {
		l.ID = l.Src.String() + "-" + l.Dst.String()
	}
	g.links = append(g.links, l)
	return nil
}

// AddHop inserts a service-graph hop between existing NF/SAP ports.
func (g *NFFG) AddHop(h *SGHop) error {
	for _, ref := range []PortRef{h.Src, h.Dst} {
		if err := g.checkRef(ref); err != nil {
			return &ParseError{Element: h.ID, Reason: err.Error()}
		}
		if t := g.nodes[ref.Node].Type; t != NodeTypeNF && t != NodeTypeSAP {
			return &ParseError{Element: h.ID, Reason: fmt.Sprintf("hop endpoint %s is a %s node", ref, t)}
		}
	}
	if h.ID == "" {
		return &ParseError{Reason: "hop with empty id"}
	}
	if g.Hop(h.ID) != nil {
		return &ParseError{Element: h.ID, Reason: "duplicate hop id"}
	}
	g.hops = append(g.hops, h)
	return nil
}

// AddRequirement inserts an end-to-end requirement. Bounds must be
// non-negative and the referenced hops must form a connected path.
func (g *NFFG) AddRequirement(r *Requirement) error {
	if r.MaxDelay < 0 || r.MinBandwidth < 0 {
		return &ParseError{Element: r.ID, Reason: "negative requirement bound"}
	}
	if len(r.HopIDs) == 0 {
		return &ParseError{Element: r.ID, Reason: "requirement references no hops"}
	}
	if g.Requirement(r.ID) != nil {
		return &ParseError{Element: r.ID, Reason: "duplicate requirement id"}
	}
	var prev *SGHop
	for _, hid := range r.HopIDs {
		h := g.Hop(hid)
		if h == nil {
			return &ParseError{Element: r.ID, Reason: fmt.Sprintf("unknown hop %q", hid)}
		}
		if prev != nil && prev.Dst.Node != h.Src.Node {
			return &ParseError{Element: r.ID, Reason: fmt.Sprintf("hops %q and %q are not connected", prev.ID, h.ID)}
		}
		prev = h
	}
	g.requirements = append(g.requirements, r)
	return nil
}

func (g *NFFG) checkRef(ref PortRef) error {
	n := g.nodes[ref.Node]
	if n == nil {
		return fmt.Errorf("unknown node %q", ref.Node)
	}
	if n.Port(ref.Port) == nil {
		return fmt.Errorf("unknown port %q on node %q", ref.Port, ref.Node)
	}
	return nil
}

// Requirement returns the end-to-end requirement with the given id, or nil.
func (g *NFFG) Requirement(id string) *Requirement {
	for _, r := range g.requirements {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// Hop returns the SG hop with the given id, or nil.
func (g *NFFG) Hop(id string) *SGHop {
	for _, h := range g.hops {
		if h.ID == id {
			return h
		}
	}
	return nil
}

// DelHop removes the hop with the given id. Returns true if found.
func (g *NFFG) DelHop(id string) bool {
	for i, h := range g.hops {
		if h.ID == id {
			g.hops = append(g.hops[:i], g.hops[i+1:]...)
			return true
		}
	}
	return false
}

// Link returns the link with the given id, or nil.
func (g *NFFG) Link(id string) *Link {
	for _, l := range g.links {
		if l.ID == id {
			return l
		}
	}
	return nil
}

// DelLink removes the link with the given id. Returns true if found.
func (g *NFFG) DelLink(id string) bool {
	for i, l := range g.links {
		if l.ID == id {
			g.links = append(g.links[:i], g.links[i+1:]...)
			return true
		}
	}
	return false
}

// Nodes returns all nodes sorted by id. The slice is fresh; the nodes are
// the graph's own.
func (g *NFFG) Nodes() []*Node {
	nodes := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// NodesByType returns the nodes of one population, sorted by id.
func (g *NFFG) NodesByType(t NodeType) []*Node {
	var nodes []*Node
	for _, n := range g.nodes {
		if n.Type == t {
			nodes = append(nodes, n)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// NFs returns all function nodes sorted by id.
func (g *NFFG) NFs() []*Node { return g.NodesByType(NodeTypeNF) }

// SAPs returns all access-point nodes sorted by id.
func (g *NFFG) SAPs() []*Node { return g.NodesByType(NodeTypeSAP) }

// Infras returns all infrastructure nodes sorted by id.
func (g *NFFG) Infras() []*Node { return g.NodesByType(NodeTypeInfra) }

// Links returns the substrate links in insertion order. Like Nodes, the
// slice is fresh; the links are the graph's own.
func (g *NFFG) Links() []*Link { return append([]*Link(nil), g.links...) }

// Hops returns the service-graph hops in insertion order. The slice is
// fresh; the hops are the graph's own.
func (g *NFFG) Hops() []*SGHop { return append([]*SGHop(nil), g.hops...) }

// Requirements returns the end-to-end requirements in insertion order.
// The slice is fresh; the requirements are the graph's own.
func (g *NFFG) Requirements() []*Requirement {
	return append([]*Requirement(nil), g.requirements...)
}

// NodeCount returns the number of nodes.
func (g *NFFG) NodeCount() int { return len(g.nodes) }

// LinksFrom returns every link whose source port is ref.
func (g *NFFG) LinksFrom(ref PortRef) []*Link {
	var out []*Link
	for _, l := range g.links {
		if l.Src == ref {
			out = append(out, l)
		}
	}
	return out
}

// Neighbors returns the port refs directly reachable from ref over
// substrate links.
func (g *NFFG) Neighbors(ref PortRef) []PortRef {
	var out []PortRef
	for _, l := range g.links {
		if l.Src == ref {
			out = append(out, l.Dst)
		}
	}
	return out
}

// HopsFrom returns every SG hop transitively reachable by following hop
// chains starting at the given node, in chain order.
func (g *NFFG) HopsFrom(nodeID string) []*SGHop {
	var out []*SGHop
	visited := make(map[string]struct{})
	frontier := []string{nodeID}
	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		if _, seen := visited[cur]; seen {
			continue
		}
		visited[cur] = struct{}{}
		for _, h := range g.hops {
			if h.Src.Node == cur {
				out = append(out, h)
				frontier = append(frontier, h.Dst.Node)
			}
		}
	}
	return out
}

// AggregateDemand sums the resource demand of the given function nodes.
// Unknown ids and non-NF nodes contribute nothing.
func (g *NFFG) AggregateDemand(nodeIDs ...string) Resources {
	var total Resources
	for _, id := range nodeIDs {
		if n := g.nodes[id]; n != nil && n.Type == NodeTypeNF {
			total = total.Add(n.Demand)
		}
	}
	return total
}

// ConsumedOn sums the demand of every NF placed on the given
// infrastructure node.
func (g *NFFG) ConsumedOn(infraID string) Resources {
	var total Resources
	for _, n := range g.nodes {
		if n.Type == NodeTypeNF && n.Host == infraID {
			total = total.Add(n.Demand)
		}
	}
	return total
}

// Validate re-checks referential integrity of the whole graph. Parse paths
// already enforce this incrementally; Validate covers graphs assembled or
// mutated directly.
func (g *NFFG) Validate() error {
	for _, l := range g.links {
		if err := g.checkRef(l.Src); err != nil {
			return &ParseError{Element: l.ID, Reason: err.Error()}
		}
		if err := g.checkRef(l.Dst); err != nil {
			return &ParseError{Element: l.ID, Reason: err.Error()}
		}
	}
	for _, h := range g.hops {
		if err := g.checkRef(h.Src); err != nil {
			return &ParseError{Element: h.ID, Reason: err.Error()}
		}
		if err := g.checkRef(h.Dst); err != nil {
			return &ParseError{Element: h.ID, Reason: err.Error()}
		}
	}
	for _, r := range g.requirements {
		for _, hid := range r.HopIDs {
			if g.Hop(hid) == nil {
				return &ParseError{Element: r.ID, Reason: fmt.Sprintf("unknown hop %q", hid)}
			}
		}
	}
	for _, n := range g.nodes {
		if n.Type == NodeTypeInfra {
			if !n.Capacity.Fits(g.ConsumedOn(n.ID)) {
				return &ParseError{Element: n.ID, Reason: "hosted demand exceeds capacity"}
			}
		}
	}
	return nil
}
