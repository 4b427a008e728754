package mapper

import (
	"fmt"
	"sort"

	"conflux/internal/nffg"
)

// substrateEdge is one directed substrate link between two infrastructure
// nodes, resolved to node ids for path search.
type substrateEdge struct {
	link *nffg.Link
	from string // infra node id
	to   string // infra node id
}

// state is the working area of one mapping run: the resource-view copy
// being annotated plus a reservation log. Every mutation is journaled so
// backtracking is a cheap undo of the latest entries rather than a
// recomputation.
type state struct {
	m *nffg.NFFG // the mapped graph under construction

	reservedNode map[string]nffg.Resources // infra id -> demand reserved in this run
	reservedLink map[string]float64        // link id -> bandwidth reserved in this run

	adj      map[string][]substrateEdge // infra id -> outgoing infra-infra edges
	sapHome  map[string]string          // sap id -> adjacent infra id
	sapEntry map[string]nffg.PortRef    // sap id -> ingress port on its home infra

	hopDelay map[string]float64 // routed hop id -> realized path delay

	// pre-existing consumption baked into the view (REMAP keeps these)
	preConsumed map[string]nffg.Resources
}

func newState(res *nffg.NFFG) (*state, error) {
	s := &state{
		m:            res.Copy(),
		reservedNode: make(map[string]nffg.Resources),
		reservedLink: make(map[string]float64),
		adj:          make(map[string][]substrateEdge),
		sapHome:      make(map[string]string),
		sapEntry:     make(map[string]nffg.PortRef),
		hopDelay:     make(map[string]float64),
		preConsumed:  make(map[string]nffg.Resources),
	}
	for _, infra := range s.m.Infras() {
		s.preConsumed[infra.ID] = s.m.ConsumedOn(infra.ID)
	}
	for _, l := range s.m.Links() {
		src := s.m.Node(l.Src.Node)
		dst := s.m.Node(l.Dst.Node)
		if src == nil || dst == nil {
			return nil, &MappingError{Reason: fmt.Sprintf("view link %q has dangling endpoint", l.ID)}
		}
		switch {
		case src.Type == nffg.NodeTypeInfra && dst.Type == nffg.NodeTypeInfra:
			s.adj[src.ID] = append(s.adj[src.ID], substrateEdge{link: l, from: src.ID, to: dst.ID})
		case src.Type == nffg.NodeTypeSAP && dst.Type == nffg.NodeTypeInfra:
			s.sapHome[src.ID] = dst.ID
			s.sapEntry[src.ID] = l.Dst
		}
	}
	return s, nil
}

// residual returns the capacity still available on an infra node, counting
// both pre-existing consumption and this run's reservations.
func (s *state) residual(infraID string) nffg.Resources {
	infra := s.m.Node(infraID)
	return infra.Capacity.Sub(s.preConsumed[infraID]).Sub(s.reservedNode[infraID])
}

// linkAvailable returns the bandwidth still free on a substrate link.
func (s *state) linkAvailable(l *nffg.Link) float64 {
	return l.Bandwidth - s.reservedLink[l.ID]
}

// attachPortID names the infra port wired to one NF port once placed.
func attachPortID(nfID, portID string) string {
	return "nf:" + nfID + ":" + portID
}

// place puts a copy of nf onto the given infra node: reserves its demand,
// adds the NF to the mapped graph and wires each NF port to a fresh
// attachment port on the infra.
func (s *state) place(nf *nffg.Node, infraID string) error {
	infra := s.m.Node(infraID)
	placed := nffg.CopyNode(nf)
	placed.Host = infraID
	if len(placed.Ports) == 0 {
		placed.MustAddPort("port")
	}
	if err := s.m.AddNode(placed); err != nil {
		return err
	}
	for _, p := range placed.Ports {
		if _, err := infra.AddPort(attachPortID(placed.ID, p.ID)); err != nil {
			s.m.DelNode(placed.ID)
			return err
		}
		up := &nffg.Link{
			ID:  "map-" + placed.ID + "-" + p.ID,
			Src: nffg.PortRef{Node: placed.ID, Port: p.ID},
			Dst: nffg.PortRef{Node: infraID, Port: attachPortID(placed.ID, p.ID)},
		}
		down := &nffg.Link{
			ID:       up.ID + "-back",
			Src:      up.Dst,
			Dst:      up.Src,
			Backward: true,
		}
		if err := s.m.AddLink(up); err != nil {
			return err
		}
		if err := s.m.AddLink(down); err != nil {
			return err
		}
	}
	s.reservedNode[infraID] = s.reservedNode[infraID].Add(nf.Demand)
	return nil
}

// unplace reverses place: drops the NF, its attachment ports and links,
// and releases the reservation.
func (s *state) unplace(nfID, infraID string) {
	nf := s.m.Node(nfID)
	if nf == nil {
		return
	}
	infra := s.m.Node(infraID)
	for _, p := range nf.Ports {
		infra.DelPort(attachPortID(nfID, p.ID))
	}
	s.m.DelNode(nfID) // also drops the attachment links
	s.reservedNode[infraID] = s.reservedNode[infraID].Sub(nf.Demand)
}

// endpointOf resolves a hop endpoint to (infra id, port on that infra).
// NF endpoints resolve to their attachment port on the hosting infra; SAP
// endpoints resolve to the ingress port of their home infra.
func (s *state) endpointOf(ref nffg.PortRef) (string, nffg.PortRef, error) {
	n := s.m.Node(ref.Node)
	if n == nil {
		return "", nffg.PortRef{}, fmt.Errorf("unknown endpoint node %q", ref.Node)
	}
	switch n.Type {
	case nffg.NodeTypeNF:
		if n.Host == "" {
			return "", nffg.PortRef{}, fmt.Errorf("function %q not placed yet", n.ID)
		}
		port := ref.Port
		if n.Port(port) == nil && len(n.Ports) > 0 {
			port = n.Ports[0].ID
		}
		return n.Host, nffg.PortRef{Node: n.Host, Port: attachPortID(n.ID, port)}, nil
	case nffg.NodeTypeSAP:
		home, ok := s.sapHome[n.ID]
		if !ok {
			return "", nffg.PortRef{}, fmt.Errorf("access point %q is not attached to any infrastructure", n.ID)
		}
		return home, s.sapEntry[n.ID], nil
	}
	return "", nffg.PortRef{}, fmt.Errorf("endpoint node %q is infrastructure", ref.Node)
}

// sortedEdges returns the outgoing edges of an infra node in a stable
// order so equal-cost path searches stay deterministic.
func (s *state) sortedEdges(infraID string) []substrateEdge {
	edges := append([]substrateEdge(nil), s.adj[infraID]...)
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].to != edges[j].to {
			return edges[i].to < edges[j].to
		}
		return edges[i].link.ID < edges[j].link.ID
	})
	return edges
}
