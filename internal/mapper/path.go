package mapper

import (
	"fmt"
	"math"

	"conflux/internal/nffg"
)

// ruleRef addresses one installed flow rule for undo.
type ruleRef struct {
	infra string
	port  string
	rule  string
}

// routeLog journals everything one routed hop did to the state, so a
// backtracked placement can pop its routes off cheaply.
type routeLog struct {
	hopID string
	rules []ruleRef
	links []string
	bw    float64
	delay float64
}

// route realizes one SG hop as a substrate path and installs its flow
// rules. bw is the effective bandwidth demand (hop demand raised to any
// governing requirement's minimum).
func (s *state) route(h *nffg.SGHop, bw float64) (*routeLog, error) {
	srcInfra, srcPort, err := s.endpointOf(h.Src)
	if err != nil {
		return nil, &MappingError{HopID: h.ID, Reason: err.Error()}
	}
	dstInfra, dstPort, err := s.endpointOf(h.Dst)
	if err != nil {
		return nil, &MappingError{HopID: h.ID, Reason: err.Error()}
	}

	rl := &routeLog{hopID: h.ID, bw: bw}

	if srcInfra == dstInfra {
		infra := s.m.Node(srcInfra)
		rl.delay = infra.Capacity.Delay
		s.installRule(rl, srcInfra, srcPort.Port, &nffg.FlowRule{
			ID:        ruleID(h.ID, 0),
			InPort:    srcPort.Port,
			OutPort:   dstPort.Port,
			Bandwidth: bw,
			HopID:     h.ID,
		})
		s.hopDelay[h.ID] = rl.delay
		return rl, nil
	}

	path, err := s.shortestPath(srcInfra, dstInfra, bw)
	if err != nil {
		return nil, &MappingError{HopID: h.ID, Reason: err.Error()}
	}

	// Tag-switch across the substrate: push at the first node, match in
	// the middle, pop at the last. The tag is the hop id so rules from
	// different hops sharing a port never collide.
	tag := h.ID
	seq := 0
	first := path[0]
	s.installRule(rl, first.from, srcPort.Port, &nffg.FlowRule{
		ID:        ruleID(h.ID, seq),
		InPort:    srcPort.Port,
		OutPort:   first.link.Src.Port,
		PushTag:   tag,
		Bandwidth: bw,
		HopID:     h.ID,
	})
	seq++
	for i := 1; i < len(path); i++ {
		s.installRule(rl, path[i].from, path[i-1].link.Dst.Port, &nffg.FlowRule{
			ID:        ruleID(h.ID, seq),
			InPort:    path[i-1].link.Dst.Port,
			MatchTag:  tag,
			OutPort:   path[i].link.Src.Port,
			Bandwidth: bw,
			HopID:     h.ID,
		})
		seq++
	}
	last := path[len(path)-1]
	s.installRule(rl, last.to, last.link.Dst.Port, &nffg.FlowRule{
		ID:        ruleID(h.ID, seq),
		InPort:    last.link.Dst.Port,
		MatchTag:  tag,
		PopTag:    true,
		OutPort:   dstPort.Port,
		Bandwidth: bw,
		HopID:     h.ID,
	})

	delay := 0.0
	for _, e := range path {
		delay += e.link.Delay
		s.reservedLink[e.link.ID] += bw
		rl.links = append(rl.links, e.link.ID)
	}
	delay += s.m.Node(srcInfra).Capacity.Delay
	for _, e := range path {
		delay += s.m.Node(e.to).Capacity.Delay
	}
	rl.delay = delay
	s.hopDelay[h.ID] = delay
	return rl, nil
}

func ruleID(hopID string, seq int) string {
	return fmt.Sprintf("fr-%s-%d", hopID, seq)
}

func (s *state) installRule(rl *routeLog, infraID, portID string, fr *nffg.FlowRule) {
	port := s.m.Node(infraID).Port(portID)
	port.AddFlowRule(fr)
	rl.rules = append(rl.rules, ruleRef{infra: infraID, port: portID, rule: fr.ID})
}

// undoRoute pops one routed hop: its rules, its link reservations, its
// realized delay.
func (s *state) undoRoute(rl *routeLog) {
	for _, ref := range rl.rules {
		if n := s.m.Node(ref.infra); n != nil {
			if p := n.Port(ref.port); p != nil {
				p.DelFlowRule(ref.rule)
			}
		}
	}
	for _, id := range rl.links {
		s.reservedLink[id] -= rl.bw
	}
	delete(s.hopDelay, rl.hopID)
}

// shortestPath finds a substrate path from src to dst infra with enough
// free bandwidth on every link, preferring fewest hops, then lowest
// aggregate delay, then lexical order for full determinism.
func (s *state) shortestPath(src, dst string, bw float64) ([]substrateEdge, error) {
	type cost struct {
		hops  int
		delay float64
	}
	better := func(a, b cost) bool {
		if a.hops != b.hops {
			return a.hops < b.hops
		}
		return a.delay < b.delay
	}

	dist := map[string]cost{src: {0, 0}}
	prev := map[string]substrateEdge{}
	done := map[string]bool{}

	for {
		cur := ""
		best := cost{math.MaxInt32, math.MaxFloat64}
		for id, c := range dist {
			if done[id] {
				continue
			}
			if better(c, best) || (c == best && (cur == "" || id < cur)) {
				best, cur = c, id
			}
		}
		if cur == "" {
			return nil, fmt.Errorf("no substrate path from %q to %q with %.1f bandwidth", src, dst, bw)
		}
		if cur == dst {
			break
		}
		done[cur] = true
		for _, e := range s.sortedEdges(cur) {
			if e.link.Bandwidth > 0 && s.linkAvailable(e.link) < bw {
				continue
			}
			next := cost{best.hops + 1, best.delay + e.link.Delay}
			if old, seen := dist[e.to]; !seen || better(next, old) {
				dist[e.to] = next
				prev[e.to] = e
			}
		}
	}

	var path []substrateEdge
	for at := dst; at != src; {
		e, ok := prev[at]
		if !ok {
			return nil, fmt.Errorf("no substrate path from %q to %q", src, dst)
		}
		path = append([]substrateEdge{e}, path...)
		at = e.from
	}
	return path, nil
}
