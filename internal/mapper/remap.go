package mapper

import (
	"log"
	"sort"
	"strconv"
	"strings"

	"conflux/internal/nffg"
)

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// reconcilePrevious prepares a REMAP run. The view already carries a
// previous mapping of the same logical service: functions with unchanged
// demand stay where they are and hops whose flow rules are already
// installed are treated as pre-reserved capacity. Anything the request no
// longer asks for is torn down, releasing its capacity for the deltas.
func (e *Engine) reconcilePrevious(req *nffg.NFFG, s *state, manifest *Manifest, kept map[string]bool) {
	wantedHops := make(map[string]*nffg.SGHop)
	for _, h := range req.Hops() {
		wantedHops[h.ID] = h
	}
	wantedNFs := make(map[string]*nffg.Node)
	for _, nf := range req.NFs() {
		wantedNFs[nf.ID] = nf
	}

	// Installed rules, grouped by owning hop.
	rulesByHop := make(map[string][]ruleRef)
	ruleBW := make(map[string]float64)
	for _, infra := range s.m.Infras() {
		for _, p := range infra.Ports {
			for _, fr := range p.FlowRules {
				if fr.HopID == "" {
					continue
				}
				rulesByHop[fr.HopID] = append(rulesByHop[fr.HopID], ruleRef{infra: infra.ID, port: p.ID, rule: fr.ID})
				ruleBW[fr.HopID] = fr.Bandwidth
			}
		}
	}

	// Tear down hops the request no longer contains.
	for hopID, refs := range rulesByHop {
		if _, wanted := wantedHops[hopID]; wanted {
			continue
		}
		for _, ref := range refs {
			s.m.Node(ref.infra).Port(ref.port).DelFlowRule(ref.rule)
		}
		log.Printf("mapper: remap removed %d stale rules of hop %s", len(refs), hopID)
		delete(rulesByHop, hopID)
	}

	// Keep still-wanted hops untouched: zero churn, manifest records the
	// existing rule ids.
	for hopID, refs := range rulesByHop {
		kept[hopID] = true
		sort.Slice(refs, func(i, j int) bool { return ruleSeq(refs[i].rule) < ruleSeq(refs[j].rule) })
		ids := make([]string, 0, len(refs))
		for _, ref := range refs {
			ids = append(ids, ref.rule)
		}
		manifest.HopRules[hopID] = ids
		s.rebookHop(hopID, refs, ruleBW[hopID])
	}

	// Functions: keep unchanged placements, tear down removed or resized
	// ones so the normal search re-places them.
	for _, placed := range s.m.NFs() {
		if placed.Host == "" {
			continue
		}
		want, wanted := wantedNFs[placed.ID]
		if wanted && want.Demand == placed.Demand && want.FuncType == placed.FuncType {
			manifest.Placements[placed.ID] = placed.Host
			continue
		}
		host := placed.Host
		s.unplace(placed.ID, host)
		// unplace released a reservation this run never made; repair the
		// baseline instead.
		s.reservedNode[host] = s.reservedNode[host].Add(placed.Demand)
		s.preConsumed[host] = s.preConsumed[host].Sub(placed.Demand)
		log.Printf("mapper: remap displaced function %s from %s", placed.ID, host)
	}
}

// rebookHop re-enters a kept hop into this run's books: its realized
// delay, recomputed from the installed path, and its bandwidth on every
// traversed link. refs must be in install order; every rule but the last
// forwards onto the link toward the next infrastructure node, so the
// path is recoverable from the rules alone.
func (s *state) rebookHop(hopID string, refs []ruleRef, bw float64) {
	delay := 0.0
	for i, ref := range refs {
		delay += s.m.Node(ref.infra).Capacity.Delay
		if i == len(refs)-1 {
			break
		}
		fr := s.m.Node(ref.infra).Port(ref.port).FlowRule(ref.rule)
		if fr == nil {
			continue
		}
		for _, l := range s.m.LinksFrom(nffg.PortRef{Node: ref.infra, Port: fr.OutPort}) {
			delay += l.Delay
			s.reservedLink[l.ID] += bw
			break
		}
	}
	s.hopDelay[hopID] = delay
}

// ruleSeq extracts the install-sequence suffix of a flow rule id.
func ruleSeq(id string) int {
	i := strings.LastIndex(id, "-")
	if i < 0 {
		return 0
	}
	n, _ := strconv.Atoi(id[i+1:])
	return n
}
