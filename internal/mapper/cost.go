package mapper

import (
	"math"
	"sort"

	"conflux/internal/nffg"
)

// loadAfter scores how loaded an infra node would be after hosting demand:
// the worst consumed fraction across resource components. Lower is better.
func (s *state) loadAfter(infraID string, demand nffg.Resources) float64 {
	infra := s.m.Node(infraID)
	used := infra.Capacity.Sub(s.residual(infraID)).Add(demand)
	frac := func(u, c float64) float64 {
		if c <= 0 {
			return 0
		}
		return u / c
	}
	load := frac(used.CPU, infra.Capacity.CPU)
	if f := frac(used.Mem, infra.Capacity.Mem); f > load {
		load = f
	}
	if f := frac(used.Storage, infra.Capacity.Storage); f > load {
		load = f
	}
	return load
}

// hopDistance returns the substrate hop count between two infra nodes,
// ignoring bandwidth, or a large constant when disconnected.
func (s *state) hopDistance(from, to string) float64 {
	if from == to {
		return 0
	}
	dist := map[string]int{from: 0}
	frontier := []string{from}
	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		for _, e := range s.sortedEdges(cur) {
			if _, seen := dist[e.to]; seen {
				continue
			}
			dist[e.to] = dist[cur] + 1
			if e.to == to {
				return float64(dist[e.to])
			}
			frontier = append(frontier, e.to)
		}
	}
	return math.MaxFloat64 / 2
}

// candidatesFor ranks the infra nodes able to host nf: enough remaining
// capacity and a matching functional type. Preference is lowest projected
// load, then smallest total distance to the infras already hosting the
// function's neighbors, then lexical id so equal-cost runs stay stable.
func (s *state) candidatesFor(nf *nffg.Node, neighborInfras []string) []string {
	type scored struct {
		id       string
		load     float64
		distance float64
	}
	var cands []scored
	for _, infra := range s.m.Infras() {
		if !infra.Supports(nf.FuncType) {
			continue
		}
		if !s.residual(infra.ID).Fits(nf.Demand) {
			continue
		}
		sc := scored{id: infra.ID, load: s.loadAfter(infra.ID, nf.Demand)}
		for _, n := range neighborInfras {
			sc.distance += s.hopDistance(infra.ID, n)
		}
		cands = append(cands, sc)
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].load != cands[j].load {
			return cands[i].load < cands[j].load
		}
		if cands[i].distance != cands[j].distance {
			return cands[i].distance < cands[j].distance
		}
		return cands[i].id < cands[j].id
	})
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.id
	}
	return out
}

// orderNFs returns the request's function nodes in placement order:
// descending total demand, ties by id, so output is stable across
// equal-cost runs.
func orderNFs(req *nffg.NFFG) []*nffg.Node {
	nfs := req.NFs()
	total := func(n *nffg.Node) float64 {
		return n.Demand.CPU + n.Demand.Mem + n.Demand.Storage
	}
	sort.SliceStable(nfs, func(i, j int) bool {
		ti, tj := total(nfs[i]), total(nfs[j])
		if ti != tj {
			return ti > tj
		}
		return nfs[i].ID < nfs[j].ID
	})
	return nfs
}
