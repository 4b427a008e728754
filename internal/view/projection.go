package view

import (
	"fmt"
	"sort"

	"conflux/internal/nffg"
)

// Kind selects the shape of a projection handed to upstream consumers.
type Kind string

const (
	// Global - the full merged view, unchanged.
	Global Kind = "GLOBAL"
	// SingleBiSBiS - the view collapsed to one synthetic infrastructure
	// node carrying the summed capacity and the union of supported
	// functional types, SAPs preserved, internal infra links elided.
	SingleBiSBiS Kind = "SINGLE_BISBIS"
)

// SingleBiSBiSID is the id of the synthetic node in a collapsed projection.
const SingleBiSBiSID = "SingleBiSBiS"

// Projection is a read-only snapshot of the global view. Graph is a deep
// copy owned by the caller; Version tags the view state it was computed
// from so callers can detect staleness.
type Projection struct {
	Kind    Kind
	Version uint64
	Graph   *nffg.NFFG
}

// Projection computes a snapshot of the requested kind against the
// current view state. Never blocks on writers.
func (a *Aggregator) Projection(kind Kind) (*Projection, error) {
	snap := a.current.Load()
	switch kind {
	case Global:
		return &Projection{Kind: kind, Version: snap.version, Graph: snap.graph.Copy()}, nil
	case SingleBiSBiS:
		return &Projection{Kind: kind, Version: snap.version, Graph: collapse(snap.graph)}, nil
	default:
		return nil, fmt.Errorf("unknown projection kind %q", kind)
	}
}

// collapse folds every infra node into one synthetic BiSBiS. Total
// capacity and the exact SAP set are preserved; infra-to-infra links
// disappear inside the abstract node.
func collapse(g *nffg.NFFG) *nffg.NFFG {
	out := nffg.New(g.ID)
	out.Name = g.Name
	out.Version = g.Version

	var capacity nffg.Resources
	typeSet := make(map[string]struct{})
	for _, infra := range g.Infras() {
		capacity = capacity.Add(infra.Capacity)
		for _, t := range infra.SupportedTypes {
			typeSet[t] = struct{}{}
		}
	}
	big := nffg.NewInfra(SingleBiSBiSID, "", capacity)
	for t := range typeSet {
		big.SupportedTypes = append(big.SupportedTypes, t)
	}
	sort.Strings(big.SupportedTypes)

	// One port on the abstract node per SAP, named after it, so SAP
	// attachments survive the collapse with stable identity.
	saps := g.SAPs()
	for _, sap := range saps {
		big.MustAddPort(sapPortID(sap.ID))
	}
	if err := out.AddNode(big); err != nil {
		// Ids in out are fresh; this cannot collide.
		panic(err)
	}

	for _, sap := range saps {
		sapCopy := nffg.CopyNode(sap)
		if err := out.AddNode(sapCopy); err != nil {
			panic(err)
		}
		if len(sapCopy.Ports) == 0 {
			sapCopy.MustAddPort("port")
		}
		src := nffg.PortRef{Node: sapCopy.ID, Port: sapCopy.Ports[0].ID}
		dst := nffg.PortRef{Node: SingleBiSBiSID, Port: sapPortID(sap.ID)}
		fw := &nffg.Link{ID: "sbb-" + sap.ID, Src: src, Dst: dst}
		bw := &nffg.Link{ID: "sbb-" + sap.ID + "-back", Src: dst, Dst: src, Backward: true}
		if err := out.AddLink(fw); err != nil {
			panic(err)
		}
		if err := out.AddLink(bw); err != nil {
			panic(err)
		}
	}
	return out
}

func sapPortID(sapID string) string { return "to-" + sapID }
