package nffg

import "sort"

// Structural equality: two elements are equal when every attribute matches,
// regardless of which graph instance owns them. Diff and merge conflict
// detection are both built on these.

// EqualNode reports attribute-wise equality of two nodes. Port order is
// not significant; flow-rule order within a port is.
func EqualNode(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ID != b.ID || a.Type != b.Type || a.Name != b.Name ||
		a.FuncType != b.FuncType || a.Demand != b.Demand || a.Host != b.Host ||
		a.Domain != b.Domain || a.InfraType != b.InfraType || a.Capacity != b.Capacity {
		return false
	}
	if !equalStringSets(a.SupportedTypes, b.SupportedTypes) {
		return false
	}
	if len(a.Ports) != len(b.Ports) {
		return false
	}
	for _, pa := range a.Ports {
		pb := b.Port(pa.ID)
		if pb == nil || !equalPort(pa, pb) {
			return false
		}
	}
	return true
}

func equalPort(a, b *Port) bool {
	if a.ID != b.ID || a.Binding != b.Binding {
		return false
	}
	if len(a.Properties) != len(b.Properties) {
		return false
	}
	for k, v := range a.Properties {
		if b.Properties[k] != v {
			return false
		}
	}
	if len(a.FlowRules) != len(b.FlowRules) {
		return false
	}
	for i, fr := range a.FlowRules {
		if *fr != *b.FlowRules[i] {
			return false
		}
	}
	return true
}

// EqualLink reports attribute-wise equality of two links.
func EqualLink(a, b *Link) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// EqualHop reports attribute-wise equality of two SG hops.
func EqualHop(a, b *SGHop) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// EqualRequirement reports attribute-wise equality of two requirements,
// including the order of the governed hop chain.
func EqualRequirement(a, b *Requirement) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ID != b.ID || a.Src != b.Src || a.Dst != b.Dst ||
		a.MaxDelay != b.MaxDelay || a.MinBandwidth != b.MinBandwidth {
		return false
	}
	if len(a.HopIDs) != len(b.HopIDs) {
		return false
	}
	for i := range a.HopIDs {
		if a.HopIDs[i] != b.HopIDs[i] {
			return false
		}
	}
	return true
}

// Equal reports whether two graphs contain structurally equal element sets.
// Graph id, name and version are identity metadata and not compared.
func Equal(a, b *NFFG) bool {
	if len(a.nodes) != len(b.nodes) ||
		len(a.links) != len(b.links) ||
		len(a.hops) != len(b.hops) ||
		len(a.requirements) != len(b.requirements) {
		return false
	}
	for id, na := range a.nodes {
		if !EqualNode(na, b.nodes[id]) {
			return false
		}
	}
	for _, la := range a.links {
		if !EqualLink(la, b.Link(la.ID)) {
			return false
		}
	}
	for _, ha := range a.hops {
		if !EqualHop(ha, b.Hop(ha.ID)) {
			return false
		}
	}
	for _, ra := range a.requirements {
		var rb *Requirement
		for _, r := range b.requirements {
			if r.ID == ra.ID {
				rb = r
				break
			}
		}
		if !EqualRequirement(ra, rb) {
			return false
		}
	}
	return true
}

func equalStringSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
