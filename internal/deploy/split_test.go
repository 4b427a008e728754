package deploy

import (
	"testing"

	"conflux/internal/nffg"
)

// mappedGraph spans two domains joined by one boundary link, with a
// placed function and an access point on each side of interest.
func mappedGraph(t *testing.T) *nffg.NFFG {
	t.Helper()
	g := nffg.New("svc1-mapped")
	g.Version = 3

	i1 := nffg.NewInfra("i1", "d1", nffg.Resources{CPU: 4, Mem: 4, Storage: 4}, "fw")
	i1.MustAddPort("p1").AddFlowRule(&nffg.FlowRule{ID: "fr1", InPort: "p1", OutPort: "x1", HopID: "h1"})
	i1.MustAddPort("x1")
	i2 := nffg.NewInfra("i2", "d2", nffg.Resources{CPU: 4, Mem: 4, Storage: 4}, "dpi")
	i2.MustAddPort("p1")
	i2.MustAddPort("x2")
	for _, n := range []*nffg.Node{i1, i2} {
		if err := g.AddNode(n); err != nil {
			t.Fatal(err)
		}
	}

	nf1 := nffg.NewNF("nf1", "fw", nffg.Resources{CPU: 1, Mem: 1, Storage: 1})
	nf1.Host = "i1"
	nf1.MustAddPort("p1")
	nf2 := nffg.NewNF("nf2", "dpi", nffg.Resources{CPU: 1, Mem: 1, Storage: 1})
	nf2.Host = "i2"
	nf2.MustAddPort("p1")
	for _, n := range []*nffg.Node{nf1, nf2} {
		if err := g.AddNode(n); err != nil {
			t.Fatal(err)
		}
	}

	sap := nffg.NewSAP("sap1")
	sap.MustAddPort("p1")
	if err := g.AddNode(sap); err != nil {
		t.Fatal(err)
	}
	if err := g.AddLink(&nffg.Link{ID: "l-sap", Src: nffg.PortRef{Node: "sap1", Port: "p1"}, Dst: nffg.PortRef{Node: "i1", Port: "p1"}}); err != nil {
		t.Fatal(err)
	}
	if err := g.AddLink(&nffg.Link{ID: "b-link", Src: nffg.PortRef{Node: "i1", Port: "x1"}, Dst: nffg.PortRef{Node: "i2", Port: "x2"}}); err != nil {
		t.Fatal(err)
	}
	if err := g.AddHop(&nffg.SGHop{ID: "h-local", Src: nffg.PortRef{Node: "sap1", Port: "p1"}, Dst: nffg.PortRef{Node: "nf1", Port: "p1"}}); err != nil {
		t.Fatal(err)
	}
	return g
}

func TestSplitByDomain(t *testing.T) {
	parts := Split(mappedGraph(t))

	if got := Domains(parts); len(got) != 2 || got[0] != "d1" || got[1] != "d2" {
		t.Fatalf("Domains() = %v, want [d1 d2]", got)
	}

	d1 := parts["d1"]
	if d1.Node("i1") == nil || d1.Node("nf1") == nil {
		t.Error("d1 part misses its own infra or hosted function")
	}
	if d1.Node("nf2") != nil || d1.Node("i2") == nil {
		t.Error("d1 part should carry a stub of i2 but never nf2")
	}
	if d1.Node("sap1") == nil {
		t.Error("access point did not follow its attached infra into d1")
	}
	if got := d1.Node("i1").Port("p1").FlowRule("fr1"); got == nil {
		t.Error("flow rules did not travel with the owning infra")
	}
	if d1.Hop("h-local") == nil {
		t.Error("single-domain hop did not travel with its domain")
	}

	d2 := parts["d2"]
	if d2.Node("i2") == nil || d2.Node("nf2") == nil {
		t.Error("d2 part misses its own infra or hosted function")
	}
	if d2.Node("sap1") != nil {
		t.Error("access point leaked into the wrong domain")
	}
}

func TestSplitBoundaryStubs(t *testing.T) {
	parts := Split(mappedGraph(t))

	// Both sides carry the boundary link, each with a capacity-less stub
	// of the far endpoint exposing only the linked port.
	for domain, farID := range map[string]string{"d1": "i2", "d2": "i1"} {
		part := parts[domain]
		stub := part.Node(farID)
		if stub == nil {
			t.Fatalf("%s part misses the far-endpoint stub %s", domain, farID)
		}
		if stub.InfraType != nffg.InfraTypeBoundaryStub {
			t.Errorf("stub %s in %s has InfraType %q, want %q", farID, domain, stub.InfraType, nffg.InfraTypeBoundaryStub)
		}
		if stub.Capacity.CPU != 0 {
			t.Errorf("stub %s in %s carries capacity", farID, domain)
		}
		if len(stub.Ports) != 1 {
			t.Errorf("stub %s in %s has %d ports, want 1", farID, domain, len(stub.Ports))
		}
		if part.Link("b-link") == nil {
			t.Errorf("%s part misses the boundary link", domain)
		}
	}
}

func TestSplitSharesNoMemory(t *testing.T) {
	m := mappedGraph(t)
	parts := Split(m)

	parts["d1"].Node("i1").Port("p1").FlowRules[0].OutPort = "tampered"
	if m.Node("i1").Port("p1").FlowRules[0].OutPort != "x1" {
		t.Error("mutating a part changed the mapped graph")
	}
}

func TestSplitIgnoresUnownedElements(t *testing.T) {
	g := nffg.New("only-stub")
	stub := nffg.NewInfra("ghost", "", nffg.Resources{})
	if err := g.AddNode(stub); err != nil {
		t.Fatal(err)
	}
	if parts := Split(g); len(parts) != 0 {
		t.Errorf("Split() of a domain-less graph = %v, want empty", parts)
	}
}
