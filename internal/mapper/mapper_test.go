package mapper

import (
	"errors"
	"testing"

	"conflux/internal/nffg"
)

// singleInfraView is one BiSBiS with two attached access points.
func singleInfraView(t *testing.T) *nffg.NFFG {
	t.Helper()
	g := nffg.New("view")

	infra := nffg.NewInfra("bisbis1", "d1", nffg.Resources{CPU: 10, Mem: 10, Storage: 10, Delay: 0.2}, "fw", "dpi")
	infra.MustAddPort("to-sap1")
	infra.MustAddPort("to-sap2")
	if err := g.AddNode(infra); err != nil {
		t.Fatal(err)
	}
	for _, sapID := range []string{"sap1", "sap2"} {
		sap := nffg.NewSAP(sapID)
		sap.MustAddPort("p1")
		if err := g.AddNode(sap); err != nil {
			t.Fatal(err)
		}
		if err := g.AddLink(&nffg.Link{
			ID:  "l-" + sapID,
			Src: nffg.PortRef{Node: sapID, Port: "p1"},
			Dst: nffg.PortRef{Node: "bisbis1", Port: "to-" + sapID},
		}); err != nil {
			t.Fatal(err)
		}
	}
	return g
}

// chainRequest is sap1 -> fn1(fw) -> fn2(dpi) -> sap2 with an end-to-end
// delay bound across all three hops.
func chainRequest(t *testing.T, maxDelay float64) *nffg.NFFG {
	t.Helper()
	g := nffg.New("svc1")

	for _, sapID := range []string{"sap1", "sap2"} {
		sap := nffg.NewSAP(sapID)
		sap.MustAddPort("p1")
		if err := g.AddNode(sap); err != nil {
			t.Fatal(err)
		}
	}
	fn1 := nffg.NewNF("fn1", "fw", nffg.Resources{CPU: 3, Mem: 3, Storage: 3})
	fn1.MustAddPort("in")
	fn1.MustAddPort("out")
	fn2 := nffg.NewNF("fn2", "dpi", nffg.Resources{CPU: 2, Mem: 2, Storage: 2})
	fn2.MustAddPort("in")
	fn2.MustAddPort("out")
	for _, nf := range []*nffg.Node{fn1, fn2} {
		if err := g.AddNode(nf); err != nil {
			t.Fatal(err)
		}
	}

	hops := []*nffg.SGHop{
		{ID: "h1", Src: nffg.PortRef{Node: "sap1", Port: "p1"}, Dst: nffg.PortRef{Node: "fn1", Port: "in"}},
		{ID: "h2", Src: nffg.PortRef{Node: "fn1", Port: "out"}, Dst: nffg.PortRef{Node: "fn2", Port: "in"}},
		{ID: "h3", Src: nffg.PortRef{Node: "fn2", Port: "out"}, Dst: nffg.PortRef{Node: "sap2", Port: "p1"}},
	}
	for _, h := range hops {
		if err := g.AddHop(h); err != nil {
			t.Fatal(err)
		}
	}
	if maxDelay > 0 {
		if err := g.AddRequirement(&nffg.Requirement{
			ID:       "r1",
			Src:      nffg.PortRef{Node: "sap1", Port: "p1"},
			Dst:      nffg.PortRef{Node: "sap2", Port: "p1"},
			MaxDelay: maxDelay,
			HopIDs:   []string{"h1", "h2", "h3"},
		}); err != nil {
			t.Fatal(err)
		}
	}
	return g
}

func countFlowRules(g *nffg.NFFG) int {
	n := 0
	for _, infra := range g.Infras() {
		n += len(infra.FlowRules())
	}
	return n
}

func TestMapChainOnSingleInfra(t *testing.T) {
	e := New(Config{TrialAndError: true})
	req := chainRequest(t, 30)
	view := singleInfraView(t)
	view.Version = 7

	result, err := e.Map(req, view)
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}

	m := result.Manifest
	if m.RequestID != "svc1" || m.ViewVersion != 7 {
		t.Errorf("manifest header = %q v%d, want svc1 v7", m.RequestID, m.ViewVersion)
	}
	for _, fn := range []string{"fn1", "fn2"} {
		if m.Placements[fn] != "bisbis1" {
			t.Errorf("Placements[%s] = %q, want bisbis1", fn, m.Placements[fn])
		}
		placed := result.Mapped.Node(fn)
		if placed == nil || placed.Host != "bisbis1" {
			t.Errorf("mapped graph does not carry %s hosted on bisbis1", fn)
		}
	}

	// Every hop stays inside one node, so each needs exactly one rule.
	if got := countFlowRules(result.Mapped); got != 3 {
		t.Errorf("installed flow rules = %d, want 3", got)
	}
	for _, hop := range []string{"h1", "h2", "h3"} {
		if len(m.HopRules[hop]) != 1 {
			t.Errorf("HopRules[%s] = %v, want one rule", hop, m.HopRules[hop])
		}
	}

	// The input view stays untouched.
	if countFlowRules(view) != 0 || view.Node("fn1") != nil {
		t.Error("Map() mutated the input view")
	}
}

func TestMapDeterministic(t *testing.T) {
	e := New(Config{TrialAndError: true})

	first, err := e.Map(chainRequest(t, 30), singleInfraView(t))
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.Map(chainRequest(t, 30), singleInfraView(t))
	if err != nil {
		t.Fatal(err)
	}

	if !nffg.Equal(first.Mapped, second.Mapped) {
		t.Error("identical inputs produced different mapped graphs")
	}
	for fn, infra := range first.Manifest.Placements {
		if second.Manifest.Placements[fn] != infra {
			t.Errorf("placement of %s changed between runs: %s vs %s", fn, infra, second.Manifest.Placements[fn])
		}
	}
}

func TestMapCapacityExhausted(t *testing.T) {
	e := New(Config{TrialAndError: false})

	view := nffg.New("view")
	infra := nffg.NewInfra("tiny", "d1", nffg.Resources{CPU: 1, Mem: 1, Storage: 1}, "fw")
	if err := view.AddNode(infra); err != nil {
		t.Fatal(err)
	}

	req := nffg.New("svc")
	for _, id := range []string{"fn1", "fn2"} {
		if err := req.AddNode(nffg.NewNF(id, "fw", nffg.Resources{CPU: 1, Mem: 1, Storage: 1})); err != nil {
			t.Fatal(err)
		}
	}

	_, err := e.Map(req, view)
	var merr *MappingError
	if !errors.As(err, &merr) {
		t.Fatalf("Map() error = %v, want *MappingError", err)
	}
	// fn1 fills the node; the error must name the function that did not fit.
	if merr.NodeID != "fn2" {
		t.Errorf("MappingError.NodeID = %q, want fn2", merr.NodeID)
	}
}

func TestMapDelayBoundViolated(t *testing.T) {
	e := New(Config{TrialAndError: false})

	// Three same-node hops at 0.2 delay each sum to 0.6.
	_, err := e.Map(chainRequest(t, 0.5), singleInfraView(t))
	var merr *MappingError
	if !errors.As(err, &merr) {
		t.Fatalf("Map() error = %v, want *MappingError", err)
	}
	if merr.RequirementID != "r1" {
		t.Errorf("MappingError.RequirementID = %q, want r1", merr.RequirementID)
	}
}

func TestMapBacktracking(t *testing.T) {
	view := nffg.New("view")
	both := nffg.NewInfra("i1", "d1", nffg.Resources{CPU: 4, Mem: 4, Storage: 4}, "fw", "dpi")
	fwOnly := nffg.NewInfra("i2", "d1", nffg.Resources{CPU: 4, Mem: 4, Storage: 4}, "fw")
	for _, n := range []*nffg.Node{both, fwOnly} {
		if err := view.AddNode(n); err != nil {
			t.Fatal(err)
		}
	}

	req := nffg.New("svc")
	fn1 := nffg.NewNF("fn1", "fw", nffg.Resources{CPU: 3, Mem: 3, Storage: 3})
	fn2 := nffg.NewNF("fn2", "dpi", nffg.Resources{CPU: 2, Mem: 2, Storage: 2})
	for _, nf := range []*nffg.Node{fn1, fn2} {
		if err := req.AddNode(nf); err != nil {
			t.Fatal(err)
		}
	}

	// Greedy order puts fn1 on i1 first, which starves fn2: only i1
	// supports dpi. The engine must unwind fn1 onto i2.
	t.Run("disabled search fails", func(t *testing.T) {
		_, err := New(Config{TrialAndError: false}).Map(req, view)
		if err == nil {
			t.Fatal("Map() without backtracking succeeded, want error")
		}
	})

	t.Run("bounded search recovers", func(t *testing.T) {
		result, err := New(Config{TrialAndError: true, MaxBacktracks: 5}).Map(req, view)
		if err != nil {
			t.Fatalf("Map() error = %v", err)
		}
		if got := result.Manifest.Placements["fn1"]; got != "i2" {
			t.Errorf("Placements[fn1] = %q, want i2", got)
		}
		if got := result.Manifest.Placements["fn2"]; got != "i1" {
			t.Errorf("Placements[fn2] = %q, want i1", got)
		}
	})
}
