package view

import (
	"errors"
	"testing"

	"conflux/internal/nffg"
)

func domainReport(t *testing.T, domain string, infraIDs ...string) *nffg.NFFG {
	t.Helper()
	g := nffg.New(domain)
	for _, id := range infraIDs {
		infra := nffg.NewInfra(id, "", nffg.Resources{CPU: 4, Mem: 8, Storage: 10}, "fw")
		infra.MustAddPort("p1")
		if err := g.AddNode(infra); err != nil {
			t.Fatal(err)
		}
	}
	return g
}

func TestApplyDomainReportReplace(t *testing.T) {
	a := New()

	if err := a.ApplyDomainReport("d1", domainReport(t, "d1", "i1", "i2"), DisciplineReplace); err != nil {
		t.Fatalf("ApplyDomainReport() error = %v", err)
	}
	if a.Version() != 1 {
		t.Errorf("Version() = %d, want 1", a.Version())
	}

	// A replace report without i2 must drop it from the view.
	if err := a.ApplyDomainReport("d1", domainReport(t, "d1", "i1"), DisciplineReplace); err != nil {
		t.Fatal(err)
	}
	p, err := a.Projection(Global)
	if err != nil {
		t.Fatal(err)
	}
	if p.Graph.Node("i2") != nil {
		t.Error("replace kept node absent from the new report")
	}
	if p.Graph.Node("i1") == nil {
		t.Error("replace lost node present in the new report")
	}
	if p.Version != 2 {
		t.Errorf("projection version = %d, want 2", p.Version)
	}
}

func TestApplyDomainReportRemergeNoDelta(t *testing.T) {
	a := New()
	if err := a.ApplyDomainReport("d1", domainReport(t, "d1", "i1"), DisciplineRemerge); err != nil {
		t.Fatal(err)
	}
	v := a.Version()

	// Same report again carries no delta; the version must not move.
	if err := a.ApplyDomainReport("d1", domainReport(t, "d1", "i1"), DisciplineRemerge); err != nil {
		t.Fatal(err)
	}
	if a.Version() != v {
		t.Errorf("Version() = %d after empty delta, want %d", a.Version(), v)
	}
}

func TestUniqueIDNamespacing(t *testing.T) {
	a := New(WithUniqueIDs())

	// Both domains report the same node id; namespacing keeps them apart.
	if err := a.ApplyDomainReport("d1", domainReport(t, "d1", "sw1"), DisciplineReplace); err != nil {
		t.Fatal(err)
	}
	if err := a.ApplyDomainReport("d2", domainReport(t, "d2", "sw1"), DisciplineReplace); err != nil {
		t.Fatal(err)
	}

	p, err := a.Projection(Global)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"d1:sw1", "d2:sw1"} {
		if p.Graph.Node(id) == nil {
			t.Errorf("node %q missing from namespaced view", id)
		}
	}
	if p.Graph.Node("sw1") != nil {
		t.Error("un-namespaced node id leaked into the view")
	}
}

func TestApplyDomainReportRejectsInvalid(t *testing.T) {
	a := New()
	if err := a.ApplyDomainReport("d1", domainReport(t, "d1", "i1"), DisciplineReplace); err != nil {
		t.Fatal(err)
	}
	v := a.Version()

	tests := []struct {
		name   string
		domain string
		report *nffg.NFFG
		disc   UpdateDiscipline
	}{
		{"empty domain", "", domainReport(t, "x", "i9"), DisciplineReplace},
		{"nil report", "d2", nil, DisciplineReplace},
		{"unknown discipline", "d2", domainReport(t, "d2", "i9"), UpdateDiscipline("sideways")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.ApplyDomainReport(tt.domain, tt.report, tt.disc)
			var derr *DomainReportError
			if !errors.As(err, &derr) {
				t.Fatalf("error = %v, want *DomainReportError", err)
			}
		})
	}

	if a.Version() != v {
		t.Errorf("rejected reports moved version to %d, want %d", a.Version(), v)
	}
}

func TestRemoveDomain(t *testing.T) {
	a := New()
	if err := a.ApplyDomainReport("d1", domainReport(t, "d1", "i1"), DisciplineReplace); err != nil {
		t.Fatal(err)
	}
	if err := a.ApplyDomainReport("d2", domainReport(t, "d2", "i2"), DisciplineReplace); err != nil {
		t.Fatal(err)
	}

	if err := a.RemoveDomain("d1"); err != nil {
		t.Fatalf("RemoveDomain() error = %v", err)
	}
	p, _ := a.Projection(Global)
	if p.Graph.Node("i1") != nil {
		t.Error("removed domain's node still present")
	}
	if p.Graph.Node("i2") == nil {
		t.Error("surviving domain's node lost")
	}

	// Removing an unknown domain is a no-op at the same version.
	v := a.Version()
	if err := a.RemoveDomain("ghost"); err != nil {
		t.Fatal(err)
	}
	if a.Version() != v {
		t.Errorf("no-op removal bumped version to %d", a.Version())
	}
}

func TestChangeHandler(t *testing.T) {
	var events []DomainChangedEvent
	a := New(WithChangeHandler(func(ev DomainChangedEvent) { events = append(events, ev) }))

	if err := a.ApplyDomainReport("d1", domainReport(t, "d1", "i1"), DisciplineReplace); err != nil {
		t.Fatal(err)
	}
	if err := a.RemoveDomain("d1"); err != nil {
		t.Fatal(err)
	}

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Cause != CauseUpdated || events[0].Version != 1 {
		t.Errorf("first event = %+v, want updated at version 1", events[0])
	}
	if events[1].Cause != CauseRemoved || events[1].Version != 2 {
		t.Errorf("second event = %+v, want removed at version 2", events[1])
	}
}
