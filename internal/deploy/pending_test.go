package deploy

import (
	"testing"

	"conflux/internal/adapter"
)

func TestPendingTableFirstAnswerWins(t *testing.T) {
	p := newPendingTable()
	ch := p.register("c1")

	p.Resolve("c1", adapter.StatusSuccess)
	p.Resolve("c1", adapter.StatusFailure) // duplicate, dropped

	if got := <-ch; got != adapter.StatusSuccess {
		t.Errorf("first answer = %q, want success", got)
	}
	select {
	case extra := <-ch:
		t.Errorf("duplicate answer %q delivered", extra)
	default:
	}
}

func TestPendingTableUnknownID(t *testing.T) {
	p := newPendingTable()
	// Must not panic or block.
	p.Resolve("never-registered", adapter.StatusSuccess)
}

func TestPendingTableDrop(t *testing.T) {
	p := newPendingTable()
	ch := p.register("c1")
	p.drop("c1")

	p.Resolve("c1", adapter.StatusSuccess)
	select {
	case got := <-ch:
		t.Errorf("dropped id still resolved with %q", got)
	default:
	}
}
