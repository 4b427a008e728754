package codec

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"conflux/internal/nffg"
)

func TestForFormat(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"json", "json"},
		{"yaml", "yaml"},
		{"yml", "yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			c := ForFormat(tt.format)
			if c == nil {
				t.Fatalf("ForFormat(%q) = nil", tt.format)
			}
			if c.Format() != tt.want {
				t.Errorf("Format() = %q, want %q", c.Format(), tt.want)
			}
		})
	}

	if c := ForFormat("xml"); c != nil {
		t.Errorf("ForFormat(xml) = %v, want nil", c)
	}
}

func buildGraph(t *testing.T) *nffg.NFFG {
	t.Helper()
	g := nffg.New("svc")
	sap := nffg.NewSAP("sap1")
	sap.MustAddPort("p1")
	infra := nffg.NewInfra("bisbis1", "mininet", nffg.Resources{CPU: 4, Mem: 8, Storage: 10}, "fw")
	infra.MustAddPort("p1")
	for _, n := range []*nffg.Node{sap, infra} {
		if err := g.AddNode(n); err != nil {
			t.Fatal(err)
		}
	}
	if err := g.AddLink(&nffg.Link{ID: "l1", Src: nffg.PortRef{Node: "sap1", Port: "p1"}, Dst: nffg.PortRef{Node: "bisbis1", Port: "p1"}}); err != nil {
		t.Fatal(err)
	}
	return g
}

func TestExportParseStable(t *testing.T) {
	for _, format := range []string{"json", "yaml"} {
		t.Run(format, func(t *testing.T) {
			c := ForFormat(format)
			g := buildGraph(t)

			var first bytes.Buffer
			if err := c.Export(g, &first); err != nil {
				t.Fatalf("Export() error = %v", err)
			}

			parsed, err := c.Parse(bytes.NewReader(first.Bytes()))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if !nffg.Equal(g, parsed) {
				t.Fatal("parsed graph differs from exported graph")
			}

			var second bytes.Buffer
			if err := c.Export(parsed, &second); err != nil {
				t.Fatal(err)
			}
			if first.String() != second.String() {
				t.Errorf("export not stable across a parse round trip:\n%s\n%s", first.String(), second.String())
			}
		})
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name   string
		format string
		input  string
	}{
		{"truncated json", "json", `{"id":"g","nodes":[`},
		{"dangling link json", "json", `{"id":"g","nodes":[],"links":[{"id":"l","src":{"node":"x","port":"p"},"dst":{"node":"y","port":"p"}}]}`},
		{"bad yaml", "yaml", "id: [unclosed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ForFormat(tt.format).Parse(strings.NewReader(tt.input))
			var perr *nffg.ParseError
			if !errors.As(err, &perr) {
				t.Errorf("Parse() error = %v, want *nffg.ParseError", err)
			}
		})
	}
}
