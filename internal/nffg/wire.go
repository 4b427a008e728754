package nffg

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// graphWire is the serialized shape of a graph. Nodes are emitted sorted
// by id so serialize-parse-serialize is byte-identical for a valid graph.
type graphWire struct {
	ID           string         `json:"id" yaml:"id"`
	Name         string         `json:"name,omitempty" yaml:"name,omitempty"`
	Version      uint64         `json:"version,omitempty" yaml:"version,omitempty"`
	Nodes        []*Node        `json:"nodes" yaml:"nodes"`
	Links        []*Link        `json:"links,omitempty" yaml:"links,omitempty"`
	Hops         []*SGHop       `json:"sg_hops,omitempty" yaml:"sg_hops,omitempty"`
	Requirements []*Requirement `json:"requirements,omitempty" yaml:"requirements,omitempty"`
}

func (g *NFFG) wire() *graphWire {
	return &graphWire{
		ID:           g.ID,
		Name:         g.Name,
		Version:      g.Version,
		Nodes:        g.Nodes(),
		Links:        g.links,
		Hops:         g.hops,
		Requirements: g.requirements,
	}
}

// fromWire rebuilds a graph through the validating constructors so a
// malformed document surfaces as a ParseError, never as a half-built graph.
func fromWire(w *graphWire) (*NFFG, error) {
	g := New(w.ID)
	g.Name = w.Name
	g.Version = w.Version
	for _, n := range w.Nodes {
		if n == nil {
			return nil, &ParseError{Reason: "null node entry"}
		}
		if err := g.AddNode(n); err != nil {
			return nil, err
		}
	}
	for _, l := range w.Links {
		if err := g.AddLink(l); err != nil {
			return nil, err
		}
	}
	for _, h := range w.Hops {
		if err := g.AddHop(h); err != nil {
			return nil, err
		}
	}
	for _, r := range w.Requirements {
		if err := g.AddRequirement(r); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// MarshalJSON implements json.Marshaler.
func (g *NFFG) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.wire())
}

// UnmarshalJSON implements json.Unmarshaler. Structural and referential
// violations are reported as *ParseError.
func (g *NFFG) UnmarshalJSON(data []byte) error {
	var w graphWire
	if err := json.Unmarshal(data, &w); err != nil {
		return &ParseError{Reason: err.Error()}
	}
	parsed, err := fromWire(&w)
	if err != nil {
		return err
	}
	*g = *parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (g *NFFG) MarshalYAML() (interface{}, error) {
	return g.wire(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (g *NFFG) UnmarshalYAML(value *yaml.Node) error {
	var w graphWire
	if err := value.Decode(&w); err != nil {
		return &ParseError{Reason: err.Error()}
	}
	parsed, err := fromWire(&w)
	if err != nil {
		return err
	}
	*g = *parsed
	return nil
}
