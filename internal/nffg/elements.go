package nffg

import "fmt"

// InfraTypeBoundaryStub marks a capacity-less placeholder for the far
// endpoint of an inter-domain link inside a per-domain change-set.
const InfraTypeBoundaryStub = "BOUNDARY-STUB"

// NodeType discriminates the three node populations sharing one schema.
type NodeType string

const (
	// NodeTypeNF - a virtual network function instance to be placed
	NodeTypeNF NodeType = "NF"
	// NodeTypeSAP - an external service access point (traffic source/sink)
	NodeTypeSAP NodeType = "SAP"
	// NodeTypeInfra - a substrate element offering capacity (BiSBiS)
	NodeTypeInfra NodeType = "INFRA"
)

// Resources is the quantity vector shared by NF demands and infra capacities.
// Bandwidth and Delay are only meaningful on infrastructure nodes.
type Resources struct {
	CPU       float64 `json:"cpu" yaml:"cpu"`
	Mem       float64 `json:"mem" yaml:"mem"`
	Storage   float64 `json:"storage" yaml:"storage"`
	Bandwidth float64 `json:"bandwidth,omitempty" yaml:"bandwidth,omitempty"`
	Delay     float64 `json:"delay,omitempty" yaml:"delay,omitempty"`
}

// Add returns the component-wise sum of two resource vectors.
func (r Resources) Add(o Resources) Resources {
	return Resources{
		CPU:       r.CPU + o.CPU,
		Mem:       r.Mem + o.Mem,
		Storage:   r.Storage + o.Storage,
		Bandwidth: r.Bandwidth + o.Bandwidth,
		Delay:     r.Delay + o.Delay,
	}
}

// Sub returns r minus o, component-wise.
func (r Resources) Sub(o Resources) Resources {
	return Resources{
		CPU:       r.CPU - o.CPU,
		Mem:       r.Mem - o.Mem,
		Storage:   r.Storage - o.Storage,
		Bandwidth: r.Bandwidth - o.Bandwidth,
		Delay:     r.Delay - o.Delay,
	}
}

// Fits reports whether demand d fits into the remaining capacity r.
// Bandwidth and Delay are path properties and not compared here.
func (r Resources) Fits(d Resources) bool {
	return r.CPU >= d.CPU && r.Mem >= d.Mem && r.Storage >= d.Storage
}

// NonNegative reports whether every component is >= 0.
func (r Resources) NonNegative() bool {
	return r.CPU >= 0 && r.Mem >= 0 && r.Storage >= 0 && r.Bandwidth >= 0 && r.Delay >= 0
}

// FlowRule is an installed forwarding instruction on an infrastructure port.
// Match and action reference port ids on the owning node.
type FlowRule struct {
	ID        string  `json:"id" yaml:"id"`
	InPort    string  `json:"in_port" yaml:"in_port"`
	MatchTag  string  `json:"match_tag,omitempty" yaml:"match_tag,omitempty"`
	OutPort   string  `json:"out_port" yaml:"out_port"`
	PushTag   string  `json:"push_tag,omitempty" yaml:"push_tag,omitempty"`
	PopTag    bool    `json:"pop_tag,omitempty" yaml:"pop_tag,omitempty"`
	Bandwidth float64 `json:"bandwidth,omitempty" yaml:"bandwidth,omitempty"`
	HopID     string  `json:"hop_id,omitempty" yaml:"hop_id,omitempty"`
}

// Port is an attachment point on a node. Ids are scoped to the owning node.
// Binding ties a SAP port to a physical interface; FlowRules are only
// populated on infrastructure ports.
type Port struct {
	ID         string            `json:"id" yaml:"id"`
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
	Binding    string            `json:"binding,omitempty" yaml:"binding,omitempty"`
	FlowRules  []*FlowRule       `json:"flow_rules,omitempty" yaml:"flow_rules,omitempty"`
}

// SetProperty sets a property value on the port.
func (p *Port) SetProperty(key, value string) {
	if p.Properties == nil {
		p.Properties = make(map[string]string)
	}
	p.Properties[key] = value
}

// FlowRule returns the flow rule with the given id, or nil.
func (p *Port) FlowRule(id string) *FlowRule {
	for _, fr := range p.FlowRules {
		if fr.ID == id {
			return fr
		}
	}
	return nil
}

// AddFlowRule appends a flow rule to the port.
func (p *Port) AddFlowRule(fr *FlowRule) {
	p.FlowRules = append(p.FlowRules, fr)
}

// DelFlowRule removes the flow rule with the given id. Returns true if found.
func (p *Port) DelFlowRule(id string) bool {
	for i, fr := range p.FlowRules {
		if fr.ID == id {
			p.FlowRules = append(p.FlowRules[:i], p.FlowRules[i+1:]...)
			return true
		}
	}
	return false
}

// Node is a vertex of the graph. The Type field selects which of the
// population-specific fields are meaningful:
//   - NF: FuncType, Demand, Host (set once placed by the mapper)
//   - SAP: port Binding only
//   - Infra: Domain, InfraType, Capacity, SupportedTypes
type Node struct {
	ID    string   `json:"id" yaml:"id"`
	Type  NodeType `json:"type" yaml:"type"`
	Name  string   `json:"name,omitempty" yaml:"name,omitempty"`
	Ports []*Port  `json:"ports,omitempty" yaml:"ports,omitempty"`

	// NF fields
	FuncType string    `json:"func_type,omitempty" yaml:"func_type,omitempty"`
	Demand   Resources `json:"demand,omitempty" yaml:"demand,omitempty"`
	Host     string    `json:"host,omitempty" yaml:"host,omitempty"`

	// Infrastructure fields. Domain is a weak reference to the owning
	// domain collaborator, never an ownership link.
	Domain         string    `json:"domain,omitempty" yaml:"domain,omitempty"`
	InfraType      string    `json:"infra_type,omitempty" yaml:"infra_type,omitempty"`
	Capacity       Resources `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	SupportedTypes []string  `json:"supported_types,omitempty" yaml:"supported_types,omitempty"`
}

// NewNF creates a function node with the given demand.
func NewNF(id, funcType string, demand Resources) *Node {
	return &Node{ID: id, Type: NodeTypeNF, FuncType: funcType, Demand: demand}
}

// NewSAP creates an access-point node.
func NewSAP(id string) *Node {
	return &Node{ID: id, Type: NodeTypeSAP}
}

// NewInfra creates an infrastructure (BiSBiS) node owned by domain.
func NewInfra(id, domain string, capacity Resources, supported ...string) *Node {
	return &Node{
		ID:             id,
		Type:           NodeTypeInfra,
		Domain:         domain,
		Capacity:       capacity,
		SupportedTypes: supported,
	}
}

// Port returns the port with the given id, or nil.
func (n *Node) Port(id string) *Port {
	for _, p := range n.Ports {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// AddPort creates and attaches a new port. Returns an error if the id is
// already taken on this node.
func (n *Node) AddPort(id string) (*Port, error) {
	if n.Port(id) != nil {
		return nil, fmt.Errorf("port %q already exists on node %q", id, n.ID)
	}
	p := &Port{ID: id}
	n.Ports = append(n.Ports, p)
	return p, nil
}

// MustAddPort is AddPort for construction paths where the id is known fresh.
func (n *Node) MustAddPort(id string) *Port {
	p, err := n.AddPort(id)
	if err != nil {
		panic(err)
	}
	return p
}

// DelPort removes the port with the given id. Returns true if found.
func (n *Node) DelPort(id string) bool {
	for i, p := range n.Ports {
		if p.ID == id {
			n.Ports = append(n.Ports[:i], n.Ports[i+1:]...)
			return true
		}
	}
	return false
}

// Supports reports whether an infrastructure node declares support for the
// given functional type.
func (n *Node) Supports(funcType string) bool {
	for _, t := range n.SupportedTypes {
		if t == funcType {
			return true
		}
	}
	return false
}

// FlowRules collects all flow rules installed on the node's ports.
func (n *Node) FlowRules() []*FlowRule {
	var rules []*FlowRule
	for _, p := range n.Ports {
		rules = append(rules, p.FlowRules...)
	}
	return rules
}

// PortRef addresses a port on a node; the directed edge endpoints below are
// pairs of these.
type PortRef struct {
	Node string `json:"node" yaml:"node"`
	Port string `json:"port" yaml:"port"`
}

func (r PortRef) String() string {
	return r.Node + "." + r.Port
}

// Link is a directed substrate edge between two ports. Bidirectional pairs
// are modelled as a forward link plus a Backward mirror carrying the same
// endpoint identity reversed.
type Link struct {
	ID        string  `json:"id" yaml:"id"`
	Src       PortRef `json:"src" yaml:"src"`
	Dst       PortRef `json:"dst" yaml:"dst"`
	Delay     float64 `json:"delay,omitempty" yaml:"delay,omitempty"`
	Bandwidth float64 `json:"bandwidth,omitempty" yaml:"bandwidth,omitempty"`
	Backward  bool    `json:"backward,omitempty" yaml:"backward,omitempty"`
}

// SGHop is a service-graph next hop: traffic flows from Src to Dst. Hops
// between placed endpoints are realized by the mapper as substrate paths.
type SGHop struct {
	ID        string  `json:"id" yaml:"id"`
	Src       PortRef `json:"src" yaml:"src"`
	Dst       PortRef `json:"dst" yaml:"dst"`
	Bandwidth float64 `json:"bandwidth,omitempty" yaml:"bandwidth,omitempty"`
	FlowClass string  `json:"flowclass,omitempty" yaml:"flowclass,omitempty"`
	Position  int     `json:"position,omitempty" yaml:"position,omitempty"`
}

// Requirement is an end-to-end constraint over an ordered chain of SG hops.
// Zero-valued bounds are treated as absent.
type Requirement struct {
	ID           string   `json:"id" yaml:"id"`
	Src          PortRef  `json:"src" yaml:"src"`
	Dst          PortRef  `json:"dst" yaml:"dst"`
	MaxDelay     float64  `json:"max_delay,omitempty" yaml:"max_delay,omitempty"`
	MinBandwidth float64  `json:"min_bandwidth,omitempty" yaml:"min_bandwidth,omitempty"`
	HopIDs       []string `json:"hop_ids" yaml:"hop_ids"`
}
