package adapter

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	nmap "github.com/Ullaakut/nmap/v3"

	"conflux/internal/nffg"
)

// DiscoveryCollaborator builds a local domain's topology by probing the
// network with nmap: every responsive host becomes one infrastructure
// node with a conventional capacity, chained onto a domain border switch.
// Deploys are acknowledged locally, like a static domain - discovered
// substrate is observable, not configurable, through this transport.
type DiscoveryCollaborator struct {
	name     string
	targets  []string
	ports    string
	capacity nffg.Resources
	types    []string

	mu       sync.Mutex
	statuses map[string]Status
}

// DiscoveryOption configures a DiscoveryCollaborator.
type DiscoveryOption func(*DiscoveryCollaborator)

// WithPortRange overrides the probed port range.
func WithPortRange(ports string) DiscoveryOption {
	return func(d *DiscoveryCollaborator) { d.ports = ports }
}

// WithHostCapacity sets the capacity advertised per discovered host.
func WithHostCapacity(capacity nffg.Resources) DiscoveryOption {
	return func(d *DiscoveryCollaborator) { d.capacity = capacity }
}

// WithSupportedTypes sets the functional types advertised per host.
func WithSupportedTypes(types ...string) DiscoveryOption {
	return func(d *DiscoveryCollaborator) { d.types = types }
}

// NewDiscoveryCollaborator creates an nmap-backed local domain. targets
// are CIDR ranges or individual addresses.
func NewDiscoveryCollaborator(name string, targets []string, opts ...DiscoveryOption) *DiscoveryCollaborator {
	d := &DiscoveryCollaborator{
		name:     name,
		targets:  targets,
		ports:    "22,80,443,830,6633,6653,8080",
		capacity: nffg.Resources{CPU: 4, Mem: 8, Storage: 32, Bandwidth: 1000},
		statuses: make(map[string]Status),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the domain name.
func (d *DiscoveryCollaborator) Name() string { return d.name }

// Topology scans the configured targets and assembles the domain graph.
func (d *DiscoveryCollaborator) Topology(ctx context.Context) (*nffg.NFFG, error) {
	if len(d.targets) == 0 {
		return nil, fmt.Errorf("discovery domain %s has no targets", d.name)
	}

	scanner, err := nmap.NewScanner(
		ctx,
		nmap.WithTargets(d.targets...),
		nmap.WithPorts(d.ports),
	)
	if err != nil {
		return nil, fmt.Errorf("create scanner: %w", err)
	}

	log.Printf("Discovery domain %s: scanning %v", d.name, d.targets)
	result, warnings, err := scanner.Run()
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	if warnings != nil && len(*warnings) > 0 {
		log.Printf("Discovery domain %s: warnings: %v", d.name, *warnings)
	}

	return d.assemble(result)
}

// assemble turns scan results into the domain graph: a border node owning
// the uplink SAP, one infra node per live host, bidirectional links from
// the border to every host.
func (d *DiscoveryCollaborator) assemble(result *nmap.Run) (*nffg.NFFG, error) {
	if result == nil {
		return nil, fmt.Errorf("nil scan result")
	}

	g := nffg.New(d.name)
	border := nffg.NewInfra("border", d.name, nffg.Resources{Bandwidth: d.capacity.Bandwidth})
	border.InfraType = "SDN-SWITCH"
	border.MustAddPort("uplink")
	if err := g.AddNode(border); err != nil {
		return nil, err
	}

	sap := nffg.NewSAP("sap-" + d.name)
	sap.MustAddPort("port")
	if err := g.AddNode(sap); err != nil {
		return nil, err
	}
	if err := g.AddLink(&nffg.Link{
		ID:  "sap-uplink",
		Src: nffg.PortRef{Node: sap.ID, Port: "port"},
		Dst: nffg.PortRef{Node: border.ID, Port: "uplink"},
	}); err != nil {
		return nil, err
	}

	hosts := 0
	for _, host := range result.Hosts {
		if len(host.Addresses) == 0 || host.Status.State != "up" {
			continue
		}
		var ip string
		for _, addr := range host.Addresses {
			if addr.AddrType == "ipv4" {
				ip = addr.Addr
				break
			}
		}
		if ip == "" {
			ip = host.Addresses[0].Addr
		}
		id := "host-" + strings.ReplaceAll(ip, ".", "-")
		infra := nffg.NewInfra(id, d.name, d.capacity, d.types...)
		infra.Name = ip
		infra.InfraType = "BiSBiS"
		infra.MustAddPort("net")
		if err := g.AddNode(infra); err != nil {
			return nil, err
		}

		borderPort := border.MustAddPort("to-" + id)
		fw := &nffg.Link{
			ID:        "link-" + id,
			Src:       nffg.PortRef{Node: border.ID, Port: borderPort.ID},
			Dst:       nffg.PortRef{Node: infra.ID, Port: "net"},
			Bandwidth: d.capacity.Bandwidth,
		}
		bw := &nffg.Link{
			ID:        fw.ID + "-back",
			Src:       fw.Dst,
			Dst:       fw.Src,
			Bandwidth: d.capacity.Bandwidth,
			Backward:  true,
		}
		if err := g.AddLink(fw); err != nil {
			return nil, err
		}
		if err := g.AddLink(bw); err != nil {
			return nil, err
		}
		hosts++
	}

	log.Printf("Discovery domain %s: %d hosts discovered", d.name, hosts)
	return g, nil
}

// Deploy acknowledges the change-set locally.
func (d *DiscoveryCollaborator) Deploy(ctx context.Context, changeSet *nffg.NFFG, diff bool, correlationID string) error {
	if changeSet == nil {
		return &RejectedError{Domain: d.name, Reason: "nil change-set"}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statuses[correlationID] = StatusSuccess
	return nil
}

// Poll reports the recorded status of a change-set.
func (d *DiscoveryCollaborator) Poll(ctx context.Context, correlationID string) (Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.statuses[correlationID]
	if !ok {
		return "", fmt.Errorf("unknown correlation id %q", correlationID)
	}
	return st, nil
}
