// Package adapter implements the domain collaborator boundary.
//
// A Collaborator drives one infrastructure domain through a narrow
// contract - fetch topology, hand off a change-set, observe completion -
// regardless of the transport underneath. The concrete implementations
// cover the transports conflux speaks today:
//
// StaticCollaborator serves a fixed topology loaded from a file and
// acknowledges change-sets locally; it stands in for emulated domains.
//
// RESTCollaborator talks to a domain agent over HTTP JSON.
//
// SSHCollaborator runs a remote agent binary over SSH and exchanges
// graphs on stdin/stdout, for domains without an addressable API.
//
// DiscoveryCollaborator probes a local network with nmap and synthesizes
// a domain topology from the responsive hosts.
//
// # Registry
//
// Registry owns collaborator lifecycle: it fetches initial topologies,
// runs the per-domain topology poll loops and feeds every report to the
// global view through a single ReportFunc.
//
// # Completion disciplines
//
// Deploy acceptance only means the domain started working. Completion is
// observed either by polling (Poll until terminal) or, for
// CallbackCapable collaborators, by a pushed notice addressed with the
// correlation id assigned at dispatch time.
package adapter
