// Package repository defines the audit-trail data access interface.
//
// The orchestrator's working state (the global view, in-flight batches)
// lives in memory; this package persists the artifacts worth keeping
// after the fact: deployment batch outcomes, mapping manifests with
// their flow-rule identifiers, and a journal of received domain
// topology reports. The actual implementation is in the sqlite
// subpackage.
//
// # SQLite Implementation
//
// The sqlite implementation opens the database with WAL mode for
// concurrency, bootstraps its schema on startup, and serializes the
// structured payloads (outcomes, manifests, graphs) as JSON columns.
package repository
