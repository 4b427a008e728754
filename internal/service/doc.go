// Package service implements the orchestration pipeline.
//
// This package sits between the HTTP handlers and the engine packages,
// driving each service request through parse, embed and deploy while
// tracking its lifecycle state and recording audit artifacts.
//
// # Pipeline
//
// Orchestrator accepts a serialized service graph, embeds it onto the
// current global resource view via the mapper engine, and hands the
// mapped graph to the deployment coordinator. Embedding and committing
// happen under one lock so the view an embedding was computed against
// is still current when its results are folded back in.
//
// # Event System
//
// The orchestrator publishes request lifecycle and view change events
// via EventBus for real-time updates to connected clients via
// Server-Sent Events (SSE).
//
// # Design Principles
//
// - Orchestrator owns request lifecycle and validation
// - Per-domain outcomes are reported verbatim, never collapsed
// - Event-driven for real-time updates
// - Context-aware for cancellation and timeouts
package service
