// Package handler implements HTTP request handlers for the orchestrator API.
//
// This package provides the REST layer: service request intake, request
// and batch status, topology projections of the global view, and the
// inbound callback endpoint domains use to report deployment completion.
//
// # API Design
//
// All handlers follow REST conventions:
// - GET for retrieval
// - POST for submission and callbacks
//
// Errors are returned as JSON with appropriate HTTP status codes.
// Request bodies are validated before processing.
//
// # Response Format
//
// Success responses return JSON data with appropriate status codes
// (200, 202). Error responses return JSON with {error, details}
// structure.
//
// # Server-Sent Events
//
// The /events endpoint provides real-time updates via SSE: view version
// bumps, request lifecycle transitions and deployment batch progress.
package handler
