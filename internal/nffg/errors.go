package nffg

import "fmt"

// ParseError reports a malformed or referentially-broken serialized graph.
// Element names the offending entity when known.
type ParseError struct {
	Element string
	Reason  string
}

func (e *ParseError) Error() string {
	if e.Element == "" {
		return "parse: " + e.Reason
	}
	return fmt.Sprintf("parse: element %q: %s", e.Element, e.Reason)
}

// ConflictError reports a merge collision: the same id refers to two
// structurally different objects.
type ConflictError struct {
	ID     string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %q: %s", e.ID, e.Reason)
}
