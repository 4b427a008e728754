package view

import "fmt"

// DomainReportError rejects a malformed domain report. The global view is
// guaranteed unchanged when this is returned.
type DomainReportError struct {
	Domain string
	Reason string
	Cause  error
}

func (e *DomainReportError) Error() string {
	return fmt.Sprintf("domain report from %q rejected: %s", e.Domain, e.Reason)
}

func (e *DomainReportError) Unwrap() error { return e.Cause }
