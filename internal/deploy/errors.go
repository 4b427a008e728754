package deploy

import (
	"fmt"
	"time"
)

// DomainBusyError rejects a batch targeting a domain that already has an
// in-flight change-set. Installs on one domain never interleave.
type DomainBusyError struct {
	Domain  string
	BatchID string // the batch currently holding the domain
}

func (e *DomainBusyError) Error() string {
	return fmt.Sprintf("domain %q is busy with batch %s", e.Domain, e.BatchID)
}

// TimeoutError marks a dispatched domain that never reached a terminal
// status within its deadline. Treated as that domain's failure.
type TimeoutError struct {
	Domain  string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("domain %q did not settle within %s", e.Domain, e.Elapsed)
}
