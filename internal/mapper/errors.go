package mapper

import "fmt"

// MappingError reports the specific unsatisfiable element, never a
// generic failure. Exactly one of NodeID, HopID, RequirementID names the
// culprit.
type MappingError struct {
	NodeID        string
	HopID         string
	RequirementID string
	Reason        string
}

func (e *MappingError) Error() string {
	switch {
	case e.NodeID != "":
		return fmt.Sprintf("mapping failed: function %q: %s", e.NodeID, e.Reason)
	case e.HopID != "":
		return fmt.Sprintf("mapping failed: hop %q: %s", e.HopID, e.Reason)
	case e.RequirementID != "":
		return fmt.Sprintf("mapping failed: requirement %q: %s", e.RequirementID, e.Reason)
	}
	return "mapping failed: " + e.Reason
}
