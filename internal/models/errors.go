package models

import "fmt"

// ValidationError reports a structurally invalid alert or subscriber
// mutation. Validation failures skip the offending record, they never abort
// a whole batch.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}
