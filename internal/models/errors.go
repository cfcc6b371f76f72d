// ABOUTME: Validation error shared by normalization, config, and API input checks
// ABOUTME: Identifies the offending field so callers can report it

package models

import "fmt"

// ValidationError reports a missing or malformed field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
