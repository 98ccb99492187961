package aggregate

import "fmt"

// ParseError is a per-event failure. Reducers count and skip these; they never
// fail a whole reduction.
type ParseError struct {
	EventID string
	Field   string
	Reason  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("event %s field %q: %s", e.EventID, e.Field, e.Reason)
}
