package vopay

import "fmt"

// MissingFieldError names the first required field that is absent or carries
// the wrong primitive type in a webhook payload.
type MissingFieldError struct {
	EventType string
	Field     string
	Reason    string // "missing" or "wrong type"
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s webhook: required field %s is %s", e.EventType, e.Field, e.Reason)
}
