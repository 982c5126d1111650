package model

import (
	"fmt"
	"strings"
)

// ValidationError describes malformed input. It is never retried and the
// operation that produced it applies no changes.
type ValidationError []string

func (v ValidationError) Error() string {
	return "invalid request: " + strings.Join(v, "; ")
}

// Invalid returns a single-message ValidationError.
func Invalid(format string, args ...interface{}) error {
	return ValidationError{fmt.Sprintf(format, args...)}
}
