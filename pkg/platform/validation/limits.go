package validation

import (
	"fmt"

	dErrors "zkgate/pkg/domain-errors"
)

// HTTP body limits
const (
	// MaxBodySize is the maximum allowed request body size (16 KB).
	// Every request body is a handful of scalar fields.
	MaxBodySize = 16 * 1024
)

// CheckRequired validates that a string is not empty.
func CheckRequired(fieldName, value string) error {
	if value == "" {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s is required", fieldName))
	}
	return nil
}
