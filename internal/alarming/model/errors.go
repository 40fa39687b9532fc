package model

import (
	"errors"
	"fmt"
)

// Error codes surfaced by the API layer.
const (
	ErrorCodeNotFound         = "NOT_FOUND"
	ErrorCodeInvalidState     = "INVALID_STATE"
	ErrorCodeConfiguration    = "CONFIGURATION_ERROR"
	ErrorCodeInvalidParameter = "INVALID_PARAMETER"
	ErrorCodeInternalError    = "INTERNAL_ERROR"
)

// NotFoundError: the referenced record does not exist or is outside the tenant.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// InvalidStateError: the operation is not allowed from the record's current
// state, e.g. linking a second ticket to an already-ticketed alarm.
type InvalidStateError struct {
	Reason string
}

func (e *InvalidStateError) Error() string { return e.Reason }

// ConfigurationError: malformed rule predicate or definition. Rule evaluation
// fails closed on these (rule skipped and logged), rule creation rejects them.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string { return e.Reason }

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsInvalidState(err error) bool {
	var is *InvalidStateError
	return errors.As(err, &is)
}

func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// ErrorCode maps an engine error to its API code.
func ErrorCode(err error) string {
	switch {
	case IsNotFound(err):
		return ErrorCodeNotFound
	case IsInvalidState(err):
		return ErrorCodeInvalidState
	case IsConfiguration(err):
		return ErrorCodeConfiguration
	default:
		return ErrorCodeInternalError
	}
}
