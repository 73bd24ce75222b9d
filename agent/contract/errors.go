package contract

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrClassification  = errors.New("classification failed")
	ErrRoleUnavailable = errors.New("agent role unavailable")
	ErrUnknownRole     = errors.New("unknown agent role")
	ErrStageTimeout    = errors.New("stage deadline exceeded")
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
)

// StageFailure wraps the first unrecoverable stage error with the role that
// produced it.
type StageFailure struct {
	Role  AgentRole
	Cause error
}

func (e *StageFailure) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Role, e.Cause)
}

func (e *StageFailure) Unwrap() error {
	return e.Cause
}
