package domain

import (
	"errors"
	"fmt"
)

// RejectionReason classifies why an operation declined to apply.
type RejectionReason string

// Rejection reasons. All of them describe expected outcomes: a rejected
// operation prunes one branch and never fails a run.
const (
	// RejectedPrecondition indicates the operation's precondition was false.
	RejectedPrecondition RejectionReason = "precondition_failed"
	// RejectedParameters indicates parameters outside the declared schema domain.
	RejectedParameters RejectionReason = "parameters_out_of_domain"
	// RejectedTransform indicates the transform itself declined the state.
	RejectedTransform RejectionReason = "transform_refused"
)

// OperationRejected reports that an operation could not apply to a state.
type OperationRejected struct {
	Operation string
	Reason    RejectionReason
	Detail    string
}

func (e OperationRejected) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("operation %s rejected: %s", e.Operation, e.Reason)
	}
	return fmt.Sprintf("operation %s rejected: %s: %s", e.Operation, e.Reason, e.Detail)
}

// IsRejection reports whether err is an OperationRejected outcome.
func IsRejection(err error) bool {
	var rejected OperationRejected
	return errors.As(err, &rejected)
}

// GrowthModelFailure reports that a growth model could not advance a state.
// The owning branch is marked failed; the run continues.
type GrowthModelFailure struct {
	Model  string
	Period int
	Cause  error
}

func (e GrowthModelFailure) Error() string {
	return fmt.Sprintf("growth model %s failed at period %d: %v", e.Model, e.Period, e.Cause)
}

func (e GrowthModelFailure) Unwrap() error { return e.Cause }

// InvalidDeclaration reports a declaration table construction error. It is
// fatal and raised before any simulation begins.
type InvalidDeclaration struct {
	Period    int
	Operation string
	Detail    string
}

func (e InvalidDeclaration) Error() string {
	return fmt.Sprintf("invalid declaration for operation %q at period %d: %s", e.Operation, e.Period, e.Detail)
}

// FatalError aborts a run. It carries the component that raised it so callers
// see full context.
type FatalError struct {
	Component string
	Cause     error
}

func (e FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Component, e.Cause)
}

func (e FatalError) Unwrap() error { return e.Cause }
