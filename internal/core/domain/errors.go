package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexConflict is returned when the persisted index of a branch
	// doesn't match the expected base of an increment
	ErrIndexConflict = errors.New(
		"address index has been modified concurrently, retry",
	)
	// ErrIndexNotIncreasing is returned when an increment would not move the
	// index of a branch forward
	ErrIndexNotIncreasing = errors.New("address index must only increase")
	// ErrInvalidIndex ...
	ErrInvalidIndex = errors.New("address index must be greater or equal -1")
	// ErrEmptyAddressList ...
	ErrEmptyAddressList = errors.New("address list must not be empty")
	// ErrAddressBranchMismatch is returned when storing an address under a
	// branch path it wasn't derived from
	ErrAddressBranchMismatch = errors.New(
		"address does not belong to the given branch path",
	)
	// ErrInvalidMinConfirmations ...
	ErrInvalidMinConfirmations = errors.New(
		"min confirmations must be greater than zero",
	)
	// ErrNullAddressDeriver ...
	ErrNullAddressDeriver = errors.New("address deriver must not be null")
)

// PlanningErrorKind classifies the failures of the planning and RBF entry
// points.
type PlanningErrorKind int

const (
	// ValidationError is returned for malformed arguments
	ValidationError PlanningErrorKind = iota
	// InsufficientFundsError is returned when the candidate utxos can't cover
	// amount and fees
	InsufficientFundsError
	// ConsistencyError is returned when the transaction to process is not
	// consistent with the wallet state
	ConsistencyError
	// MalformedTransactionError is returned when the shape of the
	// transaction to replace is not supported
	MalformedTransactionError
)

var planningErrorKinds = map[PlanningErrorKind]string{
	ValidationError:           "validation",
	InsufficientFundsError:    "insufficient funds",
	ConsistencyError:          "consistency",
	MalformedTransactionError: "malformed transaction",
}

func (k PlanningErrorKind) String() string {
	return planningErrorKinds[k]
}

// PlanningError is the error returned by the planning and RBF entry points.
// It always carries a description and a hint for the user.
type PlanningError struct {
	Kind        PlanningErrorKind
	Description string
	HowToFix    string
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Description)
}

// IsRecoverable returns whether the user can recover from the error without
// changing the transaction being processed.
func (e *PlanningError) IsRecoverable() bool {
	return e.Kind == InsufficientFundsError
}

func newValidationError(description, howToFix string) *PlanningError {
	return &PlanningError{ValidationError, description, howToFix}
}

func newInsufficientFundsError(description, howToFix string) *PlanningError {
	return &PlanningError{InsufficientFundsError, description, howToFix}
}

func newConsistencyError(description string) *PlanningError {
	return &PlanningError{
		ConsistencyError, description,
		"refresh the transaction history and try again",
	}
}

func newMalformedTransactionError(description string) *PlanningError {
	return &PlanningError{
		MalformedTransactionError, description,
		"only transactions with one or two outputs can be replaced",
	}
}

// PlanResult is the flat result shape of the planning and RBF entry points
// rendered to the user.
type PlanResult struct {
	Result           bool
	Plan             *TxPlan
	ErrorDescription string
	HowToFix         string
}

// NewPlanResult merges a plan and a planning error into a PlanResult.
func NewPlanResult(plan *TxPlan, err *PlanningError) PlanResult {
	if err != nil {
		return PlanResult{
			Result:           false,
			ErrorDescription: err.Description,
			HowToFix:         err.HowToFix,
		}
	}
	return PlanResult{Result: true, Plan: plan}
}
