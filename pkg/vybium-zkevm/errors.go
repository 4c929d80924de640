package vybiumzkevm

import "fmt"

// ErrorCode represents a Vybium zkEVM error code
type ErrorCode int

const (
	// ErrUnknown represents an unknown error
	ErrUnknown ErrorCode = iota

	// ErrInvalidConfig represents an invalid configuration error
	ErrInvalidConfig

	// ErrTraceGeneration represents a failure while running a program
	ErrTraceGeneration

	// ErrConstraintViolation represents a trace that does not satisfy the CPU constraints
	ErrConstraintViolation

	// ErrCommitment represents a trace commitment error
	ErrCommitment

	// ErrHintVerification represents a prover hint that failed its witness check
	ErrHintVerification

	// ErrInvalidInput represents an invalid input error
	ErrInvalidInput
)

// VMError represents a Vybium zkEVM error
type VMError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error returns the error message
func (e *VMError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("vybium-zkevm error [%d]: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("vybium-zkevm error [%d]: %s", e.Code, e.Message)
}

// Unwrap returns the cause of the error
func (e *VMError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error
func (e *VMError) Is(target error) bool {
	t, ok := target.(*VMError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newError(code ErrorCode, message string, cause error) *VMError {
	return &VMError{Code: code, Message: message, Cause: cause}
}
