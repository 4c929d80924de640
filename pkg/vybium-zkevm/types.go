package vybiumzkevm

import (
	"strings"

	"github.com/holiman/uint256"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/cpu"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/generation"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/utils"
)

// Config represents configuration for trace generation
type Config = utils.Config

// Outcome is how a transaction ended: stop, out of gas, or a stack fault
type Outcome = generation.Outcome

// Outcomes a trace can end with
const (
	OutcomeStop           = generation.OutcomeStop
	OutcomeOutOfGas       = generation.OutcomeOutOfGas
	OutcomeStackUnderflow = generation.OutcomeStackUnderflow
	OutcomeStackOverflow  = generation.OutcomeStackOverflow
)

// Row is one CPU cycle of an execution trace
type Row = cpu.ExecutionRow

// Hint is what a hint syscall returned to its caller
type Hint struct {
	Routine string
	Kind    string
	Input   *uint256.Int
	Output  *uint256.Int
	Exists  bool
}

// ExecutionTrace represents the padded CPU trace of one transaction
type ExecutionTrace struct {
	// Rows of the trace, padded to a power of two
	Rows []Row

	// Outcome of the transaction
	Outcome Outcome

	// Cycle count, excluding padding
	CycleCount int

	// Gas used when the terminal row was reached
	GasUsed uint64

	// Final stack, bottom first
	Stack []*uint256.Int

	// Hints answered during the run
	Hints []Hint

	// TranscriptDigest commits to every prover exchange, in order
	TranscriptDigest [32]byte
}

// VerificationResult represents the result of checking a trace
type VerificationResult struct {
	// Whether every constraint holds on every row
	Valid bool

	// Violated constraints, at most one entry per name
	Violations []string

	// Commitment to the trace rows
	Root []byte

	// Verification time in milliseconds
	VerificationTimeMs int64
}

// Err returns nil for a valid trace and an ErrConstraintViolation error
// naming the violated constraints otherwise
func (r *VerificationResult) Err() error {
	if r.Valid {
		return nil
	}
	if len(r.Violations) == 0 {
		return newError(ErrConstraintViolation, "composition does not vanish", nil)
	}
	return newError(ErrConstraintViolation, "violated: "+strings.Join(r.Violations, ", "), nil)
}
